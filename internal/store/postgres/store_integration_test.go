package postgres

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"qms/turn-service/internal/models"
	"qms/turn-service/internal/store"
	"qms/turn-service/migrations"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	serviceID  string
	doctorA    string
	doctorB    string
	resourceID string
	patientID  string
}

func TestCreateTurnIdempotency(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)
	fx := seedBaseData(t, ctx, pool, "U")

	requestID := uuid.NewString()
	first, created, err := st.CreateTurn(ctx, store.CreateTurnInput{RequestID: requestID, ServiceID: fx.serviceID, PatientName: "Ana", Actor: "clerk"})
	require.NoError(t, err)
	require.True(t, created)
	second, created, err := st.CreateTurn(ctx, store.CreateTurnInput{RequestID: requestID, ServiceID: fx.serviceID, PatientName: "Ana", Actor: "clerk"})
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.TurnID, second.TurnID)
	require.Equal(t, first.Code, second.Code)

	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM turns`).Scan(&count))
	require.Equal(t, 1, count)
}

func TestCreateTurnStartsWaitingWithHistory(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)
	fx := seedBaseData(t, ctx, pool, "A")

	turn, _, err := st.CreateTurn(ctx, store.CreateTurnInput{ServiceID: fx.serviceID, PatientID: fx.patientID, Actor: "clerk"})
	require.NoError(t, err)
	assert.Equal(t, "A001", turn.Code)
	assert.Equal(t, models.StatusWaiting, turn.Status)
	assert.Equal(t, models.PriorityPreferential, turn.Priority, "preferential patients are raised")
	assert.NotNil(t, turn.WaitingAt)
	assert.Equal(t, "Rosa Diaz", turn.PatientDisplayName)

	history, err := st.ListTurnHistory(ctx, turn.TurnID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	status, err := store.ReplayStatus(history)
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaiting, status)
}

func TestConcurrentCreatesIssueDistinctCodes(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)
	fx := seedBaseData(t, ctx, pool, "C")

	const workers = 8
	var wg sync.WaitGroup
	codes := make(chan string, workers)
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			turn, _, err := st.CreateTurn(ctx, store.CreateTurnInput{ServiceID: fx.serviceID, PatientName: "Walk-in", Actor: "kiosk"})
			if err != nil {
				errs <- err
				return
			}
			codes <- turn.Code
		}()
	}
	wg.Wait()
	close(codes)
	close(errs)

	for err := range errs {
		t.Fatalf("create turn: %v", err)
	}
	seen := map[string]bool{}
	for code := range codes {
		require.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true
	}
	require.Len(t, seen, workers)
}

func TestCancelledCodeIsReused(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)
	fx := seedBaseData(t, ctx, pool, "U")

	first := createTurn(t, ctx, st, fx.serviceID)
	second := createTurn(t, ctx, st, fx.serviceID)
	require.Equal(t, "U001", first.Code)
	require.Equal(t, "U002", second.Code)

	_, changed, err := st.TransitionTurn(ctx, store.TransitionInput{TurnID: first.TurnID, To: models.StatusCancelled, Actor: "clerk", Notes: "left"})
	require.NoError(t, err)
	require.True(t, changed)

	third := createTurn(t, ctx, st, fx.serviceID)
	require.Equal(t, "U001", third.Code)

	fourth := createTurn(t, ctx, st, fx.serviceID)
	require.Equal(t, "U003", fourth.Code)
}

func TestTransitionRejectsIllegalStep(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)
	fx := seedBaseData(t, ctx, pool, "T")

	turn := createTurn(t, ctx, st, fx.serviceID)
	_, _, err := st.TransitionTurn(ctx, store.TransitionInput{TurnID: turn.TurnID, To: models.StatusDone, Actor: "clerk"})
	require.True(t, errors.Is(err, store.ErrInvalidTransition))
	assert.Equal(t, "WAITING", store.FieldsOf(err)["from"])

	again, err := st.GetTurn(ctx, turn.TurnID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaiting, again.Status)
	history, err := st.ListTurnHistory(ctx, turn.TurnID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestRepeatedTransitionIsNoop(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)
	fx := seedBaseData(t, ctx, pool, "T")

	turn := createTurn(t, ctx, st, fx.serviceID)
	call := store.TransitionInput{TurnID: turn.TurnID, To: models.StatusCalled, Actor: "nurse", DoctorID: fx.doctorA}
	_, changed, err := st.TransitionTurn(ctx, call)
	require.NoError(t, err)
	require.True(t, changed)

	_, changed, err = st.TransitionTurn(ctx, call)
	require.NoError(t, err)
	require.False(t, changed)

	call.DoctorID = fx.doctorB
	_, _, err = st.TransitionTurn(ctx, call)
	require.True(t, errors.Is(err, store.ErrInvalidTransition))

	history, err := st.ListTurnHistory(ctx, turn.TurnID)
	require.NoError(t, err)
	assert.Len(t, history, 3)
}

func TestCallRejectsBusyDoctor(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)
	fx := seedBaseData(t, ctx, pool, "D")

	first := createTurn(t, ctx, st, fx.serviceID)
	second := createTurn(t, ctx, st, fx.serviceID)

	transition(t, ctx, st, first.TurnID, models.StatusCalled, fx.doctorA)
	transition(t, ctx, st, first.TurnID, models.StatusInService, "")

	_, _, err := st.TransitionTurn(ctx, store.TransitionInput{TurnID: second.TurnID, To: models.StatusCalled, Actor: "nurse", DoctorID: fx.doctorA})
	require.True(t, errors.Is(err, store.ErrConflict))
	assert.Contains(t, err.Error(), "doctor already has a patient in service")

	called := transition(t, ctx, st, second.TurnID, models.StatusCalled, fx.doctorB)
	require.NotNil(t, called.DoctorID)
	assert.Equal(t, fx.doctorB, *called.DoctorID)
	assert.Equal(t, "Dr. Beta", called.DoctorName)
}

func TestFinishWritesResourceHistory(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)
	fx := seedBaseData(t, ctx, pool, "F")

	turn, _, err := st.CreateTurn(ctx, store.CreateTurnInput{ServiceID: fx.serviceID, PatientName: "Luis", ResourceID: fx.resourceID, Actor: "clerk"})
	require.NoError(t, err)
	transition(t, ctx, st, turn.TurnID, models.StatusCalled, fx.doctorA)
	transition(t, ctx, st, turn.TurnID, models.StatusInService, "")
	done := transition(t, ctx, st, turn.TurnID, models.StatusDone, "")
	require.NotNil(t, done.FinishedAt)

	entries, err := st.ListResourceHistory(ctx, store.HistoryFilter{ResourceID: fx.resourceID})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].TurnID)
	assert.Equal(t, turn.TurnID, *entries[0].TurnID)
	assert.Equal(t, models.OutcomeAttended, entries[0].Outcome)
	assert.Equal(t, "Dr. Alfa", entries[0].DoctorName)
	assert.Equal(t, "Consultorio 1", entries[0].ResourceName)
}

func TestConcurrentAssignSingleWinner(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)
	fx := seedBaseData(t, ctx, pool, "R")

	const workers = 5
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := st.AssignResource(ctx, store.AssignInput{ResourceID: fx.resourceID, PatientName: "Eva", PatientSurname: "Mora", Actor: "nurse"})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		require.True(t, errors.Is(err, store.ErrConflict), "unexpected error: %v", err)
		assert.Contains(t, err.Error(), "already occupied")
	}
	require.Equal(t, 1, wins)
}

func TestReleaseWritesHistoryAndFreesResource(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)
	fx := seedBaseData(t, ctx, pool, "R")

	started := time.Now().Add(-90 * time.Minute)
	occ, err := st.AssignResource(ctx, store.AssignInput{
		ResourceID: fx.resourceID, PatientName: "Eva", PatientSurname: "Mora",
		DoctorID: fx.doctorA, StartedAt: &started, Notes: "post-op", Actor: "nurse",
	})
	require.NoError(t, err)
	assert.Equal(t, models.OccupancyOccupied, occ.Status)

	status := models.OccupancyRecovery
	updated, err := st.UpdateOccupancy(ctx, store.UpdateOccupancyInput{ResourceID: fx.resourceID, Status: &status, Actor: "nurse"})
	require.NoError(t, err)
	assert.Equal(t, models.OccupancyRecovery, updated.Status)
	assert.NotNil(t, updated.UpdatedAt)

	_, err = st.DeactivateResource(ctx, fx.resourceID)
	require.True(t, errors.Is(err, store.ErrConflict))

	history, err := st.ReleaseResource(ctx, store.ReleaseInput{ResourceID: fx.resourceID, Actor: "nurse"})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeAttended, history.Outcome)
	assert.Equal(t, "post-op", history.Notes)
	assert.InDelta(t, 90, history.DurationMinutes, 1)
	assert.Equal(t, "Dr. Alfa", history.DoctorName)

	_, found, err := st.GetOccupancy(ctx, fx.resourceID)
	require.NoError(t, err)
	assert.False(t, found)

	_, err = st.ReleaseResource(ctx, store.ReleaseInput{ResourceID: fx.resourceID, Actor: "nurse"})
	require.True(t, errors.Is(err, store.ErrNotFound))

	resource, err := st.DeactivateResource(ctx, fx.resourceID)
	require.NoError(t, err)
	assert.False(t, resource.Active)

	_, err = st.AssignResource(ctx, store.AssignInput{ResourceID: fx.resourceID, PatientName: "Eva", PatientSurname: "Mora", Actor: "nurse"})
	require.True(t, errors.Is(err, store.ErrConflict))
	assert.Contains(t, err.Error(), "inactive")
}

func TestStaleTurnsCancelledBySweep(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)
	fx := seedBaseData(t, ctx, pool, "S")

	turn := createTurn(t, ctx, st, fx.serviceID)
	_, err := pool.Exec(ctx, `UPDATE turns SET created_at = created_at - interval '1 day' WHERE turn_id = $1`, turn.TurnID)
	require.NoError(t, err)

	count, err := st.CancelStaleTurns(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	stale, err := st.GetTurn(ctx, turn.TurnID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, stale.Status)

	history, err := st.ListTurnHistory(ctx, turn.TurnID)
	require.NoError(t, err)
	last := history[len(history)-1]
	assert.Equal(t, store.SystemActor, last.ChangedBy)
	_, err = store.ReplayStatus(history)
	require.NoError(t, err)
}

func TestQueueOrdering(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)
	fx := seedBaseData(t, ctx, pool, "Q")

	normal := createTurn(t, ctx, st, fx.serviceID)
	urgent, _, err := st.CreateTurn(ctx, store.CreateTurnInput{ServiceID: fx.serviceID, PatientName: "Urgent", Priority: models.PriorityUrgent, Actor: "clerk"})
	require.NoError(t, err)
	later := createTurn(t, ctx, st, fx.serviceID)

	queue, err := st.ListQueue(ctx, store.QueueFilter{ServiceID: fx.serviceID})
	require.NoError(t, err)
	require.Len(t, queue, 3)
	assert.Equal(t, urgent.TurnID, queue[0].TurnID)
	assert.Equal(t, normal.TurnID, queue[1].TurnID)
	assert.Equal(t, later.TurnID, queue[2].TurnID)

	stats, err := st.DailyStats(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 3, stats.ByStatus[models.StatusWaiting])
}

func setupTestStore(t *testing.T, ctx context.Context) (*Store, *pgxpool.Pool, func()) {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		dsn = os.Getenv("DB_DSN")
	}
	if dsn == "" {
		t.Skip("TEST_DB_DSN or DB_DSN is required for integration tests")
	}

	schema := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := execOnce(ctx, dsn, "CREATE SCHEMA "+schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	pool, err := newPoolWithSchema(ctx, dsn, schema)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}
	if _, err := Migrate(ctx, pool, migrations.FS); err != nil {
		pool.Close()
		t.Fatalf("apply migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		_ = execOnce(context.Background(), dsn, "DROP SCHEMA "+schema+" CASCADE")
	}
	return NewStore(pool, Options{}), pool, cleanup
}

func execOnce(ctx context.Context, dsn, statement string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, statement)
	return err
}

func newPoolWithSchema(ctx context.Context, dsn, schema string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	return pgxpool.NewWithConfig(ctx, cfg)
}

func seedBaseData(t *testing.T, ctx context.Context, pool *pgxpool.Pool, prefix string) fixture {
	t.Helper()
	fx := fixture{
		serviceID:  uuid.NewString(),
		doctorA:    uuid.NewString(),
		doctorB:    uuid.NewString(),
		resourceID: uuid.NewString(),
		patientID:  uuid.NewString(),
	}
	statements := []struct {
		name string
		sql  string
		args []interface{}
	}{
		{"service", `INSERT INTO services (service_id, name, prefix) VALUES ($1, 'General', $2)`, []interface{}{fx.serviceID, prefix}},
		{"doctor A", `INSERT INTO doctors (doctor_id, full_name, specialty, office_number) VALUES ($1, 'Dr. Alfa', 'General', '101')`, []interface{}{fx.doctorA}},
		{"doctor B", `INSERT INTO doctors (doctor_id, full_name, specialty, office_number) VALUES ($1, 'Dr. Beta', 'General', '102')`, []interface{}{fx.doctorB}},
		{"resource", `INSERT INTO resources (resource_id, code, name, type) VALUES ($1, 'C-1', 'Consultorio 1', 'CONSULTORIO')`, []interface{}{fx.resourceID}},
		{"patient", `INSERT INTO patients (patient_id, full_name, phone, is_preferential) VALUES ($1, 'Rosa Diaz', '555-0101', TRUE)`, []interface{}{fx.patientID}},
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt.sql, stmt.args...); err != nil {
			t.Fatalf("insert %s: %v", stmt.name, err)
		}
	}
	return fx
}

func createTurn(t *testing.T, ctx context.Context, st *Store, serviceID string) models.Turn {
	t.Helper()
	turn, _, err := st.CreateTurn(ctx, store.CreateTurnInput{ServiceID: serviceID, PatientName: "Walk-in", Actor: "clerk"})
	if err != nil {
		t.Fatalf("create turn: %v", err)
	}
	return turn
}

func transition(t *testing.T, ctx context.Context, st *Store, turnID string, to models.Status, doctorID string) models.Turn {
	t.Helper()
	turn, _, err := st.TransitionTurn(ctx, store.TransitionInput{TurnID: turnID, To: to, Actor: "nurse", DoctorID: doctorID})
	if err != nil {
		t.Fatalf("transition to %s: %v", to, err)
	}
	return turn
}
