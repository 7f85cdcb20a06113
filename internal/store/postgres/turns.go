package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"qms/turn-service/internal/models"
	"qms/turn-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const turnColumns = `
	t.turn_id, t.code, t.patient_id, COALESCE(t.patient_name, ''), COALESCE(t.patient_phone, ''),
	t.service_id, t.doctor_id, t.resource_id, t.status, t.priority,
	COALESCE(t.notes, ''), COALESCE(t.request_id, ''), t.created_by, t.created_at,
	t.waiting_at, t.called_at, t.service_started_at, t.finished_at,
	COALESCE(p.full_name, t.patient_name, ''), COALESCE(s.name, ''),
	COALESCE(d.full_name, ''), COALESCE(d.office_number, ''), COALESCE(r.name, '')
`

const turnJoins = `
	FROM turns t
	JOIN services s ON s.service_id = t.service_id
	LEFT JOIN patients p ON p.patient_id = t.patient_id
	LEFT JOIN doctors d ON d.doctor_id = t.doctor_id
	LEFT JOIN resources r ON r.resource_id = t.resource_id
`

func scanTurn(row pgx.Row) (models.Turn, error) {
	var turn models.Turn
	var patientID, doctorID, resourceID sql.NullString
	var waitingAt, calledAt, startedAt, finishedAt sql.NullTime
	err := row.Scan(
		&turn.TurnID, &turn.Code, &patientID, &turn.PatientName, &turn.PatientPhone,
		&turn.ServiceID, &doctorID, &resourceID, &turn.Status, &turn.Priority,
		&turn.Notes, &turn.RequestID, &turn.CreatedBy, &turn.CreatedAt,
		&waitingAt, &calledAt, &startedAt, &finishedAt,
		&turn.PatientDisplayName, &turn.ServiceName,
		&turn.DoctorName, &turn.OfficeNumber, &turn.ResourceName,
	)
	if err != nil {
		return models.Turn{}, err
	}
	turn.PatientID = nullStringPtr(patientID)
	turn.DoctorID = nullStringPtr(doctorID)
	turn.ResourceID = nullStringPtr(resourceID)
	turn.CreatedAt = turn.CreatedAt.UTC()
	turn.WaitingAt = nullTimePtr(waitingAt)
	turn.CalledAt = nullTimePtr(calledAt)
	turn.ServiceStartedAt = nullTimePtr(startedAt)
	turn.FinishedAt = nullTimePtr(finishedAt)
	return turn, nil
}

func collectTurns(rows pgx.Rows) ([]models.Turn, error) {
	defer rows.Close()
	turns := []models.Turn{}
	for rows.Next() {
		turn, err := scanTurn(rows)
		if err != nil {
			return nil, err
		}
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

func loadTurn(ctx context.Context, q querier, turnID string) (models.Turn, error) {
	turn, err := scanTurn(q.QueryRow(ctx, `SELECT `+turnColumns+turnJoins+` WHERE t.turn_id = $1`, turnID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Turn{}, store.NotFound("turn", turnID)
		}
		return models.Turn{}, err
	}
	return turn, nil
}

func findTurnByRequestID(ctx context.Context, tx pgx.Tx, requestID string) (models.Turn, bool, error) {
	turn, err := scanTurn(tx.QueryRow(ctx, `SELECT `+turnColumns+turnJoins+` WHERE t.request_id = $1`, requestID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Turn{}, false, nil
		}
		return models.Turn{}, false, err
	}
	return turn, true, nil
}

func (s *Store) GetTurn(ctx context.Context, turnID string) (models.Turn, error) {
	if err := checkID("turn", turnID); err != nil {
		return models.Turn{}, err
	}
	turn, err := loadTurn(ctx, s.pool, turnID)
	return turn, translate(err)
}

// CreateTurn allocates a code and inserts the turn, leaving it WAITING. The
// bool is false when request_id matched an existing turn, which is returned
// unchanged.
func (s *Store) CreateTurn(ctx context.Context, input store.CreateTurnInput) (models.Turn, bool, error) {
	if err := store.ValidateCreate(input); err != nil {
		return models.Turn{}, false, err
	}

	var turn models.Turn
	created := false
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		if input.RequestID != "" {
			existing, found, err := findTurnByRequestID(ctx, tx, input.RequestID)
			if err != nil {
				return err
			}
			if found {
				turn = existing
				return nil
			}
		}

		c, err := txNow(ctx, tx)
		if err != nil {
			return err
		}

		service, err := getService(ctx, tx, input.ServiceID)
		if err != nil {
			return err
		}
		if !service.Active {
			return store.Conflict(fmt.Sprintf("service %s is inactive", service.Name), "service_id", service.ServiceID)
		}

		var patient *models.Patient
		if input.PatientID != "" {
			p, err := getPatient(ctx, tx, input.PatientID)
			if err != nil {
				return err
			}
			patient = &p
		}
		if input.DoctorID != "" {
			if _, err := getDoctor(ctx, tx, input.DoctorID); err != nil {
				return err
			}
		}
		if input.ResourceID != "" {
			resource, err := getResource(ctx, tx, input.ResourceID, false)
			if err != nil {
				return err
			}
			if !resource.Active {
				return store.Conflict(fmt.Sprintf("resource %s is inactive", resource.Name), "resource_id", resource.ResourceID)
			}
		}

		if _, err := cancelStale(ctx, tx, c); err != nil {
			return err
		}

		code, err := allocateCode(ctx, tx, service, c)
		if err != nil {
			return err
		}

		turnID := uuid.NewString()
		_, err = tx.Exec(ctx, `
			INSERT INTO turns (
				turn_id, code, patient_id, patient_name, patient_phone, service_id, doctor_id, resource_id,
				status, priority, notes, request_id, created_by, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		`, turnID, code, nullIfEmpty(input.PatientID), nullIfEmpty(input.PatientName), nullIfEmpty(input.PatientPhone),
			input.ServiceID, nullIfEmpty(input.DoctorID), nullIfEmpty(input.ResourceID),
			models.StatusCreated, store.ResolvePriority(input.Priority, patient), nullIfEmpty(input.Notes),
			nullIfEmpty(input.RequestID), input.Actor, c.now)
		if err != nil {
			return err
		}
		if err := appendHistory(ctx, tx, historyEntry{
			turnID: turnID,
			next:   models.StatusCreated,
			actor:  input.Actor,
			notes:  input.Notes,
			at:     c.now,
		}); err != nil {
			return err
		}

		if err := setStatus(ctx, tx, turnID, models.StatusWaiting, "", c); err != nil {
			return err
		}
		if err := appendHistory(ctx, tx, historyEntry{
			turnID:   turnID,
			previous: models.StatusCreated,
			next:     models.StatusWaiting,
			actor:    input.Actor,
			at:       c.now,
		}); err != nil {
			return err
		}

		turn, err = loadTurn(ctx, tx, turnID)
		if err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return models.Turn{}, false, err
	}
	return turn, created, nil
}

type lockedTurn struct {
	status     models.Status
	doctorID   string
	resourceID string
}

func lockTurn(ctx context.Context, tx pgx.Tx, turnID string) (lockedTurn, error) {
	var locked lockedTurn
	var doctorID, resourceID sql.NullString
	row := tx.QueryRow(ctx, `
		SELECT status, doctor_id, resource_id
		FROM turns
		WHERE turn_id = $1
		FOR UPDATE
	`, turnID)
	if err := row.Scan(&locked.status, &doctorID, &resourceID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return lockedTurn{}, store.NotFound("turn", turnID)
		}
		return lockedTurn{}, err
	}
	locked.doctorID = doctorID.String
	locked.resourceID = resourceID.String
	return locked, nil
}

// setStatus moves the turn to status and stamps the matching timestamp
// column. A non-empty doctorID replaces the assigned doctor.
func setStatus(ctx context.Context, tx pgx.Tx, turnID string, status models.Status, doctorID string, c clock) error {
	column := store.TimestampColumn(status)
	if column == "" {
		return fmt.Errorf("no timestamp column for status %s", status)
	}
	_, err := tx.Exec(ctx, `
		UPDATE turns
		SET status = $2, doctor_id = COALESCE($3::uuid, doctor_id), `+column+` = $4
		WHERE turn_id = $1
	`, turnID, status, nullIfEmpty(doctorID), c.now)
	return err
}

// TransitionTurn applies one state machine step. Re-applying the step the
// turn already took returns it with changed=false.
func (s *Store) TransitionTurn(ctx context.Context, input store.TransitionInput) (models.Turn, bool, error) {
	if err := checkID("turn", input.TurnID); err != nil {
		return models.Turn{}, false, err
	}
	if !input.To.Valid() {
		return models.Turn{}, false, store.Validation("unknown status", "status", string(input.To))
	}
	if input.Actor == "" {
		return models.Turn{}, false, store.Validation("actor is required", "turn_id", input.TurnID)
	}

	var turn models.Turn
	changed := false
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		locked, err := lockTurn(ctx, tx, input.TurnID)
		if err != nil {
			return err
		}

		if locked.status == input.To {
			if input.To == models.StatusCalled && input.DoctorID != "" && input.DoctorID != locked.doctorID {
				return store.InvalidTransition(input.TurnID, string(locked.status), string(input.To))
			}
			turn, err = loadTurn(ctx, tx, input.TurnID)
			return err
		}
		if input.From != "" && locked.status != input.From {
			return store.InvalidTransition(input.TurnID, string(locked.status), string(input.To))
		}
		if err := store.CheckTransition(input.TurnID, locked.status, input.To); err != nil {
			return err
		}

		c, err := txNow(ctx, tx)
		if err != nil {
			return err
		}

		newDoctor := ""
		if input.To == models.StatusCalled {
			doctorID := locked.doctorID
			if input.DoctorID != "" {
				if _, err := getDoctor(ctx, tx, input.DoctorID); err != nil {
					return err
				}
				doctorID = input.DoctorID
				if doctorID != locked.doctorID {
					newDoctor = doctorID
				}
			}
			if doctorID != "" {
				if err := ensureDoctorFree(ctx, tx, doctorID, input.TurnID, c); err != nil {
					return err
				}
			}
		}

		if err := setStatus(ctx, tx, input.TurnID, input.To, newDoctor, c); err != nil {
			return err
		}
		if err := appendHistory(ctx, tx, historyEntry{
			turnID:   input.TurnID,
			previous: locked.status,
			next:     input.To,
			actor:    input.Actor,
			notes:    input.Notes,
			at:       c.now,
		}); err != nil {
			return err
		}

		turn, err = loadTurn(ctx, tx, input.TurnID)
		if err != nil {
			return err
		}
		if input.To == models.StatusDone && locked.resourceID != "" {
			if err := recordTurnOnResource(ctx, tx, turn, input, c); err != nil {
				return err
			}
		}
		changed = true
		return nil
	})
	if err != nil {
		return models.Turn{}, false, err
	}
	return turn, changed, nil
}

// ensureDoctorFree fails when the doctor already serves another of today's
// turns. The advisory lock orders concurrent calls for the same doctor.
func ensureDoctorFree(ctx context.Context, tx pgx.Tx, doctorID, turnID string, c clock) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('doctor:' || $1::text))`, doctorID); err != nil {
		return err
	}
	var busyTurn string
	row := tx.QueryRow(ctx, `
		SELECT turn_id
		FROM turns
		WHERE doctor_id = $1 AND status = $2 AND turn_id <> $3 AND created_at >= $4::date
		LIMIT 1
	`, doctorID, models.StatusInService, turnID, c.day)
	err := row.Scan(&busyTurn)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	return store.Conflict("doctor already has a patient in service", "doctor_id", doctorID, "turn_id", busyTurn)
}

// recordTurnOnResource writes the resource history row for a finished turn
// that was bound to a resource.
func recordTurnOnResource(ctx context.Context, tx pgx.Tx, turn models.Turn, input store.TransitionInput, c clock) error {
	resourceID := strPtrValue(turn.ResourceID)
	resource, err := getResource(ctx, tx, resourceID, false)
	if err != nil {
		return err
	}

	var doctor models.Doctor
	if turn.DoctorID != nil {
		doctor, err = getDoctor(ctx, tx, *turn.DoctorID)
		if err != nil {
			return err
		}
	}

	started := turn.CreatedAt
	switch {
	case turn.ServiceStartedAt != nil:
		started = *turn.ServiceStartedAt
	case turn.CalledAt != nil:
		started = *turn.CalledAt
	}
	phone := turn.PatientPhone
	if phone == "" && turn.PatientID != nil {
		if patient, err := getPatient(ctx, tx, *turn.PatientID); err == nil {
			phone = patient.Phone
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO resource_history (
			history_id, turn_id, resource_id, resource_name, resource_type,
			patient_name, patient_surname, phone, doctor_id, doctor_name, specialty,
			started_at, ended_at, duration_minutes, outcome, notes, created_by
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`, uuid.NewString(), turn.TurnID, resource.ResourceID, resource.Name, resource.Type,
		turn.PatientDisplayName, nil, nullIfEmpty(phone), turn.DoctorID, nullIfEmpty(doctor.FullName), nullIfEmpty(doctor.Specialty),
		started, c.now, store.DurationMinutes(started, c.now), models.OutcomeAttended, nullIfEmpty(input.Notes), input.Actor)
	return err
}

func (s *Store) CancelStaleTurns(ctx context.Context) (int, error) {
	count := 0
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		c, err := txNow(ctx, tx)
		if err != nil {
			return err
		}
		count, err = cancelStale(ctx, tx, c)
		return err
	})
	return count, err
}
