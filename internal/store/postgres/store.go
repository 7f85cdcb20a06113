package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"qms/turn-service/internal/models"
	"qms/turn-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultListLimit = 200
	maxListLimit     = 1000

	staleNote = "stale turn from previous day"
)

// Constraint names referenced when translating unique violations.
const (
	activeCodeIndex         = "turns_active_code_idx"
	requestIDIndex          = "turns_request_id_idx"
	occupancyResourceUnique = "occupancy_resource_unique"
)

type Store struct {
	pool      *pgxpool.Pool
	listLimit int
}

type Options struct {
	// ListLimit caps list reads that do not ask for a limit.
	ListLimit int
}

func NewStore(pool *pgxpool.Pool, options Options) *Store {
	limit := options.ListLimit
	if limit <= 0 {
		limit = defaultListLimit
	}
	return &Store{pool: pool, listLimit: limit}
}

var _ store.Store = (*Store)(nil)

func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return store.Unavailable(err)
	}
	return nil
}

// withTx runs fn in one transaction and translates driver errors into
// store errors. The rollback after a successful commit is a no-op.
func (s *Store) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return store.Unavailable(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return translate(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return translate(err)
	}
	return nil
}

// clock is the database's view of time for one transaction.
type clock struct {
	now time.Time
	day time.Time
}

func txNow(ctx context.Context, tx pgx.Tx) (clock, error) {
	var c clock
	if err := tx.QueryRow(ctx, `SELECT now(), CURRENT_DATE`).Scan(&c.now, &c.day); err != nil {
		return clock{}, err
	}
	c.now = c.now.UTC()
	return c, nil
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	var coreErr *store.Error
	if errors.As(err, &coreErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return store.Unavailable(err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			switch pgErr.ConstraintName {
			case activeCodeIndex:
				return store.ConflictErr("turn code already held by an active turn", store.ErrCodeTaken)
			case requestIDIndex:
				return store.ConflictErr("request id already used", store.ErrDuplicateRequest)
			}
			return store.ConflictErr("unique constraint violated", err, "constraint", pgErr.ConstraintName)
		case "23503":
			return store.Validation("referenced entity does not exist", "constraint", pgErr.ConstraintName)
		case "23514", "22P02":
			return store.Validation(pgErr.Message)
		case "40001", "40P01", "55P03", "57014", "57P01":
			return store.Unavailable(err)
		}
		return err
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) || pgconn.Timeout(err) {
		return store.Unavailable(err)
	}
	return err
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}

// checkID rejects identifiers that cannot exist before they reach SQL.
func checkID(entity, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return store.NotFound(entity, id)
	}
	return nil
}

func clampLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func statusStrings(statuses []models.Status) []string {
	out := make([]string, len(statuses))
	for i, status := range statuses {
		out[i] = string(status)
	}
	return out
}

// args collects positional parameters for dynamically filtered reads.
type args struct {
	values []interface{}
	conds  []string
}

func (a *args) add(value interface{}) string {
	a.values = append(a.values, value)
	return fmt.Sprintf("$%d", len(a.values))
}

func (a *args) where(cond string) {
	a.conds = append(a.conds, cond)
}

func (a *args) clause() string {
	if len(a.conds) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(a.conds, " AND ")
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time.UTC()
	return &t
}

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	return &value.String
}

func strPtrValue(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
