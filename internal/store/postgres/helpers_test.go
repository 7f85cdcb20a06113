package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"testing/fstest"

	"qms/turn-service/internal/store"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslateUniqueViolations(t *testing.T) {
	err := translate(&pgconn.PgError{Code: "23505", ConstraintName: activeCodeIndex})
	assert.True(t, errors.Is(err, store.ErrCodeTaken))
	assert.True(t, errors.Is(err, store.ErrConflict))

	err = translate(&pgconn.PgError{Code: "23505", ConstraintName: requestIDIndex})
	assert.True(t, errors.Is(err, store.ErrDuplicateRequest))

	err = translate(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "other"}))
	assert.True(t, errors.Is(err, store.ErrConflict))
	assert.False(t, errors.Is(err, store.ErrCodeTaken))
}

func TestTranslateTransientErrors(t *testing.T) {
	for _, code := range []string{"40001", "40P01", "55P03", "57014"} {
		err := translate(&pgconn.PgError{Code: code})
		assert.True(t, errors.Is(err, store.ErrUnavailable), code)
	}
	assert.True(t, errors.Is(translate(context.DeadlineExceeded), store.ErrUnavailable))
}

func TestTranslateKeepsCoreErrors(t *testing.T) {
	notFound := store.NotFound("turn", "t1")
	assert.Same(t, notFound, translate(notFound))

	plain := errors.New("boom")
	assert.Equal(t, plain, translate(plain))
	assert.Nil(t, translate(nil))
}

func TestCheckID(t *testing.T) {
	assert.NoError(t, checkID("turn", "9a4b3c5e-0b8a-4c47-9f3e-2a1d6f1c2b3a"))
	err := checkID("turn", "not-a-uuid")
	assert.True(t, errors.Is(err, store.ErrNotFound))
	assert.Equal(t, "not-a-uuid", store.FieldsOf(err)["turn_id"])
}

func TestArgsBuilder(t *testing.T) {
	var a args
	assert.Equal(t, "", a.clause())
	a.where("t.service_id = " + a.add("svc"))
	a.where("t.doctor_id = " + a.add("doc"))
	assert.Equal(t, "WHERE t.service_id = $1 AND t.doctor_id = $2", a.clause())
	assert.Equal(t, []interface{}{"svc", "doc"}, a.values)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 50, clampLimit(0, 50))
	assert.Equal(t, 10, clampLimit(10, 50))
	assert.Equal(t, maxListLimit, clampLimit(maxListLimit+1, 50))
}

func TestDayBoundsRejectsBadDay(t *testing.T) {
	var a args
	err := dayBounds(&a, "03/01/2026")
	assert.True(t, errors.Is(err, store.ErrValidation))

	require.NoError(t, dayBounds(&a, "2026-03-01"))
	assert.Len(t, a.values, 1)
}

func TestLoadMigrationsOrdersByVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"010_later.sql": {Data: []byte("SELECT 10;")},
		"002_turns.sql": {Data: []byte("SELECT 2;")},
		"README.md":     {Data: []byte("docs")},
		"notes.sql":     {Data: []byte("SELECT 0;")},
		"001_base.sql":  {Data: []byte("SELECT 1;")},
	}
	migrations, err := LoadMigrations(fsys)
	require.NoError(t, err)
	require.Len(t, migrations, 3)
	assert.Equal(t, []int{1, 2, 10}, []int{migrations[0].Version, migrations[1].Version, migrations[2].Version})
	assert.Equal(t, "002_turns.sql", migrations[1].Name)
}

func TestLoadMigrationsRejectsDuplicateVersions(t *testing.T) {
	fsys := fstest.MapFS{
		"001_a.sql": {Data: []byte("SELECT 1;")},
		"001_b.sql": {Data: []byte("SELECT 1;")},
	}
	_, err := LoadMigrations(fsys)
	require.Error(t, err)
}
