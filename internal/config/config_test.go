package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("DB_DSN", "postgres://localhost/turns")

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, int32(10), cfg.DBMaxConns)
	assert.Equal(t, int32(2), cfg.DBMinConns)
	assert.Equal(t, "default", cfg.HospitalID)
	assert.Equal(t, 10*time.Second, cfg.OperationTimeout())
	assert.Equal(t, 2*time.Second, cfg.NotifyTimeout())
	assert.Equal(t, 5*time.Minute, cfg.StaleSweepInterval())
	assert.Equal(t, 120, cfg.RateLimitPerMinute)
	assert.False(t, cfg.IsDev())
}

func TestLoadFromEnvironment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("DB_DSN", "postgres://db/turns")
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "development")
	t.Setenv("REDIS_URL", "redis://cache:6379/0")
	t.Setenv("HOSPITAL_ID", "north")
	t.Setenv("STALE_SWEEP_INTERVAL_SECONDS", "0")
	t.Setenv("DB_MAX_CONNS", "25")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.True(t, cfg.IsDev())
	assert.Equal(t, "redis://cache:6379/0", cfg.RedisURL)
	assert.Equal(t, "north", cfg.HospitalID)
	assert.Equal(t, time.Duration(0), cfg.StaleSweepInterval())
	assert.Equal(t, int32(25), cfg.DBMaxConns)
}

func TestValidate(t *testing.T) {
	cfg := &Config{OperationTimeoutSeconds: 0, NotifyTimeoutSeconds: 2, DBMaxConns: 10}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_DSN is required")
	assert.Contains(t, err.Error(), "OPERATION_TIMEOUT_SECONDS")

	cfg = &Config{DatabaseURL: "postgres://x", OperationTimeoutSeconds: 5, NotifyTimeoutSeconds: 1, DBMaxConns: 2, DBMinConns: 4}
	assert.Error(t, cfg.Validate())
}
