package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port         string `mapstructure:"PORT"`
	Env          string `mapstructure:"ENV"`
	LogLevel     string `mapstructure:"LOG_LEVEL"`
	DatabaseURL  string `mapstructure:"DB_DSN"`
	DBMaxConns   int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns   int32  `mapstructure:"DB_MIN_CONNS"`
	RedisURL     string `mapstructure:"REDIS_URL"`
	HospitalID   string `mapstructure:"HOSPITAL_ID"`
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	ListLimit    int    `mapstructure:"LIST_LIMIT"`

	OperationTimeoutSeconds   int `mapstructure:"OPERATION_TIMEOUT_SECONDS"`
	NotifyTimeoutSeconds      int `mapstructure:"NOTIFY_TIMEOUT_SECONDS"`
	StaleSweepIntervalSeconds int `mapstructure:"STALE_SWEEP_INTERVAL_SECONDS"`
	ShutdownTimeoutSeconds    int `mapstructure:"SHUTDOWN_TIMEOUT_SECONDS"`

	RateLimitPerMinute int `mapstructure:"RATE_LIMIT_PER_MIN"`
	RateLimitBurst     int `mapstructure:"RATE_LIMIT_BURST"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "DB_DSN", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"REDIS_URL", "HOSPITAL_ID", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_INSECURE",
	"LIST_LIMIT", "OPERATION_TIMEOUT_SECONDS", "NOTIFY_TIMEOUT_SECONDS",
	"STALE_SWEEP_INTERVAL_SECONDS", "SHUTDOWN_TIMEOUT_SECONDS",
	"RATE_LIMIT_PER_MIN", "RATE_LIMIT_BURST",
}

// Load reads configuration from the environment, falling back to a .env
// file in the working directory when present.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "production")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("HOSPITAL_ID", "default")
	v.SetDefault("LIST_LIMIT", 200)
	v.SetDefault("OPERATION_TIMEOUT_SECONDS", 10)
	v.SetDefault("NOTIFY_TIMEOUT_SECONDS", 2)
	v.SetDefault("STALE_SWEEP_INTERVAL_SECONDS", 300)
	v.SetDefault("SHUTDOWN_TIMEOUT_SECONDS", 10)
	v.SetDefault("RATE_LIMIT_PER_MIN", 120)
	v.SetDefault("RATE_LIMIT_BURST", 30)

	for _, key := range keys {
		_ = v.BindEnv(key)
	}

	// A missing .env is fine.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DB_DSN is required"))
	}
	if c.OperationTimeoutSeconds <= 0 {
		errs = append(errs, errors.New("OPERATION_TIMEOUT_SECONDS must be positive"))
	}
	if c.NotifyTimeoutSeconds <= 0 {
		errs = append(errs, errors.New("NOTIFY_TIMEOUT_SECONDS must be positive"))
	}
	if c.StaleSweepIntervalSeconds < 0 {
		errs = append(errs, errors.New("STALE_SWEEP_INTERVAL_SECONDS cannot be negative"))
	}
	if c.DBMinConns > c.DBMaxConns {
		errs = append(errs, fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns))
	}
	return errors.Join(errs...)
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) OperationTimeout() time.Duration {
	return seconds(c.OperationTimeoutSeconds)
}

func (c *Config) NotifyTimeout() time.Duration {
	return seconds(c.NotifyTimeoutSeconds)
}

// StaleSweepInterval is zero when the periodic sweep is disabled.
func (c *Config) StaleSweepInterval() time.Duration {
	return seconds(c.StaleSweepIntervalSeconds)
}

func (c *Config) ShutdownTimeout() time.Duration {
	return seconds(c.ShutdownTimeoutSeconds)
}

func seconds(value int) time.Duration {
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}
