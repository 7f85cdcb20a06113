package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"qms/turn-service/internal/config"
	"qms/turn-service/internal/engine"
	"qms/turn-service/internal/httpapi"
	"qms/turn-service/internal/notify"
	"qms/turn-service/internal/store/postgres"
	"qms/turn-service/internal/telemetry"
	"qms/turn-service/migrations"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:          "turn-service",
		Short:        "Hospital turn queue and resource occupancy service",
		Version:      version,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(sweepCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the stale turn sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrate, _ := cmd.Flags().GetBool("migrate")
			return runServer(cmd.Context(), migrate)
		},
	}
	cmd.Flags().Bool("migrate", false, "Apply pending migrations before serving")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := postgres.Migrate(ctx, pool, migrations.FS)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			logger.Info().Int("applied", count).Msg("migrations complete")
			return nil
		},
	}
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Cancel turns left active from previous days and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			notifier, closeNotifier := newNotifier(ctx, cfg, logger)
			defer closeNotifier()

			eng := newEngine(cfg, pool, notifier, logger)
			count, err := eng.SweepStale(ctx)
			if err != nil {
				return fmt.Errorf("sweep failed: %w", err)
			}
			logger.Info().Int("cancelled", count).Msg("sweep complete")
			return nil
		},
	}
}

func setup() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return nil, logger, err
	}
	return cfg, logger, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "turn-service").Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

// newNotifier publishes to Redis when REDIS_URL is set. An unreachable
// Redis only degrades notifications.
func newNotifier(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (notify.Notifier, func()) {
	if cfg.RedisURL == "" {
		logger.Info().Msg("REDIS_URL not set, notifications disabled")
		return notify.Nop{}, func() {}
	}
	client, err := notify.NewRedisClient(cfg.RedisURL)
	if err != nil {
		logger.Error().Err(err).Msg("redis client, notifications disabled")
		return notify.Nop{}, func() {}
	}
	pingCtx, cancel := context.WithTimeout(ctx, cfg.NotifyTimeout())
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Msg("redis not reachable yet")
	}
	return notify.NewRedisPublisher(client, cfg.HospitalID), func() { _ = client.Close() }
}

func newEngine(cfg *config.Config, pool *pgxpool.Pool, notifier notify.Notifier, logger zerolog.Logger) *engine.Engine {
	st := postgres.NewStore(pool, postgres.Options{ListLimit: cfg.ListLimit})
	return engine.New(st, engine.Options{
		Notifier:         notifier,
		Logger:           logger,
		OperationTimeout: cfg.OperationTimeout(),
		NotifyTimeout:    cfg.NotifyTimeout(),
	})
}

func runServer(parent context.Context, migrate bool) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing := telemetry.Setup(ctx, telemetry.Options{
		ServiceName: "turn-service",
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
		Version:     version,
	}, logger)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	if migrate {
		count, err := postgres.Migrate(ctx, pool, migrations.FS)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		logger.Info().Int("applied", count).Msg("migrations complete")
	}

	notifier, closeNotifier := newNotifier(ctx, cfg, logger)
	defer closeNotifier()

	eng := newEngine(cfg, pool, notifier, logger)
	handler := httpapi.NewHandler(eng, httpapi.Options{
		Logger: logger,
		RateLimit: httpapi.RateLimitConfig{
			PerMinute: cfg.RateLimitPerMinute,
			Burst:     cfg.RateLimitBurst,
		},
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.OperationTimeout() + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		runSweeper(ctx, eng, cfg.StaleSweepInterval(), logger)
	}()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("turn-service listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case err := <-serverErr:
		if err != nil {
			logger.Error().Err(err).Msg("server error")
			stop()
			<-sweepDone
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
	<-sweepDone
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("tracer shutdown")
	}
	return nil
}

// runSweeper cancels stale turns once at startup and then every interval
// until ctx ends. A zero interval disables it.
func runSweeper(ctx context.Context, eng *engine.Engine, interval time.Duration, logger zerolog.Logger) {
	if interval <= 0 {
		return
	}
	sweep := func() {
		if _, err := eng.SweepStale(ctx); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("stale sweep failed")
		}
	}
	sweep()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}
