package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goAccess "github.com/MrEthical07/goAccess"
	"github.com/MrEthical07/goAccess/directory/memory"
	"github.com/MrEthical07/goAccess/directory/postgres"
	"github.com/MrEthical07/goAccess/internal/logging"
	"github.com/MrEthical07/goAccess/mail"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"github.com/spf13/cobra"
)

const startupRetryBase = 250 * time.Millisecond

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		Long: `Run the HTTP service: registration, activation links, login and
logout, a protected /me page, /healthz and Prometheus /metrics.

Without --database-url accounts live in memory and vanish on exit.
Activation mail is written to the log instead of being sent.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	if err := s.requireSecret(); err != nil {
		return err
	}
	cfg, err := s.EngineConfig()
	if err != nil {
		return err
	}

	level, _ := logging.ParseLevel(s.LogLevel)
	logger := logging.Setup("goaccess", version, s.LogFormat, level, cmd.ErrOrStderr())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{
		Addr:     s.RedisAddr,
		Password: s.RedisPassword,
		DB:       s.RedisDB,
	})
	defer func() { _ = rdb.Close() }()

	err = waitForBackend(ctx, logger, "redis", s.StartupRetries, func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	if err != nil {
		return oops.Code("REDIS_UNAVAILABLE").With("addr", s.RedisAddr).Wrap(err)
	}

	dir, closeDir, err := openDirectory(ctx, logger, &s)
	if err != nil {
		return err
	}
	defer closeDir()

	links, err := mail.NewLinkBuilder(s.BaseURL, "/activate")
	if err != nil {
		return oops.Code("CONFIG_INVALID").With("base_url", s.BaseURL).Wrap(err)
	}
	outbox := mail.NewOutbox(mail.DefaultOutboxConfig(), mail.LogSender{Logger: logger, IncludeBody: s.MailLogBody}, links, logger)
	defer outbox.Close()

	engine, err := goAccess.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithDirectory(dir).
		WithMailer(outbox).
		WithAuditSink(goAccess.NewSlogSink(logger.With("component", "audit"))).
		WithLogger(logger).
		Build()
	if err != nil {
		return oops.Code("ENGINE_BUILD_FAILED").Wrap(err)
	}
	defer engine.Close()

	srv := &http.Server{
		Addr:              s.Listen,
		Handler:           newServer(engine, logger, &s).routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if serveErr := srv.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- serveErr
		}
	}()

	logger.Info("goaccess serving",
		"addr", s.Listen,
		"protection", cfg.Session.Protection.String(),
		"database", s.DatabaseURL != "",
	)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		return oops.Code("HTTP_SERVER_FAILED").With("addr", s.Listen).Wrap(err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", "error", err)
	}
	return nil
}

// openDirectory returns the Postgres directory when a database URL is
// configured and the in-memory directory otherwise.
func openDirectory(ctx context.Context, logger *slog.Logger, s *Settings) (goAccess.UserDirectory, func(), error) {
	if s.DatabaseURL == "" {
		logger.Warn("no database-url configured, accounts are kept in memory")
		return memory.New(), func() {}, nil
	}

	if s.AutoMigrate {
		if err := migrateUp(s.DatabaseURL); err != nil {
			return nil, nil, err
		}
	}

	var (
		dir  *postgres.Directory
		stop func()
	)
	err := waitForBackend(ctx, logger, "postgres", s.StartupRetries, func(ctx context.Context) error {
		d, pool, err := postgres.Open(ctx, s.DatabaseURL)
		if err != nil {
			return err
		}
		dir, stop = d, pool.Close
		return nil
	})
	if err != nil {
		return nil, nil, oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	return dir, stop, nil
}

func migrateUp(databaseURL string) error {
	m, err := postgres.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()

	if err := m.Up(); err != nil {
		return err
	}
	return nil
}

// waitForBackend retries check with exponential backoff, attempts times in
// total. Zero attempts means one.
func waitForBackend(ctx context.Context, logger *slog.Logger, name string, attempts uint64, check func(context.Context) error) error {
	retries := uint64(0)
	if attempts > 1 {
		retries = attempts - 1
	}
	backoff := retry.WithMaxRetries(retries, retry.NewExponential(startupRetryBase))

	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := check(ctx); err != nil {
			logger.Warn("backend not reachable", "backend", name, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
}
