package main

import (
	"context"
	crypto_rand "crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ceres/prenatal/internal/config"
	"github.com/ceres/prenatal/internal/domain/obstetrics"
	"github.com/ceres/prenatal/internal/platform/auth"
	"github.com/ceres/prenatal/internal/platform/db"
	"github.com/ceres/prenatal/internal/platform/middleware"
	"github.com/ceres/prenatal/internal/platform/notification"
	"github.com/ceres/prenatal/internal/platform/telemetry"
	"github.com/ceres/prenatal/internal/platform/websocket"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:          "ceres-server",
		Short:        "Ceres prenatal care API server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(assessCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Str("service", "ceres").Logger()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
				for _, s := range statuses {
					status, appliedAt := "pending", ""
					if s.Applied {
						status = "applied"
						if s.AppliedAt != nil {
							appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
						}
					}
					fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
				}
				return nil
			})
		},
	})

	return cmd
}

func withMigrator(ctx context.Context, fn func(context.Context, *db.Migrator) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required for migrations")
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, db.NewMigrator(pool, db.Migrations()))
}

// resolveSigningKey returns the configured key, or a random one in
// development. The second return value reports a generated key.
func resolveSigningKey(value string, dev bool) ([]byte, bool, error) {
	if value != "" {
		return []byte(value), false, nil
	}
	if !dev {
		return nil, false, errors.New("AUTH_SIGNING_KEY is required")
	}
	key := make([]byte, 32)
	if _, err := crypto_rand.Read(key); err != nil {
		return nil, false, fmt.Errorf("generate signing key: %w", err)
	}
	return key, true, nil
}

// backend is the selected profile store plus what the health check and
// shutdown need to know about it.
type backend struct {
	store  obstetrics.ProfileStore
	checks []db.Check
	close  func()
}

func openBackend(ctx context.Context, cfg *config.Config, tp *telemetry.TelemetryProvider) (*backend, error) {
	switch cfg.StoreBackend {
	case config.StorePostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		tp.RegisterDBPool(pool)
		return &backend{
			store:  obstetrics.NewPostgresStore(pool),
			checks: []db.Check{db.PostgresCheck(pool)},
			close:  pool.Close,
		}, nil
	case config.StoreRedis:
		client, err := db.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return &backend{
			store:  obstetrics.NewRedisStore(client, cfg.RedisKeyPrefix),
			checks: []db.Check{db.RedisCheck(client)},
			close:  func() { _ = client.Close() },
		}, nil
	default:
		return &backend{store: obstetrics.NewMemoryStore(), close: func() {}}, nil
	}
}

func newEmailSender(cfg *config.Config, logger zerolog.Logger) notification.EmailSender {
	if cfg.MailProvider == config.MailResend {
		return notification.NewResendSender(cfg.ResendAPIKey, cfg.MailFrom, logger)
	}
	return notification.LogSender{Logger: logger}
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}
	if cfg.IsDev() {
		logger.Warn().Msg("development mode: X-Patient-ID is trusted and grants patient and clinician roles")
	}

	signingKey, generated, err := resolveSigningKey(cfg.AuthSigningKey, cfg.IsDev())
	if err != nil {
		return err
	}
	if generated {
		logger.Warn().Msg("AUTH_SIGNING_KEY not set, using a random key; tokens will not survive a restart")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp := telemetry.NewTelemetryProvider(telemetry.TelemetryConfig{
		ServiceVersion: version,
		Environment:    cfg.Env,
	})

	be, err := openBackend(ctx, cfg, tp)
	if err != nil {
		logger.Error().Err(err).Str("store", cfg.StoreBackend).Msg("failed to open profile store")
		return err
	}
	defer be.close()
	logger.Info().Str("store", cfg.StoreBackend).Msg("profile store ready")

	mailLogger := logger.With().Str("component", "mail").Logger()
	notifier := notification.NewNotificationManager(newEmailSender(cfg, mailLogger), notification.NewTemplateEngine(), mailLogger)
	dispatcher := notification.NewDocumentDispatcher(notifier, cfg.DocumentBaseURL)

	hubLogger := logger.With().Str("component", "events").Logger()
	hub := websocket.NewHub(hubLogger)

	svc := obstetrics.NewService(obstetrics.TrackerDeps{
		Store:           be.store,
		Sender:          obstetrics.NewEmailDocumentSender(dispatcher),
		Recorder:        obstetrics.TelemetryRecorder{Metrics: tp},
		Events:          obstetrics.HubPublisher{Hub: hub, Logger: hubLogger},
		Logger:          logger.With().Str("component", "obstetrics").Logger(),
		DispatchTimeout: cfg.DispatchTimeout,
	})

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader, auth.DevUserHeader},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(tp.MetricsMiddleware())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	e.GET("/health/db", db.HealthHandler(be.checks...))
	e.GET("/metrics", tp.PrometheusHandler())

	jwtCfg := auth.JWTConfig{Issuer: cfg.AuthIssuer, SigningKey: signingKey, Skipper: auth.AuthSkipper}
	authMW := auth.JWTMiddleware(jwtCfg)
	if cfg.IsDev() {
		authMW = auth.DevAuthMiddleware(jwtCfg)
	}

	limiter := middleware.NewKeyedRateLimiter(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		IdleTTL:           10 * time.Minute,
	})
	go sweepLimiter(ctx, limiter, time.Minute)

	apiV1 := e.Group("/api/v1", authMW, middleware.RateLimit(limiter))
	obstetrics.NewHandler(svc).RegisterRoutes(apiV1)
	websocket.NewHandler(hub, cfg.CORSOrigins, hubLogger).RegisterRoutes(apiV1)

	errc := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("version", version).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			logger.Error().Err(err).Msg("server error")
			return err
		}
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func sweepLimiter(ctx context.Context, l *middleware.KeyedRateLimiter, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}
