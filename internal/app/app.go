package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/auric/api/internal/auth"
	"github.com/auric/api/internal/config"
	"github.com/auric/api/internal/event"
	handler "github.com/auric/api/internal/handler/http"
	"github.com/auric/api/internal/notify"
	"github.com/auric/api/internal/repository/postgres"
	"github.com/auric/api/internal/service"
	"github.com/auric/api/migrations"
	"github.com/auric/api/pkg/database"
	"github.com/auric/api/pkg/health"
	pkgkafka "github.com/auric/api/pkg/kafka"
	"github.com/auric/api/pkg/middleware"
)

// App wires together all dependencies and runs the API service.
type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	pool       *pgxpool.Pool
	redis      *redis.Client
	producer   *pkgkafka.Producer
	httpServer *http.Server

	otpService     *service.OtpService
	sessionService *service.SessionService

	janitorStop chan struct{}
	janitorDone chan struct{}
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize PostgreSQL connection pool.
	pgCfg := cfg.Postgres()
	pool, err := database.NewPostgresPoolWithLogger(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.DBHost),
		slog.Int("port", cfg.DBPort),
		slog.String("database", cfg.DBName),
	)
	database.RegisterPoolMetrics(pool, cfg.ServiceName)

	// Run database migrations.
	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	// Initialize Redis (OTP send rate limiting).
	redisClient, err := database.NewRedisClient(ctx, cfg.Redis())
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("connected to Redis", slog.String("addr", cfg.Redis().Addr()))

	// Initialize Kafka producer.
	kafkaCfg := pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers)
	producer := pkgkafka.NewProducer(kafkaCfg, logger)
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))

	// Build the dependency graph.
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTokenTTL)

	userRepo := postgres.NewUserRepository(pool)
	otpRepo := postgres.NewOtpChallengeRepository(pool)
	sessionRepo := postgres.NewSessionRepository(pool)
	revokedRepo := postgres.NewRevokedTokenRepository(pool)
	walletRepo := postgres.NewWalletRepository(pool)

	eventProducer := event.NewProducer(producer, logger)
	sender := notify.NewLogSender(logger)
	limiter := service.NewRedisRateLimiter(redisClient, "otp_send", cfg.OTPSendLimit, cfg.OTPSendWindow)

	otpService := service.NewOtpService(otpRepo, sender, limiter, eventProducer, service.OtpConfig{
		CodeTTL:     cfg.OTPCodeTTL,
		MaxAttempts: cfg.OTPMaxAttempts,
	}, logger)

	sessionService := service.NewSessionService(sessionRepo, revokedRepo, userRepo, jwtManager, eventProducer, service.SessionConfig{
		RefreshTTL:        cfg.RefreshTokenTTL,
		MaxActiveSessions: cfg.MaxActiveSessions,
		ScanLimit:         cfg.SessionScanLimit,
		ReuseScanLimit:    cfg.ReuseScanLimit,
	}, logger)

	userService := service.NewUserService(userRepo, walletRepo, otpService, sessionService, eventProducer, service.UserConfig{
		UserIDPrefix: cfg.UserIDPrefix,
	}, logger)

	walletService := service.NewWalletService(walletRepo, eventProducer, logger)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.Register("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.Register("redis", func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})
	healthHandler.Register("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})

	// HTTP router.
	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.Environment = cfg.Environment
	corsCfg.AllowCredentials = true

	router := handler.NewRouter(
		userService,
		sessionService,
		otpService,
		walletService,
		jwtManager,
		healthHandler,
		logger,
		handler.RouterConfig{
			CookieDomain: cfg.CookieDomain,
			CookieSecure: cfg.CookieSecure,
			CORS:         corsCfg,
		},
	)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		redis:          redisClient,
		producer:       producer,
		httpServer:     httpServer,
		otpService:     otpService,
		sessionService: sessionService,
		janitorStop:    make(chan struct{}),
		janitorDone:    make(chan struct{}),
	}, nil
}

// Run starts the HTTP server and the janitor, blocking until the context is
// canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go a.runJanitor()

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// runJanitor periodically prunes expired OTP challenges, expired sessions,
// and archived token hashes past retention.
func (a *App) runJanitor() {
	defer close(a.janitorDone)

	ticker := time.NewTicker(a.cfg.JanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.janitorStop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			now := time.Now().UTC()

			if n, err := a.otpService.PruneExpired(ctx, now); err != nil {
				a.logger.Error("janitor: prune otp challenges failed", slog.String("error", err.Error()))
			} else if n > 0 {
				a.logger.Info("janitor: pruned otp challenges", slog.Int64("count", n))
			}

			revokedCutoff := now.Add(-a.cfg.RevokedRetention)
			sessions, tokens, err := a.sessionService.PruneExpired(ctx, now, revokedCutoff)
			if err != nil {
				a.logger.Error("janitor: prune sessions failed", slog.String("error", err.Error()))
			} else if sessions > 0 || tokens > 0 {
				a.logger.Info("janitor: pruned sessions",
					slog.Int64("sessions", sessions),
					slog.Int64("revoked_tokens", tokens),
				)
			}

			cancel()
		}
	}
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Janitor
// 3. Kafka producer
// 4. Redis client
// 5. PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests.
	httpCtx, httpCancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 2. Stop the janitor and wait for any in-flight sweep.
	close(a.janitorStop)
	select {
	case <-a.janitorDone:
	case <-time.After(5 * time.Second):
		a.logger.Warn("janitor did not stop in time")
	}

	// 3. Close Kafka producer.
	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 4. Close Redis client.
	if err := a.redis.Close(); err != nil {
		a.logger.Error("redis close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 5. Close PostgreSQL pool.
	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
