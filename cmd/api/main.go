package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/session-service/internal/api/http"
	"github.com/spec-kit/session-service/internal/api/http/handlers"
	"github.com/spec-kit/session-service/internal/auth"
	"github.com/spec-kit/session-service/internal/config"
	"github.com/spec-kit/session-service/internal/events"
	"github.com/spec-kit/session-service/internal/observability"
	"github.com/spec-kit/session-service/internal/persistence"
	"github.com/spec-kit/session-service/internal/repository"
	"github.com/spec-kit/session-service/internal/service"
	"github.com/spec-kit/session-service/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	userRepo, dependencies, closeStore := openUserStore(ctx, cfg, logger)
	defer closeStore()

	var loginAttempts repository.LoginAttemptRepository
	if cfg.Auth.LoginMaxAttempts > 0 {
		redis := persistence.NewRedis(cfg.Redis, logger)
		defer redis.Close()
		loginAttempts = repository.NewLoginAttemptRepository(redis.Client)
		dependencies["redis"] = redis
	}

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	worker.StartAuditWorker(service.NewAuditService(dispatcher, logger, metrics))

	sessionService := service.NewSessionService(*cfg, service.SessionDependencies{
		UserRepo:      userRepo,
		LoginAttempts: loginAttempts,
		Dispatcher:    dispatcher,
		Logger:        logger,
	})

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App)
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, dependencies),
		Sessions:       handlers.NewSessionHandler(sessionService, cfg.Cookie, cfg.Auth.RefreshTokenTTL()),
		AuthMiddleware: auth.NewAuthMiddleware(sessionService.AccessTokens()),
		Metrics:        metrics,
	})

	go func() {
		logger.Info("listening", zap.String("addr", cfg.App.Addr()), zap.String("db_driver", cfg.Database.Driver))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Warn("graceful shutdown", zap.Error(err))
	}
}

// openUserStore connects the configured user store and returns it with its
// readiness probe and a release func.
func openUserStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.UserRepository, map[string]handlers.Pinger, func()) {
	if cfg.Database.Driver == config.DriverSQLite {
		store, err := persistence.OpenSQLite(ctx, cfg.Database.SQLitePath, logger)
		if err != nil {
			logger.Fatal("failed to open sqlite", zap.Error(err))
		}
		return repository.NewSQLiteUserRepository(store.DB), map[string]handlers.Pinger{"database": store}, store.Close
	}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}
	return repository.NewUserRepository(pg.PoolHandle()), map[string]handlers.Pinger{"database": pg}, pg.Close
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
