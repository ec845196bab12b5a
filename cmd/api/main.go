package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/hr-ticketing/internal/api/http"
	"github.com/spec-kit/hr-ticketing/internal/api/http/handlers"
	"github.com/spec-kit/hr-ticketing/internal/auth"
	"github.com/spec-kit/hr-ticketing/internal/config"
	"github.com/spec-kit/hr-ticketing/internal/events"
	"github.com/spec-kit/hr-ticketing/internal/observability"
	"github.com/spec-kit/hr-ticketing/internal/persistence"
	"github.com/spec-kit/hr-ticketing/internal/repository"
	"github.com/spec-kit/hr-ticketing/internal/service"
	"github.com/spec-kit/hr-ticketing/internal/storage"
	"github.com/spec-kit/hr-ticketing/internal/worker"
)

type stores struct {
	users    repository.UserRepository
	tickets  repository.TicketRepository
	activity repository.ActivityLogRepository
	pinger   handlers.Pinger
	close    func()
}

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

	metrics := observability.NewMetrics()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open ticket store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}
	defer st.close()

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	var stream *events.RedisStreamSubscriber
	if cfg.Audit.RedisStream != "" && redis.Enabled() {
		stream = events.NewRedisStreamSubscriber(redis.Client, cfg.Audit.RedisStream, cfg.Audit.RedisStreamMaxLen)
	}

	notifier := events.NewNotifier(logger, events.NotifierOptions{
		QueueSize:      cfg.Audit.QueueSize,
		MaxAttempts:    cfg.Audit.MaxAttempts,
		RetryBackoff:   cfg.Audit.RetryBackoff(),
		HandlerTimeout: cfg.Audit.HandlerTimeout(),
		Recorder:       metrics,
	})
	if err := worker.StartAuditWorker(notifier, service.NewAuditService(st.activity, logger), stream, logger); err != nil {
		logger.Fatal("failed to start audit worker", zap.Error(err))
	}

	attachments, err := storage.NewLocalStore(cfg.Upload.Dir, cfg.Upload.PublicPrefix, logger)
	if err != nil {
		logger.Fatal("failed to prepare upload dir", zap.Error(err))
	}

	authService := service.NewAuthService(cfg.Auth, st.users, logger)
	if err := authService.SeedAdmin(ctx); err != nil {
		logger.Fatal("failed to seed admin", zap.Error(err))
	}

	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:   st.tickets,
		ActivityRepo: st.activity,
		Identities:   service.NewUserDirectory(st.users),
		Attachments:  attachments,
		Dispatcher:   notifier,
		Metrics:      metrics,
		Logger:       logger,
	})
	reportService := service.NewReportService(ticketService, nil, metrics, logger)

	deps := map[string]handlers.Pinger{"database": st.pinger}
	if redis.Enabled() {
		deps["redis"] = redis
	}

	v := validator.New()
	app := fiber.New(fiber.Config{
		AppName:   cfg.App.Name,
		BodyLimit: cfg.Upload.MaxBytes(),
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, deps),
		Users:          handlers.NewUsersHandler(authService, v),
		Tickets:        handlers.NewTicketsHandler(ticketService, v),
		Reports:        handlers.NewReportsHandler(reportService),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager(), st.users),
		Metrics:        metrics.Handler(),
		UploadPrefix:   cfg.Upload.PublicPrefix,
		UploadDir:      cfg.Upload.Dir,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()

	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.Audit.DrainTimeout())
	defer drainCancel()
	if err := notifier.Close(drainCtx); err != nil {
		logger.Warn("audit queue not drained", zap.Error(err))
	}
}

func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	if cfg.Store.Driver == config.StoreDriverPostgres {
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, err
		}
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
				pg.Close()
				return nil, err
			}
		}
		pool := pg.PoolHandle()
		return &stores{
			users:    repository.NewUserRepository(pool),
			tickets:  repository.NewTicketRepository(pool),
			activity: repository.NewActivityLogRepository(pool),
			pinger:   pg,
			close:    pg.Close,
		}, nil
	}

	db, err := persistence.NewSQLite(ctx, cfg.SQLite, logger)
	if err != nil {
		return nil, err
	}
	return &stores{
		users:    repository.NewSQLiteUserRepository(db.DB),
		tickets:  repository.NewSQLiteTicketRepository(db.DB),
		activity: repository.NewSQLiteActivityLogRepository(db.DB),
		pinger:   db,
		close:    db.Close,
	}, nil
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
