package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	httptransport "github.com/spec-kit/helpdesk-service/internal/api/http"
	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/graph"
	"github.com/spec-kit/helpdesk-service/internal/intake"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/persistence"
	"github.com/spec-kit/helpdesk-service/internal/resolution"
	"github.com/spec-kit/helpdesk-service/internal/service"
	"github.com/spec-kit/helpdesk-service/internal/ticketstore"
)

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
	logger = logger.With(zap.String("service", "helpdesk"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher(logger)
	service.NewNotificationService(dispatcher, logger, cfg.Notification).RegisterHandlers()

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	store, err := ticketstore.NewClient(
		cfg.TicketStore.BaseURL,
		cfg.TicketStore.ClientTimeout(),
		tokens.ServiceTokenSource(cfg.Auth.ServiceSubject),
		logger,
	)
	if err != nil {
		logger.Fatal("failed to init ticket store client", zap.Error(err))
	}

	catalog, err := intake.LoadCatalog(cfg.Intake.CatalogPath)
	if err != nil {
		logger.Fatal("failed to load intake catalog", zap.Error(err))
	}
	sessions, err := intake.NewSessionStore(ctx, intake.StoreOptions{
		TTL:         cfg.Intake.SessionTTL(),
		MaxCacheMB:  cfg.Intake.CacheMaxMB,
		MaxSessions: cfg.Intake.MaxSessions,
	})
	if err != nil {
		logger.Fatal("failed to init session store", zap.Error(err))
	}
	defer sessions.Close() //nolint:errcheck
	conversations := intake.NewService(intake.Dependencies{
		Sessions: sessions,
		Catalog:  catalog,
		Store:    store,
		Logger:   logger,
	})

	graphClient := graph.NewClient(cfg.Graph, graph.NewTokenSource(ctx, cfg.Graph), logger)
	uploader := graph.NewDefaultUploader(graphClient, graph.NewRetryPolicy(cfg.Upload), logger, metrics)

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()
	locker := resolution.NewLocalLocker()
	readiness := []handlers.Dependency{}
	if redis != nil {
		locker = resolution.NewRedisLocker(redis.Client, cfg.Redis.LockTTL(), logger)
		readiness = append(readiness, handlers.Dependency{Name: "redis", Ping: redis.Ping})
	}

	workflow := resolution.NewWorkflow(resolution.Dependencies{
		Store:      store,
		Records:    graphClient,
		Uploader:   uploader,
		Locker:     locker,
		Dispatcher: dispatcher,
		Logger:     logger,
	})

	app := httptransport.NewApp(cfg.App.Name, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterHelpdeskRoutes(app, httptransport.HelpdeskRoutes{
		Health:         handlers.NewHealthHandler("helpdesk", cfg.App.Version, metrics, readiness...),
		Intake:         handlers.NewIntakeHandler(conversations),
		Resolution:     handlers.NewResolutionHandler(store, workflow),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
	})

	go func() {
		logger.Info("listening", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
