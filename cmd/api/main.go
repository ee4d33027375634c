package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/terratile/support-service/internal/api/http"
	"github.com/terratile/support-service/internal/api/http/handlers"
	"github.com/terratile/support-service/internal/auth"
	"github.com/terratile/support-service/internal/classify"
	"github.com/terratile/support-service/internal/config"
	"github.com/terratile/support-service/internal/embedding"
	"github.com/terratile/support-service/internal/events"
	"github.com/terratile/support-service/internal/identity"
	"github.com/terratile/support-service/internal/moderation"
	"github.com/terratile/support-service/internal/observability"
	"github.com/terratile/support-service/internal/persistence"
	"github.com/terratile/support-service/internal/repository"
	"github.com/terratile/support-service/internal/service"
	"github.com/terratile/support-service/internal/worker"
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()

	var cache embedding.Cache
	if client := redis.ClientHandle(); client != nil {
		cache = embedding.NewRedisCache(client, cfg.Embedding.CacheTTL())
	} else {
		cache = embedding.NewMemoryCache(cfg.Embedding.CacheTTL())
	}
	embeddings := embedding.NewProvider(cfg.Embedding, cache, logger, metrics)
	checker := moderation.NewChecker(cfg.Moderation, logger)
	classifier := classify.NewPriorityClassifier(cfg.Classifier, logger)
	resolver := identity.NewResolver(cfg.Identity)

	pool := pg.PoolHandle()
	ticketRepo := repository.NewTicketRepository(pool)
	archiveRepo := repository.NewArchiveRepository(pool)

	intakeService := service.NewIntakeService(cfg.Dedupe, service.IntakeDependencies{
		TicketRepo: ticketRepo,
		Embeddings: embeddings,
		Moderation: checker,
		Classifier: classifier,
		Identity:   resolver,
		Dispatcher: dispatcher,
		Logger:     logger,
		Metrics:    metrics,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:  ticketRepo,
		ArchiveRepo: archiveRepo,
		Moderation:  checker,
		Dispatcher:  dispatcher,
		Logger:      logger,
		Metrics:     metrics,
	})
	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	worker.StartNotificationWorker(notificationService)

	agentAuth := auth.NewAgentAuth(auth.NewTokenManager(cfg.Auth.JWTSecret))

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:    handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Tickets:   handlers.NewTicketsHandler(intakeService, ticketService),
		AgentAuth: agentAuth,
	})

	go func() {
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
