package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/traffiq/backend/internal/api/handlers"
	"github.com/traffiq/backend/internal/assistant"
	"github.com/traffiq/backend/internal/cache/redis"
	"github.com/traffiq/backend/internal/dataset"
	"github.com/traffiq/backend/internal/fingerprint"
	"github.com/traffiq/backend/internal/llm"
	"github.com/traffiq/backend/internal/metrics"
	"github.com/traffiq/backend/internal/middleware/ratelimit"
	"github.com/traffiq/backend/internal/middleware/security"
	"github.com/traffiq/backend/internal/middleware/validation"
	"github.com/traffiq/backend/internal/violations"
	"github.com/traffiq/backend/pkg/config"
	appLogger "github.com/traffiq/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting TraffiQ API Server")

	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	taxonomy := violations.TaxonomyFromConfig(cfg.Categories)

	var fpOpts []fingerprint.Option
	if cfg.Data.SuppliedTotal {
		fpOpts = append(fpOpts, fingerprint.WithSuppliedTotal())
	}
	analyzer, err := violations.NewAnalyzer(taxonomy, fpOpts...)
	if err != nil {
		appLogger.Fatal("Failed to create analyzer", zap.Error(err))
	}

	source, err := dataset.NewSource(cfg.Data, taxonomy.Keys())
	if err != nil {
		appLogger.Fatal("Failed to create dataset source", zap.Error(err))
	}

	var replyCache *redis.Client
	var reloadHooks []violations.ReloadHook
	if cfg.Redis.Enabled {
		replyCache, err = redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			appLogger.Fatal("Failed to create Redis client", zap.Error(err))
		}
		defer replyCache.Close()

		reloadHooks = append(reloadHooks, func(ctx context.Context, _ *violations.Snapshot) {
			if _, err := replyCache.InvalidateReplies(ctx); err != nil {
				appLogger.Warn("Failed to invalidate reply cache", zap.Error(err))
			}
		})
	}

	reloader := violations.NewReloader(source, analyzer, reloadHooks...)
	if _, err := reloader.Reload(ctx); err != nil {
		// The API still serves health and chat; analysis routes answer 503
		// until a reload succeeds.
		appLogger.Error("Initial dataset load failed", zap.Error(err))
	}

	validationCfg := validation.Config{
		MaxMessageLength: cfg.Assistant.MaxMessageLen,
		Logger:           appLogger.GetLogger(),
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		Burst:                cfg.RateLimit.Burst,
		Logger:               appLogger.GetLogger(),
	})
	defer limiter.Stop()

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.Server.AllowedOrigins, ", "),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-User-ID",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		IsDevelopment:  cfg.Server.Development,
	}))

	app.Get("/metrics", metrics.MetricsHandler())

	healthHandler := handlers.NewHealthHandler(analyzer, pingerOrNil(replyCache))
	violationsHandler := handlers.NewViolationsHandler(analyzer, reloader)

	api := app.Group("/api/v1", limiter.Middleware(), validation.Middleware(validationCfg))

	api.Get("/health", healthHandler.Health)
	api.Get("/ready", healthHandler.Ready)

	violationsHandler.Register(api.Group("/violations"))

	if cfg.Assistant.Enabled {
		opts := []assistant.Option{
			assistant.WithDatasetContext(func() string {
				snap, err := analyzer.Current()
				if err != nil {
					return ""
				}
				return snap.Summary()
			}),
		}
		if replyCache != nil {
			opts = append(opts, assistant.WithCache(replyCache, time.Duration(cfg.Assistant.CacheTTLMinute)*time.Minute))
		}

		bot := assistant.New(llm.NewClient(cfg.LLM), cfg.Assistant.KnowledgeBase, opts...)
		chatHandler := handlers.NewChatHandler(bot)
		wsHandler := handlers.NewWebSocketHandler(bot, validationCfg)

		api.Post("/chat", chatHandler.HandleChat)
		app.Get("/ws/chat", wsHandler.Upgrade, websocket.New(wsHandler.HandleConnection))
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return app.Listen(addr)
	})

	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("Server shutting down gracefully...")
		return app.ShutdownWithTimeout(10 * time.Second)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		appLogger.Error("Server stopped with error", zap.Error(err))
		return
	}
	appLogger.Info("Server stopped")
}

func pingerOrNil(c *redis.Client) handlers.Pinger {
	if c == nil {
		return nil
	}
	return c
}
