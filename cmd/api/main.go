package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/vetlab/backend/internal/api"
	"github.com/vetlab/backend/internal/cache/lru"
	"github.com/vetlab/backend/internal/cache/redis"
	"github.com/vetlab/backend/internal/catalog"
	"github.com/vetlab/backend/internal/dashboard"
	"github.com/vetlab/backend/internal/decision"
	"github.com/vetlab/backend/internal/metrics"
	"github.com/vetlab/backend/internal/middleware/ratelimit"
	"github.com/vetlab/backend/internal/middleware/security"
	"github.com/vetlab/backend/internal/middleware/validation"
	"github.com/vetlab/backend/internal/procedure"
	"github.com/vetlab/backend/internal/session"
	"github.com/vetlab/backend/internal/storage/sqlite"
	"github.com/vetlab/backend/pkg/config"
	appLogger "github.com/vetlab/backend/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: search ./config.yaml, ./config/, /etc/vetlab/)")
	flag.Parse()

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
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

	appLogger.Info("Starting VetLab surgical simulation API")
	metrics.Init()

	if err := os.MkdirAll(filepath.Dir(cfg.SQLite.Path), 0o755); err != nil {
		appLogger.Fatal("Failed to create data directory", zap.Error(err))
	}

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.SnapshotTTL())
		if err != nil {
			// Live snapshots are optional; the API works without them.
			appLogger.Warn("Redis unavailable, live session view disabled", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	procedures := catalog.New(cfg.Procedures.Dir)
	if err := procedures.Reload(); err != nil {
		appLogger.Fatal("Failed to load procedures", zap.String("dir", cfg.Procedures.Dir), zap.Error(err))
	}
	appLogger.Info("Procedures loaded", zap.Int("count", procedures.Len()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Procedures.Watch {
		watcher, err := procedure.NewWatcher(cfg.Procedures.Dir, cfg.Procedures.Debounce())
		if err != nil {
			appLogger.Warn("Procedure hot reload disabled", zap.Error(err))
		} else {
			defer watcher.Close()
			go func() {
				if err := watcher.Run(ctx, procedures.Reload); err != nil && !errors.Is(err, context.Canceled) {
					appLogger.Error("Procedure watcher stopped", zap.Error(err))
				}
			}()
		}
	}

	statsCache := lru.New[string, *dashboard.UserStats](cfg.Cache.MaxSize, cfg.Cache.TTL())
	aggregator := dashboard.NewAggregator(sqliteClient, statsCache)

	engineCfg := decision.DefaultEngineConfig()
	engineCfg.Baseline = cfg.Scoring.Baseline
	engineCfg.Rules = decision.ScoringRules{StrictTimeManagement: cfg.Scoring.StrictTimeManagement}
	engineCfg.Locale = cfg.Feedback.Locale
	engineCfg.MaxReferences = cfg.Feedback.MaxReferences

	opts := []session.Option{session.WithInvalidator(aggregator)}
	if redisClient != nil {
		opts = append(opts, session.WithPublisher(redisClient))
	}
	manager := session.NewManager(sqliteClient, procedures, engineCfg, opts...)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		Logger:               appLogger.Named("ratelimit"),
	})
	defer limiter.Stop()

	validationCfg := validation.Config{Logger: appLogger.Named("validation")}

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
	app.Use("/api", limiter.Middleware())
	app.Use("/api", validation.Middleware(validationCfg))

	ready := func() error {
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := sqliteClient.Ping(pingCtx); err != nil {
			return fmt.Errorf("sqlite: %w", err)
		}
		if procedures.Len() == 0 {
			return errors.New("no procedures loaded")
		}
		return nil
	}

	deps := api.Deps{
		Catalog:    procedures,
		Sessions:   manager,
		Dashboard:  aggregator,
		Validation: validationCfg,
		Ready:      ready,
	}
	if redisClient != nil {
		deps.Live = redisClient
	}
	api.Register(app, deps)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	cancel()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		appLogger.Error("Server shutdown failed", zap.Error(err))
	}
	appLogger.Info("Server stopped", zap.Int("active_sessions", manager.Active()))
}
