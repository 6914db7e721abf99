package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appintegration "github.com/mops/backend/internal/application/integration"
	"github.com/mops/backend/internal/domain/integration"
	"github.com/mops/backend/internal/infrastructure/config"
	"github.com/mops/backend/internal/infrastructure/connector"
	"github.com/mops/backend/internal/infrastructure/logger"
	"github.com/mops/backend/internal/infrastructure/persistence"
	"github.com/mops/backend/internal/infrastructure/ratelimit"
	"github.com/mops/backend/internal/infrastructure/scheduler"
	"github.com/mops/backend/internal/interfaces/http/handler"
	"github.com/mops/backend/internal/interfaces/http/middleware"
	"github.com/mops/backend/internal/interfaces/http/router"
)

// connectorFamilies lists the provider families served by the HTTP connector.
// Each family talks to its own gateway endpoint; per-integration base URLs
// from the connection config override the default.
var connectorFamilies = []integration.IntegrationFamily{
	integration.FamilyCRM,
	integration.FamilyEmailProvider,
	integration.FamilyDataWarehouse,
	integration.FamilyAnalytics,
	integration.FamilyAutomation,
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting Marketing Ops Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Create GORM logger backed by zap
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))

	// Initialize database connection with custom logger
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	// Postgres schemas are managed by the migrate CLI; AutoMigrate covers sqlite dev setups.
	if cfg.Database.Driver == config.DriverSQLite {
		if err := db.Migrate(); err != nil {
			log.Fatal("Failed to migrate database schema", zap.Error(err))
		}
		log.Info("Database connected and migrated")
	} else {
		log.Info("Database connected")
	}

	// Initialize repositories
	integrationRepo := persistence.NewGormIntegrationRepository(db.DB)
	eventRepo := persistence.NewGormEventRepository(db.DB)
	templateRepo := persistence.NewGormTemplateRepository(db.DB)
	conflictRepo := persistence.NewGormConflictRepository(db.DB)

	// Provider catalog and transforms are static, built once
	providers := integration.NewProviderRegistry()
	transforms := integration.NewTransformRegistry()

	// Seed connection templates from the provider catalog
	if err := templateRepo.Seed(context.Background(), providers); err != nil {
		log.Fatal("Failed to seed connection templates", zap.Error(err))
	}

	// Rate-limit guard: redis in multi-instance deployments, memory otherwise
	guardFactory := ratelimit.NewGuardFactory(cfg.Redis, ratelimit.WithLogger(log))
	guard, err := guardFactory.CreateGuard(cfg.RateLimit.Backend)
	if err != nil {
		log.Fatal("Failed to create rate-limit guard", zap.Error(err))
	}
	log.Info("Rate-limit guard ready", zap.String("backend", cfg.RateLimit.Backend))

	// Connector registry: one retrying HTTP connector per provider family
	connectors := connector.NewRegistry()
	for _, family := range connectorFamilies {
		hc, err := connector.NewHTTPConnector(connector.HTTPConnectorConfig{
			DefaultBaseURL: fmt.Sprintf("https://connectors.internal/%s", family),
			TimeoutSeconds: 60,
		})
		if err != nil {
			log.Fatal("Failed to build connector", zap.String("family", string(family)), zap.Error(err))
		}
		connectors.Register(family, connector.NewRetryingConnector(hc))
	}

	// Sync scheduler: worker pool executing sync jobs
	syncScheduler, err := scheduler.NewSyncScheduler(
		scheduler.SyncSchedulerConfig{
			Enabled:    cfg.Sync.Enabled,
			Workers:    cfg.Sync.Workers,
			QueueSize:  cfg.Sync.QueueSize,
			JobTimeout: cfg.Sync.JobTimeout,
		},
		integrationRepo,
		eventRepo,
		conflictRepo,
		connectors,
		guard,
		log,
	)
	if err != nil {
		log.Fatal("Failed to build sync scheduler", zap.Error(err))
	}

	// Application services
	integrationService := appintegration.NewIntegrationService(
		integrationRepo, eventRepo, templateRepo, conflictRepo,
		connectors, providers, transforms, syncScheduler, log,
	)
	wizardService := appintegration.NewWizardService(
		integrationRepo, eventRepo, connectors, providers, transforms, log,
	)

	if cfg.Sync.Enabled {
		if err := syncScheduler.Start(context.Background()); err != nil {
			log.Fatal("Failed to start sync scheduler", zap.Error(err))
		}
		defer func() {
			if err := syncScheduler.Stop(context.Background()); err != nil {
				log.Error("Error stopping sync scheduler", zap.Error(err))
			}
		}()
		log.Info("Sync scheduler started",
			zap.Int("workers", cfg.Sync.Workers),
			zap.Duration("job_timeout", cfg.Sync.JobTimeout),
		)

		// Due poller: feeds scheduled syncs through the same trigger path
		// as manual syncs, so the per-integration locks apply to both.
		duePoller, err := scheduler.NewDuePoller(integrationRepo, integrationService, cfg.Sync.PollInterval, log)
		if err != nil {
			log.Fatal("Failed to build due poller", zap.Error(err))
		}
		if err := duePoller.Start(context.Background()); err != nil {
			log.Fatal("Failed to start due poller", zap.Error(err))
		}
		defer func() {
			if err := duePoller.Stop(context.Background()); err != nil {
				log.Error("Error stopping due poller", zap.Error(err))
			}
		}()
		log.Info("Due poller started", zap.Duration("interval", cfg.Sync.PollInterval))
	}

	if cfg.Health.Enabled {
		healthScheduler, err := scheduler.NewHealthScheduler(
			scheduler.HealthSchedulerConfig{
				Enabled:           cfg.Health.Enabled,
				CheckInterval:     cfg.Health.CheckInterval,
				Window:            cfg.Health.Window,
				SlowSyncThreshold: cfg.Health.SlowSyncThreshold,
			},
			integrationRepo,
			eventRepo,
			log,
		)
		if err != nil {
			log.Fatal("Failed to build health scheduler", zap.Error(err))
		}
		if err := healthScheduler.Start(context.Background()); err != nil {
			log.Fatal("Failed to start health scheduler", zap.Error(err))
		}
		defer func() {
			if err := healthScheduler.Stop(context.Background()); err != nil {
				log.Error("Error stopping health scheduler", zap.Error(err))
			}
		}()
		log.Info("Health scheduler started", zap.Duration("interval", cfg.Health.CheckInterval))
	}

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()

	// Configure trusted proxies
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())

	corsConfig := middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	engine.Use(middleware.CORSWithConfig(corsConfig))

	// Health check endpoint (outside API versioning)
	engine.GET("/health", healthHandler(db))

	// API routes
	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Register(handler.NewIntegrationHandler(integrationService)).
		Register(handler.NewWizardHandler(wizardService)).
		Register(handler.NewTemplateHandler(integrationService)).
		Register(handler.NewSystemHandler())
	r.Setup()

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// healthHandler returns a handler for health check endpoints
func healthHandler(db *persistence.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqLog := logger.GetGinLogger(c)
		if err := db.Ping(); err != nil {
			reqLog.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"time":     time.Now().Format(time.RFC3339),
				"database": "error",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": "ok",
		})
	}
}
