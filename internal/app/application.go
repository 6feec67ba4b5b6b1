package app

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/healthaudit/audit-pipeline/internal/api/httpserver"
	"github.com/healthaudit/audit-pipeline/internal/domain/entities"
	"github.com/healthaudit/audit-pipeline/internal/domain/services/alerts"
	"github.com/healthaudit/audit-pipeline/internal/domain/services/audit"
	"github.com/healthaudit/audit-pipeline/internal/domain/services/gdpr"
	"github.com/healthaudit/audit-pipeline/internal/domain/services/integrity"
	"github.com/healthaudit/audit-pipeline/internal/domain/services/pseudonym"
	"github.com/healthaudit/audit-pipeline/internal/infrastructure/config"
	"github.com/healthaudit/audit-pipeline/internal/infrastructure/database"
	"github.com/healthaudit/audit-pipeline/internal/infrastructure/queue"
	"github.com/healthaudit/audit-pipeline/internal/infrastructure/repositories"
	"github.com/healthaudit/audit-pipeline/internal/workers/ingestion"
	"github.com/healthaudit/audit-pipeline/pkg/apierrors"
	"github.com/healthaudit/audit-pipeline/pkg/logger"
	"github.com/healthaudit/audit-pipeline/pkg/metrics"
	"github.com/healthaudit/audit-pipeline/pkg/reliability"
	"github.com/healthaudit/audit-pipeline/pkg/tracing"

	"github.com/jmoiron/sqlx"
)

const ingestionQueueName = "audit:ingest"

// Application wires together every component of the audit pipeline:
// config, database, queue, domain services, background workers, and the
// minimal HTTP surface (health and metrics endpoints only).
type Application struct {
	cfg        *config.Config
	configPath string
	log        *logger.Logger
	db         *sqlx.DB
	rdb        *redis.Client
	cfgWatcher *config.Watcher

	auditService *audit.Service
	pseudonyms   *pseudonym.Registry

	ingestionPool    *ingestion.Pool
	integrityVerify  *integrity.Verifier
	integritySched   *integrity.Scheduler
	alertStore       *alerts.Store
	alertMonitor     *alerts.Monitor
	retentionEngine  *gdpr.RetentionEngine
	eraser           *gdpr.Eraser
	pseudonymizer    *gdpr.Pseudonymizer
	exporter         *gdpr.Exporter
	complianceNotify *gdpr.Notifier

	server *http.Server

	tracingShutdown func(context.Context) error

	cancelBackground context.CancelFunc
}

// NewApplication creates a new, uninitialized application instance.
func NewApplication() *Application {
	return &Application{}
}

// Initialize loads configuration and builds every dependency. It does not
// start any background workers or listeners; call Start for that.
func (app *Application) Initialize(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	app.cfg = cfg
	app.configPath = configPath

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.Environment == "development",
		Service:     "audit-pipeline",
	})
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	app.log = log

	if err := app.initializeTracing(); err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	db, err := repositories.NewDB(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	app.db = db

	if err := database.RunMigrations(cfg.Database.DSN); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	app.rdb = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if err := app.initializeDomainServices(); err != nil {
		return fmt.Errorf("failed to initialize domain services: %w", err)
	}

	app.initializeWorkers()
	app.initializeServer()
	app.initializeConfigWatcher()

	return nil
}

// initializeConfigWatcher builds a hot-reload watcher over the config file
// used at startup. Only the log level is live-reloadable today; every other
// setting (database DSN, worker pool size, key material) requires a
// restart since changing them mid-flight would leave in-progress
// connections or goroutine pools in an inconsistent state.
func (app *Application) initializeConfigWatcher() {
	if app.configPath == "" {
		return
	}
	app.cfgWatcher = config.NewWatcher(app.configPath, app.log.Named("config.watcher"), func(reloaded *config.Config) {
		if err := app.log.SetLevel(reloaded.LogLevel); err != nil {
			app.log.Warn("ignoring invalid log_level from reloaded config", "error", err)
			return
		}
		app.log.Info("log level updated from config reload", "log_level", reloaded.LogLevel)
	})
}

func (app *Application) initializeTracing() error {
	tracingConfig := tracing.Config{
		Enabled:      app.cfg.Environment != "test",
		CollectorURL: getEnvOrDefault("OTEL_COLLECTOR_URL", "localhost:4317"),
		Environment:  app.cfg.Environment,
		SampleRate:   getSampleRate(app.cfg.Environment),
	}

	shutdown, err := tracing.InitTracer(context.Background(), tracingConfig, app.log.Zap())
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	app.tracingShutdown = shutdown
	app.log.Info("opentelemetry tracing initialized", "collector_url", tracingConfig.CollectorURL)
	return nil
}

func (app *Application) initializeDomainServices() error {
	auditRepo := repositories.NewAuditRepository(app.db)
	alertRepo := repositories.NewAlertRepository(app.db)
	integrityRepo := repositories.NewIntegrityRepository(app.db)
	pseudonymRepo := repositories.NewPseudonymRepository(app.db)
	policyRepo := repositories.NewRetentionPolicyRepository(app.db)

	app.auditService = audit.NewService(auditRepo, app.log.Named("audit"))

	hmacKey, err := hex.DecodeString(app.cfg.Pseudonym.HMACKeyHex)
	if err != nil {
		return apierrors.Wrap(apierrors.KindConfigValidation, "decode pseudonym.hmac_key_hex", err)
	}
	encryptionKey, err := hex.DecodeString(app.cfg.Pseudonym.EncryptionKeyHex)
	if err != nil {
		return apierrors.Wrap(apierrors.KindConfigValidation, "decode pseudonym.encryption_key_hex", err)
	}
	registry, err := pseudonym.NewRegistry(pseudonymRepo, app.log.Named("pseudonym"), hmacKey, encryptionKey)
	if err != nil {
		return fmt.Errorf("failed to build pseudonym registry: %w", err)
	}
	app.pseudonyms = registry

	app.integrityVerify = integrity.NewVerifier(app.auditService, integrityRepo, alertRepo, app.log.Named("integrity"))
	app.integritySched = integrity.NewScheduler(app.integrityVerify, app.cfg.Integrity.SweepInterval, app.cfg.Integrity.SweepWindow)

	app.alertStore = alerts.NewStore(alertRepo, app.rdb, app.log.Named("alerts"))

	app.retentionEngine = gdpr.NewRetentionEngine(auditRepo, app.auditService, policyRepo, app.log.Named("retention"))
	app.eraser = gdpr.NewEraser(auditRepo, app.auditService, app.pseudonyms, app.log.Named("gdpr"))
	app.pseudonymizer = gdpr.NewPseudonymizer(app.pseudonyms, auditRepo, app.auditService, app.log.Named("gdpr"))
	app.exporter = gdpr.NewExporter(app.auditService, app.log.Named("gdpr"))

	if app.cfg.Compliance.SendgridAPIKey != "" {
		app.complianceNotify = gdpr.NewNotifier(gdpr.NotifierConfig{
			APIKey:     app.cfg.Compliance.SendgridAPIKey,
			FromEmail:  app.cfg.Compliance.FromEmail,
			FromName:   app.cfg.Compliance.FromName,
			Recipients: app.cfg.Compliance.ReportRecipients,
		}, app.log.Named("gdpr.notify"))
	}

	return nil
}

func (app *Application) initializeWorkers() {
	ingestionQueue := queue.New(app.rdb, queue.Config{
		Name:       ingestionQueueName,
		Visibility: app.cfg.Worker.QueueVisibility,
	})

	app.ingestionPool = ingestion.NewPool(ingestion.Config{
		WorkerCount:      app.cfg.Worker.Count,
		PollInterval:     app.cfg.Worker.PollInterval,
		RecoveryInterval: app.cfg.Worker.RecoveryInterval,
	}, ingestionQueue, app.auditService, app.log.Named("ingestion"))

	circuitRegistry := reliability.NewRegistry(reliability.BreakerConfig{
		OnStateChange: func(key string, from, to entities.CircuitState) {
			metrics.CircuitBreakerStateGauge.WithLabelValues(key).Set(metrics.CircuitStateValue(string(to)))
		},
	})
	app.alertMonitor = alerts.NewMonitor(app.alertStore, alerts.DefaultMonitorConfig(), ingestionQueue, circuitRegistry)
}

func (app *Application) initializeServer() {
	app.server = httpserver.New(httpserver.Config{
		Addr:        app.cfg.Server.Addr,
		ReleaseMode: app.cfg.Environment == "production",
	}, app.db, app.log.Named("httpserver"))
}

// Start launches the HTTP server and every background worker in its own
// goroutine, returning immediately.
func (app *Application) Start() error {
	backgroundCtx, cancel := context.WithCancel(context.Background())
	app.cancelBackground = cancel

	go func() {
		app.log.Info("starting server", "addr", app.cfg.Server.Addr, "environment", app.cfg.Environment)
		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.log.Fatal("failed to start server", "error", err)
		}
	}()

	app.ingestionPool.Start(backgroundCtx)
	go app.integritySched.Run(backgroundCtx)
	go app.alertMonitor.Run(backgroundCtx)
	go app.runRetentionSweep(backgroundCtx)
	go app.startMetricsCollection(backgroundCtx)
	if app.cfgWatcher != nil {
		go func() {
			if err := app.cfgWatcher.Run(backgroundCtx); err != nil {
				app.log.Warn("config watcher stopped", "error", err)
			}
		}()
	}

	app.log.Info("audit pipeline started")
	return nil
}

// startMetricsCollection periodically samples the database connection
// pool and publishes it as a gauge, the same background-collection idiom
// used for the retention and integrity sweeps.
func (app *Application) startMetricsCollection(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := app.db.Stats()
			metrics.DatabaseConnectionsGauge.WithLabelValues("open").Set(float64(stats.OpenConnections))
			metrics.DatabaseConnectionsGauge.WithLabelValues("idle").Set(float64(stats.Idle))
			metrics.DatabaseConnectionsGauge.WithLabelValues("in_use").Set(float64(stats.InUse))
		}
	}
}

// runRetentionSweep periodically applies every active retention policy.
// Retention sweeps run far less often than integrity sweeps since they
// touch (and potentially delete) rows rather than just read them.
func (app *Application) runRetentionSweep(ctx context.Context) {
	ticker := time.NewTicker(6 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			results, err := app.retentionEngine.ApplyAll(ctx)
			if err != nil {
				app.log.Error("retention sweep failed", "error", err)
				continue
			}
			if app.complianceNotify != nil && len(results) > 0 {
				if err := app.complianceNotify.NotifyRetentionReport(ctx, results); err != nil {
					app.log.Warn("failed to send retention compliance report", "error", err)
				}
			}

			const resolvedAlertRetentionDays = 90
			removed, err := app.alertStore.CleanupResolvedAll(ctx, resolvedAlertRetentionDays)
			if err != nil {
				app.log.Error("resolved alert cleanup failed", "error", err)
			} else if removed > 0 {
				app.log.Info("cleaned up resolved alerts", "removed", removed)
			}
		}
	}
}

// Shutdown gracefully stops the server and every background worker.
func (app *Application) Shutdown() error {
	app.log.Info("shutting down audit pipeline...")

	if app.cancelBackground != nil {
		app.cancelBackground()
	}
	if app.ingestionPool != nil {
		if err := app.ingestionPool.Shutdown(30 * time.Second); err != nil {
			app.log.Warn("error stopping ingestion pool", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if app.server != nil {
		if err := app.server.Shutdown(ctx); err != nil {
			app.log.Warn("server forced to shutdown", "error", err)
		}
	}

	if app.tracingShutdown != nil {
		app.tracingShutdown(context.Background())
	}
	if app.rdb != nil {
		app.rdb.Close()
	}
	if app.db != nil {
		app.db.Close()
	}

	app.log.Info("audit pipeline exited gracefully")
	return nil
}

// WaitForShutdown blocks until SIGINT or SIGTERM is received.
func (app *Application) WaitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getSampleRate(env string) float64 {
	switch env {
	case "production":
		return 0.1
	case "staging":
		return 0.5
	default:
		return 1.0
	}
}
