package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ikap-analysis/internal/api"
	"ikap-analysis/internal/api/handlers"
	"ikap-analysis/internal/backend"
	"ikap-analysis/internal/classifier"
	"ikap-analysis/internal/filestore"
	"ikap-analysis/internal/models"
	"ikap-analysis/internal/repository"
	"ikap-analysis/internal/service"
	"ikap-analysis/internal/worker"
	"ikap-analysis/pkg/auth"
	"ikap-analysis/pkg/config"
	"ikap-analysis/pkg/logger"
	"ikap-analysis/pkg/postgres"
	"ikap-analysis/pkg/retry"

	"go.uber.org/zap"
)

// @title IKAP Analysis API
// @version 1.0
// @description Анализ банковских выписок, налоговой и финансовой отчетности заявителя

// @contact.name API Support

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

// shutdownTimeout bounds draining of queued analysis tasks.
const shutdownTimeout = 30 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	if err := logger.Init(cfg.Logger.Level); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	appLogger := logger.Get()
	appLogger.Info("Starting IKAP analysis service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := postgres.NewPool(ctx, &cfg.Database, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	rc := retry.Config{
		MaxRetries:     cfg.Retry.MaxRetries,
		InitialDelay:   cfg.Retry.InitialDelay,
		MaxDelay:       cfg.Retry.MaxDelay,
		BackoffFactor:  2.0,
		JitterFraction: 0.2,
	}

	// Initialize repositories
	reportRepo := repository.NewReportRepository(db, rc, appLogger)
	fileRepo := repository.NewFileRepository(db, rc, appLogger)
	messageRepo := repository.NewMessageRepository(db, rc, appLogger)

	// File bytes: database, then the secondary provider
	var (
		provider filestore.Provider
		storer   filestore.Storer
	)
	switch cfg.Provider.Kind {
	case "http":
		provider = filestore.NewHTTPProvider(cfg.Provider.BaseURL, cfg.Provider.APIKey, cfg.Provider.Timeout)
	case "gcs":
		gcs, err := filestore.NewGCSProvider(ctx, cfg.Provider.Bucket, cfg.Provider.Prefix)
		if err != nil {
			appLogger.Fatal("Failed to initialize GCS provider", zap.Error(err))
		}
		defer gcs.Close()
		provider, storer = gcs, gcs
	case "":
	default:
		appLogger.Fatal("Unknown file provider", zap.String("kind", cfg.Provider.Kind))
	}
	cache := filestore.NewSessionCache()
	resolver := filestore.NewResolver(fileRepo, cache, provider, cfg.Provider.Fetchers, appLogger)

	// External analysis backends; an empty URL leaves the category unconfigured
	var (
		converter   service.StatementConverter
		taxAnalyzer service.TaxAnalyzer
		fsAnalyzer  service.FSAnalyzer
	)
	if cfg.Backends.StatementsURL != "" {
		converter = backend.NewStatementsConverter(cfg.Backends.StatementsURL, cfg.Backends.StatementsTimeout, rc, appLogger)
	}
	if cfg.Backends.TaxURL != "" {
		taxAnalyzer = backend.NewTaxClient(cfg.Backends.TaxURL, cfg.Backends.TaxTimeout, rc, appLogger)
	}
	if cfg.Backends.FSURL != "" {
		fsAnalyzer = backend.NewFSClient(backend.FSConfig{
			BaseURL:        cfg.Backends.FSURL,
			UploadTimeout:  cfg.Backends.FSUploadTimeout,
			RequestTimeout: cfg.Backends.FSRequestTimeout,
			PollInterval:   cfg.Backends.FSPollInterval,
			MaxAttempts:    cfg.Backends.FSMaxAttempts,
		}, rc, appLogger)
	}

	// Transaction classifier
	rules := classifier.DefaultRules()
	if cfg.Classifier.RulesPath != "" {
		rules, err = classifier.LoadRules(cfg.Classifier.RulesPath)
		if err != nil {
			appLogger.Fatal("Failed to load classifier rules", zap.String("path", cfg.Classifier.RulesPath), zap.Error(err))
		}
	}

	var secondary classifier.SecondaryClassifier
	if cfg.Classifier.AgentEnabled && cfg.GigaChat.APIKey != "" {
		llmService, err := service.NewLLMService(ctx, &cfg.GigaChat, appLogger)
		if err != nil {
			appLogger.Fatal("Failed to initialize LLM service", zap.Error(err))
		}
		defer llmService.Close()
		secondary = llmService
	} else {
		appLogger.Warn("Secondary classifier disabled, ambiguous transactions stay unresolved")
	}

	runners := []service.Runner{
		service.NewStatementsRunner(resolver, converter, classifier.New(rules), secondary, service.StatementsRunnerConfig{
			BatchSize: cfg.Classifier.BatchSize,
		}, appLogger),
		service.NewTaxRunner(resolver, taxAnalyzer, cfg.Backends.TaxBatchSize, appLogger),
		service.NewFSRunner(resolver, fsAnalyzer, appLogger),
	}

	// Background analysis
	// Tasks outlive the signal context so Stop can drain them.
	pool := worker.NewPool(cfg.Worker.Workers, cfg.Worker.QueueSize, cfg.Worker.TaskTimeout, appLogger)
	pool.Start(context.Background())

	orchestrator := service.NewOrchestrator(reportRepo, messageRepo, resolver, pool, map[models.Category]time.Duration{
		models.CategoryStatements: cfg.Backends.StatementsTimeout,
		models.CategoryTaxes:      cfg.Backends.TaxTimeout,
		models.CategoryFinancial:  cfg.Backends.FSTimeout,
	}, appLogger, runners...)

	// Initialize services
	reportService := service.NewReportService(reportRepo, fileRepo, messageRepo, cache, appLogger)
	fileService := service.NewFileService(fileRepo, cache, storer, int64(cfg.Server.BodyLimit), appLogger)

	jwtManager := auth.NewJWTManager(cfg.JWT.SecretKey, cfg.JWT.Expiration)

	// Initialize handlers
	sessionHandler := handlers.NewSessionHandler(fileService, orchestrator, appLogger)
	reportHandler := handlers.NewReportHandler(reportService, appLogger)

	// Setup router
	app := api.SetupRouter(api.RouterConfig{
		BodyLimit:    cfg.Server.BodyLimit,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, sessionHandler, reportHandler, jwtManager, appLogger)

	// Start server
	go func() {
		addr := ":" + cfg.Server.Port
		appLogger.Info("Server starting", zap.String("address", addr))
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	<-ctx.Done()

	appLogger.Info("Shutting down server")
	if err := app.Shutdown(); err != nil {
		appLogger.Error("Server shutdown error", zap.Error(err))
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := pool.Stop(drainCtx); err != nil {
		appLogger.Warn("Analysis tasks cancelled on shutdown", zap.Error(err))
	}
}
