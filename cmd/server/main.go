package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/optalis/request-portal/internal/adapter"
	"github.com/optalis/request-portal/internal/config"
	httpserver "github.com/optalis/request-portal/internal/interfaces/http"
	"github.com/optalis/request-portal/internal/notify"
	"github.com/optalis/request-portal/internal/report"
	"github.com/optalis/request-portal/internal/repository"
	"github.com/optalis/request-portal/internal/roles"
	"github.com/optalis/request-portal/internal/workflow"
	"github.com/optalis/request-portal/pkg/database"
	"github.com/optalis/request-portal/pkg/utils"
)

func main() {
	// Optional .env for local development; real deployments use the environment.
	_ = gotenv.Load()

	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting Request Portal Workflow Service",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port))

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	templateRepo := repository.NewTemplateRepository(db.DB, logger)
	instanceRepo := repository.NewInstanceRepository(db.DB, logger)
	executionRepo := repository.NewExecutionRepository(db.DB, logger)
	directoryRepo := repository.NewDirectoryRepository(db.DB, logger)

	adapters := adapter.NewRegistryFromDB(db.DB, logger)
	resolver := roles.NewResolver(directoryRepo, logger)

	engine := workflow.NewEngine(db, templateRepo, instanceRepo, executionRepo, adapters, resolver, logger)
	exporter := report.NewExporter(instanceRepo, executionRepo, cfg.Report.OutputDir, logger)

	var dispatcher notify.Dispatcher
	switch cfg.Notifier.Provider {
	case "lark":
		dispatcher = notify.NewLarkDispatcher(notify.LarkConfig{
			AppID:      cfg.Notifier.AppID,
			AppSecret:  cfg.Notifier.AppSecret,
			APITimeout: cfg.Notifier.APITimeout,
		}, logger)
	default:
		dispatcher = notify.NewLogDispatcher(logger)
	}

	server := httpserver.NewServer(cfg.Server, engine, exporter, resolver, dispatcher, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		logger.Fatal("HTTP server failed", zap.Error(err))
	}

	logger.Info("Server exited successfully")
}
