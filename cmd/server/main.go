// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"tascam-bridge/internal/config"
	"tascam-bridge/internal/database"
	"tascam-bridge/internal/handler"
	"tascam-bridge/internal/mqtt"
	"tascam-bridge/internal/repository"
	"tascam-bridge/internal/routes"
	"tascam-bridge/internal/service"
	"tascam-bridge/internal/tascam"
	"tascam-bridge/internal/utils"
)

// Application represents the main application
type Application struct {
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
	database *database.DB
	migrator *database.Migrator

	controller *tascam.Controller
	eventBus   *handler.EventBus

	historyRepo    repository.HistoryRepository
	historyService *service.HistoryService
	mqttBridge     *mqtt.Bridge
}

func main() {
	app, err := NewApplication()
	if err != nil {
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	if err := app.Start(); err != nil {
		app.logger.Fatal("Failed to start application", zap.Error(err))
	}
}

// NewApplication creates a new application instance
func NewApplication() (*Application, error) {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize logger
	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	serviceLogger := utils.NewServiceLogger(logger, "tascam-bridge")
	serviceLogger.LogServiceStart(cfg.App.Version)

	app := &Application{
		config: cfg,
		logger: logger,
	}

	// Initialize components
	app.initializeEngine()

	if err := app.initializeDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initializeMQTT(); err != nil {
		return nil, fmt.Errorf("failed to initialize mqtt bridge: %w", err)
	}

	app.initializeServer()

	return app, nil
}

// initializeEngine wires the event bus and the player controller
func (app *Application) initializeEngine() {
	app.eventBus = handler.NewEventBus(app.logger)
	app.controller = tascam.NewController(&app.config.Device, app.logger, app.eventBus)

	app.logger.Info("Player engine initialized",
		zap.String("device", app.config.GetDeviceAddr()),
	)
}

// initializeDatabase sets up the optional history store
func (app *Application) initializeDatabase() error {
	if !app.config.Database.Enabled {
		app.logger.Info("History store disabled")
		return nil
	}

	db, err := database.NewConnection(app.config, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	app.database = db

	app.migrator = database.NewMigrator(db, app.logger, &app.config.Database)
	if err := app.migrator.Up(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	app.historyRepo = repository.NewHistoryRepository(db, app.logger)
	app.historyService = service.NewHistoryService(app.historyRepo, app.eventBus, &app.config.Database, app.logger)
	app.controller.OnDispatch(app.historyService.RecordCommand)

	app.logger.Info("History store initialized")
	return nil
}

// initializeMQTT sets up the optional MQTT bridge
func (app *Application) initializeMQTT() error {
	if !app.config.MQTT.Enabled {
		app.logger.Info("MQTT bridge disabled")
		return nil
	}

	app.mqttBridge = mqtt.NewBridge(
		&app.config.MQTT,
		app.config.GetMQTTBroker(),
		app.controller,
		app.eventBus,
		app.logger,
	)

	return nil
}

// initializeServer sets up HTTP server and routes
func (app *Application) initializeServer() {
	routerManager := routes.NewRouter(
		app.config,
		app.logger,
		app.database,
		app.migrator,
		app.historyRepo,
		app.controller,
		app.eventBus,
	)

	router := routerManager.SetupRouter()

	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}

	app.logger.Info("HTTP server initialized",
		zap.String("address", app.config.GetServerAddr()),
	)
}

// startBackgroundServices starts the engine and optional bridges
func (app *Application) startBackgroundServices() error {
	go app.eventBus.Start()
	app.controller.Start()

	if app.historyService != nil {
		app.historyService.Start()
	}

	if app.mqttBridge != nil {
		if err := app.mqttBridge.Start(); err != nil {
			return fmt.Errorf("failed to start mqtt bridge: %w", err)
		}
	}

	app.logger.Info("Background services started")
	return nil
}

// waitForShutdown waits for shutdown signal and performs graceful shutdown
func (app *Application) waitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	app.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	app.shutdown()
}

// shutdown performs graceful shutdown
func (app *Application) shutdown() {
	serviceLogger := utils.NewServiceLogger(app.logger, "tascam-bridge")
	serviceLogger.LogServiceStop("shutdown signal received")

	// Shutdown HTTP server
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		app.logger.Info("HTTP server stopped")
	}

	// Stop bridges before the engine so they see its final state
	if app.mqttBridge != nil {
		app.mqttBridge.Stop()
	}

	if app.historyService != nil {
		app.historyService.Stop()
	}

	app.controller.Stop()
	app.eventBus.Close()

	if app.database != nil {
		if err := app.database.Close(); err != nil {
			app.logger.Error("Database close error", zap.Error(err))
		}
	}

	// Flush logger
	if err := utils.CloseLogger(app.logger); err != nil {
		fmt.Printf("Logger close error: %v\n", err)
	}
}

func (app *Application) Start() error {
	// Start server in goroutine
	go func() {
		app.logger.Info("Starting HTTP server",
			zap.String("address", app.server.Addr),
		)

		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	if err := app.startBackgroundServices(); err != nil {
		return err
	}

	// Wait for interrupt signal
	app.waitForShutdown()

	return nil
}
