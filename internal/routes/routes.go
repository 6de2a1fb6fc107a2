// internal/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tascam-bridge/internal/config"
	"tascam-bridge/internal/database"
	"tascam-bridge/internal/handler"
	"tascam-bridge/internal/middleware"
	"tascam-bridge/internal/repository"
	"tascam-bridge/internal/tascam"
	"tascam-bridge/internal/utils"
)

// Router holds all dependencies for routing
type Router struct {
	config      *config.Config
	logger      *zap.Logger
	db          *database.DB
	migrator    *database.Migrator
	historyRepo repository.HistoryRepository
	controller  *tascam.Controller
	eventBus    *handler.EventBus
}

// NewRouter creates a new router instance. db, migrator, and historyRepo
// are nil when the history store is disabled.
func NewRouter(
	config *config.Config,
	logger *zap.Logger,
	db *database.DB,
	migrator *database.Migrator,
	historyRepo repository.HistoryRepository,
	controller *tascam.Controller,
	eventBus *handler.EventBus,
) *Router {
	return &Router{
		config:      config,
		logger:      logger,
		db:          db,
		migrator:    migrator,
		historyRepo: historyRepo,
		controller:  controller,
		eventBus:    eventBus,
	}
}

// SetupRouter creates and configures the Gin router
func (r *Router) SetupRouter() *gin.Engine {
	// Set Gin mode
	if r.config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Create Gin engine
	router := gin.New()

	// Add middleware
	r.addMiddleware(router)

	// Add routes
	r.addRoutes(router)

	return router
}

// addMiddleware adds middleware to the router
func (r *Router) addMiddleware(router *gin.Engine) {
	// Recovery middleware
	router.Use(middleware.RecoveryMiddleware(r.logger))

	// Request ID middleware
	router.Use(middleware.RequestIDMiddleware())

	// Logging middleware
	serviceLogger := utils.NewServiceLogger(r.logger, "http-server")
	router.Use(middleware.LoggingMiddleware(serviceLogger))

	// CORS middleware
	router.Use(middleware.CORSMiddleware(&r.config.Security))

	r.logger.Info("Middleware configured")
}

// addRoutes sets up all application routes
func (r *Router) addRoutes(router *gin.Engine) {
	// Create handlers
	healthHandler := handler.NewHealthHandler(r.controller, r.db, r.migrator, r.config, r.logger)
	controlHandler := handler.NewControlHandler(r.controller, r.logger)
	wsHandler := handler.NewWebSocketHandler(r.controller, r.eventBus, r.logger)

	// Health check routes
	r.addHealthRoutes(router, healthHandler)

	// API v1 routes
	apiV1 := router.Group("/api/v1")
	controlHandler.RegisterRoutes(apiV1)

	// History routes only exist when the store is configured
	if r.historyRepo != nil {
		historyHandler := handler.NewHistoryHandler(r.historyRepo, r.logger)
		historyHandler.RegisterRoutes(apiV1)
	}

	// WebSocket routes
	ws := router.Group("/ws")
	wsHandler.RegisterRoutes(ws)

	r.logger.Info("All routes configured successfully")
}

// addHealthRoutes sets up health check routes
func (r *Router) addHealthRoutes(router *gin.Engine, handler *handler.HealthHandler) {
	health := router.Group("")
	{
		health.GET("/health", handler.HealthCheck)
		health.GET("/ready", handler.ReadinessCheck)
		health.GET("/live", handler.LivenessCheck)
	}
}
