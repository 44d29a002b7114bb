package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/onurcolak/event-automation-service/environments"
	"github.com/onurcolak/event-automation-service/handlers"
	"github.com/onurcolak/event-automation-service/internal/dispatcher"
	"github.com/onurcolak/event-automation-service/internal/middlewares"
	"github.com/onurcolak/event-automation-service/internal/repository"
	"github.com/onurcolak/event-automation-service/internal/service"
	"github.com/onurcolak/event-automation-service/internal/template"
	"github.com/onurcolak/event-automation-service/pkg/database"
	"github.com/onurcolak/event-automation-service/pkg/gateway"
	"github.com/onurcolak/event-automation-service/pkg/logger"
	"github.com/onurcolak/event-automation-service/pkg/redis"
	"github.com/onurcolak/event-automation-service/pkg/validator"
	"github.com/onurcolak/event-automation-service/routes"

	_ "github.com/onurcolak/event-automation-service/docs" // swagger docs
)

// @title Event Automation Service API
// @version 1.0
// @description Runs WhatsApp automations when checklists and events change
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.email onur.colak@useinsider.com

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /

// @schemes http https
func main() {
	// Load config
	cfg := environments.Load()

	logger.Init(cfg.Log.Level)

	// Hard-fail if required secrets are missing
	if cfg.Auth.TriggerAPIKey == "" {
		logger.Fatalf("TRIGGER_API_KEY is required but not set")
	}
	if cfg.Auth.AutomationsAPIKey == "" {
		logger.Fatalf("AUTOMATIONS_API_KEY is required but not set")
	}
	if cfg.Gateway.Token == "" {
		logger.Warnf("GATEWAY_TOKEN is not set, gateway requests will be unauthenticated")
	}

	logger.Infof("Starting Event Automation Service...")

	// Init DB
	db, err := database.NewMySQLDB(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	if err := database.RunMigrations(db); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}

	if cfg.Database.Seed {
		if err := database.SeedTestData(db); err != nil {
			logger.Warnf("Failed to seed test data: %v", err)
		}
	}

	// Init redis. The engine runs without it, so the service and health
	// handler get a nil interface rather than a nil *redis.Client.
	var dispatchCache service.DispatchCache
	redisClient, err := redis.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Warnf("Redis not available, dispatch cache disabled: %v", err)
		redisClient = nil
	} else {
		dispatchCache = redisClient
	}

	gatewayClient := gateway.NewClient(cfg.Gateway)
	logger.Infof("Messaging gateway configured: %s", gatewayClient.GetURL())

	automationRepo := repository.NewAutomationRepository(db)
	messageDispatcher := dispatcher.New(gatewayClient, cfg.Phone)
	renderer := template.NewRenderer(template.DefaultVocabulary(cfg.Template.DateLayout))

	automationService := service.NewAutomationService(
		automationRepo,
		messageDispatcher,
		renderer,
		dispatchCache,
	)

	healthHandler := handlers.NewHealthHandler(db, nil)
	if redisClient != nil {
		healthHandler = handlers.NewHealthHandler(db, redisClient)
	}
	triggerHandler := handlers.NewTriggerHandler(automationService)
	automationHandler := handlers.NewAutomationHandler(automationService)

	e := echo.New()
	e.HideBanner = true
	e.Validator = validator.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
			middlewares.APIKeyHeader,
		},
	}))

	routes.RegisterRoutes(e, healthHandler, triggerHandler, automationHandler, cfg)

	// Start server in goroutine
	go func() {
		addr := ":" + cfg.Server.Port
		logger.Infof("Server starting on http://localhost%s", addr)
		logger.Infof("Swagger docs available at http://localhost%s/swagger/index.html", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Infof("Shutting down gracefully...")

	// In-flight trigger invocations run to completion within the timeout.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Infof("Shutting down HTTP server...")
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	} else {
		logger.Infof("HTTP server stopped successfully")
	}

	logger.Infof("Closing database connection...")
	if err := db.Close(); err != nil {
		logger.Errorf("Error closing database: %v", err)
	}

	if redisClient != nil {
		logger.Infof("Closing Redis connection...")
		if err := redisClient.Close(); err != nil {
			logger.Errorf("Error closing Redis: %v", err)
		}
	}

	logger.Infof("Graceful shutdown completed")
}
