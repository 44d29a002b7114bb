package routes

import (
	"github.com/labstack/echo/v4"
	echoSwagger "github.com/swaggo/echo-swagger"

	"github.com/onurcolak/event-automation-service/environments"
	"github.com/onurcolak/event-automation-service/handlers"
	"github.com/onurcolak/event-automation-service/internal/middlewares"
)

// RegisterRoutes registers all API routes with middleware
func RegisterRoutes(
	e *echo.Echo,
	healthHandler *handlers.HealthHandler,
	triggerHandler *handlers.TriggerHandler,
	automationHandler *handlers.AutomationHandler,
	cfg *environments.Config,
) {
	e.GET("/health", healthHandler.Health)
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	v1 := e.Group("/api/v1")

	// Change-capture webhook, keyed separately from the admin API
	triggers := v1.Group("/triggers", middlewares.APIKeyAuth("trigger", cfg.Auth.TriggerAPIKey))
	triggers.POST("", triggerHandler.HandleTrigger)

	automations := v1.Group("/automations", middlewares.APIKeyAuth("automations", cfg.Auth.AutomationsAPIKey))

	automations.GET("", automationHandler.ListAutomations)
	automations.POST("", automationHandler.CreateAutomation)

	automations.POST("/templates/validate", automationHandler.ValidateTemplate)
	automations.POST("/templates/preview", automationHandler.PreviewTemplate)
	automations.GET("/templates/variables", automationHandler.ListVariables)
	automations.POST("/test-send", automationHandler.TestSend)
	automations.GET("/dispatches/cached", automationHandler.GetCachedDispatches)

	automations.GET("/:id", automationHandler.GetAutomation)
	automations.PATCH("/:id/active", automationHandler.SetAutomationActive)
	automations.DELETE("/:id", automationHandler.DeleteAutomation)
}
