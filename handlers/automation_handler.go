package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/onurcolak/event-automation-service/internal/domain"
	"github.com/onurcolak/event-automation-service/internal/repository"
	"github.com/onurcolak/event-automation-service/internal/service"
	"github.com/onurcolak/event-automation-service/internal/template"
	"github.com/onurcolak/event-automation-service/pkg/response"
	"github.com/onurcolak/event-automation-service/pkg/validator"
)

type automationManager interface {
	CreateAutomation(ctx context.Context, in service.CreateAutomationInput) (*domain.AutomationRule, error)
	GetAutomation(ctx context.Context, id string) (*domain.AutomationRule, error)
	ListAutomations(ctx context.Context, filter repository.ListFilter, page, pageSize int) ([]domain.AutomationRule, int64, error)
	SetAutomationActive(ctx context.Context, id string, active bool) (*domain.AutomationRule, error)
	DeleteAutomation(ctx context.Context, id string) error

	ValidateTemplate(tmpl string) template.ValidationResult
	PreviewTemplate(tmpl string) string
	Variables() []template.Variable

	TestSend(ctx context.Context, in service.TestSendInput) service.TestSendResult
	GetCachedDispatches(ctx context.Context) (map[string]*domain.CachedDispatch, error)
}

type AutomationHandler struct {
	service automationManager
}

func NewAutomationHandler(service automationManager) *AutomationHandler {
	return &AutomationHandler{service: service}
}

type ActionConfigRequest struct {
	Message      string `json:"message" validate:"required,max=4096"`
	PhoneSource  string `json:"phoneSource" validate:"max=100"`
	DelaySeconds int    `json:"delaySeconds" validate:"gte=0"`
	MaxRetries   int    `json:"maxRetries" validate:"gte=0"`
	TestMode     bool   `json:"testMode"`
}

type CreateAutomationRequest struct {
	Name              string                   `json:"name" validate:"required,max=255"`
	Active            *bool                    `json:"active"`
	TriggerEvent      string                   `json:"triggerEvent" validate:"required,trigger_event"`
	TriggerConditions domain.TriggerConditions `json:"triggerConditions"`
	ActionType        string                   `json:"actionType" validate:"omitempty,oneof=send_whatsapp"`
	ActionConfig      ActionConfigRequest      `json:"actionConfig"`
}

type SetActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

type TemplateRequest struct {
	Message string `json:"message" validate:"required"`
}

type PreviewResponse struct {
	Preview string `json:"preview"`
}

type TestSendRequest struct {
	Message  string         `json:"message" validate:"required,max=4096"`
	Phone    string         `json:"phone" validate:"required"`
	Context  map[string]any `json:"context"`
	TestMode *bool          `json:"testMode"`
}

// CreateAutomation godoc
// @Summary Create an automation
// @Description Creates a rule after checking its trigger event and message template
// @Tags automations
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key for automations"
// @Param automation body CreateAutomationRequest true "Automation"
// @Success 201 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 422 {object} validator.ValidationErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/automations [post]
func (h *AutomationHandler) CreateAutomation(c echo.Context) error {
	var req CreateAutomationRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	rule, err := h.service.CreateAutomation(c.Request().Context(), service.CreateAutomationInput{
		Name:              req.Name,
		Active:            req.Active,
		TriggerEvent:      domain.TriggerEvent(req.TriggerEvent),
		TriggerConditions: req.TriggerConditions,
		ActionType:        domain.ActionType(req.ActionType),
		ActionConfig: domain.ActionConfig{
			Message:      req.ActionConfig.Message,
			PhoneSource:  req.ActionConfig.PhoneSource,
			DelaySeconds: req.ActionConfig.DelaySeconds,
			MaxRetries:   req.ActionConfig.MaxRetries,
			TestMode:     req.ActionConfig.TestMode,
		},
	})
	if err != nil {
		var tplErr *service.TemplateError
		if errors.As(err, &tplErr) {
			return c.JSON(http.StatusUnprocessableEntity, validator.ValidationErrorResponse{
				Success: false,
				Error:   "Invalid message template",
				Details: map[string]string{
					"message": strings.Join(tplErr.Result.Errors, "; "),
				},
			})
		}
		return response.InternalServerError(c, err)
	}

	return response.Created(c, "Automation created", rule)
}

// ListAutomations godoc
// @Summary List automations
// @Description Paginated list of rules with optional active and trigger filters
// @Tags automations
// @Produce json
// @Param x-api-key header string true "API key for automations"
// @Param page query int false "Page number (default: 1)"
// @Param pageSize query int false "Page size (default: 20, max: 100)"
// @Param active query bool false "Filter by active flag"
// @Param trigger query string false "Filter by trigger event"
// @Success 200 {object} response.PaginatedResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/automations [get]
func (h *AutomationHandler) ListAutomations(c echo.Context) error {
	page, pageSize, err := parsePaginationParams(c)
	if err != nil {
		return response.BadRequest(c, err)
	}

	filter, err := parseListFilter(c)
	if err != nil {
		return response.BadRequest(c, err)
	}

	rules, total, err := h.service.ListAutomations(c.Request().Context(), filter, page, pageSize)
	if err != nil {
		return response.InternalServerError(c, err)
	}

	return response.Paginated(c, rules, page, pageSize, total)
}

// GetAutomation godoc
// @Summary Get an automation
// @Tags automations
// @Produce json
// @Param x-api-key header string true "API key for automations"
// @Param id path string true "Automation ID"
// @Success 200 {object} response.SuccessResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/automations/{id} [get]
func (h *AutomationHandler) GetAutomation(c echo.Context) error {
	rule, err := h.service.GetAutomation(c.Request().Context(), c.Param("id"))
	if err != nil {
		return automationError(c, err)
	}

	return response.Ok(c, rule)
}

// SetAutomationActive godoc
// @Summary Activate or deactivate an automation
// @Tags automations
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key for automations"
// @Param id path string true "Automation ID"
// @Param body body SetActiveRequest true "Active flag"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 422 {object} validator.ValidationErrorResponse
// @Router /api/v1/automations/{id}/active [patch]
func (h *AutomationHandler) SetAutomationActive(c echo.Context) error {
	var req SetActiveRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	rule, err := h.service.SetAutomationActive(c.Request().Context(), c.Param("id"), *req.Active)
	if err != nil {
		return automationError(c, err)
	}

	message := "Automation deactivated"
	if rule.Active {
		message = "Automation activated"
	}

	return response.OkWithMessage(c, message, rule)
}

// DeleteAutomation godoc
// @Summary Delete an automation
// @Tags automations
// @Param x-api-key header string true "API key for automations"
// @Param id path string true "Automation ID"
// @Success 204
// @Failure 404 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/automations/{id} [delete]
func (h *AutomationHandler) DeleteAutomation(c echo.Context) error {
	if err := h.service.DeleteAutomation(c.Request().Context(), c.Param("id")); err != nil {
		return automationError(c, err)
	}

	return response.NoContent(c)
}

// ValidateTemplate godoc
// @Summary Validate a message template
// @Description Reports unknown variables and every variable found in the template
// @Tags templates
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key for automations"
// @Param body body TemplateRequest true "Template"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Router /api/v1/automations/templates/validate [post]
func (h *AutomationHandler) ValidateTemplate(c echo.Context) error {
	var req TemplateRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	return response.Ok(c, h.service.ValidateTemplate(req.Message))
}

// PreviewTemplate godoc
// @Summary Preview a message template
// @Description Renders the template against the built-in sample context
// @Tags templates
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key for automations"
// @Param body body TemplateRequest true "Template"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Router /api/v1/automations/templates/preview [post]
func (h *AutomationHandler) PreviewTemplate(c echo.Context) error {
	var req TemplateRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	return response.Ok(c, PreviewResponse{Preview: h.service.PreviewTemplate(req.Message)})
}

// ListVariables godoc
// @Summary List template variables
// @Tags templates
// @Produce json
// @Param x-api-key header string true "API key for automations"
// @Success 200 {object} response.SuccessResponse
// @Router /api/v1/automations/templates/variables [get]
func (h *AutomationHandler) ListVariables(c echo.Context) error {
	return response.Ok(c, h.service.Variables())
}

// TestSend godoc
// @Summary Send a rendered template outside any automation
// @Description Test mode is the default; pass testMode=false for a real gateway send. Usage counters are never updated.
// @Tags automations
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key for automations"
// @Param body body TestSendRequest true "Message, destination and optional context"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 422 {object} validator.ValidationErrorResponse
// @Failure 502 {object} response.ErrorResponse
// @Router /api/v1/automations/test-send [post]
func (h *AutomationHandler) TestSend(c echo.Context) error {
	var req TestSendRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	testMode := true
	if req.TestMode != nil {
		testMode = *req.TestMode
	}

	result := h.service.TestSend(c.Request().Context(), service.TestSendInput{
		Message:  req.Message,
		Phone:    req.Phone,
		Context:  req.Context,
		TestMode: testMode,
	})

	if result.Status == domain.DispatchError {
		return c.JSON(http.StatusBadGateway, response.ErrorResponse{
			Success: false,
			Error:   result.Detail,
		})
	}

	return response.Ok(c, result)
}

// GetCachedDispatches godoc
// @Summary Get recently cached dispatch results
// @Description Latest dispatch result per automation from the valkey cache
// @Tags automations
// @Produce json
// @Param x-api-key header string true "API key for automations"
// @Success 200 {object} response.SuccessResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/automations/dispatches/cached [get]
func (h *AutomationHandler) GetCachedDispatches(c echo.Context) error {
	cached, err := h.service.GetCachedDispatches(c.Request().Context())
	if err != nil {
		return response.InternalServerError(c, err)
	}

	return response.Ok(c, cached)
}

func automationError(c echo.Context, err error) error {
	if errors.Is(err, repository.ErrAutomationNotFound) {
		return response.NotFound(c, err.Error())
	}
	return response.InternalServerError(c, err)
}

func parseListFilter(c echo.Context) (repository.ListFilter, error) {
	var filter repository.ListFilter

	if activeStr := c.QueryParam("active"); activeStr != "" {
		active, err := strconv.ParseBool(activeStr)
		if err != nil {
			return filter, fmt.Errorf("active must be true or false")
		}
		filter.Active = &active
	}

	if triggerStr := c.QueryParam("trigger"); triggerStr != "" {
		trigger := domain.TriggerEvent(triggerStr)
		if !trigger.Valid() {
			return filter, fmt.Errorf("unknown trigger event %q", triggerStr)
		}
		filter.Trigger = &trigger
	}

	return filter, nil
}

func parsePaginationParams(c echo.Context) (int, int, error) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)

	page := defaultPage
	if pageStr := c.QueryParam("page"); pageStr != "" {
		p, err := strconv.Atoi(pageStr)
		if err != nil || p <= 0 {
			return 0, 0, fmt.Errorf("page must be a positive integer")
		}
		page = p
	}

	pageSize := defaultPageSize
	if pageSizeStr := c.QueryParam("pageSize"); pageSizeStr != "" {
		ps, err := strconv.Atoi(pageSizeStr)
		if err != nil || ps <= 0 || ps > maxPageSize {
			return 0, 0, fmt.Errorf("pageSize must be between 1 and %d", maxPageSize)
		}
		pageSize = ps
	}

	return page, pageSize, nil
}
