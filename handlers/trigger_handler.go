package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/onurcolak/event-automation-service/internal/domain"
	"github.com/onurcolak/event-automation-service/pkg/logger"
	"github.com/onurcolak/event-automation-service/pkg/response"
)

type triggerProcessor interface {
	ProcessTrigger(ctx context.Context, payload domain.TriggerPayload) (domain.TriggerOutcome, error)
}

// TriggerHandler receives change-capture webhooks and runs them through the
// automation engine.
type TriggerHandler struct {
	service triggerProcessor
}

func NewTriggerHandler(service triggerProcessor) *TriggerHandler {
	return &TriggerHandler{service: service}
}

// HandleTrigger godoc
// @Summary Process a data mutation
// @Description Matches the mutation to a trigger event, runs every active automation for it and returns one result per automation. Short-circuits return a single {message} object.
// @Tags triggers
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key for triggers"
// @Param payload body domain.WebhookPayload true "Mutation payload"
// @Success 200 {array} domain.DispatchResult
// @Success 200 {object} response.InfoResponse
// @Failure 400 {object} response.FatalResponse
// @Failure 401 {object} response.ErrorResponse
// @Failure 500 {object} response.FatalResponse
// @Router /api/v1/triggers [post]
func (h *TriggerHandler) HandleTrigger(c echo.Context) error {
	var req domain.WebhookPayload
	if err := c.Bind(&req); err != nil {
		return response.Fatal(c, http.StatusBadRequest, "Invalid payload", err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Fatal(c, http.StatusBadRequest, "Invalid payload", err)
	}

	payload, err := req.ToTriggerPayload()
	if err != nil {
		return response.Fatal(c, http.StatusBadRequest, "Invalid payload", err)
	}

	outcome, err := h.service.ProcessTrigger(c.Request().Context(), payload)
	if err != nil {
		logger.Errorf("Trigger processing failed for table %s: %v", payload.EntityType, err)
		return response.Fatal(c, http.StatusInternalServerError, "Failed to process trigger", err)
	}

	if outcome.ShortCircuited() {
		return response.Info(c, outcome.Message)
	}

	results := outcome.Results
	if results == nil {
		results = []domain.DispatchResult{}
	}

	return c.JSON(http.StatusOK, results)
}
