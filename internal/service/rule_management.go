package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/onurcolak/event-automation-service/internal/domain"
	"github.com/onurcolak/event-automation-service/internal/repository"
	"github.com/onurcolak/event-automation-service/internal/template"
)

// TemplateError rejects a rule whose message uses unknown variables.
type TemplateError struct {
	Result template.ValidationResult
}

func (e *TemplateError) Error() string {
	return "invalid message template: " + strings.Join(e.Result.Errors, "; ")
}

type CreateAutomationInput struct {
	Name              string
	Active            *bool
	TriggerEvent      domain.TriggerEvent
	TriggerConditions domain.TriggerConditions
	ActionType        domain.ActionType
	ActionConfig      domain.ActionConfig
}

func (s *AutomationService) CreateAutomation(ctx context.Context, in CreateAutomationInput) (*domain.AutomationRule, error) {
	if !in.TriggerEvent.Valid() {
		return nil, fmt.Errorf("unknown trigger event %q", in.TriggerEvent)
	}

	if res := s.renderer.Validate(in.ActionConfig.Message); !res.Valid {
		return nil, &TemplateError{Result: res}
	}

	rule := domain.AutomationRule{
		Name:              strings.TrimSpace(in.Name),
		Active:            true,
		TriggerEvent:      in.TriggerEvent,
		TriggerConditions: in.TriggerConditions,
		ActionType:        in.ActionType,
		ActionConfig:      in.ActionConfig,
	}
	if in.Active != nil {
		rule.Active = *in.Active
	}
	if rule.ActionType == "" {
		rule.ActionType = domain.ActionSendWhatsApp
	}

	return s.repo.Create(ctx, rule)
}

func (s *AutomationService) GetAutomation(ctx context.Context, id string) (*domain.AutomationRule, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *AutomationService) ListAutomations(
	ctx context.Context,
	filter repository.ListFilter,
	page, pageSize int,
) ([]domain.AutomationRule, int64, error) {
	return s.repo.List(ctx, filter, page, pageSize)
}

func (s *AutomationService) SetAutomationActive(ctx context.Context, id string, active bool) (*domain.AutomationRule, error) {
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

func (s *AutomationService) DeleteAutomation(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

func (s *AutomationService) ValidateTemplate(tmpl string) template.ValidationResult {
	return s.renderer.Validate(tmpl)
}

func (s *AutomationService) PreviewTemplate(tmpl string) string {
	return s.renderer.Preview(tmpl)
}

func (s *AutomationService) Variables() []template.Variable {
	return s.renderer.Vocabulary().Variables()
}

type TestSendInput struct {
	Message  string
	Phone    string
	Context  map[string]any
	TestMode bool
}

type TestSendResult struct {
	Rendered  string                `json:"rendered"`
	Phone     string                `json:"phone"`
	Status    domain.DispatchStatus `json:"status"`
	MessageID string                `json:"messageId,omitempty"`
	Detail    string                `json:"detail"`
}

// TestSend renders a template and dispatches it outside any rule, so usage
// counters are never touched. A nil Context renders with the preview sample.
func (s *AutomationService) TestSend(ctx context.Context, in TestSendInput) TestSendResult {
	data := in.Context
	if data == nil {
		data = s.renderer.Vocabulary().Sample()
	}

	rendered := s.renderer.Substitute(in.Message, data)
	out := s.dispatcher.Dispatch(ctx, in.Phone, rendered, in.TestMode)

	return TestSendResult{
		Rendered:  rendered,
		Phone:     out.Phone,
		Status:    out.Status,
		MessageID: out.MessageID,
		Detail:    out.Detail,
	}
}
