package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/onurcolak/event-automation-service/internal/dispatcher"
	"github.com/onurcolak/event-automation-service/internal/domain"
	"github.com/onurcolak/event-automation-service/internal/repository"
	"github.com/onurcolak/event-automation-service/internal/template"
	"github.com/onurcolak/event-automation-service/internal/trigger"
	"github.com/onurcolak/event-automation-service/pkg/logger"
)

// Small internal interfaces so we can test without touching real DB/Redis/gateway.
type automationRepository interface {
	ListActiveByTrigger(ctx context.Context, trigger domain.TriggerEvent) ([]domain.AutomationRule, error)
	RecordTrigger(ctx context.Context, id string, triggeredAt time.Time) error
	GetEventByID(ctx context.Context, id string) (*domain.Event, error)

	Create(ctx context.Context, rule domain.AutomationRule) (*domain.AutomationRule, error)
	GetByID(ctx context.Context, id string) (*domain.AutomationRule, error)
	List(ctx context.Context, filter repository.ListFilter, page, pageSize int) ([]domain.AutomationRule, int64, error)
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error
}

type messageDispatcher interface {
	Dispatch(ctx context.Context, phone, message string, testMode bool) dispatcher.Outcome
}

// DispatchCache keeps the latest result per rule. It is optional.
type DispatchCache interface {
	CacheDispatch(ctx context.Context, dispatch domain.CachedDispatch) error
	GetAllCachedDispatches(ctx context.Context) (map[string]*domain.CachedDispatch, error)
}

// Context keys filled from the parent event. The first four always take the
// event's value when it has one; the others only fill gaps.
const (
	fieldEventID       = "event_id"
	fieldClientName    = "client_name"
	fieldClientPhone   = "client_phone"
	fieldClientEmail   = "client_email"
	fieldEventDate     = "event_date"
	fieldEventLocation = "event_location"
	fieldEventName     = "event_name"
)

var enrichedFields = []string{fieldClientName, fieldClientPhone, fieldEventDate, fieldEventLocation}

// phoneFields are tried in order when resolving the destination.
var phoneFields = []string{fieldClientPhone, "phone"}

const (
	reasonNoTemplate        = "Automation has no message configured"
	reasonNoPhone           = "No phone number available"
	reasonUnsupportedAction = "Unsupported action type"
)

type AutomationService struct {
	repo       automationRepository
	dispatcher messageDispatcher
	renderer   *template.Renderer
	cache      DispatchCache
	now        func() time.Time
}

func NewAutomationService(
	repo automationRepository,
	dispatcher messageDispatcher,
	renderer *template.Renderer,
	cache DispatchCache,
) *AutomationService {
	return &AutomationService{
		repo:       repo,
		dispatcher: dispatcher,
		renderer:   renderer,
		cache:      cache,
		now:        time.Now,
	}
}

// ProcessTrigger runs one payload through match, load, enrich, render,
// dispatch and bookkeeping. The returned error is fatal for the whole
// invocation; failures of a single rule are reported in its result.
func (s *AutomationService) ProcessTrigger(ctx context.Context, payload domain.TriggerPayload) (domain.TriggerOutcome, error) {
	log := logger.WithFields(logger.Fields{
		"table":      payload.EntityType,
		"mutation":   payload.MutationType,
		"event_type": payload.EventTypeHint,
	})

	if payload.Record == nil {
		log.Debug("Payload has no record")
		return domain.TriggerOutcome{Message: domain.OutcomeNoRecord}, nil
	}

	matched, ok := trigger.Match(payload)
	if !ok {
		log.Debug("No matching trigger")
		return domain.TriggerOutcome{Message: domain.OutcomeNoMatchingTrigger}, nil
	}

	log = log.WithField("trigger", matched)

	rules, err := s.repo.ListActiveByTrigger(ctx, matched)
	if err != nil {
		return domain.TriggerOutcome{}, fmt.Errorf("failed to load automations for %s: %w", matched, err)
	}

	if len(rules) == 0 {
		log.Info("No active automations for trigger")
		return domain.TriggerOutcome{Trigger: matched, Message: domain.OutcomeNoMatchingAutomations}, nil
	}

	log.Infof("Processing %d automations", len(rules))

	data := s.Enrich(ctx, payload)

	results := make([]domain.DispatchResult, 0, len(rules))
	for _, rule := range rules {
		result := s.processRule(ctx, rule, data)
		results = append(results, result)
		s.cacheResult(ctx, matched, result)
	}

	return domain.TriggerOutcome{Trigger: matched, Results: results}, nil
}

// Enrich copies the record and, for rows pointing at an event, merges the
// event fields templates rely on. Lookup failures leave the record as is.
func (s *AutomationService) Enrich(ctx context.Context, payload domain.TriggerPayload) domain.Record {
	data := payload.Record.Clone()

	eventID := data.String(fieldEventID)
	if eventID == "" || !missingAny(data, enrichedFields) {
		return data
	}

	event, err := s.repo.GetEventByID(ctx, eventID)
	if err != nil {
		logger.Warnf("Failed to load event %s for enrichment: %v", eventID, err)
		return data
	}
	if event == nil {
		logger.Warnf("Event %s not found for enrichment", eventID)
		return data
	}

	overwrite := func(key string, value *string) {
		if value != nil && *value != "" {
			data[key] = *value
		}
	}
	fill := func(key string, value *string) {
		if data.String(key) == "" && value != nil && *value != "" {
			data[key] = *value
		}
	}

	overwrite(fieldClientName, event.ClientName)
	overwrite(fieldClientPhone, event.ClientPhone)
	overwrite(fieldEventLocation, event.Location)
	if event.Date != nil {
		data[fieldEventDate] = event.Date.Format("2006-01-02")
	}

	fill(fieldClientEmail, event.ClientEmail)
	fill(fieldEventName, event.Name)

	return data
}

func missingAny(data domain.Record, keys []string) bool {
	for _, k := range keys {
		if data.String(k) == "" {
			return true
		}
	}
	return false
}

func resolvePhone(data domain.Record) string {
	for _, k := range phoneFields {
		if phone := strings.TrimSpace(data.String(k)); phone != "" {
			return phone
		}
	}
	return ""
}

func (s *AutomationService) processRule(ctx context.Context, rule domain.AutomationRule, data domain.Record) domain.DispatchResult {
	log := logger.WithFields(logger.Fields{
		"automation_id": rule.ID,
		"trigger":       rule.TriggerEvent,
	})

	result := domain.DispatchResult{
		AutomationID:   rule.ID,
		AutomationName: rule.Name,
	}

	cfg := rule.ActionConfig
	if cfg.DelaySeconds > 0 || cfg.MaxRetries > 0 || len(rule.TriggerConditions) > 0 {
		log.Debugf("Reserved settings ignored (delaySeconds=%d, maxRetries=%d, conditions=%d)",
			cfg.DelaySeconds, cfg.MaxRetries, len(rule.TriggerConditions))
	}

	if rule.ActionType != "" && rule.ActionType != domain.ActionSendWhatsApp {
		log.Warnf("Unsupported action type %q", rule.ActionType)
		return failed(result, reasonUnsupportedAction)
	}

	if strings.TrimSpace(cfg.Message) == "" {
		log.Warn("Automation has no message template")
		return failed(result, reasonNoTemplate)
	}

	phone := resolvePhone(data)
	if phone == "" {
		log.Warnf("No phone number in context (phoneSource=%q)", cfg.PhoneSource)
		return failed(result, reasonNoPhone)
	}

	message := s.renderer.Substitute(cfg.Message, data)
	out := s.dispatcher.Dispatch(ctx, phone, message, cfg.TestMode)

	result.Status = out.Status
	result.MessageID = out.MessageID

	switch out.Status {
	case domain.DispatchSuccess:
		result.Message = out.Detail
		if err := s.repo.RecordTrigger(ctx, rule.ID, s.now()); err != nil {
			log.Errorf("Failed to record trigger usage: %v", err)
		}
		log.Infof("Automation dispatched (messageId: %s)", out.MessageID)

	case domain.DispatchTest:
		result.Message = out.Detail
		log.Infof("Automation dispatched in test mode")

	default:
		result.Status = domain.DispatchError
		result.Reason = out.Detail
		log.Errorf("Automation dispatch failed: %s", out.Detail)
	}

	return result
}

func failed(result domain.DispatchResult, reason string) domain.DispatchResult {
	result.Status = domain.DispatchError
	result.Reason = reason
	return result
}

func (s *AutomationService) cacheResult(ctx context.Context, matched domain.TriggerEvent, result domain.DispatchResult) {
	if s.cache == nil {
		return
	}

	err := s.cache.CacheDispatch(ctx, domain.CachedDispatch{
		Result:       result,
		Trigger:      matched,
		DispatchedAt: s.now(),
	})
	if err != nil {
		logger.Warnf("Failed to cache dispatch for automation %s: %v", result.AutomationID, err)
	}
}

func (s *AutomationService) GetCachedDispatches(ctx context.Context) (map[string]*domain.CachedDispatch, error) {
	if s.cache == nil {
		return nil, fmt.Errorf("redis client not configured")
	}
	return s.cache.GetAllCachedDispatches(ctx)
}
