package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onurcolak/event-automation-service/environments"
	"github.com/onurcolak/event-automation-service/internal/dispatcher"
	"github.com/onurcolak/event-automation-service/internal/domain"
	"github.com/onurcolak/event-automation-service/internal/repository"
	"github.com/onurcolak/event-automation-service/internal/template"
	"github.com/onurcolak/event-automation-service/pkg/gateway"
)

//
// Test fakes – only for this package.
//

type recordCall struct {
	id string
	at time.Time
}

type fakeRepo struct {
	rules   []domain.AutomationRule
	listErr error

	events       map[string]*domain.Event
	eventErr     error
	eventLookups int

	listedTriggers []domain.TriggerEvent
	recorded       []recordCall
	recordErr      error
	created        []domain.AutomationRule
}

func (r *fakeRepo) ListActiveByTrigger(ctx context.Context, trigger domain.TriggerEvent) ([]domain.AutomationRule, error) {
	r.listedTriggers = append(r.listedTriggers, trigger)
	if r.listErr != nil {
		return nil, r.listErr
	}

	var out []domain.AutomationRule
	for _, rule := range r.rules {
		if rule.Active && rule.TriggerEvent == trigger {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (r *fakeRepo) RecordTrigger(ctx context.Context, id string, triggeredAt time.Time) error {
	r.recorded = append(r.recorded, recordCall{id: id, at: triggeredAt})
	if r.recordErr != nil {
		return r.recordErr
	}
	for i := range r.rules {
		if r.rules[i].ID == id {
			r.rules[i].TriggerCount++
			at := triggeredAt
			r.rules[i].LastTriggeredAt = &at
		}
	}
	return nil
}

func (r *fakeRepo) GetEventByID(ctx context.Context, id string) (*domain.Event, error) {
	r.eventLookups++
	if r.eventErr != nil {
		return nil, r.eventErr
	}
	return r.events[id], nil
}

func (r *fakeRepo) Create(ctx context.Context, rule domain.AutomationRule) (*domain.AutomationRule, error) {
	rule.ID = "created-1"
	r.created = append(r.created, rule)
	return &rule, nil
}

func (r *fakeRepo) GetByID(ctx context.Context, id string) (*domain.AutomationRule, error) {
	for i := range r.rules {
		if r.rules[i].ID == id {
			return &r.rules[i], nil
		}
	}
	return nil, repository.ErrAutomationNotFound
}

func (r *fakeRepo) List(ctx context.Context, filter repository.ListFilter, page, pageSize int) ([]domain.AutomationRule, int64, error) {
	return r.rules, int64(len(r.rules)), nil
}

func (r *fakeRepo) SetActive(ctx context.Context, id string, active bool) error {
	for i := range r.rules {
		if r.rules[i].ID == id {
			r.rules[i].Active = active
			return nil
		}
	}
	return repository.ErrAutomationNotFound
}

func (r *fakeRepo) Delete(ctx context.Context, id string) error {
	return nil
}

type sentMessage struct {
	number string
	text   string
}

type fakeGateway struct {
	err  error
	sent []sentMessage
}

func (g *fakeGateway) SendText(ctx context.Context, number, text string) (*gateway.SendTextResponse, error) {
	g.sent = append(g.sent, sentMessage{number: number, text: text})
	if g.err != nil {
		return nil, g.err
	}
	return &gateway.SendTextResponse{MessageID: "wamid-1"}, nil
}

type fakeCache struct {
	entries map[string]*domain.CachedDispatch
	err     error
}

func (c *fakeCache) CacheDispatch(ctx context.Context, d domain.CachedDispatch) error {
	if c.err != nil {
		return c.err
	}
	if c.entries == nil {
		c.entries = make(map[string]*domain.CachedDispatch)
	}
	c.entries[d.Result.AutomationID] = &d
	return nil
}

func (c *fakeCache) GetAllCachedDispatches(ctx context.Context) (map[string]*domain.CachedDispatch, error) {
	return c.entries, nil
}

func newTestService(repo *fakeRepo, gw *fakeGateway, cache DispatchCache) *AutomationService {
	d := dispatcher.New(gw, environments.PhoneConfig{CountryCode: "55", DefaultAreaCode: "11"})
	renderer := template.NewRenderer(template.DefaultVocabulary(template.DefaultDateLayout))
	return NewAutomationService(repo, d, renderer, cache)
}

func strPtr(s string) *string { return &s }

func checklistPayload(hint string) domain.TriggerPayload {
	return domain.TriggerPayload{
		EntityType:    "checklists",
		MutationType:  domain.MutationUpdated,
		EventTypeHint: hint,
		Record: domain.Record{
			"event_id": "evt-1",
			"type":     "entrada",
			"status":   "completed",
		},
	}
}

func parentEvent() *domain.Event {
	date := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return &domain.Event{
		ID:          "evt-1",
		Name:        strPtr("Casamento Silva"),
		ClientName:  strPtr("João Silva"),
		ClientPhone: strPtr("11988887777"),
		ClientEmail: strPtr("joao@exemplo.com"),
		Date:        &date,
		Location:    strPtr("Salão X"),
	}
}

//
// Tests
//

func TestProcessTrigger_EndToEndChecklistEntrada(t *testing.T) {
	ctx := context.Background()
	start := time.Now()

	repo := &fakeRepo{
		rules: []domain.AutomationRule{{
			ID:           "rule-1",
			Name:         "Entrada",
			Active:       true,
			TriggerEvent: domain.TriggerChecklistEntrada,
			ActionType:   domain.ActionSendWhatsApp,
			ActionConfig: domain.ActionConfig{Message: "Olá {cliente}, confirmamos a entrada em {data} no {local}."},
		}},
		events: map[string]*domain.Event{"evt-1": parentEvent()},
	}
	gw := &fakeGateway{}
	cache := &fakeCache{}
	svc := newTestService(repo, gw, cache)

	outcome, err := svc.ProcessTrigger(ctx, checklistPayload("entrada"))
	require.NoError(t, err)

	assert.False(t, outcome.ShortCircuited())
	assert.Equal(t, domain.TriggerChecklistEntrada, outcome.Trigger)
	require.Len(t, outcome.Results, 1)

	res := outcome.Results[0]
	assert.Equal(t, domain.DispatchSuccess, res.Status)
	assert.Equal(t, "rule-1", res.AutomationID)
	assert.Equal(t, "Entrada", res.AutomationName)
	assert.Equal(t, "wamid-1", res.MessageID)

	require.Len(t, gw.sent, 1)
	assert.Equal(t, "5511988887777", gw.sent[0].number)
	assert.Equal(t, "Olá João Silva, confirmamos a entrada em 01/03/2026 no Salão X.", gw.sent[0].text)

	require.Len(t, repo.recorded, 1)
	assert.Equal(t, int64(1), repo.rules[0].TriggerCount)
	assert.False(t, repo.recorded[0].at.Before(start))

	require.Contains(t, cache.entries, "rule-1")
	assert.Equal(t, domain.DispatchSuccess, cache.entries["rule-1"].Result.Status)
}

func TestProcessTrigger_NoRecord(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(repo, &fakeGateway{}, nil)

	outcome, err := svc.ProcessTrigger(context.Background(), domain.TriggerPayload{
		EntityType:   "events",
		MutationType: domain.MutationCreated,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeNoRecord, outcome.Message)
	assert.Empty(t, repo.listedTriggers)
}

func TestProcessTrigger_NoMatchingTriggerIsNotAnError(t *testing.T) {
	repo := &fakeRepo{}
	gw := &fakeGateway{}
	svc := newTestService(repo, gw, nil)

	outcome, err := svc.ProcessTrigger(context.Background(), domain.TriggerPayload{
		EntityType:   "inventory_items",
		MutationType: domain.MutationUpdated,
		Record:       domain.Record{"id": "item-1"},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeNoMatchingTrigger, outcome.Message)
	assert.Empty(t, repo.listedTriggers)
	assert.Empty(t, gw.sent)
}

func TestProcessTrigger_NoMatchingAutomations(t *testing.T) {
	repo := &fakeRepo{
		rules: []domain.AutomationRule{
			{ID: "inactive", Active: false, TriggerEvent: domain.TriggerEventCreated, ActionConfig: domain.ActionConfig{Message: "x"}},
			{ID: "other", Active: true, TriggerEvent: domain.TriggerChecklistSaida, ActionConfig: domain.ActionConfig{Message: "x"}},
		},
	}
	gw := &fakeGateway{}
	svc := newTestService(repo, gw, nil)

	outcome, err := svc.ProcessTrigger(context.Background(), domain.TriggerPayload{
		EntityType:   "events",
		MutationType: domain.MutationCreated,
		Record:       domain.Record{"id": "evt-2", "client_phone": "11999990000"},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeNoMatchingAutomations, outcome.Message)
	assert.Equal(t, []domain.TriggerEvent{domain.TriggerEventCreated}, repo.listedTriggers)
	assert.Empty(t, gw.sent)
	assert.Zero(t, repo.eventLookups, "enrichment only runs when rules matched")
}

func TestProcessTrigger_RuleStoreFailureIsFatal(t *testing.T) {
	repo := &fakeRepo{listErr: errors.New("connection refused")}
	svc := newTestService(repo, &fakeGateway{}, nil)

	_, err := svc.ProcessTrigger(context.Background(), checklistPayload("entrada"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestProcessTrigger_PerRuleFailuresAreIsolated(t *testing.T) {
	repo := &fakeRepo{
		rules: []domain.AutomationRule{
			{
				ID: "a", Name: "Sem telefone", Active: true, TriggerEvent: domain.TriggerEventCreated,
				ActionConfig: domain.ActionConfig{Message: "Olá {cliente}"},
			},
			{
				ID: "b", Name: "Sem mensagem", Active: true, TriggerEvent: domain.TriggerEventCreated,
				ActionConfig: domain.ActionConfig{Message: "  "},
			},
		},
	}
	gw := &fakeGateway{}
	svc := newTestService(repo, gw, nil)

	outcome, err := svc.ProcessTrigger(context.Background(), domain.TriggerPayload{
		EntityType:   "events",
		MutationType: domain.MutationCreated,
		Record:       domain.Record{"id": "evt-3", "client_name": "Ana"},
	})
	require.NoError(t, err)
	require.Len(t, outcome.Results, 2)

	assert.Equal(t, domain.DispatchError, outcome.Results[0].Status)
	assert.Equal(t, reasonNoPhone, outcome.Results[0].Reason)
	assert.Equal(t, domain.DispatchError, outcome.Results[1].Status)
	assert.Equal(t, reasonNoTemplate, outcome.Results[1].Reason)
	assert.Empty(t, gw.sent)
	assert.Empty(t, repo.recorded)
}

func TestProcessTrigger_OneRuleFailsOtherStillDispatches(t *testing.T) {
	repo := &fakeRepo{
		rules: []domain.AutomationRule{
			{
				ID: "a", Name: "A", Active: true, TriggerEvent: domain.TriggerEventCreated,
				ActionType: "send_email", ActionConfig: domain.ActionConfig{Message: "Olá"},
			},
			{
				ID: "b", Name: "B", Active: true, TriggerEvent: domain.TriggerEventCreated,
				ActionConfig: domain.ActionConfig{Message: "Olá {cliente}", TestMode: true},
			},
		},
	}
	gw := &fakeGateway{}
	svc := newTestService(repo, gw, nil)

	outcome, err := svc.ProcessTrigger(context.Background(), domain.TriggerPayload{
		EntityType:   "events",
		MutationType: domain.MutationCreated,
		Record:       domain.Record{"id": "evt-4", "client_name": "Ana", "client_phone": "11999990000"},
	})
	require.NoError(t, err)
	require.Len(t, outcome.Results, 2)

	assert.Equal(t, domain.DispatchError, outcome.Results[0].Status)
	assert.Equal(t, reasonUnsupportedAction, outcome.Results[0].Reason)
	assert.Equal(t, domain.DispatchTest, outcome.Results[1].Status)
	assert.Contains(t, outcome.Results[1].Message, "Olá Ana")
}

func TestProcessTrigger_MissingPhoneIsolatedFromRuleWithPhone(t *testing.T) {
	repo := &fakeRepo{
		rules: []domain.AutomationRule{
			{
				ID: "a", Name: "A", Active: true, TriggerEvent: domain.TriggerChecklistSaida,
				ActionConfig: domain.ActionConfig{Message: "Saída concluída"},
			},
			{
				ID: "b", Name: "B", Active: true, TriggerEvent: domain.TriggerChecklistSaida,
				ActionConfig: domain.ActionConfig{Message: "Saída concluída", TestMode: true},
			},
		},
	}
	gw := &fakeGateway{}
	svc := newTestService(repo, gw, nil)

	// First invocation: no phone anywhere, both rules fail independently.
	noPhone := domain.TriggerPayload{
		EntityType: "checklists", MutationType: domain.MutationUpdated, EventTypeHint: "saida",
		Record: domain.Record{"type": "saida", "status": "completed"},
	}
	outcome, err := svc.ProcessTrigger(context.Background(), noPhone)
	require.NoError(t, err)
	require.Len(t, outcome.Results, 2)
	assert.Equal(t, domain.DispatchError, outcome.Results[0].Status)
	assert.Equal(t, domain.DispatchError, outcome.Results[1].Status)

	// Rule A is in live mode and the gateway rejects; rule B still runs.
	gw.err = &gateway.APIError{StatusCode: 400, Detail: "invalid number"}
	withPhone := noPhone
	withPhone.Record = domain.Record{"type": "saida", "status": "completed", "phone": "11999990000"}

	outcome, err = svc.ProcessTrigger(context.Background(), withPhone)
	require.NoError(t, err)
	require.Len(t, outcome.Results, 2)
	assert.Equal(t, domain.DispatchError, outcome.Results[0].Status)
	assert.Equal(t, "invalid number", outcome.Results[0].Reason)
	assert.Equal(t, domain.DispatchTest, outcome.Results[1].Status)
	assert.Empty(t, repo.recorded)
}

func TestProcessTrigger_TestModeDoesNotCountUsage(t *testing.T) {
	repo := &fakeRepo{
		rules: []domain.AutomationRule{{
			ID: "t", Name: "Teste", Active: true, TriggerEvent: domain.TriggerChecklistEntrada,
			ActionConfig: domain.ActionConfig{Message: "Olá {cliente}", TestMode: true},
		}},
		events: map[string]*domain.Event{"evt-1": parentEvent()},
	}
	gw := &fakeGateway{}
	svc := newTestService(repo, gw, nil)

	outcome, err := svc.ProcessTrigger(context.Background(), checklistPayload(""))
	require.NoError(t, err)
	require.Len(t, outcome.Results, 1)

	res := outcome.Results[0]
	assert.Equal(t, domain.DispatchTest, res.Status)
	assert.NotEmpty(t, res.MessageID)
	assert.Empty(t, gw.sent)
	assert.Empty(t, repo.recorded)
	assert.Zero(t, repo.rules[0].TriggerCount)
}

func TestProcessTrigger_BookkeepingFailureKeepsSuccess(t *testing.T) {
	repo := &fakeRepo{
		rules: []domain.AutomationRule{{
			ID: "r", Name: "R", Active: true, TriggerEvent: domain.TriggerEventCreated,
			ActionConfig: domain.ActionConfig{Message: "Olá"},
		}},
		recordErr: errors.New("deadlock"),
	}
	svc := newTestService(repo, &fakeGateway{}, &fakeCache{err: errors.New("cache down")})

	outcome, err := svc.ProcessTrigger(context.Background(), domain.TriggerPayload{
		EntityType: "events", MutationType: domain.MutationCreated,
		Record: domain.Record{"client_phone": "11999990000"},
	})
	require.NoError(t, err)
	require.Len(t, outcome.Results, 1)
	assert.Equal(t, domain.DispatchSuccess, outcome.Results[0].Status)
}

func TestEnrich(t *testing.T) {
	ctx := context.Background()

	t.Run("merges parent event fields", func(t *testing.T) {
		repo := &fakeRepo{events: map[string]*domain.Event{"evt-1": parentEvent()}}
		svc := newTestService(repo, &fakeGateway{}, nil)

		payload := checklistPayload("entrada")
		payload.Record["client_name"] = "Nome antigo"
		payload.Record["notes"] = "kept"

		data := svc.Enrich(ctx, payload)

		assert.Equal(t, "João Silva", data["client_name"])
		assert.Equal(t, "11988887777", data["client_phone"])
		assert.Equal(t, "2026-03-01", data["event_date"])
		assert.Equal(t, "Salão X", data["event_location"])
		assert.Equal(t, "joao@exemplo.com", data["client_email"])
		assert.Equal(t, "Casamento Silva", data["event_name"])
		assert.Equal(t, "kept", data["notes"])
		assert.Equal(t, "Nome antigo", payload.Record["client_name"], "payload must not be mutated")
	})

	t.Run("skips lookup when fields already present", func(t *testing.T) {
		repo := &fakeRepo{events: map[string]*domain.Event{"evt-1": parentEvent()}}
		svc := newTestService(repo, &fakeGateway{}, nil)

		payload := checklistPayload("entrada")
		payload.Record["client_name"] = "A"
		payload.Record["client_phone"] = "1"
		payload.Record["event_date"] = "2026-01-01"
		payload.Record["event_location"] = "B"

		data := svc.Enrich(ctx, payload)

		assert.Zero(t, repo.eventLookups)
		assert.Equal(t, "A", data["client_name"])
	})

	t.Run("lookup failure keeps record", func(t *testing.T) {
		repo := &fakeRepo{eventErr: errors.New("timeout")}
		svc := newTestService(repo, &fakeGateway{}, nil)

		data := svc.Enrich(ctx, checklistPayload("entrada"))

		assert.Equal(t, 1, repo.eventLookups)
		assert.Equal(t, "evt-1", data["event_id"])
		assert.NotContains(t, data, "client_phone")
	})

	t.Run("missing event keeps record", func(t *testing.T) {
		repo := &fakeRepo{events: map[string]*domain.Event{}}
		svc := newTestService(repo, &fakeGateway{}, nil)

		data := svc.Enrich(ctx, checklistPayload("entrada"))

		assert.NotContains(t, data, "client_name")
	})
}

func TestProcessTrigger_EnrichmentFailureBecomesPerRuleError(t *testing.T) {
	repo := &fakeRepo{
		rules: []domain.AutomationRule{{
			ID: "r", Name: "R", Active: true, TriggerEvent: domain.TriggerChecklistEntrada,
			ActionConfig: domain.ActionConfig{Message: "Olá {cliente}"},
		}},
		eventErr: errors.New("timeout"),
	}
	svc := newTestService(repo, &fakeGateway{}, nil)

	outcome, err := svc.ProcessTrigger(context.Background(), checklistPayload("entrada"))
	require.NoError(t, err)
	require.Len(t, outcome.Results, 1)
	assert.Equal(t, domain.DispatchError, outcome.Results[0].Status)
	assert.Equal(t, reasonNoPhone, outcome.Results[0].Reason)
}

func TestGetCachedDispatches_NoRedisConfigured(t *testing.T) {
	svc := newTestService(&fakeRepo{}, &fakeGateway{}, nil)

	cached, err := svc.GetCachedDispatches(context.Background())
	require.Error(t, err)
	assert.Equal(t, "redis client not configured", err.Error())
	assert.Nil(t, cached)
}
