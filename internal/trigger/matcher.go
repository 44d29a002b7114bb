// Package trigger maps data mutations onto canonical trigger events.
package trigger

import (
	"strings"

	"github.com/onurcolak/event-automation-service/internal/domain"
)

const (
	ChecklistsTable = "checklists"
	EventsTable     = "events"

	// StatusCompleted is the checklist status that fires checklist triggers.
	StatusCompleted = "completed"
)

var hintTriggers = map[string]domain.TriggerEvent{
	"entrada":       domain.TriggerChecklistEntrada,
	"inicial":       domain.TriggerChecklistEntrada,
	"saida":         domain.TriggerChecklistSaida,
	"event_created": domain.TriggerEventCreated,
}

var checklistTypeTriggers = map[string]domain.TriggerEvent{
	"entrada": domain.TriggerChecklistEntrada,
	"inicial": domain.TriggerChecklistEntrada,
	"saida":   domain.TriggerChecklistSaida,
}

// Match returns the trigger a payload represents. An explicit event type
// hint always wins over inference from the table and record; a hint that
// maps to nothing yields no trigger.
func Match(p domain.TriggerPayload) (domain.TriggerEvent, bool) {
	if hint := strings.TrimSpace(p.EventTypeHint); hint != "" {
		t, ok := hintTriggers[hint]
		return t, ok
	}

	switch {
	case p.EntityType == ChecklistsTable && p.Record.String("status") == StatusCompleted:
		t, ok := checklistTypeTriggers[p.Record.String("type")]
		return t, ok

	case p.EntityType == EventsTable && p.MutationType == domain.MutationCreated:
		return domain.TriggerEventCreated, true
	}

	return "", false
}
