package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// TriggerEvent is the canonical identifier a rule subscribes to.
type TriggerEvent string

const (
	TriggerChecklistEntrada TriggerEvent = "checklist_entrada"
	TriggerChecklistSaida   TriggerEvent = "checklist_saida"
	TriggerEventCreated     TriggerEvent = "event_created"

	// Accepted on rules but never produced by the matcher yet.
	TriggerStatusChanged TriggerEvent = "status_changed"
	TriggerEventUpdated  TriggerEvent = "event_updated"
)

// TriggerEvents lists every value a rule may be stored with.
var TriggerEvents = []TriggerEvent{
	TriggerChecklistEntrada,
	TriggerChecklistSaida,
	TriggerEventCreated,
	TriggerStatusChanged,
	TriggerEventUpdated,
}

func (t TriggerEvent) Valid() bool {
	for _, known := range TriggerEvents {
		if t == known {
			return true
		}
	}
	return false
}

type ActionType string

const (
	ActionSendWhatsApp ActionType = "send_whatsapp"
)

// ActionConfig is stored as a JSON column.
//
// DelaySeconds and MaxRetries are reserved: they are persisted and returned
// by the API, but the engine sends at most once, immediately.
type ActionConfig struct {
	Message      string `json:"message"`
	PhoneSource  string `json:"phoneSource,omitempty"`
	DelaySeconds int    `json:"delaySeconds,omitempty"`
	MaxRetries   int    `json:"maxRetries,omitempty"`
	TestMode     bool   `json:"testMode"`
}

func (c ActionConfig) Value() (driver.Value, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal action config: %w", err)
	}
	return string(b), nil
}

func (c *ActionConfig) Scan(src any) error {
	return scanJSON(src, c)
}

// TriggerConditions is a reserved key/value filter. It is stored but not
// evaluated by the matcher.
type TriggerConditions map[string]any

func (tc TriggerConditions) Value() (driver.Value, error) {
	if tc == nil {
		return nil, nil
	}
	b, err := json.Marshal(tc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal trigger conditions: %w", err)
	}
	return string(b), nil
}

func (tc *TriggerConditions) Scan(src any) error {
	return scanJSON(src, tc)
}

func scanJSON(src any, dst any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dst)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported JSON column type %T", src)
	}
}

type AutomationRule struct {
	ID                string            `db:"id" json:"id"`
	Name              string            `db:"name" json:"name"`
	Active            bool              `db:"active" json:"active"`
	TriggerEvent      TriggerEvent      `db:"trigger_event" json:"triggerEvent"`
	TriggerConditions TriggerConditions `db:"trigger_conditions" json:"triggerConditions,omitempty"`
	ActionType        ActionType        `db:"action_type" json:"actionType"`
	ActionConfig      ActionConfig      `db:"action_config" json:"actionConfig"`
	TriggerCount      int64             `db:"trigger_count" json:"triggerCount"`
	LastTriggeredAt   *time.Time        `db:"last_triggered_at" json:"lastTriggeredAt,omitempty"`
	CreatedAt         time.Time         `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time         `db:"updated_at" json:"updatedAt"`
}

// Event is the parent entity checklists point at.
type Event struct {
	ID          string     `db:"id" json:"id"`
	Name        *string    `db:"name" json:"name,omitempty"`
	ClientName  *string    `db:"client_name" json:"clientName,omitempty"`
	ClientPhone *string    `db:"client_phone" json:"clientPhone,omitempty"`
	ClientEmail *string    `db:"client_email" json:"clientEmail,omitempty"`
	Date        *time.Time `db:"date" json:"date,omitempty"`
	Location    *string    `db:"location" json:"location,omitempty"`
	Status      string     `db:"status" json:"status"`
}

type MutationType string

const (
	MutationCreated MutationType = "created"
	MutationUpdated MutationType = "updated"
	MutationDeleted MutationType = "deleted"
)

// Record is a flat row as delivered by the change-capture webhook.
type Record map[string]any

// String renders a record value for templates and lookups. Missing keys,
// nil and non-scalar values yield "".
func (r Record) String(key string) string {
	s, _ := ScalarString(r[key])
	return s
}

// ScalarString reports the textual form of string and numeric values.
func ScalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case int:
		return strconv.Itoa(t), true
	case int32:
		return strconv.FormatInt(int64(t), 10), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case uint:
		return strconv.FormatUint(uint64(t), 10), true
	case uint32:
		return strconv.FormatUint(uint64(t), 10), true
	case uint64:
		return strconv.FormatUint(t, 10), true
	case json.Number:
		return t.String(), true
	default:
		return "", false
	}
}

// Clone returns a shallow copy so enrichment never mutates the payload.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// TriggerPayload is the engine input for one data mutation.
type TriggerPayload struct {
	EntityType    string
	MutationType  MutationType
	Record        Record
	PriorRecord   Record
	EventTypeHint string
}

// WebhookPayload is the wire shape posted by the change-capture webhook.
type WebhookPayload struct {
	Type      string `json:"type" validate:"required,mutation_type"`
	Schema    string `json:"schema"`
	Table     string `json:"table" validate:"required"`
	Record    Record `json:"record"`
	OldRecord Record `json:"old_record"`
	EventType string `json:"event_type"`
}

var mutationTypes = map[string]MutationType{
	"INSERT": MutationCreated,
	"UPDATE": MutationUpdated,
	"DELETE": MutationDeleted,
}

// ParseMutationType maps INSERT/UPDATE/DELETE onto a MutationType.
func ParseMutationType(s string) (MutationType, bool) {
	m, ok := mutationTypes[s]
	return m, ok
}

func (p WebhookPayload) ToTriggerPayload() (TriggerPayload, error) {
	mutation, ok := ParseMutationType(p.Type)
	if !ok {
		return TriggerPayload{}, fmt.Errorf("unsupported mutation type %q", p.Type)
	}

	return TriggerPayload{
		EntityType:    p.Table,
		MutationType:  mutation,
		Record:        p.Record,
		PriorRecord:   p.OldRecord,
		EventTypeHint: p.EventType,
	}, nil
}

type DispatchStatus string

const (
	DispatchSuccess DispatchStatus = "success"
	DispatchTest    DispatchStatus = "test"
	DispatchError   DispatchStatus = "error"
)

// DispatchResult is the per-rule outcome of one invocation. Message carries
// the detail for success/test, Reason for errors.
type DispatchResult struct {
	AutomationID   string         `json:"automation_id"`
	AutomationName string         `json:"automation_name"`
	Status         DispatchStatus `json:"status"`
	MessageID      string         `json:"messageId,omitempty"`
	Message        string         `json:"message,omitempty"`
	Reason         string         `json:"reason,omitempty"`
}

// Informational outcomes that short-circuit an invocation.
const (
	OutcomeNoRecord              = "No record"
	OutcomeNoMatchingTrigger     = "No matching trigger"
	OutcomeNoMatchingAutomations = "No matching automations"
)

// TriggerOutcome is either an informational Message or the per-rule Results.
type TriggerOutcome struct {
	Trigger TriggerEvent
	Message string
	Results []DispatchResult
}

// ShortCircuited reports whether the invocation ended before dispatching.
func (o TriggerOutcome) ShortCircuited() bool {
	return o.Message != ""
}

// CachedDispatch is the last dispatch result kept for a rule.
type CachedDispatch struct {
	Result       DispatchResult `json:"result"`
	Trigger      TriggerEvent   `json:"trigger"`
	DispatchedAt time.Time      `json:"dispatchedAt"`
}
