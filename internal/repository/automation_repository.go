package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/onurcolak/event-automation-service/internal/domain"
)

var ErrAutomationNotFound = errors.New("automation not found")

const automationColumns = `id, name, active, trigger_event, trigger_conditions, action_type, action_config,
		trigger_count, last_triggered_at, created_at, updated_at`

// AutomationRepository handles database operations for automation rules and
// the event rows rules are enriched from.
type AutomationRepository struct {
	db *sqlx.DB
}

func NewAutomationRepository(db *sqlx.DB) *AutomationRepository {
	return &AutomationRepository{db: db}
}

// ListFilter narrows List. Nil fields are not filtered on.
type ListFilter struct {
	Active  *bool
	Trigger *domain.TriggerEvent
}

func (r *AutomationRepository) ListActiveByTrigger(
	ctx context.Context,
	trigger domain.TriggerEvent,
) ([]domain.AutomationRule, error) {
	query := `
		SELECT ` + automationColumns + `
		FROM automation_rules
		WHERE active = TRUE AND trigger_event = ?
		ORDER BY created_at ASC
	`

	rules := []domain.AutomationRule{}
	if err := r.db.SelectContext(ctx, &rules, query, trigger); err != nil {
		return nil, fmt.Errorf("failed to get active automations: %w", err)
	}

	return rules, nil
}

// RecordTrigger bumps the usage counter in a single statement so concurrent
// invocations never lose an increment.
func (r *AutomationRepository) RecordTrigger(ctx context.Context, id string, triggeredAt time.Time) error {
	query := `
		UPDATE automation_rules
		SET trigger_count = trigger_count + 1, last_triggered_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query, triggeredAt, id)
	if err != nil {
		return fmt.Errorf("failed to record automation trigger: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrAutomationNotFound, id)
	}

	return nil
}

// GetEventByID returns nil without error when the event does not exist.
func (r *AutomationRepository) GetEventByID(ctx context.Context, id string) (*domain.Event, error) {
	query := `
		SELECT id, name, client_name, client_phone, client_email, date, location, status
		FROM events
		WHERE id = ?
	`

	var event domain.Event
	if err := r.db.GetContext(ctx, &event, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	return &event, nil
}

func (r *AutomationRepository) GetByID(ctx context.Context, id string) (*domain.AutomationRule, error) {
	query := `
		SELECT ` + automationColumns + `
		FROM automation_rules
		WHERE id = ?
	`

	var rule domain.AutomationRule
	if err := r.db.GetContext(ctx, &rule, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAutomationNotFound
		}
		return nil, fmt.Errorf("failed to get automation: %w", err)
	}

	return &rule, nil
}

func (r *AutomationRepository) Create(ctx context.Context, rule domain.AutomationRule) (*domain.AutomationRule, error) {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}

	query := `
		INSERT INTO automation_rules
			(id, name, active, trigger_event, trigger_conditions, action_type, action_config,
			 trigger_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`

	_, err := r.db.ExecContext(ctx, query,
		rule.ID, rule.Name, rule.Active, rule.TriggerEvent, rule.TriggerConditions,
		rule.ActionType, rule.ActionConfig,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create automation: %w", err)
	}

	return r.GetByID(ctx, rule.ID)
}

func (r *AutomationRepository) List(
	ctx context.Context,
	filter ListFilter,
	page, pageSize int,
) ([]domain.AutomationRule, int64, error) {
	offset := (page - 1) * pageSize

	var conditions []string
	var args []any

	if filter.Active != nil {
		conditions = append(conditions, "active = ?")
		args = append(args, *filter.Active)
	}
	if filter.Trigger != nil {
		conditions = append(conditions, "trigger_event = ?")
		args = append(args, *filter.Trigger)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var totalCount int64
	countQuery := "SELECT COUNT(*) FROM automation_rules " + where
	if err := r.db.GetContext(ctx, &totalCount, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count automations: %w", err)
	}

	query := `
		SELECT ` + automationColumns + `
		FROM automation_rules
		` + where + `
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`

	rules := []domain.AutomationRule{}
	if err := r.db.SelectContext(ctx, &rules, query, append(args, pageSize, offset)...); err != nil {
		return nil, 0, fmt.Errorf("failed to get automations: %w", err)
	}

	return rules, totalCount, nil
}

func (r *AutomationRepository) SetActive(ctx context.Context, id string, active bool) error {
	query := `
		UPDATE automation_rules
		SET active = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query, active, id)
	if err != nil {
		return fmt.Errorf("failed to update automation: %w", err)
	}

	// MySQL reports 0 affected rows when the value did not change, so only
	// a missing row is an error.
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
	}

	return nil
}

func (r *AutomationRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM automation_rules WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete automation: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return ErrAutomationNotFound
	}

	return nil
}
