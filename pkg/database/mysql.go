package database

import (
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/onurcolak/event-automation-service/environments"
	"github.com/onurcolak/event-automation-service/pkg/logger"
)

func NewMySQLDB(cfg environments.DatabaseConfig) (*sqlx.DB, error) {
	dsn := fmt.Sprintf(
		"%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&collation=utf8mb4_unicode_ci",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName,
	)

	db, err := sqlx.Connect("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Infof("Connected to MySQL database")
	return db, nil
}

var migrations = []string{
	`
	CREATE TABLE IF NOT EXISTS automation_rules (
		id VARCHAR(36) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		trigger_event VARCHAR(50) NOT NULL,
		trigger_conditions JSON NULL,
		action_type VARCHAR(50) NOT NULL,
		action_config JSON NOT NULL,
		trigger_count BIGINT NOT NULL DEFAULT 0,
		last_triggered_at DATETIME NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		INDEX idx_automation_rules_trigger_active (trigger_event, active)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;
	`,
	`
	CREATE TABLE IF NOT EXISTS events (
		id VARCHAR(36) PRIMARY KEY,
		name VARCHAR(255) NULL,
		client_name VARCHAR(255) NULL,
		client_phone VARCHAR(30) NULL,
		client_email VARCHAR(255) NULL,
		date DATE NULL,
		location VARCHAR(255) NULL,
		status VARCHAR(30) NOT NULL DEFAULT 'planned',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;
	`,
	`
	CREATE TABLE IF NOT EXISTS checklists (
		id VARCHAR(36) PRIMARY KEY,
		event_id VARCHAR(36) NOT NULL,
		type VARCHAR(20) NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		completed_at DATETIME NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		INDEX idx_checklists_event_id (event_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;
	`,
}

func RunMigrations(db *sqlx.DB) error {
	for _, schema := range migrations {
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	logger.Infof("Database migrations completed")

	return nil
}

// SeedTestData inserts one event, one entry checklist and sample rules
// (all in test mode) when the rule table is empty.
func SeedTestData(db *sqlx.DB) error {
	var count int

	if err := db.Get(&count, "SELECT COUNT(*) FROM automation_rules"); err != nil {
		return err
	}

	if count > 0 {
		logger.Infof("Database already has %d automations, skipping seed", count)
		return nil
	}

	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin seed transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.Exec(`
		INSERT INTO events (id, name, client_name, client_phone, client_email, date, location, status)
		VALUES ('evt-1', 'Casamento Silva', 'João Silva', '11988887777', 'joao@exemplo.com', '2026-03-01', 'Salão X', 'confirmed')
	`)
	if err != nil {
		return fmt.Errorf("failed to seed events: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO checklists (id, event_id, type, status)
		VALUES ('chk-1', 'evt-1', 'entrada', 'pending')
	`)
	if err != nil {
		return fmt.Errorf("failed to seed checklists: %w", err)
	}

	seedRules := []struct {
		id      string
		name    string
		trigger string
		message string
	}{
		{"rule-entrada", "Confirmação de entrada", "checklist_entrada", "Olá {cliente}, confirmamos a entrada em {data} no {local}."},
		{"rule-saida", "Confirmação de saída", "checklist_saida", "Olá {cliente}, a equipe concluiu a saída do {local}. Obrigado!"},
		{"rule-evento", "Boas-vindas", "event_created", "Olá {cliente}! Seu evento {event_name} em {data} foi registrado."},
	}

	for _, r := range seedRules {
		actionConfig := fmt.Sprintf(`{"message":%q,"phoneSource":"client_phone","testMode":true}`, r.message)
		_, err := tx.Exec(`
			INSERT INTO automation_rules (id, name, active, trigger_event, action_type, action_config)
			VALUES (?, ?, TRUE, ?, 'send_whatsapp', ?)
		`, r.id, r.name, r.trigger, actionConfig)
		if err != nil {
			return fmt.Errorf("failed to seed automations: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seed: %w", err)
	}

	logger.Infof("Seeded 1 event, 1 checklist and %d automations", len(seedRules))
	return nil
}
