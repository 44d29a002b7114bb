package environments

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Gateway  GatewayConfig
	Phone    PhoneConfig
	Template TemplateConfig
	Auth     AuthConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	// Seed inserts sample rules and an event on startup when the rule table is empty.
	Seed bool
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// GatewayConfig points at the outbound messaging gateway.
type GatewayConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// PhoneConfig holds the prefixes applied when normalizing local numbers.
type PhoneConfig struct {
	CountryCode     string
	DefaultAreaCode string
}

type TemplateConfig struct {
	DateLayout string
}

type AuthConfig struct {
	AutomationsAPIKey string
	TriggerAPIKey     string
}

type LogConfig struct {
	Level string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port: GetEnv("SERVER_PORT", "8080"),
		},
		Database: DatabaseConfig{
			Host:     GetEnv("DB_HOST", "localhost"),
			Port:     GetEnv("DB_PORT", "3306"),
			User:     GetEnv("DB_USER", "automation"),
			Password: GetEnv("DB_PASSWORD", "automation123"),
			DBName:   GetEnv("DB_NAME", "event_automation"),
			Seed:     GetEnvAsBool("SEED_DATA", false),
		},
		Redis: RedisConfig{
			Host:     GetEnv("REDIS_HOST", "localhost"),
			Port:     GetEnv("REDIS_PORT", "6379"),
			Password: GetEnv("REDIS_PASSWORD", ""),
			DB:       GetEnvAsInt("REDIS_DB", 0),
		},
		Gateway: GatewayConfig{
			URL:     GetEnv("GATEWAY_URL", "http://localhost:8081/message/sendText"),
			Token:   GetEnv("GATEWAY_TOKEN", ""),
			Timeout: GetEnvAsDuration("GATEWAY_TIMEOUT", 30*time.Second),
		},
		Phone: PhoneConfig{
			CountryCode:     GetEnv("PHONE_COUNTRY_CODE", "55"),
			DefaultAreaCode: GetEnv("PHONE_DEFAULT_AREA_CODE", "11"),
		},
		Template: TemplateConfig{
			DateLayout: GetEnv("TEMPLATE_DATE_LAYOUT", "02/01/2006"),
		},
		Auth: AuthConfig{
			AutomationsAPIKey: GetEnv("AUTOMATIONS_API_KEY", ""),
			TriggerAPIKey:     GetEnv("TRIGGER_API_KEY", ""),
		},
		Log: LogConfig{
			Level: GetEnv("LOG_LEVEL", "info"),
		},
	}
}

func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func GetEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func GetEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// GetEnvAsDuration accepts Go durations ("15s") and bare integers as seconds.
func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
