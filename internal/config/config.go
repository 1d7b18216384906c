package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the full application configuration surface.
type Config struct {
	Server    ServerConfig
	Backend   BackendConfig
	Farm      FarmConfig
	Forms     FormsConfig
	WhatsApp  WhatsAppConfig
	Reminders ReminderConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	Log       LogConfig
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port string
}

// BackendConfig points at the farm management REST API.
type BackendConfig struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	RetryCount int
	RetryWait  time.Duration
}

// FarmConfig holds farm-wide preferences.
type FarmConfig struct {
	Timezone string
	// CacheTTL bounds how long lot and stock lookups are reused.
	CacheTTL time.Duration
}

// FormsConfig controls in-memory form sessions.
type FormsConfig struct {
	IdleTimeout   time.Duration
	SweepSchedule string
	LockTTL       time.Duration
}

// WhatsAppConfig contains credentials and options for the Meta WhatsApp Cloud API.
type WhatsAppConfig struct {
	AccessToken   string
	PhoneNumberID string
	VerifyToken   string
	BaseURL       string
	APIVersion    string
	ManagerID     string
}

// Enabled reports whether the WhatsApp channel is configured.
func (w WhatsAppConfig) Enabled() bool {
	return w.AccessToken != "" || w.PhoneNumberID != "" || w.VerifyToken != ""
}

// ReminderConfig holds scheduler-related settings.
type ReminderConfig struct {
	CronSchedule string
	LotStatus    string
}

// MongoDBConfig holds settings for the submission journal.
type MongoDBConfig struct {
	URI    string
	DBName string
}

// Enabled reports whether journaling is configured.
func (m MongoDBConfig) Enabled() bool {
	return m.URI != ""
}

// RedisConfig holds settings for the shared submission lock.
type RedisConfig struct {
	URL string
}

// Enabled reports whether a shared lock is configured.
func (r RedisConfig) Enabled() bool {
	return r.URL != ""
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level string
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// Missing .env files are fine when configuration comes from the environment.
		_ = godotenv.Load()
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getenvWithDefault("APP_PORT", "8080"),
		},
		Backend: BackendConfig{
			BaseURL:    os.Getenv("BACKEND_API_URL"),
			Token:      os.Getenv("BACKEND_API_TOKEN"),
			Timeout:    getDuration("BACKEND_TIMEOUT", 15*time.Second),
			RetryCount: getInt("BACKEND_RETRY_COUNT", 2),
			RetryWait:  getDuration("BACKEND_RETRY_WAIT", 300*time.Millisecond),
		},
		Farm: FarmConfig{
			Timezone: getenvWithDefault("TIMEZONE", "Africa/Douala"),
			CacheTTL: getDuration("CACHE_TTL", 5*time.Minute),
		},
		Forms: FormsConfig{
			IdleTimeout:   getDuration("FORM_IDLE_TIMEOUT", time.Hour),
			SweepSchedule: getenvWithDefault("FORM_SWEEP_SCHEDULE", "@every 10m"),
			LockTTL:       getDuration("SUBMIT_LOCK_TTL", 30*time.Second),
		},
		WhatsApp: WhatsAppConfig{
			AccessToken:   os.Getenv("WHATSAPP_TOKEN"),
			PhoneNumberID: os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
			VerifyToken:   os.Getenv("META_VERIFY_TOKEN"),
			BaseURL:       getenvWithDefault("WHATSAPP_BASE_URL", "https://graph.facebook.com"),
			APIVersion:    getenvWithDefault("WHATSAPP_API_VERSION", "v20.0"),
			ManagerID:     os.Getenv("WHATSAPP_MANAGER_ID"),
		},
		Reminders: ReminderConfig{
			CronSchedule: getenvWithDefault("REMINDER_CRON_SCHEDULE", "0 18 * * *"),
			LotStatus:    getenvWithDefault("REMINDER_LOT_STATUS", "active"),
		},
		MongoDB: MongoDBConfig{
			URI:    os.Getenv("MONGODB_URI"),
			DBName: getenvWithDefault("MONGODB_DB_NAME", "flockbook"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Log: LogConfig{
			Level: getenvWithDefault("APP_LOG_LEVEL", "info"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures that required configuration fields are populated.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Server.Port == "" {
		return errors.New("APP_PORT must be provided")
	}

	if c.Backend.BaseURL == "" {
		return errors.New("BACKEND_API_URL must be provided")
	}
	if !strings.HasPrefix(c.Backend.BaseURL, "http://") && !strings.HasPrefix(c.Backend.BaseURL, "https://") {
		return fmt.Errorf("BACKEND_API_URL must be an http(s) URL, got %q", c.Backend.BaseURL)
	}
	if c.Backend.Timeout <= 0 {
		return errors.New("BACKEND_TIMEOUT must be positive")
	}
	if c.Backend.RetryCount < 0 {
		return errors.New("BACKEND_RETRY_COUNT must not be negative")
	}

	if c.Farm.Timezone == "" {
		return errors.New("TIMEZONE must be provided")
	}
	if _, err := time.LoadLocation(c.Farm.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE %q is not a known zone: %w", c.Farm.Timezone, err)
	}

	if c.Forms.IdleTimeout <= 0 {
		return errors.New("FORM_IDLE_TIMEOUT must be positive")
	}
	if c.Forms.LockTTL <= 0 {
		return errors.New("SUBMIT_LOCK_TTL must be positive")
	}

	// WhatsApp is optional, but a partial setup is a mistake.
	if c.WhatsApp.Enabled() {
		switch {
		case c.WhatsApp.AccessToken == "":
			return errors.New("WHATSAPP_TOKEN must be provided")
		case c.WhatsApp.PhoneNumberID == "":
			return errors.New("WHATSAPP_PHONE_NUMBER_ID must be provided")
		case c.WhatsApp.VerifyToken == "":
			return errors.New("META_VERIFY_TOKEN must be provided")
		}
		if c.WhatsApp.BaseURL == "" {
			return errors.New("WHATSAPP_BASE_URL must not be empty")
		}
		if c.WhatsApp.APIVersion == "" {
			return errors.New("WHATSAPP_API_VERSION must not be empty")
		}
	}

	if c.Reminders.CronSchedule == "" {
		return errors.New("REMINDER_CRON_SCHEDULE must be provided")
	}

	if c.MongoDB.Enabled() && c.MongoDB.DBName == "" {
		return errors.New("MONGODB_DB_NAME must be provided when MONGODB_URI is set")
	}

	return nil
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func getInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}
