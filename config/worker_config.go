package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"mailbrief/pkg/apperr"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	Environment string
	LogLevel    string

	// Mailbox
	MailProvider string // gmail | imap

	// OAuth - Google
	GoogleClientID        string
	GoogleClientSecret    string
	GoogleRedirectURL     string
	GoogleCredentialsFile string
	GoogleTokenFile       string

	// IMAP / SMTP
	IMAPAddr      string
	SMTPAddr      string
	MailUsername  string
	MailPassword  string
	IMAPMailbox   string
	IMAPTrashPath string

	// LLM (OpenAI-compatible endpoint)
	LLMAPIKey      string
	LLMBaseURL     string
	LLMModel       string
	LLMMaxTokens   int
	LLMTemperature float64
	LLMTimeoutSec  int
	LLMJSONMode    bool

	// Triage
	PromptBodyLimit int
	FetchWorkers    int

	// Summary log
	SummaryLogFile string
	SummaryLogTZ   string

	// Storage
	DatabaseURL     string
	RedisURL        string
	SessionTTLHour  int
	EncryptionKey   string
	SummarizeRPM    int
	MinutesPerEmail float64

	// HTTP
	FrontendURL    string
	AllowedOrigins []string
}

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "5000"),
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		MailProvider: getEnv("MAIL_PROVIDER", "gmail"),

		GoogleClientID:        getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:    getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:     getEnv("GOOGLE_REDIRECT_URL", "http://localhost:5000/callback"),
		GoogleCredentialsFile: getEnv("GOOGLE_CREDENTIALS_FILE", "credentials.json"),
		GoogleTokenFile:       getEnv("GOOGLE_TOKEN_FILE", "token.json"),

		IMAPAddr:      getEnv("IMAP_ADDR", ""),
		SMTPAddr:      getEnv("SMTP_ADDR", ""),
		MailUsername:  getEnv("MAIL_USERNAME", ""),
		MailPassword:  getEnv("MAIL_PASSWORD", ""),
		IMAPMailbox:   getEnv("IMAP_MAILBOX", "INBOX"),
		IMAPTrashPath: getEnv("IMAP_TRASH_MAILBOX", ""),

		LLMAPIKey:      firstEnv("LLM_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY"),
		LLMBaseURL:     getEnv("LLM_BASE_URL", ""),
		LLMModel:       getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMMaxTokens:   getEnvInt("LLM_MAX_TOKENS", 4096),
		LLMTemperature: getEnvFloat("LLM_TEMPERATURE", 0.2),
		LLMTimeoutSec:  getEnvInt("LLM_TIMEOUT_SEC", 90),
		LLMJSONMode:    getEnvBool("LLM_JSON_MODE", false),

		PromptBodyLimit: getEnvInt("PROMPT_BODY_LIMIT", 4000),
		FetchWorkers:    getEnvInt("FETCH_WORKERS", 8),

		SummaryLogFile: getEnv("SUMMARY_LOG_FILE", "summaries.txt"),
		SummaryLogTZ:   getEnv("SUMMARY_LOG_TZ", ""),

		DatabaseURL:     getEnv("DATABASE_URL", "mailbrief.db"),
		RedisURL:        getEnv("REDIS_URL", ""),
		SessionTTLHour:  getEnvInt("SESSION_TTL_HOUR", 24),
		EncryptionKey:   getEnv("ENCRYPTION_KEY", ""),
		SummarizeRPM:    getEnvInt("SUMMARIZE_RATE_LIMIT", 10),
		MinutesPerEmail: getEnvFloat("MINUTES_SAVED_PER_EMAIL", 2.0),

		FrontendURL:    getEnv("FRONTEND_URL", "http://localhost:3000"),
		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
	}

	if err := cfg.validate(); err != nil {
		return nil, apperr.ConfigError(err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	switch c.MailProvider {
	case "gmail", "google", "imap":
	default:
		errs = append(errs, fmt.Errorf("MAIL_PROVIDER must be gmail or imap, got %q", c.MailProvider))
	}
	if c.IsIMAP() && c.IMAPAddr == "" {
		errs = append(errs, errors.New("IMAP_ADDR is required when MAIL_PROVIDER=imap"))
	}
	if _, err := c.SummaryLocation(); err != nil {
		errs = append(errs, fmt.Errorf("SUMMARY_LOG_TZ: %w", err))
	}
	return errors.Join(errs...)
}

// IsIMAP reports whether the mailbox is reached over IMAP/SMTP.
func (c *Config) IsIMAP() bool {
	return c.MailProvider == "imap"
}

// SessionTTL returns the HTTP session lifetime.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHour) * time.Hour
}

// LLMTimeout returns the per-call model timeout.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutSec) * time.Second
}

// SummaryLocation returns the zone summary-log timestamps are written in.
func (c *Config) SummaryLocation() (*time.Location, error) {
	if c.SummaryLogTZ == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.SummaryLogTZ)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// firstEnv returns the first non-empty variable among keys.
func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			return value
		}
	}
	return ""
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
