// Package config loads process configuration from the environment, with an
// optional .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// HTTP server
	Port string

	// Ledger
	LedgerPath            string
	LedgerCreateIfMissing bool

	// Logging
	LogLevel  string
	LogFormat string

	// LLM
	GeminiAPIKey string
	GeminiModel  string
	LLMTimeout   time.Duration

	// Google Cloud mirrors
	CredentialsFile string
	GCSBucket       string
	GCSPrefix       string
	BQProject       string
	BQDataset       string
	BQTable         string

	// Notion mirror
	NotionToken string
	NotionDBID  string

	// Jobs
	JobWorkers int
	JobBuffer  int
}

// Load reads .env when present, then the environment.
func Load() *Config {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads the environment only.
func FromEnv() *Config {
	return &Config{
		Port: getEnv("PORT", "8080"),

		LedgerPath:            getEnv("LEDGER_PATH", "data/database.csv"),
		LedgerCreateIfMissing: getEnvBool("LEDGER_CREATE_IF_MISSING", false),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),

		GeminiAPIKey: getEnv("GEMINI_API_KEY", os.Getenv("GOOGLE_API_KEY")),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		LLMTimeout:   getEnvDuration("LLM_TIMEOUT", 30*time.Second),

		CredentialsFile: getEnv("GCP_CREDENTIALS_FILE", ""),
		GCSBucket:       getEnv("GCS_BUCKET", ""),
		GCSPrefix:       strings.Trim(getEnv("GCS_PREFIX", "ledger"), "/"),
		BQProject:       getEnv("BQ_PROJECT", ""),
		BQDataset:       getEnv("BQ_DATASET", "ledger"),
		BQTable:         getEnv("BQ_TABLE", "transactions"),

		NotionToken: getEnv("NOTION_TOKEN", ""),
		NotionDBID:  getEnv("NOTION_DB_ID", ""),

		JobWorkers: getEnvInt("JOB_WORKERS", 2),
		JobBuffer:  getEnvInt("JOB_BUFFER", 100),
	}
}

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if strings.TrimSpace(c.LedgerPath) == "" {
		errors = append(errors, "LEDGER_PATH cannot be empty")
	}

	switch strings.ToLower(c.LogLevel) {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s'", c.LogLevel))
	}
	if c.LogFormat != "console" && c.LogFormat != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'console' or 'json'", c.LogFormat))
	}

	if c.LLMTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid LLM timeout %v: must be at least 1 second", c.LLMTimeout))
	} else if c.LLMTimeout > 10*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid LLM timeout %v: must be at most 10 minutes", c.LLMTimeout))
	}

	if c.NotionToken != "" && c.NotionDBID == "" {
		errors = append(errors, "NOTION_DB_ID is required when NOTION_TOKEN is set")
	}
	if c.BQProject != "" && (c.BQDataset == "" || c.BQTable == "") {
		errors = append(errors, "BQ_DATASET and BQ_TABLE are required when BQ_PROJECT is set")
	}
	if c.CredentialsFile != "" {
		if _, err := os.Stat(c.CredentialsFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("credentials file does not exist: %s", c.CredentialsFile))
		}
	}

	if c.JobWorkers < 1 || c.JobWorkers > 64 {
		errors = append(errors, fmt.Sprintf("invalid job workers %d: must be between 1 and 64", c.JobWorkers))
	}
	if c.JobBuffer < 1 {
		errors = append(errors, fmt.Sprintf("invalid job buffer %d: must be at least 1", c.JobBuffer))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// RequireLLM reports an error when no Gemini API key is configured.
func (c *Config) RequireLLM() error {
	if strings.TrimSpace(c.GeminiAPIKey) == "" {
		return fmt.Errorf("GEMINI_API_KEY (or GOOGLE_API_KEY) must be set")
	}
	return nil
}

// GCSEnabled reports whether snapshot backups to Cloud Storage are configured.
func (c *Config) GCSEnabled() bool { return c.GCSBucket != "" }

// BigQueryEnabled reports whether the warehouse mirror is configured.
func (c *Config) BigQueryEnabled() bool { return c.BQProject != "" }

// NotionEnabled reports whether the Notion mirror is configured.
func (c *Config) NotionEnabled() bool { return c.NotionToken != "" && c.NotionDBID != "" }

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
