package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Scan intervals and request timeouts accepted by Validate, in seconds.
// These mirror the polling options Monarch users can choose between.
var (
	ScanIntervals = []int{30, 60, 120, 600, 1800, 3600, 21600, 86400}
	Timeouts      = []int{10, 15, 30, 45, 60}
)

const (
	DefaultScanInterval = 3600 * time.Second
	DefaultTimeout      = 30 * time.Second
)

type Config struct {
	// HTTP Server
	Port string

	// Monarch API
	MonarchBaseURL  string
	MonarchEmail    string // optional; enables automatic re-login
	MonarchPassword string
	SessionFile     string

	// Polling
	ScanInterval time.Duration
	Timeout      time.Duration

	// Database
	SQLiteDBPath string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets export
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// Exporter worker
	ExportBatchSize  int
	ExportInterval   time.Duration
	HistoryRetention time.Duration
}

func Load() *Config {
	return &Config{
		Port: getEnv("PORT", "8080"),

		MonarchBaseURL:  getEnv("MONARCH_BASE_URL", "https://api.monarchmoney.com"),
		MonarchEmail:    getEnv("MONARCH_EMAIL", ""),
		MonarchPassword: getEnv("MONARCH_PASSWORD", ""),
		SessionFile:     getEnv("MONARCH_SESSION_FILE", "./data/.mm-session"),

		ScanInterval: getEnvDuration("SCAN_INTERVAL", DefaultScanInterval),
		Timeout:      getEnvDuration("API_TIMEOUT", DefaultTimeout),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/monarch.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "monarch"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "snapshot_export"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Balances"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),

		ExportBatchSize:  getEnvInt("EXPORT_BATCH_SIZE", 10),
		ExportInterval:   getEnvDuration("EXPORT_INTERVAL", 30*time.Second),
		HistoryRetention: getEnvDuration("HISTORY_RETENTION", 365*24*time.Hour),
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	// Validate Monarch base URL
	if c.MonarchBaseURL == "" {
		errors = append(errors, "Monarch base URL cannot be empty")
	} else if parsed, err := url.Parse(c.MonarchBaseURL); err != nil {
		errors = append(errors, fmt.Sprintf("invalid Monarch base URL '%s': %v", c.MonarchBaseURL, err))
	} else if parsed.Scheme != "http" && parsed.Scheme != "https" {
		errors = append(errors, fmt.Sprintf("invalid Monarch base URL scheme '%s': must be 'http' or 'https'", parsed.Scheme))
	}

	// Credentials come as a pair or not at all
	if (c.MonarchEmail == "") != (c.MonarchPassword == "") {
		errors = append(errors, "MONARCH_EMAIL and MONARCH_PASSWORD must be set together")
	}

	// Session file directory must exist or be creatable
	if c.SessionFile == "" {
		errors = append(errors, "session file path cannot be empty")
	} else if dir := filepath.Dir(c.SessionFile); dir != "." && dir != "" {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				errors = append(errors, fmt.Sprintf("cannot create session file directory '%s': %v", dir, err))
			}
		}
	}

	// Scan interval and timeout are restricted to the supported choices
	if !allowedSeconds(c.ScanInterval, ScanIntervals) {
		errors = append(errors, fmt.Sprintf("invalid scan interval %v: must be one of %v seconds", c.ScanInterval, ScanIntervals))
	}
	if !allowedSeconds(c.Timeout, Timeouts) {
		errors = append(errors, fmt.Sprintf("invalid API timeout %v: must be one of %v seconds", c.Timeout, Timeouts))
	}

	// Validate SQLite configuration
	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
			}
		}
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	// Validate Google Sheets export configuration if enabled
	if c.GoogleSpreadsheetID != "" {
		if c.GoogleSheetName == "" {
			errors = append(errors, "Google sheet name is required when a spreadsheet ID is provided")
		}
		hasJSON := c.GoogleServiceAccountJSON != ""
		hasFile := c.GoogleServiceAccountFile != ""
		if !hasJSON && !hasFile {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE must be provided for sheet export")
		}
		if hasFile {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	// Validate exporter configuration
	if c.ExportBatchSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid export batch size %d: must be at least 1", c.ExportBatchSize))
	} else if c.ExportBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid export batch size %d: must be at most 1000", c.ExportBatchSize))
	}
	if c.ExportInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid export interval %v: must be at least 1 second", c.ExportInterval))
	} else if c.ExportInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid export interval %v: must be at most 24 hours", c.ExportInterval))
	}
	// Zero retention disables pruning entirely.
	if c.HistoryRetention != 0 && c.HistoryRetention < 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid history retention %v: must be 0 or at least 24 hours", c.HistoryRetention))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// ExportEnabled reports whether the Google Sheets exporter is configured.
func (c *Config) ExportEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

func allowedSeconds(d time.Duration, allowed []int) bool {
	secs := int(d / time.Second)
	if time.Duration(secs)*time.Second != d {
		return false
	}
	for _, a := range allowed {
		if secs == a {
			return true
		}
	}
	return false
}

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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		// Bare numbers are treated as seconds, matching the original options.
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}
