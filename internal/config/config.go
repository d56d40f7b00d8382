package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Database connection.
	DatabaseURL  string
	WriteTimeout time.Duration // statement_timeout for each log table insert; 0 disables

	// Log table.
	Table       string // schema-qualified target table (default "public.table_log")
	CreateTable bool   // create the table and its append-only trigger at startup
	Timezone    string // IANA zone for log_time (default "UTC")

	// Runtime settings.
	SettingsFile string // optional YAML file holding table_log.enable
	Enable       bool   // initial value of table_log.enable

	// Event sources.
	LogMinDuration time.Duration // statements at least this slow are reported; negative disables
	CSVLogFile     string        // csvlog input path; "-" or empty reads stdin

	// Logging.
	LogLevel slog.Level

	// Connection pool.
	PoolMaxConns        int32         // default: 5
	PoolMinConns        int32         // default: 1
	PoolMaxConnLifetime time.Duration // default: 30m

	// Observability.
	OTelEnabled bool   // enable OpenTelemetry tracing and metrics
	RejectLog   string // path to NDJSON reject log file
}

// Overrides holds CLI flag values that override environment variables.
// Pointer fields distinguish "not set" from zero values.
type Overrides struct {
	DatabaseURL    *string
	LogLevel       *string
	SettingsFile   *string
	Enable         *bool
	Table          *string
	Timezone       *string
	WriteTimeout   *time.Duration
	LogMinDuration *time.Duration
	CSVLogFile     *string
	CreateTable    bool
	OTelEnabled    bool
	RejectLog      string

	// Connection pool overrides.
	PoolMaxConns        *int32
	PoolMinConns        *int32
	PoolMaxConnLifetime *time.Duration
}

// Load builds a Config from environment variables, then applies CLI overrides,
// then validates the result.
func Load(overrides Overrides) (*Config, error) {
	cfg := defaults()

	if err := loadEnvVars(cfg); err != nil {
		return nil, err
	}
	if err := applyOverrides(cfg, overrides); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// defaults returns a Config populated with default values.
func defaults() *Config {
	return &Config{
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		WriteTimeout:        5 * time.Second,
		Table:               "public.table_log",
		Timezone:            "UTC",
		LogMinDuration:      -1,
		PoolMaxConns:        5,
		PoolMinConns:        1,
		PoolMaxConnLifetime: 30 * time.Minute,
	}
}

// loadEnvVars reads all supported environment variables into cfg.
func loadEnvVars(cfg *Config) error {
	if v := os.Getenv("WRITE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid WRITE_TIMEOUT value %q: %w", v, err)
		}
		cfg.WriteTimeout = d
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}

	if v := os.Getenv("TABLE_LOG_TABLE"); v != "" {
		cfg.Table = v
	}
	if v := os.Getenv("TIMEZONE"); v != "" {
		cfg.Timezone = v
	}
	cfg.SettingsFile = os.Getenv("SETTINGS_FILE")
	cfg.CSVLogFile = os.Getenv("CSVLOG_FILE")
	cfg.RejectLog = os.Getenv("REJECT_LOG")

	if v := os.Getenv("TABLE_LOG_ENABLE"); v != "" {
		b, err := parseSwitch(v)
		if err != nil {
			return fmt.Errorf("invalid TABLE_LOG_ENABLE value %q: %w", v, err)
		}
		cfg.Enable = b
	}

	if v := os.Getenv("LOG_MIN_DURATION"); v != "" {
		d, err := parseMinDuration(v)
		if err != nil {
			return fmt.Errorf("invalid LOG_MIN_DURATION value %q: %w", v, err)
		}
		cfg.LogMinDuration = d
	}

	if v := os.Getenv("CREATE_TABLE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid CREATE_TABLE value %q: %w", v, err)
		}
		cfg.CreateTable = b
	}

	if v := os.Getenv("OTEL_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid OTEL_ENABLED value %q: %w", v, err)
		}
		cfg.OTelEnabled = b
	}

	if err := loadPoolEnvVars(cfg); err != nil {
		return err
	}

	return nil
}

// loadPoolEnvVars reads connection pool environment variables.
func loadPoolEnvVars(cfg *Config) error {
	if v := os.Getenv("POOL_MAX_CONNS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid POOL_MAX_CONNS value %q: must be a positive integer", v)
		}
		cfg.PoolMaxConns = int32(n)
	}
	if v := os.Getenv("POOL_MIN_CONNS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid POOL_MIN_CONNS value %q: must be a non-negative integer", v)
		}
		cfg.PoolMinConns = int32(n)
	}
	if v := os.Getenv("POOL_MAX_CONN_LIFETIME"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid POOL_MAX_CONN_LIFETIME value %q: %w", v, err)
		}
		cfg.PoolMaxConnLifetime = d
	}
	return nil
}

// applyOverrides applies CLI flag values on top of the env-loaded config.
func applyOverrides(cfg *Config, o Overrides) error {
	if o.DatabaseURL != nil {
		cfg.DatabaseURL = *o.DatabaseURL
	}
	if o.LogLevel != nil {
		level, err := parseLogLevel(*o.LogLevel)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}
	if o.SettingsFile != nil {
		cfg.SettingsFile = *o.SettingsFile
	}
	if o.Enable != nil {
		cfg.Enable = *o.Enable
	}
	if o.Table != nil {
		cfg.Table = *o.Table
	}
	if o.Timezone != nil {
		cfg.Timezone = *o.Timezone
	}
	if o.WriteTimeout != nil {
		cfg.WriteTimeout = *o.WriteTimeout
	}
	if o.LogMinDuration != nil {
		cfg.LogMinDuration = *o.LogMinDuration
	}
	if o.CSVLogFile != nil {
		cfg.CSVLogFile = *o.CSVLogFile
	}

	if err := applyPoolOverrides(cfg, o); err != nil {
		return err
	}

	if o.RejectLog != "" {
		cfg.RejectLog = o.RejectLog
	}
	cfg.CreateTable = cfg.CreateTable || o.CreateTable
	cfg.OTelEnabled = cfg.OTelEnabled || o.OTelEnabled

	return nil
}

// applyPoolOverrides applies connection pool CLI flag overrides.
func applyPoolOverrides(cfg *Config, o Overrides) error {
	if o.PoolMaxConns != nil {
		if *o.PoolMaxConns <= 0 {
			return fmt.Errorf("invalid --pool-max-conns value: must be a positive integer")
		}
		cfg.PoolMaxConns = *o.PoolMaxConns
	}
	if o.PoolMinConns != nil {
		if *o.PoolMinConns < 0 {
			return fmt.Errorf("invalid --pool-min-conns value: must be a non-negative integer")
		}
		cfg.PoolMinConns = *o.PoolMinConns
	}
	if o.PoolMaxConnLifetime != nil {
		cfg.PoolMaxConnLifetime = *o.PoolMaxConnLifetime
	}
	return nil
}

// validate checks cross-field constraints on the final config.
func validate(cfg *Config) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required (set via env var or --database-url flag)")
	}

	if strings.TrimSpace(cfg.Table) == "" {
		return fmt.Errorf("TABLE_LOG_TABLE must not be empty")
	}

	if cfg.WriteTimeout < 0 {
		return fmt.Errorf("invalid WRITE_TIMEOUT %s: must not be negative", cfg.WriteTimeout)
	}

	if cfg.PoolMinConns > cfg.PoolMaxConns {
		return fmt.Errorf("POOL_MIN_CONNS (%d) must not exceed POOL_MAX_CONNS (%d)", cfg.PoolMinConns, cfg.PoolMaxConns)
	}

	return nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL value %q: must be debug, info, warn, or error", s)
	}
}

// parseSwitch accepts the settings-file spelling ("on"/"off") as well as
// the usual boolean forms.
func parseSwitch(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	return strconv.ParseBool(s)
}

// parseMinDuration reads a duration, or a bare integer of milliseconds the
// way log_min_duration_statement is written. "-1" disables reporting.
func parseMinDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return -1, nil
		}
		return time.Duration(n) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return -1, nil
	}
	return d, nil
}

// ParseMinDuration is parseMinDuration for CLI flag values.
func ParseMinDuration(s string) (time.Duration, error) { return parseMinDuration(s) }
