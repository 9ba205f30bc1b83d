package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// LookupFunc resolves an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Load reads configuration from the process environment.
// It applies defaults for unset values and validates the result.
func Load() (*Config, error) {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom reads configuration through lookup instead of the process
// environment. Returns an error if required values are missing or
// validation fails.
func LoadFrom(lookup LookupFunc) (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem(), lookup); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// loadStruct recursively populates struct fields from environment variables.
func loadStruct(v reflect.Value, lookup LookupFunc) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := loadStruct(fieldVal, lookup); err != nil {
				return err
			}
			continue
		}

		envName := field.Tag.Get("env")
		if envName == "" {
			continue
		}
		envAlt := field.Tag.Get("envAlt")
		required := field.Tag.Get("required") == "true"

		value := get(lookup, envName)
		if value == "" && envAlt != "" {
			value = get(lookup, envAlt)
		}

		if value == "" {
			if required {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			value = field.Tag.Get("default")
		}

		if value == "" {
			continue
		}

		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

func get(lookup LookupFunc, key string) string {
	v, ok := lookup(key)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(i)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type())
		}
		// Comma-separated, whitespace trimmed, empties dropped
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				result = append(result, p)
			}
		}
		field.Set(reflect.ValueOf(result))

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	if c.Paths.TrainingDataPath == "" {
		errs = append(errs, "TRAINING_DATA_PATH must not be empty")
	}
	if c.Paths.PredictionDataPath == "" {
		errs = append(errs, "PREDICTION_DATA_PATH must not be empty")
	}
	if c.Paths.TrainingDataPath != "" && c.Paths.TrainingDataPath == c.Paths.PredictionDataPath {
		errs = append(errs, "TRAINING_DATA_PATH and PREDICTION_DATA_PATH must differ")
	}
	if c.Paths.SchemaDir == "" {
		errs = append(errs, "SCHEMA_DIR must not be empty")
	}

	switch strings.ToLower(c.Store.Driver) {
	case DriverSQLite:
		if c.Store.Dir == "" {
			errs = append(errs, "STORE_DIR is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Store.URL == "" {
			errs = append(errs, "DATABASE_URL is required for the postgres driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("STORE_DRIVER (%q) must be one of: sqlite, postgres", c.Store.Driver))
	}
	if c.Store.BusyTimeout < 0 {
		errs = append(errs, "STORE_BUSY_TIMEOUT must be non-negative")
	}

	if c.Pipeline.MissingSentinel == "" {
		errs = append(errs, "MISSING_SENTINEL must not be empty")
	}
	if c.Pipeline.SnapshotFile == "" || strings.ContainsAny(c.Pipeline.SnapshotFile, `/\`) {
		errs = append(errs, fmt.Sprintf("SNAPSHOT_FILE (%q) must be a plain file name", c.Pipeline.SnapshotFile))
	}
	if c.Pipeline.RunMaxWait <= 0 {
		errs = append(errs, "RUN_MAX_WAIT must be positive")
	}

	if c.Pipeline.ScheduleInterval < 0 {
		errs = append(errs, "RUN_SCHEDULE_INTERVAL must be non-negative")
	}

	if c.Journal.Path == "" {
		errs = append(errs, "JOURNAL_PATH must not be empty")
	}
	if c.Journal.Retention < 0 {
		errs = append(errs, "JOURNAL_RETENTION must be non-negative")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	if c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0 {
		errs = append(errs, "REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// The database URL and API keys are masked.
func (c *Config) String() string {
	url := ""
	if c.Store.URL != "" {
		url = "[MASKED]"
	}

	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Paths: {Training: %q, Prediction: %q, Schemas: %q}, ",
		c.Paths.TrainingDataPath, c.Paths.PredictionDataPath, c.Paths.SchemaDir)
	fmt.Fprintf(&b, "Store: {Driver: %q, Dir: %q, URL: %s}, ", c.Store.Driver, c.Store.Dir, url)
	fmt.Fprintf(&b, "Pipeline: {Sentinel: %q, Snapshot: %q}, ", c.Pipeline.MissingSentinel, c.Pipeline.SnapshotFile)
	fmt.Fprintf(&b, "Journal: {Path: %q}, ", c.Journal.Path)
	fmt.Fprintf(&b, "Security: {RequireAPIKey: %t, APIKeys: %d configured, TrustedProxies: %v}, ",
		c.Security.RequireAPIKey, len(c.Security.APIKeys), c.Security.TrustedProxies)
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}
