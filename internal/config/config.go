// Package config provides centralized configuration management for the pipeline.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"path/filepath"
	"strconv"
	"time"
)

// Store drivers understood by the table store.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Paths    PathsConfig
	Store    StoreConfig
	Pipeline PipelineConfig
	Journal  JournalConfig
	Logging  LoggingConfig
	Server   ServerConfig
	Security SecurityConfig
}

// PathsConfig holds the staging roots and the schema descriptor directory.
type PathsConfig struct {
	// TrainingDataPath is the staging root for the training dataset
	TrainingDataPath string `env:"TRAINING_DATA_PATH" default:"data/training_data"`

	// PredictionDataPath is the staging root for the prediction dataset
	PredictionDataPath string `env:"PREDICTION_DATA_PATH" default:"data/prediction_data"`

	// SchemaDir holds <schema_id>.json / .yaml descriptors
	SchemaDir string `env:"SCHEMA_DIR" default:"schemas"`
}

// StoreConfig holds relational store settings.
type StoreConfig struct {
	// Driver selects the store backend: sqlite or postgres (default: sqlite)
	Driver string `env:"STORE_DRIVER" default:"sqlite"`

	// Dir is where sqlite store files (<store>.db) live
	Dir string `env:"STORE_DIR" default:"data/stores"`

	// URL is the PostgreSQL connection string, required for the postgres driver.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// BusyTimeout is how long sqlite waits on a locked database (default: 5s)
	BusyTimeout time.Duration `env:"STORE_BUSY_TIMEOUT" default:"5s"`
}

// PipelineConfig holds ingestion run settings.
type PipelineConfig struct {
	// MissingSentinel replaces blank cells before loading (default: NULL)
	MissingSentinel string `env:"MISSING_SENTINEL" default:"NULL"`

	// SnapshotFile is the export file name under <root>_validation
	SnapshotFile string `env:"SNAPSHOT_FILE" default:"InputFile.csv"`

	// RunMaxWait is how long a run waits for the single run slot (default: 30s)
	RunMaxWait time.Duration `env:"RUN_MAX_WAIT" default:"30s"`

	// ScheduleInterval runs every dataset periodically in serve mode; 0 disables
	ScheduleInterval time.Duration `env:"RUN_SCHEDULE_INTERVAL" default:"0s"`
}

// JournalConfig holds run ledger settings.
type JournalConfig struct {
	// Path is the sqlite file backing the run journal
	Path string `env:"JOURNAL_PATH" default:"data/stores/journal.db"`

	// Retention prunes runs older than this on each scheduled cycle; 0 keeps all
	Retention time.Duration `env:"JOURNAL_RETENTION" default:"0s"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// ServerConfig holds settings for the HTTP trigger API.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading a request (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// SecurityConfig guards the HTTP trigger API.
type SecurityConfig struct {
	// RequireAPIKey enables X-API-Key checks on /api routes (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS"`

	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// DataPath returns the staging root configured for a dataset name.
// Unknown names return "".
func (c *PathsConfig) DataPath(dataset string) string {
	switch dataset {
	case "training":
		return c.TrainingDataPath
	case "prediction":
		return c.PredictionDataPath
	}
	return ""
}

// SQLitePath returns the file backing the named sqlite store.
func (c *StoreConfig) SQLitePath(store string) string {
	return filepath.Join(c.Dir, store+".db")
}
