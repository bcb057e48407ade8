// Package config provides configuration loading and validation for the
// mirroring engine.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tablemirror/tablemirror/internal/telemetry"
)

const (
	// DriverPostgres selects the PostgreSQL source driver.
	DriverPostgres = "pgx"

	// DriverOracle selects the Oracle source driver.
	DriverOracle = "godror"
)

const (
	// CheckpointStoreFile keeps checkpoints in a local JSON file.
	CheckpointStoreFile = "file"

	// CheckpointStorePostgres keeps checkpoints in the destination database.
	CheckpointStorePostgres = "postgres"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	Source      SourceConfig     `yaml:"source"`
	Destination DatabaseConfig   `yaml:"destination"`
	Checkpoint  CheckpointConfig `yaml:"checkpoint,omitempty"`
	Sync        SyncConfig       `yaml:"sync,omitempty"`

	// Telemetry configures OTLP metrics and tracing for mirroring runs.
	// Disabled when absent.
	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`

	// TypeOverrides extends the type mapping for all tables, keyed by
	// source-native type name.
	TypeOverrides map[string]string `yaml:"typeOverrides,omitempty"`

	// Tables holds per-table settings. Tables absent from this list are
	// still mirrored, with defaults.
	Tables []TableConfig `yaml:"tables,omitempty"`
}

// SourceConfig defines the source database connection
type SourceConfig struct {
	// Driver selects the source driver (pgx or godror)
	Driver string `yaml:"driver"`

	// DSN is the source connection string. For production deployments
	// prefer DSNFile so credentials stay out of the config file.
	DSN string `yaml:"dsn,omitempty"`

	// DSNFile is the path to a file containing the connection string
	DSNFile string `yaml:"dsnFile,omitempty"`

	// Schema is the source schema to mirror
	Schema string `yaml:"schema"`
}

// GetDSN returns the source connection string using the following priority:
// 1. Read from DSNFile if specified
// 2. The inline DSN value
// 3. The TABLEMIRROR_SOURCE_DSN environment variable
func (s *SourceConfig) GetDSN() (string, error) {
	if s.DSNFile != "" {
		data, err := os.ReadFile(filepath.Clean(s.DSNFile))
		if err != nil {
			return "", fmt.Errorf("failed to read DSN from file %s: %w", s.DSNFile, err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	if s.DSN != "" {
		return s.DSN, nil
	}

	if envDSN := os.Getenv("TABLEMIRROR_SOURCE_DSN"); envDSN != "" {
		return envDSN, nil
	}

	return "", fmt.Errorf(
		"no source DSN configured: set dsn, dsnFile, or the TABLEMIRROR_SOURCE_DSN environment variable",
	)
}

// DatabaseConfig defines the destination database connection settings
type DatabaseConfig struct {
	// Host is the database server hostname or IP address
	Host string `yaml:"host"`

	// Port is the database server port
	Port int `yaml:"port"`

	// User is the database username
	User string `yaml:"user"`

	// PasswordFile is the path to a file containing the database password.
	// This is the recommended approach for production deployments.
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// Database is the database name
	Database string `yaml:"database"`

	// Schema is the destination schema mirrored tables are created in
	Schema string `yaml:"schema,omitempty"`

	// SSLMode is the SSL mode for the connection (disable, require, verify-ca, verify-full)
	SSLMode string `yaml:"sslMode,omitempty"`
}

// GetPassword returns the destination password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from the TABLEMIRROR_DESTINATION_PASSWORD environment variable
//
// The password from file will have leading/trailing whitespace trimmed.
func (d *DatabaseConfig) GetPassword() (string, error) {
	if d.PasswordFile != "" {
		data, err := os.ReadFile(filepath.Clean(d.PasswordFile))
		if err != nil {
			return "", fmt.Errorf("failed to read password from file %s: %w", d.PasswordFile, err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	if envPassword := os.Getenv("TABLEMIRROR_DESTINATION_PASSWORD"); envPassword != "" {
		return envPassword, nil
	}

	return "", fmt.Errorf(
		"no destination password configured: set passwordFile or the TABLEMIRROR_DESTINATION_PASSWORD environment variable",
	)
}

// GetConnectionString builds a PostgreSQL connection string with proper
// password handling. The password is URL-escaped to handle special
// characters safely.
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}

	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User,
		url.QueryEscape(password),
		d.Host,
		d.Port,
		d.Database,
		sslMode,
	)

	return connString, nil
}

// GetSchema returns the destination schema, using "public" if not specified
func (d *DatabaseConfig) GetSchema() string {
	if d.Schema == "" {
		return "public"
	}
	return d.Schema
}

// CheckpointConfig selects where mirroring progress is persisted
type CheckpointConfig struct {
	// Store is the backend: file or postgres. Defaults to file.
	Store string `yaml:"store,omitempty"`

	// Path is the checkpoint file location for the file store
	Path string `yaml:"path,omitempty"`
}

// GetStore returns the checkpoint backend, using the file store if not specified
func (c *CheckpointConfig) GetStore() string {
	if c.Store == "" {
		return CheckpointStoreFile
	}
	return c.Store
}

// GetPath returns the checkpoint file path, with a default next to the
// working directory
func (c *CheckpointConfig) GetPath() string {
	if c.Path == "" {
		return "tablemirror-checkpoints.json"
	}
	return c.Path
}

// SyncConfig tunes the mirroring run
type SyncConfig struct {
	// BatchSize is the number of rows per extract/load cycle
	BatchSize int `yaml:"batchSize,omitempty"`

	// Workers bounds how many tables sync concurrently
	Workers int `yaml:"workers,omitempty"`

	// PipelineDepth bounds how many batches may be prefetched per table
	PipelineDepth int `yaml:"pipelineDepth,omitempty"`

	// FullReloadThreshold is the row count below which a table is fully
	// reloaded instead of synced incrementally
	FullReloadThreshold int64 `yaml:"fullReloadThreshold,omitempty"`

	// MaxRetries caps load attempts per batch
	MaxRetries int `yaml:"maxRetries,omitempty"`

	// BatchTimeout caps each extraction query and load attempt (e.g. "5m")
	BatchTimeout string `yaml:"batchTimeout,omitempty"`

	// ExcludeTables lists table names to skip
	ExcludeTables []string `yaml:"excludeTables,omitempty"`

	// SkipFailed skips tables whose checkpoint failed in a prior run
	SkipFailed bool `yaml:"skipFailed,omitempty"`
}

// GetBatchTimeout parses the batch timeout, using 5 minutes if not specified
func (s *SyncConfig) GetBatchTimeout() (time.Duration, error) {
	if s.BatchTimeout == "" {
		return 5 * time.Minute, nil
	}
	return time.ParseDuration(s.BatchTimeout)
}

// TableConfig defines per-table settings
type TableConfig struct {
	// Name is the source table name
	Name string `yaml:"name"`

	// TimestampColumn names a column that advances on every row change,
	// enabling timestamp-based syncing when it samples as reliable
	TimestampColumn string `yaml:"timestampColumn,omitempty"`

	// TypeOverrides extends the type mapping for this table only
	TypeOverrides map[string]string `yaml:"typeOverrides,omitempty"`
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate performs validation on the configuration
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := c.validateSource(); err != nil {
		return err
	}
	if err := c.validateDestination(); err != nil {
		return err
	}
	if err := c.validateCheckpoint(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	return c.validateTables()
}

func (c *Config) validateSource() error {
	switch c.Source.Driver {
	case DriverPostgres, DriverOracle:
	case "":
		return fmt.Errorf("source.driver is required")
	default:
		return fmt.Errorf("source.driver must be %s or %s, got %s",
			DriverPostgres, DriverOracle, c.Source.Driver)
	}
	if c.Source.Schema == "" {
		return fmt.Errorf("source.schema is required")
	}
	return nil
}

func (c *Config) validateDestination() error {
	if c.Destination.Host == "" {
		return fmt.Errorf("destination.host is required")
	}
	if c.Destination.Port <= 0 || c.Destination.Port > 65535 {
		return fmt.Errorf("destination.port must be between 1 and 65535, got %d", c.Destination.Port)
	}
	if c.Destination.User == "" {
		return fmt.Errorf("destination.user is required")
	}
	if c.Destination.Database == "" {
		return fmt.Errorf("destination.database is required")
	}
	return nil
}

func (c *Config) validateCheckpoint() error {
	switch c.Checkpoint.GetStore() {
	case CheckpointStoreFile, CheckpointStorePostgres:
		return nil
	default:
		return fmt.Errorf("checkpoint.store must be %s or %s, got %s",
			CheckpointStoreFile, CheckpointStorePostgres, c.Checkpoint.Store)
	}
}

func (c *Config) validateSync() error {
	if c.Sync.BatchSize < 0 {
		return fmt.Errorf("sync.batchSize must not be negative")
	}
	if c.Sync.Workers < 0 {
		return fmt.Errorf("sync.workers must not be negative")
	}
	if _, err := c.Sync.GetBatchTimeout(); err != nil {
		return fmt.Errorf("sync.batchTimeout must be a valid duration (e.g. '30s', '5m'): %w", err)
	}
	return nil
}

func (c *Config) validateTables() error {
	seen := make(map[string]bool)
	for i, t := range c.Tables {
		if t.Name == "" {
			return fmt.Errorf("tables[%d]: name is required", i)
		}
		if seen[t.Name] {
			return fmt.Errorf("tables[%d]: duplicate table name '%s'", i, t.Name)
		}
		seen[t.Name] = true
	}
	return nil
}

// TableSettings returns per-table settings keyed by table name.
func (c *Config) TableSettings() map[string]TableConfig {
	out := make(map[string]TableConfig, len(c.Tables))
	for _, t := range c.Tables {
		out[t.Name] = t
	}
	return out
}
