package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Sync     SyncConfig     `yaml:"sync"`
	Cache    CacheConfig    `yaml:"cache"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
	RequestTimeout  Duration `yaml:"request_timeout"`
	MaxBodyBytes    int64    `yaml:"max_body_bytes"`
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver       string `yaml:"driver"`
	Path         string `yaml:"path"`
	DSN          string `yaml:"-"` // env-only, may carry credentials
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// SyncConfig contains bulk loader settings.
type SyncConfig struct {
	BatchSize int `yaml:"batch_size"`
}

// CacheConfig contains read cache settings.
type CacheConfig struct {
	// Backend is "memory" or "database".
	Backend       string   `yaml:"backend"`
	MaxEntries    int      `yaml:"max_entries"`
	ClientsTTL    Duration `yaml:"clients_ttl"`
	MasterTTL     Duration `yaml:"master_ttl"`
	ProductsTTL   Duration `yaml:"products_ttl"`
	SweepInterval Duration `yaml:"sweep_interval"`
}

// TTL returns the cache lifetime for an entity's listings.
func (c CacheConfig) TTL(entity string) time.Duration {
	switch entity {
	case "clients":
		return time.Duration(c.ClientsTTL)
	case "master":
		return time.Duration(c.MasterTTL)
	case "products":
		return time.Duration(c.ProductsTTL)
	default:
		return 0
	}
}

// ArchiveConfig contains settings for archiving committed sync payloads to
// S3-compatible storage. Archiving is disabled when Bucket is empty.
type ArchiveConfig struct {
	Bucket    string `yaml:"bucket"`
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"-"` // env-only
	SecretKey string `yaml:"-"` // env-only
	UseSSL    *bool  `yaml:"use_ssl"`
	QueueSize int    `yaml:"queue_size"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence:
// defaults → YAML file → .env file → env vars.
// Returns an immutable Config suitable for concurrent read access.
func Load() (*Config, error) {
	cfg := newDefaults()

	// Determine config path
	configPath := getEnv("REFDATA_CONFIG_PATH", "config/refdata.yaml")

	// Load YAML file if it exists (missing file is not an error)
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	if err := loadDotEnv(getEnv("REFDATA_ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific path.
// Used for testing and explicit path specification.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	// Load YAML file (file must exist for this function)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	useSSL := true
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     Duration(2 * time.Minute),
			WriteTimeout:    Duration(5 * time.Minute),
			ShutdownTimeout: Duration(15 * time.Second),
			RequestTimeout:  Duration(5 * time.Minute),
			MaxBodyBytes:    100 << 20,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "data/refdata.db",
		},
		Sync: SyncConfig{
			BatchSize: 1000,
		},
		Cache: CacheConfig{
			Backend:       "memory",
			MaxEntries:    10000,
			ClientsTTL:    Duration(15 * time.Minute),
			MasterTTL:     Duration(30 * time.Minute),
			ProductsTTL:   Duration(15 * time.Minute),
			SweepInterval: Duration(5 * time.Minute),
		},
		Archive: ArchiveConfig{
			Region:    "us-east-1",
			Prefix:    "syncs",
			UseSSL:    &useSSL,
			QueueSize: 16,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// loadYAMLFile loads configuration from a YAML file if it exists.
// Missing file is not an error; we just use defaults.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Missing file is OK; use defaults
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// loadDotEnv exports variables from a .env file into the process
// environment. Variables already set are left untouched. A missing file
// is not an error.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("parsing env file: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("REFDATA_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	overrideDuration("REFDATA_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	overrideDuration("REFDATA_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	overrideDuration("REFDATA_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	overrideDuration("REFDATA_REQUEST_TIMEOUT", &cfg.Server.RequestTimeout)
	if v := os.Getenv("REFDATA_MAX_BODY_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Server.MaxBodyBytes = n
		}
	}

	// Database
	if v := os.Getenv("REFDATA_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("REFDATA_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	// DATABASE_URL is the common convention for hosted postgres
	if v := getEnv("REFDATA_DATABASE_URL", os.Getenv("DATABASE_URL")); v != "" {
		cfg.Database.DSN = v
	}
	overrideInt("REFDATA_DB_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns)

	// Sync
	overrideInt("REFDATA_SYNC_BATCH_SIZE", &cfg.Sync.BatchSize)

	// Cache
	if v := os.Getenv("REFDATA_CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = v
	}
	overrideInt("REFDATA_CACHE_MAX_ENTRIES", &cfg.Cache.MaxEntries)
	overrideDuration("REFDATA_CACHE_CLIENTS_TTL", &cfg.Cache.ClientsTTL)
	overrideDuration("REFDATA_CACHE_MASTER_TTL", &cfg.Cache.MasterTTL)
	overrideDuration("REFDATA_CACHE_PRODUCTS_TTL", &cfg.Cache.ProductsTTL)
	overrideDuration("REFDATA_CACHE_SWEEP_INTERVAL", &cfg.Cache.SweepInterval)

	// Archive
	if v := os.Getenv("REFDATA_ARCHIVE_BUCKET"); v != "" {
		cfg.Archive.Bucket = v
	}
	if v := os.Getenv("REFDATA_S3_ENDPOINT"); v != "" {
		cfg.Archive.Endpoint = v
	}
	if v := os.Getenv("REFDATA_S3_REGION"); v != "" {
		cfg.Archive.Region = v
	}
	if v := os.Getenv("REFDATA_ARCHIVE_PREFIX"); v != "" {
		cfg.Archive.Prefix = v
	}
	if v := os.Getenv("REFDATA_S3_ACCESS_KEY"); v != "" {
		cfg.Archive.AccessKey = v
	}
	if v := os.Getenv("REFDATA_S3_SECRET_KEY"); v != "" {
		cfg.Archive.SecretKey = v
	}
	if v := os.Getenv("REFDATA_S3_USE_SSL"); v != "" {
		useSSL := v == "true" || v == "1"
		cfg.Archive.UseSSL = &useSSL
	}
	overrideInt("REFDATA_ARCHIVE_QUEUE_SIZE", &cfg.Archive.QueueSize)

	// Log
	if v := os.Getenv("REFDATA_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("REFDATA_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

func overrideDuration(key string, dst *Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = Duration(d)
		}
	}
}

func overrideInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// validate checks that configuration values are usable.
func (c *Config) validate() error {
	var errs []error

	switch strings.ToLower(c.Database.Driver) {
	case "sqlite", "sqlite3":
		if c.Database.Path == "" {
			errs = append(errs, errors.New("database.path is required for sqlite"))
		}
	case "postgres", "postgresql", "pgx":
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("REFDATA_DATABASE_URL is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not supported", c.Database.Driver))
	}

	if c.Sync.BatchSize < 1 {
		errs = append(errs, errors.New("sync.batch_size must be positive"))
	}

	switch c.Cache.Backend {
	case "memory", "database":
	default:
		errs = append(errs, fmt.Errorf("cache.backend %q is not supported", c.Cache.Backend))
	}
	for name, ttl := range map[string]Duration{
		"cache.clients_ttl":  c.Cache.ClientsTTL,
		"cache.master_ttl":   c.Cache.MasterTTL,
		"cache.products_ttl": c.Cache.ProductsTTL,
	} {
		if ttl <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}

	if c.Archive.Bucket != "" && c.Archive.Endpoint == "" {
		errs = append(errs, errors.New("archive.endpoint is required when archive.bucket is set"))
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not supported", c.Log.Format))
	}

	return errors.Join(errs...)
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
