package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

// Helper to clear all config-related env vars
func clearEnv(t *testing.T) {
	t.Helper()
	envVars := []string{
		"REFDATA_PORT",
		"REFDATA_READ_TIMEOUT",
		"REFDATA_WRITE_TIMEOUT",
		"REFDATA_SHUTDOWN_TIMEOUT",
		"REFDATA_REQUEST_TIMEOUT",
		"REFDATA_MAX_BODY_BYTES",
		"REFDATA_DB_DRIVER",
		"REFDATA_DB_PATH",
		"REFDATA_DATABASE_URL",
		"DATABASE_URL",
		"REFDATA_DB_MAX_OPEN_CONNS",
		"REFDATA_SYNC_BATCH_SIZE",
		"REFDATA_CACHE_BACKEND",
		"REFDATA_CACHE_MAX_ENTRIES",
		"REFDATA_CACHE_CLIENTS_TTL",
		"REFDATA_CACHE_MASTER_TTL",
		"REFDATA_CACHE_PRODUCTS_TTL",
		"REFDATA_CACHE_SWEEP_INTERVAL",
		"REFDATA_ARCHIVE_BUCKET",
		"REFDATA_S3_ENDPOINT",
		"REFDATA_S3_REGION",
		"REFDATA_ARCHIVE_PREFIX",
		"REFDATA_S3_ACCESS_KEY",
		"REFDATA_S3_SECRET_KEY",
		"REFDATA_S3_USE_SSL",
		"REFDATA_ARCHIVE_QUEUE_SIZE",
		"REFDATA_LOG_LEVEL",
		"REFDATA_LOG_FORMAT",
		"REFDATA_CONFIG_PATH",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}
	// Keep a stray .env in the package dir from leaking into tests
	t.Setenv("REFDATA_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
}

// dur converts Duration to time.Duration for comparison
func dur(d Duration) time.Duration {
	return time.Duration(d)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// Test: Default values when no config file and no env vars
func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("REFDATA_CONFIG_PATH", filepath.Join(t.TempDir(), "none.yaml"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// Server defaults
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if dur(cfg.Server.RequestTimeout) != 5*time.Minute {
		t.Errorf("Server.RequestTimeout = %v, want 5m", dur(cfg.Server.RequestTimeout))
	}
	if cfg.Server.MaxBodyBytes != 100<<20 {
		t.Errorf("Server.MaxBodyBytes = %d, want %d", cfg.Server.MaxBodyBytes, 100<<20)
	}

	// Database defaults
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Database.Driver = %q, want %q", cfg.Database.Driver, "sqlite")
	}
	if cfg.Database.Path != "data/refdata.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "data/refdata.db")
	}

	if cfg.Sync.BatchSize != 1000 {
		t.Errorf("Sync.BatchSize = %d, want 1000", cfg.Sync.BatchSize)
	}

	// Cache defaults
	if cfg.Cache.Backend != "memory" {
		t.Errorf("Cache.Backend = %q, want memory", cfg.Cache.Backend)
	}
	if cfg.Cache.MaxEntries != 10000 {
		t.Errorf("Cache.MaxEntries = %d, want 10000", cfg.Cache.MaxEntries)
	}
	if cfg.Cache.TTL("clients") != 15*time.Minute {
		t.Errorf("TTL(clients) = %v, want 15m", cfg.Cache.TTL("clients"))
	}
	if cfg.Cache.TTL("master") != 30*time.Minute {
		t.Errorf("TTL(master) = %v, want 30m", cfg.Cache.TTL("master"))
	}
	if cfg.Cache.TTL("products") != 15*time.Minute {
		t.Errorf("TTL(products) = %v, want 15m", cfg.Cache.TTL("products"))
	}

	// Log defaults
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "json")
	}
}

func TestCacheConfig_TTL_UnknownEntity(t *testing.T) {
	cfg := newDefaults()
	if got := cfg.Cache.TTL("ledger"); got != 0 {
		t.Errorf("TTL(ledger) = %v, want 0", got)
	}
}

// Test: Environment variables override defaults
func TestLoad_EnvVarOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("REFDATA_PORT", "9090")
	t.Setenv("REFDATA_DB_PATH", "/tmp/test.db")
	t.Setenv("REFDATA_SYNC_BATCH_SIZE", "250")
	t.Setenv("REFDATA_CACHE_MASTER_TTL", "45m")
	t.Setenv("REFDATA_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.Sync.BatchSize != 250 {
		t.Errorf("Sync.BatchSize = %d, want 250", cfg.Sync.BatchSize)
	}
	if cfg.Cache.TTL("master") != 45*time.Minute {
		t.Errorf("TTL(master) = %v, want 45m", cfg.Cache.TTL("master"))
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
}

// Test: Empty env var does not override
func TestLoad_EmptyEnvVarDoesNotOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("REFDATA_PORT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080 (empty env should not override)", cfg.Server.Port)
	}
}

// Test: Load config from YAML file
func TestLoadFromFile_ValidYAML(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.yaml", `
server:
  port: 3000
  request_timeout: "90s"
database:
  path: "/data/ref.db"
sync:
  batch_size: 500
cache:
  backend: "database"
  products_ttl: "5m"
log:
  level: "warn"
  format: "text"
`)

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want 3000", cfg.Server.Port)
	}
	if dur(cfg.Server.RequestTimeout) != 90*time.Second {
		t.Errorf("Server.RequestTimeout = %v, want 90s", dur(cfg.Server.RequestTimeout))
	}
	if cfg.Database.Path != "/data/ref.db" {
		t.Errorf("Database.Path = %q, want /data/ref.db", cfg.Database.Path)
	}
	if cfg.Sync.BatchSize != 500 {
		t.Errorf("Sync.BatchSize = %d, want 500", cfg.Sync.BatchSize)
	}
	if cfg.Cache.Backend != "database" {
		t.Errorf("Cache.Backend = %q, want database", cfg.Cache.Backend)
	}
	if cfg.Cache.TTL("products") != 5*time.Minute {
		t.Errorf("TTL(products) = %v, want 5m", cfg.Cache.TTL("products"))
	}
	// Unset fields keep their defaults
	if cfg.Cache.TTL("master") != 30*time.Minute {
		t.Errorf("TTL(master) = %v, want 30m", cfg.Cache.TTL("master"))
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want text", cfg.Log.Format)
	}
}

// Test: Env vars override YAML values
func TestLoad_EnvOverridesYAML(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.yaml", `
server:
  port: 3000
cache:
  clients_ttl: "10m"
`)
	t.Setenv("REFDATA_CONFIG_PATH", path)
	t.Setenv("REFDATA_PORT", "4000")
	t.Setenv("REFDATA_CACHE_CLIENTS_TTL", "20m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 4000 {
		t.Errorf("Server.Port = %d, want 4000 (env should override YAML)", cfg.Server.Port)
	}
	if cfg.Cache.TTL("clients") != 20*time.Minute {
		t.Errorf("TTL(clients) = %v, want 20m", cfg.Cache.TTL("clients"))
	}
}

func TestLoadFromFile_InvalidYAML(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.yaml", "server:\n  port: [not\n")

	_, err := LoadFromFile(path)
	if err == nil {
		t.Fatal("LoadFromFile() expected error for invalid YAML")
	}
	if !strings.Contains(err.Error(), "parsing config file") {
		t.Errorf("error = %v, want parsing config file", err)
	}
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	clearEnv(t)
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("LoadFromFile() expected error for missing file")
	}
}

func TestLoadFromFile_InvalidDuration(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.yaml", "cache:\n  clients_ttl: \"soon\"\n")

	_, err := LoadFromFile(path)
	if err == nil {
		t.Fatal("LoadFromFile() expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "invalid duration") {
		t.Errorf("error = %v, want invalid duration", err)
	}
}

// Test: .env values are applied but do not override the real environment
func TestLoad_DotEnvFile(t *testing.T) {
	clearEnv(t)
	envFile := writeFile(t, "test.env", "REFDATA_PORT=7070\nREFDATA_LOG_LEVEL=debug\n")
	t.Setenv("REFDATA_ENV_FILE", envFile)
	t.Setenv("REFDATA_LOG_LEVEL", "error")
	t.Cleanup(func() { os.Unsetenv("REFDATA_PORT") })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d, want 7070 from .env", cfg.Server.Port)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("Log.Level = %q, want error (process env wins over .env)", cfg.Log.Level)
	}
}

func TestLoad_PostgresRequiresDSN(t *testing.T) {
	clearEnv(t)
	t.Setenv("REFDATA_DB_DRIVER", "postgres")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for postgres without DSN")
	}
	if !strings.Contains(err.Error(), "REFDATA_DATABASE_URL") {
		t.Errorf("error = %v, want mention of REFDATA_DATABASE_URL", err)
	}

	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/ref")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.DSN != "postgres://u:p@localhost/ref" {
		t.Errorf("Database.DSN = %q, want DATABASE_URL value", cfg.Database.DSN)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"unknown driver", map[string]string{"REFDATA_DB_DRIVER": "oracle"}, `database.driver "oracle"`},
		{"zero batch size", map[string]string{"REFDATA_SYNC_BATCH_SIZE": "0"}, "sync.batch_size"},
		{"unknown cache backend", map[string]string{"REFDATA_CACHE_BACKEND": "redis"}, `cache.backend "redis"`},
		{"zero ttl", map[string]string{"REFDATA_CACHE_PRODUCTS_TTL": "0s"}, "cache.products_ttl"},
		{"bucket without endpoint", map[string]string{"REFDATA_ARCHIVE_BUCKET": "syncs"}, "archive.endpoint"},
		{"unknown log format", map[string]string{"REFDATA_LOG_FORMAT": "xml"}, `log.format "xml"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil {
				t.Fatal("Load() expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want it to contain %q", err, tt.want)
			}
		})
	}
}

// Test: secrets are never serialized back to YAML
func TestConfig_SecretsNotInYAML(t *testing.T) {
	cfg := newDefaults()
	cfg.Database.DSN = "postgres://user:secret@db/ref"
	cfg.Archive.AccessKey = "AKIA-test"
	cfg.Archive.SecretKey = "shh"

	data, err := yaml.Marshal(cfg)
	if err != nil {
		t.Fatalf("yaml.Marshal() error = %v", err)
	}
	out := string(data)
	for _, secret := range []string{"secret@db", "AKIA-test", "shh"} {
		if strings.Contains(out, secret) {
			t.Errorf("marshaled config leaks %q:\n%s", secret, out)
		}
	}
	if !strings.Contains(out, "clients_ttl: 15m0s") {
		t.Errorf("marshaled config missing duration string:\n%s", out)
	}
}

func TestConfig_Archive_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Archive.Bucket != "" {
		t.Errorf("Archive.Bucket = %q, want empty (disabled)", cfg.Archive.Bucket)
	}
	if cfg.Archive.Region != "us-east-1" {
		t.Errorf("Archive.Region = %q, want us-east-1", cfg.Archive.Region)
	}
	if cfg.Archive.UseSSL == nil || !*cfg.Archive.UseSSL {
		t.Error("Archive.UseSSL should default to true")
	}
	if cfg.Archive.QueueSize != 16 {
		t.Errorf("Archive.QueueSize = %d, want 16", cfg.Archive.QueueSize)
	}
}

func TestConfig_Archive_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("REFDATA_ARCHIVE_BUCKET", "ref-syncs")
	t.Setenv("REFDATA_S3_ENDPOINT", "localhost:9000")
	t.Setenv("REFDATA_S3_REGION", "eu-west-1")
	t.Setenv("REFDATA_ARCHIVE_PREFIX", "prod")
	t.Setenv("REFDATA_S3_ACCESS_KEY", "minio")
	t.Setenv("REFDATA_S3_SECRET_KEY", "minio123")
	t.Setenv("REFDATA_S3_USE_SSL", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	a := cfg.Archive
	if a.Bucket != "ref-syncs" || a.Endpoint != "localhost:9000" || a.Region != "eu-west-1" || a.Prefix != "prod" {
		t.Errorf("Archive = %+v, want env values", a)
	}
	if a.AccessKey != "minio" || a.SecretKey != "minio123" {
		t.Errorf("Archive credentials not applied: %q/%q", a.AccessKey, a.SecretKey)
	}
	if a.UseSSL == nil || *a.UseSSL {
		t.Error("Archive.UseSSL should be false")
	}
}

func TestConfig_Archive_UseSSLFromYAML(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.yaml", `
archive:
  bucket: "b"
  endpoint: "s3.local"
  use_ssl: false
`)

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if cfg.Archive.UseSSL == nil || *cfg.Archive.UseSSL {
		t.Error("Archive.UseSSL should be false from YAML")
	}
}
