package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "caseforge.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	path := DefaultConfigFile
	if v := os.Getenv("CASEFORGE_CONFIG"); v != "" {
		path = v
	}
	return LoadFrom(path)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: operator-supplied config path
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "CASEFORGE_PORT")
	setString(&cfg.Server.CORSOrigin, "CASEFORGE_CORS_ORIGIN")
	setDuration(&cfg.Server.RequestTimeout, "CASEFORGE_REQUEST_TIMEOUT")
	setInt64(&cfg.Server.BodyLimit, "CASEFORGE_BODY_LIMIT")
	setDuration(&cfg.Server.IdempotencyTTL, "CASEFORGE_IDEMPOTENCY_TTL")

	setString(&cfg.Storage.Backend, "CASEFORGE_STORAGE_BACKEND")
	setString(&cfg.Storage.DataDir, "CASEFORGE_DATA_DIR")
	setDuration(&cfg.Storage.Timeout, "CASEFORGE_STORAGE_TIMEOUT")
	setInt(&cfg.Storage.MaxCASRetries, "CASEFORGE_STORAGE_MAX_CAS_RETRIES")

	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "CASEFORGE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "CASEFORGE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "CASEFORGE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "CASEFORGE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "CASEFORGE_PG_HEALTH_CHECK")

	setString(&cfg.NATS.URL, "NATS_URL")

	setString(&cfg.Logging.Level, "CASEFORGE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "CASEFORGE_LOG_SERVICE")

	setInt64(&cfg.Cache.MaxSizeMB, "CASEFORGE_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.StatsTTL, "CASEFORGE_CACHE_STATS_TTL")
	setString(&cfg.Cache.Bucket, "CASEFORGE_CACHE_BUCKET")
	setDuration(&cfg.Cache.BucketTTL, "CASEFORGE_CACHE_BUCKET_TTL")
	setDuration(&cfg.Cache.L1TTL, "CASEFORGE_CACHE_L1_TTL")

	setDuration(&cfg.Sessions.TTL, "CASEFORGE_SESSION_TTL")
	setDuration(&cfg.Sessions.SweepInterval, "CASEFORGE_SESSION_SWEEP_INTERVAL")

	setString(&cfg.Agents.URL, "AGENTS_API_URL")
	setDuration(&cfg.Agents.Timeout, "AGENTS_API_TIMEOUT")
	setString(&cfg.Agents.UserID, "CASEFORGE_AGENTS_USER_ID")

	setString(&cfg.Jira.BaseURL, "JIRA_BASE_URL")
	setString(&cfg.Jira.Email, "JIRA_EMAIL")
	setString(&cfg.Jira.APIToken, "JIRA_API_TOKEN")
	setString(&cfg.Jira.ProjectKey, "JIRA_PROJECT_KEY")
	setFloat64(&cfg.Jira.RequestsPerSecond, "CASEFORGE_JIRA_RPS")
	setInt(&cfg.Jira.Burst, "CASEFORGE_JIRA_BURST")

	setInt(&cfg.Breaker.MaxFailures, "CASEFORGE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "CASEFORGE_BREAKER_TIMEOUT")

	setBool(&cfg.MCP.Enabled, "CASEFORGE_MCP_ENABLED")
	setString(&cfg.MCP.Path, "CASEFORGE_MCP_PATH")
	setString(&cfg.MCP.APIKey, "CASEFORGE_MCP_API_KEY")

	setString(&cfg.Telemetry.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(&cfg.Telemetry.Insecure, "CASEFORGE_OTEL_INSECURE")
	setFloat64(&cfg.Telemetry.SampleRatio, "CASEFORGE_OTEL_SAMPLE_RATIO")

	setFloat64(&cfg.Rate.RequestsPerSecond, "CASEFORGE_RATE_RPS")
	setInt(&cfg.Rate.Burst, "CASEFORGE_RATE_BURST")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	switch cfg.Storage.Backend {
	case "sqlite":
		if cfg.Storage.DataDir == "" {
			return errors.New("storage.data_dir is required for sqlite")
		}
	case "postgres":
		if cfg.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required for postgres storage")
		}
		if cfg.Postgres.MaxConns < 1 {
			return errors.New("postgres.max_conns must be >= 1")
		}
	default:
		return fmt.Errorf("storage.backend %q must be sqlite or postgres", cfg.Storage.Backend)
	}
	if cfg.Storage.Timeout <= 0 {
		return errors.New("storage.timeout must be > 0")
	}
	if cfg.Storage.MaxCASRetries < 1 {
		return errors.New("storage.max_cas_retries must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Sessions.TTL <= 0 {
		return errors.New("sessions.ttl must be > 0")
	}
	if cfg.Rate.RequestsPerSecond <= 0 || cfg.Rate.Burst < 1 {
		return errors.New("rate.requests_per_second must be > 0 and rate.burst >= 1")
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return errors.New("telemetry.sample_ratio must be within [0, 1]")
	}
	if cfg.Jira.BaseURL != "" && (cfg.Jira.RequestsPerSecond <= 0 || cfg.Jira.Burst < 1) {
		return errors.New("jira.requests_per_second must be > 0 and jira.burst >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
