package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/campus/pkg/observability"
	"github.com/platinummonkey/campus/pkg/storage"
	"github.com/platinummonkey/campus/pkg/tenants"
)

// ConfigFileEnv names the optional YAML file read before the environment
const ConfigFileEnv = "CAMPUS_CONFIG_FILE"

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Storage       storage.Config      `yaml:"storage"`
	Tenancy       TenancyConfig       `yaml:"tenancy"`
	Auth          AuthConfig          `yaml:"auth"`
	Audit         AuditConfig         `yaml:"audit"`
	Notify        NotifyConfig        `yaml:"notify"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`

	CORSOrigins []string `yaml:"cors_origins"`
	// TrustProxy honours X-Forwarded-For for client addresses
	TrustProxy bool `yaml:"trust_proxy"`
}

// TenancyConfig controls how requests are mapped to tenants
type TenancyConfig struct {
	BaseDomain           string `yaml:"base_domain"`
	TenantHeader         string `yaml:"tenant_header"`
	SchoolHeader         string `yaml:"school_header"`
	ActiveRoleHeader     string `yaml:"active_role_header"`
	AllowExpiredReadOnly bool   `yaml:"allow_expired_read_only"`
}

// Headers returns the header names used for tenant hints
func (t TenancyConfig) Headers() tenants.HeaderNames {
	return tenants.HeaderNames{Tenant: t.TenantHeader, School: t.SchoolHeader}
}

// AuthConfig holds credential settings
type AuthConfig struct {
	SessionTTL      time.Duration `yaml:"session_ttl"`
	CleanupSchedule string        `yaml:"cleanup_schedule"`
	// LoginRateLimit is the number of login attempts per client address per minute
	LoginRateLimit int `yaml:"login_rate_limit"`
}

// AuditConfig selects the audit sinks
type AuditConfig struct {
	DBEnabled bool   `yaml:"db_enabled"`
	FilePath  string `yaml:"file_path"`
	LogSink   bool   `yaml:"log_sink"`
}

// NotifyConfig configures the notification publisher
type NotifyConfig struct {
	Channel   string        `yaml:"channel"`
	Workers   int           `yaml:"workers"`
	QueueSize int           `yaml:"queue_size"`
	Timeout   time.Duration `yaml:"timeout"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	MetricsEnabled bool `yaml:"metrics_enabled"`

	OTelEnabled        bool   `yaml:"otel_enabled"`
	OTelEndpoint       string `yaml:"otel_endpoint"`
	OTelServiceName    string `yaml:"otel_service_name"`
	OTelServiceVersion string `yaml:"otel_service_version"`
	OTelInsecure       bool   `yaml:"otel_insecure"`
}

// Level returns the parsed log level
func (o ObservabilityConfig) Level() observability.LogLevel {
	return observability.ParseLevel(o.LogLevel)
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			HealthPort:      "9090",
		},
		Storage: storage.DefaultConfig(),
		Tenancy: TenancyConfig{
			TenantHeader:     "X-Tenant-ID",
			SchoolHeader:     "X-School-ID",
			ActiveRoleHeader: "X-Active-Role",
		},
		Auth: AuthConfig{
			SessionTTL:      12 * time.Hour,
			CleanupSchedule: "17 * * * *",
			LoginRateLimit:  10,
		},
		Audit: AuditConfig{
			DBEnabled: true,
			LogSink:   true,
		},
		Notify: NotifyConfig{
			Channel:   "campus:notifications",
			Workers:   4,
			QueueSize: 256,
			Timeout:   5 * time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			LogFormat:          "json",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "campus",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
		},
	}
}

// LoadConfig builds the configuration from defaults, the optional YAML file
// named by CAMPUS_CONFIG_FILE and CAMPUS_* environment variables, in that order
func LoadConfig() (*Config, error) {
	return Load(os.Getenv(ConfigFileEnv))
}

// Load is LoadConfig with an explicit file path; an empty path skips the file
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	s := &c.Server
	s.Host = getEnv("CAMPUS_HOST", s.Host)
	s.Port = getEnv("CAMPUS_PORT", s.Port)
	s.ReadTimeout = getEnvDuration("CAMPUS_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("CAMPUS_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("CAMPUS_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("CAMPUS_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.HealthPort = getEnv("CAMPUS_HEALTH_PORT", s.HealthPort)
	s.CORSOrigins = getEnvList("CAMPUS_CORS_ORIGINS", s.CORSOrigins)
	s.TrustProxy = getEnvBool("CAMPUS_TRUST_PROXY", s.TrustProxy)

	st := &c.Storage
	st.PostgresURL = getEnv("CAMPUS_POSTGRES_URL", st.PostgresURL)
	st.PostgresMaxConns = getEnvInt("CAMPUS_POSTGRES_MAX_CONNS", st.PostgresMaxConns)
	st.PostgresMinConns = getEnvInt("CAMPUS_POSTGRES_MIN_CONNS", st.PostgresMinConns)
	st.PostgresTimeout = getEnvDuration("CAMPUS_POSTGRES_TIMEOUT", st.PostgresTimeout)
	st.RedisURL = getEnv("CAMPUS_REDIS_URL", st.RedisURL)
	st.RedisPassword = getEnv("CAMPUS_REDIS_PASSWORD", st.RedisPassword)
	st.RedisDB = getEnvInt("CAMPUS_REDIS_DB", st.RedisDB)
	st.RedisPoolSize = getEnvInt("CAMPUS_REDIS_POOL_SIZE", st.RedisPoolSize)
	st.S3Endpoint = getEnv("CAMPUS_S3_ENDPOINT", st.S3Endpoint)
	st.S3Region = getEnv("CAMPUS_S3_REGION", st.S3Region)
	st.S3Bucket = getEnv("CAMPUS_S3_BUCKET", st.S3Bucket)
	st.S3AccessKey = getEnv("CAMPUS_S3_ACCESS_KEY", st.S3AccessKey)
	st.S3SecretKey = getEnv("CAMPUS_S3_SECRET_KEY", st.S3SecretKey)
	st.S3UsePathStyle = getEnvBool("CAMPUS_S3_USE_PATH_STYLE", st.S3UsePathStyle)

	t := &c.Tenancy
	t.BaseDomain = getEnv("CAMPUS_BASE_DOMAIN", t.BaseDomain)
	t.TenantHeader = getEnv("CAMPUS_TENANT_HEADER", t.TenantHeader)
	t.SchoolHeader = getEnv("CAMPUS_SCHOOL_HEADER", t.SchoolHeader)
	t.ActiveRoleHeader = getEnv("CAMPUS_ACTIVE_ROLE_HEADER", t.ActiveRoleHeader)
	t.AllowExpiredReadOnly = getEnvBool("CAMPUS_ALLOW_EXPIRED_READ_ONLY", t.AllowExpiredReadOnly)

	a := &c.Auth
	a.SessionTTL = getEnvDuration("CAMPUS_SESSION_TTL", a.SessionTTL)
	a.CleanupSchedule = getEnv("CAMPUS_TOKEN_CLEANUP_SCHEDULE", a.CleanupSchedule)
	a.LoginRateLimit = getEnvInt("CAMPUS_LOGIN_RATE_LIMIT", a.LoginRateLimit)

	au := &c.Audit
	au.DBEnabled = getEnvBool("CAMPUS_AUDIT_DB", au.DBEnabled)
	au.FilePath = getEnv("CAMPUS_AUDIT_FILE", au.FilePath)
	au.LogSink = getEnvBool("CAMPUS_AUDIT_LOG", au.LogSink)

	n := &c.Notify
	n.Channel = getEnv("CAMPUS_NOTIFY_CHANNEL", n.Channel)
	n.Workers = getEnvInt("CAMPUS_NOTIFY_WORKERS", n.Workers)
	n.QueueSize = getEnvInt("CAMPUS_NOTIFY_QUEUE_SIZE", n.QueueSize)
	n.Timeout = getEnvDuration("CAMPUS_NOTIFY_TIMEOUT", n.Timeout)

	o := &c.Observability
	o.LogLevel = getEnv("CAMPUS_LOG_LEVEL", o.LogLevel)
	o.LogFormat = getEnv("CAMPUS_LOG_FORMAT", o.LogFormat)
	o.MetricsEnabled = getEnvBool("CAMPUS_METRICS_ENABLED", o.MetricsEnabled)
	o.OTelEnabled = getEnvBool("CAMPUS_OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("CAMPUS_OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("CAMPUS_OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv("CAMPUS_OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool("CAMPUS_OTEL_INSECURE", o.OTelInsecure)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, fmt.Errorf("server port is required"))
	}
	if c.Server.HealthPort == "" {
		errs = append(errs, fmt.Errorf("health port is required"))
	}
	if c.Server.Port != "" && c.Server.Port == c.Server.HealthPort {
		errs = append(errs, fmt.Errorf("server port and health port must be different"))
	}

	if c.Storage.PostgresURL == "" {
		errs = append(errs, fmt.Errorf("postgres URL is required"))
	}

	if c.Tenancy.TenantHeader == "" || c.Tenancy.SchoolHeader == "" || c.Tenancy.ActiveRoleHeader == "" {
		errs = append(errs, fmt.Errorf("tenant, school and active role header names are required"))
	}

	if c.Auth.SessionTTL <= 0 {
		errs = append(errs, fmt.Errorf("session TTL must be positive"))
	}
	if _, err := cron.ParseStandard(c.Auth.CleanupSchedule); err != nil {
		errs = append(errs, fmt.Errorf("invalid token cleanup schedule %q: %w", c.Auth.CleanupSchedule, err))
	}

	switch c.Observability.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("invalid log format %q (must be json or text)", c.Observability.LogFormat))
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			errs = append(errs, fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled"))
		}
		if c.Observability.OTelServiceName == "" {
			errs = append(errs, fmt.Errorf("OpenTelemetry service name is required when OTel is enabled"))
		}
	}

	return errors.Join(errs...)
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList returns a comma separated environment variable or a default
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
