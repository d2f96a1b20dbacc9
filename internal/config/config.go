// Package config loads and validates application configuration from YAML files
// and environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SYLLABUKSU_"

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server" envPrefix:"SERVER_"`
	Identity      IdentityConfig      `yaml:"identity" envPrefix:"IDENTITY_"`
	Workflow      WorkflowConfig      `yaml:"workflow" envPrefix:"WORKFLOW_"`
	Storage       StorageConfig       `yaml:"storage" envPrefix:"STORAGE_"`
	Idempotency   IdempotencyConfig   `yaml:"idempotency" envPrefix:"IDEMPOTENCY_"`
	Notification  NotificationConfig  `yaml:"notification" envPrefix:"NOTIFICATION_"`
	Capability    CapabilityConfig    `yaml:"capability" envPrefix:"CAPABILITY_"`
	Observability ObservabilityConfig `yaml:"observability" envPrefix:"OBSERVABILITY_"`
}

// ServerConfig describes HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port" env:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	HandlerTimeout  time.Duration `yaml:"handler_timeout" env:"HANDLER_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	CORS            CORSConfig    `yaml:"cors" envPrefix:"CORS_"`
}

// CORSConfig describes Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAge         int      `yaml:"max_age"`
}

// IdentityConfig describes bearer-token verification. Exactly one of JWKSURL
// and HMACSecretEnv must be set.
type IdentityConfig struct {
	Issuer        string            `yaml:"issuer" env:"ISSUER"`
	Audience      string            `yaml:"audience" env:"AUDIENCE"`
	JWKSURL       string            `yaml:"jwks_url" env:"JWKS_URL"`
	JWKSCacheTTL  time.Duration     `yaml:"jwks_cache_ttl" env:"JWKS_CACHE_TTL"`
	HMACSecretEnv string            `yaml:"hmac_secret_env" env:"HMAC_SECRET_ENV"`
	Algorithms    []string          `yaml:"algorithms" env:"ALGORITHMS" envSeparator:","`
	ClaimPaths    map[string]string `yaml:"claim_paths"`
}

// HMACSecret returns the shared secret named by HMACSecretEnv.
func (c IdentityConfig) HMACSecret() string {
	if c.HMACSecretEnv == "" {
		return ""
	}
	return os.Getenv(c.HMACSecretEnv)
}

// WorkflowConfig describes the reviewer chain.
type WorkflowConfig struct {
	// CITLDirectApprove lets CITL approve without forwarding to the VPAA.
	CITLDirectApprove      bool `yaml:"citl_direct_approve" env:"CITL_DIRECT_APPROVE"`
	MinReturnCommentLength int  `yaml:"min_return_comment_length" env:"MIN_RETURN_COMMENT_LENGTH"`

	// SubmitOnUpload is the default for uploads that do not say whether
	// to submit immediately.
	SubmitOnUpload bool `yaml:"submit_on_upload" env:"SUBMIT_ON_UPLOAD"`
}

// StorageConfig describes persistence settings.
type StorageConfig struct {
	Driver          string        `yaml:"driver" env:"DRIVER"`
	DSNEnv          string        `yaml:"dsn_env" env:"DSN_ENV"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MinIdleConns    int           `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	MigrateOnStart  bool          `yaml:"migrate_on_start" env:"MIGRATE_ON_START"`

	// SeedUsersFile lists accounts created at startup when their email is
	// not yet registered.
	SeedUsersFile string `yaml:"seed_users_file" env:"SEED_USERS_FILE"`
}

// DSN returns the connection string named by DSNEnv.
func (c StorageConfig) DSN() string {
	if c.DSNEnv == "" {
		return ""
	}
	return os.Getenv(c.DSNEnv)
}

// IdempotencyConfig describes idempotency store settings.
type IdempotencyConfig struct {
	Enabled bool                   `yaml:"enabled" env:"ENABLED"`
	Store   IdempotencyStoreConfig `yaml:"store" envPrefix:"STORE_"`
}

// IdempotencyStoreConfig describes idempotency persistence settings.
type IdempotencyStoreConfig struct {
	Driver     string        `yaml:"driver" env:"DRIVER"`
	AddrEnv    string        `yaml:"addr_env" env:"ADDR_ENV"`
	DB         int           `yaml:"db" env:"DB"`
	DefaultTTL time.Duration `yaml:"default_ttl" env:"DEFAULT_TTL"`
}

// Addr returns the Redis address named by AddrEnv.
func (c IdempotencyStoreConfig) Addr() string {
	if c.AddrEnv == "" {
		return ""
	}
	return os.Getenv(c.AddrEnv)
}

// NotificationConfig describes notification delivery.
type NotificationConfig struct {
	Email EmailConfig `yaml:"email" envPrefix:"EMAIL_"`
}

// EmailConfig describes the email channel.
type EmailConfig struct {
	Provider      string         `yaml:"provider" env:"PROVIDER"`
	From          string         `yaml:"from" env:"FROM"`
	FromName      string         `yaml:"from_name" env:"FROM_NAME"`
	SubjectPrefix string         `yaml:"subject_prefix" env:"SUBJECT_PREFIX"`
	SendTimeout   time.Duration  `yaml:"send_timeout" env:"SEND_TIMEOUT"`
	SMTP          SMTPConfig     `yaml:"smtp" envPrefix:"SMTP_"`
	SendGrid      SendGridConfig `yaml:"sendgrid" envPrefix:"SENDGRID_"`
	Breaker       BreakerConfig  `yaml:"breaker" envPrefix:"BREAKER_"`
}

// BreakerConfig describes when email delivery is suspended after provider
// failures.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold" env:"FAILURE_THRESHOLD"`
	SuccessThreshold int           `yaml:"success_threshold" env:"SUCCESS_THRESHOLD"`
	Cooldown         time.Duration `yaml:"cooldown" env:"COOLDOWN"`
}

// SMTPConfig describes an SMTP relay.
type SMTPConfig struct {
	Host          string `yaml:"host" env:"HOST"`
	Port          int    `yaml:"port" env:"PORT"`
	Username      string `yaml:"username" env:"USERNAME"`
	PasswordEnv   string `yaml:"password_env" env:"PASSWORD_ENV"`
	SkipTLSVerify bool   `yaml:"skip_tls_verify" env:"SKIP_TLS_VERIFY"`
}

// Password returns the SMTP password named by PasswordEnv.
func (c SMTPConfig) Password() string {
	if c.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(c.PasswordEnv)
}

// SendGridConfig describes the SendGrid API.
type SendGridConfig struct {
	APIKeyEnv string `yaml:"api_key_env" env:"API_KEY_ENV"`
	Host      string `yaml:"host" env:"HOST"`
}

// APIKey returns the SendGrid key named by APIKeyEnv.
func (c SendGridConfig) APIKey() string {
	if c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}

// CapabilityConfig describes authorization settings.
type CapabilityConfig struct {
	StaticPolicyFile string      `yaml:"static_policy_file" env:"STATIC_POLICY_FILE"`
	Cache            CacheConfig `yaml:"cache" envPrefix:"CACHE_"`
}

// CacheConfig describes cache settings.
type CacheConfig struct {
	TTL        time.Duration `yaml:"ttl" env:"TTL"`
	MaxEntries int           `yaml:"max_entries" env:"MAX_ENTRIES"`
}

// ObservabilityConfig describes logging, tracing, and metrics settings.
type ObservabilityConfig struct {
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`

	// LogFormat is "json" (default) or "console".
	LogFormat string        `yaml:"log_format" env:"LOG_FORMAT"`
	Tracing   TracingConfig `yaml:"tracing" envPrefix:"TRACING_"`
	Metrics   MetricsConfig `yaml:"metrics" envPrefix:"METRICS_"`
}

// TracingConfig describes distributed tracing settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	Exporter     string  `yaml:"exporter" env:"EXPORTER"`
	Endpoint     string  `yaml:"endpoint" env:"ENDPOINT"`
	SamplingRate float64 `yaml:"sampling_rate" env:"SAMPLING_RATE"`

	// AlwaysSampleWorkflow records every workflow.* span regardless of
	// SamplingRate.
	AlwaysSampleWorkflow bool `yaml:"always_sample_workflow" env:"ALWAYS_SAMPLE_WORKFLOW"`
}

// MetricsConfig describes Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Path    string `yaml:"path" env:"PATH"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			HandlerTimeout:  25 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			CORS: CORSConfig{
				AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
				AllowedHeaders: []string{"Authorization", "Content-Type",
					"X-Correlation-Id", "X-Idempotency-Key"},
				MaxAge: 86400,
			},
		},
		Identity: IdentityConfig{
			JWKSCacheTTL: 1 * time.Hour,
			Algorithms:   []string{"RS256"},
			ClaimPaths: map[string]string{
				"subject_id": "sub",
				"email":      "email",
				"role":       "role",
			},
		},
		Workflow: WorkflowConfig{
			MinReturnCommentLength: 20,
		},
		Storage: StorageConfig{
			Driver:          "memory",
			DSNEnv:          "SYLLABUKSU_DATABASE_URL",
			MaxOpenConns:    25,
			MinIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
			MigrateOnStart:  true,
		},
		Idempotency: IdempotencyConfig{
			Enabled: true,
			Store: IdempotencyStoreConfig{
				Driver:     "memory",
				AddrEnv:    "SYLLABUKSU_REDIS_ADDR",
				DefaultTTL: 24 * time.Hour,
			},
		},
		Notification: NotificationConfig{
			Email: EmailConfig{
				Provider:      "none",
				FromName:      "Syllabuksu",
				SubjectPrefix: "[Syllabuksu] ",
				SendTimeout:   15 * time.Second,
				SMTP: SMTPConfig{
					Port:        587,
					PasswordEnv: "SYLLABUKSU_SMTP_PASSWORD",
				},
				SendGrid: SendGridConfig{
					APIKeyEnv: "SYLLABUKSU_SENDGRID_API_KEY",
					Host:      "https://api.sendgrid.com",
				},
				Breaker: BreakerConfig{
					FailureThreshold: 5,
					SuccessThreshold: 2,
					Cooldown:         time.Minute,
				},
			},
		},
		Capability: CapabilityConfig{
			Cache: CacheConfig{
				TTL:        5 * time.Minute,
				MaxEntries: 10000,
			},
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "json",
			Tracing: TracingConfig{
				Exporter:     "otlp",
				SamplingRate: 0.1,
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: loading %s: %w", path, err)
	}
	return nil
}

// Load reads an optional YAML config file, applies environment variable
// overrides, and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required fields are present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if c.Identity.Issuer == "" {
		errs = append(errs, "identity.issuer is required")
	}
	if c.Identity.Audience == "" {
		errs = append(errs, "identity.audience is required")
	}
	switch {
	case c.Identity.JWKSURL == "" && c.Identity.HMACSecretEnv == "":
		errs = append(errs, "one of identity.jwks_url or identity.hmac_secret_env is required")
	case c.Identity.JWKSURL != "" && c.Identity.HMACSecretEnv != "":
		errs = append(errs, "identity.jwks_url and identity.hmac_secret_env are mutually exclusive")
	case c.Identity.HMACSecretEnv != "" && c.Identity.HMACSecret() == "":
		errs = append(errs, fmt.Sprintf("environment variable %s (identity.hmac_secret_env) is empty", c.Identity.HMACSecretEnv))
	}
	if c.Workflow.MinReturnCommentLength < 1 {
		errs = append(errs, "workflow.min_return_comment_length must be positive")
	}

	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if c.Storage.DSN() == "" {
			errs = append(errs, fmt.Sprintf("environment variable %s (storage.dsn_env) is empty", c.Storage.DSNEnv))
		}
	default:
		errs = append(errs, fmt.Sprintf("storage.driver %q must be memory or postgres", c.Storage.Driver))
	}

	if c.Idempotency.Enabled {
		switch c.Idempotency.Store.Driver {
		case "memory":
		case "redis":
			if c.Idempotency.Store.Addr() == "" {
				errs = append(errs, fmt.Sprintf("environment variable %s (idempotency.store.addr_env) is empty", c.Idempotency.Store.AddrEnv))
			}
		default:
			errs = append(errs, fmt.Sprintf("idempotency.store.driver %q must be memory or redis", c.Idempotency.Store.Driver))
		}
	}

	email := c.Notification.Email
	switch email.Provider {
	case "none", "log":
	case "smtp":
		if email.SMTP.Host == "" {
			errs = append(errs, "notification.email.smtp.host is required for the smtp provider")
		}
		if email.From == "" {
			errs = append(errs, "notification.email.from is required for the smtp provider")
		}
	case "sendgrid":
		if email.SendGrid.APIKey() == "" {
			errs = append(errs, fmt.Sprintf("environment variable %s (notification.email.sendgrid.api_key_env) is empty", email.SendGrid.APIKeyEnv))
		}
		if email.From == "" {
			errs = append(errs, "notification.email.from is required for the sendgrid provider")
		}
	default:
		errs = append(errs, fmt.Sprintf("notification.email.provider %q must be none, log, smtp or sendgrid", email.Provider))
	}

	switch c.Observability.LogFormat {
	case "", "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("observability.log_format %q must be json or console", c.Observability.LogFormat))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// applyEnvOverrides reads SYLLABUKSU_* environment variables over the loaded
// values. Unset variables leave the field untouched.
func applyEnvOverrides(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("config: environment: %w", err)
	}
	return nil
}
