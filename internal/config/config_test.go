package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_valid(t *testing.T) {
	cfg, err := Load("testdata/valid.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("Server.ReadTimeout = %v, want 15s", cfg.Server.ReadTimeout)
	}
	if cfg.Server.WriteTimeout != 30*time.Second {
		t.Errorf("Server.WriteTimeout = %v, want default 30s", cfg.Server.WriteTimeout)
	}
	if cfg.Identity.Issuer != "https://auth.example.edu" {
		t.Errorf("Identity.Issuer = %q", cfg.Identity.Issuer)
	}
	if cfg.Identity.JWKSURL != "https://auth.example.edu/.well-known/jwks.json" {
		t.Errorf("Identity.JWKSURL = %q", cfg.Identity.JWKSURL)
	}
	if len(cfg.Identity.Algorithms) != 2 {
		t.Errorf("Identity.Algorithms = %v, want 2 entries", cfg.Identity.Algorithms)
	}
	if !cfg.Workflow.CITLDirectApprove {
		t.Error("Workflow.CITLDirectApprove = false, want true")
	}
	if cfg.Workflow.MinReturnCommentLength != 25 {
		t.Errorf("Workflow.MinReturnCommentLength = %d, want 25", cfg.Workflow.MinReturnCommentLength)
	}
	if cfg.Idempotency.Store.DefaultTTL != 12*time.Hour {
		t.Errorf("Idempotency.Store.DefaultTTL = %v, want 12h", cfg.Idempotency.Store.DefaultTTL)
	}
	if cfg.Notification.Email.Provider != "log" {
		t.Errorf("Notification.Email.Provider = %q, want log", cfg.Notification.Email.Provider)
	}
}

func TestLoad_missing_file(t *testing.T) {
	_, err := Load("testdata/nonexistent.yaml")
	if err == nil {
		t.Fatal("Load() with missing file should return error")
	}
}

func TestLoad_missing_identity(t *testing.T) {
	_, err := Load("testdata/missing_identity.yaml")
	if err == nil {
		t.Fatal("Load() with missing identity should return error")
	}
	for _, want := range []string{"identity.issuer", "identity.audience", "identity.jwks_url"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should mention %s", err, want)
		}
	}
}

func TestLoad_emptyPath_usesDefaultsAndEnv(t *testing.T) {
	t.Setenv("SYLLABUKSU_IDENTITY_ISSUER", "https://env.example.edu")
	t.Setenv("SYLLABUKSU_IDENTITY_AUDIENCE", "syllabuksu")
	t.Setenv("SYLLABUKSU_IDENTITY_JWKS_URL", "https://env.example.edu/jwks.json")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want default 8080", cfg.Server.Port)
	}
	if cfg.Identity.Issuer != "https://env.example.edu" {
		t.Errorf("Identity.Issuer = %q, want env value", cfg.Identity.Issuer)
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Server.Port != 8080 {
		t.Errorf("default Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Capability.Cache.TTL != 5*time.Minute {
		t.Errorf("default Capability.Cache.TTL = %v, want 5m", cfg.Capability.Cache.TTL)
	}
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("default LogLevel = %q, want info", cfg.Observability.LogLevel)
	}
	if cfg.Workflow.CITLDirectApprove {
		t.Error("default Workflow.CITLDirectApprove = true, want false")
	}
	if cfg.Workflow.MinReturnCommentLength != 20 {
		t.Errorf("default MinReturnCommentLength = %d, want 20", cfg.Workflow.MinReturnCommentLength)
	}
	if cfg.Storage.Driver != "memory" {
		t.Errorf("default Storage.Driver = %q, want memory", cfg.Storage.Driver)
	}
	if cfg.Notification.Email.Provider != "none" {
		t.Errorf("default email provider = %q, want none", cfg.Notification.Email.Provider)
	}
	if b := cfg.Notification.Email.Breaker; b.FailureThreshold != 5 || b.Cooldown != time.Minute {
		t.Errorf("default email breaker = %+v, want 5 failures and 1m cooldown", b)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SYLLABUKSU_SERVER_PORT", "3000")
	t.Setenv("SYLLABUKSU_IDENTITY_ISSUER", "https://env-issuer.example.edu")
	t.Setenv("SYLLABUKSU_IDENTITY_AUDIENCE", "env-audience")
	t.Setenv("SYLLABUKSU_OBSERVABILITY_LOG_LEVEL", "error")
	t.Setenv("SYLLABUKSU_WORKFLOW_CITL_DIRECT_APPROVE", "false")
	t.Setenv("SYLLABUKSU_IDEMPOTENCY_STORE_DEFAULT_TTL", "1h")
	t.Setenv("SYLLABUKSU_SERVER_CORS_ALLOWED_ORIGINS", "https://a.example.edu,https://b.example.edu")
	t.Setenv("SYLLABUKSU_NOTIFICATION_EMAIL_BREAKER_COOLDOWN", "30s")

	cfg, err := Load("testdata/valid.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want 3000 (env override)", cfg.Server.Port)
	}
	if cfg.Identity.Issuer != "https://env-issuer.example.edu" {
		t.Errorf("Identity.Issuer = %q, want env override", cfg.Identity.Issuer)
	}
	if cfg.Identity.Audience != "env-audience" {
		t.Errorf("Identity.Audience = %q, want env override", cfg.Identity.Audience)
	}
	if cfg.Observability.LogLevel != "error" {
		t.Errorf("LogLevel = %q, want error (env override)", cfg.Observability.LogLevel)
	}
	if cfg.Workflow.CITLDirectApprove {
		t.Error("CITLDirectApprove = true, want false (env override)")
	}
	if cfg.Idempotency.Store.DefaultTTL != time.Hour {
		t.Errorf("DefaultTTL = %v, want 1h (env override)", cfg.Idempotency.Store.DefaultTTL)
	}
	if len(cfg.Server.CORS.AllowedOrigins) != 2 {
		t.Errorf("AllowedOrigins = %v, want 2 entries", cfg.Server.CORS.AllowedOrigins)
	}
	if cfg.Notification.Email.Breaker.Cooldown != 30*time.Second {
		t.Errorf("Breaker.Cooldown = %v, want 30s (env override)", cfg.Notification.Email.Breaker.Cooldown)
	}
}

func TestEnvOverrides_invalidValue(t *testing.T) {
	t.Setenv("SYLLABUKSU_SERVER_PORT", "not-a-number")

	if _, err := Load("testdata/valid.yaml"); err == nil {
		t.Fatal("Load() with unparsable port should return error")
	}
}

func validConfig() *Config {
	cfg := Defaults()
	cfg.Identity.Issuer = "https://auth.example.edu"
	cfg.Identity.JWKSURL = "https://auth.example.edu/.well-known/jwks.json"
	cfg.Identity.Audience = "syllabuksu"
	return cfg
}

func TestValidate_invalid_port(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0

	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() with port 0 should return error")
	}
}

func TestValidate_identityModes(t *testing.T) {
	cfg := validConfig()
	cfg.Identity.HMACSecretEnv = "TEST_SYLLABUKSU_SECRET"
	t.Setenv("TEST_SYLLABUKSU_SECRET", "s3cret")
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "mutually exclusive") {
		t.Errorf("Validate() = %v, want mutually exclusive error", err)
	}

	cfg.Identity.JWKSURL = ""
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() with HMAC secret = %v, want nil", err)
	}
	if got := cfg.Identity.HMACSecret(); got != "s3cret" {
		t.Errorf("HMACSecret() = %q", got)
	}

	t.Setenv("TEST_SYLLABUKSU_SECRET", "")
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() with empty HMAC secret should return error")
	}
}

func TestValidate_storage(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.Driver = "mongo"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() with unknown storage driver should return error")
	}

	cfg.Storage.Driver = "postgres"
	cfg.Storage.DSNEnv = "TEST_SYLLABUKSU_DSN"
	t.Setenv("TEST_SYLLABUKSU_DSN", "")
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() with empty DSN should return error")
	}

	t.Setenv("TEST_SYLLABUKSU_DSN", "postgres://localhost/syllabuksu")
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestValidate_emailProviders(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"unknown provider", func(c *Config) { c.Notification.Email.Provider = "pigeon" }, "notification.email.provider"},
		{"smtp without host", func(c *Config) {
			c.Notification.Email.Provider = "smtp"
			c.Notification.Email.From = "no-reply@example.edu"
		}, "smtp.host"},
		{"sendgrid without key", func(c *Config) {
			c.Notification.Email.Provider = "sendgrid"
			c.Notification.Email.From = "no-reply@example.edu"
			c.Notification.Email.SendGrid.APIKeyEnv = "TEST_SYLLABUKSU_UNSET_KEY"
		}, "api_key_env"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error mentioning %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_collectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Port = 70000
	cfg.Storage.Driver = "sqlite"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() should fail")
	}
	if n := strings.Count(err.Error(), "; "); n < 4 {
		t.Errorf("expected at least 5 joined problems, got %q", err)
	}
}

func TestLoadDotEnv(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("LoadDotEnv(missing) = %v, want nil", err)
	}

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("TEST_SYLLABUKSU_DOTENV=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TEST_SYLLABUKSU_DOTENV", "")
	os.Unsetenv("TEST_SYLLABUKSU_DOTENV")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	if got := os.Getenv("TEST_SYLLABUKSU_DOTENV"); got != "from-file" {
		t.Errorf("TEST_SYLLABUKSU_DOTENV = %q, want from-file", got)
	}
}
