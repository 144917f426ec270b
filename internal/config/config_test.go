package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig(env string) Config {
	return Config{
		App:   AppConfig{Env: env, Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "ravoxai", SSLMode: "disable"},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret", JWTIssuer: "ravoxai", JWTAudience: "ravoxai-api"},
		Voice: VoiceConfig{
			URL:        "wss://example.livekit.cloud",
			APIKey:     "APIxxxx",
			APISecret:  "secret",
			SIPTrunkID: "ST_trunk",
		},
		Storage: StorageConfig{Region: "us-east-1", Bucket: "ravoxai-calls"},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "APP_ENV is required") {
		t.Fatalf("expected APP_ENV error, got: %v", err)
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validConfig("production")
	c.DB.SSLMode = ""
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestApplyDefaults_LocalFillsOptionalValues(t *testing.T) {
	c := validConfig("local")
	c.DB.SSLMode = ""
	c.applyDefaults()
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Defaults.AgentName != "AI Assistant" {
		t.Fatalf("expected default agent name, got %q", c.Defaults.AgentName)
	}
	if c.Storage.PresignTTL != time.Hour {
		t.Fatalf("expected 1h presign TTL default, got %v", c.Storage.PresignTTL)
	}
	if c.Maintenance.ConnectingTimeout != 5*time.Minute {
		t.Fatalf("expected 5m connecting timeout default, got %v", c.Maintenance.ConnectingTimeout)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected defaulted config to validate, got %v", err)
	}
}

func TestApplyDefaults_ProductionKeepsSSLModeEmpty(t *testing.T) {
	c := validConfig("production")
	c.DB.SSLMode = ""
	c.applyDefaults()
	if c.DB.SSLMode != "" {
		t.Fatalf("production must not default sslmode, got %q", c.DB.SSLMode)
	}
}

func TestValidate_StorageKeysMustPairUp(t *testing.T) {
	c := validConfig("local")
	c.Storage.AccessKeyID = "AKIA123"
	c.Storage.SecretAccessKey = ""
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error when only one storage key is set")
	}
}

func TestValidate_BootstrapSecretForbiddenInProduction(t *testing.T) {
	c := validConfig("production")
	c.Auth.BootstrapSecret = "dev-secret"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for bootstrap secret in production")
	}
}

func TestHTTPAddrAndDSN(t *testing.T) {
	c := validConfig("local")
	if got := c.HTTPAddr(); got != ":8080" {
		t.Fatalf("HTTPAddr = %q, want :8080", got)
	}
	dsn := c.PostgresDSN()
	if !strings.Contains(dsn, "dbname=ravoxai") || !strings.Contains(dsn, "sslmode=disable") {
		t.Fatalf("unexpected dsn: %q", dsn)
	}
	if got := c.RedisAddr(); got != "localhost:6379" {
		t.Fatalf("RedisAddr = %q, want localhost:6379", got)
	}
}

func TestLoad_RejectsMalformedDuration(t *testing.T) {
	t.Setenv("APP_PORT", "8080")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("REDIS_PORT", "6379")
	t.Setenv("SWEEP_EVERY", "soon")

	_, err := Load()
	if err == nil {
		t.Fatalf("expected error for malformed SWEEP_EVERY")
	}
	if !strings.Contains(err.Error(), "SWEEP_EVERY") {
		t.Fatalf("error does not name the offending key: %v", err)
	}
}

func TestOptDuration(t *testing.T) {
	t.Setenv("CLEANUP_FAILED_RETENTION", "36h")
	d, err := optDuration("CLEANUP_FAILED_RETENTION")
	if err != nil || d != 36*time.Hour {
		t.Fatalf("optDuration = %v, %v; want 36h", d, err)
	}

	t.Setenv("CLEANUP_FAILED_RETENTION", "")
	if d, err := optDuration("CLEANUP_FAILED_RETENTION"); err != nil || d != 0 {
		t.Fatalf("unset key: got %v, %v; want 0, nil", d, err)
	}

	t.Setenv("CLEANUP_FAILED_RETENTION", "two days")
	if _, err := optDuration("CLEANUP_FAILED_RETENTION"); err == nil {
		t.Fatalf("expected error for malformed duration")
	}
}
