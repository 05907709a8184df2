package config

import (
	"testing"
	"time"
)

// setBaseEnv sets the minimum environment needed for Load to succeed.
func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("ENCRYPTION_KEY", "01234567890123456789012345678901")
	t.Setenv("AA_PROVIDER_MODE", "mock")
	t.Setenv("AA_WEBHOOK_PUBLIC_KEY", "-----BEGIN PUBLIC KEY-----\nfake\n-----END PUBLIC KEY-----")
}

func TestLoad_Defaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("Server.Port = %q, want 8080", cfg.Server.Port)
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("Database.Port = %d, want 5432", cfg.Database.Port)
	}
	if cfg.AA.Mode != ProviderModeMock {
		t.Errorf("AA.Mode = %q, want mock", cfg.AA.Mode)
	}
	if cfg.AA.RequestTimeout != 30*time.Second {
		t.Errorf("AA.RequestTimeout = %v, want 30s", cfg.AA.RequestTimeout)
	}
	if cfg.AA.CustomerHandleSuffix != "nadl" {
		t.Errorf("AA.CustomerHandleSuffix = %q, want nadl", cfg.AA.CustomerHandleSuffix)
	}
	if cfg.AA.SkipWebhookVerification {
		t.Error("SkipWebhookVerification should default to false")
	}
}

func TestLoad_MissingJWTSecret(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("JWT_SECRET", "")

	if _, err := Load(); err == nil {
		t.Error("Load() expected error for missing JWT_SECRET, got nil")
	}
}

func TestLoad_InvalidEncryptionKeyLength(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("ENCRYPTION_KEY", "too-short")

	if _, err := Load(); err == nil {
		t.Error("Load() expected error for short ENCRYPTION_KEY, got nil")
	}
}

func TestLoad_ProviderModeIsExplicit(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("AA_PROVIDER_MODE", "")

	if _, err := Load(); err == nil {
		t.Error("Load() must reject a missing AA_PROVIDER_MODE instead of inferring one")
	}

	t.Setenv("AA_PROVIDER_MODE", "sandbox")
	if _, err := Load(); err == nil {
		t.Error("Load() must reject an unknown AA_PROVIDER_MODE")
	}
}

func TestLoad_RealModeRequiresCredentials(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("AA_PROVIDER_MODE", "real")
	t.Setenv("AA_BASE_URL", "https://aa.example.com")

	if _, err := Load(); err == nil {
		t.Error("Load() expected error for real mode without client credentials")
	}

	t.Setenv("AA_CLIENT_ID", "client")
	t.Setenv("AA_CLIENT_SECRET", "secret")
	if _, err := Load(); err != nil {
		t.Errorf("Load() failed with full real-mode config: %v", err)
	}
}

func TestLoad_WebhookKeyRequiredUnlessBypassed(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("AA_WEBHOOK_PUBLIC_KEY", "")

	if _, err := Load(); err == nil {
		t.Error("Load() expected error when no webhook public key is configured")
	}

	// The bypass must be an explicit switch, never the default.
	t.Setenv("AA_WEBHOOK_SKIP_VERIFY", "true")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed with explicit bypass: %v", err)
	}
	if !cfg.AA.SkipWebhookVerification {
		t.Error("SkipWebhookVerification = false, want true")
	}
}

func TestConnectionString(t *testing.T) {
	db := DatabaseConfig{
		Host: "db", Port: 5433, User: "u", Password: "p", DBName: "nivesh", SSLMode: "require",
	}
	want := "host=db port=5433 user=u password=p dbname=nivesh sslmode=require"
	if got := db.ConnectionString(); got != want {
		t.Errorf("ConnectionString() = %q, want %q", got, want)
	}
}
