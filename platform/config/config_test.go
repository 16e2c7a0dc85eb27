package config

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/leaddesk")
	t.Setenv("JWT_ACCESS_SECRET", "")
	t.Setenv("APP_ENV", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.AsynqQueueName != "default" || cfg.AsynqConcurrency != 10 {
		t.Errorf("asynq defaults = %q/%d", cfg.AsynqQueueName, cfg.AsynqConcurrency)
	}
	if cfg.LifecycleCheckSpec != "0 * * * *" || cfg.ReconciliationSpec != "0 2 1 * *" {
		t.Errorf("cron defaults = %q/%q", cfg.LifecycleCheckSpec, cfg.ReconciliationSpec)
	}
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error without DATABASE_URL")
	}
}

func TestLoadRequiresJWTSecretOutsideDevelopment(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/leaddesk")
	t.Setenv("JWT_ACCESS_SECRET", "")
	t.Setenv("APP_ENV", "production")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing JWT secret in production")
	}
}

func TestCORSWildcardForcesAllowAll(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/leaddesk")
	t.Setenv("APP_ENV", "development")
	t.Setenv("CORS_ORIGINS", "*")
	t.Setenv("CORS_ALLOW_ALL", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.GetCORSAllowAll() {
		t.Error("wildcard origin should force allow-all")
	}
}

func TestCORSOriginListParsing(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/leaddesk")
	t.Setenv("APP_ENV", "development")
	t.Setenv("CORS_ORIGINS", " https://app.example.com , https://admin.example.com ,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	origins := cfg.GetCORSOrigins()
	if len(origins) != 2 || origins[0] != "https://app.example.com" || origins[1] != "https://admin.example.com" {
		t.Errorf("origins = %v", origins)
	}
}
