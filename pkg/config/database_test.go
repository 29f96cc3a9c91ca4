package config

import "testing"

func TestLoadDatabaseConfigFromEnv_RequiresPassword(t *testing.T) {
	t.Setenv("DB_PASSWORD", "")
	_, err := LoadDatabaseConfigFromEnv()
	if err == nil {
		t.Fatal("expected error when DB_PASSWORD is unset")
	}
}

func TestLoadDatabaseConfigFromEnv_Defaults(t *testing.T) {
	t.Setenv("DB_PASSWORD", "secret")
	cfg, err := LoadDatabaseConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Host != "localhost" || cfg.Port != 5432 || cfg.Database != "deepsoc" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.MaxOpenConns != 25 || cfg.MaxIdleConns != 10 {
		t.Fatalf("unexpected pool defaults: %+v", cfg)
	}
}

func TestLoadDatabaseConfigFromEnv_InvalidPort(t *testing.T) {
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_PORT", "not-a-number")
	_, err := LoadDatabaseConfigFromEnv()
	if err == nil {
		t.Fatal("expected error for invalid DB_PORT")
	}
}

func TestDatabaseConfig_ValidateRejectsIdleExceedingOpen(t *testing.T) {
	cfg := DatabaseConfig{Password: "x", MaxOpenConns: 5, MaxIdleConns: 10}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error when idle conns exceed open conns")
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host: "db.internal", Port: 5433, User: "deepsoc", Password: "pw",
		Database: "deepsoc_test", SSLMode: "require",
	}
	want := "host=db.internal port=5433 user=deepsoc password=pw dbname=deepsoc_test sslmode=require"
	if got := cfg.DSN(); got != want {
		t.Fatalf("DSN() = %q, want %q", got, want)
	}
}
