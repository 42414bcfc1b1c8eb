package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_NAME", "tripmatch")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" || cfg.DBDriver != "mysql" || cfg.DBPort != "3306" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.MatchResponseWindow != 48*time.Hour {
		t.Fatalf("window=%v", cfg.MatchResponseWindow)
	}
	if cfg.ScoreWeightDate != 0.4 || cfg.ScoreWeightCapacity != 0.3 || cfg.ScoreWeightReliability != 0.3 {
		t.Fatalf("weights=%v/%v/%v", cfg.ScoreWeightDate, cfg.ScoreWeightCapacity, cfg.ScoreWeightReliability)
	}
	if len(cfg.SupportedDestinations) == 0 || cfg.SupportedDestinations[0] != "NG" {
		t.Fatalf("destinations=%v", cfg.SupportedDestinations)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_NAME", "tripmatch")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("MATCH_RESPONSE_WINDOW", "90m")
	t.Setenv("SUPPORTED_ORIGINS", "US,JP")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBDriver != "postgres" || cfg.MatchResponseWindow != 90*time.Minute {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if len(cfg.SupportedOrigins) != 2 || cfg.SupportedOrigins[1] != "JP" {
		t.Fatalf("origins=%v", cfg.SupportedOrigins)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("DB_USER", "")
	t.Setenv("DB_PASSWORD", "")
	t.Setenv("DB_HOST", "")
	t.Setenv("DB_NAME", "")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for missing DB settings")
	}
}
