package config_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/kashguard/go-threshold-engine/internal/config"
)

func TestPrintEngineEnv(t *testing.T) {
	cfg := config.DefaultEngineConfigFromEnv()
	_, err := json.MarshalIndent(cfg, "", "  ")

	if err != nil {
		t.Fatal(err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ENGINE_PARTICIPANT_ID", "4")
	t.Setenv("ENGINE_THRESHOLD", "3")
	t.Setenv("ENGINE_SIGN_TIMEOUT", "30s")
	t.Setenv("ENGINE_REDIS_ENABLED", "true")

	cfg := config.DefaultEngineConfigFromEnv()
	if cfg.ParticipantID != 4 {
		t.Fatalf("participant_id = %d, want 4", cfg.ParticipantID)
	}
	if cfg.Threshold != 3 {
		t.Fatalf("threshold = %d, want 3", cfg.Threshold)
	}
	if cfg.SignTimeout != 30*time.Second {
		t.Fatalf("sign_timeout = %s, want 30s", cfg.SignTimeout)
	}
	if !cfg.Redis.Enabled {
		t.Fatal("redis should be enabled")
	}
}

func TestMalformedEnvFallsBack(t *testing.T) {
	t.Setenv("ENGINE_THRESHOLD", "not-a-number")
	t.Setenv("ENGINE_SIGN_TIMEOUT", "soon")

	cfg := config.DefaultEngineConfigFromEnv()
	if cfg.Threshold != 2 {
		t.Fatalf("threshold = %d, want default 2", cfg.Threshold)
	}
	if cfg.SignTimeout != 10*time.Second {
		t.Fatalf("sign_timeout = %s, want default 10s", cfg.SignTimeout)
	}
}
