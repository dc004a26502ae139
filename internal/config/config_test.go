package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("CLIENT_TOKEN", "token")
}

func TestLoadFromEnvDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Trips.NumberPrefix != "TH" {
		t.Errorf("prefix = %q, want TH", cfg.Trips.NumberPrefix)
	}
	if cfg.Scheduler.RemindAfter != 2*time.Hour || cfg.Scheduler.EscalateAfter != 4*time.Hour {
		t.Errorf("scheduler defaults: remind=%v escalate=%v", cfg.Scheduler.RemindAfter, cfg.Scheduler.EscalateAfter)
	}
}

func TestLoadFromEnvRequiredSecrets(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("CLIENT_TOKEN", "token")
	if _, err := LoadFromEnv(); err == nil {
		t.Error("missing JWT_SECRET must fail")
	}

	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("CLIENT_TOKEN", "")
	if _, err := LoadFromEnv(); err == nil {
		t.Error("missing CLIENT_TOKEN must fail")
	}
}

func TestLoadFromEnvTimingOrder(t *testing.T) {
	setRequired(t)
	t.Setenv("REMIND_AFTER", "4h")
	t.Setenv("ESCALATE_AFTER", "2h")
	if _, err := LoadFromEnv(); err == nil {
		t.Error("ESCALATE_AFTER <= REMIND_AFTER must fail")
	}
}

func TestCuratorIDsParsing(t *testing.T) {
	setRequired(t)
	t.Setenv("CURATOR_IDS", "100, 200,300")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	want := []int64{100, 200, 300}
	if len(cfg.Security.CuratorIDs) != len(want) {
		t.Fatalf("curator ids = %v, want %v", cfg.Security.CuratorIDs, want)
	}
	for i, id := range want {
		if cfg.Security.CuratorIDs[i] != id {
			t.Errorf("curator ids = %v, want %v", cfg.Security.CuratorIDs, want)
			break
		}
	}
}
