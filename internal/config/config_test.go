package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend != BackendLocal {
		t.Fatalf("Backend = %q, want local default", cfg.Backend)
	}
	if cfg.IntroThreshold != 4*time.Hour {
		t.Fatalf("IntroThreshold = %v, want 4h", cfg.IntroThreshold)
	}
	if !cfg.Primary() {
		t.Fatal("default category should be the primary one")
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("BACKEND", "carrier-pigeon")
	if _, err := Load(); err == nil {
		t.Fatal("Load should reject an unknown backend")
	}
}

func TestLoadRemoteOverrides(t *testing.T) {
	t.Setenv("BACKEND", "remote")
	t.Setenv("API_BASE_URL", "https://api.example.test")
	t.Setenv("CATEGORY_NAME", "mountains")
	t.Setenv("INTRO_THRESHOLD_HOURS", "2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend != BackendRemote || cfg.APIBaseURL != "https://api.example.test" {
		t.Fatalf("remote settings not applied: %+v", cfg)
	}
	if cfg.Primary() {
		t.Fatal("mountains should not be the primary category")
	}
	if cfg.IntroThreshold != 2*time.Hour {
		t.Fatalf("IntroThreshold = %v, want 2h", cfg.IntroThreshold)
	}
}
