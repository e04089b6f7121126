package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "empty search url",
			mutate: func(cfg *Config) {
				cfg.SearchURL = ""
			},
			wantErr: "search URL",
		},
		{
			name: "search url without host",
			mutate: func(cfg *Config) {
				cfg.SearchURL = "http://"
			},
			wantErr: "search URL",
		},
		{
			name: "zero enrich workers",
			mutate: func(cfg *Config) {
				cfg.EnrichWorkers = 0
			},
			wantErr: "enrich workers",
		},
		{
			name: "negative delay",
			mutate: func(cfg *Config) {
				cfg.Delay = Duration(-time.Second)
			},
			wantErr: "delay",
		},
		{
			name: "zero timeout",
			mutate: func(cfg *Config) {
				cfg.Timeout = 0
			},
			wantErr: "timeout",
		},
		{
			name: "bad output format",
			mutate: func(cfg *Config) {
				cfg.OutputFormat = "xml"
			},
			wantErr: "output format",
		},
		{
			name: "empty chat endpoint",
			mutate: func(cfg *Config) {
				cfg.Chat.Endpoint = ""
			},
			wantErr: "chat endpoint",
		},
		{
			name: "zero probe attempts",
			mutate: func(cfg *Config) {
				cfg.Chat.ProbeAttempts = 0
			},
			wantErr: "probe attempts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}

func TestLoadAppliesFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := `
searchUrl: "http://search.test/tenders"
enrichWorkers: 3
chat:
  endpoint: "http://chat.test/v1/chat/completions"
  model: "test-model"
  temperature: 0.3
  timeout: 10s
  probeAttempts: 2
  probeTimeout: 1s
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("TENDER_CHAT_MODEL", "env-model")
	t.Setenv("TENDER_OUTPUT", filepath.Join(dir, "out.csv"))

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.SearchURL != "http://search.test/tenders" {
		t.Fatalf("search url = %q", cfg.SearchURL)
	}
	if cfg.EnrichWorkers != 3 {
		t.Fatalf("enrich workers = %d, want 3", cfg.EnrichWorkers)
	}
	if cfg.Chat.Model != "env-model" {
		t.Fatalf("chat model = %q, env override should win", cfg.Chat.Model)
	}
	if cfg.Chat.Timeout.Std() != 10*time.Second {
		t.Fatalf("chat timeout = %v, want 10s", cfg.Chat.Timeout.Std())
	}
	if cfg.OutputFile != filepath.Join(dir, "out.csv") {
		t.Fatalf("output file = %q", cfg.OutputFile)
	}
	// Untouched fields keep their defaults.
	if cfg.ExcludedOrganization == "" {
		t.Fatalf("excluded organization default should survive file overlay")
	}
}

func TestEnvInt(t *testing.T) {
	t.Setenv("TENDER_TEST_INT", "42")
	value, ok, err := EnvInt("TENDER_TEST_INT")
	if err != nil || !ok || value != 42 {
		t.Fatalf("EnvInt = (%d, %v, %v), want (42, true, nil)", value, ok, err)
	}

	t.Setenv("TENDER_TEST_INT", "forty")
	if _, _, err := EnvInt("TENDER_TEST_INT"); err == nil {
		t.Fatalf("expected error for non-integer value")
	}

	if _, ok, _ := EnvInt("TENDER_TEST_INT_UNSET"); ok {
		t.Fatalf("unset variable should report ok=false")
	}
}
