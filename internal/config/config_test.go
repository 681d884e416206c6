package config_test

import (
	"testing"
	"time"

	"github.com/cascadehq/docagent/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("AGENT_BASE_URL", "")
	t.Setenv("AGENT_REQUEST_TIMEOUT", "")
	t.Setenv("VOICE_CAPTURE_WINDOW", "")
	t.Setenv("PORT", "")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}

	if cfg.Client.AgentBaseURL != "http://localhost:8000/api/v1" {
		t.Fatalf("unexpected base url: %q", cfg.Client.AgentBaseURL)
	}
	if cfg.Client.RequestTimeout != 60*time.Second {
		t.Fatalf("unexpected request timeout: %v", cfg.Client.RequestTimeout)
	}
	if cfg.Voice.CaptureWindow != 10*time.Second {
		t.Fatalf("unexpected capture window: %v", cfg.Voice.CaptureWindow)
	}
	if cfg.Server.Addr != ":8000" {
		t.Fatalf("unexpected server addr: %q", cfg.Server.Addr)
	}
	if cfg.AI.Enabled() {
		t.Fatal("ai must be disabled without credentials")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("AGENT_BASE_URL", "https://agent.internal/api/v1")
	t.Setenv("AGENT_REQUEST_TIMEOUT", "5")
	t.Setenv("VOICE_CAPTURE_WINDOW", "3")
	t.Setenv("ALLOW_ANONYMOUS_INGEST", "true")
	t.Setenv("PORT", "127.0.0.1:9000")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}

	if cfg.Client.AgentBaseURL != "https://agent.internal/api/v1" {
		t.Fatalf("unexpected base url: %q", cfg.Client.AgentBaseURL)
	}
	if cfg.Client.RequestTimeout != 5*time.Second {
		t.Fatalf("unexpected request timeout: %v", cfg.Client.RequestTimeout)
	}
	if !cfg.Client.AllowAnonymousIngest {
		t.Fatal("expected anonymous ingest enabled")
	}
	if cfg.Voice.CaptureWindow != 3*time.Second {
		t.Fatalf("unexpected capture window: %v", cfg.Voice.CaptureWindow)
	}
	if cfg.Server.Addr != "127.0.0.1:9000" {
		t.Fatalf("unexpected server addr: %q", cfg.Server.Addr)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("AGENT_REQUEST_TIMEOUT", "zero")
	if _, err := config.Load(); err == nil {
		t.Fatal("expected error for non-numeric timeout")
	}

	t.Setenv("AGENT_REQUEST_TIMEOUT", "")
	t.Setenv("VOICE_CAPTURE_WINDOW", "-4")
	if _, err := config.Load(); err == nil {
		t.Fatal("expected error for negative capture window")
	}
}
