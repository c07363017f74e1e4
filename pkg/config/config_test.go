package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoadRequiresBotToken(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	if _, err := Load(); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("error=%v, expected ErrMissingToken", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.TelegramToken != "123:abc" {
		t.Fatalf("token=%q, expected the env value", cfg.TelegramToken)
	}
	if cfg.AlertInterval != 60*time.Second {
		t.Fatalf("AlertInterval=%v, expected 60s default", cfg.AlertInterval)
	}
	if cfg.BroadcastRetries != 3 {
		t.Fatalf("BroadcastRetries=%d, expected 3", cfg.BroadcastRetries)
	}
	if cfg.ConfirmTimeout != 45*time.Second || cfg.ConfirmPoll != 2*time.Second {
		t.Fatalf("confirm bounds=%v/%v, expected 45s/2s", cfg.ConfirmTimeout, cfg.ConfirmPoll)
	}
	if !cfg.EnableAPI {
		t.Fatal("EnableAPI=false, expected the API on by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("ALERT_INTERVAL", "90s")
	t.Setenv("BROADCAST_RETRIES", "5")
	t.Setenv("RPC_RATE_LIMIT", "2.5")
	t.Setenv("ENABLE_API", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.AlertInterval != 90*time.Second {
		t.Fatalf("AlertInterval=%v, expected 90s", cfg.AlertInterval)
	}
	if cfg.BroadcastRetries != 5 {
		t.Fatalf("BroadcastRetries=%d, expected 5", cfg.BroadcastRetries)
	}
	if cfg.RPCRateLimit != 2.5 {
		t.Fatalf("RPCRateLimit=%v, expected 2.5", cfg.RPCRateLimit)
	}
	if cfg.EnableAPI {
		t.Fatal("EnableAPI=true, expected override to false")
	}
}

func TestBadOverridesFallBackToDefaults(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("ALERT_INTERVAL", "soon")
	t.Setenv("BROADCAST_RETRIES", "many")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.AlertInterval != 60*time.Second {
		t.Fatalf("AlertInterval=%v, expected the default for unparseable input", cfg.AlertInterval)
	}
	if cfg.BroadcastRetries != 3 {
		t.Fatalf("BroadcastRetries=%d, expected the default for unparseable input", cfg.BroadcastRetries)
	}
}
