package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("SPEECH_API_KEY", "")
	t.Setenv("ARK_API_KEY", "")
	t.Setenv("ARK_MODEL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("unexpected addr %q", cfg.Server.Addr)
	}
	if cfg.Live.IdleTimeout != 5*time.Minute {
		t.Errorf("unexpected idle timeout %v", cfg.Live.IdleTimeout)
	}
	if cfg.Live.HeartbeatInterval != 8*time.Second {
		t.Errorf("unexpected heartbeat interval %v", cfg.Live.HeartbeatInterval)
	}
	if cfg.Live.VADThreshold != 0.015 {
		t.Errorf("unexpected vad threshold %v", cfg.Live.VADThreshold)
	}
	if cfg.Live.SampleRate != 16000 {
		t.Errorf("unexpected sample rate %d", cfg.Live.SampleRate)
	}
	if cfg.Speech.Enabled {
		t.Error("speech must be disabled without an api key")
	}
	if cfg.AI.Enabled() {
		t.Error("ai must be disabled without credentials")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LIVE_IDLE_TIMEOUT", "90s")
	t.Setenv("LIVE_RECONNECT_ATTEMPTS", "7")
	t.Setenv("VAD_THRESHOLD", "0.02")
	t.Setenv("SPEECH_API_KEY", "key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Errorf("unexpected addr %q", cfg.Server.Addr)
	}
	if cfg.Live.IdleTimeout != 90*time.Second {
		t.Errorf("unexpected idle timeout %v", cfg.Live.IdleTimeout)
	}
	if cfg.Live.ReconnectAttempts != 7 {
		t.Errorf("unexpected reconnect attempts %d", cfg.Live.ReconnectAttempts)
	}
	if cfg.Live.VADThreshold != 0.02 {
		t.Errorf("unexpected vad threshold %v", cfg.Live.VADThreshold)
	}
	if !cfg.Speech.Enabled {
		t.Error("speech must be enabled with an api key")
	}
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	t.Setenv("LIVE_IDLE_TIMEOUT", "soon")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}
