package config

import (
	"testing"
	"time"
)

func TestResolveAPIURLPrefersExplicitOverride(t *testing.T) {
	t.Setenv("SORI_API_URL", "http://10.0.0.7:9000/")
	t.Setenv("SORI_ENV", "production")
	if got := resolveAPIURL(); got != "http://10.0.0.7:9000" {
		t.Fatalf("expected explicit override without trailing slash, got %q", got)
	}
}

func TestResolveAPIURLProductionFallback(t *testing.T) {
	t.Setenv("SORI_API_URL", "")
	t.Setenv("SORI_ENV", "production")
	if got := resolveAPIURL(); got != productionAPIURL {
		t.Fatalf("expected production default, got %q", got)
	}
}

func TestResolveAPIURLLocalDefault(t *testing.T) {
	t.Setenv("SORI_API_URL", "")
	t.Setenv("SORI_ENV", "")
	if got := resolveAPIURL(); got != localAPIURL {
		t.Fatalf("expected local default, got %q", got)
	}
}

func TestLoadAppliesGestureDefaults(t *testing.T) {
	t.Setenv("SORI_GESTURE_MODE", "banana")
	t.Setenv("SORI_DOUBLE_TAP_MS", "not-a-number")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Gesture.Mode != "double-tap" {
		t.Fatalf("unknown mode should fall back to double-tap, got %q", cfg.Gesture.Mode)
	}
	if cfg.Gesture.DoubleTapThreshold != 450*time.Millisecond {
		t.Fatalf("unexpected threshold %s", cfg.Gesture.DoubleTapThreshold)
	}
}
