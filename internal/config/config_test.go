package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "puttstep.yaml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PUTTSTEP_STORAGE_PATH", filepath.Join(dir, "data", "puttstep.bolt"))

	cfg, err := Load(filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Detector.Threshold != 2.0 {
		t.Errorf("expected threshold 2.0, got %v", cfg.Detector.Threshold)
	}
	if cfg.Detector.TimeInterval != "300ms" {
		t.Errorf("expected 300ms interval, got %s", cfg.Detector.TimeInterval)
	}
	if cfg.Detector.StillnessWindowSize != 10 {
		t.Errorf("expected window 10, got %d", cfg.Detector.StillnessWindowSize)
	}
	if !cfg.Detector.UseHardwareSensor {
		t.Errorf("expected hardware sensor enabled by default")
	}
	if cfg.Stride.HistoryLimit != 10 {
		t.Errorf("expected history limit 10, got %d", cfg.Stride.HistoryLimit)
	}
	if cfg.Storage.Type != "bolt" {
		t.Errorf("expected bolt storage, got %s", cfg.Storage.Type)
	}
	if _, err := os.Stat(filepath.Join(dir, "data")); err != nil {
		t.Errorf("expected storage directory to be created: %v", err)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `
subject:
  id: alex
detector:
  threshold: 1.5
  sensitivity: 7
storage:
  type: redis
  redis:
    host: redis.local
logging:
  level: debug
`)
	t.Setenv("PUTTSTEP_LOGGING_FORMAT", "console")
	t.Setenv("PUTTSTEP_STORAGE_PATH", filepath.Join(dir, "puttstep.bolt"))

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Subject.ID != "alex" {
		t.Errorf("expected subject alex, got %s", cfg.Subject.ID)
	}
	if cfg.Detector.Threshold != 1.5 || cfg.Detector.Sensitivity != 7 {
		t.Errorf("detector not loaded: %+v", cfg.Detector)
	}
	if cfg.Storage.Type != "redis" || cfg.Storage.Redis.Host != "redis.local" {
		t.Errorf("storage not loaded: %+v", cfg.Storage)
	}
	if cfg.Logging.Format != "console" {
		t.Errorf("expected env override console, got %s", cfg.Logging.Format)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug level, got %s", cfg.Logging.Level)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"smoothing factor", "detector:\n  smoothing_factor: 1.5\n"},
		{"sensitivity", "detector:\n  sensitivity: 11\n"},
		{"interval", "detector:\n  time_interval: soon\n"},
		{"negative interval", "detector:\n  time_interval: -300ms\n"},
		{"negative hardware timeout", "detector:\n  hardware_timeout: -1s\n"},
		{"negative stillness threshold", "detector:\n  stillness_threshold: -0.1\n"},
		{"window", "detector:\n  stillness_window_size: 0\n"},
		{"storage type", "storage:\n  type: sqlite\n"},
		{"qos", "mqtt:\n  qos: 3\n"},
		{"history", "stride:\n  history_limit: 0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("PUTTSTEP_STORAGE_PATH", filepath.Join(t.TempDir(), "puttstep.bolt"))
			if _, err := Load(writeConfig(t, tt.body)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestParseDuration(t *testing.T) {
	if got := ParseDuration("350ms", time.Second); got != 350*time.Millisecond {
		t.Errorf("expected 350ms, got %v", got)
	}
	if got := ParseDuration("", time.Second); got != time.Second {
		t.Errorf("expected fallback for empty, got %v", got)
	}
	if got := ParseDuration("bogus", time.Second); got != time.Second {
		t.Errorf("expected fallback for invalid, got %v", got)
	}
}

func TestUnknownKeys(t *testing.T) {
	path := writeConfig(t, "detector:\n  threshold: 2.5\n  treshold: 3\nmqtt:\n  username: walker\nlogging:\n  colour: true\n")

	unknown, err := UnknownKeys(path)
	if err != nil {
		t.Fatalf("unknown keys: %v", err)
	}
	if len(unknown) != 2 || unknown[0] != "detector.treshold" || unknown[1] != "logging.colour" {
		t.Errorf("unexpected unknown keys: %v", unknown)
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Server.LivePort != 8080 || cfg.Server.MetricsPort != 9090 {
		t.Errorf("unexpected default ports: %d, %d", cfg.Server.LivePort, cfg.Server.MetricsPort)
	}
	if cfg.Subject.ID != "default" {
		t.Errorf("expected default subject, got %q", cfg.Subject.ID)
	}
}
