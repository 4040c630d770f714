package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goodtune/puttstep/internal/config"
	"github.com/goodtune/puttstep/internal/storage"
	"github.com/goodtune/puttstep/internal/storage/bolt"
)

func TestDetectorOptionsFromConfig(t *testing.T) {
	cfg := config.Defaults().Detector
	opts := detectorOptions(cfg)

	if opts.TimeInterval != 300*time.Millisecond {
		t.Errorf("expected 300ms interval, got %v", opts.TimeInterval)
	}
	if opts.Threshold != 2.0 || opts.SmoothingFactor != 0.2 {
		t.Errorf("unexpected tuning: %+v", opts)
	}
	if err := opts.Validate(); err != nil {
		t.Errorf("default options should validate: %v", err)
	}
}

func TestLoadAppRejectsNegativeTuning(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "storage:\n  path: " + filepath.Join(dir, "puttstep.bolt") + "\ndetector:\n  time_interval: -300ms\n"
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	saved := configPath
	configPath = path
	t.Cleanup(func() { configPath = saved })

	if a, err := loadApp(); err == nil {
		a.close()
		t.Fatalf("expected negative time_interval to be rejected")
	}
}

func TestOpenStorage(t *testing.T) {
	store, err := openStorage(config.StorageConfig{
		Type:      "bolt",
		Path:      filepath.Join(t.TempDir(), "puttstep.bolt"),
		CacheSize: 8,
	})
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("close: %v", err)
	}

	if _, err := openStorage(config.StorageConfig{Type: "sqlite"}); err == nil {
		t.Error("expected unsupported storage type to fail")
	}
}

func TestRedactPassword(t *testing.T) {
	if redactPassword("") != "" {
		t.Error("empty password should stay empty")
	}
	if redactPassword("hunter2") == "hunter2" {
		t.Error("password should be redacted")
	}
}

func TestPruneMeasurementsScopedToSubject(t *testing.T) {
	store, err := bolt.Open(filepath.Join(t.TempDir(), "puttstep.bolt"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	old := now.Add(-48 * time.Hour)
	for _, m := range []storage.Measurement{
		{ID: "alex-old", SubjectID: "alex", Type: storage.MeasurementDistance, Timestamp: old, Steps: 10},
		{ID: "alex-new", SubjectID: "alex", Type: storage.MeasurementDistance, Timestamp: now, Steps: 12},
		{ID: "sam-old", SubjectID: "sam", Type: storage.MeasurementDistance, Timestamp: old, Steps: 8},
	} {
		if err := store.Measurements().Add(ctx, m); err != nil {
			t.Fatalf("add %s: %v", m.ID, err)
		}
	}

	n, err := pruneMeasurements(ctx, store.Measurements(), "alex", now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 deleted, got %d", n)
	}
	if _, err := store.Measurements().Get(ctx, "alex-old"); err != storage.ErrNotFound {
		t.Errorf("expected alex-old to be pruned, got %v", err)
	}
	if _, err := store.Measurements().Get(ctx, "alex-new"); err != nil {
		t.Errorf("alex-new should survive: %v", err)
	}
	if _, err := store.Measurements().Get(ctx, "sam-old"); err != nil {
		t.Errorf("another subject's session should survive: %v", err)
	}
}
