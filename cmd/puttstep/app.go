package main

import (
	"fmt"
	"time"

	"github.com/goodtune/puttstep/internal/calibration"
	"github.com/goodtune/puttstep/internal/config"
	"github.com/goodtune/puttstep/internal/motion"
	"github.com/goodtune/puttstep/internal/pedometer"
	"github.com/goodtune/puttstep/internal/storage"
	"github.com/goodtune/puttstep/internal/storage/bolt"
	"github.com/goodtune/puttstep/internal/storage/cache"
	"github.com/goodtune/puttstep/internal/storage/redis"
	"github.com/goodtune/puttstep/internal/tracker"
	"github.com/rs/zerolog"
)

// app is the wiring shared by every command.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	store   storage.Store
	manager *calibration.Manager
}

func loadApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if subjectID != "" {
		cfg.Subject.ID = subjectID
	}

	if err := detectorOptions(cfg.Detector).Validate(); err != nil {
		return nil, fmt.Errorf("invalid detector configuration: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	manager := calibration.NewManager(store, logger,
		calibration.WithHistoryLimit(cfg.Stride.HistoryLimit),
		calibration.WithDefaultHeight(cfg.Stride.DefaultHeightCm),
	)

	return &app{cfg: cfg, logger: logger, store: store, manager: manager}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error().Err(err).Msg("Failed to close storage")
	}
}

// newTracker builds the detector and tracker for the configured subject.
func (a *app) newTracker(counter motion.StepCounter, measurements storage.MeasurementStore, opts ...tracker.Option) *tracker.Tracker {
	detOpts := detectorOptions(a.cfg.Detector)
	detector := pedometer.New(detOpts, counter, a.logger)
	return tracker.New(tracker.Config{
		SubjectID:       a.cfg.Subject.ID,
		Detector:        detOpts,
		Sensitivity:     a.cfg.Detector.Sensitivity,
		HardwareTimeout: config.ParseDuration(a.cfg.Detector.HardwareTimeout, tracker.DefaultHardwareTimeout),
	}, detector, a.manager, measurements, a.logger, opts...)
}

func detectorOptions(cfg config.DetectorConfig) pedometer.Options {
	return pedometer.Options{
		Threshold:           cfg.Threshold,
		TimeInterval:        config.ParseDuration(cfg.TimeInterval, 300*time.Millisecond),
		SmoothingFactor:     cfg.SmoothingFactor,
		UseHardwareSensor:   cfg.UseHardwareSensor,
		StillnessThreshold:  cfg.StillnessThreshold,
		StillnessWindowSize: cfg.StillnessWindowSize,
	}
}

func openStorage(cfg config.StorageConfig) (storage.Store, error) {
	var (
		store storage.Store
		err   error
	)
	switch cfg.Type {
	case "", "bolt":
		store, err = bolt.Open(cfg.Path)
	case "redis":
		store, err = redis.Open(cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	cached, err := cache.Wrap(store, cfg.CacheSize)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return cached, nil
}
