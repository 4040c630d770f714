// Package cache wraps a storage.Store with LRU caches for the per-subject
// records read on every tracking session.
package cache

import (
	"context"
	"fmt"

	"github.com/goodtune/puttstep/internal/metrics"
	"github.com/goodtune/puttstep/internal/storage"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Store caches settings and stride records in front of another Store.
// Measurements and calibration history pass straight through.
type Store struct {
	storage.Store
	settings     *settingsCache
	calibrations *calibrationCache
}

// Wrap returns inner with read caches of the given size.
func Wrap(inner storage.Store, size int) (*Store, error) {
	if size <= 0 {
		size = 64
	}
	settings, err := lru.New[string, storage.Settings](size)
	if err != nil {
		return nil, fmt.Errorf("create settings cache: %w", err)
	}
	strides, err := lru.New[string, storage.StrideCalibration](size)
	if err != nil {
		return nil, fmt.Errorf("create stride cache: %w", err)
	}

	return &Store{
		Store:        inner,
		settings:     &settingsCache{inner: inner.Settings(), cache: settings},
		calibrations: &calibrationCache{CalibrationStore: inner.Calibrations(), cache: strides},
	}, nil
}

// Settings returns the cached settings store.
func (s *Store) Settings() storage.SettingsStore { return s.settings }

// Calibrations returns the cached calibration store.
func (s *Store) Calibrations() storage.CalibrationStore { return s.calibrations }

type settingsCache struct {
	inner storage.SettingsStore
	cache *lru.Cache[string, storage.Settings]
}

func (c *settingsCache) Get(ctx context.Context, subjectID string) (*storage.Settings, error) {
	if s, ok := c.cache.Get(subjectID); ok {
		metrics.CacheHits.WithLabelValues("settings").Inc()
		return &s, nil
	}
	metrics.CacheMisses.WithLabelValues("settings").Inc()

	s, err := c.inner.Get(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	c.cache.Add(subjectID, *s)
	return s, nil
}

func (c *settingsCache) Upsert(ctx context.Context, settings storage.Settings) error {
	// drop first so a failed write never leaves a stale entry behind
	c.cache.Remove(settings.SubjectID)
	return c.inner.Upsert(ctx, settings)
}

type calibrationCache struct {
	storage.CalibrationStore
	cache *lru.Cache[string, storage.StrideCalibration]
}

func (c *calibrationCache) GetStride(ctx context.Context, subjectID string) (*storage.StrideCalibration, error) {
	if s, ok := c.cache.Get(subjectID); ok {
		metrics.CacheHits.WithLabelValues("stride").Inc()
		return &s, nil
	}
	metrics.CacheMisses.WithLabelValues("stride").Inc()

	s, err := c.CalibrationStore.GetStride(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	c.cache.Add(subjectID, *s)
	return s, nil
}

func (c *calibrationCache) PutStride(ctx context.Context, stride storage.StrideCalibration) error {
	c.cache.Remove(stride.SubjectID)
	if err := c.CalibrationStore.PutStride(ctx, stride); err != nil {
		return err
	}
	c.cache.Add(stride.SubjectID, stride)
	return nil
}
