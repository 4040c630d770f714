package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/puttstep/internal/config"
	"github.com/goodtune/puttstep/internal/storage"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "puttstep:"

// Store implements the storage.Store interface using Redis
type Store struct {
	client           *redis.Client
	settingsStore    *settingsStore
	calibrationStore *calibrationStore
	measurementStore *measurementStore
}

// Open creates a new Redis-backed storage instance
func Open(cfg config.RedisConfig) (*Store, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{
		client:           client,
		settingsStore:    &settingsStore{client: client},
		calibrationStore: &calibrationStore{client: client},
		measurementStore: &measurementStore{client: client},
	}, nil
}

// NewClient builds a client from configuration without connecting.
func NewClient(cfg config.RedisConfig) (*redis.Client, error) {
	dialTimeout, err := time.ParseDuration(cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid dial_timeout: %w", err)
	}

	readTimeout, err := time.ParseDuration(cfg.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid read_timeout: %w", err)
	}

	writeTimeout, err := time.ParseDuration(cfg.WriteTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid write_timeout: %w", err)
	}

	// Host may already carry the port
	addr := cfg.Host
	if cfg.Port > 0 {
		addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	}

	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,

		ContextTimeoutEnabled: true,
	}), nil
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

// Client exposes the connection for pub/sub users sharing the store's pool
func (s *Store) Client() *redis.Client {
	return s.client
}

// Settings returns the SettingsStore implementation
func (s *Store) Settings() storage.SettingsStore {
	return s.settingsStore
}

// Calibrations returns the CalibrationStore implementation
func (s *Store) Calibrations() storage.CalibrationStore {
	return s.calibrationStore
}

// Measurements returns the MeasurementStore implementation
func (s *Store) Measurements() storage.MeasurementStore {
	return s.measurementStore
}

func settingsKey(subjectID string) string {
	return keyPrefix + "settings:" + subjectID
}

func strideKey(subjectID string) string {
	return keyPrefix + "stride:" + subjectID
}

func historyKey(subjectID string) string {
	return keyPrefix + "calibration:history:" + subjectID
}

func measurementKey(id string) string {
	return keyPrefix + "measurement:" + id
}

func measurementIndexKey() string {
	return keyPrefix + "measurements"
}

func subjectIndexKey(subjectID string) string {
	return keyPrefix + "measurements:subject:" + subjectID
}
