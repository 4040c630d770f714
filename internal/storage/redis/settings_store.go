package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/puttstep/internal/storage"
	"github.com/redis/go-redis/v9"
)

type settingsStore struct {
	client *redis.Client
}

func (s *settingsStore) Get(ctx context.Context, subjectID string) (*storage.Settings, error) {
	data, err := s.client.HGetAll(ctx, settingsKey(subjectID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	return parseSettings(data)
}

func (s *settingsStore) Upsert(ctx context.Context, settings storage.Settings) error {
	if settings.SubjectID == "" {
		return fmt.Errorf("settings subject is required")
	}
	if settings.UpdatedAt.IsZero() {
		settings.UpdatedAt = time.Now().UTC()
	}
	return s.client.HSet(ctx, settingsKey(settings.SubjectID), settingsFields(settings)...).Err()
}
