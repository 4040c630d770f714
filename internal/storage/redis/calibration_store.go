package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/goodtune/puttstep/internal/storage"
	"github.com/redis/go-redis/v9"
)

type calibrationStore struct {
	client *redis.Client
}

func (s *calibrationStore) GetStride(ctx context.Context, subjectID string) (*storage.StrideCalibration, error) {
	data, err := s.client.HGetAll(ctx, strideKey(subjectID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get stride: %w", err)
	}
	return parseStride(data)
}

func (s *calibrationStore) PutStride(ctx context.Context, stride storage.StrideCalibration) error {
	if stride.SubjectID == "" {
		return fmt.Errorf("stride subject is required")
	}
	return s.client.HSet(ctx, strideKey(stride.SubjectID), strideFields(stride)...).Err()
}

// AppendHistory uses a Lua script so the push and trim are atomic
func (s *calibrationStore) AppendHistory(ctx context.Context, subjectID string, session storage.CalibrationSession, limit int) error {
	entry, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal calibration session: %w", err)
	}

	script := redis.NewScript(pushHistoryScript)
	return script.Run(ctx, s.client, []string{historyKey(subjectID)}, string(entry), limit).Err()
}

func (s *calibrationStore) ListHistory(ctx context.Context, subjectID string) ([]storage.CalibrationSession, error) {
	entries, err := s.client.LRange(ctx, historyKey(subjectID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list calibration history: %w", err)
	}

	history := make([]storage.CalibrationSession, 0, len(entries))
	for _, entry := range entries {
		var session storage.CalibrationSession
		if err := json.Unmarshal([]byte(entry), &session); err != nil {
			return nil, fmt.Errorf("failed to parse calibration session: %w", err)
		}
		history = append(history, session)
	}
	return history, nil
}
