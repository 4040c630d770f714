package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/goodtune/puttstep/internal/storage"
	"github.com/redis/go-redis/v9"
)

type measurementStore struct {
	client *redis.Client
}

func (s *measurementStore) Add(ctx context.Context, m storage.Measurement) error {
	if m.ID == "" {
		return fmt.Errorf("measurement id is required")
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal measurement: %w", err)
	}

	subject := m.SubjectID
	if subject == "" {
		subject = storage.DefaultSubjectID
	}

	script := redis.NewScript(addMeasurementScript)
	keys := []string{
		measurementKey(m.ID),
		measurementIndexKey(),
		subjectIndexKey(subject),
		subjectIndexKey(""),
	}
	return script.Run(ctx, s.client, keys, m.ID, subject, scoreOf(m.Timestamp), string(data)).Err()
}

func (s *measurementStore) Get(ctx context.Context, id string) (*storage.Measurement, error) {
	data, err := s.client.HGetAll(ctx, measurementKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get measurement: %w", err)
	}
	return parseMeasurement(data)
}

// Query reads ids newest first from the time index and fetches the
// documents in one pipeline per page
func (s *measurementStore) Query(ctx context.Context, filter storage.MeasurementFilter) ([]storage.Measurement, error) {
	index := measurementIndexKey()
	if filter.SubjectID != "" {
		index = subjectIndexKey(filter.SubjectID)
	}

	rng := &redis.ZRangeBy{Min: "-inf", Max: "+inf"}
	if filter.StartTime != nil {
		rng.Min = strconv.FormatFloat(scoreOf(*filter.StartTime), 'f', -1, 64)
	}
	if filter.EndTime != nil {
		rng.Max = "(" + strconv.FormatFloat(scoreOf(*filter.EndTime), 'f', -1, 64)
	}

	ids, err := s.client.ZRevRangeByScore(ctx, index, rng).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query measurement index: %w", err)
	}

	results := make([]storage.Measurement, 0)
	const pageSize = 100
	for start := 0; start < len(ids); start += pageSize {
		end := start + pageSize
		if end > len(ids) {
			end = len(ids)
		}

		pipe := s.client.Pipeline()
		cmds := make([]*redis.MapStringStringCmd, end-start)
		for i, id := range ids[start:end] {
			cmds[i] = pipe.HGetAll(ctx, measurementKey(id))
		}
		if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
			return nil, fmt.Errorf("failed to fetch measurements: %w", err)
		}

		for _, cmd := range cmds {
			m, err := parseMeasurement(cmd.Val())
			if err != nil {
				// index entry outlived its document
				continue
			}
			if !filter.Matches(*m) {
				continue
			}
			results = append(results, *m)
			if filter.Limit > 0 && len(results) >= filter.Limit {
				return results, nil
			}
		}
	}

	return results, nil
}

func (s *measurementStore) Delete(ctx context.Context, id string) error {
	script := redis.NewScript(deleteMeasurementScript)
	keys := []string{measurementKey(id), measurementIndexKey(), subjectIndexKey("")}
	deleted, err := script.Run(ctx, s.client, keys, id).Int()
	if err != nil {
		return fmt.Errorf("failed to delete measurement: %w", err)
	}
	if deleted == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *measurementStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	max := "(" + strconv.FormatFloat(scoreOf(cutoff), 'f', -1, 64)
	ids, err := s.client.ZRangeByScore(ctx, measurementIndexKey(), &redis.ZRangeBy{Min: "-inf", Max: max}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list expired measurements: %w", err)
	}

	deleted := 0
	for _, id := range ids {
		if err := s.Delete(ctx, id); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}
