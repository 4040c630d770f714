package bolt

import (
	"context"
	"errors"
	"fmt"

	"github.com/goodtune/puttstep/internal/storage"
	"go.etcd.io/bbolt"
)

type calibrationStore struct {
	db *bbolt.DB
}

func (s *calibrationStore) GetStride(ctx context.Context, subjectID string) (*storage.StrideCalibration, error) {
	return getBucketValue[storage.StrideCalibration](ctx, s.db, bucketStrides, subjectID)
}

func (s *calibrationStore) PutStride(ctx context.Context, stride storage.StrideCalibration) error {
	if stride.SubjectID == "" {
		return fmt.Errorf("stride subject is required")
	}
	return putBucketValue(ctx, s.db, bucketStrides, stride.SubjectID, stride)
}

// AppendHistory rewrites the subject's history list in one transaction.
func (s *calibrationStore) AppendHistory(ctx context.Context, subjectID string, session storage.CalibrationSession, limit int) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketHistory))
		if b == nil {
			return fmt.Errorf("bucket missing: %s", bucketHistory)
		}

		var history []storage.CalibrationSession
		if data := b.Get([]byte(subjectID)); data != nil {
			if err := unmarshal(data, &history); err != nil {
				return err
			}
		}

		history = append([]storage.CalibrationSession{session}, history...)
		if limit > 0 && len(history) > limit {
			history = history[:limit]
		}

		data, err := marshal(history)
		if err != nil {
			return err
		}
		return b.Put([]byte(subjectID), data)
	})
}

func (s *calibrationStore) ListHistory(ctx context.Context, subjectID string) ([]storage.CalibrationSession, error) {
	history, err := getBucketValue[[]storage.CalibrationSession](ctx, s.db, bucketHistory, subjectID)
	if errors.Is(err, storage.ErrNotFound) {
		return []storage.CalibrationSession{}, nil
	}
	if err != nil {
		return nil, err
	}
	return *history, nil
}
