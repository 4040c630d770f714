package bolt

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/puttstep/internal/storage"
	"go.etcd.io/bbolt"
)

type settingsStore struct {
	db *bbolt.DB
}

func (s *settingsStore) Get(ctx context.Context, subjectID string) (*storage.Settings, error) {
	return getBucketValue[storage.Settings](ctx, s.db, bucketSettings, subjectID)
}

func (s *settingsStore) Upsert(ctx context.Context, settings storage.Settings) error {
	if settings.SubjectID == "" {
		return fmt.Errorf("settings subject is required")
	}
	if settings.UpdatedAt.IsZero() {
		settings.UpdatedAt = time.Now().UTC()
	}
	return putBucketValue(ctx, s.db, bucketSettings, settings.SubjectID, settings)
}
