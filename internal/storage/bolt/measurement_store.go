package bolt

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/goodtune/puttstep/internal/storage"
	"go.etcd.io/bbolt"
)

type measurementStore struct {
	db *bbolt.DB
}

func (s *measurementStore) Add(ctx context.Context, m storage.Measurement) error {
	if m.ID == "" {
		return fmt.Errorf("measurement id is required")
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	key, err := timeKey(m.Timestamp)
	if err != nil {
		return err
	}
	data, err := marshal(m)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		bucket := tx.Bucket([]byte(bucketMeasurements))
		if bucket == nil {
			return fmt.Errorf("measurement bucket missing")
		}

		ids, err := ensureIndexBucket(tx, bucketIndexMeasurementID)
		if err != nil {
			return err
		}
		if old := ids.Get([]byte(m.ID)); old != nil {
			if err := s.deleteKey(tx, string(old)); err != nil {
				return err
			}
		}

		if err := bucket.Put([]byte(key), data); err != nil {
			return err
		}
		if err := ids.Put([]byte(m.ID), []byte(key)); err != nil {
			return err
		}
		subject, err := ensureIndexBucket(tx, bucketIndexSubject, subjectKey(m.SubjectID))
		if err != nil {
			return err
		}
		return subject.Put([]byte(key), []byte{})
	})
}

func (s *measurementStore) Get(ctx context.Context, id string) (*storage.Measurement, error) {
	var out *storage.Measurement
	err := s.db.View(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m, _, err := lookupByID(tx, id)
		if err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Query walks the time-ordered keys backwards so results come out newest
// first. A subject filter walks that subject's index instead of the whole
// bucket.
func (s *measurementStore) Query(ctx context.Context, filter storage.MeasurementFilter) ([]storage.Measurement, error) {
	results := make([]storage.Measurement, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketMeasurements))
		if bucket == nil {
			return nil
		}

		var c *bbolt.Cursor
		if filter.SubjectID != "" {
			idx := indexBucket(tx, bucketIndexSubject, subjectKey(filter.SubjectID))
			if idx == nil {
				return nil
			}
			c = idx.Cursor()
		} else {
			c = bucket.Cursor()
		}

		for k, _ := c.Last(); k != nil; k, _ = c.Prev() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			data := bucket.Get(k)
			if data == nil {
				continue
			}
			var m storage.Measurement
			if err := unmarshal(data, &m); err != nil {
				return err
			}
			if filter.StartTime != nil && m.Timestamp.Before(*filter.StartTime) {
				break
			}
			if !filter.Matches(m) {
				continue
			}
			results = append(results, m)
			if filter.Limit > 0 && len(results) >= filter.Limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *measurementStore) Delete(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, key, err := lookupByID(tx, id)
		if err != nil {
			return err
		}
		return s.deleteKey(tx, key)
	})
}

func (s *measurementStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	deleted := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		bucket := tx.Bucket([]byte(bucketMeasurements))
		if bucket == nil {
			return nil
		}

		var expired []string
		end := []byte(fmt.Sprintf("%020d", cutoff.UnixNano()))
		c := bucket.Cursor()
		for k, _ := c.First(); k != nil && bytes.Compare(k, end) < 0; k, _ = c.Next() {
			expired = append(expired, string(k))
		}
		for _, key := range expired {
			if err := s.deleteKey(tx, key); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

// deleteKey removes a measurement and its index entries.
func (s *measurementStore) deleteKey(tx *bbolt.Tx, key string) error {
	bucket := tx.Bucket([]byte(bucketMeasurements))
	data := bucket.Get([]byte(key))
	if data == nil {
		return storage.ErrNotFound
	}
	var m storage.Measurement
	if err := unmarshal(data, &m); err != nil {
		return err
	}

	if err := bucket.Delete([]byte(key)); err != nil {
		return err
	}
	if ids := indexBucket(tx, bucketIndexMeasurementID); ids != nil {
		if err := ids.Delete([]byte(m.ID)); err != nil {
			return err
		}
	}
	if subject := indexBucket(tx, bucketIndexSubject, subjectKey(m.SubjectID)); subject != nil {
		if err := subject.Delete([]byte(key)); err != nil {
			return err
		}
	}
	return nil
}

func lookupByID(tx *bbolt.Tx, id string) (*storage.Measurement, string, error) {
	ids := indexBucket(tx, bucketIndexMeasurementID)
	if ids == nil {
		return nil, "", storage.ErrNotFound
	}
	key := ids.Get([]byte(id))
	if key == nil {
		return nil, "", storage.ErrNotFound
	}
	data := tx.Bucket([]byte(bucketMeasurements)).Get(key)
	if data == nil {
		return nil, "", storage.ErrNotFound
	}
	var m storage.Measurement
	if err := unmarshal(data, &m); err != nil {
		return nil, "", err
	}
	return &m, string(key), nil
}

// subjectKey names the index bucket for a subject; bolt rejects empty
// bucket names.
func subjectKey(subjectID string) string {
	if subjectID == "" {
		return storage.DefaultSubjectID
	}
	return subjectID
}
