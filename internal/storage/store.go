package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// Store represents the root storage interface.
type Store interface {
	Close() error
	Settings() SettingsStore
	Calibrations() CalibrationStore
	Measurements() MeasurementStore
}

// SettingsStore manages per-subject pedometer settings.
type SettingsStore interface {
	Get(ctx context.Context, subjectID string) (*Settings, error)
	Upsert(ctx context.Context, settings Settings) error
}

// CalibrationStore manages the live stride record and the trial history
// for each subject. History is kept newest first.
type CalibrationStore interface {
	GetStride(ctx context.Context, subjectID string) (*StrideCalibration, error)
	PutStride(ctx context.Context, stride StrideCalibration) error
	// AppendHistory prepends session and trims the list to limit entries.
	AppendHistory(ctx context.Context, subjectID string, session CalibrationSession, limit int) error
	ListHistory(ctx context.Context, subjectID string) ([]CalibrationSession, error)
}

// MeasurementStore manages completed distance measurements.
type MeasurementStore interface {
	Add(ctx context.Context, m Measurement) error
	Get(ctx context.Context, id string) (*Measurement, error)
	Query(ctx context.Context, filter MeasurementFilter) ([]Measurement, error)
	Delete(ctx context.Context, id string) error
	DeleteBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// MeasurementFilter defines criteria for querying measurements. Results
// are returned newest first. EndTime is exclusive.
type MeasurementFilter struct {
	SubjectID string
	Type      string
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
}

// Matches reports whether m satisfies the filter.
func (f MeasurementFilter) Matches(m Measurement) bool {
	if f.SubjectID != "" && m.SubjectID != f.SubjectID {
		return false
	}
	if f.Type != "" && m.Type != f.Type {
		return false
	}
	if f.StartTime != nil && m.Timestamp.Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && !m.Timestamp.Before(*f.EndTime) {
		return false
	}
	return true
}
