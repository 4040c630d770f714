// Package calibration derives stride length from calibration trials and
// owns the per-subject settings and stride records.
package calibration

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/goodtune/puttstep/internal/clock"
	"github.com/goodtune/puttstep/internal/distance"
	"github.com/goodtune/puttstep/internal/metrics"
	"github.com/goodtune/puttstep/internal/storage"
	"github.com/rs/zerolog"
)

// DefaultHistoryLimit is the number of trials kept per subject.
const DefaultHistoryLimit = 10

// ErrInvalidTrial matches every *InvalidTrialError.
var ErrInvalidTrial = errors.New("calibration: invalid trial")

// ErrInvalidSettings is wrapped by SaveSettings validation failures.
var ErrInvalidSettings = errors.New("invalid settings")

// InvalidTrialError rejects a trial that cannot produce a positive stride.
type InvalidTrialError struct {
	KnownDistanceMeters float64
	Steps               int
	Reason              string
}

func (e *InvalidTrialError) Error() string {
	return fmt.Sprintf("calibration: invalid trial (%.2f m over %d steps): %s", e.KnownDistanceMeters, e.Steps, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidTrial) succeed.
func (e *InvalidTrialError) Is(target error) bool {
	return target == ErrInvalidTrial
}

// StrideLength divides a known distance by the steps taken to walk it.
func StrideLength(knownDistanceMeters float64, steps int) (float64, error) {
	if steps <= 0 {
		return 0, &InvalidTrialError{KnownDistanceMeters: knownDistanceMeters, Steps: steps, Reason: "step count must be greater than zero"}
	}
	if knownDistanceMeters <= 0 || math.IsNaN(knownDistanceMeters) || math.IsInf(knownDistanceMeters, 0) {
		return 0, &InvalidTrialError{KnownDistanceMeters: knownDistanceMeters, Steps: steps, Reason: "known distance must be a positive number"}
	}
	return knownDistanceMeters / float64(steps), nil
}

// Manager records calibration trials and resolves the stride policy for
// a subject.
type Manager struct {
	settings      storage.SettingsStore
	calibrations  storage.CalibrationStore
	clock         clock.Clock
	logger        zerolog.Logger
	historyLimit  int
	defaultHeight float64
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the time source for history and stride timestamps.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithHistoryLimit caps the number of trials kept per subject.
func WithHistoryLimit(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.historyLimit = n
		}
	}
}

// WithDefaultHeight sets the height assumed for a subject without settings.
func WithDefaultHeight(cm float64) Option {
	return func(m *Manager) {
		if cm > 0 {
			m.defaultHeight = cm
		}
	}
}

// NewManager creates a Manager over store.
func NewManager(store storage.Store, logger zerolog.Logger, opts ...Option) *Manager {
	m := &Manager{
		settings:      store.Settings(),
		calibrations:  store.Calibrations(),
		clock:         clock.Real{},
		logger:        logger.With().Str("component", "calibration").Logger(),
		historyLimit:  DefaultHistoryLimit,
		defaultHeight: storage.DefaultHeightCm,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Calibrate derives a stride from a trial, prepends the trial to the
// history, stores the new stride and switches the subject to calibrated
// mode. An invalid trial commits nothing.
func (m *Manager) Calibrate(ctx context.Context, subjectID string, knownDistanceMeters float64, steps int) (float64, error) {
	stride, err := StrideLength(knownDistanceMeters, steps)
	if err != nil {
		metrics.CalibrationsTotal.WithLabelValues("invalid").Inc()
		return 0, err
	}

	settings, err := m.Settings(ctx, subjectID)
	if err != nil {
		return 0, m.storageFailure("load_settings", subjectID, err)
	}

	now := m.clock.Now().UTC()
	session := storage.CalibrationSession{
		KnownDistanceMeters:    knownDistanceMeters,
		StepsTaken:             steps,
		CalculatedStrideLength: stride,
		Timestamp:              now,
	}
	if err := m.calibrations.AppendHistory(ctx, subjectID, session, m.historyLimit); err != nil {
		return 0, m.storageFailure("append_history", subjectID, err)
	}

	record := storage.StrideCalibration{
		SubjectID:          subjectID,
		StrideLengthMeters: stride,
		CalibrationDate:    now,
		PreferredUnit:      settings.PreferredUnit,
	}
	if err := m.calibrations.PutStride(ctx, record); err != nil {
		return 0, m.storageFailure("put_stride", subjectID, err)
	}

	settings.UseCalibrated = true
	settings.UpdatedAt = now
	if err := m.settings.Upsert(ctx, settings); err != nil {
		return 0, m.storageFailure("save_settings", subjectID, err)
	}

	metrics.CalibrationsTotal.WithLabelValues("ok").Inc()
	m.logger.Info().
		Str("subject", subjectID).
		Float64("distance", knownDistanceMeters).
		Int("steps", steps).
		Float64("stride", stride).
		Msg("Stride calibrated")

	return stride, nil
}

// Settings returns the subject's settings, or the defaults when none
// have been saved.
func (m *Manager) Settings(ctx context.Context, subjectID string) (storage.Settings, error) {
	s, err := m.settings.Get(ctx, subjectID)
	if errors.Is(err, storage.ErrNotFound) {
		defaults := storage.DefaultSettings(subjectID)
		defaults.HeightCm = m.defaultHeight
		return defaults, nil
	}
	if err != nil {
		return storage.Settings{}, err
	}
	return *s, nil
}

// SaveSettings merges patch over the stored settings.
func (m *Manager) SaveSettings(ctx context.Context, subjectID string, patch storage.SettingsPatch) (storage.Settings, error) {
	current, err := m.Settings(ctx, subjectID)
	if err != nil {
		return storage.Settings{}, m.storageFailure("load_settings", subjectID, err)
	}

	merged := current.Merge(patch)
	if merged.Sensitivity < 1 || merged.Sensitivity > 10 {
		return storage.Settings{}, fmt.Errorf("%w: sensitivity must be between 1 and 10: %d", ErrInvalidSettings, merged.Sensitivity)
	}
	if merged.HeightCm < 0 {
		return storage.Settings{}, fmt.Errorf("%w: height must not be negative: %v", ErrInvalidSettings, merged.HeightCm)
	}
	if _, err := distance.ParseUnit(merged.PreferredUnit); err != nil {
		return storage.Settings{}, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}

	merged.SubjectID = subjectID
	merged.UpdatedAt = m.clock.Now().UTC()
	if err := m.settings.Upsert(ctx, merged); err != nil {
		return storage.Settings{}, m.storageFailure("save_settings", subjectID, err)
	}
	return merged, nil
}

// Stride returns the subject's stride record, creating one from the
// height-derived estimate the first time the subject is seen.
func (m *Manager) Stride(ctx context.Context, subjectID string) (storage.StrideCalibration, error) {
	record, err := m.calibrations.GetStride(ctx, subjectID)
	if err == nil {
		return *record, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return storage.StrideCalibration{}, m.storageFailure("get_stride", subjectID, err)
	}

	settings, err := m.Settings(ctx, subjectID)
	if err != nil {
		return storage.StrideCalibration{}, m.storageFailure("load_settings", subjectID, err)
	}
	created := storage.StrideCalibration{
		SubjectID:          subjectID,
		StrideLengthMeters: distance.StrideFromHeight(settings.HeightCm),
		CalibrationDate:    m.clock.Now().UTC(),
		PreferredUnit:      settings.PreferredUnit,
	}
	if err := m.calibrations.PutStride(ctx, created); err != nil {
		return storage.StrideCalibration{}, m.storageFailure("put_stride", subjectID, err)
	}

	m.logger.Debug().Str("subject", subjectID).Float64("stride", created.StrideLengthMeters).Msg("Created default stride record")
	return created, nil
}

// SetStride records a manually entered stride length.
func (m *Manager) SetStride(ctx context.Context, subjectID string, meters float64) error {
	if meters <= 0 || math.IsNaN(meters) || math.IsInf(meters, 0) {
		return fmt.Errorf("stride length must be a positive number: %v", meters)
	}
	settings, err := m.Settings(ctx, subjectID)
	if err != nil {
		return m.storageFailure("load_settings", subjectID, err)
	}
	record := storage.StrideCalibration{
		SubjectID:          subjectID,
		StrideLengthMeters: meters,
		CalibrationDate:    m.clock.Now().UTC(),
		PreferredUnit:      settings.PreferredUnit,
	}
	if err := m.calibrations.PutStride(ctx, record); err != nil {
		return m.storageFailure("put_stride", subjectID, err)
	}
	return nil
}

// History returns the subject's trials, newest first.
func (m *Manager) History(ctx context.Context, subjectID string) ([]storage.CalibrationSession, error) {
	history, err := m.calibrations.ListHistory(ctx, subjectID)
	if err != nil {
		return nil, m.storageFailure("list_history", subjectID, err)
	}
	return history, nil
}

// Policy resolves the distance policy for the subject from its settings
// and stride record.
func (m *Manager) Policy(ctx context.Context, subjectID string) (distance.Policy, storage.Settings, error) {
	settings, err := m.Settings(ctx, subjectID)
	if err != nil {
		return distance.Policy{}, storage.Settings{}, m.storageFailure("load_settings", subjectID, err)
	}
	stride, err := m.Stride(ctx, subjectID)
	if err != nil {
		return distance.Policy{}, settings, err
	}
	return distance.Policy{
		UseCalibrated:    settings.UseCalibrated,
		CalibratedStride: stride.StrideLengthMeters,
		HeightCm:         settings.HeightCm,
	}, settings, nil
}

func (m *Manager) storageFailure(op, subjectID string, err error) error {
	metrics.StorageErrors.WithLabelValues(op).Inc()
	m.logger.Error().Err(err).Str("subject", subjectID).Str("operation", op).Msg("Calibration storage failure")
	return fmt.Errorf("%s: %w", op, err)
}
