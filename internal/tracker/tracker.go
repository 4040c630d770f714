package tracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/goodtune/puttstep/internal/calibration"
	"github.com/goodtune/puttstep/internal/clock"
	"github.com/goodtune/puttstep/internal/distance"
	"github.com/goodtune/puttstep/internal/metrics"
	"github.com/goodtune/puttstep/internal/motion"
	"github.com/goodtune/puttstep/internal/pedometer"
	"github.com/goodtune/puttstep/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultHardwareTimeout bounds hardware step counter start and stop.
const DefaultHardwareTimeout = 5 * time.Second

// Config holds the tracker's static configuration.
type Config struct {
	SubjectID string
	// Detector is the base tuning; subject settings adjust it per session.
	Detector pedometer.Options
	// Sensitivity, when 1..10, pins the threshold regardless of the
	// subject's saved sensitivity.
	Sensitivity     int
	HardwareTimeout time.Duration
}

// Tracker runs tracking sessions for one subject. It serialises samples,
// hardware events and control operations, so the detector sees exactly
// one caller at a time.
type Tracker struct {
	mu           sync.Mutex
	cfg          Config
	detector     *pedometer.Detector
	calibration  *calibration.Manager
	measurements storage.MeasurementStore
	permission   motion.PermissionRequester
	clock        clock.Clock
	logger       zerolog.Logger

	policy    distance.Policy
	settings  storage.Settings
	startedAt time.Time
	hwPresent bool

	observerMu sync.RWMutex
	observers  map[int]Observer
	nextID     int
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithPermission gates Start behind a sensor permission request.
func WithPermission(p motion.PermissionRequester) Option {
	return func(t *Tracker) { t.permission = p }
}

// WithClock sets the time source for measurement timestamps.
func WithClock(c clock.Clock) Option {
	return func(t *Tracker) { t.clock = c }
}

// New creates a Tracker. measurements may be nil, in which case finished
// sessions are not persisted.
func New(cfg Config, detector *pedometer.Detector, manager *calibration.Manager, measurements storage.MeasurementStore, logger zerolog.Logger, opts ...Option) *Tracker {
	if cfg.SubjectID == "" {
		cfg.SubjectID = storage.DefaultSubjectID
	}
	if cfg.HardwareTimeout <= 0 {
		cfg.HardwareTimeout = DefaultHardwareTimeout
	}

	t := &Tracker{
		cfg:          cfg,
		detector:     detector,
		calibration:  manager,
		measurements: measurements,
		clock:        clock.Real{},
		logger:       logger.With().Str("component", "tracker").Str("subject", cfg.SubjectID).Logger(),
		settings:     storage.DefaultSettings(cfg.SubjectID),
		observers:    make(map[int]Observer),
	}
	t.policy = distance.Policy{HeightCm: t.settings.HeightCm}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Subscribe registers an observer and returns a function removing it.
func (t *Tracker) Subscribe(o Observer) func() {
	t.observerMu.Lock()
	id := t.nextID
	t.nextID++
	t.observers[id] = o
	t.observerMu.Unlock()

	return func() {
		t.observerMu.Lock()
		delete(t.observers, id)
		t.observerMu.Unlock()
	}
}

func (t *Tracker) notify(state LiveState) {
	t.observerMu.RLock()
	defer t.observerMu.RUnlock()
	for _, o := range t.observers {
		o(state)
	}
}

// State returns the current live state.
func (t *Tracker) State() LiveState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() LiveState {
	steps := t.detector.Steps()
	estimate := distance.Estimate(steps, t.policy)
	return LiveState{
		SubjectID:               t.cfg.SubjectID,
		Steps:                   steps,
		DistanceMeters:          estimate.DistanceMeters,
		StrideLength:            estimate.StrideLengthUsed,
		StrideSource:            string(estimate.Source),
		IsTracking:              t.detector.Tracking(),
		IsStill:                 t.detector.Still(),
		HardwareSensorAvailable: t.hwPresent,
		HardwareSensorActive:    t.detector.Tracking() && t.detector.Mode() == pedometer.ModeHardware,
		LastAcceleration:        t.detector.LastAcceleration(),
		UpdatedAt:               t.clock.Now().UTC(),
	}
}

// optionsFor derives the session tuning from the base configuration and
// the subject's settings.
func (t *Tracker) optionsFor(settings storage.Settings) pedometer.Options {
	opts := t.cfg.Detector
	switch {
	case t.cfg.Sensitivity >= 1 && t.cfg.Sensitivity <= 10:
		opts.Threshold = pedometer.SensitivityToThreshold(t.cfg.Sensitivity)
	case settings.SensitivitySet:
		opts.Threshold = pedometer.SensitivityToThreshold(settings.Sensitivity)
	}
	opts.UseHardwareSensor = opts.UseHardwareSensor && settings.UseHardwareSensor
	return opts
}

// refreshLocked reloads settings and the stride policy. A storage failure
// keeps the previous policy so the session can still run.
func (t *Tracker) refreshLocked(ctx context.Context) {
	policy, settings, err := t.calibration.Policy(ctx, t.cfg.SubjectID)
	if err != nil {
		t.logger.Warn().Err(err).Msg("Using previous stride policy")
		return
	}
	t.policy = policy
	t.settings = settings
	stride, _ := distance.ResolveStride(policy)
	metrics.StrideLength.Set(stride)
}

// Start begins a tracking session. A denied sensor permission is returned
// and tracking does not start. Starting while already tracking is a no-op.
func (t *Tracker) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.detector.Tracking() {
		t.mu.Unlock()
		t.logger.Debug().Msg("Start ignored, already tracking")
		return nil
	}

	if t.permission != nil {
		if err := t.permission.RequestPermission(ctx); err != nil {
			t.mu.Unlock()
			t.logger.Warn().Err(err).Msg("Motion sensor permission denied")
			return fmt.Errorf("start tracking: %w", err)
		}
	}

	t.refreshLocked(ctx)
	opts := t.optionsFor(t.settings)
	t.detector.SetOptions(opts)

	hctx, cancel := context.WithTimeout(ctx, t.cfg.HardwareTimeout)
	t.hwPresent = t.detector.HardwareAvailable(hctx)
	mode := t.detector.Start(hctx)
	cancel()

	if opts.UseHardwareSensor && t.hwPresent && mode != pedometer.ModeHardware {
		metrics.HardwareErrors.WithLabelValues("start").Inc()
	}
	metrics.TrackingSessions.WithLabelValues(string(mode)).Inc()
	metrics.TrackingActive.Set(1)
	t.startedAt = t.clock.Now().UTC()

	t.logger.Info().
		Str("mode", string(mode)).
		Float64("threshold", opts.Threshold).
		Msg("Tracking session started")

	state := t.snapshotLocked()
	t.mu.Unlock()
	t.notify(state)
	return nil
}

// Stop ends the session and returns its steps and distance. When steps
// were taken the session is saved as a measurement; a save failure is
// returned alongside the result, which stays valid.
func (t *Tracker) Stop(ctx context.Context) (Result, error) {
	t.mu.Lock()
	wasTracking := t.detector.Tracking()

	hctx, cancel := context.WithTimeout(ctx, t.cfg.HardwareTimeout)
	steps := t.detector.Stop(hctx)
	cancel()
	if wasTracking && t.detector.HardwareStopError() != nil {
		metrics.HardwareErrors.WithLabelValues("stop").Inc()
	}

	res := Result{Steps: steps, Distance: distance.Estimate(steps, t.policy)}
	metrics.TrackingActive.Set(0)
	state := t.snapshotLocked()
	startedAt := t.startedAt
	t.mu.Unlock()
	t.notify(state)

	if !wasTracking {
		return res, nil
	}

	t.logger.Info().
		Int("steps", steps).
		Float64("distance", res.Distance.DistanceMeters).
		Float64("stride", res.Distance.StrideLengthUsed).
		Msg("Tracking session stopped")

	if steps <= 0 || t.measurements == nil {
		return res, nil
	}

	m := storage.Measurement{
		ID:             uuid.NewString(),
		SubjectID:      t.cfg.SubjectID,
		Type:           storage.MeasurementDistance,
		Timestamp:      t.clock.Now().UTC(),
		Steps:          steps,
		DistanceMeters: res.Distance.DistanceMeters,
		DistanceFeet:   res.Distance.Feet(),
		StrideLength:   res.Distance.StrideLengthUsed,
		StrideSource:   string(res.Distance.Source),
	}
	if err := t.measurements.Add(ctx, m); err != nil {
		metrics.StorageErrors.WithLabelValues("add_measurement").Inc()
		t.logger.Error().Err(err).Time("started_at", startedAt).Msg("Failed to save measurement")
		return res, fmt.Errorf("save measurement: %w", err)
	}
	res.Measurement = &m
	return res, nil
}

// Reset zeroes the step count without ending the session.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.detector.Reset()
	state := t.snapshotLocked()
	t.mu.Unlock()
	t.notify(state)
}

// Calibrate uses the current step count as a trial over knownDistance.
func (t *Tracker) Calibrate(ctx context.Context, knownDistanceMeters float64) (float64, error) {
	t.mu.Lock()
	steps := t.detector.Steps()
	t.mu.Unlock()
	return t.CalibrateTrial(ctx, knownDistanceMeters, steps)
}

// CalibrateTrial records a trial with an explicit step count and switches
// the live estimate to the new stride.
func (t *Tracker) CalibrateTrial(ctx context.Context, knownDistanceMeters float64, steps int) (float64, error) {
	stride, err := t.calibration.Calibrate(ctx, t.cfg.SubjectID, knownDistanceMeters, steps)
	if err != nil {
		return 0, err
	}

	t.mu.Lock()
	t.refreshLocked(ctx)
	state := t.snapshotLocked()
	t.mu.Unlock()
	t.notify(state)
	return stride, nil
}

// SaveSettings merges patch into the subject's settings. A running
// session picks up the new tuning immediately.
func (t *Tracker) SaveSettings(ctx context.Context, patch storage.SettingsPatch) (storage.Settings, error) {
	saved, err := t.calibration.SaveSettings(ctx, t.cfg.SubjectID, patch)
	if err != nil {
		return storage.Settings{}, err
	}

	t.mu.Lock()
	t.refreshLocked(ctx)
	if t.detector.Tracking() {
		t.detector.SetOptions(t.optionsFor(t.settings))
	}
	state := t.snapshotLocked()
	t.mu.Unlock()
	t.notify(state)
	return saved, nil
}

// Process feeds one accelerometer reading through the detector.
func (t *Tracker) Process(r motion.Reading) pedometer.Outcome {
	t.mu.Lock()
	outcome := t.detector.Process(r)
	if outcome == pedometer.OutcomeIdle {
		t.mu.Unlock()
		return outcome
	}

	metrics.SamplesTotal.WithLabelValues(string(outcome)).Inc()
	metrics.DeviceStill.Set(metrics.BoolGauge(t.detector.Still()))
	if outcome == pedometer.OutcomeStep {
		metrics.StepsTotal.WithLabelValues(string(pedometer.ModeAccelerometer)).Inc()
	}
	state := t.snapshotLocked()
	t.mu.Unlock()
	t.notify(state)
	return outcome
}

// HandleStepEvent applies a hardware step counter event.
func (t *Tracker) HandleStepEvent(ev motion.StepEvent) bool {
	t.mu.Lock()
	before := t.detector.Steps()
	if !t.detector.HandleStepEvent(ev) {
		t.mu.Unlock()
		return false
	}
	if delta := t.detector.Steps() - before; delta > 0 {
		metrics.StepsTotal.WithLabelValues(string(pedometer.ModeHardware)).Add(float64(delta))
	}
	state := t.snapshotLocked()
	t.mu.Unlock()
	t.notify(state)
	return true
}

// Run consumes src and the hardware counter's events until src is
// exhausted or ctx is done. Exhaustion returns nil. Tracking is
// controlled separately with Start and Stop; readings arriving while
// idle are ignored.
func (t *Tracker) Run(ctx context.Context, src motion.Source) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	readings := make(chan motion.Reading)
	errc := make(chan error, 1)
	go func() {
		defer close(readings)
		for {
			r, err := src.Next(ctx)
			if err != nil {
				errc <- err
				return
			}
			select {
			case readings <- r:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
	}()

	events := t.detector.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r, ok := <-readings:
			if !ok {
				err := <-errc
				if errors.Is(err, io.EOF) {
					return nil
				}
				return err
			}
			t.Process(r)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			t.HandleStepEvent(ev)
		}
	}
}
