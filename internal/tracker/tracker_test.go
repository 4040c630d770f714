package tracker

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/goodtune/puttstep/internal/calibration"
	"github.com/goodtune/puttstep/internal/clock"
	"github.com/goodtune/puttstep/internal/distance"
	"github.com/goodtune/puttstep/internal/metrics"
	"github.com/goodtune/puttstep/internal/motion"
	"github.com/goodtune/puttstep/internal/pedometer"
	"github.com/goodtune/puttstep/internal/storage"
	"github.com/goodtune/puttstep/internal/storage/bolt"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

// walk returns readings for a device at rest, then count vertical jolts
// spaced 400ms apart at 50 Hz, then rest again.
func walk(count int) []motion.Reading {
	var out []motion.Reading
	at := testStart
	add := func(z float64) {
		out = append(out, motion.NewReading(0, 0, z, at))
		at = at.Add(20 * time.Millisecond)
	}
	for i := 0; i < 25; i++ {
		add(0)
	}
	for i := 0; i < count; i++ {
		add(20)
		for j := 0; j < 19; j++ {
			add(0)
		}
	}
	for i := 0; i < 25; i++ {
		add(0)
	}
	return out
}

type fixture struct {
	tracker *Tracker
	manager *calibration.Manager
	store   storage.Store
	clock   *clock.Fake
}

func newFixture(t *testing.T, counter motion.StepCounter, opts ...Option) *fixture {
	t.Helper()
	store, err := bolt.Open(filepath.Join(t.TempDir(), "puttstep.bolt"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	fake := clock.NewFake(testStart)
	manager := calibration.NewManager(store, zerolog.Nop(), calibration.WithClock(fake))
	detector := pedometer.New(pedometer.DefaultOptions(), counter, zerolog.Nop(), pedometer.WithClock(fake))

	opts = append([]Option{WithClock(fake)}, opts...)
	tr := New(Config{SubjectID: "alex", Detector: pedometer.DefaultOptions()}, detector, manager, store.Measurements(), zerolog.Nop(), opts...)
	return &fixture{tracker: tr, manager: manager, store: store, clock: fake}
}

func (f *fixture) feed(readings []motion.Reading) {
	for _, r := range readings {
		f.tracker.Process(r)
	}
}

func boolPtr(b bool) *bool { return &b }

func TestSessionWithCalibratedStride(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.manager.SetStride(ctx, "alex", 0.75))
	_, err := f.tracker.SaveSettings(ctx, storage.SettingsPatch{UseCalibrated: boolPtr(true)})
	require.NoError(t, err)

	require.NoError(t, f.tracker.Start(ctx))
	f.feed(walk(10))
	res, err := f.tracker.Stop(ctx)
	require.NoError(t, err)

	assert.Equal(t, 10, res.Steps)
	assert.InDelta(t, 7.5, res.Distance.DistanceMeters, 1e-9)
	assert.Equal(t, distance.SourceCalibrated, res.Distance.Source)

	require.NotNil(t, res.Measurement)
	assert.NotEmpty(t, res.Measurement.ID)

	stored, err := f.store.Measurements().Get(ctx, res.Measurement.ID)
	require.NoError(t, err)
	assert.Equal(t, "alex", stored.SubjectID)
	assert.Equal(t, storage.MeasurementDistance, stored.Type)
	assert.Equal(t, 10, stored.Steps)
	assert.InDelta(t, 7.5, stored.DistanceMeters, 1e-9)
	assert.InDelta(t, distance.MetersToFeet(7.5), stored.DistanceFeet, 1e-9)
}

func TestSessionWithHeightStride(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.tracker.Start(ctx))
	f.feed(walk(10))
	res, err := f.tracker.Stop(ctx)
	require.NoError(t, err)

	assert.Equal(t, 10, res.Steps)
	assert.Equal(t, distance.SourceHeight, res.Distance.Source)
	assert.InDelta(t, 10*1.70*distance.HeightStrideCoefficient, res.Distance.DistanceMeters, 1e-9)
}

func TestStopWithoutStepsSavesNothing(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.tracker.Start(ctx))
	res, err := f.tracker.Stop(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Steps)
	assert.Zero(t, res.Distance.DistanceMeters)
	assert.Nil(t, res.Measurement)

	list, err := f.store.Measurements().Query(ctx, storage.MeasurementFilter{SubjectID: "alex"})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestStopWhenIdle(t *testing.T) {
	f := newFixture(t, nil)
	res, err := f.tracker.Stop(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Steps)
	assert.Nil(t, res.Measurement)
}

func TestReadingsWhileIdleAreIgnored(t *testing.T) {
	f := newFixture(t, nil)
	f.feed(walk(5))
	assert.Zero(t, f.tracker.State().Steps)
}

func TestResetKeepsTracking(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.tracker.Start(ctx))
	f.feed(walk(3))
	require.Equal(t, 3, f.tracker.State().Steps)

	f.tracker.Reset()
	state := f.tracker.State()
	assert.Zero(t, state.Steps)
	assert.True(t, state.IsTracking)
}

func TestStartTwiceKeepsCount(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.tracker.Start(ctx))
	f.feed(walk(2))
	require.NoError(t, f.tracker.Start(ctx))
	assert.Equal(t, 2, f.tracker.State().Steps)
}

type denyPermission struct{}

func (denyPermission) RequestPermission(ctx context.Context) error {
	return motion.ErrPermissionDenied
}

func TestPermissionDenied(t *testing.T) {
	f := newFixture(t, nil, WithPermission(denyPermission{}))
	err := f.tracker.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, motion.ErrPermissionDenied)
	assert.False(t, f.tracker.State().IsTracking)
}

func TestCalibrateFromSession(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.tracker.Start(ctx))
	f.feed(walk(10))
	_, err := f.tracker.Stop(ctx)
	require.NoError(t, err)

	stride, err := f.tracker.Calibrate(ctx, 8)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, stride, 1e-9)

	state := f.tracker.State()
	assert.Equal(t, string(distance.SourceCalibrated), state.StrideSource)
	assert.InDelta(t, 8, state.DistanceMeters, 1e-9)

	history, err := f.manager.History(ctx, "alex")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 10, history[0].StepsTaken)
}

func TestCalibrateWithoutStepsFails(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.tracker.Calibrate(context.Background(), 10)
	assert.ErrorIs(t, err, calibration.ErrInvalidTrial)
}

func TestSensitivityFromSettings(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	// Least sensitive needs a filtered peak above 3.0.
	_, err := f.tracker.SaveSettings(ctx, storage.SettingsPatch{Sensitivity: intPtr(1)})
	require.NoError(t, err)
	require.NoError(t, f.tracker.Start(ctx))
	assert.InDelta(t, 3.0, f.tracker.detector.Options().Threshold, 1e-9)

	// Raw 12 filters to 2.4.
	at := testStart
	for i := 0; i < 25; i++ {
		f.tracker.Process(motion.NewReading(0, 0, 0, at))
		at = at.Add(20 * time.Millisecond)
	}
	f.tracker.Process(motion.NewReading(0, 0, 12, at))
	assert.Zero(t, f.tracker.State().Steps)
}

func TestConfigSensitivityWins(t *testing.T) {
	f := newFixture(t, nil)
	f.tracker.cfg.Sensitivity = 10
	ctx := context.Background()

	_, err := f.tracker.SaveSettings(ctx, storage.SettingsPatch{Sensitivity: intPtr(1)})
	require.NoError(t, err)
	require.NoError(t, f.tracker.Start(ctx))
	assert.InDelta(t, 1.0, f.tracker.detector.Options().Threshold, 1e-9)
}

func TestThresholdIgnoresUnrelatedSettingsWrites(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.tracker.Start(ctx))
	f.feed(walk(13))
	_, err := f.tracker.Stop(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, f.tracker.detector.Options().Threshold, 1e-9)

	_, err = f.tracker.CalibrateTrial(ctx, 10, 13)
	require.NoError(t, err)
	unit := "ft"
	_, err = f.tracker.SaveSettings(ctx, storage.SettingsPatch{PreferredUnit: &unit})
	require.NoError(t, err)

	settings, err := f.manager.Settings(ctx, "alex")
	require.NoError(t, err)
	assert.False(t, settings.SensitivitySet)

	require.NoError(t, f.tracker.Start(ctx))
	assert.InDelta(t, 2.0, f.tracker.detector.Options().Threshold, 1e-9, "config threshold kept")
}

func intPtr(v int) *int { return &v }

func TestObservers(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	var mu sync.Mutex
	var states []LiveState
	unsubscribe := f.tracker.Subscribe(func(s LiveState) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	require.NoError(t, f.tracker.Start(ctx))
	f.feed(walk(1))

	mu.Lock()
	n := len(states)
	first, last := states[0], states[n-1]
	mu.Unlock()

	assert.True(t, first.IsTracking)
	assert.Zero(t, first.Steps)
	assert.Equal(t, 1, last.Steps)
	assert.Equal(t, "alex", last.SubjectID)

	unsubscribe()
	f.tracker.Reset()
	mu.Lock()
	assert.Len(t, states, n)
	mu.Unlock()
}

func TestRunConsumesSource(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.tracker.Start(ctx))
	err := f.tracker.Run(ctx, motion.NewSliceSource(walk(4)))
	require.NoError(t, err)
	assert.Equal(t, 4, f.tracker.State().Steps)
}

type failingSource struct{}

func (failingSource) Next(ctx context.Context) (motion.Reading, error) {
	return motion.Reading{}, errors.New("sensor unplugged")
}

func TestRunReturnsSourceError(t *testing.T) {
	f := newFixture(t, nil)
	err := f.tracker.Run(context.Background(), failingSource{})
	assert.EqualError(t, err, "sensor unplugged")
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	src := motion.NewChannelSource(1)

	done := make(chan error, 1)
	go func() { done <- f.tracker.Run(ctx, src) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

type hardwareCounter struct {
	events  chan motion.StepEvent
	stopErr error
}

func (h *hardwareCounter) Available(ctx context.Context) (bool, error) { return true, nil }
func (h *hardwareCounter) Start(ctx context.Context) error            { return nil }
func (h *hardwareCounter) Stop(ctx context.Context) error             { return h.stopErr }
func (h *hardwareCounter) Events() <-chan motion.StepEvent            { return h.events }

func TestHardwareSession(t *testing.T) {
	counter := &hardwareCounter{events: make(chan motion.StepEvent, 8)}
	f := newFixture(t, counter)
	ctx := context.Background()

	require.NoError(t, f.tracker.Start(ctx))
	state := f.tracker.State()
	assert.True(t, state.HardwareSensorAvailable)
	assert.True(t, state.HardwareSensorActive)

	// Accelerometer readings do not count in hardware mode.
	f.feed(walk(3))
	assert.Zero(t, f.tracker.State().Steps)

	count := 42
	assert.True(t, f.tracker.HandleStepEvent(motion.StepEvent{Count: &count}))
	assert.True(t, f.tracker.HandleStepEvent(motion.StepEvent{}))

	res, err := f.tracker.Stop(ctx)
	require.NoError(t, err)
	assert.Equal(t, 43, res.Steps)
	assert.False(t, f.tracker.HandleStepEvent(motion.StepEvent{}))
}

func TestHardwareStopFailureCounted(t *testing.T) {
	counter := &hardwareCounter{events: make(chan motion.StepEvent, 8), stopErr: errors.New("stop rejected")}
	f := newFixture(t, counter)
	ctx := context.Background()
	failures := testutil.ToFloat64(metrics.HardwareErrors.WithLabelValues("stop"))

	require.NoError(t, f.tracker.Start(ctx))
	assert.True(t, f.tracker.HandleStepEvent(motion.StepEvent{}))
	res, err := f.tracker.Stop(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Steps)
	assert.False(t, f.tracker.State().IsTracking)
	assert.Equal(t, failures+1, testutil.ToFloat64(metrics.HardwareErrors.WithLabelValues("stop")))

	// A second stop while idle does not count again.
	_, err = f.tracker.Stop(ctx)
	require.NoError(t, err)
	assert.Equal(t, failures+1, testutil.ToFloat64(metrics.HardwareErrors.WithLabelValues("stop")))
}

func TestHardwareEventsThroughRun(t *testing.T) {
	counter := &hardwareCounter{events: make(chan motion.StepEvent, 8)}
	f := newFixture(t, counter)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, f.tracker.Start(ctx))
	src := motion.NewChannelSource(1)
	done := make(chan error, 1)
	go func() { done <- f.tracker.Run(ctx, src) }()

	for i := 0; i < 3; i++ {
		counter.events <- motion.StepEvent{}
	}
	require.Eventually(t, func() bool { return f.tracker.State().Steps == 3 }, 2*time.Second, 10*time.Millisecond)

	src.Close()
	require.NoError(t, <-done)
}

type failingMeasurements struct {
	storage.MeasurementStore
}

func (failingMeasurements) Add(ctx context.Context, m storage.Measurement) error {
	return fmt.Errorf("disk full")
}

func TestSaveFailureKeepsResult(t *testing.T) {
	f := newFixture(t, nil)
	f.tracker.measurements = failingMeasurements{}
	ctx := context.Background()

	require.NoError(t, f.tracker.Start(ctx))
	f.feed(walk(5))
	res, err := f.tracker.Stop(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save measurement")
	assert.Equal(t, 5, res.Steps)
	assert.Nil(t, res.Measurement)
}
