package pedometer

import (
	"context"
	"time"

	"github.com/goodtune/puttstep/internal/clock"
	"github.com/goodtune/puttstep/internal/motion"
	"github.com/rs/zerolog"
)

// Detector turns a stream of accelerometer readings, or hardware step
// counter events, into a step count for one tracking session at a time.
//
// A Detector is a single-owner reducer and is not safe for concurrent
// use; callers serialise Process, HandleStepEvent and the control calls.
type Detector struct {
	opts      Options
	filter    *LowPassFilter
	stillness *StillnessClassifier
	counter   motion.StepCounter
	clock     clock.Clock
	logger    zerolog.Logger

	state    State
	mode     Mode
	steps    int
	lastStep time.Time
	stepped  bool
	last     motion.Vector

	probed      bool
	hwAvailable bool
	stopErr     error
}

// Option configures optional Detector dependencies.
type Option func(*Detector)

// WithClock sets the time source used for readings without a timestamp.
func WithClock(c clock.Clock) Option {
	return func(d *Detector) { d.clock = c }
}

// New creates an idle Detector. counter may be nil when the platform has
// no hardware step counter.
func New(opts Options, counter motion.StepCounter, logger zerolog.Logger, options ...Option) *Detector {
	d := &Detector{
		counter: counter,
		clock:   clock.Real{},
		logger:  logger.With().Str("component", "detector").Logger(),
		state:   Idle{},
		mode:    ModeAccelerometer,
	}
	for _, o := range options {
		o(d)
	}
	d.configure(opts)
	return d
}

func (d *Detector) configure(opts Options) {
	d.opts = opts.withDefaults()
	d.filter = NewLowPassFilter(d.opts.SmoothingFactor)
	d.stillness = NewStillnessClassifier(d.opts.StillnessWindowSize, d.opts.StillnessThreshold)
}

// SetOptions replaces the detector tuning. The filter and stillness window
// are rebuilt, so a running session starts a fresh window.
func (d *Detector) SetOptions(opts Options) {
	d.configure(opts)
	if armed, ok := d.state.(Armed); ok {
		armed.Still = d.stillness.Still()
		d.state = armed
	}
}

// Options returns the effective tuning.
func (d *Detector) Options() Options {
	return d.opts
}

// HardwareAvailable reports whether a hardware step counter was found.
// The counter is probed once and the answer cached.
func (d *Detector) HardwareAvailable(ctx context.Context) bool {
	if d.probed {
		return d.hwAvailable
	}
	d.probed = true
	if d.counter == nil {
		return false
	}

	ok, err := d.counter.Available(ctx)
	if err != nil {
		d.logger.Warn().Err(err).Msg("Hardware step counter availability check failed")
		return false
	}
	d.hwAvailable = ok
	return ok
}

// Start arms the detector for a new session: the count, filter and
// stillness window are reset. When the hardware counter is enabled and
// available it is started; if that fails the session falls back to the
// accelerometer. Start returns the mode the session runs in.
func (d *Detector) Start(ctx context.Context) Mode {
	d.steps = 0
	d.stepped = false
	d.lastStep = time.Time{}
	d.last = motion.Vector{}
	d.filter.Reset()
	d.stillness.Reset()
	d.mode = ModeAccelerometer
	d.stopErr = nil

	if d.opts.UseHardwareSensor && d.HardwareAvailable(ctx) {
		d.drainEvents()
		if err := d.counter.Start(ctx); err != nil {
			d.logger.Warn().Err(err).Msg("Hardware step counter failed to start, using accelerometer")
		} else {
			d.mode = ModeHardware
		}
	}

	d.state = Armed{Still: d.stillness.Still()}
	d.logger.Debug().Str("mode", string(d.mode)).Msg("Tracking started")
	return d.mode
}

// drainEvents discards hardware events queued before this session.
func (d *Detector) drainEvents() {
	events := d.counter.Events()
	if events == nil {
		return
	}
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// Stop disarms the detector and returns the session's final count. The
// count is kept until the next Start or Reset. A hardware stop failure is
// logged; the detector is idle either way and ignores further events.
func (d *Detector) Stop(ctx context.Context) int {
	if _, ok := d.state.(Armed); !ok {
		return d.steps
	}
	d.state = Idle{}

	if d.mode == ModeHardware {
		if err := d.counter.Stop(ctx); err != nil {
			d.stopErr = err
			d.logger.Warn().Err(err).Msg("Hardware step counter failed to stop")
		}
	}

	d.logger.Debug().Int("steps", d.steps).Msg("Tracking stopped")
	return d.steps
}

// HardwareStopError returns the hardware counter failure from the last
// Stop, or nil.
func (d *Detector) HardwareStopError() error {
	return d.stopErr
}

// Reset zeroes the count without changing the tracking state.
func (d *Detector) Reset() {
	d.steps = 0
}

// Process runs one reading through the filter, the stillness classifier
// and the step gate.
func (d *Detector) Process(r motion.Reading) Outcome {
	if _, ok := d.state.(Armed); !ok {
		return OutcomeIdle
	}
	if d.mode == ModeHardware {
		return OutcomeBypassed
	}

	sample, ok := r.Sample()
	if !ok {
		return OutcomeDropped
	}
	d.last = sample.Vector

	filtered := d.filter.Apply(sample.Vector)
	still := d.stillness.Observe(filtered)
	d.state = Armed{Still: still}
	if still {
		return OutcomeStill
	}

	magnitude := filtered.Magnitude()
	if magnitude <= 0 || magnitude <= d.opts.Threshold {
		return OutcomeBelowThreshold
	}

	now := sample.Time
	if now.IsZero() {
		now = d.clock.Now()
	}
	if d.stepped && now.Sub(d.lastStep) <= d.opts.TimeInterval {
		return OutcomeRefractory
	}

	d.steps++
	d.lastStep = now
	d.stepped = true
	return OutcomeStep
}

// HandleStepEvent applies a hardware step counter event. It reports false
// when the event was ignored because no hardware session is running.
func (d *Detector) HandleStepEvent(ev motion.StepEvent) bool {
	if _, ok := d.state.(Armed); !ok || d.mode != ModeHardware {
		return false
	}

	if ev.Count != nil {
		if *ev.Count < 0 {
			return false
		}
		d.steps = *ev.Count
	} else {
		d.steps++
	}
	d.lastStep = d.clock.Now()
	d.stepped = true
	return true
}

// State returns the current tracking state.
func (d *Detector) State() State {
	return d.state
}

// Tracking reports whether a session is running.
func (d *Detector) Tracking() bool {
	_, ok := d.state.(Armed)
	return ok
}

// Still reports the latest stillness classification. An idle detector
// reports the classification of its last session.
func (d *Detector) Still() bool {
	if armed, ok := d.state.(Armed); ok {
		return armed.Still
	}
	return d.stillness.Still()
}

// Steps returns the current count.
func (d *Detector) Steps() int {
	return d.steps
}

// Mode returns the step source of the current or last session.
func (d *Detector) Mode() Mode {
	return d.mode
}

// LastAcceleration returns the most recent raw sample.
func (d *Detector) LastAcceleration() motion.Vector {
	return d.last
}

// Events exposes the hardware counter's event stream, or nil.
func (d *Detector) Events() <-chan motion.StepEvent {
	if d.counter == nil {
		return nil
	}
	return d.counter.Events()
}
