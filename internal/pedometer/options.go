package pedometer

import (
	"fmt"
	"time"
)

// Defaults used when an Options field is left at its zero value.
const (
	DefaultThreshold           = 2.0
	DefaultTimeInterval        = 300 * time.Millisecond
	DefaultSmoothingFactor     = 0.2
	DefaultStillnessThreshold  = 0.15
	DefaultStillnessWindowSize = 10
	DefaultSensitivity         = 5
)

// Options tunes the step detector. Zero numeric fields fall back to the
// package defaults; UseHardwareSensor has no zero-value default, so
// callers should start from DefaultOptions.
type Options struct {
	Threshold           float64       // minimum filtered magnitude for a step, m/s²
	TimeInterval        time.Duration // refractory interval between two steps
	SmoothingFactor     float64       // low-pass alpha in (0,1]
	UseHardwareSensor   bool          // prefer the hardware step counter when present
	StillnessThreshold  float64       // summed axis variance below which the device is still
	StillnessWindowSize int           // samples in the stillness window
}

// DefaultOptions returns the detector defaults.
func DefaultOptions() Options {
	return Options{
		Threshold:           DefaultThreshold,
		TimeInterval:        DefaultTimeInterval,
		SmoothingFactor:     DefaultSmoothingFactor,
		UseHardwareSensor:   true,
		StillnessThreshold:  DefaultStillnessThreshold,
		StillnessWindowSize: DefaultStillnessWindowSize,
	}
}

// withDefaults fills zero fields.
func (o Options) withDefaults() Options {
	if o.Threshold == 0 {
		o.Threshold = DefaultThreshold
	}
	if o.TimeInterval == 0 {
		o.TimeInterval = DefaultTimeInterval
	}
	if o.SmoothingFactor == 0 {
		o.SmoothingFactor = DefaultSmoothingFactor
	}
	if o.StillnessThreshold == 0 {
		o.StillnessThreshold = DefaultStillnessThreshold
	}
	if o.StillnessWindowSize == 0 {
		o.StillnessWindowSize = DefaultStillnessWindowSize
	}
	return o
}

// Validate checks ranges after defaults are applied.
func (o Options) Validate() error {
	o = o.withDefaults()
	if o.Threshold < 0 {
		return fmt.Errorf("threshold must not be negative: %v", o.Threshold)
	}
	if o.TimeInterval < 0 {
		return fmt.Errorf("time interval must not be negative: %v", o.TimeInterval)
	}
	if o.SmoothingFactor <= 0 || o.SmoothingFactor > 1 {
		return fmt.Errorf("smoothing factor must be in (0,1]: %v", o.SmoothingFactor)
	}
	if o.StillnessThreshold < 0 {
		return fmt.Errorf("stillness threshold must not be negative: %v", o.StillnessThreshold)
	}
	if o.StillnessWindowSize < 1 {
		return fmt.Errorf("stillness window size must be at least 1: %d", o.StillnessWindowSize)
	}
	return nil
}

// SensitivityToThreshold maps the 1..10 sensitivity setting onto a
// magnitude threshold between 3.0 (least sensitive) and 1.0 (most).
// Out of range values are clamped.
func SensitivityToThreshold(sensitivity int) float64 {
	if sensitivity < 1 {
		sensitivity = 1
	}
	if sensitivity > 10 {
		sensitivity = 10
	}
	inverted := 11 - sensitivity
	return 1.0 + float64(inverted-1)/9.0*2.0
}
