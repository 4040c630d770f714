package pedometer

import "github.com/goodtune/puttstep/internal/motion"

// LowPassFilter is a per-axis exponential moving average. The first
// sample after construction or Reset seeds the state directly, so a
// constant gravity component does not ramp up from zero.
type LowPassFilter struct {
	alpha  float64
	state  motion.Vector
	primed bool
}

// NewLowPassFilter returns a filter with smoothing factor alpha.
func NewLowPassFilter(alpha float64) *LowPassFilter {
	return &LowPassFilter{alpha: alpha}
}

// Apply folds raw into the filter state and returns the new state.
func (f *LowPassFilter) Apply(raw motion.Vector) motion.Vector {
	if !f.primed {
		f.state = raw
		f.primed = true
		return f.state
	}

	a := f.alpha
	f.state = motion.Vector{
		X: a*raw.X + (1-a)*f.state.X,
		Y: a*raw.Y + (1-a)*f.state.Y,
		Z: a*raw.Z + (1-a)*f.state.Z,
	}
	return f.state
}

// State returns the current filtered value.
func (f *LowPassFilter) State() motion.Vector {
	return f.state
}

// Reset zeroes the filter state; the next sample seeds it again.
func (f *LowPassFilter) Reset() {
	f.state = motion.Vector{}
	f.primed = false
}
