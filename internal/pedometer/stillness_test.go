package pedometer

import (
	"math"
	"testing"

	"github.com/goodtune/puttstep/internal/motion"
)

func TestLowPassFilter(t *testing.T) {
	f := NewLowPassFilter(0.2)

	got := f.Apply(motion.Vector{X: 10, Y: -5, Z: 1})
	want := motion.Vector{X: 10, Y: -5, Z: 1}
	if got != want {
		t.Fatalf("first apply should seed the state: got %+v, want %+v", got, want)
	}

	got = f.Apply(motion.Vector{})
	want = motion.Vector{X: 8, Y: -4, Z: 0.8}
	if math.Abs(got.X-want.X) > 1e-12 || math.Abs(got.Y-want.Y) > 1e-12 || math.Abs(got.Z-want.Z) > 1e-12 {
		t.Fatalf("second apply: got %+v, want %+v", got, want)
	}

	f.Reset()
	if f.State() != (motion.Vector{}) {
		t.Fatalf("expected zero state after reset, got %+v", f.State())
	}
	if got := f.Apply(motion.Vector{Z: 9.81}); got.Z != 9.81 {
		t.Fatalf("expected reset filter to reseed, got %+v", got)
	}
}

func TestLowPassFilterAlphaOnePassesThrough(t *testing.T) {
	f := NewLowPassFilter(1)
	in := motion.Vector{X: 1.5, Y: 2.5, Z: -9.8}
	if got := f.Apply(in); got != in {
		t.Fatalf("expected passthrough, got %+v", got)
	}
}

func TestStillnessClassifierFailOpen(t *testing.T) {
	c := NewStillnessClassifier(4, 0.15)

	for i := 0; i < 3; i++ {
		if !c.Observe(motion.Vector{Z: float64(i * 10)}) {
			t.Fatalf("sample %d: expected previous (still) classification before window fills", i)
		}
	}

	if c.Observe(motion.Vector{Z: 30}) {
		t.Fatalf("expected moving once the window fills with high variance")
	}

	// a partial refill after Reset keeps the initial answer again
	c.Reset()
	if !c.Observe(motion.Vector{Z: 100}) {
		t.Fatalf("expected still after reset")
	}
}

func TestStillnessClassifierVariance(t *testing.T) {
	c := NewStillnessClassifier(10, 0.15)
	for i := 0; i < 9; i++ {
		c.Observe(motion.Vector{})
	}
	c.Observe(motion.Vector{Z: 4})

	// (16 - 16/10) / 10
	if got := c.TotalVariance(); math.Abs(got-1.44) > 1e-12 {
		t.Fatalf("expected variance 1.44, got %v", got)
	}
	if c.Still() {
		t.Fatalf("expected moving")
	}
}

func TestStillnessClassifierEvictsOldest(t *testing.T) {
	c := NewStillnessClassifier(3, 0.15)
	c.Observe(motion.Vector{X: 100})
	c.Observe(motion.Vector{X: 1})
	c.Observe(motion.Vector{X: 1})
	if c.Still() {
		t.Fatalf("expected the outlier to keep the window moving")
	}

	if !c.Observe(motion.Vector{X: 1}) {
		t.Fatalf("expected still once the outlier is evicted")
	}
	if c.Len() != 3 {
		t.Fatalf("window grew past capacity: %d", c.Len())
	}
}

func TestStillnessSumsAxes(t *testing.T) {
	// each axis alone stays below the threshold, the sum does not
	c := NewStillnessClassifier(2, 0.15)
	c.Observe(motion.Vector{X: 0, Y: 0, Z: 0})
	still := c.Observe(motion.Vector{X: 0.6, Y: 0.6, Z: 0.6})

	// per axis (0.36 - 0.36/2)/2 = 0.09
	if still {
		t.Fatalf("expected moving with total variance %v", c.TotalVariance())
	}
}
