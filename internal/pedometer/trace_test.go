package pedometer

import (
	"time"

	"github.com/goodtune/puttstep/internal/motion"
)

// samplePeriod is a 50 Hz sensor.
const samplePeriod = 20 * time.Millisecond

// gravity is the resting reading of a phone lying flat.
const gravity = 9.81

// trace builds timestamped synthetic readings.
type trace struct {
	at       time.Time
	baseZ    float64
	readings []motion.Reading
}

func newTrace() *trace {
	return &trace{at: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
}

// newGravityTrace builds readings that include gravity on the z axis.
func newGravityTrace() *trace {
	tr := newTrace()
	tr.baseZ = gravity
	return tr
}

func (tr *trace) add(x, y, z float64) *trace {
	tr.readings = append(tr.readings, motion.NewReading(x, y, z, tr.at))
	tr.at = tr.at.Add(samplePeriod)
	return tr
}

// rest appends n readings of a motionless device.
func (tr *trace) rest(n int) *trace {
	for i := 0; i < n; i++ {
		tr.add(0, 0, tr.baseZ)
	}
	return tr
}

// spike appends a single-sample vertical jolt.
func (tr *trace) spike(z float64) *trace {
	return tr.add(0, 0, tr.baseZ+z)
}

// spikes appends count spikes separated by spacing, which must be a
// multiple of the sample period.
func (tr *trace) spikes(count int, spacing time.Duration) *trace {
	gap := int(spacing/samplePeriod) - 1
	for i := 0; i < count; i++ {
		tr.spike(20)
		tr.rest(gap)
	}
	return tr
}
