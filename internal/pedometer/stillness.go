package pedometer

import "github.com/goodtune/puttstep/internal/motion"

// StillnessClassifier decides whether the device is at rest from the
// variance of the most recent filtered samples.
type StillnessClassifier struct {
	threshold float64
	window    []motion.Vector
	next      int
	full      bool
	still     bool
}

// NewStillnessClassifier creates a classifier over size samples.
func NewStillnessClassifier(size int, threshold float64) *StillnessClassifier {
	if size < 1 {
		size = 1
	}
	return &StillnessClassifier{
		threshold: threshold,
		window:    make([]motion.Vector, 0, size),
		still:     true,
	}
}

// Observe appends v, evicting the oldest sample once the window is full,
// and returns the classification. Until the window fills up the previous
// classification is returned unchanged.
func (c *StillnessClassifier) Observe(v motion.Vector) bool {
	size := cap(c.window)
	if len(c.window) < size {
		c.window = append(c.window, v)
	} else {
		c.window[c.next] = v
	}
	c.next = (c.next + 1) % size
	if len(c.window) == size {
		c.full = true
	}
	if !c.full {
		return c.still
	}

	c.still = c.TotalVariance() < c.threshold
	return c.still
}

// TotalVariance sums the population variance of each axis over the
// window contents.
func (c *StillnessClassifier) TotalVariance() float64 {
	n := float64(len(c.window))
	if n == 0 {
		return 0
	}

	var sx, sy, sz, sxx, syy, szz float64
	for _, v := range c.window {
		sx += v.X
		sy += v.Y
		sz += v.Z
		sxx += v.X * v.X
		syy += v.Y * v.Y
		szz += v.Z * v.Z
	}

	variance := func(sum, sumSq float64) float64 {
		return (sumSq - sum*sum/n) / n
	}
	return variance(sx, sxx) + variance(sy, syy) + variance(sz, szz)
}

// Still returns the last classification.
func (c *StillnessClassifier) Still() bool {
	return c.still
}

// Len returns the number of buffered samples.
func (c *StillnessClassifier) Len() int {
	return len(c.window)
}

// Reset empties the window and restores the initial still classification.
func (c *StillnessClassifier) Reset() {
	c.window = c.window[:0]
	c.next = 0
	c.full = false
	c.still = true
}
