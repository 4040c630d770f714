// Package distance converts step counts into walked distance.
package distance

import "math"

const (
	// HeightStrideCoefficient is the average of the commonly cited male
	// (0.415) and female (0.413) stride-to-height ratios.
	HeightStrideCoefficient = 0.414

	// DefaultStrideLength is used when neither a calibration nor a height
	// is known, in meters.
	DefaultStrideLength = 0.7
)

// Policy selects how the stride length is resolved.
type Policy struct {
	UseCalibrated    bool
	CalibratedStride float64 // meters; ignored unless positive
	HeightCm         float64 // ignored unless positive
}

// StrideSource records which rule produced a stride length.
type StrideSource string

const (
	SourceCalibrated StrideSource = "calibrated"
	SourceHeight     StrideSource = "height"
	SourceDefault    StrideSource = "default"
)

// Result is a derived distance. It is never persisted on its own.
type Result struct {
	DistanceMeters   float64      `json:"distance_meters"`
	StrideLengthUsed float64      `json:"stride_length_used"`
	Source           StrideSource `json:"stride_source"`
}

// Feet returns the distance in feet.
func (r Result) Feet() float64 {
	return MetersToFeet(r.DistanceMeters)
}

// StrideFromHeight derives a stride length from a height in centimeters.
func StrideFromHeight(heightCm float64) float64 {
	if heightCm <= 0 || math.IsNaN(heightCm) {
		return DefaultStrideLength
	}
	return heightCm / 100 * HeightStrideCoefficient
}

// ResolveStride applies the policy: calibrated value first, then height,
// then the default.
func ResolveStride(p Policy) (float64, StrideSource) {
	if p.UseCalibrated && p.CalibratedStride > 0 {
		return p.CalibratedStride, SourceCalibrated
	}
	if p.HeightCm > 0 {
		return StrideFromHeight(p.HeightCm), SourceHeight
	}
	return DefaultStrideLength, SourceDefault
}

// Estimate converts steps into a distance. Zero or negative step counts
// give zero distance; the stride is still resolved for display.
func Estimate(steps int, p Policy) Result {
	stride, source := ResolveStride(p)
	r := Result{StrideLengthUsed: stride, Source: source}
	if steps > 0 {
		r.DistanceMeters = float64(steps) * stride
	}
	return r
}
