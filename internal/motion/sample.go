package motion

import (
	"encoding/json"
	"math"
	"time"
)

// Vector is a three-axis acceleration in m/s².
type Vector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Magnitude returns the Euclidean norm of v.
func (v Vector) Magnitude() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Sample is a validated accelerometer reading with every axis present.
type Sample struct {
	Vector
	Time time.Time
}

// Reading is a raw accelerometer callback payload. Platforms report an
// axis they cannot measure as null, so each axis is optional. Time is
// zero when the producer did not stamp the reading.
type Reading struct {
	X    *float64
	Y    *float64
	Z    *float64
	Time time.Time
}

// NewReading builds a fully populated Reading.
func NewReading(x, y, z float64, at time.Time) Reading {
	return Reading{X: &x, Y: &y, Z: &z, Time: at}
}

// Sample converts r into a Sample. It reports false when any axis is
// missing or not a finite number.
func (r Reading) Sample() (Sample, bool) {
	if !finite(r.X) || !finite(r.Y) || !finite(r.Z) {
		return Sample{}, false
	}
	return Sample{
		Vector: Vector{X: *r.X, Y: *r.Y, Z: *r.Z},
		Time:   r.Time,
	}, true
}

func finite(v *float64) bool {
	return v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0)
}

// wireReading is the JSON form shared by replay files and the MQTT topic.
// t_ms is milliseconds since the Unix epoch; replay files may use any
// origin since only differences between readings matter.
type wireReading struct {
	X   *float64 `json:"x"`
	Y   *float64 `json:"y"`
	Z   *float64 `json:"z"`
	TMs *int64   `json:"t_ms,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (r Reading) MarshalJSON() ([]byte, error) {
	w := wireReading{X: r.X, Y: r.Y, Z: r.Z}
	if !r.Time.IsZero() {
		ms := r.Time.UnixMilli()
		w.TMs = &ms
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Reading) UnmarshalJSON(data []byte) error {
	var w wireReading
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	r.X, r.Y, r.Z = w.X, w.Y, w.Z
	r.Time = time.Time{}
	if w.TMs != nil {
		r.Time = time.UnixMilli(*w.TMs)
	}
	return nil
}
