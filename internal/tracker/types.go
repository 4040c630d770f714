package tracker

import (
	"time"

	"github.com/goodtune/puttstep/internal/distance"
	"github.com/goodtune/puttstep/internal/motion"
	"github.com/goodtune/puttstep/internal/storage"
)

// LiveState is the snapshot pushed to observers after every processed
// reading and control operation.
type LiveState struct {
	SubjectID               string        `json:"subject_id"`
	Steps                   int           `json:"steps"`
	DistanceMeters          float64       `json:"distance"`
	StrideLength            float64       `json:"step_length"`
	StrideSource            string        `json:"stride_source"`
	IsTracking              bool          `json:"is_tracking"`
	IsStill                 bool          `json:"is_still"`
	HardwareSensorAvailable bool          `json:"hardware_sensor_available"`
	HardwareSensorActive    bool          `json:"hardware_sensor_active"`
	LastAcceleration        motion.Vector `json:"last_acceleration"`
	UpdatedAt               time.Time     `json:"updated_at"`
}

// Observer receives live state updates. Observers run on the goroutine
// that caused the update and must not block.
type Observer func(LiveState)

// Result is the outcome of a finished session.
type Result struct {
	Steps       int                  `json:"steps"`
	Distance    distance.Result      `json:"distance"`
	Measurement *storage.Measurement `json:"measurement,omitempty"`
}
