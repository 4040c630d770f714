package motion

import "context"

// StepEvent is a notification from a hardware step counter. Count carries
// the sensor's absolute step total for the session when the platform
// reports one; a nil Count means a single step occurred.
type StepEvent struct {
	Count *int
}

// StepCounter is a hardware pedometer. When one is available and enabled
// the detector trusts its events instead of the accelerometer.
type StepCounter interface {
	Available(ctx context.Context) (bool, error)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Events() <-chan StepEvent
}
