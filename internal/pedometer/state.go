package pedometer

// State is the detector's tracking state: either Idle or Armed.
type State interface {
	isState()
}

// Idle means no tracking session is running. Samples are ignored.
type Idle struct{}

// Armed means a session is running. Still carries the latest stillness
// classification; no step is accepted while it is true.
type Armed struct {
	Still bool
}

func (Idle) isState()  {}
func (Armed) isState() {}

// Mode names the step source used by an armed session.
type Mode string

const (
	ModeAccelerometer Mode = "accelerometer"
	ModeHardware      Mode = "hardware"
)

// Outcome reports what Process did with a reading.
type Outcome string

const (
	OutcomeIdle           Outcome = "idle"            // detector not armed
	OutcomeBypassed       Outcome = "bypassed"        // hardware counter owns the session
	OutcomeDropped        Outcome = "dropped"         // an axis was missing
	OutcomeStill          Outcome = "still"           // device classified at rest
	OutcomeBelowThreshold Outcome = "below_threshold" // magnitude too small
	OutcomeRefractory     Outcome = "refractory"      // too soon after the previous step
	OutcomeStep           Outcome = "step"
)
