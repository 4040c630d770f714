package storage

import "time"

// Defaults applied to a subject seen for the first time.
const (
	DefaultSubjectID   = "default"
	DefaultHeightCm    = 170
	DefaultSensitivity = 5
	DefaultUnit        = "m"
)

// Measurement types.
const (
	MeasurementDistance    = "distance"
	MeasurementCalibration = "calibration"
)

// Settings holds the pedometer preferences for one subject.
type Settings struct {
	SubjectID         string    `json:"subject_id"`
	HeightCm          float64   `json:"height_cm"`
	UseCalibrated     bool      `json:"use_calibrated"`
	UseHardwareSensor bool      `json:"use_hardware_sensor"`
	Sensitivity       int       `json:"sensitivity"` // 1 (least) .. 10 (most)
	SensitivitySet    bool      `json:"sensitivity_set"`
	PreferredUnit     string    `json:"preferred_unit"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// DefaultSettings returns the settings used before a subject saves any.
func DefaultSettings(subjectID string) Settings {
	return Settings{
		SubjectID:         subjectID,
		HeightCm:          DefaultHeightCm,
		UseCalibrated:     false,
		UseHardwareSensor: true,
		Sensitivity:       DefaultSensitivity,
		PreferredUnit:     DefaultUnit,
	}
}

// SettingsPatch is a partial settings update. Nil fields are left alone.
type SettingsPatch struct {
	HeightCm          *float64 `json:"height_cm,omitempty"`
	UseCalibrated     *bool    `json:"use_calibrated,omitempty"`
	UseHardwareSensor *bool    `json:"use_hardware_sensor,omitempty"`
	Sensitivity       *int     `json:"sensitivity,omitempty"`
	PreferredUnit     *string  `json:"preferred_unit,omitempty"`
}

// Merge applies the patch over s.
func (s Settings) Merge(p SettingsPatch) Settings {
	if p.HeightCm != nil {
		s.HeightCm = *p.HeightCm
	}
	if p.UseCalibrated != nil {
		s.UseCalibrated = *p.UseCalibrated
	}
	if p.UseHardwareSensor != nil {
		s.UseHardwareSensor = *p.UseHardwareSensor
	}
	if p.Sensitivity != nil {
		s.Sensitivity = *p.Sensitivity
		s.SensitivitySet = true
	}
	if p.PreferredUnit != nil {
		s.PreferredUnit = *p.PreferredUnit
	}
	return s
}

// StrideCalibration is the live stride length for a subject. It is
// overwritten on every recalibration or manual edit.
type StrideCalibration struct {
	SubjectID          string    `json:"subject_id"`
	StrideLengthMeters float64   `json:"stride_length_meters"`
	CalibrationDate    time.Time `json:"calibration_date"`
	PreferredUnit      string    `json:"preferred_unit"`
}

// CalibrationSession is one calibration trial. Entries are never
// modified after they are written.
type CalibrationSession struct {
	KnownDistanceMeters    float64   `json:"known_distance_meters"`
	StepsTaken             int       `json:"steps_taken"`
	CalculatedStrideLength float64   `json:"calculated_stride_length"`
	Timestamp              time.Time `json:"timestamp"`
}

// Measurement is a completed tracking session.
type Measurement struct {
	ID             string    `json:"id"`
	SubjectID      string    `json:"subject_id"`
	Type           string    `json:"type"`
	Timestamp      time.Time `json:"timestamp"`
	Steps          int       `json:"steps"`
	DistanceMeters float64   `json:"distance_meters"`
	DistanceFeet   float64   `json:"distance_feet"`
	StrideLength   float64   `json:"stride_length"`
	StrideSource   string    `json:"stride_source,omitempty"`
}
