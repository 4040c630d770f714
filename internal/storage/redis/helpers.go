package redis

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/goodtune/puttstep/internal/storage"
)

// parseSettings converts a Redis hash to Settings
func parseSettings(data map[string]string) (*storage.Settings, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	height, err := strconv.ParseFloat(data["height_cm"], 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse height_cm: %w", err)
	}

	useCalibrated, err := strconv.ParseBool(data["use_calibrated"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse use_calibrated: %w", err)
	}

	useHardware, err := strconv.ParseBool(data["use_hardware_sensor"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse use_hardware_sensor: %w", err)
	}

	sensitivity, err := strconv.Atoi(data["sensitivity"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse sensitivity: %w", err)
	}

	// hashes written before the field existed read as unset
	sensitivitySet := data["sensitivity_set"] == "true"

	updatedAt, err := time.Parse(time.RFC3339Nano, data["updated_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return &storage.Settings{
		SubjectID:         data["subject_id"],
		HeightCm:          height,
		UseCalibrated:     useCalibrated,
		UseHardwareSensor: useHardware,
		Sensitivity:       sensitivity,
		SensitivitySet:    sensitivitySet,
		PreferredUnit:     data["preferred_unit"],
		UpdatedAt:         updatedAt,
	}, nil
}

// settingsFields flattens Settings into HSET arguments
func settingsFields(s storage.Settings) []any {
	return []any{
		"subject_id", s.SubjectID,
		"height_cm", strconv.FormatFloat(s.HeightCm, 'f', -1, 64),
		"use_calibrated", strconv.FormatBool(s.UseCalibrated),
		"use_hardware_sensor", strconv.FormatBool(s.UseHardwareSensor),
		"sensitivity", strconv.Itoa(s.Sensitivity),
		"sensitivity_set", strconv.FormatBool(s.SensitivitySet),
		"preferred_unit", s.PreferredUnit,
		"updated_at", s.UpdatedAt.Format(time.RFC3339Nano),
	}
}

// parseStride converts a Redis hash to StrideCalibration
func parseStride(data map[string]string) (*storage.StrideCalibration, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	length, err := strconv.ParseFloat(data["stride_length_meters"], 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse stride_length_meters: %w", err)
	}

	date, err := time.Parse(time.RFC3339Nano, data["calibration_date"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse calibration_date: %w", err)
	}

	return &storage.StrideCalibration{
		SubjectID:          data["subject_id"],
		StrideLengthMeters: length,
		CalibrationDate:    date,
		PreferredUnit:      data["preferred_unit"],
	}, nil
}

// strideFields flattens StrideCalibration into HSET arguments
func strideFields(s storage.StrideCalibration) []any {
	return []any{
		"subject_id", s.SubjectID,
		"stride_length_meters", strconv.FormatFloat(s.StrideLengthMeters, 'f', -1, 64),
		"calibration_date", s.CalibrationDate.Format(time.RFC3339Nano),
		"preferred_unit", s.PreferredUnit,
	}
}

// parseMeasurement decodes the JSON document stored in a measurement hash
func parseMeasurement(data map[string]string) (*storage.Measurement, error) {
	raw, ok := data["data"]
	if !ok {
		return nil, storage.ErrNotFound
	}
	var m storage.Measurement
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("failed to parse measurement: %w", err)
	}
	return &m, nil
}

// scoreOf is the sorted-set score for a timestamp. Milliseconds keep the
// score within float64's exact integer range.
func scoreOf(t time.Time) float64 {
	return float64(t.UnixMilli())
}
