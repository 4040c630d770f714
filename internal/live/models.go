package live

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/goodtune/puttstep/internal/storage"
)

// CalibrateRequest carries a calibration trial over a known distance.
// Without Steps the current session count is used.
type CalibrateRequest struct {
	KnownDistanceMeters float64 `json:"known_distance_meters"`
	Steps               *int    `json:"steps,omitempty"`
}

// CalibrateResponse reports the new stride length.
type CalibrateResponse struct {
	StrideLength float64 `json:"stride_length"`
}

// Command is an inbound websocket message.
type Command struct {
	Action              string                 `json:"action"` // start, stop, reset, calibrate, settings
	KnownDistanceMeters float64                `json:"known_distance_meters,omitempty"`
	Settings            *storage.SettingsPatch `json:"settings,omitempty"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		http.Error(w, `{"error":"Internal Server Error","message":"Failed to encode response"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(buf.Bytes())
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}
