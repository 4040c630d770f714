package live

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/goodtune/puttstep/internal/calibration"
	"github.com/goodtune/puttstep/internal/motion"
	"github.com/goodtune/puttstep/internal/storage"
	"github.com/gorilla/mux"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "ok",
		"live_clients": s.hub.Clients(),
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tracker.State())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.tracker.Start(r.Context()); err != nil {
		if errors.Is(err, motion.ErrPermissionDenied) {
			writeError(w, http.StatusForbidden, err.Error())
			return
		}
		s.logger.Error().Err(err).Msg("Failed to start tracking")
		writeError(w, http.StatusInternalServerError, "Failed to start tracking")
		return
	}
	writeJSON(w, http.StatusOK, s.tracker.State())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	res, err := s.tracker.Stop(r.Context())
	if err != nil {
		// The session result is valid even when saving it failed.
		s.logger.Warn().Err(err).Msg("Tracking stopped with error")
	}
	s.hub.Broadcast(Message{Type: TypeResult, Result: &res})
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.tracker.Reset()
	writeJSON(w, http.StatusOK, s.tracker.State())
}

func (s *Server) handleCalibrate(w http.ResponseWriter, r *http.Request) {
	var req CalibrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var (
		stride float64
		err    error
	)
	if req.Steps != nil {
		stride, err = s.tracker.CalibrateTrial(r.Context(), req.KnownDistanceMeters, *req.Steps)
	} else {
		stride, err = s.tracker.Calibrate(r.Context(), req.KnownDistanceMeters)
	}
	if err != nil {
		if errors.Is(err, calibration.ErrInvalidTrial) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to save calibration")
		return
	}
	s.hub.Broadcast(Message{Type: TypeCalibration, Stride: stride})
	writeJSON(w, http.StatusOK, CalibrateResponse{StrideLength: stride})
}

func (s *Server) handleCalibrations(w http.ResponseWriter, r *http.Request) {
	history, err := s.calibration.History(r.Context(), s.config.SubjectID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load calibration history")
		return
	}
	if history == nil {
		history = []storage.CalibrationSession{}
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleStride(w http.ResponseWriter, r *http.Request) {
	stride, err := s.calibration.Stride(r.Context(), s.config.SubjectID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load stride")
		return
	}
	writeJSON(w, http.StatusOK, stride)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.calibration.Settings(r.Context(), s.config.SubjectID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load settings")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handlePatchSettings(w http.ResponseWriter, r *http.Request) {
	var patch storage.SettingsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	saved, err := s.tracker.SaveSettings(r.Context(), patch)
	if err != nil {
		if errors.Is(err, calibration.ErrInvalidSettings) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to save settings")
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleMeasurements(w http.ResponseWriter, r *http.Request) {
	filter := storage.MeasurementFilter{
		SubjectID: s.config.SubjectID,
		Type:      r.URL.Query().Get("type"),
	}

	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"start", &filter.StartTime}, {"end", &filter.EndTime}} {
		v := r.URL.Query().Get(p.name)
		if v == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid "+p.name+" time, expected RFC3339")
			return
		}
		*p.dst = &ts
	}

	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		filter.Limit = limit
	}

	list, err := s.measurements.Query(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to query measurements")
		return
	}
	if list == nil {
		list = []storage.Measurement{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleMeasurement(w http.ResponseWriter, r *http.Request) {
	m, err := s.measurements.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Measurement not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load measurement")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleDeleteMeasurement(w http.ResponseWriter, r *http.Request) {
	if err := s.measurements.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Measurement not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete measurement")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
