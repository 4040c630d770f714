package live

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/goodtune/puttstep/internal/calibration"
	"github.com/goodtune/puttstep/internal/storage"
	"github.com/goodtune/puttstep/internal/tracker"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Controller is the tracking surface driven by HTTP and websocket clients.
type Controller interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) (tracker.Result, error)
	Reset()
	Calibrate(ctx context.Context, knownDistanceMeters float64) (float64, error)
	CalibrateTrial(ctx context.Context, knownDistanceMeters float64, steps int) (float64, error)
	SaveSettings(ctx context.Context, patch storage.SettingsPatch) (storage.Settings, error)
	State() tracker.LiveState
}

// Config holds the live server configuration.
type Config struct {
	ListenAddr string
	SubjectID  string
}

// Server serves the live websocket and the JSON API.
type Server struct {
	config       Config
	hub          *Hub
	tracker      Controller
	calibration  *calibration.Manager
	measurements storage.MeasurementStore
	router       *mux.Router
	server       *http.Server
	listener     net.Listener
	upgrader     websocket.Upgrader
	logger       zerolog.Logger
}

// NewServer creates the live server.
func NewServer(cfg Config, hub *Hub, ctl Controller, manager *calibration.Manager, measurements storage.MeasurementStore, logger zerolog.Logger) *Server {
	if cfg.SubjectID == "" {
		cfg.SubjectID = storage.DefaultSubjectID
	}
	s := &Server{
		config:       cfg,
		hub:          hub,
		tracker:      ctl,
		calibration:  manager,
		measurements: measurements,
		router:       mux.NewRouter(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger.With().Str("component", "live").Logger(),
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:        cfg.ListenAddr,
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(LoggingMiddleware(s.logger))

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/ws", s.handleWebsocket).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/state", s.handleState).Methods("GET")
	api.HandleFunc("/tracking/start", s.handleStart).Methods("POST")
	api.HandleFunc("/tracking/stop", s.handleStop).Methods("POST")
	api.HandleFunc("/tracking/reset", s.handleReset).Methods("POST")
	api.HandleFunc("/calibrate", s.handleCalibrate).Methods("POST")
	api.HandleFunc("/calibrations", s.handleCalibrations).Methods("GET")
	api.HandleFunc("/stride", s.handleStride).Methods("GET")
	api.HandleFunc("/settings", s.handleGetSettings).Methods("GET")
	api.HandleFunc("/settings", s.handlePatchSettings).Methods("PATCH", "PUT")
	api.HandleFunc("/measurements", s.handleMeasurements).Methods("GET")
	api.HandleFunc("/measurements/{id}", s.handleMeasurement).Methods("GET")
	api.HandleFunc("/measurements/{id}", s.handleDeleteMeasurement).Methods("DELETE")
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetListener sets a pre-created listener (e.g. from systemd socket activation).
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start serves in the background.
func (s *Server) Start() error {
	ln := s.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", s.config.ListenAddr)
		if err != nil {
			return fmt.Errorf("live server listen: %w", err)
		}
		s.listener = ln
	}

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Starting live server")
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Live server error")
		}
	}()
	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping live server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("live server shutdown: %w", err)
	}
	return nil
}
