package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Detector metrics
	SamplesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "puttstep_samples_total",
			Help: "Accelerometer readings processed, by outcome",
		},
		[]string{"outcome"},
	)

	StepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "puttstep_steps_total",
			Help: "Steps counted, by step source",
		},
		[]string{"source"},
	)

	DeviceStill = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "puttstep_device_still",
			Help: "1 when the device is classified as stationary",
		},
	)

	// Session metrics
	TrackingActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "puttstep_tracking_active",
			Help: "1 while a tracking session is running",
		},
	)

	TrackingSessions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "puttstep_tracking_sessions_total",
			Help: "Tracking sessions started, by step source",
		},
		[]string{"mode"},
	)

	HardwareErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "puttstep_hardware_counter_errors_total",
			Help: "Hardware step counter failures, by operation",
		},
		[]string{"operation"},
	)

	// Calibration metrics
	CalibrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "puttstep_calibrations_total",
			Help: "Calibration trials, by result",
		},
		[]string{"result"},
	)

	StrideLength = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "puttstep_stride_length_meters",
			Help: "Stride length used by the last distance estimate",
		},
	)

	// Storage metrics
	StorageErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "puttstep_storage_errors_total",
			Help: "Failed storage operations",
		},
		[]string{"operation"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "puttstep_cache_hits_total",
			Help: "Record cache hits",
		},
		[]string{"cache"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "puttstep_cache_misses_total",
			Help: "Record cache misses",
		},
		[]string{"cache"},
	)

	// Transport metrics
	MQTTMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "puttstep_mqtt_messages_total",
			Help: "MQTT messages received, by topic kind and result",
		},
		[]string{"kind", "result"},
	)

	LiveClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "puttstep_live_clients",
			Help: "Connected live-state websocket clients",
		},
	)

	LiveFanoutDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "puttstep_live_fanout_dropped_total",
			Help: "Live messages not published to redis because the queue was full",
		},
	)

	LiveFanoutErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "puttstep_live_fanout_errors_total",
			Help: "Failed redis publishes of live messages",
		},
	)
)

func init() {
	prometheus.MustRegister(
		SamplesTotal,
		StepsTotal,
		DeviceStill,
		TrackingActive,
		TrackingSessions,
		HardwareErrors,
		CalibrationsTotal,
		StrideLength,
		StorageErrors,
		CacheHits,
		CacheMisses,
		MQTTMessages,
		LiveClients,
		LiveFanoutDropped,
		LiveFanoutErrors,
	)
}

// BoolGauge converts a flag into a gauge value.
func BoolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Handler returns the server's HTTP handler
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
