package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goodtune/puttstep/internal/live"
	"github.com/goodtune/puttstep/internal/metrics"
	"github.com/goodtune/puttstep/internal/motion"
	"github.com/goodtune/puttstep/internal/mqttsource"
	"github.com/goodtune/puttstep/internal/storage/redis"
	"github.com/goodtune/puttstep/internal/systemd"
	"github.com/goodtune/puttstep/internal/tracker"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the tracking service",
	Long: `Run the tracking service: motion samples and hardware step events arrive
over MQTT, live state is served over a websocket and JSON API, and metrics
are exposed for Prometheus.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	cfg := a.cfg
	logger := a.logger
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Str("subject", cfg.Subject.ID).
		Msg("Starting puttstep")

	sdListeners, err := systemd.GetListeners()
	if err != nil {
		return fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Motion input and hardware step counter
	var (
		source  *mqttsource.Source
		counter motion.StepCounter
		opts    []tracker.Option
	)
	if cfg.MQTT.Enabled {
		source, err = mqttsource.Connect(ctx, cfg.MQTT, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to MQTT: %w", err)
		}
		defer source.Close()
		if cfg.MQTT.HardwareCounter {
			counter = source.Counter()
		}
		opts = append(opts, tracker.WithPermission(source))
	} else {
		logger.Warn().Msg("MQTT disabled, tracking only responds to API control")
	}

	tr := a.newTracker(counter, a.store.Measurements(), opts...)

	// Live state
	hubCtx, hubCancel := context.WithTimeout(ctx, 5*time.Second)
	defer hubCancel()
	var (
		hub    *live.Hub
		hubErr error
	)
	if cfg.Server.LiveFanout {
		client, err := redis.NewClient(cfg.Storage.Redis)
		if err != nil {
			return fmt.Errorf("failed to configure live fan-out: %w", err)
		}
		defer client.Close()
		hub, hubErr = live.NewHub(hubCtx, cfg.Subject.ID, client, logger)
	} else {
		hub, hubErr = live.NewHub(hubCtx, cfg.Subject.ID, nil, logger)
	}
	if hubErr != nil {
		return fmt.Errorf("failed to start live hub: %w", hubErr)
	}
	defer hub.Close()
	unsubscribe := tr.Subscribe(hub.PublishState)
	defer unsubscribe()

	liveServer := live.NewServer(live.Config{
		ListenAddr: fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.LivePort),
		SubjectID:  cfg.Subject.ID,
	}, hub, tr, a.manager, a.store.Measurements(), logger)
	if sdListeners.Live != nil {
		liveServer.SetListener(sdListeners.Live)
	}
	if err := liveServer.Start(); err != nil {
		return fmt.Errorf("failed to start live server: %w", err)
	}

	metricsServer := metrics.NewServer(fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.MetricsPort), logger)
	if sdListeners.Metrics != nil {
		metricsServer.SetListener(sdListeners.Metrics)
	}
	if err := metricsServer.Start(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	runErr := make(chan error, 1)
	if source != nil {
		go func() { runErr <- tr.Run(ctx, source) }()
	}

	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to notify systemd")
	}
	go systemd.RunWatchdog(ctx, logger)

	logger.Info().Msg("puttstep startup complete")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info().Msg("Shutdown signal received, gracefully stopping...")
	case err := <-runErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("Motion source failed")
		}
	}

	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to notify systemd")
	}

	// Finish an open session so its measurement is saved.
	if tr.State().IsTracking {
		if res, err := tr.Stop(context.Background()); err != nil {
			logger.Error().Err(err).Msg("Failed to save final session")
		} else {
			logger.Info().Int("steps", res.Steps).Msg("Final session stopped")
		}
	}
	cancel()

	if err := liveServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping live server")
	}
	if err := metricsServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping metrics server")
	}

	logger.Info().Msg("puttstep stopped")
	return nil
}
