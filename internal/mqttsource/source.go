// Package mqttsource reads accelerometer samples and hardware step counter
// events from an MQTT broker.
package mqttsource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/goodtune/puttstep/internal/config"
	"github.com/goodtune/puttstep/internal/metrics"
	"github.com/goodtune/puttstep/internal/motion"
	"github.com/rs/zerolog"
)

// connection is the part of mqtt.Client used after connecting.
type connection interface {
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Source is a motion.Source fed by the motion topic. It also exposes the
// step topic as a motion.StepCounter.
type Source struct {
	cfg      config.MQTTConfig
	client   mqtt.Client
	conn     connection
	readings *motion.ChannelSource
	counter  *StepCounter
	timeout  time.Duration
	logger   zerolog.Logger
}

func newSource(cfg config.MQTTConfig, conn connection, logger zerolog.Logger) *Source {
	logger = logger.With().Str("component", "mqtt").Logger()
	timeout := config.ParseDuration(cfg.ConnectTimeout, 10*time.Second)
	s := &Source{
		cfg:      cfg,
		conn:     conn,
		readings: motion.NewChannelSource(cfg.BufferSize),
		timeout:  timeout,
		logger:   logger,
	}
	s.counter = &StepCounter{
		cfg:     cfg,
		conn:    conn,
		events:  make(chan motion.StepEvent, cfg.BufferSize+1),
		timeout: timeout,
		logger:  logger,
	}
	return s
}

// Connect dials the broker and subscribes to the motion topic, and to the
// step topic when a hardware counter is configured.
func Connect(ctx context.Context, cfg config.MQTTConfig, logger zerolog.Logger) (*Source, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(config.ParseDuration(cfg.ConnectTimeout, 10*time.Second))
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	s := newSource(cfg, client, logger)
	s.client = client

	token := client.Connect()
	if err := s.wait(ctx, token); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, err)
	}

	subs := map[string]mqtt.MessageHandler{cfg.MotionTopic: s.handleMotion}
	if cfg.HardwareCounter {
		subs[cfg.StepTopic] = s.counter.handleStep
	}
	for topic, handler := range subs {
		if err := s.wait(ctx, client.Subscribe(topic, byte(cfg.QoS), handler)); err != nil {
			client.Disconnect(250)
			return nil, fmt.Errorf("mqtt subscribe %s: %w", topic, err)
		}
		s.logger.Info().Str("topic", topic).Msg("Subscribed")
	}

	s.logger.Info().Str("broker", cfg.Broker).Msg("Connected to MQTT broker")
	return s, nil
}

func (s *Source) wait(ctx context.Context, token mqtt.Token) error {
	return waitToken(ctx, token, s.timeout)
}

func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return fmt.Errorf("timed out after %s", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next returns the next reading from the motion topic.
func (s *Source) Next(ctx context.Context) (motion.Reading, error) {
	return s.readings.Next(ctx)
}

// RequestPermission succeeds while the broker connection is open.
func (s *Source) RequestPermission(ctx context.Context) error {
	if s.conn == nil || !s.conn.IsConnectionOpen() {
		return fmt.Errorf("%w: mqtt broker not connected", motion.ErrPermissionDenied)
	}
	return nil
}

// Counter returns the hardware step counter carried on the step topic.
func (s *Source) Counter() *StepCounter {
	return s.counter
}

// Close disconnects and ends the reading stream.
func (s *Source) Close() {
	if s.client != nil {
		s.client.Disconnect(250)
	}
	s.readings.Close()
}

// handleMotion accepts a single reading or an array of readings.
func (s *Source) handleMotion(_ mqtt.Client, msg mqtt.Message) {
	payload := bytes.TrimSpace(msg.Payload())

	var batch []motion.Reading
	if len(payload) > 0 && payload[0] == '[' {
		if err := json.Unmarshal(payload, &batch); err != nil {
			s.reject("motion", msg, err)
			return
		}
	} else {
		var r motion.Reading
		if err := json.Unmarshal(payload, &r); err != nil {
			s.reject("motion", msg, err)
			return
		}
		batch = append(batch, r)
	}

	for _, r := range batch {
		if !s.readings.Push(r) {
			metrics.MQTTMessages.WithLabelValues("motion", "dropped").Inc()
			s.logger.Debug().Msg("Motion buffer full, dropping reading")
			continue
		}
		metrics.MQTTMessages.WithLabelValues("motion", "accepted").Inc()
	}
}

func (s *Source) reject(kind string, msg mqtt.Message, err error) {
	metrics.MQTTMessages.WithLabelValues(kind, "invalid").Inc()
	s.logger.Warn().Err(err).Str("topic", msg.Topic()).Msg("Invalid MQTT payload")
}
