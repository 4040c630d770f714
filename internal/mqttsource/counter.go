package mqttsource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/goodtune/puttstep/internal/config"
	"github.com/goodtune/puttstep/internal/metrics"
	"github.com/goodtune/puttstep/internal/motion"
	"github.com/rs/zerolog"
)

// Control payloads published when a session starts and stops.
const (
	ControlStart = "start"
	ControlStop  = "stop"
)

// StepCounter is a hardware pedometer reachable over MQTT. The device
// listens on the control topic and reports on the step topic, either
// {"count": n} with its session total or an empty payload per step.
type StepCounter struct {
	cfg     config.MQTTConfig
	conn    connection
	events  chan motion.StepEvent
	active  atomic.Bool
	timeout time.Duration
	logger  zerolog.Logger
}

type stepPayload struct {
	Count *int `json:"count"`
}

// Available reports whether a counter is configured and the broker is
// reachable.
func (c *StepCounter) Available(ctx context.Context) (bool, error) {
	if !c.cfg.HardwareCounter {
		return false, nil
	}
	return c.conn != nil && c.conn.IsConnectionOpen(), nil
}

// Start tells the device to begin a session.
func (c *StepCounter) Start(ctx context.Context) error {
	if err := c.control(ctx, ControlStart); err != nil {
		return err
	}
	c.active.Store(true)
	return nil
}

// Stop tells the device to end the session. Events are ignored from here
// on even if the publish fails.
func (c *StepCounter) Stop(ctx context.Context) error {
	c.active.Store(false)
	return c.control(ctx, ControlStop)
}

// Events returns the step event stream.
func (c *StepCounter) Events() <-chan motion.StepEvent {
	return c.events
}

func (c *StepCounter) control(ctx context.Context, command string) error {
	if c.conn == nil {
		return fmt.Errorf("step counter %s: not connected", command)
	}
	token := c.conn.Publish(c.cfg.ControlTopic, byte(c.cfg.QoS), false, command)
	if err := waitToken(ctx, token, c.timeout); err != nil {
		return fmt.Errorf("step counter %s: %w", command, err)
	}
	c.logger.Debug().Str("command", command).Msg("Step counter control sent")
	return nil
}

func (c *StepCounter) handleStep(_ mqtt.Client, msg mqtt.Message) {
	if !c.active.Load() {
		metrics.MQTTMessages.WithLabelValues("step", "ignored").Inc()
		return
	}

	var ev motion.StepEvent
	if payload := bytes.TrimSpace(msg.Payload()); len(payload) > 0 {
		var p stepPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			metrics.MQTTMessages.WithLabelValues("step", "invalid").Inc()
			c.logger.Warn().Err(err).Str("topic", msg.Topic()).Msg("Invalid step payload")
			return
		}
		if p.Count != nil && *p.Count < 0 {
			metrics.MQTTMessages.WithLabelValues("step", "invalid").Inc()
			return
		}
		ev.Count = p.Count
	}

	select {
	case c.events <- ev:
		metrics.MQTTMessages.WithLabelValues("step", "accepted").Inc()
	default:
		metrics.MQTTMessages.WithLabelValues("step", "dropped").Inc()
		c.logger.Warn().Msg("Step event buffer full, dropping event")
	}
}
