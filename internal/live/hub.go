package live

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/goodtune/puttstep/internal/metrics"
	"github.com/goodtune/puttstep/internal/tracker"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	clientBuffer = 64

	// fanoutBuffer bounds the redis publish queue; Broadcast drops
	// rather than wait when it is full.
	fanoutBuffer   = 256
	publishTimeout = 2 * time.Second
)

// Message is the envelope sent to websocket clients.
type Message struct {
	Type   string             `json:"type"`
	Origin string             `json:"origin,omitempty"`
	State  *tracker.LiveState `json:"state,omitempty"`
	Result *tracker.Result    `json:"result,omitempty"`
	Stride float64            `json:"stride,omitempty"`
	Error  string             `json:"error,omitempty"`
}

// Message types.
const (
	TypeState       = "state"
	TypeResult      = "result"
	TypeCalibration = "calibration"
	TypeError       = "error"
)

// Client is one websocket connection's outbound queue.
type Client struct {
	send chan []byte
}

// Send returns the client's outbound queue.
func (c *Client) Send() <-chan []byte {
	return c.send
}

// Hub fans live state out to websocket clients. With a redis client the
// state is also published so hubs on other instances serving the same
// subject see it.
type Hub struct {
	subjectID string
	origin    string
	redis     *redis.Client
	pubsub    *redis.PubSub
	logger    zerolog.Logger

	outbound  chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu      sync.RWMutex
	clients map[*Client]struct{}
}

// NewHub creates a hub for subjectID. rdb may be nil.
func NewHub(ctx context.Context, subjectID string, rdb *redis.Client, logger zerolog.Logger) (*Hub, error) {
	h := &Hub{
		subjectID: subjectID,
		origin:    uuid.NewString(),
		redis:     rdb,
		logger:    logger.With().Str("component", "live").Logger(),
		clients:   make(map[*Client]struct{}),
		done:      make(chan struct{}),
	}

	if rdb != nil {
		h.pubsub = rdb.Subscribe(ctx, h.channel())
		if _, err := h.pubsub.Receive(ctx); err != nil {
			_ = h.pubsub.Close()
			return nil, fmt.Errorf("subscribe %s: %w", h.channel(), err)
		}
		h.outbound = make(chan []byte, fanoutBuffer)
		go h.subscribeRedis()
		go h.publishRedis()
	}
	return h, nil
}

func (h *Hub) channel() string {
	return "puttstep:live:" + h.subjectID
}

// Register adds a client.
func (h *Hub) Register() *Client {
	c := &Client{send: make(chan []byte, clientBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.LiveClients.Set(float64(n))
	return c
}

// Unregister removes a client and closes its queue.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.LiveClients.Set(float64(n))
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// PublishState is a tracker observer.
func (h *Hub) PublishState(state tracker.LiveState) {
	h.Broadcast(Message{Type: TypeState, State: &state})
}

// Broadcast sends msg to every local client and, with redis, to the
// other instances. Slow clients miss messages rather than block.
func (h *Hub) Broadcast(msg Message) {
	msg.Origin = h.origin
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode live message")
		return
	}
	h.deliver(payload)

	if h.outbound == nil {
		return
	}
	select {
	case h.outbound <- payload:
	default:
		metrics.LiveFanoutDropped.Inc()
	}
}

// publishRedis drains the outbound queue until the hub is closed.
func (h *Hub) publishRedis() {
	for {
		select {
		case <-h.done:
			return
		case payload := <-h.outbound:
			ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			err := h.redis.Publish(ctx, h.channel(), payload).Err()
			cancel()
			if err != nil {
				metrics.LiveFanoutErrors.Inc()
				h.logger.Warn().Err(err).Msg("Redis publish failed")
			}
		}
	}
}

// SendTo queues msg for a single client.
func (h *Hub) SendTo(c *Client, msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode live message")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

func (h *Hub) deliver(payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
		}
	}
}

func (h *Hub) subscribeRedis() {
	for msg := range h.pubsub.Channel() {
		var envelope struct {
			Origin string `json:"origin"`
		}
		if err := json.Unmarshal([]byte(msg.Payload), &envelope); err != nil {
			h.logger.Debug().Err(err).Msg("Ignoring malformed live message")
			continue
		}
		if envelope.Origin == h.origin {
			continue
		}
		h.deliver([]byte(msg.Payload))
	}
}

// Close stops the redis subscription and disconnects all clients.
func (h *Hub) Close() error {
	var err error
	h.closeOnce.Do(func() { close(h.done) })
	if h.pubsub != nil {
		err = h.pubsub.Close()
	}
	h.mu.Lock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	metrics.LiveClients.Set(0)
	return err
}
