package motion

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// ErrPermissionDenied is returned when the platform refuses access to the
// motion sensors. Tracking must not start; the user re-triggers the flow.
var ErrPermissionDenied = errors.New("motion: sensor permission denied")

// Source delivers accelerometer readings one at a time. Next blocks until a
// reading is available and returns io.EOF once the stream is exhausted.
type Source interface {
	Next(ctx context.Context) (Reading, error)
}

// PermissionRequester is implemented by sources that gate access behind a
// platform permission prompt.
type PermissionRequester interface {
	RequestPermission(ctx context.Context) error
}

// SliceSource replays a fixed sequence of readings.
type SliceSource struct {
	readings []Reading
	pos      int
}

// NewSliceSource returns a Source over readings.
func NewSliceSource(readings []Reading) *SliceSource {
	return &SliceSource{readings: readings}
}

// Next returns the next reading or io.EOF.
func (s *SliceSource) Next(ctx context.Context) (Reading, error) {
	if err := ctx.Err(); err != nil {
		return Reading{}, err
	}
	if s.pos >= len(s.readings) {
		return Reading{}, io.EOF
	}
	r := s.readings[s.pos]
	s.pos++
	return r, nil
}

// ChannelSource adapts push-style producers, such as a broker callback,
// to the pull-based Source interface.
type ChannelSource struct {
	ch     chan Reading
	once   sync.Once
	mu     sync.RWMutex
	closed bool
}

// NewChannelSource creates a ChannelSource buffering up to size readings.
func NewChannelSource(size int) *ChannelSource {
	if size <= 0 {
		size = 1
	}
	return &ChannelSource{ch: make(chan Reading, size)}
}

// Push enqueues r without blocking. It reports false when the buffer is
// full or the source has been closed.
func (c *ChannelSource) Push(r Reading) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.ch <- r:
		return true
	default:
		return false
	}
}

// Close ends the stream. Readings already buffered are still delivered.
func (c *ChannelSource) Close() {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.ch)
		c.mu.Unlock()
	})
}

// Next blocks for the next reading.
func (c *ChannelSource) Next(ctx context.Context) (Reading, error) {
	select {
	case <-ctx.Done():
		return Reading{}, ctx.Err()
	case r, ok := <-c.ch:
		if !ok {
			return Reading{}, io.EOF
		}
		return r, nil
	}
}

// JSONLSource decodes one JSON reading per line, as written by the
// recorder and accepted by the replay command. Blank lines and lines
// starting with '#' are skipped.
type JSONLSource struct {
	scanner *bufio.Scanner
	line    int
}

// NewJSONLSource reads readings from r.
func NewJSONLSource(r io.Reader) *JSONLSource {
	return &JSONLSource{scanner: bufio.NewScanner(r)}
}

// Next decodes the next reading.
func (j *JSONLSource) Next(ctx context.Context) (Reading, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Reading{}, err
		}
		if !j.scanner.Scan() {
			if err := j.scanner.Err(); err != nil {
				return Reading{}, fmt.Errorf("read samples: %w", err)
			}
			return Reading{}, io.EOF
		}
		j.line++

		text := strings.TrimSpace(j.scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		var r Reading
		if err := json.Unmarshal([]byte(text), &r); err != nil {
			return Reading{}, fmt.Errorf("line %d: %w", j.line, err)
		}
		return r, nil
	}
}

// ReadAll drains src into a slice.
func ReadAll(ctx context.Context, src Source) ([]Reading, error) {
	var out []Reading
	for {
		r, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
}
