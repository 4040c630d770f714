package live

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goodtune/puttstep/internal/calibration"
	"github.com/goodtune/puttstep/internal/motion"
	"github.com/goodtune/puttstep/internal/pedometer"
	"github.com/goodtune/puttstep/internal/storage"
	"github.com/goodtune/puttstep/internal/storage/bolt"
	"github.com/goodtune/puttstep/internal/tracker"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	server  *httptest.Server
	tracker *tracker.Tracker
	store   storage.Store
	hub     *Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := bolt.Open(filepath.Join(t.TempDir(), "puttstep.bolt"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	manager := calibration.NewManager(store, zerolog.Nop())
	detector := pedometer.New(pedometer.DefaultOptions(), nil, zerolog.Nop())
	tr := tracker.New(tracker.Config{SubjectID: "alex", Detector: pedometer.DefaultOptions()}, detector, manager, store.Measurements(), zerolog.Nop())

	hub := newTestHub(t, nil)
	tr.Subscribe(hub.PublishState)

	srv := NewServer(Config{SubjectID: "alex"}, hub, tr, manager, store.Measurements(), zerolog.Nop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{server: ts, tracker: tr, store: store, hub: hub}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

// steps feeds n well-separated jolts through the tracker.
func steps(tr *tracker.Tracker, n int) {
	at := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 25; i++ {
		tr.Process(motion.NewReading(0, 0, 0, at))
		at = at.Add(20 * time.Millisecond)
	}
	for i := 0; i < n; i++ {
		tr.Process(motion.NewReading(0, 0, 20, at))
		at = at.Add(20 * time.Millisecond)
		for j := 0; j < 19; j++ {
			tr.Process(motion.NewReading(0, 0, 0, at))
			at = at.Add(20 * time.Millisecond)
		}
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTrackingLifecycle(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/tracking/start", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var state tracker.LiveState
	decode(t, resp, &state)
	assert.True(t, state.IsTracking)

	steps(env.tracker, 4)

	resp = env.do(t, http.MethodGet, "/api/state", nil)
	decode(t, resp, &state)
	assert.Equal(t, 4, state.Steps)

	resp = env.do(t, http.MethodPost, "/api/tracking/stop", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var res tracker.Result
	decode(t, resp, &res)
	assert.Equal(t, 4, res.Steps)
	require.NotNil(t, res.Measurement)

	resp = env.do(t, http.MethodGet, "/api/measurements?limit=5", nil)
	var list []storage.Measurement
	decode(t, resp, &list)
	require.Len(t, list, 1)
	assert.Equal(t, res.Measurement.ID, list[0].ID)

	resp = env.do(t, http.MethodGet, "/api/measurements/"+res.Measurement.ID, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, "/api/measurements/"+res.Measurement.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/measurements/"+res.Measurement.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMeasurementQueryValidation(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/measurements?start=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/measurements?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/measurements?start=2024-01-01T00:00:00Z&end=2024-02-01T00:00:00Z", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []storage.Measurement
	decode(t, resp, &list)
	assert.Empty(t, list)
}

func TestCalibrateEndpoint(t *testing.T) {
	env := newTestEnv(t)

	// No steps yet.
	resp := env.do(t, http.MethodPost, "/api/calibrate", CalibrateRequest{KnownDistanceMeters: 10})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/tracking/start", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	steps(env.tracker, 10)

	resp = env.do(t, http.MethodPost, "/api/calibrate", CalibrateRequest{KnownDistanceMeters: 7.5})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out CalibrateResponse
	decode(t, resp, &out)
	assert.InDelta(t, 0.75, out.StrideLength, 1e-9)

	resp = env.do(t, http.MethodGet, "/api/calibrations", nil)
	var history []storage.CalibrationSession
	decode(t, resp, &history)
	require.Len(t, history, 1)
	assert.Equal(t, 10, history[0].StepsTaken)

	resp = env.do(t, http.MethodGet, "/api/stride", nil)
	var stride storage.StrideCalibration
	decode(t, resp, &stride)
	assert.InDelta(t, 0.75, stride.StrideLengthMeters, 1e-9)

	thirteen := 13
	resp = env.do(t, http.MethodPost, "/api/calibrate", CalibrateRequest{KnownDistanceMeters: 10, Steps: &thirteen})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &out)
	assert.InDelta(t, 10.0/13.0, out.StrideLength, 1e-9)
}

func TestSettingsEndpoints(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/settings", nil)
	var settings storage.Settings
	decode(t, resp, &settings)
	assert.Equal(t, float64(storage.DefaultHeightCm), settings.HeightCm)

	resp = env.do(t, http.MethodPatch, "/api/settings", map[string]interface{}{"height_cm": 182.0})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &settings)
	assert.Equal(t, 182.0, settings.HeightCm)
	assert.Equal(t, storage.DefaultSensitivity, settings.Sensitivity)

	resp = env.do(t, http.MethodPatch, "/api/settings", map[string]interface{}{"sensitivity": 11})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPatch, env.server.URL+"/api/settings", strings.NewReader("{"))
	require.NoError(t, err)
	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer raw.Body.Close()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)
}

func dial(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readUntil reads messages until match accepts one.
func readUntil(t *testing.T, conn *websocket.Conn, match func(Message) bool) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		if match(msg) {
			return msg
		}
	}
}

func TestWebsocketCommands(t *testing.T) {
	env := newTestEnv(t)
	conn := dial(t, env)

	first := readUntil(t, conn, func(m Message) bool { return m.Type == TypeState })
	assert.False(t, first.State.IsTracking)

	require.NoError(t, conn.WriteJSON(Command{Action: "start"}))
	readUntil(t, conn, func(m Message) bool { return m.Type == TypeState && m.State.IsTracking })

	steps(env.tracker, 2)
	readUntil(t, conn, func(m Message) bool { return m.Type == TypeState && m.State.Steps == 2 })

	require.NoError(t, conn.WriteJSON(Command{Action: "stop"}))
	result := readUntil(t, conn, func(m Message) bool { return m.Type == TypeResult })
	require.NotNil(t, result.Result)
	assert.Equal(t, 2, result.Result.Steps)

	require.NoError(t, conn.WriteJSON(Command{Action: "dance"}))
	failure := readUntil(t, conn, func(m Message) bool { return m.Type == TypeError })
	assert.Equal(t, errUnknownAction.Error(), failure.Error)

	require.NoError(t, conn.WriteJSON(Command{Action: "calibrate", KnownDistanceMeters: 1.6}))
	cal := readUntil(t, conn, func(m Message) bool { return m.Type == TypeCalibration })
	assert.InDelta(t, 0.8, cal.Stride, 1e-9)
}

func TestServerStartStop(t *testing.T) {
	hub := newTestHub(t, nil)
	srv := NewServer(Config{ListenAddr: "127.0.0.1:0"}, hub, nil, nil, nil, zerolog.Nop())
	require.NoError(t, srv.Start())
	require.NoError(t, srv.Stop())
}
