package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

func TestServerEndpoints(t *testing.T) {
	StepsTotal.WithLabelValues("accelerometer").Add(3)

	srv := NewServer("127.0.0.1:0", zerolog.Nop())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from /health, got %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics request: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if !strings.Contains(string(body), `puttstep_steps_total{source="accelerometer"}`) {
		t.Fatalf("steps counter missing from exposition")
	}
}

func TestBoolGauge(t *testing.T) {
	DeviceStill.Set(BoolGauge(true))
	if got := testutil.ToFloat64(DeviceStill); got != 1 {
		t.Fatalf("expected 1, got %v", got)
	}
	DeviceStill.Set(BoolGauge(false))
	if got := testutil.ToFloat64(DeviceStill); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
}
