package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.LineReceived("srv")
	m.SendQueue("srv", 3)
	m.CallbackExpired()
	m.ConnectionLost("srv", "ping timeout")
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(WithRegistry(reg), WithNamespace("test"))

	m.LineSent("a")
	m.LineSent("a")
	m.LineSent("b")
	m.CallbackMatched()
	m.SendQueue("a", 7)

	if got := testutil.ToFloat64(m.linesSent.WithLabelValues("a")); got != 2 {
		t.Errorf("Expected 2 lines sent for a, got %v", got)
	}
	if got := testutil.ToFloat64(m.callbacksMatched); got != 1 {
		t.Errorf("Expected 1 matched callback, got %v", got)
	}
	if got := testutil.ToFloat64(m.sendQueue.WithLabelValues("a")); got != 7 {
		t.Errorf("Expected queue depth 7, got %v", got)
	}
}
