package metrics

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"fieldnav/internal/domain/navigation"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNavigationCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewNavigation(reg)

	m.RouteRequested(false)
	m.RouteRequested(true)
	m.RouteRequested(true)
	m.RouteCompleted(120*time.Millisecond, nil)
	m.RouteCompleted(time.Second, fmt.Errorf("wrap: %w", navigation.ErrRouteTimeout))
	m.StaleDiscarded()
	m.StateEntered("NAVIGATING", "RECALCULATING")
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()

	if got := testutil.ToFloat64(m.routeRequests.WithLabelValues("manual")); got != 2 {
		t.Errorf("manual requests = %v", got)
	}
	if got := testutil.ToFloat64(m.routeFailures.WithLabelValues("timeout")); got != 1 {
		t.Errorf("timeouts = %v", got)
	}
	if got := testutil.ToFloat64(m.staleDiscards); got != 1 {
		t.Errorf("stale = %v", got)
	}
	if got := testutil.ToFloat64(m.activeSessions); got != 1 {
		t.Errorf("active = %v", got)
	}
	if got := testutil.CollectAndCount(m.routeLatency); got != 1 {
		t.Errorf("histogram series = %d", got)
	}
}

func TestBrokerObserver(t *testing.T) {
	m := NewNavigation(prometheus.NewRegistry())

	m.BrokerConnected(true)
	if got := testutil.ToFloat64(m.brokerUp); got != 1 {
		t.Fatalf("connected gauge = %v, want 1", got)
	}
	m.BrokerConnected(false)
	m.BrokerReconnectFailed()
	m.BrokerReconnectFailed()
	if got := testutil.ToFloat64(m.brokerUp); got != 0 {
		t.Fatalf("connected gauge = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.brokerRetries); got != 2 {
		t.Fatalf("reconnect failures = %v, want 2", got)
	}
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewNavigation(reg)
	m.SampleDropped()

	var ready atomic.Bool
	srv := httptest.NewServer(Handler(reg, ready.Load))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("healthz before ready = %d", resp.StatusCode)
	}
	ready.Store(true)
	resp, _ = http.Get(srv.URL + "/healthz")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz = %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "fieldnav_position_samples_dropped_total 1") {
		t.Fatalf("metrics output lacks dropped sample counter:\n%s", body)
	}
}
