package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()

	m.RecordRequest("/tickets", "GET", 200, 15*time.Millisecond)
	m.RecordRequest("/tickets", "GET", 200, 5*time.Millisecond)
	m.Delivered("activity_log", "ticket_created")
	m.Failed("activity_log", "ticket_closed", "handler_error")
	m.RecordTransition("Pending", "Closed")

	if got := testutil.ToFloat64(m.requestCount.WithLabelValues("/tickets", "GET", "200")); got != 2 {
		t.Errorf("expected 2 requests, got %v", got)
	}
	if got := testutil.ToFloat64(m.auditDelivered.WithLabelValues("activity_log", "ticket_created")); got != 1 {
		t.Errorf("expected 1 delivery, got %v", got)
	}
	if got := testutil.ToFloat64(m.auditFailed.WithLabelValues("activity_log", "ticket_closed", "handler_error")); got != 1 {
		t.Errorf("expected 1 failure, got %v", got)
	}
	if got := testutil.ToFloat64(m.transitions.WithLabelValues("Pending", "Closed")); got != 1 {
		t.Errorf("expected 1 transition, got %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordRequest("/", "GET", 200, time.Millisecond)
	m.RecordError("/", "GET", "NOT_FOUND")
	m.Delivered("s", "e")
	m.Failed("s", "e", "r")
	m.RecordTransition("a", "b")
	m.RecordReport("pdf", "ok")
	if m.Registry() != nil {
		t.Error("expected nil registry")
	}
}
