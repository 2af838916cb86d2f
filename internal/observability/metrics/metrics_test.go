package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestQueueMetricsObserve(t *testing.T) {
	m := NewQueueMetrics(prometheus.NewRegistry())
	m.ObserveOperation("serve_next", "ok", 0.02)
	m.ObserveBooking("phone", "created")
	m.ObserveNotification("CONFIRMATION", "sent")
	m.ObserveReplayEvent(false)
	m.ObserveReplayEvent(true)
	m.AddEmergencyMinutes(15)
}

func TestQueueMetricsNilSafe(t *testing.T) {
	var m *QueueMetrics
	m.ObserveOperation("book", "error", 0.1)
	m.ObserveBooking("slot", "conflict")
	m.ObserveNotification("DELAY", "failed")
	m.ObserveReplayEvent(false)
	m.AddEmergencyMinutes(10)
}
