package metrics

import "github.com/prometheus/client_golang/prometheus"

// QueueMetrics exposes counters/histograms for queue orchestration flows.
type QueueMetrics struct {
	operationsTotal    *prometheus.CounterVec
	operationLatency   *prometheus.HistogramVec
	bookingsTotal      *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec
	replayEventsTotal  *prometheus.CounterVec
	emergencyMinutes   prometheus.Counter
}

func NewQueueMetrics(reg prometheus.Registerer) *QueueMetrics {
	m := &QueueMetrics{
		operationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "opd",
			Subsystem: "queue",
			Name:      "operations_total",
			Help:      "Total queue operations by outcome",
		}, []string{"op", "status"}),
		operationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "opd",
			Subsystem: "queue",
			Name:      "operation_latency_seconds",
			Help:      "Latency of queue operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "opd",
			Subsystem: "queue",
			Name:      "bookings_total",
			Help:      "Total booking attempts by kind and outcome",
		}, []string{"kind", "status"}),
		notificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "opd",
			Subsystem: "notify",
			Name:      "outbound_total",
			Help:      "Total outbound patient notifications",
		}, []string{"kind", "status"}),
		replayEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "opd",
			Subsystem: "replay",
			Name:      "events_total",
			Help:      "Client replay-log events by dedup result",
		}, []string{"result"}),
		emergencyMinutes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "opd",
			Subsystem: "queue",
			Name:      "emergency_minutes_total",
			Help:      "Total emergency delay minutes injected",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.operationsTotal, m.operationLatency, m.bookingsTotal,
		m.notificationsTotal, m.replayEventsTotal, m.emergencyMinutes,
	)
	return m
}

func (m *QueueMetrics) ObserveOperation(op, status string, seconds float64) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(op, status).Inc()
	m.operationLatency.WithLabelValues(op).Observe(seconds)
}

func (m *QueueMetrics) ObserveBooking(kind, status string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(kind, status).Inc()
}

func (m *QueueMetrics) ObserveNotification(kind, status string) {
	if m == nil {
		return
	}
	m.notificationsTotal.WithLabelValues(kind, status).Inc()
}

func (m *QueueMetrics) ObserveReplayEvent(duplicate bool) {
	if m == nil {
		return
	}
	result := "accepted"
	if duplicate {
		result = "duplicate"
	}
	m.replayEventsTotal.WithLabelValues(result).Inc()
}

func (m *QueueMetrics) AddEmergencyMinutes(minutes int) {
	if m == nil {
		return
	}
	m.emergencyMinutes.Add(float64(minutes))
}
