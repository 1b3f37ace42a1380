package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DispatchMetrics records counters for the order and courier pipeline.
type DispatchMetrics struct {
	transitions *prometheus.CounterVec
	assignments *prometheus.CounterVec
	agentEvents *prometheus.CounterVec
	matchesSize *prometheus.HistogramVec
	settlements *prometheus.CounterVec
	withdrawals *prometheus.CounterVec
	matchTime   prometheus.Histogram
}

// NewDispatchMetrics registers the pipeline metrics on the provided registerer.
// A nil registerer yields a no-op instance, which tests rely on.
func NewDispatchMetrics(reg prometheus.Registerer) *DispatchMetrics {
	if reg == nil {
		return &DispatchMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_status_transitions_total",
		Help: "Order status transitions, labelled by target status.",
	}, []string{"status"})
	assignments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_assignments_total",
		Help: "Dispatch assignment attempts by outcome.",
	}, []string{"outcome"})
	agentEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_delivery_events_total",
		Help: "Courier delivery lifecycle events by type.",
	}, []string{"event"})
	matchesSize := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dispatch_candidates",
		Help:    "Number of eligible agents returned per match query.",
		Buckets: []float64{0, 1, 2, 5, 10, 25, 50},
	}, []string{"result"})
	settlements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlements_total",
		Help: "Settlement attempts by outcome.",
	}, []string{"outcome"})
	withdrawals := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "withdrawal_requests_total",
		Help: "Withdrawal request state changes by target state.",
	}, []string{"status"})
	matchTime := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dispatch_match_duration_seconds",
		Help:    "Time spent computing agent matches.",
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(transitions, assignments, agentEvents, matchesSize, settlements, withdrawals, matchTime)
	return &DispatchMetrics{
		transitions: transitions,
		assignments: assignments,
		agentEvents: agentEvents,
		matchesSize: matchesSize,
		settlements: settlements,
		withdrawals: withdrawals,
		matchTime:   matchTime,
	}
}

// IncTransition counts an order status transition.
func (m *DispatchMetrics) IncTransition(status string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(status)).Inc()
}

// IncAssignment counts an assignment attempt outcome ("assigned", "conflict", ...).
func (m *DispatchMetrics) IncAssignment(outcome string) {
	if m == nil || m.assignments == nil {
		return
	}
	m.assignments.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncAgentEvent counts a courier lifecycle event.
func (m *DispatchMetrics) IncAgentEvent(event string) {
	if m == nil || m.agentEvents == nil {
		return
	}
	m.agentEvents.WithLabelValues(normalizeLabel(event)).Inc()
}

// ObserveCandidates records how many agents a match query produced.
func (m *DispatchMetrics) ObserveCandidates(result string, count int) {
	if m == nil || m.matchesSize == nil {
		return
	}
	m.matchesSize.WithLabelValues(normalizeLabel(result)).Observe(float64(count))
}

// ObserveMatchDuration records the latency of a match computation.
func (m *DispatchMetrics) ObserveMatchDuration(d time.Duration) {
	if m == nil || m.matchTime == nil {
		return
	}
	m.matchTime.Observe(d.Seconds())
}

// IncSettlement counts a settlement attempt outcome ("settled", "duplicate", "failed").
func (m *DispatchMetrics) IncSettlement(outcome string) {
	if m == nil || m.settlements == nil {
		return
	}
	m.settlements.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncWithdrawal counts a withdrawal state change.
func (m *DispatchMetrics) IncWithdrawal(status string) {
	if m == nil || m.withdrawals == nil {
		return
	}
	m.withdrawals.WithLabelValues(normalizeLabel(status)).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
