// Package metrics holds the Prometheus instrumentation for the engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles every metric the engine exports. One instance is wired
// through the components; handlers expose it via promhttp.
type Registry struct {
	reg *prometheus.Registry

	OpportunitiesDetected prometheus.Counter
	OpportunitiesSelected prometheus.Counter
	OpportunitiesExpired  prometheus.Counter

	Executions     *prometheus.CounterVec // label: result (succeeded|failed|blocked)
	RealizedProfit prometheus.Counter
	RealizedCosts  prometheus.Counter

	CircuitOpen  prometheus.Gauge
	CircuitTrips prometheus.Counter

	TasksSubmitted *prometheus.CounterVec // label: type
	TaskQueueDepth prometheus.Gauge
	WorkersHealthy prometheus.Gauge

	QuoteFetches *prometheus.CounterVec // labels: venue, result
}

// New creates a Registry with all metrics registered.
func New() *Registry {
	r := &Registry{reg: prometheus.NewRegistry()}

	r.OpportunitiesDetected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flasharb_opportunities_detected_total",
		Help: "Candidate opportunities produced by the calculator",
	})
	r.OpportunitiesSelected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flasharb_opportunities_selected_total",
		Help: "Opportunities promoted to selected by the ranker",
	})
	r.OpportunitiesExpired = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flasharb_opportunities_expired_total",
		Help: "Candidates that expired without an execution attempt",
	})
	r.Executions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flasharb_executions_total",
		Help: "Execution attempts by result",
	}, []string{"result"})
	r.RealizedProfit = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flasharb_realized_profit_total",
		Help: "Cumulative realized profit in quote units",
	})
	r.RealizedCosts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flasharb_realized_costs_total",
		Help: "Cumulative gas and fee costs in quote units",
	})
	r.CircuitOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flasharb_circuit_breaker_open",
		Help: "1 while the risk governor is paused, 0 otherwise",
	})
	r.CircuitTrips = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flasharb_circuit_breaker_trips_total",
		Help: "Times the circuit breaker tripped",
	})
	r.TasksSubmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flasharb_tasks_submitted_total",
		Help: "Worker tasks submitted by type",
	}, []string{"type"})
	r.TaskQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flasharb_task_queue_depth",
		Help: "Pending tasks in the dispatch queue",
	})
	r.WorkersHealthy = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flasharb_workers_healthy",
		Help: "Workers with a fresh heartbeat",
	})
	r.QuoteFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flasharb_quote_fetches_total",
		Help: "Quote fetch attempts by venue and result",
	}, []string{"venue", "result"})

	r.reg.MustRegister(
		r.OpportunitiesDetected, r.OpportunitiesSelected, r.OpportunitiesExpired,
		r.Executions, r.RealizedProfit, r.RealizedCosts,
		r.CircuitOpen, r.CircuitTrips,
		r.TasksSubmitted, r.TaskQueueDepth, r.WorkersHealthy,
		r.QuoteFetches,
	)
	return r
}

// SetCircuitOpen sets the breaker gauge.
func (r *Registry) SetCircuitOpen(open bool) {
	if open {
		r.CircuitOpen.Set(1)
	} else {
		r.CircuitOpen.Set(0)
	}
}

// Gatherer returns the underlying registry for the /metrics endpoint.
func (r *Registry) Gatherer() *prometheus.Registry {
	return r.reg
}
