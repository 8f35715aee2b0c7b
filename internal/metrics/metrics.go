package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultSkipped = "skipped"
)

// Pipeline captures recompute pipeline health. A nil *Pipeline is a no-op.
type Pipeline struct {
	recomputes        *prometheus.CounterVec
	recomputeDuration prometheus.Observer
	increments        *prometheus.CounterVec
	schedules         *prometheus.CounterVec
	deliveries        *prometheus.CounterVec
	resolverRebuilds  prometheus.Counter
}

// New registers the pipeline collectors on registerer (the default registerer when nil).
func New(registerer prometheus.Registerer) *Pipeline {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	recomputes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "calltrack_recompute_total",
		Help: "Tenant stats recomputes by result.",
	}, []string{"result"})
	recomputeDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "calltrack_recompute_duration_seconds",
		Help:    "Latency of a full tenant recompute.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})
	increments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "calltrack_optimistic_increment_total",
		Help: "Optimistic callsCount increments by result.",
	}, []string{"result"})
	schedules := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "calltrack_recompute_schedule_total",
		Help: "Delayed recompute dispatches by result.",
	}, []string{"result"})
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "calltrack_dispatch_delivery_total",
		Help: "Deliveries of scheduled recompute requests to the worker by result.",
	}, []string{"result"})
	resolverRebuilds := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "calltrack_leads_resolver_rebuild_total",
		Help: "Full rebuilds of the latest-call-per-lead view.",
	})

	registerer.MustRegister(recomputes, recomputeDuration, increments, schedules, deliveries, resolverRebuilds)

	return &Pipeline{
		recomputes:        recomputes,
		recomputeDuration: recomputeDuration,
		increments:        increments,
		schedules:         schedules,
		deliveries:        deliveries,
		resolverRebuilds:  resolverRebuilds,
	}
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}

// ObserveRecompute records one tenant recompute.
func (m *Pipeline) ObserveRecompute(took time.Duration, err error) {
	if m == nil {
		return
	}
	m.recomputes.WithLabelValues(result(err)).Inc()
	m.recomputeDuration.Observe(took.Seconds())
}

func (m *Pipeline) IncIncrement(err error) {
	if m == nil {
		return
	}
	m.increments.WithLabelValues(result(err)).Inc()
}

// IncSchedule records a dispatch attempt; res is one of the Result constants.
func (m *Pipeline) IncSchedule(res string) {
	if m == nil {
		return
	}
	m.schedules.WithLabelValues(res).Inc()
}

func (m *Pipeline) IncDelivery(err error) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(result(err)).Inc()
}

func (m *Pipeline) IncResolverRebuild() {
	if m == nil {
		return
	}
	m.resolverRebuilds.Inc()
}
