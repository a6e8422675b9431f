package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/warp/tontine-engine/tontine"
)

var (
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tontine_operations_total",
			Help: "Total number of tontine operations by action and outcome",
		},
		[]string{"action", "outcome"}, // outcome: "applied", "deferred", or a rejection code
	)

	DistributedAmountTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tontine_distributed_amount_total",
			Help: "Total amount paid to beneficiaries, in the tontine denomination",
		},
	)

	FeesRetainedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tontine_fees_retained_total",
			Help: "Total protocol fees retained at distribution",
		},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tontine_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tontine_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tontine_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	SchedulerRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tontine_scheduler_runs_total",
			Help: "Total number of scheduler ticks by result",
		},
		[]string{"result"}, // "distributed", "idle", "error"
	)
)

// Collector feeds engine outcomes into the package counters. It implements
// tontine.Observer.
type Collector struct{}

func NewCollector() *Collector {
	return &Collector{}
}

func (Collector) OperationApplied(action tontine.Action, effect tontine.Effect) {
	OperationsTotal.WithLabelValues(string(action), string(effect)).Inc()
}

func (Collector) OperationRejected(action tontine.Action, code tontine.Code) {
	outcome := string(code)
	if outcome == "" {
		outcome = "internal"
	}
	OperationsTotal.WithLabelValues(string(action), outcome).Inc()
}

func (Collector) Distributed(d tontine.Distribution) {
	DistributedAmountTotal.Add(d.Amount.Float64())
	FeesRetainedTotal.Add(d.Fees.Float64())
}

// RecordSchedulerRun records one scheduler tick.
func RecordSchedulerRun(result string) {
	SchedulerRunsTotal.WithLabelValues(result).Inc()
}

// Middleware records request count and latency per chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		// Use the route pattern if available, otherwise use the path
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}

		status := strconv.Itoa(ww.Status())
		HTTPRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
