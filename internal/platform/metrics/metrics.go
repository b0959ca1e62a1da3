package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"absence/internal/domain/workflow"
)

const namespace = "absence"

// Collector owns a private registry with HTTP and workflow series.
type Collector struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	resolutions        prometheus.Counter
	resolutionDuration prometheus.Histogram
	policiesMatched    prometheus.Histogram
	fallbacks          *prometheus.CounterVec
	selfApprovalSkips  prometheus.Counter
	outcomes           *prometheus.CounterVec
	stepActions        *prometheus.CounterVec
}

var _ workflow.Recorder = (*Collector)(nil)

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		resolutions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "resolutions_total",
			Help:      "Completed workflow resolutions.",
		}),
		resolutionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "resolution_duration_seconds",
			Help:      "Time spent resolving a workflow.",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		policiesMatched: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "policies_matched",
			Help:      "Policies matched per resolution.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8},
		}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "fallbacks_total",
			Help:      "Fallback activations by the level that produced approvers.",
		}, []string{"level"}),
		selfApprovalSkips: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "self_approval_skips_total",
			Help:      "Steps skipped because the configured approver was the requester.",
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "outcomes_total",
			Help:      "Aggregated outcomes by master state.",
		}, []string{"state"}),
		stepActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "step_actions_total",
			Help:      "Approver decisions on steps.",
		}, []string{"decision"}),
	}
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.httpRequests, c.httpDuration,
		c.resolutions, c.resolutionDuration, c.policiesMatched,
		c.fallbacks, c.selfApprovalSkips, c.outcomes, c.stepActions,
	)
	return c
}

func (c *Collector) Record(method, route string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (c *Collector) ObserveResolution(policies int, elapsed time.Duration) {
	c.resolutions.Inc()
	c.resolutionDuration.Observe(elapsed.Seconds())
	c.policiesMatched.Observe(float64(policies))
}

func (c *Collector) ObserveFallback(level workflow.FallbackLevel) {
	c.fallbacks.WithLabelValues(string(level)).Inc()
}

func (c *Collector) ObserveSelfApprovalSkip() {
	c.selfApprovalSkips.Inc()
}

func (c *Collector) ObserveOutcome(state workflow.MasterState) {
	c.outcomes.WithLabelValues(string(state)).Inc()
}

func (c *Collector) ObserveStepAction(decision workflow.StepState) {
	c.stepActions.WithLabelValues(string(decision)).Inc()
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
