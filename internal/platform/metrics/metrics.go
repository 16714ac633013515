package metrics

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry so tests can build as many as they like.
type Collector struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	cacheResults *prometheus.CounterVec
	upstream     *prometheus.HistogramVec
	jobRuns      *prometheus.CounterVec

	totalRequests   uint64
	errorRequests   uint64
	rateLimited     uint64
	totalDurationMs uint64
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leavedesk",
			Name:      "http_requests_total",
			Help:      "HTTP requests handled by the gateway.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "leavedesk",
			Name:      "http_request_duration_seconds",
			Help:      "Gateway request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		cacheResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leavedesk",
			Name:      "cache_results_total",
			Help:      "Cache lookups by outcome (hit, miss, stale, error).",
		}, []string{"cache", "outcome"}),
		upstream: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "leavedesk",
			Name:      "upstream_request_duration_seconds",
			Help:      "Latency of calls to the leave API.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"endpoint", "outcome"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leavedesk",
			Name:      "job_runs_total",
			Help:      "Background job runs by status.",
		}, []string{"job", "status"}),
	}
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.httpRequests, c.httpDuration, c.cacheResults, c.upstream, c.jobRuns,
	)
	return c
}

// Record counts one HTTP request. route is the matched route pattern, not the
// raw path.
func (c *Collector) Record(method, route string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())

	atomic.AddUint64(&c.totalRequests, 1)
	if status >= 500 {
		atomic.AddUint64(&c.errorRequests, 1)
	}
	if status == http.StatusTooManyRequests {
		atomic.AddUint64(&c.rateLimited, 1)
	}
	atomic.AddUint64(&c.totalDurationMs, uint64(duration.Milliseconds()))
}

func (c *Collector) CacheResult(cache, outcome string) {
	c.cacheResults.WithLabelValues(cache, outcome).Inc()
}

func (c *Collector) ObserveUpstream(endpoint, outcome string, elapsed time.Duration) {
	c.upstream.WithLabelValues(endpoint, outcome).Observe(elapsed.Seconds())
}

func (c *Collector) JobRun(job, status string) {
	c.jobRuns.WithLabelValues(job, status).Inc()
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) Snapshot() map[string]any {
	total := atomic.LoadUint64(&c.totalRequests)
	errs := atomic.LoadUint64(&c.errorRequests)
	limited := atomic.LoadUint64(&c.rateLimited)
	totalMs := atomic.LoadUint64(&c.totalDurationMs)
	avg := float64(0)
	if total > 0 {
		avg = float64(totalMs) / float64(total)
	}
	return map[string]any{
		"requestsTotal":    total,
		"errorsTotal":      errs,
		"rateLimitedTotal": limited,
		"avgDurationMs":    avg,
		"totalDurationMs":  totalMs,
	}
}
