package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "checkit"

type RequestEvent struct {
	Status   int
	Duration time.Duration
	Err      error
}

type CheckEvent struct {
	Name   string
	Passed bool
}

type MetricsCollector interface {
	PostRequest(event RequestEvent)
	PostCheck(event CheckEvent)
}

type nopCollector struct{}

func (nopCollector) PostRequest(RequestEvent) {}
func (nopCollector) PostCheck(CheckEvent)     {}

// NewNopCollector returns a collector that drops every event.
func NewNopCollector() MetricsCollector {
	return nopCollector{}
}

type PrometheusMetricsCollector struct {
	requests *prometheus.CounterVec
	errors   prometheus.Counter
	checks   *prometheus.CounterVec
	duration prometheus.Histogram
}

func NewPrometheusMetricsCollector(r prometheus.Registerer) MetricsCollector {
	c := &PrometheusMetricsCollector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{Name: "requests_total",
			Namespace: namespace,
			Help:      "Number of responses received, by status code"}, []string{"code"}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{Name: "request_errors_total",
			Namespace: namespace,
			Help:      "Number of requests that failed without a response"}),
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{Name: "checks_total",
			Namespace: namespace,
			Help:      "Number of check evaluations, by check and result"}, []string{"check", "result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{Name: "request_duration_milliseconds",
			Namespace: namespace,
			Help:      "Request duration",
			Buckets:   timeBuckets()}),
	}
	r.MustRegister(c.requests, c.errors, c.checks, c.duration)
	return c
}

func timeBuckets() []float64 {
	bucket := float64(1)
	buckets := make([]float64, 0, 64)
	for bucket <= 60000 {
		buckets = append(buckets, bucket)
		if bucket < 10 {
			bucket += 1
		} else if bucket < 100 {
			bucket += 10
		} else if bucket < 1000 {
			bucket += 100
		} else if bucket < 10000 {
			bucket += 1000
		} else {
			bucket += 10000
		}
	}
	return buckets
}

func (c *PrometheusMetricsCollector) PostRequest(event RequestEvent) {
	if event.Err != nil {
		c.errors.Inc()
		return
	}
	c.requests.WithLabelValues(strconv.Itoa(event.Status)).Inc()
	c.duration.Observe(float64(event.Duration) / float64(time.Millisecond))
}

func (c *PrometheusMetricsCollector) PostCheck(event CheckEvent) {
	result := "fail"
	if event.Passed {
		result = "pass"
	}
	c.checks.WithLabelValues(event.Name, result).Inc()
}

// Handler exposes g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
