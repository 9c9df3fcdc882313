package app

import (
	"errors"
	"strconv"
	"time"

	"github.com/Morditux/cgisession"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are only registered by the development server; a CGI process
// exits before anything could scrape them.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	failures *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cgisession",
			Name:      "requests_total",
			Help:      "Gateway requests by script and status code.",
		}, []string{"script", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cgisession",
			Name:      "request_duration_seconds",
			Help:      "Time from decode to emitted response.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"script"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cgisession",
			Name:      "failures_total",
			Help:      "Failed requests by kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.requests, m.duration, m.failures)
	return m
}

// Observer returns a cgisession.Gateway Observe hook for script.
func (m *Metrics) Observer(script string) func(*cgisession.Request, *cgisession.Response, time.Duration, error) {
	return func(req *cgisession.Request, resp *cgisession.Response, elapsed time.Duration, err error) {
		status := resp.Status
		if status == 0 {
			status = 200
		}
		m.requests.WithLabelValues(script, strconv.Itoa(status)).Inc()
		m.duration.WithLabelValues(script).Observe(elapsed.Seconds())
		if err != nil {
			m.failures.WithLabelValues(failureKind(err)).Inc()
		}
	}
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, cgisession.ErrMalformedContentLength),
		errors.Is(err, cgisession.ErrTruncatedBody),
		errors.Is(err, cgisession.ErrBodyTooLarge):
		return "decode"
	case errors.Is(err, cgisession.ErrCorruptStore),
		errors.Is(err, cgisession.ErrStoreTooLarge):
		return "store_corrupt"
	case errors.Is(err, cgisession.ErrLockBusy),
		errors.Is(err, cgisession.ErrLockUnsupported):
		return "lock"
	case errors.Is(err, cgisession.ErrInvalidHeader):
		return "emit"
	default:
		return "other"
	}
}
