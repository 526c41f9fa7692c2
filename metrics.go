package dashserve

import (
	"strconv"
	"time"

	headerrules "github.com/ericselin/dashserve/pkg/header-rules"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts served requests by what was sent.
// A nil *Metrics records nothing.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dashserve",
			Name:      "requests_total",
			Help:      "Requests served, by target (file, entry, worker, error) and status code.",
		}, []string{"target", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dashserve",
			Name:      "request_duration_seconds",
			Help:      "Time to serve a request, by target.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"target"}),
	}
	reg.MustRegister(m.requests, m.duration)
	return m
}

func (m *Metrics) observe(target headerrules.Target, status int, took time.Duration) {
	if m == nil {
		return
	}
	label := string(target)
	if label == "" {
		label = "other"
	}
	m.requests.WithLabelValues(label, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(label).Observe(took.Seconds())
}
