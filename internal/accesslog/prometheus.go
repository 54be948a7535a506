package accesslog

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink counts requests and observes their duration per endpoint and outcome.
type PrometheusSink struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewPrometheusSink creates the collectors and registers them with reg.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	s := &PrometheusSink{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oauth2",
			Name:      "requests_total",
			Help:      "Authorize and token requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "oauth2",
			Name:      "request_duration_seconds",
			Help:      "Authorize and token request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}
	for _, c := range []prometheus.Collector{s.requests, s.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *PrometheusSink) Record(entry Entry) {
	s.requests.WithLabelValues(entry.Endpoint, entry.Outcome).Inc()
	s.duration.WithLabelValues(entry.Endpoint).Observe(entry.Duration.Seconds())
}
