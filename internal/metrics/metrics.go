// Package metrics exposes Prometheus instruments for the watermarking
// service. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

type Metrics struct {
	documents   *prometheus.CounterVec
	pages       prometheus.Counter
	rejections  prometheus.Counter
	decryptions *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// New registers the instruments on registerer, or on the default registerer
// when it is nil.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aquamark_documents_total",
			Help: "Documents processed by route and outcome.",
		}, []string{"route", "outcome"}),
		pages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aquamark_pages_stamped_total",
			Help: "Pages stamped and billed.",
		}),
		rejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aquamark_credit_rejections_total",
			Help: "Requests rejected for insufficient page credits.",
		}),
		decryptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aquamark_decryptions_total",
			Help: "Decryption tool runs by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aquamark_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}, []string{"route"}),
	}

	registerer.MustRegister(m.documents, m.pages, m.rejections, m.decryptions, m.duration)
	return m
}

func (m *Metrics) Document(route, outcome string) {
	if m == nil {
		return
	}
	m.documents.WithLabelValues(route, outcome).Inc()
}

func (m *Metrics) PagesStamped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.pages.Add(float64(n))
}

func (m *Metrics) CreditRejected() {
	if m == nil {
		return
	}
	m.rejections.Inc()
}

func (m *Metrics) Decryption(outcome string) {
	if m == nil {
		return
	}
	m.decryptions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveRequest(route string, d time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(route).Observe(d.Seconds())
}
