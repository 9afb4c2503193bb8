package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Document("/watermark", OutcomeSuccess)
	m.Document("/watermark", OutcomeSuccess)
	m.Document("/watermark", OutcomeFailure)
	m.PagesStamped(3)
	m.PagesStamped(0)
	m.CreditRejected()
	m.Decryption(OutcomeFailure)
	m.ObserveRequest("/decrypt", 150*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.documents.WithLabelValues("/watermark", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.documents.WithLabelValues("/watermark", OutcomeFailure)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.pages))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejections))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.decryptions.WithLabelValues(OutcomeFailure)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Document("/watermark", OutcomeSuccess)
		m.PagesStamped(1)
		m.CreditRejected()
		m.Decryption(OutcomeSuccess)
		m.ObserveRequest("/", time.Second)
	})
}
