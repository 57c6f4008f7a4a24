package loader

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors updated by a Loader. A nil
// *Metrics records nothing.
type Metrics struct {
	PagesFaulted    prometheus.Counter
	PagesBackground prometheus.Counter
	PagesEager      prometheus.Counter
	PageErrors      prometheus.Counter
	BytesRead       prometheus.Counter
	FaultSeconds    prometheus.Histogram
}

// NewMetrics creates the loader collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PagesFaulted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ramsnap",
			Name:      "pages_faulted_total",
			Help:      "Pages loaded by the fault path.",
		}),
		PagesBackground: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ramsnap",
			Name:      "pages_background_total",
			Help:      "Pages loaded by the background path.",
		}),
		PagesEager: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ramsnap",
			Name:      "pages_eager_total",
			Help:      "Pages loaded synchronously without a watcher.",
		}),
		PageErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ramsnap",
			Name:      "page_errors_total",
			Help:      "Pages that could not be read or filled.",
		}),
		BytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ramsnap",
			Name:      "bytes_read_total",
			Help:      "Page bytes read from the snapshot.",
		}),
		FaultSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ramsnap",
			Name:      "fault_seconds",
			Help:      "Time spent servicing a page fault.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.PagesFaulted, m.PagesBackground, m.PagesEager,
			m.PageErrors, m.BytesRead, m.FaultSeconds)
	}
	return m
}

func (m *Metrics) faulted(d time.Duration) {
	if m == nil {
		return
	}
	m.PagesFaulted.Inc()
	m.FaultSeconds.Observe(d.Seconds())
}

func (m *Metrics) background() {
	if m != nil {
		m.PagesBackground.Inc()
	}
}

func (m *Metrics) eager() {
	if m != nil {
		m.PagesEager.Inc()
	}
}

func (m *Metrics) pageError() {
	if m != nil {
		m.PageErrors.Inc()
	}
}

func (m *Metrics) bytesRead(n int) {
	if m != nil {
		m.BytesRead.Add(float64(n))
	}
}
