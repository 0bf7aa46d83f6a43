package media

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects export counters for a process
type Metrics struct {
	exportsTotal    *prometheus.CounterVec
	exportDuration  prometheus.Histogram
	exportBytes     prometheus.Histogram
	activeExports   prometheus.Gauge
	recorderStarts  prometheus.Counter
	syncCorrections prometheus.Counter
}

// NewMetrics registers export metrics on reg. A nil reg returns nil metrics, which
// every method tolerates.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}
	factory := promauto.With(reg)
	return &Metrics{
		exportsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceover_exports_total",
			Help: "Total number of export attempts by outcome",
		}, []string{"outcome"}),

		exportDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voiceover_export_duration_seconds",
			Help:    "Wall time of export attempts",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),

		exportBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voiceover_export_size_bytes",
			Help:    "Size of finalized recordings",
			Buckets: prometheus.ExponentialBuckets(64*1024, 4, 8),
		}),

		activeExports: factory.NewGauge(prometheus.GaugeOpts{
			Name: "voiceover_exports_active",
			Help: "Number of exports currently running",
		}),

		recorderStarts: factory.NewCounter(prometheus.CounterOpts{
			Name: "voiceover_recorder_starts_total",
			Help: "Total number of recorder starts",
		}),

		syncCorrections: factory.NewCounter(prometheus.CounterOpts{
			Name: "voiceover_sync_corrections_total",
			Help: "Total number of secondary position corrections during preview",
		}),
	}
}

func (m *Metrics) exportStarted() {
	if m == nil {
		return
	}
	m.activeExports.Inc()
}

func (m *Metrics) exportFinished(outcome string, seconds float64, size int64) {
	if m == nil {
		return
	}
	m.activeExports.Dec()
	m.exportsTotal.WithLabelValues(outcome).Inc()
	m.exportDuration.Observe(seconds)
	if size > 0 {
		m.exportBytes.Observe(float64(size))
	}
}

func (m *Metrics) exportRejected() {
	if m == nil {
		return
	}
	m.exportsTotal.WithLabelValues(string(CodeBusy)).Inc()
}

func (m *Metrics) recorderStarted() {
	if m == nil {
		return
	}
	m.recorderStarts.Inc()
}

// SyncCorrected counts one preview correction
func (m *Metrics) SyncCorrected() {
	if m == nil {
		return
	}
	m.syncCorrections.Inc()
}
