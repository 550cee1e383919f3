package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "seplos"

// Status label values.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Metrics is nil-safe: every method is a no-op on a nil receiver.
type Metrics struct {
	Frames       *prometheus.CounterVec
	Retries      *prometheus.CounterVec
	Errors       *prometheus.CounterVec
	Polls        *prometheus.CounterVec
	PollDuration prometheus.Histogram
	Stale        prometheus.Gauge
	Writes       *prometheus.CounterVec
	Values       *prometheus.GaugeVec
	QueueDepth   prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Frames: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Request/response exchanges on the bus.",
		}, []string{"op", "status"}),
		Retries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Frames re-sent after a retryable failure.",
		}, []string{"op"}),
		Errors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Failed exchanges by error class.",
		}, []string{"kind"}),
		Polls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_cycles_total",
			Help:      "Telemetry poll cycles.",
		}, []string{"status"}),
		PollDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Duration of a full poll cycle.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		Stale: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stale_parameters",
			Help:      "Parameters whose last read failed.",
		}),
		Writes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writes_total",
			Help:      "Parameter writes by outcome.",
		}, []string{"outcome"}),
		Values: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "value",
			Help:      "Latest decoded value of a parameter.",
		}, []string{"name", "unit"}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bus_queue_depth",
			Help:      "Operations waiting for the bus.",
		}),
	}
}

func (m *Metrics) IncFrame(op, status string) {
	if m == nil {
		return
	}
	m.Frames.WithLabelValues(op, status).Inc()
}

func (m *Metrics) IncRetry(op string) {
	if m == nil {
		return
	}
	m.Retries.WithLabelValues(op).Inc()
}

func (m *Metrics) IncError(kind string) {
	if m == nil {
		return
	}
	m.Errors.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObservePoll(d time.Duration, stale int, ok bool) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if !ok {
		status = StatusFailed
	}
	m.Polls.WithLabelValues(status).Inc()
	m.PollDuration.Observe(d.Seconds())
	m.Stale.Set(float64(stale))
}

func (m *Metrics) IncWrite(outcome string) {
	if m == nil {
		return
	}
	m.Writes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetValue(name, unit string, v float64) {
	if m == nil {
		return
	}
	m.Values.WithLabelValues(name, unit).Set(v)
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}
