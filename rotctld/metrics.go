package rotctld

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the Prometheus instruments for one rotator session.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Commands      *prometheus.CounterVec
	IOErrors      prometheus.Counter
	CycleDuration prometheus.Histogram
	AzPosition    prometheus.Gauge
	ElPosition    prometheus.Gauge
}

// NewMetrics registers session metrics against reg, defaulting to the
// global Prometheus registry when nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rotctld_commands_total",
			Help: "Commands sent to the rotctld daemon, labeled by command.",
		}, []string{"command"}),
		IOErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rotctld_io_errors_total",
			Help: "Session cycles that ended with a command or poll failure.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rotctld_cycle_duration_seconds",
			Help:    "Session loop iteration time, excluding the duty-cycle sleep.",
			Buckets: []float64{0.1, 0.15, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		AzPosition: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rotctld_azimuth_degrees",
			Help: "Last azimuth read back from the rotator.",
		}),
		ElPosition: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rotctld_elevation_degrees",
			Help: "Last elevation read back from the rotator.",
		}),
	}
	reg.MustRegister(m.Commands, m.IOErrors, m.CycleDuration, m.AzPosition, m.ElPosition)
	return m
}

func (m *Metrics) command(cmd string) {
	if m == nil {
		return
	}
	m.Commands.WithLabelValues(cmd).Inc()
}

func (m *Metrics) cycle(d time.Duration, ioErr bool) {
	if m == nil {
		return
	}
	m.CycleDuration.Observe(d.Seconds())
	if ioErr {
		m.IOErrors.Inc()
	}
}

func (m *Metrics) position(az, el float64) {
	if m == nil {
		return
	}
	m.AzPosition.Set(az)
	m.ElPosition.Set(el)
}
