package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pders01/rollguard/internal/models"
)

// Metrics exports monitor state to Prometheus. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	errors      *prometheus.CounterVec
	rollbacks   *prometheus.CounterVec
	escalations prometheus.Counter
	restarts    prometheus.Counter
	droppedEvts prometheus.Counter
	emergency   prometheus.Gauge
	active      prometheus.Gauge
	cpu         prometheus.Gauge
	disk        prometheus.Gauge
	rss         prometheus.Gauge
}

// NewMetrics registers the monitor metrics on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rollguard_errors_total",
			Help: "Recorded errors by type and severity",
		}, []string{"type", "severity"}),
		rollbacks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rollguard_rollbacks_total",
			Help: "Automatic rollbacks by result",
		}, []string{"result"}),
		escalations: f.NewCounter(prometheus.CounterOpts{
			Name: "rollguard_escalations_total",
			Help: "Times the error threshold was crossed",
		}),
		restarts: f.NewCounter(prometheus.CounterOpts{
			Name: "rollguard_restarts_total",
			Help: "Process restarts after failed recovery",
		}),
		droppedEvts: f.NewCounter(prometheus.CounterOpts{
			Name: "rollguard_events_dropped_total",
			Help: "Events not handled because the queue was full",
		}),
		emergency: f.NewGauge(prometheus.GaugeOpts{
			Name: "rollguard_emergency_mode",
			Help: "1 while the monitor is in emergency mode",
		}),
		active: f.NewGauge(prometheus.GaugeOpts{
			Name: "rollguard_monitoring_active",
			Help: "1 while the monitor workers run",
		}),
		cpu: f.NewGauge(prometheus.GaugeOpts{
			Name: "rollguard_cpu_percent",
			Help: "Last sampled CPU utilization",
		}),
		disk: f.NewGauge(prometheus.GaugeOpts{
			Name: "rollguard_disk_used_percent",
			Help: "Last sampled disk usage of the project filesystem",
		}),
		rss: f.NewGauge(prometheus.GaugeOpts{
			Name: "rollguard_process_resident_bytes",
			Help: "Last sampled resident memory of the host process",
		}),
	}
}

func (m *Metrics) recordError(ev models.ErrorEvent) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(ev.Type, string(ev.Severity)).Inc()
}

func (m *Metrics) rollback(err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.rollbacks.WithLabelValues(result).Inc()
}

func (m *Metrics) escalated() {
	if m == nil {
		return
	}
	m.escalations.Inc()
}

func (m *Metrics) restarted() {
	if m == nil {
		return
	}
	m.restarts.Inc()
}

func (m *Metrics) dropped() {
	if m == nil {
		return
	}
	m.droppedEvts.Inc()
}

func (m *Metrics) setEmergency(on bool) {
	if m == nil {
		return
	}
	m.emergency.Set(boolGauge(on))
}

func (m *Metrics) setActive(on bool) {
	if m == nil {
		return
	}
	m.active.Set(boolGauge(on))
}

func (m *Metrics) observe(s Sample) {
	if m == nil {
		return
	}
	m.cpu.Set(s.CPUPercent)
	m.disk.Set(s.DiskUsedPercent)
	m.rss.Set(float64(s.RSSBytes))
}

func boolGauge(on bool) float64 {
	if on {
		return 1
	}
	return 0
}
