package obs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the counters exported by the arm. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	LeaseTotal   *prometheus.CounterVec // op=acquire|touch|release, result=granted|denied|...
	LeaseHeld    prometheus.Gauge
	LeaseExpired prometheus.Counter

	BusTxTotal *prometheus.CounterVec   // op, result=ok|device_error|io_error|timeout
	BusTxMS    *prometheus.HistogramVec // op

	JointMoveTotal *prometheus.CounterVec // joint, result=ok|out_of_range|error
}

// NewMetrics creates the arm metrics and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LeaseTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mearm_lease_ops_total",
				Help: "Control lease operations by result",
			},
			[]string{"op", "result"},
		),
		LeaseHeld: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mearm_lease_held",
			Help: "1 while a live control lease is held",
		}),
		LeaseExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mearm_lease_expired_total",
			Help: "Control leases cleared after their idle timeout",
		}),
		BusTxTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mearm_bus_transactions_total",
				Help: "Register bus transactions by result",
			},
			[]string{"op", "result"},
		),
		BusTxMS: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mearm_bus_transaction_ms",
				Help:    "Register bus transaction latency (ms), settle delays included",
				Buckets: prometheus.ExponentialBuckets(50, 2, 8), // 50ms .. ~6.4s
			},
			[]string{"op"},
		),
		JointMoveTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mearm_joint_moves_total",
				Help: "Joint position writes by result",
			},
			[]string{"joint", "result"},
		),
	}

	reg.MustRegister(
		m.LeaseTotal,
		m.LeaseHeld,
		m.LeaseExpired,
		m.BusTxTotal,
		m.BusTxMS,
		m.JointMoveTotal,
	)

	return m
}

func (m *Metrics) LeaseOp(op, result string) {
	if m == nil {
		return
	}
	m.LeaseTotal.WithLabelValues(op, result).Inc()
}

func (m *Metrics) SetLeaseHeld(held bool) {
	if m == nil {
		return
	}
	if held {
		m.LeaseHeld.Set(1)
	} else {
		m.LeaseHeld.Set(0)
	}
}

func (m *Metrics) LeaseExpiredInc() {
	if m == nil {
		return
	}
	m.LeaseExpired.Inc()
}

func (m *Metrics) BusTx(op, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.BusTxTotal.WithLabelValues(op, result).Inc()
	m.BusTxMS.WithLabelValues(op).Observe(float64(elapsed.Milliseconds()))
}

func (m *Metrics) JointMove(joint, result string) {
	if m == nil {
		return
	}
	m.JointMoveTotal.WithLabelValues(joint, result).Inc()
}
