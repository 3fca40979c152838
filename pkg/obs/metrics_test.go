package obs

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	m.LeaseOp("acquire", "granted")
	m.SetLeaseHeld(true)
	m.LeaseExpiredInc()
	m.BusTx("read", "ok", time.Millisecond)
	m.JointMove("base", "ok")
}

func TestMetrics_Record(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.LeaseOp("acquire", "granted")
	m.LeaseOp("acquire", "granted")
	m.LeaseOp("acquire", "denied")
	m.SetLeaseHeld(true)
	m.JointMove("grip", "out_of_range")
	m.BusTx("write_register", "device_error", 250*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.LeaseTotal.WithLabelValues("acquire", "granted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LeaseTotal.WithLabelValues("acquire", "denied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LeaseHeld))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JointMoveTotal.WithLabelValues("grip", "out_of_range")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BusTxTotal.WithLabelValues("write_register", "device_error")))

	m.SetLeaseHeld(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.LeaseHeld))
}
