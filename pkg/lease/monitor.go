package lease

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
)

// Monitor periodically clears a lapsed lease so that status and metrics
// reflect expiry without waiting for the next caller.
type Monitor struct {
	lease    *Lease
	clock    clock.Clock
	interval time.Duration
}

func NewMonitor(l *Lease, clk clock.Clock, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Monitor{
		lease:    l,
		clock:    clk,
		interval: interval,
	}
}

// Run sweeps until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	t := m.clock.Ticker(m.interval)
	defer t.Stop()

	m.lease.Sweep(m.clock.Now())

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.lease.Sweep(m.clock.Now())
		}
	}
}
