// Package lease arbitrates exclusive write access to the arm. At most one
// caller holds the control lease at a time; it lapses when the holder stays
// idle for the lease duration.
package lease

import (
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gwillem/mearm/pkg/obs"
)

const (
	DefaultDuration = 60 * time.Second
	DefaultName     = "Anonymous"
)

// Holder describes the live lease.
type Holder struct {
	ID      string
	Name    string
	Origin  string
	Expires time.Time
}

// Remaining returns how long the lease has left at now.
func (h Holder) Remaining(now time.Time) time.Duration {
	if d := h.Expires.Sub(now); d > 0 {
		return d
	}
	return 0
}

// DeniedError is returned when the caller does not hold the lease. Holder is
// empty when nobody does.
type DeniedError struct {
	Holder    string
	Origin    string
	Remaining time.Duration
}

func (e *DeniedError) Error() string {
	if e.Holder == "" {
		return "you do not have control of the arm"
	}
	wait := int(math.Ceil(e.Remaining.Seconds()))
	return fmt.Sprintf("arm is being controlled: ask %s at %s, or wait %ds", e.Holder, e.Origin, wait)
}

// NotHolderError is returned by Release from a caller without a live lease.
type NotHolderError struct {
	ID string
}

func (e *NotHolderError) Error() string {
	return fmt.Sprintf("%s does not hold the control lease", e.ID)
}

// Config configures a Lease.
type Config struct {
	Duration time.Duration
	Logger   *zap.SugaredLogger
	Metrics  *obs.Metrics
}

// Lease is the single control lease. Callers pass the current time to every
// method; the lease never reads a clock itself.
type Lease struct {
	duration time.Duration
	logger   *zap.SugaredLogger
	metrics  *obs.Metrics

	mu     sync.Mutex
	holder *Holder
}

func New(cfg Config) *Lease {
	if cfg.Duration <= 0 {
		cfg.Duration = DefaultDuration
	}
	return &Lease{
		duration: cfg.Duration,
		logger:   obs.OrNop(cfg.Logger),
		metrics:  cfg.Metrics,
	}
}

// Duration returns the idle time after which a lease lapses.
func (l *Lease) Duration() time.Duration {
	return l.duration
}

// TryAcquire grants the lease to id if it is free, lapsed or already held
// by id. An empty name becomes DefaultName. When another caller holds a
// live lease a *DeniedError is returned and nothing changes.
func (l *Lease) TryAcquire(id string, now time.Time, name, origin string) (Holder, error) {
	if name == "" {
		name = DefaultName
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.expireLocked(now)

	if l.holder != nil && l.holder.ID != id {
		h := *l.holder
		l.metrics.LeaseOp("acquire", "denied")
		return Holder{}, &DeniedError{Holder: h.Name, Origin: h.Origin, Remaining: h.Remaining(now)}
	}

	result := "granted"
	if l.holder != nil {
		result = "refreshed"
	}
	l.holder = &Holder{
		ID:      id,
		Name:    name,
		Origin:  origin,
		Expires: now.Add(l.duration),
	}
	l.metrics.LeaseOp("acquire", result)
	l.metrics.SetLeaseHeld(true)
	l.logger.Infof("control lease %s to %s at %s until %s", result, name, origin, l.holder.Expires.Format(time.RFC3339))
	return *l.holder, nil
}

// Touch extends the lease if id holds it and reports whether it does.
func (l *Lease) Touch(id string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.expireLocked(now)

	if l.holder == nil || l.holder.ID != id {
		l.metrics.LeaseOp("touch", "denied")
		return false
	}
	l.holder.Expires = now.Add(l.duration)
	l.metrics.LeaseOp("touch", "ok")
	return true
}

// Check returns nil if id holds the live lease and extends it. Otherwise it
// returns a *DeniedError naming the holder, if any.
func (l *Lease) Check(id string, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.expireLocked(now)

	if l.holder != nil && l.holder.ID == id {
		l.holder.Expires = now.Add(l.duration)
		l.metrics.LeaseOp("touch", "ok")
		return nil
	}
	l.metrics.LeaseOp("touch", "denied")
	if l.holder == nil {
		return &DeniedError{}
	}
	return &DeniedError{Holder: l.holder.Name, Origin: l.holder.Origin, Remaining: l.holder.Remaining(now)}
}

// Release gives up the lease held by id.
func (l *Lease) Release(id string, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.expireLocked(now)

	if l.holder == nil || l.holder.ID != id {
		l.metrics.LeaseOp("release", "not_holder")
		return &NotHolderError{ID: id}
	}
	l.logger.Infof("control lease released by %s at %s", l.holder.Name, l.holder.Origin)
	l.holder = nil
	l.metrics.LeaseOp("release", "ok")
	l.metrics.SetLeaseHeld(false)
	return nil
}

// Snapshot returns the live holder, if any.
func (l *Lease) Snapshot(now time.Time) (Holder, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.expireLocked(now)

	if l.holder == nil {
		return Holder{}, false
	}
	return *l.holder, true
}

// Sweep clears a lapsed lease and reports whether it did.
func (l *Lease) Sweep(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.expireLocked(now)
}

// expireLocked clears the holder once now is past its expiry; the lease is
// still live at the expiry instant.
func (l *Lease) expireLocked(now time.Time) bool {
	if l.holder == nil || !now.After(l.holder.Expires) {
		return false
	}
	l.logger.Infof("control lease of %s at %s expired", l.holder.Name, l.holder.Origin)
	l.holder = nil
	l.metrics.LeaseExpiredInc()
	l.metrics.SetLeaseHeld(false)
	return true
}
