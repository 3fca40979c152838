// Package control is the caller facing surface of the arm. It checks the
// control lease before every write and hands the call to a Backend.
package control

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gwillem/mearm/pkg/lease"
	"github.com/gwillem/mearm/pkg/obs"
	"github.com/gwillem/mearm/pkg/robot"
)

// Joint detail selectors.
const (
	DetailPos    = "pos"
	DetailMin    = "min"
	DetailMax    = "max"
	DetailLimits = "limits"
	DetailInfo   = "info"
)

// JointView holds the requested subset of a joint's state.
type JointView struct {
	Pos  *float64 `json:"pos,omitempty"`
	Min  *float64 `json:"min,omitempty"`
	Max  *float64 `json:"max,omitempty"`
	Idle bool     `json:"idle,omitempty"`
}

// JointUpdate changes a joint. At least one field must be set. Limits are
// applied before the position.
type JointUpdate struct {
	Pos *float64 `json:"pos,omitempty"`
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// UnknownJointError is returned for a joint name the arm does not have.
type UnknownJointError struct {
	Name string
}

func (e *UnknownJointError) Error() string {
	return fmt.Sprintf("unknown joint %q", e.Name)
}

// InvalidRequestError is returned for malformed joint requests.
type InvalidRequestError struct {
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return "invalid request: " + e.Reason
}

// Config configures a Controller.
type Config struct {
	Clock  clock.Clock
	Logger *zap.SugaredLogger
}

// Controller routes caller requests to a Backend behind the control lease.
type Controller struct {
	backend Backend
	lease   *lease.Lease
	clock   clock.Clock
	logger  *zap.SugaredLogger
}

func New(backend Backend, l *lease.Lease, cfg Config) *Controller {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return &Controller{
		backend: backend,
		lease:   l,
		clock:   cfg.Clock,
		logger:  obs.OrNop(cfg.Logger),
	}
}

// NewSession returns a fresh caller identity.
func (c *Controller) NewSession() string {
	return uuid.NewString()
}

// Acquire takes the control lease for session.
func (c *Controller) Acquire(session, name, origin string) (lease.Holder, error) {
	return c.lease.TryAcquire(session, c.clock.Now(), name, origin)
}

// Release gives up the control lease held by session.
func (c *Controller) Release(session string) error {
	return c.lease.Release(session, c.clock.Now())
}

// Status returns the current lease holder, if any.
func (c *Controller) Status() (lease.Holder, bool) {
	return c.lease.Snapshot(c.clock.Now())
}

// Close releases the backend hardware.
func (c *Controller) Close() error {
	return c.backend.Close()
}

func parseJoint(name string) (robot.JointName, error) {
	j, ok := robot.ParseJointName(name)
	if !ok {
		return "", &UnknownJointError{Name: name}
	}
	return j, nil
}

// Joint reads a joint. detail selects what is returned: "" or "pos" the
// position, "min", "max", "limits" both limits, "info" everything. Reads do
// not need the lease.
func (c *Controller) Joint(ctx context.Context, name, detail string) (JointView, error) {
	j, err := parseJoint(name)
	if err != nil {
		return JointView{}, err
	}

	var wantPos, wantMin, wantMax bool
	switch detail {
	case "", DetailPos:
		wantPos = true
	case DetailMin:
		wantMin = true
	case DetailMax:
		wantMax = true
	case DetailLimits:
		wantMin, wantMax = true, true
	case DetailInfo:
		wantPos, wantMin, wantMax = true, true, true
	default:
		return JointView{}, &InvalidRequestError{Reason: fmt.Sprintf("invalid joint detail %q", detail)}
	}

	var view JointView
	if wantPos {
		pos, powered, err := c.backend.Position(ctx, j)
		if err != nil {
			return JointView{}, err
		}
		if powered {
			view.Pos = &pos
		} else {
			view.Idle = true
		}
	}
	if wantMin || wantMax {
		min, max, err := c.backend.Limits(ctx, j)
		if err != nil {
			return JointView{}, err
		}
		if wantMin {
			view.Min = &min
		}
		if wantMax {
			view.Max = &max
		}
	}
	return view, nil
}

// SetJoint applies upd to a joint for the lease holder session and returns
// the values that were set.
func (c *Controller) SetJoint(ctx context.Context, session, name string, upd JointUpdate) (JointView, error) {
	j, err := parseJoint(name)
	if err != nil {
		return JointView{}, err
	}
	if upd.Pos == nil && upd.Min == nil && upd.Max == nil {
		return JointView{}, &InvalidRequestError{Reason: "expected at least one of pos, min or max"}
	}
	for _, f := range []struct {
		name string
		v    *float64
	}{{"min", upd.Min}, {"max", upd.Max}} {
		if f.v != nil && (*f.v < 0 || *f.v > robot.MaxAngle) {
			return JointView{}, &InvalidRequestError{Reason: fmt.Sprintf("%g out of limits for %s", *f.v, f.name)}
		}
	}
	if upd.Pos != nil && (*upd.Pos < 0 || *upd.Pos > robot.MaxAngle) {
		return JointView{}, &robot.OutOfRangeError{Joint: j, Requested: *upd.Pos, Min: 0, Max: robot.MaxAngle}
	}
	if err := c.lease.Check(session, c.clock.Now()); err != nil {
		return JointView{}, err
	}

	var view JointView
	if upd.Min != nil || upd.Max != nil {
		if err := c.backend.SetLimits(ctx, j, upd.Min, upd.Max); err != nil {
			return JointView{}, err
		}
		view.Min, view.Max = upd.Min, upd.Max
	}
	if upd.Pos != nil {
		pos, err := c.backend.MoveTo(ctx, j, *upd.Pos)
		if err != nil {
			return view, err
		}
		view.Pos = &pos
	}
	c.logger.Debugf("%s set by %s", j, session)
	return view, nil
}

// HomeAll homes every joint for the lease holder session.
func (c *Controller) HomeAll(ctx context.Context, session string) error {
	if err := c.lease.Check(session, c.clock.Now()); err != nil {
		return err
	}
	return c.backend.HomeAll(ctx)
}

// SelfTest runs the full range sweep for the lease holder session. The
// servos must be disconnected from the arm. The lease is kept alive while
// the sweep runs.
func (c *Controller) SelfTest(ctx context.Context, session string, opts robot.SweepOptions) error {
	if err := c.lease.Check(session, c.clock.Now()); err != nil {
		return err
	}
	report := opts.Report
	opts.Report = func(s robot.SweepStep) {
		c.lease.Touch(session, c.clock.Now())
		if report != nil {
			report(s)
		}
	}
	c.logger.Infof("self-test started by %s", session)
	return c.backend.SelfTest(ctx, opts)
}
