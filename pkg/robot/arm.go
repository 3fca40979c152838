package robot

import (
	stderrors "errors"
	"io"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/gwillem/mearm/pkg/obs"
)

// ArmConfig holds the calibration and joint layout of one arm.
type ArmConfig struct {
	Calibration Calibration  `json:"calibration"`
	Joints      JointsConfig `json:"joints"`
	HomeOnStart bool         `json:"home_on_start"`
}

// JointsConfig holds one JointConfig per joint.
type JointsConfig struct {
	Base     JointConfig `json:"base"`
	Shoulder JointConfig `json:"shoulder"`
	Wrist    JointConfig `json:"wrist"`
	Grip     JointConfig `json:"grip"`
}

// Get returns the configuration for the named joint.
func (c JointsConfig) Get(name JointName) JointConfig {
	switch name {
	case Base:
		return c.Base
	case Shoulder:
		return c.Shoulder
	case Wrist:
		return c.Wrist
	default:
		return c.Grip
	}
}

// Validate checks the calibration and every joint.
func (c ArmConfig) Validate() error {
	if err := c.Calibration.Validate(); err != nil {
		return errors.Wrap(err, "calibration")
	}
	for _, name := range AllJoints() {
		if err := c.Joints.Get(name).Validate(name); err != nil {
			return err
		}
	}
	return nil
}

// Option configures an Arm.
type Option func(*Arm)

// WithLogger sets the arm logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(a *Arm) {
		a.logger = l
	}
}

// WithMetrics records joint moves on m.
func WithMetrics(m *obs.Metrics) Option {
	return func(a *Arm) {
		a.metrics = m
	}
}

// Arm represents the four-joint arm on one actuation channel.
type Arm struct {
	out     ActuationChannel
	joints  []*Joint
	logger  *zap.SugaredLogger
	metrics *obs.Metrics
}

// NewArm validates cfg and creates an arm driving out. If cfg.HomeOnStart is
// set all joints are homed before returning.
func NewArm(out ActuationChannel, cfg ArmConfig, opts ...Option) (*Arm, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid arm config")
	}

	a := &Arm{out: out}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = obs.OrNop(a.logger)

	for _, name := range AllJoints() {
		a.joints = append(a.joints, newJoint(name, cfg.Joints.Get(name), cfg.Calibration, out, a.logger, a.metrics))
	}

	if cfg.HomeOnStart {
		if err := a.HomeAll(); err != nil {
			return nil, errors.Wrap(err, "home joints")
		}
	}

	return a, nil
}

// Close closes the arm's actuation channel if it holds resources.
func (a *Arm) Close() error {
	if c, ok := a.out.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Joint returns the named joint.
func (a *Arm) Joint(name JointName) (*Joint, error) {
	for _, j := range a.joints {
		if j.name == name {
			return j, nil
		}
	}
	return nil, errors.Errorf("unknown joint %q", name)
}

// Joints returns all joints in homing order.
func (a *Arm) Joints() []*Joint {
	return a.joints
}

// HomeAll homes every joint, base first. A joint that fails to home does not
// stop the others; all failures are returned joined.
func (a *Arm) HomeAll() error {
	var errs []error
	for _, j := range a.joints {
		if _, err := j.Home(); err != nil {
			a.logger.Warnf("home %s: %v", j.name, err)
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}
