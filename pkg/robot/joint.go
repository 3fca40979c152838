package robot

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/gwillem/mearm/pkg/obs"
)

// JointConfig holds configuration for a single joint.
type JointConfig struct {
	Channel int     `json:"channel"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Home    float64 `json:"home"`
	Invert  bool    `json:"invert,omitempty"`
}

// Validate checks the limits and home angle of the joint.
func (c JointConfig) Validate(name JointName) error {
	if c.Min < 0 || c.Max > MaxAngle {
		return errors.Errorf("%s: limits must be within 0-%g, got %g-%g", name, MaxAngle, c.Min, c.Max)
	}
	if c.Min > c.Max {
		return errors.Errorf("%s: min (%g) is greater than max (%g)", name, c.Min, c.Max)
	}
	if c.Home < c.Min || c.Home > c.Max {
		return errors.Errorf("%s: home (%g) outside of limits (%g - %g)", name, c.Home, c.Min, c.Max)
	}
	return nil
}

// JointInfo is a consistent snapshot of a joint.
type JointInfo struct {
	Name    JointName
	Pos     float64
	Powered bool
	Min     float64
	Max     float64
}

// Joint is one servo driven degree of freedom. All methods are safe for
// concurrent use; reads and writes of a joint are serialized.
type Joint struct {
	name    JointName
	channel int
	home    float64
	invert  bool
	cal     Calibration
	out     ActuationChannel
	logger  *zap.SugaredLogger
	metrics *obs.Metrics

	mu  sync.Mutex
	min float64
	max float64
}

func newJoint(name JointName, cfg JointConfig, cal Calibration, out ActuationChannel, logger *zap.SugaredLogger, metrics *obs.Metrics) *Joint {
	return &Joint{
		name:    name,
		channel: cfg.Channel,
		home:    cfg.Home,
		invert:  cfg.Invert,
		cal:     cal,
		out:     out,
		logger:  logger,
		metrics: metrics,
		min:     cfg.Min,
		max:     cfg.Max,
	}
}

// Name returns the joint name.
func (j *Joint) Name() JointName {
	return j.name
}

// HomeAngle returns the configured home angle.
func (j *Joint) HomeAngle() float64 {
	return j.home
}

// Limits returns the current min and max angles.
func (j *Joint) Limits() (min, max float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.min, j.max
}

// Position returns the current joint angle. powered is false when the servo
// is not being driven, in which case angle is meaningless.
func (j *Joint) Position() (angle float64, powered bool, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.readLocked()
}

// Info returns the position and limits read under one lock.
func (j *Joint) Info() (JointInfo, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	pos, powered, err := j.readLocked()
	if err != nil {
		return JointInfo{}, err
	}
	return JointInfo{
		Name:    j.name,
		Pos:     pos,
		Powered: powered,
		Min:     j.min,
		Max:     j.max,
	}, nil
}

// MoveTo positions the joint at target degrees and returns the position read
// back from the channel.
func (j *Joint) MoveTo(target float64) (float64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.moveLocked(target)
}

// Home moves the joint to its home angle.
func (j *Joint) Home() (float64, error) {
	return j.MoveTo(j.home)
}

// SetLimits changes the min and/or max limit. A nil argument leaves that
// limit unchanged. Both limits are validated before either is applied. If
// the joint sits outside the new window it is moved onto the nearest limit.
func (j *Joint) SetLimits(min, max *float64) error {
	if min == nil && max == nil {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	effMax := j.max
	if max != nil {
		effMax = *max
	}
	if min != nil {
		if *min > effMax {
			return &InvalidLimitError{Joint: j.name, Field: "min", Value: *min, Reason: fmt.Sprintf("higher than max (%g)", effMax)}
		}
		if *min < 0 {
			return &InvalidLimitError{Joint: j.name, Field: "min", Value: *min, Reason: "less than 0"}
		}
	}

	effMin := j.min
	if min != nil {
		effMin = *min
	}
	if max != nil {
		if *max < effMin {
			return &InvalidLimitError{Joint: j.name, Field: "max", Value: *max, Reason: fmt.Sprintf("less than min (%g)", effMin)}
		}
		if *max > MaxAngle {
			return &InvalidLimitError{Joint: j.name, Field: "max", Value: *max, Reason: "greater than 180"}
		}
	}

	unit, err := j.out.Read(j.channel)
	if err != nil {
		return &ChannelError{Joint: j.name, Channel: j.channel, Op: "read", Err: err}
	}

	j.min, j.max = effMin, effMax
	j.logger.Infof("%s limits set to %g - %g", j.name, j.min, j.max)

	if unit == IdleUnit {
		return nil
	}
	// an inverted joint is mirrored in the new window, so its position is
	// checked in the frame it will be reported in
	switch pos := j.unitToAngle(unit); {
	case pos < j.min:
		_, err = j.moveLocked(j.min)
	case pos > j.max:
		_, err = j.moveLocked(j.max)
	}
	return err
}

func (j *Joint) moveLocked(target float64) (float64, error) {
	if target < j.min || target > j.max {
		j.metrics.JointMove(string(j.name), "out_of_range")
		return 0, &OutOfRangeError{Joint: j.name, Requested: target, Min: j.min, Max: j.max}
	}

	angle := target
	if j.invert {
		angle = j.max - (target - j.min)
	}
	unit := j.cal.AngleToPulse(angle)

	if err := j.out.Write(j.channel, unit); err != nil {
		j.metrics.JointMove(string(j.name), "error")
		return 0, &ChannelError{Joint: j.name, Channel: j.channel, Op: "write", Err: err}
	}
	j.metrics.JointMove(string(j.name), "ok")
	j.logger.Debugf("%s -> %g° (unit %d)", j.name, target, unit)

	pos, powered, err := j.readLocked()
	if err != nil {
		return 0, err
	}
	if !powered {
		return 0, &ChannelError{Joint: j.name, Channel: j.channel, Op: "read", Err: errors.New("servo idle after write")}
	}
	return pos, nil
}

func (j *Joint) readLocked() (float64, bool, error) {
	unit, err := j.out.Read(j.channel)
	if err != nil {
		return 0, false, &ChannelError{Joint: j.name, Channel: j.channel, Op: "read", Err: err}
	}
	if unit == IdleUnit {
		return 0, false, nil
	}
	return j.unitToAngle(unit), true, nil
}

// unitToAngle converts a channel unit to a joint angle in the current limit
// window.
func (j *Joint) unitToAngle(unit int) float64 {
	angle := j.cal.PulseToAngle(unit)
	if j.invert {
		angle = roundTenth(j.max - (angle - j.min))
	}
	return angle
}
