package control

import (
	"context"
	stderrors "errors"
	"math"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/gwillem/mearm/pkg/obs"
	"github.com/gwillem/mearm/pkg/regbus"
	"github.com/gwillem/mearm/pkg/robot"
)

// RegisterBackend drives an arm whose servos are owned by the I²C arm
// controller. Positions and limits are whole degrees.
type RegisterBackend struct {
	client *regbus.Client
	joints robot.JointsConfig
	logger *zap.SugaredLogger
}

// NewRegisterBackend uses joints for the home angles only; limits live on
// the controller.
func NewRegisterBackend(client *regbus.Client, joints robot.JointsConfig, logger *zap.SugaredLogger) *RegisterBackend {
	return &RegisterBackend{
		client: client,
		joints: joints,
		logger: obs.OrNop(logger),
	}
}

func register(name robot.JointName) (regbus.Register, error) {
	reg, ok := regbus.JointRegister(name)
	if !ok {
		return 0, &UnknownJointError{Name: string(name)}
	}
	return reg, nil
}

func wholeDegrees(arg string, v float64) (byte, error) {
	if v != math.Trunc(v) {
		return 0, &regbus.InvalidArgumentError{Arg: arg, Value: v, Reason: "integer expected"}
	}
	if v < 0 || v > robot.MaxAngle {
		return 0, &regbus.InvalidArgumentError{Arg: arg, Value: v, Reason: "out of limits 0-180"}
	}
	return byte(v), nil
}

func (b *RegisterBackend) Position(ctx context.Context, name robot.JointName) (float64, bool, error) {
	reg, err := register(name)
	if err != nil {
		return 0, false, err
	}
	v, err := b.client.Position(ctx, reg)
	if err != nil {
		return 0, false, err
	}
	return float64(v), true, nil
}

func (b *RegisterBackend) Limits(ctx context.Context, name robot.JointName) (float64, float64, error) {
	reg, err := register(name)
	if err != nil {
		return 0, 0, err
	}
	min, err := b.client.Limit(ctx, reg, "min")
	if err != nil {
		return 0, 0, err
	}
	max, err := b.client.Limit(ctx, reg, "max")
	if err != nil {
		return 0, 0, err
	}
	return float64(min), float64(max), nil
}

func (b *RegisterBackend) MoveTo(ctx context.Context, name robot.JointName, pos float64) (float64, error) {
	reg, err := register(name)
	if err != nil {
		return 0, err
	}
	v, err := wholeDegrees("pos", pos)
	if err != nil {
		return 0, err
	}
	got, err := b.client.SetPosition(ctx, reg, v)
	if err != nil {
		return 0, err
	}
	return float64(got), nil
}

// SetLimits writes min and max as two transactions. The controller checks
// each against the other's current value, so when both change the order is
// picked to keep min <= max after each write.
func (b *RegisterBackend) SetLimits(ctx context.Context, name robot.JointName, min, max *float64) error {
	reg, err := register(name)
	if err != nil {
		return err
	}

	type write struct {
		which string
		v     byte
	}
	var writes []write
	if min != nil {
		v, err := wholeDegrees("min", *min)
		if err != nil {
			return err
		}
		writes = append(writes, write{"min", v})
	}
	if max != nil {
		v, err := wholeDegrees("max", *max)
		if err != nil {
			return err
		}
		writes = append(writes, write{"max", v})
	}

	if len(writes) == 2 {
		if writes[0].v > writes[1].v {
			return &regbus.InvalidArgumentError{Arg: "min", Value: *min, Reason: "greater than max"}
		}
		curMin, err := b.client.Limit(ctx, reg, "min")
		if err != nil {
			return err
		}
		if writes[1].v >= curMin {
			writes[0], writes[1] = writes[1], writes[0]
		}
	}

	for _, w := range writes {
		if _, err := b.client.SetLimit(ctx, reg, w.which, w.v); err != nil {
			return err
		}
	}
	return nil
}

// HomeAll moves every joint to its configured home angle, base first. A
// failing joint does not stop the others.
func (b *RegisterBackend) HomeAll(ctx context.Context) error {
	var errs []error
	for _, name := range robot.AllJoints() {
		home := math.Round(b.joints.Get(name).Home)
		if _, err := b.MoveTo(ctx, name, home); err != nil {
			b.logger.Warnf("home %s: %v", name, err)
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// SelfTest runs the sweep of robot.Arm.SelfTest on the controller in whole
// degree steps. Positions the controller rejects as out of limits are
// skipped. The servos must be disconnected from the arm.
func (b *RegisterBackend) SelfTest(ctx context.Context, opts robot.SweepOptions) error {
	step := math.Max(1, math.Round(opts.Step))

	limits := make(map[robot.JointName][2]float64)
	for _, name := range robot.AllJoints() {
		min, max, err := b.Limits(ctx, name)
		if err != nil {
			return err
		}
		limits[name] = [2]float64{min, max}
		if _, err := b.MoveTo(ctx, name, min); err != nil {
			return errors.Wrapf(err, "move %s to min", name)
		}
	}

	var angles []float64
	for a := step; a <= robot.MaxAngle; a += step {
		angles = append(angles, a)
	}
	for a := robot.MaxAngle - step; a >= 0; a -= step {
		angles = append(angles, a)
	}

	for _, angle := range angles {
		if err := ctx.Err(); err != nil {
			return err
		}
		sweep := robot.SweepStep{Angle: angle, Positions: make(map[robot.JointName]float64)}
		for _, name := range robot.AllJoints() {
			pos, err := b.MoveTo(ctx, name, angle)
			var de *regbus.DeviceError
			if errors.As(err, &de) && de.Code == "ePLimit" {
				continue
			}
			if err != nil {
				return errors.Wrapf(err, "sweep %s to %g", name, angle)
			}
			sweep.Positions[name] = pos
		}
		if opts.Report != nil {
			opts.Report(sweep)
		}
		if err := robot.SleepCtx(ctx, opts.StepDelay); err != nil {
			return err
		}
	}

	for _, name := range robot.AllJoints() {
		lim := limits[name]
		if _, err := b.MoveTo(ctx, name, lim[1]); err != nil {
			return errors.Wrapf(err, "move %s to max", name)
		}
		if err := robot.SleepCtx(ctx, opts.Dwell); err != nil {
			return err
		}
		if _, err := b.MoveTo(ctx, name, lim[0]); err != nil {
			return errors.Wrapf(err, "move %s to min", name)
		}
	}

	return b.HomeAll(ctx)
}

func (b *RegisterBackend) Close() error {
	return b.client.Close()
}
