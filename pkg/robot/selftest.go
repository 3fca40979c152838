package robot

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"
)

// SweepOptions tune the self-test sweep.
type SweepOptions struct {
	Step      float64       // degrees per sweep step, default 0.5
	StepDelay time.Duration // pause after each step
	Dwell     time.Duration // pause at max before returning to min, default 500ms
	Report    func(SweepStep)
}

// SweepStep is the state of the arm after one sweep step. Joints whose
// limits exclude Angle are absent from Positions.
type SweepStep struct {
	Angle     float64
	Positions map[JointName]float64
}

// DefaultSweepOptions returns the stock sweep settings.
func DefaultSweepOptions() SweepOptions {
	return SweepOptions{
		Step:  0.5,
		Dwell: 500 * time.Millisecond,
	}
}

// SelfTest exercises every joint over its full range.
//
// The servos MUST be disconnected from the physical arm: the sweep drives
// each joint to every angle its limits allow, which the assembled arm cannot
// reach without damage.
//
// All joints go to min, then every joint follows an angle sweep from Step up
// to 180 and back to 0. Angles outside a joint's limits are skipped for that
// joint. Each joint is then driven to max and back to min, and finally the arm
// is homed. The sweep stops between steps when ctx is done.
func (a *Arm) SelfTest(ctx context.Context, opts SweepOptions) error {
	def := DefaultSweepOptions()
	if opts.Step <= 0 {
		opts.Step = def.Step
	}
	if opts.Dwell < 0 {
		opts.Dwell = 0
	}

	a.logger.Info("self-test: moving joints to min")
	for _, j := range a.joints {
		min, _ := j.Limits()
		if _, err := j.MoveTo(min); err != nil {
			return errors.Wrapf(err, "move %s to min", j.name)
		}
	}

	steps := int(math.Round(MaxAngle / opts.Step))
	angles := make([]float64, 0, 2*steps+1)
	for i := 1; i <= steps; i++ {
		angles = append(angles, math.Min(float64(i)*opts.Step, MaxAngle))
	}
	for i := steps - 1; i >= 0; i-- {
		angles = append(angles, float64(i)*opts.Step)
	}

	a.logger.Infof("self-test: sweeping %d steps of %g°", len(angles), opts.Step)
	for _, angle := range angles {
		if err := ctx.Err(); err != nil {
			return err
		}
		step := SweepStep{Angle: angle, Positions: make(map[JointName]float64, len(a.joints))}
		for _, j := range a.joints {
			pos, err := j.MoveTo(angle)
			var oor *OutOfRangeError
			if errors.As(err, &oor) {
				continue
			}
			if err != nil {
				return errors.Wrapf(err, "sweep %s to %g", j.name, angle)
			}
			step.Positions[j.name] = pos
		}
		if opts.Report != nil {
			opts.Report(step)
		}
		if err := SleepCtx(ctx, opts.StepDelay); err != nil {
			return err
		}
	}

	for _, j := range a.joints {
		min, max := j.Limits()
		a.logger.Infof("self-test: %s max %g -> min %g", j.name, max, min)
		if _, err := j.MoveTo(max); err != nil {
			return errors.Wrapf(err, "move %s to max", j.name)
		}
		if err := SleepCtx(ctx, opts.Dwell); err != nil {
			return err
		}
		if _, err := j.MoveTo(min); err != nil {
			return errors.Wrapf(err, "move %s to min", j.name)
		}
	}

	a.logger.Info("self-test: homing")
	return a.HomeAll()
}

// SleepCtx waits for d or until ctx is done, whichever comes first.
func SleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
