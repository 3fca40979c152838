package control

import (
	"context"

	"github.com/gwillem/mearm/pkg/robot"
)

// Backend drives the joints of one arm.
type Backend interface {
	// Position returns the joint angle; powered is false for an idle servo.
	Position(ctx context.Context, name robot.JointName) (pos float64, powered bool, err error)
	Limits(ctx context.Context, name robot.JointName) (min, max float64, err error)
	// MoveTo returns the position the joint reports after the move.
	MoveTo(ctx context.Context, name robot.JointName, pos float64) (float64, error)
	// SetLimits changes either or both limits; nil leaves a limit as is.
	SetLimits(ctx context.Context, name robot.JointName, min, max *float64) error
	HomeAll(ctx context.Context) error
	SelfTest(ctx context.Context, opts robot.SweepOptions) error
	Close() error
}

// ArmBackend drives a robot.Arm over an actuation channel.
type ArmBackend struct {
	arm *robot.Arm
}

func NewArmBackend(arm *robot.Arm) *ArmBackend {
	return &ArmBackend{arm: arm}
}

func (b *ArmBackend) Position(_ context.Context, name robot.JointName) (float64, bool, error) {
	j, err := b.arm.Joint(name)
	if err != nil {
		return 0, false, err
	}
	return j.Position()
}

func (b *ArmBackend) Limits(_ context.Context, name robot.JointName) (float64, float64, error) {
	j, err := b.arm.Joint(name)
	if err != nil {
		return 0, 0, err
	}
	min, max := j.Limits()
	return min, max, nil
}

func (b *ArmBackend) MoveTo(_ context.Context, name robot.JointName, pos float64) (float64, error) {
	j, err := b.arm.Joint(name)
	if err != nil {
		return 0, err
	}
	return j.MoveTo(pos)
}

func (b *ArmBackend) SetLimits(_ context.Context, name robot.JointName, min, max *float64) error {
	j, err := b.arm.Joint(name)
	if err != nil {
		return err
	}
	return j.SetLimits(min, max)
}

func (b *ArmBackend) HomeAll(context.Context) error {
	return b.arm.HomeAll()
}

func (b *ArmBackend) SelfTest(ctx context.Context, opts robot.SweepOptions) error {
	return b.arm.SelfTest(ctx, opts)
}

func (b *ArmBackend) Close() error {
	return b.arm.Close()
}
