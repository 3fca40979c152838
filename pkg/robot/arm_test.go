package robot

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testArm(t *testing.T, out ActuationChannel) *Arm {
	t.Helper()
	cfg := DefaultConfig().Arm()
	cfg.HomeOnStart = false
	arm, err := NewArm(out, cfg, WithLogger(zaptest.NewLogger(t).Sugar()))
	require.NoError(t, err)
	return arm
}

func TestNewArm_HomeOnStart(t *testing.T) {
	out := newFakeChannel()
	cfg := DefaultConfig().Arm()
	require.True(t, cfg.HomeOnStart)

	arm, err := NewArm(out, cfg)
	require.NoError(t, err)

	for _, j := range arm.Joints() {
		pos, powered, err := j.Position()
		require.NoError(t, err)
		assert.True(t, powered, j.Name())
		assert.InDelta(t, 90, pos, tolerance, j.Name())
	}
}

func TestNewArm_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig().Arm()
	cfg.Joints.Grip.Home = 120

	_, err := NewArm(newFakeChannel(), cfg)
	assert.ErrorContains(t, err, "grip: home (120) outside of limits")
}

func TestArm_Joint(t *testing.T) {
	arm := testArm(t, newFakeChannel())

	names := []JointName{}
	for _, j := range arm.Joints() {
		names = append(names, j.Name())
	}
	assert.Equal(t, AllJoints(), names)

	j, err := arm.Joint(Wrist)
	require.NoError(t, err)
	assert.Equal(t, Wrist, j.Name())

	_, err = arm.Joint("elbow")
	assert.Error(t, err)
}

func TestArm_HomeAllContinuesPastFailure(t *testing.T) {
	out := newFakeChannel()
	arm := testArm(t, out)

	// Pull shoulder's window away from its home angle.
	sh, err := arm.Joint(Shoulder)
	require.NoError(t, err)
	lo, hi := 100.0, 140.0
	require.NoError(t, sh.SetLimits(&lo, &hi))

	err = arm.HomeAll()
	var oor *OutOfRangeError
	require.True(t, errors.As(err, &oor))
	assert.Equal(t, Shoulder, oor.Joint)

	for _, name := range []JointName{Base, Wrist, Grip} {
		j, _ := arm.Joint(name)
		pos, powered, err := j.Position()
		require.NoError(t, err)
		assert.True(t, powered, name)
		assert.InDelta(t, 90, pos, tolerance, name)
	}
}

type closingChannel struct {
	*fakeChannel
	closed bool
}

func (c *closingChannel) Close() error {
	c.closed = true
	return nil
}

func TestArm_Close(t *testing.T) {
	out := &closingChannel{fakeChannel: newFakeChannel()}
	arm := testArm(t, out)
	require.NoError(t, arm.Close())
	assert.True(t, out.closed)

	// channels without Close are fine
	require.NoError(t, testArm(t, newFakeChannel()).Close())
}

func TestArm_SelfTest(t *testing.T) {
	out := newFakeChannel()
	arm := testArm(t, out)

	var steps []SweepStep
	err := arm.SelfTest(context.Background(), SweepOptions{
		Step:   0.5,
		Report: func(s SweepStep) { steps = append(steps, s) },
	})
	require.NoError(t, err)

	// 0.5 .. 180 and back down to 0
	require.Len(t, steps, 720)
	assert.Equal(t, 0.5, steps[0].Angle)
	assert.Equal(t, 180.0, steps[359].Angle)
	assert.Equal(t, 0.0, steps[719].Angle)

	// grip only moves inside 80-100
	at90 := steps[179]
	assert.Equal(t, 90.0, at90.Angle)
	assert.Len(t, at90.Positions, 4)
	assert.NotContains(t, steps[0].Positions, Grip)
	assert.Contains(t, steps[0].Positions, Base)
	assert.NotContains(t, steps[0].Positions, Shoulder)

	for _, j := range arm.Joints() {
		pos, _, err := j.Position()
		require.NoError(t, err)
		assert.InDelta(t, 90, pos, tolerance, "%s homed after self-test", j.Name())
	}
}

func TestArm_SelfTestCancel(t *testing.T) {
	arm := testArm(t, newFakeChannel())

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := arm.SelfTest(ctx, SweepOptions{
		Step: 10,
		Report: func(SweepStep) {
			calls++
			if calls == 3 {
				cancel()
			}
		},
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, calls)
}

func TestSleepCtx(t *testing.T) {
	assert.NoError(t, SleepCtx(context.Background(), 0))
	assert.NoError(t, SleepCtx(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, SleepCtx(ctx, time.Hour), context.Canceled)
	assert.ErrorIs(t, SleepCtx(ctx, 0), context.Canceled)
}

func TestConfig_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultConfigFile)

	cfg := DefaultConfig()
	cfg.Transport = TransportI2C
	cfg.Joints.Wrist.Min = 60
	require.NoError(t, cfg.SaveTo(path))
	assert.True(t, ConfigExists(path))

	loaded, err := LoadConfigFrom(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestConfig_ValidateFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"joints": {
			"base":     {"channel": 0, "min": 0,  "max": 180, "home": 90, "invert": true},
			"shoulder": {"channel": 1, "min": 50, "max": 140, "home": 90},
			"wrist":    {"channel": 2, "min": 50, "max": 140, "home": 90},
			"grip":     {"channel": 3, "min": 80, "max": 100, "home": 90}
		}
	}`), 0644))

	cfg, err := LoadConfigFrom(path)
	require.NoError(t, err)
	assert.Equal(t, TransportGPIO, cfg.Transport)
	assert.Equal(t, DefaultCalibration(), cfg.Calibration)
	assert.Equal(t, uint16(42), cfg.Bus.Address)
	assert.Equal(t, 60, cfg.Lease.DurationSeconds)
	assert.Equal(t, 3, cfg.Joints.Grip.Channel)
}

func TestConfig_ValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"transport", func(c *Config) { c.Transport = "can" }, `unknown transport "can"`},
		{"max above 180", func(c *Config) { c.Joints.Wrist.Max = 200 }, "wrist: limits must be within 0-180"},
		{"min greater than max", func(c *Config) { c.Joints.Grip.Min = 100; c.Joints.Grip.Max = 90; c.Joints.Grip.Home = 95 }, "grip: min (100) is greater than max (90)"},
		{"calibration", func(c *Config) { c.Calibration.PulseMax = 100 }, "calibration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}
