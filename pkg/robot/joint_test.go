package robot

import (
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeChannel struct {
	mu      sync.Mutex
	units   map[int]int
	writes  []int
	failErr error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{units: map[int]int{}}
}

func (f *fakeChannel) Write(channel, unit int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	f.units[channel] = unit
	f.writes = append(f.writes, unit)
	return nil
}

func (f *fakeChannel) Read(channel int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.units[channel], nil
}

func (f *fakeChannel) unit(channel int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.units[channel]
}

func (f *fakeChannel) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

const tolerance = 0.1 + 1e-9

func testJoint(t *testing.T, out ActuationChannel, cfg JointConfig) *Joint {
	t.Helper()
	require.NoError(t, cfg.Validate(Shoulder))
	return newJoint(Shoulder, cfg, DefaultCalibration(), out, zaptest.NewLogger(t).Sugar(), nil)
}

func TestJoint_MoveTo(t *testing.T) {
	out := newFakeChannel()
	j := testJoint(t, out, JointConfig{Channel: 17, Min: 50, Max: 140, Home: 90})

	pos, err := j.MoveTo(100)
	require.NoError(t, err)
	assert.InDelta(t, 100, pos, tolerance)
	assert.Equal(t, DefaultCalibration().AngleToPulse(100), out.unit(17))

	got, powered, err := j.Position()
	require.NoError(t, err)
	assert.True(t, powered)
	assert.Equal(t, pos, got)
}

func TestJoint_MoveToOutOfRange(t *testing.T) {
	out := newFakeChannel()
	j := testJoint(t, out, JointConfig{Channel: 17, Min: 50, Max: 140, Home: 90})

	_, err := j.MoveTo(90)
	require.NoError(t, err)
	before := out.unit(17)
	writes := out.writeCount()

	for _, target := range []float64{49.9, 140.1, -1, 181} {
		_, err := j.MoveTo(target)
		var oor *OutOfRangeError
		require.True(t, errors.As(err, &oor), "target %g", target)
		assert.Equal(t, target, oor.Requested)
		assert.Equal(t, 50.0, oor.Min)
		assert.Equal(t, 140.0, oor.Max)
	}

	assert.Equal(t, before, out.unit(17), "unit must not change")
	assert.Equal(t, writes, out.writeCount(), "no writes for rejected targets")
}

func TestJoint_Inversion(t *testing.T) {
	out := newFakeChannel()
	plain := newJoint(Wrist, JointConfig{Channel: 1, Min: 50, Max: 140, Home: 90}, DefaultCalibration(), out, zaptest.NewLogger(t).Sugar(), nil)
	inverted := newJoint(Shoulder, JointConfig{Channel: 2, Min: 50, Max: 140, Home: 90, Invert: true}, DefaultCalibration(), out, zaptest.NewLogger(t).Sugar(), nil)

	// inverted target a actuates as max - (a - min)
	_, err := plain.MoveTo(100)
	require.NoError(t, err)
	pos, err := inverted.MoveTo(90)
	require.NoError(t, err)

	assert.Equal(t, out.unit(1), out.unit(2))
	assert.InDelta(t, 90, pos, tolerance, "inverted joint reads back in its own frame")

	pos, err = inverted.MoveTo(50)
	require.NoError(t, err)
	assert.Equal(t, DefaultCalibration().AngleToPulse(140), out.unit(2))
	assert.InDelta(t, 50, pos, tolerance)
}

func TestJoint_Unpowered(t *testing.T) {
	out := newFakeChannel()
	j := testJoint(t, out, JointConfig{Channel: 17, Min: 50, Max: 140, Home: 90})

	_, powered, err := j.Position()
	require.NoError(t, err)
	assert.False(t, powered)

	info, err := j.Info()
	require.NoError(t, err)
	assert.False(t, info.Powered)
	assert.Equal(t, 50.0, info.Min)
	assert.Equal(t, 140.0, info.Max)
}

func TestJoint_SetLimits(t *testing.T) {
	f := func(v float64) *float64 { return &v }

	tests := []struct {
		name     string
		min, max *float64
		wantErr  string // field of InvalidLimitError, empty for success
		wantMin  float64
		wantMax  float64
	}{
		{name: "noop", wantMin: 40, wantMax: 140},
		{name: "min only", min: f(45), wantMin: 45, wantMax: 140},
		{name: "max only", max: f(150), wantMin: 40, wantMax: 150},
		{name: "both", min: f(10), max: f(20), wantMin: 10, wantMax: 20},
		{name: "min equals max", min: f(140), wantMin: 140, wantMax: 140},
		{name: "min above current max", min: f(141), wantErr: "min"},
		{name: "min above new max", min: f(100), max: f(90), wantErr: "min"},
		{name: "min negative", min: f(-1), wantErr: "min"},
		{name: "max below current min", max: f(39), wantErr: "max"},
		{name: "max above 180", max: f(180.5), wantErr: "max"},
		{name: "max ok min bad", min: f(-5), max: f(100), wantErr: "min"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := newFakeChannel()
			j := testJoint(t, out, JointConfig{Channel: 17, Min: 40, Max: 140, Home: 90})

			err := j.SetLimits(tt.min, tt.max)
			min, max := j.Limits()
			if tt.wantErr != "" {
				var ile *InvalidLimitError
				require.True(t, errors.As(err, &ile), "got %v", err)
				assert.Equal(t, tt.wantErr, ile.Field)
				assert.Equal(t, 40.0, min, "state unchanged")
				assert.Equal(t, 140.0, max, "state unchanged")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMin, min)
			assert.Equal(t, tt.wantMax, max)
			assert.Equal(t, 0, out.writeCount(), "unpowered joint is not moved")
		})
	}
}

func TestJoint_SetLimitsRepositions(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	out := newFakeChannel()
	j := testJoint(t, out, JointConfig{Channel: 17, Min: 40, Max: 140, Home: 90})

	_, err := j.MoveTo(50)
	require.NoError(t, err)

	require.NoError(t, j.SetLimits(f(60), nil))
	pos, powered, err := j.Position()
	require.NoError(t, err)
	assert.True(t, powered)
	assert.InDelta(t, 60, pos, tolerance)
	assert.Equal(t, DefaultCalibration().AngleToPulse(60), out.unit(17))

	// max below min is rejected, so move min first
	var ile *InvalidLimitError
	require.True(t, errors.As(j.SetLimits(nil, f(55)), &ile))

	require.NoError(t, j.SetLimits(f(30), f(55)))
	pos, _, err = j.Position()
	require.NoError(t, err)
	assert.InDelta(t, 55, pos, tolerance)
}

func TestJoint_SetLimitsInverted(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	out := newFakeChannel()
	j := newJoint(Base, JointConfig{Channel: 4, Min: 0, Max: 180, Home: 90, Invert: true}, DefaultCalibration(), out, zaptest.NewLogger(t).Sugar(), nil)

	// 10 in the 0-180 window is 170 physical
	_, err := j.MoveTo(10)
	require.NoError(t, err)
	assert.Equal(t, DefaultCalibration().AngleToPulse(170), out.unit(4))

	// mirrored in 0-100 the servo now sits at -70, so it goes to min
	require.NoError(t, j.SetLimits(nil, f(100)))
	assert.Equal(t, 2, out.writeCount())
	assert.Equal(t, DefaultCalibration().AngleToPulse(100), out.unit(4))

	pos, powered, err := j.Position()
	require.NoError(t, err)
	assert.True(t, powered)
	assert.InDelta(t, 0, pos, tolerance)

	min, max := j.Limits()
	assert.GreaterOrEqual(t, pos, min)
	assert.LessOrEqual(t, pos, max)
}

func TestJoint_ChannelError(t *testing.T) {
	out := newFakeChannel()
	out.failErr = errors.New("bus gone")
	j := testJoint(t, out, JointConfig{Channel: 17, Min: 50, Max: 140, Home: 90})

	_, err := j.MoveTo(90)
	var ce *ChannelError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "write", ce.Op)
	assert.Equal(t, 17, ce.Channel)
	assert.EqualError(t, ce.Err, "bus gone")
}

func TestJoint_ConcurrentMoveTo(t *testing.T) {
	out := newFakeChannel()
	j := testJoint(t, out, JointConfig{Channel: 17, Min: 0, Max: 180, Home: 90})
	cal := DefaultCalibration()
	valid := map[int]bool{cal.AngleToPulse(30): true, cal.AngleToPulse(150): true}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		target := 30.0
		if i%2 == 1 {
			target = 150
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := 0; n < 50; n++ {
				pos, err := j.MoveTo(target)
				assert.NoError(t, err)
				assert.InDelta(t, target, pos, tolerance)
			}
		}()
	}
	wg.Wait()

	out.mu.Lock()
	defer out.mu.Unlock()
	assert.Len(t, out.writes, 400)
	for _, u := range out.writes {
		assert.True(t, valid[u], "unexpected unit %d", u)
	}
}
