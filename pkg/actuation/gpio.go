package actuation

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/stianeikeland/go-rpio/v4"
	"go.uber.org/zap"

	"github.com/gwillem/mearm/pkg/obs"
)

const (
	servoHz = 50
	// PWM clock ticks per servo period, one tick per microsecond.
	pwmCycleLen = 1_000_000 / servoHz
)

// BCM pins with a hardware PWM function, mapped to their PWM channel. Pins
// on the same PWM channel output the same signal.
var hardwarePWM = map[int]int{
	12: 0,
	18: 0,
	13: 1,
	19: 1,
}

type output interface {
	set(us int)
	stop()
}

// GPIO drives hobby servos straight from Raspberry Pi GPIO pins. Channels are
// BCM pin numbers and units are pulse widths in microseconds.
//
// The first pin claiming each hardware PWM channel is driven by the PWM
// peripheral. All other pins get a software pulse generator, which jitters
// under load.
type GPIO struct {
	mu      sync.Mutex
	outputs map[int]output
	units   map[int]int
	closer  func() error
	closed  bool
}

// OpenGPIO maps GPIO memory and prepares the given pins for servo output.
func OpenGPIO(pins []int, logger *zap.SugaredLogger) (*GPIO, error) {
	logger = obs.OrNop(logger)
	if err := rpio.Open(); err != nil {
		return nil, errors.Wrap(err, "open gpio")
	}

	hw, soft := planPins(pins)
	outputs := make(map[int]output, len(pins))
	for _, p := range hw {
		pin := rpio.Pin(p)
		pin.Mode(rpio.Pwm)
		pin.Freq(servoHz * pwmCycleLen)
		pin.DutyCycle(0, pwmCycleLen)
		outputs[p] = &hwOutput{pin: pin}
		logger.Debugf("gpio %d: hardware pwm", p)
	}
	for _, p := range soft {
		pin := rpio.Pin(p)
		pin.Output()
		pin.Low()
		outputs[p] = newSoftOutput(pin)
		logger.Debugf("gpio %d: software pwm", p)
	}

	return newGPIO(outputs, rpio.Close), nil
}

func newGPIO(outputs map[int]output, closer func() error) *GPIO {
	return &GPIO{
		outputs: outputs,
		units:   make(map[int]int, len(outputs)),
		closer:  closer,
	}
}

// planPins splits pins into those that get a hardware PWM channel and those
// that need software pulses. Duplicates are dropped.
func planPins(pins []int) (hw, soft []int) {
	seen := map[int]bool{}
	usedPWM := map[int]bool{}
	for _, p := range pins {
		if seen[p] {
			continue
		}
		seen[p] = true
		if ch, ok := hardwarePWM[p]; ok && !usedPWM[ch] {
			usedPWM[ch] = true
			hw = append(hw, p)
			continue
		}
		soft = append(soft, p)
	}
	return hw, soft
}

func (g *GPIO) Write(channel, unit int) error {
	if err := checkUnit(channel, unit); err != nil {
		return err
	}
	if unit > pwmCycleLen {
		return errors.Errorf("gpio %d: pulse %dµs longer than servo period", channel, unit)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrClosed
	}
	out, ok := g.outputs[channel]
	if !ok {
		return &UnknownChannelError{Channel: channel}
	}
	out.set(unit)
	g.units[channel] = unit
	return nil
}

// Read returns the last pulse width written; PWM registers are not read back.
func (g *GPIO) Read(channel int) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return 0, ErrClosed
	}
	if _, ok := g.outputs[channel]; !ok {
		return 0, &UnknownChannelError{Channel: channel}
	}
	return g.units[channel], nil
}

// Close stops all pulses and unmaps GPIO memory.
func (g *GPIO) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	for _, out := range g.outputs {
		out.stop()
	}
	if g.closer != nil {
		return g.closer()
	}
	return nil
}

type hwOutput struct {
	pin rpio.Pin
}

func (o *hwOutput) set(us int) {
	o.pin.DutyCycle(uint32(us), pwmCycleLen)
}

func (o *hwOutput) stop() {
	o.pin.DutyCycle(0, pwmCycleLen)
}

type softOutput struct {
	pin  rpio.Pin
	us   atomic.Int64
	quit chan struct{}
	done chan struct{}
}

func newSoftOutput(pin rpio.Pin) *softOutput {
	o := &softOutput{
		pin:  pin,
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go o.run()
	return o
}

func (o *softOutput) run() {
	defer close(o.done)
	t := time.NewTicker(time.Second / servoHz)
	defer t.Stop()
	for {
		select {
		case <-o.quit:
			o.pin.Low()
			return
		case <-t.C:
			us := o.us.Load()
			if us <= 0 {
				continue
			}
			o.pin.High()
			time.Sleep(time.Duration(us) * time.Microsecond)
			o.pin.Low()
		}
	}
}

func (o *softOutput) set(us int) {
	o.us.Store(int64(us))
}

func (o *softOutput) stop() {
	close(o.quit)
	<-o.done
}
