package actuation

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/pca9685"
	"periph.io/x/host/v3"

	"github.com/gwillem/mearm/pkg/obs"
)

const (
	pcaChannels = 16
	pcaTicks    = 4096 // counter steps per PWM period
)

type pwmSetter interface {
	SetPwm(channel int, on, off gpio.Duty) error
}

// PCA9685 drives servos through a PCA9685 16-channel PWM board. Channels are
// board outputs 0-15 and units are pulse widths in microseconds.
type PCA9685 struct {
	mu     sync.Mutex
	dev    pwmSetter
	units  map[int]int
	closer func() error
	closed bool
}

// OpenPCA9685 opens the I²C bus by name ("" for the first one) and
// initializes the board at addr for 50Hz servo pulses.
func OpenPCA9685(busName string, addr uint16, logger *zap.SugaredLogger) (*PCA9685, error) {
	logger = obs.OrNop(logger)
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "init host drivers")
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, errors.Wrapf(err, "open i2c bus %q", busName)
	}
	p, err := NewPCA9685(bus, addr)
	if err != nil {
		bus.Close()
		return nil, err
	}
	p.closer = bus.Close
	logger.Infof("pca9685 at 0x%02x on %s", addr, bus)
	return p, nil
}

// NewPCA9685 initializes a board on an already opened bus.
func NewPCA9685(bus i2c.Bus, addr uint16) (*PCA9685, error) {
	dev, err := pca9685.NewI2C(bus, addr)
	if err != nil {
		return nil, errors.Wrapf(err, "pca9685 at 0x%02x", addr)
	}
	if err := dev.SetPwmFreq(servoHz * physic.Hertz); err != nil {
		return nil, errors.Wrap(err, "set pwm frequency")
	}
	return newPCA9685(dev), nil
}

func newPCA9685(dev pwmSetter) *PCA9685 {
	return &PCA9685{dev: dev, units: make(map[int]int)}
}

// pulseTicks converts a pulse width to the off count of a 50Hz period.
func pulseTicks(us int) gpio.Duty {
	return gpio.Duty(us * pcaTicks / pwmCycleLen)
}

func (p *PCA9685) Write(channel, unit int) error {
	if channel < 0 || channel >= pcaChannels {
		return &UnknownChannelError{Channel: channel}
	}
	if err := checkUnit(channel, unit); err != nil {
		return err
	}
	if unit > pwmCycleLen {
		return errors.Errorf("pca9685 %d: pulse %dµs longer than servo period", channel, unit)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if err := p.dev.SetPwm(channel, 0, pulseTicks(unit)); err != nil {
		return errors.Wrapf(err, "pca9685 channel %d", channel)
	}
	p.units[channel] = unit
	return nil
}

// Read returns the last pulse width written to channel.
func (p *PCA9685) Read(channel int) (int, error) {
	if channel < 0 || channel >= pcaChannels {
		return 0, &UnknownChannelError{Channel: channel}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, ErrClosed
	}
	return p.units[channel], nil
}

// Close turns all written outputs off and releases the bus.
func (p *PCA9685) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	var err error
	for ch, u := range p.units {
		if u == 0 {
			continue
		}
		if e := p.dev.SetPwm(ch, 0, 0); e != nil && err == nil {
			err = errors.Wrapf(e, "pca9685 channel %d off", ch)
		}
	}
	if p.closer != nil {
		if e := p.closer(); e != nil && err == nil {
			err = e
		}
	}
	return err
}
