package actuation

import (
	"context"
	"sync"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/gwillem/mearm/pkg/obs"
)

// FeetechConfig configures a Feetech STS serial servo bus.
type FeetechConfig struct {
	Port     string
	BaudRate int
	IDs      []int         // servo IDs used as channels
	Timeout  time.Duration // per bus operation, default 500ms
}

// Feetech drives Feetech STS bus servos. Channels are servo IDs and units
// are raw position ticks. A servo reads as idle until its first write, and
// writing IdleUnit releases its torque.
type Feetech struct {
	mu      sync.Mutex
	bus     *feetech.Bus
	group   *feetech.ServoGroup
	servos  map[int]*feetech.Servo
	enabled map[int]bool
	timeout time.Duration
	logger  *zap.SugaredLogger
	closed  bool
}

// OpenFeetech opens the serial bus and checks that every configured servo
// answers.
func OpenFeetech(cfg FeetechConfig, logger *zap.SugaredLogger) (*Feetech, error) {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 1_000_000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 500 * time.Millisecond
	}
	if len(cfg.IDs) == 0 {
		return nil, errors.New("no servo ids configured")
	}

	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     cfg.Port,
		BaudRate: cfg.BaudRate,
		Protocol: feetech.ProtocolSTS,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open bus %s", cfg.Port)
	}

	f := &Feetech{
		bus:     bus,
		group:   feetech.NewServoGroupByIDs(bus, cfg.IDs...),
		servos:  make(map[int]*feetech.Servo, len(cfg.IDs)),
		enabled: make(map[int]bool, len(cfg.IDs)),
		timeout: cfg.Timeout,
		logger:  obs.OrNop(logger),
	}
	for _, id := range cfg.IDs {
		f.servos[id] = feetech.NewServo(bus, id, nil)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout*time.Duration(len(cfg.IDs)+1))
	defer cancel()
	if _, err := f.group.Positions(ctx); err != nil {
		bus.Close()
		return nil, errors.Wrapf(err, "read servos %v on %s", cfg.IDs, cfg.Port)
	}

	return f, nil
}

func (f *Feetech) Write(channel, unit int) error {
	if err := checkUnit(channel, unit); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	servo, ok := f.servos[channel]
	if !ok {
		return &UnknownChannelError{Channel: channel}
	}

	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	if unit == 0 {
		if err := servo.Disable(ctx); err != nil {
			return errors.Wrapf(err, "disable servo %d", channel)
		}
		f.enabled[channel] = false
		return nil
	}

	if !f.enabled[channel] {
		if err := servo.Enable(ctx); err != nil {
			return errors.Wrapf(err, "enable servo %d", channel)
		}
		f.enabled[channel] = true
	}
	if err := f.group.SetPositions(ctx, feetech.PositionMap{channel: unit}); err != nil {
		return errors.Wrapf(err, "write servo %d", channel)
	}
	return nil
}

// Read returns the position reported by the servo, or IdleUnit while its
// torque is off.
func (f *Feetech) Read(channel int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, ErrClosed
	}
	servo, ok := f.servos[channel]
	if !ok {
		return 0, &UnknownChannelError{Channel: channel}
	}
	if !f.enabled[channel] {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()
	pos, err := servo.Position(ctx)
	if err != nil {
		return 0, errors.Wrapf(err, "read servo %d", channel)
	}
	// a live servo never reports the idle sentinel
	if pos == 0 {
		pos = 1
	}
	return pos, nil
}

// Close releases torque on all servos and closes the bus.
func (f *Feetech) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true

	ctx, cancel := context.WithTimeout(context.Background(), f.timeout*time.Duration(len(f.servos)+1))
	defer cancel()
	if err := f.group.DisableAll(ctx); err != nil {
		f.logger.Warnf("disable servos: %v", err)
	}
	return f.bus.Close()
}
