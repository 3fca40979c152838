package regbus

import (
	"sync"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// Bus is a two-wire bus carrying single byte transfers.
type Bus interface {
	// Send writes one byte to the device at addr.
	Send(addr uint16, b byte) error
	// SendFramed writes cmd followed by data in one transfer.
	SendFramed(addr uint16, cmd byte, data ...byte) error
	// Receive reads one byte from the device at addr.
	Receive(addr uint16) (byte, error)
}

// I2CBus is a Bus over a periph.io I²C bus.
type I2CBus struct {
	mu  sync.Mutex
	bus i2c.Bus
	// closer is nil when the bus is owned by the caller.
	closer func() error
}

// OpenI2C opens the named I²C bus, or the first available one when name is
// empty.
func OpenI2C(name string) (*I2CBus, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "init host drivers")
	}
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, errors.Wrapf(err, "open i2c bus %q", name)
	}
	return &I2CBus{bus: bus, closer: bus.Close}, nil
}

// NewI2CBus wraps an already opened bus.
func NewI2CBus(bus i2c.Bus) *I2CBus {
	return &I2CBus{bus: bus}
}

func (b *I2CBus) Send(addr uint16, v byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bus.Tx(addr, []byte{v}, nil)
}

func (b *I2CBus) SendFramed(addr uint16, cmd byte, data ...byte) error {
	w := make([]byte, 0, len(data)+1)
	w = append(w, cmd)
	w = append(w, data...)

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bus.Tx(addr, w, nil)
}

func (b *I2CBus) Receive(addr uint16) (byte, error) {
	r := make([]byte, 1)

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.bus.Tx(addr, nil, r); err != nil {
		return 0, err
	}
	return r[0], nil
}

// Close closes the bus if OpenI2C opened it.
func (b *I2CBus) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer()
}

func (b *I2CBus) String() string {
	return b.bus.String()
}
