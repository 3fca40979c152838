package regbus

import (
	"math"
	"sync"

	"github.com/pkg/errors"

	"github.com/gwillem/mearm/pkg/robot"
)

// Error register bits set by the controller.
const (
	ErrDataLength    byte = 1 << 0
	ErrNoRegister    byte = 1 << 1
	ErrPosLimit      byte = 1 << 2
	ErrSubLimit      byte = 1 << 3
	ErrSubRange      byte = 1 << 4
	ErrInvalidSubVal byte = 1 << 5
)

type simJoint struct {
	pos, min, max byte
}

// simPhase is the transfer the controller expects next within one
// transaction.
type simPhase int

const (
	phaseCommand    simPhase = iota // register select or write
	phaseData                       // Receive of the selected value
	phaseStatus                     // Send of RegError
	phaseStatusData                 // Receive of the error register
)

// SimDevice emulates the arm controller firmware on a Bus. It answers only
// at its own address.
type SimDevice struct {
	mu      sync.Mutex
	addr    uint16
	joints  map[Register]*simJoint
	config  byte
	errBits byte
	inject  byte
	pending byte
	ops     int
	phase   simPhase
	// interleaved counts transfers that arrived out of transaction order.
	interleaved int
	hang        chan struct{}
}

// NewSimDevice returns a controller with joints at their home positions.
func NewSimDevice(addr uint16, joints robot.JointsConfig) *SimDevice {
	d := &SimDevice{
		addr:   addr,
		joints: make(map[Register]*simJoint),
	}
	for _, name := range robot.AllJoints() {
		reg, _ := JointRegister(name)
		cfg := joints.Get(name)
		d.joints[reg] = &simJoint{
			pos: degrees(cfg.Home),
			min: degrees(cfg.Min),
			max: degrees(cfg.Max),
		}
	}
	return d
}

func degrees(v float64) byte {
	return byte(math.Round(math.Max(0, math.Min(v, robot.MaxAngle))))
}

// Hang makes bus operations block until Resume is called.
func (d *SimDevice) Hang() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.hang == nil {
		d.hang = make(chan struct{})
	}
}

// Resume releases operations blocked by Hang.
func (d *SimDevice) Resume() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.hang != nil {
		close(d.hang)
		d.hang = nil
	}
}

// InjectError makes the controller flag bits after the next command.
func (d *SimDevice) InjectError(bits byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inject = bits
}

// Ops returns the number of bus operations seen so far.
func (d *SimDevice) Ops() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ops
}

// Interleaved returns the number of transfers that broke into another
// transaction.
func (d *SimDevice) Interleaved() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.interleaved
}

// advance moves the transaction to phase to, counting a transfer that was
// not expected in the current phase.
func (d *SimDevice) advance(from, to simPhase) {
	if d.phase != from {
		d.interleaved++
	}
	d.phase = to
}

// Joint returns the position and limits of the joint at reg.
func (d *SimDevice) Joint(reg Register) (pos, min, max byte, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	j, ok := d.joints[reg]
	if !ok {
		return 0, 0, 0, false
	}
	return j.pos, j.min, j.max, true
}

func (d *SimDevice) begin(addr uint16) error {
	d.mu.Lock()
	hang := d.hang
	d.mu.Unlock()
	if hang != nil {
		<-hang
	}
	if addr != d.addr {
		return errors.Errorf("no ack from 0x%02x", addr)
	}
	return nil
}

// Send selects a register for the next Receive.
func (d *SimDevice) Send(addr uint16, b byte) error {
	if err := d.begin(addr); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ops++

	reg := Register(b)
	if reg == RegError {
		d.advance(phaseStatus, phaseStatusData)
		d.pending = d.errBits
		d.errBits = 0
		return nil
	}
	d.advance(phaseCommand, phaseData)

	d.errBits = 0
	switch j, ok := d.joints[reg]; {
	case ok:
		d.pending = j.pos
	case reg == RegConfig:
		d.pending = d.config
	default:
		d.pending = 0
		d.errBits = ErrNoRegister
	}
	d.applyInjected()
	return nil
}

// SendFramed handles register writes, sub-value selects and sub-value writes.
func (d *SimDevice) SendFramed(addr uint16, cmd byte, data ...byte) error {
	if err := d.begin(addr); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ops++
	d.errBits = 0
	defer d.applyInjected()

	next := phaseStatus
	if len(data) == 1 && data[0]&subValueMask == subValueMask {
		next = phaseData
	}
	d.advance(phaseCommand, next)

	reg := Register(cmd)
	j, isJoint := d.joints[reg]

	switch len(data) {
	case 1:
		v := data[0]
		if v&subValueMask == subValueMask {
			if !isJoint {
				d.errBits = ErrNoRegister
				return nil
			}
			switch SubValue(v) {
			case SubMin:
				d.pending = j.min
			case SubMax:
				d.pending = j.max
			default:
				d.errBits = ErrInvalidSubVal
			}
			return nil
		}
		switch {
		case isJoint:
			if v < j.min || v > j.max {
				d.errBits = ErrPosLimit
				return nil
			}
			j.pos = v
		case reg == RegConfig:
			d.config = v
		default:
			d.errBits = ErrNoRegister
		}
	case 2:
		if !isJoint {
			d.errBits = ErrNoRegister
			return nil
		}
		sub, v := SubValue(data[0]), data[1]
		if sub != SubMin && sub != SubMax {
			d.errBits = ErrInvalidSubVal
			return nil
		}
		if float64(v) > robot.MaxAngle {
			d.errBits = ErrSubRange
			return nil
		}
		if sub == SubMin {
			if v > j.max {
				d.errBits = ErrSubLimit
				return nil
			}
			j.min = v
		} else {
			if v < j.min {
				d.errBits = ErrSubLimit
				return nil
			}
			j.max = v
		}
	default:
		d.errBits = ErrDataLength
	}
	return nil
}

// Receive returns the value selected by the last command.
func (d *SimDevice) Receive(addr uint16) (byte, error) {
	if err := d.begin(addr); err != nil {
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ops++
	switch d.phase {
	case phaseData:
		d.phase = phaseStatus
	case phaseStatusData:
		d.phase = phaseCommand
	default:
		d.interleaved++
		d.phase = phaseCommand
	}
	return d.pending, nil
}

func (d *SimDevice) applyInjected() {
	if d.inject != 0 {
		d.errBits |= d.inject
		d.inject = 0
	}
}
