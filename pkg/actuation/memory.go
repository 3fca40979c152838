// Package actuation implements robot.ActuationChannel for the supported
// servo drivers: Raspberry Pi GPIO, a PCA9685 PWM board and a Feetech serial
// servo bus. Memory is an in-process channel for simulation and tests.
package actuation

import (
	"sync"

	"github.com/gwillem/mearm/pkg/robot"
)

var (
	_ robot.ActuationChannel = (*Memory)(nil)
	_ robot.ActuationChannel = (*GPIO)(nil)
	_ robot.ActuationChannel = (*PCA9685)(nil)
	_ robot.ActuationChannel = (*Feetech)(nil)
)

// Memory keeps units in a map. Unwritten channels read as idle.
type Memory struct {
	mu    sync.Mutex
	units map[int]int
}

func NewMemory() *Memory {
	return &Memory{units: make(map[int]int)}
}

func (m *Memory) Write(channel, unit int) error {
	if err := checkUnit(channel, unit); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.units[channel] = unit
	return nil
}

func (m *Memory) Read(channel int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.units[channel], nil
}

// Snapshot returns a copy of all programmed units.
func (m *Memory) Snapshot() map[int]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int]int, len(m.units))
	for ch, u := range m.units {
		out[ch] = u
	}
	return out
}
