package robot

import (
	"math"

	"github.com/pkg/errors"
)

// Default pulse widths (µs) for the 9g hobby servos the arm ships with.
const (
	DefaultPulseMin      = 550
	DefaultPulseMax      = 2500
	DefaultPrecisionBias = 0.05

	// MaxAngle is the full travel of a joint servo in degrees.
	MaxAngle = 180.0
)

// Calibration maps joint angles to actuation units (pulse widths) and back.
// PulseMin and PulseMax are the units for 0° and 180°.
type Calibration struct {
	PulseMin int `json:"pulse_min"`
	PulseMax int `json:"pulse_max"`

	// PrecisionBias is added to converted angles before rounding. The servos
	// do not reach a true 180° over their pulse range, so reading back an
	// angle is slightly low without it.
	PrecisionBias float64 `json:"precision_bias"`
}

// DefaultCalibration returns the calibration for the stock servos.
func DefaultCalibration() Calibration {
	return Calibration{
		PulseMin:      DefaultPulseMin,
		PulseMax:      DefaultPulseMax,
		PrecisionBias: DefaultPrecisionBias,
	}
}

// Validate checks that the pulse range is usable.
func (c Calibration) Validate() error {
	if c.PulseMin < 0 {
		return errors.Errorf("pulse_min must be >= 0, got %d", c.PulseMin)
	}
	if c.PulseMax <= c.PulseMin {
		return errors.Errorf("pulse_max (%d) must be greater than pulse_min (%d)", c.PulseMax, c.PulseMin)
	}
	return nil
}

// UnitsPerDegree returns the pulse width change for one degree of travel.
func (c Calibration) UnitsPerDegree() float64 {
	return float64(c.PulseMax-c.PulseMin) / MaxAngle
}

// AngleToPulse converts an angle in degrees to a pulse width.
// The result is truncated, not rounded.
func (c Calibration) AngleToPulse(angle float64) int {
	return int(angle*c.UnitsPerDegree() + float64(c.PulseMin))
}

// PulseToAngle converts a pulse width to an angle rounded to 0.1°.
func (c Calibration) PulseToAngle(pulse int) float64 {
	deg := float64(pulse-c.PulseMin) / c.UnitsPerDegree()
	return roundTenth(deg + c.PrecisionBias)
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
