// Package regbus talks to the MeArm I²C controller, a microcontroller that
// owns the servos and exposes them as single byte registers.
//
// Every transaction is followed by a read of the error register, and every
// bus operation is followed by a settle delay the controller needs before it
// can answer again.
package regbus

import (
	"fmt"

	"github.com/gwillem/mearm/pkg/robot"
)

// DefaultAddress is the controller's I²C slave address.
const DefaultAddress = 42

// Register is a controller register address.
type Register byte

const (
	RegError    Register = 'e'
	RegConfig   Register = 'c'
	RegBase     Register = 'b'
	RegShoulder Register = 's'
	RegWrist    Register = 'w'
	RegGrip     Register = 'g'
)

func (r Register) String() string {
	switch r {
	case RegError:
		return "error"
	case RegConfig:
		return "config"
	case RegBase:
		return "base"
	case RegShoulder:
		return "shoulder"
	case RegWrist:
		return "wrist"
	case RegGrip:
		return "grip"
	}
	return fmt.Sprintf("0x%02x", byte(r))
}

// JointRegister returns the register holding a joint's position.
func JointRegister(name robot.JointName) (Register, bool) {
	switch name {
	case robot.Base:
		return RegBase, true
	case robot.Shoulder:
		return RegShoulder, true
	case robot.Wrist:
		return RegWrist, true
	case robot.Grip:
		return RegGrip, true
	}
	return 0, false
}

// SubValue selects a secondary value of a joint register. Sub-value
// indicators have both top bits set, which no position can have.
type SubValue byte

const (
	SubMin SubValue = 0b11000001
	SubMax SubValue = 0b11000010

	subValueMask = 0b11000000
)

func (s SubValue) String() string {
	switch s {
	case SubMin:
		return "min"
	case SubMax:
		return "max"
	}
	return fmt.Sprintf("0x%02x", byte(s))
}

// ParseSubValue maps "min" and "max" to their indicators.
func ParseSubValue(which string) (SubValue, error) {
	switch which {
	case "min":
		return SubMin, nil
	case "max":
		return SubMax, nil
	}
	return 0, &InvalidArgumentError{
		Arg:    "which",
		Value:  which,
		Reason: "should be 'min' or 'max' only",
	}
}
