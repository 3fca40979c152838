// Package mearm drives a MeArm four-joint servo arm.
//
// Servos are driven either directly, over GPIO pins, a PCA9685 board or a
// Feetech serial bus, or through an I²C arm controller that owns the servos
// and exposes them as registers. Writes go through a control lease so that
// one caller at a time moves the arm.
//
// # Installation
//
//	go install github.com/gwillem/mearm/cmd/mearm@latest
//
// # Usage
//
// Write a configuration, then home the arm:
//
//	mearm init
//	mearm home
//
// Inspect or move a joint:
//
//	mearm joint wrist info
//	mearm set grip --pos 95
//
// # Packages
//
//   - cmd/mearm: CLI with home, selftest, joint, set, ports and init commands
//   - pkg/robot: calibration, joints, limits, homing and the self-test sweep
//   - pkg/actuation: GPIO, PCA9685, Feetech and in-memory servo channels
//   - pkg/regbus: I²C register protocol of the arm controller
//   - pkg/lease: exclusive control lease and its expiry monitor
//   - pkg/control: lease-checked joint access over either backend
//   - pkg/obs: logging and prometheus metrics
package mearm
