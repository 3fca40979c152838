package robot

// IdleUnit is the unit value a channel reports for a servo that is not being driven.
const IdleUnit = 0

// ActuationChannel drives servos by actuation unit (pulse width).
// Channel identifiers are transport addresses such as a GPIO number.
type ActuationChannel interface {
	// Write programs unit on channel.
	Write(channel, unit int) error
	// Read returns the unit currently programmed on channel, or IdleUnit.
	Read(channel int) (int, error)
}
