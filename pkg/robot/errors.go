package robot

import "fmt"

// OutOfRangeError is returned when a position outside a joint's limits is requested.
type OutOfRangeError struct {
	Joint     JointName
	Requested float64
	Min       float64
	Max       float64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("angle %g outside of limits for %s (%g - %g)", e.Requested, e.Joint, e.Min, e.Max)
}

// InvalidLimitError is returned when a limit change would leave min/max inconsistent.
type InvalidLimitError struct {
	Joint  JointName
	Field  string // min | max
	Value  float64
	Reason string
}

func (e *InvalidLimitError) Error() string {
	return fmt.Sprintf("can not set %s limit to %g for %s: %s", e.Field, e.Value, e.Joint, e.Reason)
}

// ChannelError wraps an I/O failure on a joint's actuation channel.
type ChannelError struct {
	Joint   JointName
	Channel int
	Op      string // read | write
	Err     error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("%s channel %d for %s: %v", e.Op, e.Channel, e.Joint, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}
