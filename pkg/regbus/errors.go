package regbus

import (
	"fmt"
	"time"
)

// TransportError is a failed bus transaction. Err is a *DeviceError when the
// controller flagged the transaction, or the underlying bus error.
type TransportError struct {
	Op       string
	Register Register
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Register, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DeviceError is an error reported through the controller's error register.
type DeviceError struct {
	Code    string
	Message string
	Raw     byte
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// TransportTimeoutError is returned when a transaction did not complete
// within the client's timeout, either waiting for the bus or on it.
type TransportTimeoutError struct {
	Op       string
	Register Register
	After    time.Duration
}

func (e *TransportTimeoutError) Error() string {
	return fmt.Sprintf("%s %s: timed out after %s", e.Op, e.Register, e.After)
}

// Timeout marks the error as a timeout for net.Error style checks.
func (e *TransportTimeoutError) Timeout() bool {
	return true
}

// InvalidArgumentError is returned for arguments rejected before any bus
// traffic.
type InvalidArgumentError struct {
	Arg    string
	Value  any
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Arg, e.Value, e.Reason)
}
