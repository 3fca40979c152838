package regbus

// ErrorCode describes one bit of the controller's error register.
type ErrorCode struct {
	Bit     byte
	Code    string
	Message string
}

// errorCodes is ordered by bit; the lowest set bit decides the error.
var errorCodes = []ErrorCode{
	{Bit: 1 << 0, Code: "eDLen", Message: "Data length - too much or too little data"},
	{Bit: 1 << 1, Code: "eNoReg", Message: "Invalid register error"},
	{Bit: 1 << 2, Code: "ePLimit", Message: "Position to set is out of position limits"},
	{Bit: 1 << 3, Code: "eSVLimit", Message: "Sub value is out of min/max limits"},
	{Bit: 1 << 4, Code: "eSVRange", Message: "Sub value is out of allowed range"},
	{Bit: 1 << 5, Code: "eInvSubVal", Message: "Invalid sub-value indicator"},
}

var unknownCode = ErrorCode{Code: "eUnknown", Message: "Unknown controller error"}

// Status is a decoded error register value.
type Status struct {
	Raw byte
}

// OK reports whether the controller flagged no error.
func (s Status) OK() bool {
	return s.Raw == 0
}

// Code returns the error the status stands for. It is only meaningful when
// the status is not OK.
func (s Status) Code() ErrorCode {
	for _, c := range errorCodes {
		if s.Raw&c.Bit != 0 {
			return c
		}
	}
	u := unknownCode
	u.Bit = s.Raw
	return u
}

// Err returns nil for an OK status and a *DeviceError otherwise.
func (s Status) Err() error {
	if s.OK() {
		return nil
	}
	c := s.Code()
	return &DeviceError{Code: c.Code, Message: c.Message, Raw: s.Raw}
}
