package actuation

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrClosed is returned by channels used after Close.
var ErrClosed = errors.New("actuation channel closed")

// UnknownChannelError is returned for a channel the driver was not opened with.
type UnknownChannelError struct {
	Channel int
}

func (e *UnknownChannelError) Error() string {
	return fmt.Sprintf("unknown channel %d", e.Channel)
}

func checkUnit(channel, unit int) error {
	if unit < 0 {
		return errors.Errorf("channel %d: negative unit %d", channel, unit)
	}
	return nil
}
