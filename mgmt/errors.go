package mgmt

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedFrame indicates a buffer that cannot be decoded as a
	// management frame: too short for the fixed header, or a declared
	// payload length that exceeds the buffer.
	ErrMalformedFrame = errors.New("malformed management frame")

	// ErrPayloadTooLarge indicates caller-supplied variable-length data
	// whose length cannot be represented in its length-prefix byte.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrTimeout indicates that no correlated response arrived within the
	// channel's command timeout. The channel remains usable.
	ErrTimeout = errors.New("command timed out")

	// ErrChannelClosed indicates the channel was closed while a command
	// was pending, or a send was attempted on a closed channel.
	ErrChannelClosed = errors.New("management channel closed")

	// ErrSyncFailed indicates the initial state snapshot could not be read
	// during channel construction. The channel is unusable.
	ErrSyncFailed = errors.New("controller synchronization failed")
)

// StatusError reports an explicit non-success status returned by the
// controller for a command.
type StatusError struct {
	Opcode uint16
	Status uint8
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s rejected by controller: %s (0x%02x)",
		OpcodeName(e.Opcode), StatusName(e.Status), e.Status)
}

// Is allows errors.Is to compare StatusError values by status code,
// ignoring the opcode when the target leaves it zero.
func (e *StatusError) Is(target error) bool {
	t, ok := target.(*StatusError)
	if !ok {
		return false
	}
	if t.Opcode != 0 && t.Opcode != e.Opcode {
		return false
	}
	return t.Status == e.Status
}
