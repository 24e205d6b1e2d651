//go:build !linux

package mgmtsock

import (
	"errors"
	"io"
)

// ErrUnsupported reports that the management control channel only exists
// on Linux.
var ErrUnsupported = errors.New("mgmtsock: management channel requires linux")

// Dial fails on non-Linux platforms; inject a transport instead.
func Dial() (io.ReadWriteCloser, error) {
	return nil, ErrUnsupported
}
