//go:build linux

// Package mgmtsock opens the kernel's Bluetooth management control channel
// as a plain io.ReadWriteCloser. The management channel carries binary
// command/event frames for every controller; frame routing by controller
// index happens at a higher layer.
package mgmtsock

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// hciDevNone binds the socket to the management service itself instead of
// a single HCI device.
const hciDevNone = 0xFFFF

// Dial opens the management control channel. Requires CAP_NET_ADMIN.
//
// The descriptor is switched to non-blocking mode and handed to os.NewFile
// so it is registered with the runtime poller: Close interrupts a Read
// blocked on a quiet controller instead of leaving it stuck in the read
// syscall until the next event.
func Dial() (*os.File, error) {
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.BTPROTO_HCI)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}

	sa := &unix.SockaddrHCI{Dev: hciDevNone, Channel: unix.HCI_CHANNEL_CONTROL}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("bind control channel: %w", err)
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("set nonblock: %w", err)
	}
	return os.NewFile(uintptr(fd), "mgmt"), nil
}
