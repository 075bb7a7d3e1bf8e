// Package device defines a unified interface for serial-attached peripherals:
// the radio dongle, the GNSS receiver and the flight controller link.
// It abstracts line-based reads and writes with optional timeouts, plus raw
// byte access for framed binary traffic.
package device

import (
	"io"
	"time"
)

// Device defines an abstract line-oriented device.
type Device interface {
	// ReadLine reads a single line terminated by '\n'.
	// If timeout > 0, it must return after timeout even if no data available.
	ReadLine(timeout time.Duration) (string, error)

	// WriteLine writes s followed by '\n' to the device.
	WriteLine(s string) error

	// Close closes the device and releases underlying resources.
	Close() error
}

// Port is a byte stream device, used for framed binary traffic.
type Port interface {
	io.Reader
	io.Writer
	io.Closer
}
