// Package device implements SerialDevice using go.bug.st/serial,
// which provides real serial communication support for radios and sensors.
package device

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	serial "go.bug.st/serial"
)

// ErrReadTimeout is returned by ReadLine when no full line arrived in time.
var ErrReadTimeout = errors.New("read timeout")

type lineResult struct {
	line string
	err  error
}

// SerialDevice implements Device and Port on top of any byte stream,
// normally a go.bug.st/serial port.
type SerialDevice struct {
	mu      sync.Mutex
	port    io.ReadWriteCloser
	r       *bufio.Reader
	pending chan lineResult
}

// NewSerialDevice creates and opens a serial device with the given path and baudrate.
func NewSerialDevice(dev string, baud int) (*SerialDevice, error) {
	p, err := serial.Open(dev, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial %s: %w", dev, err)
	}
	return &SerialDevice{port: p, r: bufio.NewReader(p)}, nil
}

// NewStreamDevice wraps an already open stream such as a pipe or pty.
func NewStreamDevice(rwc io.ReadWriteCloser) *SerialDevice {
	return &SerialDevice{port: rwc, r: bufio.NewReader(rwc)}
}

// Close closes the underlying serial connection.
func (s *SerialDevice) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}

// ReadLine reads a single line from the serial port, blocking until newline or timeout.
// A line that arrives after a timeout is returned by the next call, not lost.
func (s *SerialDevice) ReadLine(timeout time.Duration) (string, error) {
	s.mu.Lock()
	if s.port == nil {
		s.mu.Unlock()
		return "", errors.New("serial port not open")
	}
	ch := s.pending
	if ch == nil {
		ch = make(chan lineResult, 1)
		s.pending = ch
		r := s.r
		go func() {
			line, err := r.ReadString('\n')
			ch <- lineResult{line, err}
		}()
	}
	s.mu.Unlock()

	var res lineResult
	if timeout <= 0 {
		res = <-ch
	} else {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case res = <-ch:
		case <-timer.C:
			return "", ErrReadTimeout
		}
	}

	s.mu.Lock()
	if s.pending == ch {
		s.pending = nil
	}
	s.mu.Unlock()
	return res.line, res.err
}

// WriteLine writes a single line followed by '\n' to the serial port.
func (s *SerialDevice) WriteLine(line string) error {
	_, err := s.Write(append([]byte(line), '\n'))
	return err
}

// Read reads raw bytes. It must not be mixed with ReadLine on the same device.
func (s *SerialDevice) Read(p []byte) (int, error) {
	s.mu.Lock()
	r := s.r
	s.mu.Unlock()
	if r == nil {
		return 0, errors.New("serial port not open")
	}
	return r.Read(p)
}

// Write writes raw bytes to the port.
func (s *SerialDevice) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return 0, errors.New("serial port not open")
	}
	return s.port.Write(p)
}
