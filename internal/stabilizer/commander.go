// Package stabilizer hands per-tick setpoints to the flight stabilization layer.
package stabilizer

import (
	"fmt"
	"sync"

	"SwarmFormation/internal/device"
	"SwarmFormation/internal/model"
	"SwarmFormation/internal/parser"
	"SwarmFormation/internal/util"
)

// SerialCommander writes setpoints as CSV lines to a flight controller link.
// Consecutive identical setpoints are still written: the controller treats
// a silent link as lost.
type SerialCommander struct {
	dev device.Device

	mu     sync.Mutex
	errors int
}

// NewSerialCommander wraps an open device.
func NewSerialCommander(dev device.Device) *SerialCommander {
	return &SerialCommander{dev: dev}
}

// OpenSerialCommander opens the flight controller serial port.
func OpenSerialCommander(dev string, baud int) (*SerialCommander, error) {
	sd, err := device.NewSerialDevice(dev, baud)
	if err != nil {
		return nil, fmt.Errorf("open commander serial failed: %w", err)
	}
	return NewSerialCommander(sd), nil
}

// SetSetpoint sends sp. Write failures are logged and counted.
func (c *SerialCommander) SetSetpoint(sp model.Setpoint) {
	if err := c.dev.WriteLine(parser.SetpointToCSV(sp)); err != nil {
		c.mu.Lock()
		c.errors++
		n := c.errors
		c.mu.Unlock()
		if n == 1 || n%100 == 0 {
			util.Error("[stabilizer] write setpoint failed (%d so far): %v", n, err)
		}
	}
}

// Errors returns the number of failed writes.
func (c *SerialCommander) Errors() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errors
}

// Close closes the link.
func (c *SerialCommander) Close() error {
	return c.dev.Close()
}

// LogCommander logs setpoint changes instead of flying. It keeps the last one.
type LogCommander struct {
	Name string

	mu   sync.Mutex
	last model.Setpoint
	n    int
}

// NewLogCommander creates a commander logging under name.
func NewLogCommander(name string) *LogCommander {
	return &LogCommander{Name: name}
}

func (c *LogCommander) SetSetpoint(sp model.Setpoint) {
	c.mu.Lock()
	changed := c.n == 0 || sp != c.last
	c.last = sp
	c.n++
	c.mu.Unlock()
	if changed {
		util.Info("[stabilizer %s] %s", c.Name, parser.SetpointToCSV(sp))
	}
}

// Last returns the most recent setpoint and how many were received.
func (c *LogCommander) Last() (model.Setpoint, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.n
}
