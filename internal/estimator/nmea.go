// Package estimator supplies the node's current position: from a GNSS
// receiver over serial, or from a simulated vehicle.
package estimator

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"SwarmFormation/internal/device"
	"SwarmFormation/internal/model"
	"SwarmFormation/internal/parser"
	"SwarmFormation/internal/util"
)

// NMEA tracks the latest GGA fix and projects it into the local metric frame.
// The origin is the configured one, or the first valid fix.
type NMEA struct {
	mu     sync.RWMutex
	origin *parser.Fix
	pos    model.Position
	fixes  int
}

// NewNMEA creates an estimator. A nil origin is taken from the first fix.
func NewNMEA(origin *parser.Fix) *NMEA {
	n := &NMEA{}
	if origin != nil {
		o := *origin
		n.origin = &o
	}
	return n
}

// CurrentPosition returns the last projected fix; zero before the first one.
func (n *NMEA) CurrentPosition() model.Position {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.pos
}

// Fixes returns how many valid fixes were applied.
func (n *NMEA) Fixes() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.fixes
}

// Feed applies one NMEA sentence. Non-GGA sentences are ignored.
func (n *NMEA) Feed(line string) error {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$GPGGA") && !strings.HasPrefix(line, "$GNGGA") {
		return nil
	}
	fix, err := parser.ParseGGA(line)
	if err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.origin == nil {
		o := fix
		n.origin = &o
		util.Info("[gps] origin set to %.6f, %.6f, %.1fm", fix.Lat, fix.Lon, fix.Alt)
	}
	x, y, z := parser.LocalFrame(*n.origin, fix)
	n.pos = model.Position{X: float32(x), Y: float32(y), Z: float32(z)}
	n.fixes++
	return nil
}

// Start continuously reads sentences from dev.
// Returns a stop function that signals the reading loop to exit and closes dev.
func (n *NMEA) Start(dev device.Device) (func(), error) {
	if dev == nil {
		return nil, errors.New("gps device is nil")
	}
	stop := make(chan struct{})
	go func() {
		defer func() {
			if err := dev.Close(); err != nil {
				util.Warn("[gps] close device: %v", err)
			}
		}()
		for {
			select {
			case <-stop:
				return
			default:
			}
			line, err := dev.ReadLine(time.Second)
			if err != nil {
				if errors.Is(err, device.ErrReadTimeout) {
					continue
				}
				select {
				case <-stop:
					return
				default:
				}
				time.Sleep(200 * time.Millisecond)
				continue
			}
			if err := n.Feed(line); err != nil {
				util.Debug("[gps] skip sentence %q: %v", strings.TrimSpace(line), err)
			}
		}
	}()
	return func() { close(stop) }, nil
}

// OpenNMEA opens a serial GNSS receiver and starts reading it.
func OpenNMEA(dev string, baud int, origin *parser.Fix) (*NMEA, func(), error) {
	sd, err := device.NewSerialDevice(dev, baud)
	if err != nil {
		return nil, nil, fmt.Errorf("open gps serial failed: %w", err)
	}
	n := NewNMEA(origin)
	stop, err := n.Start(sd)
	if err != nil {
		_ = sd.Close()
		return nil, nil, err
	}
	return n, stop, nil
}
