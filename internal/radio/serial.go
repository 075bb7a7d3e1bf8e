package radio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"SwarmFormation/internal/device"
	"SwarmFormation/internal/model"
	"SwarmFormation/internal/parser"
	"SwarmFormation/internal/util"
)

// Stream preamble in front of every frame on the serial link.
const (
	sync0 byte = 0xAA
	sync1 byte = 0x55
)

// SerialLink carries frames over a radio dongle attached to a serial port.
// The dongle broadcasts every byte it is given; addressing is done here.
type SerialLink struct {
	self  model.NodeID
	port  device.Port
	inbox chan []byte

	wmu sync.Mutex

	cbMu      sync.RWMutex
	callbacks []func([]byte)

	done    chan struct{}
	closeMu sync.Once
}

// NewSerialLink starts reading frames from port.
func NewSerialLink(self model.NodeID, port device.Port, buffer int) *SerialLink {
	l := &SerialLink{
		self:  self,
		port:  port,
		inbox: make(chan []byte, buffer),
		done:  make(chan struct{}),
	}
	go l.readLoop()
	return l
}

// SelfID returns this node's id.
func (l *SerialLink) SelfID() model.NodeID { return l.self }

// Send writes the preamble and frame to the dongle.
func (l *SerialLink) Send(frame []byte) bool {
	if len(frame) < parser.HeaderSize || len(frame) > parser.MaxFrameSize {
		return false
	}
	buf := make([]byte, 0, len(frame)+2)
	buf = append(buf, sync0, sync1)
	buf = append(buf, frame...)

	l.wmu.Lock()
	defer l.wmu.Unlock()
	if _, err := l.port.Write(buf); err != nil {
		util.Warn("[radio] serial write failed: %v", err)
		return false
	}
	return true
}

// Receive waits for the next frame addressed to this node or broadcast.
func (l *SerialLink) Receive(ctx context.Context, timeout time.Duration) ([]byte, bool) {
	return receive(ctx, l.inbox, timeout)
}

// RegisterCallback adds an inbound frame observer.
func (l *SerialLink) RegisterCallback(fn func([]byte)) {
	l.cbMu.Lock()
	l.callbacks = append(l.callbacks, fn)
	l.cbMu.Unlock()
}

// Close stops the reader and closes the port.
func (l *SerialLink) Close() error {
	var err error
	l.closeMu.Do(func() {
		close(l.done)
		err = l.port.Close()
	})
	return err
}

func (l *SerialLink) readLoop() {
	r := bufio.NewReader(l.port)
	for {
		frame, err := readFrame(r)
		if err != nil {
			select {
			case <-l.done:
				return
			default:
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				util.Info("[radio] serial link closed: %v", err)
				return
			}
			util.Warn("[radio] serial read: %v", err)
			time.Sleep(200 * time.Millisecond)
			continue
		}
		target := frame[1]
		if frame[0] == byte(l.self) || (target != byte(l.self) && target != byte(model.BroadcastID)) {
			continue
		}

		l.cbMu.RLock()
		for _, cb := range l.callbacks {
			cb(frame)
		}
		l.cbMu.RUnlock()

		select {
		case l.inbox <- frame:
		default:
			util.Warn("[radio] inbox full, dropping %d byte frame from %d", len(frame), frame[0])
		}
	}
}

// readFrame scans for the preamble and returns the header and payload that follow.
func readFrame(r *bufio.Reader) ([]byte, error) {
	prev := byte(0)
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if prev == sync0 && b == sync1 {
			break
		}
		prev = b
	}
	hdr := make([]byte, parser.HeaderSize)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	frame := make([]byte, parser.HeaderSize+int(hdr[3]))
	copy(frame, hdr)
	if _, err := io.ReadFull(r, frame[parser.HeaderSize:]); err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return frame, nil
}
