// Package parser converts swarm messages to their wire formats and back.
//
// Peer radio frame (bit-exact, little-endian payload):
//
//	SOURCE u8 | TARGET u8 | KIND u8 | LENGTH u8 | PAYLOAD[LENGTH]
//
// Position payloads carry three float32 (x, y, z). Command payloads carry one
// int32; peers running the older firmware send a single byte instead.
package parser

import (
	"SwarmFormation/internal/model"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Kind identifies the payload carried by a frame.
type Kind uint8

const (
	KindCommand           Kind = 1
	KindPositionReport    Kind = 2 // follower -> leader
	KindPositionBroadcast Kind = 3 // leader -> followers
)

func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindPositionReport:
		return "position-report"
	case KindPositionBroadcast:
		return "position-broadcast"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Wire sizes.
const (
	HeaderSize        = 4
	PositionSize      = 12
	CommandSize       = 4
	LegacyCommandSize = 1
	MaxFrameSize      = HeaderSize + 255
)

var (
	ErrShortFrame            = errors.New("frame shorter than header")
	ErrUnknownKind           = errors.New("unknown payload kind")
	ErrLengthMismatch        = errors.New("payload length mismatch")
	ErrUnknownTargetOrSource = errors.New("source or target outside topology")
)

// DecodeError describes a rejected frame. It unwraps to one of the sentinels above.
type DecodeError struct {
	Err    error
	Kind   Kind
	Length int
	Source model.NodeID
	Target model.NodeID
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s frame (%d bytes, %s->%s): %v", e.Kind, e.Length, e.Source, e.Target, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Packet is one decoded radio frame.
type Packet struct {
	Source   model.NodeID
	Target   model.NodeID
	Kind     Kind
	Command  model.Command  // KindCommand only
	Position model.Position // position kinds only; Yaw is not carried
	Legacy   bool           // command travelled in the single-byte encoding
}

// NewCommand builds a command packet.
func NewCommand(src, dst model.NodeID, c model.Command) Packet {
	return Packet{Source: src, Target: dst, Kind: KindCommand, Command: c}
}

// NewPosition builds a position report or broadcast packet.
func NewPosition(kind Kind, src, dst model.NodeID, p model.Position) Packet {
	p.Yaw = 0
	return Packet{Source: src, Target: dst, Kind: kind, Position: p}
}

// PayloadSize returns the encoded body length of p.
func (p Packet) PayloadSize() (int, error) {
	switch p.Kind {
	case KindCommand:
		if p.Legacy {
			return LegacyCommandSize, nil
		}
		return CommandSize, nil
	case KindPositionReport, KindPositionBroadcast:
		return PositionSize, nil
	}
	return 0, ErrUnknownKind
}

// Encode serializes p into a radio frame.
func Encode(p Packet) ([]byte, error) {
	n, err := p.PayloadSize()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, HeaderSize+n)
	buf[0] = byte(p.Source)
	buf[1] = byte(p.Target)
	buf[2] = byte(p.Kind)
	buf[3] = byte(n)
	body := buf[HeaderSize:]
	switch p.Kind {
	case KindCommand:
		if p.Legacy {
			if p.Command < 0 || p.Command > math.MaxUint8 {
				return nil, fmt.Errorf("command %d does not fit the legacy encoding", int32(p.Command))
			}
			body[0] = byte(p.Command)
		} else {
			binary.LittleEndian.PutUint32(body, uint32(p.Command))
		}
	default:
		binary.LittleEndian.PutUint32(body[0:], math.Float32bits(p.Position.X))
		binary.LittleEndian.PutUint32(body[4:], math.Float32bits(p.Position.Y))
		binary.LittleEndian.PutUint32(body[8:], math.Float32bits(p.Position.Z))
	}
	return buf, nil
}

// Decode parses a radio frame. When topo is non-nil the source must be a
// member and the target a member or the broadcast id.
func Decode(frame []byte, topo *model.Topology) (Packet, error) {
	if len(frame) < HeaderSize {
		return Packet{}, &DecodeError{Err: ErrShortFrame, Length: len(frame)}
	}
	p := Packet{
		Source: model.NodeID(frame[0]),
		Target: model.NodeID(frame[1]),
		Kind:   Kind(frame[2]),
	}
	body := frame[HeaderSize:]
	fail := func(err error) (Packet, error) {
		return Packet{}, &DecodeError{Err: err, Kind: p.Kind, Length: len(body), Source: p.Source, Target: p.Target}
	}
	if int(frame[3]) != len(body) {
		return fail(ErrLengthMismatch)
	}

	switch p.Kind {
	case KindCommand:
		switch len(body) {
		case CommandSize:
			p.Command = model.Command(int32(binary.LittleEndian.Uint32(body)))
		case LegacyCommandSize:
			p.Command = model.Command(body[0])
			p.Legacy = true
		default:
			return fail(ErrLengthMismatch)
		}
	case KindPositionReport, KindPositionBroadcast:
		if len(body) != PositionSize {
			return fail(ErrLengthMismatch)
		}
		p.Position = model.Position{
			X: math.Float32frombits(binary.LittleEndian.Uint32(body[0:])),
			Y: math.Float32frombits(binary.LittleEndian.Uint32(body[4:])),
			Z: math.Float32frombits(binary.LittleEndian.Uint32(body[8:])),
		}
	default:
		return fail(ErrUnknownKind)
	}

	if topo != nil {
		if !topo.Contains(p.Source) || (p.Target != model.BroadcastID && !topo.Contains(p.Target)) {
			return fail(ErrUnknownTargetOrSource)
		}
	}
	return p, nil
}

// Target peeks at the target byte without decoding the payload.
func Target(frame []byte) (model.NodeID, bool) {
	if len(frame) < HeaderSize {
		return 0, false
	}
	return model.NodeID(frame[1]), true
}
