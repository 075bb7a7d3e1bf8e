// Package core contains the swarm runtime: the leader and follower state
// machines, the round-robin exchange scheduler, the tick loop and the
// System that wires a node from its configuration.
package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SwarmFormation/internal/model"
	"SwarmFormation/internal/parser"
	"SwarmFormation/internal/radio"
	"SwarmFormation/internal/util"
)

var (
	ErrSendFailed          = errors.New("transport send failed")
	ErrUnrecognizedCommand = errors.New("unrecognized command")
	ErrMissingReport       = errors.New("missing position report")
)

// Commander hands setpoints to the stabilization layer.
type Commander interface {
	SetSetpoint(sp model.Setpoint)
}

// Estimator supplies the node's current position.
type Estimator interface {
	CurrentPosition() model.Position
}

// State names a role state.
type State string

const (
	StateIdle     State = "idle"
	StateStandby  State = "standby"
	StateSquare   State = "square_formation"
	StateRhombus  State = "rhombus_formation"
	StateTriangle State = "triangle_formation"
	StateNudge    State = "directional_nudge"
	StateLanding  State = "landing"
	stateUnmapped State = ""
)

func formationState(s model.Shape) State {
	switch s {
	case model.ShapeSquare:
		return StateSquare
	case model.ShapeRhombus:
		return StateRhombus
	case model.ShapeTriangle:
		return StateTriangle
	}
	return stateUnmapped
}

// InFormation reports whether s is one of the formation states.
func (s State) InFormation() bool {
	return s == StateSquare || s == StateRhombus || s == StateTriangle
}

// Role is one node's state machine. Tick runs one control step: receive,
// transition, then compute the setpoint. It is called from a single loop.
type Role interface {
	ID() model.NodeID
	State() State
	Tick(ctx context.Context, now time.Time) model.Setpoint
	Counters() Counters
}

// Counters tally the recoverable errors a node has absorbed.
type Counters struct {
	DecodeErrors   int
	SendFailures   int
	Unrecognized   int
	MissingReports int
	Clamps         int
}

func (c Counters) String() string {
	return fmt.Sprintf("decode=%d send=%d unrecognized=%d missing=%d clamps=%d",
		c.DecodeErrors, c.SendFailures, c.Unrecognized, c.MissingReports, c.Clamps)
}

// node is the state shared by both roles.
type node struct {
	id       model.NodeID
	topo     model.Topology
	radio    radio.Transport
	est      Estimator
	counters Counters
	tag      string

	recvTimeout time.Duration
	idleWait    time.Duration
	maxPackets  int
	landed      bool // Idle was entered from Landing
}

func newNode(role model.Role, cfg *model.Config, tr radio.Transport, est Estimator, idleWaitMs int) node {
	idleWait := radio.WaitForever
	if idleWaitMs >= 0 {
		idleWait = time.Duration(idleWaitMs) * time.Millisecond
	}
	maxPackets := cfg.Radio.MaxPacketsPerTick
	if maxPackets <= 0 {
		maxPackets = 1
	}
	return node{
		id:          tr.SelfID(),
		topo:        cfg.Topology(),
		radio:       tr,
		est:         est,
		tag:         fmt.Sprintf("[%s %s]", role, tr.SelfID()),
		recvTimeout: time.Duration(cfg.Radio.ReceiveTimeoutMs) * time.Millisecond,
		idleWait:    idleWait,
		maxPackets:  maxPackets,
	}
}

func (n *node) ID() model.NodeID { return n.id }

// idleTimeout is how long an Idle tick may block. After a landing the
// descent setpoint has to keep flowing, so the wait stays bounded.
func (n *node) idleTimeout() time.Duration {
	if n.landed {
		return n.recvTimeout
	}
	return n.idleWait
}

func (n *node) Counters() Counters { return n.counters }

// receive drains up to maxPackets frames. Only the first receive waits.
func (n *node) receive(ctx context.Context, wait time.Duration, handle func(parser.Packet)) {
	for i := 0; i < n.maxPackets; i++ {
		frame, ok := n.radio.Receive(ctx, wait)
		if !ok {
			return
		}
		wait = 0
		pkt, err := parser.Decode(frame, &n.topo)
		if err != nil {
			n.counters.DecodeErrors++
			util.Warn("%s dropped frame: %v", n.tag, err)
			continue
		}
		handle(pkt)
	}
}

func (n *node) send(p parser.Packet) bool {
	frame, err := parser.Encode(p)
	if err != nil {
		n.counters.SendFailures++
		util.Error("%s encode %s: %v", n.tag, p.Kind, err)
		return false
	}
	if !n.radio.Send(frame) {
		n.counters.SendFailures++
		util.Warn("%s %v: %s to %s", n.tag, ErrSendFailed, p.Kind, p.Target)
		return false
	}
	return true
}

func (n *node) sendCommand(to model.NodeID, c model.Command) bool {
	return n.send(parser.NewCommand(n.id, to, c))
}

func (n *node) unrecognized(c model.Command, state State) {
	n.counters.Unrecognized++
	util.Warn("%s %v: %s in %s", n.tag, ErrUnrecognizedCommand, c, state)
}

func descent(p model.Position, alt float64) model.Setpoint {
	return model.Hover(float64(p.X), float64(p.Y), alt, 0)
}
