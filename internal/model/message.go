// Package model defines the shared swarm types: node ids, topology, positions,
// commands and the setpoint handed to the flight stabilizer.
package model

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// NodeID identifies one physical agent on the peer radio network.
type NodeID uint8

// BroadcastID is the reserved target meaning "all followers".
const BroadcastID NodeID = 0xFF

func (id NodeID) String() string {
	if id == BroadcastID {
		return "broadcast"
	}
	return strconv.Itoa(int(id))
}

// Topology is the fixed, ordered set of nodes taking part in the swarm.
// It is built once from configuration and never mutated.
type Topology struct {
	Leader    NodeID
	Followers []NodeID
}

// NewTopology copies followers so that the caller cannot mutate the result.
func NewTopology(leader NodeID, followers []NodeID) Topology {
	return Topology{Leader: leader, Followers: slices.Clone(followers)}
}

// Contains reports whether id is the leader or one of the followers.
func (t Topology) Contains(id NodeID) bool {
	return id == t.Leader || t.IsFollower(id)
}

// IsFollower reports whether id is a follower in this topology.
func (t Topology) IsFollower(id NodeID) bool {
	return slices.Contains(t.Followers, id)
}

// Members returns the leader followed by the followers in configured order.
func (t Topology) Members() []NodeID {
	return append([]NodeID{t.Leader}, t.Followers...)
}

// Position is a sample from the state estimator in metres and radians.
type Position struct {
	X   float32 `json:"x"`
	Y   float32 `json:"y"`
	Z   float32 `json:"z"`
	Yaw float32 `json:"yaw"`
}

// Offset is a follower's station relative to the leader within a formation shape.
type Offset struct {
	DX float64 `yaml:"dx" json:"dx"`
	DY float64 `yaml:"dy" json:"dy"`
}

// Command is a small enumerated instruction carried over the operator channel
// or the peer radio channel. Codes 1-4 match the legacy peers.
type Command int32

const (
	CmdNone Command = iota
	CmdStart
	CmdSendData
	CmdLand
	CmdSquare
	CmdRhombus
	CmdTriangle
	CmdRight
	CmdLeft
	CmdForward
	CmdBack
	CmdStop
)

var commandNames = map[Command]string{
	CmdNone:     "none",
	CmdStart:    "start",
	CmdSendData: "send_data",
	CmdLand:     "land",
	CmdSquare:   "square",
	CmdRhombus:  "rhombus",
	CmdTriangle: "triangle",
	CmdRight:    "right",
	CmdLeft:     "left",
	CmdForward:  "forward",
	CmdBack:     "back",
	CmdStop:     "stop",
}

func (c Command) String() string {
	if n, ok := commandNames[c]; ok {
		return n
	}
	return fmt.Sprintf("command(%d)", int32(c))
}

// Known reports whether c is one of the defined command codes.
func (c Command) Known() bool {
	_, ok := commandNames[c]
	return ok
}

// CommandByName resolves a command name such as "square" (case-insensitive).
func CommandByName(name string) (Command, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for c, n := range commandNames {
		if n == name {
			return c, true
		}
	}
	return CmdNone, false
}

// Shape is a named formation.
type Shape string

const (
	ShapeSquare   Shape = "square"
	ShapeRhombus  Shape = "rhombus"
	ShapeTriangle Shape = "triangle"
)

// ShapeOf maps a shape-select command to its shape.
func ShapeOf(c Command) (Shape, bool) {
	switch c {
	case CmdSquare:
		return ShapeSquare, true
	case CmdRhombus:
		return ShapeRhombus, true
	case CmdTriangle:
		return ShapeTriangle, true
	}
	return "", false
}

// CommandOf maps a shape back to the command that selects it.
func CommandOf(s Shape) Command {
	switch s {
	case ShapeSquare:
		return CmdSquare
	case ShapeRhombus:
		return CmdRhombus
	case ShapeTriangle:
		return CmdTriangle
	}
	return CmdNone
}

// AxisMode selects how the stabilizer interprets one axis of a setpoint.
type AxisMode uint8

const (
	ModeDisable AxisMode = iota
	ModeAbs
	ModeVelocity
)

// Setpoint is the target handed to the stabilization layer for one control tick.
type Setpoint struct {
	ModeX   AxisMode `json:"mode_x"`
	ModeY   AxisMode `json:"mode_y"`
	ModeZ   AxisMode `json:"mode_z"`
	ModeYaw AxisMode `json:"mode_yaw"`
	X       float64  `json:"x"`
	Y       float64  `json:"y"`
	Z       float64  `json:"z"`
	Yaw     float64  `json:"yaw"`
	VX      float64  `json:"vx"`
	VY      float64  `json:"vy"`
}

// Hover builds an absolute position setpoint.
func Hover(x, y, z, yaw float64) Setpoint {
	return Setpoint{
		ModeX: ModeAbs, ModeY: ModeAbs, ModeZ: ModeAbs, ModeYaw: ModeAbs,
		X: x, Y: y, Z: z, Yaw: yaw,
	}
}

// HoverInPlace holds the horizontal position with zero velocity and an
// absolute altitude. Yaw is a rate in this mode.
func HoverInPlace(z float64) Setpoint {
	return Setpoint{ModeX: ModeVelocity, ModeY: ModeVelocity, ModeZ: ModeAbs, ModeYaw: ModeVelocity, Z: z}
}

// IsZero reports whether s is the fail-safe zero setpoint.
func (s Setpoint) IsZero() bool { return s == Setpoint{} }

// Report is what the leader pushes to the operator console.
type Report struct {
	NodeID   NodeID   `json:"node_id"`
	State    string   `json:"state"`
	Position Position `json:"position"`
	Time     int64    `json:"time_ms"`
}
