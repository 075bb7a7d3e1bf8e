// Package model defines shared configuration structures used to initialize a swarm node.
package model

import (
	"errors"
	"fmt"
	"time"
)

// Role is the part a node plays in the swarm.
type Role string

const (
	RoleLeader   Role = "leader"
	RoleFollower Role = "follower"
)

// Config represents the root structure loaded from configs/swarm.yml.
type Config struct {
	Swarm      SwarmConfig                 `yaml:"swarm"`
	Node       NodeConfig                  `yaml:"node"`
	Radio      RadioConfig                 `yaml:"radio"`
	Operator   OperatorConfig              `yaml:"operator"`
	Estimator  EstimatorConfig             `yaml:"estimator"`
	Commander  CommanderConfig             `yaml:"commander"`
	Controller ControllerConfig            `yaml:"controller"`
	Leader     LeaderConfig                `yaml:"leader"`
	Follower   FollowerConfig              `yaml:"follower"`
	Formations map[Shape]map[NodeID]Offset `yaml:"formations"`
	Recorder   RecorderConfig              `yaml:"recorder"`
	Simulation SimulationConfig            `yaml:"simulation"`
}

// SwarmConfig defines the topology shared by every node.
type SwarmConfig struct {
	Leader    NodeID   `yaml:"leader"`
	Followers []NodeID `yaml:"followers"`
	// MinSeparation is the closest two stations of a shape may be, in metres.
	MinSeparation float64 `yaml:"min_separation"`
}

// NodeConfig identifies this process.
type NodeConfig struct {
	ID     NodeID `yaml:"id"`
	Role   Role   `yaml:"role"`
	TickMs int    `yaml:"tick_ms"` // control loop period
}

// RadioConfig selects the peer transport.
type RadioConfig struct {
	Kind   string `yaml:"kind"` // serial | memory
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
	// ReceiveTimeoutMs bounds every receive outside Idle.
	ReceiveTimeoutMs int `yaml:"receive_timeout_ms"`
	// MaxPacketsPerTick caps how many frames one tick drains.
	MaxPacketsPerTick int `yaml:"max_packets_per_tick"`
}

// OperatorConfig configures the leader's control channel.
type OperatorConfig struct {
	Addr string `yaml:"addr"` // websocket console address, e.g. ":8000"
}

// EstimatorConfig selects the position source.
type EstimatorConfig struct {
	Kind      string  `yaml:"kind"` // nmea | sim
	Device    string  `yaml:"device"`
	Baud      int     `yaml:"baud"`
	OriginLat float64 `yaml:"origin_lat"` // local frame origin; first fix when zero
	OriginLon float64 `yaml:"origin_lon"`
}

// CommanderConfig selects where setpoints go.
type CommanderConfig struct {
	Kind   string `yaml:"kind"` // serial | log | sim
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
}

// ControllerConfig holds the relative position PID gains and guards.
type ControllerConfig struct {
	Kp             float64 `yaml:"kp"`
	Ki             float64 `yaml:"ki"`
	Kd             float64 `yaml:"kd"`
	LegacyIntegral bool    `yaml:"legacy_integral"`
	IntegralLimit  float64 `yaml:"integral_limit"`
	Bound          float64 `yaml:"bound"` // metres per axis
}

// LeaderConfig tunes the leader role.
type LeaderConfig struct {
	HoverAltitude   float64 `yaml:"hover_altitude"`
	LandingAltitude float64 `yaml:"landing_altitude"`
	BroadcastEvery  int     `yaml:"broadcast_every"` // ticks between position broadcasts
	AwaitTicks      int     `yaml:"await_ticks"`     // ticks to wait for a polled report
	MaxPolls        int     `yaml:"max_polls"`       // polls of one follower before moving on
	NudgeSpeed      float64 `yaml:"nudge_speed"`     // m/s while a directional nudge is active
	IdleWaitMs      int     `yaml:"idle_wait_ms"`    // negative waits forever
}

// FollowerConfig tunes the follower role.
type FollowerConfig struct {
	HoverAltitude   float64 `yaml:"hover_altitude"`
	LandingAltitude float64 `yaml:"landing_altitude"`
	IdleWaitMs      int     `yaml:"idle_wait_ms"` // negative waits forever
}

// RecorderConfig enables the bbolt flight log when Path is set.
type RecorderConfig struct {
	Path string `yaml:"path"`
}

// SimulationConfig tunes the in-process swarm used by `swarm simulate`.
type SimulationConfig struct {
	Ticks    int     `yaml:"ticks"`
	DropRate float64 `yaml:"drop_rate"`
	Response float64 `yaml:"response"` // first-order vehicle response, 1/s
}

// Tick returns the control loop period.
func (c *Config) Tick() time.Duration {
	return time.Duration(c.Node.TickMs) * time.Millisecond
}

// Topology builds the immutable topology value.
func (c *Config) Topology() Topology {
	return NewTopology(c.Swarm.Leader, c.Swarm.Followers)
}

// DefaultConfig returns the values flown with the reference swarm
// (leader 231, followers 232, 230, 233).
func DefaultConfig() Config {
	return Config{
		Swarm: SwarmConfig{Leader: 231, Followers: []NodeID{232, 230, 233}, MinSeparation: 0.1},
		Node:  NodeConfig{ID: 231, Role: RoleLeader, TickMs: 10},
		Radio: RadioConfig{Kind: "memory", Baud: 115200, ReceiveTimeoutMs: 2, MaxPacketsPerTick: 8},
		Operator: OperatorConfig{
			Addr: ":8000",
		},
		Estimator:  EstimatorConfig{Kind: "sim", Baud: 9600},
		Commander:  CommanderConfig{Kind: "log", Baud: 115200},
		Controller: ControllerConfig{Kp: 0.9, Ki: 0.5, Kd: 0.01, IntegralLimit: 1.0, Bound: 10},
		Leader: LeaderConfig{
			HoverAltitude: 0.5, LandingAltitude: 0.1,
			BroadcastEvery: 5, AwaitTicks: 10, MaxPolls: 3, NudgeSpeed: 0.1,
			IdleWaitMs: -1,
		},
		Follower:   FollowerConfig{HoverAltitude: 0.5, LandingAltitude: 0.1, IdleWaitMs: -1},
		Formations: DefaultFormations(),
		Simulation: SimulationConfig{Ticks: 2000, Response: 4},
	}
}

// DefaultFormations is the station table for the reference swarm.
func DefaultFormations() map[Shape]map[NodeID]Offset {
	return map[Shape]map[NodeID]Offset{
		ShapeSquare: {
			232: {DX: 0.2, DY: 0.0},
			230: {DX: 0.0, DY: -0.2},
			233: {DX: 0.2, DY: -0.2},
		},
		ShapeRhombus: {
			232: {DX: 0.15, DY: -0.15},
			230: {DX: -0.15, DY: -0.15},
			233: {DX: 0.0, DY: -0.3},
		},
		ShapeTriangle: {
			232: {DX: -0.2, DY: 0.2},
			230: {DX: -0.2, DY: -0.2},
			233: {DX: -0.2, DY: 0.0},
		},
	}
}

// Validate checks the invariants the protocol relies on.
func (c *Config) Validate() error {
	var errs []error
	if c.Swarm.Leader == BroadcastID {
		errs = append(errs, errors.New("swarm.leader must not be the broadcast id"))
	}
	if len(c.Swarm.Followers) > 20 {
		errs = append(errs, fmt.Errorf("swarm.followers: %d nodes exceeds the 20 node network limit", len(c.Swarm.Followers)))
	}
	seen := map[NodeID]bool{}
	for i, id := range c.Topology().Members() {
		if i > 0 && id == BroadcastID {
			errs = append(errs, errors.New("swarm.followers must not contain the broadcast id"))
		}
		if seen[id] {
			errs = append(errs, fmt.Errorf("swarm.followers: duplicate node id %d", id))
		}
		seen[id] = true
	}
	switch c.Node.Role {
	case RoleLeader:
		if c.Node.ID != c.Swarm.Leader {
			errs = append(errs, fmt.Errorf("node.id %d is not the swarm leader %d", c.Node.ID, c.Swarm.Leader))
		}
	case RoleFollower:
		if !c.Topology().IsFollower(c.Node.ID) {
			errs = append(errs, fmt.Errorf("node.id %d is not a configured follower", c.Node.ID))
		}
	default:
		errs = append(errs, fmt.Errorf("node.role %q: want leader or follower", c.Node.Role))
	}
	if c.Node.TickMs <= 0 {
		errs = append(errs, errors.New("node.tick_ms must be positive"))
	}
	if c.Radio.MaxPacketsPerTick <= 0 {
		errs = append(errs, errors.New("radio.max_packets_per_tick must be positive"))
	}
	if c.Leader.BroadcastEvery <= 0 || c.Leader.AwaitTicks <= 0 || c.Leader.MaxPolls <= 0 {
		errs = append(errs, errors.New("leader.broadcast_every, await_ticks and max_polls must be positive"))
	}
	if c.Controller.Bound <= 0 {
		errs = append(errs, errors.New("controller.bound must be positive"))
	}
	for shape, table := range c.Formations {
		if _, ok := ShapeOf(CommandOf(shape)); !ok {
			errs = append(errs, fmt.Errorf("formations: unknown shape %q", shape))
		}
		for id := range table {
			if !c.Topology().IsFollower(id) {
				errs = append(errs, fmt.Errorf("formations.%s: node %d is not a follower", shape, id))
			}
		}
		for _, id := range c.Swarm.Followers {
			if _, ok := table[id]; !ok {
				errs = append(errs, fmt.Errorf("formations.%s: no offset for follower %d", shape, id))
			}
		}
	}
	return errors.Join(errs...)
}
