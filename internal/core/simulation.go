package core

import (
	"context"
	"errors"
	"math"
	"time"

	"SwarmFormation/internal/estimator"
	"SwarmFormation/internal/formation"
	"SwarmFormation/internal/model"
	"SwarmFormation/internal/operator"
	"SwarmFormation/internal/radio"

	"gonum.org/v1/gonum/spatial/r2"
)

// Simulation runs a whole swarm in one process: every node on an in-memory
// radio hub, flying a kinematic vehicle against a simulated clock. Step is
// deterministic for a given configuration.
type Simulation struct {
	Hub      *radio.Hub
	Operator *operator.Queue
	Leader   *Leader
	Follower map[model.NodeID]*Follower
	Vehicles map[model.NodeID]*estimator.Kinematic
	Radios   map[model.NodeID]*radio.Endpoint

	cfg   model.Config
	order []model.NodeID
	table *formation.Table
	now   time.Time
	tick  time.Duration
	ticks int
}

// SimStart is the wall time the simulated clock starts from.
var SimStart = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// NewSimulation builds the swarm described by cfg. Receive waits are forced
// to polls so that a tick never sleeps.
func NewSimulation(cfg model.Config, seed uint64) (*Simulation, error) {
	if err := errors.Join(cfg.Validate(), checkSeparation(&cfg)); err != nil {
		return nil, err
	}
	cfg.Radio.ReceiveTimeoutMs = 0
	cfg.Leader.IdleWaitMs = 0
	cfg.Follower.IdleWaitMs = 0

	var opts []radio.HubOption
	if cfg.Simulation.DropRate > 0 {
		opts = append(opts, radio.WithDropRate(cfg.Simulation.DropRate, seed))
	}
	s := &Simulation{
		Hub:      radio.NewHub(opts...),
		Operator: operator.NewQueue(16),
		Follower: make(map[model.NodeID]*Follower),
		Vehicles: make(map[model.NodeID]*estimator.Kinematic),
		Radios:   make(map[model.NodeID]*radio.Endpoint),
		cfg:      cfg,
		table:    formation.NewTable(cfg.Formations),
		now:      SimStart,
		tick:     cfg.Tick(),
	}
	clock := func() time.Time { return s.now }
	buffer := 4 * (len(cfg.Swarm.Followers) + cfg.Radio.MaxPacketsPerTick)

	leaderCfg := cfg
	leaderCfg.Node = model.NodeConfig{ID: cfg.Swarm.Leader, Role: model.RoleLeader, TickMs: cfg.Node.TickMs}
	lv := estimator.NewKinematic(model.Position{}, cfg.Simulation.Response, clock)
	s.Radios[cfg.Swarm.Leader] = s.Hub.Join(cfg.Swarm.Leader, buffer)
	leader, err := NewLeader(&leaderCfg, s.Radios[cfg.Swarm.Leader], lv, s.Operator)
	if err != nil {
		return nil, err
	}
	s.Leader = leader
	s.Vehicles[cfg.Swarm.Leader] = lv
	s.order = append(s.order, cfg.Swarm.Leader)

	for i, id := range cfg.Swarm.Followers {
		fc := cfg
		fc.Node = model.NodeConfig{ID: id, Role: model.RoleFollower, TickMs: cfg.Node.TickMs}
		v := estimator.NewKinematic(startPosition(i), cfg.Simulation.Response, clock)
		s.Radios[id] = s.Hub.Join(id, buffer)
		f, err := NewFollower(&fc, s.Radios[id], v)
		if err != nil {
			return nil, err
		}
		s.Follower[id] = f
		s.Vehicles[id] = v
		s.order = append(s.order, id)
	}
	return s, nil
}

// startPosition spreads followers on a ring around the origin.
func startPosition(i int) model.Position {
	a := float64(i) * 2 * math.Pi / 5
	return model.Position{X: float32(0.6 * math.Cos(a)), Y: float32(0.6 * math.Sin(a))}
}

// Now returns the simulated clock.
func (s *Simulation) Now() time.Time { return s.now }

// Ticks returns how many steps ran.
func (s *Simulation) Ticks() int { return s.ticks }

// Command queues an operator command for the leader's next tick.
func (s *Simulation) Command(c model.Command) bool { return s.Operator.Push(c) }

// Step advances the clock by one tick and ticks every node, leader first.
func (s *Simulation) Step(ctx context.Context) {
	s.now = s.now.Add(s.tick)
	s.ticks++
	for _, id := range s.order {
		var r Role = s.Leader
		if id != s.cfg.Swarm.Leader {
			r = s.Follower[id]
		}
		sp := r.Tick(ctx, s.now)
		s.Vehicles[id].SetSetpoint(sp)
	}
}

// Run steps n times, queueing script[i] before step i.
func (s *Simulation) Run(ctx context.Context, n int, script map[int]model.Command) {
	for i := 0; i < n && ctx.Err() == nil; i++ {
		if c, ok := script[i]; ok {
			s.Command(c)
		}
		s.Step(ctx)
	}
}

// States returns the state of every node.
func (s *Simulation) States() map[model.NodeID]State {
	out := map[model.NodeID]State{s.cfg.Swarm.Leader: s.Leader.State()}
	for id, f := range s.Follower {
		out[id] = f.State()
	}
	return out
}

// FormationError returns, per follower, the horizontal distance between
// its vehicle and its station around the leader's vehicle.
func (s *Simulation) FormationError(shape model.Shape) map[model.NodeID]float64 {
	leader := s.Vehicles[s.cfg.Swarm.Leader].CurrentPosition()
	out := make(map[model.NodeID]float64, len(s.Follower))
	for id, station := range s.table.Stations(shape, leader) {
		p := s.Vehicles[id].CurrentPosition()
		out[id] = r2.Norm(r2.Sub(station, r2.Vec{X: float64(p.X), Y: float64(p.Y)}))
	}
	return out
}

// Counters returns every node's error counters.
func (s *Simulation) Counters() map[model.NodeID]Counters {
	out := map[model.NodeID]Counters{s.cfg.Swarm.Leader: s.Leader.Counters()}
	for id, f := range s.Follower {
		out[id] = f.Counters()
	}
	return out
}
