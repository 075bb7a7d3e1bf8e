package core

import (
	"context"
	"fmt"
	"slices"
	"time"

	"SwarmFormation/internal/formation"
	"SwarmFormation/internal/model"
	"SwarmFormation/internal/operator"
	"SwarmFormation/internal/parser"
	"SwarmFormation/internal/radio"
	"SwarmFormation/internal/util"

	"gonum.org/v1/gonum/spatial/r2"
)

// Leader takes operator commands, runs the exchange scheduler, and reports
// swarm positions back to the operator.
type Leader struct {
	node
	cfg   model.LeaderConfig
	op    operator.Channel
	table *formation.Table
	sched *Scheduler
	tick  time.Duration

	state    State
	shape    model.Shape
	target   r2.Vec
	nudge    r2.Vec
	setpoint model.Setpoint
	pos      model.Position
	landAt   model.Position

	standbyTicks   int
	formationTicks int
	landing        bool
	registered     map[model.NodeID]bool
}

// nudge directions in the local frame.
var nudgeAxis = map[model.Command]r2.Vec{
	model.CmdRight:   {X: 0, Y: -1},
	model.CmdLeft:    {X: 0, Y: 1},
	model.CmdForward: {X: 1, Y: 0},
	model.CmdBack:    {X: -1, Y: 0},
}

// NewLeader builds the leader role for the node behind tr.
func NewLeader(cfg *model.Config, tr radio.Transport, est Estimator, op operator.Channel) (*Leader, error) {
	if tr.SelfID() != cfg.Swarm.Leader {
		return nil, fmt.Errorf("node %s is not the swarm leader %s", tr.SelfID(), cfg.Swarm.Leader)
	}
	if op == nil {
		return nil, fmt.Errorf("leader %s needs an operator channel", tr.SelfID())
	}
	return &Leader{
		node:       newNode(model.RoleLeader, cfg, tr, est, cfg.Leader.IdleWaitMs),
		cfg:        cfg.Leader,
		op:         op,
		table:      formation.NewTable(cfg.Formations),
		sched:      NewScheduler(cfg.Swarm.Followers, cfg.Leader.AwaitTicks, cfg.Leader.MaxPolls),
		tick:       cfg.Tick(),
		state:      StateIdle,
		registered: make(map[model.NodeID]bool),
	}, nil
}

func (l *Leader) State() State { return l.state }

// Shape returns the active formation, empty outside formation.
func (l *Leader) Shape() model.Shape { return l.shape }

// Scheduler exposes the exchange scheduler for inspection.
func (l *Leader) Scheduler() *Scheduler { return l.sched }

// Target returns the leader's own horizontal target.
func (l *Leader) Target() r2.Vec { return l.target }

// Tick polls the operator and the radio, applies transitions, runs the
// exchange, and returns this tick's setpoint.
func (l *Leader) Tick(ctx context.Context, now time.Time) model.Setpoint {
	l.pos = l.est.CurrentPosition()

	if l.state == StateIdle {
		if cmd, ok := l.op.ReceiveCommand(ctx, l.idleTimeout()); ok {
			l.command(cmd, now)
		}
		// followers only speak when spoken to; discard stragglers
		l.receive(ctx, 0, func(parser.Packet) {})
		return l.setpoint
	}

	if cmd, ok := l.op.ReceiveCommand(ctx, 0); ok {
		l.command(cmd, now)
	}
	l.receive(ctx, l.recvTimeout, func(p parser.Packet) { l.inbound(p, now) })

	switch {
	case l.state == StateStandby:
		l.standbyTicks++
		if l.standbyTicks == 1 || l.standbyTicks%(l.cfg.BroadcastEvery*10) == 0 {
			l.sendCommand(model.BroadcastID, model.CmdStart)
		}
		l.setpoint = model.HoverInPlace(l.cfg.HoverAltitude)
	case l.state.InFormation(), l.state == StateNudge:
		if l.state == StateNudge {
			l.target = r2.Add(l.target, r2.Scale(l.cfg.NudgeSpeed*l.tick.Seconds(), l.nudge))
		}
		l.setpoint = model.Hover(l.target.X, l.target.Y, l.cfg.HoverAltitude, 0)
		l.formationTicks++
		if l.formationTicks%l.cfg.BroadcastEvery == 0 {
			l.send(parser.NewPosition(parser.KindPositionBroadcast, l.id, model.BroadcastID, l.pos))
		}
		l.exchange(now)
	case l.state == StateLanding:
		l.setpoint = descent(l.landAt, l.cfg.LandingAltitude)
		if l.landing {
			l.landing = false
		} else {
			util.Info("%s landed", l.tag)
			l.state = StateIdle
			l.landed = true
			l.shape = ""
		}
	default:
		util.Error("%s unmapped state %q, zero setpoint", l.tag, l.state)
		l.setpoint = model.Setpoint{}
	}
	return l.setpoint
}

// command applies one operator command to the state machine.
func (l *Leader) command(c model.Command, now time.Time) {
	util.Debug("%s operator %s in %s", l.tag, c, l.state)
	switch l.state {
	case StateIdle:
		if c != model.CmdStart {
			util.Info("%s ignoring %s while idle", l.tag, c)
			return
		}
		l.state = StateStandby
		l.landed = false
		l.standbyTicks = 0
		l.setpoint = model.HoverInPlace(l.cfg.HoverAltitude)
		l.reportSelf(now)
		util.Info("%s standby", l.tag)
		return
	case StateLanding:
		util.Info("%s ignoring %s while landing", l.tag, c)
		return
	}

	switch c {
	case model.CmdLand:
		l.land()
	case model.CmdStart:
		// already airborne
	case model.CmdSquare, model.CmdRhombus, model.CmdTriangle:
		shape, _ := model.ShapeOf(c)
		if shape == l.shape && l.state != StateStandby {
			// same shape ends a nudge and keeps the exchange going
			l.state = formationState(shape)
			return
		}
		l.enterFormation(shape)
	case model.CmdRight, model.CmdLeft, model.CmdForward, model.CmdBack:
		if l.state == StateStandby {
			util.Info("%s ignoring %s before a formation is set", l.tag, c)
			return
		}
		l.nudge = nudgeAxis[c]
		l.state = StateNudge
		util.Info("%s nudging %s", l.tag, c)
	case model.CmdStop:
		if l.state == StateNudge {
			l.state = formationState(l.shape)
			util.Info("%s nudge stopped at (%.2f, %.2f)", l.tag, l.target.X, l.target.Y)
		}
	default:
		l.unrecognized(c, l.state)
	}
}

func (l *Leader) enterFormation(shape model.Shape) {
	if len(l.topo.Followers) > 0 && !slices.Contains(l.table.Shapes(), shape) {
		util.Error("%s no formation table for %s", l.tag, shape)
		return
	}
	if l.state == StateStandby {
		l.target = r2.Vec{X: float64(l.pos.X), Y: float64(l.pos.Y)}
	}
	l.shape = shape
	l.state = formationState(shape)
	l.formationTicks = 0
	l.sched.Reset(shape)
	util.Info("%s %s", l.tag, l.state)
}

func (l *Leader) land() {
	l.sendCommand(model.BroadcastID, model.CmdLand)
	l.state = StateLanding
	l.landAt = l.pos
	l.landing = true
	l.setpoint = descent(l.landAt, l.cfg.LandingAltitude)
	util.Info("%s landing at (%.2f, %.2f)", l.tag, l.pos.X, l.pos.Y)
}

// inbound handles radio traffic. Only follower reports addressed to the leader matter.
func (l *Leader) inbound(p parser.Packet, now time.Time) {
	if p.Kind != parser.KindPositionReport || p.Target != l.id || !l.topo.IsFollower(p.Source) {
		return
	}
	if l.state == StateStandby && !l.registered[p.Source] {
		l.registered[p.Source] = true
		util.Info("%s follower %s registered at (%.2f, %.2f, %.2f)", l.tag, p.Source, p.Position.X, p.Position.Y, p.Position.Z)
	}
	l.sched.Deliver(p.Source)
	l.forward(p.Source, "follower", p.Position, now)
}

// exchange runs one scheduler step and performs what it asks for.
func (l *Leader) exchange(now time.Time) {
	a := l.sched.Step()
	switch a.Kind {
	case ActBroadcastShape:
		l.sendCommand(model.BroadcastID, model.CommandOf(a.Shape))
	case ActPoll:
		l.reportSelf(now)
		l.sendCommand(a.Follower, model.CmdSendData)
	case ActRelay:
		l.send(parser.NewPosition(parser.KindPositionBroadcast, l.id, a.Follower, l.pos))
	case ActMissing:
		l.counters.MissingReports++
		if a.GaveUp {
			util.Warn("%s %v from %s after %d polls, moving on", l.tag, ErrMissingReport, a.Follower, a.Polls)
		} else {
			util.Warn("%s %v from %s, re-polling (%d/%d)", l.tag, ErrMissingReport, a.Follower, a.Polls, l.cfg.MaxPolls)
		}
	}
}

func (l *Leader) reportSelf(now time.Time) {
	l.forward(l.id, l.state, l.pos, now)
}

// forward pushes a position report to the operator.
func (l *Leader) forward(id model.NodeID, state State, pos model.Position, now time.Time) {
	b, err := parser.EncodeReport(model.Report{NodeID: id, State: string(state), Position: pos, Time: now.UnixMilli()})
	if err != nil {
		util.Error("%s encode report: %v", l.tag, err)
		return
	}
	l.op.SendReport(b)
}
