package core

import (
	"context"
	"fmt"
	"time"

	"SwarmFormation/internal/control"
	"SwarmFormation/internal/formation"
	"SwarmFormation/internal/model"
	"SwarmFormation/internal/parser"
	"SwarmFormation/internal/radio"
	"SwarmFormation/internal/util"

	"gonum.org/v1/gonum/spatial/r2"
)

// Follower tracks its station relative to the leader. It acts only on
// packets from the topology leader addressed to itself or broadcast.
type Follower struct {
	node
	cfg   model.FollowerConfig
	table *formation.Table
	ctrl  *control.Controller

	state    State
	shape    model.Shape
	offset   model.Offset
	target   r2.Vec
	setpoint model.Setpoint
	landAt   model.Position
	landing  bool // entered Landing during the current tick
	last     control.Result
}

// NewFollower builds the follower role for the node behind tr.
func NewFollower(cfg *model.Config, tr radio.Transport, est Estimator) (*Follower, error) {
	topo := cfg.Topology()
	if !topo.IsFollower(tr.SelfID()) {
		return nil, fmt.Errorf("node %s is not a follower of leader %s", tr.SelfID(), topo.Leader)
	}
	return &Follower{
		node:  newNode(model.RoleFollower, cfg, tr, est, cfg.Follower.IdleWaitMs),
		cfg:   cfg.Follower,
		table: formation.NewTable(cfg.Formations),
		ctrl:  control.New(control.GainsFromConfig(cfg.Controller)),
		state: StateIdle,
	}, nil
}

func (f *Follower) State() State { return f.state }

// Shape returns the active formation, empty outside formation.
func (f *Follower) Shape() model.Shape { return f.shape }

// Setpoint returns the last setpoint emitted.
func (f *Follower) Setpoint() model.Setpoint { return f.setpoint }

// Tracking returns the last controller result.
func (f *Follower) Tracking() control.Result { return f.last }

// Tick receives, applies transitions, and returns this tick's setpoint.
func (f *Follower) Tick(ctx context.Context, now time.Time) model.Setpoint {
	pos := f.est.CurrentPosition()

	wait := f.recvTimeout
	if f.state == StateIdle {
		wait = f.idleTimeout()
	}
	var leaderPos *model.Position
	f.receive(ctx, wait, func(p parser.Packet) {
		if p.Source != f.topo.Leader || (p.Target != f.id && p.Target != model.BroadcastID) {
			return
		}
		if lp, ok := f.dispatch(p, pos, now); ok {
			leaderPos = &lp
		}
	})

	switch {
	case f.state.InFormation():
		if leaderPos != nil {
			f.track(*leaderPos, now)
		}
	case f.state == StateLanding:
		f.setpoint = descent(f.landAt, f.cfg.LandingAltitude)
		if f.landing {
			f.landing = false
		} else {
			util.Info("%s landed", f.tag)
			f.state = StateIdle
			f.landed = true
			f.shape = ""
		}
	case f.state == StateIdle, f.state == StateStandby:
	default:
		util.Error("%s unmapped state %q, holding setpoint", f.tag, f.state)
	}
	return f.setpoint
}

// dispatch applies one packet. It returns the leader position when the
// packet carried one that the current state consumes.
func (f *Follower) dispatch(p parser.Packet, pos model.Position, now time.Time) (model.Position, bool) {
	switch f.state {
	case StateIdle:
		f.report(pos)
		if p.Kind == parser.KindCommand && p.Command == model.CmdStart {
			f.state = StateStandby
			f.landed = false
			f.setpoint = model.HoverInPlace(f.cfg.HoverAltitude)
			util.Info("%s standby", f.tag)
		}
		return model.Position{}, false
	case StateLanding:
		return model.Position{}, false
	}

	if p.Kind == parser.KindPositionBroadcast {
		if f.state == StateStandby {
			util.Debug("%s ignoring leader position in standby", f.tag)
			return model.Position{}, false
		}
		return p.Position, true
	}
	if p.Kind != parser.KindCommand {
		return model.Position{}, false
	}

	switch c := p.Command; c {
	case model.CmdSendData:
		f.report(pos)
	case model.CmdLand:
		f.land(pos)
	case model.CmdStart:
		// already airborne
	case model.CmdSquare, model.CmdRhombus, model.CmdTriangle:
		shape, _ := model.ShapeOf(c)
		if f.state.InFormation() && shape == f.shape {
			return model.Position{}, false
		}
		f.enterFormation(shape, pos, now)
	default:
		f.unrecognized(c, f.state)
	}
	return model.Position{}, false
}

func (f *Follower) enterFormation(shape model.Shape, pos model.Position, now time.Time) {
	off, err := f.table.Offset(shape, f.id)
	if err != nil {
		util.Error("%s cannot join %s: %v", f.tag, shape, err)
		return
	}
	f.shape = shape
	f.offset = off
	f.state = formationState(shape)
	f.target = r2.Vec{X: float64(pos.X), Y: float64(pos.Y)}
	f.ctrl.Reset(now)
	util.Info("%s %s at offset (%.2f, %.2f)", f.tag, f.state, off.DX, off.DY)
}

// track runs one controller step toward leader+offset. The controller
// integrates its own target, seeded from the estimate on formation entry.
func (f *Follower) track(leader model.Position, now time.Time) {
	res := f.ctrl.Step(leader, f.offset, f.target, now)
	f.last = res
	if !res.Applied && !res.Clamped {
		return
	}
	if res.Clamped {
		f.counters.Clamps++
		util.Warn("%s %v: target clamped to (%.2f, %.2f)", f.tag, control.ErrDivergence, res.Target.X, res.Target.Y)
	}
	f.target = res.Target
	f.setpoint = model.Hover(res.Target.X, res.Target.Y, f.cfg.HoverAltitude, 0)
	util.Debug("%s desired (%.3f, %.3f) target (%.3f, %.3f)", f.tag, res.Desired.X, res.Desired.Y, res.Target.X, res.Target.Y)
}

func (f *Follower) land(pos model.Position) {
	f.state = StateLanding
	f.landAt = pos
	f.landing = true
	util.Info("%s landing at (%.2f, %.2f)", f.tag, pos.X, pos.Y)
}

func (f *Follower) report(pos model.Position) {
	f.send(parser.NewPosition(parser.KindPositionReport, f.id, f.topo.Leader, pos))
}
