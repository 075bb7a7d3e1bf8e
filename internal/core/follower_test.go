package core

import (
	"context"
	"testing"
	"time"

	"SwarmFormation/internal/control"
	"SwarmFormation/internal/model"
	"SwarmFormation/internal/parser"
	"SwarmFormation/internal/radio"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"
)

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestFollower(t *testing.T) (*Follower, *fakeRadio, *fixedEstimator) {
	t.Helper()
	r := &fakeRadio{id: 232}
	est := &fixedEstimator{pos: model.Position{X: 0.5, Y: 0.3, Z: 0.5}}
	f, err := NewFollower(testConfig(232, model.RoleFollower), r, est)
	require.NoError(t, err)
	return f, r, est
}

// standby takes f from Idle to Standby and clears the captured frames.
func standby(t *testing.T, f *Follower, r *fakeRadio) {
	t.Helper()
	r.push(t, command(231, model.BroadcastID, model.CmdStart))
	f.Tick(context.Background(), t0)
	require.Equal(t, StateStandby, f.State())
	r.take(t)
}

func TestNewFollower_RejectsLeader(t *testing.T) {
	t.Parallel()

	_, err := NewFollower(testConfig(232, model.RoleFollower), &fakeRadio{id: 231}, &fixedEstimator{})
	assert.Error(t, err)
}

func TestFollower_IdleRepliesAndStarts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f, r, est := newTestFollower(t)

	r.push(t, command(231, 232, model.CmdSendData))
	f.Tick(ctx, t0)
	assert.Equal(t, StateIdle, f.State())
	sent := r.take(t)
	require.Len(t, sent, 1)
	assert.Equal(t, parser.KindPositionReport, sent[0].Kind)
	assert.Equal(t, model.NodeID(231), sent[0].Target)
	assert.Equal(t, est.pos, sent[0].Position)

	r.push(t, command(231, model.BroadcastID, model.CmdStart))
	sp := f.Tick(ctx, t0.Add(10*time.Millisecond))
	assert.Equal(t, StateStandby, f.State())
	assert.Equal(t, model.HoverInPlace(0.5), sp)
	assert.Equal(t, model.ModeVelocity, sp.ModeX)
	assert.Equal(t, 0.5, sp.Z)
	assert.Len(t, r.take(t), 1, "idle replies to every leader packet")
}

func TestFollower_IgnoresOtherSenders(t *testing.T) {
	t.Parallel()
	f, r, _ := newTestFollower(t)

	r.push(t, command(230, 232, model.CmdStart))
	r.push(t, command(231, 233, model.CmdStart))
	f.Tick(context.Background(), t0)

	assert.Equal(t, StateIdle, f.State())
	assert.Empty(t, r.take(t))
}

func TestFollower_TracksLeader(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f, r, _ := newTestFollower(t)
	standby(t, f, r)

	leader := model.Position{X: 1, Y: 1, Z: 0.5}
	r.push(t, command(231, model.BroadcastID, model.CmdSquare))
	r.push(t, parser.NewPosition(parser.KindPositionBroadcast, 231, model.BroadcastID, leader))
	f.Tick(ctx, t0.Add(10*time.Millisecond))

	assert.Equal(t, StateSquare, f.State())
	assert.Equal(t, model.ShapeSquare, f.Shape())
	res := f.Tracking()
	assert.InDelta(t, 1.2, res.Desired.X, 1e-6)
	assert.InDelta(t, 1.0, res.Desired.Y, 1e-6)

	r.push(t, parser.NewPosition(parser.KindPositionBroadcast, 231, model.BroadcastID, leader))
	sp := f.Tick(ctx, t0.Add(60*time.Millisecond))
	require.True(t, f.Tracking().Applied)
	assert.Equal(t, model.ModeAbs, sp.ModeX)
	assert.Greater(t, sp.X, 0.5)
	assert.Less(t, sp.X, 1.2)
	assert.Greater(t, sp.Y, 0.3)
	assert.Equal(t, 0.5, sp.Z)
}

func TestFollower_StandbyIgnoresLeaderPosition(t *testing.T) {
	t.Parallel()
	f, r, _ := newTestFollower(t)
	standby(t, f, r)

	r.push(t, parser.NewPosition(parser.KindPositionBroadcast, 231, model.BroadcastID, model.Position{X: 3}))
	sp := f.Tick(context.Background(), t0.Add(10*time.Millisecond))

	assert.Equal(t, StateStandby, f.State())
	assert.Equal(t, model.HoverInPlace(0.5), sp)
}

func TestFollower_SameShapeKeepsTarget(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f, r, est := newTestFollower(t)
	standby(t, f, r)

	r.push(t, command(231, model.BroadcastID, model.CmdSquare))
	f.Tick(ctx, t0.Add(10*time.Millisecond))
	r.push(t, parser.NewPosition(parser.KindPositionBroadcast, 231, 232, model.Position{X: 1, Y: 1}))
	f.Tick(ctx, t0.Add(60*time.Millisecond))
	moved := f.target
	require.NotEqual(t, float64(est.pos.X), moved.X)

	r.push(t, command(231, model.BroadcastID, model.CmdSquare))
	f.Tick(ctx, t0.Add(70*time.Millisecond))
	assert.Equal(t, moved, f.target)

	r.push(t, command(231, model.BroadcastID, model.CmdTriangle))
	f.Tick(ctx, t0.Add(80*time.Millisecond))
	assert.Equal(t, StateTriangle, f.State())
	assert.InDelta(t, float64(est.pos.X), f.target.X, 1e-9)
}

func TestFollower_MalformedFrameHoldsSetpoint(t *testing.T) {
	t.Parallel()
	f, r, _ := newTestFollower(t)
	standby(t, f, r)
	before := f.Setpoint()

	r.inbox = append(r.inbox, []byte{231, 232, 3, 1, 0})
	sp := f.Tick(context.Background(), t0.Add(10*time.Millisecond))

	assert.Equal(t, before, sp)
	assert.Equal(t, 1, f.Counters().DecodeErrors)
	assert.Equal(t, StateStandby, f.State())
}

func TestFollower_SendDataInFormation(t *testing.T) {
	t.Parallel()
	f, r, est := newTestFollower(t)
	standby(t, f, r)

	r.push(t, command(231, model.BroadcastID, model.CmdRhombus))
	r.push(t, command(231, 232, model.CmdSendData))
	f.Tick(context.Background(), t0.Add(10*time.Millisecond))

	sent := r.take(t)
	require.Len(t, sent, 1)
	assert.Equal(t, parser.KindPositionReport, sent[0].Kind)
	assert.Equal(t, est.pos, sent[0].Position)
}

func TestFollower_Unrecognized(t *testing.T) {
	t.Parallel()
	f, r, _ := newTestFollower(t)
	standby(t, f, r)

	r.push(t, command(231, 232, model.CmdForward))
	r.push(t, command(231, 232, model.Command(42)))
	f.Tick(context.Background(), t0.Add(10*time.Millisecond))

	assert.Equal(t, 2, f.Counters().Unrecognized)
	assert.Equal(t, StateStandby, f.State())
}

func TestFollower_Land(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f, r, est := newTestFollower(t)
	standby(t, f, r)
	r.push(t, command(231, model.BroadcastID, model.CmdSquare))
	f.Tick(ctx, t0.Add(10*time.Millisecond))

	r.push(t, command(231, model.BroadcastID, model.CmdLand))
	sp := f.Tick(ctx, t0.Add(20*time.Millisecond))
	assert.Equal(t, StateLanding, f.State())
	want := model.Hover(float64(est.pos.X), float64(est.pos.Y), 0.1, 0)
	assert.Equal(t, want, sp)

	// commands are ignored while landing
	r.push(t, command(231, model.BroadcastID, model.CmdSquare))
	sp = f.Tick(ctx, t0.Add(30*time.Millisecond))
	assert.Equal(t, StateIdle, f.State())
	assert.Equal(t, want, sp)
	assert.Empty(t, f.Shape())

	sp = f.Tick(ctx, t0.Add(40*time.Millisecond))
	assert.Equal(t, want, sp, "idle keeps the descent setpoint")
}

func TestFollower_ReshapeResetsController(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f, r, _ := newTestFollower(t)
	standby(t, f, r)

	leader := model.Position{X: 1, Y: 1, Z: 0.5}
	r.push(t, command(231, model.BroadcastID, model.CmdSquare))
	f.Tick(ctx, t0.Add(10*time.Millisecond))
	for _, at := range []time.Duration{60, 110} {
		r.push(t, parser.NewPosition(parser.KindPositionBroadcast, 231, model.BroadcastID, leader))
		f.Tick(ctx, t0.Add(at*time.Millisecond))
		require.True(t, f.Tracking().Applied)
	}
	st := f.ctrl.State()
	require.NotEqual(t, r2.Vec{}, st.Integral)
	require.NotEqual(t, r2.Vec{}, st.PrevError)

	entry := t0.Add(120 * time.Millisecond)
	r.push(t, command(231, model.BroadcastID, model.CmdTriangle))
	f.Tick(ctx, entry)
	require.Equal(t, StateTriangle, f.State())

	st = f.ctrl.State()
	assert.Equal(t, r2.Vec{}, st.Integral)
	assert.Equal(t, r2.Vec{}, st.PrevError)
	assert.Equal(t, entry, st.PrevTime)

	// the first step after entry integrates only the time since entry
	r.push(t, parser.NewPosition(parser.KindPositionBroadcast, 231, model.BroadcastID, leader))
	f.Tick(ctx, entry.Add(50*time.Millisecond))
	assert.InDelta(t, 0.05, f.Tracking().DT, 1e-9)
}

func TestFollower_RelandResetsController(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f, r, _ := newTestFollower(t)
	standby(t, f, r)

	r.push(t, command(231, model.BroadcastID, model.CmdSquare))
	f.Tick(ctx, t0.Add(10*time.Millisecond))
	r.push(t, parser.NewPosition(parser.KindPositionBroadcast, 231, model.BroadcastID, model.Position{X: 2, Y: -1}))
	f.Tick(ctx, t0.Add(60*time.Millisecond))
	require.NotEqual(t, r2.Vec{}, f.ctrl.State().Integral)

	r.push(t, command(231, model.BroadcastID, model.CmdLand))
	f.Tick(ctx, t0.Add(70*time.Millisecond))
	f.Tick(ctx, t0.Add(80*time.Millisecond))
	require.Equal(t, StateIdle, f.State())
	r.push(t, command(231, model.BroadcastID, model.CmdStart))
	f.Tick(ctx, t0.Add(90*time.Millisecond))
	require.Equal(t, StateStandby, f.State())

	entry := t0.Add(100 * time.Millisecond)
	r.push(t, command(231, model.BroadcastID, model.CmdSquare))
	f.Tick(ctx, entry)
	assert.Equal(t, control.State{PrevTime: entry}, f.ctrl.State())
}

func TestFollower_IdleWaitBoundedAfterLanding(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cfg := testConfig(232, model.RoleFollower)
	cfg.Radio.ReceiveTimeoutMs = 5
	cfg.Follower.IdleWaitMs = -1
	r := &fakeRadio{id: 232}
	f, err := NewFollower(cfg, r, &fixedEstimator{})
	require.NoError(t, err)

	f.Tick(ctx, t0)
	assert.Equal(t, []time.Duration{radio.WaitForever}, r.waits, "idle before takeoff waits for the leader")

	r.push(t, command(231, model.BroadcastID, model.CmdStart))
	f.Tick(ctx, t0.Add(10*time.Millisecond))
	r.push(t, command(231, model.BroadcastID, model.CmdLand))
	f.Tick(ctx, t0.Add(20*time.Millisecond))
	f.Tick(ctx, t0.Add(30*time.Millisecond))
	require.Equal(t, StateIdle, f.State())

	r.waits = nil
	f.Tick(ctx, t0.Add(40*time.Millisecond))
	assert.Equal(t, []time.Duration{5 * time.Millisecond}, r.waits)

	r.push(t, command(231, model.BroadcastID, model.CmdStart))
	f.Tick(ctx, t0.Add(50*time.Millisecond))
	r.push(t, command(231, model.BroadcastID, model.CmdLand))
	f.Tick(ctx, t0.Add(60*time.Millisecond))
	assert.Equal(t, StateLanding, f.State())
}
