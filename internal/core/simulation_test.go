package core

import (
	"context"
	"testing"
	"time"

	"SwarmFormation/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulation_SquareConverges(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	sim, err := NewSimulation(model.DefaultConfig(), 1)
	require.NoError(t, err)
	sim.Run(ctx, 4000, map[int]model.Command{0: model.CmdStart, 20: model.CmdSquare})

	for id, st := range sim.States() {
		assert.Equal(t, StateSquare, st, "node %s", id)
	}
	errs := sim.FormationError(model.ShapeSquare)
	require.Len(t, errs, 3)
	for id, e := range errs {
		assert.Less(t, e, 0.05, "follower %s off station", id)
	}

	assert.Positive(t, sim.Leader.Scheduler().Rounds())
	for id, c := range sim.Counters() {
		assert.Equal(t, Counters{}, c, "node %s", id)
	}
	assert.Equal(t, SimStart.Add(40*time.Second), sim.Now())

	// the leader ticks first, so Land reaches every follower in the same step
	require.True(t, sim.Command(model.CmdLand))
	sim.Step(ctx)
	for id, st := range sim.States() {
		assert.Equal(t, StateLanding, st, "node %s", id)
	}
	sim.Step(ctx)
	for id, st := range sim.States() {
		assert.Equal(t, StateIdle, st, "node %s", id)
	}
}

func TestSimulation_Reshape(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	sim, err := NewSimulation(model.DefaultConfig(), 1)
	require.NoError(t, err)
	sim.Run(ctx, 3000, map[int]model.Command{
		0:    model.CmdStart,
		20:   model.CmdSquare,
		1000: model.CmdTriangle,
	})

	assert.Equal(t, StateTriangle, sim.Leader.State())
	for id, e := range sim.FormationError(model.ShapeTriangle) {
		assert.Equal(t, StateTriangle, sim.Follower[id].State())
		assert.Less(t, e, 0.05, "follower %s off station", id)
	}
}

func TestSimulation_LossyRadioKeepsCycling(t *testing.T) {
	t.Parallel()

	cfg := model.DefaultConfig()
	cfg.Simulation.DropRate = 0.2
	sim, err := NewSimulation(cfg, 7)
	require.NoError(t, err)
	sim.Run(context.Background(), 3000, map[int]model.Command{0: model.CmdStart, 200: model.CmdSquare})

	assert.Equal(t, StateSquare, sim.Leader.State())
	assert.Greater(t, sim.Leader.Scheduler().Rounds(), 10)
	assert.Positive(t, sim.Leader.Counters().MissingReports)
	sent, dropped := sim.Hub.Stats()
	assert.Positive(t, sent)
	assert.Positive(t, dropped)
}

func TestSimulation_Deterministic(t *testing.T) {
	t.Parallel()

	run := func() map[model.NodeID]float64 {
		cfg := model.DefaultConfig()
		cfg.Simulation.DropRate = 0.1
		sim, err := NewSimulation(cfg, 42)
		require.NoError(t, err)
		sim.Run(context.Background(), 500, map[int]model.Command{0: model.CmdStart, 100: model.CmdRhombus})
		return sim.FormationError(model.ShapeRhombus)
	}
	assert.Equal(t, run(), run())
}
