package main

import (
	"context"
	"fmt"

	"SwarmFormation/internal/core"
	"SwarmFormation/internal/model"
	"SwarmFormation/internal/recorder"

	"github.com/spf13/cobra"
)

var simOpts struct {
	config string
	ticks  int
	shape  string
	seed   uint64
	drop   float64
	record string
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Fly a whole swarm in process",
	Long: `Run the leader and every follower on an in-memory radio with kinematic vehicles,
start them, select a formation and report how far each follower ends up from its station.`,
	RunE: runSimulate,
}

func init() {
	f := simulateCmd.Flags()
	f.StringVarP(&simOpts.config, "config", "c", "", "configuration file (defaults when empty)")
	f.IntVar(&simOpts.ticks, "ticks", 0, "ticks to run (simulation.ticks when zero)")
	f.StringVar(&simOpts.shape, "shape", "square", "formation to select: square, rhombus or triangle")
	f.Uint64Var(&simOpts.seed, "seed", 1, "seed for radio losses")
	f.Float64Var(&simOpts.drop, "drop", -1, "per-delivery loss probability (simulation.drop_rate when negative)")
	f.StringVar(&simOpts.record, "record", "", "record the leader's radio traffic to this bbolt file")
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg := model.DefaultConfig()
	if simOpts.config != "" {
		c, err := core.LoadConfig(simOpts.config)
		if err != nil {
			return err
		}
		cfg = *c
	}
	if simOpts.ticks > 0 {
		cfg.Simulation.Ticks = simOpts.ticks
	}
	if simOpts.drop >= 0 {
		cfg.Simulation.DropRate = simOpts.drop
	}
	shapeCmd, ok := model.CommandByName(simOpts.shape)
	shape, isShape := model.ShapeOf(shapeCmd)
	if !ok || !isShape {
		return fmt.Errorf("unknown shape %q", simOpts.shape)
	}

	sim, err := core.NewSimulation(cfg, simOpts.seed)
	if err != nil {
		return err
	}
	if simOpts.record != "" {
		rec, err := recorder.Open(simOpts.record, cfg.Swarm.Leader)
		if err != nil {
			return err
		}
		defer func() { _ = rec.Close() }()
		rec.SetClock(sim.Now)
		sim.Radios[cfg.Swarm.Leader].RegisterCallback(rec.Tap(cfg.Swarm.Leader))
		fmt.Printf("recording session %s to %s\n", rec.SessionID(), simOpts.record)
	}

	sim.Run(context.Background(), cfg.Simulation.Ticks, map[int]model.Command{
		0:  model.CmdStart,
		20: shapeCmd,
	})

	fmt.Printf("%d ticks, %s simulated\n", sim.Ticks(), sim.Now().Sub(core.SimStart))
	sent, dropped := sim.Hub.Stats()
	fmt.Printf("radio: %d delivered, %d dropped\n", sent, dropped)
	fmt.Printf("exchange rounds: %d\n\n", sim.Leader.Scheduler().Rounds())

	states := sim.States()
	counters := sim.Counters()
	errs := sim.FormationError(shape)
	stats := sim.Leader.Scheduler().Stats()
	for _, id := range cfg.Topology().Members() {
		fmt.Printf("%-4s %-20s %s\n", id, states[id], counters[id])
		if e, ok := errs[id]; ok {
			st := stats[id]
			fmt.Printf("     station error %.3f m, polls=%d reports=%d skipped=%d\n", e, st.Polls, st.Reports, st.Skipped)
		}
	}

	worst := 0.0
	for _, e := range errs {
		worst = max(worst, e)
	}
	if len(errs) > 0 {
		fmt.Printf("\nworst station error: %.3f m\n", worst)
	}
	return nil
}
