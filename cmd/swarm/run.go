package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"SwarmFormation/internal/core"
	"SwarmFormation/internal/util"

	"github.com/spf13/cobra"
)

var runConfig string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run this node as configured",
	Long:  `Open the radio, estimator and commander named in the config and fly the configured role until interrupted.`,
	RunE:  runNode,
}

func init() {
	runCmd.Flags().StringVarP(&runConfig, "config", "c", "configs/swarm.yml", "path to configuration file")
	rootCmd.AddCommand(runCmd)
}

func runNode(cmd *cobra.Command, args []string) error {
	util.Info("[main] using config: %s", runConfig)
	cfg, err := core.LoadConfig(runConfig)
	if err != nil {
		return err
	}

	sys, err := core.NewSystem(cfg)
	if err != nil {
		return fmt.Errorf("failed to create system: %w", err)
	}

	// wait for Ctrl+C or SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sys.StartAll(ctx); err != nil {
		sys.StopAll()
		return fmt.Errorf("failed to start system: %w", err)
	}
	<-ctx.Done()

	util.Info("[main] shutting down")
	sys.StopAll()
	util.Info("[main] stopped cleanly")
	return nil
}
