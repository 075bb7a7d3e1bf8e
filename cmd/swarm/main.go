// Command swarm runs one node of the formation swarm, simulates a whole
// swarm in process, or replays a recorded flight log.
package main

import (
	"fmt"
	"os"

	"SwarmFormation/internal/util"

	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:          "swarm",
	Short:        "Leader/follower formation flying over a peer radio",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		util.SetupLogger(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log every tick")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
