package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"SwarmFormation/internal/recorder"

	"github.com/spf13/cobra"
)

var replayOpts struct {
	db      string
	session string
	list    bool
}

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Print a recorded flight log as CSV",
	Long:  `List the sessions in a flight log, or print the radio traffic of one session (the latest by default).`,
	RunE:  runReplay,
}

func init() {
	f := replayCmd.Flags()
	f.StringVar(&replayOpts.db, "db", "data/flight.db", "bbolt flight log")
	f.StringVar(&replayOpts.session, "session", "", "session id (latest when empty)")
	f.BoolVar(&replayOpts.list, "list", false, "list sessions only")
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	db, err := recorder.OpenReadOnly(replayOpts.db)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	sessions, err := recorder.Sessions(db)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		return errors.New("no sessions recorded")
	}
	if replayOpts.list {
		for _, s := range sessions {
			fmt.Printf("%s node=%s started=%s entries=%d\n", s.ID, s.Node, s.Started.Format(time.RFC3339), s.Entries)
		}
		return nil
	}

	id := replayOpts.session
	if id == "" {
		id = sessions[len(sessions)-1].ID
	}
	entries, err := recorder.Entries(db, id)
	if err != nil {
		return err
	}

	w := csv.NewWriter(os.Stdout)
	_ = w.Write([]string{"time", "observer", "source", "target", "kind", "command", "x", "y", "z"})
	for _, e := range entries {
		_ = w.Write([]string{
			e.Time.Format(time.RFC3339Nano),
			e.Observer.String(),
			e.Source.String(),
			e.Target.String(),
			e.Kind,
			e.Command,
			strconv.FormatFloat(float64(e.Position.X), 'f', 3, 32),
			strconv.FormatFloat(float64(e.Position.Y), 'f', 3, 32),
			strconv.FormatFloat(float64(e.Position.Z), 'f', 3, 32),
		})
	}
	w.Flush()
	return w.Error()
}
