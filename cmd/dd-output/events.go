package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/corner4world/deepdetect/internal/bus"
)

func eventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List or replay the event journal",
		Long: `Print the events recorded in the journal (bus.journal_path), one
JSON document per line. With --replay, publish them again on the
configured bus instead.`,
		Args: cobra.NoArgs,
		RunE: runEvents,
	}
	cmd.Flags().String("journal", "", "journal file (overrides config)")
	cmd.Flags().Duration("since", 0, "only events recorded within this duration")
	cmd.Flags().Int("limit", 0, "maximum number of events, 0 for all")
	cmd.Flags().Bool("replay", false, "publish the events on the configured bus")
	return cmd
}

func runEvents(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := newLogger(cmd, cfg, os.Stderr)

	path := cfg.Bus.JournalPath
	if cmd.Flags().Changed("journal") {
		path, _ = cmd.Flags().GetString("journal")
	}
	if path == "" {
		return fmt.Errorf("no journal configured: set bus.journal_path or --journal")
	}

	var since time.Time
	if d, _ := cmd.Flags().GetDuration("since"); d > 0 {
		since = time.Now().Add(-d)
	}

	if replay, _ := cmd.Flags().GetBool("replay"); replay {
		journal, err := bus.OpenJournal(path)
		if err != nil {
			return err
		}
		defer journal.Close()

		busCfg := cfg.Bus
		busCfg.JournalPath = ""
		b, err := bus.NewBus(busCfg, log)
		if err != nil {
			return err
		}
		defer b.Close()

		n, err := journal.Replay(cmd.Context(), b, since)
		if err != nil {
			return err
		}
		log.Info("Replayed events", "count", n, "bus", busCfg.Type)
		return nil
	}

	limit, _ := cmd.Flags().GetInt("limit")
	entries, err := bus.ReadJournal(path, since, limit)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := writeOutput(cmd, e); err != nil {
			return err
		}
	}
	return nil
}
