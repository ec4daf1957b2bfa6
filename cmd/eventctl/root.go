package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/example/car-rental-events/internal/bootstrap"
	"github.com/example/car-rental-events/internal/config"
	"github.com/example/car-rental-events/internal/logging"
	"github.com/spf13/cobra"
)

const commandTimeout = 2 * time.Minute

func newRootCmd() *cobra.Command {
	var debug bool

	root := &cobra.Command{
		Use:   "eventctl",
		Short: "Inspect the car rental event log",
		Long: `eventctl reads the event store selected by EVENT_STORE and prints
aggregate histories, rebuilt aggregates and fleet statistics as JSON.`,
		SilenceUsage: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			level := "warn"
			if debug {
				level = "debug"
			}
			logging.Setup(level, "console")
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newEventsCmd(),
		newCarCmd(),
		newUserCmd(),
		newBookingCmd(),
		newStatsCmd(),
		newRepublishCmd(),
	)
	return root
}

// session is what every subcommand works against
type session struct {
	cfg    *config.Config
	stores *bootstrap.Stores
}

// withSession loads configuration, opens the event store and runs fn
func withSession(cmd *cobra.Command, fn func(ctx context.Context, s *session) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()

	stores, err := bootstrap.OpenEventStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	return fn(ctx, &session{cfg: cfg, stores: stores})
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
