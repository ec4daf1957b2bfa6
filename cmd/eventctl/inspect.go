package main

import (
	"context"
	"fmt"

	"github.com/example/car-rental-events/internal/domain/booking"
	"github.com/example/car-rental-events/internal/domain/car"
	"github.com/example/car-rental-events/internal/domain/search"
	"github.com/example/car-rental-events/internal/domain/user"
	"github.com/example/car-rental-events/internal/infrastructure/store"
	"github.com/example/car-rental-events/internal/projection"
	"github.com/example/car-rental-events/internal/query"
	"github.com/spf13/cobra"
)

func newEventsCmd() *cobra.Command {
	var eventType string

	cmd := &cobra.Command{
		Use:   "events [aggregate-id]",
		Short: "Print the events of one aggregate, or of one event type",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && eventType == "" {
				return fmt.Errorf("give an aggregate id or --type")
			}
			return withSession(cmd, func(ctx context.Context, s *session) error {
				var (
					events []store.Event
					err    error
				)
				if len(args) == 1 {
					events, err = s.stores.Events.GetEvents(ctx, args[0])
				} else {
					events, err = s.stores.Events.GetEventsByType(ctx, eventType)
				}
				if err != nil {
					return err
				}
				if events == nil {
					events = []store.Event{}
				}
				return printJSON(cmd.OutOrStdout(), events)
			})
		},
	}
	cmd.Flags().StringVarP(&eventType, "type", "t", "", "list every event of this type instead")
	return cmd
}

func newCarCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "car <id>",
		Short: "Rebuild a car from its events, deleted cars included",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, s *session) error {
				c, err := car.NewService(s.stores.Events, nil, 0).GetIncludingDeleted(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), c)
			})
		},
	}
}

func newUserCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "user <id>",
		Short: "Rebuild a user from its events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, s *session) error {
				u, err := user.NewService(s.stores.Events, 0).Get(ctx, args[0])
				if err != nil {
					return err
				}
				u.PasswordHash = ""
				return printJSON(cmd.OutOrStdout(), u)
			})
		},
	}
}

func newBookingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "booking <id>",
		Short: "Rebuild a booking from its events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, s *session) error {
				b, err := booking.NewService(s.stores.Events, nil).Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), b)
			})
		},
	}
}

// fleetStats is the report printed by the stats command
type fleetStats struct {
	Events           int                `json:"events"`
	CarsByType       query.Breakdown    `json:"cars_by_type"`
	CarsByLocation   query.Breakdown    `json:"cars_by_location"`
	PriceRanges      query.Breakdown    `json:"price_ranges"`
	BookingsByStatus query.Breakdown    `json:"bookings_by_status"`
	Users            *user.Stats        `json:"users"`
	Searches         *search.Statistics `json:"searches"`
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Replay the whole log and print fleet, booking, user and search statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, func(ctx context.Context, s *session) error {
				report, err := buildStats(ctx, s.stores.Events)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	}
}

func buildStats(ctx context.Context, es store.EventStoreInterface) (*fleetStats, error) {
	readStore := store.NewReadStore()
	n, err := projection.NewProjector(readStore).Replay(ctx, es)
	if err != nil {
		return nil, err
	}
	queries := query.NewHandler(readStore, nil)

	report := &fleetStats{Events: n, BookingsByStatus: queries.BookingsByStatus(), Searches: queries.SearchAnalytics()}
	if report.CarsByType, err = queries.CarsByType(ctx); err != nil {
		return nil, err
	}
	if report.CarsByLocation, err = queries.CarsByLocation(ctx); err != nil {
		return nil, err
	}
	if report.PriceRanges, err = queries.PriceRanges(ctx); err != nil {
		return nil, err
	}
	if report.Users, err = user.NewService(es, 0).Stats(ctx); err != nil {
		return nil, err
	}
	return report, nil
}
