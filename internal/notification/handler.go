package notification

import (
	"context"
	"fmt"

	"github.com/example/car-rental-events/internal/domain/booking"
	"github.com/example/car-rental-events/internal/email"
	"github.com/example/car-rental-events/internal/infrastructure/kafka"
	"github.com/example/car-rental-events/internal/infrastructure/store"
	"github.com/rs/zerolog/log"
)

// Mailer is the part of email.Service the handler needs
type Mailer interface {
	SendBookingConfirmation(to string, b email.BookingDetails) error
}

// Handler sends customer notifications for booking events
type Handler struct {
	mailer Mailer
}

// NewHandler creates a new notification handler
func NewHandler(mailer Mailer) *Handler {
	return &Handler{mailer: mailer}
}

// HandleEvent processes an event from Kafka
func (h *Handler) HandleEvent(ctx context.Context, _, value []byte) error {
	event, err := kafka.DecodeEvent(value)
	if err != nil {
		log.Error().Err(err).Str("component", "notifier").Msg("failed to decode event")
		return err
	}
	return h.Notify(ctx, event)
}

// Notify sends the confirmation email for booking_created and ignores
// every other event type.
func (h *Handler) Notify(_ context.Context, event store.Event) error {
	if event.EventType != booking.EventBookingCreated {
		return nil
	}

	var e booking.BookingCreated
	if err := event.Decode(&e); err != nil {
		log.Error().Err(err).Str("component", "notifier").Str("event_id", event.ID).Msg("bad booking payload")
		return err
	}

	logger := log.With().Str("component", "notifier").Str("booking_id", event.AggregateID).Logger()
	if e.CustomerEmail == "" {
		logger.Warn().Msg("booking has no customer email, nothing to send")
		return nil
	}

	details := email.BookingDetails{
		BookingID:      event.AggregateID,
		CustomerName:   e.CustomerName,
		CarName:        e.CarName,
		PickupLocation: e.PickupLocation,
		StartDate:      e.StartDate,
		EndDate:        e.EndDate,
		Days:           e.Days,
		DailyRate:      e.DailyRate,
		TotalPrice:     e.TotalPrice,
		Status:         e.Status,
	}
	if err := h.mailer.SendBookingConfirmation(e.CustomerEmail, details); err != nil {
		logger.Error().Err(err).Str("to", e.CustomerEmail).Msg("failed to send booking confirmation")
		return fmt.Errorf("notify booking %s: %w", event.AggregateID, err)
	}

	logger.Info().Str("to", e.CustomerEmail).Msg("booking confirmation sent")
	return nil
}
