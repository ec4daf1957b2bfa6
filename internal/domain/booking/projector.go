package booking

import (
	"fmt"
	"time"

	"github.com/example/car-rental-events/internal/domain/aggregate"
	"github.com/example/car-rental-events/internal/infrastructure/store"
)

// Booking is the current state of a reservation
type Booking struct {
	ID             string    `json:"id"`
	CarID          string    `json:"car_id"`
	CarName        string    `json:"car_name"`
	CustomerID     string    `json:"customer_id,omitempty"`
	CustomerName   string    `json:"customer_name"`
	CustomerEmail  string    `json:"customer_email"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
	PickupLocation string    `json:"pickup_location"`
	Days           int       `json:"days"`
	DailyRate      float64   `json:"daily_rate"`
	TotalPrice     float64   `json:"total_price"`
	Status         string    `json:"status"`
	CancelReason   string    `json:"cancel_reason,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Version        int       `json:"version"`
}

func New(id string) *Booking {
	return &Booking{ID: id}
}

func (b *Booking) GetID() string                  { return b.ID }
func (b *Booking) GetVersion() int                { return b.Version }
func (b *Booking) SetVersion(v int)               { b.Version = v }
func (b *Booking) ApplyEvent(e store.Event) error { return Apply(b, e) }

// Apply folds one event into the booking state
func Apply(b *Booking, event store.Event) error {
	switch event.EventType {
	case EventBookingCreated:
		var data BookingCreated
		if err := event.Decode(&data); err != nil {
			return err
		}
		b.CarID = data.CarID
		b.CarName = data.CarName
		b.CustomerID = data.CustomerID
		b.CustomerName = data.CustomerName
		b.CustomerEmail = data.CustomerEmail
		b.StartDate = data.StartDate
		b.EndDate = data.EndDate
		b.PickupLocation = data.PickupLocation
		b.Days = data.Days
		b.DailyRate = data.DailyRate
		b.TotalPrice = data.TotalPrice
		b.Status = data.Status
		if b.Status == "" {
			b.Status = StatusConfirmed
		}
		b.CreatedAt = event.Timestamp
		b.UpdatedAt = event.Timestamp

	case EventBookingConfirmed:
		if b.Status == StatusPending {
			b.Status = StatusConfirmed
		}
		b.UpdatedAt = event.Timestamp

	case EventBookingCancelled:
		var data BookingCancelled
		if err := event.Decode(&data); err != nil {
			return err
		}
		b.Status = StatusCancelled
		b.CancelReason = data.Reason
		b.UpdatedAt = event.Timestamp

	default:
		return fmt.Errorf("%w %q for booking %s", aggregate.ErrUnknownEvent, event.EventType, event.AggregateID)
	}
	return nil
}

// Project folds an aggregate's events into a booking
func Project(id string, events []store.Event) (*Booking, bool) {
	b := New(id)
	aggregate.Replay(b, events)
	return b, len(events) > 0
}
