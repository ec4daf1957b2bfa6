package booking

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/example/car-rental-events/internal/domain/aggregate"
	"github.com/example/car-rental-events/internal/domain/car"
	"github.com/example/car-rental-events/internal/infrastructure/store"
	"github.com/google/uuid"
)

const AggregateType = "Booking"

var (
	ErrBookingNotFound   = aggregate.NotFound("booking")
	ErrCarUnavailable    = aggregate.Invalid("car is not available for booking")
	ErrInvalidDates      = aggregate.Invalid("end date must be at least one day after start date")
	ErrInvalidTransition = aggregate.Invalid("booking cannot change to that status")
)

const dateLayout = "2006-01-02"

// CarReader is the part of the car repository bookings need
type CarReader interface {
	Get(ctx context.Context, id string) (*car.Car, error)
}

// Request is the input for a new booking. Dates accept YYYY-MM-DD or RFC 3339.
type Request struct {
	CarID          string `json:"car_id" validate:"required"`
	CustomerID     string `json:"-"`
	CustomerName   string `json:"customer_name" validate:"required,min=2"`
	CustomerEmail  string `json:"customer_email" validate:"required,email"`
	StartDate      string `json:"start_date" validate:"required"`
	EndDate        string `json:"end_date" validate:"required"`
	PickupLocation string `json:"pickup_location" validate:"required"`
	// Pending leaves the booking awaiting an explicit confirmation
	Pending bool `json:"pending,omitempty"`
}

// Service handles booking commands and queries
type Service struct {
	eventStore store.EventStoreInterface
	cars       CarReader
	now        func() time.Time
}

func NewService(es store.EventStoreInterface, cars CarReader) *Service {
	return &Service{eventStore: es, cars: cars, now: time.Now}
}

// Create books an available car and fixes the price
func (s *Service) Create(ctx context.Context, req Request, author string) (*Booking, error) {
	req.CustomerEmail = strings.ToLower(strings.TrimSpace(req.CustomerEmail))
	if err := aggregate.Validate(req); err != nil {
		return nil, err
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		return nil, aggregate.Invalid("start_date: " + err.Error())
	}
	end, err := parseDate(req.EndDate)
	if err != nil {
		return nil, aggregate.Invalid("end_date: " + err.Error())
	}
	days := int(end.Sub(start).Hours() / 24)
	if days <= 0 {
		return nil, ErrInvalidDates
	}

	c, err := s.cars.Get(ctx, req.CarID)
	if err != nil {
		return nil, err
	}
	if !c.Available {
		return nil, ErrCarUnavailable
	}

	status := StatusConfirmed
	if req.Pending {
		status = StatusPending
	}
	if author == "" {
		author = req.CustomerEmail
	}

	id := uuid.New().String()
	event, err := s.eventStore.Append(ctx, store.AppendRequest{
		AggregateID:   id,
		AggregateType: AggregateType,
		EventType:     EventBookingCreated,
		UserID:        author,
		Data: BookingCreated{
			CarID:          c.ID,
			CarName:        c.Make + " " + c.Model,
			CustomerID:     req.CustomerID,
			CustomerName:   strings.TrimSpace(req.CustomerName),
			CustomerEmail:  req.CustomerEmail,
			StartDate:      start,
			EndDate:        end,
			PickupLocation: req.PickupLocation,
			Days:           days,
			DailyRate:      c.DailyRate,
			TotalPrice:     c.DailyRate * float64(days),
			Status:         status,
		},
		ExpectedVersion: 0,
	})
	if err != nil {
		return nil, err
	}
	b, _ := Project(id, []store.Event{*event})
	return b, nil
}

// Confirm moves a pending booking to confirmed
func (s *Service) Confirm(ctx context.Context, id, author string) error {
	b, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if b.Status != StatusPending {
		return ErrInvalidTransition
	}
	return s.append(ctx, b, EventBookingConfirmed, BookingConfirmed{ConfirmedAt: s.now().UTC()}, author)
}

// Cancel cancels a booking that is not already cancelled
func (s *Service) Cancel(ctx context.Context, id, reason, author string) error {
	b, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if b.Status == StatusCancelled {
		return ErrInvalidTransition
	}
	return s.append(ctx, b, EventBookingCancelled, BookingCancelled{Reason: reason, CancelledAt: s.now().UTC()}, author)
}

func (s *Service) append(ctx context.Context, b *Booking, eventType string, data any, author string) error {
	_, err := s.eventStore.Append(ctx, store.AppendRequest{
		AggregateID:     b.ID,
		AggregateType:   AggregateType,
		EventType:       eventType,
		UserID:          author,
		Data:            data,
		ExpectedVersion: b.Version,
	})
	return err
}

// Get returns one booking
func (s *Service) Get(ctx context.Context, id string) (*Booking, error) {
	b, found, err := aggregate.LoadAggregate(ctx, s.eventStore, id, func() *Booking { return New(id) })
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrBookingNotFound
	}
	return b, nil
}

// List returns every booking in creation order
func (s *Service) List(ctx context.Context) ([]*Booking, error) {
	return s.list(ctx, func(*Booking) bool { return true })
}

// ListForCustomer returns the bookings made by one customer
func (s *Service) ListForCustomer(ctx context.Context, customerID string) ([]*Booking, error) {
	return s.list(ctx, func(b *Booking) bool { return b.CustomerID == customerID })
}

func (s *Service) list(ctx context.Context, keep func(*Booking) bool) ([]*Booking, error) {
	created, err := s.eventStore.GetEventsByType(ctx, EventBookingCreated)
	if err != nil {
		return nil, err
	}
	out := make([]*Booking, 0, len(created))
	for _, e := range created {
		b, err := s.Get(ctx, e.AggregateID)
		if errors.Is(err, ErrBookingNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if keep(b) {
			out = append(out, b)
		}
	}
	return out, nil
}

func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(dateLayout, value)
}
