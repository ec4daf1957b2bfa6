package car

import (
	"fmt"
	"time"

	"github.com/example/car-rental-events/internal/domain/aggregate"
	"github.com/example/car-rental-events/internal/infrastructure/store"
)

// Car is the current state of a car, rebuilt from its events
type Car struct {
	ID           string    `json:"id"`
	Make         string    `json:"make"`
	Model        string    `json:"model"`
	Year         int       `json:"year"`
	CarType      string    `json:"car_type"`
	Transmission string    `json:"transmission"`
	DailyRate    float64   `json:"daily_rate"`
	Available    bool      `json:"available"`
	Location     string    `json:"location"`
	FuelType     string    `json:"fuel_type"`
	Seats        int       `json:"seats"`
	ImageURL     string    `json:"image_url"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Deleted      bool      `json:"deleted"`
	Version      int       `json:"version"`
}

// New returns the zero state of a car
func New(id string) *Car {
	return &Car{ID: id, Available: true}
}

func (c *Car) GetID() string                  { return c.ID }
func (c *Car) GetVersion() int                { return c.Version }
func (c *Car) SetVersion(v int)               { c.Version = v }
func (c *Car) ApplyEvent(e store.Event) error { return Apply(c, e) }

// Apply folds one event into the car state
func Apply(c *Car, event store.Event) error {
	switch event.EventType {
	case EventCarAdded:
		var data CarAdded
		if err := event.Decode(&data); err != nil {
			return err
		}
		c.Make = data.Make
		c.Model = data.Model
		c.Year = data.Year
		c.CarType = data.CarType
		c.Transmission = data.Transmission
		c.DailyRate = data.DailyRate
		c.Available = true
		if data.Available != nil {
			c.Available = *data.Available
		}
		c.Location = data.Location
		c.FuelType = data.FuelType
		c.Seats = data.Seats
		c.ImageURL = data.ImageURL
		c.CreatedAt = event.Timestamp
		c.UpdatedAt = event.Timestamp

	case EventCarUpdated:
		var data CarUpdated
		if err := event.Decode(&data); err != nil {
			return err
		}
		merge(c, data)
		c.UpdatedAt = event.Timestamp

	case EventCarDeleted:
		c.Deleted = true
		c.Available = false
		c.UpdatedAt = event.Timestamp

	default:
		return fmt.Errorf("%w %q for car %s", aggregate.ErrUnknownEvent, event.EventType, event.AggregateID)
	}
	return nil
}

func merge(c *Car, u CarUpdated) {
	if u.Make != nil {
		c.Make = *u.Make
	}
	if u.Model != nil {
		c.Model = *u.Model
	}
	if u.Year != nil {
		c.Year = *u.Year
	}
	if u.CarType != nil {
		c.CarType = *u.CarType
	}
	if u.Transmission != nil {
		c.Transmission = *u.Transmission
	}
	if u.DailyRate != nil {
		c.DailyRate = *u.DailyRate
	}
	if u.Available != nil {
		c.Available = *u.Available
	}
	if u.Location != nil {
		c.Location = *u.Location
	}
	if u.FuelType != nil {
		c.FuelType = *u.FuelType
	}
	if u.Seats != nil {
		c.Seats = *u.Seats
	}
	if u.ImageURL != nil {
		c.ImageURL = *u.ImageURL
	}
}

// Project folds an aggregate's events into a car. The boolean is false
// when there were no events at all, which is different from a car that
// existed and was deleted.
func Project(id string, events []store.Event) (*Car, bool) {
	c := New(id)
	aggregate.Replay(c, events)
	return c, len(events) > 0
}
