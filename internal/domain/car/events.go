package car

import "time"

const (
	EventCarAdded   = "car_added"
	EventCarUpdated = "car_updated"
	EventCarDeleted = "car_deleted"
)

// CarAdded is emitted when a car joins the fleet. Missing fields project
// to their zero value, except Available which defaults to true.
type CarAdded struct {
	Make         string  `json:"make" validate:"required"`
	Model        string  `json:"model" validate:"required"`
	Year         int     `json:"year" validate:"gte=1900,lte=2100"`
	CarType      string  `json:"car_type" validate:"required"`
	Transmission string  `json:"transmission" validate:"omitempty,oneof=automatic manual"`
	DailyRate    float64 `json:"daily_rate" validate:"gt=0"`
	Available    *bool   `json:"available,omitempty"`
	Location     string  `json:"location" validate:"required"`
	FuelType     string  `json:"fuel_type,omitempty"`
	Seats        int     `json:"seats,omitempty" validate:"gte=0,lte=20"`
	ImageURL     string  `json:"image_url,omitempty" validate:"omitempty,url"`
}

// CarUpdated carries only the fields that changed
type CarUpdated struct {
	Make         *string  `json:"make,omitempty" validate:"omitempty,min=1"`
	Model        *string  `json:"model,omitempty" validate:"omitempty,min=1"`
	Year         *int     `json:"year,omitempty" validate:"omitempty,gte=1900,lte=2100"`
	CarType      *string  `json:"car_type,omitempty" validate:"omitempty,min=1"`
	Transmission *string  `json:"transmission,omitempty" validate:"omitempty,oneof=automatic manual"`
	DailyRate    *float64 `json:"daily_rate,omitempty" validate:"omitempty,gt=0"`
	Available    *bool    `json:"available,omitempty"`
	Location     *string  `json:"location,omitempty" validate:"omitempty,min=1"`
	FuelType     *string  `json:"fuel_type,omitempty"`
	Seats        *int     `json:"seats,omitempty" validate:"omitempty,gte=0,lte=20"`
	ImageURL     *string  `json:"image_url,omitempty" validate:"omitempty,url"`
}

// IsEmpty reports whether no field is set
func (u CarUpdated) IsEmpty() bool {
	return u.Make == nil && u.Model == nil && u.Year == nil && u.CarType == nil &&
		u.Transmission == nil && u.DailyRate == nil && u.Available == nil &&
		u.Location == nil && u.FuelType == nil && u.Seats == nil && u.ImageURL == nil
}

// CarDeleted is emitted when a car leaves the fleet
type CarDeleted struct {
	DeletedAt time.Time `json:"deleted_at"`
}
