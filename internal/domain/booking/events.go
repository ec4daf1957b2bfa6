package booking

import "time"

const (
	EventBookingCreated   = "booking_created"
	EventBookingConfirmed = "booking_confirmed"
	EventBookingCancelled = "booking_cancelled"
)

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

// BookingCreated is emitted when a customer reserves a car. The price
// fields are fixed at booking time.
type BookingCreated struct {
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
}

// BookingConfirmed is emitted when a pending booking is confirmed
type BookingConfirmed struct {
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// BookingCancelled is emitted when a booking is cancelled
type BookingCancelled struct {
	Reason      string    `json:"reason,omitempty"`
	CancelledAt time.Time `json:"cancelled_at"`
}
