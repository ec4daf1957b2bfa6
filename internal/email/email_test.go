package email

import (
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleBooking() BookingDetails {
	return BookingDetails{
		BookingID:      "5f0c7a2e-1111-2222-3333-444455556666",
		CustomerName:   "Ana <Silva>",
		CarName:        "Toyota Corolla",
		PickupLocation: "Lisbon",
		StartDate:      time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2025, 6, 4, 0, 0, 0, 0, time.UTC),
		Days:           3,
		DailyRate:      1250,
		TotalPrice:     3750,
		Status:         "confirmed",
	}
}

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "$0.00"},
		{45, "$45.00"},
		{999.5, "$999.50"},
		{1000, "$1,000.00"},
		{1234567.891, "$1,234,567.89"},
		{-1500, "-$1,500.00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatMoney(tt.in))
	}
}

func TestBuildBookingConfirmationBody(t *testing.T) {
	body, err := BuildBookingConfirmationBody(sampleBooking())

	require.NoError(t, err)
	assert.Contains(t, body, "Toyota Corolla")
	assert.Contains(t, body, "5f0c7a2e")
	assert.Contains(t, body, "$3,750.00")
	assert.Contains(t, body, "Sun 1 Jun 2025")
	assert.Contains(t, body, "Ana &lt;Silva&gt;")
	assert.NotContains(t, body, "<Silva>")
}

func TestService_SendBookingConfirmation(t *testing.T) {
	svc := NewService("mail.local", "1025", "bookings@rental.example")
	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	svc.sendMail = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}

	require.NoError(t, svc.SendBookingConfirmation("ana@example.com", sampleBooking()))

	assert.Equal(t, "mail.local:1025", gotAddr)
	assert.Equal(t, []string{"ana@example.com"}, gotTo)
	assert.True(t, strings.HasPrefix(gotMsg, "From: bookings@rental.example\r\nTo: ana@example.com\r\n"))
	assert.Contains(t, gotMsg, "Subject: Booking confirmed: Toyota Corolla (ref 5f0c7a2e)")
}

func TestService_SendBookingConfirmation_Errors(t *testing.T) {
	svc := NewService("mail.local", "1025", "bookings@rental.example")
	svc.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("connection refused")
	}

	assert.Error(t, svc.SendBookingConfirmation("", sampleBooking()))
	assert.ErrorContains(t, svc.SendBookingConfirmation("ana@example.com", sampleBooking()), "connection refused")
}
