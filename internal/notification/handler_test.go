package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/example/car-rental-events/internal/domain/booking"
	"github.com/example/car-rental-events/internal/domain/car"
	"github.com/example/car-rental-events/internal/email"
	"github.com/example/car-rental-events/internal/infrastructure/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMail struct {
	to      string
	details email.BookingDetails
}

type fakeMailer struct {
	sent []sentMail
	err  error
}

func (m *fakeMailer) SendBookingConfirmation(to string, b email.BookingDetails) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to: to, details: b})
	return nil
}

func newTestNotificationHandler() (*Handler, *fakeMailer) {
	mailer := &fakeMailer{}
	return NewHandler(mailer), mailer
}

func bookingEvent(t *testing.T, created booking.BookingCreated) store.Event {
	t.Helper()
	data, err := json.Marshal(created)
	require.NoError(t, err)
	return store.Event{
		ID:            "evt-1",
		AggregateID:   "booking-1",
		AggregateType: booking.AggregateType,
		EventType:     booking.EventBookingCreated,
		Data:          data,
		Timestamp:     time.Now().UTC(),
		Version:       1,
	}
}

func created() booking.BookingCreated {
	return booking.BookingCreated{
		CarID:          "car-2",
		CarName:        "Honda Civic",
		CustomerName:   "Ana Silva",
		CustomerEmail:  "ana@example.com",
		StartDate:      time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC),
		PickupLocation: "Porto",
		Days:           2,
		DailyRate:      60,
		TotalPrice:     120,
		Status:         booking.StatusConfirmed,
	}
}

func TestHandler_BookingCreatedSendsEmail(t *testing.T) {
	handler, mailer := newTestNotificationHandler()
	value, err := json.Marshal(bookingEvent(t, created()))
	require.NoError(t, err)

	require.NoError(t, handler.HandleEvent(context.Background(), []byte("booking-1"), value))

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "ana@example.com", mailer.sent[0].to)
	assert.Equal(t, "booking-1", mailer.sent[0].details.BookingID)
	assert.Equal(t, 120.0, mailer.sent[0].details.TotalPrice)
	assert.Equal(t, "Honda Civic", mailer.sent[0].details.CarName)
}

func TestHandler_IgnoresOtherEvents(t *testing.T) {
	handler, mailer := newTestNotificationHandler()

	err := handler.Notify(context.Background(), store.Event{AggregateID: "car-1", AggregateType: car.AggregateType, EventType: car.EventCarAdded, Data: json.RawMessage(`{}`)})

	require.NoError(t, err)
	assert.Empty(t, mailer.sent)
}

func TestHandler_NoRecipientIsNotAnError(t *testing.T) {
	handler, mailer := newTestNotificationHandler()
	c := created()
	c.CustomerEmail = ""

	require.NoError(t, handler.Notify(context.Background(), bookingEvent(t, c)))
	assert.Empty(t, mailer.sent)
}

func TestHandler_MailFailureIsReturned(t *testing.T) {
	handler, mailer := newTestNotificationHandler()
	mailer.err = errors.New("smtp down")

	err := handler.Notify(context.Background(), bookingEvent(t, created()))

	assert.ErrorContains(t, err, "smtp down")
}

func TestHandler_BadPayloads(t *testing.T) {
	handler, _ := newTestNotificationHandler()

	assert.Error(t, handler.HandleEvent(context.Background(), nil, []byte("not json")))

	e := bookingEvent(t, created())
	e.Data = json.RawMessage(`{"days":"three"}`)
	assert.Error(t, handler.Notify(context.Background(), e))
}
