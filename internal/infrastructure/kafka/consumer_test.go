package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/example/car-rental-events/internal/infrastructure/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEvent(t *testing.T) {
	original := store.Event{
		ID:            "evt-1",
		AggregateID:   "booking-1",
		AggregateType: "Booking",
		EventType:     "booking_created",
		Data:          json.RawMessage(`{"car_id":"car-1"}`),
		UserID:        "jan@example.com",
		Timestamp:     time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		Version:       1,
	}
	value, err := json.Marshal(original)
	require.NoError(t, err)

	decoded, err := DecodeEvent(value)

	require.NoError(t, err)
	assert.Equal(t, original.AggregateID, decoded.AggregateID)
	assert.Equal(t, original.EventType, decoded.EventType)
	assert.True(t, original.Timestamp.Equal(decoded.Timestamp))
	assert.JSONEq(t, `{"car_id":"car-1"}`, string(decoded.Data))
}

func TestDecodeEvent_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"not json", `{{`},
		{"no aggregate", `{"event_type":"car_added"}`},
		{"no event type", `{"aggregate_id":"car-1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEvent([]byte(tt.value))
			assert.Error(t, err)
		})
	}
}
