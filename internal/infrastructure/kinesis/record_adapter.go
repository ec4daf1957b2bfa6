package kinesis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/example/car-rental-events/internal/infrastructure/store"
	"github.com/rs/zerolog/log"
)

// streamInsert is the only stream operation that carries a new event;
// the events table is append-only so MODIFY and REMOVE are never domain events.
const streamInsert = "INSERT"

var errNilImage = errors.New("stream record has no new image")

// EventFromKinesisRecord decodes a Kinesis record produced by the events
// table's stream integration. It returns nil, nil for non-insert records.
func EventFromKinesisRecord(record events.KinesisEventRecord) (*store.Event, error) {
	var change events.DynamoDBEventRecord
	if err := json.Unmarshal(record.Kinesis.Data, &change); err != nil {
		return nil, fmt.Errorf("decode stream record: %w", err)
	}
	return EventFromStreamRecord(change)
}

// EventFromStreamRecord decodes a DynamoDB Streams record directly.
func EventFromStreamRecord(record events.DynamoDBEventRecord) (*store.Event, error) {
	if record.EventName != streamInsert {
		return nil, nil
	}
	return eventFromImage(record.Change.NewImage)
}

// eventFromImage reads the attributes DynamoEventStore writes.
func eventFromImage(image map[string]events.DynamoDBAttributeValue) (*store.Event, error) {
	if image == nil {
		return nil, errNilImage
	}

	str := func(name string) string {
		if v, ok := image[name]; ok && v.DataType() == events.DataTypeString {
			return v.String()
		}
		return ""
	}

	event := &store.Event{
		ID:            str("id"),
		AggregateID:   str("aggregate_id"),
		AggregateType: str("aggregate_type"),
		EventType:     str("event_type"),
		UserID:        str("user_id"),
	}
	if event.ID == "" || event.AggregateID == "" || event.EventType == "" {
		return nil, fmt.Errorf("incomplete event: id=%q aggregate_id=%q event_type=%q",
			event.ID, event.AggregateID, event.EventType)
	}

	if data := str("data"); data != "" {
		if !json.Valid([]byte(data)) {
			return nil, fmt.Errorf("event %s: data is not valid JSON", event.ID)
		}
		event.Data = json.RawMessage(data)
	}
	if created := str("created_at"); created != "" {
		ts, err := time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return nil, fmt.Errorf("event %s: created_at: %w", event.ID, err)
		}
		event.Timestamp = ts
	}
	if v, ok := image["version"]; ok {
		version, err := v.Integer()
		if err != nil {
			return nil, fmt.Errorf("event %s: version: %w", event.ID, err)
		}
		event.Version = int(version)
	}

	return event, nil
}

// ProcessBatch decodes every record and passes the events to handle in
// order. Records that fail to decode or handle are returned as batch item
// failures so Lambda retries only those. Non-insert records are skipped.
func ProcessBatch(ctx context.Context, batch events.KinesisEvent, handle func(context.Context, store.Event) error) events.KinesisEventResponse {
	var failures []events.KinesisBatchItemFailure
	for _, record := range batch.Records {
		logger := log.With().Str("component", "kinesis").Str("record_id", record.EventID).Logger()

		event, err := EventFromKinesisRecord(record)
		if err != nil {
			logger.Error().Err(err).Msg("failed to decode record")
			failures = append(failures, events.KinesisBatchItemFailure{ItemIdentifier: record.Kinesis.SequenceNumber})
			continue
		}
		if event == nil {
			continue
		}
		if err := handle(ctx, *event); err != nil {
			logger.Error().Err(err).Str("event_id", event.ID).Msg("failed to handle event")
			failures = append(failures, events.KinesisBatchItemFailure{ItemIdentifier: record.Kinesis.SequenceNumber})
		}
	}

	log.Info().Str("component", "kinesis").
		Int("records", len(batch.Records)).
		Int("failed", len(failures)).
		Msg("batch processed")
	return events.KinesisEventResponse{BatchItemFailures: failures}
}
