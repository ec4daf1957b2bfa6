package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

const (
	dynamoAllEventsIndex  = "GSI1"
	dynamoAllEventsPK     = "EVENTS"
	dynamoEventTypeIndex  = "event_type-index"
	dynamoTimestampLayout = "2006-01-02T15:04:05.000000000Z07:00" // fixed width, sorts as a string on GSI1
	dynamoAppendAttempts  = 5
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoEventStore
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoEventStore stores events in DynamoDB (partition key aggregate_id,
// sort key version). New items reach Kinesis through the table's stream
// integration, which feeds the lambda notifier.
type DynamoEventStore struct {
	client            DynamoAPI
	tableName         string
	snapshotTableName string
	publishers        []Publisher
	now               func() time.Time
}

// dynamoEvent represents the DynamoDB item structure
type dynamoEvent struct {
	AggregateID   string `dynamodbav:"aggregate_id"`
	Version       int    `dynamodbav:"version"`
	ID            string `dynamodbav:"id"`
	AggregateType string `dynamodbav:"aggregate_type"`
	EventType     string `dynamodbav:"event_type"`
	Data          string `dynamodbav:"data"`
	UserID        string `dynamodbav:"user_id,omitempty"`
	CreatedAt     string `dynamodbav:"created_at"`
	GSI1PK        string `dynamodbav:"gsi1pk"`
}

func NewDynamoEventStore(client DynamoAPI, tableName, snapshotTableName string, publishers ...Publisher) *DynamoEventStore {
	return &DynamoEventStore{
		client:            client,
		tableName:         tableName,
		snapshotTableName: snapshotTableName,
		publishers:        publishers,
		now:               time.Now,
	}
}

// Append stores an event with a conditional put, so two writers can never
// both claim the same aggregate version.
func (es *DynamoEventStore) Append(ctx context.Context, req AppendRequest) (*Event, error) {
	if err := validateRequest(req); err != nil {
		return nil, appendFailed(err)
	}
	jsonData, err := json.Marshal(req.Data)
	if err != nil {
		return nil, appendFailed(err)
	}

	var event *Event
	for attempt := 1; ; attempt++ {
		event, err = es.put(ctx, req, jsonData)
		if err == nil {
			break
		}
		var ccf *types.ConditionalCheckFailedException
		if !errors.As(err, &ccf) {
			return nil, err
		}
		if req.ExpectedVersion != AnyVersion || attempt == dynamoAppendAttempts {
			return nil, fmt.Errorf("%w: %v", ErrVersionConflict, err)
		}
	}

	publishAll(ctx, es.publishers, *event)
	return event, nil
}

// put writes the aggregate's next version. A ConditionalCheckFailedException
// is returned unwrapped so Append can decide whether to retry.
func (es *DynamoEventStore) put(ctx context.Context, req AppendRequest, data []byte) (*Event, error) {
	current, lastTS, err := es.head(ctx, req.AggregateID)
	if err != nil {
		return nil, appendFailed(fmt.Errorf("failed to get aggregate head: %w", err))
	}
	if err := checkVersion(req.ExpectedVersion, current); err != nil {
		return nil, err
	}

	event := Event{
		ID:            uuid.New().String(),
		AggregateID:   req.AggregateID,
		AggregateType: req.AggregateType,
		EventType:     req.EventType,
		Data:          data,
		UserID:        req.UserID,
		Timestamp:     nextTimestamp(es.now().UTC(), lastTS),
		Version:       current + 1,
	}

	av, err := attributevalue.MarshalMap(toDynamoEvent(event))
	if err != nil {
		return nil, appendFailed(fmt.Errorf("failed to marshal event: %w", err))
	}

	_, err = es.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(es.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(aggregate_id) AND attribute_not_exists(version)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, err
		}
		return nil, appendFailed(fmt.Errorf("failed to put event: %w", err))
	}
	return &event, nil
}

// head returns the aggregate's latest version and its timestamp
func (es *DynamoEventStore) head(ctx context.Context, aggregateID string) (int, time.Time, error) {
	result, err := es.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(es.tableName),
		KeyConditionExpression: aws.String("aggregate_id = :aid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":aid": &types.AttributeValueMemberS{Value: aggregateID},
		},
		ScanIndexForward:     aws.Bool(false), // Descending order
		Limit:                aws.Int32(1),
		ProjectionExpression: aws.String("version, created_at"),
	})
	if err != nil {
		return 0, time.Time{}, err
	}
	if len(result.Items) == 0 {
		return 0, time.Time{}, nil
	}

	var item struct {
		Version   int    `dynamodbav:"version"`
		CreatedAt string `dynamodbav:"created_at"`
	}
	if err := attributevalue.UnmarshalMap(result.Items[0], &item); err != nil {
		return 0, time.Time{}, err
	}
	ts, _ := time.Parse(time.RFC3339Nano, item.CreatedAt)
	return item.Version, ts, nil
}

// GetEvents returns all events for an aggregate from DynamoDB
func (es *DynamoEventStore) GetEvents(ctx context.Context, aggregateID string) ([]Event, error) {
	return es.GetEventsFromVersion(ctx, aggregateID, 0)
}

// GetEventsFromVersion returns events for an aggregate after a specific version
func (es *DynamoEventStore) GetEventsFromVersion(ctx context.Context, aggregateID string, fromVersion int) ([]Event, error) {
	events, err := es.queryAll(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(es.tableName),
		KeyConditionExpression: aws.String("aggregate_id = :aid AND version > :ver"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":aid": &types.AttributeValueMemberS{Value: aggregateID},
			":ver": &types.AttributeValueMemberN{Value: strconv.Itoa(fromVersion)},
		},
		ScanIndexForward: aws.Bool(true), // Ascending order by version
	})
	if err != nil {
		return nil, readFailed("events_for", aggregateID, err)
	}
	return events, nil
}

// GetEventsByType returns all events of one type ordered by creation time
func (es *DynamoEventStore) GetEventsByType(ctx context.Context, eventType string) ([]Event, error) {
	events, err := es.queryAll(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(es.tableName),
		IndexName:              aws.String(dynamoEventTypeIndex),
		KeyConditionExpression: aws.String("event_type = :et"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":et": &types.AttributeValueMemberS{Value: eventType},
		},
		ScanIndexForward: aws.Bool(true),
	})
	if err != nil {
		return nil, readFailed("events_by_type", eventType, err)
	}
	return events, nil
}

// GetAllEvents returns all events from DynamoDB using GSI1
func (es *DynamoEventStore) GetAllEvents(ctx context.Context) ([]Event, error) {
	events, err := es.queryAll(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(es.tableName),
		IndexName:              aws.String(dynamoAllEventsIndex),
		KeyConditionExpression: aws.String("gsi1pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: dynamoAllEventsPK},
		},
		ScanIndexForward: aws.Bool(true), // Ascending order by created_at
	})
	if err != nil {
		return nil, readFailed("all_events", "", err)
	}
	return events, nil
}

// queryAll follows LastEvaluatedKey until the result set is exhausted
func (es *DynamoEventStore) queryAll(ctx context.Context, input *dynamodb.QueryInput) ([]Event, error) {
	var events []Event
	for {
		result, err := es.client.Query(ctx, input)
		if err != nil {
			return nil, err
		}
		page, err := unmarshalDynamoEvents(result.Items)
		if err != nil {
			return nil, err
		}
		events = append(events, page...)
		if len(result.LastEvaluatedKey) == 0 {
			return events, nil
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
}

func toDynamoEvent(e Event) dynamoEvent {
	return dynamoEvent{
		AggregateID:   e.AggregateID,
		Version:       e.Version,
		ID:            e.ID,
		AggregateType: e.AggregateType,
		EventType:     e.EventType,
		Data:          string(e.Data),
		UserID:        e.UserID,
		CreatedAt:     e.Timestamp.Format(dynamoTimestampLayout),
		GSI1PK:        dynamoAllEventsPK, // Fixed value for GSI1 to enable GetAllEvents
	}
}

// unmarshalDynamoEvents converts DynamoDB items to an Event slice
func unmarshalDynamoEvents(items []map[string]types.AttributeValue) ([]Event, error) {
	events := make([]Event, 0, len(items))

	for _, item := range items {
		var de dynamoEvent
		if err := attributevalue.UnmarshalMap(item, &de); err != nil {
			return nil, fmt.Errorf("unmarshal event item: %w", err)
		}

		timestamp, err := time.Parse(time.RFC3339Nano, de.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at of event %s: %w", de.ID, err)
		}

		events = append(events, Event{
			ID:            de.ID,
			AggregateID:   de.AggregateID,
			AggregateType: de.AggregateType,
			EventType:     de.EventType,
			Data:          json.RawMessage(de.Data),
			UserID:        de.UserID,
			Timestamp:     timestamp,
			Version:       de.Version,
		})
	}

	return events, nil
}

// dynamoSnapshot is stored in a separate table keyed by aggregate_id
type dynamoSnapshot struct {
	AggregateID   string `dynamodbav:"aggregate_id"`
	AggregateType string `dynamodbav:"aggregate_type"`
	Version       int    `dynamodbav:"version"`
	State         string `dynamodbav:"state"`
	CreatedAt     string `dynamodbav:"created_at"`
}

// SaveSnapshot stores a snapshot in the dedicated snapshots table
func (es *DynamoEventStore) SaveSnapshot(ctx context.Context, snapshot *Snapshot) error {
	item := dynamoSnapshot{
		AggregateID:   snapshot.AggregateID,
		AggregateType: snapshot.AggregateType,
		Version:       snapshot.Version,
		State:         string(snapshot.State),
		CreatedAt:     snapshot.CreatedAt.Format(dynamoTimestampLayout),
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	// Overwrite existing snapshot (no condition)
	_, err = es.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(es.snapshotTableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("failed to put snapshot: %w", err)
	}

	return nil
}

// GetSnapshot retrieves the snapshot for an aggregate from the snapshots table
func (es *DynamoEventStore) GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error) {
	result, err := es.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(es.snapshotTableName),
		Key: map[string]types.AttributeValue{
			"aggregate_id": &types.AttributeValueMemberS{Value: aggregateID},
		},
	})
	if err != nil {
		return nil, readFailed("snapshot", aggregateID, err)
	}

	if result.Item == nil {
		return nil, nil // No snapshot exists
	}

	var ds dynamoSnapshot
	if err := attributevalue.UnmarshalMap(result.Item, &ds); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	createdAt, _ := time.Parse(time.RFC3339Nano, ds.CreatedAt)

	return &Snapshot{
		AggregateID:   ds.AggregateID,
		AggregateType: ds.AggregateType,
		Version:       ds.Version,
		State:         json.RawMessage(ds.State),
		CreatedAt:     createdAt,
	}, nil
}
