// Package bootstrap builds the event store and car repository selected by
// configuration. It is shared by the API server and eventctl.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/example/car-rental-events/internal/config"
	"github.com/example/car-rental-events/internal/domain/car"
	"github.com/example/car-rental-events/internal/infrastructure/relational"
	"github.com/example/car-rental-events/internal/infrastructure/store"
	"github.com/rs/zerolog/log"
)

// Stores holds the opened backends. Close releases every connection.
type Stores struct {
	Events store.EventStoreInterface
	db     *sql.DB
	carsDB *sql.DB
}

func (s *Stores) Close() error {
	var errs []error
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	if s.carsDB != nil && s.carsDB != s.db {
		errs = append(errs, s.carsDB.Close())
	}
	return errors.Join(errs...)
}

// OpenEventStore connects the backend named by cfg.EventStore. Publishers
// are notified after every append.
func OpenEventStore(ctx context.Context, cfg *config.Config, publishers ...store.Publisher) (*Stores, error) {
	logger := log.With().Str("component", "bootstrap").Str("event_store", cfg.EventStore).Logger()

	switch cfg.EventStore {
	case config.StoreMemory:
		logger.Warn().Msg("using in-memory event store, events are lost on exit")
		return &Stores{Events: store.NewEventStore(publishers...)}, nil

	case config.StoreSQLite:
		db, err := store.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("path", cfg.SQLitePath).Msg("event store opened")
		return &Stores{Events: store.NewSQLiteEventStore(db, publishers...), db: db}, nil

	case config.StorePostgres:
		db, err := store.ConnectPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		es := store.NewPostgresEventStore(db, publishers...)
		if err := es.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		logger.Info().Msg("event store opened")
		return &Stores{Events: es, db: db}, nil

	case config.StoreDynamo:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		es := store.NewDynamoEventStore(dynamodb.NewFromConfig(awsCfg), cfg.DynamoEventsTable, cfg.DynamoSnapshotsTable, publishers...)
		logger.Info().Str("table", cfg.DynamoEventsTable).Str("region", awsCfg.Region).Msg("event store opened")
		return &Stores{Events: es}, nil
	}
	return nil, fmt.Errorf("unknown event store %q", cfg.EventStore)
}

// CarRepository returns the car backend named by cfg.CarBackend. The
// relational backend reuses the event store's PostgreSQL connection when
// there is one.
func (s *Stores) CarRepository(ctx context.Context, cfg *config.Config, searches car.SearchRecorder) (car.Repository, error) {
	if cfg.CarBackend != config.CarsFromPostgres {
		return car.NewService(s.Events, searches, cfg.SnapshotThreshold), nil
	}

	db := s.db
	if cfg.EventStore != config.StorePostgres {
		var err error
		if db, err = store.ConnectPostgres(cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		s.carsDB = db
	}
	repo := relational.NewCarRepository(db, searches)
	if err := repo.Migrate(ctx); err != nil {
		return nil, err
	}
	log.Info().Str("component", "bootstrap").Msg("cars served from relational table")
	return repo, nil
}
