package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/car-rental-events/internal/api"
	"github.com/example/car-rental-events/internal/auth"
	"github.com/example/car-rental-events/internal/bootstrap"
	"github.com/example/car-rental-events/internal/config"
	"github.com/example/car-rental-events/internal/domain/booking"
	"github.com/example/car-rental-events/internal/domain/car"
	"github.com/example/car-rental-events/internal/domain/search"
	"github.com/example/car-rental-events/internal/domain/user"
	"github.com/example/car-rental-events/internal/infrastructure/kafka"
	"github.com/example/car-rental-events/internal/infrastructure/store"
	"github.com/example/car-rental-events/internal/logging"
	"github.com/example/car-rental-events/internal/projection"
	"github.com/example/car-rental-events/internal/query"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	logger := log.With().Str("component", "api").Logger()

	if err := cfg.RequireJWTSecret(); err != nil {
		logger.Fatal().Err(err).Msg("cannot sign tokens")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The projector keeps the read side current in-process; Kafka carries
	// the same events to the notifier.
	readStore := store.NewReadStore()
	projector := projection.NewProjector(readStore)
	publishers := []store.Publisher{projector}
	if cfg.KafkaEnabled() {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		publishers = append(publishers, producer)
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("publishing events to kafka")
	}

	stores, err := bootstrap.OpenEventStore(ctx, cfg, publishers...)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open event store")
	}
	defer stores.Close()
	eventStore := stores.Events

	searches := search.NewRecorder(eventStore)
	cars, err := stores.CarRepository(ctx, cfg, searches)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open car repository")
	}
	users := user.NewService(eventStore, cfg.SnapshotThreshold)
	bookings := booking.NewService(eventStore, cars)

	if cfg.SeedSampleData {
		if svc, ok := cars.(*car.Service); ok {
			if _, err := svc.SeedSampleCars(ctx); err != nil {
				logger.Error().Err(err).Msg("failed to seed sample cars")
			}
		} else {
			logger.Info().Msg("sample cars are only seeded for the event-sourced car backend")
		}
	}
	if cfg.AdminEmail != "" {
		admin, err := users.EnsureAdmin(ctx, user.Registration{
			Email: cfg.AdminEmail, Password: cfg.AdminPassword, FirstName: "System", LastName: "Admin",
		})
		switch {
		case err != nil:
			logger.Error().Err(err).Msg("failed to create admin account")
		case admin != nil:
			logger.Info().Str("user_id", admin.ID).Msg("admin account created")
		}
	}

	if _, err := projector.Replay(ctx, eventStore); err != nil {
		logger.Fatal().Err(err).Msg("failed to rebuild read model")
	}

	// Reports read cars from the relational table when it owns them
	var lister query.CarLister
	if cfg.CarBackend == config.CarsFromPostgres {
		lister = cars
	}
	queries := query.NewHandler(readStore, lister)
	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	router := api.NewRouter(
		api.NewHandlers(cars, bookings, queries, eventStore),
		api.NewAuthHandlers(users, jwtService, readStore),
		api.NewAdminHandlers(users, queries),
		jwtService,
	)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Str("event_store", cfg.EventStore).
			Str("car_backend", cfg.CarBackend).Msg("server started")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}
