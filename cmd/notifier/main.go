package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/car-rental-events/internal/config"
	"github.com/example/car-rental-events/internal/email"
	"github.com/example/car-rental-events/internal/infrastructure/kafka"
	"github.com/example/car-rental-events/internal/logging"
	"github.com/example/car-rental-events/internal/notification"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	logger := log.With().Str("component", "notifier").Logger()

	if !cfg.KafkaEnabled() {
		logger.Fatal().Msg("KAFKA_BROKERS is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	emailSvc := email.NewService(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom)
	handler := notification.NewHandler(emailSvc)

	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID)
	defer consumer.Close()

	logger.Info().
		Strs("brokers", cfg.KafkaBrokers).
		Str("topic", cfg.KafkaTopic).
		Str("group", cfg.KafkaGroupID).
		Str("smtp", cfg.SMTPHost+":"+cfg.SMTPPort).
		Msg("listening for bookings")

	if err := consumer.Consume(ctx, handler.HandleEvent); err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Msg("consumer stopped")
	}
	logger.Info().Msg("shutting down")
}
