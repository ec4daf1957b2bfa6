package main

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/example/car-rental-events/internal/config"
	"github.com/example/car-rental-events/internal/email"
	"github.com/example/car-rental-events/internal/infrastructure/kinesis"
	"github.com/example/car-rental-events/internal/logging"
	"github.com/example/car-rental-events/internal/notification"
	"github.com/rs/zerolog/log"
)

var notificationHandler *notification.Handler

func init() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	// CloudWatch ingests one JSON object per line
	logging.Setup(cfg.LogLevel, "json")

	emailSvc := email.NewService(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom)
	notificationHandler = notification.NewHandler(emailSvc)

	log.Info().Str("component", "lambda-notifier").Str("smtp", cfg.SMTPHost+":"+cfg.SMTPPort).Msg("initialized")
}

func handler(ctx context.Context, batch events.KinesisEvent) (events.KinesisEventResponse, error) {
	return kinesis.ProcessBatch(ctx, batch, notificationHandler.Notify), nil
}

func main() {
	lambda.Start(handler)
}
