package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rsv360/reservation-core/api"
	"github.com/rsv360/reservation-core/config"
	"github.com/rsv360/reservation-core/internal/bootstrap"
	"github.com/rsv360/reservation-core/internal/cache"
	"github.com/rsv360/reservation-core/internal/kafka"
	"github.com/rsv360/reservation-core/internal/repository"
	"github.com/rsv360/reservation-core/internal/service/availability"
	"github.com/rsv360/reservation-core/internal/service/properties"
	"github.com/rsv360/reservation-core/internal/service/reservation"
	"github.com/rsv360/reservation-core/internal/service/webhook"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	redisCache := cache.NewRedisCache(cfg.Redis, time.Duration(cfg.Booking.CalendarCacheTTLSeconds)*time.Second)
	producer := kafka.NewProducer(cfg.Kafka.Brokers)
	defer producer.Close()

	propertyRepo := repository.NewPropertyRepository(pool)
	availabilityRepo := repository.NewAvailabilityRepository(pool)
	reservationRepo := repository.NewReservationRepository(pool)
	webhookRepo := repository.NewWebhookRepository(pool)
	paymentRepo := repository.NewPaymentRepository(pool)

	ledger := availability.NewLedgerService(availabilityRepo, propertyRepo, redisCache)
	propertyService := properties.NewPropertyService(propertyRepo, redisCache)
	reservationService := reservation.NewReservationService(
		reservationRepo,
		propertyRepo,
		paymentRepo,
		ledger,
		redisCache,
		producer,
		cfg.Kafka.ReservationTopic,
		cfg.Booking.HoldTTL(),
		cfg.Booking.MinAdvanceHours,
		reservation.WithNotificationsTopic(cfg.Kafka.NotificationsTopic),
	)
	webhookService := webhook.NewWebhookService(
		webhookRepo,
		paymentRepo,
		reservationService,
		cfg.Webhook.MaxRetries,
		time.Duration(cfg.Webhook.RetryBackoffSeconds)*time.Second,
		time.Duration(cfg.Webhook.RetryBackoffCapSeconds)*time.Second,
	)

	handlers := bootstrap.Handlers{
		Properties:   api.NewPropertyHandler(propertyService, ledger),
		Reservations: api.NewReservationHandler(reservationService),
		Timeshare:    api.NewTimeshareHandler(ledger, reservationService),
		Webhooks:     api.NewWebhookHandler(webhookService),
	}

	if err := bootstrap.Run(ctx, cfg, handlers); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
