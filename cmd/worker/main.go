package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rsv360/reservation-core/config"
	"github.com/rsv360/reservation-core/internal/cache"
	"github.com/rsv360/reservation-core/internal/email"
	"github.com/rsv360/reservation-core/internal/kafka"
	"github.com/rsv360/reservation-core/internal/repository"
	"github.com/rsv360/reservation-core/internal/service/availability"
	"github.com/rsv360/reservation-core/internal/service/reservation"
	"github.com/rsv360/reservation-core/internal/service/webhook"
	kafkaGo "github.com/segmentio/kafka-go"
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.NotificationsTopic)
	defer consumer.Close()

	emailSender := email.NewSender()

	go func() {
		if err := consumer.Consume(ctx, func(ctx context.Context, msg kafkaGo.Message) error {
			var event kafka.ReservationEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				log.Printf("decode event error: %v", err)
				return nil
			}
			return emailSender.Send(ctx, event)
		}); err != nil {
			log.Printf("consumer stopped: %v", err)
		}
	}()

	expireTicker := time.NewTicker(time.Duration(cfg.Worker.ExpirationSweepMinutes) * time.Minute)
	defer expireTicker.Stop()

	webhookTicker := time.NewTicker(time.Duration(cfg.Worker.WebhookSweepMinutes) * time.Minute)
	defer webhookTicker.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-expireTicker.C:
			expired, err := reservationService.ExpirePendingReservations(ctx)
			if err != nil {
				log.Printf("expire reservations error: %v", err)
				continue
			}
			if len(expired) > 0 {
				log.Printf("expired %d reservations", len(expired))
			}
		case <-webhookTicker.C:
			retried, err := webhookService.RetryFailed(ctx)
			if err != nil {
				log.Printf("retry webhooks error: %v", err)
				continue
			}
			if retried > 0 {
				log.Printf("retried %d webhook events", retried)
			}
		case s := <-sig:
			log.Printf("received signal %v, shutting down", s)
			return
		}
	}
}
