package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/rsv360/reservation-core/internal/domain"
	"github.com/rsv360/reservation-core/internal/repository"
)

// WebhookUseCase deduplicates gateway notifications by (gateway, event id)
// and drives each logical event through pending -> processing -> processed /
// failed, applying its business effect exactly once regardless of how many
// times the gateway delivers it.
type WebhookUseCase interface {
	Receive(ctx context.Context, gateway, eventID, eventType string, payload []byte) (*domain.WebhookEvent, bool, error)
	Process(ctx context.Context, gateway, eventID string) error
	RetryFailed(ctx context.Context) (int, error)
	DeadLetters(ctx context.Context, limit int) ([]domain.WebhookEvent, error)
}

// Reservations is the slice of the allocator the processor uses to apply
// payment effects. Every effect is a version-guarded mutation, so replays
// and out-of-order deliveries cannot corrupt reservation state.
type Reservations interface {
	GetReservation(ctx context.Context, id string) (*domain.Reservation, error)
	UpdateReservation(ctx context.Context, id string, expectedVersion int64, m domain.ReservationMutation) (*domain.Reservation, error)
	RefundReservation(ctx context.Context, id string, expectedVersion int64) (*domain.Reservation, error)
}

type WebhookService struct {
	events       repository.WebhookRepository
	payments     repository.PaymentRepository
	reservations Reservations
	maxRetries   int
	backoffBase  time.Duration
	backoffCap   time.Duration
}

func NewWebhookService(events repository.WebhookRepository, payments repository.PaymentRepository, reservations Reservations, maxRetries int, backoffBase, backoffCap time.Duration) *WebhookService {
	return &WebhookService{
		events:       events,
		payments:     payments,
		reservations: reservations,
		maxRetries:   maxRetries,
		backoffBase:  backoffBase,
		backoffCap:   backoffCap,
	}
}

// Receive records the delivery. The second return value reports whether this
// is the first time the logical event was seen; redeliveries map onto the
// existing row and must trigger nothing further.
func (s *WebhookService) Receive(ctx context.Context, gateway, eventID, eventType string, payload []byte) (*domain.WebhookEvent, bool, error) {
	event := &domain.WebhookEvent{
		ID:        uuid.NewString(),
		Gateway:   gateway,
		EventID:   eventID,
		EventType: eventType,
		Payload:   payload,
	}
	isNew, err := s.events.InsertIfAbsent(ctx, event)
	if err != nil {
		return nil, false, err
	}
	return event, isNew, nil
}

// Process claims the event and applies its business effect. The claim is a
// conditional transition (PENDING/FAILED under the retry ceiling only), so
// two workers racing on the same event resolve to one execution. A failed
// effect marks the row FAILED with the error and an incremented retry count;
// reservation state stays whatever it was before the attempt.
func (s *WebhookService) Process(ctx context.Context, gateway, eventID string) error {
	event, err := s.events.ClaimProcessing(ctx, gateway, eventID, s.maxRetries)
	if err != nil {
		return err
	}

	if err := s.apply(ctx, event); err != nil {
		if markErr := s.events.MarkFailed(ctx, gateway, eventID, err.Error()); markErr != nil {
			log.Printf("mark webhook %s:%s failed: %v", gateway, eventID, markErr)
		}
		return err
	}
	return s.events.MarkProcessed(ctx, gateway, eventID)
}

// RetryFailed re-runs failed events whose backoff delay has elapsed. The
// delay doubles per attempt from backoffBase up to backoffCap; events past
// the retry ceiling are left FAILED for an operator.
func (s *WebhookService) RetryFailed(ctx context.Context) (int, error) {
	retryable, err := s.events.ListRetryable(ctx, s.maxRetries, 100)
	if err != nil {
		return 0, err
	}

	retried := 0
	now := time.Now()
	for _, event := range retryable {
		if event.UpdatedAt.Add(s.backoff(event.RetryCount)).After(now) {
			continue
		}
		if err := s.Process(ctx, event.Gateway, event.EventID); err != nil {
			if errors.Is(err, domain.ErrEventNotClaimable) {
				continue
			}
			log.Printf("retry webhook %s:%s: %v", event.Gateway, event.EventID, err)
			continue
		}
		retried++
	}
	return retried, nil
}

func (s *WebhookService) DeadLetters(ctx context.Context, limit int) ([]domain.WebhookEvent, error) {
	return s.events.ListDead(ctx, s.maxRetries, limit)
}

func (s *WebhookService) backoff(retryCount int) time.Duration {
	d := s.backoffBase
	for i := 0; i < retryCount && d < s.backoffCap; i++ {
		d *= 2
	}
	if d > s.backoffCap {
		d = s.backoffCap
	}
	return d
}

func (s *WebhookService) apply(ctx context.Context, event *domain.WebhookEvent) error {
	transactionID, err := extractTransactionID(event.Gateway, event.Payload)
	if err != nil {
		return err
	}
	if transactionID == "" {
		// Nothing to correlate; acknowledge and move on.
		return nil
	}

	payment, err := s.payments.GetByGatewayTransaction(ctx, event.Gateway, transactionID)
	if err != nil {
		if errors.Is(err, domain.ErrPaymentNotFound) {
			log.Printf("webhook %s:%s references unknown transaction %s", event.Gateway, event.EventID, transactionID)
			return nil
		}
		return err
	}

	switch event.EventType {
	case "payment_intent.succeeded", "payment.approved":
		if err := s.payments.SetStatus(ctx, payment.ID, domain.PaymentStateConfirmed); err != nil {
			return err
		}
		return s.markPaid(ctx, payment.ReservationID)
	case "payment_intent.payment_failed", "payment.rejected":
		if err := s.payments.SetStatus(ctx, payment.ID, domain.PaymentStateFailed); err != nil {
			return err
		}
		return s.markPaymentFailed(ctx, payment.ReservationID)
	case "charge.refunded", "payment.refunded":
		if err := s.payments.SetStatus(ctx, payment.ID, domain.PaymentStateRefunded); err != nil {
			return err
		}
		return s.refund(ctx, payment.ReservationID)
	default:
		// Unhandled event types are acknowledged without side effects.
		return nil
	}
}

// casAttempts bounds the re-read loop when a payment effect loses the
// version CAS to a concurrent mutation. Each retry re-reads fresh state, so
// the effect stays idempotent.
const casAttempts = 3

func (s *WebhookService) markPaid(ctx context.Context, reservationID string) error {
	for attempt := 0; attempt < casAttempts; attempt++ {
		res, err := s.reservations.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if res.PaymentStatus == domain.PaymentStatusPaid {
			return nil
		}

		paid := domain.PaymentStatusPaid
		m := domain.ReservationMutation{PaymentStatus: &paid, PaidAmount: &res.TotalAmount}
		if res.Status == domain.ReservationStatusPending {
			confirmed := domain.ReservationStatusConfirmed
			m.Status = &confirmed
		}
		if _, err := s.reservations.UpdateReservation(ctx, reservationID, res.Version, m); err != nil {
			if errors.Is(err, domain.ErrVersionConflict) {
				continue
			}
			return err
		}
		return nil
	}
	return fmt.Errorf("%w: gave up after %d attempts", domain.ErrVersionConflict, casAttempts)
}

func (s *WebhookService) markPaymentFailed(ctx context.Context, reservationID string) error {
	for attempt := 0; attempt < casAttempts; attempt++ {
		res, err := s.reservations.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if res.PaymentStatus == domain.PaymentStatusFailed {
			return nil
		}

		failed := domain.PaymentStatusFailed
		if _, err := s.reservations.UpdateReservation(ctx, reservationID, res.Version, domain.ReservationMutation{PaymentStatus: &failed}); err != nil {
			if errors.Is(err, domain.ErrVersionConflict) {
				continue
			}
			return err
		}
		return nil
	}
	return fmt.Errorf("%w: gave up after %d attempts", domain.ErrVersionConflict, casAttempts)
}

func (s *WebhookService) refund(ctx context.Context, reservationID string) error {
	for attempt := 0; attempt < casAttempts; attempt++ {
		res, err := s.reservations.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if res.Status == domain.ReservationStatusRefunded {
			return nil
		}
		if _, err := s.reservations.RefundReservation(ctx, reservationID, res.Version); err != nil {
			if errors.Is(err, domain.ErrVersionConflict) {
				continue
			}
			return err
		}
		return nil
	}
	return fmt.Errorf("%w: gave up after %d attempts", domain.ErrVersionConflict, casAttempts)
}

// ExtractEvent pulls the gateway-assigned event id and type out of a raw
// webhook body. Stripe sends {id, type}; Mercado Pago sends {id, action,
// data:{id}}.
func ExtractEvent(gateway string, payload []byte) (eventID, eventType string, err error) {
	switch gateway {
	case "mercado_pago":
		var env mercadoPagoEnvelope
		if err := json.Unmarshal(payload, &env); err != nil {
			return "", "", fmt.Errorf("decode %s payload: %w", gateway, err)
		}
		eventType = env.Action
		eventID = env.ID
		if eventID == "" {
			eventID = env.Data.ID
		}
	default:
		var env stripeEnvelope
		if err := json.Unmarshal(payload, &env); err != nil {
			return "", "", fmt.Errorf("decode %s payload: %w", gateway, err)
		}
		eventID, eventType = env.ID, env.Type
	}
	if eventType == "" {
		eventType = "unknown"
	}
	return eventID, eventType, nil
}

type stripeEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID string `json:"id"`
		} `json:"object"`
	} `json:"data"`
}

type mercadoPagoEnvelope struct {
	ID     string `json:"id"`
	Action string `json:"action"`
	Data   struct {
		ID string `json:"id"`
	} `json:"data"`
}

func extractTransactionID(gateway string, payload []byte) (string, error) {
	switch gateway {
	case "mercado_pago":
		var env mercadoPagoEnvelope
		if err := json.Unmarshal(payload, &env); err != nil {
			return "", fmt.Errorf("decode %s payload: %w", gateway, err)
		}
		return env.Data.ID, nil
	default:
		var env stripeEnvelope
		if err := json.Unmarshal(payload, &env); err != nil {
			return "", fmt.Errorf("decode %s payload: %w", gateway, err)
		}
		return env.Data.Object.ID, nil
	}
}

var _ WebhookUseCase = (*WebhookService)(nil)
