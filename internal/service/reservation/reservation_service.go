package reservation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/rsv360/reservation-core/internal/domain"
	"github.com/rsv360/reservation-core/internal/kafka"
	"github.com/rsv360/reservation-core/internal/repository"
	"github.com/shopspring/decimal"
)

// ReservationUseCase is the allocator: it orchestrates a booking attempt
// across the availability ledger and the reservation store. Contention
// errors (ErrSlotUnavailable, ErrVersionConflict) are surfaced to the caller
// for retry with fresh state, never retried here.
type ReservationUseCase interface {
	CreateReservation(ctx context.Context, input CreateReservationInput) (*domain.Reservation, error)
	CreateWeekReservation(ctx context.Context, input CreateWeekReservationInput) (*domain.Reservation, error)
	GetReservation(ctx context.Context, id string) (*domain.Reservation, error)
	UpdateReservation(ctx context.Context, id string, expectedVersion int64, m domain.ReservationMutation) (*domain.Reservation, error)
	CancelReservation(ctx context.Context, id string, expectedVersion int64) (*domain.Reservation, error)
	RefundReservation(ctx context.Context, id string, expectedVersion int64) (*domain.Reservation, error)
	InitiatePayment(ctx context.Context, reservationID, gateway, transactionID string) (*domain.Payment, error)
	ExpirePendingReservations(ctx context.Context) ([]domain.Reservation, error)
}

// Ledger is the slice of the availability ledger the allocator consumes.
type Ledger interface {
	QueryRange(ctx context.Context, propertyID int64, start, end time.Time) ([]domain.AvailabilitySlot, error)
	ReserveRange(ctx context.Context, propertyID int64, start, end time.Time, reservationID string) error
	ReleaseRange(ctx context.Context, propertyID int64, start, end time.Time, reservationID string) error
	QueryWeeks(ctx context.Context, shareID int64, year int) ([]domain.ShareWeek, error)
	ReserveWeeks(ctx context.Context, shareID int64, year int, weeks []int32, ownerID int64, reservationID string) error
	ReleaseWeeks(ctx context.Context, shareID int64, year int, weeks []int32, reservationID string) error
}

type Cache interface {
	AcquireHold(ctx context.Context, propertyID int64, start, end time.Time, ttl time.Duration) (bool, error)
	ReleaseHold(ctx context.Context, propertyID int64, start, end time.Time) error
	InvalidateCalendar(ctx context.Context, propertyID int64) error
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

type ReservationService struct {
	reservations       repository.ReservationRepository
	properties         repository.PropertyRepository
	payments           repository.PaymentRepository
	ledger             Ledger
	cache              Cache
	producer           Producer
	reservationTopic   string
	notificationsTopic string
	holdTTL            time.Duration
	minAdvanceHours    int
}

type CreateReservationInput struct {
	PropertyID  int64           `json:"property_id"`
	CustomerID  int64           `json:"customer_id"`
	StartDate   time.Time       `json:"start_date"`
	EndDate     time.Time       `json:"end_date"`
	QuotedTotal decimal.Decimal `json:"quoted_total"`
}

type CreateWeekReservationInput struct {
	ShareID int64   `json:"share_id"`
	OwnerID int64   `json:"owner_id"`
	Year    int     `json:"year"`
	Weeks   []int32 `json:"weeks"`
}

type ReservationServiceOption func(*ReservationService)

func WithNotificationsTopic(topic string) ReservationServiceOption {
	return func(s *ReservationService) {
		s.notificationsTopic = topic
	}
}

func NewReservationService(
	reservations repository.ReservationRepository,
	properties repository.PropertyRepository,
	payments repository.PaymentRepository,
	ledger Ledger,
	cache Cache,
	producer Producer,
	reservationTopic string,
	holdTTL time.Duration,
	minAdvanceHours int,
	opts ...ReservationServiceOption,
) *ReservationService {
	service := &ReservationService{
		reservations:     reservations,
		properties:       properties,
		payments:         payments,
		ledger:           ledger,
		cache:            cache,
		producer:         producer,
		reservationTopic: reservationTopic,
		holdTTL:          holdTTL,
		minAdvanceHours:  minAdvanceHours,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// CreateReservation prices and claims a date range. The ledger's ReserveRange
// is the authoritative conflict check: of two overlapping attempts exactly
// one commits and the other gets ErrSlotUnavailable. The caller must retry
// with a fresh quote; dates are never silently substituted.
func (s *ReservationService) CreateReservation(ctx context.Context, input CreateReservationInput) (*domain.Reservation, error) {
	property, err := s.properties.GetByID(ctx, input.PropertyID)
	if err != nil {
		return nil, err
	}
	if !input.EndDate.After(input.StartDate) {
		return nil, fmt.Errorf("%w: end date must be after start date", domain.ErrInvalidRange)
	}

	minAdvance := s.minAdvanceHours
	if property.MinAdvanceHours > 0 {
		minAdvance = property.MinAdvanceHours
	}
	// Check-in dates are day-granular, so the threshold is too: with a zero
	// advance window a stay starting today is still bookable.
	threshold := truncateDay(time.Now().Add(time.Duration(minAdvance) * time.Hour))
	if truncateDay(input.StartDate).Before(threshold) {
		return nil, fmt.Errorf("%w: start date is before the minimum advance-booking threshold", domain.ErrInvalidRange)
	}

	slots, err := s.ledger.QueryRange(ctx, input.PropertyID, input.StartDate, input.EndDate)
	if err != nil {
		return nil, err
	}

	nights := len(slots)
	total := decimal.Zero
	for _, slot := range slots {
		if !slot.Available || slot.Blocked() {
			return nil, domain.ErrSlotUnavailable
		}
		if nights < slot.MinStay(property.MinStay) {
			return nil, fmt.Errorf("%w: stay is shorter than the minimum of %d nights", domain.ErrInvalidRange, slot.MinStay(property.MinStay))
		}
		total = total.Add(slot.Price(property.BasePrice))
	}
	total = total.Add(property.CleaningFee)

	if !input.QuotedTotal.IsZero() && !input.QuotedTotal.Equal(total) {
		return nil, domain.ErrQuoteStale
	}

	// The hold is a best-effort damper on duplicate submissions for the same
	// range; losing it (or Redis being down) never rejects the attempt. The
	// conditional ReserveRange below stays the sole authority.
	held := false
	if s.cache != nil {
		ok, err := s.cache.AcquireHold(ctx, input.PropertyID, input.StartDate, input.EndDate, s.holdTTL)
		held = err == nil && ok
	}
	defer func() {
		if held {
			_ = s.cache.ReleaseHold(ctx, input.PropertyID, input.StartDate, input.EndDate)
		}
	}()

	res := &domain.Reservation{
		ID:            uuid.NewString(),
		PropertyID:    input.PropertyID,
		CustomerID:    input.CustomerID,
		StartDate:     input.StartDate,
		EndDate:       input.EndDate,
		Status:        domain.ReservationStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		TotalAmount:   total,
		PaidAmount:    decimal.Zero,
		ExpiresAt:     time.Now().Add(s.holdTTL),
	}

	if err := s.ledger.ReserveRange(ctx, input.PropertyID, input.StartDate, input.EndDate, res.ID); err != nil {
		return nil, err
	}
	if err := s.reservations.Create(ctx, res); err != nil {
		// The slots were claimed but the reservation row failed; hand the
		// inventory back before reporting the error.
		_ = s.ledger.ReleaseRange(ctx, input.PropertyID, input.StartDate, input.EndDate, res.ID)
		return nil, err
	}

	s.publish(ctx, "reservation_created", res)
	return res, nil
}

// CreateWeekReservation is the timeshare variant: an all-or-nothing claim
// over a set of calendar weeks, attributed to the owning member.
func (s *ReservationService) CreateWeekReservation(ctx context.Context, input CreateWeekReservationInput) (*domain.Reservation, error) {
	share, err := s.properties.GetShare(ctx, input.ShareID)
	if err != nil {
		return nil, err
	}
	if len(input.Weeks) == 0 {
		return nil, fmt.Errorf("%w: at least one week is required", domain.ErrInvalidRange)
	}
	for _, w := range input.Weeks {
		if w < 1 || w > 53 {
			return nil, fmt.Errorf("%w: week number %d out of range", domain.ErrInvalidRange, w)
		}
	}

	property, err := s.properties.GetByID(ctx, share.PropertyID)
	if err != nil {
		return nil, err
	}

	calendar, err := s.ledger.QueryWeeks(ctx, input.ShareID, input.Year)
	if err != nil {
		return nil, err
	}
	byNumber := make(map[int32]domain.ShareWeek, len(calendar))
	for _, w := range calendar {
		byNumber[int32(w.WeekNumber)] = w
	}

	baseWeekly := property.BasePrice.Mul(decimal.NewFromInt(7))
	total := decimal.Zero
	for _, n := range input.Weeks {
		week, ok := byNumber[n]
		if !ok || !week.Available || week.BlockReason != nil {
			return nil, domain.ErrSlotUnavailable
		}
		total = total.Add(week.Price(baseWeekly))
	}

	res := &domain.Reservation{
		ID:            uuid.NewString(),
		PropertyID:    share.PropertyID,
		CustomerID:    input.OwnerID,
		ShareID:       input.ShareID,
		WeekYear:      input.Year,
		WeekSet:       input.Weeks,
		Status:        domain.ReservationStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		TotalAmount:   total,
		PaidAmount:    decimal.Zero,
		ExpiresAt:     time.Now().Add(s.holdTTL),
	}

	if err := s.ledger.ReserveWeeks(ctx, input.ShareID, input.Year, input.Weeks, input.OwnerID, res.ID); err != nil {
		return nil, err
	}
	if err := s.reservations.Create(ctx, res); err != nil {
		_ = s.ledger.ReleaseWeeks(ctx, input.ShareID, input.Year, input.Weeks, res.ID)
		return nil, err
	}

	s.publish(ctx, "reservation_created", res)
	return res, nil
}

func (s *ReservationService) GetReservation(ctx context.Context, id string) (*domain.Reservation, error) {
	return s.reservations.GetByID(ctx, id)
}

// UpdateReservation commits the mutation only if the stored version still
// equals expectedVersion. ErrVersionConflict means another actor won the
// race; the caller must re-read and retry, never blindly resend.
func (s *ReservationService) UpdateReservation(ctx context.Context, id string, expectedVersion int64, m domain.ReservationMutation) (*domain.Reservation, error) {
	updated, err := s.reservations.UpdateWithVersion(ctx, id, expectedVersion, m)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, "reservation_updated", updated)
	return updated, nil
}

// CancelReservation transitions to CANCELLED and releases the slots as one
// atomic unit; a partial cancellation is never visible.
func (s *ReservationService) CancelReservation(ctx context.Context, id string, expectedVersion int64) (*domain.Reservation, error) {
	cancelled, err := s.reservations.CancelAndRelease(ctx, id, expectedVersion, domain.ReservationStatusCancelled, nil)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, cancelled.PropertyID)
	s.publish(ctx, "reservation_cancelled", cancelled)
	return cancelled, nil
}

// RefundReservation is the cancellation path driven by gateway refund
// events: same atomic release, REFUNDED terminal states.
func (s *ReservationService) RefundReservation(ctx context.Context, id string, expectedVersion int64) (*domain.Reservation, error) {
	refunded := domain.PaymentStatusRefunded
	res, err := s.reservations.CancelAndRelease(ctx, id, expectedVersion, domain.ReservationStatusRefunded, &refunded)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, res.PropertyID)
	s.publish(ctx, "reservation_refunded", res)
	return res, nil
}

// InitiatePayment records a pending gateway transaction against the
// reservation. The (gateway, transaction id) pair is what later webhook
// deliveries correlate on, so the row must exist before the gateway can
// report an outcome.
func (s *ReservationService) InitiatePayment(ctx context.Context, reservationID, gateway, transactionID string) (*domain.Payment, error) {
	res, err := s.reservations.GetByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if !res.Status.Active() {
		return nil, fmt.Errorf("%w: reservation is not payable", domain.ErrInvalidRange)
	}

	payment := &domain.Payment{
		ID:                   uuid.NewString(),
		ReservationID:        res.ID,
		Gateway:              gateway,
		GatewayTransactionID: transactionID,
		Amount:               res.TotalAmount.Sub(res.PaidAmount),
		Status:               domain.PaymentStatePending,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, err
	}
	return payment, nil
}

// ExpirePendingReservations cancels pending reservations whose hold window
// has lapsed. Each row goes through the same version-guarded cancel path, so
// a payment success racing the sweep is resolved by whichever mutation wins
// the compare-and-swap; the sweep simply skips rows it loses.
func (s *ReservationService) ExpirePendingReservations(ctx context.Context) ([]domain.Reservation, error) {
	pending, err := s.reservations.ListPendingBefore(ctx, time.Now())
	if err != nil {
		return nil, err
	}

	var expired []domain.Reservation
	for _, res := range pending {
		cancelled, err := s.reservations.CancelAndRelease(ctx, res.ID, res.Version, domain.ReservationStatusCancelled, nil)
		if err != nil {
			if errors.Is(err, domain.ErrVersionConflict) {
				continue
			}
			log.Printf("expire reservation %s: %v", res.ID, err)
			continue
		}
		s.invalidate(ctx, cancelled.PropertyID)
		s.publish(ctx, "reservation_expired", cancelled)
		expired = append(expired, *cancelled)
	}
	return expired, nil
}

func (s *ReservationService) invalidate(ctx context.Context, propertyID int64) {
	if s.cache != nil {
		_ = s.cache.InvalidateCalendar(ctx, propertyID)
	}
}

func (s *ReservationService) publish(ctx context.Context, eventType string, res *domain.Reservation) {
	if s.producer == nil || s.reservationTopic == "" {
		return
	}
	event := kafka.ReservationEvent{
		Type:          eventType,
		ReservationID: res.ID,
		PropertyID:    res.PropertyID,
		CustomerID:    res.CustomerID,
		Status:        string(res.Status),
		PaymentStatus: string(res.PaymentStatus),
		TotalAmount:   res.TotalAmount.String(),
		ExpiresAt:     res.ExpiresAt,
	}
	if err := s.producer.Publish(ctx, s.reservationTopic, res.ID, event); err != nil {
		log.Printf("failed to publish %s event for reservation %s: %v", eventType, res.ID, err)
	}
	if s.notificationsTopic != "" {
		if err := s.producer.Publish(ctx, s.notificationsTopic, res.ID, event); err != nil {
			log.Printf("failed to publish %s notification for reservation %s: %v", eventType, res.ID, err)
		}
	}
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

var _ ReservationUseCase = (*ReservationService)(nil)
