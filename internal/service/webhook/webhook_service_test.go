package webhook

import (
	"context"
	"testing"
	"time"

	"github.com/rsv360/reservation-core/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockWebhookRepository struct {
	mock.Mock
}

func (m *MockWebhookRepository) InsertIfAbsent(ctx context.Context, event *domain.WebhookEvent) (bool, error) {
	args := m.Called(ctx, event)
	return args.Bool(0), args.Error(1)
}

func (m *MockWebhookRepository) GetByKey(ctx context.Context, gateway, eventID string) (*domain.WebhookEvent, error) {
	args := m.Called(ctx, gateway, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.WebhookEvent), args.Error(1)
}

func (m *MockWebhookRepository) ClaimProcessing(ctx context.Context, gateway, eventID string, maxRetries int) (*domain.WebhookEvent, error) {
	args := m.Called(ctx, gateway, eventID, maxRetries)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.WebhookEvent), args.Error(1)
}

func (m *MockWebhookRepository) MarkProcessed(ctx context.Context, gateway, eventID string) error {
	args := m.Called(ctx, gateway, eventID)
	return args.Error(0)
}

func (m *MockWebhookRepository) MarkFailed(ctx context.Context, gateway, eventID, errorMessage string) error {
	args := m.Called(ctx, gateway, eventID, errorMessage)
	return args.Error(0)
}

func (m *MockWebhookRepository) ListRetryable(ctx context.Context, maxRetries, limit int) ([]domain.WebhookEvent, error) {
	args := m.Called(ctx, maxRetries, limit)
	return args.Get(0).([]domain.WebhookEvent), args.Error(1)
}

func (m *MockWebhookRepository) ListDead(ctx context.Context, maxRetries, limit int) ([]domain.WebhookEvent, error) {
	args := m.Called(ctx, maxRetries, limit)
	return args.Get(0).([]domain.WebhookEvent), args.Error(1)
}

type MockPaymentRepository struct {
	mock.Mock
}

func (m *MockPaymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	args := m.Called(ctx, payment)
	return args.Error(0)
}

func (m *MockPaymentRepository) GetByGatewayTransaction(ctx context.Context, gateway, transactionID string) (*domain.Payment, error) {
	args := m.Called(ctx, gateway, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}

func (m *MockPaymentRepository) SetStatus(ctx context.Context, id string, status domain.PaymentState) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

type MockReservations struct {
	mock.Mock
}

func (m *MockReservations) GetReservation(ctx context.Context, id string) (*domain.Reservation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Reservation), args.Error(1)
}

func (m *MockReservations) UpdateReservation(ctx context.Context, id string, expectedVersion int64, mutation domain.ReservationMutation) (*domain.Reservation, error) {
	args := m.Called(ctx, id, expectedVersion, mutation)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Reservation), args.Error(1)
}

func (m *MockReservations) RefundReservation(ctx context.Context, id string, expectedVersion int64) (*domain.Reservation, error) {
	args := m.Called(ctx, id, expectedVersion)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Reservation), args.Error(1)
}

const (
	testMaxRetries  = 5
	testBackoffBase = 30 * time.Second
	testBackoffCap  = time.Hour
)

func newTestService(events *MockWebhookRepository, payments *MockPaymentRepository, reservations *MockReservations) *WebhookService {
	return NewWebhookService(events, payments, reservations, testMaxRetries, testBackoffBase, testBackoffCap)
}

func stripeSucceededPayload() []byte {
	return []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_123"}}}`)
}

func TestWebhookService_Receive_NewAndDuplicate(t *testing.T) {
	mockEvents := &MockWebhookRepository{}
	service := newTestService(mockEvents, &MockPaymentRepository{}, &MockReservations{})

	ctx := context.Background()
	payload := stripeSucceededPayload()

	mockEvents.On("InsertIfAbsent", ctx, mock.AnythingOfType("*domain.WebhookEvent")).Return(true, nil).Once()
	event, isNew, err := service.Receive(ctx, "stripe", "evt_1", "payment_intent.succeeded", payload)
	assert.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, "evt_1", event.EventID)

	// The gateway redelivers; the row already exists and nothing new is created.
	mockEvents.On("InsertIfAbsent", ctx, mock.AnythingOfType("*domain.WebhookEvent")).Return(false, nil).Once()
	_, isNew, err = service.Receive(ctx, "stripe", "evt_1", "payment_intent.succeeded", payload)
	assert.NoError(t, err)
	assert.False(t, isNew)

	mockEvents.AssertExpectations(t)
}

func TestWebhookService_Process_PaymentSucceeded(t *testing.T) {
	mockEvents := &MockWebhookRepository{}
	mockPayments := &MockPaymentRepository{}
	mockReservations := &MockReservations{}
	service := newTestService(mockEvents, mockPayments, mockReservations)

	ctx := context.Background()
	claimed := &domain.WebhookEvent{
		ID: "row-1", Gateway: "stripe", EventID: "evt_1",
		EventType: "payment_intent.succeeded",
		Payload:   stripeSucceededPayload(),
		Status:    domain.WebhookStatusProcessing,
	}
	payment := &domain.Payment{ID: "pay-1", ReservationID: "res-1", Gateway: "stripe", GatewayTransactionID: "pi_123"}
	pending := &domain.Reservation{
		ID: "res-1", Version: 1,
		Status:        domain.ReservationStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		TotalAmount:   decimal.NewFromInt(350),
	}
	confirmed := &domain.Reservation{ID: "res-1", Version: 2, Status: domain.ReservationStatusConfirmed, PaymentStatus: domain.PaymentStatusPaid}

	mockEvents.On("ClaimProcessing", ctx, "stripe", "evt_1", testMaxRetries).Return(claimed, nil).Once()
	mockPayments.On("GetByGatewayTransaction", ctx, "stripe", "pi_123").Return(payment, nil).Once()
	mockPayments.On("SetStatus", ctx, "pay-1", domain.PaymentStateConfirmed).Return(nil).Once()
	mockReservations.On("GetReservation", ctx, "res-1").Return(pending, nil).Once()
	mockReservations.On("UpdateReservation", ctx, "res-1", int64(1), mock.MatchedBy(func(m domain.ReservationMutation) bool {
		return m.Status != nil && *m.Status == domain.ReservationStatusConfirmed &&
			m.PaymentStatus != nil && *m.PaymentStatus == domain.PaymentStatusPaid &&
			m.PaidAmount != nil && m.PaidAmount.Equal(decimal.NewFromInt(350))
	})).Return(confirmed, nil).Once()
	mockEvents.On("MarkProcessed", ctx, "stripe", "evt_1").Return(nil).Once()

	err := service.Process(ctx, "stripe", "evt_1")
	assert.NoError(t, err)

	mockEvents.AssertExpectations(t)
	mockPayments.AssertExpectations(t)
	mockReservations.AssertExpectations(t)
}

func TestWebhookService_Process_RetriesVersionConflict(t *testing.T) {
	mockEvents := &MockWebhookRepository{}
	mockPayments := &MockPaymentRepository{}
	mockReservations := &MockReservations{}
	service := newTestService(mockEvents, mockPayments, mockReservations)

	ctx := context.Background()
	claimed := &domain.WebhookEvent{
		ID: "row-1", Gateway: "stripe", EventID: "evt_1",
		EventType: "payment_intent.succeeded",
		Payload:   stripeSucceededPayload(),
	}
	payment := &domain.Payment{ID: "pay-1", ReservationID: "res-1", Gateway: "stripe", GatewayTransactionID: "pi_123"}
	resV1 := &domain.Reservation{ID: "res-1", Version: 1, Status: domain.ReservationStatusPending, PaymentStatus: domain.PaymentStatusPending, TotalAmount: decimal.NewFromInt(350)}
	resV2 := &domain.Reservation{ID: "res-1", Version: 2, Status: domain.ReservationStatusConfirmed, PaymentStatus: domain.PaymentStatusPending, TotalAmount: decimal.NewFromInt(350)}
	resV3 := &domain.Reservation{ID: "res-1", Version: 3, Status: domain.ReservationStatusConfirmed, PaymentStatus: domain.PaymentStatusPaid}

	mockEvents.On("ClaimProcessing", ctx, "stripe", "evt_1", testMaxRetries).Return(claimed, nil).Once()
	mockPayments.On("GetByGatewayTransaction", ctx, "stripe", "pi_123").Return(payment, nil).Once()
	mockPayments.On("SetStatus", ctx, "pay-1", domain.PaymentStateConfirmed).Return(nil).Once()
	// First attempt loses the compare-and-swap to a concurrent status change.
	mockReservations.On("GetReservation", ctx, "res-1").Return(resV1, nil).Once()
	mockReservations.On("UpdateReservation", ctx, "res-1", int64(1), mock.Anything).Return(nil, domain.ErrVersionConflict).Once()
	// Second attempt re-reads fresh state and wins.
	mockReservations.On("GetReservation", ctx, "res-1").Return(resV2, nil).Once()
	mockReservations.On("UpdateReservation", ctx, "res-1", int64(2), mock.Anything).Return(resV3, nil).Once()
	mockEvents.On("MarkProcessed", ctx, "stripe", "evt_1").Return(nil).Once()

	err := service.Process(ctx, "stripe", "evt_1")
	assert.NoError(t, err)
	mockReservations.AssertExpectations(t)
}

func TestWebhookService_Process_AlreadyPaidIsNoop(t *testing.T) {
	mockEvents := &MockWebhookRepository{}
	mockPayments := &MockPaymentRepository{}
	mockReservations := &MockReservations{}
	service := newTestService(mockEvents, mockPayments, mockReservations)

	ctx := context.Background()
	claimed := &domain.WebhookEvent{
		ID: "row-1", Gateway: "stripe", EventID: "evt_1",
		EventType: "payment_intent.succeeded",
		Payload:   stripeSucceededPayload(),
	}
	payment := &domain.Payment{ID: "pay-1", ReservationID: "res-1", Gateway: "stripe", GatewayTransactionID: "pi_123"}
	paid := &domain.Reservation{ID: "res-1", Version: 2, Status: domain.ReservationStatusConfirmed, PaymentStatus: domain.PaymentStatusPaid}

	mockEvents.On("ClaimProcessing", ctx, "stripe", "evt_1", testMaxRetries).Return(claimed, nil).Once()
	mockPayments.On("GetByGatewayTransaction", ctx, "stripe", "pi_123").Return(payment, nil).Once()
	mockPayments.On("SetStatus", ctx, "pay-1", domain.PaymentStateConfirmed).Return(nil).Once()
	mockReservations.On("GetReservation", ctx, "res-1").Return(paid, nil).Once()
	mockEvents.On("MarkProcessed", ctx, "stripe", "evt_1").Return(nil).Once()

	err := service.Process(ctx, "stripe", "evt_1")
	assert.NoError(t, err)
	mockReservations.AssertNotCalled(t, "UpdateReservation", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestWebhookService_Process_UnknownTransactionAcked(t *testing.T) {
	mockEvents := &MockWebhookRepository{}
	mockPayments := &MockPaymentRepository{}
	service := newTestService(mockEvents, mockPayments, &MockReservations{})

	ctx := context.Background()
	claimed := &domain.WebhookEvent{
		ID: "row-1", Gateway: "stripe", EventID: "evt_1",
		EventType: "payment_intent.succeeded",
		Payload:   stripeSucceededPayload(),
	}

	mockEvents.On("ClaimProcessing", ctx, "stripe", "evt_1", testMaxRetries).Return(claimed, nil).Once()
	mockPayments.On("GetByGatewayTransaction", ctx, "stripe", "pi_123").Return(nil, domain.ErrPaymentNotFound).Once()
	mockEvents.On("MarkProcessed", ctx, "stripe", "evt_1").Return(nil).Once()

	err := service.Process(ctx, "stripe", "evt_1")
	assert.NoError(t, err)
	mockEvents.AssertExpectations(t)
}

func TestWebhookService_Process_FailureMarksFailed(t *testing.T) {
	mockEvents := &MockWebhookRepository{}
	mockPayments := &MockPaymentRepository{}
	service := newTestService(mockEvents, mockPayments, &MockReservations{})

	ctx := context.Background()
	claimed := &domain.WebhookEvent{
		ID: "row-1", Gateway: "stripe", EventID: "evt_1",
		EventType: "payment_intent.succeeded",
		Payload:   stripeSucceededPayload(),
	}

	mockEvents.On("ClaimProcessing", ctx, "stripe", "evt_1", testMaxRetries).Return(claimed, nil).Once()
	mockPayments.On("GetByGatewayTransaction", ctx, "stripe", "pi_123").Return(nil, assert.AnError).Once()
	mockEvents.On("MarkFailed", ctx, "stripe", "evt_1", assert.AnError.Error()).Return(nil).Once()

	err := service.Process(ctx, "stripe", "evt_1")
	assert.Error(t, err)
	mockEvents.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything, mock.Anything)
	mockEvents.AssertExpectations(t)
}

func TestWebhookService_Process_NotClaimable(t *testing.T) {
	mockEvents := &MockWebhookRepository{}
	mockPayments := &MockPaymentRepository{}
	service := newTestService(mockEvents, mockPayments, &MockReservations{})

	ctx := context.Background()
	mockEvents.On("ClaimProcessing", ctx, "stripe", "evt_1", testMaxRetries).Return(nil, domain.ErrEventNotClaimable).Once()

	err := service.Process(ctx, "stripe", "evt_1")
	assert.ErrorIs(t, err, domain.ErrEventNotClaimable)
	mockPayments.AssertNotCalled(t, "GetByGatewayTransaction", mock.Anything, mock.Anything, mock.Anything)
}

func TestWebhookService_RetryFailed_RespectsBackoff(t *testing.T) {
	mockEvents := &MockWebhookRepository{}
	mockPayments := &MockPaymentRepository{}
	service := newTestService(mockEvents, mockPayments, &MockReservations{})

	ctx := context.Background()
	now := time.Now()
	due := domain.WebhookEvent{
		Gateway: "stripe", EventID: "evt_due",
		EventType:  "unknown",
		Payload:    []byte(`{"id":"evt_due","type":"unknown"}`),
		Status:     domain.WebhookStatusFailed,
		RetryCount: 1,
		UpdatedAt:  now.Add(-5 * time.Minute),
	}
	recent := domain.WebhookEvent{
		Gateway: "stripe", EventID: "evt_recent",
		EventType:  "unknown",
		Payload:    []byte(`{"id":"evt_recent","type":"unknown"}`),
		Status:     domain.WebhookStatusFailed,
		RetryCount: 2,
		UpdatedAt:  now.Add(-10 * time.Second),
	}

	mockEvents.On("ListRetryable", ctx, testMaxRetries, 100).Return([]domain.WebhookEvent{due, recent}, nil).Once()
	// Only the event past its backoff window is reprocessed.
	mockEvents.On("ClaimProcessing", ctx, "stripe", "evt_due", testMaxRetries).Return(&due, nil).Once()
	mockEvents.On("MarkProcessed", ctx, "stripe", "evt_due").Return(nil).Once()

	retried, err := service.RetryFailed(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, retried)
	mockEvents.AssertNotCalled(t, "ClaimProcessing", ctx, "stripe", "evt_recent", testMaxRetries)
}

// webhookEventStore is an in-memory single-row store with the same
// conditional transitions as the Postgres implementation, so a sequence of
// failing attempts moves real state between calls.
type webhookEventStore struct {
	row domain.WebhookEvent
}

func (s *webhookEventStore) InsertIfAbsent(ctx context.Context, event *domain.WebhookEvent) (bool, error) {
	if s.row.EventID == event.EventID && s.row.Gateway == event.Gateway {
		return false, nil
	}
	s.row = *event
	s.row.Status = domain.WebhookStatusPending
	return true, nil
}

func (s *webhookEventStore) GetByKey(ctx context.Context, gateway, eventID string) (*domain.WebhookEvent, error) {
	row := s.row
	return &row, nil
}

func (s *webhookEventStore) ClaimProcessing(ctx context.Context, gateway, eventID string, maxRetries int) (*domain.WebhookEvent, error) {
	claimable := s.row.Status == domain.WebhookStatusPending || s.row.Status == domain.WebhookStatusFailed
	if !claimable || s.row.RetryCount >= maxRetries {
		return nil, domain.ErrEventNotClaimable
	}
	s.row.Status = domain.WebhookStatusProcessing
	row := s.row
	return &row, nil
}

func (s *webhookEventStore) MarkProcessed(ctx context.Context, gateway, eventID string) error {
	now := time.Now()
	s.row.Status = domain.WebhookStatusProcessed
	s.row.ProcessedAt = &now
	return nil
}

func (s *webhookEventStore) MarkFailed(ctx context.Context, gateway, eventID, errorMessage string) error {
	s.row.Status = domain.WebhookStatusFailed
	s.row.RetryCount++
	s.row.ErrorMessage = errorMessage
	s.row.UpdatedAt = time.Now()
	return nil
}

func (s *webhookEventStore) ListRetryable(ctx context.Context, maxRetries, limit int) ([]domain.WebhookEvent, error) {
	if s.row.Status == domain.WebhookStatusFailed && s.row.RetryCount < maxRetries {
		return []domain.WebhookEvent{s.row}, nil
	}
	return nil, nil
}

func (s *webhookEventStore) ListDead(ctx context.Context, maxRetries, limit int) ([]domain.WebhookEvent, error) {
	if s.row.Status == domain.WebhookStatusFailed && s.row.RetryCount >= maxRetries {
		return []domain.WebhookEvent{s.row}, nil
	}
	return nil, nil
}

func TestWebhookService_RetryCeiling(t *testing.T) {
	store := &webhookEventStore{}
	mockPayments := &MockPaymentRepository{}
	service := NewWebhookService(store, mockPayments, &MockReservations{}, testMaxRetries, testBackoffBase, testBackoffCap)

	ctx := context.Background()
	_, isNew, err := service.Receive(ctx, "stripe", "evt_1", "payment_intent.succeeded", stripeSucceededPayload())
	assert.NoError(t, err)
	assert.True(t, isNew)

	// The gateway transaction lookup fails on every attempt.
	mockPayments.On("GetByGatewayTransaction", ctx, "stripe", "pi_123").Return(nil, assert.AnError)

	for i := 0; i < testMaxRetries; i++ {
		err := service.Process(ctx, "stripe", "evt_1")
		assert.ErrorIs(t, err, assert.AnError)
	}
	assert.Equal(t, domain.WebhookStatusFailed, store.row.Status)
	assert.Equal(t, testMaxRetries, store.row.RetryCount)

	// Push the row past any backoff window so only the ceiling can stop it.
	store.row.UpdatedAt = time.Now().Add(-2 * testBackoffCap)

	retried, err := service.RetryFailed(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 0, retried)
	assert.Equal(t, domain.WebhookStatusFailed, store.row.Status)
	assert.Equal(t, testMaxRetries, store.row.RetryCount)

	err = service.Process(ctx, "stripe", "evt_1")
	assert.ErrorIs(t, err, domain.ErrEventNotClaimable)

	// The exhausted event surfaces on the dead-letter list for an operator.
	dead, err := service.DeadLetters(ctx, 10)
	assert.NoError(t, err)
	assert.Len(t, dead, 1)
	assert.Equal(t, "evt_1", dead[0].EventID)
}

func TestWebhookService_Backoff(t *testing.T) {
	service := newTestService(&MockWebhookRepository{}, &MockPaymentRepository{}, &MockReservations{})

	assert.Equal(t, 30*time.Second, service.backoff(0))
	assert.Equal(t, time.Minute, service.backoff(1))
	assert.Equal(t, 8*time.Minute, service.backoff(4))
	assert.Equal(t, time.Hour, service.backoff(20))
}

func TestExtractEvent(t *testing.T) {
	id, typ, err := ExtractEvent("stripe", []byte(`{"id":"evt_9","type":"charge.refunded","data":{"object":{"id":"ch_1"}}}`))
	assert.NoError(t, err)
	assert.Equal(t, "evt_9", id)
	assert.Equal(t, "charge.refunded", typ)

	id, typ, err = ExtractEvent("mercado_pago", []byte(`{"id":"mp_5","action":"payment.approved","data":{"id":"tx_7"}}`))
	assert.NoError(t, err)
	assert.Equal(t, "mp_5", id)
	assert.Equal(t, "payment.approved", typ)

	// Without a top-level id Mercado Pago falls back to the data id.
	id, typ, err = ExtractEvent("mercado_pago", []byte(`{"action":"payment.created","data":{"id":"tx_8"}}`))
	assert.NoError(t, err)
	assert.Equal(t, "tx_8", id)
	assert.Equal(t, "payment.created", typ)

	_, _, err = ExtractEvent("stripe", []byte(`not json`))
	assert.Error(t, err)
}
