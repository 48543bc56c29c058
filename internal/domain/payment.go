package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentState string

const (
	PaymentStatePending   PaymentState = "PENDING"
	PaymentStateConfirmed PaymentState = "CONFIRMED"
	PaymentStateFailed    PaymentState = "FAILED"
	PaymentStateRefunded  PaymentState = "REFUNDED"
)

// Payment ties a gateway transaction to a reservation. Webhook events locate
// the reservation through (Gateway, GatewayTransactionID).
type Payment struct {
	ID                   string
	ReservationID        string
	Gateway              string
	GatewayTransactionID string
	Amount               decimal.Decimal
	Status               PaymentState
	ConfirmedAt          *time.Time
	RefundedAt           *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}
