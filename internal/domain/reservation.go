package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ReservationStatus string

const (
	ReservationStatusPending    ReservationStatus = "PENDING"
	ReservationStatusConfirmed  ReservationStatus = "CONFIRMED"
	ReservationStatusInProgress ReservationStatus = "IN_PROGRESS"
	ReservationStatusCompleted  ReservationStatus = "COMPLETED"
	ReservationStatusCancelled  ReservationStatus = "CANCELLED"
	ReservationStatusRefunded   ReservationStatus = "REFUNDED"
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusPartial  PaymentStatus = "PARTIAL"
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
	PaymentStatusFailed   PaymentStatus = "FAILED"
)

// Active reports whether the reservation still owns its slots. Cancelled and
// refunded reservations have released their inventory.
func (s ReservationStatus) Active() bool {
	return s != ReservationStatusCancelled && s != ReservationStatusRefunded
}

// Reservation is an allocation of one or more availability slots. Nightly
// reservations carry StartDate/EndDate (end exclusive); timeshare
// reservations carry ShareID, WeekYear and WeekSet instead.
//
// Version is the optimistic-lock token: it starts at 1 and every successful
// mutation must supply the version it read and increments it. A stale version
// is rejected, never silently overwritten.
type Reservation struct {
	ID            string
	PropertyID    int64
	CustomerID    int64
	StartDate     time.Time
	EndDate       time.Time
	ShareID       int64
	WeekYear      int
	WeekSet       []int32
	Status        ReservationStatus
	PaymentStatus PaymentStatus
	Version       int64
	TotalAmount   decimal.Decimal
	PaidAmount    decimal.Decimal
	ExpiresAt     time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (r *Reservation) Nights() int {
	return int(r.EndDate.Sub(r.StartDate).Hours() / 24)
}

// ReservationMutation is a partial update applied through the version-checked
// update path. Nil fields are left untouched.
type ReservationMutation struct {
	Status        *ReservationStatus
	PaymentStatus *PaymentStatus
	PaidAmount    *decimal.Decimal
	ExpiresAt     *time.Time
}
