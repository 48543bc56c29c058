package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type BlockReason string

const (
	BlockReasonMaintenance   BlockReason = "MAINTENANCE"
	BlockReasonOwnerReserved BlockReason = "OWNER_RESERVED"
	BlockReasonOther         BlockReason = "OTHER"
)

// AvailabilitySlot is one bookable night of a property. Rows absent from the
// store are implicitly available at the property's base price and min-stay;
// QueryRange materializes those defaults.
type AvailabilitySlot struct {
	PropertyID      int64
	Date            time.Time
	Available       bool
	PriceOverride   *decimal.Decimal
	MinStayOverride *int
	BlockReason     *BlockReason
	BlockNotes      *string
	ReservationID   *string
	UpdatedAt       time.Time
}

func (s *AvailabilitySlot) Blocked() bool {
	return s.BlockReason != nil
}

// Price resolves the nightly price, falling back to the property base price.
func (s *AvailabilitySlot) Price(base decimal.Decimal) decimal.Decimal {
	if s.PriceOverride != nil {
		return *s.PriceOverride
	}
	return base
}

// MinStay resolves the applicable minimum stay for the night.
func (s *AvailabilitySlot) MinStay(base int) int {
	if s.MinStayOverride != nil {
		return *s.MinStayOverride
	}
	return base
}

// ShareWeek is the timeshare variant of an availability slot, keyed by
// (share, week number, year). ReservedBy attributes a consumed week to the
// owning member.
type ShareWeek struct {
	ShareID       int64
	WeekNumber    int
	Year          int
	Available     bool
	PriceOverride *decimal.Decimal
	BlockReason   *BlockReason
	ReservedBy    *int64
	ReservationID *string
	UpdatedAt     time.Time
}

// Price resolves the weekly price, falling back to the given base weekly rate.
func (w *ShareWeek) Price(baseWeekly decimal.Decimal) decimal.Decimal {
	if w.PriceOverride != nil {
		return *w.PriceOverride
	}
	return baseWeekly
}
