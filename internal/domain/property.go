package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Property struct {
	ID              int64
	Title           string
	City            string
	BasePrice       decimal.Decimal
	CleaningFee     decimal.Decimal
	MinStay         int
	MinAdvanceHours int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Share is a fractional ownership unit of a property entitling the holder
// to specific weeks per year, tracked separately from nightly inventory.
type Share struct {
	ID         int64
	PropertyID int64
	OwnerID    int64
	Fraction   int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
