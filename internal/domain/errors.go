package domain

import "errors"

var (
	// ErrSlotUnavailable is returned when any slot in a requested range is
	// already reserved or blocked. Recoverable: the caller should retry with
	// a fresh quote, never silently substitute dates.
	ErrSlotUnavailable = errors.New("requested dates are no longer available")

	// ErrVersionConflict is returned when a version-guarded write loses the
	// compare-and-swap. Recoverable: re-read and retry against fresh state.
	ErrVersionConflict = errors.New("reservation was modified concurrently")

	// ErrQuoteStale is returned when the caller's price quote no longer
	// matches the priced range. Retry with a fresh quote.
	ErrQuoteStale = errors.New("price quote is stale")

	ErrInvalidRange        = errors.New("invalid date range")
	ErrPropertyNotFound    = errors.New("property not found")
	ErrShareNotFound       = errors.New("share not found")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrEventNotFound       = errors.New("webhook event not found")

	// ErrEventNotClaimable means the event could not be transitioned to
	// PROCESSING: another worker owns it, it is already terminal, or the
	// retry ceiling was reached.
	ErrEventNotClaimable = errors.New("webhook event not claimable for processing")
)
