package api

import (
	"errors"
	"net/http"

	"github.com/rsv360/reservation-core/internal/domain"
)

// statusFor maps the core's error taxonomy onto HTTP codes: contention
// errors are 409 (retry with fresh state), validation errors 400, unknown
// ids 404.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSlotUnavailable),
		errors.Is(err, domain.ErrVersionConflict),
		errors.Is(err, domain.ErrQuoteStale):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidRange):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrPropertyNotFound),
		errors.Is(err, domain.ErrShareNotFound),
		errors.Is(err, domain.ErrReservationNotFound),
		errors.Is(err, domain.ErrEventNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
