package availability

import (
	"context"
	"time"

	"github.com/rsv360/reservation-core/internal/domain"
	"github.com/rsv360/reservation-core/internal/repository"
)

// LedgerUseCase is the availability ledger: the single authority over slot
// and week state. All mutation of shared inventory funnels through it; no
// caller writes slot fields directly.
type LedgerUseCase interface {
	QueryRange(ctx context.Context, propertyID int64, start, end time.Time) ([]domain.AvailabilitySlot, error)
	ReserveRange(ctx context.Context, propertyID int64, start, end time.Time, reservationID string) error
	ReleaseRange(ctx context.Context, propertyID int64, start, end time.Time, reservationID string) error
	BlockDates(ctx context.Context, propertyID int64, dates []time.Time, reason domain.BlockReason, notes string) (int64, error)
	UnblockDates(ctx context.Context, propertyID int64, dates []time.Time) error

	QueryWeeks(ctx context.Context, shareID int64, year int) ([]domain.ShareWeek, error)
	ReserveWeeks(ctx context.Context, shareID int64, year int, weeks []int32, ownerID int64, reservationID string) error
	ReleaseWeeks(ctx context.Context, shareID int64, year int, weeks []int32, reservationID string) error
	BlockWeeks(ctx context.Context, shareID int64, year int, weeks []int32, reason domain.BlockReason) (int64, error)
}

type Cache interface {
	GetCalendar(ctx context.Context, propertyID int64, start, end time.Time) ([]domain.AvailabilitySlot, error)
	SetCalendar(ctx context.Context, propertyID int64, start, end time.Time, slots []domain.AvailabilitySlot) error
	InvalidateCalendar(ctx context.Context, propertyID int64) error
}

type LedgerService struct {
	slots      repository.AvailabilityRepository
	properties repository.PropertyRepository
	cache      Cache
}

func NewLedgerService(slots repository.AvailabilityRepository, properties repository.PropertyRepository, cache Cache) *LedgerService {
	return &LedgerService{slots: slots, properties: properties, cache: cache}
}

// QueryRange returns one slot per night in [start, end), materializing
// defaults for dates the store has no row for: available at the property's
// base price and min-stay. Read-only.
func (s *LedgerService) QueryRange(ctx context.Context, propertyID int64, start, end time.Time) ([]domain.AvailabilitySlot, error) {
	start, end = truncateDay(start), truncateDay(end)
	if !end.After(start) {
		return nil, domain.ErrInvalidRange
	}
	if _, err := s.properties.GetByID(ctx, propertyID); err != nil {
		return nil, err
	}

	if s.cache != nil {
		if cached, err := s.cache.GetCalendar(ctx, propertyID, start, end); err == nil && cached != nil {
			return cached, nil
		}
	}

	stored, err := s.slots.ListSlots(ctx, propertyID, start, end)
	if err != nil {
		return nil, err
	}

	byDate := make(map[time.Time]domain.AvailabilitySlot, len(stored))
	for _, slot := range stored {
		byDate[truncateDay(slot.Date)] = slot
	}

	calendar := make([]domain.AvailabilitySlot, 0, int(end.Sub(start).Hours()/24))
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		if slot, ok := byDate[d]; ok {
			calendar = append(calendar, slot)
			continue
		}
		calendar = append(calendar, domain.AvailabilitySlot{PropertyID: propertyID, Date: d, Available: true})
	}

	if s.cache != nil {
		_ = s.cache.SetCalendar(ctx, propertyID, start, end, calendar)
	}
	return calendar, nil
}

func (s *LedgerService) ReserveRange(ctx context.Context, propertyID int64, start, end time.Time, reservationID string) error {
	if err := s.slots.ReserveRange(ctx, propertyID, truncateDay(start), truncateDay(end), reservationID); err != nil {
		return err
	}
	s.invalidate(ctx, propertyID)
	return nil
}

func (s *LedgerService) ReleaseRange(ctx context.Context, propertyID int64, start, end time.Time, reservationID string) error {
	if err := s.slots.ReleaseRange(ctx, propertyID, truncateDay(start), truncateDay(end), reservationID); err != nil {
		return err
	}
	s.invalidate(ctx, propertyID)
	return nil
}

func (s *LedgerService) BlockDates(ctx context.Context, propertyID int64, dates []time.Time, reason domain.BlockReason, notes string) (int64, error) {
	if _, err := s.properties.GetByID(ctx, propertyID); err != nil {
		return 0, err
	}
	for i := range dates {
		dates[i] = truncateDay(dates[i])
	}
	blocked, err := s.slots.BlockDates(ctx, propertyID, dates, reason, notes)
	if err != nil {
		return 0, err
	}
	s.invalidate(ctx, propertyID)
	return blocked, nil
}

func (s *LedgerService) UnblockDates(ctx context.Context, propertyID int64, dates []time.Time) error {
	for i := range dates {
		dates[i] = truncateDay(dates[i])
	}
	if err := s.slots.UnblockDates(ctx, propertyID, dates); err != nil {
		return err
	}
	s.invalidate(ctx, propertyID)
	return nil
}

// QueryWeeks mirrors QueryRange for timeshare inventory, materializing all 52
// calendar weeks of the year.
func (s *LedgerService) QueryWeeks(ctx context.Context, shareID int64, year int) ([]domain.ShareWeek, error) {
	if _, err := s.properties.GetShare(ctx, shareID); err != nil {
		return nil, err
	}

	stored, err := s.slots.ListWeeks(ctx, shareID, year)
	if err != nil {
		return nil, err
	}

	byWeek := make(map[int]domain.ShareWeek, len(stored))
	for _, w := range stored {
		byWeek[w.WeekNumber] = w
	}

	weeks := make([]domain.ShareWeek, 0, 52)
	for n := 1; n <= 52; n++ {
		if w, ok := byWeek[n]; ok {
			weeks = append(weeks, w)
			continue
		}
		weeks = append(weeks, domain.ShareWeek{ShareID: shareID, WeekNumber: n, Year: year, Available: true})
	}
	return weeks, nil
}

func (s *LedgerService) ReserveWeeks(ctx context.Context, shareID int64, year int, weeks []int32, ownerID int64, reservationID string) error {
	return s.slots.ReserveWeeks(ctx, shareID, year, weeks, ownerID, reservationID)
}

func (s *LedgerService) ReleaseWeeks(ctx context.Context, shareID int64, year int, weeks []int32, reservationID string) error {
	return s.slots.ReleaseWeeks(ctx, shareID, year, weeks, reservationID)
}

func (s *LedgerService) BlockWeeks(ctx context.Context, shareID int64, year int, weeks []int32, reason domain.BlockReason) (int64, error) {
	if _, err := s.properties.GetShare(ctx, shareID); err != nil {
		return 0, err
	}
	return s.slots.BlockWeeks(ctx, shareID, year, weeks, reason)
}

func (s *LedgerService) invalidate(ctx context.Context, propertyID int64) {
	if s.cache != nil {
		_ = s.cache.InvalidateCalendar(ctx, propertyID)
	}
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

var _ LedgerUseCase = (*LedgerService)(nil)
