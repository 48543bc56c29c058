package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rsv360/reservation-core/internal/domain"
)

type AvailabilityRepository interface {
	ListSlots(ctx context.Context, propertyID int64, start, end time.Time) ([]domain.AvailabilitySlot, error)
	ReserveRange(ctx context.Context, propertyID int64, start, end time.Time, reservationID string) error
	ReleaseRange(ctx context.Context, propertyID int64, start, end time.Time, reservationID string) error
	BlockDates(ctx context.Context, propertyID int64, dates []time.Time, reason domain.BlockReason, notes string) (int64, error)
	UnblockDates(ctx context.Context, propertyID int64, dates []time.Time) error

	ListWeeks(ctx context.Context, shareID int64, year int) ([]domain.ShareWeek, error)
	ReserveWeeks(ctx context.Context, shareID int64, year int, weeks []int32, ownerID int64, reservationID string) error
	ReleaseWeeks(ctx context.Context, shareID int64, year int, weeks []int32, reservationID string) error
	BlockWeeks(ctx context.Context, shareID int64, year int, weeks []int32, reason domain.BlockReason) (int64, error)
}

type PGAvailabilityRepository struct {
	db *pgxpool.Pool
}

func NewAvailabilityRepository(db *pgxpool.Pool) AvailabilityRepository {
	return &PGAvailabilityRepository{db: db}
}

func (r *PGAvailabilityRepository) ListSlots(ctx context.Context, propertyID int64, start, end time.Time) ([]domain.AvailabilitySlot, error) {
	rows, err := r.db.Query(ctx, `SELECT property_id, slot_date, available, price_override, min_stay_override, block_reason, block_notes, reservation_id, updated_at
		FROM availability_slots
		WHERE property_id=$1 AND slot_date >= $2 AND slot_date < $3
		ORDER BY slot_date`, propertyID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	slots := make([]domain.AvailabilitySlot, 0)
	for rows.Next() {
		var s domain.AvailabilitySlot
		if err := rows.Scan(&s.PropertyID, &s.Date, &s.Available, &s.PriceOverride, &s.MinStayOverride, &s.BlockReason, &s.BlockNotes, &s.ReservationID, &s.UpdatedAt); err != nil {
			return nil, err
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

// ReserveRange flips every night in [start, end) from available to reserved in
// a single transaction. Missing rows are materialized first, then a
// conditional multi-row update claims only rows that are still available and
// unblocked. If the claimed count falls short of the night count the
// transaction rolls back, so two overlapping calls can never both succeed:
// the second committer re-evaluates the predicate under the row locks and
// observes the first one's writes.
func (r *PGAvailabilityRepository) ReserveRange(ctx context.Context, propertyID int64, start, end time.Time, reservationID string) error {
	nights := int64(end.Sub(start).Hours() / 24)
	if nights <= 0 {
		return domain.ErrInvalidRange
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `INSERT INTO availability_slots (property_id, slot_date, available)
		SELECT $1, d::date, TRUE
		FROM generate_series($2::date, $3::date - 1, interval '1 day') AS d
		ON CONFLICT (property_id, slot_date) DO NOTHING`, propertyID, start, end); err != nil {
		return err
	}

	cmd, err := tx.Exec(ctx, `UPDATE availability_slots
		SET available = FALSE, reservation_id = $4, updated_at = now()
		WHERE property_id=$1 AND slot_date >= $2 AND slot_date < $3
		  AND available = TRUE AND block_reason IS NULL`, propertyID, start, end, reservationID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() != nights {
		return domain.ErrSlotUnavailable
	}

	return tx.Commit(ctx)
}

// ReleaseRange restores availability only for nights the reservation owns;
// nights claimed by someone else are untouched, which makes release
// idempotent.
func (r *PGAvailabilityRepository) ReleaseRange(ctx context.Context, propertyID int64, start, end time.Time, reservationID string) error {
	_, err := r.db.Exec(ctx, `UPDATE availability_slots
		SET available = TRUE, reservation_id = NULL, updated_at = now()
		WHERE property_id=$1 AND slot_date >= $2 AND slot_date < $3 AND reservation_id = $4`, propertyID, start, end, reservationID)
	return err
}

// BlockDates is an administrative override independent of reservations.
// Reserved nights are skipped; the returned count tells the caller how many
// nights were actually blocked.
func (r *PGAvailabilityRepository) BlockDates(ctx context.Context, propertyID int64, dates []time.Time, reason domain.BlockReason, notes string) (int64, error) {
	if len(dates) == 0 {
		return 0, nil
	}
	cmd, err := r.db.Exec(ctx, `INSERT INTO availability_slots (property_id, slot_date, available, block_reason, block_notes)
		SELECT $1, d, FALSE, $3, $4 FROM unnest($2::date[]) AS d
		ON CONFLICT (property_id, slot_date) DO UPDATE
		SET available = FALSE, block_reason = EXCLUDED.block_reason, block_notes = EXCLUDED.block_notes, updated_at = now()
		WHERE availability_slots.reservation_id IS NULL`, propertyID, dates, string(reason), notes)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *PGAvailabilityRepository) UnblockDates(ctx context.Context, propertyID int64, dates []time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE availability_slots
		SET available = TRUE, block_reason = NULL, block_notes = NULL, updated_at = now()
		WHERE property_id=$1 AND slot_date = ANY($2::date[]) AND block_reason IS NOT NULL AND reservation_id IS NULL`, propertyID, dates)
	return err
}

func (r *PGAvailabilityRepository) ListWeeks(ctx context.Context, shareID int64, year int) ([]domain.ShareWeek, error) {
	rows, err := r.db.Query(ctx, `SELECT share_id, week_number, year, available, price_override, block_reason, reserved_by, reservation_id, updated_at
		FROM share_weeks
		WHERE share_id=$1 AND year=$2
		ORDER BY week_number`, shareID, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	weeks := make([]domain.ShareWeek, 0)
	for rows.Next() {
		var w domain.ShareWeek
		if err := rows.Scan(&w.ShareID, &w.WeekNumber, &w.Year, &w.Available, &w.PriceOverride, &w.BlockReason, &w.ReservedBy, &w.ReservationID, &w.UpdatedAt); err != nil {
			return nil, err
		}
		weeks = append(weeks, w)
	}
	return weeks, rows.Err()
}

// ReserveWeeks is the timeshare mirror of ReserveRange: all-or-nothing over
// the requested week set, attributing each week to the owning member.
func (r *PGAvailabilityRepository) ReserveWeeks(ctx context.Context, shareID int64, year int, weeks []int32, ownerID int64, reservationID string) error {
	if len(weeks) == 0 {
		return domain.ErrInvalidRange
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `INSERT INTO share_weeks (share_id, week_number, year, available)
		SELECT $1, w, $3, TRUE FROM unnest($2::int[]) AS w
		ON CONFLICT (share_id, week_number, year) DO NOTHING`, shareID, weeks, year); err != nil {
		return err
	}

	cmd, err := tx.Exec(ctx, `UPDATE share_weeks
		SET available = FALSE, reserved_by = $4, reservation_id = $5, updated_at = now()
		WHERE share_id=$1 AND year=$3 AND week_number = ANY($2::int[])
		  AND available = TRUE AND block_reason IS NULL`, shareID, weeks, year, ownerID, reservationID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() != int64(len(weeks)) {
		return domain.ErrSlotUnavailable
	}

	return tx.Commit(ctx)
}

func (r *PGAvailabilityRepository) ReleaseWeeks(ctx context.Context, shareID int64, year int, weeks []int32, reservationID string) error {
	_, err := r.db.Exec(ctx, `UPDATE share_weeks
		SET available = TRUE, reserved_by = NULL, reservation_id = NULL, updated_at = now()
		WHERE share_id=$1 AND year=$3 AND week_number = ANY($2::int[]) AND reservation_id = $4`, shareID, weeks, year, reservationID)
	return err
}

func (r *PGAvailabilityRepository) BlockWeeks(ctx context.Context, shareID int64, year int, weeks []int32, reason domain.BlockReason) (int64, error) {
	if len(weeks) == 0 {
		return 0, nil
	}
	cmd, err := r.db.Exec(ctx, `INSERT INTO share_weeks (share_id, week_number, year, available, block_reason)
		SELECT $1, w, $3, FALSE, $4 FROM unnest($2::int[]) AS w
		ON CONFLICT (share_id, week_number, year) DO UPDATE
		SET available = FALSE, block_reason = EXCLUDED.block_reason, updated_at = now()
		WHERE share_weeks.reservation_id IS NULL`, shareID, weeks, year, string(reason))
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

var _ AvailabilityRepository = (*PGAvailabilityRepository)(nil)
