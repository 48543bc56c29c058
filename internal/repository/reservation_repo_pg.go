package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rsv360/reservation-core/internal/domain"
)

type ReservationRepository interface {
	Create(ctx context.Context, res *domain.Reservation) error
	GetByID(ctx context.Context, id string) (*domain.Reservation, error)
	UpdateWithVersion(ctx context.Context, id string, expectedVersion int64, m domain.ReservationMutation) (*domain.Reservation, error)
	CancelAndRelease(ctx context.Context, id string, expectedVersion int64, status domain.ReservationStatus, paymentStatus *domain.PaymentStatus) (*domain.Reservation, error)
	ListPendingBefore(ctx context.Context, deadline time.Time) ([]domain.Reservation, error)
}

type PGReservationRepository struct {
	db *pgxpool.Pool
}

func NewReservationRepository(db *pgxpool.Pool) ReservationRepository {
	return &PGReservationRepository{db: db}
}

const reservationColumns = `id, property_id, customer_id, start_date, end_date, share_id, week_year, week_set, status, payment_status, version, total_amount, paid_amount, expires_at, created_at, updated_at`

func scanReservation(row pgx.Row) (*domain.Reservation, error) {
	var res domain.Reservation
	var start, end *time.Time
	var shareID *int64
	var weekYear *int
	if err := row.Scan(&res.ID, &res.PropertyID, &res.CustomerID, &start, &end, &shareID, &weekYear, &res.WeekSet,
		&res.Status, &res.PaymentStatus, &res.Version, &res.TotalAmount, &res.PaidAmount, &res.ExpiresAt, &res.CreatedAt, &res.UpdatedAt); err != nil {
		return nil, err
	}
	if start != nil {
		res.StartDate = *start
	}
	if end != nil {
		res.EndDate = *end
	}
	if shareID != nil {
		res.ShareID = *shareID
	}
	if weekYear != nil {
		res.WeekYear = *weekYear
	}
	return &res, nil
}

func (r *PGReservationRepository) Create(ctx context.Context, res *domain.Reservation) error {
	var start, end *time.Time
	if !res.StartDate.IsZero() {
		start, end = &res.StartDate, &res.EndDate
	}
	var shareID *int64
	var weekYear *int
	if res.ShareID != 0 {
		shareID, weekYear = &res.ShareID, &res.WeekYear
	}

	res.Version = 1
	return r.db.QueryRow(ctx, `INSERT INTO reservations (id, property_id, customer_id, start_date, end_date, share_id, week_year, week_set, status, payment_status, version, total_amount, paid_amount, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at`,
		res.ID, res.PropertyID, res.CustomerID, start, end, shareID, weekYear, res.WeekSet,
		res.Status, res.PaymentStatus, res.Version, res.TotalAmount, res.PaidAmount, res.ExpiresAt).
		Scan(&res.CreatedAt, &res.UpdatedAt)
}

func (r *PGReservationRepository) GetByID(ctx context.Context, id string) (*domain.Reservation, error) {
	res, err := scanReservation(r.db.QueryRow(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrReservationNotFound
		}
		return nil, err
	}
	return res, nil
}

// UpdateWithVersion applies the mutation only if the stored version still
// equals expectedVersion, incrementing it in the same statement. Zero rows
// means either a stale version or a missing reservation; the two are told
// apart with a follow-up existence check.
func (r *PGReservationRepository) UpdateWithVersion(ctx context.Context, id string, expectedVersion int64, m domain.ReservationMutation) (*domain.Reservation, error) {
	set := []string{"version = version + 1", "updated_at = now()"}
	args := []interface{}{id, expectedVersion}
	idx := 3
	if m.Status != nil {
		set = append(set, fmt.Sprintf("status = $%d", idx))
		args = append(args, *m.Status)
		idx++
	}
	if m.PaymentStatus != nil {
		set = append(set, fmt.Sprintf("payment_status = $%d", idx))
		args = append(args, *m.PaymentStatus)
		idx++
	}
	if m.PaidAmount != nil {
		set = append(set, fmt.Sprintf("paid_amount = $%d", idx))
		args = append(args, *m.PaidAmount)
		idx++
	}
	if m.ExpiresAt != nil {
		set = append(set, fmt.Sprintf("expires_at = $%d", idx))
		args = append(args, *m.ExpiresAt)
		idx++
	}

	query := `UPDATE reservations SET ` + strings.Join(set, ", ") + ` WHERE id=$1 AND version=$2 RETURNING ` + reservationColumns
	res, err := scanReservation(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.versionError(ctx, id)
		}
		return nil, err
	}
	return res, nil
}

// CancelAndRelease transitions the reservation and releases its slots in one
// transaction, so a cancellation is never visible without the release. The
// status transition is version-guarded like any other mutation.
func (r *PGReservationRepository) CancelAndRelease(ctx context.Context, id string, expectedVersion int64, status domain.ReservationStatus, paymentStatus *domain.PaymentStatus) (*domain.Reservation, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	res, err := scanReservation(tx.QueryRow(ctx, `UPDATE reservations
		SET status = $3, payment_status = COALESCE($4, payment_status), version = version + 1, updated_at = now()
		WHERE id=$1 AND version=$2
		RETURNING `+reservationColumns, id, expectedVersion, status, paymentStatus))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.versionError(ctx, id)
		}
		return nil, err
	}

	if res.ShareID != 0 {
		_, err = tx.Exec(ctx, `UPDATE share_weeks
			SET available = TRUE, reserved_by = NULL, reservation_id = NULL, updated_at = now()
			WHERE share_id=$1 AND year=$2 AND week_number = ANY($3::int[]) AND reservation_id = $4`,
			res.ShareID, res.WeekYear, res.WeekSet, res.ID)
	} else {
		_, err = tx.Exec(ctx, `UPDATE availability_slots
			SET available = TRUE, reservation_id = NULL, updated_at = now()
			WHERE property_id=$1 AND slot_date >= $2 AND slot_date < $3 AND reservation_id = $4`,
			res.PropertyID, res.StartDate, res.EndDate, res.ID)
	}
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return res, nil
}

func (r *PGReservationRepository) ListPendingBefore(ctx context.Context, deadline time.Time) ([]domain.Reservation, error) {
	rows, err := r.db.Query(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE status=$1 AND expires_at <= $2`, domain.ReservationStatusPending, deadline)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pending []domain.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		pending = append(pending, *res)
	}
	return pending, rows.Err()
}

func (r *PGReservationRepository) versionError(ctx context.Context, id string) error {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM reservations WHERE id=$1)`, id).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return domain.ErrVersionConflict
	}
	return domain.ErrReservationNotFound
}

var _ ReservationRepository = (*PGReservationRepository)(nil)
