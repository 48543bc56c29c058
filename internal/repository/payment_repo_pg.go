package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rsv360/reservation-core/internal/domain"
)

type PaymentRepository interface {
	Create(ctx context.Context, payment *domain.Payment) error
	GetByGatewayTransaction(ctx context.Context, gateway, transactionID string) (*domain.Payment, error)
	SetStatus(ctx context.Context, id string, status domain.PaymentState) error
}

type PGPaymentRepository struct {
	db *pgxpool.Pool
}

func NewPaymentRepository(db *pgxpool.Pool) PaymentRepository {
	return &PGPaymentRepository{db: db}
}

func (r *PGPaymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	return r.db.QueryRow(ctx, `INSERT INTO payments (id, reservation_id, gateway, gateway_transaction_id, amount, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		payment.ID, payment.ReservationID, payment.Gateway, payment.GatewayTransactionID, payment.Amount, payment.Status).
		Scan(&payment.CreatedAt, &payment.UpdatedAt)
}

func (r *PGPaymentRepository) GetByGatewayTransaction(ctx context.Context, gateway, transactionID string) (*domain.Payment, error) {
	row := r.db.QueryRow(ctx, `SELECT id, reservation_id, gateway, gateway_transaction_id, amount, status, confirmed_at, refunded_at, created_at, updated_at
		FROM payments WHERE gateway=$1 AND gateway_transaction_id=$2`, gateway, transactionID)
	var p domain.Payment
	if err := row.Scan(&p.ID, &p.ReservationID, &p.Gateway, &p.GatewayTransactionID, &p.Amount, &p.Status, &p.ConfirmedAt, &p.RefundedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PGPaymentRepository) SetStatus(ctx context.Context, id string, status domain.PaymentState) error {
	_, err := r.db.Exec(ctx, `UPDATE payments
		SET status=$2,
		    confirmed_at = CASE WHEN $2 = 'CONFIRMED' THEN now() ELSE confirmed_at END,
		    refunded_at = CASE WHEN $2 = 'REFUNDED' THEN now() ELSE refunded_at END,
		    updated_at = now()
		WHERE id=$1`, id, status)
	return err
}

var _ PaymentRepository = (*PGPaymentRepository)(nil)
