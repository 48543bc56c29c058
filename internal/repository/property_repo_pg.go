package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rsv360/reservation-core/internal/domain"
)

type PropertyRepository interface {
	List(ctx context.Context) ([]domain.Property, error)
	GetByID(ctx context.Context, id int64) (*domain.Property, error)
	GetShare(ctx context.Context, id int64) (*domain.Share, error)
}

type PGPropertyRepository struct {
	db *pgxpool.Pool
}

func NewPropertyRepository(db *pgxpool.Pool) PropertyRepository {
	return &PGPropertyRepository{db: db}
}

func (r *PGPropertyRepository) List(ctx context.Context) ([]domain.Property, error) {
	rows, err := r.db.Query(ctx, `SELECT id, title, city, base_price, cleaning_fee, min_stay, min_advance_hours, created_at, updated_at FROM properties ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	properties := make([]domain.Property, 0)
	for rows.Next() {
		var p domain.Property
		if err := rows.Scan(&p.ID, &p.Title, &p.City, &p.BasePrice, &p.CleaningFee, &p.MinStay, &p.MinAdvanceHours, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		properties = append(properties, p)
	}
	return properties, rows.Err()
}

func (r *PGPropertyRepository) GetByID(ctx context.Context, id int64) (*domain.Property, error) {
	row := r.db.QueryRow(ctx, `SELECT id, title, city, base_price, cleaning_fee, min_stay, min_advance_hours, created_at, updated_at FROM properties WHERE id=$1`, id)
	var p domain.Property
	if err := row.Scan(&p.ID, &p.Title, &p.City, &p.BasePrice, &p.CleaningFee, &p.MinStay, &p.MinAdvanceHours, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPropertyNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PGPropertyRepository) GetShare(ctx context.Context, id int64) (*domain.Share, error) {
	row := r.db.QueryRow(ctx, `SELECT id, property_id, owner_id, fraction, created_at, updated_at FROM shares WHERE id=$1`, id)
	var s domain.Share
	if err := row.Scan(&s.ID, &s.PropertyID, &s.OwnerID, &s.Fraction, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrShareNotFound
		}
		return nil, err
	}
	return &s, nil
}

var _ PropertyRepository = (*PGPropertyRepository)(nil)
