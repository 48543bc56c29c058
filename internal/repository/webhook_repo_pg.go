package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rsv360/reservation-core/internal/domain"
)

type WebhookRepository interface {
	InsertIfAbsent(ctx context.Context, event *domain.WebhookEvent) (bool, error)
	GetByKey(ctx context.Context, gateway, eventID string) (*domain.WebhookEvent, error)
	ClaimProcessing(ctx context.Context, gateway, eventID string, maxRetries int) (*domain.WebhookEvent, error)
	MarkProcessed(ctx context.Context, gateway, eventID string) error
	MarkFailed(ctx context.Context, gateway, eventID, errorMessage string) error
	ListRetryable(ctx context.Context, maxRetries, limit int) ([]domain.WebhookEvent, error)
	ListDead(ctx context.Context, maxRetries, limit int) ([]domain.WebhookEvent, error)
}

type PGWebhookRepository struct {
	db *pgxpool.Pool
}

func NewWebhookRepository(db *pgxpool.Pool) WebhookRepository {
	return &PGWebhookRepository{db: db}
}

const webhookColumns = `id, gateway, event_id, event_type, payload, status, retry_count, error_message, processed_at, created_at, updated_at`

func scanWebhookEvent(row pgx.Row) (*domain.WebhookEvent, error) {
	var ev domain.WebhookEvent
	if err := row.Scan(&ev.ID, &ev.Gateway, &ev.EventID, &ev.EventType, &ev.Payload, &ev.Status, &ev.RetryCount, &ev.ErrorMessage, &ev.ProcessedAt, &ev.CreatedAt, &ev.UpdatedAt); err != nil {
		return nil, err
	}
	return &ev, nil
}

// InsertIfAbsent is the idempotency gate: the unique (gateway, event_id) key
// turns redelivery into a no-op insert. It returns false and loads the
// existing row when the event was already recorded.
func (r *PGWebhookRepository) InsertIfAbsent(ctx context.Context, event *domain.WebhookEvent) (bool, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO webhook_events (id, gateway, event_id, event_type, payload, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (gateway, event_id) DO NOTHING
		RETURNING `+webhookColumns,
		event.ID, event.Gateway, event.EventID, event.EventType, event.Payload, domain.WebhookStatusPending)

	inserted, err := scanWebhookEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			existing, err := r.GetByKey(ctx, event.Gateway, event.EventID)
			if err != nil {
				return false, err
			}
			*event = *existing
			return false, nil
		}
		return false, err
	}
	*event = *inserted
	return true, nil
}

func (r *PGWebhookRepository) GetByKey(ctx context.Context, gateway, eventID string) (*domain.WebhookEvent, error) {
	ev, err := scanWebhookEvent(r.db.QueryRow(ctx, `SELECT `+webhookColumns+` FROM webhook_events WHERE gateway=$1 AND event_id=$2`, gateway, eventID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEventNotFound
		}
		return nil, err
	}
	return ev, nil
}

// ClaimProcessing conditionally moves the event to PROCESSING. Only PENDING
// and FAILED rows under the retry ceiling qualify, so two workers racing on
// the same event resolve to a single claimant.
func (r *PGWebhookRepository) ClaimProcessing(ctx context.Context, gateway, eventID string, maxRetries int) (*domain.WebhookEvent, error) {
	ev, err := scanWebhookEvent(r.db.QueryRow(ctx, `UPDATE webhook_events
		SET status=$3, updated_at=now()
		WHERE gateway=$1 AND event_id=$2 AND status = ANY($4) AND retry_count < $5
		RETURNING `+webhookColumns,
		gateway, eventID, domain.WebhookStatusProcessing,
		[]string{string(domain.WebhookStatusPending), string(domain.WebhookStatusFailed)}, maxRetries))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEventNotClaimable
		}
		return nil, err
	}
	return ev, nil
}

func (r *PGWebhookRepository) MarkProcessed(ctx context.Context, gateway, eventID string) error {
	_, err := r.db.Exec(ctx, `UPDATE webhook_events
		SET status=$3, processed_at=now(), error_message='', updated_at=now()
		WHERE gateway=$1 AND event_id=$2`, gateway, eventID, domain.WebhookStatusProcessed)
	return err
}

func (r *PGWebhookRepository) MarkFailed(ctx context.Context, gateway, eventID, errorMessage string) error {
	_, err := r.db.Exec(ctx, `UPDATE webhook_events
		SET status=$3, retry_count = retry_count + 1, error_message=$4, updated_at=now()
		WHERE gateway=$1 AND event_id=$2`, gateway, eventID, domain.WebhookStatusFailed, errorMessage)
	return err
}

func (r *PGWebhookRepository) ListRetryable(ctx context.Context, maxRetries, limit int) ([]domain.WebhookEvent, error) {
	return r.listByStatus(ctx, `status=$1 AND retry_count < $2`, domain.WebhookStatusFailed, maxRetries, limit)
}

// ListDead returns terminally failed events for operator intervention.
func (r *PGWebhookRepository) ListDead(ctx context.Context, maxRetries, limit int) ([]domain.WebhookEvent, error) {
	return r.listByStatus(ctx, `status=$1 AND retry_count >= $2`, domain.WebhookStatusFailed, maxRetries, limit)
}

func (r *PGWebhookRepository) listByStatus(ctx context.Context, cond string, status domain.WebhookStatus, maxRetries, limit int) ([]domain.WebhookEvent, error) {
	rows, err := r.db.Query(ctx, `SELECT `+webhookColumns+` FROM webhook_events WHERE `+cond+` ORDER BY updated_at LIMIT $3`, status, maxRetries, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.WebhookEvent
	for rows.Next() {
		ev, err := scanWebhookEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

var _ WebhookRepository = (*PGWebhookRepository)(nil)
