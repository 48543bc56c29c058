package domain

import "time"

type WebhookStatus string

const (
	WebhookStatusPending    WebhookStatus = "PENDING"
	WebhookStatusProcessing WebhookStatus = "PROCESSING"
	WebhookStatusProcessed  WebhookStatus = "PROCESSED"
	WebhookStatusFailed     WebhookStatus = "FAILED"
)

// WebhookEvent records one logical payment-gateway notification. The
// (Gateway, EventID) pair is the idempotency key: redelivery of the same
// logical event maps onto the existing row and triggers no further side
// effects.
type WebhookEvent struct {
	ID           string
	Gateway      string
	EventID      string
	EventType    string
	Payload      []byte
	Status       WebhookStatus
	RetryCount   int
	ErrorMessage string
	ProcessedAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
