package email

import (
	"context"
	"fmt"

	"github.com/rsv360/reservation-core/internal/kafka"
)

// Sender delivers guest-facing notifications for reservation lifecycle
// events. Delivery is fire-and-forget from the core's perspective: a failure
// here never rolls back the reservation transaction that produced the event.
type Sender struct{}

func NewSender() *Sender {
	return &Sender{}
}

func (s *Sender) Send(ctx context.Context, event kafka.ReservationEvent) error {
	fmt.Printf("notify customer %d: %s for reservation %s (property %d, status %s)\n",
		event.CustomerID, event.Type, event.ReservationID, event.PropertyID, event.Status)
	return nil
}
