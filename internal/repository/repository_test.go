package repository

import (
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
)

func TestNewRepositories(t *testing.T) {
	pool := &pgxpool.Pool{}

	assert.NotNil(t, NewPropertyRepository(pool))
	assert.NotNil(t, NewAvailabilityRepository(pool))
	assert.NotNil(t, NewReservationRepository(pool))
	assert.NotNil(t, NewWebhookRepository(pool))
	assert.NotNil(t, NewPaymentRepository(pool))
}
