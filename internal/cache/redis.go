package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rsv360/reservation-core/config"
	"github.com/rsv360/reservation-core/internal/domain"
)

type RedisCache struct {
	client      *redis.Client
	calendarTTL time.Duration
}

func NewRedisCache(cfg config.RedisConfig, calendarTTL time.Duration) *RedisCache {
	return &RedisCache{
		client:      redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
		calendarTTL: calendarTTL,
	}
}

func (c *RedisCache) GetProperties(ctx context.Context) ([]domain.Property, error) {
	data, err := c.client.Get(ctx, propertiesKey()).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var properties []domain.Property
	if err := json.Unmarshal(data, &properties); err != nil {
		return nil, err
	}
	return properties, nil
}

func (c *RedisCache) SetProperties(ctx context.Context, properties []domain.Property) error {
	payload, err := json.Marshal(properties)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, propertiesKey(), payload, c.calendarTTL).Err()
}

func (c *RedisCache) GetCalendar(ctx context.Context, propertyID int64, start, end time.Time) ([]domain.AvailabilitySlot, error) {
	data, err := c.client.Get(ctx, calendarKey(propertyID, start, end)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var slots []domain.AvailabilitySlot
	if err := json.Unmarshal(data, &slots); err != nil {
		return nil, err
	}
	return slots, nil
}

func (c *RedisCache) SetCalendar(ctx context.Context, propertyID int64, start, end time.Time, slots []domain.AvailabilitySlot) error {
	payload, err := json.Marshal(slots)
	if err != nil {
		return err
	}
	key := calendarKey(propertyID, start, end)
	if err := c.client.Set(ctx, key, payload, c.calendarTTL).Err(); err != nil {
		return err
	}
	// Track the window so InvalidateCalendar can drop it without SCAN.
	return c.client.SAdd(ctx, calendarSetKey(propertyID), key).Err()
}

// InvalidateCalendar drops every cached window for the property.
func (c *RedisCache) InvalidateCalendar(ctx context.Context, propertyID int64) error {
	setKey := calendarSetKey(propertyID)
	keys, err := c.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return err
	}
	keys = append(keys, setKey)
	return c.client.Del(ctx, keys...).Err()
}

// AcquireHold takes a short best-effort lock on a property's date range while
// a booking attempt runs. Losing the lock is not a correctness problem, only
// extra contention on the store; the conditional writes there stay
// authoritative. Disjoint ranges use distinct keys and never contend.
func (c *RedisCache) AcquireHold(ctx context.Context, propertyID int64, start, end time.Time, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, holdKey(propertyID, start, end), "held", ttl).Result()
}

func (c *RedisCache) ReleaseHold(ctx context.Context, propertyID int64, start, end time.Time) error {
	return c.client.Del(ctx, holdKey(propertyID, start, end)).Err()
}

func propertiesKey() string {
	return "cache:properties"
}

func calendarKey(propertyID int64, start, end time.Time) string {
	return fmt.Sprintf("cache:calendar:%d:%s:%s", propertyID, start.Format("2006-01-02"), end.Format("2006-01-02"))
}

func calendarSetKey(propertyID int64) string {
	return fmt.Sprintf("cache:calendar-keys:%d", propertyID)
}

func holdKey(propertyID int64, start, end time.Time) string {
	return fmt.Sprintf("lock:property:%d:%s:%s", propertyID, start.Format("2006-01-02"), end.Format("2006-01-02"))
}
