package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/adserve/adzone/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Cache holds the per-zone candidate set (enabled ads for a zone) so the
// serve path skips the database on hot zones. Eligibility is re-evaluated
// by the caller on every read, so a cached entry going stale can only cost
// a missed ad, never serve an expired one.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func New(addr, password string, db int, ttl time.Duration) *Cache {
	return &Cache{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		ttl: ttl,
	}
}

// NewWithClient is for tests that bring their own client (miniredis).
func NewWithClient(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Cache) Close() error {
	return c.client.Close()
}

func zoneKey(zoneID uuid.UUID) string {
	return "zone:ads:" + zoneID.String()
}

func (c *Cache) GetZoneAds(ctx context.Context, zoneID uuid.UUID) ([]domain.Ad, error) {
	raw, err := c.client.Get(ctx, zoneKey(zoneID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrCacheMiss
		}
		return nil, err
	}

	var ads []domain.Ad
	if err := json.Unmarshal(raw, &ads); err != nil {
		// corrupt entry: drop it and report a miss
		_ = c.client.Del(ctx, zoneKey(zoneID)).Err()
		return nil, domain.ErrCacheMiss
	}
	return ads, nil
}

func (c *Cache) SetZoneAds(ctx context.Context, zoneID uuid.UUID, ads []domain.Ad) error {
	raw, err := json.Marshal(ads)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, zoneKey(zoneID), raw, c.ttl).Err()
}

func (c *Cache) InvalidateZone(ctx context.Context, zoneID uuid.UUID) error {
	return c.client.Del(ctx, zoneKey(zoneID)).Err()
}
