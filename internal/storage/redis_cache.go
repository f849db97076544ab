package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-client/internal/models"
)

// RideCache keeps the active ride snapshot in Redis so a restarted
// agent can resume an in-flight ride instead of starting cold.
type RideCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRideCache(addr, password string, ttl time.Duration) *RideCache {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RideCache{client: c, ttl: ttl}
}

func cacheKey(role string, userID int64) string {
	return fmt.Sprintf("ride:active:%s:%d", role, userID)
}

func (c *RideCache) Save(ctx context.Context, role string, userID int64, r *models.Ride) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKey(role, userID), b, c.ttl).Err()
}

func (c *RideCache) Load(ctx context.Context, role string, userID int64) (*models.Ride, error) {
	b, err := c.client.Get(ctx, cacheKey(role, userID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var r models.Ride
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *RideCache) Clear(ctx context.Context, role string, userID int64) error {
	return c.client.Del(ctx, cacheKey(role, userID)).Err()
}

func (c *RideCache) Close() error { return c.client.Close() }
