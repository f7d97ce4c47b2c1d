package drafts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-garment/internal/grid"
)

// DefaultTTL expires abandoned drafts.
const DefaultTTL = 72 * time.Hour

// RedisStore keeps drafts in Redis as JSON with a sliding TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore constructs a RedisStore. A non-positive ttl uses DefaultTTL.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, stage Stage, orderID int64) (grid.Grid, bool, error) {
	raw, err := s.client.Get(ctx, Key(stage, orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("drafts: get: %w", err)
	}
	var g grid.Grid
	if err := json.Unmarshal(raw, &g); err != nil {
		// A corrupt draft is dropped; the user re-enters the values.
		_ = s.client.Del(ctx, Key(stage, orderID)).Err()
		return nil, false, nil
	}
	return g, true, nil
}

func (s *RedisStore) Put(ctx context.Context, stage Stage, orderID int64, g grid.Grid) error {
	raw, err := json.Marshal(g)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, Key(stage, orderID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("drafts: put: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, stage Stage, orderID int64) error {
	if err := s.client.Del(ctx, Key(stage, orderID)).Err(); err != nil {
		return fmt.Errorf("drafts: clear: %w", err)
	}
	return nil
}
