package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/leaderboard-mirror/internal/config"
	"github.com/leaderboard-mirror/internal/domain"
	"github.com/redis/go-redis/v9"
)

// ViewCache holds recently resolved lookup views for a short TTL so bursts
// of lookups for the same user do not each hit the upstream API.
type ViewCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewViewCache creates a new Redis-backed view cache
func NewViewCache(cfg *config.RedisConfig, logger *slog.Logger) (*ViewCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &ViewCache{
		client: client,
		ttl:    cfg.ViewTTL,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (c *ViewCache) Close() error {
	return c.client.Close()
}

// viewKey returns the Redis key for a user's cached lookup view
func (c *ViewCache) viewKey(userID string) string {
	return fmt.Sprintf("mirror:view:%s", userID)
}

// GetView returns the cached lookup view for a user, or nil on a miss.
func (c *ViewCache) GetView(ctx context.Context, userID string) (*domain.LookupResult, error) {
	data, err := c.client.Get(ctx, c.viewKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting cached view: %w", err)
	}

	var result domain.LookupResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decoding cached view: %w", err)
	}
	return &result, nil
}

// SetView stores a resolved lookup view for the configured TTL.
func (c *ViewCache) SetView(ctx context.Context, result domain.LookupResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding view: %w", err)
	}
	if err := c.client.Set(ctx, c.viewKey(result.UserID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("setting cached view: %w", err)
	}
	return nil
}
