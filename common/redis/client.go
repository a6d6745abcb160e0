// Package redis holds the go-redis helpers shared by the sample stream mirror
// and the archive fingerprint cache.
package redis

import (
	"context"
	"fmt"
	"time"

	"telemetry-hub/common/config"

	"github.com/go-redis/redis/v8"
)

// Client is an alias so callers need not import go-redis directly.
type Client = redis.Client

// NewRedisClient creates a client for cfg.
func NewRedisClient(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// Ping checks the connection, giving up after five seconds.
func Ping(ctx context.Context, client *redis.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping %s: %w", client.Options().Addr, err)
	}
	return nil
}

// Close closes the client.
func Close(client *redis.Client) error {
	if client == nil {
		return nil
	}
	return client.Close()
}
