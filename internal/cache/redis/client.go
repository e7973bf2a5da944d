package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vetlab/backend/pkg/circuitbreaker"
	"github.com/vetlab/backend/pkg/logger"
)

// Client publishes live session snapshots so other instances and instructor views can
// read a session without owning its engine. Calls go through a circuit breaker: a redis
// outage degrades to "no live view" instead of slowing every decision down.
type Client struct {
	client      *redis.Client
	snapshotTTL time.Duration
	breaker     *circuitbreaker.CircuitBreaker
}

func NewClient(host string, port int, password string, db int, snapshotTTL time.Duration) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return newClient(client, snapshotTTL), nil
}

func newClient(client *redis.Client, snapshotTTL time.Duration) *Client {
	return &Client{
		client:      client,
		snapshotTTL: snapshotTTL,
		breaker: circuitbreaker.NewCircuitBreaker("redis", circuitbreaker.Config{
			FailureThreshold: 5,
			Timeout:          30 * time.Second,
			Logger:           logger.Named("redis"),
		}),
	}
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func snapshotKey(sessionID string) string {
	return fmt.Sprintf("session:%s:snapshot", sessionID)
}

func (c *Client) SaveSessionSnapshot(ctx context.Context, sessionID string, snapshot interface{}) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	err = c.breaker.Execute(ctx, func() error {
		return c.client.Set(ctx, snapshotKey(sessionID), data, c.snapshotTTL).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to save session snapshot: %w", err)
	}

	logger.Debug("Session snapshot saved", zap.String("session_id", sessionID), zap.Duration("ttl", c.snapshotTTL))
	return nil
}

// LoadSessionSnapshot decodes the stored snapshot into out. It reports false when none exists.
func (c *Client) LoadSessionSnapshot(ctx context.Context, sessionID string, out interface{}) (bool, error) {
	var data []byte
	err := c.breaker.Execute(ctx, func() error {
		var err error
		data, err = c.client.Get(ctx, snapshotKey(sessionID)).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to load session snapshot: %w", err)
	}
	if data == nil {
		return false, nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return true, nil
}

func (c *Client) DeleteSessionSnapshot(ctx context.Context, sessionID string) error {
	return c.breaker.Execute(ctx, func() error {
		return c.client.Del(ctx, snapshotKey(sessionID)).Err()
	})
}
