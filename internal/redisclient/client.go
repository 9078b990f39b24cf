package redisclient

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed scripts/release_lock.lua
var releaseLockScript string

const idempotencyPending = "pending"

type Client struct {
	rdb           *redis.Client
	releaseScript *redis.Script
}

// NewClient creates a new Redis client and checks the connection
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return New(rdb), nil
}

// New wraps an existing redis client
func New(rdb *redis.Client) *Client {
	return &Client{
		rdb:           rdb,
		releaseScript: redis.NewScript(releaseLockScript),
	}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the Redis connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func stockKey(productID int64) string {
	return fmt.Sprintf("stock:%d", productID)
}

// SetStocks writes product quantities into the cache in one round trip
func (c *Client) SetStocks(ctx context.Context, stocks map[int64]int) error {
	if len(stocks) == 0 {
		return nil
	}

	pipe := c.rdb.Pipeline()
	for id, qty := range stocks {
		pipe.Set(ctx, stockKey(id), qty, 0)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache stock: %w", err)
	}
	return nil
}

// GetStock reads a cached quantity. ok is false on a cache miss.
func (c *Client) GetStock(ctx context.Context, productID int64) (qty int, ok bool, err error) {
	val, err := c.rdb.Get(ctx, stockKey(productID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	qty, err = strconv.Atoi(val)
	if err != nil {
		return 0, false, fmt.Errorf("invalid cached stock for product %d: %w", productID, err)
	}
	return qty, true, nil
}

// AcquireLock takes a distributed lock. The returned token must be passed to
// ReleaseLock; an empty token means the lock is held elsewhere.
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, error) {
	token := uuid.New().String()
	ok, err := c.rdb.SetNX(ctx, "lock:"+lockKey, token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("failed to acquire lock %s: %w", lockKey, err)
	}
	if !ok {
		return "", nil
	}
	return token, nil
}

// ReleaseLock releases a lock only if token still owns it
func (c *Client) ReleaseLock(ctx context.Context, lockKey, token string) (bool, error) {
	n, err := c.releaseScript.Run(ctx, c.rdb, []string{"lock:" + lockKey}, token).Int64()
	if err != nil {
		return false, fmt.Errorf("release lock script failed: %w", err)
	}
	return n == 1, nil
}

func idempotencyKey(key string) string {
	return "idempotency:" + key
}

// ClaimIdempotencyKey marks a key as in progress. It returns false when the
// key was already claimed or completed.
func (c *Client) ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, idempotencyKey(key), idempotencyPending, ttl).Result()
}

// CompleteIdempotencyKey stores the result of the operation behind key
func (c *Client) CompleteIdempotencyKey(ctx context.Context, key, result string, ttl time.Duration) error {
	return c.rdb.Set(ctx, idempotencyKey(key), result, ttl).Err()
}

// GetIdempotencyResult returns the stored result. done is false while the
// key is missing or still in progress.
func (c *Client) GetIdempotencyResult(ctx context.Context, key string) (result string, done bool, err error) {
	val, err := c.rdb.Get(ctx, idempotencyKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if val == idempotencyPending {
		return "", false, nil
	}
	return val, true, nil
}

// ReleaseIdempotencyKey drops a claim so the operation can be retried
func (c *Client) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, idempotencyKey(key)).Err()
}
