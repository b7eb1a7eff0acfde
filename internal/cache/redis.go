package cache

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const idempotencyPrefix = "idem:"

// RedisClient wraps the Redis client used for idempotency keys
type RedisClient struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient creates a new Redis client and checks the connection
func NewRedisClient(addr, password string, db int, ttl time.Duration) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	log.Printf("[Redis] Connected to %s", addr)
	return &RedisClient{client: client, ttl: ttl}, nil
}

// Claim records key if it has not been seen within the TTL. It returns false
// when the key is already held.
func (r *RedisClient) Claim(ctx context.Context, key string) (bool, error) {
	return r.client.SetNX(ctx, idempotencyPrefix+key, time.Now().Unix(), r.ttl).Result()
}

// Release forgets key so the same id can be retried
func (r *RedisClient) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, idempotencyPrefix+key).Err()
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	return r.client.Close()
}

// Health checks if Redis is healthy
func (r *RedisClient) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
