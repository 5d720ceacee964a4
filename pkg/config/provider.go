package config

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// StaticProvider resolves the collector base URL from a fixed value.
type StaticProvider struct {
	URL string
}

func (s StaticProvider) CollectorBaseURL(context.Context) (string, error) {
	return strings.TrimSpace(s.URL), nil
}

// RedisProvider resolves the collector base URL from a Redis string key
// maintained by a remote configuration service.
type RedisProvider struct {
	client *redis.Client
	key    string
}

func NewRedisProvider(client *redis.Client, key string) *RedisProvider {
	return &RedisProvider{client: client, key: key}
}

// CollectorBaseURL returns "" without error when the key is absent.
func (r *RedisProvider) CollectorBaseURL(ctx context.Context) (string, error) {
	val, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", r.key, err)
	}
	return strings.TrimSpace(val), nil
}
