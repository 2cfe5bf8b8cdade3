// ABOUTME: Redis backend for the key-value store
// ABOUTME: Namespaces keys so several installs can share one server
package kv

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const scanCount = 100

// Redis stores keys in a Redis server
type Redis struct {
	client    *redis.Client
	namespace string
}

// NewRedis wraps an existing client. namespace is prepended to every key.
func NewRedis(client *redis.Client, namespace string) *Redis {
	return &Redis{client: client, namespace: namespace}
}

// DialRedis connects to addr and checks the connection
func DialRedis(ctx context.Context, addr, password string, db int, namespace string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection not available at %s: %w", addr, err)
	}
	return NewRedis(client, namespace), nil
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, r.namespace+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, r.namespace+key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.namespace+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Keys(ctx context.Context, prefix string) ([]string, error) {
	match := r.namespace + prefix + "*"
	var (
		cursor uint64
		keys   []string
	)
	for {
		batch, next, err := r.client.Scan(ctx, cursor, match, scanCount).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scan %s: %w", match, err)
		}
		for _, k := range batch {
			keys = append(keys, strings.TrimPrefix(k, r.namespace))
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	sort.Strings(keys)
	if keys == nil {
		keys = make([]string, 0)
	}
	return keys, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
