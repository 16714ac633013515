package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Sealer encrypts stored entries. The cache key is passed as associated data.
type Sealer interface {
	Seal(plain, aad []byte) ([]byte, error)
	Open(sealed, aad []byte) ([]byte, error)
}

// Redis is a Backend shared between gateway replicas. Entries are stored as
// JSON, sealed when a Sealer is set, and expire in Redis when their retention
// window ends.
type Redis struct {
	client *redis.Client
	prefix string
	sealer Sealer
}

func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) WithSealer(s Sealer) *Redis {
	r.sealer = s
	return r
}

func ConnectRedis(ctx context.Context, addr string) (*redis.Client, error) {
	const op = "cache.ConnectRedis"

	client := redis.NewClient(&redis.Options{Addr: addr})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return client, nil
}

func (r *Redis) Get(ctx context.Context, key string) (Entry, bool, error) {
	const op = "cache.Redis.Get"

	raw, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("%s: %w", op, err)
	}
	if r.sealer != nil {
		if raw, err = r.sealer.Open(raw, []byte(key)); err != nil {
			return Entry{}, false, fmt.Errorf("%s: %w", op, err)
		}
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{}, false, fmt.Errorf("%s: %w", op, err)
	}
	return entry, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, entry Entry, retain time.Duration) error {
	const op = "cache.Redis.Set"

	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if r.sealer != nil {
		if raw, err = r.sealer.Seal(raw, []byte(key)); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	if err := r.client.Set(ctx, r.prefix+key, raw, retain).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	const op = "cache.Redis.Delete"

	if len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, key := range keys {
		full = append(full, r.prefix+key)
	}
	if err := r.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (r *Redis) DeletePrefix(ctx context.Context, prefix string) error {
	const op = "cache.Redis.DeletePrefix"

	iter := r.client.Scan(ctx, 0, r.prefix+prefix+"*", 100).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 100 {
			if err := r.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if len(batch) > 0 {
		if err := r.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
