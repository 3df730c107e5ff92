package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStorage keeps credentials under one key whose TTL tracks the token
// lifetime.
type RedisStorage struct {
	client *redis.Client
	key    string
	now    func() time.Time
}

// NewRedisStorage stores credentials at prefix+name.
func NewRedisStorage(client *redis.Client, prefix, name string) *RedisStorage {
	if prefix == "" {
		prefix = "gli:session:"
	}
	if name == "" {
		name = DefaultCredentialName
	}
	return &RedisStorage{client: client, key: prefix + name, now: time.Now}
}

func (r *RedisStorage) Key() string { return r.key }

func (r *RedisStorage) Load(ctx context.Context) (Credentials, error) {
	raw, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Credentials{}, nil
	}
	if err != nil {
		return Credentials{}, fmt.Errorf("load credentials %s: %w", r.key, err)
	}
	var creds Credentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		return Credentials{}, fmt.Errorf("decode credentials: %w", err)
	}
	return creds, nil
}

func (r *RedisStorage) Save(ctx context.Context, creds Credentials) error {
	var ttl time.Duration
	if creds.ExpiresAt > 0 {
		ttl = time.Unix(creds.ExpiresAt, 0).Sub(r.now())
		if ttl <= 0 {
			return r.Clear(ctx)
		}
	}
	data, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key, data, ttl).Err(); err != nil {
		return fmt.Errorf("save credentials %s: %w", r.key, err)
	}
	return nil
}

func (r *RedisStorage) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("clear credentials %s: %w", r.key, err)
	}
	return nil
}
