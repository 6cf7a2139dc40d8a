package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"goodscommunity/internal/domain"
)

const defaultKeyPrefix = "goods:session:"

// RedisStore keeps snapshots as JSON values with a sliding TTL.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, keyPrefix: defaultKeyPrefix, ttl: ttl}
}

func (s *RedisStore) key(id string) string { return s.keyPrefix + id }

func (s *RedisStore) Get(ctx context.Context, id string) (*domain.MemberView, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}
	var m domain.MemberView
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if s.ttl > 0 {
		// sliding expiry; a failed refresh only shortens the session
		_ = s.client.Expire(ctx, s.key(id), s.ttl).Err()
	}
	return &m, nil
}

func (s *RedisStore) Set(ctx context.Context, id string, m domain.MemberView) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(id), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("redis del session: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
