package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	request "github.com/zhangxinping666/admin-mp-sub001"
)

// DefaultRedisKey is used when no key is configured.
const DefaultRedisKey = "backstage:session:tokens"

// RedisStore keeps tokens under a single Redis key so several console
// processes can share one session.
type RedisStore struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
}

// NewRedisStore wraps client. A zero ttl stores tokens without expiry.
func NewRedisStore(client redis.Cmdable, key string, ttl time.Duration) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key, ttl: ttl}
}

// NewRedisStoreFromURL parses a redis:// URL and connects lazily.
func NewRedisStoreFromURL(rawURL, key string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return NewRedisStore(redis.NewClient(opts), key, ttl), nil
}

// Key returns the Redis key holding the tokens.
func (s *RedisStore) Key() string {
	return s.key
}

// Load reads the stored tokens. A missing key yields zero tokens.
func (s *RedisStore) Load(ctx context.Context) (request.Tokens, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return request.Tokens{}, nil
	}
	if err != nil {
		return request.Tokens{}, fmt.Errorf("redis get %s: %w", s.key, err)
	}

	var tokens request.Tokens
	if err := json.Unmarshal(data, &tokens); err != nil {
		return request.Tokens{}, fmt.Errorf("decoding %s: %w", s.key, err)
	}
	return tokens, nil
}

// Save stores tokens, resetting the ttl.
func (s *RedisStore) Save(ctx context.Context, tokens request.Tokens) error {
	data, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("encoding tokens: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.key, err)
	}
	return nil
}

// Clear deletes the key.
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", s.key, err)
	}
	return nil
}

var _ request.TokenStore = (*RedisStore)(nil)
