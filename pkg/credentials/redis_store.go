package credentials

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisOpTimeout = 5 * time.Second

// RedisStore implements Store with credentials as JSON values keyed as
// <namespace>:cookies:<identity>. Useful when several processes on one host
// share a login (the GUI and the crawler subprocess).
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed credential store
func NewRedisStore(addr, password string, db int, namespace string, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		prefix: namespace,
		ttl:    ttl,
	}
}

// NewRedisStoreWithClient builds a store around an existing client (tests)
func NewRedisStoreWithClient(client *redis.Client, namespace string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: namespace, ttl: ttl}
}

// Close closes the Redis client
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(identity string) string {
	return fmt.Sprintf("%s:cookies:%s", s.prefix, identity)
}

// Store saves credentials to Redis
func (s *RedisStore) Store(account *Account) error {
	if account == nil || account.Identity == "" {
		return ErrInvalidCredentials
	}

	data, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	if err := s.client.Set(ctx, s.key(account.Identity), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store in redis: %w", err)
	}

	return nil
}

// Retrieve gets credentials from Redis
func (s *RedisStore) Retrieve(identity string) (*Account, error) {
	if identity == "" {
		return nil, ErrInvalidCredentials
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	val, err := s.client.Get(ctx, s.key(identity)).Result()
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return nil, ErrCredentialsNotFound
		}
		return nil, fmt.Errorf("failed to retrieve from redis: %w", err)
	}

	var account Account
	if err := json.Unmarshal([]byte(val), &account); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account: %w", err)
	}

	return &account, nil
}

// List returns all stored accounts by scanning the namespace
func (s *RedisStore) List() ([]*Account, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	var accounts []*Account
	iter := s.client.Scan(ctx, 0, s.key("*"), 100).Iterator()
	for iter.Next(ctx) {
		val, err := s.client.Get(ctx, iter.Val()).Result()
		if err != nil {
			continue
		}
		var account Account
		if err := json.Unmarshal([]byte(val), &account); err != nil {
			continue
		}
		accounts = append(accounts, &account)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan redis: %w", err)
	}

	return accounts, nil
}

// Delete removes credentials from Redis
func (s *RedisStore) Delete(identity string) error {
	if identity == "" {
		return ErrInvalidCredentials
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	removed, err := s.client.Del(ctx, s.key(identity)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete from redis: %w", err)
	}
	if removed == 0 {
		return ErrCredentialsNotFound
	}

	return nil
}

// Exists checks if credentials exist in Redis
func (s *RedisStore) Exists(identity string) bool {
	if identity == "" {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	n, err := s.client.Exists(ctx, s.key(identity)).Result()
	return err == nil && n > 0
}
