package checkpoint

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"snscraper/pkg/errors"
)

// RedisStore persists checkpoints as JSON values in Redis, keyed as
// <namespace>:checkpoint:<task_id>.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed store
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

func (s *RedisStore) key(taskID string) string {
	return fmt.Sprintf("%s:checkpoint:%s", s.prefix, taskID)
}

// Save writes the checkpoint record to Redis
func (s *RedisStore) Save(ctx context.Context, cp *Checkpoint) error {
	payload, err := json.Marshal(cp)
	if err != nil {
		return errors.Newf(errors.ErrorTypeStorage, "checkpoint.save", "marshal checkpoint for task %s: %v", cp.TaskID, err)
	}

	if err := s.client.Set(ctx, s.key(cp.TaskID), payload, s.ttl).Err(); err != nil {
		return errors.Newf(errors.ErrorTypeStorage, "checkpoint.save", "write checkpoint for task %s: %v", cp.TaskID, err)
	}
	return nil
}

// Load reads the checkpoint record from Redis
func (s *RedisStore) Load(ctx context.Context, taskID string) (*Checkpoint, bool, error) {
	val, err := s.client.Get(ctx, s.key(taskID)).Result()
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, errors.Newf(errors.ErrorTypeStorage, "checkpoint.load", "read checkpoint for task %s: %v", taskID, err)
	}

	var cp Checkpoint
	if err := json.Unmarshal([]byte(val), &cp); err != nil {
		return nil, false, errors.Newf(errors.ErrorTypeStorage, "checkpoint.load", "decode checkpoint for task %s: %v", taskID, err)
	}

	return &cp, true, nil
}

// Delete removes the checkpoint record for taskID
func (s *RedisStore) Delete(ctx context.Context, taskID string) error {
	if err := s.client.Del(ctx, s.key(taskID)).Err(); err != nil {
		return errors.Newf(errors.ErrorTypeStorage, "checkpoint.delete", "delete checkpoint for task %s: %v", taskID, err)
	}
	return nil
}
