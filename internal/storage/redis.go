package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix   = "huddle:kv:"
	redisEventPrefix = "huddle:events:"
)

// RedisStore implements Store on a Redis instance. Values live under
// huddle:kv:<path>; every write additionally publishes the change to
// huddle:events:<path>, which Watch subscribes to by pattern.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreWithClient wraps an existing Redis client.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) key(path string) string {
	return redisKeyPrefix + path
}

func (s *RedisStore) Get(ctx context.Context, path string) ([]byte, error) {
	value, err := s.client.Get(ctx, s.key(path)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", path, err)
	}
	return value, nil
}

func (s *RedisStore) Put(ctx context.Context, path string, value []byte) error {
	if err := s.client.Set(ctx, s.key(path), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", path, err)
	}
	s.publish(ctx, Event{Path: path, Value: value})
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, path string) error {
	if err := s.client.Del(ctx, s.key(path)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", path, err)
	}
	s.publish(ctx, Event{Path: path, Deleted: true})
	return nil
}

func (s *RedisStore) List(ctx context.Context, prefix string) ([]Entry, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.key(prefix)+"*", 200).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan %s: %w", prefix, err)
	}
	if len(keys) == 0 {
		return []Entry{}, nil
	}
	sort.Strings(keys)

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	entries := make([]Entry, 0, len(keys))
	for i, key := range keys {
		raw, ok := values[i].(string)
		if !ok {
			// key removed between SCAN and MGET
			continue
		}
		entries = append(entries, Entry{
			Path:  key[len(redisKeyPrefix):],
			Value: []byte(raw),
		})
	}
	return entries, nil
}

func (s *RedisStore) Incr(ctx context.Context, path string) (int64, error) {
	value, err := s.client.Incr(ctx, s.key(path)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", path, err)
	}
	return value, nil
}

func (s *RedisStore) Watch(ctx context.Context, prefix string, fn func(Event)) (CancelFunc, error) {
	pubsub := s.client.PSubscribe(ctx, redisEventPrefix+prefix+"*")
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", prefix, err)
	}

	go func() {
		for msg := range pubsub.Channel() {
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				continue
			}
			fn(event)
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() { _ = pubsub.Close() })
	}
	return cancel, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// publish is best-effort: a lost event only delays watchers until the next
// change on the same prefix.
func (s *RedisStore) publish(ctx context.Context, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	_ = s.client.Publish(ctx, redisEventPrefix+event.Path, payload).Err()
}
