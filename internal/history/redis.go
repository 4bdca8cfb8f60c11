package history

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisAPI is the subset of *redis.Client used by RedisStore.
type RedisAPI interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// RedisStore keeps each session's log in one string key.
type RedisStore struct {
	api    RedisAPI
	prefix string
	closer func() error
}

// NewRedisStore returns a store using api. Keys are prefix + "{session_id}.json".
func NewRedisStore(api RedisAPI, prefix string) *RedisStore {
	s := &RedisStore{api: api, prefix: prefix}
	if c, ok := api.(interface{ Close() error }); ok {
		s.closer = c.Close
	}
	return s
}

// DialRedis connects to addr and verifies the connection.
func DialRedis(ctx context.Context, addr, prefix string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrapf(err, "ping redis at %s", addr)
	}
	return NewRedisStore(client, prefix), nil
}

func (s *RedisStore) Name() string { return "redis" }

func (s *RedisStore) key(sessionID string) (string, error) {
	key, err := Key(sessionID)
	if err != nil {
		return "", err
	}
	return s.prefix + key, nil
}

func (s *RedisStore) Load(ctx context.Context, sessionID string) ([]Message, error) {
	key, err := s.key(sessionID)
	if err != nil {
		return nil, err
	}
	data, err := s.api.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return []Message{}, nil
	}
	if err != nil {
		return nil, storageErr(s.Name(), "load", sessionID, errors.Wrapf(err, "get %s", key))
	}
	msgs, err := Decode(data)
	if err != nil {
		return nil, storageErr(s.Name(), "load", sessionID, errors.Wrapf(err, "decode %s", key))
	}
	return msgs, nil
}

func (s *RedisStore) Save(ctx context.Context, sessionID string, messages []Message) error {
	key, err := s.key(sessionID)
	if err != nil {
		return err
	}
	data, err := Encode(messages)
	if err != nil {
		return storageErr(s.Name(), "save", sessionID, errors.Wrap(err, "encode"))
	}
	if err := s.api.Set(ctx, key, data, 0).Err(); err != nil {
		return storageErr(s.Name(), "save", sessionID, errors.Wrapf(err, "set %s", key))
	}
	return nil
}

// Close closes the client when it supports it.
func (s *RedisStore) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
