package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps entries in Redis under a per-session namespace. The
// namespace's managed keys live in a Redis set, refreshed to sessionTTL on
// every write, so an abandoned session disappears on its own.
type RedisStore[T any] struct {
	client     *redis.Client
	ownsClient bool
	namespace  string
	sessionTTL time.Duration
	opTimeout  time.Duration
	now        func() time.Time
}

// RedisConfig holds connection settings.
type RedisConfig struct {
	Addr       string        `yaml:"addr" json:"addr"`
	Password   string        `yaml:"password" json:"password"`
	DB         int           `yaml:"db" json:"db"`
	Namespace  string        `yaml:"namespace" json:"namespace"`
	SessionTTL time.Duration `yaml:"session_ttl" json:"session_ttl"`
}

// NewRedisClient connects and pings.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func NewRedisStore[T any](client *redis.Client, namespace string, sessionTTL time.Duration) *RedisStore[T] {
	if namespace == "" {
		namespace = "eventscout"
	}
	return &RedisStore[T]{
		client:     client,
		namespace:  namespace,
		sessionTTL: sessionTTL,
		opTimeout:  2 * time.Second,
		now:        time.Now,
	}
}

// OwnClient makes Close also close the Redis client.
func (r *RedisStore[T]) OwnClient() *RedisStore[T] {
	r.ownsClient = true
	return r
}

func (r *RedisStore[T]) entryKey(key string) string { return r.namespace + ":e:" + key }
func (r *RedisStore[T]) setKey() string             { return r.namespace + ":keys" }

func (r *RedisStore[T]) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), r.opTimeout)
}

func (r *RedisStore[T]) Load(key string) (Entry[T], bool, error) {
	ctx, cancel := r.ctx()
	defer cancel()

	data, err := r.client.Get(ctx, r.entryKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		// Redis may have expired the value before we did.
		_ = r.client.SRem(ctx, r.setKey(), key).Err()
		return Entry[T]{}, false, nil
	}
	if err != nil {
		return Entry[T]{}, false, err
	}
	e, err := decodeEntry[T](data)
	if err != nil {
		return Entry[T]{}, false, fmt.Errorf("decode %q: %w", key, err)
	}
	return e, true, nil
}

func (r *RedisStore[T]) Save(e Entry[T]) error {
	data, err := encodeEntry(e)
	if err != nil {
		return err
	}
	remaining := e.Timestamp.Add(e.TTL).Sub(r.now())
	if remaining <= 0 {
		remaining = time.Millisecond
	}

	ctx, cancel := r.ctx()
	defer cancel()
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.entryKey(e.Key), data, remaining)
		pipe.SAdd(ctx, r.setKey(), e.Key)
		if r.sessionTTL > 0 {
			pipe.Expire(ctx, r.setKey(), r.sessionTTL)
		}
		return nil
	})
	if err != nil && strings.HasPrefix(err.Error(), "OOM") {
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	}
	return err
}

func (r *RedisStore[T]) Remove(key string) error {
	ctx, cancel := r.ctx()
	defer cancel()
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.entryKey(key))
		pipe.SRem(ctx, r.setKey(), key)
		return nil
	})
	return err
}

func (r *RedisStore[T]) Keys() ([]string, error) {
	ctx, cancel := r.ctx()
	defer cancel()
	return r.client.SMembers(ctx, r.setKey()).Result()
}

func (r *RedisStore[T]) Len() int {
	ctx, cancel := r.ctx()
	defer cancel()
	n, err := r.client.SCard(ctx, r.setKey()).Result()
	if err != nil {
		return 0
	}
	return int(n)
}

// Clear deletes only keys this namespace manages.
func (r *RedisStore[T]) Clear() error {
	keys, err := r.Keys()
	if err != nil {
		return err
	}
	ctx, cancel := r.ctx()
	defer cancel()
	del := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		del = append(del, r.entryKey(k))
	}
	del = append(del, r.setKey())
	return r.client.Del(ctx, del...).Err()
}

func (r *RedisStore[T]) Close() error {
	if !r.ownsClient {
		return nil
	}
	return r.client.Close()
}
