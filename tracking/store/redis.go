package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sweetpotato0/ai-factcheck/tracking"
)

// RedisStore keeps records in a hash (article id -> record JSON) and the
// insertion order in a list next to it.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ tracking.Store = (*RedisStore)(nil)

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // Key prefix for all tracking keys
	TTL      time.Duration // Expiry applied to both keys; 0 keeps them forever
}

// DefaultRedisConfig returns default Redis configuration
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:   "localhost:6379",
		Prefix: "factcheck:tracking:",
	}
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(config *RedisConfig) (*RedisStore, error) {
	if config == nil {
		config = DefaultRedisConfig()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisStoreWithClient(client, config.Prefix, config.TTL), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) recordsKey() string { return s.prefix + "records" }
func (s *RedisStore) orderKey() string   { return s.prefix + "order" }

// Load implements tracking.Store.
func (s *RedisStore) Load(ctx context.Context) (*tracking.Data, error) {
	ids, err := s.client.LRange(ctx, s.orderKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read tracking order: %w", err)
	}
	data := tracking.NewData()
	if len(ids) == 0 {
		return data, nil
	}
	values, err := s.client.HMGet(ctx, s.recordsKey(), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read tracking records: %w", err)
	}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Listed but missing from the hash, e.g. after a partial expiry.
			continue
		}
		rec, err := tracking.DecodeRecord([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("article %s: %w", ids[i], err)
		}
		data.Put(ids[i], rec)
	}
	return data, nil
}

// Has implements tracking.Store.
func (s *RedisStore) Has(ctx context.Context, articleID string) (bool, error) {
	ok, err := s.client.HExists(ctx, s.recordsKey(), articleID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check tracking record: %w", err)
	}
	return ok, nil
}

// Save implements tracking.Store.
func (s *RedisStore) Save(ctx context.Context, articleID string, rec tracking.Record) error {
	raw, err := tracking.EncodeRecord(rec)
	if err != nil {
		return err
	}
	exists, err := s.Has(ctx, articleID)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.recordsKey(), articleID, string(raw))
		if !exists {
			pipe.RPush(ctx, s.orderKey(), articleID)
		}
		if s.ttl > 0 {
			pipe.Expire(ctx, s.recordsKey(), s.ttl)
			pipe.Expire(ctx, s.orderKey(), s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store tracking record: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis connection is alive
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
