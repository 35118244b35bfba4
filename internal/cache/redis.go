package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/pulseboard/tsengine/pkg/errors"
)

// RedisConfig holds connection settings for a redis-backed cache.
type RedisConfig struct {
	Host      string `json:"host" yaml:"host"`
	Port      int    `json:"port" yaml:"port"`
	Password  string `json:"password" yaml:"password"`
	Database  int    `json:"database" yaml:"database"`
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`
	PoolSize  int    `json:"pool_size" yaml:"pool_size"`
}

// DefaultRedisConfig returns settings for a local redis instance.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Host:      "localhost",
		Port:      6379,
		Database:  0,
		KeyPrefix: "tsengine",
		PoolSize:  10,
	}
}

// RedisStore is a Store backed by a shared redis instance, so multiple engine
// replicas reuse each other's computations. Backend failures are logged and
// treated as misses.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *logrus.Logger
}

// NewRedisClient connects to redis and verifies the connection.
func NewRedisClient(ctx context.Context, config RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", config.Host, config.Port),
		Password: config.Password,
		DB:       config.Database,
		PoolSize: config.PoolSize,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeDependency, errors.CodeConnectionFailed,
			"failed to connect to redis").
			WithContext("host", config.Host).
			WithContext("port", config.Port)
	}
	return client, nil
}

// NewRedisStore wraps an existing client for one namespace. The namespace
// becomes part of the key prefix so each namespace can be invalidated
// independently.
func NewRedisStore(client *redis.Client, keyPrefix string, ns Namespace, logger *logrus.Logger) *RedisStore {
	if logger == nil {
		logger = logrus.New()
	}
	if keyPrefix == "" {
		keyPrefix = "tsengine"
	}

	return &RedisStore{
		client: client,
		prefix: fmt.Sprintf("%s:%s:", keyPrefix, ns),
		logger: logger,
	}
}

// NewRedisMemoizer builds a memoizer with one redis-backed store per
// namespace, all sharing a single client and connection pool.
func NewRedisMemoizer(ctx context.Context, config RedisConfig, ttls map[Namespace]time.Duration, logger *logrus.Logger) (*Memoizer, error) {
	client, err := NewRedisClient(ctx, config)
	if err != nil {
		return nil, err
	}

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"host":     config.Host,
			"port":     config.Port,
			"database": config.Database,
		}).Info("connected to redis cache")
	}

	stores := make(map[Namespace]Store, len(Namespaces))
	for _, ns := range Namespaces {
		stores[ns] = NewRedisStore(client, config.KeyPrefix, ns, logger)
	}
	return NewMemoizer(stores, ttls, logger), nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("redis get failed, treating as miss")
		return nil, false
	}
	return data, true
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := s.client.Set(ctx, s.prefix+key, value, ttl).Err(); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("redis set failed")
	}
}

func (s *RedisStore) Delete(ctx context.Context, key string) {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("redis delete failed")
	}
}

// DeletePattern removes keys matching a glob pattern using SCAN to avoid
// blocking the server on large keyspaces.
func (s *RedisStore) DeletePattern(ctx context.Context, pattern string) int {
	removed := 0
	iter := s.client.Scan(ctx, 0, s.prefix+pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			s.logger.WithError(err).WithField("key", iter.Val()).Warn("redis delete failed")
			continue
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		s.logger.WithError(err).WithField("pattern", pattern).Warn("redis scan failed")
	}
	return removed
}

func (s *RedisStore) Clear(ctx context.Context) {
	s.DeletePattern(ctx, "*")
}

// Close releases the underlying connection pool. Stores built by
// NewRedisMemoizer share one pool, so closing any of them closes all.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
