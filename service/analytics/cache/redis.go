package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig represents redis connection settings.
type RedisConfig struct {
	Addrs    []string `json:"addrs,omitempty" yaml:"addrs,omitempty" env:"ADDRS" envSeparator:","`
	Password string   `json:"password,omitempty" yaml:"password,omitempty" env:"PASSWORD"`
	DB       int      `json:"db,omitempty" yaml:"db,omitempty" env:"DB"`
	Cluster  bool     `json:"cluster,omitempty" yaml:"cluster,omitempty" env:"CLUSTER"`
}

// NewClient creates a single node or cluster client.
func NewClient(config *RedisConfig) redis.UniversalClient {
	if config.Cluster && len(config.Addrs) > 1 {
		return redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:    config.Addrs,
			Password: config.Password,
		})
	}
	addr := "localhost:6379"
	if len(config.Addrs) > 0 {
		addr = config.Addrs[0]
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: config.Password,
		DB:       config.DB,
	})
}

// Redis is a Cache backed by redis.
type Redis struct {
	client redis.UniversalClient
}

// NewRedis wraps client.
func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return value, err
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// Close releases the client.
func (r *Redis) Close() error {
	return r.client.Close()
}
