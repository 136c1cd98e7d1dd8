package circuitbreaker

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisWrapper wraps a Redis client with a circuit breaker. Only the commands
// the key-value store layer uses are exposed.
type RedisWrapper struct {
	client *redis.Client
	cb     *CircuitBreaker
	logger *zap.Logger
}

// NewRedisWrapper creates a Redis wrapper with circuit breaker
func NewRedisWrapper(client *redis.Client, logger *zap.Logger) *RedisWrapper {
	cb := NewCircuitBreaker("redis", RedisConfig(), logger)
	GlobalMetricsCollector.RegisterCircuitBreaker("redis", "kv-store", cb)
	return &RedisWrapper{client: client, cb: cb, logger: logger}
}

// execute runs the command through the breaker and records metrics. Redis Nil
// is a miss, not a failure, so cmdErr filters it before breaker accounting.
func (rw *RedisWrapper) execute(ctx context.Context, run func() error) error {
	err := rw.cb.Execute(ctx, run)
	GlobalMetricsCollector.RecordRequest("redis", "kv-store", rw.cb.State(), err == nil)
	return err
}

func cmdErr(err error) error {
	if err == redis.Nil {
		return nil
	}
	return err
}

func (rw *RedisWrapper) Ping(ctx context.Context) *redis.StatusCmd {
	var result *redis.StatusCmd
	err := rw.execute(ctx, func() error {
		result = rw.client.Ping(ctx)
		return result.Err()
	})
	if err != nil && result == nil {
		result = redis.NewStatusCmd(ctx)
		result.SetErr(err)
	}
	return result
}

func (rw *RedisWrapper) Get(ctx context.Context, key string) *redis.StringCmd {
	var result *redis.StringCmd
	err := rw.execute(ctx, func() error {
		result = rw.client.Get(ctx, key)
		return cmdErr(result.Err())
	})
	if err != nil && result == nil {
		result = redis.NewStringCmd(ctx)
		result.SetErr(err)
	}
	return result
}

func (rw *RedisWrapper) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	var result *redis.StatusCmd
	err := rw.execute(ctx, func() error {
		result = rw.client.Set(ctx, key, value, expiration)
		return result.Err()
	})
	if err != nil && result == nil {
		result = redis.NewStatusCmd(ctx)
		result.SetErr(err)
	}
	return result
}

func (rw *RedisWrapper) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var result *redis.IntCmd
	err := rw.execute(ctx, func() error {
		result = rw.client.Del(ctx, keys...)
		return result.Err()
	})
	if err != nil && result == nil {
		result = redis.NewIntCmd(ctx)
		result.SetErr(err)
	}
	return result
}

func (rw *RedisWrapper) Keys(ctx context.Context, pattern string) *redis.StringSliceCmd {
	var result *redis.StringSliceCmd
	err := rw.execute(ctx, func() error {
		result = rw.client.Keys(ctx, pattern)
		return result.Err()
	})
	if err != nil && result == nil {
		result = redis.NewStringSliceCmd(ctx)
		result.SetErr(err)
	}
	return result
}

func (rw *RedisWrapper) SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd {
	var result *redis.IntCmd
	err := rw.execute(ctx, func() error {
		result = rw.client.SAdd(ctx, key, members...)
		return result.Err()
	})
	if err != nil && result == nil {
		result = redis.NewIntCmd(ctx)
		result.SetErr(err)
	}
	return result
}

func (rw *RedisWrapper) SRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd {
	var result *redis.IntCmd
	err := rw.execute(ctx, func() error {
		result = rw.client.SRem(ctx, key, members...)
		return result.Err()
	})
	if err != nil && result == nil {
		result = redis.NewIntCmd(ctx)
		result.SetErr(err)
	}
	return result
}

func (rw *RedisWrapper) SMembers(ctx context.Context, key string) *redis.StringSliceCmd {
	var result *redis.StringSliceCmd
	err := rw.execute(ctx, func() error {
		result = rw.client.SMembers(ctx, key)
		return result.Err()
	})
	if err != nil && result == nil {
		result = redis.NewStringSliceCmd(ctx)
		result.SetErr(err)
	}
	return result
}

// Close closes the underlying Redis client
func (rw *RedisWrapper) Close() error {
	return rw.client.Close()
}
