package callback

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient is the minimal client surface used by the Redis transport.
type RedisClient interface {
	TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
}

const defaultKeyPrefix = "callback:"

// RedisResolver resolves tokens owned by another process by pushing the
// outcome onto a per-token list.
type RedisResolver struct {
	client    RedisClient
	keyPrefix string
	ttl       time.Duration
}

// NewRedisResolver constructs a resolver. Outcome lists expire after ttl so
// tokens nobody awaits do not accumulate.
func NewRedisResolver(client RedisClient, ttl time.Duration) *RedisResolver {
	return &RedisResolver{client: client, keyPrefix: defaultKeyPrefix, ttl: ttl}
}

func (r *RedisResolver) ResolveSuccess(ctx context.Context, token string, output any) error {
	result, err := successResult(output)
	if err != nil {
		return err
	}
	return r.push(ctx, token, result)
}

func (r *RedisResolver) ResolveFailure(ctx context.Context, token, code, cause string) error {
	return r.push(ctx, token, failureResult(code, cause))
}

func (r *RedisResolver) push(ctx context.Context, token string, result Result) error {
	if token == "" {
		return ErrUnknownToken
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	key := r.keyPrefix + token
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, payload)
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	return err
}

// RedisAwaiter waits for outcomes pushed by a RedisResolver.
type RedisAwaiter struct {
	client    RedisClient
	keyPrefix string
}

// NewRedisAwaiter constructs an awaiter on the same key space as NewRedisResolver.
func NewRedisAwaiter(client RedisClient) *RedisAwaiter {
	return &RedisAwaiter{client: client, keyPrefix: defaultKeyPrefix}
}

// Await blocks up to timeout for the token's outcome.
func (a *RedisAwaiter) Await(ctx context.Context, token string, timeout time.Duration) (Result, error) {
	values, err := a.client.BLPop(ctx, timeout, a.keyPrefix+token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Result{}, ErrTokenExpired
		}
		return Result{}, err
	}
	if len(values) != 2 {
		return Result{}, errors.New("unexpected BLPOP reply")
	}
	var result Result
	if err := json.Unmarshal([]byte(values[1]), &result); err != nil {
		return Result{}, err
	}
	return result, nil
}
