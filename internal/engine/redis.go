package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisOptions selects the Redis instance to talk to.
type RedisOptions struct {
	// Network is "tcp" or "unix".
	Network string
	Addr    string
}

// Redis implements Engine on a Redis server via go-redis.
type Redis struct {
	client *redis.Client
}

// NewRedis constructs an engine client. It does not dial eagerly; use Ping
// to verify connectivity.
func NewRedis(opts RedisOptions) *Redis {
	network := opts.Network
	if network == "" {
		network = "tcp"
	}
	return &Redis{
		client: redis.NewClient(&redis.Options{
			Network: network,
			Addr:    opts.Addr,
		}),
	}
}

// wrap maps transport failures to ErrUnavailable. redis.Nil is handled by
// callers before wrapping.
func wrap(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrap(err)
	}
	return value, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	return wrap(r.client.Set(ctx, key, value, 0).Err())
}

func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return wrap(r.client.Del(ctx, keys...).Err())
}

func (r *Redis) Incr(ctx context.Context, key string) (int64, error) {
	n, err := r.client.Incr(ctx, key).Result()
	return n, wrap(err)
}

func (r *Redis) Decr(ctx context.Context, key string) (int64, error) {
	n, err := r.client.Decr(ctx, key).Result()
	return n, wrap(err)
}

func (r *Redis) HGet(ctx context.Context, key, field string) ([]byte, bool, error) {
	value, err := r.client.HGet(ctx, key, field).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrap(err)
	}
	return value, true, nil
}

func (r *Redis) HSet(ctx context.Context, key, field string, value []byte) error {
	return wrap(r.client.HSet(ctx, key, field, value).Err())
}

func (r *Redis) HDel(ctx context.Context, key string, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	return wrap(r.client.HDel(ctx, key, fields...).Err())
}

func (r *Redis) HGetAll(ctx context.Context, key string) (map[string][]byte, error) {
	raw, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, wrap(err)
	}
	result := make(map[string][]byte, len(raw))
	for field, value := range raw {
		result[field] = []byte(value)
	}
	return result, nil
}

func (r *Redis) LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	raw, err := r.client.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, wrap(err)
	}
	result := make([][]byte, len(raw))
	for i, value := range raw {
		result[i] = []byte(value)
	}
	return result, nil
}

func (r *Redis) LPush(ctx context.Context, key string, values ...[]byte) error {
	return wrap(r.client.LPush(ctx, key, byteArgs(values)...).Err())
}

func (r *Redis) RPush(ctx context.Context, key string, values ...[]byte) error {
	return wrap(r.client.RPush(ctx, key, byteArgs(values)...).Err())
}

func (r *Redis) LSet(ctx context.Context, key string, index int64, value []byte) error {
	return wrap(r.client.LSet(ctx, key, index, value).Err())
}

func (r *Redis) LRem(ctx context.Context, key string, value []byte) error {
	return wrap(r.client.LRem(ctx, key, 0, value).Err())
}

func (r *Redis) LPopFront(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := r.client.LPop(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrap(err)
	}
	return value, true, nil
}

func (r *Redis) LPopBack(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := r.client.RPop(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrap(err)
	}
	return value, true, nil
}

func (r *Redis) LLen(ctx context.Context, key string) (int64, error) {
	n, err := r.client.LLen(ctx, key).Result()
	return n, wrap(err)
}

// Keys scans for keys matching a glob pattern. The shared state layer keeps
// its keyspaces narrow, so SCAN volume stays small.
func (r *Redis) Keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, wrap(err)
	}
	return keys, nil
}

func (r *Redis) Publish(ctx context.Context, channel string, payload []byte) error {
	return wrap(r.client.Publish(ctx, channel, payload).Err())
}

func (r *Redis) Subscribe(ctx context.Context, channels ...string) (Subscription, error) {
	pubsub := r.client.Subscribe(ctx, channels...)
	// Force the SUBSCRIBE round-trip so a dead store fails here, not on the
	// first receive.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, wrap(err)
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		out:    make(chan Message, 64),
	}
	go sub.pump()
	return sub, nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return wrap(r.client.Ping(ctx).Err())
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func byteArgs(values [][]byte) []any {
	args := make([]any, len(values))
	for i, value := range values {
		args[i] = value
	}
	return args
}

type redisSubscription struct {
	pubsub *redis.PubSub
	out    chan Message
}

func (s *redisSubscription) pump() {
	defer close(s.out)
	for msg := range s.pubsub.Channel() {
		s.out <- Message{Channel: msg.Channel, Payload: []byte(msg.Payload)}
	}
}

func (s *redisSubscription) Messages() <-chan Message { return s.out }

func (s *redisSubscription) Close() error { return s.pubsub.Close() }
