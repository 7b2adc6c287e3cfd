package engine

import (
	"context"
	"errors"
)

// ErrUnavailable reports that the backing store cannot be reached. Callers
// surface it as-is; no component retries behind the caller's back.
var ErrUnavailable = errors.New("engine: store unavailable")

// Message is one pub/sub delivery.
type Message struct {
	Channel string
	Payload []byte
}

// Subscription is a live pub/sub registration. Messages is closed when the
// subscription ends.
type Subscription interface {
	Messages() <-chan Message
	Close() error
}

// Engine is the minimal store contract the shared state layer requires:
// single-key strings, hashes, lists, counters, and publish/subscribe.
// Per-key operations are atomic; there are no cross-key transactions.
type Engine interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
	Incr(ctx context.Context, key string) (int64, error)
	Decr(ctx context.Context, key string) (int64, error)

	HGet(ctx context.Context, key, field string) (value []byte, ok bool, err error)
	HSet(ctx context.Context, key, field string, value []byte) error
	HDel(ctx context.Context, key string, fields ...string) error
	HGetAll(ctx context.Context, key string) (map[string][]byte, error)

	LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error)
	LPush(ctx context.Context, key string, values ...[]byte) error
	RPush(ctx context.Context, key string, values ...[]byte) error
	LSet(ctx context.Context, key string, index int64, value []byte) error
	LRem(ctx context.Context, key string, value []byte) error
	LPopFront(ctx context.Context, key string) (value []byte, ok bool, err error)
	LPopBack(ctx context.Context, key string) (value []byte, ok bool, err error)
	LLen(ctx context.Context, key string) (int64, error)

	Keys(ctx context.Context, pattern string) ([]string, error)

	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channels ...string) (Subscription, error)

	Ping(ctx context.Context) error
	Close() error
}
