package settings

import (
	"context"

	"beacon/internal/engine"
)

// Queue is a persisted ordered list of string values.
type Queue struct {
	engine engine.Engine
	name   string
}

// NewQueue binds a queue setting to its engine key.
func NewQueue(eng engine.Engine, name string) *Queue {
	return &Queue{engine: eng, name: name}
}

// Name returns the engine key.
func (q *Queue) Name() string { return q.name }

// All returns every element, front first.
func (q *Queue) All(ctx context.Context) ([]string, error) {
	raw, err := q.engine.LRange(ctx, q.name, 0, -1)
	if err != nil {
		return nil, err
	}
	values := make([]string, len(raw))
	for i, v := range raw {
		values[i] = string(v)
	}
	return values, nil
}

// Append pushes values onto the back.
func (q *Queue) Append(ctx context.Context, values ...string) error {
	return q.engine.RPush(ctx, q.name, toBytes(values)...)
}

// Prepend pushes values onto the front, keeping their order: Prepend("a",
// "b") yields a queue starting a, b.
func (q *Queue) Prepend(ctx context.Context, values ...string) error {
	for i := len(values) - 1; i >= 0; i-- {
		if err := q.engine.LPush(ctx, q.name, []byte(values[i])); err != nil {
			return err
		}
	}
	return nil
}

// PopFront removes and returns the front element.
func (q *Queue) PopFront(ctx context.Context) (value string, ok bool, err error) {
	raw, ok, err := q.engine.LPopFront(ctx, q.name)
	return string(raw), ok, err
}

// PopBack removes and returns the back element.
func (q *Queue) PopBack(ctx context.Context) (value string, ok bool, err error) {
	raw, ok, err := q.engine.LPopBack(ctx, q.name)
	return string(raw), ok, err
}

// Remove deletes every element equal to value.
func (q *Queue) Remove(ctx context.Context, value string) error {
	return q.engine.LRem(ctx, q.name, []byte(value))
}

// Len reports the number of elements.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.engine.LLen(ctx, q.name)
}

// Replace atomically-enough swaps the whole queue contents: the key is
// deleted and repopulated. Readers racing a Replace may observe an empty
// queue.
func (q *Queue) Replace(ctx context.Context, values []string) error {
	if err := q.engine.Delete(ctx, q.name); err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}
	return q.engine.RPush(ctx, q.name, toBytes(values)...)
}

// Clear drops the queue.
func (q *Queue) Clear(ctx context.Context) error {
	return q.engine.Delete(ctx, q.name)
}

func toBytes(values []string) [][]byte {
	raw := make([][]byte, len(values))
	for i, v := range values {
		raw[i] = []byte(v)
	}
	return raw
}
