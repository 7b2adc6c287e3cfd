package channels

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"beacon/internal/engine"
	"beacon/internal/logging"
)

// Bus hands out channels on one engine connection. Acquiring the same name
// twice returns the same Channel with its local reference count bumped.
type Bus struct {
	engine engine.Engine
	logger *slog.Logger

	mu    sync.Mutex
	local map[string]*Channel
}

// NewBus wraps an engine connection.
func NewBus(eng engine.Engine, logger *slog.Logger) *Bus {
	return &Bus{
		engine: eng,
		logger: logging.NewComponentLogger(logger, "channels"),
		local:  make(map[string]*Channel),
	}
}

func valueKey(name string) string { return "channels:" + name + ":value" }
func refsKey(name string) string  { return "channels:" + name + ":refs" }
func pubsubName(name string) string {
	return "channels:" + name
}

// Channel is one shared named value.
type Channel struct {
	bus  *Bus
	name string
	sub  engine.Subscription

	mu        sync.Mutex
	localRefs int
	def       []byte
	hasDef    bool
	callbacks []func([]byte)
	released  bool
}

// Acquire takes a reference on the named channel, creating it when no holder
// exists yet.
func (b *Bus) Acquire(ctx context.Context, name string) (*Channel, error) {
	return b.AcquireWithDefault(ctx, name, nil)
}

// AcquireWithDefault is Acquire with a local default value: Get falls back
// to it while no holder has set the channel. The default is never written to
// the engine, so a channel whose last holder released reverts to it.
func (b *Bus) AcquireWithDefault(ctx context.Context, name string, def []byte) (*Channel, error) {
	if name == "" {
		return nil, fmt.Errorf("channels: empty channel name")
	}

	b.mu.Lock()
	if existing, ok := b.local[name]; ok {
		existing.mu.Lock()
		existing.localRefs++
		existing.mu.Unlock()
		b.mu.Unlock()
		return existing, nil
	}
	b.mu.Unlock()

	if _, err := b.engine.Incr(ctx, refsKey(name)); err != nil {
		return nil, err
	}
	sub, err := b.engine.Subscribe(ctx, pubsubName(name))
	if err != nil {
		b.engine.Decr(ctx, refsKey(name))
		return nil, err
	}

	ch := &Channel{bus: b, name: name, sub: sub, localRefs: 1, def: def, hasDef: def != nil}
	go ch.pump()

	b.mu.Lock()
	// Someone may have acquired the same name while we registered remotely;
	// fold into the winner and undo our remote reference.
	if existing, ok := b.local[name]; ok {
		b.mu.Unlock()
		sub.Close()
		b.engine.Decr(ctx, refsKey(name))
		existing.mu.Lock()
		existing.localRefs++
		existing.mu.Unlock()
		return existing, nil
	}
	b.local[name] = ch
	b.mu.Unlock()
	return ch, nil
}

// Name returns the channel name.
func (c *Channel) Name() string { return c.name }

// Get reads the last value set on the channel. When no holder has set a
// value, the acquisition default is returned if one was given; otherwise ok
// is false.
func (c *Channel) Get(ctx context.Context) (value []byte, ok bool, err error) {
	value, ok, err = c.bus.engine.Get(ctx, valueKey(c.name))
	if err != nil || ok {
		return value, ok, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hasDef {
		return c.def, true, nil
	}
	return nil, false, nil
}

// Set stores the value and broadcasts it to every subscriber, including
// local ones.
func (c *Channel) Set(ctx context.Context, value []byte) error {
	if err := c.bus.engine.Set(ctx, valueKey(c.name), value); err != nil {
		return err
	}
	return c.bus.engine.Publish(ctx, pubsubName(c.name), value)
}

// OnUpdate registers a callback invoked for every broadcast value. Callbacks
// run on the channel's pump goroutine and must not block.
func (c *Channel) OnUpdate(cb func(value []byte)) {
	c.mu.Lock()
	c.callbacks = append(c.callbacks, cb)
	c.mu.Unlock()
}

func (c *Channel) pump() {
	for msg := range c.sub.Messages() {
		c.mu.Lock()
		callbacks := make([]func([]byte), len(c.callbacks))
		copy(callbacks, c.callbacks)
		c.mu.Unlock()
		for _, cb := range callbacks {
			cb(msg.Payload)
		}
	}
}

// Release drops one reference. When the last holder anywhere releases, the
// cached value is deleted from the engine.
func (c *Channel) Release(ctx context.Context) error {
	c.mu.Lock()
	if c.released || c.localRefs == 0 {
		c.mu.Unlock()
		return nil
	}
	c.localRefs--
	last := c.localRefs == 0
	if last {
		c.released = true
	}
	c.mu.Unlock()
	if !last {
		return nil
	}

	c.bus.mu.Lock()
	delete(c.bus.local, c.name)
	c.bus.mu.Unlock()
	c.sub.Close()

	remaining, err := c.bus.engine.Decr(ctx, refsKey(c.name))
	if err != nil {
		return err
	}
	if remaining <= 0 {
		return c.bus.engine.Delete(ctx, valueKey(c.name), refsKey(c.name))
	}
	return nil
}

// Refs reports the network-wide reference count.
func (b *Bus) Refs(ctx context.Context, name string) (int64, error) {
	raw, ok, err := b.engine.Get(ctx, refsKey(name))
	if err != nil || !ok {
		return 0, err
	}
	var n int64
	if _, err := fmt.Sscan(string(raw), &n); err != nil {
		return 0, fmt.Errorf("channels: bad refcount for %s: %w", name, err)
	}
	return n, nil
}
