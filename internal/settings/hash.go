package settings

import (
	"context"

	"beacon/internal/engine"
)

// Hash is a persisted field/value map with a client-side default map.
// Storage is sparse: only explicitly set fields live in the engine, and
// reads of missing fields fall back to the default map.
type Hash struct {
	engine engine.Engine
	name   string
	def    map[string]string
}

// NewHash binds a hash setting to its engine key. def may be nil.
func NewHash(eng engine.Engine, name string, def map[string]string) *Hash {
	return &Hash{engine: eng, name: name, def: def}
}

// Name returns the engine key.
func (h *Hash) Name() string { return h.name }

// Get returns one field, falling back to the default map.
func (h *Hash) Get(ctx context.Context, field string) (value string, ok bool, err error) {
	raw, stored, err := h.engine.HGet(ctx, h.name, field)
	if err != nil {
		return "", false, err
	}
	if stored {
		return string(raw), true, nil
	}
	if def, ok := h.def[field]; ok {
		return def, true, nil
	}
	return "", false, nil
}

// Set persists one field.
func (h *Hash) Set(ctx context.Context, field, value string) error {
	return h.engine.HSet(ctx, h.name, field, []byte(value))
}

// Remove deletes fields from storage; defaulted fields reappear with their
// default value.
func (h *Hash) Remove(ctx context.Context, fields ...string) error {
	return h.engine.HDel(ctx, h.name, fields...)
}

// All returns the merged view: defaults overlaid by stored fields.
func (h *Hash) All(ctx context.Context) (map[string]string, error) {
	stored, err := h.engine.HGetAll(ctx, h.name)
	if err != nil {
		return nil, err
	}
	merged := make(map[string]string, len(h.def)+len(stored))
	for field, value := range h.def {
		merged[field] = value
	}
	for field, value := range stored {
		merged[field] = string(value)
	}
	return merged, nil
}

// Clear drops every stored field, reverting the hash to its defaults.
func (h *Hash) Clear(ctx context.Context) error {
	return h.engine.Delete(ctx, h.name)
}
