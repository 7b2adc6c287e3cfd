package settings

import (
	"context"

	"beacon/internal/engine"
)

// Scalar is one persisted string value with a client-side default.
type Scalar struct {
	engine engine.Engine
	name   string

	hasDefault bool
	def        string
}

// NewScalar binds a scalar setting to its engine key.
func NewScalar(eng engine.Engine, name string) *Scalar {
	return &Scalar{engine: eng, name: name}
}

// NewScalarWithDefault binds a scalar setting with a fallback value. The
// default lives only in this process and is never persisted.
func NewScalarWithDefault(eng engine.Engine, name, def string) *Scalar {
	return &Scalar{engine: eng, name: name, hasDefault: true, def: def}
}

// Name returns the engine key.
func (s *Scalar) Name() string { return s.name }

// Get returns the stored value, or the default when nothing is stored. ok
// reports whether any value (stored or default) was available.
func (s *Scalar) Get(ctx context.Context) (value string, ok bool, err error) {
	raw, stored, err := s.engine.Get(ctx, s.name)
	if err != nil {
		return "", false, err
	}
	if stored {
		return string(raw), true, nil
	}
	if s.hasDefault {
		return s.def, true, nil
	}
	return "", false, nil
}

// Set persists the value.
func (s *Scalar) Set(ctx context.Context, value string) error {
	return s.engine.Set(ctx, s.name, []byte(value))
}

// Clear removes the stored value; subsequent reads see the default again.
func (s *Scalar) Clear(ctx context.Context) error {
	return s.engine.Delete(ctx, s.name)
}
