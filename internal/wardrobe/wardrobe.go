package wardrobe

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"beacon/internal/engine"
)

// DefaultInstance is the instance every wardrobe is born with. It holds the
// attribute schema and the fallback values.
const DefaultInstance = "default"

// Hidden attributes carried by every instance, excluded from attribute
// listings and exports.
const (
	attrCreated      = "_created"
	attrLastAccessed = "_last_accessed"
)

// ErrNoSuchInstance reports an operation on an instance absent from the
// wardrobe.
type ErrNoSuchInstance struct{ Instance string }

func (e *ErrNoSuchInstance) Error() string {
	return fmt.Sprintf("wardrobe: no instance %q", e.Instance)
}

// Wardrobe is one named collection of parameter instances.
type Wardrobe struct {
	engine engine.Engine
	name   string
	now    func() time.Time
}

func (w *Wardrobe) instancesKey() string { return "parameters:" + w.name }
func (w *Wardrobe) instanceKey(instance string) string {
	return "parameters:" + w.name + ":" + instance
}

// Open binds a wardrobe, creating its default instance on first use.
func Open(ctx context.Context, eng engine.Engine, name string) (*Wardrobe, error) {
	if name == "" || strings.Contains(name, ":") {
		return nil, fmt.Errorf("wardrobe: invalid name %q", name)
	}
	w := &Wardrobe{engine: eng, name: name, now: time.Now}

	n, err := eng.LLen(ctx, w.instancesKey())
	if err != nil {
		return nil, err
	}
	if n == 0 {
		if err := eng.RPush(ctx, w.instancesKey(), []byte(DefaultInstance)); err != nil {
			return nil, err
		}
		if err := w.stamp(ctx, DefaultInstance, attrCreated); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// Name returns the wardrobe name.
func (w *Wardrobe) Name() string { return w.name }

func (w *Wardrobe) stamp(ctx context.Context, instance, attr string) error {
	stamp := w.now().UTC().Format(time.RFC3339)
	return w.engine.HSet(ctx, w.instanceKey(instance), attr, []byte(stamp))
}

// Current returns the active instance name. The active instance is the
// front of the instances queue.
func (w *Wardrobe) Current(ctx context.Context) (string, error) {
	front, err := w.engine.LRange(ctx, w.instancesKey(), 0, 0)
	if err != nil {
		return "", err
	}
	if len(front) == 0 {
		return DefaultInstance, nil
	}
	return string(front[0]), nil
}

// Instances lists every instance, active first.
func (w *Wardrobe) Instances(ctx context.Context) ([]string, error) {
	raw, err := w.engine.LRange(ctx, w.instancesKey(), 0, -1)
	if err != nil {
		return nil, err
	}
	instances := make([]string, len(raw))
	for i, v := range raw {
		instances[i] = string(v)
	}
	return instances, nil
}

func (w *Wardrobe) hasInstance(ctx context.Context, instance string) (bool, error) {
	instances, err := w.Instances(ctx)
	if err != nil {
		return false, err
	}
	for _, existing := range instances {
		if existing == instance {
			return true, nil
		}
	}
	return false, nil
}

// Add declares a schema attribute with its fallback value on the default
// instance. Every instance that never overrides it inherits the value.
func (w *Wardrobe) Add(ctx context.Context, attr, value string) error {
	if err := validAttr(attr); err != nil {
		return err
	}
	return w.engine.HSet(ctx, w.instanceKey(DefaultInstance), attr, []byte(value))
}

// Set overrides an attribute on the active instance.
func (w *Wardrobe) Set(ctx context.Context, attr, value string) error {
	if err := validAttr(attr); err != nil {
		return err
	}
	current, err := w.Current(ctx)
	if err != nil {
		return err
	}
	return w.engine.HSet(ctx, w.instanceKey(current), attr, []byte(value))
}

// Get resolves an attribute on the active instance. inherited reports that
// the value came from the default instance rather than an override.
func (w *Wardrobe) Get(ctx context.Context, attr string) (value string, inherited bool, ok bool, err error) {
	current, err := w.Current(ctx)
	if err != nil {
		return "", false, false, err
	}
	raw, stored, err := w.engine.HGet(ctx, w.instanceKey(current), attr)
	if err != nil {
		return "", false, false, err
	}
	if stored {
		return string(raw), false, true, nil
	}
	raw, stored, err = w.engine.HGet(ctx, w.instanceKey(DefaultInstance), attr)
	if err != nil {
		return "", false, false, err
	}
	if !stored {
		return "", false, false, nil
	}
	return string(raw), current != DefaultInstance, true, nil
}

// All returns the resolved attribute map of the active instance: defaults
// overlaid with the instance's own overrides. Hidden attributes are
// excluded.
func (w *Wardrobe) All(ctx context.Context) (map[string]string, error) {
	current, err := w.Current(ctx)
	if err != nil {
		return nil, err
	}
	return w.resolved(ctx, current)
}

func (w *Wardrobe) resolved(ctx context.Context, instance string) (map[string]string, error) {
	defaults, err := w.engine.HGetAll(ctx, w.instanceKey(DefaultInstance))
	if err != nil {
		return nil, err
	}
	overrides, err := w.engine.HGetAll(ctx, w.instanceKey(instance))
	if err != nil {
		return nil, err
	}
	merged := make(map[string]string, len(defaults)+len(overrides))
	for attr, value := range defaults {
		if !hidden(attr) {
			merged[attr] = string(value)
		}
	}
	for attr, value := range overrides {
		if !hidden(attr) {
			merged[attr] = string(value)
		}
	}
	return merged, nil
}

// Attrs returns the schema: every attribute declared on the default
// instance, sorted.
func (w *Wardrobe) Attrs(ctx context.Context) ([]string, error) {
	defaults, err := w.engine.HGetAll(ctx, w.instanceKey(DefaultInstance))
	if err != nil {
		return nil, err
	}
	attrs := make([]string, 0, len(defaults))
	for attr := range defaults {
		if !hidden(attr) {
			attrs = append(attrs, attr)
		}
	}
	sort.Strings(attrs)
	return attrs, nil
}

// Switch makes instance active, creating it when absent. A fresh instance
// starts empty and inherits everything from default. copyFrom, when
// non-empty, seeds the new instance with the resolved values of an existing
// one.
func (w *Wardrobe) Switch(ctx context.Context, instance, copyFrom string) error {
	if err := validAttr(instance); err != nil {
		return fmt.Errorf("wardrobe: invalid instance name %q", instance)
	}
	exists, err := w.hasInstance(ctx, instance)
	if err != nil {
		return err
	}

	if !exists {
		if copyFrom != "" {
			sourceExists, err := w.hasInstance(ctx, copyFrom)
			if err != nil {
				return err
			}
			if !sourceExists {
				return &ErrNoSuchInstance{Instance: copyFrom}
			}
			seed, err := w.resolved(ctx, copyFrom)
			if err != nil {
				return err
			}
			for attr, value := range seed {
				if err := w.engine.HSet(ctx, w.instanceKey(instance), attr, []byte(value)); err != nil {
					return err
				}
			}
		}
		if err := w.stamp(ctx, instance, attrCreated); err != nil {
			return err
		}
	}

	// Rotate the instance to the front of the queue.
	if err := w.engine.LRem(ctx, w.instancesKey(), []byte(instance)); err != nil {
		return err
	}
	if err := w.engine.LPush(ctx, w.instancesKey(), []byte(instance)); err != nil {
		return err
	}
	return w.stamp(ctx, instance, attrLastAccessed)
}

// RemoveInstance deletes an instance and its stored overrides. The default
// instance cannot be removed; removing the active instance activates the
// next one in the queue.
func (w *Wardrobe) RemoveInstance(ctx context.Context, instance string) error {
	if instance == DefaultInstance {
		return fmt.Errorf("wardrobe: cannot remove the default instance")
	}
	exists, err := w.hasInstance(ctx, instance)
	if err != nil {
		return err
	}
	if !exists {
		return &ErrNoSuchInstance{Instance: instance}
	}
	if err := w.engine.LRem(ctx, w.instancesKey(), []byte(instance)); err != nil {
		return err
	}
	return w.engine.Delete(ctx, w.instanceKey(instance))
}

// RemoveAttr drops an attribute from the schema and from every instance.
func (w *Wardrobe) RemoveAttr(ctx context.Context, attr string) error {
	if err := validAttr(attr); err != nil {
		return err
	}
	instances, err := w.Instances(ctx)
	if err != nil {
		return err
	}
	for _, instance := range instances {
		if err := w.engine.HDel(ctx, w.instanceKey(instance), attr); err != nil {
			return err
		}
	}
	return nil
}

// Freeze materializes every inherited value as an explicit override on the
// active instance, detaching it from later default changes.
func (w *Wardrobe) Freeze(ctx context.Context) error {
	current, err := w.Current(ctx)
	if err != nil {
		return err
	}
	if current == DefaultInstance {
		return nil
	}
	resolved, err := w.resolved(ctx, current)
	if err != nil {
		return err
	}
	for attr, value := range resolved {
		if err := w.engine.HSet(ctx, w.instanceKey(current), attr, []byte(value)); err != nil {
			return err
		}
	}
	return nil
}

// Purge removes every instance except default, including stored hashes left
// behind by earlier deletions.
func (w *Wardrobe) Purge(ctx context.Context) error {
	instances, err := w.Instances(ctx)
	if err != nil {
		return err
	}
	for _, instance := range instances {
		if instance == DefaultInstance {
			continue
		}
		if err := w.engine.LRem(ctx, w.instancesKey(), []byte(instance)); err != nil {
			return err
		}
	}

	// Orphaned hashes may exist for instances no longer in the queue.
	keys, err := w.engine.Keys(ctx, w.instanceKey("*"))
	if err != nil {
		return err
	}
	var stale []string
	for _, key := range keys {
		if key != w.instanceKey(DefaultInstance) {
			stale = append(stale, key)
		}
	}
	if len(stale) == 0 {
		return nil
	}
	return w.engine.Delete(ctx, stale...)
}

// Timestamps returns the hidden creation and last-access stamps of an
// instance. Zero times mean the stamp was never written.
func (w *Wardrobe) Timestamps(ctx context.Context, instance string) (created, lastAccessed time.Time, err error) {
	parse := func(attr string) (time.Time, error) {
		raw, ok, err := w.engine.HGet(ctx, w.instanceKey(instance), attr)
		if err != nil || !ok {
			return time.Time{}, err
		}
		stamp, err := time.Parse(time.RFC3339, string(raw))
		if err != nil {
			return time.Time{}, nil
		}
		return stamp, nil
	}
	if created, err = parse(attrCreated); err != nil {
		return
	}
	lastAccessed, err = parse(attrLastAccessed)
	return
}

func hidden(attr string) bool { return strings.HasPrefix(attr, "_") }

func validAttr(attr string) error {
	if attr == "" {
		return fmt.Errorf("wardrobe: empty attribute name")
	}
	if hidden(attr) {
		return fmt.Errorf("wardrobe: attribute %q: leading underscore is reserved", attr)
	}
	return nil
}
