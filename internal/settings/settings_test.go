package settings_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"beacon/internal/engine"
	"beacon/internal/settings"
)

func newEngine(t *testing.T) engine.Engine {
	t.Helper()
	srv := miniredis.RunT(t)
	eng := engine.NewRedis(engine.RedisOptions{Addr: srv.Addr()})
	t.Cleanup(func() { eng.Close() })
	return eng
}

func TestScalarDefaultNeverPersisted(t *testing.T) {
	eng := newEngine(t)
	ctx := context.Background()
	s := settings.NewScalarWithDefault(eng, "exposure_time", "0.1")

	value, ok, err := s.Get(ctx)
	if err != nil || !ok || value != "0.1" {
		t.Fatalf("default Get = (%q, %v, %v)", value, ok, err)
	}
	// Reading the default must not write it.
	if _, stored, _ := eng.Get(ctx, "exposure_time"); stored {
		t.Fatal("default leaked into storage")
	}

	if err := s.Set(ctx, "2.5"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if value, _, _ = s.Get(ctx); value != "2.5" {
		t.Fatalf("after set Get = %q", value)
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if value, ok, _ = s.Get(ctx); !ok || value != "0.1" {
		t.Fatalf("after clear Get = (%q, %v), want default back", value, ok)
	}
}

func TestScalarWithoutDefault(t *testing.T) {
	eng := newEngine(t)
	ctx := context.Background()
	s := settings.NewScalar(eng, "operator")

	if _, ok, err := s.Get(ctx); err != nil || ok {
		t.Fatalf("unset Get ok=%v err=%v", ok, err)
	}
}

func TestHashSparseStorageWithDefaults(t *testing.T) {
	eng := newEngine(t)
	ctx := context.Background()
	h := settings.NewHash(eng, "detector", map[string]string{
		"gain": "1", "mode": "auto",
	})

	// Unstored fields come from the default map.
	if value, ok, _ := h.Get(ctx, "gain"); !ok || value != "1" {
		t.Fatalf("defaulted Get = (%q, %v)", value, ok)
	}

	if err := h.Set(ctx, "gain", "8"); err != nil {
		t.Fatalf("set: %v", err)
	}
	all, err := h.All(ctx)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if all["gain"] != "8" || all["mode"] != "auto" {
		t.Fatalf("merged view = %v", all)
	}

	if err := h.Remove(ctx, "gain"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if value, _, _ := h.Get(ctx, "gain"); value != "1" {
		t.Fatalf("after remove Get = %q, want default", value)
	}

	if _, ok, _ := h.Get(ctx, "unknown"); ok {
		t.Fatal("unknown field should not resolve")
	}
}

func TestQueueOrdering(t *testing.T) {
	eng := newEngine(t)
	ctx := context.Background()
	q := settings.NewQueue(eng, "scan_queue")

	if err := q.Append(ctx, "b", "c"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := q.Prepend(ctx, "a"); err != nil {
		t.Fatalf("prepend: %v", err)
	}

	all, err := q.All(ctx)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(all) != 3 || all[0] != "a" || all[1] != "b" || all[2] != "c" {
		t.Fatalf("queue = %v", all)
	}

	front, ok, err := q.PopFront(ctx)
	if err != nil || !ok || front != "a" {
		t.Fatalf("PopFront = (%q, %v, %v)", front, ok, err)
	}
	back, ok, err := q.PopBack(ctx)
	if err != nil || !ok || back != "c" {
		t.Fatalf("PopBack = (%q, %v, %v)", back, ok, err)
	}
	if n, _ := q.Len(ctx); n != 1 {
		t.Fatalf("len = %d", n)
	}

	if err := q.Replace(ctx, []string{"x", "y"}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	all, _ = q.All(ctx)
	if len(all) != 2 || all[0] != "x" {
		t.Fatalf("after replace = %v", all)
	}
}

func TestQueuePrependKeepsArgumentOrder(t *testing.T) {
	eng := newEngine(t)
	ctx := context.Background()
	q := settings.NewQueue(eng, "q")

	if err := q.Append(ctx, "tail"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := q.Prepend(ctx, "first", "second"); err != nil {
		t.Fatalf("prepend: %v", err)
	}
	all, _ := q.All(ctx)
	if len(all) != 3 || all[0] != "first" || all[1] != "second" {
		t.Fatalf("queue = %v", all)
	}
}

func TestOutageSurfacesUnavailable(t *testing.T) {
	srv := miniredis.RunT(t)
	addr := srv.Addr()
	srv.Close()
	eng := engine.NewRedis(engine.RedisOptions{Addr: addr})
	defer eng.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	s := settings.NewScalarWithDefault(eng, "k", "d")
	if _, _, err := s.Get(ctx); !errors.Is(err, engine.ErrUnavailable) {
		t.Fatalf("scalar outage error = %v", err)
	}
	q := settings.NewQueue(eng, "q")
	if _, err := q.All(ctx); !errors.Is(err, engine.ErrUnavailable) {
		t.Fatalf("queue outage error = %v", err)
	}
}
