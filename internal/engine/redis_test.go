package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"beacon/internal/engine"
)

func newEngine(t *testing.T) engine.Engine {
	t.Helper()
	srv := miniredis.RunT(t)
	eng := engine.NewRedis(engine.RedisOptions{Addr: srv.Addr()})
	t.Cleanup(func() { eng.Close() })
	return eng
}

func TestGetSetDelete(t *testing.T) {
	eng := newEngine(t)
	ctx := context.Background()

	if _, ok, err := eng.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get missing: ok=%v err=%v", ok, err)
	}
	if err := eng.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	value, ok, err := eng.Get(ctx, "k")
	if err != nil || !ok || string(value) != "v" {
		t.Fatalf("Get: %q ok=%v err=%v", value, ok, err)
	}
	if err := eng.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := eng.Get(ctx, "k"); ok {
		t.Fatal("key survived delete")
	}
}

func TestHashOps(t *testing.T) {
	eng := newEngine(t)
	ctx := context.Background()

	if err := eng.HSet(ctx, "h", "field", []byte("x")); err != nil {
		t.Fatalf("HSet: %v", err)
	}
	value, ok, err := eng.HGet(ctx, "h", "field")
	if err != nil || !ok || string(value) != "x" {
		t.Fatalf("HGet: %q ok=%v err=%v", value, ok, err)
	}
	all, err := eng.HGetAll(ctx, "h")
	if err != nil || len(all) != 1 {
		t.Fatalf("HGetAll: %v err=%v", all, err)
	}
	if err := eng.HDel(ctx, "h", "field"); err != nil {
		t.Fatalf("HDel: %v", err)
	}
	if _, ok, _ := eng.HGet(ctx, "h", "field"); ok {
		t.Fatal("field survived HDel")
	}
}

func TestListOps(t *testing.T) {
	eng := newEngine(t)
	ctx := context.Background()

	if err := eng.RPush(ctx, "l", []byte("a"), []byte("b")); err != nil {
		t.Fatalf("RPush: %v", err)
	}
	if err := eng.LPush(ctx, "l", []byte("front")); err != nil {
		t.Fatalf("LPush: %v", err)
	}
	values, err := eng.LRange(ctx, "l", 0, -1)
	if err != nil {
		t.Fatalf("LRange: %v", err)
	}
	if len(values) != 3 || string(values[0]) != "front" || string(values[2]) != "b" {
		t.Fatalf("unexpected list %q", values)
	}
	if err := eng.LSet(ctx, "l", 1, []byte("A")); err != nil {
		t.Fatalf("LSet: %v", err)
	}
	front, ok, err := eng.LPopFront(ctx, "l")
	if err != nil || !ok || string(front) != "front" {
		t.Fatalf("LPopFront: %q ok=%v err=%v", front, ok, err)
	}
	n, err := eng.LLen(ctx, "l")
	if err != nil || n != 2 {
		t.Fatalf("LLen: %d err=%v", n, err)
	}
}

func TestKeysScan(t *testing.T) {
	eng := newEngine(t)
	ctx := context.Background()

	for _, key := range []string{"parameters:scan:default", "parameters:scan:fast", "other"} {
		if err := eng.Set(ctx, key, []byte("x")); err != nil {
			t.Fatalf("Set %s: %v", key, err)
		}
	}
	keys, err := eng.Keys(ctx, "parameters:scan:*")
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("Keys = %v, want 2 matches", keys)
	}
}

func TestPubSub(t *testing.T) {
	eng := newEngine(t)
	ctx := context.Background()

	sub, err := eng.Subscribe(ctx, "updates")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	if err := eng.Publish(ctx, "updates", []byte("ping")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case msg := <-sub.Messages():
		if msg.Channel != "updates" || string(msg.Payload) != "ping" {
			t.Fatalf("unexpected message %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no publication received")
	}
}

func TestUnreachableStoreReportsUnavailable(t *testing.T) {
	srv := miniredis.RunT(t)
	addr := srv.Addr()
	srv.Close()

	eng := engine.NewRedis(engine.RedisOptions{Addr: addr})
	defer eng.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := eng.Set(ctx, "k", []byte("v")); !errors.Is(err, engine.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}
