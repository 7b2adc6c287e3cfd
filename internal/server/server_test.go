package server_test

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"beacon/internal/client"
	"beacon/internal/logging"
	"beacon/internal/protocol"
	"beacon/internal/repository"
	"beacon/internal/server"
)

type stubStatus struct{}

func (stubStatus) ServiceStatuses() []protocol.ServiceStatus {
	return []protocol.ServiceStatus{{Name: "redis", State: "running", Required: true}}
}

func startServer(t *testing.T) (*server.Server, *client.Client) {
	t.Helper()

	store, err := repository.Open(t.TempDir(), logging.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(store.Close)

	listener, err := server.Listen(0)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv, err := server.New(context.Background(), listener, store, stubStatus{}, server.Addresses{
		Hostname:     "testhost",
		EngineAddr:   "testhost:6379",
		EngineSocket: "/tmp/engine-test.sock",
		LogPort:      9030,
	}, logging.NewNop())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)

	c, err := client.Dial(fmt.Sprintf("127.0.0.1:%d", srv.Port()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return srv, c
}

func TestWriteReadRoundTrip(t *testing.T) {
	_, c := startServer(t)

	version, err := c.Write("sessions/demo.yml", []byte("name: demo\n"), 0)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if version != 1 {
		t.Fatalf("first version = %d, want 1", version)
	}

	content, got, err := c.Read("sessions/demo.yml")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != version || !bytes.Equal(content, []byte("name: demo\n")) {
		t.Fatalf("read = (%q, %d)", content, got)
	}

	nodes, err := c.List("sessions")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(nodes) != 1 || nodes[0].Path != "sessions/demo.yml" {
		t.Fatalf("list = %+v", nodes)
	}
}

func TestStaleWriteConflicts(t *testing.T) {
	_, c := startServer(t)

	if _, err := c.Write("a.yml", []byte("one"), 0); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := c.Write("a.yml", []byte("two"), 1); err != nil {
		t.Fatalf("update: %v", err)
	}

	_, err := c.Write("a.yml", []byte("stale"), 1)
	if !client.IsCode(err, protocol.CodeConflict) {
		t.Fatalf("stale write error = %v, want conflict", err)
	}

	_, _, err = c.Read("missing.yml")
	if !client.IsCode(err, protocol.CodeNotFound) {
		t.Fatalf("missing read error = %v, want not found", err)
	}
}

func TestWatchDeliversEvents(t *testing.T) {
	_, c := startServer(t)

	events, cancel, err := c.Watch("sessions")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer cancel()

	if _, err := c.Write("sessions/demo.yml", []byte("x: 1"), 0); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := c.Write("elsewhere.yml", []byte("y: 2"), 0); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Path != "sessions/demo.yml" || ev.Kind != string(repository.Created) {
			t.Fatalf("event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}

	select {
	case ev := <-events:
		t.Fatalf("unexpected event outside prefix: %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestStatusAndClientNames(t *testing.T) {
	_, c := startServer(t)

	if err := c.SetName("session-alpha"); err != nil {
		t.Fatalf("set name: %v", err)
	}
	name, err := c.Name()
	if err != nil || name != "session-alpha" {
		t.Fatalf("name = (%q, %v)", name, err)
	}

	status, err := c.Status()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(status.Services) != 1 || status.Services[0].Name != "redis" {
		t.Fatalf("services = %+v", status.Services)
	}
	if len(status.Clients) != 1 || status.Clients[0] != "session-alpha" {
		t.Fatalf("clients = %+v", status.Clients)
	}
}

func TestEngineAndLogAddresses(t *testing.T) {
	_, c := startServer(t)

	engineAddr, err := c.EngineAddr()
	if err != nil {
		t.Fatalf("engine addr: %v", err)
	}
	// The test client connects over loopback, so the daemon hands out the
	// unix socket.
	if engineAddr.Network != "unix" || engineAddr.Addr != "/tmp/engine-test.sock" {
		t.Fatalf("engine addr = %+v", engineAddr)
	}

	host, port, err := c.LogAddr()
	if err != nil {
		t.Fatalf("log addr: %v", err)
	}
	if host != "testhost" || port != 9030 {
		t.Fatalf("log addr = %s:%d", host, port)
	}
}

func TestPing(t *testing.T) {
	_, c := startServer(t)
	if err := c.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}
}
