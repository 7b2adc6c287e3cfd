package discovery_test

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"beacon/internal/config"
	"beacon/internal/discovery"
	"beacon/internal/logging"
	"beacon/internal/protocol"
)

func startResponder(t *testing.T, rules []config.FilterRule) *discovery.Responder {
	t.Helper()
	r, err := discovery.NewResponder(discovery.Options{
		UDPPort:        0,
		Hostname:       "testhost",
		RepositoryPort: 25000,
		Rules:          rules,
		Logger:         logging.NewNop(),
	})
	if err != nil {
		t.Fatalf("NewResponder: %v", err)
	}
	t.Cleanup(r.Close)
	return r
}

func TestLocateFindsResponder(t *testing.T) {
	r := startResponder(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	reply, err := discovery.Locate(ctx, discovery.LocateOptions{
		Target:     net.JoinHostPort("127.0.0.1", itoa(r.Port())),
		Attempts:   3,
		PerAttempt: time.Second,
	})
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if reply.Host != "testhost" || reply.Port != 25000 {
		t.Fatalf("reply = %+v", reply)
	}
	if reply.Version != protocol.DiscoveryVersion {
		t.Fatalf("version = %d, want %d", reply.Version, protocol.DiscoveryVersion)
	}
}

func TestResponderIgnoresMalformedDatagrams(t *testing.T) {
	r := startResponder(t, nil)

	conn, err := net.Dial("udp", net.JoinHostPort("127.0.0.1", itoa(r.Port())))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("NOT-A-PROBE")); err != nil {
		t.Fatalf("write: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	buf := make([]byte, 64)
	if n, err := conn.Read(buf); err == nil {
		t.Fatalf("unexpected reply to malformed datagram: %q", buf[:n])
	}
}

func TestResponderDeniesFilteredSenders(t *testing.T) {
	deny, err := config.ParseFilter("deny:127.0.0.0/8")
	if err != nil {
		t.Fatalf("ParseFilter: %v", err)
	}
	r := startResponder(t, []config.FilterRule{deny})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = discovery.Locate(ctx, discovery.LocateOptions{
		Target:     net.JoinHostPort("127.0.0.1", itoa(r.Port())),
		Attempts:   2,
		PerAttempt: 200 * time.Millisecond,
	})
	if err == nil {
		t.Fatal("expected no reply from denied sender")
	}
}

func TestImplicitDenyWithAllowList(t *testing.T) {
	allow, err := config.ParseFilter("10.0.0.0/8")
	if err != nil {
		t.Fatalf("ParseFilter: %v", err)
	}
	r := startResponder(t, []config.FilterRule{allow})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = discovery.Locate(ctx, discovery.LocateOptions{
		Target:     net.JoinHostPort("127.0.0.1", itoa(r.Port())),
		Attempts:   2,
		PerAttempt: 200 * time.Millisecond,
	})
	if err == nil {
		t.Fatal("loopback sender should fall through to the implicit deny")
	}
}

func itoa(n int) string { return strconv.Itoa(n) }
