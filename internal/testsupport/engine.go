package testsupport

import (
	"net"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"beacon/internal/engine"
)

// NewEngine starts an in-process miniredis and returns an engine connected
// to it. Both are torn down with the test.
func NewEngine(t testing.TB) engine.Engine {
	t.Helper()

	srv := miniredis.RunT(t)
	eng := engine.NewRedis(engine.RedisOptions{Addr: srv.Addr()})
	t.Cleanup(func() { eng.Close() })
	return eng
}

// FreePort asks the kernel for a free TCP port. The port is released before
// returning, so a racing process can in principle steal it.
func FreePort(t testing.TB) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve free port: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()
	return port
}
