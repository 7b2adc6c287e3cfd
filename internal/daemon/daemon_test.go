package daemon_test

import (
	"path/filepath"
	"testing"

	"github.com/gofrs/flock"

	"beacon/internal/config"
	"beacon/internal/daemon"
)

func TestServiceSpecOrderingAndRequirements(t *testing.T) {
	cfg := config.Default()
	cfg.TangoPort = 20000
	cfg.WebAppPort = 9030
	cfg.LogServer.Port = 9020
	cfg.LogServer.OutputFolder = t.TempDir()
	cfg.LogServer.ViewerPort = 9040

	specs := daemon.BuildServiceSpecs(&cfg)
	if len(specs) != 5 {
		t.Fatalf("spec count = %d, want 5", len(specs))
	}
	if specs[0].Name != "redis" || !specs[0].Required {
		t.Fatalf("first spec = %+v, want required redis", specs[0])
	}
	if specs[1].Name != "redis-data" || !specs[1].Required {
		t.Fatalf("second spec = %+v, want required redis-data", specs[1])
	}
	for _, spec := range specs[2:] {
		if spec.Required {
			t.Fatalf("optional service %s marked required", spec.Name)
		}
	}
}

func TestRedisSpecCarriesConfAndSocket(t *testing.T) {
	cfg := config.Default()
	cfg.Redis.ConfPath = "/etc/beacon/redis.conf"
	cfg.Redis.Socket = "/tmp/beacon-redis.sock"

	specs := daemon.BuildServiceSpecs(&cfg)
	redis := specs[0]
	if redis.Args[0] != "/etc/beacon/redis.conf" {
		t.Fatalf("conf not first arg: %v", redis.Args)
	}
	joined := ""
	for _, arg := range redis.Args {
		joined += arg + " "
	}
	if joined == "" || redis.Ports[0] != cfg.Redis.Port {
		t.Fatalf("redis spec = %+v", redis)
	}

	// The data instance never gets the unix socket.
	for _, arg := range specs[1].Args {
		if arg == "--unixsocket" {
			t.Fatalf("data redis got a socket: %v", specs[1].Args)
		}
	}
}

func TestTangoAndViewerOnlyWhenConfigured(t *testing.T) {
	cfg := config.Default()
	specs := daemon.BuildServiceSpecs(&cfg)
	if len(specs) != 2 {
		t.Fatalf("spec count = %d, want only the two engines", len(specs))
	}
}

func TestSecondInstanceIsRejected(t *testing.T) {
	dir := t.TempDir()
	other := flock.New(filepath.Join(dir, daemon.LockFileName))
	locked, err := other.TryLock()
	if err != nil || !locked {
		t.Fatalf("pre-lock: locked=%v err=%v", locked, err)
	}
	defer other.Unlock()

	held, err := flock.New(filepath.Join(dir, daemon.LockFileName)).TryLock()
	if err != nil {
		t.Fatalf("second TryLock: %v", err)
	}
	if held {
		t.Fatal("second lock acquisition should fail while the first is held")
	}
}
