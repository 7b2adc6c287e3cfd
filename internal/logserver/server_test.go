package logserver_test

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"beacon/internal/logging"
	"beacon/internal/logserver"
)

func startServer(t *testing.T, rotate int64) (*logserver.Server, string) {
	t.Helper()
	folder := t.TempDir()
	srv, err := logserver.New(logserver.Options{
		Port:         0,
		OutputFolder: folder,
		RotateBytes:  rotate,
		Logger:       logging.NewNop(),
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(srv.Close)
	return srv, folder
}

func waitForFile(t *testing.T, path string, want func([]byte) bool) []byte {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		content, err := os.ReadFile(path)
		if err == nil && want(content) {
			return content
		}
		if time.Now().After(deadline) {
			t.Fatalf("file %s never reached expected content (last: %q, err: %v)", path, content, err)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestRecordsLandInSessionFile(t *testing.T) {
	srv, folder := startServer(t, 0)

	c, err := logserver.DialClient(fmt.Sprintf("127.0.0.1:%d", srv.Port()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	if err := c.Send("demo", map[string]any{"msg": "scan started"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	content := waitForFile(t, filepath.Join(folder, "demo.log"), func(b []byte) bool {
		return strings.Contains(string(b), "scan started")
	})
	if !strings.Contains(string(content), `"session":"demo"`) {
		t.Fatalf("record missing session field: %q", content)
	}
}

func TestSessionsShareOneFile(t *testing.T) {
	srv, folder := startServer(t, 0)
	addr := fmt.Sprintf("127.0.0.1:%d", srv.Port())

	a, err := logserver.DialClient(addr)
	if err != nil {
		t.Fatalf("dial a: %v", err)
	}
	defer a.Close()
	b, err := logserver.DialClient(addr)
	if err != nil {
		t.Fatalf("dial b: %v", err)
	}
	defer b.Close()

	if err := a.Send("shared", map[string]any{"msg": "from-a"}); err != nil {
		t.Fatalf("send a: %v", err)
	}
	if err := b.Send("shared", map[string]any{"msg": "from-b"}); err != nil {
		t.Fatalf("send b: %v", err)
	}

	waitForFile(t, filepath.Join(folder, "shared.log"), func(content []byte) bool {
		return strings.Contains(string(content), "from-a") && strings.Contains(string(content), "from-b")
	})
}

func TestRotationProducesNumberedFiles(t *testing.T) {
	srv, folder := startServer(t, 256)

	c, err := logserver.DialClient(fmt.Sprintf("127.0.0.1:%d", srv.Port()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	payload := strings.Repeat("x", 128)
	for i := 0; i < 8; i++ {
		if err := c.Send("big", map[string]any{"msg": payload, "seq": i}); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := os.Stat(filepath.Join(folder, "big.log.1")); err == nil {
			break
		}
		if time.Now().After(deadline) {
			entries, _ := os.ReadDir(folder)
			var names []string
			for _, e := range entries {
				names = append(names, e.Name())
			}
			t.Fatalf("no rotated file appeared; folder: %v", names)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestRotationLosesNoBytes(t *testing.T) {
	const rotate = 1024
	srv, folder := startServer(t, rotate)

	c, err := logserver.DialClient(fmt.Sprintf("127.0.0.1:%d", srv.Port()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	// Records of a known encoding: the explicit time field keeps the wire
	// bytes reproducible, so the sum of file sizes can be checked exactly.
	// Ten ~160-byte records cross the 1024-byte threshold once.
	payload := strings.Repeat("x", 100)
	const records = 10
	var total int64
	for i := 0; i < records; i++ {
		fields := map[string]any{"msg": payload, "seq": i, "time": "2026-08-29T10:00:00Z"}
		if err := c.Send("run", fields); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
		fields["session"] = "run"
		line, err := json.Marshal(fields)
		if err != nil {
			t.Fatalf("marshal record %d: %v", i, err)
		}
		total += int64(len(line)) + 1
	}
	if total <= rotate || total > 2*rotate {
		t.Fatalf("test records sum to %d bytes, need a single threshold crossing", total)
	}

	live := filepath.Join(folder, "run.log")
	rotated := filepath.Join(folder, "run.log.1")
	deadline := time.Now().Add(5 * time.Second)
	for {
		liveInfo, liveErr := os.Stat(live)
		rotatedInfo, rotatedErr := os.Stat(rotated)
		if liveErr == nil && rotatedErr == nil && liveInfo.Size()+rotatedInfo.Size() == total {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("files never summed to %d bytes (live: %v %v, rotated: %v %v)",
				total, liveInfo, liveErr, rotatedInfo, rotatedErr)
		}
		time.Sleep(20 * time.Millisecond)
	}

	// Exactly one rotation for one threshold crossing.
	if _, err := os.Stat(filepath.Join(folder, "run.log.2")); !os.IsNotExist(err) {
		t.Fatalf("second rotated file present, err=%v", err)
	}
	combined := ""
	for _, path := range []string{live, rotated} {
		content, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read %s: %v", path, err)
		}
		combined += string(content)
	}
	for i := 0; i < records; i++ {
		marker := fmt.Sprintf(`"seq":%d`, i)
		if strings.Count(combined, marker) != 1 {
			t.Fatalf("record %d appears %d times", i, strings.Count(combined, marker))
		}
	}
}

func TestMissingOutputFolderIsFatal(t *testing.T) {
	_, err := logserver.New(logserver.Options{
		Port:         0,
		OutputFolder: filepath.Join(t.TempDir(), "does-not-exist"),
		Logger:       logging.NewNop(),
	})
	if err == nil {
		t.Fatal("expected error for missing output folder")
	}
}

func TestSessionNamesAreSanitized(t *testing.T) {
	srv, folder := startServer(t, 0)

	c, err := logserver.DialClient(fmt.Sprintf("127.0.0.1:%d", srv.Port()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	if err := c.Send("../escape", map[string]any{"msg": "trapped"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	waitForFile(t, filepath.Join(folder, "_escape.log"), func(content []byte) bool {
		return strings.Contains(string(content), "trapped")
	})
}
