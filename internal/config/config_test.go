package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"beacon/internal/config"
)

func TestDefaultValidatesWithDBPath(t *testing.T) {
	cfg := config.Default()
	cfg.DBPath = t.TempDir()
	if err := cfg.Normalize(); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRequiresDBPath(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing db-path")
	}
}

func TestValidateViewerRequiresLogServer(t *testing.T) {
	cfg := config.Default()
	cfg.DBPath = t.TempDir()
	cfg.LogServer.ViewerPort = 9080
	if err := cfg.Normalize(); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when viewer port set without log server port")
	}
}

func TestValidateRejectsEqualRedisPorts(t *testing.T) {
	cfg := config.Default()
	cfg.DBPath = t.TempDir()
	cfg.RedisData.Port = cfg.Redis.Port
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for equal redis ports")
	}
}

func TestLoadTOMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "beacon.toml")
	content := "db_path = \"" + dir + "\"\nport = 25000\n\n[redis]\nport = 7001\n\n[logging]\nlevel = \"debug\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 25000 {
		t.Fatalf("port override lost: %d", cfg.Port)
	}
	if cfg.Redis.Port != 7001 {
		t.Fatalf("redis port override lost: %d", cfg.Redis.Port)
	}
	if cfg.RedisData.Port == 0 {
		t.Fatal("defaults should survive partial file")
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("logging level override lost: %q", cfg.Logging.Level)
	}
}

func TestNormalizeDerivesLogFolder(t *testing.T) {
	cfg := config.Default()
	cfg.DBPath = t.TempDir()
	cfg.LogServer.Port = 9020
	if err := cfg.Normalize(); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	want := filepath.Join(cfg.DBPath, "logs")
	if cfg.LogServer.OutputFolder != want {
		t.Fatalf("derived log folder = %q, want %q", cfg.LogServer.OutputFolder, want)
	}
}

func TestParseFilter(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"127.0.0.1", true},
		{"172.24.8.0/24", true},
		{"allow:10.0.0.0/8", true},
		{"deny:172.24.8.0/24", true},
		{"::1", true},
		{"not-an-ip", false},
		{"deny:", false},
		{"", false},
	}
	for _, tc := range cases {
		_, err := config.ParseFilter(tc.in)
		if tc.ok && err != nil {
			t.Fatalf("ParseFilter(%q): %v", tc.in, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("ParseFilter(%q): expected error", tc.in)
		}
	}
}
