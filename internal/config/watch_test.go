package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatchReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queuemgr.yml")
	initial := []byte("store:\n  type: disk\n  path: ./data\ndrb:\n  port: 6438\n  acl: allow 127.0.0.1\n")
	if err := os.WriteFile(path, initial, 0o644); err != nil {
		t.Fatalf("seed config: %v", err)
	}

	changed := make(chan Config, 1)
	stop, err := Watch(path, nil, func(cfg Config) { changed <- cfg })
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer stop()

	updated := []byte("store:\n  type: disk\n  path: ./data2\ndrb:\n  port: 7000\n  acl: allow 127.0.0.1\n")
	if err := os.WriteFile(path, updated, 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-changed:
		if cfg.Store.Path != "./data2" || cfg.DRB.Port != 7000 {
			t.Fatalf("unexpected reloaded config: %+v", cfg)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for config reload")
	}
}

func TestWatchSkipsInvalidReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queuemgr.yml")
	initial := []byte("store:\n  type: disk\n  path: ./data\ndrb:\n  port: 6438\n  acl: allow 127.0.0.1\n")
	if err := os.WriteFile(path, initial, 0o644); err != nil {
		t.Fatalf("seed config: %v", err)
	}

	changed := make(chan Config, 1)
	stop, err := Watch(path, nil, func(cfg Config) { changed <- cfg })
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer stop()

	invalid := []byte("store:\n  type: nonsense\n")
	if err := os.WriteFile(path, invalid, 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-changed:
		t.Fatalf("expected an invalid reload to be skipped, got %+v", cfg)
	case <-time.After(300 * time.Millisecond):
	}
}
