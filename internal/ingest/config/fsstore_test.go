package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/factoryedge/videoingest/internal/ingest/servicelog"
)

func TestFSStoreGetReadsFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "myapp"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "myapp", "config"), []byte(`{"ingestor":{}}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	store, err := NewFSStore(dir, servicelog.NewNop())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	value, err := store.Get("/myapp/config")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if value != `{"ingestor":{}}` {
		t.Fatalf("Get returned %q", value)
	}
}

func TestFSStoreWatchFiresOnChange(t *testing.T) {
	dir := t.TempDir()
	appDir := filepath.Join(dir, "myapp")
	if err := os.MkdirAll(appDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	configPath := filepath.Join(appDir, "config")
	if err := os.WriteFile(configPath, []byte("v1"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	store, err := NewFSStore(dir, servicelog.NewNop())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	defer store.Close()

	changes := make(chan string, 4)
	if err := store.WatchPrefix("/myapp/", func(key, value string) {
		changes <- value
	}); err != nil {
		t.Fatalf("WatchPrefix: %v", err)
	}

	// Give the seeding rescan time to run before mutating the file, so the
	// pre-existing content isn't mistaken for a change.
	time.Sleep(50 * time.Millisecond)

	if err := os.WriteFile(configPath, []byte("v2"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case v := <-changes:
		if v != "v2" {
			t.Fatalf("expected v2, got %q", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for watch callback")
	}
}

func TestFSStoreWatchIgnoresUnchangedRescan(t *testing.T) {
	dir := t.TempDir()
	appDir := filepath.Join(dir, "myapp")
	if err := os.MkdirAll(appDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	configPath := filepath.Join(appDir, "config")
	if err := os.WriteFile(configPath, []byte("v1"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	store, err := NewFSStore(dir, servicelog.NewNop())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	defer store.Close()

	changes := make(chan string, 4)
	if err := store.WatchPrefix("/myapp/", func(key, value string) {
		changes <- value
	}); err != nil {
		t.Fatalf("WatchPrefix: %v", err)
	}

	select {
	case v := <-changes:
		t.Fatalf("expected no callback for pre-existing content, got %q", v)
	case <-time.After(200 * time.Millisecond):
	}
}
