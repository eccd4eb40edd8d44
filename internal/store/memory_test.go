package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestMemorySnapshotPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "studio.json")
	ctx := context.Background()

	first, err := OpenMemory(MemoryOptions{SnapshotPath: path})
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	if err := first.CreateUser(ctx, testUser("u1", "snap@example.com")); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := first.CreateScript(ctx, testScript("s1", "u1", 0)); err != nil {
		t.Fatalf("CreateScript: %v", err)
	}
	if err := first.AppendEvent(ctx, Event{Type: EventScriptGeneration, UserID: "u1"}); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second, err := OpenMemory(MemoryOptions{SnapshotPath: path})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()

	user, _ := second.GetUserByEmail(ctx, "SNAP@example.com")
	if user == nil || user.ID != "u1" {
		t.Fatalf("user not restored: %+v", user)
	}
	script, _ := second.GetScript(ctx, "s1")
	if script == nil || script.UserID != "u1" {
		t.Fatalf("script not restored: %+v", script)
	}
	if n, _ := second.CountEvents(ctx, EventFilter{}); n != 1 {
		t.Fatalf("expected 1 event, got %d", n)
	}
}

func TestMemoryFlushSkipsWhenClean(t *testing.T) {
	path := filepath.Join(t.TempDir(), "studio.json")
	m, err := OpenMemory(MemoryOptions{SnapshotPath: path})
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer m.Close()

	if err := m.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected no snapshot for clean store, stat err=%v", err)
	}

	if err := m.CreateScript(context.Background(), testScript("s1", "u1", 0)); err != nil {
		t.Fatalf("CreateScript: %v", err)
	}
	if err := m.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected snapshot after dirty flush: %v", err)
	}
}

func TestMemorySnapshotLockIsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "studio.json")
	first, err := OpenMemory(MemoryOptions{SnapshotPath: path})
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer first.Close()

	if _, err := OpenMemory(MemoryOptions{SnapshotPath: path}); !errors.Is(err, ErrSnapshotLocked) {
		t.Fatalf("expected ErrSnapshotLocked, got %v", err)
	}
}

func TestMemorySnapshotVersionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "studio.json")
	if err := os.WriteFile(path, []byte(`{"version":99}`), 0o644); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}
	if _, err := OpenMemory(MemoryOptions{SnapshotPath: path}); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}
