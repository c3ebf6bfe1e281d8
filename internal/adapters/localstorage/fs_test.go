package localstorage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestCreateIsExclusive(t *testing.T) {
	w, err := NewWorkspaces(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		dir, err := w.Create(context.Background())
		if err != nil {
			t.Fatalf("Create() error: %v", err)
		}
		if seen[dir] {
			t.Fatalf("workspace %s handed out twice", dir)
		}
		seen[dir] = true
		if !strings.HasPrefix(filepath.Base(dir), "attempt-") {
			t.Errorf("unexpected workspace name %s", dir)
		}
	}
}

func TestCreateCancelled(t *testing.T) {
	w, _ := NewWorkspaces(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := w.Create(ctx); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestRemove(t *testing.T) {
	base := t.TempDir()
	w, _ := NewWorkspaces(base)

	dir, _ := w.Create(context.Background())
	os.WriteFile(filepath.Join(dir, "a.mp4.part"), []byte("x"), 0644)

	if err := w.Remove(dir); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("workspace still exists: %v", err)
	}
	// Second removal is a no-op.
	if err := w.Remove(dir); err != nil {
		t.Errorf("second Remove() error: %v", err)
	}
}

func TestRemoveRefusesOutsidePaths(t *testing.T) {
	base := t.TempDir()
	w, _ := NewWorkspaces(base)

	for _, p := range []string{base, filepath.Join(base, "work"), w.OutboxPath(), "/tmp"} {
		if err := w.Remove(p); err == nil {
			t.Errorf("Remove(%s) should be refused", p)
		}
	}
	if _, err := os.Stat(w.OutboxPath()); err != nil {
		t.Errorf("outbox was removed: %v", err)
	}
}

func TestKeep(t *testing.T) {
	w, _ := NewWorkspaces(t.TempDir())
	dir, _ := w.Create(context.Background())
	src := filepath.Join(dir, "clip.mp4")
	os.WriteFile(src, []byte("media"), 0644)

	kept, err := w.Keep(src)
	if err != nil {
		t.Fatalf("Keep() error: %v", err)
	}
	if filepath.Dir(kept) != w.OutboxPath() {
		t.Errorf("kept file in %s, want outbox", filepath.Dir(kept))
	}
	if !strings.HasSuffix(kept, "-clip.mp4") {
		t.Errorf("kept name %s lost original name", kept)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("source file should be gone")
	}
	data, _ := os.ReadFile(kept)
	if string(data) != "media" {
		t.Errorf("content = %q", data)
	}

	// The artifact survives workspace teardown.
	w.Remove(dir)
	if _, err := os.Stat(kept); err != nil {
		t.Errorf("artifact removed with workspace: %v", err)
	}
}

func TestSweepOutbox(t *testing.T) {
	w, _ := NewWorkspaces(t.TempDir())
	old := filepath.Join(w.OutboxPath(), "old.mp4")
	fresh := filepath.Join(w.OutboxPath(), "fresh.mp4")
	os.WriteFile(old, []byte("x"), 0644)
	os.WriteFile(fresh, []byte("x"), 0644)

	past := time.Now().Add(-2 * time.Hour)
	os.Chtimes(old, past, past)

	n, err := w.SweepOutbox(time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("SweepOutbox() error: %v", err)
	}
	if n != 1 {
		t.Errorf("removed %d, want 1", n)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("old file should be removed")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh file should be kept")
	}
}

func TestSweepWork(t *testing.T) {
	w, _ := NewWorkspaces(t.TempDir())
	dir, _ := w.Create(context.Background())
	past := time.Now().Add(-3 * time.Hour)
	os.Chtimes(dir, past, past)

	n, err := w.SweepWork(time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("removed %d, want 1", n)
	}
}
