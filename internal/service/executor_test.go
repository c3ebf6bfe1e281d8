package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mediabot/internal/adapters/localstorage"
	"mediabot/internal/core/domain"
)

var tier720 = domain.QualityTier{Label: "720p", FormatSelector: "best[height<=720]"}

func newTestExecutor(t *testing.T, f *fakeFetcher, limit int64) (*Executor, *localstorage.Workspaces) {
	t.Helper()
	ws, err := localstorage.NewWorkspaces(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return NewExecutor(f, ws, limit, time.Minute, discardLogger()), ws
}

func assertWorkspaceGone(t *testing.T, f *fakeFetcher) {
	t.Helper()
	for _, dir := range f.workspaces() {
		if _, err := os.Stat(dir); !os.IsNotExist(err) {
			t.Errorf("workspace %s still exists", dir)
		}
	}
}

func TestAttemptAccepted(t *testing.T) {
	f := &fakeFetcher{sizes: map[string]int64{"720p": 10 * mib}, sidecar: true}
	e, ws := newTestExecutor(t, f, 50*mib)

	art, err := e.Attempt(context.Background(), "https://x.test/v", domain.ExtractionOptions{}, domain.KindVideo, tier720)
	if err != nil {
		t.Fatalf("Attempt() error: %v", err)
	}
	defer art.Release()

	if art.SizeBytes != 10*mib || art.Tier != "720p" {
		t.Errorf("artifact = %+v", art)
	}
	if filepath.Dir(art.Path) != ws.OutboxPath() {
		t.Errorf("artifact at %s, want outbox", art.Path)
	}
	if filepath.Ext(art.Path) != ".mp4" {
		t.Errorf("sidecar picked: %s", art.Path)
	}
	assertWorkspaceGone(t, f)

	if err := art.Release(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(art.Path); !os.IsNotExist(err) {
		t.Error("Release() should delete the artifact")
	}
}

func TestAttemptOversize(t *testing.T) {
	f := &fakeFetcher{sizes: map[string]int64{"720p": 80 * mib}}
	e, ws := newTestExecutor(t, f, 50*mib)

	art, err := e.Attempt(context.Background(), "u", domain.ExtractionOptions{}, domain.KindVideo, tier720)
	var over *domain.OversizeError
	if !errors.As(err, &over) {
		t.Fatalf("error = %v, want OversizeError", err)
	}
	if art != nil {
		t.Error("no artifact expected")
	}
	if over.Size != 80*mib || over.Limit != 50*mib || over.Tier != "720p" {
		t.Errorf("oversize = %+v", over)
	}
	assertWorkspaceGone(t, f)
	if entries, _ := os.ReadDir(ws.OutboxPath()); len(entries) != 0 {
		t.Errorf("oversize file leaked to outbox: %v", entries)
	}
}

func TestAttemptExactlyAtLimit(t *testing.T) {
	f := &fakeFetcher{sizes: map[string]int64{"720p": 50 * mib}}
	e, _ := newTestExecutor(t, f, 50*mib)

	art, err := e.Attempt(context.Background(), "u", domain.ExtractionOptions{}, domain.KindVideo, tier720)
	if err != nil {
		t.Fatalf("file at the limit should be accepted: %v", err)
	}
	art.Release()
}

func TestAttemptNoArtifact(t *testing.T) {
	f := &fakeFetcher{empty: true, sidecar: true}
	e, _ := newTestExecutor(t, f, 50*mib)

	_, err := e.Attempt(context.Background(), "u", domain.ExtractionOptions{}, domain.KindVideo, tier720)
	var none *domain.NoArtifactError
	if !errors.As(err, &none) {
		t.Fatalf("error = %v, want NoArtifactError", err)
	}
	assertWorkspaceGone(t, f)
}

func TestAttemptEmptyFile(t *testing.T) {
	f := &fakeFetcher{sizes: map[string]int64{"720p": 0}}
	e, ws := newTestExecutor(t, f, 50*mib)

	art, err := e.Attempt(context.Background(), "u", domain.ExtractionOptions{}, domain.KindVideo, tier720)
	var none *domain.NoArtifactError
	if !errors.As(err, &none) {
		t.Fatalf("error = %v, want NoArtifactError for a zero-byte file", err)
	}
	if art != nil {
		t.Error("no artifact expected")
	}
	assertWorkspaceGone(t, f)
	if entries, _ := os.ReadDir(ws.OutboxPath()); len(entries) != 0 {
		t.Errorf("empty file leaked to outbox: %v", entries)
	}
}

func TestAttemptFetchError(t *testing.T) {
	boom := &domain.FetchError{Tier: "720p", Err: errors.New("exit status 1"), Stderr: "ERROR: Unsupported URL"}
	f := &fakeFetcher{errs: map[string]error{"720p": boom}}
	e, _ := newTestExecutor(t, f, 50*mib)

	_, err := e.Attempt(context.Background(), "u", domain.ExtractionOptions{}, domain.KindVideo, tier720)
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want fetch error", err)
	}
	assertWorkspaceGone(t, f)
}

func TestAttemptCancelled(t *testing.T) {
	f := &fakeFetcher{block: true, started: make(chan struct{})}
	e, _ := newTestExecutor(t, f, 50*mib)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-f.started
		cancel()
	}()

	_, err := e.Attempt(ctx, "u", domain.ExtractionOptions{}, domain.KindVideo, tier720)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	assertWorkspaceGone(t, f)
}

func TestAttemptsUseFreshWorkspaces(t *testing.T) {
	f := &fakeFetcher{sizes: map[string]int64{"720p": 80 * mib}}
	e, _ := newTestExecutor(t, f, 50*mib)

	for i := 0; i < 3; i++ {
		e.Attempt(context.Background(), "u", domain.ExtractionOptions{}, domain.KindVideo, tier720)
	}
	dirs := f.workspaces()
	seen := map[string]bool{}
	for _, d := range dirs {
		if seen[d] {
			t.Fatalf("workspace %s reused", d)
		}
		seen[d] = true
	}
}

func TestPickArtifact(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	write := func(name string, size int, mtime time.Time) {
		p := filepath.Join(dir, name)
		os.WriteFile(p, make([]byte, size), 0644)
		os.Chtimes(p, mtime, mtime)
	}
	write("old.mp4", 3, now.Add(-time.Minute))
	write("new.webm", 5, now)
	write("newest.mp4.part", 9, now.Add(time.Minute))
	write("thumb.webp", 9, now.Add(time.Minute))
	write("info.json", 9, now.Add(time.Minute))
	os.Mkdir(filepath.Join(dir, "subdir"), 0755)

	path, size, err := pickArtifact(dir)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != "new.webm" || size != 5 {
		t.Errorf("picked %s (%d bytes), want new.webm", path, size)
	}
}

func TestPickArtifactTieBreak(t *testing.T) {
	dir := t.TempDir()
	mt := time.Now().Truncate(time.Second)
	for _, name := range []string{"a.mp4", "c.mp4", "b.mp4"} {
		p := filepath.Join(dir, name)
		os.WriteFile(p, []byte("x"), 0644)
		os.Chtimes(p, mt, mt)
	}
	path, _, _ := pickArtifact(dir)
	if filepath.Base(path) != "c.mp4" {
		t.Errorf("picked %s, want c.mp4", path)
	}
}
