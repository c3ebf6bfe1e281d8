package service

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"mediabot/internal/core/domain"
	"mediabot/internal/core/ports"
)

const mib = 1024 * 1024

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// fakeExtractor returns fixed metadata, or err.
type fakeExtractor struct {
	mu    sync.Mutex
	meta  domain.MediaMetadata
	err   error
	calls []string
}

func (f *fakeExtractor) ExtractMetadata(ctx context.Context, url string, opts domain.ExtractionOptions) (*domain.MediaMetadata, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	m := f.meta
	return &m, nil
}

// fakeFetcher produces a sparse file of a fixed size per tier label.
type fakeFetcher struct {
	mu      sync.Mutex
	sizes   map[string]int64
	errs    map[string]error
	sidecar bool // also leave a .part and a thumbnail behind
	empty   bool // produce nothing

	// started is closed on the first fetch when block is set; the fetch
	// then waits for cancellation.
	block   bool
	started chan struct{}

	tried []string
	dirs  []string
}

func (f *fakeFetcher) FetchMedia(ctx context.Context, req ports.FetchRequest) error {
	f.mu.Lock()
	f.tried = append(f.tried, req.Tier.Label)
	f.dirs = append(f.dirs, req.DestDir)
	f.mu.Unlock()

	if f.block {
		os.WriteFile(filepath.Join(req.DestDir, "partial.mp4.part"), []byte("x"), 0644)
		close(f.started)
		<-ctx.Done()
		return ctx.Err()
	}
	if err := f.errs[req.Tier.Label]; err != nil {
		return err
	}
	if f.sidecar {
		os.WriteFile(filepath.Join(req.DestDir, "clip.mp4.part"), []byte("partial"), 0644)
		os.WriteFile(filepath.Join(req.DestDir, "clip.jpg"), []byte("thumb"), 0644)
	}
	if f.empty {
		return nil
	}

	ext := ".mp4"
	if req.Kind == domain.KindAudio {
		ext = ".mp3"
	}
	file, err := os.Create(filepath.Join(req.DestDir, "clip-"+req.Tier.Label+ext))
	if err != nil {
		return err
	}
	defer file.Close()
	return file.Truncate(f.sizes[req.Tier.Label])
}

func (f *fakeFetcher) attempts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tried...)
}

func (f *fakeFetcher) workspaces() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.dirs...)
}
