package service

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mediabot/internal/core/domain"
	"mediabot/internal/core/ports"
)

// sidecarExts are files yt-dlp leaves next to (or instead of) the media.
var sidecarExts = map[string]bool{
	".part": true, ".ytdl": true, ".temp": true, ".tmp": true,
	".json": true, ".jpg": true, ".jpeg": true, ".webp": true, ".png": true,
	".vtt": true, ".srt": true, ".description": true,
}

// Executor performs one fetch at one quality tier inside an exclusive
// workspace and enforces the transport size limit.
type Executor struct {
	fetcher    ports.MediaFetcher
	workspaces ports.Workspaces
	limit      int64
	timeout    time.Duration
	logger     *log.Logger
}

// NewExecutor creates an executor. timeout <= 0 means no extra deadline.
func NewExecutor(fetcher ports.MediaFetcher, workspaces ports.Workspaces, limitBytes int64, timeout time.Duration, logger *log.Logger) *Executor {
	return &Executor{
		fetcher:    fetcher,
		workspaces: workspaces,
		limit:      limitBytes,
		timeout:    timeout,
		logger:     logger,
	}
}

// Attempt fetches url at tier. On success the artifact has already been
// moved out of the workspace; the caller must Release it. An
// *domain.OversizeError means the file was produced but is too large.
// The workspace is removed on every return path.
func (e *Executor) Attempt(ctx context.Context, url string, opts domain.ExtractionOptions, kind domain.Kind, tier domain.QualityTier) (*domain.Artifact, error) {
	dir, err := e.workspaces.Create(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	defer func() {
		if err := e.workspaces.Remove(dir); err != nil {
			e.logger.Printf("WARN: %v", err)
		}
	}()

	fetchCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	err = e.fetcher.FetchMedia(fetchCtx, ports.FetchRequest{
		URL:     url,
		Options: opts,
		Kind:    kind,
		Tier:    tier,
		DestDir: dir,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	path, size, err := pickArtifact(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan workspace: %w", err)
	}
	if path == "" || size == 0 {
		return nil, &domain.NoArtifactError{Tier: tier.Label}
	}
	if size > e.limit {
		return nil, &domain.OversizeError{Tier: tier.Label, Size: size, Limit: e.limit}
	}

	kept, err := e.workspaces.Keep(path)
	if err != nil {
		return nil, err
	}
	return domain.NewArtifact(kept, size, tier.Label), nil
}

// pickArtifact returns the newest non-sidecar regular file in dir. Ties on
// mtime go to the lexically greatest name so the pick is deterministic.
func pickArtifact(dir string) (string, int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", 0, err
	}

	var (
		best     string
		bestSize int64
		bestTime time.Time
	)
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") || sidecarExts[strings.ToLower(filepath.Ext(name))] {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		mt := info.ModTime()
		if best == "" || mt.After(bestTime) || (mt.Equal(bestTime) && name > filepath.Base(best)) {
			best = filepath.Join(dir, name)
			bestSize = info.Size()
			bestTime = mt
		}
	}
	return best, bestSize, nil
}
