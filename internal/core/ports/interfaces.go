package ports

import (
	"context"
	"time"

	"mediabot/internal/core/domain"
)

// MetadataExtractor is the no-download half of the extraction capability.
type MetadataExtractor interface {
	// ExtractMetadata resolves title, duration and identifiers for url
	// without downloading any media.
	ExtractMetadata(ctx context.Context, url string, opts domain.ExtractionOptions) (*domain.MediaMetadata, error)
}

// FetchRequest describes one download into an exclusive directory.
type FetchRequest struct {
	URL     string
	Options domain.ExtractionOptions
	Kind    domain.Kind
	Tier    domain.QualityTier
	DestDir string
}

// MediaFetcher is the download half of the extraction capability.
type MediaFetcher interface {
	// FetchMedia downloads (and transcodes, for audio) into req.DestDir.
	// The produced file is discovered by the caller.
	FetchMedia(ctx context.Context, req FetchRequest) error
}

// Ledger persists attempt records.
type Ledger interface {
	// Open creates a PENDING record for req and bumps the owner's
	// last-active timestamp in the same transaction.
	Open(ctx context.Context, req domain.RetrievalRequest, meta domain.MediaMetadata) (*domain.AttemptRecord, error)

	// Finalize applies the one terminal transition of rec. A second call
	// fails with domain.ErrAlreadyFinalized.
	Finalize(ctx context.Context, rec *domain.AttemptRecord, f domain.Finalization) error

	// SweepStale fails every record still PENDING that started before
	// cutoff and returns how many were changed.
	SweepStale(ctx context.Context, cutoff time.Time, reason string) (int, error)
}

// Directory stores chat users and their preferences.
type Directory interface {
	Register(ctx context.Context, u domain.User) (*domain.User, error)
	GetUser(ctx context.Context, platformID string) (*domain.User, error)
	SetPreferredKind(ctx context.Context, platformID string, kind domain.Kind) error
	UserStats(ctx context.Context, platformID string) (*domain.UserStats, error)
}

// Workspaces hands out exclusive scratch directories for single attempts
// and a longer-lived outbox for accepted artifacts.
type Workspaces interface {
	// Create makes a fresh directory that no other attempt shares.
	Create(ctx context.Context) (string, error)

	// Remove deletes a workspace and everything left in it.
	Remove(dir string) error

	// Keep moves an accepted file out of its workspace into the outbox and
	// returns the new path.
	Keep(path string) (string, error)
}

// Sweeper removes files left behind by runs that will never deliver them.
type Sweeper interface {
	// SweepOutbox deletes outbox files last modified before cutoff.
	SweepOutbox(cutoff time.Time) (int, error)

	// SweepWork deletes attempt workspaces last modified before cutoff.
	SweepWork(cutoff time.Time) (int, error)
}
