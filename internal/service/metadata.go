package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"mediabot/internal/core/domain"
	"mediabot/internal/core/ports"
)

// MetadataResolver wraps the no-download extraction call and owns the
// duration ceiling policy.
type MetadataResolver struct {
	extractor ports.MetadataExtractor
	ceiling   int
	timeout   time.Duration
}

// NewMetadataResolver creates a resolver. ceilingSeconds <= 0 disables
// the duration check; timeout <= 0 means no extra deadline.
func NewMetadataResolver(extractor ports.MetadataExtractor, ceilingSeconds int, timeout time.Duration) *MetadataResolver {
	return &MetadataResolver{extractor: extractor, ceiling: ceilingSeconds, timeout: timeout}
}

func (m *MetadataResolver) extract(ctx context.Context, url string, opts domain.ExtractionOptions) (*domain.MediaMetadata, error) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	meta, err := m.extractor.ExtractMetadata(ctx, url, opts)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, errors.New("extractor returned no metadata")
	}
	return meta, nil
}

// Expand resolves a short link to its canonical URL.
func (m *MetadataResolver) Expand(ctx context.Context, url string, opts domain.ExtractionOptions) (string, error) {
	meta, err := m.extract(ctx, url, opts)
	if err != nil {
		return "", &domain.URLResolutionError{URL: url, Err: err}
	}
	canonical := strings.TrimSpace(meta.CanonicalURL)
	if canonical == "" {
		return "", &domain.URLResolutionError{URL: url, Err: errors.New("no canonical url in metadata")}
	}
	return canonical, nil
}

// Resolve fetches title, duration and source id for url.
func (m *MetadataResolver) Resolve(ctx context.Context, url string, opts domain.ExtractionOptions) (domain.MediaMetadata, error) {
	meta, err := m.extract(ctx, url, opts)
	if err != nil {
		return domain.MediaMetadata{}, &domain.MetadataError{Err: err}
	}
	out := *meta
	if out.Title == "" {
		out.Title = "Unknown Title"
	}
	if out.DurationSeconds < 0 {
		out.DurationSeconds = 0
	}
	return out, nil
}

// CheckDuration enforces the ceiling.
func (m *MetadataResolver) CheckDuration(meta domain.MediaMetadata) error {
	if m.ceiling > 0 && meta.DurationSeconds > m.ceiling {
		return &domain.DurationExceededError{Duration: meta.DurationSeconds, Ceiling: m.ceiling}
	}
	return nil
}
