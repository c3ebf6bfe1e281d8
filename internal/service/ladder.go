package service

import (
	"fmt"

	"mediabot/internal/config"
	"mediabot/internal/core/domain"
)

// Ladders holds the static fallback order for each media kind.
type Ladders struct {
	video []domain.QualityTier
	audio []domain.QualityTier
}

// NewLadders converts configured tiers into ordered QualityTiers.
// Ordinals follow list position: index 0 is tried first.
func NewLadders(video, audio []config.Tier) (*Ladders, error) {
	v, err := buildLadder(video)
	if err != nil {
		return nil, fmt.Errorf("video ladder: %w", err)
	}
	a, err := buildLadder(audio)
	if err != nil {
		return nil, fmt.Errorf("audio ladder: %w", err)
	}
	return &Ladders{video: v, audio: a}, nil
}

func buildLadder(tiers []config.Tier) ([]domain.QualityTier, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("ladder is empty")
	}
	out := make([]domain.QualityTier, 0, len(tiers))
	seen := make(map[string]bool, len(tiers))
	for i, t := range tiers {
		if t.Label == "" || t.Format == "" {
			return nil, fmt.Errorf("tier %d: label and format are required", i)
		}
		if seen[t.Label] {
			return nil, fmt.Errorf("duplicate tier %q", t.Label)
		}
		seen[t.Label] = true
		out = append(out, domain.QualityTier{
			Label:          t.Label,
			FormatSelector: t.Format,
			AudioQuality:   t.AudioQuality,
			Ordinal:        i,
		})
	}
	return out, nil
}

// Full returns the whole ladder for kind, top tier first.
func (l *Ladders) Full(kind domain.Kind) []domain.QualityTier {
	src := l.video
	if kind == domain.KindAudio {
		src = l.audio
	}
	return append([]domain.QualityTier(nil), src...)
}

// For returns the tiers a request walks: a contiguous run from the tier
// selected by hint down to the bottom of the ladder.
func (l *Ladders) For(kind domain.Kind, hint domain.QualityHint) []domain.QualityTier {
	tiers := l.Full(kind)
	return tiers[startIndex(len(tiers), hint):]
}

// MaxLen is the length of the longest ladder.
func (l *Ladders) MaxLen() int {
	return max(len(l.video), len(l.audio))
}

func startIndex(n int, hint domain.QualityHint) int {
	switch hint {
	case domain.QualityMedium:
		return min(1, n-1)
	case domain.QualityLow:
		return n - 1
	default:
		return 0
	}
}
