package service

import (
	"slices"
	"testing"

	"mediabot/internal/config"
	"mediabot/internal/core/domain"
)

func labels(tiers []domain.QualityTier) []string {
	out := make([]string, len(tiers))
	for i, t := range tiers {
		out[i] = t.Label
	}
	return out
}

func TestLaddersFor(t *testing.T) {
	l, err := NewLadders(config.DefaultVideoLadder(), config.DefaultAudioLadder())
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		kind domain.Kind
		hint domain.QualityHint
		want []string
	}{
		{domain.KindVideo, domain.QualityAny, []string{"720p", "480p", "360p"}},
		{domain.KindVideo, domain.QualityHigh, []string{"720p", "480p", "360p"}},
		{domain.KindVideo, domain.QualityMedium, []string{"480p", "360p"}},
		{domain.KindVideo, domain.QualityLow, []string{"360p"}},
		{domain.KindAudio, domain.QualityAny, []string{"192kbps", "96kbps"}},
		{domain.KindAudio, domain.QualityMedium, []string{"96kbps"}},
		{domain.KindAudio, domain.QualityLow, []string{"96kbps"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind)+"/"+string(tt.hint), func(t *testing.T) {
			got := labels(l.For(tt.kind, tt.hint))
			if !slices.Equal(got, tt.want) {
				t.Errorf("For() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLadderOrdinals(t *testing.T) {
	l, _ := NewLadders(config.DefaultVideoLadder(), config.DefaultAudioLadder())
	for i, tier := range l.Full(domain.KindVideo) {
		if tier.Ordinal != i {
			t.Errorf("%s ordinal = %d, want %d", tier.Label, tier.Ordinal, i)
		}
	}
	if l.MaxLen() != 3 {
		t.Errorf("MaxLen() = %d", l.MaxLen())
	}
}

func TestSingleTierLadder(t *testing.T) {
	l, err := NewLadders([]config.Tier{{Label: "only", Format: "best"}}, config.DefaultAudioLadder())
	if err != nil {
		t.Fatal(err)
	}
	for _, h := range []domain.QualityHint{domain.QualityHigh, domain.QualityMedium, domain.QualityLow} {
		if got := labels(l.For(domain.KindVideo, h)); !slices.Equal(got, []string{"only"}) {
			t.Errorf("hint %s: %v", h, got)
		}
	}
}

func TestLadderFullIsCopy(t *testing.T) {
	l, _ := NewLadders(config.DefaultVideoLadder(), config.DefaultAudioLadder())
	full := l.Full(domain.KindVideo)
	full[0].Label = "mutated"
	if l.Full(domain.KindVideo)[0].Label != "720p" {
		t.Error("ladder mutated through returned slice")
	}
}

func TestNewLaddersInvalid(t *testing.T) {
	audio := config.DefaultAudioLadder()
	tests := []struct {
		name  string
		video []config.Tier
	}{
		{"empty", nil},
		{"missing format", []config.Tier{{Label: "720p"}}},
		{"duplicate", []config.Tier{{Label: "a", Format: "x"}, {Label: "a", Format: "y"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewLadders(tt.video, audio); err == nil {
				t.Error("expected error")
			}
		})
	}
}
