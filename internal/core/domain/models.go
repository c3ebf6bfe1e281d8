package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind is the media kind a user asked for.
type Kind string

const (
	KindVideo Kind = "VIDEO"
	KindAudio Kind = "AUDIO"
)

// ParseKind accepts "video"/"audio" in any case.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToUpper(strings.TrimSpace(s))) {
	case KindVideo:
		return KindVideo, nil
	case KindAudio:
		return KindAudio, nil
	default:
		return "", fmt.Errorf("unknown media kind %q (valid: video, audio)", s)
	}
}

// Other returns the orthogonal kind (video <-> audio).
func (k Kind) Other() Kind {
	if k == KindAudio {
		return KindVideo
	}
	return KindAudio
}

// QualityHint picks the tier a ladder walk starts from. Empty means top.
type QualityHint string

const (
	QualityAny    QualityHint = ""
	QualityHigh   QualityHint = "high"
	QualityMedium QualityHint = "medium"
	QualityLow    QualityHint = "low"
)

// ParseQualityHint accepts "", high, medium and low.
func ParseQualityHint(s string) (QualityHint, error) {
	switch h := QualityHint(strings.ToLower(strings.TrimSpace(s))); h {
	case QualityAny, QualityHigh, QualityMedium, QualityLow:
		return h, nil
	default:
		return "", fmt.Errorf("unknown quality %q (valid: high, medium, low)", s)
	}
}

// RetrievalRequest is one user-initiated request. Treat it as immutable.
type RetrievalRequest struct {
	ID          string      `json:"request_id"`
	URL         string      `json:"url"`
	Kind        Kind        `json:"kind"`
	QualityHint QualityHint `json:"quality_hint,omitempty"`
	RequesterID string      `json:"requester_id"` // platform identity of the owning user
	CreatedAt   time.Time   `json:"created_at"`
}

// NewRequest builds a request with a fresh ID.
func NewRequest(url string, kind Kind, hint QualityHint, requesterID string) RetrievalRequest {
	return RetrievalRequest{
		ID:          uuid.New().String(),
		URL:         strings.TrimSpace(url),
		Kind:        kind,
		QualityHint: hint,
		RequesterID: requesterID,
		CreatedAt:   time.Now().UTC(),
	}
}

// MediaMetadata is what the extractor reports before any download.
type MediaMetadata struct {
	Title           string `json:"title"`
	DurationSeconds int    `json:"duration_seconds"`
	SourceID        string `json:"source_id"`
	CanonicalURL    string `json:"canonical_url,omitempty"`
	Extractor       string `json:"extractor,omitempty"`
}

// QualityTier is one rung of a quality ladder. Lower ordinal is tried first.
type QualityTier struct {
	Label          string `json:"label"`
	FormatSelector string `json:"format"`
	AudioQuality   string `json:"audio_quality,omitempty"` // audio ladders only, e.g. "192K"
	Ordinal        int    `json:"ordinal"`
}

// Outcome is the lifecycle state of an AttemptRecord.
type Outcome string

const (
	OutcomePending Outcome = "PENDING"
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailure Outcome = "FAILURE"
)

// IsTerminal reports whether the outcome ends a record's lifecycle.
func (o Outcome) IsTerminal() bool {
	return o == OutcomeSuccess || o == OutcomeFailure
}

// AttemptRecord is the persisted audit row of one request.
type AttemptRecord struct {
	ID            int64
	OwnerID       int64
	SourceURL     string
	Title         string
	Kind          Kind
	StartedAt     time.Time
	CompletedAt   *time.Time
	Outcome       Outcome
	FileSizeBytes int64
	ErrorMessage  string
}

// Finalization is the terminal transition applied to an AttemptRecord.
type Finalization struct {
	Outcome       Outcome
	FileSizeBytes int64
	ErrorMessage  string
}

// Validate enforces the record invariants for a terminal transition.
func (f Finalization) Validate() error {
	if !f.Outcome.IsTerminal() {
		return fmt.Errorf("%w: outcome %q is not terminal", ErrInvalidFinalization, f.Outcome)
	}
	if f.FileSizeBytes < 0 {
		return fmt.Errorf("%w: negative size", ErrInvalidFinalization)
	}
	if f.FileSizeBytes > 0 && f.Outcome != OutcomeSuccess {
		return fmt.Errorf("%w: size recorded on a failed attempt", ErrInvalidFinalization)
	}
	return nil
}

// User is the owner of attempt records, keyed by platform identity.
type User struct {
	ID            int64
	PlatformID    string
	Username      string
	FirstName     string
	LastName      string
	LanguageCode  string
	PreferredKind Kind // empty: ask every time
	CreatedAt     time.Time
	LastActive    time.Time
}

// DisplayName returns the best human label for the user.
func (u User) DisplayName() string {
	if u.Username != "" {
		return "@" + u.Username
	}
	if name := strings.TrimSpace(u.FirstName + " " + u.LastName); name != "" {
		return name
	}
	return u.PlatformID
}

// UserStats summarizes a user's ledger rows.
type UserStats struct {
	Total       int
	Successful  int
	Video       int
	Audio       int
	MemberSince time.Time
}

// SuccessRate is a percentage in [0, 100].
func (s UserStats) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Successful) / float64(s.Total) * 100
}

// DaysActive counts calendar days since registration, inclusive.
func (s UserStats) DaysActive(now time.Time) int {
	if s.MemberSince.IsZero() {
		return 0
	}
	y1, m1, d1 := s.MemberSince.Date()
	y2, m2, d2 := now.In(s.MemberSince.Location()).Date()
	start := time.Date(y1, m1, d1, 0, 0, 0, 0, time.UTC)
	end := time.Date(y2, m2, d2, 0, 0, 0, 0, time.UTC)
	return int(end.Sub(start).Hours()/24) + 1
}
