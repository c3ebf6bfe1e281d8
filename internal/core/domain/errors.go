package domain

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Ledger misuse.
var (
	ErrAlreadyFinalized    = errors.New("attempt record already finalized")
	ErrInvalidFinalization = errors.New("invalid finalization")
	ErrRecordNotFound      = errors.New("attempt record not found")
)

// Reasons stored in the ledger and shown to users.
const (
	ReasonTooLong   = "Video too long"
	ReasonExhausted = "exceeds size limit at lowest quality"
	ReasonCancelled = "cancelled"
	ReasonTimedOut  = "timed out"
)

// URLResolutionError means a short link could not be expanded.
type URLResolutionError struct {
	URL string
	Err error
}

func (e *URLResolutionError) Error() string {
	return fmt.Sprintf("could not resolve %s: %v", e.URL, e.Err)
}

func (e *URLResolutionError) Unwrap() error { return e.Err }

// MetadataError wraps a failed no-download info call.
type MetadataError struct {
	Err error
}

func (e *MetadataError) Error() string {
	return fmt.Sprintf("error getting video information: %v", e.Err)
}

func (e *MetadataError) Unwrap() error { return e.Err }

// DurationExceededError rejects media longer than the configured ceiling.
type DurationExceededError struct {
	Duration int
	Ceiling  int
}

func (e *DurationExceededError) Error() string {
	return fmt.Sprintf("video is too long (%ds, maximum is %ds)", e.Duration, e.Ceiling)
}

// NoArtifactError means the fetch finished but left nothing usable behind.
type NoArtifactError struct {
	Tier string
}

func (e *NoArtifactError) Error() string {
	return fmt.Sprintf("no files were downloaded at %s", e.Tier)
}

// FetchError is an upstream download failure.
type FetchError struct {
	Tier   string
	Err    error
	Stderr string
}

func (e *FetchError) Error() string {
	if line := lastLine(e.Stderr); line != "" {
		return fmt.Sprintf("download failed at %s: %s", e.Tier, line)
	}
	return fmt.Sprintf("download failed at %s: %v", e.Tier, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// OversizeError is not a failure: it tells the orchestrator to step down
// the ladder.
type OversizeError struct {
	Tier  string
	Size  int64
	Limit int64
}

func (e *OversizeError) Error() string {
	return fmt.Sprintf("file size (%.1fMB) at %s exceeds the %.0fMB limit",
		float64(e.Size)/1024/1024, e.Tier, float64(e.Limit)/1024/1024)
}

const maxExcerpt = 200

// Excerpt bounds an error message before it reaches a user or the ledger.
func Excerpt(msg string) string {
	msg = strings.TrimSpace(msg)
	if utf8.RuneCountInString(msg) <= maxExcerpt {
		return msg
	}
	r := []rune(msg)
	return string(r[:maxExcerpt-1]) + "…"
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}
