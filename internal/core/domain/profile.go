package domain

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// SiteID identifies which extraction profile applies to a URL.
type SiteID string

const (
	SiteYouTube   SiteID = "youtube"
	SiteTikTok    SiteID = "tiktok"
	SiteInstagram SiteID = "instagram"
	SiteGeneric   SiteID = "generic"
)

// ExtractionOptions is the closed set of knobs a site profile may set on
// the extraction capability.
type ExtractionOptions struct {
	UserAgent          string
	Headers            map[string]string
	CookiesFile        string
	GeoBypass          bool
	NoCheckCertificate bool
	ExtractorArgs      []string // "extractor:key=value"
	Username           string
	Password           string
}

// Validate rejects malformed option sets. Profiles are validated once,
// when the resolver is built.
func (o ExtractionOptions) Validate() error {
	for k, v := range o.Headers {
		if k == "" || strings.ContainsAny(k, ":\r\n") {
			return fmt.Errorf("invalid header name %q", k)
		}
		if strings.ContainsAny(v, "\r\n") {
			return fmt.Errorf("invalid value for header %q", k)
		}
	}
	for _, a := range o.ExtractorArgs {
		name, rest, ok := strings.Cut(a, ":")
		if !ok || name == "" || !strings.Contains(rest, "=") {
			return fmt.Errorf("invalid extractor args %q (want extractor:key=value)", a)
		}
	}
	if (o.Username == "") != (o.Password == "") {
		return errors.New("username and password must be set together")
	}
	if o.CookiesFile != "" {
		if _, err := os.Stat(o.CookiesFile); err != nil {
			return fmt.Errorf("cookies file: %w", err)
		}
	}
	return nil
}

// HasCredentials reports whether login options are present.
func (o ExtractionOptions) HasCredentials() bool {
	return o.Username != "" && o.Password != ""
}

// Clone returns a deep copy so callers can't mutate a shared profile.
func (o ExtractionOptions) Clone() ExtractionOptions {
	c := o
	if o.Headers != nil {
		c.Headers = make(map[string]string, len(o.Headers))
		for k, v := range o.Headers {
			c.Headers[k] = v
		}
	}
	c.ExtractorArgs = append([]string(nil), o.ExtractorArgs...)
	return c
}

// SiteProfile is derived from the URL alone and never persisted.
type SiteProfile struct {
	Site    SiteID
	Options ExtractionOptions

	// NeedsExpansion marks short links that must be resolved to their
	// canonical URL before metadata resolution.
	NeedsExpansion bool

	// Advisory is a non-fatal note for the user, e.g. that stories may
	// need a logged-in session.
	Advisory string
}
