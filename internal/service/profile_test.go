package service

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"mediabot/internal/config"
	"mediabot/internal/core/domain"
)

func newTestResolver(t *testing.T, sites *config.SitesConfig) *ProfileResolver {
	t.Helper()
	r, err := NewProfileResolver(sites)
	if err != nil {
		t.Fatalf("NewProfileResolver() error: %v", err)
	}
	return r
}

func TestResolveSite(t *testing.T) {
	r := newTestResolver(t, nil)

	tests := []struct {
		url      string
		site     domain.SiteID
		expand   bool
		advisory bool
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", domain.SiteYouTube, false, false},
		{"https://youtu.be/dQw4w9WgXcQ", domain.SiteYouTube, false, false},
		{"https://music.youtube.com/watch?v=abc", domain.SiteYouTube, false, false},
		{"youtube.com/shorts/abc", domain.SiteYouTube, false, false},
		{"https://WWW.YOUTUBE.COM/watch?v=x", domain.SiteYouTube, false, false},
		{"https://www.tiktok.com/@user/video/1234567890", domain.SiteTikTok, false, false},
		{"https://vm.tiktok.com/ZMabc123/", domain.SiteTikTok, true, false},
		{"https://vt.tiktok.com/ZSabc/", domain.SiteTikTok, true, false},
		{"https://www.tiktok.com/t/ZTabc/", domain.SiteTikTok, true, false},
		{"https://www.instagram.com/reel/Cabc/", domain.SiteInstagram, false, false},
		{"https://www.instagram.com/stories/someone/123/", domain.SiteInstagram, false, true},
		{"https://vimeo.com/123", domain.SiteGeneric, false, false},
		{"https://notyoutube.com/watch?v=x", domain.SiteGeneric, false, false},
		{"https://example.com/?u=youtube.com", domain.SiteGeneric, false, false},
		{"", domain.SiteGeneric, false, false},
		{"::not a url::", domain.SiteGeneric, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			p := r.Resolve(tt.url)
			if p.Site != tt.site {
				t.Errorf("Site = %s, want %s", p.Site, tt.site)
			}
			if p.NeedsExpansion != tt.expand {
				t.Errorf("NeedsExpansion = %v, want %v", p.NeedsExpansion, tt.expand)
			}
			if (p.Advisory != "") != tt.advisory {
				t.Errorf("Advisory = %q", p.Advisory)
			}
		})
	}
}

func TestTikTokOptions(t *testing.T) {
	p := newTestResolver(t, nil).Resolve("https://www.tiktok.com/@u/video/1")
	o := p.Options
	if !o.GeoBypass || !o.NoCheckCertificate {
		t.Errorf("tiktok should bypass geo and certificate checks: %+v", o)
	}
	if o.UserAgent != mobileUserAgent {
		t.Errorf("user agent = %q", o.UserAgent)
	}
	if !slices.Contains(o.ExtractorArgs, tiktokAPIHost) {
		t.Errorf("extractor args = %v", o.ExtractorArgs)
	}
}

func TestGenericHasEmptyOptions(t *testing.T) {
	p := newTestResolver(t, nil).Resolve("https://example.com/video.mp4")
	if p.Options.UserAgent != "" || len(p.Options.Headers) != 0 || p.Options.GeoBypass {
		t.Errorf("generic options = %+v", p.Options)
	}
}

func TestStoriesCarryCredentials(t *testing.T) {
	sites := &config.SitesConfig{Sites: map[string]config.SiteOverride{
		"instagram": {Username: "u", Password: "p"},
	}}
	r := newTestResolver(t, sites)

	story := r.Resolve("https://instagram.com/stories/x/1/")
	if !story.Options.HasCredentials() {
		t.Error("story profile should carry credentials")
	}
	reel := r.Resolve("https://instagram.com/reel/abc/")
	if reel.Options.HasCredentials() {
		t.Error("only stories get credentials")
	}
}

func TestOverrides(t *testing.T) {
	cookies := filepath.Join(t.TempDir(), "yt.txt")
	os.WriteFile(cookies, []byte("# Netscape HTTP Cookie File\n"), 0600)
	off := false

	sites := &config.SitesConfig{Sites: map[string]config.SiteOverride{
		"youtube": {CookiesFile: cookies},
		"tiktok":  {UserAgent: "custom", GeoBypass: &off, Headers: map[string]string{"X-Test": "1"}},
	}}
	r := newTestResolver(t, sites)

	if got := r.Resolve("https://youtu.be/x").Options.CookiesFile; got != cookies {
		t.Errorf("youtube cookies = %q", got)
	}
	tt := r.Resolve("https://tiktok.com/@u/video/1").Options
	if tt.UserAgent != "custom" || tt.GeoBypass {
		t.Errorf("tiktok override not applied: %+v", tt)
	}
	if tt.Headers["Referer"] == "" || tt.Headers["X-Test"] != "1" {
		t.Errorf("headers should merge: %v", tt.Headers)
	}
}

func TestInvalidOverrides(t *testing.T) {
	tests := []struct {
		name     string
		override config.SiteOverride
	}{
		{"missing cookies file", config.SiteOverride{CookiesFile: "/nonexistent/cookies.txt"}},
		{"bad extractor args", config.SiteOverride{ExtractorArgs: []string{"nocolon"}}},
		{"bad header", config.SiteOverride{Headers: map[string]string{"Bad:Name": "x"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sites := &config.SitesConfig{Sites: map[string]config.SiteOverride{"generic": tt.override}}
			if _, err := NewProfileResolver(sites); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestResolveReturnsCopies(t *testing.T) {
	r := newTestResolver(t, nil)
	p := r.Resolve("https://tiktok.com/@u/video/1")
	p.Options.Headers["Referer"] = "mutated"
	p.Options.ExtractorArgs[0] = "mutated"

	again := r.Resolve("https://tiktok.com/@u/video/1")
	if again.Options.Headers["Referer"] == "mutated" || again.Options.ExtractorArgs[0] == "mutated" {
		t.Error("resolver profile was mutated through a returned copy")
	}
}
