package service

import (
	"fmt"
	"net/url"
	"strings"

	"mediabot/internal/config"
	"mediabot/internal/core/domain"
)

const (
	desktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	mobileUserAgent  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1"
	tiktokAPIHost    = "tiktok:api_hostname=api16-normal-c-useast1a.tiktokv.com"

	storyAdvisory = "Instagram stories may require a logged-in session; the download can fail without one."
)

var (
	youtubeHosts   = []string{"youtube.com", "youtu.be", "youtube-nocookie.com"}
	tiktokHosts    = []string{"tiktok.com"}
	tiktokShort    = []string{"vm.tiktok.com", "vt.tiktok.com"}
	instagramHosts = []string{"instagram.com", "instagr.am"}
)

// ProfileResolver maps URLs to site extraction profiles.
type ProfileResolver struct {
	youtube   domain.ExtractionOptions
	tiktok    domain.ExtractionOptions
	instagram domain.ExtractionOptions
	stories   domain.ExtractionOptions
	generic   domain.ExtractionOptions
}

// NewProfileResolver builds the per-site option sets, applies the
// sites.yml overrides and validates every resulting profile.
func NewProfileResolver(sites *config.SitesConfig) (*ProfileResolver, error) {
	r := &ProfileResolver{
		youtube: domain.ExtractionOptions{
			UserAgent: desktopUserAgent,
		},
		tiktok: domain.ExtractionOptions{
			UserAgent:          mobileUserAgent,
			Headers:            map[string]string{"Referer": "https://www.tiktok.com/"},
			GeoBypass:          true,
			NoCheckCertificate: true,
			ExtractorArgs:      []string{tiktokAPIHost},
		},
		instagram: domain.ExtractionOptions{
			UserAgent: desktopUserAgent,
		},
	}

	r.youtube = applyOverride(r.youtube, sites.Site("youtube"), false)
	r.tiktok = applyOverride(r.tiktok, sites.Site("tiktok"), false)
	r.generic = applyOverride(r.generic, sites.Site("generic"), false)
	// Credentials are only handed to yt-dlp for stories.
	r.instagram = applyOverride(r.instagram, sites.Site("instagram"), false)
	r.stories = applyOverride(r.instagram, sites.Site("instagram"), true)

	for name, opts := range map[string]domain.ExtractionOptions{
		"youtube": r.youtube, "tiktok": r.tiktok, "instagram": r.stories, "generic": r.generic,
	} {
		if err := opts.Validate(); err != nil {
			return nil, fmt.Errorf("site %s: %w", name, err)
		}
	}
	return r, nil
}

func applyOverride(base domain.ExtractionOptions, o config.SiteOverride, withCredentials bool) domain.ExtractionOptions {
	out := base.Clone()
	if o.UserAgent != "" {
		out.UserAgent = o.UserAgent
	}
	if o.CookiesFile != "" {
		out.CookiesFile = o.CookiesFile
	}
	if len(o.Headers) > 0 {
		if out.Headers == nil {
			out.Headers = make(map[string]string, len(o.Headers))
		}
		for k, v := range o.Headers {
			out.Headers[k] = v
		}
	}
	if len(o.ExtractorArgs) > 0 {
		out.ExtractorArgs = append([]string(nil), o.ExtractorArgs...)
	}
	if o.GeoBypass != nil {
		out.GeoBypass = *o.GeoBypass
	}
	if withCredentials {
		out.Username, out.Password = o.Username, o.Password
	}
	return out
}

// Resolve never fails: anything unrecognized is GENERIC.
func (r *ProfileResolver) Resolve(rawURL string) domain.SiteProfile {
	u, ok := parseMediaURL(rawURL)
	if !ok {
		return domain.SiteProfile{Site: domain.SiteGeneric, Options: r.generic.Clone()}
	}
	host := strings.ToLower(u.Hostname())

	switch {
	case matchHost(host, youtubeHosts...):
		return domain.SiteProfile{Site: domain.SiteYouTube, Options: r.youtube.Clone()}

	case matchHost(host, tiktokHosts...):
		short := matchHost(host, tiktokShort...) || strings.HasPrefix(u.Path, "/t/")
		return domain.SiteProfile{
			Site:           domain.SiteTikTok,
			Options:        r.tiktok.Clone(),
			NeedsExpansion: short,
		}

	case matchHost(host, instagramHosts...):
		if strings.HasPrefix(u.Path, "/stories/") {
			return domain.SiteProfile{
				Site:     domain.SiteInstagram,
				Options:  r.stories.Clone(),
				Advisory: storyAdvisory,
			}
		}
		return domain.SiteProfile{Site: domain.SiteInstagram, Options: r.instagram.Clone()}
	}

	return domain.SiteProfile{Site: domain.SiteGeneric, Options: r.generic.Clone()}
}

// parseMediaURL accepts URLs with or without a scheme.
func parseMediaURL(raw string) (*url.URL, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return nil, false
	}
	return u, true
}

// matchHost matches host against domains on label boundaries, so
// "m.youtube.com" matches "youtube.com" but "notyoutube.com" does not.
func matchHost(host string, domains ...string) bool {
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
