package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SiteOverride adjusts the built-in extraction profile of one site.
type SiteOverride struct {
	UserAgent     string            `yaml:"user_agent"`
	CookiesFile   string            `yaml:"cookies_file"`
	Headers       map[string]string `yaml:"headers"`
	ExtractorArgs []string          `yaml:"extractor_args"`
	GeoBypass     *bool             `yaml:"geo_bypass"`
	Username      string            `yaml:"username"`
	Password      string            `yaml:"password"`
}

// SitesConfig holds the per-site overrides from sites.yml.
type SitesConfig struct {
	Sites map[string]SiteOverride `yaml:"sites"`
}

var knownSites = map[string]bool{
	"youtube": true, "tiktok": true, "instagram": true, "generic": true,
}

// LoadSites reads the sites file. A missing file yields an empty config.
func LoadSites(path string) (*SitesConfig, error) {
	cfg := &SitesConfig{Sites: map[string]SiteOverride{}}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	}

	if cfg.Sites == nil {
		cfg.Sites = map[string]SiteOverride{}
	}
	for name := range cfg.Sites {
		if !knownSites[name] {
			return nil, fmt.Errorf("%s: unknown site %q (valid: youtube, tiktok, instagram, generic)", path, name)
		}
	}

	// Credentials are better kept out of the file.
	if u, p := os.Getenv("MEDIABOT_INSTAGRAM_USERNAME"), os.Getenv("MEDIABOT_INSTAGRAM_PASSWORD"); u != "" && p != "" {
		ig := cfg.Sites["instagram"]
		ig.Username, ig.Password = u, p
		cfg.Sites["instagram"] = ig
	}

	return cfg, nil
}

// Site returns the override for name, or the zero value.
func (c *SitesConfig) Site(name string) SiteOverride {
	if c == nil {
		return SiteOverride{}
	}
	return c.Sites[name]
}
