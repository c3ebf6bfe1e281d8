// Package config handles TOML-based configuration loading and validation.
// Values are merged as: defaults < config file < environment < CLI flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	// DefaultSizeLimit is the conservative transport limit (Bot API uploads).
	DefaultSizeLimit int64 = 50 * 1024 * 1024
	// MaxSizeLimit is the extended transport limit (local Bot API server).
	MaxSizeLimit int64 = 2000 * 1024 * 1024
)

// Tier is one configured quality ladder rung.
type Tier struct {
	Label        string `toml:"label"`
	Format       string `toml:"format"`
	AudioQuality string `toml:"audio_quality"`
}

// Telegram holds the chat transport settings.
type Telegram struct {
	Token             string `toml:"token"`
	MaxConcurrent     int    `toml:"max_concurrent"`
	RequestsPerMinute int    `toml:"requests_per_minute"`
	Burst             int    `toml:"burst"`
}

// Config holds all application configuration.
type Config struct {
	DataDir                 string   `toml:"data_dir"`
	Database                string   `toml:"database"`
	YtdlpPath               string   `toml:"ytdlp_path"`
	SitesFile               string   `toml:"sites_file"`
	DurationCeilingSeconds  int      `toml:"duration_ceiling_seconds"`
	TransportSizeLimitBytes int64    `toml:"transport_size_limit_bytes"`
	MetadataTimeoutSeconds  int      `toml:"metadata_timeout_seconds"`
	FetchTimeoutSeconds     int      `toml:"fetch_timeout_seconds"`
	StaleAfterMinutes       int      `toml:"stale_after_minutes"`
	SweepIntervalMinutes    int      `toml:"sweep_interval_minutes"`
	Debug                   bool     `toml:"debug"`
	VideoLadder             []Tier   `toml:"video_ladder"`
	AudioLadder             []Tier   `toml:"audio_ladder"`
	Telegram                Telegram `toml:"telegram"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		DataDir:                 "./data",
		YtdlpPath:               "yt-dlp",
		SitesFile:               "sites.yml",
		DurationCeilingSeconds:  600,
		TransportSizeLimitBytes: DefaultSizeLimit,
		MetadataTimeoutSeconds:  120,
		FetchTimeoutSeconds:     600,
		StaleAfterMinutes:       60,
		SweepIntervalMinutes:    10,
		VideoLadder:             DefaultVideoLadder(),
		AudioLadder:             DefaultAudioLadder(),
		Telegram: Telegram{
			MaxConcurrent:     4,
			RequestsPerMinute: 6,
			Burst:             3,
		},
	}
}

func videoSelector(height int) string {
	return fmt.Sprintf("bestvideo[height<=%[1]d][ext=mp4]+bestaudio[ext=m4a]/best[height<=%[1]d][ext=mp4]/best[height<=%[1]d]", height)
}

// DefaultVideoLadder is 720p, 480p, 360p.
func DefaultVideoLadder() []Tier {
	return []Tier{
		{Label: "720p", Format: videoSelector(720)},
		{Label: "480p", Format: videoSelector(480)},
		{Label: "360p", Format: videoSelector(360)},
	}
}

// DefaultAudioLadder is 192kbps, 96kbps mp3.
func DefaultAudioLadder() []Tier {
	return []Tier{
		{Label: "192kbps", Format: "bestaudio/best", AudioQuality: "192K"},
		{Label: "96kbps", Format: "bestaudio/best", AudioQuality: "96K"},
	}
}

// configDir returns the XDG-compliant config directory.
func configDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "mediabot"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".config", "mediabot"), nil
}

// ConfigPath returns the default path to the config file.
func ConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads the config file at path (or the default path when empty),
// merges it over the defaults and applies environment overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		p, err := ConfigPath()
		if err == nil {
			path = p
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			// Ladders from the file replace the defaults wholesale.
			cfg.VideoLadder, cfg.AudioLadder = nil, nil
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
			if len(cfg.VideoLadder) == 0 {
				cfg.VideoLadder = DefaultVideoLadder()
			}
			if len(cfg.AudioLadder) == 0 {
				cfg.AudioLadder = DefaultAudioLadder()
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("MEDIABOT_TELEGRAM_TOKEN"); v != "" {
		c.Telegram.Token = v
	}
	if v := os.Getenv("MEDIABOT_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("MEDIABOT_DATABASE"); v != "" {
		c.Database = v
	}
	if v := os.Getenv("MEDIABOT_YTDLP_PATH"); v != "" {
		c.YtdlpPath = v
	}
	if v := os.Getenv("MEDIABOT_SITES_FILE"); v != "" {
		c.SitesFile = v
	}
	if v := os.Getenv("MEDIABOT_SIZE_LIMIT_MB"); v != "" {
		if mb, err := strconv.ParseInt(v, 10, 64); err == nil && mb > 0 {
			c.TransportSizeLimitBytes = mb * 1024 * 1024
		}
	}
	if v := strings.TrimSpace(os.Getenv("MEDIABOT_DEBUG")); v != "" {
		c.Debug = v == "1" || strings.EqualFold(v, "true")
	}
}

// Validate checks config values are within acceptable bounds.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir cannot be empty")
	}
	if c.YtdlpPath == "" {
		return fmt.Errorf("ytdlp_path cannot be empty")
	}
	if c.DurationCeilingSeconds <= 0 {
		return fmt.Errorf("duration_ceiling_seconds must be positive, got %d", c.DurationCeilingSeconds)
	}
	if c.TransportSizeLimitBytes <= 0 || c.TransportSizeLimitBytes > MaxSizeLimit {
		return fmt.Errorf("transport_size_limit_bytes must be in (0, %d], got %d", MaxSizeLimit, c.TransportSizeLimitBytes)
	}
	if c.MetadataTimeoutSeconds <= 0 || c.FetchTimeoutSeconds <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if c.StaleAfterMinutes <= 0 {
		return fmt.Errorf("stale_after_minutes must be positive")
	}
	if c.SweepIntervalMinutes <= 0 {
		return fmt.Errorf("sweep_interval_minutes must be positive")
	}
	if err := validateLadder("video_ladder", c.VideoLadder, false); err != nil {
		return err
	}
	if err := validateLadder("audio_ladder", c.AudioLadder, true); err != nil {
		return err
	}
	if c.StaleAfter() <= c.MaxRunDuration() {
		return fmt.Errorf("stale_after_minutes (%s) must exceed the longest possible run (%s)", c.StaleAfter(), c.MaxRunDuration())
	}
	if c.Telegram.MaxConcurrent <= 0 {
		return fmt.Errorf("telegram.max_concurrent must be positive")
	}
	if c.Telegram.RequestsPerMinute <= 0 || c.Telegram.Burst <= 0 {
		return fmt.Errorf("telegram rate limit must be positive")
	}
	return nil
}

func validateLadder(name string, tiers []Tier, audio bool) error {
	if len(tiers) == 0 {
		return fmt.Errorf("%s cannot be empty", name)
	}
	seen := make(map[string]bool, len(tiers))
	for i, t := range tiers {
		if t.Label == "" || t.Format == "" {
			return fmt.Errorf("%s[%d]: label and format are required", name, i)
		}
		if seen[t.Label] {
			return fmt.Errorf("%s: duplicate label %q", name, t.Label)
		}
		seen[t.Label] = true
		if audio && t.AudioQuality == "" {
			return fmt.Errorf("%s[%d]: audio_quality is required", name, i)
		}
	}
	return nil
}

// DatabasePath returns the sqlite file path.
func (c *Config) DatabasePath() string {
	if c.Database != "" {
		return c.Database
	}
	return filepath.Join(c.DataDir, "mediabot.db")
}

// MetadataTimeout bounds one no-download info call.
func (c *Config) MetadataTimeout() time.Duration {
	return time.Duration(c.MetadataTimeoutSeconds) * time.Second
}

// FetchTimeout bounds one download attempt.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// StaleAfter is the window after which PENDING records are swept.
func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterMinutes) * time.Minute
}

// MaxRunDuration bounds one request: a short-link expansion and a
// metadata call, then one fetch per rung of the longest ladder. The stale
// window has to be longer or the sweep would fail runs that are still live.
func (c *Config) MaxRunDuration() time.Duration {
	rungs := max(len(c.VideoLadder), len(c.AudioLadder))
	return 2*c.MetadataTimeout() + time.Duration(rungs)*c.FetchTimeout()
}

// SweepInterval is how often the server runs housekeeping.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMinutes) * time.Minute
}
