package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/exec"
	"sort"
	"strings"

	"mediabot/internal/core/domain"
	"mediabot/internal/core/ports"
)

// outputTemplate keeps names short and unique per source id.
const outputTemplate = "%(title).80s-%(id)s.%(ext)s"

// Client runs the local yt-dlp binary. It implements both
// ports.MetadataExtractor and ports.MediaFetcher.
type Client struct {
	binaryPath string
	logger     *log.Logger
}

// NewClient creates a client for the given binary. An empty path uses
// "yt-dlp" from PATH. Failed runs log their full stderr to logger, which
// may be nil.
func NewClient(binaryPath string, logger *log.Logger) *Client {
	if binaryPath == "" {
		binaryPath = "yt-dlp"
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Client{binaryPath: binaryPath, logger: logger}
}

// CheckInstalled verifies the binary can be found and started.
func (c *Client) CheckInstalled(ctx context.Context) (string, error) {
	if _, err := exec.LookPath(c.binaryPath); err != nil {
		return "", fmt.Errorf("yt-dlp not found at %q: %w", c.binaryPath, err)
	}
	out, _, err := c.run(ctx, "--version")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// infoJSON is the subset of --dump-single-json output we read.
type infoJSON struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Duration     float64 `json:"duration"`
	WebpageURL   string  `json:"webpage_url"`
	OriginalURL  string  `json:"original_url"`
	Extractor    string  `json:"extractor_key"`
	ExtractorAlt string  `json:"extractor"`
}

// ExtractMetadata resolves url without downloading media.
func (c *Client) ExtractMetadata(ctx context.Context, url string, opts domain.ExtractionOptions) (*domain.MediaMetadata, error) {
	args := append(optionArgs(opts), "--dump-single-json", "--no-download", "--no-playlist", "--no-warnings", "--", url)
	out, _, err := c.run(ctx, args...)
	if err != nil {
		return nil, err
	}
	return parseMetadata(out)
}

func parseMetadata(data []byte) (*domain.MediaMetadata, error) {
	var info infoJSON
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to parse yt-dlp output: %w", err)
	}
	meta := &domain.MediaMetadata{
		Title:           info.Title,
		DurationSeconds: int(math.Round(info.Duration)),
		SourceID:        info.ID,
		CanonicalURL:    info.WebpageURL,
		Extractor:       info.Extractor,
	}
	if meta.CanonicalURL == "" {
		meta.CanonicalURL = info.OriginalURL
	}
	if meta.Extractor == "" {
		meta.Extractor = info.ExtractorAlt
	}
	return meta, nil
}

// FetchMedia downloads req.URL into req.DestDir. Audio requests are
// transcoded to mp3 at the tier's quality.
func (c *Client) FetchMedia(ctx context.Context, req ports.FetchRequest) error {
	if req.DestDir == "" {
		return fmt.Errorf("fetch without destination directory")
	}
	_, stderr, err := c.run(ctx, fetchArgs(req)...)
	if err != nil {
		return &domain.FetchError{Tier: req.Tier.Label, Err: err, Stderr: stderr}
	}
	return nil
}

func fetchArgs(req ports.FetchRequest) []string {
	args := optionArgs(req.Options)
	args = append(args,
		"--no-playlist",
		"--no-progress",
		"--no-mtime",
		"--no-warnings",
		"-P", req.DestDir,
		"-o", outputTemplate,
		"-f", req.Tier.FormatSelector,
	)
	if req.Kind == domain.KindAudio {
		args = append(args, "-x", "--audio-format", "mp3")
		if req.Tier.AudioQuality != "" {
			args = append(args, "--audio-quality", req.Tier.AudioQuality)
		}
	} else {
		args = append(args, "--merge-output-format", "mp4")
	}
	return append(args, "--", req.URL)
}

// optionArgs maps an extraction profile onto yt-dlp flags. Headers are
// emitted in sorted order so the command line is stable.
func optionArgs(opts domain.ExtractionOptions) []string {
	var args []string
	if opts.UserAgent != "" {
		args = append(args, "--user-agent", opts.UserAgent)
	}
	keys := make([]string, 0, len(opts.Headers))
	for k := range opts.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--add-header", k+":"+opts.Headers[k])
	}
	if opts.CookiesFile != "" {
		args = append(args, "--cookies", opts.CookiesFile)
	}
	if opts.GeoBypass {
		args = append(args, "--geo-bypass")
	}
	if opts.NoCheckCertificate {
		args = append(args, "--no-check-certificate")
	}
	for _, ea := range opts.ExtractorArgs {
		args = append(args, "--extractor-args", ea)
	}
	if opts.HasCredentials() {
		args = append(args, "--username", opts.Username, "--password", opts.Password)
	}
	return args
}

// run executes yt-dlp and returns stdout and stderr. A non-zero exit is
// wrapped together with the last stderr line.
func (c *Client) run(ctx context.Context, args ...string) ([]byte, string, error) {
	cmd := exec.CommandContext(ctx, c.binaryPath, args...)

	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	// A subprocess never inherits the bot token or other secrets.
	cmd.Env = filteredEnv()

	if err := cmd.Run(); err != nil {
		// Arguments are left out: they may carry credentials.
		c.logger.Printf("yt-dlp exited with %v, stderr:\n%s", err, strings.TrimRight(stderr.String(), "\n"))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, stderr.String(), ctxErr
		}
		return nil, stderr.String(), fmt.Errorf("yt-dlp failed: %w: %s", err, classify(stderr.String()))
	}
	return out.Bytes(), stderr.String(), nil
}

// classify turns yt-dlp stderr into a short reason.
func classify(stderr string) string {
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "private video"):
		return "video is private"
	case strings.Contains(lower, "sign in to confirm your age"), strings.Contains(lower, "age-restricted"):
		return "video is age restricted"
	case strings.Contains(lower, "login required"), strings.Contains(lower, "requested content is not available"):
		return "login required"
	case strings.Contains(lower, "video unavailable"), strings.Contains(lower, "http error 404"):
		return "video unavailable"
	case strings.Contains(lower, "unsupported url"):
		return "unsupported url"
	case strings.Contains(lower, "requested format is not available"):
		return "requested format is not available"
	}
	for _, line := range strings.Split(strings.TrimSpace(stderr), "\n") {
		if strings.HasPrefix(line, "ERROR:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "ERROR:"))
		}
	}
	if s := strings.TrimSpace(stderr); s != "" {
		return domain.Excerpt(s)
	}
	return "unknown error"
}

func filteredEnv() []string {
	env := os.Environ()
	out := env[:0:0]
	for _, kv := range env {
		if strings.HasPrefix(kv, "MEDIABOT_") {
			continue
		}
		out = append(out, kv)
	}
	return out
}
