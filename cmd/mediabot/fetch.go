package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"mediabot/internal/core/domain"
)

var (
	flagAudio   bool
	flagQuality string
	flagOut     string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Fetch one link through the pipeline and save the file",
	Example: `  mediabot fetch https://www.youtube.com/watch?v=dQw4w9WgXcQ
  mediabot fetch --audio --quality low https://youtu.be/dQw4w9WgXcQ -o ~/Music`,
	Args: cobra.ExactArgs(1),
	RunE: fetchRun,
}

func init() {
	fetchCmd.Flags().BoolVarP(&flagAudio, "audio", "a", false, "Fetch audio (mp3) instead of video")
	fetchCmd.Flags().StringVarP(&flagQuality, "quality", "q", "", "Start the ladder at: high | medium | low")
	fetchCmd.Flags().StringVarP(&flagOut, "out", "o", ".", "Directory to save the file to")
}

func fetchRun(cmd *cobra.Command, args []string) error {
	hint, err := domain.ParseQualityHint(flagQuality)
	if err != nil {
		return err
	}
	kind := domain.KindVideo
	if flagAudio {
		kind = domain.KindAudio
	}
	if err := os.MkdirAll(flagOut, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	req := domain.NewRequest(args[0], kind, hint, "cli")
	var res domain.Result
	for ev := range a.orchestrator.Submit(ctx, req) {
		if p := ev.Progress; p != nil {
			switch p.Stage {
			case domain.StageAdvisory, domain.StageOversize:
				yellow.Fprintf(os.Stderr, "! %s: %s\n", p.Stage, p.Detail)
			default:
				cyan.Fprintf(os.Stderr, "> %s: %s\n", p.Stage, p.Detail)
			}
			continue
		}
		if ev.Result != nil {
			res = *ev.Result
		}
	}
	return printResult(res)
}

func printResult(res domain.Result) error {
	if len(res.TiersTried) > 0 {
		fmt.Fprintf(os.Stderr, "Tiers tried: %s\n", strings.Join(res.TiersTried, ", "))
	}

	switch res.Kind {
	case domain.ResultDelivered:
		defer res.Artifact.Release()
		title := "download"
		if res.Metadata != nil {
			title = res.Metadata.Title
		}
		dst := filepath.Join(flagOut, safeName(title)+filepath.Ext(res.Artifact.Path))
		if err := copyArtifact(res.Artifact.Path, dst); err != nil {
			return err
		}
		color.Green("✓ Saved %s (%s, %.1f MiB)", dst, res.Tier, float64(res.Artifact.SizeBytes)/(1024*1024))
		return nil

	case domain.ResultRejected:
		color.Yellow("✗ Rejected: %s", res.Reason)
		return fmt.Errorf("request rejected")

	default:
		color.Red("✗ Failed (%s): %s", res.State, res.Reason)
		if res.OfferAlternateKind {
			fmt.Fprintln(os.Stderr, "Hint: try again with --audio")
		}
		return fmt.Errorf("request failed")
	}
}

func copyArtifact(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening artifact: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("writing %s: %w", dst, err)
	}
	return out.Close()
}

// safeName turns a media title into a portable file name.
func safeName(title string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, title)
	name = strings.Trim(strings.TrimSpace(name), ".")
	if r := []rune(name); len(r) > 120 {
		name = strings.TrimSpace(string(r[:120]))
	}
	if name == "" {
		return "download"
	}
	return name
}
