package telegram

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"mediabot/internal/core/domain"
)

const helpText = `🤖 <b>Media Downloader Bot</b>

Send a link from YouTube, TikTok, Instagram or most other video sites and choose video or audio.

<b>Commands:</b>
/start - Start the bot
/settings - Choose a default format
/stats - View your download statistics
/help - Show this help message

Files larger than the upload limit are retried at lower quality automatically.`

const welcomeText = "Welcome! Send me a video link to download it as video or audio.\nUse /help to see all commands."

const (
	formatPrompt  = "Please select the download format:"
	qualityPrompt = "Choose video quality. Lower quality is tried next if the file is too large:"
)

var urlPattern = regexp.MustCompile(`(?i)\bhttps?://[^\s<>"']+`)

// extractURL returns the first http(s) link in text.
func extractURL(text string) string {
	return strings.TrimRight(urlPattern.FindString(text), ".,;:!?)")
}

func kindNoun(kind domain.Kind) string {
	if kind == domain.KindAudio {
		return "audio"
	}
	return "video"
}

// progressText renders a progress event for the status message. An empty
// string means the event is not worth an edit.
func progressText(p domain.Progress, kind domain.Kind) string {
	switch p.Stage {
	case domain.StageAdvisory:
		return "⚠️ " + html.EscapeString(p.Detail)
	case domain.StageExpanding:
		return "🔗 Resolving short link..."
	case domain.StageResolvingMetadata:
		return "🔍 Getting video information..."
	case domain.StageMetadataResolved:
		return fmt.Sprintf("📥 Found: <b>%s</b>", html.EscapeString(p.Detail))
	case domain.StageTrying:
		return fmt.Sprintf("⏳ Downloading %s at %s...", kindNoun(kind), html.EscapeString(p.Detail))
	case domain.StageOversize:
		return "📉 File too large, trying lower quality..."
	}
	return ""
}

// resultText renders a failed or rejected result.
func resultText(res domain.Result) string {
	switch {
	case res.Kind == domain.ResultRejected:
		return fmt.Sprintf("⛔ %s", html.EscapeString(rejectReason(res)))
	case res.State == domain.StateExhausted:
		return "❌ The file exceeds the size limit even at the lowest quality."
	case res.Reason == domain.ReasonCancelled:
		return "🚫 Download cancelled."
	default:
		return fmt.Sprintf("❌ Download failed: %s", html.EscapeString(res.Reason))
	}
}

func rejectReason(res domain.Result) string {
	if res.Metadata != nil && res.Reason == domain.ReasonTooLong {
		return fmt.Sprintf("%s (%s). Please choose a shorter one.", res.Reason, formatDuration(res.Metadata.DurationSeconds))
	}
	return res.Reason
}

func deliveredText(res domain.Result) string {
	title := "Unknown Title"
	if res.Metadata != nil {
		title = res.Metadata.Title
	}
	return fmt.Sprintf("✅ Download complete!\n🎬 %s (%s, %s)",
		html.EscapeString(title), res.Tier, formatSize(res.Artifact.SizeBytes))
}

func statsText(u *domain.User, st *domain.UserStats, now time.Time) string {
	var b strings.Builder
	b.WriteString("📊 <b>Your Download Statistics</b>\n\n")
	fmt.Fprintf(&b, "👤 User: %s\n", html.EscapeString(u.DisplayName()))
	fmt.Fprintf(&b, "📆 Member since: %s\n", st.MemberSince.Format("2006-01-02"))
	fmt.Fprintf(&b, "⏱ Days active: %d\n\n", st.DaysActive(now))
	fmt.Fprintf(&b, "📥 Total downloads: %d\n", st.Total)
	fmt.Fprintf(&b, "✅ Successful downloads: %d\n", st.Successful)
	fmt.Fprintf(&b, "📈 Success rate: %.1f%%\n", st.SuccessRate())
	fmt.Fprintf(&b, "🎬 Video downloads: %d\n", st.Video)
	fmt.Fprintf(&b, "🎵 Audio downloads: %d\n", st.Audio)
	return b.String()
}

func settingsText(kind domain.Kind) string {
	current := "ask every time"
	if kind != "" {
		current = "always " + kindNoun(kind)
	}
	return fmt.Sprintf("⚙️ Default format: <b>%s</b>\nChoose a new default:", current)
}

func formatDuration(sec int) string {
	d := time.Duration(sec) * time.Second
	if d >= time.Hour {
		return fmt.Sprintf("%d:%02d:%02d", int(d.Hours()), int(d.Minutes())%60, sec%60)
	}
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), sec%60)
}

func formatSize(n int64) string {
	switch {
	case n >= 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(n)/1024/1024)
	case n >= 1024:
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	default:
		return fmt.Sprintf("%d B", n)
	}
}
