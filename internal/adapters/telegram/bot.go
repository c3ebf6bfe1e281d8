// Package telegram is the chat transport: it turns Telegram messages into
// retrieval requests and streams pipeline events back as message edits.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"mediabot/internal/config"
	"mediabot/internal/core/domain"
	"mediabot/internal/core/ports"
)

// Callback data prefixes. Video downloads carry a quality code:
// dl:v:<h|m|l>:<token>.
const (
	cbVideo   = "dl:v:"
	cbAudio   = "dl:a:"
	cbQuality = "qv:"
	cbBack    = "back:"
	cbDrop    = "drop:"
	cbCancel  = "cancel:"
	cbPref    = "pref:"
)

// limiterTTL is how often idle per-user buckets are pruned, and the
// shortest time one is kept.
const limiterTTL = 10 * time.Minute

var qualityCodes = map[string]domain.QualityHint{
	"h": domain.QualityHigh,
	"m": domain.QualityMedium,
	"l": domain.QualityLow,
}

// Runner starts a retrieval request. *service.Orchestrator implements it.
type Runner interface {
	Submit(ctx context.Context, req domain.RetrievalRequest) <-chan domain.Event
}

// sender is the part of *tgbotapi.BotAPI the handlers use.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Bot handles updates from one Telegram bot account.
type Bot struct {
	api    *tgbotapi.BotAPI
	out    sender
	runner Runner
	dir    ports.Directory
	logger *log.Logger

	sem     *semaphore.Weighted
	every   rate.Limit
	burst   int
	pending *pendingStore

	mu        sync.Mutex
	limiters  map[int64]*userLimiter
	lastPrune time.Time
	running   map[string]context.CancelFunc
	now       func() time.Time
}

type userLimiter struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewBot connects to the Bot API with cfg.Token.
func NewBot(cfg config.Telegram, runner Runner, dir ports.Directory, logger *log.Logger) (*Bot, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram token is not set (MEDIABOT_TELEGRAM_TOKEN)")
	}
	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to telegram: %w", err)
	}
	b := newBot(api, cfg, runner, dir, logger)
	b.api = api
	logger.Printf("Authorized on account @%s", api.Self.UserName)
	return b, nil
}

func newBot(out sender, cfg config.Telegram, runner Runner, dir ports.Directory, logger *log.Logger) *Bot {
	return &Bot{
		out:      out,
		runner:   runner,
		dir:      dir,
		logger:   logger,
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		every:    rate.Every(time.Minute / time.Duration(max(cfg.RequestsPerMinute, 1))),
		burst:    max(cfg.Burst, 1),
		pending:  newPendingStore(1000, time.Hour),
		limiters: make(map[int64]*userLimiter),
		running:  make(map[string]context.CancelFunc),
		now:      time.Now,
	}
}

// Run long-polls for updates until ctx is cancelled, then waits for the
// runs in flight to finish their cleanup.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				b.handleUpdate(ctx, upd)
			}()
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, upd tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Printf("ERROR: panic handling update %d: %v", upd.UpdateID, r)
		}
	}()
	switch {
	case upd.CallbackQuery != nil:
		b.handleCallback(ctx, upd.CallbackQuery)
	case upd.Message != nil && upd.Message.From != nil:
		b.handleMessage(ctx, upd.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			b.cmdStart(ctx, msg)
		case "help":
			b.reply(msg, helpText, nil)
		case "stats":
			b.cmdStats(ctx, msg)
		case "settings":
			b.cmdSettings(ctx, msg)
		default:
			b.reply(msg, "Unknown command. Use /help for more information.", nil)
		}
		return
	}

	url := extractURL(msg.Text)
	if url == "" {
		b.reply(msg, "Please send a valid video link. Use /help for more information.", nil)
		return
	}
	if !b.allow(msg.From.ID) {
		b.reply(msg, "⏳ You're sending links too fast. Please wait a moment.", nil)
		return
	}

	var preferred domain.Kind
	if u, err := b.dir.GetUser(ctx, platformID(msg.From)); err == nil {
		preferred = u.PreferredKind
	}

	if preferred != "" {
		status, err := b.reply(msg, "⏳ Processing your request...", nil)
		if err != nil {
			return
		}
		b.execute(ctx, msg.Chat.ID, status.MessageID, msg.From, url, preferred, domain.QualityAny)
		return
	}

	token := b.pending.put(url, msg.From.ID)
	markup := formatKeyboard(token)
	b.reply(msg, formatPrompt, &markup)
}

func formatKeyboard(token string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🎬 Video", cbQuality+token),
			tgbotapi.NewInlineKeyboardButtonData("🎵 Audio", cbAudio+token),
		),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("✖ Cancel", cbDrop+token)),
	)
}

func qualityKeyboard(token string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🎥 High quality", cbVideo+"h:"+token)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🎥 Medium quality", cbVideo+"m:"+token)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🎥 Low quality", cbVideo+"l:"+token)),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔙 Back", cbBack+token),
			tgbotapi.NewInlineKeyboardButtonData("✖ Cancel", cbDrop+token),
		),
	)
}

// parseDownload splits dl:v:<code>:<token> and dl:a:<token>.
func parseDownload(data string) (kind domain.Kind, hint domain.QualityHint, token string, ok bool) {
	if rest, found := strings.CutPrefix(data, cbAudio); found {
		return domain.KindAudio, domain.QualityAny, rest, rest != ""
	}
	rest, found := strings.CutPrefix(data, cbVideo)
	if !found {
		return "", "", "", false
	}
	code, token, found := strings.Cut(rest, ":")
	hint, known := qualityCodes[code]
	if !found || !known || token == "" {
		return "", "", "", false
	}
	return domain.KindVideo, hint, token, true
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil || cb.From == nil {
		return
	}
	chatID, msgID := cb.Message.Chat.ID, cb.Message.MessageID

	switch data := cb.Data; {
	case strings.HasPrefix(data, cbVideo), strings.HasPrefix(data, cbAudio):
		kind, hint, token, ok := parseDownload(data)
		if !ok {
			b.answer(cb, "Unknown option.")
			return
		}
		url, ok := b.pending.take(token, cb.From.ID)
		if !ok {
			b.answer(cb, "This link has expired. Please send it again.")
			return
		}
		if !b.allow(cb.From.ID) {
			b.answer(cb, "Too many requests, please wait.")
			return
		}
		b.answer(cb, "Starting download...")
		b.execute(ctx, chatID, msgID, cb.From, url, kind, hint)

	case strings.HasPrefix(data, cbQuality), strings.HasPrefix(data, cbBack):
		showQuality := strings.HasPrefix(data, cbQuality)
		token := strings.TrimPrefix(strings.TrimPrefix(data, cbQuality), cbBack)
		if !b.pending.owns(token, cb.From.ID) {
			b.answer(cb, "This link has expired. Please send it again.")
			return
		}
		b.answer(cb, "")
		if showQuality {
			markup := qualityKeyboard(token)
			b.edit(chatID, msgID, qualityPrompt, &markup)
		} else {
			markup := formatKeyboard(token)
			b.edit(chatID, msgID, formatPrompt, &markup)
		}

	case strings.HasPrefix(data, cbDrop):
		if _, ok := b.pending.take(strings.TrimPrefix(data, cbDrop), cb.From.ID); !ok {
			b.answer(cb, "This link has expired. Please send it again.")
			return
		}
		b.answer(cb, "")
		b.edit(chatID, msgID, "✅ Download cancelled.", nil)

	case strings.HasPrefix(data, cbCancel):
		if b.cancelRun(strings.TrimPrefix(data, cbCancel)) {
			b.answer(cb, "Cancelling...")
		} else {
			b.answer(cb, "Nothing to cancel.")
		}

	case strings.HasPrefix(data, cbPref):
		b.setPreference(ctx, cb, strings.TrimPrefix(data, cbPref))

	default:
		b.answer(cb, "")
	}
}

// execute runs one request and keeps the status message msgID up to date.
func (b *Bot) execute(ctx context.Context, chatID int64, msgID int, from *tgbotapi.User, url string, kind domain.Kind, hint domain.QualityHint) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	token := newToken()
	b.track(token, cancel)
	defer b.untrack(token)

	cancelMarkup := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("✖ Cancel", cbCancel+token),
	))

	if !b.sem.TryAcquire(1) {
		b.edit(chatID, msgID, "🕒 All download slots are busy, you're in the queue...", &cancelMarkup)
		if err := b.sem.Acquire(runCtx, 1); err != nil {
			b.edit(chatID, msgID, resultText(domain.Result{Kind: domain.ResultFailed, Reason: domain.ReasonCancelled}), nil)
			return
		}
	}
	defer b.sem.Release(1)

	req := domain.NewRequest(url, kind, hint, platformID(from))
	b.logger.Printf("[REQ %s] %s requested %s (quality %q) from chat %d", req.ID, platformID(from), strings.ToLower(string(kind)), hint, chatID)

	for ev := range b.runner.Submit(runCtx, req) {
		if ev.Progress != nil {
			if text := progressText(*ev.Progress, kind); text != "" {
				b.edit(chatID, msgID, text, &cancelMarkup)
			}
			continue
		}
		if ev.Result != nil {
			b.finish(chatID, msgID, from, url, kind, *ev.Result)
		}
	}
}

func (b *Bot) finish(chatID int64, msgID int, from *tgbotapi.User, url string, kind domain.Kind, res domain.Result) {
	if res.Kind == domain.ResultDelivered && res.Artifact != nil {
		defer func() {
			if err := res.Artifact.Release(); err != nil {
				b.logger.Printf("WARN: failed to release %s: %v", res.Artifact.Path, err)
			}
		}()
		b.edit(chatID, msgID, fmt.Sprintf("✅ Sending your %s...", kindNoun(kind)), nil)
		if _, err := b.out.Send(mediaMessage(chatID, kind, res)); err != nil {
			b.logger.Printf("ERROR: failed to send %s: %v", res.Artifact.Path, err)
			b.edit(chatID, msgID, "❌ Failed to upload the file: "+domain.Excerpt(err.Error()), nil)
			return
		}
		b.edit(chatID, msgID, deliveredText(res), nil)
		return
	}

	if res.OfferAlternateKind {
		token := b.pending.put(url, from.ID)
		markup := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🎵 Audio instead", cbAudio+token),
		))
		b.edit(chatID, msgID, resultText(res), &markup)
		return
	}
	b.edit(chatID, msgID, resultText(res), nil)
}

func mediaMessage(chatID int64, kind domain.Kind, res domain.Result) tgbotapi.Chattable {
	title := ""
	if res.Metadata != nil {
		title = res.Metadata.Title
	}
	file := tgbotapi.FilePath(res.Artifact.Path)
	if kind == domain.KindAudio {
		audio := tgbotapi.NewAudio(chatID, file)
		audio.Title = title
		if res.Metadata != nil {
			audio.Duration = res.Metadata.DurationSeconds
		}
		return audio
	}
	video := tgbotapi.NewVideo(chatID, file)
	video.Caption = "🎬 " + title
	video.SupportsStreaming = true
	if res.Metadata != nil {
		video.Duration = res.Metadata.DurationSeconds
	}
	return video
}

func (b *Bot) cmdStart(ctx context.Context, msg *tgbotapi.Message) {
	_, err := b.dir.Register(ctx, domain.User{
		PlatformID:   platformID(msg.From),
		Username:     msg.From.UserName,
		FirstName:    msg.From.FirstName,
		LastName:     msg.From.LastName,
		LanguageCode: msg.From.LanguageCode,
	})
	if err != nil {
		b.logger.Printf("ERROR: failed to register user %d: %v", msg.From.ID, err)
	}
	b.reply(msg, welcomeText, nil)
}

func (b *Bot) cmdStats(ctx context.Context, msg *tgbotapi.Message) {
	id := platformID(msg.From)
	u, err := b.dir.GetUser(ctx, id)
	if err != nil {
		b.reply(msg, "You have no downloads yet. Send me a link to get started!", nil)
		return
	}
	st, err := b.dir.UserStats(ctx, id)
	if err != nil {
		b.logger.Printf("ERROR: failed to load stats for %s: %v", id, err)
		b.reply(msg, "❌ Failed to retrieve your statistics. Please try again later.", nil)
		return
	}
	b.reply(msg, statsText(u, st, time.Now()), nil)
}

func (b *Bot) cmdSettings(ctx context.Context, msg *tgbotapi.Message) {
	var current domain.Kind
	if u, err := b.dir.GetUser(ctx, platformID(msg.From)); err == nil {
		current = u.PreferredKind
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🎬 Video", cbPref+"video"),
		tgbotapi.NewInlineKeyboardButtonData("🎵 Audio", cbPref+"audio"),
		tgbotapi.NewInlineKeyboardButtonData("❓ Ask", cbPref+"ask"),
	))
	b.reply(msg, settingsText(current), &markup)
}

func (b *Bot) setPreference(ctx context.Context, cb *tgbotapi.CallbackQuery, choice string) {
	var kind domain.Kind
	if choice != "ask" {
		k, err := domain.ParseKind(choice)
		if err != nil {
			b.answer(cb, "Unknown option.")
			return
		}
		kind = k
	}

	id := platformID(cb.From)
	if _, err := b.dir.GetUser(ctx, id); err != nil {
		if _, err := b.dir.Register(ctx, domain.User{PlatformID: id, Username: cb.From.UserName, FirstName: cb.From.FirstName}); err != nil {
			b.logger.Printf("ERROR: failed to register user %s: %v", id, err)
			b.answer(cb, "Failed to save, please try again.")
			return
		}
	}
	if err := b.dir.SetPreferredKind(ctx, id, kind); err != nil {
		b.logger.Printf("ERROR: failed to save preference for %s: %v", id, err)
		b.answer(cb, "Failed to save, please try again.")
		return
	}
	b.answer(cb, "Saved!")
	b.edit(cb.Message.Chat.ID, cb.Message.MessageID, settingsText(kind), nil)
}

// allow applies the per-user token bucket. Idle buckets are dropped
// after limiterTTL.
func (b *Bot) allow(userID int64) bool {
	now := b.now()

	b.mu.Lock()
	if now.Sub(b.lastPrune) >= limiterTTL {
		for id, l := range b.limiters {
			if now.Sub(l.seen) >= b.idleAfter() {
				delete(b.limiters, id)
			}
		}
		b.lastPrune = now
	}
	l, ok := b.limiters[userID]
	if !ok {
		l = &userLimiter{lim: rate.NewLimiter(b.every, b.burst)}
		b.limiters[userID] = l
	}
	l.seen = now
	b.mu.Unlock()

	return l.lim.AllowN(now, 1)
}

// idleAfter is how long a bucket must sit unused before dropping it is
// indistinguishable from keeping it: at least a full refill.
func (b *Bot) idleAfter() time.Duration {
	refill := time.Duration(float64(b.burst) / float64(b.every) * float64(time.Second))
	return max(refill, limiterTTL)
}

func (b *Bot) track(token string, cancel context.CancelFunc) {
	b.mu.Lock()
	b.running[token] = cancel
	b.mu.Unlock()
}

func (b *Bot) untrack(token string) {
	b.mu.Lock()
	delete(b.running, token)
	b.mu.Unlock()
}

func (b *Bot) cancelRun(token string) bool {
	b.mu.Lock()
	cancel, ok := b.running[token]
	b.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (b *Bot) reply(msg *tgbotapi.Message, text string, markup *tgbotapi.InlineKeyboardMarkup) (tgbotapi.Message, error) {
	m := tgbotapi.NewMessage(msg.Chat.ID, text)
	m.ReplyToMessageID = msg.MessageID
	m.ParseMode = tgbotapi.ModeHTML
	m.DisableWebPagePreview = true
	if markup != nil {
		m.ReplyMarkup = *markup
	}
	sent, err := b.out.Send(m)
	if err != nil {
		b.logger.Printf("ERROR: failed to send message to chat %d: %v", msg.Chat.ID, err)
	}
	return sent, err
}

func (b *Bot) edit(chatID int64, msgID int, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	var e tgbotapi.EditMessageTextConfig
	if markup != nil {
		e = tgbotapi.NewEditMessageTextAndMarkup(chatID, msgID, text, *markup)
	} else {
		e = tgbotapi.NewEditMessageText(chatID, msgID, text)
	}
	e.ParseMode = tgbotapi.ModeHTML
	e.DisableWebPagePreview = true
	if _, err := b.out.Send(e); err != nil && !strings.Contains(err.Error(), "message is not modified") {
		b.logger.Printf("WARN: failed to edit message %d in chat %d: %v", msgID, chatID, err)
	}
}

func (b *Bot) answer(cb *tgbotapi.CallbackQuery, text string) {
	if _, err := b.out.Request(tgbotapi.NewCallback(cb.ID, text)); err != nil {
		b.logger.Printf("WARN: failed to answer callback: %v", err)
	}
}

func platformID(u *tgbotapi.User) string {
	return strconv.FormatInt(u.ID, 10)
}
