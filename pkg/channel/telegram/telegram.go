package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"gembot/pkg/bus"
	"gembot/pkg/channel"
	"gembot/pkg/config"
	"gembot/pkg/relay"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

const channelName = "telegram"
const messagePreviewLimit = 240
const pollRestartBackoff = 3 * time.Second
const longPollTimeoutSeconds = 30

// Adapter bridges Telegram into the relay pipeline. It is both the intake
// loop (long polling) and the relay's transport client; both sides share
// one authenticated bot instance.
type Adapter struct {
	cfg        config.TelegramConfig
	bot        *telego.Bot
	httpClient *http.Client
	allowFrom  map[string]struct{}
	log        *slog.Logger
}

// NewAdapter validates Telegram configuration and constructs an adapter.
func NewAdapter(cfg config.TelegramConfig, log *slog.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("channels.telegram.token is required")
	}

	if log == nil {
		log = slog.Default()
	}

	var opts []telego.BotOption
	httpClient := &http.Client{}
	if proxy := strings.TrimSpace(cfg.Proxy); proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", proxy, err)
		}
		transport := &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		opts = append(opts, telego.WithHTTPClient(&http.Client{Transport: transport}))
		httpClient.Transport = transport
	}

	bot, err := telego.NewBot(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize telegram bot: %w", err)
	}

	return &Adapter{
		cfg:        cfg,
		bot:        bot,
		httpClient: httpClient,
		allowFrom:  allowFromSet(cfg.AllowFrom),
		log:        log.With("component", "channel.telegram"),
	}, nil
}

// Name returns the channel identifier used in logs.
func (a *Adapter) Name() string {
	return channelName
}

// Run starts long polling and hands every mapped event to the handler on
// its own goroutine, so slow backend calls never block intake. The loop
// restarts polling after a backoff when the update stream fails.
func (a *Adapter) Run(ctx context.Context, handler channel.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	for {
		updates, err := a.bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
			Timeout: longPollTimeoutSeconds,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			a.log.Error("Failed to start long polling, backing off", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(pollRestartBackoff):
				continue
			}
		}

		a.log.Info("Telegram channel started")

		if done := a.consumeUpdates(ctx, updates, handler); done {
			return nil
		}

		a.log.Warn("Telegram updates stream closed, restarting after backoff")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(pollRestartBackoff):
		}
	}
}

// consumeUpdates drains one polling stream. Returns true when the context
// ended and the adapter should stop for good.
func (a *Adapter) consumeUpdates(ctx context.Context, updates <-chan telego.Update, handler channel.Handler) bool {
	for {
		select {
		case <-ctx.Done():
			return true
		case update, ok := <-updates:
			if !ok {
				return ctx.Err() != nil
			}

			event, ok := MapMessage(update.Message)
			if !ok {
				continue
			}
			if !a.SenderAllowed(update.Message) {
				a.log.Debug("Ignoring message from unauthorized sender", "chat_id", event.ChatID)
				continue
			}

			a.log.Info("Received update",
				"update_id", update.UpdateID,
				"chat_id", event.ChatID,
				"preview", previewText(event.Text),
			)

			go handler(ctx, event)
		}
	}
}

// MapMessage converts one raw Telegram message into an inbound event.
// The mapping is deliberately dumb: routing decisions belong to the
// relay's classifier, not the intake.
func MapMessage(message *telego.Message) (bus.InboundEvent, bool) {
	if message == nil {
		return bus.InboundEvent{}, false
	}

	event := bus.InboundEvent{
		ChatID:  message.Chat.ID,
		Text:    message.Text,
		Caption: message.Caption,
	}

	if message.From != nil {
		event.SenderName = strings.TrimSpace(message.From.FirstName)
	}

	for _, photo := range message.Photo {
		event.Photos = append(event.Photos, bus.AttachmentRef{FileID: photo.FileID})
	}

	if message.Document != nil {
		event.Document = &bus.DocumentRef{
			FileID:   message.Document.FileID,
			MIMEType: message.Document.MimeType,
			FileName: message.Document.FileName,
		}
	}

	if message.Voice != nil || message.Audio != nil || message.Video != nil || message.VideoNote != nil {
		event.OtherMedia = true
	}

	return event, true
}

// Send creates a new message and returns its identifier.
func (a *Adapter) Send(ctx context.Context, chatID int64, text string, mode relay.RenderMode) (int, error) {
	params := tu.Message(tu.ID(chatID), text)
	params.ParseMode = parseMode(mode)

	message, err := a.bot.SendMessage(ctx, params)
	if err != nil {
		return 0, fmt.Errorf("send message: %w", err)
	}
	if message == nil || message.MessageID == 0 {
		return 0, errors.New("send returned no message id")
	}

	return message.MessageID, nil
}

// Edit replaces the content of an existing message.
func (a *Adapter) Edit(ctx context.Context, chatID int64, messageID int, text string, mode relay.RenderMode) error {
	params := tu.EditMessageText(tu.ID(chatID), messageID, text)
	params.ParseMode = parseMode(mode)

	if _, err := a.bot.EditMessageText(ctx, params); err != nil {
		return fmt.Errorf("edit message: %w", err)
	}

	return nil
}

// FetchAttachment resolves a file handle to its storage path and downloads
// the bytes. Both steps fail loudly; no partial result is meaningful.
func (a *Adapter) FetchAttachment(ctx context.Context, fileID string) ([]byte, error) {
	file, err := a.bot.GetFile(ctx, &telego.GetFileParams{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("resolve attachment: %w", err)
	}
	if file == nil || file.FilePath == "" {
		return nil, errors.New("attachment has no storage path")
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, a.bot.FileDownloadURL(file.FilePath), nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}

	response, err := a.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("download attachment: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download attachment: HTTP %d", response.StatusCode)
	}

	data, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("read attachment: %w", err)
	}

	return data, nil
}

func parseMode(mode relay.RenderMode) string {
	if mode == relay.RenderMarkdown {
		return telego.ModeMarkdown
	}

	return ""
}

// SenderAllowed checks whether a sender is permitted by allow_from config.
// Both intake modes consult it before dispatching a relay.
//
// When no allow list is configured, all senders are accepted.
func (a *Adapter) SenderAllowed(message *telego.Message) bool {
	if len(a.allowFrom) == 0 {
		return true
	}
	if message == nil || message.From == nil {
		return false
	}

	_, ok := a.allowFrom[strconv.FormatInt(message.From.ID, 10)]
	return ok
}

// allowFromSet normalizes allow_from values into a lookup set.
func allowFromSet(allowFrom []string) map[string]struct{} {
	if len(allowFrom) == 0 {
		return nil
	}

	allowed := make(map[string]struct{}, len(allowFrom))
	for _, value := range allowFrom {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		allowed[trimmed] = struct{}{}
	}

	if len(allowed) == 0 {
		return nil
	}

	return allowed
}

// previewText returns a bounded log-safe preview of message text, cut at
// a rune boundary so the preview stays valid UTF-8.
func previewText(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= messagePreviewLimit {
		return trimmed
	}

	cut := messagePreviewLimit
	for cut > 0 && !utf8.RuneStart(trimmed[cut]) {
		cut--
	}

	return trimmed[:cut] + "..."
}
