package relay

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"gembot/pkg/bus"
	"gembot/pkg/config"
	"gembot/pkg/provider/types"
)

// RenderMode selects how delivered text is interpreted by the platform.
type RenderMode string

const (
	RenderPlain    RenderMode = "plain"
	RenderMarkdown RenderMode = "markdown"
)

// Default per-hop bounds: short for message calls, long for attachment
// download and backend completion.
const (
	defaultSendTimeout     = 30 * time.Second
	defaultDownloadTimeout = 60 * time.Second
	defaultCompleteTimeout = 120 * time.Second
)

// Transport is the chat-platform surface one relay needs. Every operation
// is a single user-visible round trip; retry policy lives here in the
// orchestrator, never in the transport.
type Transport interface {
	Send(ctx context.Context, chatID int64, text string, mode RenderMode) (int, error)
	Edit(ctx context.Context, chatID int64, messageID int, text string, mode RenderMode) error
	FetchAttachment(ctx context.Context, fileID string) ([]byte, error)
}

// Completer is the completion backend surface one relay needs.
type Completer interface {
	CompleteText(ctx context.Context, prompt string) (string, error)
	CompleteImage(ctx context.Context, image []byte, mimeType string, prompt string) (string, error)
}

// Orchestrator turns one inbound event into a placeholder message, a
// backend call, and a final edit. Each event is fully self-contained;
// concurrent relays share nothing mutable.
type Orchestrator struct {
	transport Transport
	completer Completer
	log       *slog.Logger

	sendTimeout     time.Duration
	downloadTimeout time.Duration
	completeTimeout time.Duration
}

// New constructs an orchestrator with config-driven hop bounds.
func New(transport Transport, completer Completer, cfg config.RelayConfig, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}

	return &Orchestrator{
		transport:       transport,
		completer:       completer,
		log:             log.With("component", "relay"),
		sendTimeout:     timeoutOrDefault(cfg.SendTimeoutSeconds, defaultSendTimeout),
		downloadTimeout: timeoutOrDefault(cfg.DownloadTimeoutSeconds, defaultDownloadTimeout),
		completeTimeout: timeoutOrDefault(cfg.CompleteTimeoutSeconds, defaultCompleteTimeout),
	}
}

// HandleEvent dispatches one inbound event to exactly one handling path.
// It never returns an error: every failure is resolved inside the relay
// boundary so the intake loop keeps running.
func (o *Orchestrator) HandleEvent(ctx context.Context, event bus.InboundEvent) {
	log := o.log.With("relay_id", uuid.NewString(), "chat_id", event.ChatID)

	switch route := Classify(event); route {
	case RouteWelcome:
		o.sendTerminal(ctx, log, event.ChatID, welcomeText(event.SenderName))
	case RouteText:
		log.Info("Relaying text message", "length", len(event.Text))
		o.run(ctx, log, event.ChatID, typingPlaceholder, func(ctx context.Context) (string, error) {
			return o.completer.CompleteText(ctx, event.Text)
		})
	case RoutePhoto:
		photo, _ := event.BestPhoto()
		log.Info("Relaying photo", "file_id", photo.FileID)
		o.runImage(ctx, log, event, photo.FileID, "")
	case RouteImageDocument:
		log.Info("Relaying image document", "file_id", event.Document.FileID, "mime_type", event.Document.MIMEType)
		o.runImage(ctx, log, event, event.Document.FileID, event.Document.MIMEType)
	case RouteUnsupported:
		o.sendTerminal(ctx, log, event.ChatID, unsupportedNotice)
	case RouteIgnore:
		log.Debug("Ignoring event")
	}
}

// runImage wraps attachment resolution and the image completion into one
// work phase; a failed fetch resolves the relay like any backend failure.
func (o *Orchestrator) runImage(ctx context.Context, log *slog.Logger, event bus.InboundEvent, fileID string, mimeType string) {
	prompt := event.Caption
	if prompt == "" {
		prompt = defaultImagePrompt
	}
	if !strings.HasPrefix(strings.ToLower(mimeType), "image/") {
		mimeType = "image/jpeg"
	}

	o.run(ctx, log, event.ChatID, imagePlaceholder, func(ctx context.Context) (string, error) {
		fetchCtx, cancel := context.WithTimeout(ctx, o.downloadTimeout)
		image, err := o.transport.FetchAttachment(fetchCtx, fileID)
		cancel()
		if err != nil {
			return "", fmt.Errorf("fetch attachment: %w", err)
		}

		return o.completer.CompleteImage(ctx, image, mimeType, prompt)
	})
}

// run executes the two-phase protocol: placeholder first, then work, then
// exactly one terminal edit. A failed placeholder send abandons the relay
// silently since there is nothing left to edit.
func (o *Orchestrator) run(ctx context.Context, log *slog.Logger, chatID int64, placeholder string, work func(context.Context) (string, error)) {
	sendCtx, cancel := context.WithTimeout(ctx, o.sendTimeout)
	messageID, err := o.transport.Send(sendCtx, chatID, placeholder, RenderPlain)
	cancel()
	if err != nil {
		log.Error("Placeholder send failed, abandoning relay", "error", err)
		return
	}

	workCtx, cancel := context.WithTimeout(ctx, o.completeTimeout+o.downloadTimeout)
	text, mode := o.resolve(workCtx, log, work)
	cancel()

	o.editOnce(ctx, log, chatID, messageID, text, mode)
}

// resolve maps the work outcome to the final edit text and render mode.
// Success renders rich markup; every error path renders plain.
func (o *Orchestrator) resolve(ctx context.Context, log *slog.Logger, work func(context.Context) (string, error)) (string, RenderMode) {
	text, err := work(ctx)
	if err == nil {
		return text, RenderMarkdown
	}

	backendErr := types.Classify(err)
	log.Warn("Relay work failed", "kind", string(backendErr.Kind), "error", err)

	switch backendErr.Kind {
	case types.KindRateLimited:
		return busyText, RenderPlain
	case types.KindBackendError:
		// Raw diagnostics on purpose: the status and body tell the user
		// far more than a polite generic message would.
		return fmt.Sprintf("HTTP %d: %s", backendErr.HTTPStatus, backendErr.Body), RenderPlain
	case types.KindTimeout:
		return timeoutText, RenderPlain
	default:
		return fmt.Sprintf("An error occurred: %s", backendErr.Message), RenderPlain
	}
}

// editOnce delivers the terminal edit. A rejected markup edit is retried
// once in plain mode; after that the failure is logged and swallowed.
func (o *Orchestrator) editOnce(ctx context.Context, log *slog.Logger, chatID int64, messageID int, text string, mode RenderMode) {
	editCtx, cancel := context.WithTimeout(ctx, o.sendTimeout)
	err := o.transport.Edit(editCtx, chatID, messageID, text, mode)
	cancel()
	if err == nil {
		return
	}

	if mode == RenderMarkdown {
		log.Debug("Markup edit rejected, retrying plain", "error", err)
		editCtx, cancel = context.WithTimeout(ctx, o.sendTimeout)
		err = o.transport.Edit(editCtx, chatID, messageID, text, RenderPlain)
		cancel()
		if err == nil {
			return
		}
	}

	log.Warn("Final edit failed", "message_id", messageID, "error", err)
}

// sendTerminal sends a single plain reply for paths with no backend work.
func (o *Orchestrator) sendTerminal(ctx context.Context, log *slog.Logger, chatID int64, text string) {
	sendCtx, cancel := context.WithTimeout(ctx, o.sendTimeout)
	defer cancel()

	if _, err := o.transport.Send(sendCtx, chatID, text, RenderPlain); err != nil {
		log.Warn("Terminal reply failed", "error", err)
	}
}

func timeoutOrDefault(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}

	return time.Duration(seconds) * time.Second
}
