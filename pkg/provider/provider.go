package provider

import (
	"context"
	"fmt"
	"log/slog"

	"gembot/pkg/config"
	"gembot/pkg/provider/gemini"
	provideropenai "gembot/pkg/provider/openai"
)

// Completer is the one-shot completion surface the relay depends on.
//
// Both operations are non-conversational: no prior turns are retained
// between calls. On success the returned string is the extracted response
// text, already reduced to the fallback sentinel when the backend answered
// with a structurally empty result. On failure the error carries a
// *types.Error classifying the cause.
type Completer interface {
	CompleteText(ctx context.Context, prompt string) (string, error)
	CompleteImage(ctx context.Context, image []byte, mimeType string, prompt string) (string, error)
}

// New resolves the configured completion backend.
func New(cfg *config.Config) (Completer, error) {
	providerID := cfg.Providers.Default
	if providerID == "" {
		providerID = "gemini"
	}

	slog.Default().With("component", "provider.factory").Debug("Resolving completion backend", "provider", providerID)

	switch providerID {
	case "gemini":
		return gemini.New(cfg.Providers.Gemini)
	case "openai":
		return provideropenai.New(cfg.Providers.OpenAI)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", providerID)
	}
}
