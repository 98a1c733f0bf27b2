package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gembot/pkg/config"
	"gembot/pkg/provider/types"

	osdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	defaultModel   = "gpt-4o-mini"
	defaultTimeout = 120 * time.Second

	defaultAPIKeyEnv = "OPENAI_API_KEY"
)

const systemInstruction = "You are a helpful assistant for a Telegram relay bot. " +
	"Answer the user's prompt directly; describe attached images in detail."

// Client is the OpenAI-compatible alternate backend. It keeps the same
// one-shot contract as the native Gemini client: no conversation state,
// text extracted (or a fallback sentinel) on success, tagged errors on
// failure.
type Client struct {
	client         osdk.Client
	model          string
	requestTimeout time.Duration
}

// New validates configuration and constructs a client.
func New(cfg config.OpenAIConfig) (*Client, error) {
	apiKey := resolveAPIKey(cfg)
	if apiKey == "" {
		return nil, errors.New("providers.openai.api_key_env is required or OPENAI_API_KEY must be set")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	requestTimeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	if requestTimeout <= 0 {
		requestTimeout = defaultTimeout
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}

	return &Client{
		client:         osdk.NewClient(opts...),
		model:          model,
		requestTimeout: requestTimeout,
	}, nil
}

// CompleteText runs one text completion.
func (c *Client) CompleteText(ctx context.Context, prompt string) (string, error) {
	return c.complete(ctx, "complete_text", []osdk.ChatCompletionMessageParamUnion{
		osdk.SystemMessage(systemInstruction),
		osdk.UserMessage(prompt),
	})
}

// CompleteImage runs one image-description completion with the image bytes
// inlined as a data URL.
func (c *Client) CompleteImage(ctx context.Context, image []byte, mimeType string, prompt string) (string, error) {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(image))
	parts := []osdk.ChatCompletionContentPartUnionParam{
		{OfImageURL: &osdk.ChatCompletionContentPartImageParam{
			ImageURL: osdk.ChatCompletionContentPartImageImageURLParam{URL: dataURL},
		}},
		{OfText: &osdk.ChatCompletionContentPartTextParam{Text: prompt}},
	}

	return c.complete(ctx, "complete_image", []osdk.ChatCompletionMessageParamUnion{
		osdk.SystemMessage(systemInstruction),
		{OfUser: &osdk.ChatCompletionUserMessageParam{
			Content: osdk.ChatCompletionUserMessageParamContentUnion{OfArrayOfContentParts: parts},
		}},
	})
}

func (c *Client) complete(ctx context.Context, operation string, messages []osdk.ChatCompletionMessageParamUnion) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	log := providerLogger().With("operation", operation)
	startedAt := time.Now()
	log.Debug("Backend request started", "model", c.model)

	completion, err := c.client.Chat.Completions.New(ctx, osdk.ChatCompletionNewParams{
		Model:    osdk.ChatModel(c.model),
		Messages: messages,
	})
	if err != nil {
		log.Debug("Backend request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return "", classifyError(err)
	}
	log.Debug("Backend request completed", "duration_ms", time.Since(startedAt).Milliseconds())

	return extractText(completion), nil
}

// extractText mirrors the native backend's formatter contract: first choice,
// fallback sentinel on any structural gap, never an error.
func extractText(completion *osdk.ChatCompletion) string {
	if completion == nil || len(completion.Choices) == 0 {
		return "No response available"
	}

	if content := completion.Choices[0].Message.Content; content != "" {
		return content
	}

	return "No response available"
}

// classifyError maps SDK failures onto the shared backend error kinds.
func classifyError(err error) *types.Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &types.Error{Kind: types.KindTimeout, Message: err.Error()}
	}

	var apiErr *osdk.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 429 {
			return &types.Error{Kind: types.KindRateLimited, HTTPStatus: apiErr.StatusCode, Body: apiErr.Error()}
		}
		return &types.Error{Kind: types.KindBackendError, HTTPStatus: apiErr.StatusCode, Body: apiErr.Error()}
	}

	return &types.Error{Kind: types.KindTransportFailure, Message: err.Error()}
}

func providerLogger() *slog.Logger {
	return slog.Default().With("component", "provider.openai")
}

func resolveAPIKey(cfg config.OpenAIConfig) string {
	if apiKeyEnv := strings.TrimSpace(cfg.APIKeyEnv); apiKeyEnv != "" {
		if apiKey := strings.TrimSpace(os.Getenv(apiKeyEnv)); apiKey != "" {
			return apiKey
		}
	}

	return strings.TrimSpace(os.Getenv(defaultAPIKeyEnv))
}
