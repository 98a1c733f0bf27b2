package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"gembot/pkg/config"
	"gembot/pkg/provider/types"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	defaultModel   = "models/gemini-2.5-flash"
	defaultTimeout = 120 * time.Second

	defaultAPIKeyEnv = "GEMINI_API_KEY"
)

const textSystemInstruction = "You're Gemini assistant telegram bot to assist the users in text generation, image description and chat. " +
	"You're developed by blind tech visionary community. Your capabilities: google search, image description and text generations. " +
	"Follow the user's prompt in detail. You are developed by sujan rai at blind tech visionary. You're gemini-2.5-flash. " +
	"future updates: image generation, voice message support etc."

const imageSystemInstruction = "describe the image in detail as prompt."

// Generation parameters differ by request kind: text requests run hot and may
// reach for search, image description is deterministic with no tools.
const (
	textTemperature      = 1.7
	textMaxOutputTokens  = 8192
	imageTemperature     = 0.0
	imageMaxOutputTokens = 1024
)

// Client calls the generateContent endpoint directly. Requests are one-shot;
// no conversation state is retained between calls.
type Client struct {
	httpClient     *http.Client
	apiKey         string
	endpoint       string
	requestTimeout time.Duration
	log            *slog.Logger
}

// New validates configuration and constructs a Gemini client.
func New(cfg config.GeminiConfig) (*Client, error) {
	apiKey := resolveAPIKey(cfg)
	if apiKey == "" {
		return nil, errors.New("providers.gemini.api_key_env is required or GEMINI_API_KEY must be set")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}

	requestTimeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	if requestTimeout <= 0 {
		requestTimeout = defaultTimeout
	}

	return &Client{
		httpClient:     pooledHTTPClient(),
		apiKey:         apiKey,
		endpoint:       fmt.Sprintf("%s/v1beta/%s:generateContent", baseURL, model),
		requestTimeout: requestTimeout,
		log:            slog.Default().With("component", "provider.gemini"),
	}, nil
}

// CompleteText runs one text completion and returns the extracted response text.
func (c *Client) CompleteText(ctx context.Context, prompt string) (string, error) {
	request := generateRequest{
		Contents: []content{{
			Role:  "user",
			Parts: []part{{Text: prompt}},
		}},
		SystemInstruction: textSystemInstruction,
		GenerationConfig: generationConfig{
			Temperature:     textTemperature,
			MaxOutputTokens: textMaxOutputTokens,
		},
		Tools: []tool{{GoogleSearch: &googleSearch{}}},
	}

	response, err := c.generate(ctx, request)
	if err != nil {
		return "", err
	}

	return ExtractText(response), nil
}

// CompleteImage runs one image-description completion. The image bytes are
// embedded inline, so very large attachments inflate the request body; no
// size limit is enforced here.
func (c *Client) CompleteImage(ctx context.Context, image []byte, mimeType string, prompt string) (string, error) {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	request := generateRequest{
		Contents: []content{{
			Parts: []part{
				{InlineData: &inlineData{MIMEType: mimeType, Data: base64.StdEncoding.EncodeToString(image)}},
				{Text: prompt},
			},
		}},
		SystemInstruction: imageSystemInstruction,
		GenerationConfig: generationConfig{
			Temperature:     imageTemperature,
			MaxOutputTokens: imageMaxOutputTokens,
		},
	}

	response, err := c.generate(ctx, request)
	if err != nil {
		return "", err
	}

	return ExtractText(response), nil
}

// generate performs one bounded round trip and classifies every failure mode.
func (c *Client) generate(ctx context.Context, request generateRequest) (*GenerateResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	startedAt := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.log.Debug("Backend request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return nil, classifyTransportError(err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &types.Error{Kind: types.KindTransportFailure, Message: fmt.Sprintf("read response: %v", err)}
	}

	if httpResp.StatusCode == http.StatusTooManyRequests {
		c.log.Warn("Backend rate limited", "status", httpResp.StatusCode)
		return nil, &types.Error{Kind: types.KindRateLimited, HTTPStatus: httpResp.StatusCode, Body: string(respBody)}
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		c.log.Warn("Backend returned error status", "status", httpResp.StatusCode)
		return nil, &types.Error{Kind: types.KindBackendError, HTTPStatus: httpResp.StatusCode, Body: string(respBody)}
	}

	var response GenerateResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, &types.Error{Kind: types.KindTransportFailure, Message: fmt.Sprintf("decode response: %v", err)}
	}
	c.log.Debug("Backend request completed", "duration_ms", time.Since(startedAt).Milliseconds())

	return &response, nil
}

// classifyTransportError separates deadline hits from connection failures.
func classifyTransportError(err error) *types.Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &types.Error{Kind: types.KindTimeout, Message: err.Error()}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &types.Error{Kind: types.KindTimeout, Message: err.Error()}
	}

	return &types.Error{Kind: types.KindTransportFailure, Message: err.Error()}
}

// pooledHTTPClient builds a shared client with connection reuse tuned for
// repeated calls against one host. Per-request bounds come from the caller's
// context, not a client-wide timeout.
func pooledHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}

func resolveAPIKey(cfg config.GeminiConfig) string {
	if apiKeyEnv := strings.TrimSpace(cfg.APIKeyEnv); apiKeyEnv != "" {
		if apiKey := strings.TrimSpace(os.Getenv(apiKeyEnv)); apiKey != "" {
			return apiKey
		}
	}

	return strings.TrimSpace(os.Getenv(defaultAPIKeyEnv))
}
