// Package openaichat implements domain.ChatClient with the official OpenAI SDK.
package openaichat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/verihuman/verihuman-api/internal/adapter/observability"
	"github.com/verihuman/verihuman-api/internal/domain"
	obsctx "github.com/verihuman/verihuman-api/internal/observability"
)

const provider = "openai"

// Config holds configuration for the chat client.
type Config struct {
	APIKey     string
	BaseURL    string        // optional
	Timeout    time.Duration // HTTP timeout
	MaxRetries int           // SDK transport retries
	HTTPClient *http.Client  // optional (tests)
}

// Client sends single-turn chat completions.
type Client struct {
	client openai.Client
}

// New creates a chat client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		transport := otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return fmt.Sprintf("OpenAI %s %s", r.Method, r.URL.Path)
			}),
		)
		httpClient = &http.Client{Timeout: cfg.Timeout, Transport: transport}
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Client{client: openai.NewClient(opts...)}
}

// Complete sends prompt as a single user message and extracts the reply.
func (c *Client) Complete(ctx context.Context, model, prompt string, maxTokens int) (domain.ChatPayload, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	}
	if maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(maxTokens))
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		err = mapError(err)
		observability.ObserveUpstream(provider, "chat", outcome(err), time.Since(start))
		obsctx.LoggerFromContext(ctx).Warn("chat completion failed", "model", model, "error", err)
		return domain.ChatPayload{}, err
	}
	observability.ObserveUpstream(provider, "chat", "ok", time.Since(start))
	return toPayload(resp), nil
}

// toPayload classifies a completion: trimmed content is a success, empty
// content with a stop reason is incomplete, anything else is unrecognized.
func toPayload(resp *openai.ChatCompletion) domain.ChatPayload {
	if resp == nil {
		return domain.ChatPayload{Kind: domain.ReplyUnrecognized}
	}
	out := domain.ChatPayload{Kind: domain.ReplyUnrecognized, Model: resp.Model}
	if resp.Usage.TotalTokens > 0 {
		out.Usage = &domain.TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		}
	}
	if len(resp.Choices) == 0 {
		return out
	}
	choice := resp.Choices[0]
	if text := strings.TrimSpace(choice.Message.Content); text != "" {
		out.Kind = domain.ReplySuccess
		out.Text = text
		return out
	}
	switch reason := string(choice.FinishReason); reason {
	case "length", "content_filter":
		out.Kind = domain.ReplyIncomplete
		out.Reason = reason
	case "":
	default:
		if refusal := strings.TrimSpace(choice.Message.Refusal); refusal != "" {
			out.Kind = domain.ReplyIncomplete
			out.Reason = "refusal"
		}
	}
	return out
}

func mapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%w: openai status 429: %s", domain.ErrUpstreamRateLimit, apiErr.Message)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("%w: openai status %d: %s", domain.ErrUpstream, apiErr.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("%w: openai status %d", domain.ErrUpstream, apiErr.StatusCode)
	}
	var t interface{ Timeout() bool }
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &t) && t.Timeout()) {
		return fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrUpstream, err)
}

func outcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrUpstreamRateLimit):
		return "rate_limited"
	case errors.Is(err, domain.ErrUpstreamTimeout):
		return "timeout"
	default:
		return "error"
	}
}
