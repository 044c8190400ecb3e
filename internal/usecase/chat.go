package usecase

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/verihuman/verihuman-api/internal/domain"
	obsctx "github.com/verihuman/verihuman-api/internal/observability"
)

// Chat request bounds.
const (
	DefaultMaxOutputTokens = 512
	MaxOutputTokensLimit   = 4000
	verifyPrompt           = "Reply with the single word: pong"
	verifyMaxTokens        = 16
)

// TokenCounter counts prompt tokens for a model.
type TokenCounter interface {
	CountTokens(text, model string) (int, error)
}

// ChatService forwards prompts to the chat provider.
type ChatService struct {
	Client          domain.ChatClient
	Model           string
	VerifyModel     string
	APIKeySet       bool
	MaxPromptTokens int
	Tokens          TokenCounter
	History         HistoryRecorder
}

// VerifyResult is returned by Verify.
type VerifyResult struct {
	OK       bool   `json:"ok"`
	Model    string `json:"model"`
	Response string `json:"response"`
}

// Chat sends prompt and returns the assistant reply. maxTokens 0 means DefaultMaxOutputTokens.
func (s ChatService) Chat(ctx domain.Context, prompt string, maxTokens int) (domain.ChatReply, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return domain.ChatReply{}, fmt.Errorf("%w: Empty prompt", domain.ErrInvalidArgument)
	}
	if maxTokens == 0 {
		maxTokens = DefaultMaxOutputTokens
	}
	if maxTokens < 1 || maxTokens > MaxOutputTokensLimit {
		return domain.ChatReply{}, fmt.Errorf("%w: max_output_tokens must be between 1 and %d", domain.ErrInvalidArgument, MaxOutputTokensLimit)
	}
	ctx = obsctx.WithOperation(ctx, "chat", slog.String("model", s.Model))
	lg := obsctx.LoggerFromContext(ctx)

	promptTokens := -1
	if s.Tokens != nil {
		n, err := s.Tokens.CountTokens(prompt, s.Model)
		if err != nil {
			lg.Warn("prompt token count failed", slog.Any("error", err))
		} else {
			promptTokens = n
		}
	}
	if s.MaxPromptTokens > 0 && promptTokens > s.MaxPromptTokens {
		return domain.ChatReply{}, fmt.Errorf("%w: prompt is %d tokens, limit is %d", domain.ErrInvalidArgument, promptTokens, s.MaxPromptTokens)
	}

	if s.Client == nil {
		return domain.ChatReply{}, fmt.Errorf("%w: chat provider", domain.ErrNotConfigured)
	}
	payload, err := s.Client.Complete(ctx, s.Model, prompt, maxTokens)
	if err != nil {
		return domain.ChatReply{}, fmt.Errorf("op=chat.complete: %w", err)
	}
	reply, err := replyText(payload)
	if err != nil {
		return domain.ChatReply{}, err
	}

	usage := payload.Usage
	if usage == nil && s.Tokens != nil && promptTokens >= 0 {
		if n, err := s.Tokens.CountTokens(reply, s.Model); err == nil {
			usage = &domain.TokenUsage{PromptTokens: promptTokens, CompletionTokens: n, TotalTokens: promptTokens + n, Estimated: true}
		}
	}
	lg.Info("chat completed", slog.Int("reply_len", len(reply)))
	s.History.Record(ctx, domain.HistoryEntry{Kind: domain.HistoryChat, Input: prompt, Output: reply})
	model := payload.Model
	if model == "" {
		model = s.Model
	}
	return domain.ChatReply{Reply: reply, Usage: usage, Model: model}, nil
}

// Verify pings the provider with a tiny prompt to check the key and model.
func (s ChatService) Verify(ctx domain.Context) (VerifyResult, error) {
	if !s.APIKeySet {
		return VerifyResult{}, fmt.Errorf("%w: OPENAI_API_KEY not configured", domain.ErrNotConfigured)
	}
	if s.Client == nil {
		return VerifyResult{}, fmt.Errorf("%w: chat provider", domain.ErrNotConfigured)
	}
	payload, err := s.Client.Complete(ctx, s.VerifyModel, verifyPrompt, verifyMaxTokens)
	if err != nil {
		obsctx.LoggerFromContext(ctx).Error("verification call failed", slog.Any("error", err))
		return VerifyResult{}, fmt.Errorf("op=chat.verify: %w", err)
	}
	text, err := replyText(payload)
	if err != nil {
		text = "[unrecognized response]"
	}
	return VerifyResult{OK: true, Model: s.VerifyModel, Response: text}, nil
}

// replyText maps the tagged upstream payload onto the reply string.
func replyText(p domain.ChatPayload) (string, error) {
	switch p.Kind {
	case domain.ReplySuccess:
		return strings.TrimSpace(p.Text), nil
	case domain.ReplyIncomplete:
		reason := p.Reason
		if reason == "" {
			reason = "unknown reason"
		}
		return "[incomplete response: " + reason + "]", nil
	default:
		return "", fmt.Errorf("%w: no reply in chat response", domain.ErrUpstreamMalformed)
	}
}
