package ratelimiter

import (
	"context"
	"fmt"

	"github.com/verihuman/verihuman-api/internal/domain"
	obsctx "github.com/verihuman/verihuman-api/internal/observability"
)

// Bucket keys for the upstream providers.
const (
	KeyDetector  = "upstream:gptzero"
	KeyHumanizer = "upstream:humanizer"
	KeyChat      = "upstream:openai"
)

// QuotaError reports a denied upstream call. It matches domain.ErrUpstreamRateLimit.
type QuotaError struct {
	Key        string
	RetryAfter string
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("quota exceeded for %s, retry after %s", e.Key, e.RetryAfter)
}

// Unwrap lets errors.Is match domain.ErrUpstreamRateLimit.
func (e *QuotaError) Unwrap() error { return domain.ErrUpstreamRateLimit }

func check(ctx context.Context, l Limiter, key string) error {
	allowed, retryAfter, err := l.Allow(ctx, key, 1)
	if err != nil {
		obsctx.LoggerFromContext(ctx).Warn("upstream quota check failed, allowing", "key", key, "error", err)
		return nil
	}
	if !allowed {
		obsctx.LoggerFromContext(ctx).Warn("upstream quota exhausted", "key", key, "retry_after", retryAfter)
		return &QuotaError{Key: key, RetryAfter: retryAfter.String()}
	}
	return nil
}

// Detector guards a domain.Detector with the KeyDetector bucket.
type Detector struct {
	Next    domain.Detector
	Limiter Limiter
}

// Detect implements domain.Detector.
func (d Detector) Detect(ctx context.Context, doc string) (domain.DetectionResult, error) {
	if err := check(ctx, d.Limiter, KeyDetector); err != nil {
		return domain.DetectionResult{}, err
	}
	return d.Next.Detect(ctx, doc)
}

// Humanizer guards a domain.Humanizer with the KeyHumanizer bucket. A denied
// request surfaces as an error so the caller rewrites locally.
type Humanizer struct {
	Next    domain.Humanizer
	Limiter Limiter
}

// Humanize implements domain.Humanizer.
func (h Humanizer) Humanize(ctx context.Context, text string) (domain.HumanizerResponse, error) {
	if err := check(ctx, h.Limiter, KeyHumanizer); err != nil {
		return domain.HumanizerResponse{}, err
	}
	return h.Next.Humanize(ctx, text)
}

// ChatClient guards a domain.ChatClient with the KeyChat bucket.
type ChatClient struct {
	Next    domain.ChatClient
	Limiter Limiter
}

// Complete implements domain.ChatClient.
func (c ChatClient) Complete(ctx context.Context, model, prompt string, maxTokens int) (domain.ChatPayload, error) {
	if err := check(ctx, c.Limiter, KeyChat); err != nil {
		return domain.ChatPayload{}, err
	}
	return c.Next.Complete(ctx, model, prompt, maxTokens)
}
