package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/verihuman/verihuman-api/internal/domain"
	obsctx "github.com/verihuman/verihuman-api/internal/observability"
)

// DefaultHumanizeTimeout bounds the single outbound call to the external humanizer.
const DefaultHumanizeTimeout = 30 * time.Second

// maxFallbackReserve caps the time kept back from the caller's deadline for
// the local rewrite and the response write.
const maxFallbackReserve = 500 * time.Millisecond

// HumanizeService runs the humanization pipeline: one call to the external
// humanizer, a similarity check on its answer, and a local rewrite whenever
// the answer is rejected or the call fails. It never returns an error.
type HumanizeService struct {
	Upstream domain.Humanizer
	Judge    SimilarityJudge
	Rewriter LocalRewriter
	Timeout  time.Duration
	History  HistoryRecorder
}

// NewHumanizeService constructs a HumanizeService. A zero HistoryRecorder disables recording.
func NewHumanizeService(upstream domain.Humanizer, judge SimilarityJudge, rewriter LocalRewriter, timeout time.Duration, history HistoryRecorder) HumanizeService {
	if timeout <= 0 {
		timeout = DefaultHumanizeTimeout
	}
	return HumanizeService{Upstream: upstream, Judge: judge, Rewriter: rewriter, Timeout: timeout, History: history}
}

// Humanize returns a non-empty rewrite of text.
func (s HumanizeService) Humanize(ctx domain.Context, text string) domain.RewriteOutcome {
	ctx = obsctx.WithOperation(ctx, "humanize")
	lg := obsctx.LoggerFromContext(ctx)
	out := s.decide(ctx, text)
	if out.HumanizedText == "" {
		out.HumanizedText = text
	}
	lg.Info("humanize completed",
		slog.String("path", string(out.Path)),
		slog.Int("input_len", len(text)),
		slog.Int("output_len", len(out.HumanizedText)))
	s.History.Record(ctx, domain.HistoryEntry{
		Kind:   domain.HistoryHumanize,
		Input:  text,
		Output: out.HumanizedText,
		Path:   string(out.Path),
	})
	return out
}

func (s HumanizeService) decide(ctx domain.Context, text string) domain.RewriteOutcome {
	resp, err := s.callExternal(ctx, text)
	if err != nil {
		obsctx.LoggerFromContext(ctx).Warn("humanizer unreachable, using local humanizer", slog.Any("error", err))
		return domain.RewriteOutcome{HumanizedText: s.Rewriter.Rewrite(text), Path: domain.PathFallback}
	}
	if resp.Succeeded() && !s.Judge.TooSimilar(text, resp.Text) {
		return domain.RewriteOutcome{HumanizedText: resp.Text, Path: domain.PathAccept}
	}
	source := resp.Text
	if source == "" {
		source = text
	}
	obsctx.LoggerFromContext(ctx).Info("humanizer result rejected, enhancing locally",
		slog.Int("status", resp.StatusCode),
		slog.Bool("empty", resp.Text == ""))
	return domain.RewriteOutcome{HumanizedText: s.Rewriter.Rewrite(source), Path: domain.PathEnhance}
}

func (s HumanizeService) callExternal(ctx domain.Context, text string) (domain.HumanizerResponse, error) {
	if s.Upstream == nil {
		return domain.HumanizerResponse{}, domain.ErrNotConfigured
	}
	timeout := upstreamBudget(ctx, s.Timeout)
	if timeout <= 0 {
		return domain.HumanizerResponse{}, domain.ErrUpstreamTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.Upstream.Humanize(cctx, text)
}

// upstreamBudget is the earlier of timeout and the caller's deadline minus a
// reserve, so the fallback can still answer before the request deadline.
func upstreamBudget(ctx context.Context, timeout time.Duration) time.Duration {
	if timeout <= 0 {
		timeout = DefaultHumanizeTimeout
	}
	dl, ok := ctx.Deadline()
	if !ok {
		return timeout
	}
	remaining := time.Until(dl)
	reserve := remaining / 5
	if reserve > maxFallbackReserve {
		reserve = maxFallbackReserve
	}
	if left := remaining - reserve; left < timeout {
		return left
	}
	return timeout
}
