package usecase

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/verihuman/verihuman-api/internal/domain"
	obsctx "github.com/verihuman/verihuman-api/internal/observability"
)

// DetectService classifies documents through the detection provider, with an
// optional result cache in front of it.
type DetectService struct {
	Detector domain.Detector
	Cache    domain.DetectionCache
	History  HistoryRecorder
}

// NewDetectService constructs a DetectService. cache may be nil.
func NewDetectService(d domain.Detector, cache domain.DetectionCache, history HistoryRecorder) DetectService {
	return DetectService{Detector: d, Cache: cache, History: history}
}

// Detect returns the detection result for document and whether it was served from cache.
func (s DetectService) Detect(ctx domain.Context, document string) (domain.DetectionResult, bool, error) {
	text := strings.TrimSpace(document)
	if text == "" {
		return domain.DetectionResult{}, false, fmt.Errorf("%w: Empty text provided", domain.ErrInvalidArgument)
	}
	ctx = obsctx.WithOperation(ctx, "detect")
	lg := obsctx.LoggerFromContext(ctx)

	if s.Cache != nil {
		res, ok, err := s.Cache.Get(ctx, text)
		if err != nil {
			lg.Warn("detect cache get failed", slog.Any("error", err))
		} else if ok {
			res.Document = text
			return res, true, nil
		}
	}

	if s.Detector == nil {
		return domain.DetectionResult{}, false, fmt.Errorf("%w: detector", domain.ErrNotConfigured)
	}
	res, err := s.Detector.Detect(ctx, text)
	if err != nil {
		return domain.DetectionResult{}, false, fmt.Errorf("op=detect: %w", err)
	}
	res.Document = text

	if s.Cache != nil {
		if err := s.Cache.Set(ctx, text, res); err != nil {
			lg.Warn("detect cache set failed", slog.Any("error", err))
		}
	}
	lg.Info("detect completed",
		slog.String("classification", res.DocumentClassification),
		slog.Int("sentences", res.TextStats.TotalSentences),
		slog.Int("highlighted", res.TextStats.HighlightedAsAI))
	s.History.Record(ctx, domain.HistoryEntry{
		Kind:   domain.HistoryDetect,
		Input:  text,
		Output: res.DocumentClassification + ": " + res.Explanation,
	})
	return res, false, nil
}
