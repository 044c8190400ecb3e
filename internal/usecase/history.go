package usecase

import (
	"fmt"
	"log/slog"

	"github.com/verihuman/verihuman-api/internal/domain"
	obsctx "github.com/verihuman/verihuman-api/internal/observability"
)

// History listing bounds.
const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// HistoryRecorder writes operation history on a best-effort basis. The zero
// value records nothing.
type HistoryRecorder struct {
	Repo domain.HistoryRepository
}

// Record stores e. Failures are logged and otherwise ignored.
func (h HistoryRecorder) Record(ctx domain.Context, e domain.HistoryEntry) {
	if h.Repo == nil {
		return
	}
	if _, err := h.Repo.Create(ctx, e); err != nil {
		obsctx.LoggerFromContext(ctx).Warn("history record failed",
			slog.String("kind", string(e.Kind)),
			slog.Any("error", err))
	}
}

// HistoryService provides read access to recorded operations.
type HistoryService struct {
	Repo domain.HistoryRepository
}

// NewHistoryService constructs a HistoryService; repo may be nil when no database is configured.
func NewHistoryService(repo domain.HistoryRepository) HistoryService {
	return HistoryService{Repo: repo}
}

// Enabled reports whether history is backed by a repository.
func (s HistoryService) Enabled() bool { return s.Repo != nil }

// List returns the most recent entries, newest first. An empty kind lists all
// kinds; limit 0 means DefaultHistoryLimit.
func (s HistoryService) List(ctx domain.Context, kind string, limit int) ([]domain.HistoryEntry, error) {
	if s.Repo == nil {
		return nil, fmt.Errorf("%w: history storage", domain.ErrNotConfigured)
	}
	k := domain.HistoryKind(kind)
	if kind != "" && !k.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidArgument, kind)
	}
	if limit == 0 {
		limit = DefaultHistoryLimit
	}
	if limit < 1 || limit > MaxHistoryLimit {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrInvalidArgument, MaxHistoryLimit)
	}
	items, err := s.Repo.List(ctx, k, limit)
	if err != nil {
		return nil, fmt.Errorf("op=history.list: %w", err)
	}
	return items, nil
}
