package postgres

import (
	"context"
	"log/slog"
	"time"
)

// CleanupService handles history retention.
type CleanupService struct {
	Repo          *HistoryRepo
	RetentionDays int
	now           func() time.Time
}

// NewCleanupService creates a new cleanup service. retentionDays <= 0 means 90.
func NewCleanupService(repo *HistoryRepo, retentionDays int) *CleanupService {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	return &CleanupService{Repo: repo, RetentionDays: retentionDays, now: time.Now}
}

// CleanupOldData removes history older than the retention period.
func (s *CleanupService) CleanupOldData(ctx context.Context) error {
	cutoff := s.now().AddDate(0, 0, -s.RetentionDays)
	deleted, err := s.Repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}
	slog.Info("history cleanup completed",
		slog.Int64("deleted_entries", deleted),
		slog.Time("cutoff", cutoff),
	)
	return nil
}

// RunPeriodic runs the cleanup immediately and then every interval until ctx is done.
func (s *CleanupService) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := s.CleanupOldData(ctx); err != nil {
		slog.Error("initial cleanup failed", slog.Any("error", err))
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup service stopping")
			return
		case <-ticker.C:
			if err := s.CleanupOldData(ctx); err != nil {
				slog.Error("periodic cleanup failed", slog.Any("error", err))
			}
		}
	}
}
