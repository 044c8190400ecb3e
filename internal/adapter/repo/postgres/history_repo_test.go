package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verihuman/verihuman-api/internal/adapter/repo/postgres"
	"github.com/verihuman/verihuman-api/internal/domain"
)

func TestHistoryRepo_CreateFillsIDAndTimestamp(t *testing.T) {
	pool := &poolStub{}
	repo := postgres.NewHistoryRepo(pool)

	id, err := repo.Create(context.Background(), domain.HistoryEntry{
		Kind:   domain.HistoryHumanize,
		Input:  "in",
		Output: "out",
		Path:   "enhance",
	})
	require.NoError(t, err)
	_, perr := uuid.Parse(id)
	assert.NoError(t, perr)

	assert.Contains(t, pool.lastSQL, "INSERT INTO history")
	require.Len(t, pool.lastArgs, 6)
	assert.Equal(t, id, pool.lastArgs[0])
	assert.Equal(t, "humanize", pool.lastArgs[1])
	assert.Equal(t, "enhance", pool.lastArgs[4])
	assert.False(t, pool.lastArgs[5].(time.Time).IsZero())
}

func TestHistoryRepo_CreateKeepsGivenID(t *testing.T) {
	repo := postgres.NewHistoryRepo(&poolStub{})
	id, err := repo.Create(context.Background(), domain.HistoryEntry{ID: "fixed", Kind: domain.HistoryChat})
	require.NoError(t, err)
	assert.Equal(t, "fixed", id)
}

func TestHistoryRepo_CreateError(t *testing.T) {
	repo := postgres.NewHistoryRepo(&poolStub{execErr: errors.New("db down")})
	_, err := repo.Create(context.Background(), domain.HistoryEntry{Kind: domain.HistoryChat})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=history.create")
}

func TestHistoryRepo_List(t *testing.T) {
	now := time.Now().UTC()
	rows := &rowsStub{data: [][]any{
		{"id-2", "detect", "doc", "AI_ONLY: yes", "", now},
		{"id-1", "detect", "doc0", "HUMAN_ONLY: no", "", now.Add(-time.Minute)},
	}}
	pool := &poolStub{rows: rows}
	repo := postgres.NewHistoryRepo(pool)

	got, err := repo.List(context.Background(), domain.HistoryDetect, 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "id-2", got[0].ID)
	assert.Equal(t, domain.HistoryDetect, got[0].Kind)
	assert.Equal(t, now, got[0].CreatedAt)
	assert.Equal(t, []any{"detect", 5}, pool.lastArgs)
	assert.True(t, rows.closed)
}

func TestHistoryRepo_ListEmptyIsNonNil(t *testing.T) {
	got, err := postgres.NewHistoryRepo(&poolStub{}).List(context.Background(), "", 20)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestHistoryRepo_ListErrors(t *testing.T) {
	_, err := postgres.NewHistoryRepo(&poolStub{queryErr: errors.New("boom")}).List(context.Background(), "", 1)
	assert.Error(t, err)

	bad := &rowsStub{data: [][]any{{"x"}}, scanErr: errors.New("scan")}
	_, err = postgres.NewHistoryRepo(&poolStub{rows: bad}).List(context.Background(), "", 1)
	assert.Error(t, err)

	late := &rowsStub{err: errors.New("conn reset")}
	_, err = postgres.NewHistoryRepo(&poolStub{rows: late}).List(context.Background(), "", 1)
	assert.Error(t, err)
}

func TestHistoryRepo_Migrate(t *testing.T) {
	pool := &poolStub{}
	require.NoError(t, postgres.NewHistoryRepo(pool).Migrate(context.Background()))
	assert.Contains(t, pool.lastSQL, "CREATE TABLE IF NOT EXISTS history")

	err := postgres.NewHistoryRepo(&poolStub{execErr: errors.New("denied")}).Migrate(context.Background())
	assert.Error(t, err)
}

func TestHistoryRepo_DeleteOlderThan(t *testing.T) {
	pool := &poolStub{execTag: pgconn.NewCommandTag("DELETE 7")}
	n, err := postgres.NewHistoryRepo(pool).DeleteOlderThan(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}

func TestCleanupService_RemovesExpiredHistory(t *testing.T) {
	pool := &poolStub{execTag: pgconn.NewCommandTag("DELETE 3")}
	svc := postgres.NewCleanupService(postgres.NewHistoryRepo(pool), 0)
	assert.Equal(t, 90, svc.RetentionDays)

	require.NoError(t, svc.CleanupOldData(context.Background()))
	assert.Contains(t, pool.lastSQL, "DELETE FROM history")
	cutoff := pool.lastArgs[0].(time.Time)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, -90), cutoff, time.Minute)
}

func TestCleanupService_RunPeriodicStopsOnCancel(t *testing.T) {
	pool := &poolStub{execTag: pgconn.NewCommandTag("DELETE 0")}
	svc := postgres.NewCleanupService(postgres.NewHistoryRepo(pool), 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.RunPeriodic(ctx, time.Hour)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunPeriodic did not stop")
	}
}
