package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Varn22/pixel-time-tracker/internal/domain"
)

func seedUser(t *testing.T, s *Store) string {
	t.Helper()
	user, existed, err := s.CreateUser(context.Background(), domain.User{ID: "u-1", TelegramID: 77, CreatedAt: time.Now()})
	require.NoError(t, err)
	require.False(t, existed)
	return user.ID
}

func TestCreateUserIsIdempotentByTelegramID(t *testing.T) {
	s := NewStore()
	seedUser(t, s)

	again, existed, err := s.CreateUser(context.Background(), domain.User{ID: "u-2", TelegramID: 77})
	require.NoError(t, err)
	require.True(t, existed)
	require.Equal(t, "u-1", again.ID)

	missing, err := s.GetUser(context.Background(), "u-2")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestWithUserTxDiscardsStagedWritesOnError(t *testing.T) {
	s := NewStore()
	userID := seedUser(t, s)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithUserTx(ctx, userID, func(tx domain.ProgressTx) error {
		require.NoError(t, tx.SaveProgress(ctx, domain.UserProgress{Experience: 500, Level: 6}))
		_, err := tx.InsertUnlock(ctx, domain.AchievementUnlock{UserID: userID, Code: "time_master"})
		require.NoError(t, err)
		require.NoError(t, tx.RecordEvent(ctx, domain.Event{Type: "progress.level_up", DedupeKey: "k1"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	user, err := s.GetUser(ctx, userID)
	require.NoError(t, err)
	require.Zero(t, user.Progress.Experience)
	unlocks, err := s.ListUnlocks(ctx, userID)
	require.NoError(t, err)
	require.Empty(t, unlocks)
	require.Empty(t, s.Events())
}

func TestWithUserTxCommitsAndDedupesEvents(t *testing.T) {
	s := NewStore()
	userID := seedUser(t, s)
	ctx := context.Background()
	started := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	commit := func() error {
		return s.WithUserTx(ctx, userID, func(tx domain.ProgressTx) error {
			if err := tx.RecordEvent(ctx, domain.Event{Type: "achievement.unlocked", DedupeKey: "unlock:time_master"}); err != nil {
				return err
			}
			return tx.SaveProgress(ctx, domain.UserProgress{Experience: 60, Level: 1})
		})
	}
	require.NoError(t, commit())
	require.NoError(t, commit())
	require.Len(t, s.Events(), 1)

	require.NoError(t, s.WithUserTx(ctx, userID, func(tx domain.ProgressTx) error {
		require.NoError(t, tx.InsertActivity(ctx, domain.ActivityRecord{ID: "a-1", UserID: userID, Name: "Work", StartedAt: started}))
		require.ErrorIs(t, tx.InsertActivity(ctx, domain.ActivityRecord{ID: "a-2", UserID: userID, Name: "Gym", StartedAt: started}), domain.ErrActivityInProgress)
		return tx.FinishActivity(ctx, "a-1", started.Add(time.Hour), 3600)
	}))

	current, err := s.InProgressActivity(ctx, userID)
	require.NoError(t, err)
	require.Nil(t, current)

	stats, err := s.ActivityStats(ctx, userID, nil)
	require.NoError(t, err)
	require.EqualValues(t, 3600, stats.TotalDurationSeconds)
	require.EqualValues(t, 1, stats.TotalActivityCount)
}

func TestWithUserTxUnknownUser(t *testing.T) {
	err := NewStore().WithUserTx(context.Background(), "ghost", func(domain.ProgressTx) error { return nil })
	require.ErrorIs(t, err, domain.ErrUserNotFound)
}
