//go:build integration

package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Varn22/pixel-time-tracker/internal/domain"
	"github.com/Varn22/pixel-time-tracker/internal/testsupport"
)

func seedUser(t *testing.T, ctx context.Context, repo *Repository, telegramID int64) domain.User {
	t.Helper()
	user := domain.User{
		ID:         uuid.NewString(),
		TelegramID: telegramID,
		Username:   "pixel",
		Progress:   domain.NewUserProgress(),
		Settings:   domain.DefaultSettings(),
		CreatedAt:  time.Now().UTC(),
	}
	stored, existed, err := repo.CreateUser(ctx, user)
	require.NoError(t, err)
	require.False(t, existed)
	return *stored
}

func TestRepositoryUserLifecycle(t *testing.T) {
	ctx := context.Background()
	pool, _ := testsupport.StartPostgres(ctx, t)
	repo := NewRepository(pool)

	user := seedUser(t, ctx, repo, 555)

	again, existed, err := repo.CreateUser(ctx, domain.User{ID: uuid.NewString(), TelegramID: 555, Settings: domain.DefaultSettings(), Progress: domain.NewUserProgress()})
	require.NoError(t, err)
	require.True(t, existed)
	require.Equal(t, user.ID, again.ID)

	settings := user.Settings
	settings.Theme = domain.ThemeDark
	require.NoError(t, repo.UpdateSettings(ctx, user.ID, settings))

	stored, err := repo.GetUser(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ThemeDark, stored.Settings.Theme)

	missing, err := repo.GetUser(ctx, "not-a-uuid")
	require.NoError(t, err)
	require.Nil(t, missing)
	require.ErrorIs(t, repo.UpdateSettings(ctx, uuid.NewString(), settings), domain.ErrUserNotFound)
}

func TestEngineOnPostgresSerializesPerUser(t *testing.T) {
	ctx := context.Background()
	pool, _ := testsupport.StartPostgres(ctx, t)
	repo := NewRepository(pool)
	user := seedUser(t, ctx, repo, 777)

	// two engines stand in for two API replicas: only the row lock orders them
	replicas := []*domain.Engine{
		domain.NewEngine(repo, domain.DefaultRules(), nil),
		domain.NewEngine(repo, domain.DefaultRules(), nil),
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(engine *domain.Engine) {
			defer wg.Done()
			_, err := engine.OnActivityCompleted(ctx, user.ID, 60)
			if err != nil {
				t.Error(err)
			}
		}(replicas[i%2])
	}
	wg.Wait()

	stored, err := repo.GetUser(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, 20, stored.Progress.Experience)

	var outboxRows int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE user_id = $1`, user.ID).Scan(&outboxRows))
	require.Equal(t, 20, outboxRows)
}

func TestActivityFlowUnlocksAndStats(t *testing.T) {
	ctx := context.Background()
	pool, _ := testsupport.StartPostgres(ctx, t)
	repo := NewRepository(pool)
	user := seedUser(t, ctx, repo, 888)
	engine := domain.NewEngine(repo, domain.DefaultRules(), nil)
	now := time.Now().UTC()

	_, err := engine.StartActivity(ctx, user.ID, domain.StartActivityInput{Name: "Coding", Category: "Работа", At: now.Add(-time.Hour)})
	require.NoError(t, err)
	_, err = engine.StartActivity(ctx, user.ID, domain.StartActivityInput{Name: "Gym", At: now})
	require.ErrorIs(t, err, domain.ErrActivityInProgress)

	running, err := repo.InProgressActivity(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, running)

	stopped, result, err := engine.StopActivity(ctx, user.ID, now)
	require.NoError(t, err)
	require.Equal(t, running.ID, stopped.ID)
	require.Equal(t, 60, result.XPEarned)
	require.Equal(t, []string{domain.AchievementTimeMaster}, result.UnlockedCodes())

	_, result, err = engine.LogActivity(ctx, user.ID, domain.LogActivityInput{Name: " coding ", DurationSeconds: 120, EndedAt: now})
	require.NoError(t, err)
	require.Empty(t, result.UnlockedAchievements)

	stats, err := repo.ActivityStats(ctx, user.ID, nil)
	require.NoError(t, err)
	require.EqualValues(t, 3720, stats.TotalDurationSeconds)
	require.Equal(t, 2, stats.TotalActivityCount)
	require.Equal(t, 1, stats.DistinctActivityKinds)
	require.Len(t, stats.RecentActivityDates, 2)

	unlocks, err := repo.ListUnlocks(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, unlocks, 1)

	top, err := repo.TopActivities(ctx, user.ID, 5)
	require.NoError(t, err)
	require.Equal(t, "Coding", top[0].Name)

	page, next, err := repo.ListByUser(ctx, user.ID, nil, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.NotNil(t, next)
	rest, _, err := repo.ListByUser(ctx, user.ID, next, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.NotEqual(t, page[0].ID, rest[0].ID)
}
