package domain_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Varn22/pixel-time-tracker/internal/domain"
	"github.com/Varn22/pixel-time-tracker/internal/persistence/memory"
	platformevents "github.com/Varn22/pixel-time-tracker/pkg/platform/events"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newEngine(t *testing.T) (*domain.Engine, *memory.Store, domain.User) {
	t.Helper()
	store := memory.NewStore()
	user := seedUser(t, store, 1001)
	engine := domain.NewEngine(store, domain.DefaultRules(), nil, domain.WithClock(func() time.Time { return fixedNow }))
	return engine, store, user
}

func seedUser(t *testing.T, store *memory.Store, telegramID int64) domain.User {
	t.Helper()
	user := domain.User{
		ID:         fmt.Sprintf("user-%d", telegramID),
		TelegramID: telegramID,
		Username:   "pixel",
		Progress:   domain.NewUserProgress(),
		Settings:   domain.DefaultSettings(),
		CreatedAt:  fixedNow,
	}
	_, _, err := store.CreateUser(context.Background(), user)
	require.NoError(t, err)
	return user
}

func eventTypes(events []domain.Event) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Type)
	}
	return out
}

func TestOnActivityCompletedAccruesExperience(t *testing.T) {
	engine, store, user := newEngine(t)
	ctx := context.Background()

	result, err := engine.OnActivityCompleted(ctx, user.ID, 125)
	require.NoError(t, err)
	require.Equal(t, 2, result.XPEarned)
	require.Nil(t, result.NewLevel)
	require.Empty(t, result.UnlockedAchievements)

	stored, err := store.GetUser(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, domain.UserProgress{Experience: 2, Level: 1}, stored.Progress)
	require.Equal(t, []string{platformevents.TypeActivityCompleted}, eventTypes(store.Events()))
}

func TestOnActivityCompletedZeroDurationLeavesProgress(t *testing.T) {
	engine, store, user := newEngine(t)
	ctx := context.Background()

	result, err := engine.OnActivityCompleted(ctx, user.ID, 0)
	require.NoError(t, err)
	require.Zero(t, result.XPEarned)

	stored, _ := store.GetUser(ctx, user.ID)
	require.Equal(t, domain.NewUserProgress(), stored.Progress)
}

func TestOnActivityCompletedRejectsNegativeDuration(t *testing.T) {
	engine, store, user := newEngine(t)

	_, err := engine.OnActivityCompleted(context.Background(), user.ID, -1)
	require.ErrorIs(t, err, domain.ErrInvalidDuration)
	require.Empty(t, store.Events())
}

func TestOverlongDurationsAreRejected(t *testing.T) {
	engine, store, user := newEngine(t)
	ctx := context.Background()

	_, err := engine.OnActivityCompleted(ctx, user.ID, domain.MaxDurationSeconds+1)
	require.ErrorIs(t, err, domain.ErrInvalidDuration)

	_, _, err = engine.LogActivity(ctx, user.ID, domain.LogActivityInput{Name: "Sleep", DurationSeconds: 20_000_000_000})
	require.ErrorIs(t, err, domain.ErrInvalidDuration)

	stored, err := store.GetUser(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, domain.NewUserProgress(), stored.Progress)
	require.Empty(t, store.Events())

	record, _, err := engine.LogActivity(ctx, user.ID, domain.LogActivityInput{Name: "Sleep", DurationSeconds: domain.MaxDurationSeconds})
	require.NoError(t, err)
	require.Equal(t, time.Duration(domain.MaxDurationSeconds)*time.Second, record.EndedAt.Sub(record.StartedAt))
	require.True(t, record.StartedAt.Before(fixedNow.AddDate(-68, 0, 0)))
}

func TestOnActivityCompletedUnknownUser(t *testing.T) {
	engine, _, _ := newEngine(t)

	_, err := engine.OnActivityCompleted(context.Background(), "missing", 60)
	require.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestLevelUpEventCarriesRecipient(t *testing.T) {
	engine, store, user := newEngine(t)

	result, err := engine.OnActivityCompleted(context.Background(), user.ID, 100*60)
	require.NoError(t, err)
	require.NotNil(t, result.NewLevel)
	require.Equal(t, 2, *result.NewLevel)

	var levelUp *platformevents.LevelUp
	for _, ev := range store.Events() {
		if payload, ok := ev.Payload.(platformevents.LevelUp); ok {
			levelUp = &payload
		}
	}
	require.NotNil(t, levelUp)
	require.Equal(t, 1, levelUp.PreviousLevel)
	require.Equal(t, 2, levelUp.NewLevel)
	require.Equal(t, user.TelegramID, levelUp.TelegramID)
	require.True(t, levelUp.Notifications)
}

func TestConcurrentCompletionsDoNotLoseUpdates(t *testing.T) {
	engine, store, user := newEngine(t)
	ctx := context.Background()

	const workers = 50
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, err := engine.OnActivityCompleted(ctx, user.ID, 60)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := store.GetUser(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, workers, stored.Progress.Experience)
	require.Equal(t, domain.ComputeLevel(workers, domain.DefaultXPPerLevel), stored.Progress.Level)
}

func TestStartStopActivityUnlocksAchievementOnce(t *testing.T) {
	engine, store, user := newEngine(t)
	ctx := context.Background()
	start := fixedNow.Add(-2 * time.Hour)

	_, err := engine.StartActivity(ctx, user.ID, domain.StartActivityInput{Name: "Coding", Category: "Работа", At: start})
	require.NoError(t, err)

	_, err = engine.StartActivity(ctx, user.ID, domain.StartActivityInput{Name: "Reading", At: start})
	require.ErrorIs(t, err, domain.ErrActivityInProgress)

	stopped, result, err := engine.StopActivity(ctx, user.ID, start.Add(61*time.Minute))
	require.NoError(t, err)
	require.EqualValues(t, 61*60, stopped.DurationSeconds)
	require.Equal(t, 61, result.XPEarned)
	require.Len(t, result.UnlockedAchievements, 1)
	require.Equal(t, domain.AchievementTimeMaster, result.UnlockedAchievements[0].Code)

	_, _, err = engine.StopActivity(ctx, user.ID, fixedNow)
	require.ErrorIs(t, err, domain.ErrNoActivityInProgress)

	_, result, err = engine.LogActivity(ctx, user.ID, domain.LogActivityInput{Name: "Walk", DurationSeconds: 60, EndedAt: fixedNow})
	require.NoError(t, err)
	require.Empty(t, result.UnlockedAchievements)

	unlocks, err := store.ListUnlocks(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, unlocks, 1)
}

func TestRegularTrackerAcrossDays(t *testing.T) {
	engine, _, user := newEngine(t)
	ctx := context.Background()

	var unlocked []string
	for day := 4; day >= 0; day-- {
		_, result, err := engine.LogActivity(ctx, user.ID, domain.LogActivityInput{
			Name:            "Practice",
			DurationSeconds: 60,
			EndedAt:         fixedNow.AddDate(0, 0, -day),
		})
		require.NoError(t, err)
		unlocked = append(unlocked, result.UnlockedCodes()...)
	}
	require.Equal(t, []string{domain.AchievementRegularTracker}, unlocked)
}

type failingStore struct {
	*memory.Store
	failOn string
}

func (s failingStore) WithUserTx(ctx context.Context, userID string, fn func(tx domain.ProgressTx) error) error {
	return s.Store.WithUserTx(ctx, userID, func(tx domain.ProgressTx) error {
		return fn(failingTx{ProgressTx: tx, failOn: s.failOn})
	})
}

type failingTx struct {
	domain.ProgressTx
	failOn string
}

var errBoom = errors.New("boom")

func (t failingTx) InsertUnlock(ctx context.Context, u domain.AchievementUnlock) (bool, error) {
	if t.failOn == "unlock" {
		return false, errBoom
	}
	return t.ProgressTx.InsertUnlock(ctx, u)
}

func TestCompletionIsAtomic(t *testing.T) {
	store := memory.NewStore()
	user := seedUser(t, store, 2002)
	engine := domain.NewEngine(failingStore{Store: store, failOn: "unlock"}, domain.DefaultRules(), nil)
	ctx := context.Background()

	_, _, err := engine.LogActivity(ctx, user.ID, domain.LogActivityInput{Name: "Deep work", DurationSeconds: 3600})
	require.ErrorIs(t, err, errBoom)

	stored, err := store.GetUser(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, domain.NewUserProgress(), stored.Progress)
	require.Empty(t, store.Events())

	records, _, err := store.ListByUser(ctx, user.ID, nil, 10)
	require.NoError(t, err)
	require.Empty(t, records)
}
