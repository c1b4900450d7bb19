package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Varn22/pixel-time-tracker/internal/observability"
)

// CompletionResult reports what a completion changed.
type CompletionResult struct {
	XPEarned   int
	Experience int
	Level      int
	// NewLevel is set only when the level increased.
	NewLevel             *int
	UnlockedAchievements []AchievementDefinition
}

// UnlockedCodes lists the codes of the achievements unlocked by this completion.
func (r *CompletionResult) UnlockedCodes() []string {
	if r == nil {
		return nil
	}
	codes := make([]string, 0, len(r.UnlockedAchievements))
	for _, def := range r.UnlockedAchievements {
		codes = append(codes, def.Code)
	}
	return codes
}

// Engine applies experience, levels and achievements. All mutations of a user run one at a
// time: an in-process keyed lock orders local callers and ProgressStore.WithUserTx holds the
// store-level lock.
type Engine struct {
	store   ProgressStore
	rules   Rules
	catalog *Catalog
	locks   *userLocks
	now     func() time.Time
	logger  *zap.Logger
}

// EngineOption customises an Engine.
type EngineOption func(*Engine)

// WithClock overrides the engine clock.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithEngineLogger sets the engine logger.
func WithEngineLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine constructs an Engine. A nil catalog selects the default catalog.
func NewEngine(store ProgressStore, rules Rules, catalog *Catalog, opts ...EngineOption) *Engine {
	if catalog == nil {
		catalog = DefaultCatalog(DefaultThresholds())
	}
	e := &Engine{
		store:   store,
		rules:   rules,
		catalog: catalog,
		locks:   newUserLocks(),
		now:     func() time.Time { return time.Now().UTC() },
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rules returns the accrual rules in effect.
func (e *Engine) Rules() Rules { return e.rules }

// Catalog returns the achievement catalog in effect.
func (e *Engine) Catalog() *Catalog { return e.catalog }

// OnActivityCompleted applies durationSeconds of finished activity to the user. The activity
// itself must already be stored. Either every effect commits or none does.
func (e *Engine) OnActivityCompleted(ctx context.Context, userID string, durationSeconds int64) (*CompletionResult, error) {
	if err := ValidateDuration(durationSeconds); err != nil {
		return nil, err
	}
	var result *CompletionResult
	err := e.withUser(ctx, userID, func(tx ProgressTx) error {
		var err error
		result, err = e.apply(ctx, tx, nil, durationSeconds)
		return err
	})
	if err != nil {
		e.failed(userID, err)
		return nil, err
	}
	e.record(userID, result)
	return result, nil
}

// StartActivity opens a new activity for the user.
func (e *Engine) StartActivity(ctx context.Context, userID string, input StartActivityInput) (*ActivityRecord, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, &ValidationError{Field: "name", Reason: "required"}
	}
	at := input.At
	if at.IsZero() {
		at = e.now()
	}
	record := ActivityRecord{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		Category:  strings.TrimSpace(input.Category),
		StartedAt: at.UTC(),
	}
	err := e.withUser(ctx, userID, func(tx ProgressTx) error {
		running, err := tx.InProgressActivity(ctx)
		if err != nil {
			return err
		}
		if running != nil {
			return ErrActivityInProgress
		}
		return tx.InsertActivity(ctx, record)
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("activity started",
		zap.String("user_id", userID),
		zap.String("activity_id", record.ID),
		zap.String("name", record.Name))
	return &record, nil
}

// StopActivity finishes the user's running activity at the given time and applies the
// completion in the same transaction.
func (e *Engine) StopActivity(ctx context.Context, userID string, at time.Time) (*ActivityRecord, *CompletionResult, error) {
	if at.IsZero() {
		at = e.now()
	}
	at = at.UTC()
	var (
		stopped *ActivityRecord
		result  *CompletionResult
	)
	err := e.withUser(ctx, userID, func(tx ProgressTx) error {
		running, err := tx.InProgressActivity(ctx)
		if err != nil {
			return err
		}
		if running == nil {
			return ErrNoActivityInProgress
		}
		duration := max(int64(at.Sub(running.StartedAt)/time.Second), 0)
		if err := ValidateDuration(duration); err != nil {
			return err
		}
		if err := tx.FinishActivity(ctx, running.ID, at, duration); err != nil {
			return err
		}
		running.EndedAt = &at
		running.DurationSeconds = duration
		stopped = running

		result, err = e.apply(ctx, tx, running, duration)
		return err
	})
	if err != nil {
		e.failed(userID, err)
		return nil, nil, err
	}
	e.record(userID, result)
	return stopped, result, nil
}

// LogActivity stores an already finished activity and applies its completion.
func (e *Engine) LogActivity(ctx context.Context, userID string, input LogActivityInput) (*ActivityRecord, *CompletionResult, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, nil, &ValidationError{Field: "name", Reason: "required"}
	}
	if err := ValidateDuration(input.DurationSeconds); err != nil {
		return nil, nil, err
	}
	ended := input.EndedAt
	if ended.IsZero() {
		ended = e.now()
	}
	ended = ended.UTC()
	record := ActivityRecord{
		ID:              uuid.NewString(),
		UserID:          userID,
		Name:            name,
		Category:        strings.TrimSpace(input.Category),
		StartedAt:       ended.Add(-time.Duration(input.DurationSeconds) * time.Second),
		EndedAt:         &ended,
		DurationSeconds: input.DurationSeconds,
	}
	var result *CompletionResult
	err := e.withUser(ctx, userID, func(tx ProgressTx) error {
		if err := tx.InsertActivity(ctx, record); err != nil {
			return err
		}
		var err error
		result, err = e.apply(ctx, tx, &record, input.DurationSeconds)
		return err
	})
	if err != nil {
		e.failed(userID, err)
		return nil, nil, err
	}
	e.record(userID, result)
	return &record, result, nil
}

func (e *Engine) withUser(ctx context.Context, userID string, fn func(tx ProgressTx) error) error {
	if strings.TrimSpace(userID) == "" {
		return &ValidationError{Field: "user_id", Reason: "required"}
	}
	unlock := e.locks.lock(userID)
	defer unlock()
	return e.store.WithUserTx(ctx, userID, fn)
}

// apply runs accrual and achievement evaluation against the locked user state.
func (e *Engine) apply(ctx context.Context, tx ProgressTx, record *ActivityRecord, durationSeconds int64) (*CompletionResult, error) {
	user := tx.User()
	now := e.now()

	progress, levelUp := e.rules.Accrue(user.Progress, durationSeconds)
	result := &CompletionResult{
		XPEarned:   XPForDuration(durationSeconds),
		Experience: progress.Experience,
		Level:      progress.Level,
	}
	if progress != user.Progress {
		if err := tx.SaveProgress(ctx, progress); err != nil {
			return nil, fmt.Errorf("save progress: %w", err)
		}
	}

	if err := tx.RecordEvent(ctx, completedEvent(user, record, durationSeconds, result.XPEarned, progress, now)); err != nil {
		return nil, fmt.Errorf("record completion event: %w", err)
	}
	if levelUp != nil {
		level := levelUp.NewLevel
		result.NewLevel = &level
		if err := tx.RecordEvent(ctx, levelUpEvent(user, *levelUp, progress.Experience, now)); err != nil {
			return nil, fmt.Errorf("record level up event: %w", err)
		}
	}

	stats, err := tx.ActivityStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("activity stats: %w", err)
	}
	unlocked, err := tx.UnlockedCodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("unlocked achievements: %w", err)
	}
	for _, def := range e.catalog.Evaluate(unlocked, stats) {
		inserted, err := tx.InsertUnlock(ctx, AchievementUnlock{UserID: user.ID, Code: def.Code, UnlockedAt: now})
		if err != nil {
			return nil, fmt.Errorf("unlock %s: %w", def.Code, err)
		}
		if !inserted {
			continue
		}
		result.UnlockedAchievements = append(result.UnlockedAchievements, def)
		if err := tx.RecordEvent(ctx, achievementEvent(user, def, now)); err != nil {
			return nil, fmt.Errorf("record achievement event: %w", err)
		}
	}
	return result, nil
}

func (e *Engine) record(userID string, result *CompletionResult) {
	if result == nil {
		return
	}
	observability.RecordCompletion(e.now(), result.XPEarned, result.NewLevel != nil, result.UnlockedCodes())
	e.logger.Info("completion applied",
		zap.String("user_id", userID),
		zap.Int("xp_earned", result.XPEarned),
		zap.Int("level", result.Level),
		zap.Bool("level_up", result.NewLevel != nil),
		zap.Strings("unlocked", result.UnlockedCodes()))
}

func (e *Engine) failed(userID string, err error) {
	observability.RecordCompletionFailed()
	e.logger.Warn("completion rolled back", zap.String("user_id", userID), zap.Error(err))
}
