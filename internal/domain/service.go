// Package domain holds the gamification engine and the activity workflows around it.
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Varn22/pixel-time-tracker/internal/observability"
)

// Service orchestrates user, activity and progress workflows for the API and CLI.
type Service struct {
	repo   Repository
	engine *Engine
	cache  StatsCache
	logger *zap.Logger
	now    func() time.Time
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithStatsCache enables caching of stats summaries.
func WithStatsCache(cache StatsCache) ServiceOption {
	return func(s *Service) {
		if cache != nil {
			s.cache = cache
		}
	}
}

// WithServiceLogger sets the service logger.
func WithServiceLogger(logger *zap.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithServiceClock overrides the service clock.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs a Service.
func NewService(repo Repository, engine *Engine, opts ...ServiceOption) *Service {
	s := &Service{
		repo:   repo,
		engine: engine,
		logger: zap.NewNop(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Rules returns the progression rules the engine applies.
func (s *Service) Rules() Rules { return s.engine.Rules() }

// RegisterUser creates a user for the Telegram identity, or returns the existing one.
// The boolean reports whether the user already existed.
func (s *Service) RegisterUser(ctx context.Context, input RegisterUserInput) (*User, bool, error) {
	if input.TelegramID <= 0 {
		return nil, false, &ValidationError{Field: "telegram_id", Reason: "must be positive"}
	}
	if existing, err := s.repo.GetUserByTelegramID(ctx, input.TelegramID); err != nil {
		return nil, false, err
	} else if existing != nil {
		return existing, true, nil
	}

	user := User{
		ID:         uuid.NewString(),
		TelegramID: input.TelegramID,
		Username:   input.Username,
		FirstName:  input.FirstName,
		LastName:   input.LastName,
		Progress:   NewUserProgress(),
		Settings:   DefaultSettings(),
		CreatedAt:  s.now(),
	}
	stored, existed, err := s.repo.CreateUser(ctx, user)
	if err != nil {
		return nil, false, err
	}
	if !existed {
		s.logger.Info("user registered", zap.String("user_id", stored.ID), zap.Int64("telegram_id", stored.TelegramID))
	}
	return stored, existed, nil
}

// GetUser fetches a user by ID.
func (s *Service) GetUser(ctx context.Context, userID string) (*User, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// GetUserByTelegramID fetches a user by Telegram ID.
func (s *Service) GetUserByTelegramID(ctx context.Context, telegramID int64) (*User, error) {
	user, err := s.repo.GetUserByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// UpdateSettings applies a partial settings update.
func (s *Service) UpdateSettings(ctx context.Context, userID string, patch SettingsPatch) (*User, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	next := patch.Apply(user.Settings)
	if err := next.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	if err := s.repo.UpdateSettings(ctx, userID, next); err != nil {
		return nil, err
	}
	user.Settings = next
	s.invalidate(ctx, userID)
	return user, nil
}

// StartActivity opens a running activity for the user.
func (s *Service) StartActivity(ctx context.Context, userID string, input StartActivityInput) (*ActivityRecord, error) {
	return s.engine.StartActivity(ctx, userID, input)
}

// StopActivity closes the running activity and applies its experience.
func (s *Service) StopActivity(ctx context.Context, userID string) (*ActivityRecord, *CompletionResult, error) {
	record, result, err := s.engine.StopActivity(ctx, userID, s.now())
	if err != nil {
		return nil, nil, err
	}
	s.invalidate(ctx, userID)
	return record, result, nil
}

// LogActivity stores a finished activity and applies its experience.
func (s *Service) LogActivity(ctx context.Context, userID string, input LogActivityInput) (*ActivityRecord, *CompletionResult, error) {
	record, result, err := s.engine.LogActivity(ctx, userID, input)
	if err != nil {
		return nil, nil, err
	}
	s.invalidate(ctx, userID)
	return record, result, nil
}

// CompleteActivity applies a completion for an activity stored elsewhere.
func (s *Service) CompleteActivity(ctx context.Context, userID string, durationSeconds int64) (*CompletionResult, error) {
	result, err := s.engine.OnActivityCompleted(ctx, userID, durationSeconds)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, userID)
	return result, nil
}

// CurrentActivity returns the running activity, or ErrNoActivityInProgress.
func (s *Service) CurrentActivity(ctx context.Context, userID string) (*ActivityRecord, error) {
	if _, err := s.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	rec, err := s.repo.InProgressActivity(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNoActivityInProgress
	}
	return rec, nil
}

// ListActivities fetches activities newest first with cursor pagination.
func (s *Service) ListActivities(ctx context.Context, userID string, cursor *Cursor, limit int) ([]ActivityRecord, *Cursor, error) {
	return s.repo.ListByUser(ctx, userID, cursor, limit)
}

// ListAchievements returns the whole catalog with the user's unlock state.
func (s *Service) ListAchievements(ctx context.Context, userID string) ([]AchievementStatus, error) {
	if _, err := s.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	unlocks, err := s.repo.ListUnlocks(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.engine.Catalog().Statuses(unlocks), nil
}

// GetActivityStats exposes the aggregate the achievement predicates see.
func (s *Service) GetActivityStats(ctx context.Context, userID string, since *time.Time) (ActivityStats, error) {
	if _, err := s.GetUser(ctx, userID); err != nil {
		return ActivityStats{}, err
	}
	return s.repo.ActivityStats(ctx, userID, since)
}

// Stats builds the stats view for the last days days. Results are served from the cache when
// one is configured.
func (s *Service) Stats(ctx context.Context, userID string, days int) (*StatsSummary, error) {
	if days <= 0 {
		days = DefaultStatsDays
	}
	if days > MaxStatsDays {
		return nil, &ValidationError{Field: "days", Reason: fmt.Sprintf("must be at most %d", MaxStatsDays)}
	}
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		var cached StatsSummary
		hit, err := s.cache.GetStats(ctx, userID, days, &cached)
		switch {
		case err != nil:
			observability.RecordStatsCache("error")
			s.logger.Warn("stats cache read failed", zap.String("user_id", userID), zap.Error(err))
		case hit && CalendarDate(cached.From.AddDate(0, 0, days-1)).Equal(CalendarDate(s.now())):
			observability.RecordStatsCache("hit")
			return &cached, nil
		default:
			observability.RecordStatsCache("miss")
		}
	}

	now := s.now()
	from := WindowStart(now, days)
	records, err := s.repo.CompletedBetween(ctx, userID, from, now)
	if err != nil {
		return nil, err
	}
	top, err := s.repo.TopActivities(ctx, userID, TopActivitiesLimit)
	if err != nil {
		return nil, err
	}

	summary := Summarize(records, days, now)
	summary.TopActivities = top
	summary.DailyGoalSeconds = int64(user.Settings.DailyGoalMinutes) * 60
	summary.DailyGoalReached = summary.DailyGoalSeconds > 0 && summary.TodaySeconds >= summary.DailyGoalSeconds
	summary.Level = s.engine.Rules().Progress(user.Progress.Experience)

	if s.cache != nil {
		if err := s.cache.SetStats(ctx, userID, days, summary); err != nil {
			s.logger.Warn("stats cache write failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return &summary, nil
}

func (s *Service) invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, userID); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("stats cache invalidation failed", zap.String("user_id", userID), zap.Error(err))
	}
}
