// Package memory provides an in-process store for local development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Varn22/pixel-time-tracker/internal/domain"
)

// Store keeps users, activities, unlocks and emitted events in memory.
type Store struct {
	mu         sync.RWMutex
	users      map[string]domain.User
	byTelegram map[int64]string
	activities map[string][]domain.ActivityRecord
	unlocks    map[string][]domain.AchievementUnlock
	events     []domain.Event
	dedupe     map[string]struct{}

	txMu    sync.Mutex
	txLocks map[string]*sync.Mutex
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		users:      make(map[string]domain.User),
		byTelegram: make(map[int64]string),
		activities: make(map[string][]domain.ActivityRecord),
		unlocks:    make(map[string][]domain.AchievementUnlock),
		dedupe:     make(map[string]struct{}),
		txLocks:    make(map[string]*sync.Mutex),
	}
}

// CreateUser implements domain.UserRepository.
func (s *Store) CreateUser(ctx context.Context, user domain.User) (*domain.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byTelegram[user.TelegramID]; ok {
		existing := s.users[id]
		return &existing, true, nil
	}
	s.users[user.ID] = user
	s.byTelegram[user.TelegramID] = user.ID
	return &user, false, nil
}

// GetUser implements domain.UserRepository. It returns nil when the user does not exist.
func (s *Store) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[userID]
	if !ok {
		return nil, nil
	}
	return &user, nil
}

// GetUserByTelegramID implements domain.UserRepository.
func (s *Store) GetUserByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byTelegram[telegramID]
	if !ok {
		return nil, nil
	}
	user := s.users[id]
	return &user, nil
}

// UpdateSettings implements domain.UserRepository.
func (s *Store) UpdateSettings(ctx context.Context, userID string, settings domain.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	user.Settings = settings
	s.users[userID] = user
	return nil
}

// InProgressActivity implements domain.ActivityRepository.
func (s *Store) InProgressActivity(ctx context.Context, userID string) (*domain.ActivityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return running(s.activities[userID]), nil
}

// ListByUser returns activities ordered by start time, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.ActivityRecord, *domain.Cursor, error) {
	s.mu.RLock()
	all := cloneRecords(s.activities[userID])
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].StartedAt.Equal(all[j].StartedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].StartedAt.After(all[j].StartedAt)
	})

	results := make([]domain.ActivityRecord, 0, limit)
	for _, rec := range all {
		if cursor != nil && !before(rec, *cursor) {
			continue
		}
		results = append(results, rec)
		if len(results) == limit {
			break
		}
	}

	var next *domain.Cursor
	if limit > 0 && len(results) == limit {
		last := results[len(results)-1]
		next = &domain.Cursor{StartedAt: last.StartedAt, ID: last.ID}
	}
	return results, next, nil
}

// CompletedBetween implements domain.ActivityRepository.
func (s *Store) CompletedBetween(ctx context.Context, userID string, from, to time.Time) ([]domain.ActivityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ActivityRecord
	for _, rec := range s.activities[userID] {
		if rec.EndedAt == nil || rec.EndedAt.Before(from) || rec.EndedAt.After(to) {
			continue
		}
		out = append(out, cloneRecord(rec))
	}
	return out, nil
}

// TopActivities implements domain.ActivityRepository.
func (s *Store) TopActivities(ctx context.Context, userID string, limit int) ([]domain.NamedTotal, error) {
	s.mu.RLock()
	totals := make(map[string]int64)
	for _, rec := range s.activities[userID] {
		if rec.EndedAt != nil {
			totals[rec.Name] += rec.DurationSeconds
		}
	}
	s.mu.RUnlock()

	out := make([]domain.NamedTotal, 0, len(totals))
	for name, secs := range totals {
		out = append(out, domain.NamedTotal{Name: name, Seconds: secs})
	}
	domain.SortTotals(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ActivityStats implements domain.ActivityRepository.
func (s *Store) ActivityStats(ctx context.Context, userID string, since *time.Time) (domain.ActivityStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.StatsFromRecords(s.activities[userID], since), nil
}

// ListUnlocks implements domain.ActivityRepository.
func (s *Store) ListUnlocks(ctx context.Context, userID string) ([]domain.AchievementUnlock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.AchievementUnlock, len(s.unlocks[userID]))
	copy(out, s.unlocks[userID])
	return out, nil
}

// Events returns the events committed so far, oldest first.
func (s *Store) Events() []domain.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Event, len(s.events))
	copy(out, s.events)
	return out
}

// WithUserTx implements domain.ProgressStore. Writes are staged on a copy of the user's state
// and published together when fn returns nil.
func (s *Store) WithUserTx(ctx context.Context, userID string, fn func(tx domain.ProgressTx) error) error {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	user, ok := s.users[userID]
	staged := &tx{
		user:       user,
		activities: cloneRecords(s.activities[userID]),
		unlocks:    append([]domain.AchievementUnlock(nil), s.unlocks[userID]...),
	}
	s.mu.RUnlock()
	if !ok {
		return domain.ErrUserNotFound
	}

	if err := fn(staged); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.users[userID]
	current.Progress = staged.user.Progress
	s.users[userID] = current
	s.activities[userID] = staged.activities
	s.unlocks[userID] = staged.unlocks
	for _, ev := range staged.events {
		if _, dup := s.dedupe[ev.DedupeKey]; dup {
			continue
		}
		s.dedupe[ev.DedupeKey] = struct{}{}
		s.events = append(s.events, ev)
	}
	return nil
}

func (s *Store) userLock(userID string) *sync.Mutex {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	m, ok := s.txLocks[userID]
	if !ok {
		m = &sync.Mutex{}
		s.txLocks[userID] = m
	}
	return m
}

type tx struct {
	user       domain.User
	activities []domain.ActivityRecord
	unlocks    []domain.AchievementUnlock
	events     []domain.Event
}

func (t *tx) User() domain.User { return t.user }

func (t *tx) ActivityStats(ctx context.Context) (domain.ActivityStats, error) {
	return domain.StatsFromRecords(t.activities, nil), nil
}

func (t *tx) UnlockedCodes(ctx context.Context) (map[string]struct{}, error) {
	out := make(map[string]struct{}, len(t.unlocks))
	for _, u := range t.unlocks {
		out[u.Code] = struct{}{}
	}
	return out, nil
}

func (t *tx) InProgressActivity(ctx context.Context) (*domain.ActivityRecord, error) {
	return running(t.activities), nil
}

func (t *tx) InsertActivity(ctx context.Context, record domain.ActivityRecord) error {
	if record.EndedAt == nil && running(t.activities) != nil {
		return domain.ErrActivityInProgress
	}
	t.activities = append(t.activities, cloneRecord(record))
	return nil
}

func (t *tx) FinishActivity(ctx context.Context, activityID string, endedAt time.Time, durationSeconds int64) error {
	for i := range t.activities {
		if t.activities[i].ID == activityID && t.activities[i].EndedAt == nil {
			ended := endedAt
			t.activities[i].EndedAt = &ended
			t.activities[i].DurationSeconds = durationSeconds
			return nil
		}
	}
	return domain.ErrActivityNotFound
}

func (t *tx) SaveProgress(ctx context.Context, progress domain.UserProgress) error {
	t.user.Progress = progress
	return nil
}

func (t *tx) InsertUnlock(ctx context.Context, unlock domain.AchievementUnlock) (bool, error) {
	for _, u := range t.unlocks {
		if u.Code == unlock.Code {
			return false, nil
		}
	}
	t.unlocks = append(t.unlocks, unlock)
	return true, nil
}

func (t *tx) RecordEvent(ctx context.Context, event domain.Event) error {
	t.events = append(t.events, event)
	return nil
}

func running(records []domain.ActivityRecord) *domain.ActivityRecord {
	for _, rec := range records {
		if rec.EndedAt == nil {
			out := cloneRecord(rec)
			return &out
		}
	}
	return nil
}

func before(rec domain.ActivityRecord, c domain.Cursor) bool {
	if rec.StartedAt.Equal(c.StartedAt) {
		return rec.ID < c.ID
	}
	return rec.StartedAt.Before(c.StartedAt)
}

func cloneRecord(rec domain.ActivityRecord) domain.ActivityRecord {
	if rec.EndedAt != nil {
		ended := *rec.EndedAt
		rec.EndedAt = &ended
	}
	return rec
}

func cloneRecords(records []domain.ActivityRecord) []domain.ActivityRecord {
	out := make([]domain.ActivityRecord, len(records))
	for i, rec := range records {
		out[i] = cloneRecord(rec)
	}
	return out
}

var (
	_ domain.Repository = (*Store)(nil)
	_ domain.ProgressTx = (*tx)(nil)
)
