// Package postgres implements the tracker stores on PostgreSQL via pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Varn22/pixel-time-tracker/internal/domain"
	platformevents "github.com/Varn22/pixel-time-tracker/pkg/platform/events"
)

const uniqueViolation = "23505"

// validID guards uuid columns; malformed IDs behave like missing rows instead of SQL errors.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides Postgres-backed persistence for users, activities, unlocks and outbox
// events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `user_id::text, telegram_id, username, first_name, last_name, experience, level,
        theme, notifications, daily_goal_minutes, break_reminder_minutes, created_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.TelegramID, &u.Username, &u.FirstName, &u.LastName,
		&u.Progress.Experience, &u.Progress.Level,
		&u.Settings.Theme, &u.Settings.Notifications, &u.Settings.DailyGoalMinutes, &u.Settings.BreakReminderMinutes,
		&u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts the user unless the Telegram ID is already registered, in which case the
// stored user is returned with existed set.
func (r *Repository) CreateUser(ctx context.Context, user domain.User) (*domain.User, bool, error) {
	const stmt = `INSERT INTO users (user_id, telegram_id, username, first_name, last_name, experience, level,
        theme, notifications, daily_goal_minutes, break_reminder_minutes, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$12)
        ON CONFLICT (telegram_id) DO NOTHING`

	tag, err := r.pool.Exec(ctx, stmt,
		user.ID, user.TelegramID, user.Username, user.FirstName, user.LastName,
		user.Progress.Experience, user.Progress.Level,
		user.Settings.Theme, user.Settings.Notifications, user.Settings.DailyGoalMinutes, user.Settings.BreakReminderMinutes,
		user.CreatedAt,
	)
	if err != nil {
		return nil, false, err
	}
	if tag.RowsAffected() == 1 {
		return &user, false, nil
	}
	existing, err := r.GetUserByTelegramID(ctx, user.TelegramID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("user with telegram_id %d vanished after conflict", user.TelegramID)
	}
	return existing, true, nil
}

// GetUser returns nil when no user matches.
func (r *Repository) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	if !validID(userID) {
		return nil, nil
	}
	user, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = $1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return user, err
}

// GetUserByTelegramID returns nil when no user matches.
func (r *Repository) GetUserByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE telegram_id = $1`, telegramID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return user, err
}

// UpdateSettings overwrites the user's settings.
func (r *Repository) UpdateSettings(ctx context.Context, userID string, s domain.Settings) error {
	if !validID(userID) {
		return domain.ErrUserNotFound
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET theme=$2, notifications=$3, daily_goal_minutes=$4, break_reminder_minutes=$5, updated_at=NOW()
         WHERE user_id = $1`,
		userID, s.Theme, s.Notifications, s.DailyGoalMinutes, s.BreakReminderMinutes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

const activityColumns = `activity_id::text, user_id::text, name, category, started_at, ended_at, duration_seconds`

func scanActivity(row pgx.Row) (domain.ActivityRecord, error) {
	var rec domain.ActivityRecord
	err := row.Scan(&rec.ID, &rec.UserID, &rec.Name, &rec.Category, &rec.StartedAt, &rec.EndedAt, &rec.DurationSeconds)
	return rec, err
}

func inProgress(ctx context.Context, q querier, userID string) (*domain.ActivityRecord, error) {
	rec, err := scanActivity(q.QueryRow(ctx,
		`SELECT `+activityColumns+` FROM activities WHERE user_id = $1 AND ended_at IS NULL`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// InProgressActivity returns the running activity or nil.
func (r *Repository) InProgressActivity(ctx context.Context, userID string) (*domain.ActivityRecord, error) {
	if !validID(userID) {
		return nil, nil
	}
	return inProgress(ctx, r.pool, userID)
}

// ListByUser returns activities for a user ordered by start time, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.ActivityRecord, *domain.Cursor, error) {
	if !validID(userID) {
		return nil, nil, nil
	}
	args := []any{userID, limit}
	query := `SELECT ` + activityColumns + ` FROM activities WHERE user_id = $1`
	if cursor != nil {
		query += ` AND (started_at, activity_id::text) < ($3, $4)`
		args = append(args, cursor.StartedAt, cursor.ID)
	}
	query += ` ORDER BY started_at DESC, activity_id::text DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	results := make([]domain.ActivityRecord, 0, limit)
	for rows.Next() {
		rec, err := scanActivity(rows)
		if err != nil {
			return nil, nil, err
		}
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if limit > 0 && len(results) == limit {
		last := results[len(results)-1]
		next = &domain.Cursor{StartedAt: last.StartedAt, ID: last.ID}
	}
	return results, next, nil
}

// CompletedBetween returns completed activities whose end falls in [from, to].
func (r *Repository) CompletedBetween(ctx context.Context, userID string, from, to time.Time) ([]domain.ActivityRecord, error) {
	if !validID(userID) {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+activityColumns+` FROM activities
         WHERE user_id = $1 AND ended_at IS NOT NULL AND ended_at >= $2 AND ended_at <= $3
         ORDER BY ended_at`, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ActivityRecord
	for rows.Next() {
		rec, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// TopActivities sums durations per activity name over all time.
func (r *Repository) TopActivities(ctx context.Context, userID string, limit int) ([]domain.NamedTotal, error) {
	if !validID(userID) {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT name, SUM(duration_seconds)::bigint AS total FROM activities
         WHERE user_id = $1 AND ended_at IS NOT NULL
         GROUP BY name ORDER BY total DESC, name LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.NamedTotal, 0, limit)
	for rows.Next() {
		var t domain.NamedTotal
		if err := rows.Scan(&t.Name, &t.Seconds); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ActivityStats aggregates completed activities, optionally only those ended since the given
// time.
func (r *Repository) ActivityStats(ctx context.Context, userID string, since *time.Time) (domain.ActivityStats, error) {
	if !validID(userID) {
		return domain.ActivityStats{}, nil
	}
	return activityStats(ctx, r.pool, userID, since)
}

func activityStats(ctx context.Context, q querier, userID string, since *time.Time) (domain.ActivityStats, error) {
	var stats domain.ActivityStats
	err := q.QueryRow(ctx,
		`SELECT COALESCE(SUM(duration_seconds), 0)::bigint, COUNT(*), COUNT(DISTINCT lower(btrim(name)))
         FROM activities
         WHERE user_id = $1 AND ended_at IS NOT NULL AND ($2::timestamptz IS NULL OR ended_at >= $2)`,
		userID, since,
	).Scan(&stats.TotalDurationSeconds, &stats.TotalActivityCount, &stats.DistinctActivityKinds)
	if err != nil {
		return domain.ActivityStats{}, err
	}

	rows, err := q.Query(ctx,
		`SELECT ended_at FROM activities
         WHERE user_id = $1 AND ended_at IS NOT NULL AND ($2::timestamptz IS NULL OR ended_at >= $2)
         ORDER BY ended_at DESC, activity_id::text DESC LIMIT $3`,
		userID, since, domain.RecentDatesWindow)
	if err != nil {
		return domain.ActivityStats{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var ended time.Time
		if err := rows.Scan(&ended); err != nil {
			return domain.ActivityStats{}, err
		}
		stats.RecentActivityDates = append(stats.RecentActivityDates, domain.CalendarDate(ended))
	}
	return stats, rows.Err()
}

// ListUnlocks returns the user's unlocks in unlock order.
func (r *Repository) ListUnlocks(ctx context.Context, userID string) ([]domain.AchievementUnlock, error) {
	if !validID(userID) {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT user_id::text, code, unlocked_at FROM achievement_unlocks WHERE user_id = $1 ORDER BY unlocked_at, code`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AchievementUnlock
	for rows.Next() {
		var u domain.AchievementUnlock
		if err := rows.Scan(&u.UserID, &u.Code, &u.UnlockedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// WithUserTx locks the user row with SELECT ... FOR UPDATE and runs fn inside the transaction.
// Concurrent callers for the same user, in this or any other process, queue on the row lock.
func (r *Repository) WithUserTx(ctx context.Context, userID string, fn func(tx domain.ProgressTx) error) (err error) {
	if !validID(userID) {
		return domain.ErrUserNotFound
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	user, err := scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = $1 FOR UPDATE`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrUserNotFound
	}
	if err != nil {
		return err
	}

	if err = fn(&progressTx{tx: tx, user: *user}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type progressTx struct {
	tx   pgx.Tx
	user domain.User
}

func (p *progressTx) User() domain.User { return p.user }

func (p *progressTx) ActivityStats(ctx context.Context) (domain.ActivityStats, error) {
	return activityStats(ctx, p.tx, p.user.ID, nil)
}

func (p *progressTx) UnlockedCodes(ctx context.Context) (map[string]struct{}, error) {
	rows, err := p.tx.Query(ctx, `SELECT code FROM achievement_unlocks WHERE user_id = $1`, p.user.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		out[code] = struct{}{}
	}
	return out, rows.Err()
}

func (p *progressTx) InProgressActivity(ctx context.Context) (*domain.ActivityRecord, error) {
	return inProgress(ctx, p.tx, p.user.ID)
}

func (p *progressTx) InsertActivity(ctx context.Context, rec domain.ActivityRecord) error {
	_, err := p.tx.Exec(ctx,
		`INSERT INTO activities (activity_id, user_id, name, category, started_at, ended_at, duration_seconds)
         VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		rec.ID, rec.UserID, rec.Name, rec.Category, rec.StartedAt, rec.EndedAt, rec.DurationSeconds)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == "activities_one_in_progress" {
		return domain.ErrActivityInProgress
	}
	return err
}

func (p *progressTx) FinishActivity(ctx context.Context, activityID string, endedAt time.Time, durationSeconds int64) error {
	tag, err := p.tx.Exec(ctx,
		`UPDATE activities SET ended_at = $3, duration_seconds = $4
         WHERE activity_id = $1 AND user_id = $2 AND ended_at IS NULL`,
		activityID, p.user.ID, endedAt, durationSeconds)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrActivityNotFound
	}
	return nil
}

func (p *progressTx) SaveProgress(ctx context.Context, progress domain.UserProgress) error {
	_, err := p.tx.Exec(ctx,
		`UPDATE users SET experience = $2, level = $3, updated_at = NOW() WHERE user_id = $1`,
		p.user.ID, progress.Experience, progress.Level)
	if err == nil {
		p.user.Progress = progress
	}
	return err
}

func (p *progressTx) InsertUnlock(ctx context.Context, unlock domain.AchievementUnlock) (bool, error) {
	tag, err := p.tx.Exec(ctx,
		`INSERT INTO achievement_unlocks (user_id, code, unlocked_at) VALUES ($1,$2,$3)
         ON CONFLICT (user_id, code) DO NOTHING`,
		unlock.UserID, unlock.Code, unlock.UnlockedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (p *progressTx) RecordEvent(ctx context.Context, event domain.Event) error {
	return insertOutbox(ctx, p.tx, event)
}

func insertOutbox(ctx context.Context, q querier, event domain.Event) error {
	body, err := json.Marshal(event.Payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[event.Type]
	if !ok {
		return fmt.Errorf("unknown event type: %s", event.Type)
	}

	const stmt = `INSERT INTO outbox (user_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (dedupe_key) DO NOTHING`

	_, err = q.Exec(ctx, stmt,
		event.UserID,
		meta.AggregateType,
		event.AggregateID,
		event.Type,
		meta.Topic,
		meta.SchemaSubject,
		event.UserID,
		body,
		nullIfEmpty(event.DedupeKey),
	)
	return err
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// EventMetadata describes how to route an outbox event. All events of a user share a partition
// key so consumers see them in order.
type EventMetadata struct {
	AggregateType string
	Topic         string
	SchemaSubject string
}

var eventCatalog = map[string]EventMetadata{
	platformevents.TypeActivityCompleted: {
		AggregateType: "activity",
		Topic:         "activity_events",
		SchemaSubject: "activity_events-value",
	},
	platformevents.TypeLevelUp: {
		AggregateType: "user",
		Topic:         "progress_events",
		SchemaSubject: "progress_events-value",
	},
	platformevents.TypeAchievementUnlocked: {
		AggregateType: "user",
		Topic:         "achievement_events",
		SchemaSubject: "achievement_events-value",
	},
}

var (
	_ domain.Repository = (*Repository)(nil)
	_ domain.ProgressTx = (*progressTx)(nil)
)
