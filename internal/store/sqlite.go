package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/fyrsmithlabs/pulsed/internal/feed"
	"github.com/fyrsmithlabs/pulsed/internal/stream"
)

// migrations are applied in order at open time. Version numbers are
// recorded in schema_version so re-opening an existing database is a
// no-op.
var migrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		);

		CREATE TABLE IF NOT EXISTS daily_updates (
			id                    TEXT PRIMARY KEY,
			client_id             TEXT NOT NULL,
			employee_id           TEXT NOT NULL,
			update_text           TEXT NOT NULL,
			category              TEXT NOT NULL,
			ai_suggestion         TEXT,
			is_growth_opportunity INTEGER NOT NULL DEFAULT 0,
			feedback_requested    INTEGER NOT NULL DEFAULT 0,
			approved_for_client   INTEGER NOT NULL DEFAULT 0,
			created_at            TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_daily_updates_client
			ON daily_updates(client_id, created_at);

		CREATE TABLE IF NOT EXISTS weekly_summaries (
			id                   TEXT PRIMARY KEY,
			client_id            TEXT NOT NULL,
			week_start           TIMESTAMP NOT NULL,
			week_end             TIMESTAMP NOT NULL,
			summary_text         TEXT NOT NULL,
			highlights           TEXT,
			growth_opportunities TEXT,
			generated_at         TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_weekly_summaries_client
			ON weekly_summaries(client_id, week_start);

		CREATE TABLE IF NOT EXISTS client_tasks (
			id          TEXT PRIMARY KEY,
			client_id   TEXT NOT NULL,
			title       TEXT NOT NULL,
			description TEXT,
			priority    TEXT NOT NULL,
			status      TEXT NOT NULL,
			due_date    TIMESTAMP,
			created_at  TIMESTAMP NOT NULL,
			updated_at  TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_client_tasks_client
			ON client_tasks(client_id, created_at);

		INSERT INTO schema_version (version) VALUES (1);
		`,
	},
}

// SQLiteStore implements RecordStore on a local SQLite database.
type SQLiteStore struct {
	db       *sqlx.DB
	notifier ChangeNotifier
}

// NewSQLiteStore opens (or creates) the database at dbPath, enables WAL
// mode, and applies pending migrations. notifier may be nil, in which
// case no change events are emitted (tests, offline tools).
func NewSQLiteStore(dbPath string, notifier ChangeNotifier) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// WAL keeps concurrent session reads cheap.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, notifier: notifier}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations applies any outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// notify emits a change event if a notifier is wired.
func (s *SQLiteStore) notify(entity feed.Entity, clientID, recordID string, kind stream.Kind) {
	if s.notifier != nil {
		s.notifier.RecordChanged(entity, clientID, recordID, kind)
	}
}

// ListDailyUpdates returns a client's updates newest first. ViewClient
// restricts the result to approved rows at the query layer.
func (s *SQLiteStore) ListDailyUpdates(ctx context.Context, clientID string, view View) ([]feed.DailyUpdate, error) {
	query := `
		SELECT id, client_id, employee_id, update_text, category,
		       ai_suggestion, is_growth_opportunity, feedback_requested,
		       approved_for_client, created_at
		FROM daily_updates
		WHERE client_id = ?`
	if view == ViewClient {
		query += " AND approved_for_client = 1"
	}
	query += " ORDER BY created_at DESC"

	updates := []feed.DailyUpdate{}
	if err := s.db.SelectContext(ctx, &updates, query, clientID); err != nil {
		return nil, fmt.Errorf("listing daily updates: %w", err)
	}
	return updates, nil
}

// InsertDailyUpdate persists a new update row.
func (s *SQLiteStore) InsertDailyUpdate(ctx context.Context, u feed.DailyUpdate) (feed.DailyUpdate, error) {
	if strings.TrimSpace(u.Text) == "" {
		return feed.DailyUpdate{}, fmt.Errorf("%w: update text must not be empty", ErrInvalidRecord)
	}
	if u.ClientID == "" || u.EmployeeID == "" {
		return feed.DailyUpdate{}, fmt.Errorf("%w: client and employee IDs required", ErrInvalidRecord)
	}
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.Category == "" {
		u.Category = feed.CategoryGeneral
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_updates (
			id, client_id, employee_id, update_text, category,
			ai_suggestion, is_growth_opportunity, feedback_requested,
			approved_for_client, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.ClientID, u.EmployeeID, u.Text, u.Category,
		u.AISuggestion, u.IsGrowthOpportunity, u.FeedbackRequested,
		u.ApprovedForClient, u.CreatedAt,
	)
	if err != nil {
		return feed.DailyUpdate{}, fmt.Errorf("%w: inserting daily update: %v", ErrPersistence, err)
	}

	s.notify(feed.EntityDailyUpdates, u.ClientID, u.ID, stream.KindInsert)
	return u, nil
}

// PatchDailyUpdate applies an approval patch to one update. Applying
// the same value twice is a no-op at the row level.
func (s *SQLiteStore) PatchDailyUpdate(ctx context.Context, id string, patch UpdatePatch) (feed.DailyUpdate, error) {
	if patch.ApprovedForClient == nil {
		return feed.DailyUpdate{}, ErrEmptyPatch
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE daily_updates SET approved_for_client = ? WHERE id = ?",
		*patch.ApprovedForClient, id,
	)
	if err != nil {
		return feed.DailyUpdate{}, fmt.Errorf("%w: patching daily update: %v", ErrPersistence, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return feed.DailyUpdate{}, fmt.Errorf("%w: daily update %s", ErrNotFound, id)
	}

	var u feed.DailyUpdate
	err = s.db.GetContext(ctx, &u, `
		SELECT id, client_id, employee_id, update_text, category,
		       ai_suggestion, is_growth_opportunity, feedback_requested,
		       approved_for_client, created_at
		FROM daily_updates WHERE id = ?`, id)
	if err != nil {
		return feed.DailyUpdate{}, fmt.Errorf("reading patched daily update: %w", err)
	}

	s.notify(feed.EntityDailyUpdates, u.ClientID, u.ID, stream.KindUpdate)
	return u, nil
}

// summaryRow is the flat SQLite shape of a weekly summary; the string
// lists are stored as JSON text columns.
type summaryRow struct {
	ID                  string         `db:"id"`
	ClientID            string         `db:"client_id"`
	WeekStart           time.Time      `db:"week_start"`
	WeekEnd             time.Time      `db:"week_end"`
	SummaryText         string         `db:"summary_text"`
	Highlights          sql.NullString `db:"highlights"`
	GrowthOpportunities sql.NullString `db:"growth_opportunities"`
	GeneratedAt         time.Time      `db:"generated_at"`
}

func (r summaryRow) toSummary() (feed.WeeklySummary, error) {
	out := feed.WeeklySummary{
		ID:          r.ID,
		ClientID:    r.ClientID,
		WeekStart:   r.WeekStart,
		WeekEnd:     r.WeekEnd,
		SummaryText: r.SummaryText,
		GeneratedAt: r.GeneratedAt,
	}
	if r.Highlights.Valid && r.Highlights.String != "" {
		if err := json.Unmarshal([]byte(r.Highlights.String), &out.Highlights); err != nil {
			return out, fmt.Errorf("decoding highlights: %w", err)
		}
	}
	if r.GrowthOpportunities.Valid && r.GrowthOpportunities.String != "" {
		if err := json.Unmarshal([]byte(r.GrowthOpportunities.String), &out.GrowthOpportunities); err != nil {
			return out, fmt.Errorf("decoding growth opportunities: %w", err)
		}
	}
	return out, nil
}

// ListWeeklySummaries returns a client's summaries, most recent week
// first.
func (s *SQLiteStore) ListWeeklySummaries(ctx context.Context, clientID string) ([]feed.WeeklySummary, error) {
	rows := []summaryRow{}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, client_id, week_start, week_end, summary_text,
		       highlights, growth_opportunities, generated_at
		FROM weekly_summaries
		WHERE client_id = ?
		ORDER BY week_start DESC`, clientID)
	if err != nil {
		return nil, fmt.Errorf("listing weekly summaries: %w", err)
	}

	summaries := make([]feed.WeeklySummary, 0, len(rows))
	for _, r := range rows {
		sum, err := r.toSummary()
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, sum)
	}
	return summaries, nil
}

// InsertWeeklySummary appends one summary row. Summaries are never
// updated or deleted.
func (s *SQLiteStore) InsertWeeklySummary(ctx context.Context, sum feed.WeeklySummary) (feed.WeeklySummary, error) {
	if sum.ClientID == "" {
		return feed.WeeklySummary{}, fmt.Errorf("%w: client ID required", ErrInvalidRecord)
	}
	if sum.ID == "" {
		sum.ID = uuid.New().String()
	}
	if sum.GeneratedAt.IsZero() {
		sum.GeneratedAt = time.Now().UTC()
	}

	highlights, err := json.Marshal(sum.Highlights)
	if err != nil {
		return feed.WeeklySummary{}, fmt.Errorf("encoding highlights: %w", err)
	}
	opportunities, err := json.Marshal(sum.GrowthOpportunities)
	if err != nil {
		return feed.WeeklySummary{}, fmt.Errorf("encoding growth opportunities: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO weekly_summaries (
			id, client_id, week_start, week_end, summary_text,
			highlights, growth_opportunities, generated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sum.ID, sum.ClientID, sum.WeekStart, sum.WeekEnd, sum.SummaryText,
		string(highlights), string(opportunities), sum.GeneratedAt,
	)
	if err != nil {
		return feed.WeeklySummary{}, fmt.Errorf("%w: inserting weekly summary: %v", ErrPersistence, err)
	}

	s.notify(feed.EntityWeeklySummaries, sum.ClientID, sum.ID, stream.KindInsert)
	return sum, nil
}

// ListClientTasks returns a client's tasks newest first.
func (s *SQLiteStore) ListClientTasks(ctx context.Context, clientID string) ([]feed.ClientTask, error) {
	tasks := []feed.ClientTask{}
	err := s.db.SelectContext(ctx, &tasks, `
		SELECT id, client_id, title, description, priority, status,
		       due_date, created_at, updated_at
		FROM client_tasks
		WHERE client_id = ?
		ORDER BY created_at DESC`, clientID)
	if err != nil {
		return nil, fmt.Errorf("listing client tasks: %w", err)
	}
	return tasks, nil
}

// InsertClientTask persists a new task row.
func (s *SQLiteStore) InsertClientTask(ctx context.Context, t feed.ClientTask) (feed.ClientTask, error) {
	if strings.TrimSpace(t.Title) == "" {
		return feed.ClientTask{}, fmt.Errorf("%w: task title must not be empty", ErrInvalidRecord)
	}
	if t.ClientID == "" {
		return feed.ClientTask{}, fmt.Errorf("%w: client ID required", ErrInvalidRecord)
	}
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Priority == "" {
		t.Priority = feed.PriorityMedium
	}
	if t.Status == "" {
		t.Status = feed.TaskPending
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO client_tasks (
			id, client_id, title, description, priority, status,
			due_date, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ClientID, t.Title, t.Description, t.Priority, t.Status,
		t.DueDate, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return feed.ClientTask{}, fmt.Errorf("%w: inserting client task: %v", ErrPersistence, err)
	}

	s.notify(feed.EntityClientTasks, t.ClientID, t.ID, stream.KindInsert)
	return t, nil
}

// PatchClientTask applies a status transition to one task.
func (s *SQLiteStore) PatchClientTask(ctx context.Context, id string, patch TaskPatch) (feed.ClientTask, error) {
	if patch.Status == nil {
		return feed.ClientTask{}, ErrEmptyPatch
	}
	if !patch.Status.Valid() {
		return feed.ClientTask{}, fmt.Errorf("%w: unknown task status %q", ErrInvalidRecord, *patch.Status)
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE client_tasks SET status = ?, updated_at = ? WHERE id = ?",
		*patch.Status, time.Now().UTC(), id,
	)
	if err != nil {
		return feed.ClientTask{}, fmt.Errorf("%w: patching client task: %v", ErrPersistence, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return feed.ClientTask{}, fmt.Errorf("%w: client task %s", ErrNotFound, id)
	}

	var t feed.ClientTask
	err = s.db.GetContext(ctx, &t, `
		SELECT id, client_id, title, description, priority, status,
		       due_date, created_at, updated_at
		FROM client_tasks WHERE id = ?`, id)
	if err != nil {
		return feed.ClientTask{}, fmt.Errorf("reading patched client task: %w", err)
	}

	s.notify(feed.EntityClientTasks, t.ClientID, t.ID, stream.KindUpdate)
	return t, nil
}
