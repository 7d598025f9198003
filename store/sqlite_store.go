package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"clickstream/api/models"
)

// SQLiteStore implements both stores on a single embedded database.
// Instants are stored as unix milliseconds.
type SQLiteStore struct {
	db *sqlx.DB
}

var (
	_ EventStore   = (*SQLiteStore)(nil)
	_ SessionStore = (*SQLiteStore)(nil)
)

func NewSQLiteStore(db *sqlx.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

type sqliteEventRow struct {
	EventID   string `db:"event_id"`
	SessionID string `db:"session_id"`
	EventType string `db:"event_type"`
	URL       string `db:"url"`
	Timestamp int64  `db:"timestamp"`
	Data      string `db:"data"`
}

type sqliteSessionRow struct {
	SessionID    string `db:"session_id"`
	StartTime    int64  `db:"start_time"`
	EndTime      *int64 `db:"end_time"`
	EventCount   int64  `db:"event_count"`
	PageViews    int64  `db:"page_views"`
	Clicks       int64  `db:"clicks"`
	IsActive     bool   `db:"is_active"`
	LastActivity int64  `db:"last_activity"`
	UserAgent    string `db:"user_agent"`
}

func (r sqliteSessionRow) toModel() models.Session {
	s := models.Session{
		SessionID:    r.SessionID,
		StartTime:    fromMillis(r.StartTime),
		EventCount:   r.EventCount,
		PageViews:    r.PageViews,
		Clicks:       r.Clicks,
		IsActive:     r.IsActive,
		LastActivity: fromMillis(r.LastActivity),
		UserAgent:    r.UserAgent,
	}
	if r.EndTime != nil {
		end := fromMillis(*r.EndTime)
		s.EndTime = &end
	}
	return s
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func (s *SQLiteStore) InsertEvent(ctx context.Context, event *models.Event) error {
	data, err := models.EncodeData(event.Data)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (event_id, session_id, event_type, url, timestamp, data)
		VALUES (?, ?, ?, ?, ?, ?)
	`, event.EventID, event.SessionID, string(event.Type), event.URL, toMillis(event.Timestamp), data)
	if err != nil {
		return fmt.Errorf("failed to insert event %s: %w", event.EventID, err)
	}
	return nil
}

func (s *SQLiteStore) ListSessionEvents(ctx context.Context, sessionID string) ([]models.Event, error) {
	var rows []sqliteEventRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT event_id, session_id, event_type, url, timestamp, data
		FROM events
		WHERE session_id = ?
		ORDER BY timestamp ASC, rowid ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query session events: %w", err)
	}
	return sqliteEvents(rows)
}

func (s *SQLiteStore) ListClickEvents(ctx context.Context, q models.HeatmapQuery) ([]models.Event, error) {
	where, args := clickFilter(q, func(_ string, value any) (string, any) {
		if t, ok := value.(time.Time); ok {
			return "?", toMillis(t)
		}
		return "?", value
	})

	var rows []sqliteEventRow
	query := `SELECT event_id, session_id, event_type, url, timestamp, data FROM events ` + where
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query click events: %w", err)
	}
	return sqliteEvents(rows)
}

func sqliteEvents(rows []sqliteEventRow) ([]models.Event, error) {
	events := make([]models.Event, 0, len(rows))
	for _, r := range rows {
		e, err := decodeEvent(r.EventID, r.SessionID, r.EventType, r.URL, fromMillis(r.Timestamp), r.Data)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

func (s *SQLiteStore) UpsertSession(ctx context.Context, a models.SessionActivity) error {
	received := toMillis(a.ReceivedAt)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (
			session_id, start_time, end_time, event_count, page_views, clicks,
			is_active, last_activity, user_agent
		) VALUES (?, ?, NULL, 1, ?, ?, 1, ?, NULLIF(?, ''))
		ON CONFLICT (session_id) DO UPDATE SET
			event_count   = event_count + 1,
			page_views    = page_views + excluded.page_views,
			clicks        = clicks + excluded.clicks,
			is_active     = 1,
			end_time      = NULL,
			last_activity = excluded.last_activity,
			user_agent    = excluded.user_agent
	`, a.SessionID, received, a.PageViewIncrement(), a.ClickIncrement(), received, a.UserAgent)
	if err != nil {
		return fmt.Errorf("failed to upsert session %s: %w", a.SessionID, err)
	}
	return nil
}

const sqliteSessionColumns = `session_id, start_time, end_time, event_count, page_views, clicks,
	is_active, last_activity, COALESCE(user_agent, '') AS user_agent`

func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	var row sqliteSessionRow
	err := s.db.GetContext(ctx, &row, `SELECT `+sqliteSessionColumns+` FROM sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session %s: %w", sessionID, err)
	}
	session := row.toModel()
	return &session, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error) {
	where := ""
	if filter.ActiveOnly {
		where = "WHERE is_active = 1"
	}

	var total int
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM sessions `+where); err != nil {
		return nil, 0, fmt.Errorf("failed to count sessions: %w", err)
	}

	var rows []sqliteSessionRow
	query := `SELECT ` + sqliteSessionColumns + ` FROM sessions ` + where +
		` ORDER BY start_time DESC, session_id ASC LIMIT ? OFFSET ?`
	if err := s.db.SelectContext(ctx, &rows, query, filter.Limit, filter.Offset); err != nil {
		return nil, 0, fmt.Errorf("failed to list sessions: %w", err)
	}

	sessions := make([]models.Session, 0, len(rows))
	for _, r := range rows {
		sessions = append(sessions, r.toModel())
	}
	return sessions, total, nil
}
