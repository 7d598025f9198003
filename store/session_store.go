// api/store/session_store.go
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"clickstream/api/models"
)

// PostgresSessionStore keeps the session ledger in Postgres.
type PostgresSessionStore struct {
	db *sqlx.DB
}

var _ SessionStore = (*PostgresSessionStore)(nil)

func NewPostgresSessionStore(db *sqlx.DB) *PostgresSessionStore {
	return &PostgresSessionStore{db: db}
}

const sessionColumns = `session_id, start_time, end_time, event_count, page_views, clicks,
	is_active, last_activity, COALESCE(user_agent, '') AS user_agent`

func (s *PostgresSessionStore) UpsertSession(ctx context.Context, a models.SessionActivity) error {
	query := `
		INSERT INTO sessions (
			session_id, start_time, end_time, event_count, page_views, clicks,
			is_active, last_activity, user_agent
		) VALUES ($1, $2, NULL, 1, $3, $4, TRUE, $2, NULLIF($5, ''))
		ON CONFLICT (session_id) DO UPDATE SET
			event_count   = sessions.event_count + 1,
			page_views    = sessions.page_views + EXCLUDED.page_views,
			clicks        = sessions.clicks + EXCLUDED.clicks,
			is_active     = TRUE,
			end_time      = NULL,
			last_activity = EXCLUDED.last_activity,
			user_agent    = EXCLUDED.user_agent;
	`
	_, err := s.db.ExecContext(ctx, query,
		a.SessionID,
		a.ReceivedAt,
		a.PageViewIncrement(),
		a.ClickIncrement(),
		a.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert session %s: %w", a.SessionID, err)
	}
	return nil
}

func (s *PostgresSessionStore) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	session := &models.Session{}
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE session_id = $1;`
	if err := s.db.GetContext(ctx, session, query, sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session %s: %w", sessionID, err)
	}
	session.StartTime = session.StartTime.UTC()
	session.LastActivity = session.LastActivity.UTC()
	return session, nil
}

func (s *PostgresSessionStore) ListSessions(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error) {
	where := ""
	if filter.ActiveOnly {
		where = "WHERE is_active = TRUE"
	}

	var total int
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM sessions `+where); err != nil {
		return nil, 0, fmt.Errorf("failed to count sessions: %w", err)
	}

	sessions := []models.Session{}
	query := fmt.Sprintf(`
		SELECT %s FROM sessions %s
		ORDER BY start_time DESC, session_id ASC
		LIMIT $1 OFFSET $2
	`, sessionColumns, where)
	if err := s.db.SelectContext(ctx, &sessions, query, filter.Limit, filter.Offset); err != nil {
		return nil, 0, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, total, nil
}
