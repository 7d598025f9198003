// api/store/event_store.go
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"clickstream/api/database"
	"clickstream/api/models"
)

// ClickHouseEventStore keeps the append-only event log in ClickHouse.
type ClickHouseEventStore struct {
	DB *database.ClickHouseClient
}

var _ EventStore = (*ClickHouseEventStore)(nil)

type eventRow struct {
	EventID   string    `ch:"event_id"`
	SessionID string    `ch:"session_id"`
	EventType string    `ch:"event_type"`
	URL       string    `ch:"url"`
	Timestamp time.Time `ch:"timestamp"`
	Data      string    `ch:"data"`
}

func NewClickHouseEventStore(chClient *database.ClickHouseClient) *ClickHouseEventStore {
	return &ClickHouseEventStore{
		DB: chClient,
	}
}

func (s *ClickHouseEventStore) InsertEvent(ctx context.Context, event *models.Event) error {
	data, err := models.EncodeData(event.Data)
	if err != nil {
		return err
	}

	batch, err := s.DB.Conn.PrepareBatch(ctx, `
		INSERT INTO events (event_id, session_id, event_type, url, timestamp, data)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}

	if err := batch.Append(
		event.EventID,
		event.SessionID,
		string(event.Type),
		event.URL,
		event.Timestamp,
		data,
	); err != nil {
		_ = batch.Abort()
		return fmt.Errorf("failed to append event %s: %w", event.EventID, err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send event %s: %w", event.EventID, err)
	}
	return nil
}

func (s *ClickHouseEventStore) ListSessionEvents(ctx context.Context, sessionID string) ([]models.Event, error) {
	var rows []eventRow
	err := s.DB.Conn.Select(ctx, &rows, `
		SELECT event_id, session_id, event_type, url, timestamp, data
		FROM events
		WHERE session_id = ?
		ORDER BY timestamp ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query session events: %w", err)
	}
	return toEvents(rows)
}

func (s *ClickHouseEventStore) ListClickEvents(ctx context.Context, q models.HeatmapQuery) ([]models.Event, error) {
	where, args := clickFilter(q, clickHouseBind)

	var rows []eventRow
	query := fmt.Sprintf(`
		SELECT event_id, session_id, event_type, url, timestamp, data
		FROM events
		%s
	`, where)
	if err := s.DB.Conn.Select(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query click events: %w", err)
	}
	return toEvents(rows)
}

// clickHouseBind uses named parameters throughout; clickhouse-go refuses to
// mix them with positional ones, and only named dates keep their scale.
func clickHouseBind(name string, value any) (string, any) {
	if t, ok := value.(time.Time); ok {
		return "@" + name, clickhouse.DateNamed(name, t, clickhouse.MilliSeconds)
	}
	return "@" + name, clickhouse.Named(name, value)
}

func toEvents(rows []eventRow) ([]models.Event, error) {
	events := make([]models.Event, 0, len(rows))
	for _, r := range rows {
		e, err := decodeEvent(r.EventID, r.SessionID, r.EventType, r.URL, r.Timestamp, r.Data)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}
