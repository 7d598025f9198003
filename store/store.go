// api/store/store.go
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"clickstream/api/models"
)

var ErrSessionNotFound = errors.New("session not found")

// EventStore persists immutable events and serves range reads over them.
type EventStore interface {
	InsertEvent(ctx context.Context, event *models.Event) error
	// ListSessionEvents returns a session's events in ascending timestamp order.
	ListSessionEvents(ctx context.Context, sessionID string) ([]models.Event, error)
	// ListClickEvents returns click events on q.URL inside q's inclusive range.
	ListClickEvents(ctx context.Context, q models.HeatmapQuery) ([]models.Event, error)
}

// SessionStore holds the per-session ledger.
type SessionStore interface {
	// UpsertSession applies one event's delta in a single atomic statement:
	// insert-if-absent, then increment in place.
	UpsertSession(ctx context.Context, activity models.SessionActivity) error
	// GetSession returns ErrSessionNotFound when no ledger exists.
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
	ListSessions(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error)
}

func decodeEvent(id, sessionID, eventType, url string, ts time.Time, data string) (models.Event, error) {
	t := models.EventType(eventType)
	attrs, err := models.DecodeAttributes(t, []byte(data))
	if err != nil {
		return models.Event{}, fmt.Errorf("event %s: %w", id, err)
	}
	return models.Event{
		EventID:   id,
		SessionID: sessionID,
		Type:      t,
		URL:       url,
		Timestamp: ts.UTC(),
		Data:      attrs,
	}, nil
}

// binder renders the placeholder for one named argument and the value to
// pass alongside it.
type binder func(name string, value any) (placeholder string, arg any)

// clickFilter builds the WHERE clause of a heatmap read. Stored timestamps
// have millisecond precision, so the start bound is rounded up and the end
// bound down to whole milliseconds before binding.
func clickFilter(q models.HeatmapQuery, bind binder) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(column, op, name string, value any) {
		placeholder, arg := bind(name, value)
		clauses = append(clauses, column+" "+op+" "+placeholder)
		args = append(args, arg)
	}

	add("event_type", "=", "type", string(models.EventTypeClick))
	add("url", "=", "url", q.URL)
	if q.StartDate != nil {
		add("timestamp", ">=", "start", ceilMillis(*q.StartDate))
	}
	if q.EndDate != nil {
		add("timestamp", "<=", "end", q.EndDate.UTC().Truncate(time.Millisecond))
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func ceilMillis(t time.Time) time.Time {
	t = t.UTC()
	down := t.Truncate(time.Millisecond)
	if down.Before(t) {
		return down.Add(time.Millisecond)
	}
	return down
}
