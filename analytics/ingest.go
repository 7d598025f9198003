package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"math"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"

	"clickstream/api/metrics"
	"clickstream/api/models"
	"clickstream/api/store"
	"clickstream/api/utils"
)

// Service is the server-side core: ingestion, ledger reconciliation and
// the derived views over stored events.
type Service struct {
	events   store.EventStore
	sessions store.SessionStore
	clock    quartz.Clock
	metrics  *metrics.Metrics
	newID    func() string
}

func NewService(events store.EventStore, sessions store.SessionStore, clock quartz.Clock, m *metrics.Metrics) *Service {
	return &Service{
		events:   events,
		sessions: sessions,
		clock:    clock,
		metrics:  m,
		newID:    func() string { return uuid.New().String() },
	}
}

// ParseBatch splits a request body into its event elements. A JSON object is
// a batch of one; a JSON array is an ordered batch.
func ParseBatch(body []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, &ValidationError{Message: "Request body is required"}
	}
	switch trimmed[0] {
	case '[':
		var batch []json.RawMessage
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			return nil, &ValidationError{Message: "Invalid request body"}
		}
		return batch, nil
	case '{':
		if !json.Valid(trimmed) {
			return nil, &ValidationError{Message: "Invalid request body"}
		}
		return []json.RawMessage{trimmed}, nil
	default:
		return nil, &ValidationError{Message: "Request body must be an event object or an array of events"}
	}
}

// Ingest persists every valid element of batch in input order. Invalid
// elements are skipped without affecting their siblings. A store failure
// aborts the remainder and is returned as a *PersistenceError.
func (s *Service) Ingest(ctx context.Context, batch []json.RawMessage) (*models.IngestResult, error) {
	result := &models.IngestResult{Events: []models.AcceptedEvent{}}

	for i, raw := range batch {
		receivedAt := s.clock.Now().UTC().Truncate(time.Millisecond)

		event, verr := s.buildEvent(raw, receivedAt)
		if verr != nil {
			log.Printf("Skipping event %d of %d: %v", i+1, len(batch), verr)
			s.metrics.EventsSkipped.Inc()
			continue
		}

		if err := s.events.InsertEvent(ctx, event); err != nil {
			s.metrics.IngestFailures.Inc()
			return nil, &PersistenceError{Op: "insert event", Err: err}
		}

		activity := models.SessionActivity{
			SessionID:  event.SessionID,
			Type:       event.Type,
			ReceivedAt: receivedAt,
			UserAgent:  models.UserAgentOf(event.Data),
		}
		if err := s.sessions.UpsertSession(ctx, activity); err != nil {
			s.metrics.IngestFailures.Inc()
			return nil, &PersistenceError{Op: "upsert session", Err: err}
		}

		s.metrics.EventsAccepted.WithLabelValues(typeLabel(event.Type)).Inc()
		result.Events = append(result.Events, models.AcceptedEvent{
			EventID:   event.EventID,
			SessionID: event.SessionID,
			Timestamp: event.Timestamp,
		})
	}

	result.Count = len(result.Events)
	return result, nil
}

func (s *Service) buildEvent(raw json.RawMessage, receivedAt time.Time) (*models.Event, *ValidationError) {
	var in models.IncomingEvent
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, &ValidationError{Message: "event is not a valid event object"}
	}
	if in.SessionID == "" || in.Type == "" || in.URL == "" {
		return nil, &ValidationError{Message: "sessionId, type and url are required"}
	}

	data, err := models.DecodeAttributes(in.Type, in.Data)
	if err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	return &models.Event{
		EventID:   s.newID(),
		SessionID: in.SessionID,
		Type:      in.Type,
		URL:       in.URL,
		Timestamp: parseTimestamp(in.Timestamp, receivedAt),
		Data:      data,
	}, nil
}

// parseTimestamp reads a client timestamp given as a date string or as epoch
// milliseconds. Absent or unparsable values fall back to the receipt time.
// Stores keep millisecond precision, so the result is truncated to it.
func parseTimestamp(raw json.RawMessage, receivedAt time.Time) time.Time {
	var v any
	if len(raw) == 0 || json.Unmarshal(raw, &v) != nil {
		return receivedAt
	}
	switch v := v.(type) {
	case string:
		ts, err := utils.ParseTimestamp(v)
		if err != nil {
			return receivedAt
		}
		return ts.UTC().Truncate(time.Millisecond)
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > maxEpochMillis {
			return receivedAt
		}
		return time.UnixMilli(int64(v)).UTC()
	default:
		return receivedAt
	}
}

// maxEpochMillis is the largest magnitude a JavaScript Date accepts.
const maxEpochMillis = 8.64e15

// typeLabel keeps the accepted-events metric to a fixed label set; clients
// may send any type.
func typeLabel(t models.EventType) string {
	switch t {
	case models.EventTypePageView, models.EventTypeClick:
		return string(t)
	default:
		return "other"
	}
}
