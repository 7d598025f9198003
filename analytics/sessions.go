package analytics

import (
	"context"
	"errors"

	"clickstream/api/models"
	"clickstream/api/store"
)

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Timeline returns a session's ledger and its events in ascending timestamp
// order. A ledger with no events yields an empty list.
func (s *Service) Timeline(ctx context.Context, sessionID string) (*models.SessionTimeline, error) {
	session, err := s.lookupSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	events, err := s.events.ListSessionEvents(ctx, sessionID)
	if err != nil {
		return nil, &PersistenceError{Op: "list session events", Err: err}
	}
	return &models.SessionTimeline{Session: *session, Events: events}, nil
}

// Journey condenses a session's timeline into per-event steps.
func (s *Service) Journey(ctx context.Context, sessionID string) ([]models.JourneyStep, error) {
	timeline, err := s.Timeline(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return BuildJourney(timeline.Events), nil
}

// BuildJourney maps events to steps, keeping their order. Clicks carry
// coordinates and element; every other type carries the page title.
func BuildJourney(events []models.Event) []models.JourneyStep {
	steps := make([]models.JourneyStep, 0, len(events))
	for i := range events {
		e := &events[i]
		step := models.JourneyStep{Timestamp: e.Timestamp, Type: e.Type, URL: e.URL}
		if e.Type == models.EventTypeClick {
			details := models.ClickDetails{}
			if c := e.Click(); c != nil {
				details = models.ClickDetails{X: c.X, Y: c.Y, Element: c.Element}
			}
			step.Details = details
		} else {
			details := models.PageViewDetails{}
			if p := e.PageView(); p != nil {
				details.Title = p.Title
			}
			step.Details = details
		}
		steps = append(steps, step)
	}
	return steps
}

// ListSessions pages through ledgers, newest first. Non-positive page or
// limit fall back to defaults; limit is capped at MaxPageLimit.
func (s *Service) ListSessions(ctx context.Context, page, limit int, activeOnly bool) (*models.SessionPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}

	sessions, total, err := s.sessions.ListSessions(ctx, models.SessionFilter{
		ActiveOnly: activeOnly,
		Offset:     (page - 1) * limit,
		Limit:      limit,
	})
	if err != nil {
		return nil, &PersistenceError{Op: "list sessions", Err: err}
	}
	if sessions == nil {
		sessions = []models.Session{}
	}

	return &models.SessionPage{
		Sessions: sessions,
		Pagination: models.Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: (total + limit - 1) / limit,
		},
	}, nil
}

func (s *Service) lookupSession(ctx context.Context, sessionID string) (*models.Session, error) {
	if sessionID == "" {
		return nil, &ValidationError{Message: "Session ID is required"}
	}
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return nil, &NotFoundError{SessionID: sessionID}
		}
		return nil, &PersistenceError{Op: "get session", Err: err}
	}
	return session, nil
}
