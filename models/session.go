package models

import "time"

// Session is the per-session ledger: derived, mutable aggregate counters.
type Session struct {
	SessionID    string     `json:"sessionId" db:"session_id"`
	StartTime    time.Time  `json:"startTime" db:"start_time"`
	EndTime      *time.Time `json:"endTime" db:"end_time"`
	EventCount   int64      `json:"eventCount" db:"event_count"`
	PageViews    int64      `json:"pageViews" db:"page_views"`
	Clicks       int64      `json:"clicks" db:"clicks"`
	IsActive     bool       `json:"isActive" db:"is_active"`
	LastActivity time.Time  `json:"lastActivity" db:"last_activity"`
	UserAgent    string     `json:"userAgent,omitempty" db:"user_agent"`
}

// SessionActivity is the ledger delta produced by one accepted event.
type SessionActivity struct {
	SessionID  string
	Type       EventType
	ReceivedAt time.Time
	// UserAgent overwrites the stored value unconditionally; "" clears it.
	UserAgent string
}

func (a SessionActivity) PageViewIncrement() int64 {
	if a.Type == EventTypePageView {
		return 1
	}
	return 0
}

func (a SessionActivity) ClickIncrement() int64 {
	if a.Type == EventTypeClick {
		return 1
	}
	return 0
}

type SessionFilter struct {
	ActiveOnly bool
	Offset     int
	Limit      int
}

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type SessionPage struct {
	Sessions   []Session
	Pagination Pagination
}

// SessionTimeline is a session ledger with its events in timestamp order.
type SessionTimeline struct {
	Session Session
	Events  []Event
}

// JourneyStep is the condensed form of an event on a session journey.
type JourneyStep struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	URL       string    `json:"url"`
	Details   any       `json:"details"`
}

type ClickDetails struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Element string  `json:"element,omitempty"`
}

type PageViewDetails struct {
	Title string `json:"title,omitempty"`
}
