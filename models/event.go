// api/models/event.go
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

type EventType string

const (
	EventTypePageView EventType = "page_view"
	EventTypeClick    EventType = "click"
)

// Environment is the browser metadata the collection agent merges into every event.
type Environment struct {
	UserAgent      string `json:"userAgent,omitempty"`
	ScreenWidth    int    `json:"screenWidth,omitempty"`
	ScreenHeight   int    `json:"screenHeight,omitempty"`
	ViewportWidth  int    `json:"viewportWidth,omitempty"`
	ViewportHeight int    `json:"viewportHeight,omitempty"`
}

// Attributes is the type-dependent data bag of an Event. It is one of
// *PageViewAttributes, *ClickAttributes or *UnknownAttributes.
type Attributes interface {
	userAgent() string
}

type PageViewAttributes struct {
	Title    string `json:"title,omitempty"`
	Referrer string `json:"referrer,omitempty"`
	Environment

	raw json.RawMessage
}

func (a *PageViewAttributes) userAgent() string { return a.UserAgent }

// MarshalJSON returns the bag as received when the attributes were decoded.
func (a *PageViewAttributes) MarshalJSON() ([]byte, error) {
	if a.raw != nil {
		return a.raw, nil
	}
	type plain PageViewAttributes
	return json.Marshal((*plain)(a))
}

type ClickAttributes struct {
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Element      string  `json:"element,omitempty"`
	ElementID    string  `json:"elementId,omitempty"`
	ElementClass string  `json:"elementClass,omitempty"`
	ElementText  string  `json:"elementText,omitempty"`
	Environment

	raw json.RawMessage
}

func (a *ClickAttributes) userAgent() string { return a.UserAgent }

// MarshalJSON returns the bag as received when the attributes were decoded.
func (a *ClickAttributes) MarshalJSON() ([]byte, error) {
	if a.raw != nil {
		return a.raw, nil
	}
	type plain ClickAttributes
	return json.Marshal((*plain)(a))
}

// UnknownAttributes keeps the data of event types this service does not model.
type UnknownAttributes struct {
	Raw json.RawMessage
}

func (a *UnknownAttributes) userAgent() string {
	return fieldsOf(a.Raw).str("userAgent")
}

func (a *UnknownAttributes) MarshalJSON() ([]byte, error) {
	if len(a.Raw) == 0 {
		return []byte("null"), nil
	}
	return a.Raw, nil
}

// UserAgentOf returns data.userAgent, or "" when absent.
func UserAgentOf(a Attributes) string {
	if a == nil {
		return ""
	}
	return a.userAgent()
}

// fields is a data bag split into its members. Accessors yield the zero
// value for absent members and for members of the wrong JSON type.
type fields map[string]json.RawMessage

func fieldsOf(raw json.RawMessage) fields {
	var f fields
	if json.Unmarshal(raw, &f) != nil {
		return nil
	}
	return f
}

func (f fields) str(key string) string {
	var v string
	if json.Unmarshal(f[key], &v) != nil {
		return ""
	}
	return v
}

func (f fields) num(key string) float64 {
	var v float64
	if json.Unmarshal(f[key], &v) != nil {
		return 0
	}
	return v
}

func (f fields) environment() Environment {
	return Environment{
		UserAgent:      f.str("userAgent"),
		ScreenWidth:    int(f.num("screenWidth")),
		ScreenHeight:   int(f.num("screenHeight")),
		ViewportWidth:  int(f.num("viewportWidth")),
		ViewportHeight: int(f.num("viewportHeight")),
	}
}

// DecodeAttributes parses a raw data bag into the variant selected by t.
// Known members of the wrong type read as zero values and the bag itself is
// kept verbatim; only malformed JSON is an error. An empty or null bag
// yields nil attributes.
func DecodeAttributes(t EventType, raw json.RawMessage) (Attributes, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("invalid %s data", t)
	}
	kept := append(json.RawMessage(nil), raw...)
	f := fieldsOf(kept)

	switch t {
	case EventTypePageView:
		return &PageViewAttributes{
			Title:       f.str("title"),
			Referrer:    f.str("referrer"),
			Environment: f.environment(),
			raw:         kept,
		}, nil
	case EventTypeClick:
		return &ClickAttributes{
			X:            f.num("x"),
			Y:            f.num("y"),
			Element:      f.str("element"),
			ElementID:    f.str("elementId"),
			ElementClass: f.str("elementClass"),
			ElementText:  f.str("elementText"),
			Environment:  f.environment(),
			raw:          kept,
		}, nil
	default:
		return &UnknownAttributes{Raw: kept}, nil
	}
}

// Event is an immutable interaction record as persisted by the store.
type Event struct {
	EventID   string     `json:"eventId"`
	SessionID string     `json:"sessionId"`
	Type      EventType  `json:"type"`
	URL       string     `json:"url"`
	Timestamp time.Time  `json:"timestamp"`
	Data      Attributes `json:"data,omitempty"`
}

// Click returns the click attributes, or nil for any other event.
func (e *Event) Click() *ClickAttributes {
	if c, ok := e.Data.(*ClickAttributes); ok {
		return c
	}
	return nil
}

// PageView returns the page view attributes, or nil for any other event.
func (e *Event) PageView() *PageViewAttributes {
	if p, ok := e.Data.(*PageViewAttributes); ok {
		return p
	}
	return nil
}

func (e *Event) UnmarshalJSON(b []byte) error {
	var wire struct {
		EventID   string          `json:"eventId"`
		SessionID string          `json:"sessionId"`
		Type      EventType       `json:"type"`
		URL       string          `json:"url"`
		Timestamp time.Time       `json:"timestamp"`
		Data      json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	data, err := DecodeAttributes(wire.Type, wire.Data)
	if err != nil {
		return err
	}
	*e = Event{
		EventID:   wire.EventID,
		SessionID: wire.SessionID,
		Type:      wire.Type,
		URL:       wire.URL,
		Timestamp: wire.Timestamp,
		Data:      data,
	}
	return nil
}

// EncodeData serializes the attribute bag for storage. Nil attributes encode as "{}".
func EncodeData(a Attributes) (string, error) {
	if a == nil {
		return "{}", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("failed to encode event data: %w", err)
	}
	return string(b), nil
}

// IncomingEvent is one element of a POST /events body before validation.
type IncomingEvent struct {
	SessionID string          `json:"sessionId"`
	Type      EventType       `json:"type"`
	URL       string          `json:"url"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// AcceptedEvent is the per-event acknowledgement returned by ingestion.
type AcceptedEvent struct {
	EventID   string    `json:"eventId"`
	SessionID string    `json:"sessionId"`
	Timestamp time.Time `json:"timestamp"`
}

type IngestResult struct {
	Count  int             `json:"count"`
	Events []AcceptedEvent `json:"events"`
}
