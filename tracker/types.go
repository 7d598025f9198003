package tracker

import (
	"time"

	"github.com/coder/quartz"
)

const (
	EventTypePageView = "page_view"
	EventTypeClick    = "click"
)

const (
	DefaultBatchSize     = 10
	DefaultFlushInterval = 5 * time.Second

	// maxElementText bounds the captured text of a clicked element.
	maxElementText = 100
)

// Event is the wire shape accepted by the ingestion endpoint.
type Event struct {
	SessionID string         `json:"sessionId"`
	Type      string         `json:"type"`
	URL       string         `json:"url"`
	Timestamp string         `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// ClickTarget describes the element under a click.
type ClickTarget struct {
	X         int
	Y         int
	Tag       string
	InputType string
	ID        string
	Class     string
	Text      string
}

type Config struct {
	// Endpoint is the ingestion URL, e.g. http://localhost:8080/api/v1/events.
	Endpoint      string
	BatchSize     int
	FlushInterval time.Duration

	// Transport is the retrying delivery path used by Flush.
	Transport Transport
	// Beacon is the fire-and-forget path used at teardown.
	Beacon      Beacon
	Storage     Storage
	Environment Environment
	Logger      Logger
	Clock       quartz.Clock
}
