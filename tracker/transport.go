package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Transport delivers one chunk of events on the normal flush path.
type Transport interface {
	Send(ctx context.Context, events []Event) error
}

// Beacon queues a best-effort delivery that survives teardown. It reports
// whether the payload was accepted for sending; delivery itself is never
// confirmed.
type Beacon interface {
	Beacon(events []Event) bool
}

// TransportError is a failed delivery. Status is 0 when no response arrived.
type TransportError struct {
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("delivery rejected with HTTP %d", e.Status)
	}
	return fmt.Sprintf("delivery failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Retryable reports whether a later flush may succeed. Client errors (4xx)
// will not.
func (e *TransportError) Retryable() bool {
	return e.Status == 0 || e.Status >= 500
}

// maxBeaconPayload mirrors the browser beacon quota.
const maxBeaconPayload = 64 << 10

const defaultBeaconTimeout = 5 * time.Second

// HTTPTransport implements both delivery paths over net/http.
type HTTPTransport struct {
	endpoint      string
	client        *http.Client
	beaconTimeout time.Duration
	logger        Logger
	inflight      sync.WaitGroup
}

var (
	_ Transport = (*HTTPTransport)(nil)
	_ Beacon    = (*HTTPTransport)(nil)
)

func NewHTTPTransport(endpoint string, client *http.Client, logger Logger) *HTTPTransport {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = NoopLogger{}
	}
	return &HTTPTransport{
		endpoint:      endpoint,
		client:        client,
		beaconTimeout: defaultBeaconTimeout,
		logger:        logger,
	}
}

// EncodeChunk renders a chunk the way the ingestion endpoint expects: a
// single event as a bare object, several as an array.
func EncodeChunk(events []Event) ([]byte, error) {
	if len(events) == 1 {
		return json.Marshal(events[0])
	}
	return json.Marshal(events)
}

func (h *HTTPTransport) Send(ctx context.Context, events []Event) error {
	body, err := EncodeChunk(events)
	if err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}
	return h.post(ctx, body, "application/json")
}

// Beacon posts the whole queue as one array in the background. It returns
// false without sending when the payload exceeds the beacon quota.
func (h *HTTPTransport) Beacon(events []Event) bool {
	body, err := json.Marshal(events)
	if err != nil || len(body) > maxBeaconPayload {
		return false
	}

	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), h.beaconTimeout)
		defer cancel()
		if err := h.post(ctx, body, "text/plain;charset=UTF-8"); err != nil {
			h.logger.Debug("Beacon delivery of %d events lost: %v", len(events), err)
		}
	}()
	return true
}

// Wait blocks until background beacons finish. Hosts that can afford a
// grace period at exit call it; nothing depends on it.
func (h *HTTPTransport) Wait() {
	h.inflight.Wait()
}

func (h *HTTPTransport) post(ctx context.Context, body []byte, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return &TransportError{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := h.client.Do(req)
	if err != nil {
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &TransportError{Status: resp.StatusCode}
	}
	return nil
}
