package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/coder/quartz"

	"clickstream/api/utils"
)

const (
	sessionKey = "analytics_session_id"
	userKey    = "analytics_user_id"
	traitsKey  = "analytics_traits"
)

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Tracker buffers interaction events and delivers them in batches.
//
// Flush is the reliable path: a failed chunk puts every drained event back
// at the front of the queue for the next flush, so delivery is at least
// once. PageHide and Close use the Beacon path, whose losses are accepted.
type Tracker struct {
	cfg    Config
	queue  *Queue
	online atomic.Bool
	closed atomic.Bool

	// flushMu serializes flushes; Track never takes it.
	flushMu sync.Mutex

	sessionMu sync.RWMutex
	sessionID string
	userID    string

	flushReq chan struct{}
	cancel   context.CancelFunc
	loop     sync.WaitGroup
	ticker   quartz.Waiter
}

// New builds a tracker and restores (or creates) the persisted session id.
func New(cfg Config) (*Tracker, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = NewPrintLogger(LogLevelWarn)
	}
	if cfg.Clock == nil {
		cfg.Clock = quartz.NewReal()
	}
	if cfg.Storage == nil {
		cfg.Storage = NewMemoryStorage()
	}
	if cfg.Environment == nil {
		cfg.Environment = NewStaticEnvironment(PageInfo{})
	}
	if cfg.Transport == nil || cfg.Beacon == nil {
		if cfg.Endpoint == "" {
			return nil, errors.New("tracker: Endpoint is required without custom Transport and Beacon")
		}
		h := NewHTTPTransport(cfg.Endpoint, nil, cfg.Logger)
		if cfg.Transport == nil {
			cfg.Transport = h
		}
		if cfg.Beacon == nil {
			cfg.Beacon = h
		}
	}

	t := &Tracker{
		cfg:      cfg,
		queue:    NewQueue(),
		flushReq: make(chan struct{}, 1),
	}
	t.online.Store(true)

	sessionID, ok, err := cfg.Storage.Get(sessionKey)
	if err != nil {
		return nil, fmt.Errorf("tracker: load session id: %w", err)
	}
	if !ok || sessionID == "" {
		sessionID = utils.GenerateSessionID(cfg.Clock.Now())
		if err := cfg.Storage.Set(sessionKey, sessionID); err != nil {
			return nil, fmt.Errorf("tracker: persist session id: %w", err)
		}
	}
	t.sessionID = sessionID

	if userID, ok, err := cfg.Storage.Get(userKey); err == nil && ok {
		t.userID = userID
	}
	return t, nil
}

// Start begins background delivery and records the initial page view.
func (t *Tracker) Start(ctx context.Context) {
	ctx, t.cancel = context.WithCancel(ctx)

	t.loop.Add(1)
	go t.run(ctx)

	t.ticker = t.cfg.Clock.TickerFunc(ctx, t.cfg.FlushInterval, func() error {
		if t.queue.Len() > 0 {
			t.flushLogged(ctx)
		}
		return nil
	}, "tracker", "flush")

	t.TrackPageView()
}

func (t *Tracker) run(ctx context.Context) {
	defer t.loop.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.flushReq:
			t.flushLogged(ctx)
		}
	}
}

func (t *Tracker) requestFlush() {
	select {
	case t.flushReq <- struct{}{}:
	default:
	}
}

func (t *Tracker) flushLogged(ctx context.Context) {
	if err := t.Flush(ctx); err != nil {
		t.cfg.Logger.Warn("Failed to send analytics events: %v", err)
	}
}

func (t *Tracker) SessionID() string {
	t.sessionMu.RLock()
	defer t.sessionMu.RUnlock()
	return t.sessionID
}

// Track queues an event of the given type. Page views, and reaching the
// batch size, request an immediate flush; Track itself never does I/O.
func (t *Tracker) Track(eventType string, attributes map[string]any) {
	if t.closed.Load() {
		t.cfg.Logger.Debug("Dropping %s event tracked after close", eventType)
		return
	}

	page := t.cfg.Environment.Page()
	data := make(map[string]any, len(attributes)+5)
	for k, v := range attributes {
		data[k] = v
	}
	data["userAgent"] = page.UserAgent
	data["screenWidth"] = page.ScreenWidth
	data["screenHeight"] = page.ScreenHeight
	data["viewportWidth"] = page.ViewportWidth
	data["viewportHeight"] = page.ViewportHeight

	n := t.queue.Enqueue(Event{
		SessionID: t.SessionID(),
		Type:      eventType,
		URL:       page.URL,
		Timestamp: t.cfg.Clock.Now().UTC().Format(timestampLayout),
		Data:      data,
	})

	if eventType == EventTypePageView || n >= t.cfg.BatchSize {
		t.requestFlush()
	}
}

func (t *Tracker) TrackPageView() {
	page := t.cfg.Environment.Page()
	t.Track(EventTypePageView, map[string]any{
		"title":    page.Title,
		"referrer": page.Referrer,
	})
}

// TrackClick records a click. Clicks on password inputs are never captured.
func (t *Tracker) TrackClick(target ClickTarget) {
	if strings.EqualFold(target.Tag, "input") && strings.EqualFold(target.InputType, "password") {
		return
	}
	t.Track(EventTypeClick, map[string]any{
		"x":            target.X,
		"y":            target.Y,
		"element":      strings.ToLower(target.Tag),
		"elementId":    target.ID,
		"elementClass": target.Class,
		"elementText":  truncate(target.Text, maxElementText),
	})
}

// VisibilityChanged records a page view whenever the page becomes visible.
func (t *Tracker) VisibilityChanged(visible bool) {
	if visible {
		t.TrackPageView()
	}
}

// SetOnline updates connectivity; going online requests a flush.
func (t *Tracker) SetOnline(online bool) {
	t.online.Store(online)
	if online {
		t.requestFlush()
	}
}

// Pending returns the number of queued events.
func (t *Tracker) Pending() int {
	return t.queue.Len()
}

// Flush drains the queue and delivers it in chunks of at most BatchSize.
// Offline or empty is a no-op. When a chunk fails retryably, every drained
// event returns to the front of the queue and the remaining chunks wait for
// the next flush. Chunks rejected with a client error are dropped.
func (t *Tracker) Flush(ctx context.Context) error {
	t.flushMu.Lock()
	defer t.flushMu.Unlock()

	if !t.online.Load() || t.queue.Len() == 0 {
		return nil
	}

	events := t.queue.Drain()
	for start := 0; start < len(events); start += t.cfg.BatchSize {
		end := min(start+t.cfg.BatchSize, len(events))
		chunk := events[start:end]

		t.cfg.Logger.Debug("Sending batch of %d events", len(chunk))
		err := t.cfg.Transport.Send(ctx, chunk)
		if err == nil {
			continue
		}

		var terr *TransportError
		if errors.As(err, &terr) && !terr.Retryable() {
			t.cfg.Logger.Warn("Dropping batch of %d events rejected with HTTP %d", len(chunk), terr.Status)
			continue
		}

		t.queue.PushFront(events)
		return err
	}
	return nil
}

// PageHide sends whatever is queued through the beacon and clears the
// queue. Nothing is retried: a refused or failed beacon loses the events.
// It does not wait for an in-flight Flush.
func (t *Tracker) PageHide() {
	events := t.queue.Drain()
	if len(events) == 0 {
		return
	}
	if !t.cfg.Beacon.Beacon(events) {
		t.cfg.Logger.Warn("Teardown delivery refused; %d events lost", len(events))
	}
}

// Close stops background delivery and performs teardown delivery.
func (t *Tracker) Close() {
	if !t.closed.CompareAndSwap(false, true) {
		return
	}
	if t.cancel != nil {
		t.cancel()
		t.loop.Wait()
		if t.ticker != nil {
			_ = t.ticker.Wait()
		}
	}
	t.PageHide()
}

// Identify stores the user id and traits alongside the session.
func (t *Tracker) Identify(userID string, traits map[string]any) error {
	encoded, err := json.Marshal(traits)
	if err != nil {
		return fmt.Errorf("tracker: encode traits: %w", err)
	}
	if err := t.cfg.Storage.Set(userKey, userID); err != nil {
		return fmt.Errorf("tracker: persist user id: %w", err)
	}
	if err := t.cfg.Storage.Set(traitsKey, string(encoded)); err != nil {
		return fmt.Errorf("tracker: persist traits: %w", err)
	}
	t.sessionMu.Lock()
	t.userID = userID
	t.sessionMu.Unlock()
	return nil
}

func (t *Tracker) UserID() string {
	t.sessionMu.RLock()
	defer t.sessionMu.RUnlock()
	return t.userID
}

// Reset forgets the stored identity and starts a new persisted session.
func (t *Tracker) Reset() error {
	for _, key := range []string{sessionKey, userKey, traitsKey} {
		if err := t.cfg.Storage.Remove(key); err != nil {
			return fmt.Errorf("tracker: clear %s: %w", key, err)
		}
	}
	sessionID := utils.GenerateSessionID(t.cfg.Clock.Now())
	if err := t.cfg.Storage.Set(sessionKey, sessionID); err != nil {
		return fmt.Errorf("tracker: persist session id: %w", err)
	}

	t.sessionMu.Lock()
	t.sessionID = sessionID
	t.userID = ""
	t.sessionMu.Unlock()
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
