package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu      sync.Mutex
	chunks  [][]Event
	err     error
	started chan struct{}
	release chan struct{}
}

func (f *fakeTransport) Send(ctx context.Context, events []Event) error {
	if f.started != nil {
		f.started <- struct{}{}
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.chunks = append(f.chunks, append([]Event(nil), events...))
	return nil
}

func (f *fakeTransport) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeTransport) sent() [][]Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]Event(nil), f.chunks...)
}

func (f *fakeTransport) delivered() []string {
	var urls []string
	for _, c := range f.sent() {
		urls = append(urls, names(c)...)
	}
	return urls
}

type fakeBeacon struct {
	mu       sync.Mutex
	payloads [][]Event
	refuse   bool
}

func (f *fakeBeacon) Beacon(events []Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refuse {
		return false
	}
	f.payloads = append(f.payloads, events)
	return true
}

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	tracker   *Tracker
	transport *fakeTransport
	beacon    *fakeBeacon
	env       *StaticEnvironment
	clock     *quartz.Mock
	storage   *MemoryStorage
}

func newHarness(t *testing.T, batchSize int) *harness {
	t.Helper()
	h := &harness{
		transport: &fakeTransport{},
		beacon:    &fakeBeacon{},
		env: NewStaticEnvironment(PageInfo{
			URL: "https://shop.test/", Title: "Shop", UserAgent: "UA/1",
			ScreenWidth: 1920, ScreenHeight: 1080, ViewportWidth: 1280, ViewportHeight: 720,
		}),
		clock:   quartz.NewMock(t),
		storage: NewMemoryStorage(),
	}
	h.clock.Set(baseTime)

	tr, err := New(Config{
		BatchSize:   batchSize,
		Transport:   h.transport,
		Beacon:      h.beacon,
		Storage:     h.storage,
		Environment: h.env,
		Logger:      NoopLogger{},
		Clock:       h.clock,
	})
	require.NoError(t, err)
	h.tracker = tr
	return h
}

// trackClicks queues clicks whose URL is set to the given labels.
func (h *harness) trackClicks(labels ...string) {
	for _, l := range labels {
		h.env.Navigate(l, "")
		h.tracker.TrackClick(ClickTarget{X: 1, Y: 2, Tag: "BUTTON"})
	}
}

func TestNew_RequiresEndpointWithoutTransports(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestTrack_BuildsEvent(t *testing.T) {
	h := newHarness(t, 10)
	h.tracker.TrackClick(ClickTarget{
		X: 10, Y: 20, Tag: "A", ID: "buy", Class: "btn primary",
		Text: strings.Repeat("x", 150),
	})

	queued := h.tracker.queue.Snapshot()
	require.Len(t, queued, 1)
	e := queued[0]
	assert.Equal(t, h.tracker.SessionID(), e.SessionID)
	assert.Equal(t, EventTypeClick, e.Type)
	assert.Equal(t, "https://shop.test/", e.URL)
	assert.Equal(t, "2025-03-01T12:00:00.000Z", e.Timestamp)
	assert.Equal(t, 10, e.Data["x"])
	assert.Equal(t, 20, e.Data["y"])
	assert.Equal(t, "a", e.Data["element"])
	assert.Equal(t, "buy", e.Data["elementId"])
	assert.Equal(t, "btn primary", e.Data["elementClass"])
	assert.Len(t, e.Data["elementText"], 100)
	assert.Equal(t, "UA/1", e.Data["userAgent"])
	assert.Equal(t, 1920, e.Data["screenWidth"])
	assert.Equal(t, 720, e.Data["viewportHeight"])
}

func TestTrackClick_IgnoresPasswordFields(t *testing.T) {
	h := newHarness(t, 10)
	h.tracker.TrackClick(ClickTarget{Tag: "INPUT", InputType: "password"})
	h.tracker.TrackClick(ClickTarget{Tag: "input", InputType: "Password"})
	assert.Zero(t, h.tracker.Pending())

	h.tracker.TrackClick(ClickTarget{Tag: "INPUT", InputType: "text"})
	assert.Equal(t, 1, h.tracker.Pending())
}

func TestTrackPageView_UsesTitleAndReferrer(t *testing.T) {
	h := newHarness(t, 10)
	h.env.Navigate("https://shop.test/cart", "Cart")
	h.tracker.TrackPageView()

	e := h.tracker.queue.Snapshot()[0]
	assert.Equal(t, EventTypePageView, e.Type)
	assert.Equal(t, "https://shop.test/cart", e.URL)
	assert.Equal(t, "Cart", e.Data["title"])
	assert.Equal(t, "https://shop.test/", e.Data["referrer"])
}

func TestFlush_ChunksByBatchSize(t *testing.T) {
	h := newHarness(t, 10)
	for i := 0; i < 21; i++ {
		h.tracker.queue.Enqueue(Event{URL: fmt.Sprintf("e%d", i)})
	}

	require.NoError(t, h.tracker.Flush(context.Background()))

	chunks := h.transport.sent()
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 10)
	assert.Len(t, chunks[1], 10)
	assert.Len(t, chunks[2], 1)
	assert.Equal(t, "e0", chunks[0][0].URL)
	assert.Equal(t, "e20", chunks[2][0].URL)
	assert.Zero(t, h.tracker.Pending())
}

func TestFlush_NoopWhenEmptyOrOffline(t *testing.T) {
	h := newHarness(t, 10)
	require.NoError(t, h.tracker.Flush(context.Background()))
	assert.Empty(t, h.transport.sent())

	h.tracker.SetOnline(false)
	h.trackClicks("a")
	require.NoError(t, h.tracker.Flush(context.Background()))
	assert.Empty(t, h.transport.sent())
	assert.Equal(t, 1, h.tracker.Pending())
}

func TestFlush_FailureRequeuesAtFront(t *testing.T) {
	h := newHarness(t, 10)
	h.trackClicks("a", "b", "c")

	h.transport.setErr(&TransportError{Err: errors.New("connection refused")})
	err := h.tracker.Flush(context.Background())
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, []string{"a", "b", "c"}, names(h.tracker.queue.Snapshot()))

	h.trackClicks("d")
	h.transport.setErr(nil)
	require.NoError(t, h.tracker.Flush(context.Background()))
	assert.Equal(t, []string{"a", "b", "c", "d"}, h.transport.delivered())
	assert.Zero(t, h.tracker.Pending())
}

func TestFlush_FailureRequeuesWholeDrain(t *testing.T) {
	h := newHarness(t, 2)
	for i := 0; i < 3; i++ {
		h.tracker.queue.Enqueue(Event{URL: fmt.Sprintf("e%d", i)})
	}

	calls := 0
	failing := &scriptedTransport{send: func(events []Event) error {
		calls++
		if calls == 2 {
			return &TransportError{Status: 503}
		}
		return nil
	}}
	h.tracker.cfg.Transport = failing

	require.Error(t, h.tracker.Flush(context.Background()))
	assert.Equal(t, 2, calls)
	assert.Equal(t, []string{"e0", "e1", "e2"}, names(h.tracker.queue.Snapshot()))
}

func TestFlush_ClientErrorDropsChunk(t *testing.T) {
	h := newHarness(t, 10)
	h.trackClicks("a", "b")
	h.transport.setErr(&TransportError{Status: 400})

	require.NoError(t, h.tracker.Flush(context.Background()))
	assert.Zero(t, h.tracker.Pending())
}

type scriptedTransport struct {
	send func([]Event) error
}

func (s *scriptedTransport) Send(_ context.Context, events []Event) error { return s.send(events) }

func TestFlush_TrackDuringInflightFlushWaitsForNextCycle(t *testing.T) {
	h := newHarness(t, 10)
	h.transport.started = make(chan struct{})
	h.transport.release = make(chan struct{})
	h.trackClicks("a", "b")

	done := make(chan error, 1)
	go func() { done <- h.tracker.Flush(context.Background()) }()

	<-h.transport.started
	h.trackClicks("late")
	h.transport.setErr(&TransportError{Err: errors.New("timeout")})
	close(h.transport.release)
	require.Error(t, <-done)

	assert.Equal(t, []string{"a", "b", "late"}, names(h.tracker.queue.Snapshot()))
}

func TestStart_PageViewTriggersFlush(t *testing.T) {
	h := newHarness(t, 10)
	h.tracker.Start(context.Background())
	t.Cleanup(h.tracker.Close)

	require.Eventually(t, func() bool { return len(h.transport.sent()) == 1 }, 5*time.Second, 10*time.Millisecond)
	chunk := h.transport.sent()[0]
	require.Len(t, chunk, 1)
	assert.Equal(t, EventTypePageView, chunk[0].Type)
	assert.Equal(t, "Shop", chunk[0].Data["title"])
}

func TestStart_BatchSizeTriggersFlush(t *testing.T) {
	h := newHarness(t, 3)
	h.tracker.Start(context.Background())
	t.Cleanup(h.tracker.Close)
	require.Eventually(t, func() bool { return len(h.transport.delivered()) == 1 }, 5*time.Second, 10*time.Millisecond)

	h.trackClicks("a", "b")
	assert.Never(t, func() bool { return len(h.transport.delivered()) > 1 }, 100*time.Millisecond, 10*time.Millisecond)

	h.trackClicks("c")
	require.Eventually(t, func() bool { return len(h.transport.delivered()) == 4 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"https://shop.test/", "a", "b", "c"}, h.transport.delivered())
}

func TestSetOnline_FlushesWhenBackOnline(t *testing.T) {
	h := newHarness(t, 10)
	h.tracker.SetOnline(false)
	h.tracker.Start(context.Background())
	t.Cleanup(h.tracker.Close)

	h.trackClicks("a")
	assert.Never(t, func() bool { return len(h.transport.sent()) > 0 }, 100*time.Millisecond, 10*time.Millisecond)

	h.tracker.SetOnline(true)
	require.Eventually(t, func() bool { return len(h.transport.delivered()) == 2 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"https://shop.test/", "a"}, h.transport.delivered())
}

func TestStart_PeriodicFlush(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	h := newHarness(t, 10)
	h.tracker.Start(ctx)
	t.Cleanup(h.tracker.Close)
	require.Eventually(t, func() bool { return len(h.transport.sent()) == 1 }, 5*time.Second, 10*time.Millisecond)

	h.trackClicks("a")
	assert.Equal(t, 1, h.tracker.Pending())

	h.clock.Advance(DefaultFlushInterval).MustWait(ctx)
	assert.Zero(t, h.tracker.Pending())
	assert.Equal(t, []string{"https://shop.test/", "a"}, h.transport.delivered())
}

func TestVisibilityChanged(t *testing.T) {
	h := newHarness(t, 10)
	h.tracker.VisibilityChanged(false)
	assert.Zero(t, h.tracker.Pending())
	h.tracker.VisibilityChanged(true)
	assert.Equal(t, 1, h.tracker.Pending())
}

func TestClose_BeaconsQueueAndClears(t *testing.T) {
	h := newHarness(t, 10)
	h.tracker.SetOnline(false)
	h.tracker.Start(context.Background())
	h.trackClicks("a", "b")

	h.tracker.Close()

	require.Len(t, h.beacon.payloads, 1)
	assert.Equal(t, []string{"https://shop.test/", "a", "b"}, names(h.beacon.payloads[0]))
	assert.Zero(t, h.tracker.Pending())
	assert.Empty(t, h.transport.sent())

	h.trackClicks("after")
	assert.Zero(t, h.tracker.Pending())
	h.tracker.Close()
	assert.Len(t, h.beacon.payloads, 1)
}

func TestPageHide_DoesNotWaitForInflightFlush(t *testing.T) {
	h := newHarness(t, 10)
	h.transport.started = make(chan struct{})
	h.transport.release = make(chan struct{})
	h.trackClicks("a")

	done := make(chan error, 1)
	go func() { done <- h.tracker.Flush(context.Background()) }()
	<-h.transport.started

	h.trackClicks("b")
	hidden := make(chan struct{})
	go func() {
		h.tracker.PageHide()
		close(hidden)
	}()

	select {
	case <-hidden:
	case <-time.After(2 * time.Second):
		t.Fatal("PageHide blocked behind the in-flight flush")
	}
	require.Len(t, h.beacon.payloads, 1)
	assert.Equal(t, []string{"b"}, names(h.beacon.payloads[0]))

	close(h.transport.release)
	require.NoError(t, <-done)
	assert.Equal(t, []string{"a"}, h.transport.delivered())
}

func TestPageHide_RefusedBeaconLosesEvents(t *testing.T) {
	h := newHarness(t, 10)
	h.beacon.refuse = true
	h.trackClicks("a")

	h.tracker.PageHide()
	assert.Zero(t, h.tracker.Pending())
	assert.Empty(t, h.beacon.payloads)
}

func TestPageHide_EmptyQueueSendsNothing(t *testing.T) {
	h := newHarness(t, 10)
	h.tracker.PageHide()
	assert.Empty(t, h.beacon.payloads)
}

func TestSession_PersistedAcrossTrackers(t *testing.T) {
	h := newHarness(t, 10)
	id := h.tracker.SessionID()
	assert.Regexp(t, `^sess_\d+_[0-9a-z]{9}$`, id)

	again, err := New(Config{Transport: h.transport, Beacon: h.beacon, Storage: h.storage, Clock: h.clock, Logger: NoopLogger{}})
	require.NoError(t, err)
	assert.Equal(t, id, again.SessionID())
}

func TestIdentifyAndReset(t *testing.T) {
	h := newHarness(t, 10)
	original := h.tracker.SessionID()

	require.NoError(t, h.tracker.Identify("user-7", map[string]any{"plan": "pro"}))
	assert.Equal(t, "user-7", h.tracker.UserID())
	traits, ok, err := h.storage.Get(traitsKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"plan":"pro"}`, traits)

	h.clock.Advance(time.Second)
	require.NoError(t, h.tracker.Reset())
	assert.NotEqual(t, original, h.tracker.SessionID())
	assert.Empty(t, h.tracker.UserID())

	stored, ok, err := h.storage.Get(sessionKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, h.tracker.SessionID(), stored)
	_, ok, _ = h.storage.Get(userKey)
	assert.False(t, ok)
}
