package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clickstream/api/analytics"
	"clickstream/api/database"
	"clickstream/api/metrics"
	"clickstream/api/models"
	"clickstream/api/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	router *gin.Engine
	store  *store.SQLiteStore
}

func newRouter(events store.EventStore, sessions store.SessionStore, clock quartz.Clock) *gin.Engine {
	svc := analytics.NewService(events, sessions, clock, metrics.New(prometheus.NewRegistry()))
	eh := NewEventsHandlers(svc, 5*time.Second)
	sh := NewSessionsHandlers(svc, 5*time.Second)

	r := gin.New()
	r.POST("/events", eh.CreateEvents)
	r.GET("/events/heatmap", eh.GetHeatmap)
	r.GET("/sessions", sh.ListSessions)
	r.GET("/sessions/:sessionId/events", sh.GetSessionEvents)
	r.GET("/sessions/:sessionId/journey", sh.GetSessionJourney)
	return r
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	client, err := database.NewSQLiteDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(client.Close)
	require.NoError(t, client.EnsureSQLiteSchema(context.Background()))
	st := store.NewSQLiteStore(client.DB)

	clock := quartz.NewMock(t)
	clock.Set(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	return &testEnv{router: newRouter(st, st, clock), store: st}
}

func (e *testEnv) do(t *testing.T, method, target, body, contentType string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var decoded map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	}
	return w, decoded
}

func TestCreateEvents_Batch(t *testing.T) {
	env := newTestEnv(t)
	w, body := env.do(t, http.MethodPost, "/events", `[
		{"sessionId":"s1","type":"page_view","url":"https://a.test/"},
		{"sessionId":"","type":"click","url":"https://a.test/"},
		{"sessionId":"s1","type":"click","url":"https://a.test/","data":{"x":1,"y":2}}
	]`, "application/json")

	require.Equal(t, http.StatusCreated, w.Code)
	data := body["data"].(map[string]any)
	assert.EqualValues(t, 2, data["count"])
	events := data["events"].([]any)
	require.Len(t, events, 2)
	first := events[0].(map[string]any)
	assert.NotEmpty(t, first["eventId"])
	assert.Equal(t, "s1", first["sessionId"])
	assert.NotEmpty(t, first["timestamp"])
}

func TestCreateEvents_BeaconTextPlainBody(t *testing.T) {
	env := newTestEnv(t)
	w, body := env.do(t, http.MethodPost, "/events",
		`{"sessionId":"s1","type":"click","url":"https://a.test/"}`, "text/plain;charset=UTF-8")

	require.Equal(t, http.StatusCreated, w.Code)
	assert.EqualValues(t, 1, body["data"].(map[string]any)["count"])
}

func TestCreateEvents_AllInvalidStillCreated(t *testing.T) {
	env := newTestEnv(t)
	w, body := env.do(t, http.MethodPost, "/events", `[{"type":"click"}]`, "application/json")

	require.Equal(t, http.StatusCreated, w.Code)
	data := body["data"].(map[string]any)
	assert.EqualValues(t, 0, data["count"])
	assert.Empty(t, data["events"])
}

func TestCreateEvents_MalformedBody(t *testing.T) {
	env := newTestEnv(t)
	w, body := env.do(t, http.MethodPost, "/events", `{"sessionId":`, "application/json")

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeValidation, body["error"].(map[string]any)["code"])
}

type brokenEvents struct{ store.EventStore }

func (brokenEvents) InsertEvent(context.Context, *models.Event) error {
	return errors.New("connection refused")
}

func TestCreateEvents_PersistenceFailure(t *testing.T) {
	env := newTestEnv(t)
	r := newRouter(brokenEvents{env.store}, env.store, quartz.NewReal())

	req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(`{"sessionId":"s1","type":"click","url":"u"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":{"message":"Failed to create event","code":"INTERNAL_ERROR"}}`, w.Body.String())
}

func TestGetHeatmap(t *testing.T) {
	env := newTestEnv(t)
	page := "https://a.test/pricing?plan=pro"
	for _, b := range []string{
		`{"sessionId":"s1","type":"click","url":"` + page + `","timestamp":"2025-01-01T00:00:00Z","data":{"x":10,"y":20}}`,
		`{"sessionId":"s2","type":"click","url":"` + page + `","timestamp":"2025-01-02T00:00:00Z","data":{"x":10,"y":20}}`,
	} {
		w, _ := env.do(t, http.MethodPost, "/events", b, "application/json")
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w, body := env.do(t, http.MethodGet, "/events/heatmap?url="+url.QueryEscape(page), "", "")
	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, page, data["url"])
	assert.EqualValues(t, 2, data["totalClicks"])
	assert.EqualValues(t, 2, data["uniqueSessions"])
	assert.Equal(t, []any{map[string]any{"x": 10.0, "y": 20.0, "count": 2.0}}, data["clicks"])

	w, body = env.do(t, http.MethodGet, "/events/heatmap?url="+url.QueryEscape(page)+"&startDate=2025-01-01T00:00:00Z&endDate=2025-01-01T00:00:00Z", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["data"].(map[string]any)["totalClicks"])
}

func TestGetHeatmap_EmptyAndValidation(t *testing.T) {
	env := newTestEnv(t)

	w, _ := env.do(t, http.MethodGet, "/events/heatmap?url=https%3A%2F%2Fnone.test%2F", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":{"url":"https://none.test/","clicks":[],"totalClicks":0,"uniqueSessions":0}}`, w.Body.String())

	w, _ = env.do(t, http.MethodGet, "/events/heatmap", "", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":{"message":"URL is required","code":"VALIDATION_ERROR"}}`, w.Body.String())

	w, body := env.do(t, http.MethodGet, "/events/heatmap?url=u&startDate=tomorrow", "", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeValidation, body["error"].(map[string]any)["code"])
}

func TestSessionEndpoints(t *testing.T) {
	env := newTestEnv(t)
	w, _ := env.do(t, http.MethodPost, "/events", `[
		{"sessionId":"s1","type":"page_view","url":"https://a.test/","timestamp":"2025-01-01T00:00:00Z","data":{"title":"Home","userAgent":"UA"}},
		{"sessionId":"s1","type":"click","url":"https://a.test/","timestamp":"2025-01-01T00:00:05Z","data":{"x":3,"y":4,"element":"button","userAgent":"UA"}}
	]`, "application/json")
	require.Equal(t, http.StatusCreated, w.Code)

	w, body := env.do(t, http.MethodGet, "/sessions?page=1&limit=10&activeOnly=true", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"page": 1.0, "limit": 10.0, "total": 1.0, "totalPages": 1.0}, body["pagination"])
	sessions := body["data"].([]any)
	require.Len(t, sessions, 1)
	ledger := sessions[0].(map[string]any)
	assert.Equal(t, "s1", ledger["sessionId"])
	assert.EqualValues(t, 2, ledger["eventCount"])
	assert.EqualValues(t, 1, ledger["pageViews"])
	assert.EqualValues(t, 1, ledger["clicks"])
	assert.Nil(t, ledger["endTime"])
	assert.Equal(t, "UA", ledger["userAgent"])

	w, body = env.do(t, http.MethodGet, "/sessions/s1/events", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["data"], 2)
	assert.Equal(t, "s1", body["session"].(map[string]any)["sessionId"])

	w, _ = env.do(t, http.MethodGet, "/sessions/s1/journey", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":[
		{"timestamp":"2025-01-01T00:00:00Z","type":"page_view","url":"https://a.test/","details":{"title":"Home"}},
		{"timestamp":"2025-01-01T00:00:05Z","type":"click","url":"https://a.test/","details":{"x":3,"y":4,"element":"button"}}
	]}`, w.Body.String())
}

func TestSessionEndpoints_NotFound(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/sessions/ghost/events", "/sessions/ghost/journey"} {
		w, _ := env.do(t, http.MethodGet, path, "", "")
		require.Equal(t, http.StatusNotFound, w.Code, path)
		assert.JSONEq(t, `{"error":{"message":"Session not found","code":"NOT_FOUND"}}`, w.Body.String())
	}
}

func TestListSessions_Empty(t *testing.T) {
	env := newTestEnv(t)
	w, _ := env.do(t, http.MethodGet, "/sessions?page=abc", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":[],"pagination":{"page":1,"limit":20,"total":0,"totalPages":0}}`, w.Body.String())
}
