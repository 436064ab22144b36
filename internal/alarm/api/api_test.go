package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/qiniu/alarmhook/internal/alarm"
	"github.com/qiniu/alarmhook/internal/webhook"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memCache struct {
	mu       sync.Mutex
	seen     map[string]bool
	released []string
}

func newMemCache() *memCache { return &memCache{seen: map[string]bool{}} }

func (m *memCache) TryMark(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	return true, nil
}

func (m *memCache) Release(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.seen, k)
		m.released = append(m.released, k)
	}
	return nil
}

type staticTargets webhook.Targets

func (s staticTargets) Targets() webhook.Targets { return webhook.Targets(s) }

func newTestRouter(h *Handler, bearer string, g prometheus.Gatherer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, h, bearer, g)
	return r
}

func do(r http.Handler, method, path, body string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestPostAlarms_Array(t *testing.T) {
	queue := make(chan []alarm.Event, 1)
	h := NewHandler(queue, nil)
	fixed := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return fixed }
	r := newTestRouter(h, "", nil)

	w := do(r, http.MethodPost, "/v1/alarms",
		`[{"scope":"ALL","message":"m1"},{"scope":"endpoint","name":"/api","message":"m2","startTime":"2024-04-30T10:00:00Z"}]`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, float64(2), decode(t, w)["accepted"])

	batch := <-queue
	require.Len(t, batch, 2)
	assert.Equal(t, alarm.ScopeAll, batch[0].Scope)
	assert.Equal(t, alarm.ScopeEndpoint, batch[1].Scope)
	assert.NotEmpty(t, batch[0].ID)
	assert.Equal(t, fixed, batch[0].StartTime)
	assert.Equal(t, time.Date(2024, 4, 30, 10, 0, 0, 0, time.UTC), batch[1].StartTime)
}

func TestPostAlarms_Envelope(t *testing.T) {
	queue := make(chan []alarm.Event, 1)
	r := newTestRouter(NewHandler(queue, nil), "", nil)

	w := do(r, http.MethodPost, "/v1/alarms", `{"alarms":[{"scope":"SERVICE","name":"svc","message":"slow"}]}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	batch := <-queue
	require.Len(t, batch, 1)
	assert.Equal(t, "svc", batch[0].Name)
}

func TestPostAlarms_BadRequest(t *testing.T) {
	queue := make(chan []alarm.Event, 1)
	r := newTestRouter(NewHandler(queue, nil), "", nil)

	tests := []struct {
		name string
		body string
	}{
		{"empty_body", ""},
		{"empty_array", "[]"},
		{"empty_envelope", `{"alarms":[]}`},
		{"unknown_scope", `[{"scope":"PLANET","message":"x"}]`},
		{"missing_scope", `[{"message":"x"}]`},
		{"not_json", "alarm!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodPost, "/v1/alarms", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, false, decode(t, w)["ok"])
		})
	}
	assert.Empty(t, queue)
}

func TestPostAlarms_Duplicates(t *testing.T) {
	queue := make(chan []alarm.Event, 2)
	r := newTestRouter(NewHandlerWithCache(queue, nil, newMemCache()), "", nil)
	body := `[{"id":"a-1","scope":"ALL","message":"m1"},{"id":"a-2","scope":"ALL","message":"m2"}]`

	w := do(r, http.MethodPost, "/v1/alarms", body)
	require.Equal(t, http.StatusAccepted, w.Code)

	w = do(r, http.MethodPost, "/v1/alarms", body)
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.Equal(t, float64(0), out["accepted"])
	assert.Equal(t, float64(2), out["duplicates"])
	assert.Len(t, queue, 1)
}

func TestPostAlarms_DistinctAlarmsWithoutIDAreKept(t *testing.T) {
	queue := make(chan []alarm.Event, 4)
	r := newTestRouter(NewHandlerWithCache(queue, nil, newMemCache()), "", nil)

	// no id and no start time: never deduplicated
	w := do(r, http.MethodPost, "/v1/alarms", `[{"scope":"ALL","message":"m1"},{"scope":"ALL","message":"disk full on host-7"}]`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, float64(2), decode(t, w)["accepted"])

	w = do(r, http.MethodPost, "/v1/alarms", `[{"scope":"ALL","message":"m1"}]`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["accepted"])

	// with a start time the message still tells alarms apart
	timed := `[{"scope":"SERVICE","name":"svc","message":"%s","startTime":"2024-04-30T10:00:00Z"}]`
	w = do(r, http.MethodPost, "/v1/alarms", strings.Replace(timed, "%s", "slow", 1))
	require.Equal(t, http.StatusAccepted, w.Code)
	w = do(r, http.MethodPost, "/v1/alarms", strings.Replace(timed, "%s", "down", 1))
	require.Equal(t, http.StatusAccepted, w.Code)
	w = do(r, http.MethodPost, "/v1/alarms", strings.Replace(timed, "%s", "down", 1))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["duplicates"])

	assert.Len(t, queue, 4)
}

func TestPostAlarms_QueueFullReleasesKeys(t *testing.T) {
	queue := make(chan []alarm.Event) // unbuffered and never read
	cache := newMemCache()
	r := newTestRouter(NewHandlerWithCache(queue, nil, cache), "", nil)

	w := do(r, http.MethodPost, "/v1/alarms", `[{"id":"a-1","scope":"ALL","message":"m1"}]`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, []string{"a-1"}, cache.released)

	// a retry is not treated as a duplicate
	ok, err := cache.TryMark(context.Background(), "a-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBearerAuth(t *testing.T) {
	queue := make(chan []alarm.Event, 1)
	r := newTestRouter(NewHandler(queue, nil), "s3cret", nil)
	body := `[{"scope":"ALL","message":"m1"}]`

	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodPost, "/v1/alarms", body).Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodPost, "/v1/alarms", body, "Authorization", "Bearer nope").Code)
	assert.Equal(t, http.StatusAccepted, do(r, http.MethodPost, "/v1/alarms", body, "Authorization", "Bearer s3cret").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/-/healthy", "").Code)
}

func TestListTargetsAndTransformers(t *testing.T) {
	targets := staticTargets{
		{Key: "default", URLs: []string{"http://host/a", "http://host/b"}},
		{Key: "slack", URLs: []string{"https://hooks.example.com/s"}},
	}
	h := NewHandler(make(chan []alarm.Event, 1), targets)
	h.keys = func() []string { return []string{"default", "slack"} }
	r := newTestRouter(h, "", nil)

	w := do(r, http.MethodGet, "/v1/webhook/targets", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		Groups webhook.Targets `json:"groups"`
		URLs   int             `json:"urls"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, webhook.Targets(targets), got.Groups)
	assert.Equal(t, 3, got.URLs)

	w = do(r, http.MethodGet, "/v1/webhook/transformers", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"transformers":["default","slack"]}`, w.Body.String())
}

func TestListTargets_NoLister(t *testing.T) {
	r := newTestRouter(NewHandler(make(chan []alarm.Event, 1), nil), "", nil)
	w := do(r, http.MethodGet, "/v1/webhook/targets", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"groups":[],"urls":0}`, w.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "alarmhook_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	r := newTestRouter(NewHandler(make(chan []alarm.Event, 1), nil), "token", reg)
	w := do(r, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alarmhook_test_total 1")
}

func TestRedisCache(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer rdb.Close()

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skip("Redis not available, skipping test")
	}

	cache := NewRedisCache(rdb, time.Minute)
	cache.Prefix = "alarmhook:test:" + time.Now().Format("150405.000000") + ":"
	defer rdb.Del(ctx, cache.Prefix+"k1")

	ok, err := cache.TryMark(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cache.TryMark(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Release(ctx, "k1"))
	ok, err = cache.TryMark(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisCache_Unavailable(t *testing.T) {
	// nothing listens on port 1
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	defer rdb.Close()

	ok, err := NewRedisCache(rdb, 0).TryMark(context.Background(), "k")
	assert.Error(t, err)
	assert.True(t, ok, "alarms pass through when the cache is down")

	var nilCache *RedisCache
	ok, err = nilCache.TryMark(context.Background(), "k")
	assert.NoError(t, err)
	assert.True(t, ok)
}
