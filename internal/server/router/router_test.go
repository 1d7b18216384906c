package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mamadbah2/flockbook/internal/config"
	"github.com/mamadbah2/flockbook/internal/farmtime"
	"github.com/mamadbah2/flockbook/internal/server/handlers"
	"github.com/mamadbah2/flockbook/internal/service/dailyentry"
	"github.com/mamadbah2/flockbook/pkg/clients/poultry"
)

type observed struct {
	method, route string
	status        int
}

type recordingObserver struct {
	mu   sync.Mutex
	seen []observed
}

func (o *recordingObserver) ObserveRequest(method, route string, status int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, observed{method, route, status})
}

func newDeps(t *testing.T, observer RequestObserver) Dependencies {
	t.Helper()
	logger := zaptest.NewLogger(t)
	tz, err := farmtime.New("Africa/Douala")
	require.NoError(t, err)
	client := poultry.NewClient(config.BackendConfig{BaseURL: "http://127.0.0.1:1", Timeout: time.Second})
	coord := dailyentry.NewCoordinator(client, tz, logger)

	return Dependencies{
		Forms:    handlers.NewFormHandler(dailyentry.NewFormRegistry(coord), tz, logger),
		Entries:  handlers.NewEntryHandler(coord, nil, logger),
		Metrics:  http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("flockbook_up 1\n")) }),
		Observer: observer,
	}
}

func TestHealthAndMetrics(t *testing.T) {
	r := New(newDeps(t, nil), zaptest.NewLogger(t))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "flockbook_up"))
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthReportsStoreReadiness(t *testing.T) {
	deps := newDeps(t, nil)
	var redisErr error
	deps.Readiness = map[string]Pinger{
		"mongodb": pingFunc(func(context.Context) error { return nil }),
		"redis":   pingFunc(func(context.Context) error { return redisErr }),
	}
	r := New(deps, zaptest.NewLogger(t))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","checks":{"mongodb":"ok","redis":"ok"}}`, rec.Body.String())

	redisErr = errors.New("dial tcp 127.0.0.1:6379: connection refused")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"degraded","checks":{"mongodb":"ok","redis":"unavailable"}}`, rec.Body.String())
}

func TestWebhookRoutesOnlyWhenConfigured(t *testing.T) {
	r := New(newDeps(t, nil), nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhook", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsMiddlewareUsesRouteTemplate(t *testing.T) {
	observer := &recordingObserver{}
	r := New(newDeps(t, observer), nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/forms/3f2a9c", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	observer.mu.Lock()
	defer observer.mu.Unlock()
	require.Len(t, observer.seen, 2)
	assert.Equal(t, observed{http.MethodGet, "/forms/:id", http.StatusNotFound}, observer.seen[0])
	assert.Equal(t, "unmatched", observer.seen[1].route)
}
