package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mamadbah2/flockbook/internal/config"
	"github.com/mamadbah2/flockbook/internal/domain/models"
	"github.com/mamadbah2/flockbook/internal/farmtime"
	"github.com/mamadbah2/flockbook/internal/service/dailyentry"
	"github.com/mamadbah2/flockbook/pkg/clients/poultry"
)

// backendStub is a minimal farm backend holding one water value per lot and date.
type backendStub struct {
	mu      sync.Mutex
	water   map[string]float64
	methods []string
}

func (b *backendStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /lots/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("id") {
		case "F1":
			writeJSON(w, http.StatusOK, models.Lot{ID: "F1", Code: "F1", Type: models.LotTypeBroiler, CurrentQuantity: 500, BuildingID: "B1"})
		default:
			writeJSON(w, http.StatusNotFound, map[string]any{"detail": map[string]any{"code": "lot_not_found", "message": "Lot not found"}})
		}
	})
	mux.HandleFunc("GET /lots/{id}/daily-entry/{date}", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		resp := models.DailyEntryResponse{Date: r.PathValue("date")}
		if liters, ok := b.water[r.PathValue("id")+"|"+r.PathValue("date")]; ok {
			resp.Exists = true
			resp.Data.Water = &models.WaterValue{Liters: liters}
		}
		writeJSON(w, http.StatusOK, resp)
	})
	write := func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": "bad body"})
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		b.methods = append(b.methods, r.Method)
		if liters, ok := body["water_liters"].(float64); ok {
			b.water[r.PathValue("id")+"|"+body["date"].(string)] = liters
		}
		writeJSON(w, http.StatusOK, models.EntryWriteResponse{Message: "Saisie enregistree", Date: body["date"].(string)})
	}
	mux.HandleFunc("POST /lots/{id}/daily-entry", write)
	mux.HandleFunc("PUT /lots/{id}/daily-entry", write)
	mux.HandleFunc("GET /feed/stock/all", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]any{{"id": "S1", "feed_type": "grower", "quantity_kg": "40.00", "building_id": "B1"}})
	})
	return mux
}

func (b *backendStub) writeMethods() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.methods...)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type testEnv struct {
	engine  *gin.Engine
	backend *backendStub
	coord   *dailyentry.Coordinator
}

func newTestEnv(t *testing.T, history HistoryReader) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	backend := &backendStub{water: map[string]float64{"F1|2025-06-01": 80}}
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)

	client := poultry.NewClient(config.BackendConfig{BaseURL: srv.URL, Timeout: 2 * time.Second})
	tz, err := farmtime.New("Africa/Douala")
	require.NoError(t, err)
	tz = tz.WithClock(func() time.Time { return time.Date(2025, time.June, 3, 9, 0, 0, 0, time.UTC) })

	logger := zaptest.NewLogger(t)
	coord := dailyentry.NewCoordinator(client, tz, logger)
	registry := dailyentry.NewFormRegistry(coord)

	forms := NewFormHandler(registry, tz, logger)
	entries := NewEntryHandler(coord, history, logger)

	r := gin.New()
	r.POST("/forms", forms.Create)
	r.GET("/forms/:id", forms.Get)
	r.PUT("/forms/:id/date", forms.SwitchDate)
	r.POST("/forms/:id/reload", forms.Reload)
	r.PUT("/forms/:id/draft", forms.EditDraft)
	r.POST("/forms/:id/submit", forms.Submit)
	r.DELETE("/forms/:id", forms.Close)
	r.GET("/lots/:id/daily-entry/:date", entries.DailyEntry)
	r.GET("/lots/:id/submissions", entries.Submissions)
	r.GET("/stock/sufficiency", entries.StockSufficiency)

	return &testEnv{engine: r, backend: backend, coord: coord}
}
