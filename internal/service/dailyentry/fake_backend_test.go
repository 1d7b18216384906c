package dailyentry

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"

	"github.com/mamadbah2/flockbook/internal/cache"
	"github.com/mamadbah2/flockbook/internal/domain/models"
	"github.com/mamadbah2/flockbook/internal/farmtime"
	"github.com/mamadbah2/flockbook/pkg/clients/poultry"
)

type backendCall struct {
	Method  string
	Op      string
	LotID   string
	Date    string
	Body    map[string]any
	Version string
}

// fakeBackend stores records the way the farm backend does: POST appends one
// record per metric present and applies stock deductions, PUT replaces the
// records and never touches stock.
type fakeBackend struct {
	mu        sync.Mutex
	lots      map[string]models.Lot
	records   map[string]map[models.MetricKind][]map[string]any
	revisions map[string]int
	stocks    []models.FeedStock
	calls     []backendCall

	versioned bool
	getErr    error
	writeErr  error
	// writeGate blocks writes until closed.
	writeGate chan struct{}
	// gates block GetDailyEntry for a date until closed.
	gates map[string]chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		lots: map[string]models.Lot{
			"F1": {ID: "F1", Code: "F1", Type: models.LotTypeBroiler, CurrentQuantity: 500, AgeDays: 21, BuildingID: "B1"},
			"L1": {ID: "L1", Code: "L1", Type: models.LotTypeLayer, CurrentQuantity: 1200, AgeDays: 140, BuildingID: "B2"},
		},
		records:   make(map[string]map[models.MetricKind][]map[string]any),
		revisions: make(map[string]int),
		stocks: []models.FeedStock{
			{ID: "S1", FeedType: "grower", QuantityKg: decimal.NewFromInt(40), BuildingID: "B1"},
		},
		gates: make(map[string]chan struct{}),
	}
}

func (b *fakeBackend) record(c backendCall) {
	b.calls = append(b.calls, c)
}

func (b *fakeBackend) gate(date string) chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan struct{})
	b.gates[date] = ch
	return ch
}

func (b *fakeBackend) GetLot(_ context.Context, lotID string) (*models.Lot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(backendCall{Method: http.MethodGet, Op: "lot", LotID: lotID})
	lot, ok := b.lots[lotID]
	if !ok {
		return nil, &poultry.APIError{Status: http.StatusNotFound, Code: poultry.CodeNotFound, Detail: "Lot not found"}
	}
	return &lot, nil
}

func (b *fakeBackend) ListLots(_ context.Context, status string) ([]models.Lot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(backendCall{Method: http.MethodGet, Op: "lots"})
	out := make([]models.Lot, 0, len(b.lots))
	for _, l := range b.lots {
		out = append(out, l)
	}
	return out, nil
}

func (b *fakeBackend) GetDailyEntry(ctx context.Context, lotID, date string) (*models.DailyEntryResponse, error) {
	b.mu.Lock()
	gate := b.gates[date]
	b.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(backendCall{Method: http.MethodGet, Op: "daily-entry", LotID: lotID, Date: date})
	if b.getErr != nil {
		return nil, b.getErr
	}

	key := lotID + "|" + date
	metrics := b.records[key]
	resp := &models.DailyEntryResponse{Date: date, Exists: len(metrics) > 0}
	if b.versioned && resp.Exists {
		resp.Version = strconv.Itoa(b.revisions[key])
	}
	if recs := metrics[models.MetricFeed]; len(recs) > 0 {
		last := recs[len(recs)-1]
		feed := &models.FeedValue{QuantityKg: last["feed_quantity_kg"].(float64)}
		if ft, ok := last["feed_type"].(string); ok {
			feed.FeedType = &ft
		}
		resp.Data.Feed = feed
	}
	if recs := metrics[models.MetricMortality]; len(recs) > 0 {
		last := recs[len(recs)-1]
		resp.Data.Mortality = &models.MortalityValue{Count: last["mortality_count"].(int), Cause: last["mortality_cause"].(string)}
	}
	if recs := metrics[models.MetricWeight]; len(recs) > 0 {
		last := recs[len(recs)-1]
		resp.Data.Weight = &models.WeightValue{AverageWeightG: last["average_weight_g"].(float64), SampleSize: last["sample_size"].(int)}
	}
	if recs := metrics[models.MetricEggs]; len(recs) > 0 {
		last := recs[len(recs)-1]
		resp.Data.Eggs = &models.EggsValue{Normal: last["eggs_normal"].(int)}
	}
	if recs := metrics[models.MetricWater]; len(recs) > 0 {
		last := recs[len(recs)-1]
		resp.Data.Water = &models.WaterValue{Liters: last["water_liters"].(float64)}
	}
	return resp, nil
}

func (b *fakeBackend) CreateDailyEntry(_ context.Context, lotID string, body map[string]any, version string) (*models.EntryWriteResponse, error) {
	return b.write(http.MethodPost, lotID, body, version)
}

func (b *fakeBackend) UpdateDailyEntry(_ context.Context, lotID string, body map[string]any, version string) (*models.EntryWriteResponse, error) {
	return b.write(http.MethodPut, lotID, body, version)
}

var metricFields = map[string]models.MetricKind{
	"feed_quantity_kg": models.MetricFeed,
	"mortality_count":  models.MetricMortality,
	"average_weight_g": models.MetricWeight,
	"eggs_normal":      models.MetricEggs,
	"water_liters":     models.MetricWater,
}

func (b *fakeBackend) write(method, lotID string, body map[string]any, version string) (*models.EntryWriteResponse, error) {
	b.mu.Lock()
	gate := b.writeGate
	b.mu.Unlock()
	if gate != nil {
		<-gate
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	copied := make(map[string]any, len(body))
	for k, v := range body {
		copied[k] = v
	}
	date, _ := body["date"].(string)
	b.record(backendCall{Method: method, Op: "daily-entry", LotID: lotID, Date: date, Body: copied, Version: version})
	if b.writeErr != nil {
		return nil, b.writeErr
	}

	key := lotID + "|" + date
	if b.versioned && version != "" && version != strconv.Itoa(b.revisions[key]) {
		return nil, &poultry.APIError{Status: http.StatusConflict, Code: poultry.CodeConflict, Detail: "entry was modified by someone else"}
	}

	if deduct, _ := body["deduct_from_stock"].(bool); deduct && method == http.MethodPost {
		id, _ := body["feed_stock_id"].(string)
		qty := decimal.NewFromFloat(body["feed_quantity_kg"].(float64))
		for i := range b.stocks {
			if b.stocks[i].ID != id {
				continue
			}
			if b.stocks[i].QuantityKg.LessThan(qty) {
				return nil, &poultry.APIError{Status: http.StatusBadRequest, Code: poultry.CodeStockInsufficient, Detail: fmt.Sprintf("Stock insuffisant: %s kg disponibles", b.stocks[i].QuantityKg)}
			}
			b.stocks[i].QuantityKg = b.stocks[i].QuantityKg.Sub(qty)
		}
	}

	if b.records[key] == nil {
		b.records[key] = make(map[models.MetricKind][]map[string]any)
	}
	for field, metric := range metricFields {
		if _, ok := body[field]; !ok {
			continue
		}
		if method == http.MethodPut {
			b.records[key][metric] = []map[string]any{copied}
		} else {
			b.records[key][metric] = append(b.records[key][metric], copied)
		}
	}
	b.revisions[key]++
	return &models.EntryWriteResponse{Message: "Daily entry recorded successfully", Date: date}, nil
}

func (b *fakeBackend) ListFeedStocks(_ context.Context, buildingID string) ([]models.FeedStock, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(backendCall{Method: http.MethodGet, Op: "stocks"})
	var out []models.FeedStock
	for _, s := range b.stocks {
		if buildingID == "" || s.BuildingID == buildingID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (b *fakeBackend) writes() []backendCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []backendCall
	for _, c := range b.calls {
		if c.Method != http.MethodGet {
			out = append(out, c)
		}
	}
	return out
}

func (b *fakeBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

func (b *fakeBackend) countOp(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		if c.Op == op && c.Method == http.MethodGet {
			n++
		}
	}
	return n
}

func (b *fakeBackend) stockLeft(id string) decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.stocks {
		if s.ID == id {
			return s.QuantityKg
		}
	}
	return decimal.Zero
}

func (b *fakeBackend) recordCount(lotID, date string, metric models.MetricKind) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records[lotID+"|"+date][metric])
}

type memoryJournal struct {
	mu      sync.Mutex
	records []models.SubmissionRecord
}

func (j *memoryJournal) RecordSubmission(_ context.Context, r models.SubmissionRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = append(j.records, r)
	return nil
}

func (j *memoryJournal) all() []models.SubmissionRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]models.SubmissionRecord(nil), j.records...)
}

var testNow = time.Date(2025, 6, 3, 9, 0, 0, 0, time.UTC)

func testTimezone(t *testing.T) farmtime.TimezoneContext {
	t.Helper()
	tz, err := farmtime.New("Africa/Douala")
	if err != nil {
		t.Fatalf("load timezone: %v", err)
	}
	return tz.WithClock(func() time.Time { return testNow })
}

func newTestCoordinator(t *testing.T, backend *fakeBackend, opts ...Option) *Coordinator {
	t.Helper()
	base := []Option{WithCache(cache.New(time.Minute))}
	return NewCoordinator(backend, testTimezone(t), zaptest.NewLogger(t), append(base, opts...)...)
}

var june1 = farmtime.MustParseDate("2025-06-01")
