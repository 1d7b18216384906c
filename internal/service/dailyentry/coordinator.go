package dailyentry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mamadbah2/flockbook/internal/cache"
	"github.com/mamadbah2/flockbook/internal/domain/models"
	"github.com/mamadbah2/flockbook/internal/farmtime"
	"github.com/mamadbah2/flockbook/pkg/clients/poultry"
)

// Mode selects the HTTP method used to write an entry.
type Mode string

const (
	ModeCreate Mode = "create"
	ModeUpdate Mode = "update"
)

// ParseMode validates a mode name.
func ParseMode(value string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(value))) {
	case ModeCreate:
		return ModeCreate, true
	case ModeUpdate:
		return ModeUpdate, true
	}
	return "", false
}

const defaultLockTTL = 30 * time.Second

// Journal stores the outcome of each write attempt.
type Journal interface {
	RecordSubmission(ctx context.Context, record models.SubmissionRecord) error
}

// Recorder receives operational measurements.
type Recorder interface {
	LoadObserved(outcome string, elapsed time.Duration)
	SubmissionObserved(metric models.MetricKind, mode Mode, outcome models.SubmissionOutcome)
	GuardBlocked(metric models.MetricKind)
	StaleResponseDiscarded()
}

type nopRecorder struct{}

func (nopRecorder) LoadObserved(string, time.Duration)                                   {}
func (nopRecorder) SubmissionObserved(models.MetricKind, Mode, models.SubmissionOutcome) {}
func (nopRecorder) GuardBlocked(models.MetricKind)                                       {}
func (nopRecorder) StaleResponseDiscarded()                                              {}

// EntryState is what the backend holds for a lot on a date.
type EntryState struct {
	Lot     models.Lot
	Date    farmtime.Date
	Exists  bool
	Values  models.EntryValues
	Version string
}

// ModeFor is the write mode the next submission of metric must use. It
// follows the metric, not the date: a day that already holds water still
// needs a create for its first feed record, or the stock deduction that
// only creates apply would be lost.
func (s *EntryState) ModeFor(metric models.MetricKind) Mode {
	if s != nil && s.Values.Has(metric) {
		return ModeUpdate
	}
	return ModeCreate
}

// SubmitRequest describes one write of one metric.
type SubmitRequest struct {
	LotID   string
	Date    farmtime.Date
	Payload MetricPayload
	// Mode comes from the latest successful load for this lot and date.
	Mode    Mode
	Version string
	// Source names the surface that issued the write, for the journal.
	Source string
}

// SubmissionResult is a confirmed write.
type SubmissionResult struct {
	Mode     Mode
	Promoted bool
	Message  string
	// Entry is the record as re-read after the write. It is nil when the
	// re-read failed; the write itself succeeded.
	Entry    *EntryState
	RecordID string
}

// Option customises a Coordinator.
type Option func(*Coordinator)

// WithCache shares a query cache for lot and stock lookups.
func WithCache(c *cache.QueryCache) Option {
	return func(co *Coordinator) { co.cache = c }
}

// WithLocker replaces the process-local submission lock.
func WithLocker(l Locker, ttl time.Duration) Option {
	return func(co *Coordinator) {
		if l != nil {
			co.locker = l
		}
		if ttl > 0 {
			co.lockTTL = ttl
		}
	}
}

// WithJournal records every attempted write.
func WithJournal(j Journal) Option {
	return func(co *Coordinator) { co.journal = j }
}

// WithRecorder plugs in metrics.
func WithRecorder(r Recorder) Option {
	return func(co *Coordinator) {
		if r != nil {
			co.recorder = r
		}
	}
}

// Coordinator turns daily entry inputs into create or update calls against
// the backend so that each lot, date and metric holds a single value.
type Coordinator struct {
	backend  poultry.Client
	tz       farmtime.TimezoneContext
	cache    *cache.QueryCache
	locker   Locker
	lockTTL  time.Duration
	journal  Journal
	recorder Recorder
	logger   *zap.Logger
	newID    func() string

	mu sync.Mutex
	// created holds keys this coordinator created and no load has since
	// shown as absent.
	created map[string]struct{}
}

// NewCoordinator wires a coordinator against the backend.
func NewCoordinator(backend poultry.Client, tz farmtime.TimezoneContext, logger *zap.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{
		backend:  backend,
		tz:       tz,
		locker:   NewLocalLocker(),
		lockTTL:  defaultLockTTL,
		recorder: nopRecorder{},
		logger:   logger,
		newID:    uuid.NewString,
		created:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Timezone returns the farm's timezone context.
func (c *Coordinator) Timezone() farmtime.TimezoneContext {
	return c.tz
}

// Lot returns the lot, served from cache when fresh. A missing lot is a
// validation failure.
func (c *Coordinator) Lot(ctx context.Context, lotID string) (models.Lot, error) {
	if strings.TrimSpace(lotID) == "" {
		return models.Lot{}, validationError("lot_id", "is required")
	}
	lot, err := cache.Fetch(ctx, c.cache, lotKey(lotID), func(ctx context.Context) (models.Lot, error) {
		l, err := c.backend.GetLot(ctx, lotID)
		if err != nil {
			return models.Lot{}, err
		}
		return *l, nil
	})
	if err != nil {
		var apiErr *poultry.APIError
		if errors.As(err, &apiErr) && apiErr.IsNotFound() {
			return models.Lot{}, &Error{Kind: ErrValidationFailed, Field: "lot_id", Code: poultry.CodeLotNotFound, Message: fmt.Sprintf("lot %s does not exist", lotID), Err: err}
		}
		return models.Lot{}, fetchError("load lot "+lotID, err)
	}
	return lot, nil
}

// FeedStocks lists the last known feed stocks for the lot's building.
func (c *Coordinator) FeedStocks(ctx context.Context, lotID string) ([]models.FeedStock, error) {
	lot, err := c.Lot(ctx, lotID)
	if err != nil {
		return nil, err
	}
	return c.stocksFor(ctx, lot)
}

func (c *Coordinator) stocksFor(ctx context.Context, lot models.Lot) ([]models.FeedStock, error) {
	stocks, err := cache.Fetch(ctx, c.cache, stocksKey(lot.BuildingID), func(ctx context.Context) ([]models.FeedStock, error) {
		return c.backend.ListFeedStocks(ctx, lot.BuildingID)
	})
	if err != nil {
		return nil, fetchError("load feed stocks", err)
	}
	return stocks, nil
}

// LoadEntryState reads what is stored for the lot on date. A failed read is
// returned as ErrFetchFailed and never as an absent entry.
func (c *Coordinator) LoadEntryState(ctx context.Context, lotID string, date farmtime.Date) (*EntryState, error) {
	started := time.Now()
	state, err := c.loadEntryState(ctx, lotID, date)
	outcome := "ok"
	if err == nil {
		c.forgetAbsent(lotID, date, state.Values)
	} else {
		outcome = "error"
		if e, ok := AsError(err); ok {
			outcome = e.KindName()
		}
	}
	c.recorder.LoadObserved(outcome, time.Since(started))
	return state, err
}

func (c *Coordinator) loadEntryState(ctx context.Context, lotID string, date farmtime.Date) (*EntryState, error) {
	if err := c.checkDate(date); err != nil {
		return nil, err
	}
	lot, err := c.Lot(ctx, lotID)
	if err != nil {
		return nil, err
	}

	resp, err := c.backend.GetDailyEntry(ctx, lotID, date.String())
	if err != nil {
		c.logger.Warn("daily entry load failed", zap.String("lot_id", lotID), zap.String("date", date.String()), zap.Error(err))
		return nil, fetchError("load the daily entry", err)
	}

	return &EntryState{
		Lot:     lot,
		Date:    date,
		Exists:  resp.Exists,
		Values:  resp.Data,
		Version: resp.Version,
	}, nil
}

// SubmitEntry writes one metric using the mode of the latest load.
func (c *Coordinator) SubmitEntry(ctx context.Context, req SubmitRequest) (*SubmissionResult, error) {
	if req.Payload == nil {
		return nil, validationError("payload", "is required")
	}
	if req.Mode != ModeCreate && req.Mode != ModeUpdate {
		return nil, validationError("mode", "must be %q or %q", ModeCreate, ModeUpdate)
	}
	if err := c.checkDate(req.Date); err != nil {
		return nil, err
	}
	lot, err := c.Lot(ctx, req.LotID)
	if err != nil {
		return nil, err
	}
	metric := req.Payload.Kind()
	if err := req.Payload.Validate(lot); err != nil {
		return nil, err
	}
	if feed, ok := req.Payload.(FeedInput); ok && feed.DeductFromStock {
		if err := c.guardStock(ctx, lot, feed); err != nil {
			return nil, err
		}
	}

	key := entryKey(req.LotID, req.Date, metric)
	release, ok, err := c.locker.TryLock(ctx, key, c.lockTTL)
	if err != nil {
		return nil, &Error{Kind: ErrServerFailed, Code: poultry.CodeUnknown, Message: "could not reserve the submission; nothing was sent", Err: err}
	}
	if !ok {
		return nil, ErrSubmissionInFlight
	}
	defer release()

	mode := req.Mode
	promoted := false
	if mode == ModeCreate && c.wasCreated(key) {
		mode = ModeUpdate
		promoted = true
	}

	body := req.Payload.Fields()
	body["date"] = req.Date.String()
	if req.Version != "" {
		body["version"] = req.Version
	}

	record := models.SubmissionRecord{
		ID:          c.newID(),
		LotID:       req.LotID,
		Date:        req.Date.String(),
		Metric:      metric,
		Mode:        string(mode),
		Body:        body,
		Source:      req.Source,
		SubmittedAt: c.tz.Now(),
	}
	if feed, ok := req.Payload.(FeedInput); ok && feed.DeductFromStock {
		record.FeedStockID = feed.FeedStockID
	}

	log := c.logger.With(
		zap.String("lot_id", req.LotID),
		zap.String("date", req.Date.String()),
		zap.String("metric", string(metric)),
		zap.String("mode", string(mode)),
	)

	var resp *models.EntryWriteResponse
	if mode == ModeCreate {
		resp, err = c.backend.CreateDailyEntry(ctx, req.LotID, body, req.Version)
	} else {
		resp, err = c.backend.UpdateDailyEntry(ctx, req.LotID, body, req.Version)
	}
	if err != nil {
		failure := writeError(err)
		record.Outcome = models.OutcomeRejected
		switch {
		case failure.OutcomeUnknown:
			record.Outcome = models.OutcomeUnknown
		case errors.Is(failure, ErrConflictFailed):
			record.Outcome = models.OutcomeConflict
		}
		record.Message = failure.Message
		record.ErrorCode = string(failure.Code)
		log.Warn("daily entry write failed", zap.String("outcome", string(record.Outcome)), zap.Error(err))
		c.finish(ctx, record, metric, mode)
		if failure.OutcomeUnknown {
			// The record may exist now; only a reload may decide the next mode.
			c.forget(key)
		}
		return nil, failure
	}

	c.markCreated(key)
	c.invalidate(req.LotID)

	record.Outcome = models.OutcomeSuccess
	record.Message = resp.Message
	c.finish(ctx, record, metric, mode)
	log.Info("daily entry recorded", zap.Bool("promoted", promoted))

	result := &SubmissionResult{Mode: mode, Promoted: promoted, Message: resp.Message, RecordID: record.ID}
	if entry, err := c.loadEntryState(ctx, req.LotID, req.Date); err == nil {
		result.Entry = entry
	} else {
		log.Warn("could not re-read entry after write", zap.Error(err))
	}
	return result, nil
}

// Upsert loads the current state and submits with the mode it implies.
func (c *Coordinator) Upsert(ctx context.Context, lotID string, date farmtime.Date, payload MetricPayload, source string) (*SubmissionResult, error) {
	state, err := c.LoadEntryState(ctx, lotID, date)
	if err != nil {
		return nil, err
	}
	return c.SubmitEntry(ctx, SubmitRequest{
		LotID:   lotID,
		Date:    date,
		Payload: payload,
		Mode:    state.ModeFor(payload.Kind()),
		Version: state.Version,
		Source:  source,
	})
}

// StockCheck previews a deduction from a stock of the lot's building.
func (c *Coordinator) StockCheck(ctx context.Context, lotID, stockID string, requestedKg float64) (models.FeedStock, Sufficiency, error) {
	lot, err := c.Lot(ctx, lotID)
	if err != nil {
		return models.FeedStock{}, Sufficiency{}, err
	}
	stocks, err := c.stocksFor(ctx, lot)
	if err != nil {
		return models.FeedStock{}, Sufficiency{}, err
	}
	stock, ok := models.FindStock(stocks, stockID)
	if !ok {
		return models.FeedStock{}, Sufficiency{}, &Error{Kind: ErrValidationFailed, Field: "feed_stock_id", Code: poultry.CodeStockNotFound, Message: fmt.Sprintf("feed stock %s is not available for lot %s", stockID, lot.Label())}
	}
	return stock, CheckSufficiency(decimal.NewFromFloat(requestedKg), stock.QuantityKg), nil
}

func (c *Coordinator) guardStock(ctx context.Context, lot models.Lot, feed FeedInput) error {
	stock, check, err := c.StockCheck(ctx, lot.ID, feed.FeedStockID, feed.QuantityKg)
	if err != nil {
		return err
	}
	if !check.Sufficient {
		c.recorder.GuardBlocked(models.MetricFeed)
		return &Error{
			Kind:    ErrValidationFailed,
			Field:   "feed_quantity_kg",
			Code:    poultry.CodeStockInsufficient,
			Message: fmt.Sprintf("only %s kg left in stock %s, %s kg requested", stock.QuantityKg.StringFixed(quantityPlaces), stock.ID, decimal.NewFromFloat(feed.QuantityKg).StringFixed(quantityPlaces)),
		}
	}
	return nil
}

func (c *Coordinator) checkDate(date farmtime.Date) error {
	if date.IsZero() {
		return validationError("date", "is required")
	}
	if c.tz.IsFuture(date) {
		return validationError("date", "%s is after today (%s) in %s", date, c.tz.Today(), c.tz.Name())
	}
	return nil
}

func (c *Coordinator) finish(ctx context.Context, record models.SubmissionRecord, metric models.MetricKind, mode Mode) {
	c.recorder.SubmissionObserved(metric, mode, record.Outcome)
	if c.journal == nil {
		return
	}
	// The journal write must not inherit a cancelled request.
	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := c.journal.RecordSubmission(jctx, record); err != nil {
		c.logger.Error("failed to journal submission", zap.String("record_id", record.ID), zap.Error(err))
	}
}

func (c *Coordinator) invalidate(lotID string) {
	removed := c.cache.Invalidate(cache.Key{"lot", lotID}, cache.Key{"feed-stocks"})
	c.logger.Debug("invalidated cached reads", zap.String("lot_id", lotID), zap.Int("removed", removed))
}

func (c *Coordinator) wasCreated(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.created[key]
	return ok
}

func (c *Coordinator) markCreated(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.created[key] = struct{}{}
}

func (c *Coordinator) forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.created, key)
}

// forgetAbsent drops the create records of metrics a load shows as missing.
// A metric the load shows as stored stays promoted, so a caller still
// holding an older load cannot create it a second time.
func (c *Coordinator) forgetAbsent(lotID string, date farmtime.Date, values models.EntryValues) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, metric := range models.MetricKinds {
		if !values.Has(metric) {
			delete(c.created, entryKey(lotID, date, metric))
		}
	}
}

func entryKey(lotID string, date farmtime.Date, metric models.MetricKind) string {
	return lotID + "|" + date.String() + "|" + string(metric)
}

func lotKey(lotID string) cache.Key {
	return cache.Key{"lot", lotID}
}

func stocksKey(buildingID string) cache.Key {
	return cache.Key{"feed-stocks", buildingID}
}
