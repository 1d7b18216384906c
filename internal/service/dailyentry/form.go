package dailyentry

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mamadbah2/flockbook/internal/domain/models"
	"github.com/mamadbah2/flockbook/internal/farmtime"
	"github.com/mamadbah2/flockbook/pkg/clients/poultry"
)

// Status is the state of a Form.
type Status string

const (
	StatusIdle          Status = "idle"
	StatusLoading       Status = "loading"
	StatusEmptyForm     Status = "empty_form"
	StatusPrefilledForm Status = "prefilled_form"
	StatusLoadError     Status = "load_error"
	StatusSubmitting    Status = "submitting"
	StatusSuccess       Status = "success"
	StatusSubmitError   Status = "submit_error"
)

func (s Status) editable() bool {
	switch s {
	case StatusEmptyForm, StatusPrefilledForm, StatusSubmitError:
		return true
	}
	return false
}

// TransitionFunc observes state changes. It is called with the form lock
// held and must not call back into the form.
type TransitionFunc func(from, to Status)

// FormOption customises a Form.
type FormOption func(*Form)

// WithTransitionHook registers fn for every state change.
func WithTransitionHook(fn TransitionFunc) FormOption {
	return func(f *Form) { f.onTransition = fn }
}

// Form is one date-scoped entry form for a lot and metric. Its write mode is
// always derived from the latest successful load for the selected date.
type Form struct {
	id     string
	lotID  string
	metric models.MetricKind
	coord  *Coordinator
	logger *zap.Logger
	now    func() time.Time

	onTransition TransitionFunc

	mu     sync.Mutex
	status Status
	// seq identifies the current date selection; responses for an older
	// value are dropped.
	seq         uint64
	date        farmtime.Date
	loaded      *EntryState
	draft       models.EntryFields
	stocks      []models.FeedStock
	lastErr     *Error
	lastResult  *SubmissionResult
	needsReload bool
	touched     time.Time
}

// NewForm creates an idle form. Use SwitchDate to select the first date.
func NewForm(id, lotID string, metric models.MetricKind, coord *Coordinator, opts ...FormOption) *Form {
	f := &Form{
		id:     id,
		lotID:  lotID,
		metric: metric,
		coord:  coord,
		logger: coord.logger.Named("form").With(zap.String("form_id", id)),
		now:    time.Now,
		status: StatusIdle,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.touched = f.now()
	return f
}

func (f *Form) ID() string                { return f.id }
func (f *Form) LotID() string             { return f.lotID }
func (f *Form) Metric() models.MetricKind { return f.metric }

// LastActive returns when the form was last used.
func (f *Form) LastActive() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.touched
}

// Busy reports whether a load or a write is in progress.
func (f *Form) Busy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status == StatusLoading || f.status == StatusSubmitting
}

// SwitchDate discards the draft and loads the entry stored for date. It may
// be called in any state.
func (f *Form) SwitchDate(ctx context.Context, date farmtime.Date) error {
	f.mu.Lock()
	f.seq++
	seq := f.seq
	f.date = date
	f.loaded = nil
	f.draft = models.EntryFields{}
	f.stocks = nil
	f.lastErr = nil
	f.lastResult = nil
	f.needsReload = false
	f.touched = f.now()
	f.setStatus(StatusLoading)
	f.mu.Unlock()

	return f.load(ctx, seq, false)
}

// Reload re-reads the selected date, keeping the draft.
func (f *Form) Reload(ctx context.Context) error {
	f.mu.Lock()
	if f.status == StatusIdle {
		f.mu.Unlock()
		return ErrNotEditable
	}
	if f.status == StatusSubmitting {
		f.mu.Unlock()
		return ErrSubmissionInFlight
	}
	seq := f.seq
	f.touched = f.now()
	f.setStatus(StatusLoading)
	f.mu.Unlock()

	return f.load(ctx, seq, true)
}

func (f *Form) load(ctx context.Context, seq uint64, keepDraft bool) error {
	f.mu.Lock()
	date := f.date
	f.mu.Unlock()

	state, err := f.coord.LoadEntryState(ctx, f.lotID, date)
	var stocks []models.FeedStock
	if err == nil && f.metric == models.MetricFeed {
		var stockErr error
		stocks, stockErr = f.coord.FeedStocks(ctx, f.lotID)
		if stockErr != nil {
			f.logger.Warn("feed stocks unavailable", zap.Error(stockErr))
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if seq != f.seq {
		f.coord.recorder.StaleResponseDiscarded()
		f.logger.Debug("discarding stale load", zap.String("date", date.String()))
		return ErrStaleResponse
	}
	f.touched = f.now()
	if err != nil {
		f.lastErr = classify(err)
		f.setStatus(StatusLoadError)
		return err
	}
	f.applyLoaded(state, stocks, keepDraft)
	return nil
}

func (f *Form) applyLoaded(state *EntryState, stocks []models.FeedStock, keepDraft bool) {
	f.loaded = state
	f.needsReload = false
	if stocks != nil {
		f.stocks = stocks
	}
	if !keepDraft {
		f.draft = FieldsFromValues(f.metric, state.Values)
	}
	if state.Exists {
		f.setStatus(StatusPrefilledForm)
	} else {
		f.setStatus(StatusEmptyForm)
	}
}

// Edit replaces the draft.
func (f *Form) Edit(fields models.EntryFields) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status == StatusSubmitting {
		return ErrSubmissionInFlight
	}
	if !f.status.editable() {
		return ErrNotEditable
	}
	f.draft = fields
	f.touched = f.now()
	return nil
}

// Submit writes the draft. On failure the draft is kept; after a write whose
// outcome is unknown the next Submit reloads before writing.
func (f *Form) Submit(ctx context.Context, source string) (*SubmissionResult, error) {
	f.mu.Lock()
	if f.status == StatusSubmitting {
		f.mu.Unlock()
		return nil, ErrSubmissionInFlight
	}
	if !f.status.editable() {
		f.mu.Unlock()
		return nil, ErrNotEditable
	}
	f.touched = f.now()
	if f.needsReload {
		seq := f.seq
		f.setStatus(StatusLoading)
		f.mu.Unlock()
		if err := f.load(ctx, seq, true); err != nil {
			return nil, err
		}
		f.mu.Lock()
		if !f.status.editable() {
			f.mu.Unlock()
			return nil, ErrNotEditable
		}
	}

	payload, err := PayloadFromFields(f.metric, f.draft)
	if err != nil {
		f.lastErr = classify(err)
		f.setStatus(StatusSubmitError)
		f.mu.Unlock()
		return nil, err
	}

	seq := f.seq
	req := SubmitRequest{
		LotID:   f.lotID,
		Date:    f.date,
		Payload: payload,
		Mode:    f.loaded.ModeFor(f.metric),
		Version: f.loaded.Version,
		Source:  source,
	}
	f.lastErr = nil
	f.setStatus(StatusSubmitting)
	f.mu.Unlock()

	result, err := f.coord.SubmitEntry(ctx, req)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched = f.now()
	if seq != f.seq {
		// The date changed while writing; the new selection owns the state.
		return result, err
	}
	if err != nil {
		f.lastErr = classify(err)
		f.needsReload = f.lastErr.OutcomeUnknown
		f.setStatus(StatusSubmitError)
		return nil, err
	}

	f.lastResult = result
	f.setStatus(StatusSuccess)
	f.setStatus(StatusLoading)
	if result.Entry != nil {
		f.applyLoaded(result.Entry, nil, false)
		return result, nil
	}

	// The write succeeded but the re-read did not; force one before the next
	// write so the mode cannot be guessed.
	f.needsReload = true
	f.loaded = &EntryState{Lot: f.loaded.Lot, Date: f.date, Exists: true}
	f.setStatus(StatusPrefilledForm)
	return result, nil
}

// Snapshot is a consistent view of a form for rendering.
type Snapshot struct {
	ID             string              `json:"id"`
	LotID          string              `json:"lot_id"`
	Metric         models.MetricKind   `json:"metric"`
	Status         Status              `json:"status"`
	Date           string              `json:"date,omitempty"`
	Mode           Mode                `json:"mode,omitempty"`
	Exists         bool                `json:"exists"`
	Version        string              `json:"version,omitempty"`
	Values         *models.EntryValues `json:"values,omitempty"`
	Draft          models.EntryFields  `json:"draft"`
	Error          *ErrorView          `json:"error,omitempty"`
	SubmitDisabled bool                `json:"submit_disabled"`
	StockWarning   *StockWarning       `json:"stock_warning,omitempty"`
	Message        string              `json:"message,omitempty"`
	Stocks         []models.FeedStock  `json:"stocks,omitempty"`
}

// ErrorView is the user-facing part of a failure.
type ErrorView struct {
	Kind           string `json:"kind"`
	Code           string `json:"code,omitempty"`
	Field          string `json:"field,omitempty"`
	Message        string `json:"message"`
	OutcomeUnknown bool   `json:"outcome_unknown,omitempty"`
}

// StockWarning previews the deduction requested by the draft.
type StockWarning struct {
	StockID     string  `json:"stock_id"`
	AvailableKg float64 `json:"available_kg"`
	RequestedKg float64 `json:"requested_kg"`
	RemainderKg float64 `json:"remainder_kg"`
	Sufficient  bool    `json:"sufficient"`
}

// Snapshot returns the current view of the form.
func (f *Form) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := Snapshot{
		ID:     f.id,
		LotID:  f.lotID,
		Metric: f.metric,
		Status: f.status,
		Draft:  f.draft,
		Stocks: f.stocks,
	}
	if !f.date.IsZero() {
		s.Date = f.date.String()
	}
	if f.loaded != nil && f.status != StatusLoading {
		values := f.loaded.Values
		s.Values = &values
		s.Exists = f.loaded.Exists
		s.Mode = f.loaded.ModeFor(f.metric)
		if f.needsReload && f.status == StatusPrefilledForm {
			// Written but not re-read yet.
			s.Mode = ModeUpdate
		}
		s.Version = f.loaded.Version
	}
	if f.lastErr != nil {
		s.Error = &ErrorView{
			Kind:           f.lastErr.KindName(),
			Code:           string(f.lastErr.Code),
			Field:          f.lastErr.Field,
			Message:        f.lastErr.Message,
			OutcomeUnknown: f.lastErr.OutcomeUnknown,
		}
	}
	if f.lastResult != nil {
		s.Message = f.lastResult.Message
	}
	s.StockWarning = f.stockWarning()
	s.SubmitDisabled = !f.status.editable() || (s.StockWarning != nil && !s.StockWarning.Sufficient)
	return s
}

func (f *Form) stockWarning() *StockWarning {
	if f.metric != models.MetricFeed || !f.draft.DeductFromStock || f.draft.FeedQuantityKg == nil {
		return nil
	}
	stock, ok := models.FindStock(f.stocks, f.draft.FeedStockID)
	if !ok {
		return nil
	}
	requested := decimal.NewFromFloat(*f.draft.FeedQuantityKg)
	check := CheckSufficiency(requested, stock.QuantityKg)
	return &StockWarning{
		StockID:     stock.ID,
		AvailableKg: stock.QuantityKg.InexactFloat64(),
		RequestedKg: *f.draft.FeedQuantityKg,
		RemainderKg: check.RemainderFloat(),
		Sufficient:  check.Sufficient,
	}
}

func (f *Form) setStatus(to Status) {
	from := f.status
	f.status = to
	if f.onTransition != nil && from != to {
		f.onTransition(from, to)
	}
}

func classify(err error) *Error {
	if e, ok := AsError(err); ok {
		return e
	}
	return &Error{Kind: ErrServerFailed, Code: poultry.CodeUnknown, Message: err.Error(), Err: err}
}
