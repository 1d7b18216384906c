package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/flockbook/internal/domain/models"
	"github.com/mamadbah2/flockbook/internal/farmtime"
	"github.com/mamadbah2/flockbook/internal/service/commands"
	"github.com/mamadbah2/flockbook/internal/service/dailyentry"
)

// EntryReader reads daily entries and previews stock deductions.
type EntryReader interface {
	LoadEntryState(ctx context.Context, lotID string, date farmtime.Date) (*dailyentry.EntryState, error)
	StockCheck(ctx context.Context, lotID, stockID string, requestedKg float64) (models.FeedStock, dailyentry.Sufficiency, error)
}

// HistoryReader lists journaled submissions.
type HistoryReader interface {
	ListSubmissions(ctx context.Context, lotID string, limit int64) ([]models.SubmissionRecord, error)
}

// EntryHandler serves read-only entry endpoints.
type EntryHandler struct {
	entries EntryReader
	history HistoryReader
	logger  *zap.Logger
}

// NewEntryHandler constructs the entry endpoints. history may be nil when no
// journal is configured.
func NewEntryHandler(entries EntryReader, history HistoryReader, logger *zap.Logger) *EntryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EntryHandler{entries: entries, history: history, logger: logger}
}

type entryResponse struct {
	LotID   string         `json:"lot_id"`
	LotType models.LotType `json:"lot_type"`
	Date    farmtime.Date  `json:"date"`
	Exists  bool           `json:"exists"`
	// Modes holds the next write mode of each metric relevant to the lot.
	Modes   map[models.MetricKind]dailyentry.Mode `json:"modes"`
	Version string                                `json:"version,omitempty"`
	Values  models.EntryValues                    `json:"values"`
	Missing []string                              `json:"missing,omitempty"`
}

type sufficiencyResponse struct {
	StockID     string  `json:"stock_id"`
	FeedType    string  `json:"feed_type"`
	AvailableKg float64 `json:"available_kg"`
	RequestedKg float64 `json:"requested_kg"`
	RemainderKg float64 `json:"remainder_kg"`
	Sufficient  bool    `json:"sufficient"`
}

// DailyEntry returns what is stored for a lot on a date.
func (h *EntryHandler) DailyEntry(c *gin.Context) {
	date, err := farmtime.ParseDate(c.Param("date"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	state, err := h.entries.LoadEntryState(c.Request.Context(), c.Param("id"), date)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := entryResponse{
		LotID:   state.Lot.ID,
		LotType: state.Lot.Type,
		Date:    state.Date,
		Exists:  state.Exists,
		Modes:   make(map[models.MetricKind]dailyentry.Mode),
		Version: state.Version,
		Values:  state.Values,
	}
	relevant := commands.RelevantMetrics(state.Lot)
	for _, m := range relevant {
		resp.Modes[m] = state.ModeFor(m)
	}
	for _, m := range state.Values.Missing(relevant...) {
		resp.Missing = append(resp.Missing, string(m))
	}
	c.JSON(http.StatusOK, resp)
}

// Submissions lists the journaled writes of a lot, newest first.
func (h *EntryHandler) Submissions(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusServiceUnavailable, errorBody{Error: "submission journal is not configured"})
		return
	}

	var limit int64
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			badRequest(c, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := h.history.ListSubmissions(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		h.logger.Error("failed listing submissions", zap.String("lot_id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorBody{Error: "unable to read submissions"})
		return
	}
	if records == nil {
		records = []models.SubmissionRecord{}
	}
	c.JSON(http.StatusOK, records)
}

// StockSufficiency previews whether a stock covers a requested quantity.
func (h *EntryHandler) StockSufficiency(c *gin.Context) {
	lotID := c.Query("lot_id")
	stockID := c.Query("stock_id")
	if lotID == "" || stockID == "" {
		badRequest(c, "lot_id and stock_id are required")
		return
	}
	requested, err := dailyentry.ParseQuantity(c.Query("quantity_kg"))
	if err != nil || requested < 0 {
		badRequest(c, "quantity_kg must be a non-negative number")
		return
	}

	stock, check, err := h.entries.StockCheck(c.Request.Context(), lotID, stockID, requested)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sufficiencyResponse{
		StockID:     stock.ID,
		FeedType:    stock.FeedType,
		AvailableKg: stock.QuantityKg.InexactFloat64(),
		RequestedKg: requested,
		RemainderKg: check.RemainderFloat(),
		Sufficient:  check.Sufficient,
	})
}
