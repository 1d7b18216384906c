package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/flockbook/internal/domain/models"
	"github.com/mamadbah2/flockbook/internal/farmtime"
	"github.com/mamadbah2/flockbook/internal/service/dailyentry"
)

const formSource = "http:form"

// FormRegistry is the subset of dailyentry.FormRegistry the handlers use.
type FormRegistry interface {
	Create(lotID string, metric models.MetricKind) *dailyentry.Form
	Get(id string) (*dailyentry.Form, bool)
	Delete(id string) bool
}

// FormHandler exposes daily entry form sessions over HTTP.
type FormHandler struct {
	forms  FormRegistry
	tz     farmtime.TimezoneContext
	logger *zap.Logger
}

// NewFormHandler constructs the form session endpoints.
func NewFormHandler(forms FormRegistry, tz farmtime.TimezoneContext, logger *zap.Logger) *FormHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FormHandler{forms: forms, tz: tz, logger: logger}
}

type createFormRequest struct {
	LotID  string `json:"lot_id" binding:"required"`
	Metric string `json:"metric" binding:"required"`
	// Date defaults to the farm-local today.
	Date string `json:"date"`
}

type switchDateRequest struct {
	Date string `json:"date" binding:"required"`
}

type submitResponse struct {
	Form     dailyentry.Snapshot `json:"form"`
	Mode     dailyentry.Mode     `json:"mode"`
	Promoted bool                `json:"promoted,omitempty"`
	Message  string              `json:"message,omitempty"`
	RecordID string              `json:"record_id"`
}

// Create opens a form and loads its first date.
func (h *FormHandler) Create(c *gin.Context) {
	var req createFormRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	metric, ok := models.ParseMetricKind(req.Metric)
	if !ok {
		badRequest(c, "unknown metric "+req.Metric)
		return
	}
	date := h.tz.Today()
	if req.Date != "" {
		parsed, err := farmtime.ParseDate(req.Date)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		date = parsed
	}

	form := h.forms.Create(req.LotID, metric)
	h.logger.Info("form opened",
		zap.String("form_id", form.ID()),
		zap.String("lot_id", req.LotID),
		zap.String("metric", string(metric)))

	// A failed load leaves the form open in load_error so the caller can retry.
	if err := form.SwitchDate(c.Request.Context(), date); err != nil {
		h.logger.Warn("initial load failed", zap.String("form_id", form.ID()), zap.Error(err))
	}
	c.JSON(http.StatusCreated, form.Snapshot())
}

// Get returns the current view of a form.
func (h *FormHandler) Get(c *gin.Context) {
	form, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, form.Snapshot())
}

// SwitchDate selects another date, discarding the draft.
func (h *FormHandler) SwitchDate(c *gin.Context) {
	form, ok := h.lookup(c)
	if !ok {
		return
	}
	var req switchDateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	date, err := farmtime.ParseDate(req.Date)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	if err := form.SwitchDate(c.Request.Context(), date); err != nil {
		h.respondWithForm(c, form, err)
		return
	}
	c.JSON(http.StatusOK, form.Snapshot())
}

// Reload re-reads the selected date, keeping the draft.
func (h *FormHandler) Reload(c *gin.Context) {
	form, ok := h.lookup(c)
	if !ok {
		return
	}
	if err := form.Reload(c.Request.Context()); err != nil {
		h.respondWithForm(c, form, err)
		return
	}
	c.JSON(http.StatusOK, form.Snapshot())
}

// EditDraft replaces the form's draft values.
func (h *FormHandler) EditDraft(c *gin.Context) {
	form, ok := h.lookup(c)
	if !ok {
		return
	}
	var fields models.EntryFields
	if err := c.ShouldBindJSON(&fields); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if err := form.Edit(fields); err != nil {
		h.respondWithForm(c, form, err)
		return
	}
	c.JSON(http.StatusOK, form.Snapshot())
}

// Submit writes the draft.
func (h *FormHandler) Submit(c *gin.Context) {
	form, ok := h.lookup(c)
	if !ok {
		return
	}
	result, err := form.Submit(c.Request.Context(), formSource)
	if err != nil {
		h.logger.Warn("form submission failed", zap.String("form_id", form.ID()), zap.Error(err))
		h.respondWithForm(c, form, err)
		return
	}
	c.JSON(http.StatusOK, submitResponse{
		Form:     form.Snapshot(),
		Mode:     result.Mode,
		Promoted: result.Promoted,
		Message:  result.Message,
		RecordID: result.RecordID,
	})
}

// Close discards a form.
func (h *FormHandler) Close(c *gin.Context) {
	if !h.forms.Delete(c.Param("id")) {
		c.JSON(http.StatusNotFound, errorBody{Error: "form not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *FormHandler) lookup(c *gin.Context) (*dailyentry.Form, bool) {
	form, ok := h.forms.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, errorBody{Error: "form not found"})
		return nil, false
	}
	return form, true
}

// respondWithForm reports err with the form's state attached.
func (h *FormHandler) respondWithForm(c *gin.Context, form *dailyentry.Form, err error) {
	body := bodyFor(err)
	c.JSON(statusFor(err), gin.H{
		"error":           body.Error,
		"kind":            body.Kind,
		"code":            body.Code,
		"field":           body.Field,
		"outcome_unknown": body.OutcomeUnknown,
		"form":            form.Snapshot(),
	})
}
