package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mamadbah2/flockbook/internal/service/dailyentry"
	"github.com/mamadbah2/flockbook/pkg/clients/poultry"
)

// errorBody is the JSON shape of every failed request.
type errorBody struct {
	Error          string `json:"error"`
	Kind           string `json:"kind,omitempty"`
	Code           string `json:"code,omitempty"`
	Field          string `json:"field,omitempty"`
	OutcomeUnknown bool   `json:"outcome_unknown,omitempty"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, dailyentry.ErrSubmissionInFlight),
		errors.Is(err, dailyentry.ErrNotEditable),
		errors.Is(err, dailyentry.ErrStaleResponse):
		return http.StatusConflict
	}

	e, ok := dailyentry.AsError(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch {
	case errors.Is(e, dailyentry.ErrValidationFailed):
		if e.Code == poultry.CodeLotNotFound {
			return http.StatusNotFound
		}
		return http.StatusUnprocessableEntity
	case errors.Is(e, dailyentry.ErrConflictFailed):
		return http.StatusConflict
	case e.OutcomeUnknown:
		return http.StatusGatewayTimeout
	case e.Code == poultry.CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusBadGateway
	}
}

func bodyFor(err error) errorBody {
	e, ok := dailyentry.AsError(err)
	if !ok {
		return errorBody{Error: err.Error()}
	}
	return errorBody{
		Error:          e.Message,
		Kind:           e.KindName(),
		Code:           string(e.Code),
		Field:          e.Field,
		OutcomeUnknown: e.OutcomeUnknown,
	}
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusFor(err), bodyFor(err))
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, errorBody{Error: message})
}
