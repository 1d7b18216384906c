package poultry

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is the structured reason attached to a backend rejection.
type ErrorCode string

const (
	CodeStockInsufficient ErrorCode = "stock_insufficient"
	CodeStockNotFound     ErrorCode = "stock_not_found"
	CodeLotNotFound       ErrorCode = "lot_not_found"
	CodeNotFound          ErrorCode = "not_found"
	CodeConflict          ErrorCode = "conflict"
	CodeRateLimited       ErrorCode = "rate_limited"
	CodeUnauthorized      ErrorCode = "unauthorized"
	CodeForbidden         ErrorCode = "forbidden"
	CodeValidation        ErrorCode = "validation"
	CodeUnknown           ErrorCode = "unknown"
)

var knownCodes = map[ErrorCode]struct{}{
	CodeStockInsufficient: {},
	CodeStockNotFound:     {},
	CodeLotNotFound:       {},
	CodeNotFound:          {},
	CodeConflict:          {},
	CodeRateLimited:       {},
	CodeUnauthorized:      {},
	CodeForbidden:         {},
	CodeValidation:        {},
}

// APIError is a non-2xx answer from the farm backend.
type APIError struct {
	Status int
	Code   ErrorCode
	// Detail is the backend's own message, kept verbatim for the user.
	Detail string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("poultry api error: status=%d, code=%s, detail=%s", e.Status, e.Code, e.Detail)
}

// IsConflict reports whether the backend refused the write because the
// record changed since it was read.
func (e *APIError) IsConflict() bool {
	return e.Code == CodeConflict
}

// IsNotFound reports whether the addressed resource does not exist.
func (e *APIError) IsNotFound() bool {
	switch e.Code {
	case CodeNotFound, CodeLotNotFound, CodeStockNotFound:
		return true
	}
	return false
}

type errorEnvelope struct {
	Detail json.RawMessage `json:"detail"`
	Code   string          `json:"code"`
}

type structuredDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

type validationItem struct {
	Msg string `json:"msg"`
	Loc []any  `json:"loc"`
}

// parseAPIError turns a backend error body into an APIError. The detail may be
// a plain string, an object carrying a code, or a list of validation items.
// Codes come from the body or the status, never from the message wording.
func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}

	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil || len(env.Detail) == 0 {
		apiErr.Detail = strings.TrimSpace(string(body))
		if apiErr.Detail == "" {
			apiErr.Detail = http.StatusText(status)
		}
		apiErr.Code = codeFromStatus(status)
		if env.Code != "" {
			apiErr.Code = normalizeCode(env.Code, apiErr.Code)
		}
		return apiErr
	}

	code := env.Code

	var text string
	var obj structuredDetail
	var items []validationItem
	switch {
	case json.Unmarshal(env.Detail, &text) == nil:
		apiErr.Detail = text
	case json.Unmarshal(env.Detail, &obj) == nil && (obj.Code != "" || obj.Message != "" || obj.Detail != ""):
		apiErr.Detail = obj.Message
		if apiErr.Detail == "" {
			apiErr.Detail = obj.Detail
		}
		if obj.Code != "" {
			code = obj.Code
		}
	case json.Unmarshal(env.Detail, &items) == nil:
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		apiErr.Detail = strings.Join(msgs, "; ")
	default:
		apiErr.Detail = string(env.Detail)
	}

	if apiErr.Detail == "" {
		apiErr.Detail = http.StatusText(status)
	}
	apiErr.Code = normalizeCode(code, codeFromStatus(status))
	return apiErr
}

func normalizeCode(raw string, fallback ErrorCode) ErrorCode {
	code := ErrorCode(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := knownCodes[code]; ok {
		return code
	}
	return fallback
}

func codeFromStatus(status int) ErrorCode {
	switch status {
	case http.StatusUnauthorized:
		return CodeUnauthorized
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusConflict, http.StatusPreconditionFailed:
		return CodeConflict
	case http.StatusUnprocessableEntity:
		return CodeValidation
	case http.StatusTooManyRequests:
		return CodeRateLimited
	default:
		return CodeUnknown
	}
}
