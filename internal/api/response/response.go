// Package response writes the JSON envelopes used by every API endpoint.
package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/newthinker/cta/internal/core"
)

// Meta contains response metadata.
type Meta struct {
	Timestamp time.Time `json:"timestamp"`
	Count     *int      `json:"count,omitempty"`
}

// SuccessResponse is the standard success response format.
type SuccessResponse struct {
	Data any  `json:"data"`
	Meta Meta `json:"meta"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   string `json:"cause,omitempty"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// JSON writes a success response with data.
func JSON(w http.ResponseWriter, status int, data any) {
	write(w, status, SuccessResponse{
		Data: data,
		Meta: Meta{Timestamp: time.Now().UTC()},
	})
}

// List writes a success response for a collection and reports its length.
func List[T any](w http.ResponseWriter, items []T) {
	n := len(items)
	if items == nil {
		items = []T{}
	}
	write(w, http.StatusOK, SuccessResponse{
		Data: items,
		Meta: Meta{Timestamp: time.Now().UTC(), Count: &n},
	})
}

// Error writes an error response. Errors outside core are reported as
// INTERNAL_ERROR without their text.
func Error(w http.ResponseWriter, status int, err error) {
	detail := ErrorDetail{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
	}

	var coreErr *core.Error
	if errors.As(err, &coreErr) {
		detail.Code = coreErr.Code
		detail.Message = coreErr.Message
		if coreErr.Cause != nil {
			detail.Cause = coreErr.Cause.Error()
		}
	}

	write(w, status, ErrorResponse{Error: detail})
}

// Fail writes err with the status StatusFor picks.
func Fail(w http.ResponseWriter, err error) {
	Error(w, StatusFor(err), err)
}

// StatusFor maps an error to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrNotFound),
		errors.Is(err, core.ErrStrategyNotFound),
		errors.Is(err, core.ErrNoData):
		return http.StatusNotFound
	case errors.Is(err, core.ErrConfigInvalid),
		errors.Is(err, core.ErrConfigMissing),
		errors.Is(err, core.ErrInvalidData):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrTooManyJobs):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func write(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
