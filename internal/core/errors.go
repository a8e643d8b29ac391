package core

import (
	"encoding/json"
	"fmt"
)

// Error represents a structured error with code and optional cause.
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches by code so wrapped copies compare equal to their base.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// MarshalJSON encodes the code, message and cause text.
func (e *Error) MarshalJSON() ([]byte, error) {
	v := struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Cause   string `json:"cause,omitempty"`
	}{Code: e.Code, Message: e.Message}
	if e.Cause != nil {
		v.Cause = e.Cause.Error()
	}
	return json.Marshal(v)
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// Predefined errors
var (
	// Data errors
	ErrNoData      = &Error{Code: "NO_DATA", Message: "no data available"}
	ErrInvalidData = &Error{Code: "INVALID_DATA", Message: "malformed market data"}

	// Strategy lifecycle errors
	ErrStrategyNotFound = &Error{Code: "STRATEGY_NOT_FOUND", Message: "strategy not found"}
	ErrStrategyExists   = &Error{Code: "STRATEGY_EXISTS", Message: "strategy already exists"}
	ErrAlreadyInited    = &Error{Code: "ALREADY_INITED", Message: "strategy already initialized"}
	ErrNotInited        = &Error{Code: "NOT_INITED", Message: "strategy not initialized"}

	// Order errors
	ErrNotTrading    = &Error{Code: "NOT_TRADING", Message: "strategy is not trading"}
	ErrInvalidVolume = &Error{Code: "INVALID_VOLUME", Message: "order volume must be positive"}
	ErrOrderFailed   = &Error{Code: "ORDER_FAILED", Message: "order failed"}

	// Config errors
	ErrConfigInvalid = &Error{Code: "CONFIG_INVALID", Message: "configuration invalid"}
	ErrConfigMissing = &Error{Code: "CONFIG_MISSING", Message: "required configuration missing"}

	// Storage errors
	ErrStorageFailed = &Error{Code: "STORAGE_FAILED", Message: "storage operation failed"}

	// API errors
	ErrNotFound       = &Error{Code: "NOT_FOUND", Message: "resource not found"}
	ErrUnauthorized   = &Error{Code: "UNAUTHORIZED", Message: "missing or invalid API key"}
	ErrBacktestFailed = &Error{Code: "BACKTEST_FAILED", Message: "backtest failed"}
	ErrTooManyJobs    = &Error{Code: "TOO_MANY_JOBS", Message: "too many unfinished jobs"}
)
