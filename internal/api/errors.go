// Package api provides the HTTP pipeline for the structured-notes server:
// uniform envelope decoding, cookie-carried credentials, and transparent
// single-flight credential refresh with one retry.
package api

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for result classification.
// Use errors.Is(err, api.ErrNotFound) to check.
var (
	ErrTransport     = errors.New("api: transport failure")
	ErrLogical       = errors.New("api: request failed")
	ErrAuthFailed    = errors.New("api: authentication failed")
	ErrRefreshFailed = errors.New("api: credential refresh failed")
	ErrMissingResult = errors.New("api: response has no result")

	ErrBadRequest   = errors.New("api: bad request")
	ErrUnauthorized = errors.New("api: unauthorized")
	ErrForbidden    = errors.New("api: forbidden")
	ErrNotFound     = errors.New("api: not found")
	ErrConflict     = errors.New("api: conflict")
	ErrServerError  = errors.New("api: server error")
)

// ResultError carries a failed Result unchanged so callers that need the
// raw envelope can recover it with errors.As. It unwraps to the failure kind
// (ErrTransport, ErrLogical, ErrAuthFailed) and, for HTTP failures, to the
// status sentinel.
type ResultError struct {
	Result Result
}

func (e *ResultError) Error() string {
	if e.Result.StatusCode != 0 {
		return fmt.Sprintf("api: HTTP %d: %s", e.Result.StatusCode, e.Result.Message)
	}

	return "api: " + e.Result.Message
}

func (e *ResultError) Unwrap() []error {
	errs := []error{e.Result.kindSentinel()}
	if s := classifyStatus(e.Result.StatusCode); s != nil {
		errs = append(errs, s)
	}

	return errs
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx, 0, and unclassified codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}
