package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
)

// Status is the envelope status field.
type Status string

// Envelope status values.
const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Server messages that identify an expired or absent access token. Exact,
// case-sensitive.
const (
	MsgBadAccessToken      = "Bad access token."
	MsgMissingTokenCookies = "Missing token cookies."
)

// MsgAuthFailed is the message of the result returned when a credential
// refresh fails.
const MsgAuthFailed = "Authentication failed."

var expiredMessages = []string{MsgBadAccessToken, MsgMissingTokenCookies}

type resultKind int

const (
	kindEnvelope resultKind = iota
	kindTransport
	kindAuthFailed
)

// Result is the uniform response envelope. Every pipeline call produces
// one, including transport failures, which are synthesized with
// StatusCode 0.
type Result struct {
	Status  Status          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result,omitempty"`

	// StatusCode is the HTTP status of the response; 0 if none was received.
	StatusCode int `json:"-"`

	kind resultKind
}

// OK reports whether the call succeeded: a 2xx status and an envelope
// status of "success".
func (r Result) OK() bool {
	return r.kind == kindEnvelope &&
		r.StatusCode >= http.StatusOK && r.StatusCode < http.StatusMultipleChoices &&
		r.Status == StatusSuccess
}

// AuthExpired reports whether the server rejected the access token in a way
// a refresh can fix.
func (r Result) AuthExpired() bool {
	return r.kind == kindEnvelope &&
		r.StatusCode == http.StatusUnauthorized &&
		slices.Contains(expiredMessages, r.Message)
}

// IsTransport reports whether the result was synthesized from a network or
// decoding failure.
func (r Result) IsTransport() bool {
	return r.kind == kindTransport
}

// Err returns nil for a successful result and a *ResultError otherwise.
func (r Result) Err() error {
	if r.OK() {
		return nil
	}

	return &ResultError{Result: r}
}

func (r Result) kindSentinel() error {
	switch r.kind {
	case kindTransport:
		return ErrTransport
	case kindAuthFailed:
		return ErrAuthFailed
	default:
		return ErrLogical
	}
}

// transportResult converts a transport-level error into an error envelope.
func transportResult(err error) Result {
	return Result{Status: StatusError, Message: err.Error(), kind: kindTransport}
}

// authFailedResult is returned when the refresh behind an expired token
// fails.
func authFailedResult() Result {
	return Result{Status: StatusError, Message: MsgAuthFailed, kind: kindAuthFailed}
}

// Decode unmarshals the result payload of a successful Result into T.
// Failed results return their *ResultError.
func Decode[T any](r Result) (T, error) {
	var out T

	if err := r.Err(); err != nil {
		return out, err
	}

	if len(r.Result) == 0 {
		return out, ErrMissingResult
	}

	if err := json.Unmarshal(r.Result, &out); err != nil {
		return out, fmt.Errorf("api: decoding result: %w", err)
	}

	return out, nil
}
