package providers

import (
	"errors"
	"fmt"
	"strings"
)

type ErrorType string

const (
	ErrorQuota     ErrorType = "quota"
	ErrorRate      ErrorType = "rate"
	ErrorNotFound  ErrorType = "not_found"
	ErrorTransient ErrorType = "transient"
	ErrorPermanent ErrorType = "permanent"
	ErrorContext   ErrorType = "context"
)

// Error carries the provider failure taxonomy across package
// boundaries. Rate-limit and not-found conditions stay distinguishable
// from plain transient failures.
type Error struct {
	Provider string
	Op       string
	Type     ErrorType
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s (%s): %v", e.Provider, e.Op, e.Type, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Temporary feeds the retry policy. Quota exhaustion is not temporary:
// waiting a few hundred milliseconds never refills credits.
func (e *Error) Temporary() bool {
	return e.Type == ErrorRate || e.Type == ErrorTransient
}

// httpError maps an HTTP status from a collaborator to a typed error.
func httpError(provider, op string, status int, body []byte) *Error {
	msg := fmt.Errorf("status %d: %s", status, strings.TrimSpace(string(body)))
	typ := ErrorPermanent
	switch {
	case status == 402 || strings.Contains(strings.ToLower(string(body)), "insufficient_quota"):
		typ = ErrorQuota
	case status == 429:
		typ = ErrorRate
	case status == 404:
		typ = ErrorNotFound
	case status == 408 || status >= 500:
		typ = ErrorTransient
	}
	return &Error{Provider: provider, Op: op, Type: typ, Err: msg}
}

// ClassifyError reports the taxonomy type of any error, consulting the
// typed form first and falling back to message matching for errors that
// crossed an untyped boundary.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ""
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Type
	}
	e := strings.ToLower(err.Error())
	switch {
	case strings.Contains(e, "quota"), strings.Contains(e, "credit"), strings.Contains(e, "insufficient_quota"):
		return ErrorQuota
	case strings.Contains(e, "rate"), strings.Contains(e, "429"):
		return ErrorRate
	case strings.Contains(e, "not found"), strings.Contains(e, "404"):
		return ErrorNotFound
	case strings.Contains(e, "context"), strings.Contains(e, "too long"):
		return ErrorContext
	case strings.Contains(e, "timeout"), strings.Contains(e, "temporarily"), strings.Contains(e, "unavailable"):
		return ErrorTransient
	default:
		return ErrorPermanent
	}
}
