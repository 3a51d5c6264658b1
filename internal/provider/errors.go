package provider

import (
	"errors"
	"fmt"
)

// ErrorKind classifies upstream failures into the provider-agnostic
// taxonomy the caller-facing layers switch on.
type ErrorKind string

const (
	// KindCredentialMissing means no API key was configured or found in the
	// environment; raised before any network attempt.
	KindCredentialMissing ErrorKind = "credential_missing"
	// KindThrottled means the upstream signaled rate limiting or an
	// informational notice instead of data.
	KindThrottled ErrorKind = "throttled"
	// KindRejected means the upstream returned an explicit error payload
	// (bad symbol, bad parameters).
	KindRejected ErrorKind = "rejected"
	// KindNoData means the response parsed but contained no usable payload.
	KindNoData ErrorKind = "no_data"
	// KindTransport means a network timeout or non-success HTTP status.
	KindTransport ErrorKind = "transport"
)

// Error is the single error type all provider clients raise. The cache
// orchestrator propagates it unrecovered except for the one documented
// adjusted-intraday fallback.
type Error struct {
	Kind     ErrorKind
	Provider string
	Message  string
	Err      error // underlying cause, if any
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return fmt.Sprintf("%s: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds an *Error for the given provider and kind.
func NewError(providerName string, kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Provider: providerName, Message: message}
}

// WrapError builds a transport-kind *Error around a lower-level failure.
func WrapError(providerName string, kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Provider: providerName, Message: message, Err: err}
}

// KindOf returns the kind of err when it is (or wraps) a provider *Error,
// and "" otherwise.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
