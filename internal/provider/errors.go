package provider

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies provider failures per the agent's needs: the loop
// traps ErrContextLengthExceeded and surfaces everything else as text.
type ErrorKind string

const (
	ErrContextLengthExceeded ErrorKind = "context_length_exceeded"
	ErrRateLimited           ErrorKind = "rate_limited"
	ErrAuth                  ErrorKind = "auth"
	ErrRequestFailed         ErrorKind = "request_failed"
	ErrUsage                 ErrorKind = "usage"
	ErrOther                 ErrorKind = "other"
)

// Error is the provider error type.
type Error struct {
	Kind  ErrorKind
	Model string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider %s (%s): %v", e.Kind, e.Model, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsContextLengthExceeded reports whether err is a trapped context-
// window overflow.
func IsContextLengthExceeded(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == ErrContextLengthExceeded
}

// IsRetryable reports whether the agent's backoff wrapper should retry.
func IsRetryable(err error) bool {
	var pe *Error
	if !errors.As(err, &pe) {
		return true
	}
	switch pe.Kind {
	case ErrRateLimited, ErrRequestFailed, ErrOther:
		return true
	default:
		return false
	}
}

// contextLengthMarkers are backend messages that all mean the same
// thing: the conversation no longer fits the model's window.
var contextLengthMarkers = []string{
	"context length",
	"context_length_exceeded",
	"context window",
	"prompt is too long",
	"maximum context",
	"input is too long",
	"exceed context limit",
}

// wrapError classifies a raw backend error into the provider taxonomy.
// Already-classified errors pass through.
func wrapError(modelName string, err error) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}

	msg := strings.ToLower(err.Error())
	kind := ErrOther

	switch {
	case matchesAny(msg, contextLengthMarkers):
		kind = ErrContextLengthExceeded
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429") || strings.Contains(msg, "overloaded"):
		kind = ErrRateLimited
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") ||
		strings.Contains(msg, "unauthorized") || strings.Contains(msg, "authentication") ||
		strings.Contains(msg, "invalid api key") || strings.Contains(msg, "invalid x-api-key"):
		kind = ErrAuth
	case strings.Contains(msg, "400") || strings.Contains(msg, "invalid request"):
		kind = ErrUsage
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "connection") ||
		strings.Contains(msg, "500") || strings.Contains(msg, "502") ||
		strings.Contains(msg, "503") || strings.Contains(msg, "529"):
		kind = ErrRequestFailed
	}

	return &Error{Kind: kind, Model: modelName, Err: err}
}

func matchesAny(msg string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
