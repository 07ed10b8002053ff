// Package apperrors defines the error taxonomy shared across the analysis and
// autofix pipelines. Provider and agent failures are classified here so the
// routers can decide on fallback without string matching.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for fallback decisions and API mapping.
type Kind string

const (
	// KindInvalidInput marks requests rejected before any pipeline stage.
	KindInvalidInput Kind = "invalid_input"
	// KindProviderUnavailable marks an AI backend with no reachable
	// endpoint or missing credentials.
	KindProviderUnavailable Kind = "provider_unavailable"
	// KindProviderTimeout marks an AI call that exceeded its wall-clock
	// budget.
	KindProviderTimeout Kind = "provider_timeout"
	// KindProviderMalformed marks an AI response that could not be parsed
	// into issues.
	KindProviderMalformed Kind = "provider_malformed_response"
	// KindAgentInvocation marks a failed external patch-agent call
	// (timeout, crash, empty or unparseable output).
	KindAgentInvocation Kind = "agent_invocation_failure"
	// KindFallbackGeneration marks the one fatal autofix case: even the
	// template generator could not produce a diff.
	KindFallbackGeneration Kind = "fallback_generation_failure"
	// KindInternal marks everything else.
	KindInternal Kind = "internal"
)

// Error is a classified error with an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a classified error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a classified error around a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Newf creates a classified error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsProviderFailure reports whether err is one of the recoverable provider
// failure kinds that the router answers with the rule-engine fallback.
func IsProviderFailure(err error) bool {
	switch KindOf(err) {
	case KindProviderUnavailable, KindProviderTimeout, KindProviderMalformed:
		return true
	}
	return false
}
