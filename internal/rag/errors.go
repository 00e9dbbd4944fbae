package rag

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so callers can tell a transient network
// problem from a broken payload or a credential problem without parsing
// error strings.
type ErrorKind string

const (
	// KindProviderUnavailable is a transport failure or non-success status
	// from an embedding or chat provider.
	KindProviderUnavailable ErrorKind = "provider_unavailable"
	// KindMalformedResponse is a provider payload the parser cannot interpret.
	KindMalformedResponse ErrorKind = "malformed_response"
	// KindConfigurationMissing is a required credential or setting that is absent.
	KindConfigurationMissing ErrorKind = "configuration_missing"
	// KindAuthRejected is a provider refusing the configured credential (401/403).
	KindAuthRejected ErrorKind = "auth_rejected"
	// KindInvalidInput is a caller-supplied value that cannot be processed
	// (empty question, document with no extractable text).
	KindInvalidInput ErrorKind = "invalid_input"
	// KindDimensionMismatch is a vector whose width differs from the index.
	KindDimensionMismatch ErrorKind = "dimension_mismatch"
)

// Error is the typed error carried across the retrieval pipeline.
type Error struct {
	// Kind classifies the failure.
	Kind ErrorKind
	// Op names the operation that failed (e.g. "huggingface embedder").
	Op string
	// Err is the underlying cause, if any.
	Err error
}

// Sentinels for errors.Is matching. Only Kind is compared.
var (
	ErrProviderUnavailable  = &Error{Kind: KindProviderUnavailable}
	ErrMalformedResponse    = &Error{Kind: KindMalformedResponse}
	ErrConfigurationMissing = &Error{Kind: KindConfigurationMissing}
	ErrAuthRejected         = &Error{Kind: KindAuthRejected}
	ErrInvalidInput         = &Error{Kind: KindInvalidInput}
	ErrDimensionMismatch    = &Error{Kind: KindDimensionMismatch}
)

// NewError constructs an *Error of the given kind. msg is formatted with args
// and becomes the cause when cause is nil; otherwise it prefixes cause.
func NewError(kind ErrorKind, op string, cause error, msg string, args ...any) *Error {
	var err error
	switch {
	case msg == "":
		err = cause
	case cause == nil:
		err = fmt.Errorf(msg, args...)
	default:
		err = fmt.Errorf("%s: %w", fmt.Sprintf(msg, args...), cause)
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	prefix := string(e.Kind)
	if e.Op != "" {
		prefix = e.Op + ": " + prefix
	}
	if e.Err == nil {
		return prefix
	}
	return prefix + ": " + e.Err.Error()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
