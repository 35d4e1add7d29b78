package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for recovery and presentation.
type Kind string

// Error kinds.
const (
	KindUnknown           Kind = ""
	KindProviderStartup   Kind = "provider_startup"
	KindToolNotFound      Kind = "tool_not_found"
	KindToolValidation    Kind = "tool_validation"
	KindToolExecution     Kind = "tool_execution"
	KindModelInference    Kind = "model_inference"
	KindTransportTimeout  Kind = "transport_timeout"
	KindMissingCredential Kind = "missing_credential"
)

// UserErrorf is a user-facing error.
// This helper exists mostly to avoid linters complaining about errors starting
// with a capitalized letter.
func UserErrorf(format string, a ...any) error {
	return fmt.Errorf(format, a...)
}

// Error wraps an underlying error with a user-facing reason.
//
// Reason is meant to be short and actionable; Err may contain technical details.
// When Err is nil, Error() falls back to Reason.
type Error struct {
	Kind   Kind
	Err    error
	Reason string
}

// Wrap creates an Error with the given underlying error and user-facing reason.
func Wrap(err error, reason string) Error {
	return Error{Err: err, Reason: reason}
}

// Wrapf creates an Error with the given underlying error and a formatted reason.
func Wrapf(err error, format string, a ...any) Error {
	return Error{Err: err, Reason: fmt.Sprintf(format, a...)}
}

// New creates a classified Error.
func New(kind Kind, err error, reason string) Error {
	return Error{Kind: kind, Err: err, Reason: reason}
}

// Newf creates a classified Error whose underlying error is built from format.
func Newf(kind Kind, reason, format string, a ...any) Error {
	return Error{Kind: kind, Err: fmt.Errorf(format, a...), Reason: reason}
}

func (e Error) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Reason
}

func (e Error) Unwrap() error {
	return e.Err
}

// ReasonText returns the user-facing reason for the error.
func (e Error) ReasonText() string {
	return e.Reason
}

// KindOf returns the kind of the outermost classified Error in err's chain.
func KindOf(err error) Kind {
	for err != nil {
		var e Error
		if !errors.As(err, &e) {
			return KindUnknown
		}
		if e.Kind != KindUnknown {
			return e.Kind
		}
		err = e.Err
	}
	return KindUnknown
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Reason returns the user-facing reason carried by err, or fallback.
func Reason(err error, fallback string) string {
	var e Error
	if errors.As(err, &e) && e.Reason != "" {
		return e.Reason
	}
	return fallback
}
