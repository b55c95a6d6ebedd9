// Package failure defines the error taxonomy shared by the dispute store and its boundaries.
package failure

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for callers that need to react to it.
type Kind string

const (
	KindAuthorization Kind = "AUTHORIZATION"
	KindState         Kind = "STATE"
	KindValidation    Kind = "VALIDATION"
	KindTransient     Kind = "TRANSIENT"
	KindConcurrency   Kind = "CONCURRENCY_LOSS"
	KindNotFound      Kind = "NOT_FOUND"
)

// Error is a classified failure. Code is a stable machine-readable identifier.
type Error struct {
	Kind    Kind           `json:"kind"`
	Code    string         `json:"error"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Message
}

// Is matches on kind and, when the target has one, on code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// WithDetail returns a copy of e carrying key=value.
func (e *Error) WithDetail(key string, value any) *Error {
	out := *e
	out.Details = make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		out.Details[k] = v
	}
	out.Details[key] = value
	return &out
}

func newf(kind Kind, code, format string, args ...any) *Error {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &Error{Kind: kind, Code: code, Message: msg}
}

func Forbidden(code, format string, args ...any) *Error {
	return newf(KindAuthorization, code, format, args...)
}

func State(code, format string, args ...any) *Error {
	return newf(KindState, code, format, args...)
}

func Invalid(code, format string, args ...any) *Error {
	return newf(KindValidation, code, format, args...)
}

func Transient(code, format string, args ...any) *Error {
	return newf(KindTransient, code, format, args...)
}

func NotFound(code, format string, args ...any) *Error {
	return newf(KindNotFound, code, format, args...)
}

// ConcurrencyLoss reports that another bid won the race the caller observed.
func ConcurrencyLoss(format string, args ...any) *Error {
	return newf(KindConcurrency, CodeOutbid, format, args...)
}

const CodeOutbid = "OUTBID"

// Sentinels usable with errors.Is.
var (
	ErrAuthorization = &Error{Kind: KindAuthorization}
	ErrState         = &Error{Kind: KindState}
	ErrValidation    = &Error{Kind: KindValidation}
	ErrTransient     = &Error{Kind: KindTransient}
	ErrConcurrency   = &Error{Kind: KindConcurrency}
	ErrNotFound      = &Error{Kind: KindNotFound}
)

// As extracts the classified failure from err.
func As(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// KindOf returns the kind of err, or "" when err is not classified.
func KindOf(err error) Kind {
	if fe, ok := As(err); ok {
		return fe.Kind
	}
	return ""
}

// CodeOf returns the code of err, or "" when err is not classified.
func CodeOf(err error) string {
	if fe, ok := As(err); ok {
		return fe.Code
	}
	return ""
}
