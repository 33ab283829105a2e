// Package proxyerr defines the error taxonomy shared by the request resolver,
// upstream dispatcher, and response pipeline.
package proxyerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a proxy-level failure so the HTTP layer can map it to a
// status code and JSON body in one place.
type Kind int

const (
	// InternalError is the catch-all for anything that escapes a handler
	// without a more specific Kind attached.
	InternalError Kind = iota
	// MissingTarget means no upstream URL could be found in the query,
	// path, or Referer header.
	MissingTarget
	// InvalidURL means a candidate target string did not parse as an
	// absolute http(s) URL.
	InvalidURL
	// UpstreamUnreachable means the upstream host could not be resolved.
	UpstreamUnreachable
	// UpstreamTimeout means the outbound fetch exceeded its deadline.
	UpstreamTimeout
	// UpstreamTransport means the outbound fetch failed for a reason other
	// than DNS resolution or timeout.
	UpstreamTransport
	// RewriteError means HTML/CSS rewriting failed. Handlers must recover
	// this locally and serve the original bytes; it should never reach the
	// top-level handler as a hard error.
	RewriteError
)

func (k Kind) String() string {
	switch k {
	case MissingTarget:
		return "MissingTarget"
	case InvalidURL:
		return "InvalidURL"
	case UpstreamUnreachable:
		return "UpstreamUnreachable"
	case UpstreamTimeout:
		return "UpstreamTimeout"
	case UpstreamTransport:
		return "UpstreamTransport"
	case RewriteError:
		return "RewriteError"
	default:
		return "InternalError"
	}
}

// Status returns the HTTP status code the spec's error taxonomy assigns to
// this Kind.
func (k Kind) Status() int {
	switch k {
	case MissingTarget, InvalidURL:
		return http.StatusBadRequest
	case UpstreamUnreachable:
		return http.StatusNotFound
	case UpstreamTimeout:
		return http.StatusGatewayTimeout
	case UpstreamTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error wraps an underlying cause with a Kind and an optional user-facing
// message. It is compatible with errors.As/errors.Is via Unwrap.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
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

// As is a convenience wrapper around errors.As for the common case of
// pulling a *Error out of an error chain.
func As(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it (or something it wraps) is a *Error,
// and InternalError otherwise.
func KindOf(err error) Kind {
	if pe, ok := As(err); ok {
		return pe.Kind
	}
	return InternalError
}
