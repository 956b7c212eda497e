package core

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies errors into the buckets the HTTP layer maps to statuses.
type Kind int

const (
	KindInternal    Kind = iota // unexpected failure inside the service
	KindValidation              // caller supplied bad input
	KindUpstream                // an external API failed or answered garbage
	KindPartialData             // some valuations are unavailable
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUpstream:
		return "upstream"
	case KindPartialData:
		return "partial_data"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error carries a Kind alongside an optional wrapped cause.
//
// Service is set for upstream errors and names the external dependency.
// Missing is set for partial data and counts the unavailable valuations.
type Error struct {
	kind    Kind
	msg     string
	err     error
	service string
	missing int
	format  bool
}

func (e *Error) Error() string {
	switch {
	case e.msg != "" && e.err != nil:
		return e.msg + ": " + e.err.Error()
	case e.msg != "":
		return e.msg
	case e.err != nil:
		return e.err.Error()
	default:
		return e.kind.String() + " error"
	}
}

func (e *Error) Unwrap() error { return e.err }

func (e *Error) Kind() Kind { return e.kind }

// Msg returns the message safe to show to API callers.
func (e *Error) Msg() string {
	if e.kind == KindInternal {
		return "internal error"
	}
	return e.Error()
}

func (e *Error) Service() string { return e.service }

func (e *Error) Missing() int { return e.missing }

// StatusCode maps the error to an HTTP status.
func (e *Error) StatusCode() int {
	switch e.kind {
	case KindValidation:
		if e.format {
			return http.StatusBadRequest
		}
		return http.StatusUnprocessableEntity
	case KindUpstream:
		return http.StatusBadGateway
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindPartialData:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

func NewValidation(msg string, err error) *Error {
	return &Error{kind: KindValidation, msg: msg, err: err}
}

// NewInvalidFormat is a validation error on the requested export format.
func NewInvalidFormat(format string) *Error {
	return &Error{kind: KindValidation, msg: fmt.Sprintf("unsupported format %q", format), format: true}
}

// NewUpstream wraps a failure of the named external service.
func NewUpstream(service string, err error) *Error {
	return &Error{kind: KindUpstream, msg: service + " unavailable", err: err, service: service}
}

func NewPartialData(missing int) *Error {
	return &Error{kind: KindPartialData, msg: fmt.Sprintf("%d transaction(s) without fiat valuation", missing), missing: missing}
}

func NewNotFound(msg string) *Error {
	return &Error{kind: KindNotFound, msg: msg}
}

func NewConflict(msg string, err error) *Error {
	return &Error{kind: KindConflict, msg: msg, err: err}
}

func NewInternal(err error) *Error {
	return &Error{kind: KindInternal, err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, KindInternal
// when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindInternal
}

func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.kind == k
}
