// Package http provides HTTP server and handler implementations.
//
// This file implements the Builder Pattern for constructing JSON responses
// and maps domain errors to status codes.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"taxbridge/internal/core"
)

// ResponseBuilder provides a fluent API for building JSON responses.
type ResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// errorBody is the payload of every non-2xx JSON response.
type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// NewResponse creates a new response builder with default 200 status.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// JSON sets the value encoded as the response body.
func (b *ResponseBuilder) JSON(v any) *ResponseBuilder {
	b.body = v
	return b
}

// StatusCode returns the status the builder will write.
func (b *ResponseBuilder) StatusCode() int {
	return b.statusCode
}

// Write sends the built response to the http.ResponseWriter.
func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}

	payload, err := json.Marshal(b.body)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal error","kind":"internal"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(append(payload, '\n'))
}

// ErrorResponse maps err to its status and a message safe for callers.
// Errors outside the domain taxonomy are reported as internal.
func ErrorResponse(err error) *ResponseBuilder {
	var e *core.Error
	if !errors.As(err, &e) {
		e = core.NewInternal(err)
	}
	return NewResponse().
		Status(e.StatusCode()).
		JSON(errorBody{Error: e.Msg(), Kind: e.Kind().String()})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *ResponseBuilder {
	return NewResponse().
		Status(http.StatusBadRequest).
		JSON(errorBody{Error: message, Kind: core.KindValidation.String()})
}

// TooManyRequestsError creates a 429 response for throttled clients.
func TooManyRequestsError() *ResponseBuilder {
	return NewResponse().
		Status(http.StatusTooManyRequests).
		JSON(errorBody{Error: "rate limit exceeded, try again later", Kind: "rate_limited"})
}

// PayloadTooLargeError creates a 413 response for oversized uploads.
func PayloadTooLargeError(limit int64) *ResponseBuilder {
	return NewResponse().
		Status(http.StatusRequestEntityTooLarge).
		JSON(errorBody{Error: fmt.Sprintf("upload exceeds %d bytes", limit), Kind: core.KindValidation.String()})
}
