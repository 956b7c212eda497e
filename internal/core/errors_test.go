package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestErrorStatusCode(t *testing.T) {
	cases := []struct {
		err  *Error
		want int
	}{
		{NewValidation("bad address", ErrInvalidAddress), http.StatusUnprocessableEntity},
		{NewInvalidFormat("xlsx"), http.StatusBadRequest},
		{NewUpstream("explorer", errors.New("boom")), http.StatusBadGateway},
		{NewNotFound("profile not found"), http.StatusNotFound},
		{NewConflict("exists", nil), http.StatusConflict},
		{NewInternal(errors.New("disk")), http.StatusInternalServerError},
		{NewPartialData(2), http.StatusOK},
	}
	for _, tc := range cases {
		if got := tc.err.StatusCode(); got != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.err.Kind(), tc.want, got)
		}
	}
}

func TestErrorWrapping(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("fetch: %w", NewUpstream("pricing", cause))

	if !IsKind(err, KindUpstream) {
		t.Fatalf("expected upstream kind through wrapping")
	}
	if KindOf(err) != KindUpstream {
		t.Fatalf("unexpected kind %s", KindOf(err))
	}
	if !errors.Is(err, cause) {
		t.Fatalf("cause must be reachable")
	}
	var e *Error
	if !errors.As(err, &e) || e.Service() != "pricing" {
		t.Fatalf("expected pricing service, got %+v", e)
	}
	if KindOf(errors.New("plain")) != KindInternal {
		t.Fatalf("plain errors are internal")
	}
}

func TestErrorMessages(t *testing.T) {
	if msg := NewInternal(errors.New("secret path /var/db")).Msg(); strings.Contains(msg, "secret") {
		t.Fatalf("internal message leaked cause: %q", msg)
	}
	pd := NewPartialData(3)
	if pd.Missing() != 3 || !strings.Contains(pd.Error(), "3") {
		t.Fatalf("unexpected partial data error %q", pd.Error())
	}
}
