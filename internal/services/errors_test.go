package services_test

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"studio/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrUpstream, "generate", "provider failed", base)
	if !errors.Is(err, services.ErrUpstream) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"generate", "provider failed", "boom"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		marker error
		want   int
	}{
		{services.ErrValidation, http.StatusBadRequest},
		{services.ErrNotFound, http.StatusNotFound},
		{services.ErrConflict, http.StatusConflict},
		{services.ErrUnauthorized, http.StatusUnauthorized},
		{services.ErrForbidden, http.StatusForbidden},
		{services.ErrRateLimited, http.StatusTooManyRequests},
		{services.ErrQuotaExceeded, http.StatusTooManyRequests},
		{services.ErrUpstream, http.StatusBadGateway},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		err := fmt.Errorf("outer: %w", services.Wrap(tc.marker, "op", "msg", nil))
		if got := services.HTTPStatus(err); got != tc.want {
			t.Fatalf("HTTPStatus(%v) = %d, want %d", err, got, tc.want)
		}
	}
}

func TestDetailsHidesInternalErrors(t *testing.T) {
	if got := services.Details(errors.New("db exploded")); got != "internal server error" {
		t.Fatalf("unexpected details %q", got)
	}
	err := services.Wrap(services.ErrNotFound, "get script", "Script not found", nil)
	if got := services.Details(fmt.Errorf("handler: %w", err)); got != "Script not found" {
		t.Fatalf("unexpected details %q", got)
	}
	if got := services.Details(services.ErrConflict); got != "conflict" {
		t.Fatalf("unexpected details for bare marker %q", got)
	}
}
