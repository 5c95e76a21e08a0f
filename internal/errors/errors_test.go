package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   Code
	}{
		{InvalidArgument("bad"), http.StatusBadRequest, CodeInvalidArgument},
		{InsufficientFunds("broke"), http.StatusPaymentRequired, CodeInsufficientFunds},
		{NotFound("missing"), http.StatusNotFound, CodeNotFound},
		{InvalidState("wrong"), http.StatusConflict, CodeInvalidState},
		{Unauthorized("nope"), http.StatusForbidden, CodeUnauthorized},
		{Internal("oops"), http.StatusInternalServerError, CodeInternal},
		{errors.New("plain"), http.StatusInternalServerError, CodeInternal},
	}

	for _, tc := range cases {
		if got := HTTPStatusOf(tc.err); got != tc.status {
			t.Fatalf("%v: expected status %d, got %d", tc.err, tc.status, got)
		}
		if got := CodeOf(tc.err); got != tc.code {
			t.Fatalf("%v: expected code %s, got %s", tc.err, tc.code, got)
		}
	}
}

func TestSentinelMatching(t *testing.T) {
	err := InsufficientFunds("balance %d too low", 5)
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatal("expected match with sentinel")
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatal("unexpected match with different code")
	}

	wrapped := fmt.Errorf("handler: %w", err)
	if !errors.Is(wrapped, ErrInsufficientFunds) {
		t.Fatal("expected match through wrapping")
	}
}

func TestWithCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Internal("write failed").WithCause(cause)

	if !errors.Is(err, cause) {
		t.Fatal("expected cause to unwrap")
	}
	if HTTPStatusOf(err) != http.StatusInternalServerError {
		t.Fatal("expected status preserved")
	}
}
