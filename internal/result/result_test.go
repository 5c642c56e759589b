package result

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindHTTPStatus(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{Invalid, http.StatusBadRequest},
		{NotFound, http.StatusNotFound},
		{Conflict, http.StatusConflict},
		{Unavailable, http.StatusServiceUnavailable},
		{Timeout, http.StatusServiceUnavailable},
		{HandlerMissing, http.StatusInternalServerError},
		{Backpressure, http.StatusInternalServerError},
		{External, http.StatusInternalServerError},
		{Internal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := tc.kind.HTTPStatus(); got != tc.want {
			t.Errorf("Kind(%s).HTTPStatus() = %d, want %d", tc.kind, got, tc.want)
		}
	}
}

func TestErrorMessage(t *testing.T) {
	e := New(NotFound, "zone %d not found", 3)
	if e.Error() != "NotFound: zone 3 not found" {
		t.Errorf("unexpected message: %q", e.Error())
	}

	cause := errors.New("dial tcp: connection refused")
	wrapped := Wrap(Unavailable, cause, "snapcast unreachable")
	if !errors.Is(wrapped, cause) {
		t.Error("expected errors.Is to find wrapped cause")
	}
	want := "Unavailable: snapcast unreachable: dial tcp: connection refused"
	if wrapped.Error() != want {
		t.Errorf("Error() = %q, want %q", wrapped.Error(), want)
	}
}

func TestAs(t *testing.T) {
	base := New(Conflict, "client already in zone")
	outer := fmt.Errorf("mediator: %w", base)

	got, ok := As(outer)
	if !ok {
		t.Fatal("expected As to find wrapped *Error")
	}
	if got.Kind != Conflict {
		t.Errorf("Kind = %s, want Conflict", got.Kind)
	}

	if _, ok := As(errors.New("plain")); ok {
		t.Error("expected As to fail on a plain error")
	}
}

func TestResultOkErr(t *testing.T) {
	ok := Ok(42)
	if !ok.IsOk() {
		t.Error("expected Ok result to report IsOk")
	}
	v, err := ok.Unwrap()
	if err != nil || v != 42 {
		t.Errorf("Unwrap() = (%d, %v), want (42, nil)", v, err)
	}

	failed := Err[int](Invalid, "volume must be 0-100, got %d", 150)
	if failed.IsOk() {
		t.Error("expected failed result to report !IsOk")
	}
	_, err = failed.Unwrap()
	var rErr *Error
	if !errors.As(err, &rErr) || rErr.Kind != Invalid {
		t.Errorf("expected Invalid *Error, got %v", err)
	}
}

func TestErrFrom(t *testing.T) {
	e := New(Timeout, "snapcast rpc timed out")
	r := ErrFrom[string](e)
	if r.IsOk() {
		t.Error("expected ErrFrom result to report !IsOk")
	}
	if r.Err != e {
		t.Error("expected ErrFrom to preserve the *Error pointer")
	}
}
