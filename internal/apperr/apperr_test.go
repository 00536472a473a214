package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{Validation("bad"), http.StatusBadRequest},
		{NotFound("missing"), http.StatusNotFound},
		{Unauthorized("who"), http.StatusUnauthorized},
		{Forbidden("no"), http.StatusForbidden},
		{errors.New("boom"), http.StatusBadRequest},
		{fmt.Errorf("context: %w", NotFound("missing")), http.StatusNotFound},
	}

	for _, tc := range cases {
		if got := HTTPStatus(tc.err); got != tc.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestWrap_KeepsCause(t *testing.T) {
	cause := errors.New("duplicate key")
	err := Wrap(KindValidation, "meter number already registered", cause)

	if !errors.Is(err, cause) {
		t.Error("Expected wrapped cause to be reachable")
	}
	if !Is(err, KindValidation) {
		t.Error("Expected validation kind")
	}
	if err.Error() != "meter number already registered" {
		t.Errorf("Unexpected message %q", err.Error())
	}
}
