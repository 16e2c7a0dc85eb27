package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindNotFound, http.StatusNotFound},
		{KindValidation, http.StatusBadRequest},
		{KindBadRequest, http.StatusBadRequest},
		{KindConflict, http.StatusConflict},
		{KindForbidden, http.StatusForbidden},
		{KindUnauthorized, http.StatusUnauthorized},
		{KindInternal, http.StatusInternalServerError},
		{KindUnknown, http.StatusBadRequest},
	}

	for _, tc := range tests {
		if got := New(tc.kind, "boom").HTTPStatus(); got != tc.want {
			t.Errorf("kind %d maps to %d, want %d", tc.kind, got, tc.want)
		}
	}
}

func TestErrorMessageIncludesOp(t *testing.T) {
	err := Conflict("queue entry is not pending").WithOp("queue.Assign")
	if err.Error() != "queue.Assign: queue entry is not pending" {
		t.Errorf("Error() = %q", err.Error())
	}

	bare := NotFound("plan not found")
	if bare.Error() != "plan not found" {
		t.Errorf("Error() = %q", bare.Error())
	}
}

func TestIsAndGetKind(t *testing.T) {
	err := Forbidden("directors only")
	if !Is(err, KindForbidden) {
		t.Error("Is should match the error's kind")
	}
	if Is(err, KindConflict) {
		t.Error("Is matched the wrong kind")
	}
	if GetKind(errors.New("plain")) != KindUnknown {
		t.Error("plain errors should report KindUnknown")
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(KindInternal, "query failed", cause)

	if !errors.Is(err, cause) {
		t.Error("wrapped cause should be reachable via errors.Is")
	}
	if !errors.Is(fmt.Errorf("outer: %w", err), cause) {
		t.Error("cause should survive further wrapping")
	}
}
