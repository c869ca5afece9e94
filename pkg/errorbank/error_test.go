package errorbank

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"google.golang.org/grpc/codes"
)

func TestStatusCodeByKind(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{KindBadRequest, http.StatusBadRequest},
		{KindUnauthenticated, http.StatusUnauthorized},
		{KindForbidden, http.StatusForbidden},
		{KindConflict, http.StatusConflict},
		{KindNotFound, http.StatusNotFound},
		{KindUnprocessableEntity, http.StatusUnprocessableEntity},
		{KindUnavailable, http.StatusServiceUnavailable},
		{KindInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := New(tc.kind, "").StatusCode(); got != tc.want {
			t.Errorf("kind %q: expected %d, got %d", tc.kind, tc.want, got)
		}
	}
}

func TestGRPCCodeByKind(t *testing.T) {
	cases := []struct {
		kind Kind
		want codes.Code
	}{
		{KindUnauthenticated, codes.Unauthenticated},
		{KindForbidden, codes.PermissionDenied},
		{KindUnavailable, codes.Unavailable},
		{KindNotFound, codes.NotFound},
	}
	for _, tc := range cases {
		if got := New(tc.kind, "").GRPCCode(); got != tc.want {
			t.Errorf("kind %q: expected %v, got %v", tc.kind, tc.want, got)
		}
	}
}

func TestCauseIsVisibleToErrorsIs(t *testing.T) {
	sentinel := errors.New("boom")
	err := Conflict("state moved", WithCause(sentinel))

	if !errors.Is(err, sentinel) {
		t.Error("expected errors.Is to reach the cause")
	}
	wrapped := fmt.Errorf("handler: %w", err)
	if !errors.Is(wrapped, sentinel) {
		t.Error("expected errors.Is through an outer wrap")
	}
	if From(wrapped).Kind() != KindConflict {
		t.Errorf("expected From to recover the AppError, got %q", From(wrapped).Kind())
	}
}

func TestFromWrapsUnknownErrors(t *testing.T) {
	plain := errors.New("disk on fire")
	appErr := From(plain)

	if appErr.Kind() != KindInternal {
		t.Errorf("expected internal kind, got %q", appErr.Kind())
	}
	if !errors.Is(appErr, plain) {
		t.Error("expected original error preserved as cause")
	}
	if From(nil) != nil {
		t.Error("expected nil for nil input")
	}
}

func TestDetailsAccumulate(t *testing.T) {
	err := BadRequest("bad item",
		WithDetail("item", 2),
		WithDetails(map[string]any{"field": "quantity"}),
	)
	details := err.Details()
	if details["item"] != 2 || details["field"] != "quantity" {
		t.Errorf("unexpected details: %v", details)
	}
}
