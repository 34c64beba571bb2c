package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

func TestMapError_Envelope(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		category goerrors.Category
		textCode string
		status   int
	}{
		{"validation", ValidationError("source", "source is required"), goerrors.CategoryValidation, ErrorValidation, http.StatusBadRequest},
		{"conflict", ReconciliationConflict("quote moved", nil), goerrors.CategoryConflict, ErrorReconciliationConflict, http.StatusConflict},
		{"send", ExternalSendFailure(errors.New("smtp down"), nil), goerrors.CategoryExternal, ErrorExternalSendFailure, http.StatusBadGateway},
		{"persistence", PersistenceFailure(errors.New("disk full"), "write failed"), goerrors.CategoryOperation, ErrorPersistenceFailure, http.StatusServiceUnavailable},
		{"inactive", TenantInactiveError("t1", TenantStatusSuspended), goerrors.CategoryAuthz, ErrorTenantInactive, http.StatusForbidden},
		{"deadline", context.DeadlineExceeded, goerrors.CategoryExternal, ErrorExternalSendFailure, http.StatusBadGateway},
		{"plain not found", errors.New("row not found"), goerrors.CategoryNotFound, ErrorNotFound, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mapped := MapError(tc.err)
			if mapped == nil {
				t.Fatalf("expected mapped error")
			}
			if mapped.Category != tc.category {
				t.Fatalf("expected category %s, got %s", tc.category, mapped.Category)
			}
			if mapped.TextCode != tc.textCode {
				t.Fatalf("expected text code %s, got %s", tc.textCode, mapped.TextCode)
			}
			if mapped.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, mapped.Code)
			}
		})
	}
	if MapError(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}

func TestPersistenceFailure_KeepsExistingEnvelope(t *testing.T) {
	notFound := NotFoundError("tenant not found", nil)
	if got := PersistenceFailure(notFound, "lookup failed"); !IsNotFound(got) {
		t.Fatalf("expected not found envelope to pass through, got %v", got)
	}
	if PersistenceFailure(nil, "noop") != nil {
		t.Fatalf("expected nil passthrough")
	}
}

func TestHasTextCode_Wrapped(t *testing.T) {
	err := fmt.Errorf("outer: %w", ReconciliationConflict("customer race", nil))
	if !IsReconciliationConflict(err) {
		t.Fatalf("expected wrapped conflict to be detected")
	}
	if HasTextCode(errors.New("plain"), ErrorConflict) {
		t.Fatalf("plain errors carry no text code")
	}
}

func TestRetryAfterHint(t *testing.T) {
	throttled := goerrors.New("slow down", goerrors.CategoryRateLimit).
		WithMetadata(map[string]any{MetadataRetryAfterMS: int64(1500)})
	wrapped := ExternalSendFailure(throttled, map[string]any{"action_id": "a1"})

	if hint, ok := RetryAfterHint(wrapped); !ok || hint != 1500*time.Millisecond {
		t.Fatalf("expected hint to survive wrapping, got %s %v", hint, ok)
	}
	if MapError(wrapped).TextCode != ErrorExternalSendFailure {
		t.Fatalf("expected send failure text code, got %q", MapError(wrapped).TextCode)
	}
	if _, ok := RetryAfterHint(errors.New("plain")); ok {
		t.Fatalf("plain errors carry no hint")
	}
	if _, ok := RetryAfterHint(nil); ok {
		t.Fatalf("nil error carries no hint")
	}
	if code := MapError(goerrors.New("throttled", goerrors.CategoryRateLimit)).TextCode; code != ErrorRateLimited {
		t.Fatalf("expected rate limited text code, got %q", code)
	}
}

func TestSeverityFor(t *testing.T) {
	if got := severityFor(MapError(TenantInactiveError("t1", TenantStatusSuspended))); got != SeverityWarning {
		t.Fatalf("expected rejected tenants to stay below the alert threshold, got %s", got)
	}
	if got := severityFor(MapError(ValidationError("x", "y"))); got != SeverityWarning {
		t.Fatalf("expected warning for validation, got %s", got)
	}
	if got := severityFor(MapError(PersistenceFailure(errors.New("io"), "write"))); got != SeverityCritical {
		t.Fatalf("expected critical for persistence, got %s", got)
	}
	if got := severityFor(MapError(ReconciliationConflict("race", nil))); got != SeverityError {
		t.Fatalf("expected error for conflict, got %s", got)
	}
}
