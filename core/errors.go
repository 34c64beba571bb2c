package core

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorValidation             = "INTAKE_VALIDATION"
	ErrorDuplicateEvent         = "INTAKE_DUPLICATE_EVENT"
	ErrorClassificationFailure  = "INTAKE_CLASSIFICATION_FAILURE"
	ErrorReconciliationConflict = "INTAKE_RECONCILIATION_CONFLICT"
	ErrorExternalSendFailure    = "INTAKE_EXTERNAL_SEND_FAILURE"
	ErrorPersistenceFailure     = "INTAKE_PERSISTENCE_FAILURE"
	ErrorNotFound               = "INTAKE_NOT_FOUND"
	ErrorTenantInactive         = "INTAKE_TENANT_INACTIVE"
	ErrorUnauthorized           = "INTAKE_UNAUTHORIZED"
	ErrorConflict               = "INTAKE_CONFLICT"
	ErrorInternal               = "INTAKE_INTERNAL"
	ErrorRateLimited            = "INTAKE_RATE_LIMITED"

	// MetadataRetryAfterMS carries a sender's retry hint in milliseconds.
	MetadataRetryAfterMS = "retry_after_ms"
	// MetadataDeferred marks a refusal that never reached the receiver.
	MetadataDeferred = "deferred"
)

func intakeError(message string, category goerrors.Category, code int, textCode string, metadata map[string]any) *goerrors.Error {
	err := goerrors.New(message, category).WithCode(code).WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func intakeWrap(cause error, category goerrors.Category, message string, code int, textCode string, metadata map[string]any) *goerrors.Error {
	err := goerrors.Wrap(cause, category, message).WithCode(code).WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func ValidationError(field string, message string) error {
	return goerrors.NewValidation("core: validation failed", goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorValidation).
		WithSeverity(goerrors.SeverityError)
}

func ReconciliationConflict(message string, metadata map[string]any) error {
	return intakeError(message, goerrors.CategoryConflict, http.StatusConflict, ErrorReconciliationConflict, metadata)
}

func ConflictError(message string, metadata map[string]any) error {
	return intakeError(message, goerrors.CategoryConflict, http.StatusConflict, ErrorConflict, metadata)
}

func ClassificationFailure(cause error, metadata map[string]any) error {
	if cause == nil {
		cause = errors.New("classifier returned no result")
	}
	return intakeWrap(cause, goerrors.CategoryExternal, "core: classification failed", http.StatusBadGateway, ErrorClassificationFailure, metadata)
}

func ExternalSendFailure(cause error, metadata map[string]any) error {
	if cause == nil {
		cause = errors.New("sender reported failure")
	}
	return intakeWrap(cause, goerrors.CategoryExternal, "core: external send failed", http.StatusBadGateway, ErrorExternalSendFailure, metadata)
}

// PersistenceFailure wraps a storage error unless it already carries an envelope.
func PersistenceFailure(cause error, message string) error {
	if cause == nil {
		return nil
	}
	var rich *goerrors.Error
	if goerrors.As(cause, &rich) {
		return cause
	}
	return intakeWrap(cause, goerrors.CategoryOperation, message, http.StatusServiceUnavailable, ErrorPersistenceFailure, nil)
}

func NotFoundError(message string, metadata map[string]any) error {
	return intakeError(message, goerrors.CategoryNotFound, http.StatusNotFound, ErrorNotFound, metadata)
}

func TenantInactiveError(tenantID string, status TenantStatus) error {
	return intakeError("core: tenant is not active", goerrors.CategoryAuthz, http.StatusForbidden, ErrorTenantInactive, map[string]any{
		"tenant_id": tenantID,
		"status":    string(status),
	})
}

func UnauthorizedError(message string) error {
	return intakeError(message, goerrors.CategoryAuth, http.StatusUnauthorized, ErrorUnauthorized, nil)
}

func InternalError(message string) error {
	return intakeError(message, goerrors.CategoryInternal, http.StatusInternalServerError, ErrorInternal, nil)
}

// HasTextCode reports whether err carries the given go-errors text code.
func HasTextCode(err error, textCode string) bool {
	if err == nil {
		return false
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return false
	}
	return rich.TextCode == textCode
}

// RetryAfterHint returns the delay a sender asked for before the next attempt.
func RetryAfterHint(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich == nil {
		return 0, false
	}
	var ms int64
	switch value := rich.Metadata[MetadataRetryAfterMS].(type) {
	case int64:
		ms = value
	case int:
		ms = int64(value)
	case float64:
		ms = int64(value)
	default:
		return 0, false
	}
	if ms <= 0 {
		return 0, false
	}
	return time.Duration(ms) * time.Millisecond, true
}

// IsDeferred reports whether the attempt was refused locally and should be
// rescheduled without counting against the retry budget.
func IsDeferred(err error) bool {
	if err == nil {
		return false
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich == nil {
		return false
	}
	deferred, _ := rich.Metadata[MetadataDeferred].(bool)
	return deferred
}

func IsNotFound(err error) bool {
	return HasTextCode(err, ErrorNotFound)
}

func IsReconciliationConflict(err error) bool {
	return HasTextCode(err, ErrorReconciliationConflict)
}

// MapError converts any error into the intake error envelope.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return ensureEnvelope(rich)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ensureEnvelope(goerrors.Wrap(err, goerrors.CategoryExternal, err.Error()))
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "not found"):
		return ensureEnvelope(goerrors.New(err.Error(), goerrors.CategoryNotFound))
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return ensureEnvelope(goerrors.New(err.Error(), goerrors.CategoryBadInput))
	}
	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureEnvelope(mapped)
}

func ensureEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = httpStatusFor(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorValidation
	case goerrors.CategoryNotFound:
		return ErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ErrorUnauthorized
	case goerrors.CategoryConflict:
		return ErrorReconciliationConflict
	case goerrors.CategoryExternal:
		return ErrorExternalSendFailure
	case goerrors.CategoryRateLimit:
		return ErrorRateLimited
	case goerrors.CategoryOperation:
		return ErrorPersistenceFailure
	default:
		return ErrorInternal
	}
}

func httpStatusFor(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	case goerrors.CategoryOperation:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// severityFor picks the ErrorRecord severity for a mapped error.
func severityFor(err *goerrors.Error) ErrorSeverity {
	if err == nil {
		return SeverityError
	}
	switch err.Category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation, goerrors.CategoryNotFound,
		goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return SeverityWarning
	case goerrors.CategoryExternal:
		return SeverityWarning
	case goerrors.CategoryOperation:
		return SeverityCritical
	default:
		return SeverityError
	}
}
