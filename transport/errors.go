package transport

import (
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-intake/core"
)

var transportTextCodes = map[goerrors.Category]string{
	goerrors.CategoryBadInput:   core.ErrorValidation,
	goerrors.CategoryValidation: core.ErrorValidation,
	goerrors.CategoryAuth:       core.ErrorUnauthorized,
	goerrors.CategoryAuthz:      core.ErrorUnauthorized,
	goerrors.CategoryExternal:   core.ErrorExternalSendFailure,
	goerrors.CategoryRateLimit:  core.ErrorRateLimited,
}

func transportTextCode(category goerrors.Category) string {
	if code, ok := transportTextCodes[category]; ok {
		return code
	}
	return core.ErrorInternal
}

func transportError(message string, category goerrors.Category, code int, metadata map[string]any) error {
	return transportWrapError(nil, category, message, code, metadata)
}

// transportWrapError builds the envelope returned by clients and senders.
// A nil cause yields a fresh error.
func transportWrapError(cause error, category goerrors.Category, message string, code int, metadata map[string]any) error {
	var err *goerrors.Error
	if cause == nil {
		err = goerrors.New(message, category)
	} else {
		err = goerrors.Wrap(cause, category, message)
	}
	err = err.WithCode(code).WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}
