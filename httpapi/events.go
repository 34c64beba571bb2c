package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	goerrors "github.com/goliatone/go-errors"
	intakecommand "github.com/goliatone/go-intake/command"
	"github.com/goliatone/go-intake/core"
)

// postEvent stores the raw body for the authenticated tenant. The body is
// kept verbatim; classification happens asynchronously.
//
// Dedup key precedence: Idempotency-Key header, dedup_key query value, then a
// content hash computed by the service.
func (h *handlers) postEvent(c *gin.Context) {
	tenant, ok := tenantFrom(c)
	if !ok {
		abortWithError(c, core.UnauthorizedError("httpapi: tenant context missing"))
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBody)
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			rich := goerrors.New("httpapi: request body too large", goerrors.CategoryBadInput).
				WithCode(http.StatusRequestEntityTooLarge).
				WithTextCode(core.ErrorValidation)
			rich.WithMetadata(map[string]any{"limit_bytes": h.maxBody})
			abortWithError(c, rich)
			return
		}
		abortWithError(c, core.ValidationError("body", "request body could not be read"))
		return
	}

	source := firstNonEmpty(c.GetHeader(HeaderSource), c.Query("source"))
	dedupKey := firstNonEmpty(c.GetHeader(HeaderIdempotencyKey), c.Query("dedup_key"))

	result, ok := execute[intakecommand.SubmitEventMessage, core.SubmitResult](c, h.submitCmd, intakecommand.SubmitEventMessage{
		Request: core.SubmitRequest{
			TenantID:  tenant.ID,
			Source:    source,
			DedupKey:  dedupKey,
			Payload:   payload,
			RequestID: requestID(c),
		},
	})
	if !ok {
		return
	}

	status := http.StatusAccepted
	if result.Duplicate {
		status = http.StatusOK
	}
	c.JSON(status, submitView{
		RawEventID: result.RawEventID,
		RequestID:  result.RequestID,
		DedupKey:   result.DedupKey,
		Duplicate:  result.Duplicate,
		Queued:     result.Queued,
	})
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
