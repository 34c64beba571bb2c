package transport

import (
	"context"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-intake/core"
)

const (
	SenderWebhook     = "webhook"
	SenderUnsupported = "unsupported"
)

// UnsupportedSender fails every delivery. It stands in for action kinds that
// have no delivery configured so their actions retry and end up failed.
type UnsupportedSender struct {
	kind   string
	reason string
}

func NewUnsupportedSender(kind string, reason string) *UnsupportedSender {
	return &UnsupportedSender{
		kind:   strings.TrimSpace(kind),
		reason: strings.TrimSpace(reason),
	}
}

func (s *UnsupportedSender) Send(_ context.Context, action core.Action) error {
	message := "transport: no sender configured"
	if s != nil && s.kind != "" {
		message = "transport: no sender configured for " + s.kind
	}
	if s != nil && s.reason != "" {
		message += ": " + s.reason
	}
	return transportError(
		message,
		goerrors.CategoryExternal,
		http.StatusNotImplemented,
		map[string]any{"action_id": action.ID, "kind": string(action.Kind)},
	)
}

var _ core.ActionSender = (*UnsupportedSender)(nil)
