package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-intake/core"
)

// HTTPClassifier posts event text to an external classification endpoint.
// The caller bounds the call with its own deadline; Timeout is an extra cap.
type HTTPClassifier struct {
	Endpoint string
	Headers  map[string]string
	Timeout  time.Duration
	Client   *Client
}

func NewHTTPClassifier(endpoint string, doer HTTPDoer) *HTTPClassifier {
	return &HTTPClassifier{
		Endpoint: strings.TrimSpace(endpoint),
		Headers:  map[string]string{},
		Client:   NewClient(doer),
	}
}

type classifyRequest struct {
	TenantID string `json:"tenant_id"`
	Source   string `json:"source"`
	Channel  string `json:"channel"`
	Subject  string `json:"subject,omitempty"`
	Body     string `json:"body"`
	Sender   string `json:"sender,omitempty"`
}

type classifyResponse struct {
	EventType  string         `json:"event_type"`
	Confidence *float64       `json:"confidence"`
	Entities   map[string]any `json:"entities"`
	FlowID     string         `json:"flow_id"`
}

func (c *HTTPClassifier) Classify(ctx context.Context, in core.ClassifyInput) (core.Classification, error) {
	if c == nil || c.Client == nil {
		return core.Classification{}, transportError(
			"transport: classifier requires a client",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			nil,
		)
	}
	body, err := json.Marshal(classifyRequest{
		TenantID: in.TenantID,
		Source:   in.Source,
		Channel:  string(in.Channel),
		Subject:  in.Subject,
		Body:     in.Body,
		Sender:   in.Sender,
	})
	if err != nil {
		return core.Classification{}, transportWrapError(
			err,
			goerrors.CategoryBadInput,
			"transport: marshal classify request",
			http.StatusBadRequest,
			nil,
		)
	}

	headers := map[string]string{
		"Content-Type": "application/json",
		"Accept":       "application/json",
	}
	for key, value := range c.Headers {
		headers[key] = value
	}
	res, err := c.Client.Do(ctx, Request{
		Method:  http.MethodPost,
		URL:     c.Endpoint,
		Headers: headers,
		Body:    body,
		Timeout: c.Timeout,
	})
	if err != nil {
		return core.Classification{}, err
	}
	if !res.OK() {
		return core.Classification{}, transportError(
			fmt.Sprintf("transport: classifier responded with status %d", res.StatusCode),
			goerrors.CategoryExternal,
			http.StatusBadGateway,
			map[string]any{"status_code": res.StatusCode, "tenant_id": in.TenantID},
		)
	}

	var decoded classifyResponse
	if err := json.Unmarshal(res.Body, &decoded); err != nil {
		return core.Classification{}, transportWrapError(
			err,
			goerrors.CategoryExternal,
			"transport: decode classifier response",
			http.StatusBadGateway,
			map[string]any{"tenant_id": in.TenantID},
		)
	}
	return core.Classification{
		EventType:  core.EventType(strings.TrimSpace(strings.ToLower(decoded.EventType))),
		Confidence: decoded.Confidence,
		Entities:   stringEntities(decoded.Entities),
		FlowID:     strings.TrimSpace(decoded.FlowID),
	}, nil
}

func stringEntities(raw map[string]any) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]string, len(raw))
	for key, value := range raw {
		switch typed := value.(type) {
		case nil:
			continue
		case string:
			out[key] = typed
		default:
			out[key] = fmt.Sprint(typed)
		}
	}
	return out
}

var _ core.Classifier = (*HTTPClassifier)(nil)
