package transport

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-intake/core"
	"github.com/goliatone/go-intake/ratelimit"
)

const (
	HeaderActionID  = "X-Intake-Action-Id"
	HeaderSignature = "X-Intake-Signature"

	defaultWebhookTimeout = 10 * time.Second
)

// WebhookConfig configures a WebhookSender. Secret enables an HMAC-SHA256
// signature of the request body.
type WebhookConfig struct {
	URL     string            `koanf:"url" mapstructure:"url"`
	Timeout time.Duration     `koanf:"timeout" mapstructure:"timeout"`
	Secret  string            `koanf:"secret" mapstructure:"secret"`
	Headers map[string]string `koanf:"headers" mapstructure:"headers"`
}

func (c *WebhookConfig) Validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return fmt.Errorf("transport: webhook url is required")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("transport: webhook timeout must be >= 0")
	}
	return nil
}

// Throttle gates deliveries per receiving host and learns from the
// receiver's quota headers.
type Throttle interface {
	BeforeCall(ctx context.Context, key ratelimit.Key) error
	AfterCall(ctx context.Context, key ratelimit.Key, res ratelimit.ResponseMeta) error
}

// WebhookSender delivers actions as JSON POSTs. Receivers deduplicate on the
// action id header because a retried action keeps its id.
type WebhookSender struct {
	Config   WebhookConfig
	Client   *Client
	Throttle Throttle
}

type WebhookOption func(*WebhookSender)

func WithThrottle(throttle Throttle) WebhookOption {
	return func(s *WebhookSender) {
		s.Throttle = throttle
	}
}

func NewWebhookSender(cfg WebhookConfig, doer HTTPDoer, opts ...WebhookOption) (*WebhookSender, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sender := &WebhookSender{Config: cfg, Client: NewClient(doer)}
	for _, opt := range opts {
		if opt != nil {
			opt(sender)
		}
	}
	return sender, nil
}

type webhookEnvelope struct {
	ID                string         `json:"id"`
	TenantID          string         `json:"tenant_id"`
	Kind              string         `json:"kind"`
	QuoteID           string         `json:"quote_id,omitempty"`
	NormalizedEventID string         `json:"normalized_event_id,omitempty"`
	Attempt           int            `json:"attempt"`
	Payload           map[string]any `json:"payload"`
}

func (s *WebhookSender) Send(ctx context.Context, action core.Action) error {
	if s == nil || s.Client == nil {
		return transportError(
			"transport: webhook sender requires a client",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			nil,
		)
	}
	body, err := json.Marshal(webhookEnvelope{
		ID:                action.ID,
		TenantID:          action.TenantID,
		Kind:              string(action.Kind),
		QuoteID:           action.QuoteID,
		NormalizedEventID: action.NormalizedEventID,
		Attempt:           action.RetryCount + 1,
		Payload:           action.Payload,
	})
	if err != nil {
		return transportWrapError(
			err,
			goerrors.CategoryBadInput,
			"transport: marshal action",
			http.StatusBadRequest,
			map[string]any{"action_id": action.ID},
		)
	}

	bucket := s.throttleKey(action)
	if s.Throttle != nil {
		if err := s.Throttle.BeforeCall(ctx, bucket); err != nil {
			var throttled ratelimit.ThrottledError
			if errors.As(err, &throttled) {
				return throttled.ToServiceError()
			}
			return err
		}
	}

	headers := map[string]string{}
	for key, value := range s.Config.Headers {
		headers[key] = value
	}
	headers["Content-Type"] = "application/json"
	headers[HeaderActionID] = action.ID
	if secret := strings.TrimSpace(s.Config.Secret); secret != "" {
		headers[HeaderSignature] = Sign(secret, body)
	}

	res, err := s.Client.Do(ctx, Request{
		Method:  http.MethodPost,
		URL:     s.Config.URL,
		Headers: headers,
		Body:    body,
		Timeout: s.Config.Timeout,
	})
	if err != nil {
		return err
	}
	if s.Throttle != nil {
		if err := s.Throttle.AfterCall(ctx, bucket, ratelimit.ResponseMeta{
			StatusCode: res.StatusCode,
			Headers:    res.Headers,
		}); err != nil {
			return err
		}
	}
	if res.StatusCode == http.StatusTooManyRequests {
		metadata := map[string]any{
			"action_id":   action.ID,
			"kind":        string(action.Kind),
			"status_code": res.StatusCode,
		}
		if seconds, convErr := strconv.Atoi(strings.TrimSpace(headerValue(res.Headers, "Retry-After"))); convErr == nil && seconds > 0 {
			metadata[core.MetadataRetryAfterMS] = (time.Duration(seconds) * time.Second).Milliseconds()
		}
		return transportError(
			"transport: webhook receiver is throttling",
			goerrors.CategoryRateLimit,
			http.StatusTooManyRequests,
			metadata,
		)
	}
	if !res.OK() {
		return transportError(
			fmt.Sprintf("transport: webhook responded with status %d", res.StatusCode),
			goerrors.CategoryExternal,
			http.StatusBadGateway,
			map[string]any{
				"action_id":   action.ID,
				"kind":        string(action.Kind),
				"status_code": res.StatusCode,
			},
		)
	}
	return nil
}

func (s *WebhookSender) throttleKey(action core.Action) ratelimit.Key {
	destination := s.Config.URL
	if parsed, err := url.Parse(s.Config.URL); err == nil && parsed.Host != "" {
		destination = parsed.Host
	}
	return ratelimit.Key{Destination: destination, Bucket: string(action.Kind)}
}

func headerValue(headers map[string]string, name string) string {
	for key, value := range headers {
		if strings.EqualFold(key, name) {
			return value
		}
	}
	return ""
}

// Sign returns the hex HMAC-SHA256 of body prefixed with "sha256=".
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

var _ core.ActionSender = (*WebhookSender)(nil)
