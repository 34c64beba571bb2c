// Package slack forwards intake error alerts to Slack.
package slack

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-intake/core"
	slackapi "github.com/slack-go/slack"
)

// Config selects the delivery path. WebhookURL posts to an incoming webhook;
// otherwise Token and Channel post through chat.postMessage.
type Config struct {
	WebhookURL string `koanf:"webhook_url" mapstructure:"webhook_url" envconfig:"WEBHOOK_URL"`
	Token      string `koanf:"token" mapstructure:"token" envconfig:"TOKEN"`
	Channel    string `koanf:"channel" mapstructure:"channel" envconfig:"CHANNEL"`
	APIURL     string `koanf:"api_url" mapstructure:"api_url" envconfig:"API_URL"`
}

func (c Config) Enabled() bool {
	return strings.TrimSpace(c.WebhookURL) != "" || strings.TrimSpace(c.Token) != ""
}

type AlertSender struct {
	webhookURL string
	channel    string
	api        *slackapi.Client
	httpClient *http.Client
}

func NewAlertSender(cfg Config, httpClient *http.Client) (*AlertSender, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	sender := &AlertSender{
		webhookURL: strings.TrimSpace(cfg.WebhookURL),
		channel:    strings.TrimSpace(cfg.Channel),
		httpClient: httpClient,
	}
	if sender.webhookURL != "" {
		return sender, nil
	}
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, fmt.Errorf("slack: webhook_url or token is required")
	}
	if sender.channel == "" {
		return nil, fmt.Errorf("slack: channel is required with a bot token")
	}
	options := []slackapi.Option{slackapi.OptionHTTPClient(httpClient)}
	if apiURL := strings.TrimSpace(cfg.APIURL); apiURL != "" {
		if !strings.HasSuffix(apiURL, "/") {
			apiURL += "/"
		}
		options = append(options, slackapi.OptionAPIURL(apiURL))
	}
	sender.api = slackapi.New(token, options...)
	return sender, nil
}

func (s *AlertSender) SendAlert(ctx context.Context, alert core.Alert) error {
	if s == nil {
		return alertError(fmt.Errorf("slack: alert sender is nil"))
	}
	text := FormatAlert(alert)
	if s.webhookURL != "" {
		err := slackapi.PostWebhookCustomHTTPContext(ctx, s.webhookURL, s.httpClient, &slackapi.WebhookMessage{Text: text})
		if err != nil {
			return alertError(err)
		}
		return nil
	}
	if _, _, err := s.api.PostMessageContext(ctx, s.channel, slackapi.MsgOptionText(text, false)); err != nil {
		return alertError(err)
	}
	return nil
}

// FormatAlert renders "[env] [severity] [component] message" followed by the
// request id, tenant and sorted context lines.
func FormatAlert(alert core.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] [%s] [%s] %s",
		strings.ToUpper(fallback(alert.Environment, "unknown")),
		strings.ToUpper(fallback(string(alert.Severity), "error")),
		fallback(alert.Component, "intake"),
		strings.TrimSpace(alert.Message),
	)
	if alert.RequestID != "" {
		fmt.Fprintf(&b, "\nrequest_id: %s", alert.RequestID)
	}
	if alert.TenantID != "" {
		fmt.Fprintf(&b, "\ntenant_id: %s", alert.TenantID)
	}
	keys := make([]string, 0, len(alert.Context))
	for key := range alert.Context {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, "\n%s: %v", key, alert.Context[key])
	}
	return b.String()
}

func fallback(value string, def string) string {
	if value = strings.TrimSpace(value); value != "" {
		return value
	}
	return def
}

func alertError(err error) error {
	return goerrors.Wrap(err, goerrors.CategoryExternal, "slack: post alert failed").
		WithCode(http.StatusBadGateway).
		WithTextCode(core.ErrorExternalSendFailure)
}

var _ core.AlertSender = (*AlertSender)(nil)
