package transport

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-config/cfgx"
	"github.com/goliatone/go-intake/core"
)

// SenderFactory builds an action sender from its raw configuration block.
type SenderFactory func(config map[string]any) (core.ActionSender, error)

// SenderSpec selects a sender type and carries its configuration.
type SenderSpec struct {
	Type   string         `koanf:"type" mapstructure:"type"`
	Config map[string]any `koanf:"config" mapstructure:"config"`
}

type Registry struct {
	mu        sync.RWMutex
	factories map[string]SenderFactory
}

func NewRegistry() *Registry {
	return &Registry{factories: map[string]SenderFactory{}}
}

// NewDefaultRegistry knows the webhook and unsupported sender types. Webhook
// options apply to every webhook sender the registry builds.
func NewDefaultRegistry(doer HTTPDoer, opts ...WebhookOption) *Registry {
	registry := NewRegistry()
	_ = registry.Register(SenderWebhook, WebhookFactory(doer, opts...))
	_ = registry.Register(SenderUnsupported, func(config map[string]any) (core.ActionSender, error) {
		reason, _ := config["reason"].(string)
		return NewUnsupportedSender("", reason), nil
	})
	return registry
}

func (r *Registry) Register(senderType string, factory SenderFactory) error {
	if r == nil {
		return fmt.Errorf("transport: registry is nil")
	}
	senderType = normalizeType(senderType)
	if senderType == "" {
		return fmt.Errorf("transport: sender type is required")
	}
	if factory == nil {
		return fmt.Errorf("transport: sender factory is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[senderType]; exists {
		return fmt.Errorf("transport: sender type %q already registered", senderType)
	}
	r.factories[senderType] = factory
	return nil
}

func (r *Registry) Build(senderType string, config map[string]any) (core.ActionSender, error) {
	if r == nil {
		return nil, fmt.Errorf("transport: registry is nil")
	}
	senderType = normalizeType(senderType)
	r.mu.RLock()
	factory := r.factories[senderType]
	r.mu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("transport: sender type %q not registered", senderType)
	}
	sender, err := factory(cloneMap(config))
	if err != nil {
		return nil, fmt.Errorf("transport: build %s sender: %w", senderType, err)
	}
	if sender == nil {
		return nil, fmt.Errorf("transport: factory for %q returned nil sender", senderType)
	}
	return sender, nil
}

// BuildSenders builds one sender per action kind. Unknown action kinds are
// rejected so a typo in configuration fails at startup.
func (r *Registry) BuildSenders(specs map[string]SenderSpec) (map[core.ActionKind]core.ActionSender, error) {
	senders := make(map[core.ActionKind]core.ActionSender, len(specs))
	for _, kind := range sortedKeys(specs) {
		actionKind := core.ActionKind(strings.TrimSpace(kind))
		if !actionKind.Valid() {
			return nil, fmt.Errorf("transport: unknown action kind %q", kind)
		}
		spec := specs[kind]
		sender, err := r.Build(spec.Type, spec.Config)
		if err != nil {
			return nil, err
		}
		senders[actionKind] = sender
	}
	return senders, nil
}

func (r *Registry) Types() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.factories))
	for senderType := range r.factories {
		types = append(types, senderType)
	}
	sort.Strings(types)
	return types
}

// WebhookFactory decodes a WebhookConfig with cfgx and builds the sender.
func WebhookFactory(doer HTTPDoer, opts ...WebhookOption) SenderFactory {
	return func(config map[string]any) (core.ActionSender, error) {
		cfg, err := cfgx.Build[WebhookConfig](config,
			cfgx.WithDefaults(WebhookConfig{Timeout: defaultWebhookTimeout}),
			cfgx.WithValidator[WebhookConfig]((*WebhookConfig).Validate),
		)
		if err != nil {
			return nil, err
		}
		return NewWebhookSender(cfg, doer, opts...)
	}
}

func normalizeType(senderType string) string {
	return strings.TrimSpace(strings.ToLower(senderType))
}

func sortedKeys[V any](input map[string]V) []string {
	keys := make([]string, 0, len(input))
	for key := range input {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func cloneMap(input map[string]any) map[string]any {
	output := make(map[string]any, len(input))
	for key, value := range input {
		output[key] = value
	}
	return output
}
