package intake

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-intake/core"
)

// FlowPack groups flow handlers a downstream module contributes to the router.
type FlowPack struct {
	Name     string
	Handlers []core.FlowHandler
}

// SenderPack binds action kinds to delivery adapters.
type SenderPack struct {
	Name    string
	Senders map[core.ActionKind]core.ActionSender
}

type CommandQueryBundleFactory func(service CommandQueryService) (any, error)

type ExtensionHooks struct {
	mu sync.RWMutex

	flowPacks   map[string]FlowPack
	senderPacks map[string]SenderPack
	senderOwner map[core.ActionKind]string
	bundles     map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		flowPacks:   map[string]FlowPack{},
		senderPacks: map[string]SenderPack{},
		senderOwner: map[core.ActionKind]string{},
		bundles:     map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterFlowPack(pack FlowPack) error {
	if h == nil {
		return fmt.Errorf("intake: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("intake: flow pack name is required")
	}
	if len(pack.Handlers) == 0 {
		return fmt.Errorf("intake: flow pack %q has no handlers", name)
	}
	for _, handler := range pack.Handlers {
		if handler == nil {
			return fmt.Errorf("intake: flow pack %q contains nil handler", name)
		}
		if strings.TrimSpace(handler.FlowID()) == "" {
			return fmt.Errorf("intake: flow pack %q contains handler without flow id", name)
		}
	}

	normalized := FlowPack{
		Name:     name,
		Handlers: append([]core.FlowHandler(nil), pack.Handlers...),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.flowPacks[name]; exists {
		return fmt.Errorf("intake: flow pack %q already registered", name)
	}
	h.flowPacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterSenderPack(pack SenderPack) error {
	if h == nil {
		return fmt.Errorf("intake: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("intake: sender pack name is required")
	}
	if len(pack.Senders) == 0 {
		return fmt.Errorf("intake: sender pack %q has no senders", name)
	}
	normalized := SenderPack{Name: name, Senders: make(map[core.ActionKind]core.ActionSender, len(pack.Senders))}
	for kind, sender := range pack.Senders {
		if !kind.Valid() {
			return fmt.Errorf("intake: sender pack %q has unsupported action kind %q", name, kind)
		}
		if sender == nil {
			return fmt.Errorf("intake: sender pack %q has nil sender for %q", name, kind)
		}
		normalized.Senders[kind] = sender
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.senderPacks[name]; exists {
		return fmt.Errorf("intake: sender pack %q already registered", name)
	}
	for kind := range normalized.Senders {
		if owner, taken := h.senderOwner[kind]; taken {
			return fmt.Errorf("intake: action kind %q already bound by sender pack %q", kind, owner)
		}
	}
	for kind := range normalized.Senders {
		h.senderOwner[kind] = name
	}
	h.senderPacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(
	name string,
	factory CommandQueryBundleFactory,
) error {
	if h == nil {
		return fmt.Errorf("intake: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("intake: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("intake: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("intake: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

// Options turns the registered packs into service options, ordered by pack name.
func (h *ExtensionHooks) Options() []core.Option {
	if h == nil {
		return nil
	}
	options := []core.Option{}
	for _, pack := range h.FlowPacks() {
		for _, handler := range pack.Handlers {
			options = append(options, core.WithFlowHandler(handler))
		}
	}
	for _, pack := range h.SenderPacks() {
		kinds := make([]string, 0, len(pack.Senders))
		for kind := range pack.Senders {
			kinds = append(kinds, string(kind))
		}
		sort.Strings(kinds)
		for _, kind := range kinds {
			options = append(options, core.WithSender(core.ActionKind(kind), pack.Senders[core.ActionKind(kind)]))
		}
	}
	return options
}

func (h *ExtensionHooks) BuildCommandQueryBundles(
	service CommandQueryService,
) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if service == nil {
		return nil, fmt.Errorf("intake: command/query service is required")
	}

	h.mu.RLock()
	names := sortedKeys(h.bundles)
	factories := make(map[string]CommandQueryBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		factories[name] = factory
	}
	h.mu.RUnlock()

	result := make(map[string]any, len(names))
	for _, name := range names {
		bundle, err := factories[name](service)
		if err != nil {
			return nil, fmt.Errorf("intake: build command/query bundle %q: %w", name, err)
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) FlowPacks() []FlowPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]FlowPack, 0, len(h.flowPacks))
	for _, name := range sortedKeys(h.flowPacks) {
		pack := h.flowPacks[name]
		out = append(out, FlowPack{
			Name:     pack.Name,
			Handlers: append([]core.FlowHandler(nil), pack.Handlers...),
		})
	}
	return out
}

func (h *ExtensionHooks) SenderPacks() []SenderPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]SenderPack, 0, len(h.senderPacks))
	for _, name := range sortedKeys(h.senderPacks) {
		pack := h.senderPacks[name]
		senders := make(map[core.ActionKind]core.ActionSender, len(pack.Senders))
		for kind, sender := range pack.Senders {
			senders[kind] = sender
		}
		out = append(out, SenderPack{Name: pack.Name, Senders: senders})
	}
	return out
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return sortedKeys(h.bundles)
}

func sortedKeys[V any](values map[string]V) []string {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
