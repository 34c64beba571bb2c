package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

const componentRouter = "router"

// Reasons reported by the unrouted handler.
const (
	UnroutedTenantInactive = "tenant_inactive"
	UnroutedTenantMismatch = "tenant_mismatch"
	UnroutedFlowDisabled   = "flow_not_enabled"
	UnroutedNoHandler      = "no_handler"
	UnroutedEventType      = "event_type_not_accepted"
)

type FlowRequest struct {
	Tenant Tenant
	Event  NormalizedEvent
}

type FlowOutcome struct {
	FlowID   string
	Routed   bool
	Reason   string
	Skipped  bool
	Customer *Customer
	Quote    *Quote
	Actions  []Action
}

type FlowHandler interface {
	FlowID() string
	EventTypes() []EventType
	Handle(ctx context.Context, req FlowRequest) (FlowOutcome, error)
}

type registeredFlow struct {
	handler FlowHandler
	types   map[EventType]struct{}
}

// Router selects the flow handler for a normalized event. Handlers are
// registered once at startup.
type Router struct {
	recorder *Recorder

	mu       sync.RWMutex
	handlers map[string]registeredFlow
}

func NewRouter(recorder *Recorder) *Router {
	return &Router{
		recorder: recorder,
		handlers: map[string]registeredFlow{},
	}
}

func (r *Router) Register(handler FlowHandler) error {
	if r == nil {
		return InternalError("core: router is nil")
	}
	if handler == nil {
		return ValidationError("handler", "flow handler is required")
	}
	flowID := strings.TrimSpace(handler.FlowID())
	if flowID == "" {
		return ValidationError("flow_id", "flow id is required")
	}
	types := map[EventType]struct{}{}
	for _, eventType := range handler.EventTypes() {
		if !eventType.Valid() || eventType == EventTypeUnknown {
			return ValidationError("event_types", fmt.Sprintf("unsupported event type %q", eventType))
		}
		types[eventType] = struct{}{}
	}
	if len(types) == 0 {
		return ValidationError("event_types", "at least one event type is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[flowID]; exists {
		return ConflictError(
			fmt.Sprintf("core: flow handler already registered for %q", flowID),
			map[string]any{"flow_id": flowID},
		)
	}
	r.handlers[flowID] = registeredFlow{handler: handler, types: types}
	return nil
}

// Route never returns nil: unmatched combinations get a handler that only
// audits the reason.
func (r *Router) Route(tenant Tenant, event NormalizedEvent) FlowHandler {
	if r == nil {
		return unroutedHandler{reason: UnroutedNoHandler, flowID: event.FlowID}
	}
	unrouted := func(reason string) FlowHandler {
		return unroutedHandler{recorder: r.recorder, reason: reason, flowID: event.FlowID}
	}
	if tenant.Status != TenantStatusActive {
		return unrouted(UnroutedTenantInactive)
	}
	if tenant.ID != event.TenantID {
		return unrouted(UnroutedTenantMismatch)
	}
	if !tenant.FlowEnabled(event.FlowID) {
		return unrouted(UnroutedFlowDisabled)
	}

	r.mu.RLock()
	registered, ok := r.handlers[strings.TrimSpace(event.FlowID)]
	r.mu.RUnlock()
	if !ok {
		return unrouted(UnroutedNoHandler)
	}
	if _, accepts := registered.types[event.EventType]; !accepts {
		return unrouted(UnroutedEventType)
	}
	return registered.handler
}

func (r *Router) FlowIDs() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.handlers))
	for id := range r.handlers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type unroutedHandler struct {
	recorder *Recorder
	reason   string
	flowID   string
}

func (h unroutedHandler) FlowID() string { return h.flowID }

func (unroutedHandler) EventTypes() []EventType { return nil }

func (h unroutedHandler) Handle(ctx context.Context, req FlowRequest) (FlowOutcome, error) {
	h.recorder.Audit(ctx, AuditRecord{
		TenantID:   req.Event.TenantID,
		FlowID:     req.Event.FlowID,
		Action:     AuditEventUnrouted,
		Component:  componentRouter,
		Outcome:    OutcomeSkipped,
		EntityType: "normalized_event",
		EntityID:   req.Event.ID,
		Metadata: map[string]any{
			"reason":        h.reason,
			"event_type":    string(req.Event.EventType),
			"tenant_status": string(req.Tenant.Status),
		},
	})
	return FlowOutcome{FlowID: h.flowID, Routed: false, Reason: h.reason}, nil
}

// IsUnrouted reports whether handler is the no-op unrouted handler.
func IsUnrouted(handler FlowHandler) bool {
	_, ok := handler.(unroutedHandler)
	return ok
}
