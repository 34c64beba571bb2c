package httpapi

import (
	"encoding/json"
	"time"

	"github.com/goliatone/go-intake/core"
)

type pageView[T any] struct {
	Items      []T    `json:"items"`
	Page       int    `json:"page"`
	PerPage    int    `json:"per_page"`
	Total      int    `json:"total"`
	HasNext    bool   `json:"has_next"`
	NextCursor string `json:"next_cursor,omitempty"`
}

func toPageView[S any, T any](page core.Page[S], convert func(S) T) pageView[T] {
	items := make([]T, 0, len(page.Items))
	for _, item := range page.Items {
		items = append(items, convert(item))
	}
	return pageView[T]{
		Items:      items,
		Page:       page.Page,
		PerPage:    page.PerPage,
		Total:      page.Total,
		HasNext:    page.HasNext,
		NextCursor: page.NextCursor,
	}
}

type tenantView struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	APIKey      string         `json:"api_key,omitempty"`
	ActiveFlows []string       `json:"active_flows"`
	Status      string         `json:"status"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// tenantViewOf hides the API key unless withKey is set; it is only returned on create.
func tenantViewOf(tenant core.Tenant, withKey bool) tenantView {
	view := tenantView{
		ID:          tenant.ID,
		Name:        tenant.Name,
		ActiveFlows: tenant.ActiveFlows,
		Status:      string(tenant.Status),
		Metadata:    tenant.Metadata,
		CreatedAt:   tenant.CreatedAt,
		UpdatedAt:   tenant.UpdatedAt,
	}
	if view.ActiveFlows == nil {
		view.ActiveFlows = []string{}
	}
	if withKey {
		view.APIKey = tenant.APIKey
	}
	return view
}

type submitView struct {
	RawEventID string `json:"raw_event_id"`
	RequestID  string `json:"request_id"`
	DedupKey   string `json:"dedup_key"`
	Duplicate  bool   `json:"duplicate"`
	Queued     bool   `json:"queued"`
}

type rawEventView struct {
	ID        string          `json:"id"`
	TenantID  string          `json:"tenant_id"`
	Source    string          `json:"source"`
	DedupKey  string          `json:"dedup_key"`
	Payload   json.RawMessage `json:"payload"`
	Processed bool            `json:"processed"`
	RequestID string          `json:"request_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func rawEventViewOf(event core.RawEvent) rawEventView {
	payload := json.RawMessage(event.Payload)
	if !json.Valid(event.Payload) {
		quoted, _ := json.Marshal(string(event.Payload))
		payload = quoted
	}
	return rawEventView{
		ID:        event.ID,
		TenantID:  event.TenantID,
		Source:    event.Source,
		DedupKey:  event.DedupKey,
		Payload:   payload,
		Processed: event.Processed,
		RequestID: event.RequestID,
		CreatedAt: event.CreatedAt,
	}
}

type normalizedEventView struct {
	ID         string            `json:"id"`
	TenantID   string            `json:"tenant_id"`
	RawEventID string            `json:"raw_event_id"`
	FlowID     string            `json:"flow_id,omitempty"`
	Channel    string            `json:"channel"`
	EventType  string            `json:"event_type"`
	Confidence *float64          `json:"confidence,omitempty"`
	Entities   map[string]string `json:"entities,omitempty"`
	Subject    string            `json:"subject,omitempty"`
	Sender     string            `json:"sender,omitempty"`
	Degraded   bool              `json:"degraded"`
	CreatedAt  time.Time         `json:"created_at"`
}

func normalizedEventViewOf(event core.NormalizedEvent) normalizedEventView {
	return normalizedEventView{
		ID:         event.ID,
		TenantID:   event.TenantID,
		RawEventID: event.RawEventID,
		FlowID:     event.FlowID,
		Channel:    string(event.Channel),
		EventType:  string(event.EventType),
		Confidence: event.Confidence,
		Entities:   event.Entities,
		Subject:    event.Subject,
		Sender:     event.Sender,
		Degraded:   event.Degraded,
		CreatedAt:  event.CreatedAt,
	}
}

type quoteView struct {
	ID                string         `json:"id"`
	TenantID          string         `json:"tenant_id"`
	CustomerID        string         `json:"customer_id"`
	NormalizedEventID string         `json:"normalized_event_id,omitempty"`
	Subject           string         `json:"subject,omitempty"`
	Data              map[string]any `json:"data,omitempty"`
	Status            string         `json:"status"`
	Version           int            `json:"version"`
	RemindedAt        *time.Time     `json:"reminded_at,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

func quoteViewOf(quote core.Quote) quoteView {
	return quoteView{
		ID:                quote.ID,
		TenantID:          quote.TenantID,
		CustomerID:        quote.CustomerID,
		NormalizedEventID: quote.NormalizedEventID,
		Subject:           quote.Subject,
		Data:              quote.Data,
		Status:            string(quote.Status),
		Version:           quote.Version,
		RemindedAt:        quote.RemindedAt,
		CreatedAt:         quote.CreatedAt,
		UpdatedAt:         quote.UpdatedAt,
	}
}

type actionView struct {
	ID                string         `json:"id"`
	TenantID          string         `json:"tenant_id"`
	NormalizedEventID string         `json:"normalized_event_id,omitempty"`
	QuoteID           string         `json:"quote_id,omitempty"`
	Kind              string         `json:"kind"`
	Payload           map[string]any `json:"payload,omitempty"`
	Status            string         `json:"status"`
	RetryCount        int            `json:"retry_count"`
	MaxRetries        int            `json:"max_retries"`
	NextAttemptAt     *time.Time     `json:"next_attempt_at,omitempty"`
	LastError         string         `json:"last_error,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

func actionViewOf(action core.Action) actionView {
	return actionView{
		ID:                action.ID,
		TenantID:          action.TenantID,
		NormalizedEventID: action.NormalizedEventID,
		QuoteID:           action.QuoteID,
		Kind:              string(action.Kind),
		Payload:           action.Payload,
		Status:            string(action.Status),
		RetryCount:        action.RetryCount,
		MaxRetries:        action.MaxRetries,
		NextAttemptAt:     action.NextAttemptAt,
		LastError:         action.LastError,
		CreatedAt:         action.CreatedAt,
		UpdatedAt:         action.UpdatedAt,
	}
}

type auditView struct {
	ID         string         `json:"id"`
	TenantID   string         `json:"tenant_id,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
	FlowID     string         `json:"flow_id,omitempty"`
	DedupKey   string         `json:"dedup_key,omitempty"`
	Action     string         `json:"action"`
	Component  string         `json:"component"`
	Outcome    string         `json:"outcome"`
	EntityType string         `json:"entity_type,omitempty"`
	EntityID   string         `json:"entity_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

func auditViewOf(record core.AuditRecord) auditView {
	return auditView{
		ID:         record.ID,
		TenantID:   record.TenantID,
		RequestID:  record.RequestID,
		FlowID:     record.FlowID,
		DedupKey:   record.DedupKey,
		Action:     record.Action,
		Component:  record.Component,
		Outcome:    record.Outcome,
		EntityType: record.EntityType,
		EntityID:   record.EntityID,
		Metadata:   record.Metadata,
		CreatedAt:  record.CreatedAt,
	}
}

type errorRecordView struct {
	ID        string         `json:"id"`
	TenantID  string         `json:"tenant_id,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	FlowID    string         `json:"flow_id,omitempty"`
	DedupKey  string         `json:"dedup_key,omitempty"`
	Component string         `json:"component"`
	Operation string         `json:"operation"`
	Message   string         `json:"message"`
	Category  string         `json:"category,omitempty"`
	TextCode  string         `json:"text_code,omitempty"`
	Severity  string         `json:"severity"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

func errorRecordViewOf(record core.ErrorRecord) errorRecordView {
	return errorRecordView{
		ID:        record.ID,
		TenantID:  record.TenantID,
		RequestID: record.RequestID,
		FlowID:    record.FlowID,
		DedupKey:  record.DedupKey,
		Component: record.Component,
		Operation: record.Operation,
		Message:   record.Message,
		Category:  record.Category,
		TextCode:  record.TextCode,
		Severity:  string(record.Severity),
		Details:   record.Details,
		CreatedAt: record.CreatedAt,
	}
}
