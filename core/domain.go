package core

import (
	"strings"
	"time"
)

type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusSuspended TenantStatus = "suspended"
	TenantStatusDisabled  TenantStatus = "disabled"
)

func (s TenantStatus) Valid() bool {
	switch s {
	case TenantStatusActive, TenantStatusSuspended, TenantStatusDisabled:
		return true
	default:
		return false
	}
}

type Tenant struct {
	ID          string
	Name        string
	APIKey      string
	ActiveFlows []string
	Status      TenantStatus
	Metadata    map[string]any
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// FlowEnabled reports whether flowID is part of the tenant's active flow set.
func (t Tenant) FlowEnabled(flowID string) bool {
	flowID = strings.TrimSpace(flowID)
	if flowID == "" {
		return false
	}
	for _, candidate := range t.ActiveFlows {
		if strings.TrimSpace(candidate) == flowID {
			return true
		}
	}
	return false
}

type RawEvent struct {
	ID        string
	TenantID  string
	Source    string
	DedupKey  string
	Payload   []byte
	Processed bool
	RequestID string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type ChannelKind string

const (
	ChannelEmail ChannelKind = "email"
	ChannelChat  ChannelKind = "chat"
	ChannelWeb   ChannelKind = "web"
	ChannelOther ChannelKind = "other"
)

type EventType string

const (
	EventTypeNewQuote      EventType = "new_quote"
	EventTypeExistingQuote EventType = "existing_quote"
	EventTypeUnknown       EventType = "unknown"
)

func (t EventType) Valid() bool {
	switch t {
	case EventTypeNewQuote, EventTypeExistingQuote, EventTypeUnknown:
		return true
	default:
		return false
	}
}

// Canonical entity keys produced by the normalizer.
const (
	EntityName        = "name"
	EntityPhone       = "phone"
	EntityEmail       = "email"
	EntityAddress     = "address"
	EntityDescription = "description"
	EntityNotes       = "notes"
)

type NormalizedEvent struct {
	ID         string
	TenantID   string
	RawEventID string
	FlowID     string
	Channel    ChannelKind
	EventType  EventType
	Confidence *float64
	Entities   map[string]string
	Subject    string
	Body       string
	Sender     string
	InputHash  string
	Degraded   bool
	CreatedAt  time.Time
}

func (e NormalizedEvent) Entity(key string) string {
	if len(e.Entities) == 0 {
		return ""
	}
	return strings.TrimSpace(e.Entities[key])
}

type Customer struct {
	ID        string
	TenantID  string
	Name      string
	Email     string
	Phone     string
	Address   string
	Notes     string
	PhoneKey  string
	EmailKey  string
	DedupKey  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (c Customer) HasContact() bool {
	return strings.TrimSpace(c.Phone) != "" || strings.TrimSpace(c.Email) != ""
}

type QuoteStatus string

const (
	QuoteStatusOpen     QuoteStatus = "open"
	QuoteStatusSent     QuoteStatus = "sent"
	QuoteStatusAccepted QuoteStatus = "accepted"
	QuoteStatusRejected QuoteStatus = "rejected"
)

type Quote struct {
	ID                string
	TenantID          string
	CustomerID        string
	NormalizedEventID string
	Subject           string
	Data              map[string]any
	Status            QuoteStatus
	Version           int
	RemindedAt        *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type ActionKind string

const (
	ActionKindNotifyCustomer ActionKind = "notify_customer"
	ActionKindUpdateDocument ActionKind = "update_document"
)

func (k ActionKind) Valid() bool {
	return k == ActionKindNotifyCustomer || k == ActionKindUpdateDocument
}

type ActionStatus string

const (
	ActionStatusPending  ActionStatus = "pending"
	ActionStatusSending  ActionStatus = "sending"
	ActionStatusRetrying ActionStatus = "retrying"
	ActionStatusSent     ActionStatus = "sent"
	ActionStatusFailed   ActionStatus = "failed"
)

type Action struct {
	ID                string
	TenantID          string
	NormalizedEventID string
	QuoteID           string
	Kind              ActionKind
	Payload           map[string]any
	Status            ActionStatus
	RetryCount        int
	MaxRetries        int
	NextAttemptAt     *time.Time
	LastError         string
	// ClaimToken identifies the drain that moved the action to sending.
	// Only that drain may ack or retry it.
	ClaimToken        string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type AuditRecord struct {
	ID         string
	TenantID   string
	RequestID  string
	FlowID     string
	DedupKey   string
	Action     string
	Component  string
	Outcome    string
	EntityType string
	EntityID   string
	Metadata   map[string]any
	CreatedAt  time.Time
}

type ErrorSeverity string

const (
	SeverityInfo     ErrorSeverity = "info"
	SeverityWarning  ErrorSeverity = "warning"
	SeverityError    ErrorSeverity = "error"
	SeverityCritical ErrorSeverity = "critical"
)

func (s ErrorSeverity) rank() int {
	switch s {
	case SeverityInfo:
		return 1
	case SeverityWarning:
		return 2
	case SeverityError:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// AtLeast reports whether s is as severe as min.
func (s ErrorSeverity) AtLeast(min ErrorSeverity) bool {
	return s.rank() >= min.rank() && s.rank() > 0
}

type ErrorRecord struct {
	ID         string
	TenantID   string
	RequestID  string
	FlowID     string
	DedupKey   string
	Component  string
	Operation  string
	Message    string
	Category   string
	TextCode   string
	Severity   ErrorSeverity
	Details    map[string]any
	Stacktrace string
	CreatedAt  time.Time
}

// Audit actions written by the pipeline.
const (
	AuditEventClassified     = "event.classified"
	AuditEventUnrouted       = "event.unrouted"
	AuditEventUnrecoverable  = "event.unrecoverable"
	AuditReconcileSkipped    = "reconcile.skipped"
	AuditCustomerCreated     = "customer.created"
	AuditCustomerUpdated     = "customer.updated"
	AuditQuoteCreated        = "quote.created"
	AuditQuoteUpdated        = "quote.updated"
	AuditQuoteTransitioned   = "quote.transitioned"
	AuditQuoteReminded       = "quote.reminder_enqueued"
	AuditActionsEnqueued     = "actions.enqueued"
	AuditActionSent          = "action.sent"
	AuditActionFailed        = "action.failed"
	AuditActionRequeued      = "action.requeued"
	AuditTenantCreated       = "tenant.created"
	AuditTenantUpdated       = "tenant.updated"
	AuditSystemHealthReport  = "system.health_report"
	AuditSystemRecordsPruned = "system.records_pruned"
)

const (
	OutcomeSuccess  = "success"
	OutcomeSkipped  = "skipped"
	OutcomeDegraded = "degraded"
	OutcomeFailed   = "failed"
)

const (
	DefaultPerPage = 25
	MaxPerPage     = 500
)

type Page[T any] struct {
	Items      []T
	Page       int
	PerPage    int
	Total      int
	HasNext    bool
	NextCursor string
}

type AuditFilter struct {
	TenantID  string
	Action    string
	Component string
	Outcome   string
	DedupKey  string
	From      *time.Time
	To        *time.Time
	Page      int
	PerPage   int
}

type ErrorFilter struct {
	TenantID  string
	Component string
	Severity  ErrorSeverity
	TextCode  string
	From      *time.Time
	To        *time.Time
	Page      int
	PerPage   int
}

type EventFilter struct {
	TenantID  string
	Source    string
	EventType EventType
	Processed *bool
	From      *time.Time
	To        *time.Time
	Page      int
	PerPage   int
}

type ActionFilter struct {
	TenantID string
	Status   ActionStatus
	Kind     ActionKind
	QuoteID  string
	Page     int
	PerPage  int
}

type TenantFilter struct {
	Status  TenantStatus
	Page    int
	PerPage int
}

// NormalizePaging resolves page and per-page defaults and returns the row offset.
func NormalizePaging(page int, perPage int) (int, int, int) {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return page, perPage, (page - 1) * perPage
}

type HealthCounts struct {
	RawEvents        int
	UnprocessedRaw   int
	NormalizedEvents int
	UnknownEvents    int
	ActionsSent      int
	ActionsRetrying  int
	ActionsFailed    int
	ErrorRecords     int
}

type HealthReport struct {
	Since  time.Time
	Until  time.Time
	Counts HealthCounts
}
