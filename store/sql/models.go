package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type tenantRecord struct {
	bun.BaseModel `bun:"table:intake_tenants,alias:it"`

	ID          string         `bun:"id,pk"`
	Name        string         `bun:"name,notnull"`
	APIKey      string         `bun:"api_key,notnull"`
	ActiveFlows []string       `bun:"active_flows,type:jsonb,notnull"`
	Status      string         `bun:"status,notnull"`
	Metadata    map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt   time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type rawEventRecord struct {
	bun.BaseModel `bun:"table:intake_raw_events,alias:ire"`

	ID        string    `bun:"id,pk"`
	TenantID  string    `bun:"tenant_id,notnull"`
	Source    string    `bun:"source,notnull"`
	DedupKey  string    `bun:"dedup_key,notnull"`
	Payload   []byte    `bun:"payload,notnull"`
	Processed bool      `bun:"processed,notnull"`
	RequestID string    `bun:"request_id,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type normalizedEventRecord struct {
	bun.BaseModel `bun:"table:intake_normalized_events,alias:ine"`

	ID         string            `bun:"id,pk"`
	TenantID   string            `bun:"tenant_id,notnull"`
	RawEventID string            `bun:"raw_event_id,notnull"`
	FlowID     string            `bun:"flow_id,notnull"`
	Channel    string            `bun:"channel,notnull"`
	EventType  string            `bun:"event_type,notnull"`
	Confidence *float64          `bun:"confidence"`
	Entities   map[string]string `bun:"entities,type:jsonb,notnull"`
	Subject    string            `bun:"subject,notnull"`
	Body       string            `bun:"body,notnull"`
	Sender     string            `bun:"sender,notnull"`
	InputHash  string            `bun:"input_hash,notnull"`
	Degraded   bool              `bun:"degraded,notnull"`
	CreatedAt  time.Time         `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type customerRecord struct {
	bun.BaseModel `bun:"table:intake_customers,alias:ic"`

	ID        string    `bun:"id,pk"`
	TenantID  string    `bun:"tenant_id,notnull"`
	Name      string    `bun:"name,notnull"`
	Email     string    `bun:"email,notnull"`
	Phone     string    `bun:"phone,notnull"`
	Address   string    `bun:"address,notnull"`
	Notes     string    `bun:"notes,notnull"`
	PhoneKey  string    `bun:"phone_key,notnull"`
	EmailKey  string    `bun:"email_key,notnull"`
	DedupKey  string    `bun:"dedup_key,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type quoteRecord struct {
	bun.BaseModel `bun:"table:intake_quotes,alias:iq"`

	ID                string         `bun:"id,pk"`
	TenantID          string         `bun:"tenant_id,notnull"`
	CustomerID        string         `bun:"customer_id,notnull"`
	NormalizedEventID string         `bun:"normalized_event_id,notnull"`
	Subject           string         `bun:"subject,notnull"`
	Data              map[string]any `bun:"data,type:jsonb,notnull"`
	Status            string         `bun:"status,notnull"`
	Version           int            `bun:"version,notnull"`
	RemindedAt        *time.Time     `bun:"reminded_at,nullzero"`
	CreatedAt         time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type actionRecord struct {
	bun.BaseModel `bun:"table:intake_actions,alias:ia"`

	ID                string         `bun:"id,pk"`
	TenantID          string         `bun:"tenant_id,notnull"`
	NormalizedEventID string         `bun:"normalized_event_id,notnull"`
	QuoteID           string         `bun:"quote_id,notnull"`
	Kind              string         `bun:"kind,notnull"`
	Payload           map[string]any `bun:"payload,type:jsonb,notnull"`
	Status            string         `bun:"status,notnull"`
	RetryCount        int            `bun:"retry_count,notnull"`
	MaxRetries        int            `bun:"max_retries,notnull"`
	NextAttemptAt     *time.Time     `bun:"next_attempt_at,nullzero"`
	LastError         string         `bun:"last_error,notnull"`
	ClaimToken        string         `bun:"claim_token,notnull"`
	CreatedAt         time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type auditRecord struct {
	bun.BaseModel `bun:"table:intake_audit_records,alias:iar"`

	ID         string         `bun:"id,pk"`
	TenantID   string         `bun:"tenant_id,notnull"`
	RequestID  string         `bun:"request_id,notnull"`
	FlowID     string         `bun:"flow_id,notnull"`
	DedupKey   string         `bun:"dedup_key,notnull"`
	Action     string         `bun:"action,notnull"`
	Component  string         `bun:"component,notnull"`
	Outcome    string         `bun:"outcome,notnull"`
	EntityType string         `bun:"entity_type,notnull"`
	EntityID   string         `bun:"entity_id,notnull"`
	Metadata   map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt  time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type errorRecord struct {
	bun.BaseModel `bun:"table:intake_error_records,alias:ier"`

	ID         string         `bun:"id,pk"`
	TenantID   string         `bun:"tenant_id,notnull"`
	RequestID  string         `bun:"request_id,notnull"`
	FlowID     string         `bun:"flow_id,notnull"`
	DedupKey   string         `bun:"dedup_key,notnull"`
	Component  string         `bun:"component,notnull"`
	Operation  string         `bun:"operation,notnull"`
	Message    string         `bun:"message,notnull"`
	Category   string         `bun:"category,notnull"`
	TextCode   string         `bun:"text_code,notnull"`
	Severity   string         `bun:"severity,notnull"`
	Details    map[string]any `bun:"details,type:jsonb,notnull"`
	Stacktrace string         `bun:"stacktrace,notnull"`
	CreatedAt  time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
