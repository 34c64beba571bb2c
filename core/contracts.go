package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type CreateTenantInput struct {
	ID          string
	Name        string
	APIKey      string
	ActiveFlows []string
	Status      TenantStatus
	Metadata    map[string]any
}

type UpdateTenantInput struct {
	Name        *string
	ActiveFlows []string
	Status      *TenantStatus
	Metadata    map[string]any
}

type TenantStore interface {
	Create(ctx context.Context, in CreateTenantInput) (Tenant, error)
	Get(ctx context.Context, id string) (Tenant, error)
	GetByAPIKey(ctx context.Context, apiKey string) (Tenant, error)
	List(ctx context.Context, filter TenantFilter) (Page[Tenant], error)
	Update(ctx context.Context, id string, in UpdateTenantInput) (Tenant, error)
}

type RawEventInput struct {
	TenantID  string
	Source    string
	DedupKey  string
	Payload   []byte
	RequestID string
}

type RawEventStore interface {
	// Ingest inserts the event unless (tenant_id, dedup_key) already exists, in
	// which case the stored row is returned with duplicate=true.
	Ingest(ctx context.Context, in RawEventInput) (event RawEvent, duplicate bool, err error)
	Get(ctx context.Context, id string) (RawEvent, error)
	// MarkProcessed flips processed from false to true. Only one caller observes true.
	MarkProcessed(ctx context.Context, id string) (bool, error)
	// Release flips processed back to false after a transient failure so the
	// sweeper picks the event up again.
	Release(ctx context.Context, id string) (bool, error)
	ListUnprocessed(ctx context.Context, createdBefore time.Time, limit int) ([]RawEvent, error)
	List(ctx context.Context, filter EventFilter) (Page[RawEvent], error)
}

type NormalizedEventStore interface {
	Create(ctx context.Context, event NormalizedEvent) (NormalizedEvent, error)
	Get(ctx context.Context, id string) (NormalizedEvent, error)
	GetByRawEvent(ctx context.Context, rawEventID string) (NormalizedEvent, error)
	List(ctx context.Context, filter EventFilter) (Page[NormalizedEvent], error)
}

// ReconciliationTx is the unit of work used to write customers, quotes and
// their actions atomically.
type ReconciliationTx interface {
	FindCustomer(ctx context.Context, tenantID string, key CustomerKey) (Customer, bool, error)
	GetCustomer(ctx context.Context, tenantID string, id string) (Customer, error)
	// InsertCustomer returns false when the dedup key is already taken.
	InsertCustomer(ctx context.Context, customer Customer) (bool, error)
	UpdateCustomer(ctx context.Context, customer Customer) error
	FindLatestOpenQuote(ctx context.Context, tenantID string, customerID string) (Quote, bool, error)
	GetQuote(ctx context.Context, tenantID string, id string) (Quote, error)
	InsertQuote(ctx context.Context, quote Quote) error
	// UpdateQuoteData applies data when the stored version still equals expectedVersion.
	UpdateQuoteData(ctx context.Context, quote Quote, expectedVersion int) (bool, error)
	MarkQuoteReminded(ctx context.Context, tenantID string, quoteID string, at time.Time) (bool, error)
	EnqueueAction(ctx context.Context, action Action) error
}

type ReconciliationStore interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx ReconciliationTx) error) error
}

type QuoteStore interface {
	Get(ctx context.Context, tenantID string, id string) (Quote, error)
	UpdateStatus(ctx context.Context, tenantID string, id string, from QuoteStatus, to QuoteStatus) (bool, error)
	ListStaleOpen(ctx context.Context, createdBefore time.Time, limit int) ([]Quote, error)
}

type ActionStore interface {
	// ClaimBatch moves due pending/retrying actions, and sending actions last
	// touched before staleBefore, to sending and returns them.
	// Every claimed action carries a fresh ClaimToken.
	ClaimBatch(ctx context.Context, limit int, now time.Time, staleBefore time.Time) ([]Action, error)
	// Ack marks a claimed action sent. It reports false when the claim was
	// lost to another drain and leaves the row untouched.
	Ack(ctx context.Context, id string, claimToken string, at time.Time) (bool, error)
	// Retry records the outcome of a failed attempt under the same claim rule.
	Retry(ctx context.Context, attempt ActionAttempt) (bool, error)
	Requeue(ctx context.Context, tenantID string, id string) (bool, error)
	Get(ctx context.Context, id string) (Action, error)
	List(ctx context.Context, filter ActionFilter) (Page[Action], error)
}

// ActionAttempt is a failed delivery to be written back by the drain that
// claimed the action. A zero NextAttemptAt marks the action failed. Deferred
// reschedules without consuming the retry budget.
type ActionAttempt struct {
	ID            string
	ClaimToken    string
	Cause         error
	NextAttemptAt time.Time
	Deferred      bool
	At            time.Time
}

type AuditStore interface {
	Append(ctx context.Context, record AuditRecord) error
	List(ctx context.Context, filter AuditFilter) (Page[AuditRecord], error)
	Prune(ctx context.Context, createdBefore time.Time) (int, error)
}

type ErrorStore interface {
	Append(ctx context.Context, record ErrorRecord) error
	List(ctx context.Context, filter ErrorFilter) (Page[ErrorRecord], error)
	Prune(ctx context.Context, createdBefore time.Time) (int, error)
}

type StatsReader interface {
	HealthCounts(ctx context.Context, since time.Time) (HealthCounts, error)
}

// StoreProvider exposes every store the service needs. The sqlstore
// repository factory implements it.
type StoreProvider interface {
	TenantStore() TenantStore
	RawEventStore() RawEventStore
	NormalizedEventStore() NormalizedEventStore
	ReconciliationStore() ReconciliationStore
	QuoteStore() QuoteStore
	ActionStore() ActionStore
	AuditStore() AuditStore
	ErrorStore() ErrorStore
	StatsReader() StatsReader
}

// RepositoryStoreFactory resolves a StoreProvider from a persistence client
// such as *persistence.Client or *bun.DB.
type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

type ClassifyInput struct {
	TenantID string
	Source   string
	Channel  ChannelKind
	Subject  string
	Body     string
	Sender   string
	Payload  []byte
}

type Classification struct {
	EventType  EventType
	Confidence *float64
	Entities   map[string]string
	FlowID     string
}

type Classifier interface {
	Classify(ctx context.Context, in ClassifyInput) (Classification, error)
}

type ClassifierFunc func(ctx context.Context, in ClassifyInput) (Classification, error)

func (f ClassifierFunc) Classify(ctx context.Context, in ClassifyInput) (Classification, error) {
	return f(ctx, in)
}

type ActionSender interface {
	Send(ctx context.Context, action Action) error
}

type ActionSenderFunc func(ctx context.Context, action Action) error

func (f ActionSenderFunc) Send(ctx context.Context, action Action) error {
	return f(ctx, action)
}

type Alert struct {
	Environment string
	Severity    ErrorSeverity
	Component   string
	Message     string
	RequestID   string
	TenantID    string
	Context     map[string]any
}

type AlertSender interface {
	SendAlert(ctx context.Context, alert Alert) error
}

type AuditSink interface {
	Publish(ctx context.Context, record AuditRecord) error
}

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}
