package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryStores struct {
	mu sync.Mutex

	tenants     map[string]Tenant
	raw         map[string]RawEvent
	normalized  map[string]NormalizedEvent
	customers   map[string]Customer
	quotes      map[string]Quote
	actions     map[string]Action
	audits      []AuditRecord
	errs        []ErrorRecord
	failAudits  bool
	insertRaces int
	claims      int
	// failQuoteInserts fails that many quote inserts before succeeding.
	failQuoteInserts int

	// beforeQuoteUpdate runs once ahead of the next quote data update.
	beforeQuoteUpdate func(quoteID string)
}

func newMemoryStores() *memoryStores {
	return &memoryStores{
		tenants:    map[string]Tenant{},
		raw:        map[string]RawEvent{},
		normalized: map[string]NormalizedEvent{},
		customers:  map[string]Customer{},
		quotes:     map[string]Quote{},
		actions:    map[string]Action{},
	}
}

func (m *memoryStores) TenantStore() TenantStore                   { return memoryTenantStore{m} }
func (m *memoryStores) RawEventStore() RawEventStore               { return memoryRawStore{m} }
func (m *memoryStores) NormalizedEventStore() NormalizedEventStore { return memoryNormalizedStore{m} }
func (m *memoryStores) ReconciliationStore() ReconciliationStore   { return memoryReconciliationStore{m} }
func (m *memoryStores) QuoteStore() QuoteStore                     { return memoryQuoteStore{m} }
func (m *memoryStores) ActionStore() ActionStore                   { return memoryActionStore{m} }
func (m *memoryStores) AuditStore() AuditStore                     { return memoryAuditStore{m} }
func (m *memoryStores) ErrorStore() ErrorStore                     { return memoryErrorStore{m} }
func (m *memoryStores) StatsReader() StatsReader                   { return memoryStats{m} }

func (m *memoryStores) addTenant(id string, flows ...string) Tenant {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(flows) == 0 {
		flows = []string{DefaultFlowID}
	}
	tenant := Tenant{
		ID:          id,
		Name:        "tenant " + id,
		APIKey:      "key-" + id,
		ActiveFlows: flows,
		Status:      TenantStatusActive,
	}
	m.tenants[id] = tenant
	return tenant
}

func (m *memoryStores) auditActions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.audits))
	for _, record := range m.audits {
		out = append(out, record.Action)
	}
	return out
}

func (m *memoryStores) countAudits(action string) int {
	count := 0
	for _, candidate := range m.auditActions() {
		if candidate == action {
			count++
		}
	}
	return count
}

func (m *memoryStores) errorRecords() []ErrorRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ErrorRecord(nil), m.errs...)
}

func (m *memoryStores) actionsByStatus(status ActionStatus) []Action {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Action
	for _, action := range m.actions {
		if action.Status == status {
			out = append(out, action)
		}
	}
	return out
}

func paginate[T any](items []T, page int, perPage int) Page[T] {
	page, perPage, offset := NormalizePaging(page, perPage)
	total := len(items)
	if offset > total {
		offset = total
	}
	end := offset + perPage
	if end > total {
		end = total
	}
	return Page[T]{
		Items:   append([]T(nil), items[offset:end]...),
		Page:    page,
		PerPage: perPage,
		Total:   total,
		HasNext: end < total,
	}
}

type memoryTenantStore struct{ m *memoryStores }

func (s memoryTenantStore) Create(_ context.Context, in CreateTenantInput) (Tenant, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, exists := s.m.tenants[in.ID]; exists {
		return Tenant{}, ConflictError("tenant exists", nil)
	}
	now := time.Now().UTC()
	tenant := Tenant{
		ID:          in.ID,
		Name:        in.Name,
		APIKey:      in.APIKey,
		ActiveFlows: append([]string(nil), in.ActiveFlows...),
		Status:      in.Status,
		Metadata:    in.Metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.m.tenants[tenant.ID] = tenant
	return tenant, nil
}

func (s memoryTenantStore) Get(_ context.Context, id string) (Tenant, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	tenant, ok := s.m.tenants[id]
	if !ok {
		return Tenant{}, NotFoundError("tenant not found", nil)
	}
	return tenant, nil
}

func (s memoryTenantStore) GetByAPIKey(_ context.Context, apiKey string) (Tenant, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, tenant := range s.m.tenants {
		if tenant.APIKey == apiKey {
			return tenant, nil
		}
	}
	return Tenant{}, NotFoundError("tenant not found", nil)
}

func (s memoryTenantStore) List(_ context.Context, filter TenantFilter) (Page[Tenant], error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var items []Tenant
	for _, tenant := range s.m.tenants {
		if filter.Status == "" || tenant.Status == filter.Status {
			items = append(items, tenant)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return paginate(items, filter.Page, filter.PerPage), nil
}

func (s memoryTenantStore) Update(_ context.Context, id string, in UpdateTenantInput) (Tenant, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	tenant, ok := s.m.tenants[id]
	if !ok {
		return Tenant{}, NotFoundError("tenant not found", nil)
	}
	if in.Name != nil {
		tenant.Name = *in.Name
	}
	if in.ActiveFlows != nil {
		tenant.ActiveFlows = append([]string(nil), in.ActiveFlows...)
	}
	if in.Status != nil {
		tenant.Status = *in.Status
	}
	if in.Metadata != nil {
		tenant.Metadata = in.Metadata
	}
	s.m.tenants[id] = tenant
	return tenant, nil
}

type memoryRawStore struct{ m *memoryStores }

func (s memoryRawStore) Ingest(_ context.Context, in RawEventInput) (RawEvent, bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, existing := range s.m.raw {
		if existing.TenantID == in.TenantID && existing.DedupKey == in.DedupKey {
			return existing, true, nil
		}
	}
	now := time.Now().UTC()
	event := RawEvent{
		ID:        uuid.NewString(),
		TenantID:  in.TenantID,
		Source:    in.Source,
		DedupKey:  in.DedupKey,
		Payload:   in.Payload,
		RequestID: in.RequestID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.m.raw[event.ID] = event
	return event, false, nil
}

func (s memoryRawStore) Get(_ context.Context, id string) (RawEvent, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	event, ok := s.m.raw[id]
	if !ok {
		return RawEvent{}, NotFoundError("raw event not found", nil)
	}
	return event, nil
}

func (s memoryRawStore) MarkProcessed(_ context.Context, id string) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	event, ok := s.m.raw[id]
	if !ok || event.Processed {
		return false, nil
	}
	event.Processed = true
	s.m.raw[id] = event
	return true, nil
}

func (s memoryRawStore) Release(_ context.Context, id string) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	event, ok := s.m.raw[id]
	if !ok || !event.Processed {
		return false, nil
	}
	event.Processed = false
	s.m.raw[id] = event
	return true, nil
}

func (s memoryRawStore) ListUnprocessed(_ context.Context, createdBefore time.Time, limit int) ([]RawEvent, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []RawEvent
	for _, event := range s.m.raw {
		if !event.Processed && !event.CreatedAt.After(createdBefore) {
			out = append(out, event)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s memoryRawStore) List(_ context.Context, filter EventFilter) (Page[RawEvent], error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var items []RawEvent
	for _, event := range s.m.raw {
		if filter.TenantID != "" && event.TenantID != filter.TenantID {
			continue
		}
		items = append(items, event)
	}
	return paginate(items, filter.Page, filter.PerPage), nil
}

type memoryNormalizedStore struct{ m *memoryStores }

func (s memoryNormalizedStore) Create(_ context.Context, event NormalizedEvent) (NormalizedEvent, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, existing := range s.m.normalized {
		if existing.RawEventID == event.RawEventID {
			return NormalizedEvent{}, ConflictError("normalized event exists", nil)
		}
	}
	s.m.normalized[event.ID] = event
	return event, nil
}

func (s memoryNormalizedStore) Get(_ context.Context, id string) (NormalizedEvent, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	event, ok := s.m.normalized[id]
	if !ok {
		return NormalizedEvent{}, NotFoundError("normalized event not found", nil)
	}
	return event, nil
}

func (s memoryNormalizedStore) GetByRawEvent(_ context.Context, rawEventID string) (NormalizedEvent, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, event := range s.m.normalized {
		if event.RawEventID == rawEventID {
			return event, nil
		}
	}
	return NormalizedEvent{}, NotFoundError("normalized event not found", nil)
}

func (s memoryNormalizedStore) List(_ context.Context, filter EventFilter) (Page[NormalizedEvent], error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var items []NormalizedEvent
	for _, event := range s.m.normalized {
		if filter.EventType != "" && event.EventType != filter.EventType {
			continue
		}
		items = append(items, event)
	}
	return paginate(items, filter.Page, filter.PerPage), nil
}

// memoryReconciliationStore applies writes directly; the fake has no rollback.
type memoryReconciliationStore struct{ m *memoryStores }

func (s memoryReconciliationStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx ReconciliationTx) error) error {
	return fn(ctx, memoryTx{s.m})
}

type memoryTx struct{ m *memoryStores }

func (tx memoryTx) FindCustomer(_ context.Context, tenantID string, key CustomerKey) (Customer, bool, error) {
	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()
	for _, customer := range tx.m.customers {
		if customer.TenantID != tenantID {
			continue
		}
		if (key.Field == CustomerKeyPhone && customer.PhoneKey == key.Value) ||
			(key.Field == CustomerKeyEmail && customer.EmailKey == key.Value) {
			return customer, true, nil
		}
	}
	return Customer{}, false, nil
}

func (tx memoryTx) GetCustomer(_ context.Context, tenantID string, id string) (Customer, error) {
	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()
	customer, ok := tx.m.customers[id]
	if !ok || customer.TenantID != tenantID {
		return Customer{}, NotFoundError("customer not found", nil)
	}
	return customer, nil
}

func (tx memoryTx) InsertCustomer(_ context.Context, customer Customer) (bool, error) {
	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()
	if tx.m.insertRaces > 0 {
		tx.m.insertRaces--
		return false, nil
	}
	for _, existing := range tx.m.customers {
		if existing.TenantID == customer.TenantID && existing.DedupKey == customer.DedupKey {
			return false, nil
		}
	}
	tx.m.customers[customer.ID] = customer
	return true, nil
}

func (tx memoryTx) UpdateCustomer(_ context.Context, customer Customer) error {
	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()
	tx.m.customers[customer.ID] = customer
	return nil
}

func (tx memoryTx) FindLatestOpenQuote(_ context.Context, tenantID string, customerID string) (Quote, bool, error) {
	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()
	var latest Quote
	found := false
	for _, quote := range tx.m.quotes {
		if quote.TenantID != tenantID || quote.CustomerID != customerID || quote.Status != QuoteStatusOpen {
			continue
		}
		if !found || quote.CreatedAt.After(latest.CreatedAt) {
			latest, found = quote, true
		}
	}
	return latest, found, nil
}

func (tx memoryTx) GetQuote(_ context.Context, tenantID string, id string) (Quote, error) {
	return memoryQuoteStore{tx.m}.Get(context.Background(), tenantID, id)
}

func (tx memoryTx) InsertQuote(_ context.Context, quote Quote) error {
	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()
	if tx.m.failQuoteInserts > 0 {
		tx.m.failQuoteInserts--
		return errors.New("database is locked")
	}
	tx.m.quotes[quote.ID] = quote
	return nil
}

func (tx memoryTx) UpdateQuoteData(_ context.Context, quote Quote, expectedVersion int) (bool, error) {
	if hook := tx.m.beforeQuoteUpdate; hook != nil {
		tx.m.beforeQuoteUpdate = nil
		hook(quote.ID)
	}
	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()
	current, ok := tx.m.quotes[quote.ID]
	if !ok || current.Version != expectedVersion || current.Status != QuoteStatusOpen {
		return false, nil
	}
	tx.m.quotes[quote.ID] = quote
	return true, nil
}

func (tx memoryTx) MarkQuoteReminded(_ context.Context, tenantID string, quoteID string, at time.Time) (bool, error) {
	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()
	quote, ok := tx.m.quotes[quoteID]
	if !ok || quote.TenantID != tenantID || quote.RemindedAt != nil || quote.Status != QuoteStatusOpen {
		return false, nil
	}
	quote.RemindedAt = &at
	tx.m.quotes[quoteID] = quote
	return true, nil
}

func (tx memoryTx) EnqueueAction(_ context.Context, action Action) error {
	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()
	tx.m.actions[action.ID] = action
	return nil
}

type memoryQuoteStore struct{ m *memoryStores }

func (s memoryQuoteStore) Get(_ context.Context, tenantID string, id string) (Quote, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	quote, ok := s.m.quotes[id]
	if !ok || quote.TenantID != tenantID {
		return Quote{}, NotFoundError("quote not found", nil)
	}
	return quote, nil
}

func (s memoryQuoteStore) UpdateStatus(_ context.Context, tenantID string, id string, from QuoteStatus, to QuoteStatus) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	quote, ok := s.m.quotes[id]
	if !ok || quote.TenantID != tenantID || quote.Status != from {
		return false, nil
	}
	quote.Status = to
	quote.Version++
	s.m.quotes[id] = quote
	return true, nil
}

func (s memoryQuoteStore) ListStaleOpen(_ context.Context, createdBefore time.Time, limit int) ([]Quote, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []Quote
	for _, quote := range s.m.quotes {
		if quote.Status == QuoteStatusOpen && quote.RemindedAt == nil && quote.CreatedAt.Before(createdBefore) {
			out = append(out, quote)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memoryActionStore struct{ m *memoryStores }

func (s memoryActionStore) ClaimBatch(_ context.Context, limit int, now time.Time, staleBefore time.Time) ([]Action, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var due []Action
	for _, action := range s.m.actions {
		switch action.Status {
		case ActionStatusPending, ActionStatusRetrying:
			if action.NextAttemptAt == nil || !action.NextAttemptAt.After(now) {
				due = append(due, action)
			}
		case ActionStatusSending:
			if action.UpdatedAt.Before(staleBefore) {
				due = append(due, action)
			}
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	s.m.claims++
	token := fmt.Sprintf("claim-%d", s.m.claims)
	for i := range due {
		due[i].Status = ActionStatusSending
		due[i].ClaimToken = token
		due[i].UpdatedAt = now
		s.m.actions[due[i].ID] = due[i]
	}
	return due, nil
}

func (s memoryActionStore) owned(id string, claimToken string) (Action, bool) {
	action, ok := s.m.actions[id]
	if !ok || action.Status != ActionStatusSending || claimToken == "" || action.ClaimToken != claimToken {
		return Action{}, false
	}
	return action, true
}

func (s memoryActionStore) Ack(_ context.Context, id string, claimToken string, at time.Time) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	action, ok := s.owned(id, claimToken)
	if !ok {
		return false, nil
	}
	action.Status = ActionStatusSent
	action.ClaimToken = ""
	action.LastError = ""
	action.UpdatedAt = at
	action.NextAttemptAt = nil
	s.m.actions[id] = action
	return true, nil
}

func (s memoryActionStore) Retry(_ context.Context, attempt ActionAttempt) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	action, ok := s.owned(attempt.ID, attempt.ClaimToken)
	if !ok {
		return false, nil
	}
	if !attempt.Deferred {
		action.RetryCount++
	}
	if attempt.Cause != nil {
		action.LastError = attempt.Cause.Error()
	}
	if attempt.NextAttemptAt.IsZero() {
		action.Status = ActionStatusFailed
		action.NextAttemptAt = nil
	} else {
		action.Status = ActionStatusRetrying
		next := attempt.NextAttemptAt
		action.NextAttemptAt = &next
	}
	action.ClaimToken = ""
	action.UpdatedAt = attempt.At
	s.m.actions[attempt.ID] = action
	return true, nil
}

func (s memoryActionStore) Requeue(_ context.Context, tenantID string, id string) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	action, ok := s.m.actions[id]
	if !ok || action.TenantID != tenantID || action.Status != ActionStatusFailed {
		return false, nil
	}
	action.Status = ActionStatusPending
	action.RetryCount = 0
	action.NextAttemptAt = nil
	s.m.actions[id] = action
	return true, nil
}

func (s memoryActionStore) Get(_ context.Context, id string) (Action, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	action, ok := s.m.actions[id]
	if !ok {
		return Action{}, NotFoundError("action not found", nil)
	}
	return action, nil
}

func (s memoryActionStore) List(_ context.Context, filter ActionFilter) (Page[Action], error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var items []Action
	for _, action := range s.m.actions {
		if filter.Status != "" && action.Status != filter.Status {
			continue
		}
		items = append(items, action)
	}
	return paginate(items, filter.Page, filter.PerPage), nil
}

type memoryAuditStore struct{ m *memoryStores }

func (s memoryAuditStore) Append(_ context.Context, record AuditRecord) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.failAudits {
		return errors.New("audit store unavailable")
	}
	s.m.audits = append(s.m.audits, record)
	return nil
}

func (s memoryAuditStore) List(_ context.Context, filter AuditFilter) (Page[AuditRecord], error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var items []AuditRecord
	for _, record := range s.m.audits {
		if filter.Action != "" && record.Action != filter.Action {
			continue
		}
		if filter.DedupKey != "" && record.DedupKey != filter.DedupKey {
			continue
		}
		items = append(items, record)
	}
	return paginate(items, filter.Page, filter.PerPage), nil
}

func (s memoryAuditStore) Prune(_ context.Context, createdBefore time.Time) (int, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	kept := s.m.audits[:0]
	pruned := 0
	for _, record := range s.m.audits {
		if record.CreatedAt.Before(createdBefore) {
			pruned++
			continue
		}
		kept = append(kept, record)
	}
	s.m.audits = kept
	return pruned, nil
}

type memoryErrorStore struct{ m *memoryStores }

func (s memoryErrorStore) Append(_ context.Context, record ErrorRecord) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	s.m.errs = append(s.m.errs, record)
	return nil
}

func (s memoryErrorStore) List(_ context.Context, filter ErrorFilter) (Page[ErrorRecord], error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	return paginate(append([]ErrorRecord(nil), s.m.errs...), filter.Page, filter.PerPage), nil
}

func (s memoryErrorStore) Prune(_ context.Context, createdBefore time.Time) (int, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	kept := s.m.errs[:0]
	pruned := 0
	for _, record := range s.m.errs {
		if record.CreatedAt.Before(createdBefore) {
			pruned++
			continue
		}
		kept = append(kept, record)
	}
	s.m.errs = kept
	return pruned, nil
}

type memoryStats struct{ m *memoryStores }

func (s memoryStats) HealthCounts(_ context.Context, since time.Time) (HealthCounts, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	counts := HealthCounts{}
	for _, event := range s.m.raw {
		if event.CreatedAt.Before(since) {
			continue
		}
		counts.RawEvents++
		if !event.Processed {
			counts.UnprocessedRaw++
		}
	}
	for _, event := range s.m.normalized {
		counts.NormalizedEvents++
		if event.EventType == EventTypeUnknown {
			counts.UnknownEvents++
		}
	}
	for _, action := range s.m.actions {
		switch action.Status {
		case ActionStatusSent:
			counts.ActionsSent++
		case ActionStatusRetrying:
			counts.ActionsRetrying++
		case ActionStatusFailed:
			counts.ActionsFailed++
		}
	}
	counts.ErrorRecords = len(s.m.errs)
	return counts, nil
}

type recordingSender struct {
	mu    sync.Mutex
	calls []Action
	fail  func(Action) error
}

func (s *recordingSender) Send(_ context.Context, action Action) error {
	s.mu.Lock()
	s.calls = append(s.calls, action)
	fail := s.fail
	s.mu.Unlock()
	if fail != nil {
		return fail(action)
	}
	return nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type recordingAlerts struct {
	mu     sync.Mutex
	alerts []Alert
}

func (a *recordingAlerts) SendAlert(_ context.Context, alert Alert) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, alert)
	return nil
}

func staticClassifier(eventType EventType, entities map[string]string) Classifier {
	return ClassifierFunc(func(context.Context, ClassifyInput) (Classification, error) {
		confidence := 0.92
		return Classification{EventType: eventType, Confidence: &confidence, Entities: entities}, nil
	})
}

func fixedClock(at time.Time) Clock {
	return func() time.Time { return at }
}

// newTestService builds a service over memory stores with a fixed clock.
func newTestService(t interface{ Fatalf(string, ...any) }, stores *memoryStores, opts ...Option) *Service {
	base := []Option{
		WithStoreProvider(stores),
		WithClock(fixedClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))),
	}
	svc, err := NewService(Config{}, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

type countingMetrics struct {
	mu       sync.Mutex
	counters []countedMetric
}

type countedMetric struct {
	name  string
	value int64
	tags  map[string]string
}

func (m *countingMetrics) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, countedMetric{name: name, value: value, tags: tags})
}

func (m *countingMetrics) ObserveHistogram(context.Context, string, float64, map[string]string) {}

// byTag sums the named counter by the value of one tag.
func (m *countingMetrics) byTag(name string, tag string) map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]int64{}
	for _, counter := range m.counters {
		if counter.name == name {
			out[counter.tags[tag]] += counter.value
		}
	}
	return out
}
