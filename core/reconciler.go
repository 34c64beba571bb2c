package core

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const componentReconciler = "reconciler"

// Notification templates referenced by notify_customer payloads.
const (
	TemplateQuoteReceived = "quote_received"
	TemplateQuoteReminder = "quote_reminder"
)

type ReconcileResult struct {
	Customer        Customer
	Quote           Quote
	Actions         []Action
	Skipped         bool
	CustomerCreated bool
	CustomerUpdated bool
	QuoteCreated    bool
}

type ReconcilerConfig struct {
	Store         ReconciliationStore
	Recorder      *Recorder
	DedupPriority DedupPriority
	MaxRetries    int
	Clock         Clock
	Logger        Logger
	Metrics       MetricsRecorder
}

// Reconciler finds or creates the customer and quote implied by a normalized
// event and enqueues their follow-up actions in one transaction.
type Reconciler struct {
	store      ReconciliationStore
	recorder   *Recorder
	priority   DedupPriority
	maxRetries int
	clock      Clock
	telemetry  telemetry
}

func NewReconciler(cfg ReconcilerConfig) *Reconciler {
	priority := cfg.DedupPriority
	if priority != DedupEmailFirst {
		priority = DedupPhoneFirst
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultConfig().Actions.MaxRetries
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Reconciler{
		store:      cfg.Store,
		recorder:   cfg.Recorder,
		priority:   priority,
		maxRetries: maxRetries,
		clock:      clock,
		telemetry:  newTelemetry(cfg.Logger, cfg.Metrics),
	}
}

func (r *Reconciler) Reconcile(ctx context.Context, event NormalizedEvent) (ReconcileResult, error) {
	if r == nil || r.store == nil {
		return ReconcileResult{}, InternalError("core: reconciler store is not configured")
	}
	if strings.TrimSpace(event.TenantID) == "" || strings.TrimSpace(event.ID) == "" {
		return ReconcileResult{}, ValidationError("normalized_event", "event id and tenant id are required")
	}
	if event.EventType != EventTypeNewQuote && event.EventType != EventTypeExistingQuote {
		r.recorder.Audit(ctx, AuditRecord{
			TenantID:   event.TenantID,
			FlowID:     event.FlowID,
			Action:     AuditReconcileSkipped,
			Component:  componentReconciler,
			Outcome:    OutcomeSkipped,
			EntityType: "normalized_event",
			EntityID:   event.ID,
			Metadata:   map[string]any{"event_type": string(event.EventType)},
		})
		return ReconcileResult{Skipped: true}, nil
	}

	var result ReconcileResult
	err := r.store.RunInTx(ctx, func(ctx context.Context, tx ReconciliationTx) error {
		result = ReconcileResult{}
		now := r.clock().UTC()

		customer, created, updated, err := r.resolveCustomer(ctx, tx, event, now)
		if err != nil {
			return err
		}
		result.Customer = customer
		result.CustomerCreated = created
		result.CustomerUpdated = updated

		quote, quoteCreated, err := r.resolveQuote(ctx, tx, event, customer, now)
		if err != nil {
			return err
		}
		result.Quote = quote
		result.QuoteCreated = quoteCreated

		actions := r.buildActions(event, customer, quote, now)
		for _, action := range actions {
			if err := tx.EnqueueAction(ctx, action); err != nil {
				return PersistenceFailure(err, "core: enqueue action failed")
			}
		}
		result.Actions = actions
		return nil
	})
	if err != nil {
		return ReconcileResult{}, err
	}

	r.auditResult(ctx, event, result)
	return result, nil
}

func (r *Reconciler) resolveCustomer(
	ctx context.Context,
	tx ReconciliationTx,
	event NormalizedEvent,
	now time.Time,
) (Customer, bool, bool, error) {
	keys := EventCustomerKeys(event, r.priority)
	existing, found, err := findCustomer(ctx, tx, event.TenantID, keys)
	if err != nil {
		return Customer{}, false, false, err
	}
	if found {
		merged, changed := fillCustomer(existing, event)
		if !changed {
			return existing, false, false, nil
		}
		merged.UpdatedAt = now
		if err := tx.UpdateCustomer(ctx, merged); err != nil {
			return Customer{}, false, false, PersistenceFailure(err, "core: update customer failed")
		}
		return merged, false, true, nil
	}

	customer := Customer{
		ID:        uuid.NewString(),
		TenantID:  event.TenantID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	customer, _ = fillCustomer(customer, event)
	if len(keys) > 0 {
		customer.DedupKey = keys[0].String()
	} else {
		customer.DedupKey = "event:" + event.ID
	}
	inserted, err := tx.InsertCustomer(ctx, customer)
	if err != nil {
		return Customer{}, false, false, PersistenceFailure(err, "core: insert customer failed")
	}
	if inserted {
		return customer, true, false, nil
	}

	// Lost the insert race: the winner's row must now be visible.
	existing, found, err = findCustomer(ctx, tx, event.TenantID, keys)
	if err != nil {
		return Customer{}, false, false, err
	}
	if !found {
		return Customer{}, false, false, ReconciliationConflict("core: customer dedup conflict could not be resolved", map[string]any{
			"tenant_id": event.TenantID,
			"dedup_key": customer.DedupKey,
		})
	}
	return existing, false, false, nil
}

func findCustomer(ctx context.Context, tx ReconciliationTx, tenantID string, keys []CustomerKey) (Customer, bool, error) {
	for _, key := range keys {
		customer, found, err := tx.FindCustomer(ctx, tenantID, key)
		if err != nil {
			return Customer{}, false, PersistenceFailure(err, "core: customer lookup failed")
		}
		if found {
			return customer, true, nil
		}
	}
	return Customer{}, false, nil
}

// fillCustomer copies event entities into empty customer fields only.
func fillCustomer(customer Customer, event NormalizedEvent) (Customer, bool) {
	changed := false
	fill := func(target *string, value string) {
		if strings.TrimSpace(*target) == "" && value != "" {
			*target = value
			changed = true
		}
	}
	fill(&customer.Name, event.Entity(EntityName))
	fill(&customer.Phone, event.Entity(EntityPhone))
	fill(&customer.Email, event.Entity(EntityEmail))
	fill(&customer.Address, event.Entity(EntityAddress))
	fill(&customer.Notes, event.Entity(EntityNotes))
	if customer.Email == "" && event.Channel == ChannelEmail {
		if sender := NormalizeEmail(event.Sender); sender != "" {
			customer.Email = sender
			changed = true
		}
	}
	fill(&customer.PhoneKey, NormalizePhone(customer.Phone))
	fill(&customer.EmailKey, NormalizeEmail(customer.Email))
	return customer, changed
}

func (r *Reconciler) resolveQuote(
	ctx context.Context,
	tx ReconciliationTx,
	event NormalizedEvent,
	customer Customer,
	now time.Time,
) (Quote, bool, error) {
	if event.EventType == EventTypeExistingQuote {
		quote, found, err := tx.FindLatestOpenQuote(ctx, event.TenantID, customer.ID)
		if err != nil {
			return Quote{}, false, PersistenceFailure(err, "core: quote lookup failed")
		}
		if found {
			merged, err := r.mergeQuote(ctx, tx, quote, event, now)
			if !errors.Is(err, errQuoteClosed) {
				return merged, false, err
			}
		}
	}

	quote := Quote{
		ID:                uuid.NewString(),
		TenantID:          event.TenantID,
		CustomerID:        customer.ID,
		NormalizedEventID: event.ID,
		Subject:           quoteSubject(event),
		Data:              quoteData(nil, event),
		Status:            QuoteStatusOpen,
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := tx.InsertQuote(ctx, quote); err != nil {
		return Quote{}, false, PersistenceFailure(err, "core: insert quote failed")
	}
	return quote, true, nil
}

// errQuoteClosed reports that the open quote left the open state before the
// merge applied. The event then starts a new quote.
var errQuoteClosed = errors.New("core: quote is no longer open")

func (r *Reconciler) mergeQuote(ctx context.Context, tx ReconciliationTx, quote Quote, event NormalizedEvent, now time.Time) (Quote, error) {
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			latest, err := tx.GetQuote(ctx, quote.TenantID, quote.ID)
			if err != nil {
				return Quote{}, PersistenceFailure(err, "core: reload quote failed")
			}
			quote = latest
			if quote.Status != QuoteStatusOpen {
				return Quote{}, errQuoteClosed
			}
		}
		merged := quote
		merged.Data = quoteData(quote.Data, event)
		merged.NormalizedEventID = event.ID
		merged.Version = quote.Version + 1
		merged.UpdatedAt = now
		if merged.Subject == "" {
			merged.Subject = quoteSubject(event)
		}
		applied, err := tx.UpdateQuoteData(ctx, merged, quote.Version)
		if err != nil {
			return Quote{}, PersistenceFailure(err, "core: update quote failed")
		}
		if applied {
			return merged, nil
		}
	}
	return Quote{}, ReconciliationConflict("core: quote was modified concurrently", map[string]any{
		"tenant_id": quote.TenantID,
		"quote_id":  quote.ID,
	})
}

func quoteSubject(event NormalizedEvent) string {
	if subject := strings.TrimSpace(event.Subject); subject != "" {
		return subject
	}
	return event.Entity(EntityDescription)
}

// quoteData merges non-empty entities over existing quote data.
func quoteData(existing map[string]any, event NormalizedEvent) map[string]any {
	data := cloneFields(existing)
	for key, value := range event.Entities {
		if strings.TrimSpace(value) != "" {
			data[key] = value
		}
	}
	data["channel"] = string(event.Channel)
	data["last_event_id"] = event.ID
	return data
}

func (r *Reconciler) buildActions(event NormalizedEvent, customer Customer, quote Quote, now time.Time) []Action {
	actions := make([]Action, 0, 2)
	if notify, ok := notifyPayload(event.Channel, customer, quote, TemplateQuoteReceived); ok {
		actions = append(actions, r.newAction(event.ID, quote, ActionKindNotifyCustomer, notify, now))
	}
	actions = append(actions, r.newAction(event.ID, quote, ActionKindUpdateDocument, documentPayload(customer, quote), now))
	return actions
}

func (r *Reconciler) newAction(eventID string, quote Quote, kind ActionKind, payload map[string]any, now time.Time) Action {
	return Action{
		ID:                uuid.NewString(),
		TenantID:          quote.TenantID,
		NormalizedEventID: eventID,
		QuoteID:           quote.ID,
		Kind:              kind,
		Payload:           payload,
		Status:            ActionStatusPending,
		MaxRetries:        r.maxRetries,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// notifyPayload picks the reply channel: the inbound channel when the
// customer is reachable on it, otherwise chat for phones and email last.
func notifyPayload(channel ChannelKind, customer Customer, quote Quote, template string) (map[string]any, bool) {
	if !customer.HasContact() {
		return nil, false
	}
	replyChannel, recipient := ChannelChat, customer.Phone
	switch {
	case channel == ChannelEmail && customer.Email != "":
		replyChannel, recipient = ChannelEmail, customer.Email
	case customer.Phone == "":
		replyChannel, recipient = ChannelEmail, customer.Email
	}
	description, _ := quote.Data[EntityDescription].(string)
	return map[string]any{
		"channel":     string(replyChannel),
		"recipient":   recipient,
		"template":    template,
		"quote_id":    quote.ID,
		"customer_id": customer.ID,
		"variables": map[string]any{
			"name":        customer.Name,
			"description": description,
		},
	}, true
}

func documentPayload(customer Customer, quote Quote) map[string]any {
	description, _ := quote.Data[EntityDescription].(string)
	return map[string]any{
		"operation":      "upsert_row",
		"quote_id":       quote.ID,
		"quote_status":   string(quote.Status),
		"quote_version":  quote.Version,
		"subject":        quote.Subject,
		"description":    description,
		"customer_id":    customer.ID,
		"customer_name":  customer.Name,
		"customer_phone": customer.Phone,
		"customer_email": customer.Email,
		"address":        customer.Address,
	}
}

func (r *Reconciler) auditResult(ctx context.Context, event NormalizedEvent, result ReconcileResult) {
	base := AuditRecord{
		TenantID:  event.TenantID,
		FlowID:    event.FlowID,
		Component: componentReconciler,
		Outcome:   OutcomeSuccess,
	}
	switch {
	case result.CustomerCreated:
		record := base
		record.Action, record.EntityType, record.EntityID = AuditCustomerCreated, "customer", result.Customer.ID
		record.Metadata = map[string]any{"dedup_key": result.Customer.DedupKey}
		r.recorder.Audit(ctx, record)
	case result.CustomerUpdated:
		record := base
		record.Action, record.EntityType, record.EntityID = AuditCustomerUpdated, "customer", result.Customer.ID
		r.recorder.Audit(ctx, record)
	}

	quoteRecord := base
	quoteRecord.Action, quoteRecord.EntityType, quoteRecord.EntityID = AuditQuoteUpdated, "quote", result.Quote.ID
	if result.QuoteCreated {
		quoteRecord.Action = AuditQuoteCreated
	}
	quoteRecord.Metadata = map[string]any{
		"customer_id":         result.Customer.ID,
		"normalized_event_id": event.ID,
		"version":             result.Quote.Version,
	}
	r.recorder.Audit(ctx, quoteRecord)

	kinds := make([]any, 0, len(result.Actions))
	ids := make([]any, 0, len(result.Actions))
	for _, action := range result.Actions {
		kinds = append(kinds, string(action.Kind))
		ids = append(ids, action.ID)
	}
	actionsRecord := base
	actionsRecord.Action, actionsRecord.EntityType, actionsRecord.EntityID = AuditActionsEnqueued, "quote", result.Quote.ID
	actionsRecord.Metadata = map[string]any{"kinds": kinds, "action_ids": ids}
	r.recorder.Audit(ctx, actionsRecord)
}

// Remind enqueues a reminder notification for an open quote unless it was
// already reminded. The reminded_at mark and the action share a transaction.
func (r *Reconciler) Remind(ctx context.Context, quote Quote) (Action, bool, error) {
	if r == nil || r.store == nil {
		return Action{}, false, InternalError("core: reconciler store is not configured")
	}
	var (
		action   Action
		enqueued bool
	)
	err := r.store.RunInTx(ctx, func(ctx context.Context, tx ReconciliationTx) error {
		enqueued = false
		now := r.clock().UTC()
		marked, err := tx.MarkQuoteReminded(ctx, quote.TenantID, quote.ID, now)
		if err != nil {
			return PersistenceFailure(err, "core: mark quote reminded failed")
		}
		if !marked {
			return nil
		}
		customer, err := tx.GetCustomer(ctx, quote.TenantID, quote.CustomerID)
		if err != nil {
			return PersistenceFailure(err, "core: load quote customer failed")
		}
		payload, ok := notifyPayload(ChannelOther, customer, quote, TemplateQuoteReminder)
		if !ok {
			return nil
		}
		action = r.newAction(quote.NormalizedEventID, quote, ActionKindNotifyCustomer, payload, now)
		if err := tx.EnqueueAction(ctx, action); err != nil {
			return PersistenceFailure(err, "core: enqueue reminder failed")
		}
		enqueued = true
		return nil
	})
	if err != nil {
		return Action{}, false, err
	}
	if enqueued {
		r.recorder.Audit(ctx, AuditRecord{
			TenantID:   quote.TenantID,
			Action:     AuditQuoteReminded,
			Component:  componentReconciler,
			Outcome:    OutcomeSuccess,
			EntityType: "quote",
			EntityID:   quote.ID,
			Metadata:   map[string]any{"action_id": action.ID},
		})
	}
	return action, enqueued, nil
}

// QuoteIntakeFlow is the flow handler for quote requests.
type QuoteIntakeFlow struct {
	ID         string
	Reconciler *Reconciler
}

func NewQuoteIntakeFlow(flowID string, reconciler *Reconciler) *QuoteIntakeFlow {
	flowID = strings.TrimSpace(flowID)
	if flowID == "" {
		flowID = DefaultFlowID
	}
	return &QuoteIntakeFlow{ID: flowID, Reconciler: reconciler}
}

func (f *QuoteIntakeFlow) FlowID() string { return f.ID }

func (f *QuoteIntakeFlow) EventTypes() []EventType {
	return []EventType{EventTypeNewQuote, EventTypeExistingQuote}
}

func (f *QuoteIntakeFlow) Handle(ctx context.Context, req FlowRequest) (FlowOutcome, error) {
	result, err := f.Reconciler.Reconcile(ctx, req.Event)
	if err != nil {
		return FlowOutcome{FlowID: f.ID}, err
	}
	outcome := FlowOutcome{
		FlowID:  f.ID,
		Routed:  true,
		Skipped: result.Skipped,
		Actions: result.Actions,
	}
	if !result.Skipped {
		customer, quote := result.Customer, result.Quote
		outcome.Customer = &customer
		outcome.Quote = &quote
	}
	return outcome, nil
}
