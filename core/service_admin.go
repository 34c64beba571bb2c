package core

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	componentTenants   = "tenants"
	componentOperator  = "operator"
	componentScheduler = "scheduler"
	apiKeyPrefix       = "ik_"
)

// GenerateAPIKey returns a random tenant API key.
func GenerateAPIKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("core: generate api key: %w", err)
	}
	return apiKeyPrefix + hex.EncodeToString(buf), nil
}

func (in CreateTenantInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return ValidationError("name", "tenant name is required")
	}
	if in.Status != "" && !in.Status.Valid() {
		return ValidationError("status", fmt.Sprintf("unsupported tenant status %q", in.Status))
	}
	return nil
}

func (in UpdateTenantInput) Validate() error {
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return ValidationError("name", "tenant name cannot be blank")
	}
	if in.Status != nil && !in.Status.Valid() {
		return ValidationError("status", fmt.Sprintf("unsupported tenant status %q", *in.Status))
	}
	return nil
}

func (s *Service) CreateTenant(ctx context.Context, in CreateTenantInput) (tenant Tenant, err error) {
	startedAt := time.Now()
	defer func() {
		s.telemetry.observe(ctx, startedAt, "create_tenant", err, map[string]any{"tenant_id": tenant.ID})
	}()
	if err = in.Validate(); err != nil {
		return Tenant{}, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if strings.TrimSpace(in.ID) == "" {
		in.ID = uuid.NewString()
	}
	if in.Status == "" {
		in.Status = TenantStatusActive
	}
	if len(in.ActiveFlows) == 0 {
		in.ActiveFlows = []string{s.config.DefaultFlowID}
	}
	if strings.TrimSpace(in.APIKey) == "" {
		if in.APIKey, err = GenerateAPIKey(); err != nil {
			return Tenant{}, s.mapError(err)
		}
	}
	tenant, err = s.stores.TenantStore().Create(ctx, in)
	if err != nil {
		return Tenant{}, s.mapError(PersistenceFailure(err, "core: create tenant failed"))
	}
	s.recorder.Audit(ctx, AuditRecord{
		TenantID:   tenant.ID,
		Action:     AuditTenantCreated,
		Component:  componentTenants,
		EntityType: "tenant",
		EntityID:   tenant.ID,
		Metadata: map[string]any{
			"name":         tenant.Name,
			"active_flows": toAnySlice(tenant.ActiveFlows),
			"status":       string(tenant.Status),
		},
	})
	return tenant, nil
}

func (s *Service) GetTenant(ctx context.Context, id string) (Tenant, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Tenant{}, ValidationError("tenant_id", "tenant id is required")
	}
	tenant, err := s.stores.TenantStore().Get(ctx, id)
	if err != nil {
		return Tenant{}, s.mapError(err)
	}
	return tenant, nil
}

func (s *Service) ListTenants(ctx context.Context, filter TenantFilter) (Page[Tenant], error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return Page[Tenant]{}, ValidationError("status", fmt.Sprintf("unsupported tenant status %q", filter.Status))
	}
	page, err := s.stores.TenantStore().List(ctx, filter)
	if err != nil {
		return Page[Tenant]{}, s.mapError(err)
	}
	return page, nil
}

func (s *Service) UpdateTenant(ctx context.Context, id string, in UpdateTenantInput) (Tenant, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Tenant{}, ValidationError("tenant_id", "tenant id is required")
	}
	if err := in.Validate(); err != nil {
		return Tenant{}, err
	}
	tenant, err := s.stores.TenantStore().Update(ctx, id, in)
	if err != nil {
		return Tenant{}, s.mapError(err)
	}
	changes := map[string]any{}
	if in.Name != nil {
		changes["name"] = tenant.Name
	}
	if in.ActiveFlows != nil {
		changes["active_flows"] = toAnySlice(tenant.ActiveFlows)
	}
	if in.Status != nil {
		changes["status"] = string(tenant.Status)
	}
	s.recorder.Audit(ctx, AuditRecord{
		TenantID:   tenant.ID,
		Action:     AuditTenantUpdated,
		Component:  componentTenants,
		EntityType: "tenant",
		EntityID:   tenant.ID,
		Metadata:   changes,
	})
	return tenant, nil
}

// DisableTenant is a soft disable; the tenant's records are kept.
func (s *Service) DisableTenant(ctx context.Context, id string) (Tenant, error) {
	status := TenantStatusDisabled
	return s.UpdateTenant(ctx, id, UpdateTenantInput{Status: &status})
}

// AuthenticateTenant resolves an API key to an active tenant.
func (s *Service) AuthenticateTenant(ctx context.Context, apiKey string) (Tenant, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return Tenant{}, UnauthorizedError("core: api key is required")
	}
	tenant, err := s.stores.TenantStore().GetByAPIKey(ctx, apiKey)
	if err != nil {
		if IsNotFound(err) {
			return Tenant{}, UnauthorizedError("core: invalid api key")
		}
		return Tenant{}, s.mapError(PersistenceFailure(err, "core: tenant lookup failed"))
	}
	if tenant.Status != TenantStatusActive {
		return Tenant{}, TenantInactiveError(tenant.ID, tenant.Status)
	}
	return tenant, nil
}

// TransitionQuote moves a quote along the state machine with a status CAS.
// Illegal edges are rejected without touching the quote.
func (s *Service) TransitionQuote(ctx context.Context, tenantID string, quoteID string, to QuoteStatus) (quote Quote, err error) {
	startedAt := time.Now()
	defer func() {
		s.telemetry.observe(ctx, startedAt, "transition_quote", err, map[string]any{
			"tenant_id": tenantID,
			"quote_id":  quoteID,
			"to":        string(to),
		})
	}()
	tenantID, quoteID = strings.TrimSpace(tenantID), strings.TrimSpace(quoteID)
	if tenantID == "" || quoteID == "" {
		return Quote{}, ValidationError("quote_id", "tenant id and quote id are required")
	}
	if !to.Valid() {
		return Quote{}, ValidationError("status", fmt.Sprintf("unsupported quote status %q", to))
	}
	current, err := s.stores.QuoteStore().Get(ctx, tenantID, quoteID)
	if err != nil {
		return Quote{}, s.mapError(err)
	}
	if !CanTransition(current.Status, to) {
		return Quote{}, ReconciliationConflict(
			fmt.Sprintf("core: illegal quote transition %s -> %s", current.Status, to),
			map[string]any{"quote_id": quoteID, "from": string(current.Status), "to": string(to)},
		)
	}
	applied, err := s.stores.QuoteStore().UpdateStatus(ctx, tenantID, quoteID, current.Status, to)
	if err != nil {
		return Quote{}, s.mapError(PersistenceFailure(err, "core: update quote status failed"))
	}
	if !applied {
		return Quote{}, ReconciliationConflict("core: quote status changed concurrently", map[string]any{
			"quote_id": quoteID,
			"from":     string(current.Status),
			"to":       string(to),
		})
	}
	quote, err = s.stores.QuoteStore().Get(ctx, tenantID, quoteID)
	if err != nil {
		return Quote{}, s.mapError(err)
	}
	s.recorder.Audit(WithTenantID(ctx, tenantID), AuditRecord{
		Action:     AuditQuoteTransitioned,
		Component:  componentOperator,
		EntityType: "quote",
		EntityID:   quote.ID,
		Metadata: map[string]any{
			"from": string(current.Status),
			"to":   string(quote.Status),
		},
	})
	return quote, nil
}

// RequeueAction resets a failed action so the scheduler picks it up again.
func (s *Service) RequeueAction(ctx context.Context, tenantID string, actionID string) (Action, error) {
	tenantID, actionID = strings.TrimSpace(tenantID), strings.TrimSpace(actionID)
	if tenantID == "" || actionID == "" {
		return Action{}, ValidationError("action_id", "tenant id and action id are required")
	}
	requeued, err := s.stores.ActionStore().Requeue(ctx, tenantID, actionID)
	if err != nil {
		return Action{}, s.mapError(PersistenceFailure(err, "core: requeue action failed"))
	}
	action, err := s.stores.ActionStore().Get(ctx, actionID)
	if err != nil {
		return Action{}, s.mapError(err)
	}
	if action.TenantID != tenantID {
		return Action{}, NotFoundError("core: action not found", map[string]any{"action_id": actionID})
	}
	if !requeued {
		return Action{}, ConflictError(
			fmt.Sprintf("core: only failed actions can be requeued, action is %s", action.Status),
			map[string]any{"action_id": actionID, "status": string(action.Status)},
		)
	}
	s.recorder.Audit(WithTenantID(ctx, tenantID), AuditRecord{
		Action:     AuditActionRequeued,
		Component:  componentOperator,
		EntityType: "action",
		EntityID:   action.ID,
		Metadata:   map[string]any{"kind": string(action.Kind)},
	})
	return action, nil
}

// EnqueueQuoteReminders enqueues one reminder per open quote older than the
// configured reminder age that was never reminded.
func (s *Service) EnqueueQuoteReminders(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.UTC().Add(-s.config.Workers.ReminderAge)
	limit := s.config.Workers.ReminderLimit
	if limit <= 0 {
		limit = DefaultConfig().Workers.ReminderLimit
	}
	quotes, err := s.stores.QuoteStore().ListStaleOpen(ctx, cutoff, limit)
	if err != nil {
		return 0, s.mapError(PersistenceFailure(err, "core: list stale quotes failed"))
	}
	enqueued := 0
	var remindErr error
	for _, quote := range quotes {
		quoteCtx := WithTenantID(ctx, quote.TenantID)
		err := s.runStage(quoteCtx, componentScheduler, "remind_quote", map[string]any{"quote_id": quote.ID}, func(ctx context.Context) error {
			_, ok, err := s.reconciler.Remind(ctx, quote)
			if ok {
				enqueued++
			}
			return err
		})
		remindErr = errors.Join(remindErr, err)
	}
	return enqueued, remindErr
}

// ReportHealth writes a system audit record with the last 24h counters.
func (s *Service) ReportHealth(ctx context.Context, now time.Time) (HealthReport, error) {
	until := now.UTC()
	since := until.Add(-24 * time.Hour)
	counts, err := s.stores.StatsReader().HealthCounts(ctx, since)
	if err != nil {
		return HealthReport{}, s.mapError(PersistenceFailure(err, "core: health counts failed"))
	}
	report := HealthReport{Since: since, Until: until, Counts: counts}
	outcome := OutcomeSuccess
	if counts.ActionsFailed > 0 || counts.UnprocessedRaw > 0 {
		outcome = OutcomeDegraded
	}
	s.recorder.Audit(ctx, AuditRecord{
		Action:     AuditSystemHealthReport,
		Component:  componentScheduler,
		Outcome:    outcome,
		EntityType: "system",
		Metadata: map[string]any{
			"since":             since.Format(time.RFC3339),
			"until":             until.Format(time.RFC3339),
			"raw_events":        counts.RawEvents,
			"unprocessed_raw":   counts.UnprocessedRaw,
			"normalized_events": counts.NormalizedEvents,
			"unknown_events":    counts.UnknownEvents,
			"actions_sent":      counts.ActionsSent,
			"actions_retrying":  counts.ActionsRetrying,
			"actions_failed":    counts.ActionsFailed,
			"error_records":     counts.ErrorRecords,
		},
	})
	return report, nil
}

type PruneResult struct {
	Cutoff       time.Time
	AuditRecords int
	ErrorRecords int
}

// PruneRecords deletes audit and error records older than the retention TTL.
func (s *Service) PruneRecords(ctx context.Context, now time.Time) (PruneResult, error) {
	ttl := s.config.Workers.RetentionTTL
	if ttl <= 0 {
		return PruneResult{}, nil
	}
	result := PruneResult{Cutoff: now.UTC().Add(-ttl)}
	audits, err := s.stores.AuditStore().Prune(ctx, result.Cutoff)
	if err != nil {
		return result, s.mapError(PersistenceFailure(err, "core: prune audit records failed"))
	}
	result.AuditRecords = audits
	errorsPruned, err := s.stores.ErrorStore().Prune(ctx, result.Cutoff)
	if err != nil {
		return result, s.mapError(PersistenceFailure(err, "core: prune error records failed"))
	}
	result.ErrorRecords = errorsPruned
	s.recorder.Audit(ctx, AuditRecord{
		Action:     AuditSystemRecordsPruned,
		Component:  componentScheduler,
		EntityType: "system",
		Metadata: map[string]any{
			"cutoff":        result.Cutoff.Format(time.RFC3339),
			"audit_records": audits,
			"error_records": errorsPruned,
		},
	})
	return result, nil
}

func toAnySlice(values []string) []any {
	out := make([]any, 0, len(values))
	for _, value := range values {
		out = append(out, value)
	}
	return out
}
