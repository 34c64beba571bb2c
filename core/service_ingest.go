package core

import (
	"context"
	"errors"
	"strings"
	"time"
)

const (
	componentIngress  = "ingress"
	componentPipeline = "pipeline"
)

type SubmitRequest struct {
	TenantID  string
	Source    string
	DedupKey  string
	Payload   []byte
	RequestID string
}

type SubmitResult struct {
	RawEventID string
	RequestID  string
	DedupKey   string
	Duplicate  bool
	// Queued is false when the event was stored but left for the sweeper.
	Queued bool
}

type ProcessResult struct {
	RawEventID        string
	NormalizedEventID string
	EventType         EventType
	FlowID            string
	AlreadyProcessed  bool
	Degraded          bool
	Routed            bool
	Reason            string
	CustomerID        string
	QuoteID           string
	ActionIDs         []string
}

func (r SubmitRequest) Validate() error {
	if strings.TrimSpace(r.TenantID) == "" {
		return ValidationError("tenant_id", "tenant id is required")
	}
	if strings.TrimSpace(r.Source) == "" {
		return ValidationError("source", "source is required")
	}
	if len(r.Payload) == 0 {
		return ValidationError("payload", "payload is required")
	}
	return nil
}

// Submit stores an inbound payload exactly once per (tenant, dedup key) and
// hands it to the processing pool. A duplicate is reported as success.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (result SubmitResult, err error) {
	if s == nil {
		return SubmitResult{}, InternalError("core: service is nil")
	}
	ctx, requestID := EnsureRequestID(WithRequestID(ctx, req.RequestID))
	dedupKey := strings.TrimSpace(req.DedupKey)
	if dedupKey == "" {
		dedupKey = "sha256:" + InputHash(append([]byte(strings.TrimSpace(req.Source)+"\n"), req.Payload...))
	}
	ctx = WithDedupKey(WithTenantID(ctx, req.TenantID), dedupKey)

	startedAt := time.Now()
	fields := map[string]any{
		"tenant_id": req.TenantID,
		"source":    req.Source,
	}
	defer func() {
		s.telemetry.observe(ctx, startedAt, "submit", err, fields)
	}()

	if err = req.Validate(); err != nil {
		return SubmitResult{RequestID: requestID}, s.failRequest(ctx, "submit", err, fields)
	}
	tenant, err := s.stores.TenantStore().Get(ctx, strings.TrimSpace(req.TenantID))
	if err != nil {
		if IsNotFound(err) {
			err = NotFoundError("core: tenant not found", map[string]any{"tenant_id": req.TenantID})
			return SubmitResult{RequestID: requestID}, s.failRequest(ctx, "submit", err, fields)
		}
		return SubmitResult{RequestID: requestID}, s.failRequest(ctx, "submit", PersistenceFailure(err, "core: tenant lookup failed"), fields)
	}
	if tenant.Status != TenantStatusActive {
		return SubmitResult{RequestID: requestID}, s.failRequest(ctx, "submit", TenantInactiveError(tenant.ID, tenant.Status), fields)
	}

	raw, duplicate, err := s.stores.RawEventStore().Ingest(ctx, RawEventInput{
		TenantID:  tenant.ID,
		Source:    strings.ToLower(strings.TrimSpace(req.Source)),
		DedupKey:  dedupKey,
		Payload:   append([]byte(nil), req.Payload...),
		RequestID: requestID,
	})
	if err != nil {
		return SubmitResult{RequestID: requestID}, s.failRequest(ctx, "submit", PersistenceFailure(err, "core: store raw event failed"), fields)
	}
	fields["raw_event_id"] = raw.ID
	fields["duplicate"] = duplicate

	result = SubmitResult{
		RawEventID: raw.ID,
		RequestID:  requestID,
		DedupKey:   dedupKey,
		Duplicate:  duplicate,
	}
	if duplicate {
		s.telemetry.info(ctx, "duplicate event ignored", fields)
		return result, nil
	}
	result.Queued = s.pipeline.Submit(PipelineJob{RawEventID: raw.ID, Trace: TraceFromContext(ctx)})
	return result, nil
}

func (s *Service) failRequest(ctx context.Context, operation string, err error, fields map[string]any) error {
	mapped := s.mapError(err)
	s.recorder.RecordFailure(ctx, componentIngress, operation, mapped, fields)
	return mapped
}

// ProcessRawEvent claims a stored raw event and runs it through
// normalization, routing and the selected flow. Only the caller that flips
// the processed flag does any work.
func (s *Service) ProcessRawEvent(ctx context.Context, rawEventID string) (result ProcessResult, err error) {
	if s == nil {
		return ProcessResult{}, InternalError("core: service is nil")
	}
	rawEventID = strings.TrimSpace(rawEventID)
	if rawEventID == "" {
		return ProcessResult{}, ValidationError("raw_event_id", "raw event id is required")
	}
	result = ProcessResult{RawEventID: rawEventID}

	var raw RawEvent
	err = s.runStage(ctx, componentPipeline, "load_raw_event", map[string]any{"raw_event_id": rawEventID}, func(ctx context.Context) error {
		var loadErr error
		raw, loadErr = s.stores.RawEventStore().Get(ctx, rawEventID)
		if loadErr != nil && !IsNotFound(loadErr) {
			return PersistenceFailure(loadErr, "core: load raw event failed")
		}
		return loadErr
	})
	if err != nil {
		return result, err
	}

	trace := TraceFromContext(ctx)
	trace.TenantID = raw.TenantID
	trace.DedupKey = raw.DedupKey
	if trace.RequestID == "" {
		trace.RequestID = raw.RequestID
	}
	ctx = WithTrace(ctx, trace)
	fields := map[string]any{"raw_event_id": raw.ID, "tenant_id": raw.TenantID}

	claimed := false
	err = s.runStage(ctx, componentPipeline, "claim_raw_event", fields, func(ctx context.Context) error {
		var claimErr error
		claimed, claimErr = s.stores.RawEventStore().MarkProcessed(ctx, raw.ID)
		return PersistenceFailure(claimErr, "core: claim raw event failed")
	})
	if err != nil {
		return result, err
	}
	if !claimed {
		result.AlreadyProcessed = true
		return result, nil
	}
	defer func() {
		if err != nil {
			s.releaseRawEvent(ctx, raw.ID, err, fields)
		}
	}()

	var tenant Tenant
	err = s.runStage(ctx, componentPipeline, "load_tenant", fields, func(ctx context.Context) error {
		var tenantErr error
		tenant, tenantErr = s.stores.TenantStore().Get(ctx, raw.TenantID)
		if tenantErr != nil && !IsNotFound(tenantErr) {
			return PersistenceFailure(tenantErr, "core: load tenant failed")
		}
		return tenantErr
	})
	if err != nil {
		return result, err
	}

	var event NormalizedEvent
	err = s.runStage(ctx, componentNormalizer, "normalize", fields, func(ctx context.Context) error {
		var normalizeErr error
		event, normalizeErr = s.normalizer.Normalize(ctx, raw)
		return normalizeErr
	})
	if err != nil {
		return result, err
	}
	ctx = WithFlowID(ctx, event.FlowID)
	result.NormalizedEventID = event.ID
	result.EventType = event.EventType
	result.FlowID = event.FlowID
	result.Degraded = event.Degraded
	if event.EventType == EventTypeUnknown {
		s.telemetry.info(ctx, "unknown event not routed", map[string]any{
			"normalized_event_id": event.ID,
			"degraded":            event.Degraded,
		})
		return result, nil
	}

	handler := s.router.Route(tenant, event)
	fields["normalized_event_id"] = event.ID
	fields["flow_id"] = event.FlowID
	fields["event_type"] = string(event.EventType)

	var outcome FlowOutcome
	err = s.runStage(ctx, componentRouter, "handle_flow", fields, func(ctx context.Context) error {
		var handleErr error
		outcome, handleErr = handler.Handle(ctx, FlowRequest{Tenant: tenant, Event: event})
		return handleErr
	})
	if err != nil {
		if IsReconciliationConflict(err) {
			s.recorder.Audit(ctx, AuditRecord{
				TenantID:   event.TenantID,
				Action:     AuditEventUnrecoverable,
				Component:  componentPipeline,
				Outcome:    OutcomeFailed,
				EntityType: "normalized_event",
				EntityID:   event.ID,
				Metadata: map[string]any{
					"raw_event_id": raw.ID,
					"error":        err.Error(),
				},
			})
		}
		return result, err
	}

	result.Routed = outcome.Routed
	result.Reason = outcome.Reason
	if outcome.Customer != nil {
		result.CustomerID = outcome.Customer.ID
	}
	if outcome.Quote != nil {
		result.QuoteID = outcome.Quote.ID
	}
	for _, action := range outcome.Actions {
		result.ActionIDs = append(result.ActionIDs, action.ID)
	}
	return result, nil
}

// releaseRawEvent hands a claimed raw event back to the sweeper after a
// failure that a later attempt may not repeat.
func (s *Service) releaseRawEvent(ctx context.Context, rawEventID string, cause error, fields map[string]any) {
	if !retryableStageError(cause) {
		return
	}
	released, err := s.stores.RawEventStore().Release(context.WithoutCancel(ctx), rawEventID)
	if err != nil {
		s.telemetry.error(ctx, "release raw event failed", map[string]any{
			"raw_event_id": rawEventID,
			"error":        err.Error(),
		})
		return
	}
	if released {
		s.telemetry.warn(ctx, "raw event released for retry", cloneFields(fields))
	}
}

func retryableStageError(err error) bool {
	switch {
	case err == nil,
		IsReconciliationConflict(err),
		IsNotFound(err),
		HasTextCode(err, ErrorValidation),
		HasTextCode(err, ErrorTenantInactive):
		return false
	}
	return true
}

// SweepUnprocessed re-submits raw events whose hand-off was lost. Events the
// pool cannot take are processed inline.
func (s *Service) SweepUnprocessed(ctx context.Context, now time.Time) (int, error) {
	if s == nil {
		return 0, InternalError("core: service is nil")
	}
	cutoff := now.UTC().Add(-s.config.Pipeline.SweepGrace)
	limit := s.config.Pipeline.SweepLimit
	if limit <= 0 {
		limit = DefaultConfig().Pipeline.SweepLimit
	}
	events, err := s.stores.RawEventStore().ListUnprocessed(ctx, cutoff, limit)
	if err != nil {
		return 0, s.mapError(PersistenceFailure(err, "core: list unprocessed raw events failed"))
	}
	var sweepErr error
	for _, raw := range events {
		job := PipelineJob{RawEventID: raw.ID, Trace: Trace{RequestID: raw.RequestID, TenantID: raw.TenantID, DedupKey: raw.DedupKey}}
		if s.pipeline.Submit(job) {
			continue
		}
		if _, err := s.ProcessRawEvent(WithTrace(ctx, job.Trace), raw.ID); err != nil {
			sweepErr = errors.Join(sweepErr, err)
		}
	}
	if len(events) > 0 {
		s.telemetry.info(ctx, "swept unprocessed raw events", map[string]any{"count": len(events)})
	}
	return len(events), sweepErr
}

// DrainActions runs one action queue drain with the configured batch size.
func (s *Service) DrainActions(ctx context.Context, now time.Time) (stats DrainStats, err error) {
	if s == nil {
		return DrainStats{}, InternalError("core: service is nil")
	}
	startedAt := time.Now()
	defer func() {
		s.telemetry.observe(ctx, startedAt, "drain_actions", err, map[string]any{
			"claimed":  stats.Claimed,
			"sent":     stats.Sent,
			"retried":  stats.Retried,
			"deferred": stats.Deferred,
			"failed":   stats.Failed,
			"lost":     stats.Lost,
		})
	}()
	return s.dispatcher.Drain(ctx, s.config.Actions.BatchSize, now)
}
