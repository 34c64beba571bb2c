package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

const componentDispatcher = "action_dispatcher"

// SenderRegistry maps action kinds onto their outbound senders.
type SenderRegistry struct {
	mu      sync.RWMutex
	senders map[ActionKind]ActionSender
}

func NewSenderRegistry() *SenderRegistry {
	return &SenderRegistry{senders: map[ActionKind]ActionSender{}}
}

func (r *SenderRegistry) Register(kind ActionKind, sender ActionSender) error {
	if r == nil {
		return InternalError("core: sender registry is nil")
	}
	kind = ActionKind(strings.TrimSpace(string(kind)))
	if kind == "" {
		return ValidationError("kind", "action kind is required")
	}
	if sender == nil {
		return ValidationError("sender", "sender is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.senders[kind]; exists {
		return ConflictError(
			fmt.Sprintf("core: sender already registered for %q", kind),
			map[string]any{"kind": string(kind)},
		)
	}
	r.senders[kind] = sender
	return nil
}

func (r *SenderRegistry) Resolve(kind ActionKind) (ActionSender, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	sender, ok := r.senders[kind]
	return sender, ok
}

func (r *SenderRegistry) Kinds() []ActionKind {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]ActionKind, 0, len(r.senders))
	for kind := range r.senders {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

type DrainStats struct {
	Claimed  int
	Sent     int
	Retried  int
	Deferred int
	Failed   int
	// Lost counts actions whose claim passed to another drain before the
	// outcome could be recorded.
	Lost int
}

func (s DrainStats) Processed() int {
	return s.Sent + s.Retried + s.Deferred + s.Failed
}

type ActionDispatcherConfig struct {
	Store        ActionStore
	Senders      *SenderRegistry
	Backoff      BackoffPolicy
	Recorder     *Recorder
	BatchSize    int
	SendTimeout  time.Duration
	SendingLease time.Duration
	Logger       Logger
	Metrics      MetricsRecorder
}

// ActionDispatcher drains due actions and delivers them through the sender
// registered for their kind.
type ActionDispatcher struct {
	store        ActionStore
	senders      *SenderRegistry
	backoff      BackoffPolicy
	recorder     *Recorder
	batchSize    int
	sendTimeout  time.Duration
	sendingLease time.Duration
	telemetry    telemetry
}

func NewActionDispatcher(cfg ActionDispatcherConfig) (*ActionDispatcher, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("core: action store is required")
	}
	defaults := DefaultConfig().Actions
	if cfg.Senders == nil {
		cfg.Senders = NewSenderRegistry()
	}
	if cfg.Backoff == nil {
		cfg.Backoff = BackoffFromConfig(defaults.Backoff)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaults.SendTimeout
	}
	if cfg.SendingLease <= 0 {
		cfg.SendingLease = defaults.SendingLease
	}
	lease := ActionsConfig{BatchSize: cfg.BatchSize, SendTimeout: cfg.SendTimeout, SendingLease: cfg.SendingLease}
	if err := lease.validateLease(); err != nil {
		return nil, err
	}
	return &ActionDispatcher{
		store:        cfg.Store,
		senders:      cfg.Senders,
		backoff:      cfg.Backoff,
		recorder:     cfg.Recorder,
		batchSize:    cfg.BatchSize,
		sendTimeout:  cfg.SendTimeout,
		sendingLease: cfg.SendingLease,
		telemetry:    newTelemetry(cfg.Logger, cfg.Metrics),
	}, nil
}

// Drain claims up to batchSize due actions and sends each independently.
// Per-action failures are joined into the returned error.
func (d *ActionDispatcher) Drain(ctx context.Context, batchSize int, now time.Time) (DrainStats, error) {
	if d == nil || d.store == nil {
		return DrainStats{}, InternalError("core: action dispatcher is not configured")
	}
	limit := batchSize
	if limit <= 0 {
		limit = d.batchSize
	}
	now = now.UTC()
	actions, err := d.store.ClaimBatch(ctx, limit, now, now.Add(-d.sendingLease))
	if err != nil {
		return DrainStats{}, PersistenceFailure(err, "core: claim actions failed")
	}

	stats := DrainStats{Claimed: len(actions)}
	var drainErr error
	for _, action := range actions {
		sendErr := d.send(ctx, action)
		if sendErr == nil {
			owned, err := d.store.Ack(ctx, action.ID, action.ClaimToken, now)
			if err != nil {
				drainErr = errors.Join(drainErr, PersistenceFailure(err, "core: ack action failed"))
				continue
			}
			if !owned {
				stats.Lost++
				d.claimLost(ctx, action, "ack")
				continue
			}
			stats.Sent++
			d.recorder.Audit(ctx, AuditRecord{
				TenantID:   action.TenantID,
				Action:     AuditActionSent,
				Component:  componentDispatcher,
				Outcome:    OutcomeSuccess,
				EntityType: "action",
				EntityID:   action.ID,
				Metadata: map[string]any{
					"kind":     string(action.Kind),
					"attempt":  action.RetryCount + 1,
					"quote_id": action.QuoteID,
				},
			})
			continue
		}

		outcome, retryErr := d.retry(ctx, action, sendErr, now)
		if retryErr != nil {
			drainErr = errors.Join(drainErr, retryErr)
		}
		switch outcome {
		case drainFailed:
			stats.Failed++
		case drainDeferred:
			stats.Deferred++
			continue
		case drainLost:
			stats.Lost++
			continue
		default:
			stats.Retried++
		}
		drainErr = errors.Join(drainErr, sendErr)
	}

	d.countOutcomes(ctx, stats)
	return stats, drainErr
}

type drainOutcome string

const (
	drainRetried  drainOutcome = "retried"
	drainDeferred drainOutcome = "deferred"
	drainFailed   drainOutcome = "failed"
	drainLost     drainOutcome = "lost"
)

// countOutcomes emits one MetricActionsDrained increment per non-empty
// outcome, tagged with the outcome name.
func (d *ActionDispatcher) countOutcomes(ctx context.Context, stats DrainStats) {
	outcomes := []struct {
		name  string
		value int
	}{
		{"sent", stats.Sent},
		{string(drainRetried), stats.Retried},
		{string(drainDeferred), stats.Deferred},
		{string(drainFailed), stats.Failed},
		{string(drainLost), stats.Lost},
	}
	for _, outcome := range outcomes {
		if outcome.value == 0 {
			continue
		}
		d.telemetry.count(ctx, MetricActionsDrained, int64(outcome.value), map[string]string{
			"outcome": outcome.name,
		})
	}
}

func (d *ActionDispatcher) claimLost(ctx context.Context, action Action, step string) {
	d.telemetry.warn(ctx, "action claim lost to another drain", map[string]any{
		"tenant_id": action.TenantID,
		"action_id": action.ID,
		"kind":      string(action.Kind),
		"step":      step,
	})
}

func (d *ActionDispatcher) send(ctx context.Context, action Action) error {
	sender, ok := d.senders.Resolve(action.Kind)
	if !ok {
		return ExternalSendFailure(
			fmt.Errorf("no sender registered for kind %q", action.Kind),
			map[string]any{"action_id": action.ID, "kind": string(action.Kind)},
		)
	}
	sendCtx, cancel := context.WithTimeout(WithTenantID(ctx, action.TenantID), d.sendTimeout)
	defer cancel()

	startedAt := time.Now()
	err := sender.Send(sendCtx, action)
	if err == nil && sendCtx.Err() != nil {
		err = sendCtx.Err()
	}
	d.telemetry.observe(ctx, startedAt, "send_action", err, map[string]any{
		"tenant_id": action.TenantID,
		"kind":      string(action.Kind),
		"action_id": action.ID,
	})
	if err != nil {
		return ExternalSendFailure(err, map[string]any{
			"action_id": action.ID,
			"kind":      string(action.Kind),
			"attempt":   action.RetryCount + 1,
		})
	}
	return nil
}

// retry records the failed attempt. A local throttle refusal postpones the
// action without spending its retry budget.
func (d *ActionDispatcher) retry(ctx context.Context, action Action, cause error, now time.Time) (drainOutcome, error) {
	if IsDeferred(cause) {
		return d.deferAction(ctx, action, cause, now)
	}
	attempt := action.RetryCount + 1
	maxRetries := action.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultConfig().Actions.MaxRetries
	}
	if attempt >= maxRetries {
		owned, err := d.store.Retry(ctx, ActionAttempt{
			ID:         action.ID,
			ClaimToken: action.ClaimToken,
			Cause:      cause,
			At:         now,
		})
		if err != nil {
			return drainFailed, PersistenceFailure(err, "core: mark action failed")
		}
		if !owned {
			d.claimLost(ctx, action, "fail")
			return drainLost, nil
		}
		d.recorder.RecordError(ctx, ErrorRecord{
			TenantID:  action.TenantID,
			Component: componentDispatcher,
			Operation: "send_action",
			Message:   cause.Error(),
			Category:  string(MapError(cause).Category),
			TextCode:  ErrorExternalSendFailure,
			Severity:  SeverityError,
			Details: map[string]any{
				"action_id":   action.ID,
				"kind":        string(action.Kind),
				"attempts":    attempt,
				"max_retries": maxRetries,
				"quote_id":    action.QuoteID,
			},
		})
		d.recorder.Audit(ctx, AuditRecord{
			TenantID:   action.TenantID,
			Action:     AuditActionFailed,
			Component:  componentDispatcher,
			Outcome:    OutcomeFailed,
			EntityType: "action",
			EntityID:   action.ID,
			Metadata: map[string]any{
				"kind":     string(action.Kind),
				"attempts": attempt,
				"error":    cause.Error(),
			},
		})
		return drainFailed, nil
	}
	delay := d.backoff.NextDelay(attempt)
	if hint, ok := RetryAfterHint(cause); ok && hint > delay {
		delay = hint
	}
	next := now.Add(delay)
	owned, err := d.store.Retry(ctx, ActionAttempt{
		ID:            action.ID,
		ClaimToken:    action.ClaimToken,
		Cause:         cause,
		NextAttemptAt: next,
		At:            now,
	})
	if err != nil {
		return drainRetried, PersistenceFailure(err, "core: schedule action retry failed")
	}
	if !owned {
		d.claimLost(ctx, action, "retry")
		return drainLost, nil
	}
	d.telemetry.info(ctx, "action retry scheduled", map[string]any{
		"action_id":       action.ID,
		"kind":            string(action.Kind),
		"attempt":         attempt,
		"next_attempt_at": next,
	})
	return drainRetried, nil
}

func (d *ActionDispatcher) deferAction(ctx context.Context, action Action, cause error, now time.Time) (drainOutcome, error) {
	delay, ok := RetryAfterHint(cause)
	if !ok {
		delay = d.backoff.NextDelay(1)
	}
	next := now.Add(delay)
	owned, err := d.store.Retry(ctx, ActionAttempt{
		ID:            action.ID,
		ClaimToken:    action.ClaimToken,
		Cause:         cause,
		NextAttemptAt: next,
		Deferred:      true,
		At:            now,
	})
	if err != nil {
		return drainDeferred, PersistenceFailure(err, "core: defer action failed")
	}
	if !owned {
		d.claimLost(ctx, action, "defer")
		return drainLost, nil
	}
	d.telemetry.info(ctx, "action deferred by local throttle", map[string]any{
		"action_id":       action.ID,
		"kind":            string(action.Kind),
		"next_attempt_at": next,
	})
	return drainDeferred, nil
}
