package core

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

func seedAction(stores *memoryStores, id string, kind ActionKind, maxRetries int, createdAt time.Time) {
	stores.mu.Lock()
	defer stores.mu.Unlock()
	stores.actions[id] = Action{
		ID:         id,
		TenantID:   "t1",
		QuoteID:    "q1",
		Kind:       kind,
		Status:     ActionStatusPending,
		MaxRetries: maxRetries,
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
	}
}

func newTestDispatcher(t *testing.T, stores *memoryStores, senders map[ActionKind]ActionSender) *ActionDispatcher {
	t.Helper()
	registry := NewSenderRegistry()
	for kind, sender := range senders {
		if err := registry.Register(kind, sender); err != nil {
			t.Fatalf("register sender: %v", err)
		}
	}
	dispatcher, err := NewActionDispatcher(ActionDispatcherConfig{
		Store:    stores.ActionStore(),
		Senders:  registry,
		Backoff:  ScheduleBackoff{Steps: []time.Duration{time.Minute, 5 * time.Minute}},
		Recorder: NewRecorder(RecorderConfig{Audits: stores.AuditStore(), Errors: stores.ErrorStore()}),
	})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	return dispatcher
}

func TestActionDispatcher_AckSuccess(t *testing.T) {
	stores := newMemoryStores()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	seedAction(stores, "a1", ActionKindNotifyCustomer, 3, now.Add(-time.Minute))
	sender := &recordingSender{}
	dispatcher := newTestDispatcher(t, stores, map[ActionKind]ActionSender{ActionKindNotifyCustomer: sender})

	stats, err := dispatcher.Drain(context.Background(), 10, now)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if stats.Claimed != 1 || stats.Sent != 1 || stats.Processed() != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stores.actions["a1"].Status != ActionStatusSent {
		t.Fatalf("expected sent, got %s", stores.actions["a1"].Status)
	}
	if stores.countAudits(AuditActionSent) != 1 {
		t.Fatalf("expected action.sent audit")
	}
}

func TestActionDispatcher_RetryBoundMarksFailed(t *testing.T) {
	stores := newMemoryStores()
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	seedAction(stores, "a1", ActionKindNotifyCustomer, 3, start)
	sender := &recordingSender{fail: func(Action) error { return errors.New("provider 503") }}
	dispatcher := newTestDispatcher(t, stores, map[ActionKind]ActionSender{ActionKindNotifyCustomer: sender})

	now := start
	for attempt := 1; attempt <= 3; attempt++ {
		stats, err := dispatcher.Drain(context.Background(), 10, now)
		if err == nil {
			t.Fatalf("attempt %d: expected send error", attempt)
		}
		if stats.Claimed != 1 {
			t.Fatalf("attempt %d: expected one claim, got %+v", attempt, stats)
		}
		action := stores.actions["a1"]
		if attempt < 3 {
			if action.Status != ActionStatusRetrying || action.NextAttemptAt == nil || !action.NextAttemptAt.After(now) {
				t.Fatalf("attempt %d: expected scheduled retry, got %+v", attempt, action)
			}
			// Not yet due.
			if early, _ := dispatcher.Drain(context.Background(), 10, now); early.Claimed != 0 {
				t.Fatalf("attempt %d: action claimed before next_attempt_at", attempt)
			}
			now = *action.NextAttemptAt
			continue
		}
		if action.Status != ActionStatusFailed || action.RetryCount != 3 || action.LastError == "" {
			t.Fatalf("expected terminal failure after 3 attempts, got %+v", action)
		}
		if stats.Failed != 1 {
			t.Fatalf("expected failed stat, got %+v", stats)
		}
	}
	if sender.count() != 3 {
		t.Fatalf("expected exactly max_retries sends, got %d", sender.count())
	}
	if stats, _ := dispatcher.Drain(context.Background(), 10, now.Add(time.Hour)); stats.Claimed != 0 {
		t.Fatalf("failed actions must not be claimed again")
	}
	records := stores.errorRecords()
	if len(records) != 1 || records[0].TextCode != ErrorExternalSendFailure {
		t.Fatalf("expected one terminal error record, got %+v", records)
	}
	if stores.countAudits(AuditActionFailed) != 1 {
		t.Fatalf("expected action.failed audit")
	}
}

func TestActionDispatcher_HonorsRetryAfterHint(t *testing.T) {
	stores := newMemoryStores()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	seedAction(stores, "a1", ActionKindNotifyCustomer, 5, now.Add(-time.Minute))
	seedAction(stores, "a2", ActionKindUpdateDocument, 5, now.Add(-time.Minute))
	throttled := &recordingSender{fail: func(Action) error {
		return goerrors.New("receiver throttled", goerrors.CategoryRateLimit).
			WithCode(http.StatusTooManyRequests).
			WithMetadata(map[string]any{MetadataRetryAfterMS: int64((10 * time.Minute).Milliseconds())})
	}}
	hinted := &recordingSender{fail: func(Action) error {
		return goerrors.New("receiver throttled", goerrors.CategoryRateLimit).
			WithMetadata(map[string]any{MetadataRetryAfterMS: int64(time.Second.Milliseconds())})
	}}
	dispatcher := newTestDispatcher(t, stores, map[ActionKind]ActionSender{
		ActionKindNotifyCustomer: throttled,
		ActionKindUpdateDocument: hinted,
	})

	if _, err := dispatcher.Drain(context.Background(), 10, now); err == nil {
		t.Fatalf("expected send errors")
	}
	if next := stores.actions["a1"].NextAttemptAt; next == nil || !next.Equal(now.Add(10*time.Minute)) {
		t.Fatalf("expected retry after the receiver hint, got %v", next)
	}
	if next := stores.actions["a2"].NextAttemptAt; next == nil || !next.Equal(now.Add(time.Minute)) {
		t.Fatalf("expected backoff to win over a shorter hint, got %v", next)
	}
}

func TestActionDispatcher_BatchIsolation(t *testing.T) {
	stores := newMemoryStores()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	seedAction(stores, "a1", ActionKindNotifyCustomer, 3, now.Add(-3*time.Minute))
	seedAction(stores, "a2", ActionKindUpdateDocument, 3, now.Add(-2*time.Minute))
	seedAction(stores, "a3", ActionKindNotifyCustomer, 3, now.Add(-time.Minute))
	notify := &recordingSender{fail: func(action Action) error {
		if action.ID == "a1" {
			return errors.New("bad recipient")
		}
		return nil
	}}
	document := &recordingSender{}
	dispatcher := newTestDispatcher(t, stores, map[ActionKind]ActionSender{
		ActionKindNotifyCustomer: notify,
		ActionKindUpdateDocument: document,
	})

	stats, err := dispatcher.Drain(context.Background(), 10, now)
	if err == nil {
		t.Fatalf("expected joined error for the failing action")
	}
	if stats.Claimed != 3 || stats.Sent != 2 || stats.Retried != 1 {
		t.Fatalf("one failure must not block the batch: %+v", stats)
	}
	if stores.actions["a2"].Status != ActionStatusSent || stores.actions["a3"].Status != ActionStatusSent {
		t.Fatalf("expected other actions sent")
	}
}

func TestActionDispatcher_MissingSenderCountsAsFailure(t *testing.T) {
	stores := newMemoryStores()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	seedAction(stores, "a1", ActionKindUpdateDocument, 1, now)
	dispatcher := newTestDispatcher(t, stores, nil)

	stats, err := dispatcher.Drain(context.Background(), 0, now)
	if err == nil || stats.Failed != 1 {
		t.Fatalf("expected terminal failure without a sender, got %+v %v", stats, err)
	}
}

func TestActionDispatcher_ReclaimsStaleSending(t *testing.T) {
	stores := newMemoryStores()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	seedAction(stores, "a1", ActionKindNotifyCustomer, 3, now.Add(-time.Hour))
	stale := stores.actions["a1"]
	stale.Status = ActionStatusSending
	stale.UpdatedAt = now.Add(-time.Hour)
	stores.actions["a1"] = stale

	sender := &recordingSender{}
	dispatcher := newTestDispatcher(t, stores, map[ActionKind]ActionSender{ActionKindNotifyCustomer: sender})
	stats, err := dispatcher.Drain(context.Background(), 10, now)
	if err != nil || stats.Sent != 1 {
		t.Fatalf("expected stale sending action to be reclaimed, got %+v %v", stats, err)
	}
}

func TestActionDispatcher_LateOutcomeAfterReclaimIsDropped(t *testing.T) {
	stores := newMemoryStores()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	seedAction(stores, "a1", ActionKindNotifyCustomer, 1, now.Add(-time.Minute))

	started := make(chan struct{})
	release := make(chan struct{})
	slow := ActionSenderFunc(func(context.Context, Action) error {
		close(started)
		<-release
		return errors.New("connection reset")
	})
	first := newTestDispatcher(t, stores, map[ActionKind]ActionSender{ActionKindNotifyCustomer: slow})
	second := newTestDispatcher(t, stores, map[ActionKind]ActionSender{ActionKindNotifyCustomer: &recordingSender{}})

	type result struct {
		stats DrainStats
		err   error
	}
	done := make(chan result, 1)
	go func() {
		stats, err := first.Drain(context.Background(), 10, now)
		done <- result{stats, err}
	}()
	<-started

	afterLease := now.Add(DefaultConfig().Actions.SendingLease + time.Second)
	stats, err := second.Drain(context.Background(), 10, afterLease)
	if err != nil || stats.Sent != 1 {
		t.Fatalf("expected the reclaiming drain to send, got %+v %v", stats, err)
	}

	close(release)
	late := <-done
	if late.err != nil {
		t.Fatalf("a lost claim must not surface as a drain error: %v", late.err)
	}
	if late.stats.Lost != 1 || late.stats.Failed != 0 || late.stats.Processed() != 0 {
		t.Fatalf("expected the late outcome to be dropped, got %+v", late.stats)
	}
	stores.mu.Lock()
	action := stores.actions["a1"]
	stores.mu.Unlock()
	if action.Status != ActionStatusSent || action.RetryCount != 0 || action.LastError != "" {
		t.Fatalf("late failure overwrote the sent action: %+v", action)
	}
	if records := stores.errorRecords(); len(records) != 0 {
		t.Fatalf("expected no error record for a lost claim, got %+v", records)
	}
	if stores.countAudits(AuditActionFailed) != 0 {
		t.Fatalf("expected no action.failed audit for a lost claim")
	}
}

func TestActionDispatcher_LocalThrottleDefersWithoutSpendingRetries(t *testing.T) {
	stores := newMemoryStores()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	seedAction(stores, "a1", ActionKindNotifyCustomer, 1, now.Add(-time.Minute))
	throttled := &recordingSender{fail: func(Action) error {
		return goerrors.New("bucket cooling down", goerrors.CategoryRateLimit).
			WithTextCode(ErrorRateLimited).
			WithMetadata(map[string]any{
				MetadataRetryAfterMS: int64((30 * time.Second).Milliseconds()),
				MetadataDeferred:     true,
			})
	}}
	dispatcher := newTestDispatcher(t, stores, map[ActionKind]ActionSender{ActionKindNotifyCustomer: throttled})

	for round := 0; round < 3; round++ {
		stats, err := dispatcher.Drain(context.Background(), 10, now)
		if err != nil {
			t.Fatalf("round %d: deferral is not a drain error: %v", round, err)
		}
		if stats.Deferred != 1 || stats.Failed != 0 {
			t.Fatalf("round %d: expected deferral, got %+v", round, stats)
		}
		action := stores.actions["a1"]
		if action.Status != ActionStatusRetrying || action.RetryCount != 0 {
			t.Fatalf("round %d: throttle refusal spent the retry budget: %+v", round, action)
		}
		if action.NextAttemptAt == nil || !action.NextAttemptAt.Equal(now.Add(30*time.Second)) {
			t.Fatalf("round %d: expected next attempt after the throttle hint, got %v", round, action.NextAttemptAt)
		}
		now = *action.NextAttemptAt
	}
	if throttled.count() != 3 {
		t.Fatalf("expected three throttled attempts, got %d", throttled.count())
	}
}

func TestActionDispatcher_CountsOutcomesByTag(t *testing.T) {
	stores := newMemoryStores()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	seedAction(stores, "a1", ActionKindNotifyCustomer, 3, now.Add(-3*time.Minute))
	seedAction(stores, "a2", ActionKindNotifyCustomer, 3, now.Add(-2*time.Minute))
	seedAction(stores, "a3", ActionKindNotifyCustomer, 1, now.Add(-time.Minute))
	sender := &recordingSender{fail: func(action Action) error {
		if action.ID == "a1" {
			return nil
		}
		return errors.New("provider 503")
	}}
	registry := NewSenderRegistry()
	if err := registry.Register(ActionKindNotifyCustomer, sender); err != nil {
		t.Fatalf("register: %v", err)
	}
	metrics := &countingMetrics{}
	dispatcher, err := NewActionDispatcher(ActionDispatcherConfig{
		Store:   stores.ActionStore(),
		Senders: registry,
		Metrics: metrics,
	})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}

	if _, err := dispatcher.Drain(context.Background(), 10, now); err == nil {
		t.Fatalf("expected send errors")
	}
	want := map[string]int64{"sent": 1, "retried": 1, "failed": 1}
	got := metrics.byTag(MetricActionsDrained, "outcome")
	if len(got) != len(want) {
		t.Fatalf("expected outcomes %v, got %v", want, got)
	}
	for outcome, value := range want {
		if got[outcome] != value {
			t.Fatalf("outcome %s: expected %d, got %d", outcome, value, got[outcome])
		}
	}
}

func TestSenderRegistry(t *testing.T) {
	registry := NewSenderRegistry()
	sender := ActionSenderFunc(func(context.Context, Action) error { return nil })
	if err := registry.Register("", sender); err == nil {
		t.Fatalf("expected blank kind to fail")
	}
	if err := registry.Register(ActionKindNotifyCustomer, nil); err == nil {
		t.Fatalf("expected nil sender to fail")
	}
	if err := registry.Register(ActionKindNotifyCustomer, sender); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := registry.Register(ActionKindNotifyCustomer, sender); !HasTextCode(err, ErrorConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, ok := registry.Resolve(ActionKindUpdateDocument); ok {
		t.Fatalf("unexpected sender for update_document")
	}
	if kinds := registry.Kinds(); len(kinds) != 1 || kinds[0] != ActionKindNotifyCustomer {
		t.Fatalf("unexpected kinds: %+v", kinds)
	}
}
