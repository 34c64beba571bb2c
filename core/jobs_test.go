package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingEnqueuer struct {
	mu       sync.Mutex
	messages []*JobExecutionMessage
}

func (e *recordingEnqueuer) Enqueue(_ context.Context, msg *JobExecutionMessage) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.messages = append(e.messages, msg)
	return nil
}

type stubDelivery struct {
	msg   *JobExecutionMessage
	acked bool
	nacks []JobNackOptions
}

func (d *stubDelivery) Message() *JobExecutionMessage { return d.msg }

func (d *stubDelivery) Ack(context.Context) error {
	d.acked = true
	return nil
}

func (d *stubDelivery) Nack(_ context.Context, opts JobNackOptions) error {
	d.nacks = append(d.nacks, opts)
	return nil
}

type countingHook struct {
	starts, successes, failures, retries int
}

func (h *countingHook) OnStart(context.Context, JobWorkerEvent)   { h.starts++ }
func (h *countingHook) OnSuccess(context.Context, JobWorkerEvent) { h.successes++ }
func (h *countingHook) OnFailure(context.Context, JobWorkerEvent) { h.failures++ }
func (h *countingHook) OnRetry(context.Context, JobWorkerEvent)   { h.retries++ }

func TestNewJobMessage(t *testing.T) {
	at := time.Date(2026, 3, 1, 7, 0, 0, 500, time.UTC)
	msg := NewJobMessage(JobReportHealth, at)
	if msg.JobID != JobReportHealth || msg.ScriptPath != "intake://jobs/"+JobReportHealth {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.IdempotencyKey != JobReportHealth+"@2026-03-01T07:00:00Z" || msg.DedupPolicy != "drop" {
		t.Fatalf("unexpected idempotency: %+v", msg)
	}
	if got := scheduledAtFrom(msg, time.Time{}); !got.Equal(at) {
		t.Fatalf("expected scheduled time round trip, got %s", got)
	}
	if got := scheduledAtFrom(&JobExecutionMessage{}, at); !got.Equal(at) {
		t.Fatalf("expected fallback without parameter")
	}
}

func TestService_RunJob(t *testing.T) {
	stores := newMemoryStores()
	svc := newTestService(t, stores)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for _, jobID := range JobIDs() {
		if err := svc.RunJob(context.Background(), jobID, now); err != nil {
			t.Fatalf("run %s: %v", jobID, err)
		}
	}
	if err := svc.RunJob(context.Background(), "intake.unknown", now); !HasTextCode(err, ErrorValidation) {
		t.Fatalf("expected unknown job to fail validation, got %v", err)
	}
	if stores.countAudits(AuditSystemHealthReport) != 1 {
		t.Fatalf("expected health job to audit")
	}
}

func TestService_WorkersEnqueueWhenQueueConfigured(t *testing.T) {
	stores := newMemoryStores()
	enqueuer := &recordingEnqueuer{}
	svc := newTestService(t, stores, WithJobEnqueuer(enqueuer))

	workers := svc.Workers().Workers()
	if len(workers) != len(JobIDs()) {
		t.Fatalf("expected one worker per job, got %d", len(workers))
	}
	for _, worker := range workers {
		if ran, err := worker.RunOnce(context.Background()); !ran || err != nil {
			t.Fatalf("run %s: %v %v", worker.Name(), ran, err)
		}
	}
	if len(enqueuer.messages) != len(JobIDs()) {
		t.Fatalf("expected every worker to enqueue, got %d", len(enqueuer.messages))
	}
	if len(stores.auditActions()) != 0 {
		t.Fatalf("enqueued jobs must not run inline")
	}
}

func TestJobRunner_AckRetryDeadLetter(t *testing.T) {
	stores := newMemoryStores()
	hook := &countingHook{}
	runner := &JobRunner{
		Service:     newTestService(t, stores),
		Hook:        hook,
		Backoff:     ScheduleBackoff{Steps: []time.Duration{time.Second}},
		MaxAttempts: 2,
	}
	ctx := context.Background()

	ok := &stubDelivery{msg: NewJobMessage(JobDrainActions, time.Now())}
	if err := runner.Handle(ctx, ok, 1); err != nil || !ok.acked {
		t.Fatalf("expected ack, got %v", err)
	}

	bad := &stubDelivery{msg: &JobExecutionMessage{JobID: "intake.unknown"}}
	if err := runner.Handle(ctx, bad, 1); err == nil {
		t.Fatalf("expected failure")
	}
	if len(bad.nacks) != 1 || !bad.nacks[0].Requeue || bad.nacks[0].Delay != time.Second {
		t.Fatalf("expected delayed requeue, got %+v", bad.nacks)
	}
	if err := runner.Handle(ctx, bad, 2); err == nil {
		t.Fatalf("expected failure")
	}
	if len(bad.nacks) != 2 || !bad.nacks[1].DeadLetter {
		t.Fatalf("expected dead letter at max attempts, got %+v", bad.nacks)
	}
	if hook.starts != 3 || hook.successes != 1 || hook.retries != 1 || hook.failures != 1 {
		t.Fatalf("unexpected hook counts: %+v", hook)
	}
}

type sliceDequeuer struct {
	deliveries []JobDelivery
	cancel     context.CancelFunc
}

func (d *sliceDequeuer) Dequeue(ctx context.Context) (JobDelivery, error) {
	if len(d.deliveries) == 0 {
		d.cancel()
		return nil, ctx.Err()
	}
	next := d.deliveries[0]
	d.deliveries = d.deliveries[1:]
	return next, nil
}

func TestJobRunner_RunDrainsQueue(t *testing.T) {
	stores := newMemoryStores()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	first := &stubDelivery{msg: NewJobMessage(JobSweepRawEvents, time.Now())}
	second := &stubDelivery{msg: NewJobMessage(JobPruneRecords, time.Now())}
	runner := &JobRunner{
		Service:  newTestService(t, stores),
		Dequeuer: &sliceDequeuer{deliveries: []JobDelivery{first, second}, cancel: cancel},
	}
	if err := runner.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !first.acked || !second.acked {
		t.Fatalf("expected both deliveries acked")
	}
}

func TestRecorderJobHook(t *testing.T) {
	stores := newMemoryStores()
	hook := RecorderJobHook{Recorder: NewRecorder(RecorderConfig{Errors: stores.ErrorStore()})}
	event := JobWorkerEvent{Message: &JobExecutionMessage{JobID: JobDrainActions}, Attempt: 2, Err: errors.New("db busy")}
	hook.OnRetry(context.Background(), event)
	hook.OnFailure(context.Background(), event)
	hook.OnSuccess(context.Background(), JobWorkerEvent{})

	records := stores.errorRecords()
	if len(records) != 2 || records[0].Severity != SeverityWarning || records[1].Severity != SeverityError {
		t.Fatalf("unexpected job error records: %+v", records)
	}
	if records[0].Operation != JobDrainActions || records[0].Component != "scheduler" {
		t.Fatalf("unexpected record fields: %+v", records[0])
	}
}
