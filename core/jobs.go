package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	JobDrainActions    = "intake.actions.drain"
	JobSweepRawEvents  = "intake.raw_events.sweep"
	JobRemindQuotes    = "intake.quotes.remind"
	JobReportHealth    = "intake.health.report"
	JobPruneRecords    = "intake.records.prune"
	jobScriptPathRoot  = "intake://jobs/"
	jobParamScheduled  = "scheduled_at"
	jobRetryBaseDelay  = 30 * time.Second
	jobDedupPolicyDrop = "drop"
)

// JobIDs lists the periodic jobs the service can run.
func JobIDs() []string {
	return []string{JobDrainActions, JobSweepRawEvents, JobRemindQuotes, JobReportHealth, JobPruneRecords}
}

// RunJob executes a periodic job by id. now is the scheduled time.
func (s *Service) RunJob(ctx context.Context, jobID string, now time.Time) error {
	if s == nil {
		return InternalError("core: service is nil")
	}
	switch strings.TrimSpace(jobID) {
	case JobDrainActions:
		_, err := s.DrainActions(ctx, now)
		return err
	case JobSweepRawEvents:
		_, err := s.SweepUnprocessed(ctx, now)
		return err
	case JobRemindQuotes:
		_, err := s.EnqueueQuoteReminders(ctx, now)
		return err
	case JobReportHealth:
		_, err := s.ReportHealth(ctx, now)
		return err
	case JobPruneRecords:
		_, err := s.PruneRecords(ctx, now)
		return err
	default:
		return ValidationError("job_id", fmt.Sprintf("unknown job %q", jobID))
	}
}

// NewJobMessage builds the queue message for a scheduled run of jobID.
func NewJobMessage(jobID string, scheduledAt time.Time) *JobExecutionMessage {
	scheduledAt = scheduledAt.UTC()
	return &JobExecutionMessage{
		JobID:      jobID,
		ScriptPath: jobScriptPathRoot + jobID,
		Parameters: map[string]any{
			jobParamScheduled: scheduledAt.Format(time.RFC3339Nano),
		},
		IdempotencyKey: jobID + "@" + scheduledAt.Truncate(time.Second).Format(time.RFC3339),
		DedupPolicy:    jobDedupPolicyDrop,
	}
}

func scheduledAtFrom(msg *JobExecutionMessage, fallback time.Time) time.Time {
	if msg == nil {
		return fallback
	}
	raw, ok := msg.Parameters[jobParamScheduled]
	if !ok {
		return fallback
	}
	switch typed := raw.(type) {
	case time.Time:
		return typed
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, typed); err == nil {
			return parsed
		}
	}
	return fallback
}

func (s *Service) buildWorkers(provider LoggerProvider, logger Logger) (*WorkerGroup, error) {
	cfg := s.config.Workers
	healthSchedule, err := NewCronSchedule(cfg.HealthReportCron)
	if err != nil {
		return nil, err
	}
	specs := []struct {
		jobID    string
		schedule Schedule
	}{
		{JobDrainActions, IntervalSchedule{Every: cfg.DrainInterval, Jitter: cfg.DrainJitter}},
		{JobSweepRawEvents, IntervalSchedule{Every: s.config.Pipeline.SweepInterval}},
		{JobRemindQuotes, IntervalSchedule{Every: cfg.ReminderInterval}},
		{JobReportHealth, healthSchedule},
		{JobPruneRecords, IntervalSchedule{Every: 24 * time.Hour}},
	}
	workers := make([]*Worker, 0, len(specs))
	for _, spec := range specs {
		worker, err := NewWorker(WorkerConfig{
			Name:     spec.jobID,
			Schedule: spec.schedule,
			Task:     s.jobTask(spec.jobID),
			Clock:    s.clock,
			Logger:   named(provider, logger, "intake.worker"),
			Metrics:  s.metricsRecorder,
		})
		if err != nil {
			return nil, err
		}
		workers = append(workers, worker)
	}
	return NewWorkerGroup(workers...), nil
}

// jobTask runs the job inline, or hands it to the job queue when one is configured.
func (s *Service) jobTask(jobID string) Task {
	return func(ctx context.Context, now time.Time) error {
		if s.jobEnqueuer != nil {
			return s.jobEnqueuer.Enqueue(ctx, NewJobMessage(jobID, now))
		}
		return s.RunJob(ctx, jobID, now)
	}
}

// JobRunner executes queued job deliveries against the service.
type JobRunner struct {
	Service  *Service
	Dequeuer JobDequeuer
	Hook     JobWorkerHook
	Backoff  BackoffPolicy
	// MaxAttempts bounds redeliveries before a job is dead-lettered.
	MaxAttempts int
	Clock       Clock
}

// Handle runs one delivery, acking on success and nacking with a delay on failure.
func (r *JobRunner) Handle(ctx context.Context, delivery JobDelivery, attempt int) error {
	if r == nil || r.Service == nil {
		return InternalError("core: job runner is not configured")
	}
	if delivery == nil || delivery.Message() == nil {
		return ValidationError("delivery", "job delivery message is required")
	}
	msg := delivery.Message()
	clock := r.Clock
	if clock == nil {
		clock = time.Now
	}
	if attempt < 1 {
		attempt = 1
	}
	event := JobWorkerEvent{Message: msg, Attempt: attempt, StartedAt: clock()}
	r.hook(func(h JobWorkerHook) { h.OnStart(ctx, event) })

	runErr := r.Service.RunJob(ctx, msg.JobID, scheduledAtFrom(msg, event.StartedAt))
	event.Duration = clock().Sub(event.StartedAt)
	if runErr == nil {
		r.hook(func(h JobWorkerHook) { h.OnSuccess(ctx, event) })
		return delivery.Ack(ctx)
	}

	event.Err = runErr
	maxAttempts := r.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if attempt >= maxAttempts {
		r.hook(func(h JobWorkerHook) { h.OnFailure(ctx, event) })
		return errors.Join(runErr, delivery.Nack(ctx, JobNackOptions{
			DeadLetter: true,
			Reason:     runErr.Error(),
		}))
	}
	backoff := r.Backoff
	if backoff == nil {
		backoff = ExponentialBackoff{Initial: jobRetryBaseDelay, Max: 10 * time.Minute, Multiplier: 2}
	}
	event.Delay = backoff.NextDelay(attempt)
	r.hook(func(h JobWorkerHook) { h.OnRetry(ctx, event) })
	return errors.Join(runErr, delivery.Nack(ctx, JobNackOptions{
		Delay:   event.Delay,
		Requeue: true,
		Reason:  runErr.Error(),
	}))
}

// Run dequeues and handles deliveries until ctx ends.
func (r *JobRunner) Run(ctx context.Context) error {
	if r == nil || r.Dequeuer == nil {
		return InternalError("core: job runner dequeuer is not configured")
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		delivery, err := r.Dequeuer.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if delivery == nil {
			continue
		}
		if err := r.Handle(ctx, delivery, 1); err != nil {
			r.Service.telemetry.warn(ctx, "queued job failed", map[string]any{
				"job_id": delivery.Message().JobID,
				"error":  err.Error(),
			})
		}
	}
}

func (r *JobRunner) hook(fn func(JobWorkerHook)) {
	if r.Hook != nil {
		fn(r.Hook)
	}
}

// RecorderJobHook reports queued job failures to the error recorder.
type RecorderJobHook struct {
	Recorder *Recorder
}

func (h RecorderJobHook) OnStart(context.Context, JobWorkerEvent) {}

func (h RecorderJobHook) OnSuccess(context.Context, JobWorkerEvent) {}

func (h RecorderJobHook) OnFailure(ctx context.Context, event JobWorkerEvent) {
	h.record(ctx, event, SeverityError)
}

func (h RecorderJobHook) OnRetry(ctx context.Context, event JobWorkerEvent) {
	h.record(ctx, event, SeverityWarning)
}

func (h RecorderJobHook) record(ctx context.Context, event JobWorkerEvent, severity ErrorSeverity) {
	if h.Recorder == nil || event.Err == nil {
		return
	}
	jobID := ""
	if event.Message != nil {
		jobID = event.Message.JobID
	}
	h.Recorder.RecordError(ctx, ErrorRecord{
		Component: componentScheduler,
		Operation: jobID,
		Message:   event.Err.Error(),
		Category:  string(MapError(event.Err).Category),
		TextCode:  MapError(event.Err).TextCode,
		Severity:  severity,
		Details: map[string]any{
			"attempt":     event.Attempt,
			"delay_ms":    event.Delay.Milliseconds(),
			"duration_ms": event.Duration.Milliseconds(),
		},
	})
}

var _ JobWorkerHook = RecorderJobHook{}
