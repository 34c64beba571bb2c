package core

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// Task is one unit of periodic work.
type Task func(ctx context.Context, now time.Time) error

// Schedule yields the next run time after now.
type Schedule interface {
	Next(now time.Time) time.Time
}

type IntervalSchedule struct {
	Every  time.Duration
	Jitter time.Duration
}

func (s IntervalSchedule) Next(now time.Time) time.Time {
	every := s.Every
	if every <= 0 {
		every = time.Minute
	}
	if s.Jitter > 0 {
		every += time.Duration(rand.Int64N(int64(s.Jitter)))
	}
	return now.Add(every)
}

// CronSchedule runs on a standard five-field cron expression.
type CronSchedule struct {
	Expr     string
	schedule cron.Schedule
}

func NewCronSchedule(expr string) (*CronSchedule, error) {
	expr = strings.TrimSpace(expr)
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, ValidationError("cron", fmt.Sprintf("invalid cron expression %q: %v", expr, err))
	}
	return &CronSchedule{Expr: expr, schedule: schedule}, nil
}

func (s *CronSchedule) Next(now time.Time) time.Time {
	return s.schedule.Next(now)
}

type WorkerConfig struct {
	Name     string
	Schedule Schedule
	Task     Task
	// RunImmediately triggers one run right after Start.
	RunImmediately bool
	Clock          Clock
	Logger         Logger
	Metrics        MetricsRecorder
}

// Worker runs a task on a schedule in its own goroutine. A tick that fires
// while the previous run is still in flight is skipped.
type Worker struct {
	name           string
	schedule       Schedule
	task           Task
	runImmediately bool
	clock          Clock
	telemetry      telemetry

	running atomic.Bool
	runs    atomic.Int64
	skipped atomic.Int64

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

func NewWorker(cfg WorkerConfig) (*Worker, error) {
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		return nil, ValidationError("name", "worker name is required")
	}
	if cfg.Task == nil {
		return nil, ValidationError("task", "worker task is required")
	}
	if cfg.Schedule == nil {
		return nil, ValidationError("schedule", "worker schedule is required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Worker{
		name:           name,
		schedule:       cfg.Schedule,
		task:           cfg.Task,
		runImmediately: cfg.RunImmediately,
		clock:          clock,
		telemetry:      newTelemetry(cfg.Logger, cfg.Metrics),
	}, nil
}

func (w *Worker) Name() string { return w.name }

// InFlight reports how many runs are currently executing (0 or 1).
func (w *Worker) InFlight() int {
	if w.running.Load() {
		return 1
	}
	return 0
}

func (w *Worker) Runs() int64 { return w.runs.Load() }

func (w *Worker) Skipped() int64 { return w.skipped.Load() }

func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return ConflictError(fmt.Sprintf("core: worker %q already started", w.name), nil)
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w.cancel = cancel
	w.done = make(chan struct{})
	w.started = true
	go w.loop(runCtx, w.done)
	return nil
}

// Stop cancels the loop and waits for the current run to finish or ctx to end.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	cancel, done := w.cancel, w.done
	w.started = false
	w.mu.Unlock()

	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce executes the task unless a run is already in flight.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	if !w.running.CompareAndSwap(false, true) {
		w.skipped.Add(1)
		w.telemetry.warn(ctx, "worker run skipped, previous run still in flight", map[string]any{"worker": w.name})
		return false, nil
	}
	defer w.running.Store(false)

	startedAt := time.Now()
	err := w.safeRun(ctx)
	w.runs.Add(1)
	w.telemetry.observe(ctx, startedAt, "worker."+w.name, err, map[string]any{"worker": w.name})
	return true, err
}

func (w *Worker) safeRun(ctx context.Context) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = InternalError(fmt.Sprintf("core: worker %q panicked: %v", w.name, recovered))
		}
	}()
	return w.task(ctx, w.clock())
}

func (w *Worker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	if w.runImmediately {
		w.trigger(ctx)
	}
	for {
		now := w.clock()
		wait := w.schedule.Next(now).Sub(now)
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			w.trigger(ctx)
		}
	}
}

func (w *Worker) trigger(ctx context.Context) {
	if _, err := w.RunOnce(ctx); err != nil {
		w.telemetry.error(ctx, "worker run failed", map[string]any{
			"worker": w.name,
			"error":  err.Error(),
		})
	}
}

// WorkerGroup starts and stops a set of workers together.
type WorkerGroup struct {
	workers []*Worker
}

func NewWorkerGroup(workers ...*Worker) *WorkerGroup {
	group := &WorkerGroup{}
	for _, worker := range workers {
		if worker != nil {
			group.workers = append(group.workers, worker)
		}
	}
	return group
}

func (g *WorkerGroup) Workers() []*Worker {
	return append([]*Worker(nil), g.workers...)
}

func (g *WorkerGroup) Start(ctx context.Context) error {
	for i, worker := range g.workers {
		if err := worker.Start(ctx); err != nil {
			for _, started := range g.workers[:i] {
				_ = started.Stop(ctx)
			}
			return err
		}
	}
	return nil
}

func (g *WorkerGroup) Stop(ctx context.Context) error {
	var stopErr error
	for _, worker := range g.workers {
		if err := worker.Stop(ctx); err != nil && stopErr == nil {
			stopErr = err
		}
	}
	return stopErr
}

func (g *WorkerGroup) InFlight() int {
	total := 0
	for _, worker := range g.workers {
		total += worker.InFlight()
	}
	return total
}
