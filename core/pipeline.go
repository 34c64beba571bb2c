package core

import (
	"context"
	"sync"
	"sync/atomic"
)

// PipelineJob identifies one raw event handed to the processing pool.
type PipelineJob struct {
	RawEventID string
	Trace      Trace
}

type PipelineProcessor func(ctx context.Context, job PipelineJob) error

type PipelineOptions struct {
	Workers   int
	QueueSize int
	Processor PipelineProcessor
	Logger    Logger
	Metrics   MetricsRecorder
}

// Pipeline is a bounded in-process queue drained by a fixed goroutine pool.
// Jobs that do not fit are dropped and picked up later by the sweeper.
type Pipeline struct {
	workers   int
	processor PipelineProcessor
	telemetry telemetry

	queue    chan PipelineJob
	inflight atomic.Int64
	dropped  atomic.Int64

	mu      sync.Mutex
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	started bool
	closed  bool
}

func NewPipeline(cfg PipelineOptions) *Pipeline {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	size := cfg.QueueSize
	if size < 0 {
		size = 0
	}
	return &Pipeline{
		workers:   workers,
		processor: cfg.Processor,
		telemetry: newTelemetry(cfg.Logger, cfg.Metrics),
		queue:     make(chan PipelineJob, size),
	}
}

func (p *Pipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	p.started = true
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(runCtx)
	}
}

// Submit enqueues job without blocking and reports whether it was accepted.
func (p *Pipeline) Submit(job PipelineJob) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started || p.closed {
		return false
	}
	select {
	case p.queue <- job:
		return true
	default:
		p.dropped.Add(1)
		return false
	}
}

// Stop closes the queue, lets workers finish queued jobs and waits for them
// or for ctx to end, whichever comes first.
func (p *Pipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.started || p.closed {
		p.closed = true
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	cancel := p.cancel
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		cancel()
		return nil
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

func (p *Pipeline) InFlight() int { return int(p.inflight.Load()) }

func (p *Pipeline) Pending() int { return len(p.queue) }

func (p *Pipeline) Dropped() int64 { return p.dropped.Load() }

func (p *Pipeline) run(ctx context.Context) {
	defer p.wg.Done()
	for job := range p.queue {
		p.process(ctx, job)
	}
}

func (p *Pipeline) process(ctx context.Context, job PipelineJob) {
	if p.processor == nil {
		return
	}
	p.inflight.Add(1)
	defer p.inflight.Add(-1)
	defer func() {
		if recovered := recover(); recovered != nil {
			p.telemetry.error(ctx, "pipeline job panicked", map[string]any{
				"raw_event_id": job.RawEventID,
				"panic":        recovered,
			})
		}
	}()
	if err := p.processor(WithTrace(ctx, job.Trace), job); err != nil {
		p.telemetry.warn(ctx, "pipeline job failed", map[string]any{
			"raw_event_id": job.RawEventID,
			"error":        err.Error(),
		})
	}
}
