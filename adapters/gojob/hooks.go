package gojob

import (
	"context"

	"github.com/goliatone/go-intake/core"
	"github.com/goliatone/go-job/queue/worker"
)

// WorkerHook lets a go-job worker report into an intake job hook.
type WorkerHook struct {
	Target core.JobWorkerHook
}

func (h WorkerHook) OnStart(ctx context.Context, event worker.Event) {
	h.forward(ctx, event, core.JobWorkerHook.OnStart)
}

func (h WorkerHook) OnSuccess(ctx context.Context, event worker.Event) {
	h.forward(ctx, event, core.JobWorkerHook.OnSuccess)
}

func (h WorkerHook) OnFailure(ctx context.Context, event worker.Event) {
	h.forward(ctx, event, core.JobWorkerHook.OnFailure)
}

func (h WorkerHook) OnRetry(ctx context.Context, event worker.Event) {
	h.forward(ctx, event, core.JobWorkerHook.OnRetry)
}

func (h WorkerHook) forward(ctx context.Context, event worker.Event, call func(core.JobWorkerHook, context.Context, core.JobWorkerEvent)) {
	if h.Target == nil {
		return
	}
	msg := event.Message
	if msg == nil && event.Delivery != nil {
		msg = event.Delivery.Message()
	}
	call(h.Target, ctx, core.JobWorkerEvent{
		Message:   Decode(msg),
		Attempt:   event.Attempt,
		Delay:     event.Delay,
		Err:       event.Err,
		StartedAt: event.StartedAt,
		Duration:  event.Duration,
	})
}

var _ worker.Hook = WorkerHook{}
