package gojob

import (
	"context"
	"fmt"

	"github.com/goliatone/go-intake/core"
	"github.com/goliatone/go-job/queue"
)

// Producer publishes scheduled intake jobs to a go-job queue. It satisfies
// core.JobEnqueuer so the scheduler can hand jobs off instead of running them
// inline.
type Producer struct {
	queue queue.Enqueuer
}

func NewProducer(enqueuer queue.Enqueuer) *Producer {
	return &Producer{queue: enqueuer}
}

func (p *Producer) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	switch {
	case p == nil || p.queue == nil:
		return fmt.Errorf("gojob: producer has no queue")
	case msg == nil:
		return fmt.Errorf("gojob: job message is required")
	case !IsIntakeJob(msg.JobID):
		return fmt.Errorf("gojob: %q is not an intake job", msg.JobID)
	}
	return p.queue.Enqueue(ctx, Encode(msg))
}

// Consumer pulls intake jobs off a go-job queue.
type Consumer struct {
	queue  queue.Dequeuer
	policy RetryPolicy
}

func NewConsumer(dequeuer queue.Dequeuer, policy RetryPolicy) *Consumer {
	return &Consumer{queue: dequeuer, policy: policy}
}

func (c *Consumer) Dequeue(ctx context.Context) (core.JobDelivery, error) {
	if c == nil || c.queue == nil {
		return nil, fmt.Errorf("gojob: consumer has no queue")
	}
	next, err := c.queue.Dequeue(ctx)
	if err != nil || next == nil {
		return nil, err
	}
	return &Delivery{raw: next, policy: c.policy}, nil
}

// Delivery wraps a go-job delivery with the consumer's retry policy.
type Delivery struct {
	raw    queue.Delivery
	policy RetryPolicy
}

func (d *Delivery) Message() *core.JobExecutionMessage {
	if d == nil || d.raw == nil {
		return nil
	}
	return Decode(d.raw.Message())
}

func (d *Delivery) Ack(ctx context.Context) error {
	if d == nil || d.raw == nil {
		return fmt.Errorf("gojob: empty delivery")
	}
	return d.raw.Ack(ctx)
}

func (d *Delivery) Nack(ctx context.Context, opts core.JobNackOptions) error {
	return d.NackAttempt(ctx, opts, 0)
}

// NackAttempt nacks with the policy applied for the given attempt number.
func (d *Delivery) NackAttempt(ctx context.Context, opts core.JobNackOptions, attempt int) error {
	if d == nil || d.raw == nil {
		return fmt.Errorf("gojob: empty delivery")
	}
	return d.raw.Nack(ctx, d.policy.Apply(opts, attempt))
}

// NewRunner wires a core.JobRunner to a go-job queue. Failures are written to
// the service's error recorder when hook is nil.
func NewRunner(svc *core.Service, dequeuer queue.Dequeuer, policy RetryPolicy, hook core.JobWorkerHook) (*core.JobRunner, error) {
	if svc == nil {
		return nil, fmt.Errorf("gojob: intake service is required")
	}
	if dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is required")
	}
	if hook == nil {
		hook = core.RecorderJobHook{Recorder: svc.Recorder()}
	}
	return &core.JobRunner{
		Service:     svc,
		Dequeuer:    NewConsumer(dequeuer, policy),
		Hook:        hook,
		MaxAttempts: policy.MaxAttempts,
	}, nil
}

var (
	_ core.JobEnqueuer = (*Producer)(nil)
	_ core.JobDequeuer = (*Consumer)(nil)
	_ core.JobDelivery = (*Delivery)(nil)
)
