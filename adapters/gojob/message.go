// Package gojob runs the periodic intake jobs on a go-job queue.
package gojob

import (
	"strings"
	"time"

	"github.com/goliatone/go-intake/core"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
)

// Encode converts an intake job message into the go-job wire form.
func Encode(msg *core.JobExecutionMessage) *job.ExecutionMessage {
	if msg == nil {
		return nil
	}
	out := &job.ExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    job.DeduplicationPolicy(strings.TrimSpace(msg.DedupPolicy)),
		Parameters:     make(map[string]any, len(msg.Parameters)),
	}
	for key, value := range msg.Parameters {
		out.Parameters[key] = value
	}
	return out
}

// Decode is the inverse of Encode.
func Decode(msg *job.ExecutionMessage) *core.JobExecutionMessage {
	if msg == nil {
		return nil
	}
	out := &core.JobExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    strings.TrimSpace(string(msg.DedupPolicy)),
		Parameters:     make(map[string]any, len(msg.Parameters)),
	}
	for key, value := range msg.Parameters {
		out.Parameters[key] = value
	}
	return out
}

// IsIntakeJob reports whether jobID names one of the periodic intake jobs.
func IsIntakeJob(jobID string) bool {
	jobID = strings.TrimSpace(jobID)
	for _, id := range core.JobIDs() {
		if id == jobID {
			return true
		}
	}
	return false
}

// RetryPolicy bounds redelivery of queued intake jobs.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// Apply clamps the nack delay and switches to dead-lettering once attempt
// reaches MaxAttempts. A nack that neither requeues nor dead-letters is
// turned into a requeue so the message is never silently dropped.
func (p RetryPolicy) Apply(opts core.JobNackOptions, attempt int) queue.NackOptions {
	out := queue.NackOptions{
		Delay:      max(opts.Delay, 0),
		Requeue:    opts.Requeue && !opts.DeadLetter,
		DeadLetter: opts.DeadLetter,
		Reason:     strings.TrimSpace(opts.Reason),
	}
	if p.MaxDelay > 0 {
		out.Delay = min(out.Delay, p.MaxDelay)
	}
	exhausted := p.MaxAttempts > 0 && attempt >= p.MaxAttempts
	if exhausted {
		out.Requeue = false
		out.DeadLetter = out.DeadLetter || p.DeadLetterOnMax
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}
