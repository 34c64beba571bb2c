package core

import (
	"context"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
)

type RecorderConfig struct {
	Audits       AuditStore
	Errors       ErrorStore
	Alerts       AlertSender
	Sinks        []AuditSink
	MinSeverity  ErrorSeverity
	AlertTimeout time.Duration
	// SinkTimeout bounds each audit sink publish. Defaults to 2s.
	SinkTimeout  time.Duration
	Environment  string
	Logger       Logger
	Metrics      MetricsRecorder
	Clock        Clock
}

// Recorder persists audit and error records. Recording never fails the
// caller: persistence problems are logged and swallowed.
type Recorder struct {
	audits       AuditStore
	errors       ErrorStore
	alerts       AlertSender
	sinks        []AuditSink
	minSeverity  ErrorSeverity
	alertTimeout time.Duration
	sinkTimeout  time.Duration
	environment  string
	telemetry    telemetry
	clock        Clock
}

func NewRecorder(cfg RecorderConfig) *Recorder {
	minSeverity := cfg.MinSeverity
	if minSeverity.rank() == 0 {
		minSeverity = SeverityError
	}
	timeout := cfg.AlertTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	sinkTimeout := cfg.SinkTimeout
	if sinkTimeout <= 0 {
		sinkTimeout = 2 * time.Second
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Recorder{
		audits:       cfg.Audits,
		errors:       cfg.Errors,
		alerts:       cfg.Alerts,
		sinks:        append([]AuditSink(nil), cfg.Sinks...),
		minSeverity:  minSeverity,
		alertTimeout: timeout,
		sinkTimeout:  sinkTimeout,
		environment:  strings.TrimSpace(cfg.Environment),
		telemetry:    newTelemetry(cfg.Logger, cfg.Metrics),
		clock:        clock,
	}
}

func (r *Recorder) Audit(ctx context.Context, record AuditRecord) {
	if r == nil {
		return
	}
	record = r.prepareAudit(ctx, record)
	if r.audits != nil {
		if err := r.audits.Append(ctx, record); err != nil {
			r.telemetry.error(ctx, "audit record persist failed", map[string]any{
				"action":    record.Action,
				"component": record.Component,
				"error":     err.Error(),
			})
		}
	}
	r.telemetry.count(ctx, MetricAuditRecords, 1, map[string]string{
		"action":  record.Action,
		"outcome": record.Outcome,
	})
	for _, sink := range r.sinks {
		if sink == nil {
			continue
		}
		if err := r.publish(ctx, sink, record); err != nil {
			r.telemetry.warn(ctx, "audit sink publish failed", map[string]any{
				"action": record.Action,
				"error":  err.Error(),
			})
		}
	}
}

// publish waits at most sinkTimeout for sink, even when the sink ignores its
// context. The caller's cancellation does not abort the publish.
func (r *Recorder) publish(ctx context.Context, sink AuditSink, record AuditRecord) error {
	sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.sinkTimeout)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- sink.Publish(sinkCtx, record)
	}()
	select {
	case err := <-done:
		return err
	case <-sinkCtx.Done():
		return sinkCtx.Err()
	}
}

func (r *Recorder) RecordError(ctx context.Context, record ErrorRecord) {
	if r == nil {
		return
	}
	record = r.prepareError(ctx, record)
	if r.errors != nil {
		if err := r.errors.Append(ctx, record); err != nil {
			r.telemetry.error(ctx, "error record persist failed", map[string]any{
				"component": record.Component,
				"operation": record.Operation,
				"message":   record.Message,
				"error":     err.Error(),
			})
		}
	}
	r.telemetry.count(ctx, MetricErrorRecords, 1, map[string]string{
		"component": record.Component,
		"severity":  string(record.Severity),
	})
	r.alert(ctx, record)
}

// RecordFailure maps err into the error envelope, records it and returns the
// stored record.
func (r *Recorder) RecordFailure(
	ctx context.Context,
	component string,
	operation string,
	err error,
	details map[string]any,
) ErrorRecord {
	if err == nil {
		return ErrorRecord{}
	}
	rich := MapError(err)
	merged := cloneFields(details)
	for key, value := range rich.Metadata {
		if _, exists := merged[key]; !exists {
			merged[key] = value
		}
	}
	if fields := rich.AllValidationErrors(); len(fields) > 0 {
		validation := make([]any, 0, len(fields))
		for _, field := range fields {
			validation = append(validation, map[string]any{
				"field":   field.Field,
				"message": field.Message,
			})
		}
		merged["validation"] = validation
	}
	record := ErrorRecord{
		Component: component,
		Operation: operation,
		Message:   err.Error(),
		Category:  string(rich.Category),
		TextCode:  rich.TextCode,
		Severity:  severityFor(rich),
		Details:   merged,
	}
	if record.Severity == SeverityCritical {
		record.Stacktrace = string(debug.Stack())
	}
	r.RecordError(ctx, record)
	return record
}

func (r *Recorder) prepareAudit(ctx context.Context, record AuditRecord) AuditRecord {
	trace := TraceFromContext(ctx)
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = r.clock().UTC()
	}
	record.TenantID = firstNonEmpty(record.TenantID, trace.TenantID)
	record.RequestID = firstNonEmpty(record.RequestID, trace.RequestID)
	record.FlowID = firstNonEmpty(record.FlowID, trace.FlowID)
	record.DedupKey = firstNonEmpty(record.DedupKey, trace.DedupKey)
	if record.Outcome == "" {
		record.Outcome = OutcomeSuccess
	}
	record.Metadata = RedactSensitiveMap(record.Metadata)
	return record
}

func (r *Recorder) prepareError(ctx context.Context, record ErrorRecord) ErrorRecord {
	trace := TraceFromContext(ctx)
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = r.clock().UTC()
	}
	record.TenantID = firstNonEmpty(record.TenantID, trace.TenantID)
	record.RequestID = firstNonEmpty(record.RequestID, trace.RequestID)
	record.FlowID = firstNonEmpty(record.FlowID, trace.FlowID)
	record.DedupKey = firstNonEmpty(record.DedupKey, trace.DedupKey)
	if record.Severity.rank() == 0 {
		record.Severity = SeverityError
	}
	record.Details = RedactSensitiveMap(record.Details)
	return record
}

func (r *Recorder) alert(ctx context.Context, record ErrorRecord) {
	if r.alerts == nil || !record.Severity.AtLeast(r.minSeverity) {
		return
	}
	alertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.alertTimeout)
	defer cancel()
	err := r.alerts.SendAlert(alertCtx, Alert{
		Environment: r.environment,
		Severity:    record.Severity,
		Component:   record.Component,
		Message:     record.Message,
		RequestID:   record.RequestID,
		TenantID:    record.TenantID,
		Context: map[string]any{
			"operation": record.Operation,
			"text_code": record.TextCode,
			"flow_id":   record.FlowID,
			"dedup_key": record.DedupKey,
		},
	})
	if err != nil {
		r.telemetry.warn(ctx, "alert delivery failed", map[string]any{
			"component": record.Component,
			"error":     err.Error(),
		})
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
