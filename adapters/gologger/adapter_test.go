package gologger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	glog "github.com/goliatone/go-logger/glog"
)

func TestName(t *testing.T) {
	tests := []struct {
		component string
		want      string
	}{
		{component: "", want: "intake"},
		{component: "intake", want: "intake"},
		{component: "worker", want: "intake.worker"},
		{component: " .httpapi. ", want: "intake.httpapi"},
		{component: "intake.scheduler", want: "intake.scheduler"},
	}
	for _, tt := range tests {
		t.Run(tt.want+"/"+tt.component, func(t *testing.T) {
			if got := Name(tt.component); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestNewRoot_WritesNamedJSONRecords(t *testing.T) {
	var buf bytes.Buffer
	root := NewRoot(&buf, "info", "json")

	var _ glog.LoggerProvider = root
	var _ glog.FieldsLogger = root

	_, logger := Resolve("pipeline", root, nil)
	logger.Debug("hidden below level")
	logger.Info("event processed", "tenant_id", "tenant_1", "duplicate", false)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one record above info, got %d: %q", len(lines), buf.String())
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record["msg"] != "event processed" || record["logger"] != "intake.pipeline" || record["tenant_id"] != "tenant_1" {
		t.Fatalf("unexpected record: %v", record)
	}
	if record["level"] != "info" {
		t.Fatalf("expected lower-case level label, got %v", record["level"])
	}
}

func TestNewRoot_TextFormatAndFields(t *testing.T) {
	var buf bytes.Buffer
	root := NewRoot(&buf, "debug", "text")

	logger := root.GetLogger(Name("worker"))
	fields, ok := logger.(glog.FieldsLogger)
	if !ok {
		t.Fatalf("expected component logger to carry fields")
	}
	fields.WithFields(map[string]any{"job_id": "intake.actions.drain"}).Debug("tick")

	out := buf.String()
	if !strings.Contains(out, "level=debug") || !strings.Contains(out, "job_id=intake.actions.drain") {
		t.Fatalf("expected key=value debug record, got %q", out)
	}
	if !strings.Contains(out, "logger=intake.worker") {
		t.Fatalf("expected component name, got %q", out)
	}
}

func TestResolvePrecedence(t *testing.T) {
	direct := &capturingLogger{id: "logger"}
	provider := &capturingProvider{logger: &capturingLogger{id: "provider"}}

	_, resolved := Resolve("worker", provider, direct)
	if got := resolved.(*capturingLogger); got.id != "provider" {
		t.Fatalf("expected provider logger, got %q", got.id)
	}

	wrapped, resolved := Resolve("worker", nil, direct)
	if got := resolved.(*capturingLogger); got.id != "logger" {
		t.Fatalf("expected direct logger without provider, got %q", got.id)
	}
	if wrapped == nil {
		t.Fatalf("expected provider wrapper around direct logger")
	}

	if _, resolved = Resolve("worker", nil, nil); resolved == nil {
		t.Fatalf("expected nop fallback")
	}
}

func TestComponents(t *testing.T) {
	provider := &capturingProvider{logger: &capturingLogger{id: "provider"}}
	loggers := Components(provider, nil, "httpapi", "scheduler")
	if len(loggers) != 2 || loggers["httpapi"] == nil || loggers["scheduler"] == nil {
		t.Fatalf("expected a logger per component, got %#v", loggers)
	}
}

func TestResolveForJob_BridgesMessages(t *testing.T) {
	providerLogger := &capturingLogger{id: "provider"}
	provider := &capturingProvider{logger: providerLogger}

	_, _, jobProvider, jobLogger := ResolveForJob("jobs", provider, nil)
	if jobProvider == nil || jobLogger == nil {
		t.Fatalf("expected go-job bridges")
	}

	jobProvider.GetLogger("intake.jobs").Info("job finished", "job_id", "intake.actions.drain")
	captured := providerLogger.lastInfo
	if captured.msg != "job finished" {
		t.Fatalf("expected bridged message, got %q", captured.msg)
	}
	if len(captured.args) != 2 || captured.args[1] != "intake.actions.drain" {
		t.Fatalf("expected bridged args, got %#v", captured.args)
	}
	if ToJobProvider(nil) != nil || ToJobLogger(nil) != nil {
		t.Fatalf("expected nil bridges for nil inputs")
	}
}

var (
	_ glog.Logger         = (*capturingLogger)(nil)
	_ glog.LoggerProvider = (*capturingProvider)(nil)
)

type capturingProvider struct {
	logger *capturingLogger
}

func (p *capturingProvider) GetLogger(string) glog.Logger {
	if p.logger == nil {
		return glog.Nop()
	}
	return p.logger
}

type infoCall struct {
	msg  string
	args []any
}

type capturingLogger struct {
	id       string
	lastInfo infoCall
}

func (l *capturingLogger) Trace(string, ...any) {}
func (l *capturingLogger) Debug(string, ...any) {}
func (l *capturingLogger) Warn(string, ...any)  {}
func (l *capturingLogger) Error(string, ...any) {}
func (l *capturingLogger) Fatal(string, ...any) {}

func (l *capturingLogger) Info(msg string, args ...any) {
	l.lastInfo = infoCall{msg: msg, args: append([]any(nil), args...)}
}

func (l *capturingLogger) WithContext(context.Context) glog.Logger {
	return l
}
