package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-intake/core"
	"github.com/goliatone/go-intake/transport"
	kafkago "github.com/segmentio/kafka-go"
)

type recordingWriter struct {
	messages []kafkago.Message
	err      error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestAuditPublisher_WritesKeyedJSON(t *testing.T) {
	writer := &recordingWriter{}
	publisher, err := NewAuditPublisher(writer, "")
	if err != nil {
		t.Fatalf("new audit publisher: %v", err)
	}
	createdAt := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	err = publisher.Publish(context.Background(), core.AuditRecord{
		ID:        "audit_1",
		TenantID:  "tenant_1",
		DedupKey:  "m1",
		Action:    "event.normalized",
		Component: "normalizer",
		Outcome:   "success",
		CreatedAt: createdAt,
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(writer.messages) != 1 {
		t.Fatalf("expected one message, got %d", len(writer.messages))
	}
	msg := writer.messages[0]
	if msg.Topic != "intake.audit" || string(msg.Key) != "tenant_1" || !msg.Time.Equal(createdAt) {
		t.Fatalf("unexpected message envelope: topic=%s key=%s time=%s", msg.Topic, msg.Key, msg.Time)
	}
	var decoded auditMessage
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("decode value: %v", err)
	}
	if decoded.DedupKey != "m1" || decoded.Action != "event.normalized" {
		t.Fatalf("unexpected value %#v", decoded)
	}
}

func TestActionPublisher_TopicPerKind(t *testing.T) {
	writer := &recordingWriter{}
	publisher, err := NewActionPublisher(writer, "acme.actions.")
	if err != nil {
		t.Fatalf("new action publisher: %v", err)
	}
	err = publisher.Send(context.Background(), core.Action{
		ID:         "action_1",
		TenantID:   "tenant_1",
		Kind:       core.ActionKindUpdateDocument,
		RetryCount: 2,
		Payload:    map[string]any{"quote_id": "quote_1"},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	msg := writer.messages[0]
	if msg.Topic != "acme.actions.update_document" || string(msg.Key) != "action_1" {
		t.Fatalf("unexpected routing topic=%s key=%s", msg.Topic, msg.Key)
	}
	var decoded actionMessage
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("decode value: %v", err)
	}
	if decoded.Attempt != 3 || decoded.Kind != "update_document" {
		t.Fatalf("unexpected value %#v", decoded)
	}
}

func TestPublishers_WriteFailureIsExternal(t *testing.T) {
	writer := &recordingWriter{err: errors.New("leader not available")}
	actions, _ := NewActionPublisher(writer, "")
	if err := actions.Send(context.Background(), core.Action{ID: "a1", Kind: core.ActionKindNotifyCustomer}); !core.HasTextCode(err, core.ErrorExternalSendFailure) {
		t.Fatalf("expected external failure, got %v", err)
	}
	audits, _ := NewAuditPublisher(writer, "audit")
	if err := audits.Publish(context.Background(), core.AuditRecord{ID: "x"}); !core.HasTextCode(err, core.ErrorExternalSendFailure) {
		t.Fatalf("expected external failure, got %v", err)
	}
}

func TestSenderFactory_RegistersWithTransport(t *testing.T) {
	writer := &recordingWriter{}
	registry := transport.NewDefaultRegistry(nil)
	if err := registry.Register(SenderType, SenderFactory(writer, "intake.actions")); err != nil {
		t.Fatalf("register kafka factory: %v", err)
	}
	senders, err := registry.BuildSenders(map[string]transport.SenderSpec{
		"notify_customer": {Type: SenderType, Config: map[string]any{"topic_prefix": "tenant.notify"}},
	})
	if err != nil {
		t.Fatalf("build senders: %v", err)
	}
	if err := senders[core.ActionKindNotifyCustomer].Send(context.Background(), core.Action{ID: "a1", Kind: core.ActionKindNotifyCustomer}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if writer.messages[0].Topic != "tenant.notify.notify_customer" {
		t.Fatalf("unexpected topic %s", writer.messages[0].Topic)
	}
}

func TestNewWriter(t *testing.T) {
	if _, err := NewWriter(Config{Brokers: []string{" "}}); err == nil {
		t.Fatalf("expected missing brokers to fail")
	}
	writer, err := NewWriter(Config{Brokers: []string{"localhost:9092"}})
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	defer writer.Close()
	if writer.Topic != "" || writer.WriteTimeout != 10*time.Second {
		t.Fatalf("unexpected writer config topic=%q timeout=%s", writer.Topic, writer.WriteTimeout)
	}
	if writer.BatchTimeout != 10*time.Millisecond {
		t.Fatalf("expected a short batch linger for synchronous writes, got %s", writer.BatchTimeout)
	}
}
