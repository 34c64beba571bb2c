// Package kafka publishes intake audit records and actions to Kafka topics.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-intake/core"
	"github.com/goliatone/go-intake/transport"
	kafkago "github.com/segmentio/kafka-go"
)

const SenderType = "kafka"

type Config struct {
	Brokers           []string      `koanf:"brokers" mapstructure:"brokers" envconfig:"BROKERS"`
	AuditTopic        string        `koanf:"audit_topic" mapstructure:"audit_topic" envconfig:"AUDIT_TOPIC"`
	ActionTopicPrefix string        `koanf:"action_topic_prefix" mapstructure:"action_topic_prefix" envconfig:"ACTION_TOPIC_PREFIX"`
	WriteTimeout      time.Duration `koanf:"write_timeout" mapstructure:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	// BatchTimeout bounds how long a synchronous write lingers for a batch.
	BatchTimeout      time.Duration `koanf:"batch_timeout" mapstructure:"batch_timeout" envconfig:"BATCH_TIMEOUT"`
}

func (c Config) Enabled() bool {
	return len(c.Brokers) > 0
}

// MessageWriter is the subset of *kafka.Writer the publishers use.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// NewWriter builds a synchronous writer without a default topic so each
// message carries its own.
func NewWriter(cfg Config) (*kafkago.Writer, error) {
	brokers := make([]string, 0, len(cfg.Brokers))
	for _, broker := range cfg.Brokers {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka: at least one broker is required")
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	linger := cfg.BatchTimeout
	if linger <= 0 {
		linger = 10 * time.Millisecond
	}
	return &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
		WriteTimeout: timeout,
		BatchTimeout: linger,
	}, nil
}

type auditMessage struct {
	ID         string         `json:"id"`
	TenantID   string         `json:"tenant_id,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
	FlowID     string         `json:"flow_id,omitempty"`
	DedupKey   string         `json:"dedup_key,omitempty"`
	Action     string         `json:"action"`
	Component  string         `json:"component"`
	Outcome    string         `json:"outcome"`
	EntityType string         `json:"entity_type,omitempty"`
	EntityID   string         `json:"entity_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// AuditPublisher fans audit records out to a single topic keyed by tenant.
type AuditPublisher struct {
	writer MessageWriter
	topic  string
}

func NewAuditPublisher(writer MessageWriter, topic string) (*AuditPublisher, error) {
	if writer == nil {
		return nil, fmt.Errorf("kafka: writer is required")
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		topic = "intake.audit"
	}
	return &AuditPublisher{writer: writer, topic: topic}, nil
}

func (p *AuditPublisher) Publish(ctx context.Context, record core.AuditRecord) error {
	value, err := json.Marshal(auditMessage{
		ID:         record.ID,
		TenantID:   record.TenantID,
		RequestID:  record.RequestID,
		FlowID:     record.FlowID,
		DedupKey:   record.DedupKey,
		Action:     record.Action,
		Component:  record.Component,
		Outcome:    record.Outcome,
		EntityType: record.EntityType,
		EntityID:   record.EntityID,
		Metadata:   record.Metadata,
		CreatedAt:  record.CreatedAt,
	})
	if err != nil {
		return publishError(err, "kafka: marshal audit record", map[string]any{"audit_id": record.ID})
	}
	msg := kafkago.Message{
		Topic: p.topic,
		Key:   []byte(record.TenantID),
		Value: value,
		Time:  record.CreatedAt,
		Headers: []kafkago.Header{
			{Key: "action", Value: []byte(record.Action)},
			{Key: "outcome", Value: []byte(record.Outcome)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return publishError(err, "kafka: publish audit record", map[string]any{"audit_id": record.ID, "topic": p.topic})
	}
	return nil
}

type actionMessage struct {
	ID                string         `json:"id"`
	TenantID          string         `json:"tenant_id"`
	Kind              string         `json:"kind"`
	QuoteID           string         `json:"quote_id,omitempty"`
	NormalizedEventID string         `json:"normalized_event_id,omitempty"`
	Attempt           int            `json:"attempt"`
	Payload           map[string]any `json:"payload"`
}

// ActionPublisher hands actions to downstream consumers, one topic per kind.
// Consumers deduplicate on the action id key.
type ActionPublisher struct {
	writer MessageWriter
	prefix string
}

func NewActionPublisher(writer MessageWriter, topicPrefix string) (*ActionPublisher, error) {
	if writer == nil {
		return nil, fmt.Errorf("kafka: writer is required")
	}
	topicPrefix = strings.TrimSuffix(strings.TrimSpace(topicPrefix), ".")
	if topicPrefix == "" {
		topicPrefix = "intake.actions"
	}
	return &ActionPublisher{writer: writer, prefix: topicPrefix}, nil
}

func (p *ActionPublisher) Topic(kind core.ActionKind) string {
	return p.prefix + "." + string(kind)
}

func (p *ActionPublisher) Send(ctx context.Context, action core.Action) error {
	value, err := json.Marshal(actionMessage{
		ID:                action.ID,
		TenantID:          action.TenantID,
		Kind:              string(action.Kind),
		QuoteID:           action.QuoteID,
		NormalizedEventID: action.NormalizedEventID,
		Attempt:           action.RetryCount + 1,
		Payload:           action.Payload,
	})
	if err != nil {
		return publishError(err, "kafka: marshal action", map[string]any{"action_id": action.ID})
	}
	topic := p.Topic(action.Kind)
	msg := kafkago.Message{
		Topic: topic,
		Key:   []byte(action.ID),
		Value: value,
		Headers: []kafkago.Header{
			{Key: "tenant_id", Value: []byte(action.TenantID)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return publishError(err, "kafka: publish action", map[string]any{"action_id": action.ID, "topic": topic})
	}
	return nil
}

// SenderFactory lets the transport registry build kafka action senders that
// share one writer. The optional "topic_prefix" key overrides the default.
func SenderFactory(writer MessageWriter, defaultPrefix string) transport.SenderFactory {
	return func(config map[string]any) (core.ActionSender, error) {
		prefix := defaultPrefix
		if raw, ok := config["topic_prefix"].(string); ok && strings.TrimSpace(raw) != "" {
			prefix = raw
		}
		return NewActionPublisher(writer, prefix)
	}
}

func publishError(err error, message string, metadata map[string]any) error {
	return goerrors.Wrap(err, goerrors.CategoryExternal, message).
		WithCode(http.StatusBadGateway).
		WithTextCode(core.ErrorExternalSendFailure).
		WithMetadata(metadata)
}

var (
	_ core.AuditSink    = (*AuditPublisher)(nil)
	_ core.ActionSender = (*ActionPublisher)(nil)
	_ MessageWriter     = (*kafkago.Writer)(nil)
)
