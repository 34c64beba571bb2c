package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const componentNormalizer = "normalizer"

var channelsBySource = map[string]ChannelKind{
	"email":    ChannelEmail,
	"gmail":    ChannelEmail,
	"imap":     ChannelEmail,
	"outlook":  ChannelEmail,
	"chat":     ChannelChat,
	"whatsapp": ChannelChat,
	"telegram": ChannelChat,
	"sms":      ChannelChat,
	"web":      ChannelWeb,
	"form":     ChannelWeb,
	"webhook":  ChannelWeb,
}

// ChannelForSource maps an ingress source label onto the channel vocabulary.
func ChannelForSource(source string) ChannelKind {
	if channel, ok := channelsBySource[strings.ToLower(strings.TrimSpace(source))]; ok {
		return channel
	}
	return ChannelOther
}

var entityAliases = map[string]string{
	"name":               EntityName,
	"nome":               EntityName,
	"full_name":          EntityName,
	"customer_name":      EntityName,
	"phone":              EntityPhone,
	"telefono":           EntityPhone,
	"tel":                EntityPhone,
	"phone_number":       EntityPhone,
	"mobile":             EntityPhone,
	"email":              EntityEmail,
	"e-mail":             EntityEmail,
	"mail":               EntityEmail,
	"address":            EntityAddress,
	"indirizzo":          EntityAddress,
	"description":        EntityDescription,
	"descrizione":        EntityDescription,
	"descrizione_lavori": EntityDescription,
	"job":                EntityDescription,
	"notes":              EntityNotes,
	"note":               EntityNotes,
}

// CanonicalEntities maps classifier entity names onto the canonical keys and
// drops blank values. Unrecognized keys are kept lowercased.
func CanonicalEntities(raw map[string]string) map[string]string {
	out := make(map[string]string, len(raw))
	for key, value := range raw {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		normalized := strings.ToLower(strings.TrimSpace(key))
		if canonical, ok := entityAliases[normalized]; ok {
			normalized = canonical
		}
		if normalized == "" {
			continue
		}
		if _, exists := out[normalized]; exists && normalized != strings.ToLower(strings.TrimSpace(key)) {
			continue
		}
		out[normalized] = value
	}
	return out
}

type envelope struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Text    string `json:"text"`
	Sender  string `json:"sender"`
	From    string `json:"from"`
	FlowID  string `json:"flow_id"`
}

func decodeEnvelope(payload []byte) envelope {
	trimmed := strings.TrimSpace(string(payload))
	if strings.HasPrefix(trimmed, "{") {
		var env envelope
		if err := json.Unmarshal([]byte(trimmed), &env); err == nil {
			if env.Body == "" {
				env.Body = env.Text
			}
			if env.Sender == "" {
				env.Sender = env.From
			}
			return env
		}
	}
	return envelope{Body: trimmed}
}

func InputHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

type NormalizerConfig struct {
	Classifier    Classifier
	Store         NormalizedEventStore
	Recorder      *Recorder
	Timeout       time.Duration
	DefaultFlowID string
	Clock         Clock
	Logger        Logger
	Metrics       MetricsRecorder
}

type Normalizer struct {
	classifier    Classifier
	store         NormalizedEventStore
	recorder      *Recorder
	timeout       time.Duration
	defaultFlowID string
	clock         Clock
	telemetry     telemetry
}

func NewNormalizer(cfg NormalizerConfig) *Normalizer {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	flowID := strings.TrimSpace(cfg.DefaultFlowID)
	if flowID == "" {
		flowID = DefaultFlowID
	}
	return &Normalizer{
		classifier:    cfg.Classifier,
		store:         cfg.Store,
		recorder:      cfg.Recorder,
		timeout:       cfg.Timeout,
		defaultFlowID: flowID,
		clock:         clock,
		telemetry:     newTelemetry(cfg.Logger, cfg.Metrics),
	}
}

// Normalize classifies raw and persists the resulting event together with a
// single event.classified audit record. Classifier problems degrade the event
// to unknown instead of failing.
func (n *Normalizer) Normalize(ctx context.Context, raw RawEvent) (NormalizedEvent, error) {
	if n == nil || n.store == nil {
		return NormalizedEvent{}, InternalError("core: normalizer store is not configured")
	}
	if strings.TrimSpace(raw.ID) == "" || strings.TrimSpace(raw.TenantID) == "" {
		return NormalizedEvent{}, ValidationError("raw_event", "raw event id and tenant id are required")
	}
	// A re-run after a released claim reuses the event stored by the first run.
	existing, err := n.store.GetByRawEvent(ctx, raw.ID)
	if err == nil {
		return existing, nil
	}
	if !IsNotFound(err) {
		return NormalizedEvent{}, PersistenceFailure(err, "core: load normalized event failed")
	}

	env := decodeEnvelope(raw.Payload)
	channel := ChannelForSource(raw.Source)

	classification, classifyErr := n.classify(ctx, ClassifyInput{
		TenantID: raw.TenantID,
		Source:   raw.Source,
		Channel:  channel,
		Subject:  env.Subject,
		Body:     env.Body,
		Sender:   env.Sender,
		Payload:  append([]byte(nil), raw.Payload...),
	})

	event := NormalizedEvent{
		ID:         uuid.NewString(),
		TenantID:   raw.TenantID,
		RawEventID: raw.ID,
		FlowID:     firstNonEmpty(env.FlowID, classification.FlowID, n.defaultFlowID),
		Channel:    channel,
		EventType:  classification.EventType,
		Confidence: classification.Confidence,
		Entities:   CanonicalEntities(classification.Entities),
		Subject:    env.Subject,
		Body:       env.Body,
		Sender:     env.Sender,
		InputHash:  InputHash(raw.Payload),
		Degraded:   classifyErr != nil,
		CreatedAt:  n.clock().UTC(),
	}
	if event.Degraded {
		event.EventType = EventTypeUnknown
		event.Confidence = nil
		event.Entities = map[string]string{}
	}
	ctx = WithFlowID(ctx, event.FlowID)

	stored, err := n.store.Create(ctx, event)
	if err != nil {
		return NormalizedEvent{}, PersistenceFailure(err, "core: persist normalized event failed")
	}

	if classifyErr != nil {
		n.recorder.RecordError(ctx, ErrorRecord{
			Component: componentNormalizer,
			Operation: "classify",
			Message:   classifyErr.Error(),
			Category:  string(goerrors.CategoryExternal),
			TextCode:  ErrorClassificationFailure,
			Severity:  SeverityWarning,
			Details: map[string]any{
				"raw_event_id": raw.ID,
				"source":       raw.Source,
			},
		})
	}

	outcome := OutcomeSuccess
	if stored.Degraded {
		outcome = OutcomeDegraded
	}
	metadata := map[string]any{
		"raw_event_id": raw.ID,
		"source":       raw.Source,
		"channel":      string(stored.Channel),
		"event_type":   string(stored.EventType),
		"input_hash":   stored.InputHash,
		"degraded":     stored.Degraded,
	}
	if stored.Confidence != nil {
		metadata["confidence"] = *stored.Confidence
	}
	n.recorder.Audit(ctx, AuditRecord{
		TenantID:   stored.TenantID,
		FlowID:     stored.FlowID,
		Action:     AuditEventClassified,
		Component:  componentNormalizer,
		Outcome:    outcome,
		EntityType: "normalized_event",
		EntityID:   stored.ID,
		Metadata:   metadata,
	})
	return stored, nil
}

func (n *Normalizer) classify(ctx context.Context, in ClassifyInput) (Classification, error) {
	if n.classifier == nil {
		return Classification{EventType: EventTypeUnknown}, ClassificationFailure(errors.New("no classifier configured"), nil)
	}
	classifyCtx := ctx
	if n.timeout > 0 {
		var cancel context.CancelFunc
		classifyCtx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}

	startedAt := time.Now()
	result, err := n.classifier.Classify(classifyCtx, in)
	if err == nil && classifyCtx.Err() != nil {
		err = classifyCtx.Err()
	}
	if err == nil && !result.EventType.Valid() {
		err = fmt.Errorf("malformed classification: unsupported event type %q", result.EventType)
	}
	if err == nil && result.Confidence != nil && (*result.Confidence < 0 || *result.Confidence > 1) {
		err = fmt.Errorf("malformed classification: confidence %v out of range", *result.Confidence)
	}
	n.telemetry.observe(ctx, startedAt, "classify", err, map[string]any{
		"tenant_id":  in.TenantID,
		"event_type": string(result.EventType),
	})
	if err != nil {
		return Classification{EventType: EventTypeUnknown}, ClassificationFailure(err, map[string]any{
			"tenant_id": in.TenantID,
			"source":    in.Source,
		})
	}
	return result, nil
}
