package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type Clock func() time.Time

type serviceBuilder struct {
	runtimeConfig   Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	stores          StoreProvider
	repoFactory     RepositoryStoreFactory
	persistence     any
	classifier      Classifier
	senders         map[ActionKind]ActionSender
	alertSender     AlertSender
	auditSinks      []AuditSink
	backoff         BackoffPolicy
	clock           Clock
	flowHandlers    []FlowHandler
	jobEnqueuer     JobEnqueuer
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithStoreProvider(stores StoreProvider) Option {
	return func(b *serviceBuilder) {
		b.stores = stores
	}
}

// WithRepositoryFactory builds the store provider from a persistence client
// when no provider is set explicitly.
func WithRepositoryFactory(factory RepositoryStoreFactory, persistenceClient any) Option {
	return func(b *serviceBuilder) {
		b.repoFactory = factory
		b.persistence = persistenceClient
	}
}

func WithClassifier(classifier Classifier) Option {
	return func(b *serviceBuilder) {
		b.classifier = classifier
	}
}

// WithSender binds the outbound sender used for actions of the given kind.
func WithSender(kind ActionKind, sender ActionSender) Option {
	return func(b *serviceBuilder) {
		if b.senders == nil {
			b.senders = map[ActionKind]ActionSender{}
		}
		b.senders[kind] = sender
	}
}

func WithAlertSender(sender AlertSender) Option {
	return func(b *serviceBuilder) {
		b.alertSender = sender
	}
}

func WithAuditSink(sink AuditSink) Option {
	return func(b *serviceBuilder) {
		if sink != nil {
			b.auditSinks = append(b.auditSinks, sink)
		}
	}
}

func WithBackoffPolicy(policy BackoffPolicy) Option {
	return func(b *serviceBuilder) {
		b.backoff = policy
	}
}

func WithClock(clock Clock) Option {
	return func(b *serviceBuilder) {
		b.clock = clock
	}
}

func WithFlowHandler(handler FlowHandler) Option {
	return func(b *serviceBuilder) {
		b.flowHandlers = append(b.flowHandlers, handler)
	}
}

// WithJobEnqueuer lets scheduled workers hand their runs to an external job queue.
func WithJobEnqueuer(enqueuer JobEnqueuer) Option {
	return func(b *serviceBuilder) {
		b.jobEnqueuer = enqueuer
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("intake", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorMapper:     MapError,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		senders:         map[ActionKind]ActionSender{},
		clock:           time.Now,
	}
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// StaticConfigLoader serves a fixed raw map, mostly useful in tests.
func StaticConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// GoOptionsResolver layers defaults, loaded config and runtime overrides,
// later scopes winning per key.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			ConfigToMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			ConfigToMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			ConfigToMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// ConfigToMap renders cfg as a layer map. Zero values are dropped unless
// includeZero is set so that sparse layers do not mask lower scopes.
func ConfigToMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	putString(layer, "service_name", cfg.ServiceName, includeZero)
	putString(layer, "environment", cfg.Environment, includeZero)
	putString(layer, "default_flow_id", cfg.DefaultFlowID, includeZero)
	putDuration(layer, "classifier_timeout", cfg.ClassifierTimeout, includeZero)

	reconcile := map[string]any{}
	putString(reconcile, "dedup_priority", string(cfg.Reconcile.DedupPriority), includeZero)
	putSection(layer, "reconcile", reconcile)

	backoff := map[string]any{}
	putDuration(backoff, "initial", cfg.Actions.Backoff.Initial, includeZero)
	putDuration(backoff, "max", cfg.Actions.Backoff.Max, includeZero)
	putFloat(backoff, "multiplier", cfg.Actions.Backoff.Multiplier, includeZero)
	putFloat(backoff, "jitter", cfg.Actions.Backoff.Jitter, includeZero)
	if includeZero || len(cfg.Actions.Backoff.Schedule) > 0 {
		backoff["schedule"] = append([]time.Duration(nil), cfg.Actions.Backoff.Schedule...)
	}
	actions := map[string]any{}
	putInt(actions, "max_retries", cfg.Actions.MaxRetries, includeZero)
	putInt(actions, "batch_size", cfg.Actions.BatchSize, includeZero)
	putDuration(actions, "send_timeout", cfg.Actions.SendTimeout, includeZero)
	putDuration(actions, "sending_lease", cfg.Actions.SendingLease, includeZero)
	putSection(actions, "backoff", backoff)
	putSection(layer, "actions", actions)

	pipeline := map[string]any{}
	putInt(pipeline, "workers", cfg.Pipeline.Workers, includeZero)
	putInt(pipeline, "queue_size", cfg.Pipeline.QueueSize, includeZero)
	putDuration(pipeline, "sweep_interval", cfg.Pipeline.SweepInterval, includeZero)
	putDuration(pipeline, "sweep_grace", cfg.Pipeline.SweepGrace, includeZero)
	putInt(pipeline, "sweep_limit", cfg.Pipeline.SweepLimit, includeZero)
	putSection(layer, "pipeline", pipeline)

	workers := map[string]any{}
	putDuration(workers, "drain_interval", cfg.Workers.DrainInterval, includeZero)
	putDuration(workers, "drain_jitter", cfg.Workers.DrainJitter, includeZero)
	putDuration(workers, "reminder_interval", cfg.Workers.ReminderInterval, includeZero)
	putDuration(workers, "reminder_age", cfg.Workers.ReminderAge, includeZero)
	putInt(workers, "reminder_limit", cfg.Workers.ReminderLimit, includeZero)
	putString(workers, "health_report_cron", cfg.Workers.HealthReportCron, includeZero)
	putDuration(workers, "retention_ttl", cfg.Workers.RetentionTTL, includeZero)
	putSection(layer, "workers", workers)

	alerts := map[string]any{}
	putString(alerts, "min_severity", string(cfg.Alerts.MinSeverity), includeZero)
	putDuration(alerts, "timeout", cfg.Alerts.Timeout, includeZero)
	putSection(layer, "alerts", alerts)
	return layer
}

func putString(layer map[string]any, key string, value string, includeZero bool) {
	if includeZero || strings.TrimSpace(value) != "" {
		layer[key] = value
	}
}

func putDuration(layer map[string]any, key string, value time.Duration, includeZero bool) {
	if includeZero || value != 0 {
		layer[key] = value
	}
}

func putInt(layer map[string]any, key string, value int, includeZero bool) {
	if includeZero || value != 0 {
		layer[key] = value
	}
}

func putFloat(layer map[string]any, key string, value float64, includeZero bool) {
	if includeZero || value != 0 {
		layer[key] = value
	}
}

func putSection(layer map[string]any, key string, section map[string]any) {
	if len(section) > 0 {
		layer[key] = section
	}
}
