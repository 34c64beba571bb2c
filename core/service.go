package core

import (
	"context"
	"fmt"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Service struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	clock           Clock
	telemetry       telemetry

	stores      StoreProvider
	recorder    *Recorder
	normalizer  *Normalizer
	router      *Router
	reconciler  *Reconciler
	senders     *SenderRegistry
	dispatcher  *ActionDispatcher
	pipeline    *Pipeline
	workers     *WorkerGroup
	jobEnqueuer JobEnqueuer
}

type ServiceDependencies struct {
	Logger          Logger
	LoggerProvider  LoggerProvider
	MetricsRecorder MetricsRecorder
	ErrorMapper     ErrorMapper
	ConfigProvider  ConfigProvider
	OptionsResolver OptionsResolver
	Stores          StoreProvider
	Recorder        *Recorder
	Router          *Router
	Senders         *SenderRegistry
	JobEnqueuer     JobEnqueuer
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("intake", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("intake"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = MapError
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.clock == nil {
		builder.clock = time.Now
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	if builder.stores == nil && builder.repoFactory != nil {
		stores, buildErr := builder.repoFactory.BuildStores(builder.persistence)
		if buildErr != nil {
			return nil, mapBuildError(builder.errorMapper, buildErr)
		}
		builder.stores = stores
	}
	if builder.stores == nil {
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: store provider is required"))
	}

	recorder := NewRecorder(RecorderConfig{
		Audits:       builder.stores.AuditStore(),
		Errors:       builder.stores.ErrorStore(),
		Alerts:       builder.alertSender,
		Sinks:        builder.auditSinks,
		MinSeverity:  finalConfig.Alerts.MinSeverity,
		AlertTimeout: finalConfig.Alerts.Timeout,
		Environment:  finalConfig.Environment,
		Logger:       named(provider, logger, "intake.recorder"),
		Metrics:      builder.metricsRecorder,
		Clock:        builder.clock,
	})

	senders := NewSenderRegistry()
	for kind, sender := range builder.senders {
		if err := senders.Register(kind, sender); err != nil {
			return nil, mapBuildError(builder.errorMapper, err)
		}
	}

	backoff := builder.backoff
	if backoff == nil {
		backoff = BackoffFromConfig(finalConfig.Actions.Backoff)
	}
	dispatcher, err := NewActionDispatcher(ActionDispatcherConfig{
		Store:        builder.stores.ActionStore(),
		Senders:      senders,
		Backoff:      backoff,
		Recorder:     recorder,
		BatchSize:    finalConfig.Actions.BatchSize,
		SendTimeout:  finalConfig.Actions.SendTimeout,
		SendingLease: finalConfig.Actions.SendingLease,
		Logger:       named(provider, logger, "intake.dispatcher"),
		Metrics:      builder.metricsRecorder,
	})
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	reconciler := NewReconciler(ReconcilerConfig{
		Store:         builder.stores.ReconciliationStore(),
		Recorder:      recorder,
		DedupPriority: finalConfig.Reconcile.DedupPriority,
		MaxRetries:    finalConfig.Actions.MaxRetries,
		Clock:         builder.clock,
		Logger:        named(provider, logger, "intake.reconciler"),
		Metrics:       builder.metricsRecorder,
	})

	router := NewRouter(recorder)
	for _, handler := range builder.flowHandlers {
		if err := router.Register(handler); err != nil {
			return nil, mapBuildError(builder.errorMapper, err)
		}
	}
	if err := router.Register(NewQuoteIntakeFlow(DefaultFlowID, reconciler)); err != nil && !HasTextCode(err, ErrorConflict) {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	svc := &Service{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorMapper:     builder.errorMapper,
		configProvider:  builder.configProvider,
		optionsResolver: builder.optionsResolver,
		clock:           builder.clock,
		telemetry:       newTelemetry(logger, builder.metricsRecorder),
		stores:          builder.stores,
		recorder:        recorder,
		normalizer: NewNormalizer(NormalizerConfig{
			Classifier:    builder.classifier,
			Store:         builder.stores.NormalizedEventStore(),
			Recorder:      recorder,
			Timeout:       finalConfig.ClassifierTimeout,
			DefaultFlowID: finalConfig.DefaultFlowID,
			Clock:         builder.clock,
			Logger:        named(provider, logger, "intake.normalizer"),
			Metrics:       builder.metricsRecorder,
		}),
		router:      router,
		reconciler:  reconciler,
		senders:     senders,
		dispatcher:  dispatcher,
		jobEnqueuer: builder.jobEnqueuer,
	}
	svc.pipeline = NewPipeline(PipelineOptions{
		Workers:   finalConfig.Pipeline.Workers,
		QueueSize: finalConfig.Pipeline.QueueSize,
		Processor: func(ctx context.Context, job PipelineJob) error {
			_, err := svc.ProcessRawEvent(ctx, job.RawEventID)
			return err
		},
		Logger:  named(provider, logger, "intake.pipeline"),
		Metrics: builder.metricsRecorder,
	})
	workers, err := svc.buildWorkers(provider, logger)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	svc.workers = workers
	return svc, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func named(provider LoggerProvider, fallback Logger, name string) Logger {
	if provider != nil {
		if logger := provider.GetLogger(name); logger != nil {
			return glog.Ensure(logger)
		}
	}
	return fallback
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	return mapBuildError(s.errorMapper, err)
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:          s.logger,
		LoggerProvider:  s.loggerProvider,
		MetricsRecorder: s.metricsRecorder,
		ErrorMapper:     s.errorMapper,
		ConfigProvider:  s.configProvider,
		OptionsResolver: s.optionsResolver,
		Stores:          s.stores,
		Recorder:        s.recorder,
		Router:          s.router,
		Senders:         s.senders,
		JobEnqueuer:     s.jobEnqueuer,
	}
}

func (s *Service) Recorder() *Recorder { return s.recorder }

func (s *Service) Router() *Router { return s.router }

func (s *Service) Workers() *WorkerGroup { return s.workers }

func (s *Service) Pipeline() *Pipeline { return s.pipeline }

// Start launches the processing pool and the periodic workers.
func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return InternalError("core: service is nil")
	}
	s.pipeline.Start(ctx)
	if err := s.workers.Start(ctx); err != nil {
		_ = s.pipeline.Stop(ctx)
		return err
	}
	s.telemetry.info(ctx, "intake service started", map[string]any{
		"service":  s.config.ServiceName,
		"flows":    s.router.FlowIDs(),
		"workers":  len(s.workers.Workers()),
		"pipeline": s.config.Pipeline.Workers,
	})
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}
	workerErr := s.workers.Stop(ctx)
	pipelineErr := s.pipeline.Stop(ctx)
	if workerErr != nil {
		return workerErr
	}
	return pipelineErr
}

// runStage runs one pipeline stage, observing it and recording any failure.
func (s *Service) runStage(
	ctx context.Context,
	component string,
	operation string,
	fields map[string]any,
	fn func(ctx context.Context) error,
) error {
	startedAt := time.Now()
	err := fn(ctx)
	s.telemetry.observe(ctx, startedAt, operation, err, fields)
	if err == nil {
		return nil
	}
	mapped := s.mapError(err)
	s.recorder.RecordFailure(ctx, component, operation, mapped, fields)
	return mapped
}
