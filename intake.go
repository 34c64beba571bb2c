package intake

import "github.com/goliatone/go-intake/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies

type Tenant = core.Tenant
type CreateTenantInput = core.CreateTenantInput
type UpdateTenantInput = core.UpdateTenantInput

type SubmitRequest = core.SubmitRequest
type SubmitResult = core.SubmitResult
type ProcessResult = core.ProcessResult

type Classifier = core.Classifier
type ClassifierFunc = core.ClassifierFunc
type ActionSender = core.ActionSender
type ActionSenderFunc = core.ActionSenderFunc
type AlertSender = core.AlertSender
type AuditSink = core.AuditSink
type FlowHandler = core.FlowHandler

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorMapper       = core.WithErrorMapper
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithStoreProvider     = core.WithStoreProvider
	WithRepositoryFactory = core.WithRepositoryFactory
	WithClassifier        = core.WithClassifier
	WithSender            = core.WithSender
	WithAlertSender       = core.WithAlertSender
	WithAuditSink         = core.WithAuditSink
	WithBackoffPolicy     = core.WithBackoffPolicy
	WithClock             = core.WithClock
	WithFlowHandler       = core.WithFlowHandler
	WithJobEnqueuer       = core.WithJobEnqueuer
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}
