package intake

import (
	"fmt"

	intakecommand "github.com/goliatone/go-intake/command"
	intakequery "github.com/goliatone/go-intake/query"
)

type CommandQueryService interface {
	intakecommand.TenantAdminService
	intakecommand.IngestService
	intakecommand.OperatorService
	intakequery.TenantReader
	intakequery.AuditReader
	intakequery.EventReader
}

type Commands struct {
	CreateTenant    *intakecommand.CreateTenantCommand
	UpdateTenant    *intakecommand.UpdateTenantCommand
	DisableTenant   *intakecommand.DisableTenantCommand
	SubmitEvent     *intakecommand.SubmitEventCommand
	ProcessRawEvent *intakecommand.ProcessRawEventCommand
	TransitionQuote *intakecommand.TransitionQuoteCommand
	RequeueAction   *intakecommand.RequeueActionCommand
	DrainActions    *intakecommand.DrainActionsCommand
	RunScheduledJob *intakecommand.RunScheduledJobCommand
}

type Queries struct {
	GetTenant            *intakequery.GetTenantQuery
	ListTenants          *intakequery.ListTenantsQuery
	AuditTrail           *intakequery.AuditTrailQuery
	ListAuditRecords     *intakequery.ListAuditRecordsQuery
	ListErrorRecords     *intakequery.ListErrorRecordsQuery
	ListRawEvents        *intakequery.ListRawEventsQuery
	ListNormalizedEvents *intakequery.ListNormalizedEventsQuery
	ListActions          *intakequery.ListActionsQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	clock       intakecommand.Clock
	auditReader intakequery.AuditReader
	eventReader intakequery.EventReader
}

// WithFacadeClock sets the clock used when drain and job messages carry no timestamp.
func WithFacadeClock(clock intakecommand.Clock) FacadeOption {
	return func(options *facadeOptions) {
		options.clock = clock
	}
}

// WithAuditReader serves audit and error queries from a reader other than the service,
// such as a reporting replica.
func WithAuditReader(reader intakequery.AuditReader) FacadeOption {
	return func(options *facadeOptions) {
		options.auditReader = reader
	}
}

func WithEventReader(reader intakequery.EventReader) FacadeOption {
	return func(options *facadeOptions) {
		options.eventReader = reader
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("intake: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	var audits intakequery.AuditReader = service
	if cfg.auditReader != nil {
		audits = cfg.auditReader
	}
	var events intakequery.EventReader = service
	if cfg.eventReader != nil {
		events = cfg.eventReader
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		CreateTenant:    intakecommand.NewCreateTenantCommand(service),
		UpdateTenant:    intakecommand.NewUpdateTenantCommand(service),
		DisableTenant:   intakecommand.NewDisableTenantCommand(service),
		SubmitEvent:     intakecommand.NewSubmitEventCommand(service),
		ProcessRawEvent: intakecommand.NewProcessRawEventCommand(service),
		TransitionQuote: intakecommand.NewTransitionQuoteCommand(service),
		RequeueAction:   intakecommand.NewRequeueActionCommand(service),
		DrainActions:    intakecommand.NewDrainActionsCommand(service, cfg.clock),
		RunScheduledJob: intakecommand.NewRunScheduledJobCommand(service, cfg.clock),
	}
	facade.queries = Queries{
		GetTenant:            intakequery.NewGetTenantQuery(service),
		ListTenants:          intakequery.NewListTenantsQuery(service),
		AuditTrail:           intakequery.NewAuditTrailQuery(audits),
		ListAuditRecords:     intakequery.NewListAuditRecordsQuery(audits),
		ListErrorRecords:     intakequery.NewListErrorRecordsQuery(audits),
		ListRawEvents:        intakequery.NewListRawEventsQuery(events),
		ListNormalizedEvents: intakequery.NewListNormalizedEventsQuery(events),
		ListActions:          intakequery.NewListActionsQuery(events),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

var _ CommandQueryService = (*Service)(nil)
