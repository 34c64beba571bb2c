package command

import (
	"context"
	"time"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-intake/core"
)

type TenantAdminService interface {
	CreateTenant(ctx context.Context, in core.CreateTenantInput) (core.Tenant, error)
	UpdateTenant(ctx context.Context, id string, in core.UpdateTenantInput) (core.Tenant, error)
	DisableTenant(ctx context.Context, id string) (core.Tenant, error)
}

type IngestService interface {
	Submit(ctx context.Context, req core.SubmitRequest) (core.SubmitResult, error)
	ProcessRawEvent(ctx context.Context, rawEventID string) (core.ProcessResult, error)
}

type OperatorService interface {
	TransitionQuote(ctx context.Context, tenantID string, quoteID string, to core.QuoteStatus) (core.Quote, error)
	RequeueAction(ctx context.Context, tenantID string, actionID string) (core.Action, error)
	DrainActions(ctx context.Context, now time.Time) (core.DrainStats, error)
	RunJob(ctx context.Context, jobID string, now time.Time) error
}

type Clock func() time.Time

type CreateTenantCommand struct {
	service TenantAdminService
}

func NewCreateTenantCommand(service TenantAdminService) *CreateTenantCommand {
	return &CreateTenantCommand{service: service}
}

func (c *CreateTenantCommand) Execute(ctx context.Context, msg CreateTenantMessage) error {
	if c == nil || c.service == nil {
		return core.InternalError("command: tenant service is required")
	}
	out, err := c.service.CreateTenant(ctx, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type UpdateTenantCommand struct {
	service TenantAdminService
}

func NewUpdateTenantCommand(service TenantAdminService) *UpdateTenantCommand {
	return &UpdateTenantCommand{service: service}
}

func (c *UpdateTenantCommand) Execute(ctx context.Context, msg UpdateTenantMessage) error {
	if c == nil || c.service == nil {
		return core.InternalError("command: tenant service is required")
	}
	out, err := c.service.UpdateTenant(ctx, msg.TenantID, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DisableTenantCommand struct {
	service TenantAdminService
}

func NewDisableTenantCommand(service TenantAdminService) *DisableTenantCommand {
	return &DisableTenantCommand{service: service}
}

func (c *DisableTenantCommand) Execute(ctx context.Context, msg DisableTenantMessage) error {
	if c == nil || c.service == nil {
		return core.InternalError("command: tenant service is required")
	}
	out, err := c.service.DisableTenant(ctx, msg.TenantID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SubmitEventCommand struct {
	service IngestService
}

func NewSubmitEventCommand(service IngestService) *SubmitEventCommand {
	return &SubmitEventCommand{service: service}
}

func (c *SubmitEventCommand) Execute(ctx context.Context, msg SubmitEventMessage) error {
	if c == nil || c.service == nil {
		return core.InternalError("command: ingest service is required")
	}
	out, err := c.service.Submit(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ProcessRawEventCommand struct {
	service IngestService
}

func NewProcessRawEventCommand(service IngestService) *ProcessRawEventCommand {
	return &ProcessRawEventCommand{service: service}
}

func (c *ProcessRawEventCommand) Execute(ctx context.Context, msg ProcessRawEventMessage) error {
	if c == nil || c.service == nil {
		return core.InternalError("command: ingest service is required")
	}
	out, err := c.service.ProcessRawEvent(ctx, msg.RawEventID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type TransitionQuoteCommand struct {
	service OperatorService
}

func NewTransitionQuoteCommand(service OperatorService) *TransitionQuoteCommand {
	return &TransitionQuoteCommand{service: service}
}

func (c *TransitionQuoteCommand) Execute(ctx context.Context, msg TransitionQuoteMessage) error {
	if c == nil || c.service == nil {
		return core.InternalError("command: operator service is required")
	}
	out, err := c.service.TransitionQuote(ctx, msg.TenantID, msg.QuoteID, msg.Status)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RequeueActionCommand struct {
	service OperatorService
}

func NewRequeueActionCommand(service OperatorService) *RequeueActionCommand {
	return &RequeueActionCommand{service: service}
}

func (c *RequeueActionCommand) Execute(ctx context.Context, msg RequeueActionMessage) error {
	if c == nil || c.service == nil {
		return core.InternalError("command: operator service is required")
	}
	out, err := c.service.RequeueAction(ctx, msg.TenantID, msg.ActionID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DrainActionsCommand struct {
	service OperatorService
	clock   Clock
}

func NewDrainActionsCommand(service OperatorService, clock Clock) *DrainActionsCommand {
	if clock == nil {
		clock = time.Now
	}
	return &DrainActionsCommand{service: service, clock: clock}
}

func (c *DrainActionsCommand) Execute(ctx context.Context, msg DrainActionsMessage) error {
	if c == nil || c.service == nil {
		return core.InternalError("command: operator service is required")
	}
	at := msg.At
	if at.IsZero() {
		at = c.clock()
	}
	out, err := c.service.DrainActions(ctx, at.UTC())
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RunScheduledJobCommand struct {
	service OperatorService
	clock   Clock
}

func NewRunScheduledJobCommand(service OperatorService, clock Clock) *RunScheduledJobCommand {
	if clock == nil {
		clock = time.Now
	}
	return &RunScheduledJobCommand{service: service, clock: clock}
}

func (c *RunScheduledJobCommand) Execute(ctx context.Context, msg RunScheduledJobMessage) error {
	if c == nil || c.service == nil {
		return core.InternalError("command: operator service is required")
	}
	at := msg.At
	if at.IsZero() {
		at = c.clock()
	}
	return c.service.RunJob(ctx, msg.JobID, at.UTC())
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
