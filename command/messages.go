package command

import (
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-intake/core"
)

const (
	TypeCreateTenant    = "intake.command.tenant.create"
	TypeUpdateTenant    = "intake.command.tenant.update"
	TypeDisableTenant   = "intake.command.tenant.disable"
	TypeSubmitEvent     = "intake.command.event.submit"
	TypeProcessRawEvent = "intake.command.event.process"
	TypeTransitionQuote = "intake.command.quote.transition"
	TypeRequeueAction   = "intake.command.action.requeue"
	TypeDrainActions    = "intake.command.action.drain"
	TypeRunScheduledJob = "intake.command.job.run"
)

type CreateTenantMessage struct {
	Input core.CreateTenantInput
}

func (CreateTenantMessage) Type() string { return TypeCreateTenant }

func (m CreateTenantMessage) Validate() error {
	if strings.TrimSpace(m.Input.Name) == "" {
		return core.ValidationError("name", "tenant name is required")
	}
	if m.Input.Status != "" && !m.Input.Status.Valid() {
		return core.ValidationError("status", fmt.Sprintf("unsupported tenant status %q", m.Input.Status))
	}
	return nil
}

type UpdateTenantMessage struct {
	TenantID string
	Input    core.UpdateTenantInput
}

func (UpdateTenantMessage) Type() string { return TypeUpdateTenant }

func (m UpdateTenantMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return core.ValidationError("tenant_id", "tenant id is required")
	}
	if m.Input.Status != nil && !m.Input.Status.Valid() {
		return core.ValidationError("status", fmt.Sprintf("unsupported tenant status %q", *m.Input.Status))
	}
	return nil
}

type DisableTenantMessage struct {
	TenantID string
}

func (DisableTenantMessage) Type() string { return TypeDisableTenant }

func (m DisableTenantMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return core.ValidationError("tenant_id", "tenant id is required")
	}
	return nil
}

type SubmitEventMessage struct {
	Request core.SubmitRequest
}

func (SubmitEventMessage) Type() string { return TypeSubmitEvent }

func (m SubmitEventMessage) Validate() error {
	if strings.TrimSpace(m.Request.TenantID) == "" {
		return core.ValidationError("tenant_id", "tenant id is required")
	}
	if strings.TrimSpace(m.Request.Source) == "" {
		return core.ValidationError("source", "source is required")
	}
	if len(m.Request.Payload) == 0 {
		return core.ValidationError("payload", "payload is required")
	}
	return nil
}

type ProcessRawEventMessage struct {
	RawEventID string
}

func (ProcessRawEventMessage) Type() string { return TypeProcessRawEvent }

func (m ProcessRawEventMessage) Validate() error {
	if strings.TrimSpace(m.RawEventID) == "" {
		return core.ValidationError("raw_event_id", "raw event id is required")
	}
	return nil
}

type TransitionQuoteMessage struct {
	TenantID string
	QuoteID  string
	Status   core.QuoteStatus
}

func (TransitionQuoteMessage) Type() string { return TypeTransitionQuote }

func (m TransitionQuoteMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return core.ValidationError("tenant_id", "tenant id is required")
	}
	if strings.TrimSpace(m.QuoteID) == "" {
		return core.ValidationError("quote_id", "quote id is required")
	}
	if !m.Status.Valid() {
		return core.ValidationError("status", fmt.Sprintf("unsupported quote status %q", m.Status))
	}
	return nil
}

type RequeueActionMessage struct {
	TenantID string
	ActionID string
}

func (RequeueActionMessage) Type() string { return TypeRequeueAction }

func (m RequeueActionMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return core.ValidationError("tenant_id", "tenant id is required")
	}
	if strings.TrimSpace(m.ActionID) == "" {
		return core.ValidationError("action_id", "action id is required")
	}
	return nil
}

// DrainActionsMessage runs one action queue drain. A zero At means now.
type DrainActionsMessage struct {
	At time.Time
}

func (DrainActionsMessage) Type() string { return TypeDrainActions }

func (DrainActionsMessage) Validate() error { return nil }

type RunScheduledJobMessage struct {
	JobID string
	At    time.Time
}

func (RunScheduledJobMessage) Type() string { return TypeRunScheduledJob }

func (m RunScheduledJobMessage) Validate() error {
	jobID := strings.TrimSpace(m.JobID)
	if jobID == "" {
		return core.ValidationError("job_id", "job id is required")
	}
	for _, known := range core.JobIDs() {
		if known == jobID {
			return nil
		}
	}
	return core.ValidationError("job_id", fmt.Sprintf("unknown job %q", jobID))
}
