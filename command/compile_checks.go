package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-intake/core"
)

var (
	_ gocmd.Commander[CreateTenantMessage]    = (*CreateTenantCommand)(nil)
	_ gocmd.Commander[UpdateTenantMessage]    = (*UpdateTenantCommand)(nil)
	_ gocmd.Commander[DisableTenantMessage]   = (*DisableTenantCommand)(nil)
	_ gocmd.Commander[SubmitEventMessage]     = (*SubmitEventCommand)(nil)
	_ gocmd.Commander[ProcessRawEventMessage] = (*ProcessRawEventCommand)(nil)
	_ gocmd.Commander[TransitionQuoteMessage] = (*TransitionQuoteCommand)(nil)
	_ gocmd.Commander[RequeueActionMessage]   = (*RequeueActionCommand)(nil)
	_ gocmd.Commander[DrainActionsMessage]    = (*DrainActionsCommand)(nil)
	_ gocmd.Commander[RunScheduledJobMessage] = (*RunScheduledJobCommand)(nil)

	_ TenantAdminService = (*core.Service)(nil)
	_ IngestService      = (*core.Service)(nil)
	_ OperatorService    = (*core.Service)(nil)
)
