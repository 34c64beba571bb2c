package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-intake/core"
)

var (
	_ gocmd.Querier[GetTenantMessage, core.Tenant]                                = (*GetTenantQuery)(nil)
	_ gocmd.Querier[ListTenantsMessage, core.Page[core.Tenant]]                   = (*ListTenantsQuery)(nil)
	_ gocmd.Querier[AuditTrailMessage, core.Page[core.AuditRecord]]               = (*AuditTrailQuery)(nil)
	_ gocmd.Querier[ListAuditRecordsMessage, core.Page[core.AuditRecord]]         = (*ListAuditRecordsQuery)(nil)
	_ gocmd.Querier[ListErrorRecordsMessage, core.Page[core.ErrorRecord]]         = (*ListErrorRecordsQuery)(nil)
	_ gocmd.Querier[ListRawEventsMessage, core.Page[core.RawEvent]]               = (*ListRawEventsQuery)(nil)
	_ gocmd.Querier[ListNormalizedEventsMessage, core.Page[core.NormalizedEvent]] = (*ListNormalizedEventsQuery)(nil)
	_ gocmd.Querier[ListActionsMessage, core.Page[core.Action]]                   = (*ListActionsQuery)(nil)

	_ TenantReader = (*core.Service)(nil)
	_ AuditReader  = (*core.Service)(nil)
	_ EventReader  = (*core.Service)(nil)
)
