package query

import (
	"context"

	"github.com/goliatone/go-intake/core"
)

type TenantReader interface {
	GetTenant(ctx context.Context, id string) (core.Tenant, error)
	ListTenants(ctx context.Context, filter core.TenantFilter) (core.Page[core.Tenant], error)
}

type AuditReader interface {
	AuditTrail(ctx context.Context, tenantID string, dedupKey string, page int, perPage int) (core.Page[core.AuditRecord], error)
	ListAuditRecords(ctx context.Context, filter core.AuditFilter) (core.Page[core.AuditRecord], error)
	ListErrorRecords(ctx context.Context, filter core.ErrorFilter) (core.Page[core.ErrorRecord], error)
}

type EventReader interface {
	ListRawEvents(ctx context.Context, filter core.EventFilter) (core.Page[core.RawEvent], error)
	ListNormalizedEvents(ctx context.Context, filter core.EventFilter) (core.Page[core.NormalizedEvent], error)
	ListActions(ctx context.Context, filter core.ActionFilter) (core.Page[core.Action], error)
}

type GetTenantQuery struct {
	reader TenantReader
}

func NewGetTenantQuery(reader TenantReader) *GetTenantQuery {
	return &GetTenantQuery{reader: reader}
}

func (q *GetTenantQuery) Query(ctx context.Context, msg GetTenantMessage) (core.Tenant, error) {
	if q == nil || q.reader == nil {
		return core.Tenant{}, core.InternalError("query: tenant reader is required")
	}
	return q.reader.GetTenant(ctx, msg.TenantID)
}

type ListTenantsQuery struct {
	reader TenantReader
}

func NewListTenantsQuery(reader TenantReader) *ListTenantsQuery {
	return &ListTenantsQuery{reader: reader}
}

func (q *ListTenantsQuery) Query(ctx context.Context, msg ListTenantsMessage) (core.Page[core.Tenant], error) {
	if q == nil || q.reader == nil {
		return core.Page[core.Tenant]{}, core.InternalError("query: tenant reader is required")
	}
	return q.reader.ListTenants(ctx, msg.Filter)
}

type AuditTrailQuery struct {
	reader AuditReader
}

func NewAuditTrailQuery(reader AuditReader) *AuditTrailQuery {
	return &AuditTrailQuery{reader: reader}
}

func (q *AuditTrailQuery) Query(ctx context.Context, msg AuditTrailMessage) (core.Page[core.AuditRecord], error) {
	if q == nil || q.reader == nil {
		return core.Page[core.AuditRecord]{}, core.InternalError("query: audit reader is required")
	}
	return q.reader.AuditTrail(ctx, msg.TenantID, msg.DedupKey, msg.Page, msg.PerPage)
}

type ListAuditRecordsQuery struct {
	reader AuditReader
}

func NewListAuditRecordsQuery(reader AuditReader) *ListAuditRecordsQuery {
	return &ListAuditRecordsQuery{reader: reader}
}

func (q *ListAuditRecordsQuery) Query(
	ctx context.Context,
	msg ListAuditRecordsMessage,
) (core.Page[core.AuditRecord], error) {
	if q == nil || q.reader == nil {
		return core.Page[core.AuditRecord]{}, core.InternalError("query: audit reader is required")
	}
	return q.reader.ListAuditRecords(ctx, msg.Filter)
}

type ListErrorRecordsQuery struct {
	reader AuditReader
}

func NewListErrorRecordsQuery(reader AuditReader) *ListErrorRecordsQuery {
	return &ListErrorRecordsQuery{reader: reader}
}

func (q *ListErrorRecordsQuery) Query(
	ctx context.Context,
	msg ListErrorRecordsMessage,
) (core.Page[core.ErrorRecord], error) {
	if q == nil || q.reader == nil {
		return core.Page[core.ErrorRecord]{}, core.InternalError("query: audit reader is required")
	}
	return q.reader.ListErrorRecords(ctx, msg.Filter)
}

type ListRawEventsQuery struct {
	reader EventReader
}

func NewListRawEventsQuery(reader EventReader) *ListRawEventsQuery {
	return &ListRawEventsQuery{reader: reader}
}

func (q *ListRawEventsQuery) Query(ctx context.Context, msg ListRawEventsMessage) (core.Page[core.RawEvent], error) {
	if q == nil || q.reader == nil {
		return core.Page[core.RawEvent]{}, core.InternalError("query: event reader is required")
	}
	return q.reader.ListRawEvents(ctx, msg.Filter)
}

type ListNormalizedEventsQuery struct {
	reader EventReader
}

func NewListNormalizedEventsQuery(reader EventReader) *ListNormalizedEventsQuery {
	return &ListNormalizedEventsQuery{reader: reader}
}

func (q *ListNormalizedEventsQuery) Query(
	ctx context.Context,
	msg ListNormalizedEventsMessage,
) (core.Page[core.NormalizedEvent], error) {
	if q == nil || q.reader == nil {
		return core.Page[core.NormalizedEvent]{}, core.InternalError("query: event reader is required")
	}
	return q.reader.ListNormalizedEvents(ctx, msg.Filter)
}

type ListActionsQuery struct {
	reader EventReader
}

func NewListActionsQuery(reader EventReader) *ListActionsQuery {
	return &ListActionsQuery{reader: reader}
}

func (q *ListActionsQuery) Query(ctx context.Context, msg ListActionsMessage) (core.Page[core.Action], error) {
	if q == nil || q.reader == nil {
		return core.Page[core.Action]{}, core.InternalError("query: event reader is required")
	}
	return q.reader.ListActions(ctx, msg.Filter)
}
