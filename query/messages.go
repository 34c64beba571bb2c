package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-intake/core"
)

const (
	TypeGetTenant            = "intake.query.tenant.get"
	TypeListTenants          = "intake.query.tenant.list"
	TypeAuditTrail           = "intake.query.audit.trail"
	TypeListAuditRecords     = "intake.query.audit.list"
	TypeListErrorRecords     = "intake.query.error.list"
	TypeListRawEvents        = "intake.query.raw_event.list"
	TypeListNormalizedEvents = "intake.query.normalized_event.list"
	TypeListActions          = "intake.query.action.list"
)

type GetTenantMessage struct {
	TenantID string
}

func (GetTenantMessage) Type() string { return TypeGetTenant }

func (m GetTenantMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return core.ValidationError("tenant_id", "tenant id is required")
	}
	return nil
}

type ListTenantsMessage struct {
	Filter core.TenantFilter
}

func (ListTenantsMessage) Type() string { return TypeListTenants }

func (m ListTenantsMessage) Validate() error {
	if m.Filter.Status != "" && !m.Filter.Status.Valid() {
		return core.ValidationError("status", "unsupported tenant status")
	}
	return validatePaging(m.Filter.Page, m.Filter.PerPage)
}

// AuditTrailMessage asks for every audit record of one ingested event.
type AuditTrailMessage struct {
	TenantID string
	DedupKey string
	Page     int
	PerPage  int
}

func (AuditTrailMessage) Type() string { return TypeAuditTrail }

func (m AuditTrailMessage) Validate() error {
	if strings.TrimSpace(m.DedupKey) == "" {
		return core.ValidationError("dedup_key", "dedup key is required")
	}
	return validatePaging(m.Page, m.PerPage)
}

type ListAuditRecordsMessage struct {
	Filter core.AuditFilter
}

func (ListAuditRecordsMessage) Type() string { return TypeListAuditRecords }

func (m ListAuditRecordsMessage) Validate() error {
	if err := validateRange(m.Filter.From, m.Filter.To); err != nil {
		return err
	}
	return validatePaging(m.Filter.Page, m.Filter.PerPage)
}

type ListErrorRecordsMessage struct {
	Filter core.ErrorFilter
}

func (ListErrorRecordsMessage) Type() string { return TypeListErrorRecords }

func (m ListErrorRecordsMessage) Validate() error {
	if err := validateRange(m.Filter.From, m.Filter.To); err != nil {
		return err
	}
	return validatePaging(m.Filter.Page, m.Filter.PerPage)
}

type ListRawEventsMessage struct {
	Filter core.EventFilter
}

func (ListRawEventsMessage) Type() string { return TypeListRawEvents }

func (m ListRawEventsMessage) Validate() error {
	if err := validateRange(m.Filter.From, m.Filter.To); err != nil {
		return err
	}
	return validatePaging(m.Filter.Page, m.Filter.PerPage)
}

type ListNormalizedEventsMessage struct {
	Filter core.EventFilter
}

func (ListNormalizedEventsMessage) Type() string { return TypeListNormalizedEvents }

func (m ListNormalizedEventsMessage) Validate() error {
	if m.Filter.EventType != "" && !m.Filter.EventType.Valid() {
		return core.ValidationError("event_type", "unsupported event type")
	}
	if err := validateRange(m.Filter.From, m.Filter.To); err != nil {
		return err
	}
	return validatePaging(m.Filter.Page, m.Filter.PerPage)
}

type ListActionsMessage struct {
	Filter core.ActionFilter
}

func (ListActionsMessage) Type() string { return TypeListActions }

func (m ListActionsMessage) Validate() error {
	return validatePaging(m.Filter.Page, m.Filter.PerPage)
}

func validatePaging(page int, perPage int) error {
	if page < 0 {
		return core.ValidationError("page", "page must be >= 0")
	}
	if perPage < 0 || perPage > core.MaxPerPage {
		return core.ValidationError("per_page", fmt.Sprintf("per_page must be within [0,%d]", core.MaxPerPage))
	}
	return nil
}

func validateRange(from *time.Time, to *time.Time) error {
	if from != nil && to != nil && to.Before(*from) {
		return core.ValidationError("to", "end of range must not be before its start")
	}
	return nil
}
