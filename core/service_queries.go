package core

import (
	"context"
	"strings"
	"time"
)

func (s *Service) ListAuditRecords(ctx context.Context, filter AuditFilter) (Page[AuditRecord], error) {
	if err := validateRange(filter.From, filter.To); err != nil {
		return Page[AuditRecord]{}, err
	}
	page, err := s.stores.AuditStore().List(ctx, filter)
	if err != nil {
		return Page[AuditRecord]{}, s.mapError(err)
	}
	return page, nil
}

func (s *Service) ListErrorRecords(ctx context.Context, filter ErrorFilter) (Page[ErrorRecord], error) {
	if err := validateRange(filter.From, filter.To); err != nil {
		return Page[ErrorRecord]{}, err
	}
	if filter.Severity != "" && filter.Severity.rank() == 0 {
		return Page[ErrorRecord]{}, ValidationError("severity", "unsupported severity")
	}
	page, err := s.stores.ErrorStore().List(ctx, filter)
	if err != nil {
		return Page[ErrorRecord]{}, s.mapError(err)
	}
	return page, nil
}

func (s *Service) ListRawEvents(ctx context.Context, filter EventFilter) (Page[RawEvent], error) {
	if err := validateRange(filter.From, filter.To); err != nil {
		return Page[RawEvent]{}, err
	}
	page, err := s.stores.RawEventStore().List(ctx, filter)
	if err != nil {
		return Page[RawEvent]{}, s.mapError(err)
	}
	return page, nil
}

func (s *Service) ListNormalizedEvents(ctx context.Context, filter EventFilter) (Page[NormalizedEvent], error) {
	if err := validateRange(filter.From, filter.To); err != nil {
		return Page[NormalizedEvent]{}, err
	}
	if filter.EventType != "" && !filter.EventType.Valid() {
		return Page[NormalizedEvent]{}, ValidationError("event_type", "unsupported event type")
	}
	page, err := s.stores.NormalizedEventStore().List(ctx, filter)
	if err != nil {
		return Page[NormalizedEvent]{}, s.mapError(err)
	}
	return page, nil
}

func (s *Service) ListActions(ctx context.Context, filter ActionFilter) (Page[Action], error) {
	page, err := s.stores.ActionStore().List(ctx, filter)
	if err != nil {
		return Page[Action]{}, s.mapError(err)
	}
	return page, nil
}

// AuditTrail lists every audit record correlated with one dedup key, oldest first.
func (s *Service) AuditTrail(ctx context.Context, tenantID string, dedupKey string, page int, perPage int) (Page[AuditRecord], error) {
	dedupKey = strings.TrimSpace(dedupKey)
	if dedupKey == "" {
		return Page[AuditRecord]{}, ValidationError("dedup_key", "dedup key is required")
	}
	return s.ListAuditRecords(ctx, AuditFilter{
		TenantID: strings.TrimSpace(tenantID),
		DedupKey: dedupKey,
		Page:     page,
		PerPage:  perPage,
	})
}

func validateRange(from *time.Time, to *time.Time) error {
	if from != nil && to != nil && to.Before(*from) {
		return ValidationError("to", "end of range must not be before its start")
	}
	return nil
}
