package sqlstore

import (
	"strings"
	"time"

	"github.com/goliatone/go-intake/core"
)

func newTenantRecord(in core.CreateTenantInput, now time.Time) *tenantRecord {
	status := in.Status
	if status == "" {
		status = core.TenantStatusActive
	}
	return &tenantRecord{
		ID:          strings.TrimSpace(in.ID),
		Name:        strings.TrimSpace(in.Name),
		APIKey:      strings.TrimSpace(in.APIKey),
		ActiveFlows: copyStrings(in.ActiveFlows),
		Status:      string(status),
		Metadata:    copyAnyMap(in.Metadata),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (r *tenantRecord) toDomain() core.Tenant {
	return core.Tenant{
		ID:          r.ID,
		Name:        r.Name,
		APIKey:      r.APIKey,
		ActiveFlows: copyStrings(r.ActiveFlows),
		Status:      core.TenantStatus(r.Status),
		Metadata:    copyAnyMap(r.Metadata),
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

func (r *rawEventRecord) toDomain() core.RawEvent {
	return core.RawEvent{
		ID:        r.ID,
		TenantID:  r.TenantID,
		Source:    r.Source,
		DedupKey:  r.DedupKey,
		Payload:   append([]byte(nil), r.Payload...),
		Processed: r.Processed,
		RequestID: r.RequestID,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

func newNormalizedEventRecord(event core.NormalizedEvent, now time.Time) *normalizedEventRecord {
	createdAt := event.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}
	record := &normalizedEventRecord{
		ID:         strings.TrimSpace(event.ID),
		TenantID:   strings.TrimSpace(event.TenantID),
		RawEventID: strings.TrimSpace(event.RawEventID),
		FlowID:     event.FlowID,
		Channel:    string(event.Channel),
		EventType:  string(event.EventType),
		Entities:   copyStringMap(event.Entities),
		Subject:    event.Subject,
		Body:       event.Body,
		Sender:     event.Sender,
		InputHash:  event.InputHash,
		Degraded:   event.Degraded,
		CreatedAt:  createdAt,
	}
	if event.Confidence != nil {
		value := *event.Confidence
		record.Confidence = &value
	}
	return record
}

func (r *normalizedEventRecord) toDomain() core.NormalizedEvent {
	event := core.NormalizedEvent{
		ID:         r.ID,
		TenantID:   r.TenantID,
		RawEventID: r.RawEventID,
		FlowID:     r.FlowID,
		Channel:    core.ChannelKind(r.Channel),
		EventType:  core.EventType(r.EventType),
		Entities:   copyStringMap(r.Entities),
		Subject:    r.Subject,
		Body:       r.Body,
		Sender:     r.Sender,
		InputHash:  r.InputHash,
		Degraded:   r.Degraded,
		CreatedAt:  r.CreatedAt.UTC(),
	}
	if r.Confidence != nil {
		value := *r.Confidence
		event.Confidence = &value
	}
	return event
}

func newCustomerRecord(customer core.Customer, now time.Time) *customerRecord {
	record := &customerRecord{
		ID:        strings.TrimSpace(customer.ID),
		TenantID:  strings.TrimSpace(customer.TenantID),
		Name:      customer.Name,
		Email:     customer.Email,
		Phone:     customer.Phone,
		Address:   customer.Address,
		Notes:     customer.Notes,
		PhoneKey:  customer.PhoneKey,
		EmailKey:  customer.EmailKey,
		DedupKey:  customer.DedupKey,
		CreatedAt: customer.CreatedAt.UTC(),
		UpdatedAt: customer.UpdatedAt.UTC(),
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = now
	}
	return record
}

func (r *customerRecord) toDomain() core.Customer {
	return core.Customer{
		ID:        r.ID,
		TenantID:  r.TenantID,
		Name:      r.Name,
		Email:     r.Email,
		Phone:     r.Phone,
		Address:   r.Address,
		Notes:     r.Notes,
		PhoneKey:  r.PhoneKey,
		EmailKey:  r.EmailKey,
		DedupKey:  r.DedupKey,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

func newQuoteRecord(quote core.Quote, now time.Time) *quoteRecord {
	status := quote.Status
	if status == "" {
		status = core.QuoteStatusOpen
	}
	version := quote.Version
	if version <= 0 {
		version = 1
	}
	record := &quoteRecord{
		ID:                strings.TrimSpace(quote.ID),
		TenantID:          strings.TrimSpace(quote.TenantID),
		CustomerID:        strings.TrimSpace(quote.CustomerID),
		NormalizedEventID: strings.TrimSpace(quote.NormalizedEventID),
		Subject:           quote.Subject,
		Data:              copyAnyMap(quote.Data),
		Status:            string(status),
		Version:           version,
		RemindedAt:        cloneTimePointer(quote.RemindedAt),
		CreatedAt:         quote.CreatedAt.UTC(),
		UpdatedAt:         quote.UpdatedAt.UTC(),
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = now
	}
	return record
}

func (r *quoteRecord) toDomain() core.Quote {
	return core.Quote{
		ID:                r.ID,
		TenantID:          r.TenantID,
		CustomerID:        r.CustomerID,
		NormalizedEventID: r.NormalizedEventID,
		Subject:           r.Subject,
		Data:              copyAnyMap(r.Data),
		Status:            core.QuoteStatus(r.Status),
		Version:           r.Version,
		RemindedAt:        cloneTimePointer(r.RemindedAt),
		CreatedAt:         r.CreatedAt.UTC(),
		UpdatedAt:         r.UpdatedAt.UTC(),
	}
}

func newActionRecord(action core.Action, now time.Time) *actionRecord {
	status := action.Status
	if status == "" {
		status = core.ActionStatusPending
	}
	record := &actionRecord{
		ID:                strings.TrimSpace(action.ID),
		TenantID:          strings.TrimSpace(action.TenantID),
		NormalizedEventID: strings.TrimSpace(action.NormalizedEventID),
		QuoteID:           strings.TrimSpace(action.QuoteID),
		Kind:              string(action.Kind),
		Payload:           copyAnyMap(action.Payload),
		Status:            string(status),
		RetryCount:        action.RetryCount,
		MaxRetries:        action.MaxRetries,
		NextAttemptAt:     cloneTimePointer(action.NextAttemptAt),
		LastError:         action.LastError,
		CreatedAt:         action.CreatedAt.UTC(),
		UpdatedAt:         action.UpdatedAt.UTC(),
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = now
	}
	return record
}

func (r *actionRecord) toDomain() core.Action {
	return core.Action{
		ID:                r.ID,
		TenantID:          r.TenantID,
		NormalizedEventID: r.NormalizedEventID,
		QuoteID:           r.QuoteID,
		Kind:              core.ActionKind(r.Kind),
		Payload:           copyAnyMap(r.Payload),
		Status:            core.ActionStatus(r.Status),
		RetryCount:        r.RetryCount,
		MaxRetries:        r.MaxRetries,
		NextAttemptAt:     cloneTimePointer(r.NextAttemptAt),
		LastError:         r.LastError,
		ClaimToken:        r.ClaimToken,
		CreatedAt:         r.CreatedAt.UTC(),
		UpdatedAt:         r.UpdatedAt.UTC(),
	}
}

func newAuditRecord(record core.AuditRecord, now time.Time) *auditRecord {
	createdAt := record.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}
	return &auditRecord{
		ID:         strings.TrimSpace(record.ID),
		TenantID:   record.TenantID,
		RequestID:  record.RequestID,
		FlowID:     record.FlowID,
		DedupKey:   record.DedupKey,
		Action:     strings.TrimSpace(record.Action),
		Component:  strings.TrimSpace(record.Component),
		Outcome:    strings.TrimSpace(record.Outcome),
		EntityType: record.EntityType,
		EntityID:   record.EntityID,
		Metadata:   copyAnyMap(record.Metadata),
		CreatedAt:  createdAt,
	}
}

func (r *auditRecord) toDomain() core.AuditRecord {
	return core.AuditRecord{
		ID:         r.ID,
		TenantID:   r.TenantID,
		RequestID:  r.RequestID,
		FlowID:     r.FlowID,
		DedupKey:   r.DedupKey,
		Action:     r.Action,
		Component:  r.Component,
		Outcome:    r.Outcome,
		EntityType: r.EntityType,
		EntityID:   r.EntityID,
		Metadata:   copyAnyMap(r.Metadata),
		CreatedAt:  r.CreatedAt.UTC(),
	}
}

func newErrorRecord(record core.ErrorRecord, now time.Time) *errorRecord {
	createdAt := record.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}
	severity := record.Severity
	if severity == "" {
		severity = core.SeverityError
	}
	return &errorRecord{
		ID:         strings.TrimSpace(record.ID),
		TenantID:   record.TenantID,
		RequestID:  record.RequestID,
		FlowID:     record.FlowID,
		DedupKey:   record.DedupKey,
		Component:  strings.TrimSpace(record.Component),
		Operation:  strings.TrimSpace(record.Operation),
		Message:    record.Message,
		Category:   record.Category,
		TextCode:   record.TextCode,
		Severity:   string(severity),
		Details:    copyAnyMap(record.Details),
		Stacktrace: record.Stacktrace,
		CreatedAt:  createdAt,
	}
}

func (r *errorRecord) toDomain() core.ErrorRecord {
	return core.ErrorRecord{
		ID:         r.ID,
		TenantID:   r.TenantID,
		RequestID:  r.RequestID,
		FlowID:     r.FlowID,
		DedupKey:   r.DedupKey,
		Component:  r.Component,
		Operation:  r.Operation,
		Message:    r.Message,
		Category:   r.Category,
		TextCode:   r.TextCode,
		Severity:   core.ErrorSeverity(r.Severity),
		Details:    copyAnyMap(r.Details),
		Stacktrace: r.Stacktrace,
		CreatedAt:  r.CreatedAt.UTC(),
	}
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func copyStringMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func copyStrings(in []string) []string {
	out := make([]string, 0, len(in))
	for _, value := range in {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func cloneTimePointer(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}
