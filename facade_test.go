package intake

import (
	"context"
	"testing"
	"time"

	intakecommand "github.com/goliatone/go-intake/command"
	"github.com/goliatone/go-intake/core"
	intakequery "github.com/goliatone/go-intake/query"
)

func TestNewFacade_WiresCommandsAndQueries(t *testing.T) {
	facade, err := NewFacade(&stubFacadeService{})
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	commands := facade.Commands()
	if commands.CreateTenant == nil || commands.SubmitEvent == nil || commands.RunScheduledJob == nil {
		t.Fatalf("expected command handlers to be wired")
	}
	queries := facade.Queries()
	if queries.GetTenant == nil || queries.AuditTrail == nil || queries.ListActions == nil {
		t.Fatalf("expected query handlers to be wired")
	}
	if facade.Service() == nil {
		t.Fatalf("expected facade to expose its service")
	}
}

func TestNewFacade_RequiresService(t *testing.T) {
	if _, err := NewFacade(nil); err == nil {
		t.Fatalf("expected missing service to fail")
	}
	var facade *Facade
	if facade.Service() != nil || facade.Commands().SubmitEvent != nil {
		t.Fatalf("expected nil facade to return zero values")
	}
}

func TestFacade_CommandAndQueryDelegation(t *testing.T) {
	svc := &stubFacadeService{}
	fixed := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	facade, err := NewFacade(svc, WithFacadeClock(func() time.Time { return fixed }))
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	ctx := context.Background()

	if err := facade.Commands().SubmitEvent.Execute(ctx, intakecommand.SubmitEventMessage{
		Request: core.SubmitRequest{TenantID: "tenant_1", Source: "webchat", DedupKey: "msg-1", Payload: []byte(`{}`)},
	}); err != nil {
		t.Fatalf("execute submit: %v", err)
	}
	if svc.lastSubmit.TenantID != "tenant_1" || svc.lastSubmit.DedupKey != "msg-1" {
		t.Fatalf("unexpected submit delegation payload: %+v", svc.lastSubmit)
	}

	if err := facade.Commands().RunScheduledJob.Execute(ctx, intakecommand.RunScheduledJobMessage{
		JobID: core.JobDrainActions,
	}); err != nil {
		t.Fatalf("execute run job: %v", err)
	}
	if svc.lastJobID != core.JobDrainActions || !svc.lastJobAt.Equal(fixed) {
		t.Fatalf("expected facade clock on job run, got %q at %s", svc.lastJobID, svc.lastJobAt)
	}

	tenant, err := facade.Queries().GetTenant.Query(ctx, intakequery.GetTenantMessage{TenantID: "tenant_1"})
	if err != nil {
		t.Fatalf("query tenant: %v", err)
	}
	if tenant.ID != "tenant_1" {
		t.Fatalf("unexpected tenant query result: %+v", tenant)
	}

	trail, err := facade.Queries().AuditTrail.Query(ctx, intakequery.AuditTrailMessage{TenantID: "tenant_1", DedupKey: "msg-1"})
	if err != nil {
		t.Fatalf("query audit trail: %v", err)
	}
	if len(trail.Items) != 1 || trail.Items[0].DedupKey != "msg-1" {
		t.Fatalf("unexpected audit trail: %+v", trail)
	}
}

func TestFacade_ReaderOverrides(t *testing.T) {
	svc := &stubFacadeService{}
	replica := &stubFacadeService{auditTag: "replica"}
	facade, err := NewFacade(svc, WithAuditReader(replica), WithEventReader(replica))
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	ctx := context.Background()

	page, err := facade.Queries().ListAuditRecords.Query(ctx, intakequery.ListAuditRecordsMessage{})
	if err != nil {
		t.Fatalf("list audit records: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].Component != "replica" {
		t.Fatalf("expected audit reader override, got %+v", page.Items)
	}
	if _, err := facade.Queries().ListActions.Query(ctx, intakequery.ListActionsMessage{}); err != nil {
		t.Fatalf("list actions: %v", err)
	}
	if replica.actionListCalls != 1 || svc.actionListCalls != 0 {
		t.Fatalf("expected event reader override, got replica=%d service=%d", replica.actionListCalls, svc.actionListCalls)
	}
}

type stubFacadeService struct {
	auditTag        string
	lastSubmit      core.SubmitRequest
	lastJobID       string
	lastJobAt       time.Time
	actionListCalls int
}

func (s *stubFacadeService) CreateTenant(_ context.Context, in core.CreateTenantInput) (core.Tenant, error) {
	return core.Tenant{ID: "tenant_new", Name: in.Name, Status: core.TenantStatusActive}, nil
}

func (s *stubFacadeService) UpdateTenant(_ context.Context, id string, _ core.UpdateTenantInput) (core.Tenant, error) {
	return core.Tenant{ID: id}, nil
}

func (s *stubFacadeService) DisableTenant(_ context.Context, id string) (core.Tenant, error) {
	return core.Tenant{ID: id, Status: core.TenantStatusDisabled}, nil
}

func (s *stubFacadeService) Submit(_ context.Context, req core.SubmitRequest) (core.SubmitResult, error) {
	s.lastSubmit = req
	return core.SubmitResult{RawEventID: "raw_1", DedupKey: req.DedupKey, Queued: true}, nil
}

func (s *stubFacadeService) ProcessRawEvent(_ context.Context, rawEventID string) (core.ProcessResult, error) {
	return core.ProcessResult{RawEventID: rawEventID}, nil
}

func (s *stubFacadeService) TransitionQuote(_ context.Context, tenantID string, quoteID string, to core.QuoteStatus) (core.Quote, error) {
	return core.Quote{ID: quoteID, TenantID: tenantID, Status: to}, nil
}

func (s *stubFacadeService) RequeueAction(_ context.Context, tenantID string, actionID string) (core.Action, error) {
	return core.Action{ID: actionID, TenantID: tenantID, Status: core.ActionStatusPending}, nil
}

func (s *stubFacadeService) DrainActions(context.Context, time.Time) (core.DrainStats, error) {
	return core.DrainStats{}, nil
}

func (s *stubFacadeService) RunJob(_ context.Context, jobID string, now time.Time) error {
	s.lastJobID = jobID
	s.lastJobAt = now
	return nil
}

func (s *stubFacadeService) GetTenant(_ context.Context, id string) (core.Tenant, error) {
	return core.Tenant{ID: id, Status: core.TenantStatusActive}, nil
}

func (s *stubFacadeService) ListTenants(context.Context, core.TenantFilter) (core.Page[core.Tenant], error) {
	return core.Page[core.Tenant]{}, nil
}

func (s *stubFacadeService) AuditTrail(_ context.Context, tenantID string, dedupKey string, page int, perPage int) (core.Page[core.AuditRecord], error) {
	return core.Page[core.AuditRecord]{
		Items:   []core.AuditRecord{{TenantID: tenantID, DedupKey: dedupKey}},
		Page:    page,
		PerPage: perPage,
		Total:   1,
	}, nil
}

func (s *stubFacadeService) ListAuditRecords(context.Context, core.AuditFilter) (core.Page[core.AuditRecord], error) {
	return core.Page[core.AuditRecord]{Items: []core.AuditRecord{{Component: s.auditTag}}, Total: 1}, nil
}

func (s *stubFacadeService) ListErrorRecords(context.Context, core.ErrorFilter) (core.Page[core.ErrorRecord], error) {
	return core.Page[core.ErrorRecord]{}, nil
}

func (s *stubFacadeService) ListRawEvents(context.Context, core.EventFilter) (core.Page[core.RawEvent], error) {
	return core.Page[core.RawEvent]{}, nil
}

func (s *stubFacadeService) ListNormalizedEvents(context.Context, core.EventFilter) (core.Page[core.NormalizedEvent], error) {
	return core.Page[core.NormalizedEvent]{}, nil
}

func (s *stubFacadeService) ListActions(context.Context, core.ActionFilter) (core.Page[core.Action], error) {
	s.actionListCalls++
	return core.Page[core.Action]{}, nil
}
