package command

import (
	"context"
	"errors"
	"testing"
	"time"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-intake/core"
)

type stubService struct {
	createTenantFn    func(context.Context, core.CreateTenantInput) (core.Tenant, error)
	updateTenantFn    func(context.Context, string, core.UpdateTenantInput) (core.Tenant, error)
	disableTenantFn   func(context.Context, string) (core.Tenant, error)
	submitFn          func(context.Context, core.SubmitRequest) (core.SubmitResult, error)
	processFn         func(context.Context, string) (core.ProcessResult, error)
	transitionQuoteFn func(context.Context, string, string, core.QuoteStatus) (core.Quote, error)
	requeueActionFn   func(context.Context, string, string) (core.Action, error)
	drainActionsFn    func(context.Context, time.Time) (core.DrainStats, error)
	runJobFn          func(context.Context, string, time.Time) error
}

func (s stubService) CreateTenant(ctx context.Context, in core.CreateTenantInput) (core.Tenant, error) {
	return s.createTenantFn(ctx, in)
}

func (s stubService) UpdateTenant(ctx context.Context, id string, in core.UpdateTenantInput) (core.Tenant, error) {
	return s.updateTenantFn(ctx, id, in)
}

func (s stubService) DisableTenant(ctx context.Context, id string) (core.Tenant, error) {
	return s.disableTenantFn(ctx, id)
}

func (s stubService) Submit(ctx context.Context, req core.SubmitRequest) (core.SubmitResult, error) {
	return s.submitFn(ctx, req)
}

func (s stubService) ProcessRawEvent(ctx context.Context, id string) (core.ProcessResult, error) {
	return s.processFn(ctx, id)
}

func (s stubService) TransitionQuote(ctx context.Context, tenantID string, quoteID string, to core.QuoteStatus) (core.Quote, error) {
	return s.transitionQuoteFn(ctx, tenantID, quoteID, to)
}

func (s stubService) RequeueAction(ctx context.Context, tenantID string, actionID string) (core.Action, error) {
	return s.requeueActionFn(ctx, tenantID, actionID)
}

func (s stubService) DrainActions(ctx context.Context, now time.Time) (core.DrainStats, error) {
	return s.drainActionsFn(ctx, now)
}

func (s stubService) RunJob(ctx context.Context, jobID string, now time.Time) error {
	return s.runJobFn(ctx, jobID, now)
}

func TestCreateTenantCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	svc := stubService{
		createTenantFn: func(_ context.Context, in core.CreateTenantInput) (core.Tenant, error) {
			if in.Name != "Acme" {
				t.Fatalf("unexpected tenant input: %#v", in)
			}
			return core.Tenant{ID: "tenant_1", Name: in.Name, APIKey: "ik_1"}, nil
		},
	}
	collector := gocmd.NewResult[core.Tenant]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	if err := NewCreateTenantCommand(svc).Execute(ctx, CreateTenantMessage{Input: core.CreateTenantInput{Name: "Acme"}}); err != nil {
		t.Fatalf("execute create tenant: %v", err)
	}
	tenant, ok := collector.Load()
	if !ok || tenant.ID != "tenant_1" || tenant.APIKey != "ik_1" {
		t.Fatalf("expected stored tenant, got %#v %v", tenant, ok)
	}
}

func TestIngestCommands_DelegateToService(t *testing.T) {
	svc := stubService{
		submitFn: func(_ context.Context, req core.SubmitRequest) (core.SubmitResult, error) {
			if req.TenantID != "tenant_1" || req.DedupKey != "wamid.1" {
				t.Fatalf("unexpected submit request: %#v", req)
			}
			return core.SubmitResult{RawEventID: "raw_1", Queued: true}, nil
		},
		processFn: func(_ context.Context, id string) (core.ProcessResult, error) {
			return core.ProcessResult{RawEventID: id, Routed: true}, nil
		},
	}

	submitted := gocmd.NewResult[core.SubmitResult]()
	err := NewSubmitEventCommand(svc).Execute(gocmd.ContextWithResult(context.Background(), submitted), SubmitEventMessage{
		Request: core.SubmitRequest{TenantID: "tenant_1", Source: "whatsapp", DedupKey: "wamid.1", Payload: []byte("{}")},
	})
	if err != nil {
		t.Fatalf("execute submit: %v", err)
	}
	if result, ok := submitted.Load(); !ok || result.RawEventID != "raw_1" {
		t.Fatalf("expected submit result, got %#v", result)
	}

	processed := gocmd.NewResult[core.ProcessResult]()
	if err := NewProcessRawEventCommand(svc).Execute(gocmd.ContextWithResult(context.Background(), processed), ProcessRawEventMessage{RawEventID: "raw_1"}); err != nil {
		t.Fatalf("execute process: %v", err)
	}
	if result, ok := processed.Load(); !ok || !result.Routed {
		t.Fatalf("expected process result, got %#v", result)
	}
}

func TestOperatorCommands_DelegateToService(t *testing.T) {
	fixed := time.Date(2026, 4, 2, 8, 0, 0, 0, time.FixedZone("CET", 3600))
	clock := func() time.Time { return fixed }

	t.Run("transition quote", func(t *testing.T) {
		svc := stubService{
			transitionQuoteFn: func(_ context.Context, tenantID string, quoteID string, to core.QuoteStatus) (core.Quote, error) {
				if tenantID != "tenant_1" || quoteID != "quote_1" || to != core.QuoteStatusSent {
					t.Fatalf("unexpected transition payload: %q %q %q", tenantID, quoteID, to)
				}
				return core.Quote{ID: quoteID, Status: to}, nil
			},
		}
		collector := gocmd.NewResult[core.Quote]()
		err := NewTransitionQuoteCommand(svc).Execute(gocmd.ContextWithResult(context.Background(), collector), TransitionQuoteMessage{
			TenantID: "tenant_1",
			QuoteID:  "quote_1",
			Status:   core.QuoteStatusSent,
		})
		if err != nil {
			t.Fatalf("execute transition: %v", err)
		}
		if quote, ok := collector.Load(); !ok || quote.Status != core.QuoteStatusSent {
			t.Fatalf("expected stored quote, got %#v", quote)
		}
	})

	t.Run("requeue action surfaces service errors", func(t *testing.T) {
		conflict := core.ConflictError("only failed actions can be requeued", nil)
		svc := stubService{
			requeueActionFn: func(context.Context, string, string) (core.Action, error) {
				return core.Action{}, conflict
			},
		}
		err := NewRequeueActionCommand(svc).Execute(context.Background(), RequeueActionMessage{TenantID: "tenant_1", ActionID: "action_1"})
		if !errors.Is(err, conflict) {
			t.Fatalf("expected service error, got %v", err)
		}
	})

	t.Run("drain defaults to clock in utc", func(t *testing.T) {
		var got time.Time
		svc := stubService{
			drainActionsFn: func(_ context.Context, now time.Time) (core.DrainStats, error) {
				got = now
				return core.DrainStats{Claimed: 2, Sent: 2}, nil
			},
		}
		collector := gocmd.NewResult[core.DrainStats]()
		if err := NewDrainActionsCommand(svc, clock).Execute(gocmd.ContextWithResult(context.Background(), collector), DrainActionsMessage{}); err != nil {
			t.Fatalf("execute drain: %v", err)
		}
		if !got.Equal(fixed) || got.Location() != time.UTC {
			t.Fatalf("expected utc clock time, got %s", got)
		}
		if stats, _ := collector.Load(); stats.Sent != 2 {
			t.Fatalf("expected drain stats stored, got %#v", stats)
		}
	})

	t.Run("run job", func(t *testing.T) {
		var ranJob string
		svc := stubService{
			runJobFn: func(_ context.Context, jobID string, _ time.Time) error {
				ranJob = jobID
				return nil
			},
		}
		if err := NewRunScheduledJobCommand(svc, clock).Execute(context.Background(), RunScheduledJobMessage{JobID: core.JobReportHealth}); err != nil {
			t.Fatalf("execute run job: %v", err)
		}
		if ranJob != core.JobReportHealth {
			t.Fatalf("expected health job, got %q", ranJob)
		}
	})
}

func TestMessages_Validate(t *testing.T) {
	disabled := core.TenantStatus("archived")
	tests := []struct {
		name    string
		msg     interface{ Validate() error }
		wantErr bool
	}{
		{name: "create tenant ok", msg: CreateTenantMessage{Input: core.CreateTenantInput{Name: "Acme"}}},
		{name: "create tenant without name", msg: CreateTenantMessage{}, wantErr: true},
		{name: "update tenant bad status", msg: UpdateTenantMessage{TenantID: "t", Input: core.UpdateTenantInput{Status: &disabled}}, wantErr: true},
		{name: "disable tenant without id", msg: DisableTenantMessage{}, wantErr: true},
		{name: "submit without payload", msg: SubmitEventMessage{Request: core.SubmitRequest{TenantID: "t", Source: "email"}}, wantErr: true},
		{name: "process without id", msg: ProcessRawEventMessage{}, wantErr: true},
		{name: "transition ok", msg: TransitionQuoteMessage{TenantID: "t", QuoteID: "q", Status: core.QuoteStatusAccepted}},
		{name: "transition unknown status", msg: TransitionQuoteMessage{TenantID: "t", QuoteID: "q", Status: "won"}, wantErr: true},
		{name: "requeue without action", msg: RequeueActionMessage{TenantID: "t"}, wantErr: true},
		{name: "drain", msg: DrainActionsMessage{}},
		{name: "run known job", msg: RunScheduledJobMessage{JobID: core.JobPruneRecords}},
		{name: "run unknown job", msg: RunScheduledJobMessage{JobID: "intake.unknown"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
