package gocommand

import (
	"errors"
	"fmt"

	"github.com/goliatone/go-command/dispatcher"
	intakecommand "github.com/goliatone/go-intake/command"
	"github.com/goliatone/go-intake/core"
	intakequery "github.com/goliatone/go-intake/query"
)

// Subscriptions is released as a unit.
type Subscriptions []dispatcher.Subscription

func (s Subscriptions) Unsubscribe() {
	for _, sub := range s {
		if sub != nil {
			sub.Unsubscribe()
		}
	}
}

// RegisterIntake puts every intake command and query backed by svc on the
// bus. Nothing stays subscribed when any registration fails.
func RegisterIntake(bus *Bus, svc *core.Service, clock intakecommand.Clock) (Subscriptions, error) {
	if svc == nil {
		return nil, fmt.Errorf("gocommand: intake service is required")
	}
	var (
		subs Subscriptions
		errs []error
	)
	add := func(sub dispatcher.Subscription, err error) {
		if err != nil {
			errs = append(errs, err)
			return
		}
		subs = append(subs, sub)
	}

	add(Handle(bus, intakecommand.NewCreateTenantCommand(svc)))
	add(Handle(bus, intakecommand.NewUpdateTenantCommand(svc)))
	add(Handle(bus, intakecommand.NewDisableTenantCommand(svc)))
	add(Handle(bus, intakecommand.NewSubmitEventCommand(svc)))
	add(Handle(bus, intakecommand.NewProcessRawEventCommand(svc)))
	add(Handle(bus, intakecommand.NewTransitionQuoteCommand(svc)))
	add(Handle(bus, intakecommand.NewRequeueActionCommand(svc)))
	add(Handle(bus, intakecommand.NewDrainActionsCommand(svc, clock)))
	add(Handle(bus, intakecommand.NewRunScheduledJobCommand(svc, clock)))

	add(Answer(bus, intakequery.NewGetTenantQuery(svc)))
	add(Answer(bus, intakequery.NewListTenantsQuery(svc)))
	add(Answer(bus, intakequery.NewAuditTrailQuery(svc)))
	add(Answer(bus, intakequery.NewListAuditRecordsQuery(svc)))
	add(Answer(bus, intakequery.NewListErrorRecordsQuery(svc)))
	add(Answer(bus, intakequery.NewListRawEventsQuery(svc)))
	add(Answer(bus, intakequery.NewListNormalizedEventsQuery(svc)))
	add(Answer(bus, intakequery.NewListActionsQuery(svc)))

	if len(errs) > 0 {
		subs.Unsubscribe()
		return nil, errors.Join(errs...)
	}
	return subs, nil
}
