// Package gocommand exposes the intake commands and queries on a go-command
// registry and dispatcher.
package gocommand

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-command"
	"github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

var errNoRegistry = errors.New("gocommand: registry is not configured")

// CheckMessage requires a non-empty Type() and runs Validate() when the
// message has one.
func CheckMessage(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	typed, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: %T does not implement Type() string", msg)
	}
	if strings.TrimSpace(typed.Type()) == "" {
		return fmt.Errorf("gocommand: %T has an empty message type", msg)
	}
	return nil
}

// Bus pairs a go-command registry with the global dispatcher.
type Bus struct {
	registry *command.Registry
}

func NewBus(registry *command.Registry) *Bus {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &Bus{registry: registry}
}

func (b *Bus) Registry() *command.Registry {
	if b == nil {
		return nil
	}
	return b.registry
}

func (b *Bus) register(handler any) error {
	if b == nil || b.registry == nil {
		return errNoRegistry
	}
	return b.registry.RegisterCommand(handler)
}

func (b *Bus) AddResolver(key string, resolver command.Resolver) error {
	if b == nil || b.registry == nil {
		return errNoRegistry
	}
	return b.registry.AddResolver(strings.TrimSpace(key), resolver)
}

// MirrorToQueue makes every registered handler available to go-job workers
// through queueRegistry.
func (b *Bus) MirrorToQueue(key string, queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return b.AddResolver(key, jobqueuecommand.QueueResolver(queueRegistry))
}

func (b *Bus) HasResolver(key string) bool {
	return b != nil && b.registry != nil && b.registry.HasResolver(strings.TrimSpace(key))
}

func (b *Bus) Initialize() error {
	if b == nil || b.registry == nil {
		return errNoRegistry
	}
	return b.registry.Initialize()
}

// Handle subscribes cmd on the dispatcher and adds it to the registry.
func Handle[T any](b *Bus, cmd command.Commander[T], opts ...runner.Option) (dispatcher.Subscription, error) {
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command handler is required")
	}
	return subscribe(b, cmd, func() dispatcher.Subscription {
		return dispatcher.SubscribeCommand(cmd, opts...)
	})
}

// Answer subscribes qry on the dispatcher and adds it to the registry.
func Answer[T any, R any](b *Bus, qry command.Querier[T, R], opts ...runner.Option) (dispatcher.Subscription, error) {
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query handler is required")
	}
	return subscribe(b, qry, func() dispatcher.Subscription {
		return dispatcher.SubscribeQuery(qry, opts...)
	})
}

func subscribe(b *Bus, handler any, sub func() dispatcher.Subscription) (dispatcher.Subscription, error) {
	if b == nil || b.registry == nil {
		return nil, errNoRegistry
	}
	subscription := sub()
	if err := b.register(handler); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

// Dispatch checks msg and sends it to its command handler.
func Dispatch[T any](ctx context.Context, msg T) error {
	if err := CheckMessage(msg); err != nil {
		return err
	}
	return dispatcher.Dispatch(ctx, msg)
}

// Query checks msg and returns its query handler's result.
func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	if err := CheckMessage(msg); err != nil {
		var zero R
		return zero, err
	}
	return dispatcher.Query[T, R](ctx, msg)
}
