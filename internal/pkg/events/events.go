// Package events carries the lifecycle notifications produced by the secret
// manager and the integration service. Producers return events; the caller
// hands them to a Dispatcher once the write has been committed.
package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Name string

const (
	IntegrationCreated   Name = "integration.created"
	IntegrationUpdated   Name = "integration.updated"
	IntegrationDeleted   Name = "integration.deleted"
	SecretCreated        Name = "secret.created"
	SecretRotated        Name = "secret.rotated"
	SecretUpdated        Name = "secret.updated"
	SecretDeleted        Name = "secret.deleted"
	SecretExpiredCleanup Name = "secret.expired_cleanup"
)

// Event describes one committed change. SecretID is zero for integration
// events.
type Event struct {
	ID            string         `json:"id"`
	Name          Name           `json:"name"`
	IntegrationID uint           `json:"integration_id"`
	SecretID      uint           `json:"secret_id,omitempty"`
	OccurredAt    time.Time      `json:"occurred_at"`
	Attributes    map[string]any `json:"attributes,omitempty"`
}

func New(name Name, integrationID uint, at time.Time, attrs map[string]any) Event {
	return Event{
		ID:            uuid.NewString(),
		Name:          name,
		IntegrationID: integrationID,
		OccurredAt:    at,
		Attributes:    attrs,
	}
}

func (e Event) WithSecret(id uint) Event {
	e.SecretID = id
	return e
}

// IsSecretEvent reports whether the event concerns a single secret.
func (e Event) IsSecretEvent() bool {
	return e.SecretID != 0
}

type Listener interface {
	Handle(ctx context.Context, e Event) error
}

// ListenerFunc adapts a plain function to Listener.
type ListenerFunc func(ctx context.Context, e Event) error

func (f ListenerFunc) Handle(ctx context.Context, e Event) error {
	return f(ctx, e)
}

type Dispatcher struct {
	mu       sync.RWMutex
	byName   map[Name][]Listener
	wildcard []Listener
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{byName: make(map[Name][]Listener)}
}

// Listen registers l for the given names, or for every event when none are given.
func (d *Dispatcher) Listen(l Listener, names ...Name) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(names) == 0 {
		d.wildcard = append(d.wildcard, l)
		return
	}
	for _, n := range names {
		d.byName[n] = append(d.byName[n], l)
	}
}

// Dispatch delivers the events in order. A failing listener does not stop
// delivery; all errors are returned joined.
func (d *Dispatcher) Dispatch(ctx context.Context, evs ...Event) error {
	if d == nil {
		return nil
	}
	var errs []error
	for _, e := range evs {
		d.mu.RLock()
		listeners := make([]Listener, 0, len(d.wildcard)+len(d.byName[e.Name]))
		listeners = append(listeners, d.wildcard...)
		listeners = append(listeners, d.byName[e.Name]...)
		d.mu.RUnlock()

		for _, l := range listeners {
			if err := l.Handle(ctx, e); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
