package keel

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

const eventSource = "keel"

type observerRegistration struct {
	observer     Observer
	eventTypes   map[string]bool
	registeredAt time.Time
}

// RegisterObserver adds an observer. With no eventTypes it receives every
// event. Registering the same ID again replaces the earlier registration.
func (app *Application) RegisterObserver(observer Observer, eventTypes ...string) error {
	if observer == nil {
		return ErrNilObserver
	}
	app.observerMutex.Lock()
	defer app.observerMutex.Unlock()

	types := make(map[string]bool, len(eventTypes))
	for _, t := range eventTypes {
		types[t] = true
	}
	reg := &observerRegistration{observer: observer, eventTypes: types, registeredAt: time.Now()}

	id := observer.ObserverID()
	if i := slices.IndexFunc(app.observers, func(r *observerRegistration) bool { return r.observer.ObserverID() == id }); i >= 0 {
		app.observers[i] = reg
	} else {
		app.observers = append(app.observers, reg)
	}
	app.logger.Debug("Observer registered", "observerID", id, "eventTypes", eventTypes)
	return nil
}

// UnregisterObserver removes an observer. Unknown observers are ignored.
func (app *Application) UnregisterObserver(observer Observer) error {
	if observer == nil {
		return ErrNilObserver
	}
	app.observerMutex.Lock()
	defer app.observerMutex.Unlock()

	id := observer.ObserverID()
	app.observers = slices.DeleteFunc(app.observers, func(r *observerRegistration) bool {
		return r.observer.ObserverID() == id
	})
	return nil
}

// NotifyObservers delivers event to every interested observer in
// registration order. Observer errors and panics are logged and joined into
// the returned error; they never stop delivery to later observers.
func (app *Application) NotifyObservers(ctx context.Context, event cloudevents.Event) error {
	if event.Time().IsZero() {
		event.SetTime(time.Now())
	}
	if err := ValidateCloudEvent(event); err != nil {
		app.logger.Error("Invalid CloudEvent", "eventType", event.Type(), "error", err)
		return err
	}

	app.observerMutex.RLock()
	regs := slices.Clone(app.observers)
	app.observerMutex.RUnlock()

	var errs []error
	for _, reg := range regs {
		if len(reg.eventTypes) > 0 && !reg.eventTypes[event.Type()] {
			continue
		}
		if err := app.deliver(ctx, reg.observer, event); err != nil {
			app.logger.Error("Observer error", "observerID", reg.observer.ObserverID(), "event", event.Type(), "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (app *Application) deliver(ctx context.Context, o Observer, event cloudevents.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("observer %s panicked: %v", o.ObserverID(), r)
		}
	}()
	return o.OnEvent(ctx, event)
}

// GetObservers describes the registered observers.
func (app *Application) GetObservers() []ObserverInfo {
	app.observerMutex.RLock()
	defer app.observerMutex.RUnlock()

	info := make([]ObserverInfo, 0, len(app.observers))
	for _, reg := range app.observers {
		eventTypes := make([]string, 0, len(reg.eventTypes))
		for t := range reg.eventTypes {
			eventTypes = append(eventTypes, t)
		}
		slices.Sort(eventTypes)
		info = append(info, ObserverInfo{
			ID:           reg.observer.ObserverID(),
			EventTypes:   eventTypes,
			RegisteredAt: reg.registeredAt,
		})
	}
	return info
}

// emitEvent notifies observers and only logs failures.
func (app *Application) emitEvent(ctx context.Context, eventType string, data any, metadata map[string]any) {
	event := NewCloudEvent(eventType, eventSource, data, metadata)
	if err := app.NotifyObservers(ctx, event); err != nil {
		app.logger.Debug("Failed to notify observers", "event", eventType, "error", err)
	}
}
