// Package events is the in-process event bus for camera lifecycle,
// settings and frame notifications.
package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers of its concrete type.
// A nil bus drops the event.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	switch e := ev.(type) {
	case CameraOpenedEvent:
		event.Publish(b.dispatcher, e)
	case CameraClosedEvent:
		event.Publish(b.dispatcher, e)
	case CameraStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case CameraReconnectedEvent:
		event.Publish(b.dispatcher, e)
	case SettingsAppliedEvent:
		event.Publish(b.dispatcher, e)
	case RunStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case FrameAcquiredEvent:
		event.Publish(b.dispatcher, e)
	case ProfilesReloadedEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers handler for the event type of its argument and
// returns an unsubscribe function. Unknown handler types get a no-op.
// Usage: unsub := bus.Subscribe(func(e CameraReconnectedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(CameraOpenedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(CameraClosedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(CameraStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(CameraReconnectedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SettingsAppliedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(RunStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(FrameAcquiredEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ProfilesReloadedEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}
