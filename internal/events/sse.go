package events

import "github.com/kelindar/event"

// SubscribeToChannel forwards events of type T into ch, dropping them
// when ch is full. Used by the SSE endpoint's select loop.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}

// SubscribeAll forwards every camera event type into ch.
func SubscribeAll(bus *Bus, ch chan<- any) func() {
	unsubs := []func(){
		SubscribeToChannel[CameraOpenedEvent](bus, ch),
		SubscribeToChannel[CameraClosedEvent](bus, ch),
		SubscribeToChannel[CameraStateChangedEvent](bus, ch),
		SubscribeToChannel[CameraReconnectedEvent](bus, ch),
		SubscribeToChannel[SettingsAppliedEvent](bus, ch),
		SubscribeToChannel[RunStateChangedEvent](bus, ch),
		SubscribeToChannel[ProfilesReloadedEvent](bus, ch),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}

// Names maps SSE event names to their payload types.
func Names() map[string]any {
	return map[string]any{
		"camera-opened":        CameraOpenedEvent{},
		"camera-closed":        CameraClosedEvent{},
		"camera-state-changed": CameraStateChangedEvent{},
		"camera-reconnected":   CameraReconnectedEvent{},
		"settings-applied":     SettingsAppliedEvent{},
		"run-state-changed":    RunStateChangedEvent{},
		"profiles-reloaded":    ProfilesReloadedEvent{},
	}
}

// CameraID returns the camera an event concerns, or "" for events about
// the daemon as a whole.
func CameraID(ev any) string {
	switch e := ev.(type) {
	case CameraOpenedEvent:
		return e.CameraID
	case CameraClosedEvent:
		return e.CameraID
	case CameraStateChangedEvent:
		return e.CameraID
	case CameraReconnectedEvent:
		return e.CameraID
	case SettingsAppliedEvent:
		return e.CameraID
	case RunStateChangedEvent:
		return e.CameraID
	case FrameAcquiredEvent:
		return e.CameraID
	default:
		return ""
	}
}
