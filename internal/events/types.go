package events

// Event type constants for kelindar/event.
const (
	TypeCameraOpened uint32 = iota + 1
	TypeCameraClosed
	TypeCameraStateChanged
	TypeCameraReconnected
	TypeSettingsApplied
	TypeRunStateChanged
	TypeFrameAcquired
	TypeProfilesReloaded
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// CameraOpenedEvent is published when the daemon opens a camera and its
// session connects.
type CameraOpenedEvent struct {
	CameraID  string `json:"camera_id" example:"000a470100c0ffee" doc:"Camera GUID as 16 hex digits"`
	SessionID string `json:"session_id" doc:"Session identifier"`
	Vendor    string `json:"vendor" example:"AVT" doc:"Camera vendor"`
	Model     string `json:"model" example:"Guppy F-080C" doc:"Camera model"`
	Regime    string `json:"regime" example:"scalable" doc:"Image-size regime: fixed or scalable"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for CameraOpenedEvent.
func (e CameraOpenedEvent) Type() uint32 { return TypeCameraOpened }

// CameraClosedEvent is published when a session is destroyed.
type CameraClosedEvent struct {
	CameraID  string `json:"camera_id" example:"000a470100c0ffee" doc:"Camera GUID"`
	Reason    string `json:"reason" example:"shutdown" doc:"Why the camera was closed"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for CameraClosedEvent.
func (e CameraClosedEvent) Type() uint32 { return TypeCameraClosed }

// CameraStateChangedEvent reports a session lifecycle transition.
type CameraStateChangedEvent struct {
	CameraID  string `json:"camera_id" example:"000a470100c0ffee" doc:"Camera GUID"`
	From      string `json:"from" example:"connected" doc:"Previous lifecycle state"`
	To        string `json:"to" example:"disconnected" doc:"New lifecycle state"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for CameraStateChangedEvent.
func (e CameraStateChangedEvent) Type() uint32 { return TypeCameraStateChanged }

// CameraReconnectedEvent is published after every reconnect attempt.
type CameraReconnectedEvent struct {
	CameraID   string `json:"camera_id" example:"000a470100c0ffee" doc:"Camera GUID"`
	Success    bool   `json:"success" doc:"Whether the camera came back connected"`
	Error      string `json:"error,omitempty" doc:"Failure reason"`
	Reconnects int    `json:"reconnects" example:"3" doc:"Reconnects of this session so far"`
	Timestamp  string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for CameraReconnectedEvent.
func (e CameraReconnectedEvent) Type() uint32 { return TypeCameraReconnected }

// SettingsAppliedEvent is published when a full settings struct has been
// applied to a camera.
type SettingsAppliedEvent struct {
	CameraID  string   `json:"camera_id" example:"000a470100c0ffee" doc:"Camera GUID"`
	Source    string   `json:"source" example:"api" doc:"Origin of the settings: api, profile or reload"`
	Warnings  []string `json:"warnings,omitempty" doc:"Features the camera could not apply"`
	Timestamp string   `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SettingsAppliedEvent.
func (e SettingsAppliedEvent) Type() uint32 { return TypeSettingsApplied }

// RunStateChangedEvent reports a change of the run/single-shot state.
type RunStateChangedEvent struct {
	CameraID  string `json:"camera_id" example:"000a470100c0ffee" doc:"Camera GUID"`
	RunState  string `json:"run_state" example:"running" doc:"stopped, running or one-shot"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for RunStateChangedEvent.
func (e RunStateChangedEvent) Type() uint32 { return TypeRunStateChanged }

// FrameAcquiredEvent is published for every frame checked out through the daemon.
type FrameAcquiredEvent struct {
	CameraID  string `json:"camera_id" example:"000a470100c0ffee" doc:"Camera GUID"`
	Number    uint64 `json:"number" example:"1200" doc:"Frame counter after this frame"`
	Lag       int    `json:"lag" example:"0" doc:"Filled buffers still queued"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00.123456Z" doc:"Estimated trigger time"`
}

// Type returns the event type identifier for FrameAcquiredEvent.
func (e FrameAcquiredEvent) Type() uint32 { return TypeFrameAcquired }

// ProfilesReloadedEvent is published after the profile file was reloaded
// from disk and re-applied.
type ProfilesReloadedEvent struct {
	Path      string   `json:"path" example:"/var/lib/isocam/profiles.toml" doc:"Profile file"`
	Cameras   []string `json:"cameras" doc:"Cameras whose profile was re-applied"`
	Timestamp string   `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ProfilesReloadedEvent.
func (e ProfilesReloadedEvent) Type() uint32 { return TypeProfilesReloaded }
