package models

import (
	"time"

	"github.com/smazurov/isocam/internal/logging"
	"github.com/smazurov/isocam/internal/metrics"
	"github.com/smazurov/isocam/pkg/camera"
	"github.com/smazurov/isocam/pkg/camera/hwconfig"
)

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
	Cameras int    `json:"cameras" example:"2" doc:"Number of open cameras"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"dev" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit SHA"`
	BuildDate string `json:"build_date" example:"2024-12-15 14:30" doc:"Build timestamp"`
	BuildID   string `json:"build_id" example:"a1b2c3d4" doc:"Unique build identifier"`
	GoVersion string `json:"go_version" example:"go1.24.0" doc:"Go compiler version"`
	Compiler  string `json:"compiler" example:"gc" doc:"Compiler used"`
	Platform  string `json:"platform" example:"linux/arm64" doc:"Platform"`
}

type VersionResponse struct {
	Body VersionData
}

// Camera models
type CameraPath struct {
	ID string `path:"id" pattern:"^[0-9a-f]{16}$" example:"000a470100c0ffee" doc:"Camera GUID as 16 hex digits"`
}

type CameraData struct {
	ID         string                 `json:"id" example:"000a470100c0ffee" doc:"Camera GUID"`
	SessionID  string                 `json:"session_id" doc:"Identifier of the current session"`
	Vendor     string                 `json:"vendor" example:"Point Grey" doc:"Camera vendor"`
	Model      string                 `json:"model" example:"Flea2 FL2-08S2M" doc:"Camera model"`
	State      string                 `json:"state" enum:"uninitialized,connected,disconnected" doc:"Session lifecycle state"`
	Regime     string                 `json:"regime" enum:"fixed,scalable" doc:"Video mode regime"`
	RunState   string                 `json:"run_state" enum:"stopped,running,one-shot" doc:"Transmission state"`
	Frames     uint64                 `json:"frames" doc:"Frames acquired by this session"`
	Reconnects int                    `json:"reconnects" doc:"Reconnects performed by this session"`
	Opened     time.Time              `json:"opened" doc:"When the session was opened"`
	Metrics    *metrics.CameraMetrics `json:"metrics,omitempty" doc:"Counters for this camera since the daemon started"`
}

type CameraResponse struct {
	Body CameraData
}

type CameraListData struct {
	Cameras []CameraData `json:"cameras" doc:"Open cameras"`
	Count   int          `json:"count" example:"1" doc:"Number of open cameras"`
}

type CameraListResponse struct {
	Body CameraListData
}

type ScanData struct {
	Opened  int      `json:"opened" example:"1" doc:"Cameras opened by this scan"`
	Cameras []string `json:"cameras" doc:"All open cameras after the scan"`
	Errors  []string `json:"errors,omitempty" doc:"Cameras that failed to open"`
}

type ScanResponse struct {
	Body ScanData
}

type CloseRequest struct {
	CameraPath
	Reason string `query:"reason" default:"api" doc:"Reason recorded in the camera-closed event"`
}

// Settings models
type StateResponse struct {
	Body camera.Settings
}

type SetStateRequest struct {
	CameraPath
	Save bool `query:"save" doc:"Store the applied settings as the camera's profile"`
	Body camera.Settings
}

type SetStateData struct {
	Settings camera.Settings `json:"settings" doc:"Settings in effect after the change"`
	Warnings []string        `json:"warnings,omitempty" doc:"Requested features the camera does not have"`
	Saved    bool            `json:"saved" doc:"Whether the settings were stored as the profile"`
}

type SetStateResponse struct {
	Body SetStateData
}

type ConfigData struct {
	Config       hwconfig.Config     `json:"config" doc:"Hardware configuration in use"`
	Capabilities camera.Capabilities `json:"capabilities" doc:"Capabilities probed at connect"`
}

type ConfigResponse struct {
	Body ConfigData
}

// Run models
type RunRequest struct {
	CameraPath
	Body struct {
		Running    bool `json:"running" doc:"Start or stop the camera"`
		SingleShot bool `json:"single_shot,omitempty" doc:"Take one frame per start instead of streaming"`
	}
}

type RunData struct {
	RunState string `json:"run_state" enum:"stopped,running,one-shot" doc:"Transmission state after the change"`
}

type RunResponse struct {
	Body RunData
}

// Frame models
type FrameRequest struct {
	CameraPath
	Shot      bool   `query:"shot" doc:"Trigger a single shot before waiting"`
	Fresh     bool   `query:"fresh" doc:"Discard frames queued before the request"`
	Pulse     bool   `query:"pulse" doc:"Fire the external trigger line before waiting"`
	TimeoutMs int    `query:"timeout_ms" default:"2000" minimum:"1" maximum:"60000" doc:"How long to wait for a frame"`
	Format    string `query:"format" default:"raw" enum:"raw,pnm" doc:"Raw pixel bytes or a PGM/PPM image"`
}

type FrameResponse struct {
	ContentType string `header:"Content-Type"`
	Width       string `header:"X-Frame-Width"`
	Height      string `header:"X-Frame-Height"`
	Coding      string `header:"X-Frame-Coding"`
	Number      string `header:"X-Frame-Number"`
	Lag         string `header:"X-Frame-Lag"`
	Timestamp   string `header:"X-Frame-Timestamp"`
	Body        []byte
}

// Debug and profile models
type DumpResponse struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

type MessageResponse struct {
	Body struct {
		Message string `json:"message" doc:"Operation result message"`
	}
}

// Log models
type LogsRequest struct {
	Module string `query:"module" doc:"Only entries from this module"`
	Level  string `query:"level" doc:"Only entries at or above this level: debug, info, warn or error"`
	Limit  int    `query:"limit" default:"200" minimum:"1" maximum:"1000" doc:"Most recent entries to return"`
}

type LogsData struct {
	Entries []logging.Entry `json:"entries" doc:"Buffered log entries, oldest first"`
	Count   int             `json:"count" doc:"Number of entries returned"`
}

type LogsResponse struct {
	Body LogsData
}

type LogLevelRequest struct {
	Body struct {
		Module string `json:"module,omitempty" example:"camera" doc:"Module to change, empty for the global level"`
		Level  string `json:"level" enum:"debug,info,warn,error" doc:"New level"`
	}
}
