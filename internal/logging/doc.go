// Package logging provides structured logging with per-module levels.
//
// # Usage
//
// Initialize once at startup, then get a logger per module:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"camera": "debug",
//			"api":    "warn",
//		},
//	})
//
//	logger := logging.GetLogger("service").With("camera", guid)
//	logger.Info("Camera opened", "model", model)
//
// Module levels can be changed at runtime with SetLevel.
//
// # Outputs
//
// Records go to stdout when it is attached to a terminal, pipe or file,
// to the systemd journal when journald is running, and always to an
// in-memory history that the API serves at /api/logs.
//
//	journalctl -t isocam -f
//	journalctl -t isocam MODULE=camera CAMERA=000a470100c0ffee
//
// # Configuration
//
//	[logging]
//	level = "info"
//	format = "text"
//
//	[logging.modules]
//	camera = "debug"
package logging
