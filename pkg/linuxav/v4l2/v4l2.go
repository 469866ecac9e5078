//go:build linux

// Package v4l2 provides pure Go bindings to the Video4Linux2 (V4L2) API
// for device enumeration and format queries.
//
// This package does not use cgo, enabling simple cross-compilation for
// different Linux architectures (amd64, arm64, arm).
//
// # Device Enumeration
//
// FindDevices lists every video capture node together with the identity
// of the USB device behind it, when there is one:
//
//	devices, err := v4l2.FindDevices()
//	for _, dev := range devices {
//	    fmt.Printf("%s: %s %04x:%04x\n", dev.DevicePath, dev.DeviceName,
//	        dev.USB.VendorID, dev.USB.ProductID)
//	}
//
// # Format Queries
//
// Query supported formats, resolutions, and framerates:
//
//	formats, _ := v4l2.GetFormats("/dev/video0")
//	for _, f := range formats {
//	    resolutions, _ := v4l2.GetResolutions("/dev/video0", f.PixelFormat)
//	    for _, res := range resolutions {
//	        framerates, _ := v4l2.GetFramerates("/dev/video0", f.PixelFormat, res.Width, res.Height)
//	    }
//	}
//
// Streaming is not handled here; see pkg/linuxav/uvc.
package v4l2
