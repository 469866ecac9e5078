// Package iidc defines the boundary between camera sessions and the
// device drivers that talk to cameras on a packetized isochronous bus.
//
// The package holds no driver itself. A backend (the UVC backend in
// pkg/linuxav/uvc, the simulator in pkg/iidc/sim, or an IEEE-1394 binding)
// implements Bus and Camera; pkg/camera drives them.
//
// # Registers and features
//
// Camera features (brightness, shutter, gain, ...) are exposed as raw
// register values together with the device-reported [Min, Max] range and
// capability flags. Conversion into caller-friendly units is the session's
// job, not the driver's.
//
// # Video modes
//
// A VideoMode is a format/mode pair. Formats 0 to 2 are the fixed formats:
// discrete resolutions with an indexed frame-rate table. Format 7 is the
// scalable format: an arbitrary region of interest whose frame rate follows
// from the packet size.
//
//	info, _ := cam.Mode(iidc.VideoMode{Format: 0, Mode: 5})
//	fmt.Printf("%dx%d %s\n", info.Width, info.Height, info.Coding)
//
// # Capture
//
// SetupCapture allocates a fixed pool of DMA buffers. Dequeue hands the
// next filled buffer to the caller, Enqueue returns it to the driver.
// A buffer that is never enqueued again is lost to the pool.
package iidc
