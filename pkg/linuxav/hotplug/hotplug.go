// Package hotplug reports kernel device events so cameras can be picked up
// as they are plugged in.
package hotplug

import (
	"bytes"
	"errors"
	"path"
	"strings"
)

// Actions the kernel reports.
const (
	ActionAdd    = "add"
	ActionRemove = "remove"
	ActionChange = "change"
	ActionBind   = "bind"
	ActionUnbind = "unbind"
)

// Subsystems cameras appear under.
const (
	SubsystemVideo4Linux = "video4linux"
	SubsystemUSB         = "usb"
)

// ErrUnsupported is returned where the platform has no uevent socket.
var ErrUnsupported = errors.New("hotplug: device events not supported on this platform")

// Event is one kernel uevent.
type Event struct {
	Action    string
	KObj      string // sysfs path of the kernel object
	Subsystem string
	DevName   string // node name relative to /dev, e.g. "video0"
	Env       map[string]string
}

// Node returns the device node of the event, or "" when it names none.
func (e Event) Node() string {
	if e.DevName == "" {
		return ""
	}
	return path.Join("/dev", e.DevName)
}

// Camera reports whether the event adds or removes a video device node.
func (e Event) Camera() bool {
	return e.Subsystem == SubsystemVideo4Linux && e.DevName != "" &&
		(e.Action == ActionAdd || e.Action == ActionRemove)
}

// ParseUEvent parses a kernel uevent datagram of the form
// "ACTION@KOBJ\0KEY=VALUE\0...". Datagrams relayed by udev carry a binary
// "libudev" header in front and are skipped to the first ACTION@ field.
// Malformed input yields nil.
func ParseUEvent(data []byte) *Event {
	if bytes.HasPrefix(data, []byte("libudev")) {
		data = skipUdevHeader(data)
	}
	fields := bytes.Split(data, []byte{0})
	if len(fields) == 0 {
		return nil
	}
	action, kobj, ok := strings.Cut(string(fields[0]), "@")
	if !ok || action == "" {
		return nil
	}

	ev := &Event{Action: action, KObj: kobj, Env: make(map[string]string)}
	for _, field := range fields[1:] {
		key, value, ok := strings.Cut(string(field), "=")
		if !ok || key == "" {
			continue
		}
		ev.Env[key] = value
		switch key {
		case "SUBSYSTEM":
			ev.Subsystem = value
		case "DEVNAME":
			ev.DevName = value
		}
	}
	return ev
}

func skipUdevHeader(data []byte) []byte {
	for i := 0; i < len(data)-1; i++ {
		if data[i] != 0 {
			continue
		}
		rest := data[i+1:]
		if at := bytes.IndexByte(rest, '@'); at > 0 && at < 20 && bytes.IndexByte(rest[:at], 0) < 0 {
			return rest
		}
	}
	return nil
}
