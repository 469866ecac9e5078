//go:build linux

// Package uvc drives USB Video Class webcams as IIDC cameras in the fixed
// regime.
//
// Each discrete resolution of an uncompressed pixel format becomes a fixed
// video mode, the enumerated frame intervals become its frame-rate table,
// V4L2 controls become features and streaming on/off is the transmission
// switch. The mmap buffers of the V4L2 queue are the capture ring.
//
// A UVC device has no scalable mode, no one-shot register, no trigger and
// no advanced register block; those calls return iidc.ErrNotSupported.
package uvc

import (
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"slices"
	"sync"

	"github.com/blackjack/webcam"

	"github.com/smazurov/isocam/pkg/iidc"
	"github.com/smazurov/isocam/pkg/linuxav/v4l2"
)

// device is the part of *webcam.Webcam the backend uses.
type device interface {
	SetImageFormat(f webcam.PixelFormat, width, height uint32) (webcam.PixelFormat, uint32, uint32, error)
	SetFramerate(fps float32) error
	SetBufferCount(count uint32) error
	StartStreaming() error
	StopStreaming() error
	WaitForFrame(timeout uint32) error
	GetFrame() ([]byte, uint32, error)
	ReleaseFrame(index uint32) error
	GetControls() map[webcam.ControlID]webcam.Control
	GetControl(id webcam.ControlID) (int32, error)
	SetControl(id webcam.ControlID, value int32) error
	Close() error
}

// querier enumerates formats of one device node.
type querier interface {
	Formats() ([]v4l2.FormatInfo, error)
	Resolutions(pixfmt uint32) ([]v4l2.Resolution, error)
	Framerates(pixfmt, width, height uint32) ([]v4l2.Framerate, error)
}

type nodeQuerier string

func (p nodeQuerier) Formats() ([]v4l2.FormatInfo, error) {
	return v4l2.GetFormats(string(p))
}

func (p nodeQuerier) Resolutions(pixfmt uint32) ([]v4l2.Resolution, error) {
	return v4l2.GetResolutions(string(p), pixfmt)
}

func (p nodeQuerier) Framerates(pixfmt, width, height uint32) ([]v4l2.Framerate, error) {
	return v4l2.GetFramerates(string(p), pixfmt, width, height)
}

// Bus lists the UVC cameras attached to the host.
type Bus struct {
	mu     sync.Mutex
	logger *slog.Logger
	filter []string
	find   func() ([]v4l2.DeviceInfo, error)
	open   func(path string) (device, error)
	query  func(path string) querier
	nodes  map[uint64]v4l2.DeviceInfo
	closed bool
}

// Option configures a Bus.
type Option func(*Bus)

// WithDevices limits the bus to the given device nodes or by-id names.
func WithDevices(devices ...string) Option {
	return func(b *Bus) {
		b.filter = append(b.filter, devices...)
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		b.logger = logger
	}
}

// NewBus returns a bus over the host's video4linux capture nodes.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		logger: slog.Default(),
		find:   v4l2.FindDevices,
		open: func(path string) (device, error) {
			return webcam.Open(path)
		},
		query: func(path string) querier { return nodeQuerier(path) },
		nodes: make(map[uint64]v4l2.DeviceInfo),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "uvc")
	return b
}

// Cameras lists the capture nodes that have at least one uncompressed
// format. Nodes that cannot be queried are skipped.
func (b *Bus) Cameras() ([]iidc.Identity, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, iidc.ErrClosed
	}
	devices, err := b.find()
	if err != nil {
		return nil, fmt.Errorf("enumerate video devices: %w", err)
	}

	var ids []iidc.Identity
	for _, d := range devices {
		if len(b.filter) > 0 && !slices.Contains(b.filter, d.DevicePath) && !slices.Contains(b.filter, d.DeviceID) {
			continue
		}
		formats, err := b.query(d.DevicePath).Formats()
		if err != nil {
			b.logger.Debug("Skipping video device", "path", d.DevicePath, "error", err)
			continue
		}
		if !slices.ContainsFunc(formats, func(f v4l2.FormatInfo) bool { _, ok := codingOf(f.PixelFormat); return ok }) {
			b.logger.Debug("Skipping video device without raw formats", "path", d.DevicePath)
			continue
		}
		id := Identify(d)
		b.nodes[id.GUID] = d
		ids = append(ids, id)
	}
	return ids, nil
}

// Open opens a camera listed by Cameras.
func (b *Bus) Open(guid uint64) (iidc.Camera, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, iidc.ErrClosed
	}
	d, ok := b.nodes[guid]
	if !ok {
		return nil, fmt.Errorf("%w: %016x", iidc.ErrNoSuchCamera, guid)
	}

	modes, err := probeModes(b.query(d.DevicePath))
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", d.DevicePath, err)
	}
	dev, err := b.open(d.DevicePath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.DevicePath, err)
	}
	b.logger.Info("Opened UVC camera", "path", d.DevicePath, "name", d.DeviceName, "modes", len(modes))
	return newCamera(Identify(d), dev, modes), nil
}

// Close closes the bus.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Identify derives the IIDC identity of a capture node. The GUID packs the
// USB vendor and product IDs above a hash of the serial number, falling
// back to the stable by-id name for devices without a serial.
func Identify(d v4l2.DeviceInfo) iidc.Identity {
	key := d.USB.Serial
	if key == "" {
		key = d.DeviceID
	}
	h := fnv.New32a()
	h.Write([]byte(key))

	vendor := d.USB.Manufacturer
	if vendor == "" {
		vendor = "UVC"
	}
	model := d.USB.Product
	if model == "" {
		model = d.DeviceName
	}
	return iidc.Identity{
		GUID:   uint64(d.USB.VendorID)<<48 | uint64(d.USB.ProductID)<<32 | uint64(h.Sum32()),
		Vendor: vendor,
		Model:  model,
	}
}

var errNotStreaming = errors.New("uvc: not streaming")
