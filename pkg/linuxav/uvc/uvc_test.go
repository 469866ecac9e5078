//go:build linux

package uvc

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/blackjack/webcam"

	"github.com/smazurov/isocam/pkg/iidc"
	"github.com/smazurov/isocam/pkg/linuxav/v4l2"
)

type fakeQuerier struct {
	formats []v4l2.FormatInfo
	sizes   map[uint32][]v4l2.Resolution
	rates   []v4l2.Framerate
}

func (q *fakeQuerier) Formats() ([]v4l2.FormatInfo, error) { return q.formats, nil }

func (q *fakeQuerier) Resolutions(pixfmt uint32) ([]v4l2.Resolution, error) {
	return q.sizes[pixfmt], nil
}

func (q *fakeQuerier) Framerates(uint32, uint32, uint32) ([]v4l2.Framerate, error) {
	return q.rates, nil
}

// webcamQuerier is a C270-like device: YUYV in three sizes plus MJPEG.
func webcamQuerier() *fakeQuerier {
	return &fakeQuerier{
		formats: []v4l2.FormatInfo{
			{PixelFormat: v4l2.PixFmtMJPEG, FormatName: "Motion-JPEG"},
			{PixelFormat: v4l2.PixFmtYUYV, FormatName: "YUYV 4:2:2"},
			{PixelFormat: v4l2.PixFmtGrey, FormatName: "8-bit Greyscale"},
		},
		sizes: map[uint32][]v4l2.Resolution{
			v4l2.PixFmtMJPEG: {{Width: 1280, Height: 720}},
			v4l2.PixFmtYUYV:  {{Width: 1280, Height: 960}, {Width: 640, Height: 480}, {Width: 320, Height: 240}},
			v4l2.PixFmtGrey:  {{Width: 640, Height: 480}},
		},
		rates: []v4l2.Framerate{{Numerator: 1, Denominator: 30}, {Numerator: 1, Denominator: 15}, {Numerator: 2, Denominator: 15}, {Numerator: 1, Denominator: 30}},
	}
}

type fakeDevice struct {
	controls  map[webcam.ControlID]webcam.Control
	values    map[webcam.ControlID]int32
	format    webcam.PixelFormat
	width     uint32
	height    uint32
	fps       float32
	buffers   uint32
	streaming bool
	ready     []uint32
	released  []uint32
	closed    bool
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		controls: map[webcam.ControlID]webcam.Control{
			cidBrightness:       {Name: "Brightness", Min: -64, Max: 64},
			cidGain:             {Name: "Gain", Min: 0, Max: 255},
			cidAutoGain:         {Name: "Gain, Automatic", Min: 0, Max: 1},
			cidExposureAuto:     {Name: "Auto Exposure", Min: 0, Max: 3},
			cidExposureAbsolute: {Name: "Exposure Time, Absolute", Min: 3, Max: 2047},
			cidWBTemperature:    {Name: "White Balance Temperature", Min: 2800, Max: 6500},
		},
		values: map[webcam.ControlID]int32{
			cidBrightness:       0,
			cidGain:             32,
			cidAutoGain:         1,
			cidExposureAuto:     exposureAperturePriority,
			cidExposureAbsolute: 250,
			cidWBTemperature:    4000,
		},
	}
}

func (d *fakeDevice) SetImageFormat(f webcam.PixelFormat, w, h uint32) (webcam.PixelFormat, uint32, uint32, error) {
	d.format, d.width, d.height = f, w, h
	return f, w, h, nil
}

func (d *fakeDevice) SetFramerate(fps float32) error { d.fps = fps; return nil }
func (d *fakeDevice) SetBufferCount(n uint32) error  { d.buffers = n; return nil }
func (d *fakeDevice) StartStreaming() error          { d.streaming = true; return nil }

func (d *fakeDevice) StopStreaming() error {
	d.streaming = false
	d.ready = nil
	return nil
}

func (d *fakeDevice) WaitForFrame(uint32) error {
	if len(d.ready) == 0 {
		return &webcam.Timeout{}
	}
	return nil
}

func (d *fakeDevice) GetFrame() ([]byte, uint32, error) {
	index := d.ready[0]
	d.ready = d.ready[1:]
	return make([]byte, d.width*d.height*2), index, nil
}

func (d *fakeDevice) ReleaseFrame(index uint32) error {
	d.released = append(d.released, index)
	return nil
}

func (d *fakeDevice) GetControls() map[webcam.ControlID]webcam.Control { return d.controls }

func (d *fakeDevice) GetControl(id webcam.ControlID) (int32, error) {
	v, ok := d.values[id]
	if !ok {
		return 0, errors.New("no such control")
	}
	return v, nil
}

func (d *fakeDevice) SetControl(id webcam.ControlID, value int32) error {
	c, ok := d.controls[id]
	if !ok {
		return errors.New("no such control")
	}
	if value < c.Min || value > c.Max {
		return errors.New("value out of range")
	}
	d.values[id] = value
	return nil
}

func (d *fakeDevice) Close() error { d.closed = true; return nil }

func newTestBus(dev *fakeDevice, q querier, devices ...v4l2.DeviceInfo) *Bus {
	b := NewBus(WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	b.find = func() ([]v4l2.DeviceInfo, error) { return devices, nil }
	b.open = func(string) (device, error) { return dev, nil }
	b.query = func(string) querier { return q }
	return b
}

var c270 = v4l2.DeviceInfo{
	DevicePath: "/dev/video0",
	DeviceName: "UVC Camera (046d:0825)",
	DeviceID:   "usb-046d_0825_C4F1A2B0-video-index0",
	USB: v4l2.USBInfo{
		VendorID:     0x046d,
		ProductID:    0x0825,
		Serial:       "C4F1A2B0",
		Manufacturer: "Logitech",
		Product:      "Webcam C270",
	},
}

func openTestCamera(t *testing.T) (*Camera, *fakeDevice) {
	t.Helper()
	dev := newFakeDevice()
	bus := newTestBus(dev, webcamQuerier(), c270)
	ids, err := bus.Cameras()
	if err != nil || len(ids) != 1 {
		t.Fatalf("Cameras() = %v, %v", ids, err)
	}
	cam, err := bus.Open(ids[0].GUID)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { cam.Close() })
	return cam.(*Camera), dev
}

func TestIdentify(t *testing.T) {
	id := Identify(c270)
	if id.GUID>>32 != 0x046d0825 {
		t.Errorf("GUID %016x does not carry the USB vendor and product", id.GUID)
	}
	if id.Vendor != "Logitech" || id.Model != "Webcam C270" {
		t.Errorf("Identify() = %+v", id)
	}

	other := c270
	other.USB.Serial = "0000"
	if Identify(other).GUID == id.GUID {
		t.Error("two serials gave the same GUID")
	}

	bare := v4l2.DeviceInfo{DeviceName: "platform cam", DeviceID: "platform-x-video-index0"}
	if got := Identify(bare); got.Vendor != "UVC" || got.Model != "platform cam" {
		t.Errorf("Identify(non-USB) = %+v", got)
	}
}

func TestCamerasFiltersDevices(t *testing.T) {
	mjpegOnly := &fakeQuerier{formats: []v4l2.FormatInfo{{PixelFormat: v4l2.PixFmtMJPEG}}}

	tests := []struct {
		name  string
		q     querier
		opts  []Option
		count int
	}{
		{name: "raw formats", q: webcamQuerier(), count: 1},
		{name: "compressed only", q: mjpegOnly, count: 0},
		{name: "filter by path", q: webcamQuerier(), opts: []Option{WithDevices("/dev/video0")}, count: 1},
		{name: "filter by id", q: webcamQuerier(), opts: []Option{WithDevices(c270.DeviceID)}, count: 1},
		{name: "filtered out", q: webcamQuerier(), opts: []Option{WithDevices("/dev/video9")}, count: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBus(tt.opts...)
			b.find = func() ([]v4l2.DeviceInfo, error) { return []v4l2.DeviceInfo{c270}, nil }
			b.query = func(string) querier { return tt.q }
			ids, err := b.Cameras()
			if err != nil {
				t.Fatal(err)
			}
			if len(ids) != tt.count {
				t.Errorf("Cameras() listed %d, want %d", len(ids), tt.count)
			}
		})
	}
}

func TestOpenUnknownAndClosed(t *testing.T) {
	b := newTestBus(newFakeDevice(), webcamQuerier(), c270)
	if _, err := b.Open(1); !errors.Is(err, iidc.ErrNoSuchCamera) {
		t.Errorf("Open(unknown) error = %v, want ErrNoSuchCamera", err)
	}
	b.Close()
	if _, err := b.Cameras(); !errors.Is(err, iidc.ErrClosed) {
		t.Errorf("Cameras() after Close error = %v, want ErrClosed", err)
	}
}

func TestProbeModes(t *testing.T) {
	modes, err := probeModes(webcamQuerier())
	if err != nil {
		t.Fatal(err)
	}

	want := map[iidc.VideoMode]iidc.ModeInfo{
		{Format: 0, Mode: 0}: {Width: 320, Height: 240, Coding: iidc.CodingYUV422},
		{Format: 0, Mode: 1}: {Width: 640, Height: 480, Coding: iidc.CodingMono8},
		{Format: 0, Mode: 2}: {Width: 640, Height: 480, Coding: iidc.CodingYUV422},
		{Format: 2, Mode: 0}: {Width: 1280, Height: 960, Coding: iidc.CodingYUV422},
	}
	if len(modes) != len(want) {
		t.Fatalf("probeModes() found %d modes, want %d: %v", len(modes), len(want), modes)
	}
	for vm, info := range want {
		got, ok := modes[vm]
		if !ok {
			t.Errorf("mode %s missing", vm)
			continue
		}
		if got.info != info {
			t.Errorf("mode %s = %+v, want %+v", vm, got.info, info)
		}
	}

	rates := modes[iidc.VideoMode{Format: 0, Mode: 2}].rates
	if len(rates) != 3 || rates[0] != 7.5 || rates[1] != 15 || rates[2] != 30 {
		t.Errorf("rates = %v, want [7.5 15 30]", rates)
	}
}

func TestProbeModesPrefersUYVY(t *testing.T) {
	q := &fakeQuerier{
		formats: []v4l2.FormatInfo{{PixelFormat: v4l2.PixFmtYUYV}, {PixelFormat: v4l2.PixFmtUYVY}},
		sizes: map[uint32][]v4l2.Resolution{
			v4l2.PixFmtYUYV: {{Width: 640, Height: 480}},
			v4l2.PixFmtUYVY: {{Width: 640, Height: 480}},
		},
		rates: []v4l2.Framerate{{Numerator: 1, Denominator: 30}},
	}
	modes, err := probeModes(q)
	if err != nil {
		t.Fatal(err)
	}
	if len(modes) != 1 {
		t.Fatalf("probeModes() = %v, want one mode", modes)
	}
	if got := modes[iidc.VideoMode{}].pixfmt; got != v4l2.PixFmtUYVY {
		t.Errorf("pixel format %s, want UYVY", v4l2.FormatFourCC(got))
	}
}

func TestFeatures(t *testing.T) {
	cam, dev := openTestCamera(t)

	brightness, err := cam.Feature(iidc.FeatureBrightness)
	if err != nil {
		t.Fatal(err)
	}
	if !brightness.Available || brightness.Min != 0 || brightness.Max != 128 || brightness.Value != 64 {
		t.Errorf("brightness = %+v, want range 0..128 at 64", brightness)
	}
	if brightness.AutoCapable {
		t.Error("brightness reported auto capable")
	}

	if err := cam.SetFeatureValue(iidc.FeatureBrightness, 128); err != nil {
		t.Fatal(err)
	}
	if dev.values[cidBrightness] != 64 {
		t.Errorf("brightness control = %d, want 64", dev.values[cidBrightness])
	}
	if err := cam.SetFeatureValue(iidc.FeatureBrightness, 129); !errors.Is(err, iidc.ErrOutOfRange) {
		t.Errorf("SetFeatureValue above range error = %v, want ErrOutOfRange", err)
	}

	shutter, err := cam.Feature(iidc.FeatureShutter)
	if err != nil {
		t.Fatal(err)
	}
	if !shutter.AutoCapable || shutter.Mode != iidc.FeatureModeAuto {
		t.Errorf("shutter = %+v, want auto", shutter)
	}
	if err := cam.SetFeatureMode(iidc.FeatureShutter, iidc.FeatureModeManual); err != nil {
		t.Fatal(err)
	}
	if dev.values[cidExposureAuto] != exposureManual {
		t.Errorf("exposure auto = %d, want manual", dev.values[cidExposureAuto])
	}

	if err := cam.SetFeatureMode(iidc.FeatureBrightness, iidc.FeatureModeAuto); !errors.Is(err, iidc.ErrNotSupported) {
		t.Errorf("auto brightness error = %v, want ErrNotSupported", err)
	}

	for _, f := range []iidc.Feature{iidc.FeatureTrigger, iidc.FeatureFocus, iidc.FeatureTemperature} {
		fi, err := cam.Feature(f)
		if err != nil || fi.Available {
			t.Errorf("Feature(%s) = %+v, %v; want unavailable", f, fi, err)
		}
	}
	if err := cam.SetFeaturePower(iidc.FeatureGain, false); !errors.Is(err, iidc.ErrNotSupported) {
		t.Errorf("switching gain off error = %v, want ErrNotSupported", err)
	}
}

func TestWhiteBalanceTemperature(t *testing.T) {
	cam, dev := openTestCamera(t)

	ub, vr, err := cam.WhiteBalance()
	if err != nil {
		t.Fatal(err)
	}
	if ub != 1200 || vr != 1200 {
		t.Errorf("WhiteBalance() = %d, %d; want 1200 in both halves", ub, vr)
	}
	if err := cam.SetWhiteBalance(2200, 0); err != nil {
		t.Fatal(err)
	}
	if dev.values[cidWBTemperature] != 5000 {
		t.Errorf("temperature = %d, want 5000", dev.values[cidWBTemperature])
	}
}

func TestCaptureQueue(t *testing.T) {
	cam, dev := openTestCamera(t)
	vm := iidc.VideoMode{Format: 0, Mode: 2}

	if _, err := cam.Dequeue(iidc.DequeuePoll); !errors.Is(err, iidc.ErrNotCapturing) {
		t.Fatalf("Dequeue before setup error = %v, want ErrNotCapturing", err)
	}
	if err := cam.SetTransmission(true); !errors.Is(err, iidc.ErrNotCapturing) {
		t.Fatalf("SetTransmission before setup error = %v, want ErrNotCapturing", err)
	}

	if err := cam.SetVideoMode(vm); err != nil {
		t.Fatal(err)
	}
	if err := cam.SetFramerate(60); !errors.Is(err, iidc.ErrOutOfRange) {
		t.Errorf("SetFramerate(60) error = %v, want ErrOutOfRange", err)
	}
	if err := cam.SetFramerate(15); err != nil {
		t.Fatal(err)
	}
	if err := cam.SetupCapture(4); err != nil {
		t.Fatal(err)
	}
	if dev.format != webcam.PixelFormat(v4l2.PixFmtYUYV) || dev.width != 640 || dev.height != 480 {
		t.Errorf("device format %s %dx%d", v4l2.FormatFourCC(uint32(dev.format)), dev.width, dev.height)
	}
	if dev.fps != 15 || dev.buffers != 4 {
		t.Errorf("device fps %g buffers %d, want 15 and 4", dev.fps, dev.buffers)
	}

	if f, err := cam.Dequeue(iidc.DequeuePoll); f != nil || err != nil {
		t.Fatalf("Dequeue while stopped = %v, %v; want nil, nil", f, err)
	}
	if err := cam.SetTransmission(true); err != nil {
		t.Fatal(err)
	}
	if on, _ := cam.Transmission(); !on {
		t.Error("Transmission() = false after start")
	}
	if err := cam.SetVideoMode(iidc.VideoMode{}); err == nil {
		t.Error("SetVideoMode while streaming succeeded")
	}

	if f, err := cam.Dequeue(iidc.DequeuePoll); f != nil || err != nil {
		t.Fatalf("Dequeue on empty queue = %v, %v; want nil, nil", f, err)
	}

	dev.ready = []uint32{2, 3}
	f, err := cam.Dequeue(iidc.DequeuePoll)
	if err != nil || f == nil {
		t.Fatalf("Dequeue() = %v, %v", f, err)
	}
	if f.Index != 2 || f.Width != 640 || f.Height != 480 || f.Coding != iidc.CodingYUV422 {
		t.Errorf("frame = index %d %dx%d %s", f.Index, f.Width, f.Height, f.Coding)
	}
	if err := cam.Enqueue(f); err != nil {
		t.Fatal(err)
	}
	if err := cam.Enqueue(f); !errors.Is(err, iidc.ErrBufferInvalid) {
		t.Errorf("double Enqueue error = %v, want ErrBufferInvalid", err)
	}
	if len(dev.released) != 1 || dev.released[0] != 2 {
		t.Errorf("released = %v, want [2]", dev.released)
	}

	if err := cam.SetTransmission(false); err != nil {
		t.Fatal(err)
	}
	if dev.streaming {
		t.Error("device still streaming")
	}
	if _, err := cam.Dequeue(iidc.DequeueWait); !errors.Is(err, errNotStreaming) {
		t.Errorf("blocking Dequeue while stopped error = %v", err)
	}
}

func TestUnsupported(t *testing.T) {
	cam, _ := openTestCamera(t)
	vm := iidc.VideoMode{Format: iidc.ScalableFormat}

	if _, err := cam.Scalable(vm); !errors.Is(err, iidc.ErrNotSupported) {
		t.Errorf("Scalable() error = %v", err)
	}
	if _, err := cam.PacketSize(vm); !errors.Is(err, iidc.ErrNotSupported) {
		t.Errorf("PacketSize() error = %v", err)
	}
	if err := cam.SetOneShot(true); !errors.Is(err, iidc.ErrNotSupported) {
		t.Errorf("SetOneShot(true) error = %v", err)
	}
	if err := cam.SetOneShot(false); err != nil {
		t.Errorf("SetOneShot(false) error = %v", err)
	}
	if _, err := cam.ReadAdvanced(0); !errors.Is(err, iidc.ErrNotSupported) {
		t.Errorf("ReadAdvanced() error = %v", err)
	}
	caps, err := cam.Capabilities()
	if err != nil || caps.OneShot || caps.AdvancedFeatures {
		t.Errorf("Capabilities() = %+v, %v", caps, err)
	}
}

func TestClose(t *testing.T) {
	cam, dev := openTestCamera(t)
	if err := cam.Close(); err != nil {
		t.Fatal(err)
	}
	if !dev.closed {
		t.Error("device not closed")
	}
	if _, err := cam.Feature(iidc.FeatureGain); !errors.Is(err, iidc.ErrClosed) {
		t.Errorf("Feature() after Close error = %v, want ErrClosed", err)
	}
	if err := cam.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
