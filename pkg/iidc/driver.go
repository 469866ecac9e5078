package iidc

import "errors"

// Driver errors.
var (
	ErrNotSupported  = errors.New("iidc: not supported by device")
	ErrNotCapturing  = errors.New("iidc: capture not set up")
	ErrClosed        = errors.New("iidc: camera closed")
	ErrOutOfRange    = errors.New("iidc: value out of range")
	ErrNoSuchCamera  = errors.New("iidc: no such camera")
	ErrBufferInvalid = errors.New("iidc: buffer does not belong to this camera")
)

// Bus enumerates and opens cameras.
type Bus interface {
	// Cameras lists the cameras currently attached.
	Cameras() ([]Identity, error)

	// Open opens the camera with the given GUID.
	Open(guid uint64) (Camera, error)

	// Close releases the bus handle. Cameras opened from it must be closed first.
	Close() error
}

// Camera is one opened device.
//
// Implementations are not required to be safe for concurrent use.
type Camera interface {
	Identity() Identity
	Capabilities() (BasicCapabilities, error)

	// Feature reads the inquiry and status registers of f. An absent
	// feature is reported with Available false and a nil error.
	Feature(f Feature) (FeatureInfo, error)
	SetFeatureValue(f Feature, value uint32) error
	SetFeaturePower(f Feature, on bool) error
	SetFeatureMode(f Feature, mode FeatureMode) error

	// WhiteBalance reads the U/B and V/R register pair.
	WhiteBalance() (ub, vr uint32, err error)
	SetWhiteBalance(ub, vr uint32) error

	TriggerPolarity() (activeHigh bool, err error)
	SetTriggerPolarity(activeHigh bool) error

	// Mode describes a fixed video mode.
	Mode(m VideoMode) (ModeInfo, error)
	SupportedModes() ([]VideoMode, error)
	SetVideoMode(m VideoMode) error
	SetISOSpeed(s ISOSpeed) error

	// SupportedFramerates lists the frame rates of a fixed mode in frames per second.
	SupportedFramerates(m VideoMode) ([]float64, error)
	SetFramerate(fps float64) error

	Scalable(m VideoMode) (ScalableInfo, error)
	SetColorCoding(m VideoMode, c ColorCoding) error
	SetImagePosition(m VideoMode, left, top int) error
	SetImageSize(m VideoMode, width, height int) error
	SetPacketSize(m VideoMode, bytes int) error
	PacketSize(m VideoMode) (int, error)

	// Transmission is the continuous ISO transmission switch.
	Transmission() (bool, error)
	SetTransmission(on bool) error

	// OneShot is the self-clearing single frame trigger.
	OneShot() (bool, error)
	SetOneShot(on bool) error

	SetupCapture(buffers int) error
	StopCapture() error

	// Dequeue returns the next filled buffer. With DequeuePoll it returns
	// a nil frame and a nil error when no buffer is ready.
	Dequeue(p DequeuePolicy) (*Frame, error)
	Enqueue(f *Frame) error

	// ReadAdvanced and WriteAdvanced access the vendor advanced feature block.
	ReadAdvanced(offset uint64) (uint32, error)
	WriteAdvanced(offset uint64, value uint32) error

	Reset() error
	Close() error
}
