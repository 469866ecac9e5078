package camera

import "errors"

// Session errors. Driver errors are wrapped and passed through.
var (
	ErrNilSession         = errors.New("camera: nil or destroyed session")
	ErrDisconnected       = errors.New("camera: session disconnected")
	ErrSequence           = errors.New("camera: frame already acquired, release it first")
	ErrUnsupported        = errors.New("camera: unsupported by this camera or mode")
	ErrInvalidArgument    = errors.New("camera: invalid argument")
	ErrFeatureUnavailable = errors.New("camera: feature unavailable")
)
