package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/smazurov/isocam/pkg/camera"
	"github.com/smazurov/isocam/pkg/iidc"
)

// CameraError is a domain error carrying a stable code for API clients.
type CameraError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CameraError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CameraError) Unwrap() error {
	return e.Cause
}

// Error codes
const (
	ErrCodeCameraNotFound  = "CAMERA_NOT_FOUND"
	ErrCodeCameraExists    = "CAMERA_EXISTS"
	ErrCodeInvalidSettings = "INVALID_SETTINGS"
	ErrCodeUnsupported     = "UNSUPPORTED"
	ErrCodeDisconnected    = "DISCONNECTED"
	ErrCodeBusy            = "BUSY"
	ErrCodeTimeout         = "TIMEOUT"
	ErrCodeDeviceError     = "DEVICE_ERROR"
	ErrCodeProfileError    = "PROFILE_ERROR"
)

// NewCameraError creates a new camera error
func NewCameraError(code, message string, cause error) *CameraError {
	return &CameraError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// classify wraps a session error with the code matching its sentinel.
func classify(cameraID, action string, err error) error {
	if err == nil {
		return nil
	}
	var ce *CameraError
	if errors.As(err, &ce) {
		return err
	}

	msg := fmt.Sprintf("%s camera %s", action, cameraID)
	switch {
	case errors.Is(err, camera.ErrInvalidArgument):
		return NewCameraError(ErrCodeInvalidSettings, msg, err)
	case errors.Is(err, camera.ErrUnsupported), errors.Is(err, iidc.ErrNotSupported):
		return NewCameraError(ErrCodeUnsupported, msg, err)
	case errors.Is(err, camera.ErrDisconnected), errors.Is(err, camera.ErrNilSession):
		return NewCameraError(ErrCodeDisconnected, msg, err)
	case errors.Is(err, camera.ErrSequence):
		return NewCameraError(ErrCodeBusy, msg, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return NewCameraError(ErrCodeTimeout, msg, err)
	default:
		return NewCameraError(ErrCodeDeviceError, msg, err)
	}
}

// splitUnavailable separates feature-unavailable reports, which a
// settings change survives, from real failures.
func splitUnavailable(err error) (warnings []string, rest error) {
	if err == nil {
		return nil, nil
	}
	errs := []error{err}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	}
	var failures []error
	for _, e := range errs {
		if errors.Is(e, camera.ErrFeatureUnavailable) {
			warnings = append(warnings, e.Error())
		} else {
			failures = append(failures, e)
		}
	}
	return warnings, errors.Join(failures...)
}
