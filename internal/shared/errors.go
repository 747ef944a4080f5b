package shared

import "errors"

var (
	ErrDeviceAccessDenied = errors.New("device access denied")
	ErrDeviceUnavailable  = errors.New("device unavailable")
	ErrAlreadyRecording   = errors.New("capture already recording")
	ErrAlreadyOpen        = errors.New("connection already open")
	ErrConnectionClosed   = errors.New("connection closed")
)

// IsDeviceError reports whether err belongs to the device failure taxonomy,
// i.e. a Start call failed before any stream was acquired.
func IsDeviceError(err error) bool {
	return errors.Is(err, ErrDeviceAccessDenied) || errors.Is(err, ErrDeviceUnavailable)
}
