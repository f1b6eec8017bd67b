package keystone

import "errors"

// Error taxonomy for the keystone subsystem. Callers classify failures with
// errors.Is; the concrete cause is carried in the wrapped chain.
var (
	// ErrInvalidParameter indicates a null or malformed handle or parameter.
	// This is a caller bug, not a device condition.
	ErrInvalidParameter = errors.New("keystone: invalid parameter")

	// ErrUnsupported indicates the device has no compute-capable queue
	// family. This is an expected configuration: the subsystem stays
	// disabled and playback continues in pass-through mode.
	ErrUnsupported = errors.New("keystone: compute not supported on device")

	// ErrNotInitialized indicates an operation was attempted before the
	// required prior step (pipeline init or resource build) succeeded.
	ErrNotInitialized = errors.New("keystone: not initialized")

	// ErrDeviceResourceFailure indicates an underlying allocation, creation
	// or submission failure. It may be transient (out of device memory) or
	// permanent (driver rejection); the caller should present the
	// uncorrected source for the frame and may retry.
	ErrDeviceResourceFailure = errors.New("keystone: device resource failure")
)
