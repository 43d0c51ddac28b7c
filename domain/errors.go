package domain

import "errors"

var (
	// ErrDeviceUnavailable is returned when the capture device cannot be acquired
	// (permission denied, no input hardware, driver failure).
	ErrDeviceUnavailable = errors.New("capture device unavailable")

	// ErrTransportFailure is returned when a backend request fails or the backend
	// responds with a non-success status.
	ErrTransportFailure = errors.New("backend transport failure")

	// ErrEncodingPrecondition is returned when the encoder is called with an
	// impossible configuration such as a non-positive sample rate.
	ErrEncodingPrecondition = errors.New("encoding precondition violated")

	// ErrAlreadyRecording is returned when a recording is started while another
	// one is still capturing or flushing.
	ErrAlreadyRecording = errors.New("recording already in progress")

	ErrEntryNotFound = errors.New("timeline entry not found")
	ErrNotRetryable  = errors.New("timeline entry is not retryable")
)
