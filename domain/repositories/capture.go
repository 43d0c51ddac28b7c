package repositories

import "context"

// CaptureConfig describes the stream a capture device must deliver
type CaptureConfig struct {
	SampleRate int `json:"sample_rate"`
	BlockSize  int `json:"block_size"`
}

// CaptureDevice opens the microphone
type CaptureDevice interface {
	// Acquire starts capturing. Failures wrap domain.ErrDeviceUnavailable.
	Acquire(ctx context.Context, config CaptureConfig) (CaptureHandle, error)
}

// CaptureHandle is a live capture stream. Blocks delivers mono float32 blocks of
// exactly BlockSize samples in [-1, 1]; the channel is closed after Release or
// when the device is lost.
type CaptureHandle interface {
	Blocks() <-chan []float32
	Release() error
}
