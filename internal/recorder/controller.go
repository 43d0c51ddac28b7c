package recorder

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/soultalk/voicechat/domain"
	"github.com/soultalk/voicechat/domain/entities"
	"github.com/soultalk/voicechat/domain/repositories"
	"github.com/soultalk/voicechat/internal/audio"
	"github.com/soultalk/voicechat/internal/metrics"
)

// EncodeFunc turns a merged sample buffer into a container
type EncodeFunc func(samples []float32, sampleRate int) ([]byte, error)

// Controller owns the lifecycle of one capture session at a time: acquire the
// device, accumulate blocks, release, merge and encode. It must be driven from a
// single goroutine.
type Controller struct {
	device  repositories.CaptureDevice
	handle  repositories.CaptureHandle
	acc     *audio.Accumulator
	state   entities.RecordingState
	config  repositories.CaptureConfig
	encode  EncodeFunc
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// Option configures a Controller
type Option func(*Controller)

// WithEncoder replaces the WAV encoder
func WithEncoder(encode EncodeFunc) Option {
	return func(c *Controller) {
		c.encode = encode
	}
}

// WithMetrics records capture and encoding counters into m
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithCaptureConfig overrides the sample rate and block size requested from the device
func WithCaptureConfig(config repositories.CaptureConfig) Option {
	return func(c *Controller) {
		c.config = config
	}
}

// NewController creates a recording controller for device
func NewController(device repositories.CaptureDevice, logger *zap.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Controller{
		device: device,
		acc:    audio.NewAccumulator(),
		state:  entities.RecordingIdle,
		config: repositories.CaptureConfig{
			SampleRate: audio.SampleRate,
			BlockSize:  audio.BlockSize,
		},
		encode: audio.EncodeWAV,
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current recording state
func (c *Controller) State() entities.RecordingState {
	return c.state
}

// Start acquires the capture device. A start while a recording is active is
// rejected with domain.ErrAlreadyRecording; device failures wrap
// domain.ErrDeviceUnavailable and leave the controller idle.
func (c *Controller) Start(ctx context.Context) error {
	if c.state != entities.RecordingIdle {
		c.metrics.RecordingRejected("already_recording")
		return domain.ErrAlreadyRecording
	}

	handle, err := c.device.Acquire(ctx, c.config)
	if err == nil && handle == nil {
		err = errors.New("device returned no capture handle")
	}
	if err != nil {
		c.metrics.RecordingRejected("device_unavailable")
		c.logger.Warn("Failed to acquire capture device", zap.Error(err))
		if errors.Is(err, domain.ErrDeviceUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %v", domain.ErrDeviceUnavailable, err)
	}

	c.handle = handle
	c.acc.Reset()
	c.state = entities.RecordingCapturing
	c.metrics.RecordingStarted()

	c.logger.Info("Recording started",
		zap.Int("sampleRate", c.config.SampleRate),
		zap.Int("blockSize", c.config.BlockSize))
	return nil
}

// Blocks returns the live block channel, or nil when not capturing so that a
// select on it never fires.
func (c *Controller) Blocks() <-chan []float32 {
	if c.state != entities.RecordingCapturing || c.handle == nil {
		return nil
	}
	return c.handle.Blocks()
}

// HandleBlock appends one captured block. Blocks arriving outside a capture
// session are dropped.
func (c *Controller) HandleBlock(block []float32) {
	if c.state != entities.RecordingCapturing {
		c.logger.Debug("Dropping block outside capture session", zap.Int("samples", len(block)))
		return
	}
	c.acc.Append(block)
	c.metrics.BlockCaptured(len(block))
}

// Stop ends the capture session and returns the encoded container. From Idle it
// returns an empty container and no error. The device is released before
// encoding and the controller is Idle again on return whatever the outcome.
func (c *Controller) Stop() ([]byte, error) {
	if c.state != entities.RecordingCapturing {
		return []byte{}, nil
	}

	c.state = entities.RecordingFlushing
	defer func() {
		c.state = entities.RecordingIdle
	}()

	c.release()

	samples := c.acc.Merge()
	container, err := c.encode(samples, c.config.SampleRate)
	if err != nil {
		c.metrics.EncodeFailed()
		c.logger.Error("Failed to encode recording",
			zap.Int("samples", len(samples)),
			zap.Error(err))
		return nil, fmt.Errorf("failed to encode recording: %w", err)
	}

	c.metrics.ContainerEncoded(len(samples), c.config.SampleRate)
	c.logger.Info("Recording stopped",
		zap.Int("samples", len(samples)),
		zap.Int("containerBytes", len(container)))
	return container, nil
}

// Abort releases the device and discards anything captured so far
func (c *Controller) Abort() {
	if c.state == entities.RecordingIdle {
		return
	}
	c.release()
	c.acc.Reset()
	c.state = entities.RecordingIdle
	c.logger.Info("Recording aborted")
}

func (c *Controller) release() {
	handle := c.handle
	c.handle = nil
	if handle == nil {
		return
	}
	if err := handle.Release(); err != nil {
		c.logger.Warn("Failed to release capture device", zap.Error(err))
	}
}
