package capture

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"go.uber.org/zap"

	"github.com/soultalk/voicechat/domain"
	"github.com/soultalk/voicechat/domain/repositories"
	"github.com/soultalk/voicechat/internal/audio"
)

// BlockBuffer is how many blocks may queue up before capture starts dropping
const BlockBuffer = 64

// MalgoDevice captures the default microphone through miniaudio
type MalgoDevice struct {
	logger *zap.Logger
}

var _ repositories.CaptureDevice = (*MalgoDevice)(nil)

// NewMalgoDevice creates a capture device backed by malgo
func NewMalgoDevice(logger *zap.Logger) *MalgoDevice {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MalgoDevice{logger: logger}
}

// Acquire implements repositories.CaptureDevice
func (d *MalgoDevice) Acquire(ctx context.Context, config repositories.CaptureConfig) (repositories.CaptureHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDeviceUnavailable, err)
	}
	if config.SampleRate <= 0 {
		config.SampleRate = audio.SampleRate
	}
	if config.BlockSize <= 0 {
		config.BlockSize = audio.BlockSize
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: initializing audio context: %v", domain.ErrDeviceUnavailable, err)
	}

	h := &malgoHandle{
		ctx:     mctx,
		blocks:  make(chan []float32, BlockBuffer),
		chunker: NewChunker(config.BlockSize),
		logger:  d.logger,
	}

	deviceCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceCfg.Capture.Format = malgo.FormatF32
	deviceCfg.Capture.Channels = 1
	deviceCfg.SampleRate = uint32(config.SampleRate)

	device, err := malgo.InitDevice(mctx.Context, deviceCfg, malgo.DeviceCallbacks{Data: h.onData})
	if err != nil {
		h.freeContext()
		return nil, fmt.Errorf("%w: initializing capture device: %v", domain.ErrDeviceUnavailable, err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		h.freeContext()
		return nil, fmt.Errorf("%w: starting capture device: %v", domain.ErrDeviceUnavailable, err)
	}
	h.device = device

	d.logger.Info("Microphone acquired",
		zap.String("driver", "malgo"),
		zap.Int("sampleRate", config.SampleRate),
		zap.Int("blockSize", config.BlockSize))
	return h, nil
}

type malgoHandle struct {
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	chunker *Chunker
	logger  *zap.Logger

	mu      sync.Mutex
	closed  bool
	blocks  chan []float32
	release sync.Once
}

func (h *malgoHandle) Blocks() <-chan []float32 {
	return h.blocks
}

// Release stops the device and closes the block channel. Safe to call twice.
func (h *malgoHandle) Release() error {
	var err error
	h.release.Do(func() {
		h.mu.Lock()
		h.closed = true
		h.mu.Unlock()

		if h.device != nil {
			h.device.Uninit()
		}
		err = h.freeContext()

		h.mu.Lock()
		close(h.blocks)
		h.mu.Unlock()
		h.logger.Info("Microphone released", zap.String("driver", "malgo"))
	})
	return err
}

func (h *malgoHandle) freeContext() error {
	if err := h.ctx.Uninit(); err != nil {
		return fmt.Errorf("uninitializing audio context: %w", err)
	}
	h.ctx.Free()
	return nil
}

// onData runs on the audio thread
func (h *malgoHandle) onData(_, input []byte, _ uint32) {
	samples := bytesToFloat32(input)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.chunker.Push(samples, func(block []float32) {
		Deliver(h.blocks, block, h.logger)
	})
}
