// Package portaudio captures the microphone through PortAudio. It needs the
// system portaudio library at build time.
package portaudio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"go.uber.org/zap"

	"github.com/soultalk/voicechat/adapters/capture"
	"github.com/soultalk/voicechat/domain"
	"github.com/soultalk/voicechat/domain/repositories"
	"github.com/soultalk/voicechat/internal/audio"
)

// Device captures the default input stream
type Device struct {
	logger *zap.Logger
}

var _ repositories.CaptureDevice = (*Device)(nil)

// NewDevice creates a PortAudio capture device
func NewDevice(logger *zap.Logger) *Device {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Device{logger: logger}
}

// Acquire implements repositories.CaptureDevice
func (d *Device) Acquire(ctx context.Context, config repositories.CaptureConfig) (repositories.CaptureHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDeviceUnavailable, err)
	}
	if config.SampleRate <= 0 {
		config.SampleRate = audio.SampleRate
	}
	if config.BlockSize <= 0 {
		config.BlockSize = audio.BlockSize
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: portaudio init: %v", domain.ErrDeviceUnavailable, err)
	}

	buf := make([]float32, config.BlockSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(config.SampleRate), len(buf), buf)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: open mic: %v", domain.ErrDeviceUnavailable, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: start mic: %v", domain.ErrDeviceUnavailable, err)
	}

	h := &handle{
		stream:  stream,
		buf:     buf,
		blocks:  make(chan []float32, capture.BlockBuffer),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		logger:  d.logger,
	}
	go h.read()

	d.logger.Info("Microphone acquired",
		zap.String("driver", "portaudio"),
		zap.Int("sampleRate", config.SampleRate),
		zap.Int("blockSize", config.BlockSize))
	return h, nil
}

type handle struct {
	stream  *portaudio.Stream
	buf     []float32
	blocks  chan []float32
	done    chan struct{}
	stopped chan struct{}
	logger  *zap.Logger
	once    sync.Once
}

func (h *handle) Blocks() <-chan []float32 {
	return h.blocks
}

func (h *handle) read() {
	defer close(h.stopped)
	defer close(h.blocks)
	for {
		select {
		case <-h.done:
			return
		default:
		}

		if err := h.stream.Read(); err != nil {
			h.logger.Warn("Microphone read failed", zap.Error(err))
			return
		}
		block := make([]float32, len(h.buf))
		copy(block, h.buf)
		capture.Deliver(h.blocks, block, h.logger)
	}
}

// Release waits for the reader to finish its current block, then tears down
// the stream. Safe to call twice.
func (h *handle) Release() error {
	var err error
	h.once.Do(func() {
		close(h.done)
		<-h.stopped
		if stopErr := h.stream.Stop(); stopErr != nil {
			err = fmt.Errorf("stop mic: %w", stopErr)
		}
		h.stream.Close()
		if termErr := portaudio.Terminate(); termErr != nil && err == nil {
			err = fmt.Errorf("portaudio terminate: %w", termErr)
		}
		h.logger.Info("Microphone released", zap.String("driver", "portaudio"))
	})
	return err
}
