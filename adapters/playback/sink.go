package playback

import (
	"fmt"

	"github.com/gen2brain/malgo"
	"go.uber.org/zap"

	"github.com/soultalk/voicechat/domain"
)

// Sink drives a stream's Fill callback from an output device
type Sink interface {
	Attach(s *Stream) error
}

// MalgoSink opens one miniaudio playback device per stream
type MalgoSink struct {
	ctx    *malgo.AllocatedContext
	logger *zap.Logger
}

// NewMalgoSink initializes the audio context shared by all streams
func NewMalgoSink(logger *zap.Logger) (*MalgoSink, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug("miniaudio", zap.String("message", message))
	})
	if err != nil {
		return nil, fmt.Errorf("%w: initializing audio context: %v", domain.ErrDeviceUnavailable, err)
	}
	return &MalgoSink{ctx: ctx, logger: logger}, nil
}

// Attach implements Sink. The device is released when the stream is closed.
func (m *MalgoSink) Attach(s *Stream) error {
	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = 1
	cfg.SampleRate = uint32(s.Rate())
	cfg.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(m.ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(output, _ []byte, _ uint32) {
			s.Fill(output)
		},
	})
	if err != nil {
		return fmt.Errorf("%w: initializing playback device: %v", domain.ErrDeviceUnavailable, err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("%w: starting playback device: %v", domain.ErrDeviceUnavailable, err)
	}
	s.setDetach(device.Uninit)
	return nil
}

// Close releases the audio context
func (m *MalgoSink) Close() error {
	if err := m.ctx.Uninit(); err != nil {
		return err
	}
	m.ctx.Free()
	return nil
}
