package recorder

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/soultalk/voicechat/domain"
	"github.com/soultalk/voicechat/domain/entities"
	"github.com/soultalk/voicechat/domain/repositories"
	"github.com/soultalk/voicechat/internal/audio"
	"github.com/soultalk/voicechat/internal/metrics"
)

type fakeHandle struct {
	device *fakeDevice
	blocks chan []float32
}

func (h *fakeHandle) Blocks() <-chan []float32 { return h.blocks }

func (h *fakeHandle) Release() error {
	h.device.released++
	return nil
}

type fakeDevice struct {
	err      error
	acquired int
	released int
	config   repositories.CaptureConfig
}

func (d *fakeDevice) Acquire(ctx context.Context, config repositories.CaptureConfig) (repositories.CaptureHandle, error) {
	if d.err != nil {
		return nil, d.err
	}
	d.acquired++
	d.config = config
	return &fakeHandle{device: d, blocks: make(chan []float32, 4)}, nil
}

func TestController_StopFromIdle(t *testing.T) {
	device := &fakeDevice{}
	c := NewController(device, zaptest.NewLogger(t))

	container, err := c.Stop()
	require.NoError(t, err)
	assert.Empty(t, container)
	assert.Equal(t, entities.RecordingIdle, c.State())
	assert.Equal(t, 0, device.acquired)
	assert.Equal(t, 0, device.released)
}

func TestController_RecordAndStop(t *testing.T) {
	device := &fakeDevice{}
	c := NewController(device, zaptest.NewLogger(t))

	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, entities.RecordingCapturing, c.State())
	assert.NotNil(t, c.Blocks())
	assert.Equal(t, audio.SampleRate, device.config.SampleRate)
	assert.Equal(t, audio.BlockSize, device.config.BlockSize)

	c.HandleBlock(make([]float32, audio.BlockSize))
	c.HandleBlock(make([]float32, audio.BlockSize))

	container, err := c.Stop()
	require.NoError(t, err)
	assert.Len(t, container, audio.HeaderSize+2*2*audio.BlockSize)
	assert.Equal(t, entities.RecordingIdle, c.State())
	assert.Nil(t, c.Blocks())
	assert.Equal(t, 1, device.acquired)
	assert.Equal(t, 1, device.released)

	// a second stop is a no-op and must not release again
	container, err = c.Stop()
	require.NoError(t, err)
	assert.Empty(t, container)
	assert.Equal(t, 1, device.released)
}

func TestController_StartWhileCapturingIsRejected(t *testing.T) {
	device := &fakeDevice{}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	c := NewController(device, zaptest.NewLogger(t), WithMetrics(m))

	require.NoError(t, c.Start(context.Background()))
	err := c.Start(context.Background())
	assert.ErrorIs(t, err, domain.ErrAlreadyRecording)
	assert.Equal(t, 1, device.acquired)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordingsRejected.WithLabelValues("already_recording")))

	_, err = c.Stop()
	require.NoError(t, err)
	assert.Equal(t, 1, device.released)
}

func TestController_DeviceUnavailable(t *testing.T) {
	device := &fakeDevice{err: errors.New("permission denied")}
	c := NewController(device, zaptest.NewLogger(t))

	err := c.Start(context.Background())
	assert.ErrorIs(t, err, domain.ErrDeviceUnavailable)
	assert.Equal(t, entities.RecordingIdle, c.State())
	assert.Nil(t, c.Blocks())
	assert.Equal(t, 0, device.released)

	container, err := c.Stop()
	require.NoError(t, err)
	assert.Empty(t, container)
}

func TestController_EncoderFailureStillReleases(t *testing.T) {
	device := &fakeDevice{}
	failing := func([]float32, int) ([]byte, error) {
		return nil, domain.ErrEncodingPrecondition
	}
	c := NewController(device, zaptest.NewLogger(t), WithEncoder(failing))

	require.NoError(t, c.Start(context.Background()))
	c.HandleBlock([]float32{0.1})

	_, err := c.Stop()
	assert.ErrorIs(t, err, domain.ErrEncodingPrecondition)
	assert.Equal(t, entities.RecordingIdle, c.State())
	assert.Equal(t, 1, device.released)

	// the controller is usable again
	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, 2, device.acquired)
}

func TestController_BlocksOutsideSessionAreDropped(t *testing.T) {
	device := &fakeDevice{}
	c := NewController(device, zaptest.NewLogger(t))

	c.HandleBlock([]float32{1, 1, 1})
	require.NoError(t, c.Start(context.Background()))
	c.HandleBlock([]float32{0.5})

	container, err := c.Stop()
	require.NoError(t, err)

	info, err := audio.InspectWAV(container)
	require.NoError(t, err)
	assert.Equal(t, 1, info.Samples)
}

func TestController_Abort(t *testing.T) {
	device := &fakeDevice{}
	c := NewController(device, zaptest.NewLogger(t))

	require.NoError(t, c.Start(context.Background()))
	c.HandleBlock([]float32{0.5})
	c.Abort()
	c.Abort()

	assert.Equal(t, entities.RecordingIdle, c.State())
	assert.Equal(t, 1, device.released)
}
