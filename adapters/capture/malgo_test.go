package capture

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soultalk/voicechat/domain"
	"github.com/soultalk/voicechat/domain/repositories"
)

func TestMalgoDevice_NilLogger(t *testing.T) {
	device := NewMalgoDevice(nil)
	require.NotNil(t, device.logger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	handle, err := device.Acquire(ctx, repositories.CaptureConfig{})
	assert.Nil(t, handle)
	assert.ErrorIs(t, err, domain.ErrDeviceUnavailable)
}
