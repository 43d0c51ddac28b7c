package clip

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/soultalk/voicechat/domain/entities"
	"github.com/soultalk/voicechat/domain/repositories"
)

type fakeHandle struct {
	paused   bool
	current  float64
	duration float64
	closed   int
}

func newFakeHandle(duration float64) *fakeHandle {
	return &fakeHandle{paused: true, duration: duration}
}

func (h *fakeHandle) Play() error          { h.paused = false; return nil }
func (h *fakeHandle) Pause() error         { h.paused = true; return nil }
func (h *fakeHandle) Paused() bool         { return h.paused }
func (h *fakeHandle) CurrentTime() float64 { return h.current }
func (h *fakeHandle) Duration() float64    { return h.duration }
func (h *fakeHandle) Close() error         { h.closed++; return nil }

func (h *fakeHandle) Seek(seconds float64) error {
	h.current = seconds
	return nil
}

func TestTracker_TogglePlay(t *testing.T) {
	handle := newFakeHandle(4)
	tracker := NewTracker(handle, zaptest.NewLogger(t))

	require.NoError(t, tracker.TogglePlay())
	assert.True(t, tracker.State().IsPlaying)
	assert.False(t, handle.paused)

	require.NoError(t, tracker.TogglePlay())
	assert.False(t, tracker.State().IsPlaying)
	assert.True(t, handle.paused)
}

func TestTracker_ProgressIsMonotonicAndResetsOnEnd(t *testing.T) {
	handle := newFakeHandle(2.5)
	tracker := NewTracker(handle, zaptest.NewLogger(t))
	require.NoError(t, tracker.TogglePlay())

	last := 0.0
	for step := 0; step <= 25; step++ {
		handle.current = float64(step) * 0.1
		tracker.HandleEvent(repositories.MediaEvent{Kind: repositories.MediaTimeUpdate})

		ratio := tracker.State().ProgressRatio
		assert.GreaterOrEqual(t, ratio, last, "step %d", step)
		last = ratio
	}
	assert.InDelta(t, 1.0, last, 1e-9)

	tracker.HandleEvent(repositories.MediaEvent{Kind: repositories.MediaEnded})
	assert.Equal(t, entities.ClipState{IsPlaying: false, ProgressRatio: 0}, tracker.State())
}

func TestTracker_UnknownDurationYieldsNaN(t *testing.T) {
	handle := newFakeHandle(math.NaN())
	tracker := NewTracker(handle, zaptest.NewLogger(t))

	handle.current = 1
	tracker.HandleEvent(repositories.MediaEvent{Kind: repositories.MediaTimeUpdate})

	assert.True(t, math.IsNaN(tracker.State().ProgressRatio))
	assert.Equal(t, 0.0, tracker.State().Display())
}

func TestTracker_Seek(t *testing.T) {
	handle := newFakeHandle(3)
	tracker := NewTracker(handle, zaptest.NewLogger(t))

	require.NoError(t, tracker.Seek(0.5))
	assert.InDelta(t, 1.5, handle.current, 1e-9)
	assert.InDelta(t, 0.5, tracker.State().ProgressRatio, 1e-9)

	require.NoError(t, tracker.Seek(1.7))
	assert.InDelta(t, 3.0, handle.current, 1e-9)

	require.NoError(t, tracker.Seek(-0.2))
	assert.InDelta(t, 0.0, handle.current, 1e-9)
}

func TestTracker_SeekWithoutDurationIsNoop(t *testing.T) {
	handle := newFakeHandle(math.NaN())
	handle.current = 0.4
	tracker := NewTracker(handle, zaptest.NewLogger(t))

	require.NoError(t, tracker.Seek(0.5))
	assert.Equal(t, 0.4, handle.current)
}

func TestTracker_PlayPauseEvents(t *testing.T) {
	tracker := NewTracker(newFakeHandle(1), zaptest.NewLogger(t))

	tracker.HandleEvent(repositories.MediaEvent{Kind: repositories.MediaPlay})
	assert.True(t, tracker.State().IsPlaying)

	tracker.HandleEvent(repositories.MediaEvent{Kind: repositories.MediaPause})
	assert.False(t, tracker.State().IsPlaying)
}

func TestTracker_IndependentHandles(t *testing.T) {
	first := newFakeHandle(2)
	second := newFakeHandle(2)
	a := NewTracker(first, zaptest.NewLogger(t))
	b := NewTracker(second, zaptest.NewLogger(t))

	require.NoError(t, a.TogglePlay())
	assert.True(t, a.State().IsPlaying)
	assert.False(t, b.State().IsPlaying)
	assert.True(t, second.paused)

	require.NoError(t, a.Close())
	assert.Equal(t, 1, first.closed)
	assert.Equal(t, 0, second.closed)
}
