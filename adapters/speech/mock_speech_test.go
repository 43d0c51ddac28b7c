package speech

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestMockSpeech_EndsNaturally(t *testing.T) {
	engine := NewMockSpeech(time.Millisecond, zaptest.NewLogger(t))

	ended := make(chan struct{})
	_, err := engine.Speak(context.Background(), "hello", func() { close(ended) })
	require.NoError(t, err)

	select {
	case <-ended:
	case <-time.After(time.Second):
		t.Fatal("utterance did not end")
	}
}

func TestMockSpeech_CancelEndsOnce(t *testing.T) {
	engine := NewMockSpeech(time.Hour, zaptest.NewLogger(t))

	var calls atomic.Int32
	u, err := engine.Speak(context.Background(), "hello", func() { calls.Add(1) })
	require.NoError(t, err)

	require.NoError(t, u.Cancel())
	require.NoError(t, u.Cancel())
	assert.Equal(t, int32(1), calls.Load())
}

func TestMockSpeech_PausedUtteranceDoesNotEnd(t *testing.T) {
	engine := NewMockSpeech(20*time.Millisecond, zaptest.NewLogger(t))

	var calls atomic.Int32
	u, err := engine.Speak(context.Background(), "hi", func() { calls.Add(1) })
	require.NoError(t, err)
	require.NoError(t, u.Pause())

	time.Sleep(80 * time.Millisecond)
	assert.Zero(t, calls.Load())

	require.NoError(t, u.Resume())
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestMockSpeech_DefaultPace(t *testing.T) {
	engine := NewMockSpeech(0, zaptest.NewLogger(t))
	assert.Equal(t, DefaultPerRune, engine.perRune)
}

func TestMockSpeech_NilLogger(t *testing.T) {
	engine := NewMockSpeech(time.Millisecond, nil)
	require.NotNil(t, engine.logger)

	ended := make(chan struct{})
	_, err := engine.Speak(context.Background(), "hi", func() { close(ended) })
	require.NoError(t, err)
	select {
	case <-ended:
	case <-time.After(time.Second):
		t.Fatal("utterance did not end")
	}
}
