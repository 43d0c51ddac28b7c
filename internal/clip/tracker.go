package clip

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/soultalk/voicechat/domain/entities"
	"github.com/soultalk/voicechat/domain/repositories"
)

// Tracker keeps the play/progress state of one voice clip. It exclusively owns
// its media handle and must be driven from a single goroutine.
type Tracker struct {
	handle repositories.MediaHandle
	state  entities.ClipState
	logger *zap.Logger
}

// NewTracker wraps handle. The tracker closes the handle on Close.
func NewTracker(handle repositories.MediaHandle, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		handle: handle,
		logger: logger,
	}
}

// State returns the current clip state
func (t *Tracker) State() entities.ClipState {
	return t.state
}

// TogglePlay starts a paused clip or pauses a playing one
func (t *Tracker) TogglePlay() error {
	if t.handle.Paused() {
		if err := t.handle.Play(); err != nil {
			return fmt.Errorf("failed to play clip: %w", err)
		}
		t.state.IsPlaying = true
		return nil
	}

	if err := t.handle.Pause(); err != nil {
		return fmt.Errorf("failed to pause clip: %w", err)
	}
	t.state.IsPlaying = false
	return nil
}

// Seek moves playback to ratio of the clip length. Ratios outside [0, 1] are
// clamped; nothing happens while the duration is unknown.
func (t *Tracker) Seek(ratio float64) error {
	duration := t.handle.Duration()
	if math.IsNaN(duration) || math.IsInf(duration, 0) || duration <= 0 {
		t.logger.Debug("Ignoring seek before duration is known")
		return nil
	}

	switch {
	case math.IsNaN(ratio) || ratio < 0:
		ratio = 0
	case ratio > 1:
		ratio = 1
	}

	if err := t.handle.Seek(ratio * duration); err != nil {
		return fmt.Errorf("failed to seek clip: %w", err)
	}
	t.state.ProgressRatio = ratio
	return nil
}

// HandleEvent applies a playback notification from the media handle
func (t *Tracker) HandleEvent(event repositories.MediaEvent) {
	switch event.Kind {
	case repositories.MediaPlay:
		t.state.IsPlaying = true
	case repositories.MediaPause:
		t.state.IsPlaying = false
	case repositories.MediaTimeUpdate:
		t.state.ProgressRatio = t.progress()
	case repositories.MediaEnded:
		t.state = entities.ClipState{}
	default:
		t.logger.Warn("Unknown media event", zap.String("kind", string(event.Kind)))
	}
}

// Close releases the media handle
func (t *Tracker) Close() error {
	if err := t.handle.Close(); err != nil {
		return fmt.Errorf("failed to close clip: %w", err)
	}
	return nil
}

func (t *Tracker) progress() float64 {
	duration := t.handle.Duration()
	if duration == 0 {
		return math.NaN()
	}
	return t.handle.CurrentTime() / duration
}
