package speech

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/soultalk/voicechat/domain/entities"
	"github.com/soultalk/voicechat/domain/repositories"
	"github.com/soultalk/voicechat/internal/metrics"
)

// UtteranceID identifies one Speak call. Zero means none.
type UtteranceID uint64

// Controller is the single-flight state machine for spoken replies. At most one
// utterance is audible; a new one always preempts the previous. It must be
// driven from a single goroutine.
type Controller struct {
	engine   repositories.SpeechEngine
	active   repositories.Utterance
	activeID UtteranceID
	nextID   UtteranceID
	state    entities.SpeechState
	notify   func(UtteranceID)
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// Option configures a Controller
type Option func(*Controller)

// WithEndNotifier routes engine end signals through notify instead of handling
// them in the engine's goroutine. notify must eventually call Ended on the
// controller's own goroutine.
func WithEndNotifier(notify func(UtteranceID)) Option {
	return func(c *Controller) {
		c.notify = notify
	}
}

// WithMetrics records utterance counters into m
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// NewController creates a speech controller on top of engine
func NewController(engine repositories.SpeechEngine, logger *zap.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Controller{
		engine: engine,
		state:  entities.SpeechIdle,
		logger: logger,
	}
	c.notify = c.Ended
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current playback state
func (c *Controller) State() entities.SpeechState {
	return c.state
}

// Speak cancels whatever is playing, even when paused, and starts text.
// Decorative symbols are stripped first; text left blank is not spoken.
func (c *Controller) Speak(ctx context.Context, text string) error {
	preempted := c.discard()

	clean := StripDecorative(text)
	if strings.TrimSpace(clean) == "" {
		c.logger.Debug("Nothing to speak after stripping symbols")
		return nil
	}

	c.nextID++
	id := c.nextID
	c.activeID = id
	c.state = entities.SpeechSpeaking

	utterance, err := c.engine.Speak(ctx, clean, func() { c.notify(id) })
	if err != nil {
		if c.activeID == id {
			c.activeID = 0
			c.state = entities.SpeechIdle
		}
		c.logger.Error("Failed to start utterance", zap.Error(err))
		return fmt.Errorf("failed to start utterance: %w", err)
	}

	// the engine may already have reported the end
	if c.activeID == id {
		c.active = utterance
	}

	c.metrics.UtteranceStarted(preempted)
	c.logger.Debug("Utterance started",
		zap.Uint64("utteranceID", uint64(id)),
		zap.Bool("preempted", preempted),
		zap.Int("textLength", len(clean)))
	return nil
}

// Toggle pauses a speaking utterance or resumes a paused one. Idle is a no-op.
func (c *Controller) Toggle() error {
	switch c.state {
	case entities.SpeechSpeaking:
		if c.active != nil {
			if err := c.active.Pause(); err != nil {
				return fmt.Errorf("failed to pause utterance: %w", err)
			}
		}
		c.state = entities.SpeechPaused
	case entities.SpeechPaused:
		if c.active != nil {
			if err := c.active.Resume(); err != nil {
				return fmt.Errorf("failed to resume utterance: %w", err)
			}
		}
		c.state = entities.SpeechSpeaking
	}
	return nil
}

// Stop discards the active utterance from any state
func (c *Controller) Stop() {
	c.discard()
}

// Ended handles an engine completion signal. Signals from discarded utterances
// are ignored.
func (c *Controller) Ended(id UtteranceID) {
	if id == 0 || id != c.activeID {
		c.logger.Debug("Ignoring end of discarded utterance", zap.Uint64("utteranceID", uint64(id)))
		return
	}
	c.active = nil
	c.activeID = 0
	c.state = entities.SpeechIdle
}

func (c *Controller) discard() bool {
	if c.activeID == 0 && c.active == nil {
		c.state = entities.SpeechIdle
		return false
	}

	utterance := c.active
	c.active = nil
	c.activeID = 0
	c.state = entities.SpeechIdle

	if utterance != nil {
		if err := utterance.Cancel(); err != nil {
			c.logger.Warn("Failed to cancel utterance", zap.Error(err))
		}
	}
	return true
}
