package speech

import (
	"context"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/soultalk/voicechat/domain/repositories"
)

// DefaultPerRune approximates a comfortable reading pace
const DefaultPerRune = 60 * time.Millisecond

// MockSpeech is a silent speech engine. Each utterance lasts perRune for every
// rune of text and ends on a timer.
type MockSpeech struct {
	perRune time.Duration
	logger  *zap.Logger
}

var _ repositories.SpeechEngine = (*MockSpeech)(nil)

// NewMockSpeech creates a new mock speech engine
func NewMockSpeech(perRune time.Duration, logger *zap.Logger) *MockSpeech {
	if perRune <= 0 {
		perRune = DefaultPerRune
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MockSpeech{perRune: perRune, logger: logger}
}

// Speak implements repositories.SpeechEngine
func (m *MockSpeech) Speak(ctx context.Context, text string, onEnd func()) (repositories.Utterance, error) {
	length := time.Duration(utf8.RuneCountInString(text)) * m.perRune

	m.logger.Info("Speaking reply",
		zap.String("text", text),
		zap.Duration("length", length))

	u := &mockUtterance{remaining: length, onEnd: onEnd}
	u.mu.Lock()
	u.start()
	u.mu.Unlock()
	return u, nil
}

type mockUtterance struct {
	mu        sync.Mutex
	timer     *time.Timer
	startedAt time.Time
	remaining time.Duration
	paused    bool
	done      bool
	onEnd     func()
}

// start must be called with mu held
func (u *mockUtterance) start() {
	u.startedAt = time.Now()
	u.timer = time.AfterFunc(u.remaining, u.finish)
}

func (u *mockUtterance) finish() {
	u.mu.Lock()
	if u.done || u.paused {
		u.mu.Unlock()
		return
	}
	u.done = true
	u.mu.Unlock()
	u.onEnd()
}

func (u *mockUtterance) Pause() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.done || u.paused {
		return nil
	}
	if !u.timer.Stop() {
		// already ending
		return nil
	}
	u.remaining -= time.Since(u.startedAt)
	if u.remaining < 0 {
		u.remaining = 0
	}
	u.paused = true
	return nil
}

func (u *mockUtterance) Resume() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.done || !u.paused {
		return nil
	}
	u.paused = false
	u.start()
	return nil
}

func (u *mockUtterance) Cancel() error {
	u.mu.Lock()
	if u.done {
		u.mu.Unlock()
		return nil
	}
	u.done = true
	u.timer.Stop()
	u.mu.Unlock()
	u.onEnd()
	return nil
}
