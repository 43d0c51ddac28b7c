package repositories

import "context"

// SpeechEngine synthesizes and plays text aloud
type SpeechEngine interface {
	// Speak starts a new utterance. onEnd is called exactly once, after the
	// utterance finished naturally or was cancelled.
	Speak(ctx context.Context, text string, onEnd func()) (Utterance, error)
}

// Utterance is one in-progress synthesis
type Utterance interface {
	Pause() error
	Resume() error
	Cancel() error
}
