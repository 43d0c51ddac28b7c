package repositories

import (
	"context"

	"github.com/soultalk/voicechat/domain/entities"
)

// MediaEventKind enumerates playback notifications
type MediaEventKind string

const (
	MediaPlay       MediaEventKind = "play"
	MediaPause      MediaEventKind = "pause"
	MediaTimeUpdate MediaEventKind = "timeupdate"
	MediaEnded      MediaEventKind = "ended"
)

// MediaEvent is posted by a MediaHandle from its own goroutine
type MediaEvent struct {
	Kind MediaEventKind
}

// MediaHandle controls playback of a single clip. Times are in seconds and
// Duration returns NaN until the length is known.
type MediaHandle interface {
	Play() error
	Pause() error
	Paused() bool
	CurrentTime() float64
	Duration() float64
	Seek(seconds float64) error
	Close() error
}

// MediaOpener creates a handle for the clip behind an audio reference
type MediaOpener interface {
	Open(ctx context.Context, ref entities.AudioRef, onEvent func(MediaEvent)) (MediaHandle, error)
}

// ClipStore keeps encoded containers addressable by handle or backend path
type ClipStore interface {
	// Put stores a container and returns a new local handle
	Put(container []byte) string
	// Store keeps a container under an explicit key such as a backend path
	Store(key string, container []byte)
	Get(key string) ([]byte, bool)
}
