package repositories

import (
	"context"

	"github.com/soultalk/voicechat/domain"
)

// Backend is the conversational service the chat view talks to
type Backend interface {
	// FetchHistory returns the persisted exchanges of a session, oldest first
	FetchHistory(ctx context.Context, sessionID string) ([]domain.Exchange, error)
	// SendText submits a typed message and waits for the reply
	SendText(ctx context.Context, req domain.TextRequest) (*domain.TextReply, error)
	// SendVoice uploads a WAV container and waits for transcription and reply
	SendVoice(ctx context.Context, req domain.VoiceRequest) (*domain.VoiceReply, error)
	// FetchAudio downloads a backend-hosted clip
	FetchAudio(ctx context.Context, path string) ([]byte, error)
}

// TitleNotifier is told when the backend changed a session title
type TitleNotifier interface {
	OnTitleUpdate(sessionID, title string)
}

// TitleNotifierFunc adapts a plain function to TitleNotifier
type TitleNotifierFunc func(sessionID, title string)

func (f TitleNotifierFunc) OnTitleUpdate(sessionID, title string) {
	f(sessionID, title)
}
