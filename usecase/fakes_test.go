package usecase

import (
	"context"
	"fmt"

	"github.com/soultalk/voicechat/domain"
)

type fakeBackend struct {
	history    []domain.Exchange
	historyErr error
	textReply  *domain.TextReply
	textErr    error
	voiceReply *domain.VoiceReply
	voiceErr   error

	textRequests  []domain.TextRequest
	voiceRequests []domain.VoiceRequest
}

func (b *fakeBackend) FetchHistory(ctx context.Context, sessionID string) ([]domain.Exchange, error) {
	return b.history, b.historyErr
}

func (b *fakeBackend) SendText(ctx context.Context, req domain.TextRequest) (*domain.TextReply, error) {
	b.textRequests = append(b.textRequests, req)
	if b.textErr != nil {
		return nil, b.textErr
	}
	return b.textReply, nil
}

func (b *fakeBackend) SendVoice(ctx context.Context, req domain.VoiceRequest) (*domain.VoiceReply, error) {
	b.voiceRequests = append(b.voiceRequests, req)
	if b.voiceErr != nil {
		return nil, b.voiceErr
	}
	return b.voiceReply, nil
}

func (b *fakeBackend) FetchAudio(ctx context.Context, path string) ([]byte, error) {
	return nil, fmt.Errorf("%w: not found", domain.ErrTransportFailure)
}

type fakeClips struct {
	next  int
	clips map[string][]byte
}

func newFakeClips() *fakeClips {
	return &fakeClips{clips: make(map[string][]byte)}
}

func (c *fakeClips) Put(container []byte) string {
	c.next++
	handle := fmt.Sprintf("clip-%d", c.next)
	c.clips[handle] = container
	return handle
}

func (c *fakeClips) Store(key string, container []byte) {
	c.clips[key] = container
}

func (c *fakeClips) Get(key string) ([]byte, bool) {
	container, ok := c.clips[key]
	return container, ok
}

type titleCall struct {
	sessionID string
	title     string
}

type fakeTitles struct {
	calls []titleCall
}

func (f *fakeTitles) OnTitleUpdate(sessionID, title string) {
	f.calls = append(f.calls, titleCall{sessionID: sessionID, title: title})
}
