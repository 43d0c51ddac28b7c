package chatview

import (
	"context"
	"fmt"
	"sync"

	"github.com/soultalk/voicechat/domain"
	"github.com/soultalk/voicechat/domain/entities"
	"github.com/soultalk/voicechat/domain/repositories"
)

type fakeBackend struct {
	mu         sync.Mutex
	history    map[string][]domain.Exchange
	historyErr error
	textReply  domain.TextReply
	textErr    error
	voiceReply domain.VoiceReply
	voiceErr   error
	// voiceGate holds uploads until a token is sent
	voiceGate chan struct{}

	textRequests  []domain.TextRequest
	voiceRequests []domain.VoiceRequest
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{history: make(map[string][]domain.Exchange)}
}

func (b *fakeBackend) FetchHistory(ctx context.Context, sessionID string) ([]domain.Exchange, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.history[sessionID], b.historyErr
}

func (b *fakeBackend) SendText(ctx context.Context, req domain.TextRequest) (*domain.TextReply, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.textRequests = append(b.textRequests, req)
	if b.textErr != nil {
		return nil, b.textErr
	}
	reply := b.textReply
	reply.CorrelationID = req.CorrelationID
	return &reply, nil
}

func (b *fakeBackend) SendVoice(ctx context.Context, req domain.VoiceRequest) (*domain.VoiceReply, error) {
	b.mu.Lock()
	gate := b.voiceGate
	b.voiceRequests = append(b.voiceRequests, req)
	b.mu.Unlock()

	if gate != nil {
		<-gate
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.voiceErr != nil {
		return nil, b.voiceErr
	}
	reply := b.voiceReply
	reply.CorrelationID = req.CorrelationID
	return &reply, nil
}

func (b *fakeBackend) FetchAudio(ctx context.Context, path string) ([]byte, error) {
	return nil, fmt.Errorf("%w: not found", domain.ErrTransportFailure)
}

func (b *fakeBackend) setVoiceErr(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.voiceErr = err
}

func (b *fakeBackend) voiceCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.voiceRequests)
}

func (b *fakeBackend) lastVoice() domain.VoiceRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.voiceRequests[len(b.voiceRequests)-1]
}

func (b *fakeBackend) textCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.textRequests)
}

type fakeCaptureHandle struct {
	blocks   chan []float32
	once     sync.Once
	mu       sync.Mutex
	released bool
}

func (h *fakeCaptureHandle) Blocks() <-chan []float32 { return h.blocks }

func (h *fakeCaptureHandle) Release() error {
	h.once.Do(func() {
		h.mu.Lock()
		h.released = true
		h.mu.Unlock()
		close(h.blocks)
	})
	return nil
}

func (h *fakeCaptureHandle) isReleased() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

type fakeCapture struct {
	mu     sync.Mutex
	err    error
	handle *fakeCaptureHandle
}

func (d *fakeCapture) Acquire(ctx context.Context, config repositories.CaptureConfig) (repositories.CaptureHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	d.handle = &fakeCaptureHandle{blocks: make(chan []float32, 16)}
	return d.handle, nil
}

func (d *fakeCapture) current() *fakeCaptureHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handle
}

type fakeUtterance struct {
	mu        sync.Mutex
	text      string
	onEnd     func()
	paused    bool
	cancelled bool
}

func (u *fakeUtterance) Pause() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.paused = true
	return nil
}

func (u *fakeUtterance) Resume() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.paused = false
	return nil
}

func (u *fakeUtterance) Cancel() error {
	u.mu.Lock()
	u.cancelled = true
	u.mu.Unlock()
	u.onEnd()
	return nil
}

func (u *fakeUtterance) isCancelled() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.cancelled
}

type fakeSpeech struct {
	mu         sync.Mutex
	utterances []*fakeUtterance
}

func (e *fakeSpeech) Speak(ctx context.Context, text string, onEnd func()) (repositories.Utterance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	u := &fakeUtterance{text: text, onEnd: onEnd}
	e.utterances = append(e.utterances, u)
	return u, nil
}

func (e *fakeSpeech) spoken() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	texts := make([]string, len(e.utterances))
	for i, u := range e.utterances {
		texts[i] = u.text
	}
	return texts
}

func (e *fakeSpeech) last() *fakeUtterance {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.utterances[len(e.utterances)-1]
}

type fakeMediaHandle struct {
	mu      sync.Mutex
	onEvent func(repositories.MediaEvent)
	paused  bool
	current float64
	closed  bool
}

func (h *fakeMediaHandle) Play() error {
	h.mu.Lock()
	h.paused = false
	h.mu.Unlock()
	h.onEvent(repositories.MediaEvent{Kind: repositories.MediaPlay})
	return nil
}

func (h *fakeMediaHandle) Pause() error {
	h.mu.Lock()
	h.paused = true
	h.mu.Unlock()
	h.onEvent(repositories.MediaEvent{Kind: repositories.MediaPause})
	return nil
}

func (h *fakeMediaHandle) Paused() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.paused
}

func (h *fakeMediaHandle) CurrentTime() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

func (h *fakeMediaHandle) Duration() float64 { return 4 }

func (h *fakeMediaHandle) Seek(seconds float64) error {
	h.mu.Lock()
	h.current = seconds
	h.mu.Unlock()
	h.onEvent(repositories.MediaEvent{Kind: repositories.MediaTimeUpdate})
	return nil
}

func (h *fakeMediaHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

func (h *fakeMediaHandle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

type fakeMedia struct {
	mu      sync.Mutex
	opened  []entities.AudioRef
	handles []*fakeMediaHandle
}

func (m *fakeMedia) Open(ctx context.Context, ref entities.AudioRef, onEvent func(repositories.MediaEvent)) (repositories.MediaHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := &fakeMediaHandle{onEvent: onEvent, paused: true}
	m.opened = append(m.opened, ref)
	m.handles = append(m.handles, h)
	return h, nil
}

func (m *fakeMedia) openedRefs() []entities.AudioRef {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]entities.AudioRef(nil), m.opened...)
}

func (m *fakeMedia) handle(i int) *fakeMediaHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handles[i]
}

type titleCall struct {
	sessionID string
	title     string
}

type fakeTitles struct {
	mu    sync.Mutex
	calls []titleCall
}

func (f *fakeTitles) OnTitleUpdate(sessionID, title string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, titleCall{sessionID: sessionID, title: title})
}

func (f *fakeTitles) all() []titleCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]titleCall(nil), f.calls...)
}

