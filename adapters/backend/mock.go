package backend

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/soultalk/voicechat/domain"
	"github.com/soultalk/voicechat/domain/repositories"
)

// MockBackend is an in-memory backend for running the chat view without a
// server. Transcriptions are canned and chosen by recording size.
type MockBackend struct {
	mu       sync.Mutex
	sessions map[string][]domain.Exchange
	clips    map[string][]byte
	logger   *zap.Logger
}

var _ repositories.Backend = (*MockBackend)(nil)

// NewMockBackend creates a new mock backend
func NewMockBackend(logger *zap.Logger) *MockBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MockBackend{
		sessions: make(map[string][]domain.Exchange),
		clips:    make(map[string][]byte),
		logger:   logger,
	}
}

// FetchHistory implements repositories.Backend
func (m *MockBackend) FetchHistory(ctx context.Context, sessionID string) ([]domain.Exchange, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: fetch history: missing sessionId", domain.ErrTransportFailure)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	history := m.sessions[sessionID]
	out := make([]domain.Exchange, len(history))
	copy(out, history)
	return out, nil
}

// SendText implements repositories.Backend
func (m *MockBackend) SendText(ctx context.Context, req domain.TextRequest) (*domain.TextReply, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" || req.Identity == "" || req.SessionID == "" {
		return nil, fmt.Errorf("%w: send text: missing required data", domain.ErrTransportFailure)
	}

	m.logger.Info("Processing mock text message",
		zap.String("sessionID", req.SessionID),
		zap.Int("messageLength", len(message)))

	reply := fmt.Sprintf("Thank you for sharing. You said: %q. How does that make you feel?", message)
	titleChanged := m.record(req.SessionID, domain.Exchange{
		UserMessage: message,
		BotReply:    reply,
		Emotion:     "NEUTRAL",
	})

	return &domain.TextReply{
		ReplyText:     reply,
		Emotion:       "NEUTRAL",
		TitleChanged:  titleChanged,
		CorrelationID: req.CorrelationID,
	}, nil
}

// SendVoice implements repositories.Backend
func (m *MockBackend) SendVoice(ctx context.Context, req domain.VoiceRequest) (*domain.VoiceReply, error) {
	if len(req.Container) == 0 {
		return nil, fmt.Errorf("%w: send voice: no audio file uploaded", domain.ErrTransportFailure)
	}
	if req.Identity == "" || req.SessionID == "" {
		return nil, fmt.Errorf("%w: send voice: missing email or sessionId", domain.ErrTransportFailure)
	}

	m.logger.Info("Processing mock voice message",
		zap.String("sessionID", req.SessionID),
		zap.Int("audioSize", len(req.Container)))

	transcription := mockTranscription(len(req.Container))
	path := fmt.Sprintf("/uploads/audio/%s.wav", strings.ReplaceAll(uuid.NewString(), "-", ""))
	reply := "I heard you. Tell me more about it."

	m.mu.Lock()
	clip := make([]byte, len(req.Container))
	copy(clip, req.Container)
	m.clips[path] = clip
	m.mu.Unlock()

	titleChanged := m.record(req.SessionID, domain.Exchange{
		UserMessage: transcription,
		BotReply:    reply,
		AudioPath:   path,
		Emotion:     "CALM",
	})

	return &domain.VoiceReply{
		ReplyText:       reply,
		Transcription:   transcription,
		RemoteAudioPath: path,
		Emotion:         "CALM",
		TitleChanged:    titleChanged,
		CorrelationID:   req.CorrelationID,
	}, nil
}

// FetchAudio implements repositories.Backend
func (m *MockBackend) FetchAudio(ctx context.Context, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	clip, ok := m.clips[path]
	if !ok {
		return nil, fmt.Errorf("%w: fetch audio: status 404: %s", domain.ErrTransportFailure, path)
	}
	out := make([]byte, len(clip))
	copy(out, clip)
	return out, nil
}

// record appends an exchange and reports whether it was the session's first
func (m *MockBackend) record(sessionID string, exchange domain.Exchange) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	first := len(m.sessions[sessionID]) == 0
	m.sessions[sessionID] = append(m.sessions[sessionID], exchange)
	return first
}

func mockTranscription(size int) string {
	// 44100 Hz 16-bit mono is about 88 KB per second
	switch {
	case size > 441000:
		return "I had a long day today and I would like to talk about it."
	case size > 176400:
		return "Thank you for listening to me."
	case size > 44100:
		return "Hello there!"
	default:
		return "Hi"
	}
}
