package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/soultalk/voicechat/domain"
	"github.com/soultalk/voicechat/domain/entities"
	"github.com/soultalk/voicechat/domain/repositories"
	"github.com/soultalk/voicechat/internal/metrics"
)

// ErrEmptyMessage is returned when a blank message is submitted
var ErrEmptyMessage = errors.New("message is empty")

// Outcome is what the chat view has to do after a backend completion
type Outcome struct {
	// Stale is set when the completion belongs to a session no longer shown
	Stale bool
	// SpeakText is the reply to read aloud, empty when there is none
	SpeakText string
	Err       error
}

// TextSend is one typed message on its way to the backend
type TextSend struct {
	SessionID     string
	CorrelationID string
	Text          string
	Index         int
}

// ChatService handles typed messages and session history for one chat view.
// Begin/Complete methods mutate the timeline and must run on the view's
// goroutine; Send/Load methods only talk to the backend.
type ChatService struct {
	backend   repositories.Backend
	timeline  *entities.Timeline
	titles    repositories.TitleNotifier
	identity  string
	correlate bool
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewChatService creates a new chat service
func NewChatService(
	backend repositories.Backend,
	timeline *entities.Timeline,
	titles repositories.TitleNotifier,
	identity string,
	metrics *metrics.Metrics,
	logger *zap.Logger,
) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{
		backend:   backend,
		timeline:  timeline,
		titles:    titles,
		identity:  identity,
		correlate: true,
		metrics:   metrics,
		logger:    logger,
	}
}

// SetCorrelation turns correlation ids on sent messages on or off
func (s *ChatService) SetCorrelation(enabled bool) {
	s.correlate = enabled
}

// BeginText appends the typed message to the timeline as pending
func (s *ChatService) BeginText(text string) (*TextSend, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	send := &TextSend{
		SessionID:     s.timeline.SessionID(),
		CorrelationID: s.newCorrelationID(),
		Text:          text,
	}
	send.Index = s.timeline.Append(entities.NewUserText(text, send.CorrelationID))

	s.logger.Debug("Text message queued",
		zap.String("sessionID", send.SessionID),
		zap.String("correlationID", send.CorrelationID),
		zap.Int("sequenceIndex", send.Index))
	return send, nil
}

// SendText delivers the message to the backend
func (s *ChatService) SendText(ctx context.Context, send *TextSend) (*domain.TextReply, error) {
	return s.backend.SendText(ctx, domain.TextRequest{
		Message:       send.Text,
		Identity:      s.identity,
		SessionID:     send.SessionID,
		CorrelationID: send.CorrelationID,
	})
}

// CompleteText reconciles the backend answer into the timeline. On success the
// user entry is confirmed and the reply appended; on failure the user entry is
// marked failed and stays visible.
func (s *ChatService) CompleteText(send *TextSend, reply *domain.TextReply, err error) Outcome {
	s.metrics.MessageSent("text", err)

	if err == nil && reply != nil && reply.TitleChanged {
		s.notifyTitle(send.SessionID, send.Text)
	}

	if send.SessionID != s.timeline.SessionID() {
		s.metrics.StaleCompletion()
		s.logger.Info("Dropping text completion for inactive session",
			zap.String("sessionID", send.SessionID),
			zap.String("activeSessionID", s.timeline.SessionID()))
		return Outcome{Stale: true, Err: err}
	}

	idx := s.locateText(send)

	if err != nil {
		s.logger.Error("Failed to send text message",
			zap.String("sessionID", send.SessionID),
			zap.String("correlationID", send.CorrelationID),
			zap.Error(err))
		if idx >= 0 {
			failed := entities.NewUserText(send.Text, send.CorrelationID)
			failed.Status = entities.EntryFailed
			s.replace(idx, failed)
		}
		return Outcome{Err: err}
	}

	if reply == nil {
		reply = &domain.TextReply{}
	}

	if idx >= 0 {
		confirmed := entities.NewUserText(send.Text, send.CorrelationID)
		confirmed.Status = entities.EntryConfirmed
		s.replace(idx, confirmed)
	}
	s.timeline.Append(entities.NewBotReply(reply.ReplyText, reply.Emotion, send.CorrelationID))

	s.logger.Info("Text message answered",
		zap.String("sessionID", send.SessionID),
		zap.String("emotion", reply.Emotion),
		zap.Bool("titleChanged", reply.TitleChanged))
	return Outcome{SpeakText: reply.ReplyText}
}

// RetryText puts a failed text message back in flight
func (s *ChatService) RetryText(index int) (*TextSend, error) {
	entry, ok := s.timeline.At(index)
	if !ok {
		return nil, fmt.Errorf("retry index %d: %w", index, domain.ErrEntryNotFound)
	}
	if entry.Sender != entities.SenderUser || entry.IsVoice() || entry.Status != entities.EntryFailed {
		return nil, fmt.Errorf("retry index %d: %w", index, domain.ErrNotRetryable)
	}

	send := &TextSend{
		SessionID:     s.timeline.SessionID(),
		CorrelationID: entry.CorrelationID,
		Text:          entry.TextValue(),
		Index:         index,
	}
	s.replace(index, entities.NewUserText(send.Text, send.CorrelationID))
	return send, nil
}

// LoadHistory fetches the stored exchanges of a session
func (s *ChatService) LoadHistory(ctx context.Context, sessionID string) ([]domain.Exchange, error) {
	return s.backend.FetchHistory(ctx, sessionID)
}

// ApplyHistory hydrates the timeline with the exchanges of sessionID. Entries
// that were sent from this view and are not yet confirmed are kept after the
// history. Results for a session that is no longer active are dropped and false
// is returned.
func (s *ChatService) ApplyHistory(sessionID string, exchanges []domain.Exchange, err error) bool {
	if sessionID != s.timeline.SessionID() {
		s.metrics.StaleCompletion()
		s.logger.Info("Dropping history for inactive session", zap.String("sessionID", sessionID))
		return false
	}

	if err != nil {
		s.logger.Error("Failed to load session history",
			zap.String("sessionID", sessionID),
			zap.Error(err))
		return false
	}

	entries := FlattenHistory(exchanges)
	for _, entry := range s.timeline.Entries() {
		if entry.Status != entities.EntryConfirmed {
			entries = append(entries, entry)
		}
	}
	s.timeline.Hydrate(sessionID, entries)

	s.logger.Info("Session history loaded",
		zap.String("sessionID", sessionID),
		zap.Int("exchanges", len(exchanges)),
		zap.Int("entries", s.timeline.Len()))
	return true
}

// FlattenHistory turns stored exchanges into timeline entries: the user message
// first, then the bot reply when there is one.
func FlattenHistory(exchanges []domain.Exchange) []entities.MessageEntry {
	entries := make([]entities.MessageEntry, 0, len(exchanges)*2)
	for _, exchange := range exchanges {
		user := entities.MessageEntry{
			Sender: entities.SenderUser,
			Text:   entities.TextOf(exchange.UserMessage),
			Status: entities.EntryConfirmed,
		}
		if exchange.AudioPath != "" {
			user.Audio = entities.RemoteAudio(exchange.AudioPath)
		}
		entries = append(entries, user)

		if exchange.BotReply != "" {
			entries = append(entries, entities.NewBotReply(exchange.BotReply, exchange.Emotion, ""))
		}
	}
	return entries
}

func (s *ChatService) locateText(send *TextSend) int {
	if idx := s.timeline.FindCorrelated(entities.SenderUser, send.CorrelationID); idx >= 0 {
		return idx
	}
	if entry, ok := s.timeline.At(send.Index); ok && isPendingText(entry, send.Text) {
		return send.Index
	}
	// hydration may have moved the entry
	for i := s.timeline.Len() - 1; i >= 0; i-- {
		if entry, _ := s.timeline.At(i); isPendingText(entry, send.Text) {
			return i
		}
	}
	return -1
}

func isPendingText(entry entities.MessageEntry, text string) bool {
	return entry.Sender == entities.SenderUser && !entry.IsVoice() &&
		entry.Status == entities.EntryPending && entry.TextValue() == text
}

func (s *ChatService) replace(index int, entry entities.MessageEntry) {
	if err := s.timeline.Replace(index, entry); err != nil {
		s.logger.Warn("Failed to replace timeline entry", zap.Int("sequenceIndex", index), zap.Error(err))
	}
}

func (s *ChatService) notifyTitle(sessionID, text string) {
	if s.titles == nil {
		return
	}
	s.titles.OnTitleUpdate(sessionID, DeriveTitle(text))
}

func (s *ChatService) newCorrelationID() string {
	if !s.correlate {
		return ""
	}
	return uuid.NewString()
}
