package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/soultalk/voicechat/domain"
	"github.com/soultalk/voicechat/domain/entities"
	"github.com/soultalk/voicechat/domain/repositories"
	"github.com/soultalk/voicechat/internal/metrics"
)

// ErrEmptyRecording is returned when a voice message carries no container
var ErrEmptyRecording = errors.New("recording is empty")

// VoiceUpload is one recorded voice message on its way to the backend
type VoiceUpload struct {
	SessionID     string
	CorrelationID string
	Handle        string
	Container     []byte
}

// ConversationService coordinates voice uploads: the optimistic user and
// placeholder entries, the upload and the reconciliation of the reply.
// Begin/Complete/Retry mutate the timeline and must run on the view's
// goroutine; UploadVoice only talks to the backend.
type ConversationService struct {
	backend   repositories.Backend
	timeline  *entities.Timeline
	clips     repositories.ClipStore
	titles    repositories.TitleNotifier
	identity  string
	correlate bool
	failed    map[string]*VoiceUpload
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewConversationService creates a new conversation service
func NewConversationService(
	backend repositories.Backend,
	timeline *entities.Timeline,
	clips repositories.ClipStore,
	titles repositories.TitleNotifier,
	identity string,
	metrics *metrics.Metrics,
	logger *zap.Logger,
) *ConversationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversationService{
		backend:   backend,
		timeline:  timeline,
		clips:     clips,
		titles:    titles,
		identity:  identity,
		correlate: true,
		failed:    make(map[string]*VoiceUpload),
		metrics:   metrics,
		logger:    logger,
	}
}

// SetCorrelation turns correlation ids on uploads on or off. Without them
// replies are paired with the most recent pending entries.
func (s *ConversationService) SetCorrelation(enabled bool) {
	s.correlate = enabled
}

// BeginVoice stores the container for local playback and appends the pending
// user voice entry followed by the bot processing placeholder.
func (s *ConversationService) BeginVoice(container []byte) (*VoiceUpload, error) {
	if len(container) == 0 {
		return nil, ErrEmptyRecording
	}

	upload := &VoiceUpload{
		SessionID: s.timeline.SessionID(),
		Handle:    s.clips.Put(container),
		Container: container,
	}
	if s.correlate {
		upload.CorrelationID = uuid.NewString()
	}

	userIdx := s.timeline.Append(entities.NewUserVoice(upload.Handle, upload.CorrelationID))
	s.timeline.Append(entities.NewProcessingPlaceholder(upload.CorrelationID))
	s.metrics.UploadStarted()

	s.logger.Info("Voice message queued",
		zap.String("sessionID", upload.SessionID),
		zap.String("correlationID", upload.CorrelationID),
		zap.Int("sequenceIndex", userIdx),
		zap.Int("containerBytes", len(container)))
	return upload, nil
}

// UploadVoice sends the container to the backend. No timeout is applied beyond
// what ctx carries.
func (s *ConversationService) UploadVoice(ctx context.Context, upload *VoiceUpload) (*domain.VoiceReply, error) {
	return s.backend.SendVoice(ctx, domain.VoiceRequest{
		Container:     upload.Container,
		Identity:      s.identity,
		SessionID:     upload.SessionID,
		CorrelationID: upload.CorrelationID,
	})
}

// CompleteVoice reconciles an upload result. On success the placeholder gets
// the reply and the user entry gets the transcription and the backend audio
// path. On failure both entries stay visible in a failed state that RetryVoice
// can pick up.
func (s *ConversationService) CompleteVoice(upload *VoiceUpload, reply *domain.VoiceReply, err error) Outcome {
	s.metrics.UploadFinished()
	s.metrics.MessageSent("voice", err)

	if err == nil && reply == nil {
		reply = &domain.VoiceReply{}
	}
	if err == nil && reply.TitleChanged {
		s.notifyTitle(upload.SessionID, reply.Transcription)
	}

	if upload.SessionID != s.timeline.SessionID() {
		s.metrics.StaleCompletion()
		s.logger.Info("Dropping voice completion for inactive session",
			zap.String("sessionID", upload.SessionID),
			zap.String("activeSessionID", s.timeline.SessionID()))
		return Outcome{Stale: true, Err: err}
	}

	if err == nil && reply.CorrelationID != "" && reply.CorrelationID != upload.CorrelationID {
		s.logger.Warn("Backend echoed a different correlation id",
			zap.String("correlationID", upload.CorrelationID),
			zap.String("echoedCorrelationID", reply.CorrelationID))
	}

	if err != nil {
		userIdx, botIdx := s.locateOwn(upload)
		s.failed[upload.Handle] = upload
		s.markFailed(upload, userIdx, botIdx)
		s.logger.Error("Failed to upload voice message",
			zap.String("sessionID", upload.SessionID),
			zap.String("correlationID", upload.CorrelationID),
			zap.Error(err))
		return Outcome{Err: err}
	}

	delete(s.failed, upload.Handle)
	userIdx, botIdx, rule := s.locate(upload.CorrelationID)

	botReply := entities.NewBotReply(reply.ReplyText, reply.Emotion, upload.CorrelationID)
	if botIdx >= 0 {
		s.replace(botIdx, botReply)
	} else {
		s.timeline.Append(botReply)
	}

	if userIdx >= 0 {
		pending, _ := s.timeline.At(userIdx)
		user := entities.MessageEntry{
			Sender:        entities.SenderUser,
			Text:          entities.TextOf(reply.Transcription),
			Audio:         pending.Audio,
			Status:        entities.EntryConfirmed,
			CorrelationID: upload.CorrelationID,
			Emotion:       reply.Emotion,
		}
		if reply.RemoteAudioPath != "" {
			s.clips.Store(reply.RemoteAudioPath, upload.Container)
			user.Audio = entities.RemoteAudio(reply.RemoteAudioPath)
		}
		s.replace(userIdx, user)
	}

	s.metrics.Reconciled(rule)
	s.logger.Info("Voice message answered",
		zap.String("sessionID", upload.SessionID),
		zap.String("correlationID", upload.CorrelationID),
		zap.String("rule", rule),
		zap.Int("userIndex", userIdx),
		zap.Int("botIndex", botIdx))
	return Outcome{SpeakText: reply.ReplyText}
}

// RetryVoice puts a failed voice message back in flight. index may point at the
// failed user entry or at its failed bot entry.
func (s *ConversationService) RetryVoice(index int) (*VoiceUpload, error) {
	entry, ok := s.timeline.At(index)
	if !ok {
		return nil, fmt.Errorf("retry index %d: %w", index, domain.ErrEntryNotFound)
	}
	if entry.Status != entities.EntryFailed {
		return nil, fmt.Errorf("retry index %d: %w", index, domain.ErrNotRetryable)
	}

	upload := s.failedUpload(entry)
	if upload == nil || upload.SessionID != s.timeline.SessionID() {
		return nil, fmt.Errorf("retry index %d: %w", index, domain.ErrNotRetryable)
	}
	delete(s.failed, upload.Handle)

	userIdx, botIdx := s.findFailed(upload)
	if userIdx >= 0 {
		s.replace(userIdx, entities.NewUserVoice(upload.Handle, upload.CorrelationID))
	}
	if botIdx >= 0 {
		s.replace(botIdx, entities.NewProcessingPlaceholder(upload.CorrelationID))
	} else {
		s.timeline.Append(entities.NewProcessingPlaceholder(upload.CorrelationID))
	}
	s.metrics.UploadStarted()

	s.logger.Info("Retrying voice message",
		zap.String("sessionID", upload.SessionID),
		zap.String("correlationID", upload.CorrelationID))
	return upload, nil
}

// Forget drops retry state for uploads of other sessions
func (s *ConversationService) Forget(sessionID string) {
	for id, upload := range s.failed {
		if upload.SessionID != sessionID {
			delete(s.failed, id)
		}
	}
}

// locate finds the user entry and bot placeholder of an upload. Tagged uploads
// are matched by correlation id; untagged ones take the most recent pending
// entries, scanning from the end.
func (s *ConversationService) locate(correlationID string) (userIdx, botIdx int, rule string) {
	if correlationID != "" {
		userIdx = s.timeline.FindCorrelated(entities.SenderUser, correlationID)
		botIdx = s.timeline.FindCorrelated(entities.SenderBot, correlationID)
		if userIdx >= 0 && !s.isPending(userIdx) {
			userIdx = -1
		}
		if botIdx >= 0 && !s.isPending(botIdx) {
			botIdx = -1
		}
		if userIdx < 0 && botIdx < 0 {
			return -1, -1, "unmatched"
		}
		return userIdx, botIdx, "correlation"
	}

	userIdx = s.timeline.LatestPendingVoice()
	botIdx = s.timeline.LatestPendingPlaceholder()
	if userIdx < 0 && botIdx < 0 {
		return -1, -1, "unmatched"
	}
	return userIdx, botIdx, "backward_scan"
}

// locateOwn finds the pending entries created for upload itself: the user entry
// holding its local clip and the first placeholder after it. Failures never
// touch entries of other uploads, with or without correlation ids.
func (s *ConversationService) locateOwn(upload *VoiceUpload) (userIdx, botIdx int) {
	userIdx, botIdx = -1, -1
	for _, entry := range s.timeline.Entries() {
		if userIdx < 0 {
			if entry.IsPendingVoice() && entry.Audio.Key() == upload.Handle {
				userIdx = entry.SequenceIndex
			}
			continue
		}
		if entry.IsPendingPlaceholder() && entry.CorrelationID == upload.CorrelationID {
			botIdx = entry.SequenceIndex
			break
		}
	}
	return userIdx, botIdx
}

func (s *ConversationService) isPending(index int) bool {
	entry, ok := s.timeline.At(index)
	return ok && entry.Status == entities.EntryPending
}

func (s *ConversationService) failedUpload(entry entities.MessageEntry) *VoiceUpload {
	if entry.Sender == entities.SenderUser {
		return s.failed[entry.Audio.Key()]
	}
	if entry.CorrelationID == "" {
		return nil
	}
	for _, upload := range s.failed {
		if upload.CorrelationID == entry.CorrelationID {
			return upload
		}
	}
	return nil
}

// findFailed locates the failed entries of an upload. Untagged uploads take the
// first failed untagged bot entry after the user entry.
func (s *ConversationService) findFailed(upload *VoiceUpload) (userIdx, botIdx int) {
	userIdx, botIdx = -1, -1
	for _, entry := range s.timeline.Entries() {
		if entry.Status != entities.EntryFailed || entry.CorrelationID != upload.CorrelationID {
			continue
		}
		switch {
		case entry.Sender == entities.SenderUser && entry.Audio.Key() == upload.Handle:
			userIdx = entry.SequenceIndex
		case entry.Sender == entities.SenderBot && botIdx < 0:
			if upload.CorrelationID != "" || (userIdx >= 0 && entry.SequenceIndex > userIdx) {
				botIdx = entry.SequenceIndex
			}
		}
	}
	return userIdx, botIdx
}

func (s *ConversationService) markFailed(upload *VoiceUpload, userIdx, botIdx int) {
	if userIdx >= 0 {
		user := entities.NewUserVoice(upload.Handle, upload.CorrelationID)
		user.Status = entities.EntryFailed
		s.replace(userIdx, user)
	}
	if botIdx >= 0 {
		bot := entities.NewBotReply(entities.VoiceFailedText, "", upload.CorrelationID)
		bot.Status = entities.EntryFailed
		s.replace(botIdx, bot)
	}
}

func (s *ConversationService) replace(index int, entry entities.MessageEntry) {
	if err := s.timeline.Replace(index, entry); err != nil {
		s.logger.Warn("Failed to replace timeline entry", zap.Int("sequenceIndex", index), zap.Error(err))
	}
}

func (s *ConversationService) notifyTitle(sessionID, text string) {
	if s.titles == nil {
		return
	}
	s.titles.OnTitleUpdate(sessionID, DeriveTitle(text))
}
