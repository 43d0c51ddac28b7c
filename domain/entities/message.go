package entities

import (
	"errors"
)

// Sender identifies who authored a timeline entry
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// EntryStatus tracks where an entry is in its send/reconcile lifecycle
type EntryStatus string

const (
	EntryConfirmed EntryStatus = "confirmed"
	EntryPending   EntryStatus = "pending"
	EntryFailed    EntryStatus = "failed"
)

// AudioRefKind distinguishes client-held audio from backend-hosted audio
type AudioRefKind string

const (
	AudioLocal  AudioRefKind = "local"
	AudioRemote AudioRefKind = "remote"
)

const (
	// ProcessingText is shown by the bot placeholder while a voice upload is in flight.
	ProcessingText = "🎤 Processing your voice message..."
	// VoiceFailedText replaces the placeholder when the upload could not be completed.
	VoiceFailedText = "Voice message could not be processed. Retry to send it again."
)

// AudioRef points at the audio attached to an entry. Local refs are handles into
// the client clip store, remote refs are backend paths.
type AudioRef struct {
	Kind   AudioRefKind `json:"kind"`
	Handle string       `json:"handle,omitempty"`
	URI    string       `json:"uri,omitempty"`
}

// LocalAudio references a container held by the client
func LocalAudio(handle string) *AudioRef {
	return &AudioRef{Kind: AudioLocal, Handle: handle}
}

// RemoteAudio references a container hosted by the backend
func RemoteAudio(uri string) *AudioRef {
	return &AudioRef{Kind: AudioRemote, URI: uri}
}

// IsLocal reports whether the ref points into the client clip store
func (a *AudioRef) IsLocal() bool {
	return a != nil && a.Kind == AudioLocal
}

// Key returns the handle or URI, whichever identifies the clip
func (a *AudioRef) Key() string {
	if a == nil {
		return ""
	}
	if a.Kind == AudioLocal {
		return a.Handle
	}
	return a.URI
}

// MessageEntry is one item of the conversation timeline. Entries are replaced
// whole, never edited in place.
type MessageEntry struct {
	Sender        Sender      `json:"sender"`
	Text          *string     `json:"text"`
	Audio         *AudioRef   `json:"audio,omitempty"`
	SequenceIndex int         `json:"sequence_index"`
	Status        EntryStatus `json:"status"`
	Placeholder   bool        `json:"placeholder,omitempty"`
	CorrelationID string      `json:"correlation_id,omitempty"`
	Emotion       string      `json:"emotion,omitempty"`
}

// TextOf returns a pointer to a copy of s
func TextOf(s string) *string {
	return &s
}

// NewUserText builds a pending typed user message
func NewUserText(text, correlationID string) MessageEntry {
	return MessageEntry{
		Sender:        SenderUser,
		Text:          TextOf(text),
		Status:        EntryPending,
		CorrelationID: correlationID,
	}
}

// NewUserVoice builds a pending voice message backed by a local clip
func NewUserVoice(handle, correlationID string) MessageEntry {
	return MessageEntry{
		Sender:        SenderUser,
		Audio:         LocalAudio(handle),
		Status:        EntryPending,
		CorrelationID: correlationID,
	}
}

// NewProcessingPlaceholder builds the bot entry shown while a voice upload runs
func NewProcessingPlaceholder(correlationID string) MessageEntry {
	return MessageEntry{
		Sender:        SenderBot,
		Text:          TextOf(ProcessingText),
		Status:        EntryPending,
		Placeholder:   true,
		CorrelationID: correlationID,
	}
}

// NewBotReply builds a confirmed bot message
func NewBotReply(text, emotion, correlationID string) MessageEntry {
	return MessageEntry{
		Sender:        SenderBot,
		Text:          TextOf(text),
		Status:        EntryConfirmed,
		CorrelationID: correlationID,
		Emotion:       emotion,
	}
}

// TextValue returns the text or "" when the entry carries none
func (m MessageEntry) TextValue() string {
	if m.Text == nil {
		return ""
	}
	return *m.Text
}

func (m MessageEntry) IsVoice() bool {
	return m.Audio != nil
}

// IsPendingVoice reports whether the entry is a user voice message still waiting
// for its transcription.
func (m MessageEntry) IsPendingVoice() bool {
	return m.Sender == SenderUser && m.Audio.IsLocal() && m.Status == EntryPending
}

// IsPendingPlaceholder reports whether the entry is a bot processing placeholder
// still waiting for the reply.
func (m MessageEntry) IsPendingPlaceholder() bool {
	return m.Sender == SenderBot && m.Placeholder && m.Status == EntryPending
}

// Validate validates the entry data
func (m MessageEntry) Validate() error {
	if m.Sender != SenderUser && m.Sender != SenderBot {
		return errors.New("invalid sender")
	}

	if m.Text == nil && m.Audio == nil {
		return errors.New("entry needs text or audio")
	}

	if m.Audio != nil && m.Audio.Key() == "" {
		return errors.New("audio reference is empty")
	}

	switch m.Status {
	case EntryConfirmed, EntryPending, EntryFailed:
	default:
		return errors.New("invalid entry status")
	}

	return nil
}
