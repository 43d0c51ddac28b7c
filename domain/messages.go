package domain

// Exchange is one persisted user/bot turn as returned by the history endpoint
type Exchange struct {
	UserMessage string `json:"user_message"`
	BotReply    string `json:"bot_reply"`
	AudioPath   string `json:"audio_path,omitempty"`
	Emotion     string `json:"emotion,omitempty"`
}

// TextRequest carries a typed message to the backend
type TextRequest struct {
	Message       string
	Identity      string
	SessionID     string
	CorrelationID string
}

// TextReply is the backend answer to a TextRequest
type TextReply struct {
	ReplyText     string `json:"reply"`
	Emotion       string `json:"emotion,omitempty"`
	TitleChanged  bool   `json:"titleChanged"`
	CorrelationID string `json:"clientRef,omitempty"`
}

// VoiceRequest carries an encoded WAV container to the backend
type VoiceRequest struct {
	Container     []byte
	Identity      string
	SessionID     string
	CorrelationID string
}

// VoiceReply is the backend answer to a VoiceRequest
type VoiceReply struct {
	ReplyText       string `json:"reply"`
	Transcription   string `json:"transcription"`
	RemoteAudioPath string `json:"audioFile"`
	Emotion         string `json:"emotion,omitempty"`
	TitleChanged    bool   `json:"titleChanged"`
	CorrelationID   string `json:"clientRef,omitempty"`
}
