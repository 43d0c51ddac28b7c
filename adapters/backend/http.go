package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/soultalk/voicechat/domain"
	"github.com/soultalk/voicechat/domain/repositories"
)

const (
	defaultBaseURL = "http://localhost:5000"

	historyPath = "/api/session/messages"
	textPath    = "/api/message"
	voicePath   = "/api/voice-message"

	correlationHeader = "X-Correlation-ID"
	voiceFileName     = "voice.wav"
)

// Config holds configuration for the HTTP backend client
type Config struct {
	BaseURL string        // Optional: backend root URL (default: "http://localhost:5000")
	Timeout time.Duration // Optional: per-request timeout, zero disables it
}

// HTTPBackend talks to the chat backend over its JSON/multipart REST API
type HTTPBackend struct {
	client *resty.Client
	logger *zap.Logger
}

var _ repositories.Backend = (*HTTPBackend)(nil)

type errorResponse struct {
	Error string `json:"error"`
}

type historyResponse struct {
	Messages []domain.Exchange `json:"messages"`
}

type textRequestBody struct {
	Message   string `json:"message"`
	Email     string `json:"email"`
	SessionID string `json:"sessionId"`
	ClientRef string `json:"clientRef,omitempty"`
}

// ValidateConfig validates the Config
func ValidateConfig(config Config) error {
	if config.BaseURL != "" {
		u, err := url.Parse(config.BaseURL)
		if err != nil {
			return fmt.Errorf("invalid backend URL: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("backend URL must be http or https, got %q", config.BaseURL)
		}
	}
	if config.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", config.Timeout)
	}
	return nil
}

// NewHTTPBackend creates a new backend client
func NewHTTPBackend(config Config, logger *zap.Logger) (*HTTPBackend, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
		logger.Info("Using default backend URL", zap.String("baseURL", baseURL))
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Accept", "application/json")
	if config.Timeout > 0 {
		client.SetTimeout(config.Timeout)
	}

	return &HTTPBackend{
		client: client,
		logger: logger,
	}, nil
}

// NewConfigFromEnv creates a new Config from environment variables
func NewConfigFromEnv() Config {
	config := Config{
		BaseURL: os.Getenv("SOULTALK_BACKEND_URL"),
	}
	if timeout := os.Getenv("SOULTALK_REQUEST_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil && d > 0 {
			config.Timeout = d
		}
	}
	return config
}

// FetchHistory implements repositories.Backend
func (b *HTTPBackend) FetchHistory(ctx context.Context, sessionID string) ([]domain.Exchange, error) {
	var out historyResponse
	resp, err := b.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"sessionId": sessionID}).
		SetResult(&out).
		SetError(&errorResponse{}).
		Post(historyPath)
	if err := b.check("fetch history", resp, err); err != nil {
		return nil, err
	}

	b.logger.Debug("Fetched session history",
		zap.String("sessionID", sessionID),
		zap.Int("exchanges", len(out.Messages)))
	return out.Messages, nil
}

// SendText implements repositories.Backend
func (b *HTTPBackend) SendText(ctx context.Context, req domain.TextRequest) (*domain.TextReply, error) {
	var out domain.TextReply
	r := b.client.R().
		SetContext(ctx).
		SetBody(textRequestBody{
			Message:   req.Message,
			Email:     req.Identity,
			SessionID: req.SessionID,
			ClientRef: req.CorrelationID,
		}).
		SetResult(&out).
		SetError(&errorResponse{})
	if req.CorrelationID != "" {
		r.SetHeader(correlationHeader, req.CorrelationID)
	}

	resp, err := r.Post(textPath)
	if err := b.check("send text", resp, err); err != nil {
		return nil, err
	}

	b.logger.Debug("Text message sent",
		zap.String("sessionID", req.SessionID),
		zap.String("correlationID", req.CorrelationID),
		zap.Bool("titleChanged", out.TitleChanged))
	return &out, nil
}

// SendVoice implements repositories.Backend
func (b *HTTPBackend) SendVoice(ctx context.Context, req domain.VoiceRequest) (*domain.VoiceReply, error) {
	form := map[string]string{
		"email":     req.Identity,
		"sessionId": req.SessionID,
	}

	var out domain.VoiceReply
	r := b.client.R().
		SetContext(ctx).
		SetFileReader("file", voiceFileName, bytes.NewReader(req.Container)).
		SetResult(&out).
		SetError(&errorResponse{})
	if req.CorrelationID != "" {
		form["clientRef"] = req.CorrelationID
		r.SetHeader(correlationHeader, req.CorrelationID)
	}
	r.SetFormData(form)

	resp, err := r.Post(voicePath)
	if err := b.check("send voice", resp, err); err != nil {
		return nil, err
	}

	b.logger.Debug("Voice message sent",
		zap.String("sessionID", req.SessionID),
		zap.String("correlationID", req.CorrelationID),
		zap.Int("containerBytes", len(req.Container)),
		zap.String("audioFile", out.RemoteAudioPath))
	return &out, nil
}

// FetchAudio implements repositories.Backend
func (b *HTTPBackend) FetchAudio(ctx context.Context, path string) ([]byte, error) {
	if path == "" {
		return nil, errors.New("audio path cannot be empty")
	}

	resp, err := b.client.R().
		SetContext(ctx).
		SetHeader("Accept", "audio/wav").
		Get(path)
	if err := b.check("fetch audio", resp, err); err != nil {
		return nil, err
	}
	return resp.Body(), nil
}

func (b *HTTPBackend) check(op string, resp *resty.Response, err error) error {
	if err != nil {
		b.logger.Error("Backend request failed", zap.String("operation", op), zap.Error(err))
		return fmt.Errorf("%w: %s: %v", domain.ErrTransportFailure, op, err)
	}
	if !resp.IsError() {
		return nil
	}

	message := strings.TrimSpace(resp.String())
	if body, ok := resp.Error().(*errorResponse); ok && body.Error != "" {
		message = body.Error
	}
	b.logger.Error("Backend returned error",
		zap.String("operation", op),
		zap.Int("statusCode", resp.StatusCode()),
		zap.String("response", message))
	return fmt.Errorf("%w: %s: status %d: %s", domain.ErrTransportFailure, op, resp.StatusCode(), message)
}
