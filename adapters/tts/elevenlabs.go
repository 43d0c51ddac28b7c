package tts

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/soultalk/voicechat/adapters/playback"
	"github.com/soultalk/voicechat/domain"
	"github.com/soultalk/voicechat/domain/repositories"
)

const (
	defaultAPIBaseURL   = "https://api.elevenlabs.io/v1"
	defaultVoiceID      = "21m00Tcm4TlvDq8ikWAM" // Rachel voice
	defaultChunkSize    = 4096
	defaultOutputFormat = "pcm_44100"
	defaultModelID      = "eleven_multilingual_v2"
	defaultStability    = 0.5
	defaultClarity      = 0.75
)

// ElevenLabsConfig holds configuration for the ElevenLabs speech engine.
// Only APIKey is required.
type ElevenLabsConfig struct {
	APIKey       string
	APIBaseURL   string
	VoiceID      string
	ModelID      string
	OutputFormat string // must be a pcm_<rate> format
	ChunkSize    int
	Stability    float64
	Clarity      float64
}

// ElevenLabsSpeech reads replies aloud by streaming PCM from the ElevenLabs
// API into a playback stream
type ElevenLabsSpeech struct {
	client       *resty.Client
	voiceID      string
	modelID      string
	outputFormat string
	sampleRate   int
	chunkSize    int
	stability    float64
	clarity      float64
	sink         playback.Sink
	logger       *zap.Logger
}

var _ repositories.SpeechEngine = (*ElevenLabsSpeech)(nil)

// ElevenLabsVoiceSettings represents voice settings for Eleven Labs API
type ElevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style,omitempty"`
	UseSpeakerBoost bool    `json:"use_speaker_boost,omitempty"`
}

// ElevenLabsRequest represents the request payload for Eleven Labs TTS API
type ElevenLabsRequest struct {
	Text                   string                  `json:"text"`
	ModelID                string                  `json:"model_id"`
	VoiceSettings          ElevenLabsVoiceSettings `json:"voice_settings"`
	ApplyTextNormalization string                  `json:"apply_text_normalization,omitempty"`
}

// ValidateElevenLabsConfig validates the ElevenLabsConfig
func ValidateElevenLabsConfig(config ElevenLabsConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("eleven labs API key is required")
	}
	if config.Stability != 0 && (config.Stability < 0 || config.Stability > 1) {
		return fmt.Errorf("stability must be between 0 and 1, got %f", config.Stability)
	}
	if config.Clarity != 0 && (config.Clarity < 0 || config.Clarity > 1) {
		return fmt.Errorf("clarity must be between 0 and 1, got %f", config.Clarity)
	}
	if config.ChunkSize < 0 {
		return fmt.Errorf("chunk size must be positive, got %d", config.ChunkSize)
	}
	if config.OutputFormat != "" {
		if _, err := pcmRate(config.OutputFormat); err != nil {
			return err
		}
	}
	return nil
}

// pcmRate extracts the sample rate from a format such as pcm_44100
func pcmRate(format string) (int, error) {
	rate, ok := strings.CutPrefix(format, "pcm_")
	if !ok {
		return 0, fmt.Errorf("output format %q is not raw PCM", format)
	}
	n, err := strconv.Atoi(rate)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("output format %q has no valid sample rate", format)
	}
	return n, nil
}

// NewElevenLabsSpeech creates a new ElevenLabs speech engine rendering into sink
func NewElevenLabsSpeech(config ElevenLabsConfig, sink playback.Sink, logger *zap.Logger) (*ElevenLabsSpeech, error) {
	if err := ValidateElevenLabsConfig(config); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	apiBaseURL := config.APIBaseURL
	if apiBaseURL == "" {
		apiBaseURL = defaultAPIBaseURL
	}
	voiceID := config.VoiceID
	if voiceID == "" {
		voiceID = defaultVoiceID
		logger.Info("Using default voice ID", zap.String("voiceID", voiceID))
	}
	modelID := config.ModelID
	if modelID == "" {
		modelID = defaultModelID
	}
	outputFormat := config.OutputFormat
	if outputFormat == "" {
		outputFormat = defaultOutputFormat
	}
	sampleRate, _ := pcmRate(outputFormat)
	chunkSize := config.ChunkSize
	if chunkSize == 0 {
		chunkSize = defaultChunkSize
	}
	stability := config.Stability
	if stability == 0 {
		stability = defaultStability
	}
	clarity := config.Clarity
	if clarity == 0 {
		clarity = defaultClarity
	}

	client := resty.New().
		SetBaseURL(apiBaseURL).
		SetHeader("xi-api-key", config.APIKey).
		SetHeader("Accept", "audio/pcm")

	return &ElevenLabsSpeech{
		client:       client,
		voiceID:      voiceID,
		modelID:      modelID,
		outputFormat: outputFormat,
		sampleRate:   sampleRate,
		chunkSize:    chunkSize,
		stability:    stability,
		clarity:      clarity,
		sink:         sink,
		logger:       logger,
	}, nil
}

// Speak implements repositories.SpeechEngine. Synthesis streams in the
// background and playback starts as soon as the first samples arrive.
func (e *ElevenLabsSpeech) Speak(ctx context.Context, text string, onEnd func()) (repositories.Utterance, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	u := &utterance{cancel: cancel, onEnd: onEnd}
	u.stream = playback.NewStream(nil, e.sampleRate, func(ev repositories.MediaEvent) {
		if ev.Kind == repositories.MediaEnded {
			u.end()
		}
	}, e.logger)

	if err := e.sink.Attach(u.stream); err != nil {
		cancel()
		u.stream.Close()
		return nil, err
	}
	if err := u.stream.Play(); err != nil {
		cancel()
		u.stream.Close()
		return nil, err
	}

	e.logger.Info("Speaking reply",
		zap.Int("textLength", len(text)),
		zap.String("voiceID", e.voiceID))
	go e.synthesize(streamCtx, text, u.stream)
	return u, nil
}

// synthesize feeds the stream until the response is drained or cancelled. The
// stream is always finished so playback can reach its end.
func (e *ElevenLabsSpeech) synthesize(ctx context.Context, text string, stream *playback.Stream) {
	defer stream.Finish()

	resp, err := e.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetQueryParams(map[string]string{
			"output_format":  e.outputFormat,
			"enable_logging": "false",
		}).
		SetBody(ElevenLabsRequest{
			Text:                   text,
			ModelID:                e.modelID,
			ApplyTextNormalization: "auto",
			VoiceSettings: ElevenLabsVoiceSettings{
				Stability:       e.stability,
				SimilarityBoost: e.clarity,
				UseSpeakerBoost: true,
			},
		}).
		Post(fmt.Sprintf("/text-to-speech/%s/stream", e.voiceID))
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			e.logger.Error("Speech request failed", zap.Error(fmt.Errorf("%w: %v", domain.ErrTransportFailure, err)))
		}
		return
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != 200 {
		errorBody, _ := io.ReadAll(io.LimitReader(body, 4096))
		e.logger.Error("Eleven Labs API returned error",
			zap.Int("statusCode", resp.StatusCode()),
			zap.String("response", string(errorBody)))
		return
	}

	if err := pumpPCM(ctx, body, e.chunkSize, stream.Append); err != nil && !errors.Is(err, context.Canceled) {
		e.logger.Error("Error reading speech stream", zap.Error(err))
	}
}

// pumpPCM decodes little-endian s16 from r in chunks, carrying odd bytes over
// to the next read
func pumpPCM(ctx context.Context, r io.Reader, chunkSize int, emit func([]int16)) error {
	buf := make([]byte, chunkSize+1)
	carry := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf[carry:])
		n += carry
		whole := n &^ 1
		if whole > 0 {
			samples := make([]int16, whole/2)
			for i := range samples {
				samples[i] = int16(binary.LittleEndian.Uint16(buf[i*2:]))
			}
			emit(samples)
		}
		carry = n - whole
		if carry > 0 {
			buf[0] = buf[whole]
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

type utterance struct {
	stream *playback.Stream
	cancel context.CancelFunc
	onEnd  func()
	once   sync.Once
}

func (u *utterance) Pause() error  { return u.stream.Pause() }
func (u *utterance) Resume() error { return u.stream.Play() }

func (u *utterance) Cancel() error {
	u.end()
	return nil
}

func (u *utterance) end() {
	u.once.Do(func() {
		u.cancel()
		u.stream.Close()
		if u.onEnd != nil {
			u.onEnd()
		}
	})
}

// NewElevenLabsConfigFromEnv creates a new ElevenLabsConfig from environment variables
func NewElevenLabsConfigFromEnv() ElevenLabsConfig {
	config := ElevenLabsConfig{
		APIKey:       os.Getenv("ELEVEN_LABS_API_KEY"),
		APIBaseURL:   os.Getenv("ELEVEN_LABS_API_BASE_URL"),
		VoiceID:      os.Getenv("ELEVEN_LABS_VOICE_ID"),
		ModelID:      os.Getenv("ELEVEN_LABS_MODEL_ID"),
		OutputFormat: os.Getenv("ELEVEN_LABS_OUTPUT_FORMAT"),
	}

	if chunkSizeStr := os.Getenv("ELEVEN_LABS_CHUNK_SIZE"); chunkSizeStr != "" {
		if chunkSize, err := strconv.Atoi(chunkSizeStr); err == nil && chunkSize > 0 {
			config.ChunkSize = chunkSize
		}
	}
	if stabilityStr := os.Getenv("ELEVEN_LABS_STABILITY"); stabilityStr != "" {
		if stability, err := strconv.ParseFloat(stabilityStr, 64); err == nil && stability >= 0 && stability <= 1 {
			config.Stability = stability
		}
	}
	if clarityStr := os.Getenv("ELEVEN_LABS_CLARITY"); clarityStr != "" {
		if clarity, err := strconv.ParseFloat(clarityStr, 64); err == nil && clarity >= 0 && clarity <= 1 {
			config.Clarity = clarity
		}
	}

	return config
}
