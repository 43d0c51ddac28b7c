// Package config reads the client settings from the environment, after loading
// a .env file when one is present.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"

	"github.com/soultalk/voicechat/adapters/backend"
)

const (
	CaptureMalgo     = "malgo"
	CapturePortAudio = "portaudio"

	SpeechMock       = "mock"
	SpeechElevenLabs = "elevenlabs"
)

// Config holds the settings of one chat client
type Config struct {
	Backend backend.Config
	// MockBackend replaces the HTTP backend with an in-memory one
	MockBackend bool

	Identity  string
	SessionID string

	CaptureDriver string
	SpeechEngine  string
	ClipCacheSize int
	// CorrelateUploads tags uploads with correlation ids; without them replies
	// are paired with the most recent pending entries
	CorrelateUploads bool

	LogLevel    zapcore.Level
	MetricsAddr string
}

// Load reads .env files (missing ones are ignored) and the environment
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load env file: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables only
func FromEnv() (Config, error) {
	cfg := Config{
		Backend:          backend.NewConfigFromEnv(),
		Identity:         os.Getenv("SOULTALK_IDENTITY"),
		SessionID:        os.Getenv("SOULTALK_SESSION_ID"),
		CaptureDriver:    envOr("SOULTALK_CAPTURE_DRIVER", CaptureMalgo),
		SpeechEngine:     envOr("SOULTALK_SPEECH_ENGINE", SpeechMock),
		ClipCacheSize:    32,
		CorrelateUploads: true,
		MetricsAddr:      os.Getenv("SOULTALK_METRICS_ADDR"),
	}

	var err error
	if cfg.MockBackend, err = envBool("SOULTALK_MOCK_BACKEND", false); err != nil {
		return Config{}, err
	}
	if cfg.CorrelateUploads, err = envBool("SOULTALK_CORRELATE_UPLOADS", true); err != nil {
		return Config{}, err
	}
	if raw := os.Getenv("SOULTALK_CLIP_CACHE_SIZE"); raw != "" {
		if cfg.ClipCacheSize, err = strconv.Atoi(raw); err != nil {
			return Config{}, fmt.Errorf("invalid SOULTALK_CLIP_CACHE_SIZE %q: %w", raw, err)
		}
	}
	if raw := os.Getenv("SOULTALK_REQUEST_TIMEOUT"); raw != "" {
		if cfg.Backend.Timeout, err = time.ParseDuration(raw); err != nil {
			return Config{}, fmt.Errorf("invalid SOULTALK_REQUEST_TIMEOUT %q: %w", raw, err)
		}
	}
	if raw := os.Getenv("SOULTALK_LOG_LEVEL"); raw != "" {
		if cfg.LogLevel, err = zapcore.ParseLevel(raw); err != nil {
			return Config{}, fmt.Errorf("invalid SOULTALK_LOG_LEVEL %q: %w", raw, err)
		}
	}

	return cfg, nil
}

// Validate checks the settings a running client needs
func (c Config) Validate() error {
	if strings.TrimSpace(c.Identity) == "" {
		return errors.New("SOULTALK_IDENTITY is required")
	}
	switch c.CaptureDriver {
	case CaptureMalgo, CapturePortAudio:
	default:
		return fmt.Errorf("unknown capture driver %q", c.CaptureDriver)
	}
	switch c.SpeechEngine {
	case SpeechMock, SpeechElevenLabs:
	default:
		return fmt.Errorf("unknown speech engine %q", c.SpeechEngine)
	}
	if c.ClipCacheSize <= 0 {
		return fmt.Errorf("clip cache size must be positive, got %d", c.ClipCacheSize)
	}
	if !c.MockBackend {
		if err := backend.ValidateConfig(c.Backend); err != nil {
			return err
		}
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return strings.ToLower(v)
	}
	return fallback
}

func envBool(key string, fallback bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}
