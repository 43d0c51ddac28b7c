package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/soultalk/voicechat/adapters"
	"github.com/soultalk/voicechat/adapters/backend"
	"github.com/soultalk/voicechat/adapters/capture"
	"github.com/soultalk/voicechat/adapters/capture/portaudio"
	"github.com/soultalk/voicechat/adapters/playback"
	"github.com/soultalk/voicechat/adapters/speech"
	"github.com/soultalk/voicechat/adapters/tts"
	"github.com/soultalk/voicechat/domain/repositories"
	"github.com/soultalk/voicechat/internal/chatview"
	"github.com/soultalk/voicechat/internal/config"
	"github.com/soultalk/voicechat/internal/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	// Initialize logger
	zapCfg := zap.NewProductionConfig()
	if cfg.LogLevel < zap.InfoLevel {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	zapCfg.OutputPaths = []string{"stderr"}
	logger, err := zapCfg.Build()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	m := metrics.New(reg)
	var metricsServer *echo.Echo
	if cfg.MetricsAddr != "" {
		metricsServer = serveMetrics(cfg.MetricsAddr, reg, logger)
	}

	// Initialize adapters
	var chatBackend repositories.Backend
	if cfg.MockBackend {
		chatBackend = backend.NewMockBackend(logger)
		logger.Info("Using in-memory backend")
	} else {
		chatBackend, err = backend.NewHTTPBackend(cfg.Backend, logger)
		if err != nil {
			logger.Fatal("Failed to create backend client", zap.Error(err))
		}
	}

	clips, err := adapters.NewMemoryClipStore(cfg.ClipCacheSize, logger)
	if err != nil {
		logger.Fatal("Failed to create clip store", zap.Error(err))
	}

	sink, err := playback.NewMalgoSink(logger)
	if err != nil {
		logger.Fatal("Failed to open audio output", zap.Error(err))
	}
	defer sink.Close()

	var device repositories.CaptureDevice
	switch cfg.CaptureDriver {
	case config.CapturePortAudio:
		device = portaudio.NewDevice(logger)
	default:
		device = capture.NewMalgoDevice(logger)
	}

	var speechEngine repositories.SpeechEngine
	switch cfg.SpeechEngine {
	case config.SpeechElevenLabs:
		speechEngine, err = tts.NewElevenLabsSpeech(tts.NewElevenLabsConfigFromEnv(), sink, logger)
		if err != nil {
			logger.Fatal("Failed to create ElevenLabs speech engine", zap.Error(err))
		}
	default:
		speechEngine = speech.NewMockSpeech(speech.DefaultPerRune, logger)
	}

	console := newConsole(os.Stdout)
	view := chatview.New(cfg.SessionID, chatview.Deps{
		Backend: chatBackend,
		Capture: device,
		Speech:  speechEngine,
		Media:   playback.NewClipOpener(clips, chatBackend, sink, logger),
		Clips:   clips,
		Titles:  repositories.TitleNotifierFunc(console.title),
	}, chatview.Options{
		Identity:           cfg.Identity,
		DisableCorrelation: !cfg.CorrelateUploads,
		Metrics:            m,
		Renderer:           console.render,
	}, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go console.readCommands(ctx, os.Stdin, view, cancel, logger)

	logger.Info("Chat client started",
		zap.String("sessionID", cfg.SessionID),
		zap.String("captureDriver", cfg.CaptureDriver),
		zap.String("speechEngine", cfg.SpeechEngine))

	if err := view.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Chat view stopped", zap.Error(err))
	}

	if metricsServer != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Metrics server forced to shutdown", zap.Error(err))
		}
	}
	logger.Info("Chat client exited")
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	go func() {
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server stopped", zap.Error(err))
		}
	}()
	logger.Info("Serving metrics", zap.String("addr", addr))
	return e
}
