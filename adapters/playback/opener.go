package playback

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/soultalk/voicechat/domain/entities"
	"github.com/soultalk/voicechat/domain/repositories"
	"github.com/soultalk/voicechat/internal/audio"
)

// AudioFetcher downloads backend-hosted clips
type AudioFetcher interface {
	FetchAudio(ctx context.Context, path string) ([]byte, error)
}

// ClipOpener resolves audio references to playable streams. Remote clips are
// fetched once and kept in the clip store.
type ClipOpener struct {
	clips   repositories.ClipStore
	fetcher AudioFetcher
	sink    Sink
	logger  *zap.Logger
}

var _ repositories.MediaOpener = (*ClipOpener)(nil)

// NewClipOpener creates a new clip opener
func NewClipOpener(clips repositories.ClipStore, fetcher AudioFetcher, sink Sink, logger *zap.Logger) *ClipOpener {
	return &ClipOpener{clips: clips, fetcher: fetcher, sink: sink, logger: logger}
}

// Open implements repositories.MediaOpener
func (o *ClipOpener) Open(ctx context.Context, ref entities.AudioRef, onEvent func(repositories.MediaEvent)) (repositories.MediaHandle, error) {
	key := ref.Key()
	container, ok := o.clips.Get(key)
	if !ok {
		if ref.Kind != entities.AudioRemote {
			return nil, fmt.Errorf("clip %q is no longer available", key)
		}
		fetched, err := o.fetcher.FetchAudio(ctx, ref.URI)
		if err != nil {
			return nil, fmt.Errorf("fetching clip: %w", err)
		}
		o.clips.Store(key, fetched)
		container = fetched
		o.logger.Debug("Fetched remote clip", zap.String("uri", ref.URI), zap.Int("bytes", len(fetched)))
	}

	samples, rate, err := audio.DecodeWAV(container)
	if err != nil {
		return nil, fmt.Errorf("decoding clip %q: %w", key, err)
	}

	stream := NewStream(samples, rate, onEvent, o.logger)
	stream.Finish()
	if err := o.sink.Attach(stream); err != nil {
		stream.Close()
		return nil, err
	}
	return stream, nil
}
