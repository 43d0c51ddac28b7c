package playback

import (
	"encoding/binary"
	"errors"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/soultalk/voicechat/domain/repositories"
)

// ErrClosed is returned by a stream after Close
var ErrClosed = errors.New("playback stream closed")

const eventBuffer = 32

// Stream is a mono 16-bit PCM clip rendered by a Sink. It starts paused.
// Samples may be appended while playing; Duration stays unknown until Finish.
type Stream struct {
	mu         sync.Mutex
	samples    []int16
	rate       int
	pos        int
	paused     bool
	finished   bool
	ended      bool
	closed     bool
	lastUpdate int
	detach     func()

	events chan repositories.MediaEventKind
	logger *zap.Logger
}

var _ repositories.MediaHandle = (*Stream)(nil)

// NewStream creates a paused stream. onEvent is called from a dedicated
// goroutine, never from the audio thread.
func NewStream(samples []int16, rate int, onEvent func(repositories.MediaEvent), logger *zap.Logger) *Stream {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Stream{
		samples: samples,
		rate:    rate,
		paused:  true,
		events:  make(chan repositories.MediaEventKind, eventBuffer),
		logger:  logger,
	}
	go s.dispatch(onEvent)
	return s
}

func (s *Stream) dispatch(onEvent func(repositories.MediaEvent)) {
	for kind := range s.events {
		if onEvent != nil {
			onEvent(repositories.MediaEvent{Kind: kind})
		}
	}
}

// emit must be called with mu held
func (s *Stream) emit(kind repositories.MediaEventKind) {
	if s.closed {
		return
	}
	select {
	case s.events <- kind:
	default:
		s.logger.Warn("Playback event dropped", zap.String("kind", string(kind)))
	}
}

// Append adds samples to the end of an unfinished stream
func (s *Stream) Append(samples []int16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished || s.closed {
		return
	}
	s.samples = append(s.samples, samples...)
}

// Finish marks the stream complete; playback ends once the last sample is rendered
func (s *Stream) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = true
}

func (s *Stream) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if !s.paused {
		return nil
	}
	if s.ended {
		s.pos = 0
		s.lastUpdate = 0
		s.ended = false
	}
	s.paused = false
	s.emit(repositories.MediaPlay)
	return nil
}

func (s *Stream) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.paused {
		return nil
	}
	s.paused = true
	s.emit(repositories.MediaPause)
	return nil
}

func (s *Stream) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *Stream) CurrentTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rate <= 0 {
		return 0
	}
	return float64(s.pos) / float64(s.rate)
}

// Duration is NaN until the stream is finished
func (s *Stream) Duration() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.finished || s.rate <= 0 {
		return math.NaN()
	}
	return float64(len(s.samples)) / float64(s.rate)
}

func (s *Stream) Seek(seconds float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if math.IsNaN(seconds) || seconds < 0 {
		seconds = 0
	}
	pos := int(seconds * float64(s.rate))
	if pos > len(s.samples) {
		pos = len(s.samples)
	}
	s.pos = pos
	s.lastUpdate = pos
	s.ended = false
	s.emit(repositories.MediaTimeUpdate)
	return nil
}

// Close detaches the stream from its sink. Events already queued are still
// delivered.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	detach := s.detach
	s.detach = nil
	s.paused = true
	s.closed = true
	close(s.events)
	s.mu.Unlock()

	if detach != nil {
		detach()
	}
	return nil
}

// Fill renders the next frames as little-endian s16 into out. It is the
// sink's data callback and outputs silence while paused or starved.
func (s *Stream) Fill(out []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	frames := len(out) / 2
	for i := 0; i < frames; i++ {
		var v int16
		if !s.paused && s.pos < len(s.samples) {
			v = s.samples[s.pos]
			s.pos++
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}

	if s.paused {
		return
	}
	if s.finished && s.pos >= len(s.samples) {
		s.paused = true
		s.ended = true
		s.emit(repositories.MediaEnded)
		return
	}
	if s.pos-s.lastUpdate >= s.rate/4 {
		s.lastUpdate = s.pos
		s.emit(repositories.MediaTimeUpdate)
	}
}

// Rate is the stream's sample rate in Hz
func (s *Stream) Rate() int {
	return s.rate
}

func (s *Stream) setDetach(detach func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detach = detach
}
