package chatview

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/soultalk/voicechat/domain"
	"github.com/soultalk/voicechat/domain/entities"
	"github.com/soultalk/voicechat/domain/repositories"
	"github.com/soultalk/voicechat/internal/audio"
	"github.com/soultalk/voicechat/internal/clip"
	"github.com/soultalk/voicechat/internal/metrics"
	"github.com/soultalk/voicechat/internal/recorder"
	"github.com/soultalk/voicechat/internal/speech"
	"github.com/soultalk/voicechat/usecase"
)

const eventBuffer = 256

var (
	// ErrClosed is returned by calls made after Run has returned
	ErrClosed = errors.New("chat view closed")
	// ErrNoClip is returned when a clip operation targets an entry without audio
	ErrNoClip = errors.New("entry has no audio")
)

// Snapshot is an immutable copy of everything a renderer needs
type Snapshot struct {
	SessionID string
	Entries   []entities.MessageEntry
	Recording entities.RecordingState
	Speech    entities.SpeechState
	// Clips holds the state of opened clips by sequence index. The ratio is 0
	// while a clip length is unknown.
	Clips    map[int]entities.ClipState
	InFlight int
	// LastError describes the most recent failure of a background operation
	LastError string
}

// Renderer receives a snapshot after every processed event. It runs on the
// view goroutine and must not call back into the view.
type Renderer func(Snapshot)

// Deps are the collaborators of a view
type Deps struct {
	Backend repositories.Backend
	Capture repositories.CaptureDevice
	Speech  repositories.SpeechEngine
	Media   repositories.MediaOpener
	Clips   repositories.ClipStore
	Titles  repositories.TitleNotifier
}

// Options tune a view
type Options struct {
	Identity string
	// DisableCorrelation pairs voice replies by backward scan instead of ids
	DisableCorrelation bool
	Metrics            *metrics.Metrics
	Renderer           Renderer
}

// View is one chat view. Run owns the timeline, the recorder, the speech
// controller and the clip trackers; every other goroutine talks to it through
// the event channel.
type View struct {
	events chan func()
	done   chan struct{}

	timeline *entities.Timeline
	chat     *usecase.ChatService
	voice    *usecase.ConversationService
	recorder *recorder.Controller
	speech   *speech.Controller
	media    repositories.MediaOpener
	clips    map[int]*clipSlot

	// netCtx carries values but never cancellation into backend calls
	netCtx    context.Context
	inFlight  int
	lastError string

	render  Renderer
	metrics *metrics.Metrics
	logger  *zap.Logger
}

type clipSlot struct {
	key     string
	tracker *clip.Tracker
}

// New creates a chat view showing sessionID
func New(sessionID string, deps Deps, opts Options, logger *zap.Logger) *View {
	if logger == nil {
		logger = zap.NewNop()
	}

	timeline := entities.NewTimeline(sessionID)
	v := &View{
		events:   make(chan func(), eventBuffer),
		done:     make(chan struct{}),
		timeline: timeline,
		media:    deps.Media,
		clips:    make(map[int]*clipSlot),
		netCtx:   context.Background(),
		render:   opts.Renderer,
		metrics:  opts.Metrics,
		logger:   logger,
	}

	v.chat = usecase.NewChatService(deps.Backend, timeline, deps.Titles, opts.Identity, opts.Metrics, logger)
	v.voice = usecase.NewConversationService(deps.Backend, timeline, deps.Clips, deps.Titles, opts.Identity, opts.Metrics, logger)
	if opts.DisableCorrelation {
		v.chat.SetCorrelation(false)
		v.voice.SetCorrelation(false)
	}
	v.recorder = recorder.NewController(deps.Capture, logger, recorder.WithMetrics(opts.Metrics))
	v.speech = speech.NewController(deps.Speech, logger,
		speech.WithMetrics(opts.Metrics),
		speech.WithEndNotifier(func(id speech.UtteranceID) {
			// the engine may signal from inside Cancel on the view goroutine
			go v.post(func() { v.speech.Ended(id) })
		}),
	)
	return v
}

// Run processes events until ctx is done, then tears the view down: speech is
// cancelled, a live capture is released and every clip is closed. Backend
// calls already in flight finish on their own and their results are dropped.
func (v *View) Run(ctx context.Context) error {
	v.netCtx = context.WithoutCancel(ctx)
	defer close(v.done)

	if sessionID := v.timeline.SessionID(); sessionID != "" {
		v.loadHistory(sessionID)
	}
	v.publish()

	for {
		select {
		case <-ctx.Done():
			v.teardown()
			return ctx.Err()

		case fn := <-v.events:
			fn()
			v.closeStaleClips()
			v.publish()

		case block, ok := <-v.recorder.Blocks():
			if !ok {
				// device lost: keep what was captured and send it as a normal stop
				v.logger.Warn("Capture device stopped delivering audio")
				v.fail(fmt.Errorf("%w: capture ended unexpectedly", domain.ErrDeviceUnavailable))
				if err := v.finishRecording(); err != nil {
					v.logger.Error("Failed to finish interrupted recording", zap.Error(err))
				}
				v.publish()
				continue
			}
			v.recorder.HandleBlock(block)
		}
	}
}

// post queues fn for the view goroutine. It gives up once the view is closed.
func (v *View) post(fn func()) bool {
	select {
	case v.events <- fn:
		return true
	case <-v.done:
		return false
	}
}

// call runs fn on the view goroutine and waits for its result
func (v *View) call(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	select {
	case v.events <- func() { result <- fn() }:
	case <-ctx.Done():
		return ctx.Err()
	case <-v.done:
		return ErrClosed
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-v.done:
		return ErrClosed
	}
}

// spawn runs a backend leg off the view goroutine and applies its result back
// on it
func (v *View) spawn(leg func(ctx context.Context) func()) {
	v.inFlight++
	ctx := v.netCtx
	go func() {
		apply := leg(ctx)
		v.post(func() {
			v.inFlight--
			apply()
		})
	}()
}

func (v *View) fail(err error) {
	v.lastError = err.Error()
}

// SwitchSession discards the timeline and loads the history of sessionID.
// Speech and clip playback belonging to the previous session are stopped.
func (v *View) SwitchSession(ctx context.Context, sessionID string) error {
	return v.call(ctx, func() error {
		v.switchSession(sessionID)
		return nil
	})
}

func (v *View) switchSession(sessionID string) {
	if sessionID == v.timeline.SessionID() {
		return
	}
	v.logger.Info("Switching session",
		zap.String("from", v.timeline.SessionID()),
		zap.String("to", sessionID))

	v.speech.Stop()
	v.closeAllClips()
	v.timeline.Reset(sessionID)
	v.voice.Forget(sessionID)
	v.lastError = ""
	if sessionID != "" {
		v.loadHistory(sessionID)
	}
}

func (v *View) loadHistory(sessionID string) {
	v.spawn(func(ctx context.Context) func() {
		exchanges, err := v.chat.LoadHistory(ctx, sessionID)
		return func() {
			if v.chat.ApplyHistory(sessionID, exchanges, err) {
				v.closeAllClips()
				return
			}
			if err != nil && sessionID == v.timeline.SessionID() {
				v.fail(err)
			}
		}
	})
}

// SendText appends a typed message and sends it
func (v *View) SendText(ctx context.Context, text string) error {
	return v.call(ctx, func() error {
		return v.sendText(text)
	})
}

// SendFirstMessage switches to a session that was just created elsewhere and
// sends its first message. The message stays visible while the session's
// history loads.
func (v *View) SendFirstMessage(ctx context.Context, sessionID, text string) error {
	return v.call(ctx, func() error {
		v.switchSession(sessionID)
		return v.sendText(text)
	})
}

func (v *View) sendText(text string) error {
	send, err := v.chat.BeginText(text)
	if err != nil {
		return err
	}
	v.deliverText(send)
	return nil
}

func (v *View) deliverText(send *usecase.TextSend) {
	v.spawn(func(ctx context.Context) func() {
		reply, err := v.chat.SendText(ctx, send)
		return func() {
			v.applyOutcome(v.chat.CompleteText(send, reply, err))
		}
	})
}

// ToggleRecording starts a recording when idle. Otherwise it stops the
// recording and uploads the voice message.
func (v *View) ToggleRecording(ctx context.Context) error {
	return v.call(ctx, func() error {
		if v.recorder.State() == entities.RecordingIdle {
			if err := v.recorder.Start(ctx); err != nil {
				v.fail(err)
				return err
			}
			return nil
		}
		return v.finishRecording()
	})
}

func (v *View) finishRecording() error {
	v.drainBlocks()
	container, err := v.recorder.Stop()
	if err != nil {
		v.fail(err)
		return err
	}
	if len(container) <= audio.HeaderSize {
		v.logger.Info("Recording captured no audio, nothing to send")
		return nil
	}

	upload, err := v.voice.BeginVoice(container)
	if err != nil {
		return err
	}
	v.deliverVoice(upload)
	return nil
}

// drainBlocks takes whatever the device already queued before the stop
func (v *View) drainBlocks() {
	blocks := v.recorder.Blocks()
	for {
		select {
		case block, ok := <-blocks:
			if !ok {
				return
			}
			v.recorder.HandleBlock(block)
		default:
			return
		}
	}
}

func (v *View) deliverVoice(upload *usecase.VoiceUpload) {
	v.spawn(func(ctx context.Context) func() {
		reply, err := v.voice.UploadVoice(ctx, upload)
		return func() {
			v.applyOutcome(v.voice.CompleteVoice(upload, reply, err))
		}
	})
}

func (v *View) applyOutcome(outcome usecase.Outcome) {
	if outcome.Stale {
		return
	}
	if outcome.Err != nil {
		v.fail(outcome.Err)
		return
	}
	if outcome.SpeakText != "" {
		if err := v.speech.Speak(v.netCtx, outcome.SpeakText); err != nil {
			v.fail(err)
		}
	}
}

// Retry resends the failed message at sequence index seq
func (v *View) Retry(ctx context.Context, seq int) error {
	return v.call(ctx, func() error {
		entry, ok := v.timeline.At(seq)
		if !ok {
			return fmt.Errorf("retry index %d: %w", seq, domain.ErrEntryNotFound)
		}

		if entry.IsVoice() || entry.Sender == entities.SenderBot {
			upload, err := v.voice.RetryVoice(seq)
			if err != nil {
				return err
			}
			v.deliverVoice(upload)
			return nil
		}

		send, err := v.chat.RetryText(seq)
		if err != nil {
			return err
		}
		v.deliverText(send)
		return nil
	})
}

// ToggleSpeech pauses or resumes the spoken reply
func (v *View) ToggleSpeech(ctx context.Context) error {
	return v.call(ctx, v.speech.Toggle)
}

// StopSpeech silences the spoken reply
func (v *View) StopSpeech(ctx context.Context) error {
	return v.call(ctx, func() error {
		v.speech.Stop()
		return nil
	})
}

// ToggleClip plays or pauses the audio of entry seq. The clip is opened on
// first use; opening may download it.
func (v *View) ToggleClip(ctx context.Context, seq int) error {
	return v.call(ctx, func() error {
		entry, ok := v.timeline.At(seq)
		if !ok {
			return fmt.Errorf("clip index %d: %w", seq, domain.ErrEntryNotFound)
		}
		if entry.Audio == nil {
			return fmt.Errorf("clip index %d: %w", seq, ErrNoClip)
		}

		slot := v.clips[seq]
		if slot == nil {
			v.openClip(seq, *entry.Audio)
			return nil
		}
		if slot.tracker == nil {
			// still opening, it starts playing once ready
			return nil
		}
		return slot.tracker.TogglePlay()
	})
}

// SeekClip moves the playback position of entry seq to ratio of its length. A
// clip that was never opened has no known length and is left alone.
func (v *View) SeekClip(ctx context.Context, seq int, ratio float64) error {
	return v.call(ctx, func() error {
		slot := v.clips[seq]
		if slot == nil || slot.tracker == nil {
			return nil
		}
		return slot.tracker.Seek(ratio)
	})
}

func (v *View) openClip(seq int, ref entities.AudioRef) {
	slot := &clipSlot{key: ref.Key()}
	v.clips[seq] = slot

	onEvent := func(event repositories.MediaEvent) {
		v.post(func() {
			if v.clips[seq] == slot && slot.tracker != nil {
				slot.tracker.HandleEvent(event)
			}
		})
	}

	v.spawn(func(ctx context.Context) func() {
		handle, err := v.media.Open(ctx, ref, onEvent)
		return func() {
			if v.clips[seq] != slot {
				if handle != nil {
					handle.Close()
				}
				return
			}
			if err != nil {
				delete(v.clips, seq)
				v.logger.Error("Failed to open clip", zap.Int("sequenceIndex", seq), zap.Error(err))
				v.fail(err)
				return
			}
			slot.tracker = clip.NewTracker(handle, v.logger)
			if err := slot.tracker.TogglePlay(); err != nil {
				v.fail(err)
			}
		}
	})
}

// closeStaleClips closes trackers whose entry was replaced by one with
// different audio
func (v *View) closeStaleClips() {
	for seq, slot := range v.clips {
		entry, ok := v.timeline.At(seq)
		if ok && entry.Audio != nil && entry.Audio.Key() == slot.key {
			continue
		}
		v.closeClip(seq)
	}
}

func (v *View) closeClip(seq int) {
	slot := v.clips[seq]
	delete(v.clips, seq)
	if slot == nil || slot.tracker == nil {
		return
	}
	if err := slot.tracker.Close(); err != nil {
		v.logger.Warn("Failed to close clip", zap.Int("sequenceIndex", seq), zap.Error(err))
	}
}

func (v *View) closeAllClips() {
	for seq := range v.clips {
		v.closeClip(seq)
	}
}

// Snapshot returns the current view state
func (v *View) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := v.call(ctx, func() error {
		snap = v.snapshot()
		return nil
	})
	return snap, err
}

func (v *View) snapshot() Snapshot {
	clips := make(map[int]entities.ClipState, len(v.clips))
	for seq, slot := range v.clips {
		if slot.tracker != nil {
			state := slot.tracker.State()
			state.ProgressRatio = state.Display()
			clips[seq] = state
		}
	}
	return Snapshot{
		SessionID: v.timeline.SessionID(),
		Entries:   v.timeline.Entries(),
		Recording: v.recorder.State(),
		Speech:    v.speech.State(),
		Clips:     clips,
		InFlight:  v.inFlight,
		LastError: v.lastError,
	}
}

func (v *View) publish() {
	if v.render != nil {
		v.render(v.snapshot())
	}
}

func (v *View) teardown() {
	v.speech.Stop()
	v.recorder.Abort()
	v.closeAllClips()
	v.logger.Info("Chat view closed",
		zap.String("sessionID", v.timeline.SessionID()),
		zap.Int("inFlight", v.inFlight))
}
