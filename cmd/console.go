package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/soultalk/voicechat/domain/entities"
	"github.com/soultalk/voicechat/internal/chatview"
)

const help = `commands:
  <text>               send a message
  /rec                 start or stop recording
  /retry <n>           resend failed entry n
  /pause               pause or resume the spoken reply
  /stop                stop the spoken reply
  /play <n>            play or pause the audio of entry n
  /seek <n> <ratio>    move the audio of entry n to ratio (0..1)
  /session <id>        switch session
  /new <id> <text>     send the first message of a new session
  /quit`

// console prints timeline changes and turns stdin lines into view calls
type console struct {
	mu        sync.Mutex
	out       io.Writer
	printed   []entities.MessageEntry
	session   string
	recording entities.RecordingState
	lastError string
}

func newConsole(out io.Writer) *console {
	return &console{out: out}
}

func (c *console) render(snap chatview.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if snap.SessionID != c.session {
		c.session = snap.SessionID
		c.printed = nil
		fmt.Fprintf(c.out, "== session %s ==\n", snap.SessionID)
	}
	for i, entry := range snap.Entries {
		if i < len(c.printed) && reflect.DeepEqual(c.printed[i], entry) {
			continue
		}
		fmt.Fprintln(c.out, formatEntry(entry))
	}
	c.printed = snap.Entries

	if snap.Recording != c.recording {
		c.recording = snap.Recording
		fmt.Fprintf(c.out, "-- recording: %s\n", snap.Recording)
	}
	if snap.LastError != "" && snap.LastError != c.lastError {
		fmt.Fprintf(c.out, "!! %s\n", snap.LastError)
	}
	c.lastError = snap.LastError
}

func (c *console) title(sessionID, title string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "-- session %s is now titled %q\n", sessionID, title)
}

func formatEntry(entry entities.MessageEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d] %-4s", entry.SequenceIndex, entry.Sender)
	if entry.Status != entities.EntryConfirmed {
		fmt.Fprintf(&b, " (%s)", entry.Status)
	}
	if entry.Audio != nil {
		b.WriteString(" [audio]")
	}
	if text := entry.TextValue(); text != "" {
		b.WriteString(" ")
		b.WriteString(text)
	}
	if entry.Emotion != "" {
		fmt.Fprintf(&b, " {%s}", entry.Emotion)
	}
	return b.String()
}

func (c *console) readCommands(ctx context.Context, in io.Reader, view *chatview.View, quit func(), logger *zap.Logger) {
	fmt.Fprintln(c.out, help)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" {
			quit()
			return
		}
		if err := dispatch(ctx, view, line); err != nil {
			logger.Warn("Command failed", zap.String("command", line), zap.Error(err))
			c.mu.Lock()
			fmt.Fprintf(c.out, "!! %v\n", err)
			c.mu.Unlock()
		}
	}
	quit()
}

func dispatch(ctx context.Context, view *chatview.View, line string) error {
	if !strings.HasPrefix(line, "/") {
		return view.SendText(ctx, line)
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/rec":
		return view.ToggleRecording(ctx)
	case "/pause":
		return view.ToggleSpeech(ctx)
	case "/stop":
		return view.StopSpeech(ctx)
	case "/retry", "/play":
		if len(fields) != 2 {
			return fmt.Errorf("usage: %s <n>", fields[0])
		}
		seq, err := strconv.Atoi(fields[1])
		if err != nil {
			return fmt.Errorf("invalid entry number %q", fields[1])
		}
		if fields[0] == "/retry" {
			return view.Retry(ctx, seq)
		}
		return view.ToggleClip(ctx, seq)
	case "/seek":
		if len(fields) != 3 {
			return fmt.Errorf("usage: /seek <n> <ratio>")
		}
		seq, err := strconv.Atoi(fields[1])
		if err != nil {
			return fmt.Errorf("invalid entry number %q", fields[1])
		}
		ratio, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return fmt.Errorf("invalid ratio %q", fields[2])
		}
		return view.SeekClip(ctx, seq, ratio)
	case "/session":
		if len(fields) != 2 {
			return fmt.Errorf("usage: /session <id>")
		}
		return view.SwitchSession(ctx, fields[1])
	case "/new":
		parts := strings.SplitN(line, " ", 3)
		if len(parts) != 3 {
			return fmt.Errorf("usage: /new <id> <text>")
		}
		return view.SendFirstMessage(ctx, parts[1], parts[2])
	default:
		return fmt.Errorf("unknown command %s", fields[0])
	}
}
