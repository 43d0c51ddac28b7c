package entities

import (
	"errors"
	"math"
	"testing"

	"github.com/soultalk/voicechat/domain"
)

func TestTimelineCreation(t *testing.T) {
	timeline := NewTimeline("session-1")

	if timeline.SessionID() != "session-1" {
		t.Errorf("Expected session ID session-1, got %s", timeline.SessionID())
	}

	if timeline.Len() != 0 {
		t.Errorf("Expected empty timeline, got %d entries", timeline.Len())
	}
}

func TestAppendAssignsSequenceIndex(t *testing.T) {
	timeline := NewTimeline("session-1")

	first := timeline.Append(NewUserText("Hello", "c1"))
	second := timeline.Append(NewBotReply("Hi there", "", "c1"))

	if first != 0 || second != 1 {
		t.Fatalf("Expected indices 0 and 1, got %d and %d", first, second)
	}

	entries := timeline.Entries()
	for i, entry := range entries {
		if entry.SequenceIndex != i {
			t.Errorf("Entry %d has sequence index %d", i, entry.SequenceIndex)
		}
	}

	if entries[0].Sender != SenderUser || entries[1].Sender != SenderBot {
		t.Errorf("Unexpected senders %s, %s", entries[0].Sender, entries[1].Sender)
	}
}

func TestEntriesReturnsCopy(t *testing.T) {
	timeline := NewTimeline("session-1")
	timeline.Append(NewUserText("Hello", ""))

	entries := timeline.Entries()
	entries[0].Sender = SenderBot

	entry, _ := timeline.At(0)
	if entry.Sender != SenderUser {
		t.Error("Modifying the returned slice must not change the timeline")
	}
}

func TestReplaceKeepsSequenceIndex(t *testing.T) {
	timeline := NewTimeline("session-1")
	timeline.Append(NewUserText("Hello", ""))
	idx := timeline.Append(NewProcessingPlaceholder("c1"))

	if err := timeline.Replace(idx, NewBotReply("Done", "", "c1")); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	entry, ok := timeline.At(idx)
	if !ok {
		t.Fatal("Entry should exist after replace")
	}
	if entry.SequenceIndex != idx {
		t.Errorf("Expected sequence index %d, got %d", idx, entry.SequenceIndex)
	}
	if entry.TextValue() != "Done" {
		t.Errorf("Expected replaced text, got %q", entry.TextValue())
	}
	if timeline.Len() != 2 {
		t.Errorf("Replace must not change length, got %d", timeline.Len())
	}
}

func TestReplaceOutOfRange(t *testing.T) {
	timeline := NewTimeline("session-1")

	err := timeline.Replace(3, NewBotReply("x", "", ""))
	if !errors.Is(err, domain.ErrEntryNotFound) {
		t.Errorf("Expected ErrEntryNotFound, got %v", err)
	}
}

func TestReplaceRejectsInvalidEntry(t *testing.T) {
	timeline := NewTimeline("session-1")
	timeline.Append(NewUserVoice("clip-a", "c1"))

	err := timeline.Replace(0, MessageEntry{Sender: SenderUser, Status: EntryConfirmed})
	if err == nil {
		t.Fatal("Expected an error for an entry without text or audio")
	}

	entry, _ := timeline.At(0)
	if entry.Audio.Key() != "clip-a" || entry.Status != EntryPending {
		t.Errorf("Rejected replace must keep the old entry, got %+v", entry)
	}
}

func TestResetAndHydrate(t *testing.T) {
	timeline := NewTimeline("session-1")
	timeline.Append(NewUserText("old", ""))

	timeline.Reset("session-2")
	if timeline.SessionID() != "session-2" || timeline.Len() != 0 {
		t.Fatalf("Reset should empty the timeline and switch session")
	}

	timeline.Hydrate("session-3", []MessageEntry{
		{Sender: SenderUser, Text: TextOf("a"), Status: EntryConfirmed, SequenceIndex: 7},
		{Sender: SenderBot, Text: TextOf("b"), Status: EntryConfirmed, SequenceIndex: 9},
	})

	if timeline.SessionID() != "session-3" {
		t.Errorf("Expected session-3, got %s", timeline.SessionID())
	}
	for i, entry := range timeline.Entries() {
		if entry.SequenceIndex != i {
			t.Errorf("Hydrated entry %d has sequence index %d", i, entry.SequenceIndex)
		}
	}
}

func TestBackwardScansPickMostRecent(t *testing.T) {
	timeline := NewTimeline("session-1")
	timeline.Append(NewUserVoice("clip-a", ""))
	timeline.Append(NewProcessingPlaceholder(""))
	timeline.Append(NewUserVoice("clip-b", ""))
	timeline.Append(NewProcessingPlaceholder(""))

	if got := timeline.LatestPendingVoice(); got != 2 {
		t.Errorf("Expected latest pending voice at 2, got %d", got)
	}
	if got := timeline.LatestPendingPlaceholder(); got != 3 {
		t.Errorf("Expected latest placeholder at 3, got %d", got)
	}

	failed := NewUserVoice("clip-b", "")
	failed.Status = EntryFailed
	_ = timeline.Replace(2, failed)

	if got := timeline.LatestPendingVoice(); got != 0 {
		t.Errorf("Failed entries must be skipped, got %d", got)
	}
}

func TestBackwardScansEmpty(t *testing.T) {
	timeline := NewTimeline("session-1")
	timeline.Append(NewUserText("typed", ""))

	if timeline.LatestPendingVoice() != -1 {
		t.Error("Expected no pending voice entry")
	}
	if timeline.LatestPendingPlaceholder() != -1 {
		t.Error("Expected no placeholder")
	}
}

func TestFindCorrelated(t *testing.T) {
	timeline := NewTimeline("session-1")
	timeline.Append(NewUserVoice("clip-a", "c1"))
	timeline.Append(NewProcessingPlaceholder("c1"))
	timeline.Append(NewUserVoice("clip-b", "c2"))
	timeline.Append(NewProcessingPlaceholder("c2"))

	tests := []struct {
		name   string
		sender Sender
		id     string
		want   int
	}{
		{"user c1", SenderUser, "c1", 0},
		{"bot c1", SenderBot, "c1", 1},
		{"user c2", SenderUser, "c2", 2},
		{"unknown", SenderBot, "c3", -1},
		{"empty", SenderUser, "", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := timeline.FindCorrelated(tt.sender, tt.id); got != tt.want {
				t.Errorf("FindCorrelated(%s, %q) = %d, want %d", tt.sender, tt.id, got, tt.want)
			}
		})
	}
}

func TestMessageEntryValidation(t *testing.T) {
	if err := NewUserText("Hello", "").Validate(); err != nil {
		t.Errorf("Valid text entry should not have validation errors, got: %v", err)
	}

	if err := NewUserVoice("clip", "").Validate(); err != nil {
		t.Errorf("Valid voice entry should not have validation errors, got: %v", err)
	}

	entry := MessageEntry{Sender: SenderUser, Status: EntryConfirmed}
	if err := entry.Validate(); err == nil {
		t.Error("Entry without text or audio should have validation error")
	}

	entry = NewUserText("Hello", "")
	entry.Sender = Sender("robot")
	if err := entry.Validate(); err == nil {
		t.Error("Entry with invalid sender should have validation error")
	}

	entry = NewUserText("Hello", "")
	entry.Status = EntryStatus("lost")
	if err := entry.Validate(); err == nil {
		t.Error("Entry with invalid status should have validation error")
	}
}

func TestClipStateDisplay(t *testing.T) {
	if got := (ClipState{ProgressRatio: math.NaN()}).Display(); got != 0 {
		t.Errorf("NaN ratio should display as 0, got %f", got)
	}
	if got := (ClipState{ProgressRatio: 0.25}).Display(); got != 0.25 {
		t.Errorf("Expected 0.25, got %f", got)
	}
}
