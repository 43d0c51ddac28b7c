package entities

import (
	"fmt"

	"github.com/soultalk/voicechat/domain"
)

// Timeline is the ordered conversation of the active session. It is the single
// source of truth for what the chat view renders and is owned by one goroutine.
type Timeline struct {
	sessionID string
	entries   []MessageEntry
}

// NewTimeline creates an empty timeline for a session
func NewTimeline(sessionID string) *Timeline {
	return &Timeline{
		sessionID: sessionID,
		entries:   make([]MessageEntry, 0),
	}
}

// SessionID returns the session the timeline currently shows
func (t *Timeline) SessionID() string {
	return t.sessionID
}

// Len returns the number of entries
func (t *Timeline) Len() int {
	return len(t.entries)
}

// Entries returns a copy of the entries in display order
func (t *Timeline) Entries() []MessageEntry {
	out := make([]MessageEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// At returns the entry at index
func (t *Timeline) At(index int) (MessageEntry, bool) {
	if index < 0 || index >= len(t.entries) {
		return MessageEntry{}, false
	}
	return t.entries[index], true
}

// Append adds an entry at the end and returns its sequence index
func (t *Timeline) Append(entry MessageEntry) int {
	entry.SequenceIndex = len(t.entries)
	t.entries = append(t.entries, entry)
	return entry.SequenceIndex
}

// Replace swaps the entry at index for a new one. The sequence index is kept.
// Invalid entries are rejected and the old entry stays.
func (t *Timeline) Replace(index int, entry MessageEntry) error {
	if index < 0 || index >= len(t.entries) {
		return fmt.Errorf("replace index %d: %w", index, domain.ErrEntryNotFound)
	}
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("replace index %d: %w", index, err)
	}
	entry.SequenceIndex = index
	t.entries[index] = entry
	return nil
}

// Reset discards every entry and switches to another session
func (t *Timeline) Reset(sessionID string) {
	t.sessionID = sessionID
	t.entries = make([]MessageEntry, 0)
}

// Hydrate replaces the content with entries loaded for sessionID
func (t *Timeline) Hydrate(sessionID string, entries []MessageEntry) {
	t.Reset(sessionID)
	for _, entry := range entries {
		t.Append(entry)
	}
}

// FindCorrelated returns the index of the most recent entry from sender carrying
// correlationID, or -1.
func (t *Timeline) FindCorrelated(sender Sender, correlationID string) int {
	if correlationID == "" {
		return -1
	}
	for i := len(t.entries) - 1; i >= 0; i-- {
		if t.entries[i].Sender == sender && t.entries[i].CorrelationID == correlationID {
			return i
		}
	}
	return -1
}

// LatestPendingVoice scans backward for the most recent unreconciled user voice
// entry and returns its index, or -1.
func (t *Timeline) LatestPendingVoice() int {
	for i := len(t.entries) - 1; i >= 0; i-- {
		if t.entries[i].IsPendingVoice() {
			return i
		}
	}
	return -1
}

// LatestPendingPlaceholder scans backward for the most recent bot processing
// placeholder and returns its index, or -1.
func (t *Timeline) LatestPendingPlaceholder() int {
	for i := len(t.entries) - 1; i >= 0; i-- {
		if t.entries[i].IsPendingPlaceholder() {
			return i
		}
	}
	return -1
}
