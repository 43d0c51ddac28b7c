package entities

import "math"

// RecordingState is the lifecycle of one capture session
type RecordingState string

const (
	RecordingIdle      RecordingState = "idle"
	RecordingCapturing RecordingState = "capturing"
	RecordingFlushing  RecordingState = "flushing"
)

// SpeechState is the lifecycle of synthesized reply playback
type SpeechState string

const (
	SpeechIdle     SpeechState = "idle"
	SpeechSpeaking SpeechState = "speaking"
	SpeechPaused   SpeechState = "paused"
)

// ClipState is the playback position of one voice clip. ProgressRatio is NaN
// while the clip duration is unknown.
type ClipState struct {
	IsPlaying     bool    `json:"is_playing"`
	ProgressRatio float64 `json:"progress_ratio"`
}

// Display returns the ratio a progress bar should draw
func (c ClipState) Display() float64 {
	if math.IsNaN(c.ProgressRatio) || math.IsInf(c.ProgressRatio, 0) {
		return 0
	}
	return c.ProgressRatio
}
