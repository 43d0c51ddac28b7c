package audio

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ContainerInfo describes a decoded WAV container
type ContainerInfo struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Samples    int
	Duration   time.Duration
}

// InspectWAV reads the format and length of a container
func InspectWAV(container []byte) (ContainerInfo, error) {
	buf, err := decode(container)
	if err != nil {
		return ContainerInfo{}, err
	}

	info := ContainerInfo{
		SampleRate: buf.Format.SampleRate,
		Channels:   buf.Format.NumChannels,
		BitDepth:   buf.SourceBitDepth,
		Samples:    len(buf.Data),
	}
	if info.SampleRate > 0 && info.Channels > 0 {
		frames := buf.NumFrames()
		info.Duration = time.Duration(frames) * time.Second / time.Duration(info.SampleRate)
	}
	return info, nil
}

// DecodeWAV returns the 16-bit samples and sample rate of a mono container
func DecodeWAV(container []byte) ([]int16, int, error) {
	buf, err := decode(container)
	if err != nil {
		return nil, 0, err
	}
	if buf.SourceBitDepth != 16 {
		return nil, 0, fmt.Errorf("unsupported bit depth %d", buf.SourceBitDepth)
	}
	if buf.Format.NumChannels != 1 {
		return nil, 0, fmt.Errorf("unsupported channel count %d", buf.Format.NumChannels)
	}

	out := make([]int16, len(buf.Data))
	for i, s := range buf.Data {
		out[i] = int16(s)
	}
	return out, buf.Format.SampleRate, nil
}

func decode(container []byte) (*audio.IntBuffer, error) {
	if len(container) < HeaderSize {
		return nil, fmt.Errorf("WAV data too short: need at least %d bytes, got %d", HeaderSize, len(container))
	}

	dec := wav.NewDecoder(bytes.NewReader(container))
	if !dec.IsValidFile() {
		return nil, errors.New("invalid WAV container")
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode PCM data: %w", err)
	}
	if buf.Format == nil {
		return nil, errors.New("WAV container has no format chunk")
	}
	return buf, nil
}
