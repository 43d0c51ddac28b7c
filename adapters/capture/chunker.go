package capture

import (
	"encoding/binary"
	"math"

	"go.uber.org/zap"
)

// Chunker regroups arbitrarily sized callback buffers into fixed size blocks
type Chunker struct {
	size    int
	pending []float32
}

// NewChunker returns a chunker emitting blocks of size samples
func NewChunker(size int) *Chunker {
	return &Chunker{size: size, pending: make([]float32, 0, size*2)}
}

// Push buffers samples and calls emit for every complete block. Blocks passed
// to emit are freshly allocated.
func (c *Chunker) Push(samples []float32, emit func([]float32)) {
	c.pending = append(c.pending, samples...)
	for len(c.pending) >= c.size {
		block := make([]float32, c.size)
		copy(block, c.pending[:c.size])
		emit(block)
		n := copy(c.pending, c.pending[c.size:])
		c.pending = c.pending[:n]
	}
}

// Pending is the number of buffered samples not yet emitted
func (c *Chunker) Pending() int {
	return len(c.pending)
}

// Deliver hands a block to the consumer without blocking the audio thread.
// It reports false when the consumer is too slow and the block was dropped.
func Deliver(ch chan<- []float32, block []float32, logger *zap.Logger) bool {
	select {
	case ch <- block:
		return true
	default:
		logger.Warn("Capture consumer is behind, dropping block", zap.Int("samples", len(block)))
		return false
	}
}

// bytesToFloat32 decodes little-endian float32 frames
func bytesToFloat32(data []byte) []float32 {
	samples := make([]float32, len(data)/4)
	for i := range samples {
		bits := binary.LittleEndian.Uint32(data[i*4 : i*4+4])
		samples[i] = math.Float32frombits(bits)
	}
	return samples
}
