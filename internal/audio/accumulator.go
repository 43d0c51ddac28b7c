package audio

const (
	// SampleRate is the capture and encoding rate used throughout the chat view
	SampleRate = 44100
	// BlockSize is the number of samples the capture device delivers per block
	BlockSize = 4096
)

// Accumulator collects capture blocks in arrival order until they are merged
// into one sample buffer. It is not safe for concurrent use.
type Accumulator struct {
	blocks [][]float32
	total  int
}

// NewAccumulator creates an empty accumulator
func NewAccumulator() *Accumulator {
	return &Accumulator{
		blocks: make([][]float32, 0, 64),
	}
}

// Append stores a copy of block after the previously appended ones
func (a *Accumulator) Append(block []float32) {
	if len(block) == 0 {
		return
	}
	owned := make([]float32, len(block))
	copy(owned, block)
	a.blocks = append(a.blocks, owned)
	a.total += len(owned)
}

// Len returns the number of samples accumulated so far
func (a *Accumulator) Len() int {
	return a.total
}

// BlockCount returns the number of blocks accumulated so far
func (a *Accumulator) BlockCount() int {
	return len(a.blocks)
}

// Merge concatenates every block in arrival order and empties the accumulator
func (a *Accumulator) Merge() []float32 {
	merged := make([]float32, 0, a.total)
	for _, block := range a.blocks {
		merged = append(merged, block...)
	}
	a.Reset()
	return merged
}

// Reset drops every accumulated block
func (a *Accumulator) Reset() {
	a.blocks = a.blocks[:0:0]
	a.total = 0
}
