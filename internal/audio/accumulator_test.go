package audio

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccumulator_MergePreservesOrderAndCount(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	acc := NewAccumulator()

	var want []float32
	for i := 0; i < 17; i++ {
		block := make([]float32, 1+rng.Intn(BlockSize))
		for j := range block {
			block[j] = rng.Float32()*2 - 1
		}
		want = append(want, block...)
		acc.Append(block)
	}

	require.Equal(t, len(want), acc.Len())
	assert.Equal(t, 17, acc.BlockCount())

	merged := acc.Merge()
	assert.Equal(t, want, merged)
	assert.Equal(t, 0, acc.Len(), "merge empties the accumulator")
}

func TestAccumulator_AppendCopiesBlock(t *testing.T) {
	acc := NewAccumulator()
	block := []float32{0.1, 0.2}
	acc.Append(block)
	block[0] = 0.9

	assert.Equal(t, []float32{0.1, 0.2}, acc.Merge())
}

func TestAccumulator_EmptyMerge(t *testing.T) {
	acc := NewAccumulator()
	acc.Append(nil)

	merged := acc.Merge()
	assert.NotNil(t, merged)
	assert.Empty(t, merged)
}

func TestAccumulator_Reset(t *testing.T) {
	acc := NewAccumulator()
	acc.Append(make([]float32, BlockSize))
	acc.Reset()

	assert.Equal(t, 0, acc.Len())
	assert.Equal(t, 0, acc.BlockCount())
}
