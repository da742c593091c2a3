package swarm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBitfieldSetAndHas(t *testing.T) {
	bf := NewBitfield(10)
	assert.Equal(t, 0, bf.Count())
	assert.False(t, bf.Has(3))

	bf.Set(3)
	assert.True(t, bf.Has(3))
	assert.Equal(t, 1, bf.Count())

	// Setting twice must not double-count.
	bf.Set(3)
	assert.Equal(t, 1, bf.Count())

	// Out of range is a no-op.
	bf.Set(-1)
	bf.Set(10)
	assert.Equal(t, 1, bf.Count())
	assert.False(t, bf.Has(-1))
	assert.False(t, bf.Has(10))
}

func TestBitfieldMissingAndOwned(t *testing.T) {
	bf := NewBitfield(5)
	bf.Set(1)
	bf.Set(4)

	assert.Equal(t, []int{0, 2, 3}, bf.Missing())
	assert.Equal(t, []int{1, 4}, bf.Owned())
	assert.False(t, bf.IsComplete())

	for _, idx := range bf.Missing() {
		bf.Set(idx)
	}
	assert.True(t, bf.IsComplete())
	assert.Empty(t, bf.Missing())
}

func TestFullBitfield(t *testing.T) {
	bf := FullBitfield(9)
	assert.True(t, bf.IsComplete())
	assert.Equal(t, 9, bf.Count())
	assert.Equal(t, "111111111", bf.String())
}

func TestBitfieldCloneIsIndependent(t *testing.T) {
	bf := NewBitfield(4)
	bf.Set(0)

	clone := bf.Clone()
	clone.Set(1)

	assert.True(t, clone.Has(0))
	assert.True(t, clone.Has(1))
	assert.False(t, bf.Has(1))
}
