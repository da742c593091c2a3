package swarm

// Bitfield tracks piece possession for a fixed number of pieces.
// Bits are packed MSB-first, matching the BitTorrent wire layout.
type Bitfield struct {
	bits []byte
	size int
	set  int
}

func NewBitfield(numPieces int) *Bitfield {
	return &Bitfield{
		bits: make([]byte, (numPieces+7)/8),
		size: numPieces,
	}
}

// FullBitfield returns a bitfield with every piece set.
func FullBitfield(numPieces int) *Bitfield {
	bf := NewBitfield(numPieces)
	for i := 0; i < numPieces; i++ {
		bf.Set(i)
	}
	return bf
}

func (bf *Bitfield) Size() int { return bf.size }

func (bf *Bitfield) Has(index int) bool {
	if index < 0 || index >= bf.size {
		return false
	}
	return bf.bits[index/8]&(1<<(7-uint(index%8))) != 0
}

// Set marks a piece as owned. Setting an already-set or out-of-range
// index is a no-op.
func (bf *Bitfield) Set(index int) {
	if index < 0 || index >= bf.size || bf.Has(index) {
		return
	}
	bf.bits[index/8] |= 1 << (7 - uint(index%8))
	bf.set++
}

// Count returns the number of owned pieces.
func (bf *Bitfield) Count() int { return bf.set }

func (bf *Bitfield) IsComplete() bool { return bf.set == bf.size }

// Missing returns the indices of pieces not yet owned, ascending.
// The slice is recomputed on every call.
func (bf *Bitfield) Missing() []int {
	missing := make([]int, 0, bf.size-bf.set)
	for i := 0; i < bf.size; i++ {
		if !bf.Has(i) {
			missing = append(missing, i)
		}
	}
	return missing
}

// Owned returns the indices of owned pieces, ascending.
func (bf *Bitfield) Owned() []int {
	owned := make([]int, 0, bf.set)
	for i := 0; i < bf.size; i++ {
		if bf.Has(i) {
			owned = append(owned, i)
		}
	}
	return owned
}

func (bf *Bitfield) Clone() *Bitfield {
	clone := &Bitfield{
		bits: make([]byte, len(bf.bits)),
		size: bf.size,
		set:  bf.set,
	}
	copy(clone.bits, bf.bits)
	return clone
}

func (bf *Bitfield) String() string {
	out := make([]byte, bf.size)
	for i := 0; i < bf.size; i++ {
		if bf.Has(i) {
			out[i] = '1'
		} else {
			out[i] = '0'
		}
	}
	return string(out)
}
