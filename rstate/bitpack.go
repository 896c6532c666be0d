// Package rstate is the immutable, columnar read-side state (§4.C): a
// snapshot-or-delta-assembled array of per-type, per-field packed
// columns supporting ordinal lookup, equality scan, and iteration.
//
// Grounded on kvo/immutable.go's ImmutableObjectData: values are packed
// into []uint64 arrays sized to the narrowest bit width that covers the
// observed value range, with one reserved sentinel pattern for null —
// the same width-from-value-range sizing kvo/immutable.go performs,
// reimplemented by hand here (kvo's bit-packing helpers are private to
// that package) rather than reaching for a bitset library, since none of
// the retrieved examples carry one.
package rstate

import "math/bits"

// Bitset is a dense, growable set of non-negative ordinals, used for
// populated-ordinal tracking (§3) and for the query package's match
// results (§4.H).
type Bitset struct {
	words []uint64
}

func NewBitset() *Bitset { return &Bitset{} }

func (b *Bitset) ensure(word int) {
	for len(b.words) <= word {
		b.words = append(b.words, 0)
	}
}

// Set marks ordinal o as a member.
func (b *Bitset) Set(o int32) {
	w, bit := int(o)/64, uint(o)%64
	b.ensure(w)
	b.words[w] |= 1 << bit
}

// Clear removes ordinal o from the set.
func (b *Bitset) Clear(o int32) {
	w := int(o) / 64
	if w >= len(b.words) {
		return
	}
	b.words[w] &^= 1 << (uint(o) % 64)
}

// Test reports whether ordinal o is a member.
func (b *Bitset) Test(o int32) bool {
	w := int(o) / 64
	if w >= len(b.words) || w < 0 {
		return false
	}
	return b.words[w]&(1<<(uint(o)%64)) != 0
}

// Count returns the number of set bits.
func (b *Bitset) Count() int {
	n := 0
	for _, w := range b.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// Ordinals returns every member ordinal in ascending order.
func (b *Bitset) Ordinals() []int32 {
	out := make([]int32, 0, b.Count())
	for wi, w := range b.words {
		for w != 0 {
			bit := bits.TrailingZeros64(w)
			out = append(out, int32(wi*64+bit))
			w &^= 1 << uint(bit)
		}
	}
	return out
}

// And returns the intersection of a and b.
func And(a, b *Bitset) *Bitset {
	out := NewBitset()
	n := len(a.words)
	if len(b.words) < n {
		n = len(b.words)
	}
	out.words = make([]uint64, n)
	for i := 0; i < n; i++ {
		out.words[i] = a.words[i] & b.words[i]
	}
	return out
}

// AndNot returns a \ b (members of a not in b).
func AndNot(a, b *Bitset) *Bitset {
	out := NewBitset()
	out.words = make([]uint64, len(a.words))
	for i := range a.words {
		w := a.words[i]
		if i < len(b.words) {
			w &^= b.words[i]
		}
		out.words[i] = w
	}
	return out
}

// Or returns the union of a and b.
func Or(a, b *Bitset) *Bitset {
	n := len(a.words)
	if len(b.words) > n {
		n = len(b.words)
	}
	out := &Bitset{words: make([]uint64, n)}
	for i := range out.words {
		var av, bv uint64
		if i < len(a.words) {
			av = a.words[i]
		}
		if i < len(b.words) {
			bv = b.words[i]
		}
		out.words[i] = av | bv
	}
	return out
}

// getBits reads a width-bit (<=64) unsigned value at record index idx out
// of a packed array, matching kvo/immutable.go's bit-packed column
// layout: values are stored LSB-first, possibly straddling a uint64
// boundary.
func getBits(data []uint64, width uint, idx int) uint64 {
	if width == 0 {
		return 0
	}
	bitPos := uint64(idx) * uint64(width)
	wordIdx := bitPos / 64
	bitOff := bitPos % 64
	v := data[wordIdx] >> bitOff
	if bitOff+uint64(width) > 64 {
		v |= data[wordIdx+1] << (64 - bitOff)
	}
	if width < 64 {
		v &= (uint64(1) << width) - 1
	}
	return v
}

// setBits writes a width-bit value at record index idx.
func setBits(data []uint64, width uint, idx int, value uint64) {
	if width == 0 {
		return
	}
	var mask uint64
	if width < 64 {
		mask = (uint64(1) << width) - 1
	} else {
		mask = ^uint64(0)
	}
	value &= mask
	bitPos := uint64(idx) * uint64(width)
	wordIdx := bitPos / 64
	bitOff := bitPos % 64
	data[wordIdx] &^= mask << bitOff
	data[wordIdx] |= value << bitOff
	if bitOff+uint64(width) > 64 {
		shift := 64 - bitOff
		data[wordIdx+1] &^= mask >> shift
		data[wordIdx+1] |= value >> shift
	}
}

func wordsNeeded(count int, width uint) int {
	if width == 0 || count == 0 {
		return 0
	}
	totalBits := uint64(count) * uint64(width)
	return int((totalBits+63)/64) + 1 // +1 guards the cross-word read/write above
}

// widthFor returns the bit width needed to store maxPattern, plus one
// reserved sentinel value when hasNull is set, bumping the width again if
// the reservation would otherwise collide with maxPattern itself.
func widthFor(maxPattern uint64, hasNull bool) (width uint, sentinel uint64) {
	width = uint(bits.Len64(maxPattern))
	if !hasNull {
		return width, 0
	}
	if width == 0 {
		width = 1
	}
	sentinel = (uint64(1) << width) - 1
	if maxPattern == sentinel {
		width++
		sentinel = (uint64(1) << width) - 1
	}
	return width, sentinel
}
