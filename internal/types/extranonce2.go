package types

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// Extranonce2 is a fixed-size (1-8 byte) miner-rolled nonce suffix.
type Extranonce2 struct {
	value uint64
	size  int
}

// NewExtranonce2 builds an Extranonce2 of the given byte size (1-8).
func NewExtranonce2(value uint64, size int) (Extranonce2, error) {
	if size < 1 || size > 8 {
		return Extranonce2{}, fmt.Errorf("extranonce2: invalid size %d, must be 1-8", size)
	}
	if size < 8 && value > (uint64(1)<<(uint(size)*8))-1 {
		return Extranonce2{}, fmt.Errorf("extranonce2: value %d does not fit in %d bytes", value, size)
	}
	return Extranonce2{value: value, size: size}, nil
}

// Value returns the numeric value.
func (e Extranonce2) Value() uint64 { return e.value }

// Size returns the byte width.
func (e Extranonce2) Size() int { return e.size }

// Bytes renders the value as size little-endian bytes, the convention used
// to splice extranonce2 into the coinbase alongside extranonce1.
func (e Extranonce2) Bytes() []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], e.value)
	return append([]byte(nil), buf[:e.size]...)
}

// Hex renders the extranonce2 as a lowercase hex string, the form sent in
// mining.submit.
func (e Extranonce2) Hex() string {
	return hex.EncodeToString(e.Bytes())
}

// Extranonce2Range is a mutable [min,max] range over Extranonce2 values with
// a cursor, used to hand out non-overlapping slices of the search space to
// hash threads.
type Extranonce2Range struct {
	min, max, cursor uint64
	size             int
}

// NewExtranonce2Range builds a range [min,max] inclusive for the given byte
// size, with the cursor starting at min.
func NewExtranonce2Range(min, max uint64, size int) Extranonce2Range {
	if size < 1 {
		size = 1
	}
	if size > 8 {
		size = 8
	}
	ceiling := uint64(0xFFFFFFFFFFFFFFFF)
	if size < 8 {
		ceiling = (uint64(1) << (uint(size) * 8)) - 1
	}
	if max > ceiling {
		max = ceiling
	}
	if min > max {
		min = max
	}
	return Extranonce2Range{min: min, max: max, cursor: min, size: size}
}

// FullRange builds the full [0, 2^(size*8)-1] range for a given size,
// matching the "extranonce2_range (full range for assigned size)" contract
// used when translating mining.notify into a JobTemplate.
func FullRange(size int) Extranonce2Range {
	ceiling := uint64(0xFFFFFFFFFFFFFFFF)
	if size >= 1 && size < 8 {
		ceiling = (uint64(1) << (uint(size) * 8)) - 1
	}
	return NewExtranonce2Range(0, ceiling, size)
}

// Min, Max, Cursor, Size are read-only accessors.
func (r Extranonce2Range) Min() uint64    { return r.min }
func (r Extranonce2Range) Max() uint64    { return r.max }
func (r Extranonce2Range) Cursor() uint64 { return r.cursor }
func (r Extranonce2Range) Size() int      { return r.size }

// Exhausted reports whether the cursor has passed max.
func (r Extranonce2Range) Exhausted() bool {
	return r.cursor > r.max
}

// Next returns the extranonce2 at the cursor and advances it by one. The
// second return value is false once the range is exhausted.
func (r *Extranonce2Range) Next() (Extranonce2, bool) {
	if r.Exhausted() {
		return Extranonce2{}, false
	}
	v, err := NewExtranonce2(r.cursor, r.size)
	if err != nil {
		return Extranonce2{}, false
	}
	if r.cursor == r.max {
		r.cursor = r.max + 1
	} else {
		r.cursor++
	}
	return v, true
}

// Reset rewinds the cursor back to min.
func (r *Extranonce2Range) Reset() {
	r.cursor = r.min
}

// Split partitions the range into n non-overlapping sub-ranges covering the
// same union, sizes differing by at most 1, remainder distributed to the
// first few sub-ranges.
func (r Extranonce2Range) Split(n int) []Extranonce2Range {
	if n <= 0 {
		return nil
	}
	total := r.max - r.min + 1
	if uint64(n) > total {
		n = int(total)
	}
	base := total / uint64(n)
	remainder := total % uint64(n)

	out := make([]Extranonce2Range, 0, n)
	cur := r.min
	for i := 0; i < n; i++ {
		size := base
		if uint64(i) < remainder {
			size++
		}
		lo := cur
		hi := lo + size - 1
		out = append(out, NewExtranonce2Range(lo, hi, r.size))
		cur = hi + 1
	}
	return out
}
