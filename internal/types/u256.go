// Package types holds the lossless numeric cores shared by the codec,
// scheduler, and Stratum translation layers: U256, Difficulty, HashRate,
// ShareRate, Extranonce2, and the DebouncedAlarm helper.
package types

import (
	"encoding/binary"
	"math/bits"
)

// U256 is a 256-bit unsigned integer stored as four little-endian uint64
// limbs (limb 0 is least significant). It backs Difficulty and target math.
type U256 [4]uint64

// MaxU256 is the all-ones 256-bit value.
var MaxU256 = U256{^uint64(0), ^uint64(0), ^uint64(0), ^uint64(0)}

// U256FromUint64 widens a uint64 into a U256.
func U256FromUint64(v uint64) U256 {
	return U256{v, 0, 0, 0}
}

// U256FromBytesLE parses a 32-byte little-endian value.
func U256FromBytesLE(b []byte) U256 {
	var u U256
	for i := 0; i < 4; i++ {
		u[i] = binary.LittleEndian.Uint64(b[i*8 : i*8+8])
	}
	return u
}

// U256FromBytesBE parses a 32-byte big-endian value.
func U256FromBytesBE(b []byte) U256 {
	var rev [32]byte
	for i := 0; i < 32; i++ {
		rev[i] = b[31-i]
	}
	return U256FromBytesLE(rev[:])
}

// BytesLE renders u as 32 little-endian bytes.
func (u U256) BytesLE() [32]byte {
	var out [32]byte
	for i := 0; i < 4; i++ {
		binary.LittleEndian.PutUint64(out[i*8:i*8+8], u[i])
	}
	return out
}

// BytesBE renders u as 32 big-endian bytes.
func (u U256) BytesBE() [32]byte {
	le := u.BytesLE()
	var out [32]byte
	for i := 0; i < 32; i++ {
		out[i] = le[31-i]
	}
	return out
}

// IsZero reports whether u is the zero value.
func (u U256) IsZero() bool {
	return u[0] == 0 && u[1] == 0 && u[2] == 0 && u[3] == 0
}

// Cmp returns -1, 0, or 1 as u is less than, equal to, or greater than v.
func (u U256) Cmp(v U256) int {
	for i := 3; i >= 0; i-- {
		if u[i] < v[i] {
			return -1
		}
		if u[i] > v[i] {
			return 1
		}
	}
	return 0
}

// Add returns u+v, saturating at MaxU256 on overflow.
func (u U256) Add(v U256) U256 {
	var out U256
	var carry uint64
	for i := 0; i < 4; i++ {
		sum, c := bits.Add64(u[i], v[i], carry)
		out[i] = sum
		carry = c
	}
	if carry != 0 {
		return MaxU256
	}
	return out
}

// Sub returns u-v, floored at zero on underflow.
func (u U256) Sub(v U256) U256 {
	var out U256
	var borrow uint64
	for i := 0; i < 4; i++ {
		diff, b := bits.Sub64(u[i], v[i], borrow)
		out[i] = diff
		borrow = b
	}
	if borrow != 0 {
		return U256{}
	}
	return out
}

// MulUint64 returns u*v, saturating at MaxU256 on overflow.
func (u U256) MulUint64(v uint64) U256 {
	if v == 0 || u.IsZero() {
		return U256{}
	}
	var out U256
	var carry uint64
	for i := 0; i < 4; i++ {
		hi, lo := bits.Mul64(u[i], v)
		lo2, c := bits.Add64(lo, carry, 0)
		out[i] = lo2
		carry = hi + c
	}
	if carry != 0 {
		return MaxU256
	}
	return out
}

// DivUint64 returns u/v. Division by zero returns MaxU256.
func (u U256) DivUint64(v uint64) U256 {
	if v == 0 {
		return MaxU256
	}
	var out U256
	var rem uint64
	for i := 3; i >= 0; i-- {
		out[i], rem = bits.Div64(rem, u[i], v)
	}
	return out
}

// AsFloat64 converts u to a float64, losing precision above 2^53.
func (u U256) AsFloat64() float64 {
	f := 0.0
	for i := 3; i >= 0; i-- {
		f = f*18446744073709551616.0 + float64(u[i])
	}
	return f
}

// AsUint64Saturating returns u clamped to the uint64 range.
func (u U256) AsUint64Saturating() uint64 {
	if u[1] != 0 || u[2] != 0 || u[3] != 0 {
		return ^uint64(0)
	}
	return u[0]
}
