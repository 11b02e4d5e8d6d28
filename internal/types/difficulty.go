package types

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
)

// MaxTarget is the target corresponding to Difficulty(1): 0xffff << 208,
// i.e. the compact representation 0x1d00ffff used throughout Bitcoin.
var MaxTarget = U256{0, 0, 0, 0xFFFF0000}

// Difficulty is a lossless, 256-bit-target-backed difficulty value.
// Ordering inverts target ordering: a smaller target is a greater
// difficulty, so Difficulty comparisons should go through Cmp, not target
// comparisons directly.
type Difficulty struct {
	target U256
}

// From builds a Difficulty from an integer difficulty value.
func From(d uint64) Difficulty {
	if d == 0 {
		d = 1
	}
	return Difficulty{target: MaxTarget.DivUint64(d)}
}

// FromTarget wraps a raw 256-bit target directly. Storage is the target
// itself, so FromTarget(d.ToTarget()) always reproduces d bit-for-bit.
func FromTarget(target U256) Difficulty {
	return Difficulty{target: target}
}

// FromHash interprets a double-SHA256 block hash (natural, little-endian
// byte order as produced by the hashing engines) as a target.
func FromHash(hash [32]byte) Difficulty {
	return Difficulty{target: U256FromBytesLE(hash[:])}
}

// FromFloat64 builds a Difficulty from a (possibly sub-1.0) floating point
// difficulty value, used for forced testing of easy targets.
func FromFloat64(d float64) Difficulty {
	if d <= 0 {
		d = 1
	}
	maxF := new(big.Float).SetInt(u256ToBig(MaxTarget))
	dF := big.NewFloat(d)
	targetF := new(big.Float).Quo(maxF, dF)
	targetInt, _ := targetF.Int(nil)
	return Difficulty{target: bigToU256Saturating(targetInt)}
}

// ToTarget returns the raw 256-bit target backing this difficulty.
func (d Difficulty) ToTarget() U256 {
	return d.target
}

// AsFloat64 renders the difficulty as floating point, MaxTarget/target.
func (d Difficulty) AsFloat64() float64 {
	if d.target.IsZero() {
		return math.MaxFloat64
	}
	maxF := new(big.Float).SetInt(u256ToBig(MaxTarget))
	tF := new(big.Float).SetInt(u256ToBig(d.target))
	out, _ := new(big.Float).Quo(maxF, tF).Float64()
	return out
}

// AsUint64Saturating rounds the difficulty to the nearest uint64, saturating
// at the uint64 range.
func (d Difficulty) AsUint64Saturating() uint64 {
	f := d.AsFloat64()
	if f >= float64(math.MaxUint64) {
		return math.MaxUint64
	}
	if f < 0 {
		return 0
	}
	return uint64(math.Round(f))
}

// Cmp orders difficulties (not targets): greater difficulty means smaller
// target, so the comparison is the reverse of the underlying target's.
func (d Difficulty) Cmp(other Difficulty) int {
	return -d.target.Cmp(other.target)
}

// Less reports whether d represents a smaller difficulty than other.
func (d Difficulty) Less(other Difficulty) bool {
	return d.Cmp(other) < 0
}

// String renders the difficulty with an SI-style suffix, e.g. "113T" or
// "0.000048" for sub-1.0 values.
func (d Difficulty) String() string {
	f := d.AsFloat64()
	return formatSI(f)
}

func formatSI(f float64) string {
	if f < 1000 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	suffixes := []struct {
		scale float64
		unit  string
	}{
		{1e18, "E"},
		{1e15, "P"},
		{1e12, "T"},
		{1e9, "G"},
		{1e6, "M"},
		{1e3, "K"},
	}
	for _, s := range suffixes {
		if f >= s.scale {
			v := f / s.scale
			return strconv.FormatFloat(v, 'g', 3, 64) + s.unit
		}
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func u256ToBig(u U256) *big.Int {
	b := u.BytesBE()
	return new(big.Int).SetBytes(b[:])
}

func bigToU256Saturating(i *big.Int) U256 {
	if i.Sign() <= 0 {
		return U256{}
	}
	maxBig := u256ToBig(MaxU256)
	if i.Cmp(maxBig) > 0 {
		return MaxU256
	}
	var buf [32]byte
	i.FillBytes(buf[:])
	return U256FromBytesBE(buf[:])
}

// GoString supports %#v / debug printing with the stored target visible.
func (d Difficulty) GoString() string {
	return fmt.Sprintf("Difficulty{target=%x}", d.target.BytesBE())
}
