package types

import (
	"math"
	"math/big"
	"time"
)

// HashRate is a strongly-typed hashes-per-second value.
type HashRate float64

// ShareRate is a strongly-typed desired interval between shares.
type ShareRate time.Duration

const two32 = 4294967296.0 // 2^32

// TargetForShareRate computes the share target that yields the requested
// share cadence for the given hashrate:
//
//	target ≈ MaxTarget / (hashrate · interval · 2⁻³²)
//
// saturating at MaxTarget and floored at a target of 1.
func TargetForShareRate(rate ShareRate, hashrate HashRate) U256 {
	if hashrate <= 0 {
		return MaxTarget
	}
	interval := time.Duration(rate).Seconds()
	factor := float64(hashrate) * interval / two32
	if factor <= 0 {
		return MaxTarget
	}

	maxF := new(big.Float).SetInt(u256ToBig(MaxTarget))
	scaled := new(big.Float).Quo(maxF, big.NewFloat(factor))

	i, _ := scaled.Int(nil)
	if i.Sign() <= 0 {
		return U256FromUint64(1)
	}
	t := bigToU256Saturating(i)
	if t.Cmp(MaxTarget) > 0 {
		return MaxTarget
	}
	if t.IsZero() {
		return U256FromUint64(1)
	}
	return t
}

// DifficultyForShareRate computes the Difficulty that yields approximately
// one share every `rate` at the given hashrate:
//
//	shares_per_second = hashrate / (2^32 · difficulty)
//
// with a floor of difficulty 1.
func DifficultyForShareRate(rate ShareRate, hashrate HashRate) Difficulty {
	if hashrate <= 0 {
		return From(1)
	}
	interval := time.Duration(rate).Seconds()
	if interval <= 0 {
		return From(1)
	}
	d := float64(hashrate) * interval / two32
	if d < 1 || math.IsNaN(d) || math.IsInf(d, 0) {
		return From(1)
	}
	return FromFloat64(d)
}
