package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDifficultyForShareRate_IncreasesWithHashrate(t *testing.T) {
	rate := ShareRate(3 * time.Second)
	low := DifficultyForShareRate(rate, HashRate(1e12))
	high := DifficultyForShareRate(rate, HashRate(1e15))
	assert.True(t, high.Cmp(low) > 0, "higher hashrate should need higher difficulty to hold the same share rate")
}

func TestDifficultyForShareRate_FloorsAtOne(t *testing.T) {
	rate := ShareRate(3 * time.Second)
	d := DifficultyForShareRate(rate, HashRate(1))
	assert.Equal(t, 0, d.Cmp(From(1)))
}

func TestTargetForShareRate_DecreasesWithHashrate(t *testing.T) {
	rate := ShareRate(3 * time.Second)
	lowRateTarget := TargetForShareRate(rate, HashRate(1e12))
	highRateTarget := TargetForShareRate(rate, HashRate(1e15))
	assert.True(t, highRateTarget.Cmp(lowRateTarget) < 0, "higher hashrate should need a smaller (harder) target")
}

func TestTargetForShareRate_ZeroHashrateReturnsMaxTarget(t *testing.T) {
	got := TargetForShareRate(ShareRate(3*time.Second), HashRate(0))
	assert.Equal(t, MaxTarget, got)
}

func TestTargetAndDifficultyForShareRate_Consistent(t *testing.T) {
	rate := ShareRate(3 * time.Second)
	hashrate := HashRate(5e14)
	target := TargetForShareRate(rate, hashrate)
	difficulty := DifficultyForShareRate(rate, hashrate)

	fromTarget := FromTarget(target).AsFloat64()
	want := difficulty.AsFloat64()
	ratio := fromTarget / want
	assert.InDelta(t, 1.0, ratio, 0.01, "target and difficulty derivations should agree within rounding")
}
