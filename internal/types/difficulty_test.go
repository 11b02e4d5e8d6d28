package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDifficulty_RoundTripThroughTarget(t *testing.T) {
	for _, d := range []uint64{1, 2, 100, 1000, 1_000_000, 9223372036854775807} {
		orig := From(d)
		roundTripped := FromTarget(orig.ToTarget())
		assert.Equal(t, orig.ToTarget(), roundTripped.ToTarget(), "target round trip for difficulty %d", d)
	}
}

func TestDifficulty_CmpInvertsTargetOrdering(t *testing.T) {
	low := From(1)
	high := From(1000)
	assert.True(t, high.Cmp(low) > 0, "difficulty 1000 should be greater than difficulty 1")
	assert.True(t, high.ToTarget().Cmp(low.ToTarget()) < 0, "difficulty 1000's target should be smaller")
	assert.True(t, low.Less(high))
}

func TestDifficulty_String(t *testing.T) {
	assert.Equal(t, "113T", From(112_700_000_000_000).String())
	assert.Equal(t, "0.000048", FromFloat64(0.000048).String())
}

func TestDifficulty_FromFloat64Sub1(t *testing.T) {
	d := FromFloat64(0.5)
	assert.True(t, d.Cmp(From(1)) < 0, "difficulty 0.5 should be less than difficulty 1")
}

func TestDifficulty_AsUint64Saturating(t *testing.T) {
	d := From(1)
	assert.Equal(t, uint64(1), d.AsUint64Saturating())
}
