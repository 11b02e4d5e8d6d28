package job

import (
	"testing"

	"github.com/mujina-miner/mujina/internal/types"
	"github.com/stretchr/testify/assert"
)

type recordingSender struct {
	submitted []SourceCommand
}

func (s *recordingSender) Submit(cmd SourceCommand) error {
	s.submitted = append(s.submitted, cmd)
	return nil
}

func TestSourceHandle_IdentityIsPerConstruction(t *testing.T) {
	a := NewSourceHandle("pool.example", &recordingSender{})
	b := NewSourceHandle("pool.example", &recordingSender{})
	assert.False(t, a.Equal(b), "two independently constructed handles for the same pool must not compare equal")
	assert.True(t, a.Equal(a))
}

func TestSourceHandle_SubmitShareDeliversToSender(t *testing.T) {
	sender := &recordingSender{}
	h := NewSourceHandle("pool.example", sender)

	share := Share{JobID: "abc", Nonce: 42, NTime: 100, Version: 0x20000000}
	assert.NoError(t, h.SubmitShare(share))

	assert.Len(t, sender.submitted, 1)
	assert.Equal(t, &share, sender.submitted[0].SubmitShare)
}

func TestMerkleRootKind_FixedVsComputed(t *testing.T) {
	hash := [32]byte{1, 2, 3}
	fixed := FixedMerkleRoot(hash)
	got, ok := fixed.Fixed()
	assert.True(t, ok)
	assert.Equal(t, hash, got)
	_, ok = fixed.Computed()
	assert.False(t, ok)

	computed := ComputedMerkleRootKind(ComputedMerkleRoot{
		Coinbase1:        []byte{0x01},
		Extranonce1:      []byte{0x02},
		Extranonce2Range: types.FullRange(4),
		Coinbase2:        []byte{0x03},
	})
	_, ok = computed.Fixed()
	assert.False(t, ok)
	c, ok := computed.Computed()
	assert.True(t, ok)
	assert.Equal(t, uint64(0xFFFFFFFF), c.Extranonce2Range.Max())
}

func TestJobTemplate_ExtranonceRange(t *testing.T) {
	fixedJob := JobTemplate{MerkleRoot: FixedMerkleRoot([32]byte{})}
	_, ok := fixedJob.ExtranonceRange()
	assert.False(t, ok)

	computedJob := JobTemplate{MerkleRoot: ComputedMerkleRootKind(ComputedMerkleRoot{
		Extranonce2Range: types.FullRange(4),
	})}
	r, ok := computedJob.ExtranonceRange()
	assert.True(t, ok)
	assert.Equal(t, uint64(0), r.Min())
}

func TestHashTask_SourceID(t *testing.T) {
	h := NewSourceHandle("pool.example", &recordingSender{})
	task := HashTask{Source: h}
	assert.Equal(t, h.ID(), task.SourceID())
}
