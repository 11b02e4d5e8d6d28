package job

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mujina-miner/mujina/internal/types"
)

func TestComputedMerkleRoot_NoBranchesEqualsCoinbaseHash(t *testing.T) {
	c := ComputedMerkleRoot{
		Coinbase1:   []byte{0x01, 0x02},
		Extranonce1: []byte{0xAA, 0xBB},
		Coinbase2:   []byte{0x03, 0x04},
	}
	en2, err := types.NewExtranonce2(0x1122, 4)
	assert.NoError(t, err)

	got := c.Root(en2)

	coinbase := append([]byte{0x01, 0x02}, 0xAA, 0xBB)
	coinbase = append(coinbase, en2.Bytes()...)
	coinbase = append(coinbase, 0x03, 0x04)
	first := sha256.Sum256(coinbase)
	want := sha256.Sum256(first[:])
	assert.Equal(t, want, got)
}

func TestComputedMerkleRoot_SingleBranchFoldsLeft(t *testing.T) {
	c := ComputedMerkleRoot{
		Coinbase1: []byte{0x01},
		Coinbase2: []byte{0x02},
	}
	en2, _ := types.NewExtranonce2(0, 4)
	var sibling [32]byte
	sibling[0] = 0x42
	c.MerkleBranches = [][32]byte{sibling}

	coinbase := append([]byte{0x01}, en2.Bytes()...)
	coinbase = append(coinbase, 0x02)
	coinbaseHash := sha256d(coinbase)

	buf := append(append([]byte{}, coinbaseHash[:]...), sibling[:]...)
	want := sha256d(buf)

	assert.Equal(t, want, c.Root(en2))
}
