package job

import (
	"crypto/sha256"

	"github.com/mujina-miner/mujina/internal/types"
)

// Root assembles the coinbase transaction for extranonce2 and folds it
// through the merkle branches to produce the block's merkle root, natural
// (little-endian) byte order throughout.
func (c ComputedMerkleRoot) Root(extranonce2 types.Extranonce2) [32]byte {
	coinbase := make([]byte, 0, len(c.Coinbase1)+len(c.Extranonce1)+extranonce2.Size()+len(c.Coinbase2))
	coinbase = append(coinbase, c.Coinbase1...)
	coinbase = append(coinbase, c.Extranonce1...)
	coinbase = append(coinbase, extranonce2.Bytes()...)
	coinbase = append(coinbase, c.Coinbase2...)

	current := sha256d(coinbase)
	for _, branch := range c.MerkleBranches {
		// Coinbase occupies the leftmost leaf at every level.
		buf := make([]byte, 0, 64)
		buf = append(buf, current[:]...)
		buf = append(buf, branch[:]...)
		current = sha256d(buf)
	}
	return current
}

func sha256d(data []byte) [32]byte {
	first := sha256.Sum256(data)
	return sha256.Sum256(first[:])
}
