// Package job holds the pool-independent mining job and share types that
// flow between job sources, the scheduler, and hash threads.
package job

import (
	"sync/atomic"

	"github.com/mujina-miner/mujina/internal/types"
)

// VersionTemplate is a block version with an optional BIP-320 rollable bit
// mask. An empty mask means the pool never authorised version rolling.
type VersionTemplate struct {
	Base uint32
	Mask uint32
}

// MerkleRootKind is either a precomputed root (used for locally constructed
// test jobs) or the coinbase pieces needed to compute one per extranonce2.
type MerkleRootKind struct {
	fixed    *[32]byte
	computed *ComputedMerkleRoot
}

// ComputedMerkleRoot holds everything needed to assemble a coinbase
// transaction and its merkle root for a given extranonce2.
type ComputedMerkleRoot struct {
	Coinbase1       []byte
	Extranonce1     []byte
	Extranonce2Range types.Extranonce2Range
	Coinbase2       []byte
	MerkleBranches  [][32]byte
}

// FixedMerkleRoot builds a MerkleRootKind carrying a precomputed root.
func FixedMerkleRoot(hash [32]byte) MerkleRootKind {
	h := hash
	return MerkleRootKind{fixed: &h}
}

// ComputedMerkleRootKind builds a MerkleRootKind requiring per-extranonce2
// computation.
func ComputedMerkleRootKind(c ComputedMerkleRoot) MerkleRootKind {
	return MerkleRootKind{computed: &c}
}

// Fixed reports whether this is a precomputed root, returning it if so.
func (k MerkleRootKind) Fixed() ([32]byte, bool) {
	if k.fixed == nil {
		return [32]byte{}, false
	}
	return *k.fixed, true
}

// Computed reports whether this requires per-extranonce2 computation,
// returning the pieces if so.
func (k MerkleRootKind) Computed() (ComputedMerkleRoot, bool) {
	if k.computed == nil {
		return ComputedMerkleRoot{}, false
	}
	return *k.computed, true
}

// JobTemplate is a pool-independent mining job: everything a hash thread
// needs to generate work packets, and everything the scheduler needs to
// split an extranonce2 range across threads.
type JobTemplate struct {
	JobID         string
	PrevBlockHash [32]byte
	Version       VersionTemplate
	NBits         uint32
	NTime         uint32
	Target        types.Difficulty
	MerkleRoot    MerkleRootKind
}

// ExtranonceRange returns the template's extranonce2 range if it carries a
// computed merkle root, and ok=false otherwise (e.g. fixed-root test jobs
// have no extranonce2 to split).
func (j JobTemplate) ExtranonceRange() (types.Extranonce2Range, bool) {
	c, ok := j.MerkleRoot.Computed()
	if !ok {
		return types.Extranonce2Range{}, false
	}
	return c.Extranonce2Range, true
}

// Share is a validated finding pre-filtered against the share target: a
// candidate nonce/ntime/version combination ready to submit upstream.
type Share struct {
	JobID       string
	Nonce       uint32
	NTime       uint32
	Version     uint32
	Extranonce2 *types.Extranonce2 // nil for fixed-root jobs
}

// sourceSeq allocates monotonically increasing identities for SourceHandle,
// substituting for pointer-identity task handles per the registration note
// on actor identity (see internal/thread): two independently constructed
// handles for the same pool still compare unequal.
var sourceSeq atomic.Uint64

// CommandSender is the narrow interface a SourceHandle uses to deliver
// commands (most importantly SubmitShare) back into the owning source
// actor's command channel.
type CommandSender interface {
	Submit(cmd SourceCommand) error
}

// SourceCommand is a command delivered to a job-source actor.
type SourceCommand struct {
	SubmitShare *Share
	// UpdateHashRate carries the scheduler's current aggregate hashrate
	// estimate. A Stratum source gates its initial connection on the first
	// non-zero value and re-suggests share difficulty on later ones.
	UpdateHashRate *types.HashRate
}

// SourceHandle is a cheap-clonable handle to a running job-source actor. Its
// identity is the id assigned at construction, not the pool name, so two
// handles built for the same pool compare unequal.
type SourceHandle struct {
	id     uint64
	name   string
	sender CommandSender
}

// NewSourceHandle allocates a fresh, uniquely identified handle wrapping the
// given command sender.
func NewSourceHandle(name string, sender CommandSender) SourceHandle {
	return SourceHandle{id: sourceSeq.Add(1), name: name, sender: sender}
}

// ID returns the handle's unique identity.
func (h SourceHandle) ID() uint64 { return h.id }

// Name returns the human-readable pool name.
func (h SourceHandle) Name() string { return h.name }

// SubmitShare delivers a found share back to the owning source.
func (h SourceHandle) SubmitShare(share Share) error {
	return h.sender.Submit(SourceCommand{SubmitShare: &share})
}

// Equal reports whether two handles refer to the same underlying source
// actor (identity equality, not name equality).
func (h SourceHandle) Equal(other SourceHandle) bool {
	return h.id == other.id
}
