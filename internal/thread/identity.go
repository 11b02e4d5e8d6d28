package thread

import "sync/atomic"

// identitySeq allocates monotonic identities for HashThread, substituting
// for cheap-clonable task-pointer equality: identity is stable for the
// thread's lifetime, unique among live threads, and hashable (a plain
// uint64 works directly as a map key).
var identitySeq atomic.Uint64

// Identity uniquely names one HashThread for its lifetime. Two Identity
// values are equal iff they name the same thread; recycled identities after
// full shutdown are acceptable since the scheduler removes entries on
// GoingOffline before a new thread could reuse a low value in practice (the
// counter never wraps in any realistic run).
type Identity uint64

func newIdentity() Identity {
	return Identity(identitySeq.Add(1))
}
