package stratum

import "strings"

// PoolConfig holds everything a Source needs to dial and authenticate
// against a pool.
type PoolConfig struct {
	URL       string
	Username  string
	Password  string
	UserAgent string

	// RequestVersionRolling is not read by the client: its handshake always
	// sends mining.configure requesting BIP-320 version rolling, whatever
	// this is set to. The pool's reply (an authorized mask, or none)
	// governs what the source actually uses.
	RequestVersionRolling bool
}

// DialAddr strips the stratum+tcp:// (or bare tcp://) scheme a pool URL is
// conventionally given with, since net.Dial wants a bare host:port.
func (c PoolConfig) DialAddr() string {
	for _, prefix := range []string{"stratum+tcp://", "stratum://", "tcp://"} {
		if rest, ok := strings.CutPrefix(c.URL, prefix); ok {
			return rest
		}
	}
	return c.URL
}

// name is the human-readable pool identity used in logs and as the job
// source's display name: the URL with its scheme prefix stripped.
func (c PoolConfig) name() string {
	return c.DialAddr()
}
