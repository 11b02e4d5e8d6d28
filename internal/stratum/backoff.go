package stratum

import (
	"math/rand"
	"time"
)

// backoff is a jittered exponential reconnect delay: doubles each call up
// to a cap, and scales the nominal delay by a [0.5, 1.0) factor so that
// many miners reconnecting to the same pool at once don't retry in lockstep.
type backoff struct {
	initial time.Duration
	max     time.Duration
	current time.Duration
	rand    *rand.Rand
}

func newBackoff(initial, max time.Duration) *backoff {
	return &backoff{
		initial: initial,
		max:     max,
		current: initial,
		rand:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// next returns the next delay to wait and advances the nominal delay
// towards max.
func (b *backoff) next() time.Duration {
	nominal := b.current
	b.current *= 2
	if b.current > b.max {
		b.current = b.max
	}
	jitter := 0.5 + b.rand.Float64()*0.5
	return time.Duration(float64(nominal) * jitter)
}

// reset restores the nominal delay to initial, called on successful
// subscribe.
func (b *backoff) reset() {
	b.current = b.initial
}
