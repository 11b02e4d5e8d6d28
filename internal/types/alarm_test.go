package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDebouncedAlarm_FullCycle(t *testing.T) {
	a := NewDebouncedAlarm(10 * time.Second)
	t0 := time.Unix(0, 0)

	assert.Equal(t, AlarmIdle, a.Observe(false, t0))
	assert.Equal(t, AlarmPending, a.Observe(true, t0))
	// Still within the debounce window.
	assert.Equal(t, AlarmPending, a.Observe(true, t0.Add(5*time.Second)))
	// Debounce window elapsed: fires exactly once.
	assert.Equal(t, AlarmTriggered, a.Observe(true, t0.Add(11*time.Second)))
	assert.Equal(t, AlarmActive, a.Observe(true, t0.Add(12*time.Second)))
	assert.Equal(t, AlarmResolved, a.Observe(false, t0.Add(13*time.Second)))
	assert.Equal(t, AlarmIdle, a.Observe(false, t0.Add(14*time.Second)))
}

func TestDebouncedAlarm_BlipBeforeDebounceResetsToIdle(t *testing.T) {
	a := NewDebouncedAlarm(10 * time.Second)
	t0 := time.Unix(0, 0)

	assert.Equal(t, AlarmPending, a.Observe(true, t0))
	assert.Equal(t, AlarmIdle, a.Observe(false, t0.Add(2*time.Second)))
	assert.Equal(t, AlarmIdle, a.State())
}

func TestDebouncedAlarm_TriggeredAndResolvedAtMostOncePerCycle(t *testing.T) {
	a := NewDebouncedAlarm(time.Second)
	t0 := time.Unix(0, 0)

	a.Observe(true, t0)
	triggeredCount := 0
	resolvedCount := 0
	states := []AlarmState{
		a.Observe(true, t0.Add(2*time.Second)),
		a.Observe(true, t0.Add(3*time.Second)),
		a.Observe(true, t0.Add(4*time.Second)),
		a.Observe(false, t0.Add(5*time.Second)),
		a.Observe(false, t0.Add(6*time.Second)),
	}
	for _, s := range states {
		if s == AlarmTriggered {
			triggeredCount++
		}
		if s == AlarmResolved {
			resolvedCount++
		}
	}
	assert.Equal(t, 1, triggeredCount)
	assert.Equal(t, 1, resolvedCount)
}
