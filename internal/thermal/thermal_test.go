package thermal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestController_StateProgression reproduces the reference temperature
// trace for the default config (target 74, max 85). The final sample (54,
// arriving while Cooling) stays Cooling rather than falling back to Normal:
// the formal hysteresis rule requires t <= NORMAL_THRESHOLD_C - H = 53 to
// re-enter Normal from Cooling, and 54 does not satisfy that — see
// DESIGN.md for this decision.
func TestController_StateProgression(t *testing.T) {
	c := NewController(DefaultConfig())
	now := time.Unix(0, 0)

	samples := []float64{40, 56, 60, 75, 86, 83, 72, 54}
	wantStates := []State{Normal, Cooling, Cooling, Throttling, Critical, Throttling, Cooling, Cooling}
	wantBumps := []FrequencyBump{BumpNone, BumpDown, BumpNone, BumpDown, BumpDown, BumpUp, BumpUp, BumpNone}

	for i, s := range samples {
		now = now.Add(c.cfg.Tick)
		res := c.Observe(s, now)
		assert.True(t, res.Accepted, "sample %d (%v) should be accepted", i, s)
		assert.Equal(t, wantStates[i], res.State, "state after sample %d (%v)", i, s)
		assert.Equal(t, wantBumps[i], res.Bump, "bump after sample %d (%v)", i, s)
	}
}

func TestController_NoHysteresisFlapping(t *testing.T) {
	c := NewController(DefaultConfig())
	now := time.Unix(0, 0)

	// Hover exactly at the Normal/Cooling boundary; must not oscillate.
	for i := 0; i < 6; i++ {
		now = now.Add(time.Second)
		c.Observe(55.5, now)
	}
	assert.Equal(t, Cooling, c.State())

	for i := 0; i < 6; i++ {
		now = now.Add(time.Second)
		c.Observe(54, now) // above 53 (55-2): must NOT drop back to Normal
	}
	assert.Equal(t, Cooling, c.State(), "must not re-enter Normal within the hysteresis band")
}

func TestController_IntegralFreezesOutsideActiveStates(t *testing.T) {
	c := NewController(DefaultConfig())
	now := time.Unix(0, 0)
	c.Observe(40, now) // Normal: integral frozen regardless of error
	assert.Equal(t, float64(0), c.integral)
}

func TestController_IntegralResetsOnReturnToNormal(t *testing.T) {
	c := NewController(DefaultConfig())
	now := time.Unix(0, 0)
	now = now.Add(time.Second)
	c.Observe(60, now) // Cooling, integral accumulates
	assert.NotEqual(t, float64(0), c.integral)

	now = now.Add(time.Second)
	c.Observe(40, now) // back to Normal
	assert.Equal(t, float64(0), c.integral)
}

func TestFilter_RejectsOutlierDeviation(t *testing.T) {
	f := newFilter(5, 10)
	_, ok := f.Observe(60)
	assert.True(t, ok, "first sample always accepted")
	_, ok = f.Observe(61)
	assert.True(t, ok)
	_, ok = f.Observe(200)
	assert.False(t, ok, "far outlier should be rejected")
}
