// Package thermal implements the per-board temperature controller: a
// sliding-window filter, a 4-state hysteresis machine, a PI fan-duty loop,
// and cooldown-gated frequency bump emission.
package thermal

import (
	"time"
)

// State is one of the four thermal envelope states.
type State int

const (
	Normal State = iota
	Cooling
	Throttling
	Critical
)

func (s State) String() string {
	switch s {
	case Normal:
		return "normal"
	case Cooling:
		return "cooling"
	case Throttling:
		return "throttling"
	case Critical:
		return "critical"
	default:
		return "unknown"
	}
}

func (s State) severity() int { return int(s) }

// FrequencyBump is the direction of a frequency adjustment command.
type FrequencyBump int

const (
	BumpNone FrequencyBump = iota
	BumpDown
	BumpUp
)

// Config holds the controller's tunables. Thresholds must satisfy
// NormalThresholdC + HysteresisC < TargetTemperatureC < MaxTemperatureC.
type Config struct {
	NormalThresholdC    float64
	HysteresisC         float64
	TargetTemperatureC  float64
	MaxTemperatureC     float64

	MaxDeviationC               float64 // filter: reject samples deviating more than this from the window mean
	WindowSize                  int
	Tick                        time.Duration
	FrequencyOverTargetMarginC  float64
	FrequencyAdjustmentInterval time.Duration

	KP, KI          float64
	IntegralMin     float64
	IntegralMax     float64
}

// DefaultConfig matches the reference thresholds (target 74, max 85).
func DefaultConfig() Config {
	return Config{
		NormalThresholdC:            55,
		HysteresisC:                 2.0,
		TargetTemperatureC:          74,
		MaxTemperatureC:             85,
		MaxDeviationC:               30,
		WindowSize:                  5,
		Tick:                        5 * time.Second,
		FrequencyOverTargetMarginC:  5,
		FrequencyAdjustmentInterval: 20 * time.Second,
		KP:                          2.0,
		KI:                          0.1,
		IntegralMin:                 -50,
		IntegralMax:                 50,
	}
}

var baseSpeed = map[State]float64{
	Normal:     30,
	Cooling:    50,
	Throttling: 80,
	Critical:   100,
}

// Controller drives one board's thermal envelope from a stream of filtered
// temperature samples.
type Controller struct {
	cfg   Config
	state State

	filter *filter

	integral     float64
	haveSample   bool
	lastBumpAt   time.Time
	haveLastBump bool
}

// NewController builds a Controller starting in Normal.
func NewController(cfg Config) *Controller {
	return &Controller{
		cfg:    cfg,
		state:  Normal,
		filter: newFilter(cfg.WindowSize, cfg.MaxDeviationC),
	}
}

// State returns the controller's current state.
func (c *Controller) State() State { return c.state }

// Config returns the controller's tunables, read-only.
func (c *Controller) Config() Config { return c.cfg }

// Result is the output of one Observe call.
type Result struct {
	Accepted   bool // false if the filter rejected this raw sample
	State      State
	PriorState State
	FanDutyPct int
	Bump       FrequencyBump
}

// Observe feeds one raw temperature sample at the given time, returning the
// resulting fan duty and any frequency bump to emit. Rejected samples
// (out-of-window-bounds, see filter) do not advance the state machine.
func (c *Controller) Observe(raw float64, now time.Time) Result {
	t, ok := c.filter.Observe(raw)
	if !ok {
		return Result{Accepted: false, State: c.state, PriorState: c.state}
	}

	prior := c.state
	c.state = c.transition(t)

	if prior != c.state && c.state == Normal {
		c.integral = 0
	}

	duty := c.fanDuty(t, prior, now)

	bump := BumpNone
	if prior != c.state {
		if c.state.severity() > prior.severity() {
			bump = BumpDown
		} else {
			bump = BumpUp
		}
		c.lastBumpAt = now
		c.haveLastBump = true
	} else if (c.state == Throttling || c.state == Critical) &&
		t >= c.cfg.TargetTemperatureC+c.cfg.FrequencyOverTargetMarginC &&
		(!c.haveLastBump || now.Sub(c.lastBumpAt) >= c.cfg.FrequencyAdjustmentInterval) {
		bump = BumpDown
		c.lastBumpAt = now
		c.haveLastBump = true
	}

	c.haveSample = true
	return Result{Accepted: true, State: c.state, PriorState: prior, FanDutyPct: duty, Bump: bump}
}

func (c *Controller) transition(t float64) State {
	h := c.cfg.HysteresisC
	switch c.state {
	case Normal:
		if t > c.cfg.NormalThresholdC {
			return Cooling
		}
	case Cooling:
		if t > c.cfg.TargetTemperatureC {
			return Throttling
		}
		if t <= c.cfg.NormalThresholdC-h {
			return Normal
		}
	case Throttling:
		if t > c.cfg.MaxTemperatureC {
			return Critical
		}
		if t <= c.cfg.TargetTemperatureC-h {
			return Cooling
		}
	case Critical:
		if t <= c.cfg.MaxTemperatureC-h {
			return Throttling
		}
	}
	return c.state
}

func (c *Controller) fanDuty(t float64, priorState State, now time.Time) int {
	_ = now
	error := t - c.cfg.TargetTemperatureC

	frozen := c.state == Normal || c.state == Critical
	if !frozen {
		c.integral += error
		if c.integral > c.cfg.IntegralMax {
			c.integral = c.cfg.IntegralMax
		}
		if c.integral < c.cfg.IntegralMin {
			c.integral = c.cfg.IntegralMin
		}
	}

	duty := baseSpeed[c.state] + c.cfg.KP*error + c.cfg.KI*c.integral
	if duty < 0 {
		duty = 0
	}
	if duty > 100 {
		duty = 100
	}
	return int(duty + 0.5)
}
