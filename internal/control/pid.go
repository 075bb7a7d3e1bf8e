// Package control implements the relative position controller that turns a
// received leader position into a smoothed local target for one follower.
package control

import (
	"errors"
	"math"
	"time"

	"SwarmFormation/internal/model"

	"gonum.org/v1/gonum/spatial/r2"
)

// ErrDivergence is reported when a computed target had to be clamped or discarded.
var ErrDivergence = errors.New("controller output outside sanity bound")

// Gains parameterize the controller. Defaults match the flown firmware.
type Gains struct {
	Kp, Ki, Kd float64
	// LegacyIntegral reproduces the firmware rule integral += integral*dt.
	// The conventional integral += error*dt is used otherwise.
	LegacyIntegral bool
	// IntegralLimit clamps |integral| per axis; zero disables the clamp.
	IntegralLimit float64
	// Bound clamps the produced target per axis, in metres; zero disables the clamp.
	Bound float64
}

// DefaultGains returns Kp=0.9, Ki=0.5, Kd=0.01.
func DefaultGains() Gains {
	return Gains{Kp: 0.9, Ki: 0.5, Kd: 0.01, IntegralLimit: 1.0, Bound: 10}
}

// GainsFromConfig maps the yaml section onto Gains.
func GainsFromConfig(c model.ControllerConfig) Gains {
	return Gains{
		Kp: c.Kp, Ki: c.Ki, Kd: c.Kd,
		LegacyIntegral: c.LegacyIntegral,
		IntegralLimit:  c.IntegralLimit,
		Bound:          c.Bound,
	}
}

// State is the PID accumulator. It is owned by one follower's control loop.
type State struct {
	Integral  r2.Vec
	PrevError r2.Vec
	PrevTime  time.Time
}

// Result describes one controller step.
type Result struct {
	Desired r2.Vec // leader + offset
	Error   r2.Vec
	Control r2.Vec
	Target  r2.Vec // new local target; equals the input when not Applied
	DT      float64
	Applied bool
	Clamped bool
}

// Controller tracks a fixed offset from the leader on the x/y plane.
type Controller struct {
	gains Gains
	state State
}

// New builds a controller with zeroed state.
func New(g Gains) *Controller {
	return &Controller{gains: g}
}

// Gains returns the controller gains.
func (c *Controller) Gains() Gains { return c.gains }

// State returns a copy of the accumulator.
func (c *Controller) State() State { return c.state }

// Reset zeroes the accumulator. now becomes the reference time of the next step.
func (c *Controller) Reset(now time.Time) {
	c.state = State{PrevTime: now}
}

// Step advances the controller to now. current is the local target produced by
// the previous step (or the position at formation entry).
func (c *Controller) Step(leader model.Position, offset model.Offset, current r2.Vec, now time.Time) Result {
	desired := r2.Add(r2.Vec{X: float64(leader.X), Y: float64(leader.Y)}, r2.Vec{X: offset.DX, Y: offset.DY})
	res := Result{
		Desired: desired,
		Error:   r2.Sub(desired, current),
		Target:  current,
	}
	if c.state.PrevTime.IsZero() {
		c.state.PrevTime = now
	}
	dt := now.Sub(c.state.PrevTime).Seconds()
	res.DT = dt
	if dt <= 0 {
		return res
	}

	g := c.gains
	integral := c.state.Integral
	if g.LegacyIntegral {
		integral = r2.Add(integral, r2.Scale(dt, integral))
	} else {
		integral = r2.Add(integral, r2.Scale(dt, res.Error))
	}
	if g.IntegralLimit > 0 {
		integral = clampVec(integral, g.IntegralLimit)
	}
	derivative := r2.Scale(1/dt, r2.Sub(res.Error, c.state.PrevError))

	res.Control = r2.Add(r2.Add(r2.Scale(g.Kp, res.Error), r2.Scale(g.Ki, integral)), r2.Scale(g.Kd, derivative))
	target := r2.Add(current, r2.Scale(dt, res.Control))

	if !finite(target) {
		// hold the previous target and drop the poisoned accumulator
		res.Clamped = true
		c.state = State{PrevTime: now}
		return res
	}
	if g.Bound > 0 {
		bounded := clampVec(target, g.Bound)
		res.Clamped = bounded != target
		target = bounded
	}

	res.Target = target
	res.Applied = true
	c.state.Integral = integral
	c.state.PrevError = res.Error
	c.state.PrevTime = now
	return res
}

func clampVec(v r2.Vec, limit float64) r2.Vec {
	return r2.Vec{X: clamp(v.X, limit), Y: clamp(v.Y, limit)}
}

func clamp(v, limit float64) float64 {
	return math.Max(-limit, math.Min(limit, v))
}

func finite(v r2.Vec) bool {
	return !math.IsNaN(v.X) && !math.IsNaN(v.Y) && !math.IsInf(v.X, 0) && !math.IsInf(v.Y, 0)
}
