package estimator

import (
	"math"
	"sync"
	"time"

	"SwarmFormation/internal/model"
)

// Kinematic is a simulated vehicle. It is both the estimator and the
// commander of a node: absolute axes relax toward the setpoint as a
// first-order lag with the given response rate (1/s), velocity axes
// integrate, disabled axes hold.
type Kinematic struct {
	mu       sync.Mutex
	pos      model.Position
	sp       model.Setpoint
	response float64
	now      func() time.Time
	last     time.Time
}

// NewKinematic creates a vehicle resting at start. now is the clock the
// vehicle integrates against; nil means wall time.
func NewKinematic(start model.Position, response float64, now func() time.Time) *Kinematic {
	if now == nil {
		now = time.Now
	}
	if response <= 0 {
		response = 4
	}
	return &Kinematic{pos: start, response: response, now: now, last: now()}
}

// CurrentPosition advances the vehicle to the clock's now and samples it.
func (k *Kinematic) CurrentPosition() model.Position {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.advance()
	return k.pos
}

// SetSetpoint advances the vehicle under the previous setpoint, then switches to sp.
func (k *Kinematic) SetSetpoint(sp model.Setpoint) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.advance()
	k.sp = sp
}

// Setpoint returns the last setpoint received.
func (k *Kinematic) Setpoint() model.Setpoint {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.sp
}

func (k *Kinematic) advance() {
	t := k.now()
	dt := t.Sub(k.last).Seconds()
	k.last = t
	if dt <= 0 {
		return
	}
	alpha := 1 - math.Exp(-k.response*dt)
	k.pos.X = axis(k.pos.X, k.sp.ModeX, k.sp.X, k.sp.VX, alpha, dt)
	k.pos.Y = axis(k.pos.Y, k.sp.ModeY, k.sp.Y, k.sp.VY, alpha, dt)
	k.pos.Z = axis(k.pos.Z, k.sp.ModeZ, k.sp.Z, 0, alpha, dt)
	k.pos.Yaw = axis(k.pos.Yaw, k.sp.ModeYaw, k.sp.Yaw, 0, alpha, dt)
}

func axis(cur float32, mode model.AxisMode, target, vel, alpha, dt float64) float32 {
	switch mode {
	case model.ModeAbs:
		c := float64(cur)
		return float32(c + (target-c)*alpha)
	case model.ModeVelocity:
		return float32(float64(cur) + vel*dt)
	}
	return cur
}
