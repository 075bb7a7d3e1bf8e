package core

import (
	"context"
	"sync"
	"time"

	"SwarmFormation/internal/util"
)

// Runner drives one Role on a fixed period and hands every setpoint to the
// stabilizer. The role and its controller are only touched by the loop.
type Runner struct {
	Role      Role
	Commander Commander
	Interval  time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
	ticks  int
}

// NewRunner constructs a Runner for role.
func NewRunner(role Role, cmd Commander, interval time.Duration) *Runner {
	return &Runner{Role: role, Commander: cmd, Interval: interval}
}

// Start begins the control loop in the background.
func (r *Runner) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.loop(ctx)
	}()
}

func (r *Runner) loop(ctx context.Context) {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()
	last := r.Role.State()
	util.Info("[runner %s] control loop every %s", r.Role.ID(), r.Interval)
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			sp := r.Role.Tick(ctx, now)
			if ctx.Err() != nil {
				return
			}
			r.Commander.SetSetpoint(sp)
			r.ticks++
			if st := r.Role.State(); st != last {
				util.Info("[runner %s] %s -> %s", r.Role.ID(), last, st)
				last = st
			}
		}
	}
}

// Stop cancels the loop and waits for the current tick to finish.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

// Ticks returns how many ticks ran. Call it after Stop.
func (r *Runner) Ticks() int { return r.ticks }
