// Package operator connects the leader to the ground operator: commands come in,
// JSON position reports go out.
package operator

import (
	"context"
	"sync"
	"time"

	"SwarmFormation/internal/model"
)

// Channel is the leader's link to the operator.
type Channel interface {
	// ReceiveCommand waits up to timeout for the next operator command.
	// A zero timeout polls; a negative timeout blocks until ctx is done.
	ReceiveCommand(ctx context.Context, timeout time.Duration) (model.Command, bool)
	// SendReport forwards one encoded report. It never blocks the caller.
	SendReport(report []byte)
}

// Queue is an in-memory Channel used by the simulation and by tests.
type Queue struct {
	cmds chan model.Command

	mu      sync.Mutex
	reports [][]byte
}

// NewQueue creates a queue holding up to buffer pending commands.
func NewQueue(buffer int) *Queue {
	return &Queue{cmds: make(chan model.Command, buffer)}
}

// Push enqueues a command; false if the queue is full.
func (q *Queue) Push(c model.Command) bool {
	select {
	case q.cmds <- c:
		return true
	default:
		return false
	}
}

func (q *Queue) ReceiveCommand(ctx context.Context, timeout time.Duration) (model.Command, bool) {
	return receiveCommand(ctx, q.cmds, timeout)
}

func (q *Queue) SendReport(report []byte) {
	q.mu.Lock()
	q.reports = append(q.reports, append([]byte(nil), report...))
	q.mu.Unlock()
}

// Reports drains the reports sent so far.
func (q *Queue) Reports() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.reports
	q.reports = nil
	return out
}

func receiveCommand(ctx context.Context, ch <-chan model.Command, timeout time.Duration) (model.Command, bool) {
	switch {
	case timeout == 0:
		select {
		case c := <-ch:
			return c, true
		default:
			return model.CmdNone, false
		}
	case timeout < 0:
		select {
		case c := <-ch:
			return c, true
		case <-ctx.Done():
			return model.CmdNone, false
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case c := <-ch:
		return c, true
	case <-timer.C:
		return model.CmdNone, false
	case <-ctx.Done():
		return model.CmdNone, false
	}
}
