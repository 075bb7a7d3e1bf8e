// Package radio provides the peer-to-peer packet transports the swarm runs on.
// Delivery is best-effort and at-most-once; frames may arrive out of order.
package radio

import (
	"context"
	"time"

	"SwarmFormation/internal/model"
)

// WaitForever makes Receive block until a frame arrives or the context ends.
// Only the Idle boot rendezvous is allowed to use it.
const WaitForever time.Duration = -1

// Transport moves encoded frames between nodes.
type Transport interface {
	// SelfID is the node id assigned at boot.
	SelfID() model.NodeID
	// Send queues a frame for delivery. false means the frame was not accepted.
	Send(frame []byte) bool
	// Receive waits up to timeout for the next frame addressed to this node.
	// A zero timeout polls; WaitForever blocks until ctx is done.
	Receive(ctx context.Context, timeout time.Duration) ([]byte, bool)
	// RegisterCallback observes every inbound frame before it is queued.
	RegisterCallback(fn func(frame []byte))
}

// receive implements the timeout semantics shared by the transports.
func receive(ctx context.Context, inbox <-chan []byte, timeout time.Duration) ([]byte, bool) {
	switch {
	case timeout == 0:
		select {
		case f := <-inbox:
			return f, true
		default:
			return nil, false
		}
	case timeout < 0:
		select {
		case f := <-inbox:
			return f, true
		case <-ctx.Done():
			return nil, false
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case f := <-inbox:
		return f, true
	case <-timer.C:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}
