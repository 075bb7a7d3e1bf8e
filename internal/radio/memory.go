package radio

import (
	"context"
	"math/rand/v2"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"SwarmFormation/internal/model"
	"SwarmFormation/internal/parser"
)

// Hub is an in-memory radio medium for multi-node simulations within a single process.
type Hub struct {
	mu       sync.RWMutex
	nodes    map[model.NodeID]*Endpoint
	dropRate float64
	rng      *rand.Rand

	sent    atomic.Int64
	dropped atomic.Int64
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithDropRate loses each delivery with probability p, using a seeded generator.
func WithDropRate(p float64, seed uint64) HubOption {
	return func(h *Hub) {
		h.dropRate = p
		h.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// NewHub creates an empty medium.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{nodes: make(map[model.NodeID]*Endpoint)}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Join attaches a node with an inbox of the given capacity.
func (h *Hub) Join(id model.NodeID, buffer int) *Endpoint {
	e := &Endpoint{id: id, hub: h, inbox: make(chan []byte, buffer)}
	h.mu.Lock()
	h.nodes[id] = e
	h.mu.Unlock()
	return e
}

// Stats returns the number of delivered and dropped frames.
func (h *Hub) Stats() (sent, dropped int64) {
	return h.sent.Load(), h.dropped.Load()
}

func (h *Hub) lose() bool {
	if h.rng == nil || h.dropRate <= 0 {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rng.Float64() < h.dropRate
}

func (h *Hub) route(from model.NodeID, frame []byte) bool {
	target, ok := parser.Target(frame)
	if !ok {
		return false
	}
	h.mu.RLock()
	var dst []*Endpoint
	if target == model.BroadcastID {
		for id, e := range h.nodes {
			if id != from {
				dst = append(dst, e)
			}
		}
	} else if e, ok := h.nodes[target]; ok {
		dst = append(dst, e)
	}
	h.mu.RUnlock()
	// fixed order keeps seeded drops reproducible
	slices.SortFunc(dst, func(a, b *Endpoint) int { return int(a.id) - int(b.id) })
	if len(dst) == 0 {
		return false
	}

	delivered := false
	for _, e := range dst {
		if h.lose() {
			// lost in the air: the sender cannot tell
			h.dropped.Add(1)
			delivered = true
			continue
		}
		if e.deliver(frame) {
			h.sent.Add(1)
			delivered = true
		} else {
			h.dropped.Add(1)
		}
	}
	return delivered
}

// Endpoint is one node's view of a Hub. It implements Transport.
type Endpoint struct {
	id    model.NodeID
	hub   *Hub
	inbox chan []byte

	cbMu      sync.RWMutex
	callbacks []func([]byte)
}

// SelfID returns the node id the endpoint joined with.
func (e *Endpoint) SelfID() model.NodeID { return e.id }

// Send routes frame by its target byte.
func (e *Endpoint) Send(frame []byte) bool {
	return e.hub.route(e.id, frame)
}

// Receive waits for the next inbound frame.
func (e *Endpoint) Receive(ctx context.Context, timeout time.Duration) ([]byte, bool) {
	return receive(ctx, e.inbox, timeout)
}

// RegisterCallback adds an inbound frame observer.
func (e *Endpoint) RegisterCallback(fn func([]byte)) {
	e.cbMu.Lock()
	e.callbacks = append(e.callbacks, fn)
	e.cbMu.Unlock()
}

// Inject queues a raw frame as if it arrived over the air; tests use it for malformed input.
func (e *Endpoint) Inject(frame []byte) bool {
	return e.deliver(frame)
}

func (e *Endpoint) deliver(frame []byte) bool {
	f := append([]byte(nil), frame...)
	e.cbMu.RLock()
	for _, cb := range e.callbacks {
		cb(f)
	}
	e.cbMu.RUnlock()
	select {
	case e.inbox <- f:
		return true
	default:
		return false
	}
}
