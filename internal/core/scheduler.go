package core

import (
	"fmt"

	"SwarmFormation/internal/model"
)

// Phase is the scheduler's position within one exchange round.
type Phase int

const (
	PhaseBroadcastFormation Phase = iota
	PhasePollFollower
	PhaseAwaitReport
	PhaseRelayToFollower
)

func (p Phase) String() string {
	switch p {
	case PhaseBroadcastFormation:
		return "broadcast"
	case PhasePollFollower:
		return "poll"
	case PhaseAwaitReport:
		return "await"
	case PhaseRelayToFollower:
		return "relay"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// ActionKind tells the leader what a scheduler step requires of it.
type ActionKind int

const (
	ActNone ActionKind = iota
	ActBroadcastShape
	ActPoll
	ActRelay
	ActMissing
)

// Action is the outcome of one scheduler step.
type Action struct {
	Kind     ActionKind
	Follower model.NodeID
	Shape    model.Shape
	Polls    int  // ActMissing: polls spent on Follower so far
	GaveUp   bool // ActMissing: the scheduler moved on without a report
}

// FollowerStats counts exchange outcomes per follower.
type FollowerStats struct {
	Polls   int
	Reports int
	Relays  int
	Skipped int
}

// Scheduler drives the leader-side exchange: broadcast the shape once, then
// for each follower in topology order poll it, wait for its report and relay
// the leader position back. One Step per leader tick; it never stalls on a
// silent follower.
type Scheduler struct {
	followers  []model.NodeID
	awaitTicks int
	maxPolls   int

	shape    model.Shape
	phase    Phase
	index    int
	waited   int
	polls    int
	answered bool
	rounds   int

	stats map[model.NodeID]*FollowerStats
}

// NewScheduler builds a scheduler over followers in the given order.
func NewScheduler(followers []model.NodeID, awaitTicks, maxPolls int) *Scheduler {
	if awaitTicks < 1 {
		awaitTicks = 1
	}
	if maxPolls < 1 {
		maxPolls = 1
	}
	s := &Scheduler{
		followers:  append([]model.NodeID(nil), followers...),
		awaitTicks: awaitTicks,
		maxPolls:   maxPolls,
		stats:      make(map[model.NodeID]*FollowerStats, len(followers)),
	}
	for _, f := range followers {
		s.stats[f] = &FollowerStats{}
	}
	return s
}

// Reset restarts the exchange for shape, beginning with its broadcast.
func (s *Scheduler) Reset(shape model.Shape) {
	s.shape = shape
	s.phase = PhaseBroadcastFormation
	s.index = 0
	s.waited = 0
	s.polls = 0
	s.answered = false
}

// Phase returns the current phase and the follower it concerns.
func (s *Scheduler) Phase() (Phase, model.NodeID) {
	if len(s.followers) == 0 {
		return s.phase, 0
	}
	return s.phase, s.followers[s.index]
}

// Rounds returns how many full passes over the followers have completed.
func (s *Scheduler) Rounds() int { return s.rounds }

// Stats returns a copy of the per-follower counters.
func (s *Scheduler) Stats() map[model.NodeID]FollowerStats {
	out := make(map[model.NodeID]FollowerStats, len(s.stats))
	for id, st := range s.stats {
		out[id] = *st
	}
	return out
}

// Deliver hands over a position report received this tick. It returns true
// when the report is the one being awaited; other reports are ignored.
func (s *Scheduler) Deliver(from model.NodeID) bool {
	if s.phase != PhaseAwaitReport || len(s.followers) == 0 || s.followers[s.index] != from {
		return false
	}
	s.answered = true
	return true
}

// Step advances the exchange by one phase.
func (s *Scheduler) Step() Action {
	if s.phase == PhaseBroadcastFormation {
		s.phase = PhasePollFollower
		return Action{Kind: ActBroadcastShape, Shape: s.shape}
	}
	if len(s.followers) == 0 {
		return Action{Kind: ActNone}
	}
	cur := s.followers[s.index]

	switch s.phase {
	case PhasePollFollower:
		s.polls++
		s.waited = 0
		s.answered = false
		s.phase = PhaseAwaitReport
		s.stats[cur].Polls++
		return Action{Kind: ActPoll, Follower: cur}

	case PhaseAwaitReport:
		if s.answered {
			s.stats[cur].Reports++
			s.phase = PhaseRelayToFollower
			return Action{Kind: ActNone, Follower: cur}
		}
		s.waited++
		if s.waited < s.awaitTicks {
			return Action{Kind: ActNone, Follower: cur}
		}
		polls := s.polls
		if polls < s.maxPolls {
			s.phase = PhasePollFollower
			return Action{Kind: ActMissing, Follower: cur, Polls: polls}
		}
		s.stats[cur].Skipped++
		s.advance()
		return Action{Kind: ActMissing, Follower: cur, Polls: polls, GaveUp: true}

	case PhaseRelayToFollower:
		s.stats[cur].Relays++
		s.advance()
		return Action{Kind: ActRelay, Follower: cur}
	}
	return Action{Kind: ActNone}
}

func (s *Scheduler) advance() {
	s.index++
	if s.index == len(s.followers) {
		s.index = 0
		s.rounds++
	}
	s.polls = 0
	s.waited = 0
	s.answered = false
	s.phase = PhasePollFollower
}
