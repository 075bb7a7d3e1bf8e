package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []NodeID{231, 232, 230, 233}, cfg.Topology().Members())
}

func TestValidate_MissingOffset(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	delete(cfg.Formations[ShapeTriangle], 230)
	err := cfg.Validate()
	assert.ErrorContains(t, err, "formations.triangle: no offset for follower 230")

	cfg = DefaultConfig()
	cfg.Swarm.Followers = append(cfg.Swarm.Followers, 234)
	err = cfg.Validate()
	for _, shape := range []Shape{ShapeSquare, ShapeRhombus, ShapeTriangle} {
		assert.ErrorContains(t, err, "formations."+string(shape)+": no offset for follower 234")
	}
}

func TestValidate_Topology(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Swarm.Followers = []NodeID{232, 230, 233, 231}
	assert.ErrorContains(t, cfg.Validate(), "duplicate node id 231")

	cfg = DefaultConfig()
	cfg.Swarm.Followers = []NodeID{232, 230, 233, BroadcastID}
	assert.ErrorContains(t, cfg.Validate(), "must not contain the broadcast id")

	cfg = DefaultConfig()
	cfg.Node.Role = RoleFollower
	assert.ErrorContains(t, cfg.Validate(), "not a configured follower")

	cfg = DefaultConfig()
	cfg.Formations[ShapeSquare][99] = Offset{DX: 1}
	assert.ErrorContains(t, cfg.Validate(), "node 99 is not a follower")
}
