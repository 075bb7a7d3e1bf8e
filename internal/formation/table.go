// Package formation holds the station table: where each follower sits
// relative to the leader for every named shape.
package formation

import (
	"fmt"
	"maps"
	"slices"

	"SwarmFormation/internal/model"

	"gonum.org/v1/gonum/spatial/r2"
)

// Table maps (shape, follower) to the follower's offset from the leader.
// It is immutable once built.
type Table struct {
	offsets map[model.Shape]map[model.NodeID]model.Offset
}

// NewTable copies the configured offsets.
func NewTable(src map[model.Shape]map[model.NodeID]model.Offset) *Table {
	t := &Table{offsets: make(map[model.Shape]map[model.NodeID]model.Offset, len(src))}
	for shape, m := range src {
		t.offsets[shape] = maps.Clone(m)
	}
	return t
}

// Offset looks up the station of id within shape.
func (t *Table) Offset(shape model.Shape, id model.NodeID) (model.Offset, error) {
	m, ok := t.offsets[shape]
	if !ok {
		return model.Offset{}, fmt.Errorf("no formation table for shape %q", shape)
	}
	off, ok := m[id]
	if !ok {
		return model.Offset{}, fmt.Errorf("node %d has no station in %s formation", id, shape)
	}
	return off, nil
}

// Shapes lists the configured shapes in stable order.
func (t *Table) Shapes() []model.Shape {
	return slices.Sorted(maps.Keys(t.offsets))
}

// Stations returns the absolute station of every follower in shape for a leader position.
func (t *Table) Stations(shape model.Shape, leader model.Position) map[model.NodeID]r2.Vec {
	out := make(map[model.NodeID]r2.Vec, len(t.offsets[shape]))
	base := r2.Vec{X: float64(leader.X), Y: float64(leader.Y)}
	for id, off := range t.offsets[shape] {
		out[id] = r2.Add(base, r2.Vec{X: off.DX, Y: off.DY})
	}
	return out
}

// MinSeparation returns the smallest pairwise distance between stations of
// shape, leader included. Zero means two agents share a station.
func (t *Table) MinSeparation(shape model.Shape) float64 {
	pts := []r2.Vec{{}}
	for _, off := range t.offsets[shape] {
		pts = append(pts, r2.Vec{X: off.DX, Y: off.DY})
	}
	minDist := -1.0
	for i := range pts {
		for j := i + 1; j < len(pts); j++ {
			d := r2.Norm(r2.Sub(pts[i], pts[j]))
			if minDist < 0 || d < minDist {
				minDist = d
			}
		}
	}
	if minDist < 0 {
		return 0
	}
	return minDist
}
