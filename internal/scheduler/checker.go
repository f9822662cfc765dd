package scheduler

import (
	"fmt"

	"github.com/signalsfoundry/intersection-scheduler/core"
	"github.com/signalsfoundry/intersection-scheduler/internal/reservation"
	"github.com/signalsfoundry/intersection-scheduler/model"
)

// ConflictTable is the read-only view of the catalog's precomputed spatial
// conflicts.
type ConflictTable interface {
	Conflicts(key model.SegmentKey) []model.SegmentKey
	NumSubsegments() int
}

// ConflictChecker tests candidate paths against committed reservations. It
// never mutates the reservation table.
type ConflictChecker struct {
	graph     *core.PrimitiveGraph
	conflicts ConflictTable
	table     *reservation.Table
}

// NewConflictChecker builds a checker over graph, conflicts and table.
func NewConflictChecker(graph *core.PrimitiveGraph, conflicts ConflictTable, table *reservation.Table) *ConflictChecker {
	return &ConflictChecker{graph: graph, conflicts: conflicts, table: table}
}

// timedPath is a path with its primitives and arrival times resolved.
type timedPath struct {
	nodes      core.Path
	primitives []model.PrimitiveID
	times      []float64
}

func (c *ConflictChecker) resolve(path core.Path, start float64) (timedPath, error) {
	prims, err := c.graph.Primitives(path)
	if err != nil {
		return timedPath{}, err
	}
	times, err := c.graph.ScheduledTimes(path, start)
	if err != nil {
		return timedPath{}, err
	}
	return timedPath{nodes: path, primitives: prims, times: times}, nil
}

// segmentSpan returns the interval during which sub-segment seg of edge k is
// traversed.
func (tp timedPath) segmentSpan(k, seg, n int) model.Interval {
	left, right := tp.times[k], tp.times[k+1]
	dt := right - left
	start := left + dt*float64(seg)/float64(n)
	end := right
	if seg+1 < n {
		end = left + dt*float64(seg+1)/float64(n)
	}
	return model.Span(start, end)
}

// Check walks path leaving its first node at start and reports whether it
// can be reserved. On the first conflicting sub-segment it searches backward
// for the nearest node where an indefinite wait would itself be safe.
func (c *ConflictChecker) Check(path core.Path, start float64) (Outcome, error) {
	if len(path) == 0 {
		return BlockedFully{}, nil
	}
	tp, err := c.resolve(path, start)
	if err != nil {
		return nil, fmt.Errorf("check path: %w", err)
	}
	return c.check(tp), nil
}

func (c *ConflictChecker) check(tp timedPath) Outcome {
	n := c.conflicts.NumSubsegments()
	for k, prim := range tp.primitives {
		for seg := 0; seg < n; seg++ {
			key := model.SegmentKey{Primitive: prim, Segment: seg}
			if c.blocked(key, tp.segmentSpan(k, seg, n)) {
				return c.dialBack(tp, k)
			}
		}
	}
	return Safe{}
}

// dialBack looks for a node at or before conflictNode where the agent can
// hold indefinitely. Node i is tested through the last sub-segment of the
// primitive arriving at it; the start node through the first sub-segment of
// the first primitive.
func (c *ConflictChecker) dialBack(tp timedPath, conflictNode int) Outcome {
	n := c.conflicts.NumSubsegments()
	for i := conflictNode; i >= 1; i-- {
		key := model.SegmentKey{Primitive: tp.primitives[i-1], Segment: n - 1}
		if !c.blocked(key, model.Hold(tp.times[i])) {
			return BlockedAt{Index: i}
		}
	}
	key := model.SegmentKey{Primitive: tp.primitives[0], Segment: 0}
	if !c.blocked(key, model.Hold(tp.times[0])) {
		return BlockedAt{Index: 0}
	}
	return BlockedFully{}
}

// blocked reports whether occupying key during iv would overlap a reservation
// on any sub-segment that conflicts with key.
func (c *ConflictChecker) blocked(key model.SegmentKey, iv model.Interval) bool {
	for _, other := range c.conflicts.Conflicts(key) {
		if c.table.Overlaps(other, iv) {
			return true
		}
	}
	return false
}
