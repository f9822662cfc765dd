package core

import (
	"container/heap"
	"errors"
	"fmt"
	"math"

	"github.com/signalsfoundry/intersection-scheduler/model"
)

// ErrNodeNotFound is returned when a path endpoint is not a graph node.
var ErrNodeNotFound = errors.New("node not found in primitive graph")

// Path is an ordered sequence of states in which adjacent pairs are edges.
type Path []model.State

// ShortestPath runs Dijkstra from start and returns the total duration and
// node sequence of the cheapest route to goal. An unreachable goal yields
// (+Inf, nil, nil); callers treat that as "no route", not as an error.
func (g *PrimitiveGraph) ShortestPath(start, goal model.State) (float64, Path, error) {
	if start == goal {
		return 0, Path{start}, nil
	}
	if !g.HasNode(start) {
		return math.Inf(1), nil, fmt.Errorf("start %s: %w", start, ErrNodeNotFound)
	}
	if !g.HasNode(goal) {
		return math.Inf(1), nil, fmt.Errorf("goal %s: %w", goal, ErrNodeNotFound)
	}

	score := map[model.State]float64{start: 0}
	predecessor := make(map[model.State]model.State)
	settled := make(map[model.State]bool)

	open := &scoreHeap{}
	heap.Push(open, &scoredNode{state: start, score: 0, order: g.index[start]})

	for open.Len() > 0 {
		current := heap.Pop(open).(*scoredNode)
		if settled[current.state] {
			continue
		}
		settled[current.state] = true
		if current.state == goal {
			break
		}

		for _, e := range g.out[current.state] {
			if settled[e.To] {
				continue
			}
			next := current.score + e.Duration
			if old, seen := score[e.To]; seen && old <= next {
				continue
			}
			score[e.To] = next
			predecessor[e.To] = current.state
			heap.Push(open, &scoredNode{state: e.To, score: next, order: g.index[e.To]})
		}
	}

	if !settled[goal] {
		return math.Inf(1), nil, nil
	}

	var reversed Path
	for n := goal; ; n = predecessor[n] {
		reversed = append(reversed, n)
		if n == start {
			break
		}
	}
	path := make(Path, len(reversed))
	for i, s := range reversed {
		path[len(reversed)-1-i] = s
	}
	return score[goal], path, nil
}

// Primitives converts the path into the primitive IDs realising each step.
func (g *PrimitiveGraph) Primitives(path Path) ([]model.PrimitiveID, error) {
	if len(path) < 2 {
		return nil, nil
	}
	ids := make([]model.PrimitiveID, 0, len(path)-1)
	for i := 0; i+1 < len(path); i++ {
		e, ok := g.Edge(path[i], path[i+1])
		if !ok {
			return nil, fmt.Errorf("no primitive between %s and %s", path[i], path[i+1])
		}
		ids = append(ids, e.Primitive)
	}
	return ids, nil
}

// ScheduledTimes returns the arrival time at every node of path when the
// first node is left at start.
func (g *PrimitiveGraph) ScheduledTimes(path Path, start float64) ([]float64, error) {
	if len(path) == 0 {
		return nil, nil
	}
	times := make([]float64, 1, len(path))
	times[0] = start
	for i := 0; i+1 < len(path); i++ {
		e, ok := g.Edge(path[i], path[i+1])
		if !ok {
			return nil, fmt.Errorf("no primitive between %s and %s", path[i], path[i+1])
		}
		times = append(times, times[i]+e.Duration)
	}
	return times, nil
}

// Weight returns the summed duration of the edges of path.
func (g *PrimitiveGraph) Weight(path Path) (float64, error) {
	times, err := g.ScheduledTimes(path, 0)
	if err != nil || len(times) == 0 {
		return 0, err
	}
	return times[len(times)-1], nil
}

// scoredNode is a priority-queue entry for Dijkstra.
type scoredNode struct {
	state model.State
	score float64
	order int
}

// scoreHeap orders by score, then by node insertion order so that ties are
// resolved the same way on every run.
type scoreHeap []*scoredNode

func (h scoreHeap) Len() int { return len(h) }
func (h scoreHeap) Less(i, j int) bool {
	if h[i].score != h[j].score {
		return h[i].score < h[j].score
	}
	return h[i].order < h[j].order
}
func (h scoreHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *scoreHeap) Push(x any)   { *h = append(*h, x.(*scoredNode)) }
func (h *scoreHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return x
}
