package core

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/signalsfoundry/intersection-scheduler/model"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

func node(i int) model.State {
	return model.State{Velocity: 1, X: float64(i)}
}

func mustAddEdge(t *testing.T, g *PrimitiveGraph, from, to int, id model.PrimitiveID, d float64) {
	t.Helper()
	if err := g.AddEdge(node(from), node(to), id, d); err != nil {
		t.Fatalf("AddEdge(%d->%d): %v", from, to, err)
	}
}

func TestShortestPathSameNode(t *testing.T) {
	g := NewPrimitiveGraph()
	w, p, err := g.ShortestPath(node(4), node(4))
	if err != nil {
		t.Fatalf("ShortestPath: %v", err)
	}
	if w != 0 || len(p) != 1 || p[0] != node(4) {
		t.Fatalf("ShortestPath(same) = (%v, %v), want (0, [start])", w, p)
	}
}

func TestShortestPathNodeNotFound(t *testing.T) {
	g := NewPrimitiveGraph()
	mustAddEdge(t, g, 0, 1, 1, 1)

	if _, _, err := g.ShortestPath(node(9), node(1)); !errors.Is(err, ErrNodeNotFound) {
		t.Fatalf("missing start err = %v, want ErrNodeNotFound", err)
	}
	if _, _, err := g.ShortestPath(node(0), node(9)); !errors.Is(err, ErrNodeNotFound) {
		t.Fatalf("missing goal err = %v, want ErrNodeNotFound", err)
	}
}

func TestShortestPathUnreachable(t *testing.T) {
	g := NewPrimitiveGraph()
	mustAddEdge(t, g, 0, 1, 1, 1)
	mustAddEdge(t, g, 2, 3, 2, 1)

	w, p, err := g.ShortestPath(node(0), node(3))
	if err != nil {
		t.Fatalf("unreachable goal should not be an error, got %v", err)
	}
	if !math.IsInf(w, 1) || len(p) != 0 {
		t.Fatalf("ShortestPath(unreachable) = (%v, %v), want (+Inf, [])", w, p)
	}
}

func TestShortestPathPrefersCheaperDetour(t *testing.T) {
	g := NewPrimitiveGraph()
	mustAddEdge(t, g, 0, 3, 1, 10)
	mustAddEdge(t, g, 0, 1, 2, 2)
	mustAddEdge(t, g, 1, 2, 3, 2)
	mustAddEdge(t, g, 2, 3, 4, 2)

	w, p, err := g.ShortestPath(node(0), node(3))
	if err != nil {
		t.Fatalf("ShortestPath: %v", err)
	}
	if w != 6 {
		t.Fatalf("weight = %v, want 6", w)
	}
	want := Path{node(0), node(1), node(2), node(3)}
	if diff := cmp.Diff(want, p); diff != "" {
		t.Fatalf("path mismatch (-want +got):\n%s", diff)
	}

	ids, err := g.Primitives(p)
	if err != nil {
		t.Fatalf("Primitives: %v", err)
	}
	if diff := cmp.Diff([]model.PrimitiveID{2, 3, 4}, ids); diff != "" {
		t.Fatalf("primitive mismatch (-want +got):\n%s", diff)
	}

	times, err := g.ScheduledTimes(p, 5)
	if err != nil {
		t.Fatalf("ScheduledTimes: %v", err)
	}
	if diff := cmp.Diff([]float64{5, 7, 9, 11}, times); diff != "" {
		t.Fatalf("scheduled times mismatch (-want +got):\n%s", diff)
	}
}

func TestShortestPathDeterministicOnTies(t *testing.T) {
	g := NewPrimitiveGraph()
	mustAddEdge(t, g, 0, 1, 1, 1)
	mustAddEdge(t, g, 0, 2, 2, 1)
	mustAddEdge(t, g, 1, 3, 3, 1)
	mustAddEdge(t, g, 2, 3, 4, 1)

	_, first, err := g.ShortestPath(node(0), node(3))
	if err != nil {
		t.Fatalf("ShortestPath: %v", err)
	}
	for i := 0; i < 20; i++ {
		w, again, err := g.ShortestPath(node(0), node(3))
		if err != nil {
			t.Fatalf("ShortestPath: %v", err)
		}
		if w != 2 {
			t.Fatalf("weight = %v, want 2", w)
		}
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("tie-break changed between runs (-first +again):\n%s", diff)
		}
	}
}

// bruteForceWeight enumerates every simple path from start to goal and
// returns the minimum summed weight.
func bruteForceWeight(g *PrimitiveGraph, start, goal model.State) float64 {
	best := math.Inf(1)
	visited := map[model.State]bool{start: true}
	var walk func(model.State, float64)
	walk = func(at model.State, cost float64) {
		if at == goal {
			if cost < best {
				best = cost
			}
			return
		}
		for _, e := range g.Successors(at) {
			if visited[e.To] {
				continue
			}
			visited[e.To] = true
			walk(e.To, cost+e.Duration)
			visited[e.To] = false
		}
	}
	walk(start, 0)
	return best
}

func randomGraph(rng *rand.Rand, n int, density float64) *PrimitiveGraph {
	g := NewPrimitiveGraph()
	for i := 0; i < n; i++ {
		g.AddNode(node(i))
	}
	id := model.PrimitiveID(0)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j || rng.Float64() > density {
				continue
			}
			id++
			_ = g.AddEdge(node(i), node(j), id, float64(rng.Intn(9)+1)/2)
		}
	}
	return g
}

func TestShortestPathMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 40; trial++ {
		n := 3 + rng.Intn(5)
		g := randomGraph(rng, n, 0.35)
		for s := 0; s < n; s++ {
			for d := 0; d < n; d++ {
				if s == d {
					continue
				}
				w, p, err := g.ShortestPath(node(s), node(d))
				if err != nil {
					t.Fatalf("trial %d: ShortestPath(%d,%d): %v", trial, s, d, err)
				}
				want := bruteForceWeight(g, node(s), node(d))
				if w != want {
					t.Fatalf("trial %d: weight(%d,%d) = %v, want %v", trial, s, d, w, want)
				}
				if math.IsInf(w, 1) {
					continue
				}
				got, err := g.Weight(p)
				if err != nil {
					t.Fatalf("trial %d: Weight: %v", trial, err)
				}
				if got != w {
					t.Fatalf("trial %d: path weight %v disagrees with reported %v", trial, got, w)
				}
			}
		}
	}
}

func TestShortestPathMatchesGonumDijkstra(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for trial := 0; trial < 20; trial++ {
		n := 5 + rng.Intn(10)
		g := randomGraph(rng, n, 0.25)

		ref := simple.NewWeightedDirectedGraph(0, math.Inf(1))
		for i := 0; i < n; i++ {
			ref.AddNode(simple.Node(int64(i)))
		}
		for i := 0; i < n; i++ {
			for _, e := range g.Successors(node(i)) {
				ref.SetWeightedEdge(ref.NewWeightedEdge(simple.Node(int64(i)), simple.Node(int64(e.To.X)), e.Duration))
			}
		}

		for s := 0; s < n; s++ {
			shortest := path.DijkstraFrom(simple.Node(int64(s)), ref)
			for d := 0; d < n; d++ {
				if s == d {
					continue
				}
				_, want := shortest.To(int64(d))
				got, _, err := g.ShortestPath(node(s), node(d))
				if err != nil {
					t.Fatalf("trial %d: ShortestPath(%d,%d): %v", trial, s, d, err)
				}
				if got != want {
					t.Fatalf("trial %d: weight(%d,%d) = %v, gonum says %v", trial, s, d, got, want)
				}
			}
		}
	}
}
