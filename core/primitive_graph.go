// Package core builds the primitive-transition graph from the catalog and
// answers shortest-path queries over it.
package core

import (
	"fmt"
	"sort"

	"github.com/signalsfoundry/intersection-scheduler/kb"
	"github.com/signalsfoundry/intersection-scheduler/model"
)

// Edge is a primitive viewed as a transition between two states.
type Edge struct {
	From      model.State
	To        model.State
	Primitive model.PrimitiveID
	Duration  float64
}

type statePair struct {
	from model.State
	to   model.State
}

// PrimitiveGraph is a directed graph whose nodes are kinematic states and
// whose edges are primitives weighted by duration. It is built once and
// read-only afterwards.
type PrimitiveGraph struct {
	index   map[model.State]int // insertion order, used for deterministic tie-breaks
	nodes   []model.State
	out     map[model.State][]Edge
	edges   map[statePair]Edge
	sources map[model.State]struct{}
	sinks   map[model.State]struct{}
}

// NewPrimitiveGraph returns an empty graph.
func NewPrimitiveGraph() *PrimitiveGraph {
	return &PrimitiveGraph{
		index:   make(map[model.State]int),
		out:     make(map[model.State][]Edge),
		edges:   make(map[statePair]Edge),
		sources: make(map[model.State]struct{}),
		sinks:   make(map[model.State]struct{}),
	}
}

// BuildPrimitiveGraph adds every usable primitive of the catalog as an edge
// and marks nodes whose position matches an entry or exit point.
func BuildPrimitiveGraph(catalog *kb.KnowledgeBase) (*PrimitiveGraph, error) {
	if catalog == nil {
		return nil, fmt.Errorf("BuildPrimitiveGraph: catalog is nil")
	}
	g := NewPrimitiveGraph()
	for _, p := range catalog.ListPrimitives() {
		if !p.ControllerFound {
			continue
		}
		if err := g.AddEdge(p.Start, p.End, p.ID, p.Duration); err != nil {
			return nil, fmt.Errorf("BuildPrimitiveGraph: %w", err)
		}
	}
	g.MarkSources(catalog.Sources()...)
	g.MarkSinks(catalog.Sinks()...)
	return g, nil
}

// AddNode adds s to the node set if absent.
func (g *PrimitiveGraph) AddNode(s model.State) {
	if _, ok := g.index[s]; ok {
		return
	}
	g.index[s] = len(g.nodes)
	g.nodes = append(g.nodes, s)
}

// AddEdge adds the transition from → to realised by primitive id. When two
// primitives connect the same pair of states the shorter one is kept.
func (g *PrimitiveGraph) AddEdge(from, to model.State, id model.PrimitiveID, duration float64) error {
	if duration < 0 {
		return fmt.Errorf("primitive %d has negative duration %g", id, duration)
	}
	g.AddNode(from)
	g.AddNode(to)

	key := statePair{from: from, to: to}
	e := Edge{From: from, To: to, Primitive: id, Duration: duration}
	if existing, ok := g.edges[key]; ok {
		if existing.Duration <= duration {
			return nil
		}
		succ := g.out[from]
		for i := range succ {
			if succ[i].To == to {
				succ[i] = e
			}
		}
		g.edges[key] = e
		return nil
	}
	g.edges[key] = e
	g.out[from] = append(g.out[from], e)
	return nil
}

// MarkSources flags every node positioned at one of points as a source.
func (g *PrimitiveGraph) MarkSources(points ...model.Point) {
	g.mark(g.sources, points)
}

// MarkSinks flags every node positioned at one of points as a sink.
func (g *PrimitiveGraph) MarkSinks(points ...model.Point) {
	g.mark(g.sinks, points)
}

func (g *PrimitiveGraph) mark(set map[model.State]struct{}, points []model.Point) {
	if len(points) == 0 {
		return
	}
	want := make(map[model.Point]struct{}, len(points))
	for _, p := range points {
		want[p] = struct{}{}
	}
	for _, n := range g.nodes {
		if _, ok := want[n.Position()]; ok {
			set[n] = struct{}{}
		}
	}
}

// HasNode reports whether s is a node of the graph.
func (g *PrimitiveGraph) HasNode(s model.State) bool {
	_, ok := g.index[s]
	return ok
}

// Nodes returns the nodes in insertion order.
func (g *PrimitiveGraph) Nodes() []model.State {
	return append([]model.State(nil), g.nodes...)
}

// NumNodes returns the number of nodes.
func (g *PrimitiveGraph) NumNodes() int { return len(g.nodes) }

// NumEdges returns the number of edges.
func (g *PrimitiveGraph) NumEdges() int { return len(g.edges) }

// Edge returns the edge between from and to, if any.
func (g *PrimitiveGraph) Edge(from, to model.State) (Edge, bool) {
	e, ok := g.edges[statePair{from: from, to: to}]
	return e, ok
}

// Successors returns the outgoing edges of s. The slice must not be modified.
func (g *PrimitiveGraph) Successors(s model.State) []Edge {
	return g.out[s]
}

// IsSource reports whether s is positioned at an entry point.
func (g *PrimitiveGraph) IsSource(s model.State) bool {
	_, ok := g.sources[s]
	return ok
}

// IsSink reports whether s is positioned at an exit point.
func (g *PrimitiveGraph) IsSink(s model.State) bool {
	_, ok := g.sinks[s]
	return ok
}

// Sources returns the source nodes in insertion order.
func (g *PrimitiveGraph) Sources() []model.State {
	return g.ordered(g.sources)
}

// Sinks returns the sink nodes in insertion order.
func (g *PrimitiveGraph) Sinks() []model.State {
	return g.ordered(g.sinks)
}

func (g *PrimitiveGraph) ordered(set map[model.State]struct{}) []model.State {
	res := make([]model.State, 0, len(set))
	for s := range set {
		res = append(res, s)
	}
	sort.Slice(res, func(i, j int) bool { return g.index[res[i]] < g.index[res[j]] })
	return res
}
