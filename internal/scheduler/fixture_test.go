package scheduler

import (
	"testing"

	"github.com/signalsfoundry/intersection-scheduler/core"
	"github.com/signalsfoundry/intersection-scheduler/kb"
	"github.com/signalsfoundry/intersection-scheduler/model"
)

type primSpec struct {
	id       model.PrimitiveID
	from, to model.State
	duration float64
}

func st(x, y float64) model.State {
	return model.State{Velocity: 1, X: x, Y: y}
}

func key(p model.PrimitiveID, seg int) model.SegmentKey {
	return model.SegmentKey{Primitive: p, Segment: seg}
}

func buildCatalog(t *testing.T, n int, prims []primSpec, conflicts [][2]model.SegmentKey) (*kb.KnowledgeBase, *core.PrimitiveGraph) {
	t.Helper()
	catalog, err := kb.NewKnowledgeBase(n)
	if err != nil {
		t.Fatalf("NewKnowledgeBase: %v", err)
	}
	for _, p := range prims {
		err := catalog.AddPrimitive(&model.Primitive{
			ID:              p.id,
			Start:           p.from,
			End:             p.to,
			Duration:        p.duration,
			ControllerFound: true,
		})
		if err != nil {
			t.Fatalf("AddPrimitive(%d): %v", p.id, err)
		}
	}
	for _, c := range conflicts {
		if err := catalog.AddConflicts(c[0], c[1]); err != nil {
			t.Fatalf("AddConflicts(%s, %s): %v", c[0], c[1], err)
		}
	}
	catalog.Freeze()
	graph, err := core.BuildPrimitiveGraph(catalog)
	if err != nil {
		t.Fatalf("BuildPrimitiveGraph: %v", err)
	}
	return catalog, graph
}

var (
	nodeA = st(0, 0)
	nodeB = st(10, 0)
	nodeC = st(20, 0)
	nodeD = st(30, 0)
)

// lanePrims is a straight lane A->B->C->D made of primitives 1, 2 and 3.
func lanePrims(duration float64) []primSpec {
	return []primSpec{
		{id: 1, from: nodeA, to: nodeB, duration: duration},
		{id: 2, from: nodeB, to: nodeC, duration: duration},
		{id: 3, from: nodeC, to: nodeD, duration: duration},
	}
}

// crossing returns a primitive running from (x, 100) to (x, 101). It shares
// no state with the lane and only interacts with it through conflicts.
func crossing(id model.PrimitiveID, x, duration float64) primSpec {
	return primSpec{id: id, from: st(x, 100), to: st(x, 101), duration: duration}
}

// ledger replays commit notifications into per-agent reservations.
type ledger map[string]map[model.SegmentKey]map[model.Interval]int

func (l ledger) observe(c Commit) {
	keys, ok := l[c.AgentID]
	if !ok {
		keys = make(map[model.SegmentKey]map[model.Interval]int)
		l[c.AgentID] = keys
	}
	ivs, ok := keys[c.Key]
	if !ok {
		ivs = make(map[model.Interval]int)
		keys[c.Key] = ivs
	}
	if c.Released {
		ivs[c.Interval]--
		if ivs[c.Interval] <= 0 {
			delete(ivs, c.Interval)
		}
		return
	}
	ivs[c.Interval]++
}

// doubleBookings lists every pair of reservations held by different agents
// on conflicting sub-segments with overlapping intervals.
func (l ledger) doubleBookings(conflicts ConflictTable) []string {
	var found []string
	for a, keysA := range l {
		for ka, ivsA := range keysA {
			for _, kOther := range conflicts.Conflicts(ka) {
				for b, keysB := range l {
					if a == b {
						continue
					}
					for ivA := range ivsA {
						for ivB := range keysB[kOther] {
							if ivA.Overlaps(ivB) {
								found = append(found, a+" "+ka.String()+" "+ivA.String()+" vs "+b+" "+kOther.String()+" "+ivB.String())
							}
						}
					}
				}
			}
		}
	}
	return found
}
