// Package kb holds the static primitive catalog: motion primitives, the
// precomputed conflict table between primitive sub-segments, and the map's
// entry and exit points. It is filled once at startup and frozen; every
// lookup after that is read-only.
package kb

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/signalsfoundry/intersection-scheduler/model"
)

var (
	// ErrCatalogFrozen is returned by mutators once Freeze has been called.
	ErrCatalogFrozen = errors.New("catalog is frozen")
	// ErrUnknownPrimitive is returned when a conflict references a primitive
	// that was never added.
	ErrUnknownPrimitive = errors.New("unknown primitive")
)

// KnowledgeBase is an in-memory, thread-safe store for the primitive catalog.
type KnowledgeBase struct {
	mu sync.RWMutex

	numSubsegments int
	primitives     map[model.PrimitiveID]*model.Primitive
	conflicts      map[model.SegmentKey]map[model.SegmentKey]struct{}
	sources        []model.Point
	sinks          []model.Point
	frozen         bool

	// sorted conflict lists, built by Freeze
	conflictLists map[model.SegmentKey][]model.SegmentKey
}

// NewKnowledgeBase constructs an empty catalog whose primitives are split
// into numSubsegments equal-duration pieces.
func NewKnowledgeBase(numSubsegments int) (*KnowledgeBase, error) {
	if numSubsegments < 1 {
		return nil, fmt.Errorf("num_subsegments must be positive, got %d", numSubsegments)
	}
	return &KnowledgeBase{
		numSubsegments: numSubsegments,
		primitives:     make(map[model.PrimitiveID]*model.Primitive),
		conflicts:      make(map[model.SegmentKey]map[model.SegmentKey]struct{}),
	}, nil
}

// NumSubsegments returns the number of sub-segments every primitive is split into.
func (kb *KnowledgeBase) NumSubsegments() int {
	return kb.numSubsegments
}

// AddPrimitive adds a primitive. It returns an error if the ID already
// exists or the duration is negative.
func (kb *KnowledgeBase) AddPrimitive(p *model.Primitive) error {
	if p == nil {
		return fmt.Errorf("primitive is nil")
	}
	kb.mu.Lock()
	defer kb.mu.Unlock()

	if kb.frozen {
		return ErrCatalogFrozen
	}
	if _, exists := kb.primitives[p.ID]; exists {
		return fmt.Errorf("primitive with ID %d already exists", p.ID)
	}
	if p.Duration < 0 {
		return fmt.Errorf("primitive %d has negative duration %g", p.ID, p.Duration)
	}
	cp := *p
	kb.primitives[p.ID] = &cp
	return nil
}

// AddConflicts records that the footprint of key overlaps the footprint of
// each of others. Spatial overlap is symmetric, so the reverse entries are
// recorded as well.
func (kb *KnowledgeBase) AddConflicts(key model.SegmentKey, others ...model.SegmentKey) error {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	if kb.frozen {
		return ErrCatalogFrozen
	}
	if err := kb.validateKeyLocked(key); err != nil {
		return err
	}
	for _, other := range others {
		if err := kb.validateKeyLocked(other); err != nil {
			return err
		}
	}
	for _, other := range others {
		kb.linkLocked(key, other)
		kb.linkLocked(other, key)
	}
	return nil
}

func (kb *KnowledgeBase) linkLocked(a, b model.SegmentKey) {
	set, ok := kb.conflicts[a]
	if !ok {
		set = make(map[model.SegmentKey]struct{})
		kb.conflicts[a] = set
	}
	set[b] = struct{}{}
}

func (kb *KnowledgeBase) validateKeyLocked(key model.SegmentKey) error {
	if _, ok := kb.primitives[key.Primitive]; !ok {
		return fmt.Errorf("conflict key %s: %w", key, ErrUnknownPrimitive)
	}
	if key.Segment < 0 || key.Segment >= kb.numSubsegments {
		return fmt.Errorf("conflict key %s: segment out of range [0, %d)", key, kb.numSubsegments)
	}
	return nil
}

// AddSource registers a map entry point.
func (kb *KnowledgeBase) AddSource(p model.Point) error {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	if kb.frozen {
		return ErrCatalogFrozen
	}
	kb.sources = append(kb.sources, p)
	return nil
}

// AddSink registers a map exit point.
func (kb *KnowledgeBase) AddSink(p model.Point) error {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	if kb.frozen {
		return ErrCatalogFrozen
	}
	kb.sinks = append(kb.sinks, p)
	return nil
}

// Freeze makes the catalog immutable. It is safe to call more than once.
func (kb *KnowledgeBase) Freeze() {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	if kb.frozen {
		return
	}
	kb.conflictLists = make(map[model.SegmentKey][]model.SegmentKey, len(kb.conflicts))
	for key, set := range kb.conflicts {
		list := make([]model.SegmentKey, 0, len(set))
		for other := range set {
			list = append(list, other)
		}
		sortKeys(list)
		kb.conflictLists[key] = list
	}
	kb.frozen = true
}

// Frozen reports whether Freeze has been called.
func (kb *KnowledgeBase) Frozen() bool {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.frozen
}

// GetPrimitive returns the primitive with the given ID, or nil if not found.
func (kb *KnowledgeBase) GetPrimitive(id model.PrimitiveID) *model.Primitive {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	p, ok := kb.primitives[id]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

// ListPrimitives returns a snapshot of all primitives ordered by ID.
func (kb *KnowledgeBase) ListPrimitives() []model.Primitive {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	res := make([]model.Primitive, 0, len(kb.primitives))
	for _, p := range kb.primitives {
		res = append(res, *p)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// Conflicts returns the sub-segments whose footprint overlaps key, in a
// stable order. The returned slice must not be modified.
func (kb *KnowledgeBase) Conflicts(key model.SegmentKey) []model.SegmentKey {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	if kb.frozen {
		return kb.conflictLists[key]
	}
	set := kb.conflicts[key]
	list := make([]model.SegmentKey, 0, len(set))
	for other := range set {
		list = append(list, other)
	}
	sortKeys(list)
	return list
}

// Sources returns a copy of the registered entry points.
func (kb *KnowledgeBase) Sources() []model.Point {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return append([]model.Point(nil), kb.sources...)
}

// Sinks returns a copy of the registered exit points.
func (kb *KnowledgeBase) Sinks() []model.Point {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return append([]model.Point(nil), kb.sinks...)
}

func sortKeys(keys []model.SegmentKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Primitive != keys[j].Primitive {
			return keys[i].Primitive < keys[j].Primitive
		}
		return keys[i].Segment < keys[j].Segment
	})
}
