// core/catalog_loader.go
package core

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/signalsfoundry/intersection-scheduler/kb"
	"github.com/signalsfoundry/intersection-scheduler/model"
)

// internal JSON shapes – keep them unexported so we're free to evolve them.
type catalogJSON struct {
	NumSubsegments int             `json:"num_subsegments"`
	Primitives     []primitiveJSON `json:"primitives"`
	Conflicts      []conflictJSON  `json:"conflicts"`
	Sources        []pointJSON     `json:"sources"`
	Sinks          []pointJSON     `json:"sinks"`
}

type primitiveJSON struct {
	ID              int       `json:"id"`
	Start           stateJSON `json:"start"`
	End             stateJSON `json:"end"`
	Duration        float64   `json:"duration"`
	ControllerFound *bool     `json:"controller_found"` // optional; defaults to true
}

type stateJSON struct {
	V       float64 `json:"v"`
	Heading float64 `json:"heading"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
}

type segmentJSON struct {
	Primitive int `json:"primitive"`
	Segment   int `json:"segment"`
}

type conflictJSON struct {
	Primitive int           `json:"primitive"`
	Segment   int           `json:"segment"`
	Overlaps  []segmentJSON `json:"overlaps"`
}

type pointJSON struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (s stateJSON) toModel() model.State {
	return model.State{Velocity: s.V, Heading: s.Heading, X: s.X, Y: s.Y}
}

// LoadCatalog reads a JSON primitive catalog from r and returns a frozen
// knowledge base. It fails on decode errors and on entries the knowledge
// base rejects (duplicate IDs, unknown primitives in the conflict table,
// out-of-range sub-segments).
func LoadCatalog(r io.Reader) (*kb.KnowledgeBase, error) {
	var payload catalogJSON
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("LoadCatalog: decode failed: %w", err)
	}

	catalog, err := kb.NewKnowledgeBase(payload.NumSubsegments)
	if err != nil {
		return nil, fmt.Errorf("LoadCatalog: %w", err)
	}

	// 1) Primitives
	for _, jsP := range payload.Primitives {
		found := true
		if jsP.ControllerFound != nil {
			found = *jsP.ControllerFound
		}
		p := &model.Primitive{
			ID:              model.PrimitiveID(jsP.ID),
			Start:           jsP.Start.toModel(),
			End:             jsP.End.toModel(),
			Duration:        jsP.Duration,
			ControllerFound: found,
		}
		if err := catalog.AddPrimitive(p); err != nil {
			return nil, fmt.Errorf("LoadCatalog: %w", err)
		}
	}

	// 2) Conflict table
	for _, jsC := range payload.Conflicts {
		key := model.SegmentKey{Primitive: model.PrimitiveID(jsC.Primitive), Segment: jsC.Segment}
		others := make([]model.SegmentKey, 0, len(jsC.Overlaps))
		for _, o := range jsC.Overlaps {
			others = append(others, model.SegmentKey{Primitive: model.PrimitiveID(o.Primitive), Segment: o.Segment})
		}
		if err := catalog.AddConflicts(key, others...); err != nil {
			return nil, fmt.Errorf("LoadCatalog: %w", err)
		}
	}

	// 3) Entry and exit points
	for _, p := range payload.Sources {
		if err := catalog.AddSource(model.Point{X: p.X, Y: p.Y}); err != nil {
			return nil, fmt.Errorf("LoadCatalog: %w", err)
		}
	}
	for _, p := range payload.Sinks {
		if err := catalog.AddSink(model.Point{X: p.X, Y: p.Y}); err != nil {
			return nil, fmt.Errorf("LoadCatalog: %w", err)
		}
	}

	catalog.Freeze()
	return catalog, nil
}

// LoadCatalogFile opens path and hands it to LoadCatalog.
func LoadCatalogFile(path string) (*kb.KnowledgeBase, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog %q: %w", path, err)
	}
	defer f.Close()
	return LoadCatalog(f)
}
