package core

import (
	"errors"
	"strings"
	"testing"

	"github.com/signalsfoundry/intersection-scheduler/kb"
	"github.com/signalsfoundry/intersection-scheduler/model"
)

const sampleCatalog = `{
  "num_subsegments": 2,
  "primitives": [
    {"id": 1, "start": {"v": 5, "heading": 0, "x": 0, "y": 0}, "end": {"v": 5, "heading": 0, "x": 10, "y": 0}, "duration": 2},
    {"id": 2, "start": {"v": 5, "heading": 0, "x": 10, "y": 0}, "end": {"v": 5, "heading": 0, "x": 20, "y": 0}, "duration": 2},
    {"id": 3, "start": {"v": 5, "heading": 1.57, "x": 10, "y": -10}, "end": {"v": 5, "heading": 1.57, "x": 10, "y": 10}, "duration": 3, "controller_found": false}
  ],
  "conflicts": [
    {"primitive": 1, "segment": 1, "overlaps": [{"primitive": 3, "segment": 0}]}
  ],
  "sources": [{"x": 0, "y": 0}],
  "sinks": [{"x": 20, "y": 0}]
}`

func TestLoadCatalog(t *testing.T) {
	catalog, err := LoadCatalog(strings.NewReader(sampleCatalog))
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	if !catalog.Frozen() {
		t.Fatalf("expected loaded catalog to be frozen")
	}
	if catalog.NumSubsegments() != 2 {
		t.Fatalf("NumSubsegments = %d, want 2", catalog.NumSubsegments())
	}
	if got := len(catalog.ListPrimitives()); got != 3 {
		t.Fatalf("primitives = %d, want 3", got)
	}
	if p := catalog.GetPrimitive(1); p == nil || !p.ControllerFound {
		t.Fatalf("primitive 1 = %#v, want controller_found defaulted to true", p)
	}
	if p := catalog.GetPrimitive(3); p == nil || p.ControllerFound {
		t.Fatalf("primitive 3 = %#v, want controller_found false", p)
	}
	back := catalog.Conflicts(model.SegmentKey{Primitive: 3, Segment: 0})
	if len(back) != 1 || back[0] != (model.SegmentKey{Primitive: 1, Segment: 1}) {
		t.Fatalf("reverse conflict = %v, want [1/1]", back)
	}

	g, err := BuildPrimitiveGraph(catalog)
	if err != nil {
		t.Fatalf("BuildPrimitiveGraph: %v", err)
	}
	if len(g.Sources()) != 1 || len(g.Sinks()) != 1 {
		t.Fatalf("sources/sinks = %v/%v, want one each", g.Sources(), g.Sinks())
	}
}

func TestLoadCatalogErrors(t *testing.T) {
	cases := map[string]string{
		"bad json":          `{"num_subsegments": `,
		"unknown field":     `{"num_subsegments": 1, "bogus": true}`,
		"zero subsegments":  `{"num_subsegments": 0}`,
		"duplicate id":      `{"num_subsegments": 1, "primitives": [{"id": 1, "duration": 1}, {"id": 1, "duration": 1}]}`,
		"unknown conflict":  `{"num_subsegments": 1, "primitives": [{"id": 1, "duration": 1}], "conflicts": [{"primitive": 1, "segment": 0, "overlaps": [{"primitive": 4, "segment": 0}]}]}`,
		"segment too large": `{"num_subsegments": 1, "primitives": [{"id": 1, "duration": 1}], "conflicts": [{"primitive": 1, "segment": 3, "overlaps": []}]}`,
	}
	for name, body := range cases {
		if _, err := LoadCatalog(strings.NewReader(body)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}

	_, err := LoadCatalog(strings.NewReader(cases["unknown conflict"]))
	if !errors.Is(err, kb.ErrUnknownPrimitive) {
		t.Fatalf("unknown conflict err = %v, want ErrUnknownPrimitive", err)
	}
}
