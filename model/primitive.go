package model

import "fmt"

// PrimitiveID identifies a motion primitive in the catalog.
type PrimitiveID int

// Primitive is a precomputed short trajectory between two kinematic states.
type Primitive struct {
	ID       PrimitiveID
	Start    State
	End      State
	Duration float64 // seconds

	// ControllerFound is false for primitives whose trajectory could not be
	// realised; those never enter the graph.
	ControllerFound bool
}

// SegmentKey addresses one equal-duration slice of a primitive. It is the
// unit of spatial conflict checking and the key of the reservation table.
type SegmentKey struct {
	Primitive PrimitiveID
	Segment   int
}

func (k SegmentKey) String() string {
	return fmt.Sprintf("%d/%d", k.Primitive, k.Segment)
}
