package model

import "fmt"

// State is a kinematic state drawn from the primitive catalog. It is used
// as a graph node identity, so equality is exact.
type State struct {
	Velocity float64
	Heading  float64
	X        float64
	Y        float64
}

// Position returns the planar position of the state.
func (s State) Position() Point {
	return Point{X: s.X, Y: s.Y}
}

// Stopped returns a copy of s with zero velocity.
func (s State) Stopped() State {
	s.Velocity = 0
	return s
}

func (s State) String() string {
	return fmt.Sprintf("(v=%g, heading=%g, x=%g, y=%g)", s.Velocity, s.Heading, s.X, s.Y)
}

// Point is a map coordinate used for entry and exit points.
type Point struct {
	X float64
	Y float64
}
