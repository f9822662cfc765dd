package model

import (
	"fmt"
	"math"
)

// Interval is a reserved time range [Start, End). Open intervals have no end
// and represent an indefinite hold; End is ignored for them.
type Interval struct {
	Start float64
	End   float64
	Open  bool
}

// Span returns the closed-form interval [start, end).
func Span(start, end float64) Interval {
	return Interval{Start: start, End: end}
}

// Hold returns an open-ended interval starting at start.
func Hold(start float64) Interval {
	return Interval{Start: start, Open: true}
}

// EndsBefore reports whether the interval finishes strictly before t.
// Open intervals never do.
func (iv Interval) EndsBefore(t float64) bool {
	return !iv.Open && iv.End < t
}

// Overlaps reports whether iv and other intersect. Two intervals intersect
// unless one of them ends strictly before the other starts, so intervals
// that touch at an endpoint are treated as overlapping.
func (iv Interval) Overlaps(other Interval) bool {
	return !iv.EndsBefore(other.Start) && !other.EndsBefore(iv.Start)
}

// Close turns an open interval into one ending at end. Closed intervals are
// returned unchanged.
func (iv Interval) Close(end float64) Interval {
	if !iv.Open {
		return iv
	}
	if end < iv.Start {
		end = iv.Start
	}
	return Interval{Start: iv.Start, End: end}
}

// Upper returns the end of the interval, +Inf for open intervals. It is meant
// for reporting only; comparisons go through EndsBefore and Overlaps.
func (iv Interval) Upper() float64 {
	if iv.Open {
		return math.Inf(1)
	}
	return iv.End
}

func (iv Interval) String() string {
	if iv.Open {
		return fmt.Sprintf("[%g, ∞)", iv.Start)
	}
	return fmt.Sprintf("[%g, %g)", iv.Start, iv.End)
}
