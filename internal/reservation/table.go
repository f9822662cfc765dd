// Package reservation implements the spatio-temporal reservation table: for
// every primitive sub-segment, the set of time intervals during which some
// agent occupies it.
package reservation

import (
	"sort"

	"github.com/signalsfoundry/intersection-scheduler/model"
)

// Table maps sub-segment keys to sets of reserved intervals. It is owned by
// a single scheduler and is not safe for concurrent mutation.
type Table struct {
	slots map[model.SegmentKey]map[model.Interval]struct{}
	size  int
}

// NewTable returns an empty reservation table.
func NewTable() *Table {
	return &Table{slots: make(map[model.SegmentKey]map[model.Interval]struct{})}
}

// Add reserves iv on key. Adding an identical interval twice is a no-op.
func (t *Table) Add(key model.SegmentKey, iv model.Interval) {
	set, ok := t.slots[key]
	if !ok {
		set = make(map[model.Interval]struct{})
		t.slots[key] = set
	}
	if _, dup := set[iv]; dup {
		return
	}
	set[iv] = struct{}{}
	t.size++
}

// Remove drops exactly iv from key. Missing intervals are ignored.
func (t *Table) Remove(key model.SegmentKey, iv model.Interval) {
	set, ok := t.slots[key]
	if !ok {
		return
	}
	if _, present := set[iv]; !present {
		return
	}
	delete(set, iv)
	t.size--
	if len(set) == 0 {
		delete(t.slots, key)
	}
}

// Overlaps reports whether any interval reserved on key intersects iv.
func (t *Table) Overlaps(key model.SegmentKey, iv model.Interval) bool {
	for stored := range t.slots[key] {
		if stored.Overlaps(iv) {
			return true
		}
	}
	return false
}

// Expire drops every interval that ended strictly before now and removes keys
// left empty. It returns the number of intervals dropped.
func (t *Table) Expire(now float64) int {
	dropped := 0
	for key, set := range t.slots {
		for iv := range set {
			if iv.EndsBefore(now) {
				delete(set, iv)
				dropped++
			}
		}
		if len(set) == 0 {
			delete(t.slots, key)
		}
	}
	t.size -= dropped
	return dropped
}

// Len returns the number of stored intervals across all keys.
func (t *Table) Len() int { return t.size }

// Keys returns the number of keys holding at least one interval.
func (t *Table) Keys() int { return len(t.slots) }

// Intervals returns a sorted copy of the intervals reserved on key.
func (t *Table) Intervals(key model.SegmentKey) []model.Interval {
	set := t.slots[key]
	if len(set) == 0 {
		return nil
	}
	res := make([]model.Interval, 0, len(set))
	for iv := range set {
		res = append(res, iv)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Start != res[j].Start {
			return res[i].Start < res[j].Start
		}
		return res[i].Upper() < res[j].Upper()
	})
	return res
}
