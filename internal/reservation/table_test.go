package reservation

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/signalsfoundry/intersection-scheduler/model"
)

var (
	keyA = model.SegmentKey{Primitive: 1, Segment: 0}
	keyB = model.SegmentKey{Primitive: 2, Segment: 1}
)

func TestAddIsIdempotent(t *testing.T) {
	tbl := NewTable()
	tbl.Add(keyA, model.Span(0, 2))
	tbl.Add(keyA, model.Span(0, 2))
	if tbl.Len() != 1 {
		t.Fatalf("Len = %d, want 1", tbl.Len())
	}
	tbl.Add(keyA, model.Hold(0))
	if tbl.Len() != 2 {
		t.Fatalf("Len = %d, want 2 (hold differs from span)", tbl.Len())
	}
}

func TestRemoveMissingIsNoop(t *testing.T) {
	tbl := NewTable()
	tbl.Remove(keyA, model.Span(0, 1))
	tbl.Add(keyA, model.Span(0, 1))
	tbl.Remove(keyA, model.Span(0, 2))
	if tbl.Len() != 1 {
		t.Fatalf("Len = %d, want 1", tbl.Len())
	}
	tbl.Remove(keyA, model.Span(0, 1))
	if tbl.Len() != 0 || tbl.Keys() != 0 {
		t.Fatalf("table not empty after removal: len=%d keys=%d", tbl.Len(), tbl.Keys())
	}
}

func TestOverlaps(t *testing.T) {
	tbl := NewTable()
	tbl.Add(keyA, model.Span(2, 4))
	tbl.Add(keyB, model.Hold(10))

	cases := []struct {
		name string
		key  model.SegmentKey
		iv   model.Interval
		want bool
	}{
		{"disjoint before", keyA, model.Span(0, 1.5), false},
		{"disjoint after", keyA, model.Span(4.5, 6), false},
		{"inside", keyA, model.Span(2.5, 3), true},
		{"touching end", keyA, model.Span(4, 5), true},
		{"touching start", keyA, model.Span(0, 2), true},
		{"hold covering", keyA, model.Hold(0), true},
		{"hold after", keyA, model.Hold(5), false},
		{"before open hold", keyB, model.Span(0, 9), false},
		{"after open hold start", keyB, model.Span(100, 101), true},
		{"other key", model.SegmentKey{Primitive: 9}, model.Span(2, 4), false},
	}
	for _, tc := range cases {
		if got := tbl.Overlaps(tc.key, tc.iv); got != tc.want {
			t.Errorf("%s: Overlaps(%s, %s) = %v, want %v", tc.name, tc.key, tc.iv, got, tc.want)
		}
	}
}

func TestExpireDropsFinishedIntervals(t *testing.T) {
	tbl := NewTable()
	tbl.Add(keyA, model.Span(0, 1))
	tbl.Add(keyA, model.Span(1, 3))
	tbl.Add(keyB, model.Span(0, 2))
	tbl.Add(keyB, model.Hold(0))

	if dropped := tbl.Expire(2); dropped != 1 {
		t.Fatalf("Expire dropped %d, want 1", dropped)
	}
	if got := tbl.Intervals(keyA); len(got) != 1 || got[0] != model.Span(1, 3) {
		t.Fatalf("keyA intervals = %v, want [[1,3)]", got)
	}
	// [0,2) ends exactly at now and is kept.
	if got := tbl.Intervals(keyB); len(got) != 2 {
		t.Fatalf("keyB intervals = %v, want span and hold", got)
	}

	tbl.Expire(1000)
	if tbl.Keys() != 1 || tbl.Len() != 1 {
		t.Fatalf("after expiry keys=%d len=%d, want only the hold left", tbl.Keys(), tbl.Len())
	}
}

func TestExpireIsIdempotent(t *testing.T) {
	build := func() *Table {
		tbl := NewTable()
		tbl.Add(keyA, model.Span(0, 1))
		tbl.Add(keyA, model.Span(3, 5))
		tbl.Add(keyB, model.Span(1, 2.5))
		tbl.Add(keyB, model.Hold(4))
		return tbl
	}
	once := build()
	once.Expire(2.7)
	twice := build()
	twice.Expire(2.7)
	twice.Expire(2.7)

	for _, key := range []model.SegmentKey{keyA, keyB} {
		if diff := cmp.Diff(once.Intervals(key), twice.Intervals(key)); diff != "" {
			t.Fatalf("key %s differs after repeated expiry (-once +twice):\n%s", key, diff)
		}
	}
	if once.Len() != twice.Len() {
		t.Fatalf("Len differs: once=%d twice=%d", once.Len(), twice.Len())
	}
}
