package scheduler

import (
	"testing"

	"github.com/signalsfoundry/intersection-scheduler/model"
)

func TestRequestQueueFIFO(t *testing.T) {
	q := newRequestQueue()
	if q.Pop() != nil || q.Peek() != nil {
		t.Fatalf("expected nil from empty queue")
	}
	for _, id := range []string{"a", "b", "c"} {
		q.Push(&model.Request{AgentID: id})
	}
	q.Push(nil)

	if q.Len() != 3 {
		t.Fatalf("Len = %d, want 3", q.Len())
	}
	if head := q.Peek(); head == nil || head.AgentID != "a" {
		t.Fatalf("Peek = %+v, want agent a", head)
	}
	for _, want := range []string{"a", "b", "c"} {
		got := q.Pop()
		if got == nil || got.AgentID != want {
			t.Fatalf("Pop = %+v, want agent %s", got, want)
		}
	}
	if q.Len() != 0 {
		t.Fatalf("Len = %d after draining, want 0", q.Len())
	}
}

func TestRequestQueueContainsAndRemove(t *testing.T) {
	q := newRequestQueue()
	q.Push(&model.Request{AgentID: "a"})
	q.Push(&model.Request{AgentID: "b"})
	q.Push(&model.Request{AgentID: "a"})

	if !q.Contains("a") || !q.Contains("b") || q.Contains("z") {
		t.Fatalf("unexpected Contains results")
	}
	q.Pop()
	if !q.Contains("a") {
		t.Fatalf("expected second request of a to keep it queued")
	}

	if n := q.Remove("a"); n != 1 {
		t.Fatalf("Remove(a) = %d, want 1", n)
	}
	if q.Contains("a") {
		t.Fatalf("expected a to be gone after Remove")
	}
	snap := q.Snapshot()
	if len(snap) != 1 || snap[0].AgentID != "b" {
		t.Fatalf("Snapshot = %+v, want only b", snap)
	}
	if n := q.Remove("missing"); n != 0 {
		t.Fatalf("Remove(missing) = %d, want 0", n)
	}
}
