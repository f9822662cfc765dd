// Package motion holds the per-vehicle queue of granted primitives that the
// motion layer consumes, plus the pause directive used while a vehicle
// holds indefinitely.
package motion

import (
	"sync"

	"github.com/signalsfoundry/intersection-scheduler/model"
)

// Entry is one item of a motion queue. A pause entry has Pause set and no
// primitive.
type Entry struct {
	Primitive model.PrimitiveID
	Progress  float64 // fraction of the primitive already executed, in [0, 1]
	Pause     bool
}

// Queue is a FIFO of granted primitives. It satisfies model.Vehicle.
type Queue struct {
	mu      sync.Mutex
	entries []Entry
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue appends primitives with zero progress. Granted primitives always
// go in front of a trailing pause directive.
func (q *Queue) Enqueue(ids ...model.PrimitiveID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	paused := q.pausedLocked()
	if paused {
		q.entries = q.entries[:len(q.entries)-1]
	}
	for _, id := range ids {
		q.entries = append(q.entries, Entry{Primitive: id})
	}
	if paused {
		q.entries = append(q.entries, Entry{Pause: true})
	}
}

// Pause appends the pause directive unless one is already at the tail.
func (q *Queue) Pause() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pausedLocked() {
		return
	}
	q.entries = append(q.entries, Entry{Pause: true})
}

// Resume removes the pause directive.
func (q *Queue) Resume() {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.entries[:0]
	for _, e := range q.entries {
		if !e.Pause {
			kept = append(kept, e)
		}
	}
	q.entries = kept
}

// Paused reports whether the queue ends with a pause directive.
func (q *Queue) Paused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pausedLocked()
}

func (q *Queue) pausedLocked() bool {
	return len(q.entries) > 0 && q.entries[len(q.entries)-1].Pause
}

// Halted reports whether the vehicle has executed every granted primitive
// and stands at the pause directive.
func (q *Queue) Halted() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries) > 0 && q.entries[0].Pause
}

// Len returns the number of entries, pause directive included.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Head returns the first entry.
func (q *Queue) Head() (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return Entry{}, false
	}
	return q.entries[0], true
}

// Primitives returns the queued primitive IDs in order, skipping the pause
// directive.
func (q *Queue) Primitives() []model.PrimitiveID {
	q.mu.Lock()
	defer q.mu.Unlock()
	ids := make([]model.PrimitiveID, 0, len(q.entries))
	for _, e := range q.entries {
		if !e.Pause {
			ids = append(ids, e.Primitive)
		}
	}
	return ids
}

// Advance progresses the head primitive by dt seconds using duration to
// convert time into progress, spilling over into following primitives. It
// stops at a pause directive and returns the primitives completed.
func (q *Queue) Advance(dt float64, duration func(model.PrimitiveID) float64) []model.PrimitiveID {
	q.mu.Lock()
	defer q.mu.Unlock()
	var done []model.PrimitiveID
	for dt > 0 && len(q.entries) > 0 {
		head := &q.entries[0]
		if head.Pause {
			break
		}
		d := duration(head.Primitive)
		if d <= 0 {
			done = append(done, head.Primitive)
			q.entries = q.entries[1:]
			continue
		}
		remaining := (1 - head.Progress) * d
		if dt < remaining {
			head.Progress += dt / d
			break
		}
		dt -= remaining
		done = append(done, head.Primitive)
		q.entries = q.entries[1:]
	}
	return done
}
