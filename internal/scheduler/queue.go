package scheduler

import (
	"sync"

	"github.com/signalsfoundry/intersection-scheduler/model"
)

// RequestQueue is the FIFO of pending route requests.
type RequestQueue struct {
	mu      sync.Mutex
	items   []*model.Request
	byAgent map[string]int
}

func newRequestQueue() *RequestQueue {
	return &RequestQueue{byAgent: make(map[string]int)}
}

func (q *RequestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Push appends req at the tail.
func (q *RequestQueue) Push(req *model.Request) {
	if req == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, req)
	q.byAgent[req.AgentID]++
}

// Pop removes and returns the head, or nil when empty.
func (q *RequestQueue) Pop() *model.Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	req := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	q.forgetLocked(req.AgentID)
	return req
}

func (q *RequestQueue) Peek() *model.Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

// Contains reports whether agentID has a queued request.
func (q *RequestQueue) Contains(agentID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.byAgent[agentID] > 0
}

// Remove drops every queued request of agentID and returns how many there were.
func (q *RequestQueue) Remove(agentID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.items[:0]
	removed := 0
	for _, req := range q.items {
		if req.AgentID == agentID {
			removed++
			continue
		}
		kept = append(kept, req)
	}
	for i := len(kept); i < len(q.items); i++ {
		q.items[i] = nil
	}
	q.items = kept
	delete(q.byAgent, agentID)
	return removed
}

// Snapshot returns copies of the queued requests in order.
func (q *RequestQueue) Snapshot() []model.Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	res := make([]model.Request, 0, len(q.items))
	for _, req := range q.items {
		res = append(res, *req)
	}
	return res
}

func (q *RequestQueue) forgetLocked(agentID string) {
	if q.byAgent[agentID] <= 1 {
		delete(q.byAgent, agentID)
		return
	}
	q.byAgent[agentID]--
}
