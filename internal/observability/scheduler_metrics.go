package observability

import "time"

// ObserveTick records how long a scheduler tick took.
func (c *SchedulerCollector) ObserveTick(d time.Duration) {
	if c == nil || c.TickDuration == nil {
		return
	}
	c.TickDuration.Observe(d.Seconds())
}

// ObservePathComputation records a path computation duration measurement.
func (c *SchedulerCollector) ObservePathComputation(d time.Duration) {
	if c == nil || c.PathComputationDuration == nil {
		return
	}
	c.PathComputationDuration.Observe(d.Seconds())
}

// IncGrants counts an admitted route of the given kind.
func (c *SchedulerCollector) IncGrants(kind string) {
	if c == nil || c.Grants == nil {
		return
	}
	c.Grants.WithLabelValues(kind).Inc()
}

// IncRequeues counts a request put back on the queue.
func (c *SchedulerCollector) IncRequeues() {
	if c == nil || c.Requeues == nil {
		return
	}
	c.Requeues.Inc()
}

// IncDropped counts a request discarded because its endpoints are not in the graph.
func (c *SchedulerCollector) IncDropped() {
	if c == nil || c.Dropped == nil {
		return
	}
	c.Dropped.Inc()
}

// IncDeadlocks counts a tick that ended with a sweep granting nothing.
func (c *SchedulerCollector) IncDeadlocks() {
	if c == nil || c.Deadlocks == nil {
		return
	}
	c.Deadlocks.Inc()
}

// SetQueuedRequests updates the queue depth gauge.
func (c *SchedulerCollector) SetQueuedRequests(count int) {
	if c == nil || c.QueuedRequests == nil {
		return
	}
	c.QueuedRequests.Set(float64(count))
}

// SetWaitingAgents updates the number of agents holding an open reservation.
func (c *SchedulerCollector) SetWaitingAgents(count int) {
	if c == nil || c.WaitingAgents == nil {
		return
	}
	c.WaitingAgents.Set(float64(count))
}

// SetReservedIntervals updates the number of intervals in the reservation table.
func (c *SchedulerCollector) SetReservedIntervals(count int) {
	if c == nil || c.ReservedIntervals == nil {
		return
	}
	c.ReservedIntervals.Set(float64(count))
}

// SetAgentCounts satisfies the simulation's metrics interface so the world
// can publish how many agents are moving and how many are still queued.
func (c *SchedulerCollector) SetAgentCounts(moving, queued int) {
	if c == nil || c.Agents == nil {
		return
	}
	c.Agents.WithLabelValues("moving").Set(float64(moving))
	c.Agents.WithLabelValues("queued").Set(float64(queued))
}
