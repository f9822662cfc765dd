// Package scheduler implements the reservation-based path scheduler: it
// routes agents over the primitive graph, admits routes (or safe prefixes of
// them) against the reservation table, and detects per-tick deadlock.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/signalsfoundry/intersection-scheduler/core"
	"github.com/signalsfoundry/intersection-scheduler/internal/logging"
	"github.com/signalsfoundry/intersection-scheduler/internal/reservation"
	"github.com/signalsfoundry/intersection-scheduler/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/signalsfoundry/intersection-scheduler/internal/scheduler"

// Grant kinds reported to the metrics recorder.
const (
	GrantFull    = "full"
	GrantPartial = "partial"
)

// ErrDuplicateRequest is returned by Submit when the agent already has a
// pending request.
var ErrDuplicateRequest = errors.New("agent already has a pending request")

// MetricsRecorder receives scheduler measurements. The observability
// package's SchedulerCollector implements it.
type MetricsRecorder interface {
	ObserveTick(d time.Duration)
	ObservePathComputation(d time.Duration)
	IncGrants(kind string)
	IncRequeues()
	IncDropped()
	IncDeadlocks()
	SetQueuedRequests(count int)
	SetWaitingAgents(count int)
	SetReservedIntervals(count int)
}

// Hold is an indefinite wait an agent currently occupies: the sub-segment it
// sits on and the open interval reserved there.
type Hold struct {
	Key      model.SegmentKey
	Interval model.Interval
}

// Commit describes one change to the reservation table on behalf of an agent.
type Commit struct {
	AgentID  string
	Key      model.SegmentKey
	Interval model.Interval
	Released bool
}

// TickReport summarises one pass of the request loop.
type TickReport struct {
	Now       float64
	Sweeps    int
	Processed int
	Granted   int
	Partial   int
	Requeued  int
	Dropped   int
	Deadlock  bool
	Expired   int
	Pending   int
}

// PendingRequest is a debugging view of a queued request.
type PendingRequest struct {
	AgentID string
	Start   model.State
	Goal    model.State
	Active  bool
	Hold    *Hold
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithMetricsRecorder attaches a metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// WithCommitObserver registers fn to be called for every reservation added
// or released on behalf of an agent.
func WithCommitObserver(fn func(Commit)) Option {
	return func(s *Scheduler) {
		s.observer = fn
	}
}

// WithTracer overrides the tracer used for tick spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Scheduler) {
		s.tracer = t
	}
}

// Scheduler owns the request queue, the waiting table, the reservation table
// and the per-agent effective clocks. It is driven by Tick from a single
// goroutine; none of its state is shared.
type Scheduler struct {
	graph     *core.PrimitiveGraph
	conflicts ConflictTable
	table     *reservation.Table
	checker   *ConflictChecker
	queue     *RequestQueue

	// waiting is the waiting table: the indefinite hold of each blocked agent.
	waiting map[string]Hold
	// effective is the time up to which each agent's motion is committed.
	effective map[string]float64
	// active marks agents that have been granted at least one primitive.
	active map[string]bool

	log      logging.Logger
	metrics  MetricsRecorder
	observer func(Commit)
	tracer   trace.Tracer
	ticks    int64
}

// New creates a Scheduler over a read-only graph and conflict table.
func New(graph *core.PrimitiveGraph, conflicts ConflictTable, log logging.Logger, opts ...Option) *Scheduler {
	if log == nil {
		log = logging.Noop()
	}
	table := reservation.NewTable()
	s := &Scheduler{
		graph:     graph,
		conflicts: conflicts,
		table:     table,
		checker:   NewConflictChecker(graph, conflicts, table),
		queue:     newRequestQueue(),
		waiting:   make(map[string]Hold),
		effective: make(map[string]float64),
		active:    make(map[string]bool),
		log:       log,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	return s
}

// Submit queues a new request. The agent's effective clock starts at the
// request's SubmittedAt time.
func (s *Scheduler) Submit(req model.Request) error {
	if req.AgentID == "" {
		return fmt.Errorf("submit: empty agent ID")
	}
	if s.queue.Contains(req.AgentID) {
		return fmt.Errorf("submit %s: %w", req.AgentID, ErrDuplicateRequest)
	}
	if req.SubmittedAt > s.effective[req.AgentID] {
		s.effective[req.AgentID] = req.SubmittedAt
	}
	s.queue.Push(&req)
	if s.metrics != nil {
		s.metrics.SetQueuedRequests(s.queue.Len())
	}
	return nil
}

// RemoveAgent forgets an agent that left the network: its queued requests are
// dropped and its hold, if any, released. It reports whether the agent was
// known.
func (s *Scheduler) RemoveAgent(agentID string) bool {
	known := s.queue.Remove(agentID) > 0
	if hold, ok := s.waiting[agentID]; ok {
		s.release(agentID, hold.Key, hold.Interval)
		delete(s.waiting, agentID)
		known = true
	}
	if _, ok := s.effective[agentID]; ok {
		delete(s.effective, agentID)
		known = true
	}
	if s.active[agentID] {
		delete(s.active, agentID)
		known = true
	}
	s.publishGauges()
	return known
}

// Pending returns the number of queued requests.
func (s *Scheduler) Pending() int { return s.queue.Len() }

// IsActive reports whether the agent has been granted at least one primitive.
func (s *Scheduler) IsActive(agentID string) bool { return s.active[agentID] }

// HasPending reports whether the agent has a queued request.
func (s *Scheduler) HasPending(agentID string) bool { return s.queue.Contains(agentID) }

// Waiting returns the agent's current indefinite hold.
func (s *Scheduler) Waiting(agentID string) (Hold, bool) {
	h, ok := s.waiting[agentID]
	return h, ok
}

// EffectiveTime returns the time up to which the agent's motion is committed.
func (s *Scheduler) EffectiveTime(agentID string) float64 { return s.effective[agentID] }

// Reservations returns a sorted copy of the intervals reserved on key.
func (s *Scheduler) Reservations(key model.SegmentKey) []model.Interval {
	return s.table.Intervals(key)
}

// ReservedIntervals returns the total number of stored reservations.
func (s *Scheduler) ReservedIntervals() int { return s.table.Len() }

// Snapshot returns the queued requests in processing order.
func (s *Scheduler) Snapshot() []PendingRequest {
	reqs := s.queue.Snapshot()
	res := make([]PendingRequest, 0, len(reqs))
	for _, req := range reqs {
		p := PendingRequest{
			AgentID: req.AgentID,
			Start:   req.Start,
			Goal:    req.Goal,
			Active:  s.active[req.AgentID],
		}
		if h, ok := s.waiting[req.AgentID]; ok {
			hold := h
			p.Hold = &hold
		}
		res = append(res, p)
	}
	return res
}

// WaitingAgents returns the IDs of agents currently holding, sorted.
func (s *Scheduler) WaitingAgents() []string {
	ids := make([]string, 0, len(s.waiting))
	for id := range s.waiting {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Tick drains the request queue once at simulation time now. Each sweep pops
// as many requests as the queue held when the sweep started; a sweep that
// does not shrink the queue ends the tick as deadlocked. Expired
// reservations are dropped afterwards.
func (s *Scheduler) Tick(ctx context.Context, now float64) TickReport {
	if ctx == nil {
		ctx = context.Background()
	}
	s.ticks++
	ctx = logging.ContextWithTick(ctx, s.ticks)
	ctx, span := s.tracer.Start(ctx, "scheduler.Tick", trace.WithAttributes(
		attribute.Int64("sim.tick", s.ticks),
		attribute.Float64("sim.now", now),
		attribute.Int("scheduler.queue_depth", s.queue.Len()),
	))
	defer span.End()

	began := time.Now()
	report := TickReport{Now: now}

	for s.queue.Len() > 0 {
		sweepLen := s.queue.Len()
		report.Sweeps++
		for i := 0; i < sweepLen; i++ {
			req := s.queue.Pop()
			if req == nil {
				break
			}
			report.Processed++
			s.process(ctx, req, now, &report)
		}
		if s.queue.Len() >= sweepLen {
			report.Deadlock = true
			s.log.Debug(ctx, "no request granted in a full sweep; deferring to next tick",
				logging.Int("pending", s.queue.Len()),
				logging.Float("now", now),
			)
			span.AddEvent("deadlock", trace.WithAttributes(attribute.Int("scheduler.pending", s.queue.Len())))
			if s.metrics != nil {
				s.metrics.IncDeadlocks()
			}
			break
		}
	}

	report.Expired = s.table.Expire(now)
	report.Pending = s.queue.Len()

	span.SetAttributes(
		attribute.Int("scheduler.granted", report.Granted),
		attribute.Int("scheduler.partial", report.Partial),
		attribute.Int("scheduler.requeued", report.Requeued),
		attribute.Int("scheduler.dropped", report.Dropped),
		attribute.Bool("scheduler.deadlock", report.Deadlock),
		attribute.Int("scheduler.expired", report.Expired),
	)
	if s.metrics != nil {
		s.metrics.ObserveTick(time.Since(began))
	}
	s.publishGauges()
	return report
}

func (s *Scheduler) publishGauges() {
	if s.metrics == nil {
		return
	}
	s.metrics.SetQueuedRequests(s.queue.Len())
	s.metrics.SetWaitingAgents(len(s.waiting))
	s.metrics.SetReservedIntervals(s.table.Len())
}

// process runs one request through path finding and admission.
func (s *Scheduler) process(ctx context.Context, req *model.Request, now float64, report *TickReport) {
	agent := req.AgentID
	ctx = logging.ContextWithAgent(ctx, agent)

	hold, waiting := s.waiting[agent]
	start := req.Start
	if waiting {
		if stopped := start.Stopped(); standing(req.Vehicle) && s.graph.HasNode(stopped) {
			start = stopped
		}
		// Provisionally free the hold so the agent does not block itself.
		s.release(agent, hold.Key, hold.Interval)
	}
	restore := func() {
		if waiting {
			s.reserve(agent, hold.Key, hold.Interval)
		}
	}

	startTime := s.effective[agent]
	if now > startTime {
		startTime = now
	}

	began := time.Now()
	_, path, err := s.graph.ShortestPath(start, req.Goal)
	if s.metrics != nil {
		s.metrics.ObservePathComputation(time.Since(began))
	}
	if err != nil {
		restore()
		report.Dropped++
		if s.metrics != nil {
			s.metrics.IncDropped()
		}
		s.log.Error(ctx, "dropping request with endpoint outside the catalog",
			logging.String("start", start.String()),
			logging.String("goal", req.Goal.String()),
			logging.Err(err),
		)
		return
	}

	var tp timedPath
	var outcome Outcome = BlockedFully{}
	if len(path) > 0 {
		tp, err = s.checker.resolve(path, startTime)
		if err != nil {
			restore()
			report.Dropped++
			if s.metrics != nil {
				s.metrics.IncDropped()
			}
			s.log.Error(ctx, "dropping request with unresolvable path", logging.Err(err))
			return
		}
		outcome = s.checker.check(tp)
	}

	switch o := outcome.(type) {
	case Safe:
		s.commit(agent, tp, len(tp.nodes)-1, false)
		if waiting {
			s.reserve(agent, hold.Key, hold.Interval.Close(startTime))
			delete(s.waiting, agent)
			resume(req.Vehicle)
		}
		enqueue(req.Vehicle, tp.primitives)
		s.effective[agent] = tp.times[len(tp.times)-1]
		if len(tp.primitives) > 0 {
			s.active[agent] = true
		}
		report.Granted++
		if s.metrics != nil {
			s.metrics.IncGrants(GrantFull)
		}
		s.log.Debug(ctx, "route granted",
			logging.Int("primitives", len(tp.primitives)),
			logging.Float("start_time", startTime),
			logging.Float("arrival", s.effective[agent]),
		)

	case BlockedFully:
		restore()
		s.requeue(req, report)
		s.log.Debug(ctx, "no safe place on route; retrying later", logging.Int("path_len", len(path)))

	case BlockedAt:
		if o.Index == 0 {
			if !s.active[agent] {
				h := Hold{
					Key:      model.SegmentKey{Primitive: tp.primitives[0], Segment: 0},
					Interval: model.Hold(startTime),
				}
				s.reserve(agent, h.Key, h.Interval)
				s.waiting[agent] = h
				pause(req.Vehicle)
				s.log.Debug(ctx, "holding at entry", logging.String("segment", h.Key.String()))
			} else {
				restore()
			}
			s.requeue(req, report)
			return
		}

		h := s.commit(agent, tp, o.Index, true)
		if waiting {
			s.reserve(agent, hold.Key, hold.Interval.Close(startTime))
			resume(req.Vehicle)
		}
		enqueue(req.Vehicle, tp.primitives[:o.Index])
		pause(req.Vehicle)
		s.waiting[agent] = h
		s.effective[agent] = tp.times[o.Index]
		s.active[agent] = true

		next := *req
		next.Start = tp.nodes[o.Index]
		s.requeue(&next, report)
		report.Partial++
		if s.metrics != nil {
			s.metrics.IncGrants(GrantPartial)
		}
		s.log.Debug(ctx, "partial route granted",
			logging.Int("prefix_nodes", o.Index+1),
			logging.Int("path_nodes", len(tp.nodes)),
			logging.String("hold", h.Key.String()),
		)
	}
}

// commit reserves every sub-segment of tp up to node upto. When hold is set
// the last sub-segment is reserved as an open interval and returned as the
// agent's new hold.
func (s *Scheduler) commit(agent string, tp timedPath, upto int, hold bool) Hold {
	n := s.conflicts.NumSubsegments()
	var h Hold
	for k := 0; k < upto; k++ {
		for seg := 0; seg < n; seg++ {
			key := model.SegmentKey{Primitive: tp.primitives[k], Segment: seg}
			iv := tp.segmentSpan(k, seg, n)
			if hold && k == upto-1 && seg == n-1 {
				iv = model.Hold(iv.Start)
				h = Hold{Key: key, Interval: iv}
			}
			s.reserve(agent, key, iv)
		}
	}
	return h
}

func (s *Scheduler) requeue(req *model.Request, report *TickReport) {
	s.queue.Push(req)
	report.Requeued++
	if s.metrics != nil {
		s.metrics.IncRequeues()
	}
}

func (s *Scheduler) reserve(agent string, key model.SegmentKey, iv model.Interval) {
	s.table.Add(key, iv)
	if s.observer != nil {
		s.observer(Commit{AgentID: agent, Key: key, Interval: iv})
	}
}

func (s *Scheduler) release(agent string, key model.SegmentKey, iv model.Interval) {
	s.table.Remove(key, iv)
	if s.observer != nil {
		s.observer(Commit{AgentID: agent, Key: key, Interval: iv, Released: true})
	}
}

// haltReporter is implemented by vehicles that can tell whether they have
// run out of granted primitives and stand at their pause directive.
type haltReporter interface {
	Halted() bool
}

// standing reports whether a waiting agent is at rest. Vehicles that cannot
// tell are assumed to be.
func standing(v model.Vehicle) bool {
	if h, ok := v.(haltReporter); ok {
		return h.Halted()
	}
	return true
}

func enqueue(v model.Vehicle, ids []model.PrimitiveID) {
	if v != nil && len(ids) > 0 {
		v.Enqueue(ids...)
	}
}

func pause(v model.Vehicle) {
	if v != nil {
		v.Pause()
	}
}

func resume(v model.Vehicle) {
	if v != nil {
		v.Resume()
	}
}
