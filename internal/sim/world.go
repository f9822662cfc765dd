// Package sim is a minimal world around the scheduler: it spawns agents at
// entry points, submits their route requests, advances their motion queues
// and retires them once they have driven their granted route.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/signalsfoundry/intersection-scheduler/core"
	"github.com/signalsfoundry/intersection-scheduler/internal/logging"
	"github.com/signalsfoundry/intersection-scheduler/internal/motion"
	"github.com/signalsfoundry/intersection-scheduler/internal/scheduler"
	"github.com/signalsfoundry/intersection-scheduler/model"
	"gonum.org/v1/gonum/stat"
)

// ErrNoRoutes is returned by Spawn when no sink is reachable from any source.
var ErrNoRoutes = errors.New("no source-to-sink route in primitive graph")

// Route is a source/sink pair with at least one path between them.
type Route struct {
	Source model.State
	Sink   model.State
	// MinDuration is the shortest unobstructed travel time.
	MinDuration float64
}

// Agent is a vehicle in the world.
type Agent struct {
	ID        string
	Route     Route
	Queue     *motion.Queue
	SpawnedAt float64
}

// StepReport summarises one world step.
type StepReport struct {
	Now       float64
	Scheduler scheduler.TickReport
	Spawned   int
	Finished  int
	Agents    int
}

// Summary aggregates travel times of finished agents.
type Summary struct {
	Spawned    int
	Finished   int
	MeanTravel float64
	StdTravel  float64
	P95Travel  float64
	// MeanDelay is the mean travel time above each route's unobstructed minimum.
	MeanDelay float64
}

// MetricsRecorder receives agent counts after every step.
type MetricsRecorder interface {
	SetAgentCounts(moving, queued int)
}

// DurationLookup returns the duration of a primitive.
type DurationLookup interface {
	GetPrimitive(id model.PrimitiveID) *model.Primitive
}

// World owns the agents and drives the scheduler.
type World struct {
	mu sync.Mutex

	graph     *core.PrimitiveGraph
	durations DurationLookup
	sched     *scheduler.Scheduler
	routes    []Route

	agents  map[string]*Agent
	spawned int
	travel  []float64
	delay   []float64

	rng              *rand.Rand
	newID            func() string
	spawnProbability float64
	maxAgents        int

	log     logging.Logger
	metrics MetricsRecorder
}

// Option customises World construction.
type Option func(*World)

// WithMetricsRecorder attaches a recorder for agent gauges.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(w *World) {
		w.metrics = m
	}
}

// WithSpawnProbability sets the per-step probability of spawning an agent.
func WithSpawnProbability(p float64) Option {
	return func(w *World) {
		w.spawnProbability = p
	}
}

// WithMaxAgents caps the number of agents alive at once. Zero disables the cap.
func WithMaxAgents(n int) Option {
	return func(w *World) {
		w.maxAgents = n
	}
}

// WithRand sets the random source used for spawning.
func WithRand(rng *rand.Rand) Option {
	return func(w *World) {
		w.rng = rng
	}
}

// WithIDGenerator replaces the random UUID agent identifiers.
func WithIDGenerator(fn func() string) Option {
	return func(w *World) {
		w.newID = fn
	}
}

// NewWorld builds a world over graph. Routes are every source/sink pair the
// graph connects.
func NewWorld(graph *core.PrimitiveGraph, durations DurationLookup, sched *scheduler.Scheduler, log logging.Logger, opts ...Option) *World {
	if log == nil {
		log = logging.Noop()
	}
	w := &World{
		graph:            graph,
		durations:        durations,
		sched:            sched,
		routes:           FindRoutes(graph),
		agents:           make(map[string]*Agent),
		rng:              rand.New(rand.NewSource(1)),
		newID:            uuid.NewString,
		spawnProbability: 0.2,
		log:              log,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// FindRoutes lists the reachable source/sink pairs of graph in node order.
func FindRoutes(graph *core.PrimitiveGraph) []Route {
	var routes []Route
	for _, src := range graph.Sources() {
		for _, dst := range graph.Sinks() {
			if src == dst {
				continue
			}
			weight, path, err := graph.ShortestPath(src, dst)
			if err != nil || len(path) == 0 {
				continue
			}
			routes = append(routes, Route{Source: src, Sink: dst, MinDuration: weight})
		}
	}
	return routes
}

// Routes returns the routes agents are spawned on.
func (w *World) Routes() []Route {
	return append([]Route(nil), w.routes...)
}

// Spawn creates an agent on a random route and submits its request at now.
func (w *World) Spawn(now float64) (*Agent, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.spawnLocked(now)
}

func (w *World) spawnLocked(now float64) (*Agent, error) {
	if len(w.routes) == 0 {
		return nil, ErrNoRoutes
	}
	route := w.routes[w.rng.Intn(len(w.routes))]
	agent := &Agent{
		ID:        w.newID(),
		Route:     route,
		Queue:     motion.NewQueue(),
		SpawnedAt: now,
	}
	err := w.sched.Submit(model.Request{
		AgentID:     agent.ID,
		Start:       route.Source,
		Goal:        route.Sink,
		Vehicle:     agent.Queue,
		SubmittedAt: now,
	})
	if err != nil {
		return nil, fmt.Errorf("spawn %s: %w", agent.ID, err)
	}
	w.agents[agent.ID] = agent
	w.spawned++
	return agent, nil
}

// Step runs one tick at time now lasting dt seconds: maybe spawn, schedule,
// advance every motion queue by dt, retire finished agents.
func (w *World) Step(ctx context.Context, now, dt float64) StepReport {
	w.mu.Lock()
	defer w.mu.Unlock()

	report := StepReport{Now: now}
	if w.spawnProbability > 0 && (w.maxAgents == 0 || len(w.agents) < w.maxAgents) && w.rng.Float64() < w.spawnProbability {
		agent, err := w.spawnLocked(now)
		if err != nil {
			w.log.Warn(ctx, "spawn failed", logging.Err(err))
		} else {
			report.Spawned++
			w.log.Debug(ctx, "agent spawned",
				logging.Agent(agent.ID),
				logging.String("source", agent.Route.Source.String()),
				logging.String("sink", agent.Route.Sink.String()),
			)
		}
	}

	report.Scheduler = w.sched.Tick(ctx, now)

	moving, queued := 0, 0
	for _, id := range w.sortedIDsLocked() {
		agent := w.agents[id]
		agent.Queue.Advance(dt, w.duration)
		if !w.sched.IsActive(id) {
			queued++
			continue
		}
		if agent.Queue.Len() == 0 && !w.sched.HasPending(id) {
			travel := now + dt - agent.SpawnedAt
			w.travel = append(w.travel, travel)
			w.delay = append(w.delay, travel-agent.Route.MinDuration)
			w.sched.RemoveAgent(id)
			delete(w.agents, id)
			report.Finished++
			w.log.Debug(ctx, "agent reached sink",
				logging.Agent(id),
				logging.Float("travel_time", travel),
			)
			continue
		}
		moving++
	}
	report.Agents = len(w.agents)
	if w.metrics != nil {
		w.metrics.SetAgentCounts(moving, queued)
	}
	return report
}

func (w *World) duration(id model.PrimitiveID) float64 {
	if p := w.durations.GetPrimitive(id); p != nil {
		return p.Duration
	}
	return 0
}

func (w *World) sortedIDsLocked() []string {
	ids := make([]string, 0, len(w.agents))
	for id := range w.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Agents returns the live agents ordered by ID.
func (w *World) Agents() []*Agent {
	w.mu.Lock()
	defer w.mu.Unlock()
	res := make([]*Agent, 0, len(w.agents))
	for _, id := range w.sortedIDsLocked() {
		res = append(res, w.agents[id])
	}
	return res
}

// Summary aggregates the travel times of every agent retired so far.
func (w *World) Summary() Summary {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := Summary{Spawned: w.spawned, Finished: len(w.travel)}
	if len(w.travel) == 0 {
		return s
	}
	s.MeanTravel, s.StdTravel = stat.MeanStdDev(w.travel, nil)
	if len(w.travel) == 1 {
		s.StdTravel = 0
	}
	sorted := append([]float64(nil), w.travel...)
	sort.Float64s(sorted)
	s.P95Travel = stat.Quantile(0.95, stat.Empirical, sorted, nil)
	s.MeanDelay = stat.Mean(w.delay, nil)
	return s
}
