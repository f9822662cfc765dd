package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// SchedulerCollector bundles Prometheus metrics for the scheduler, the
// simulation driving it and the process's gRPC surface.
type SchedulerCollector struct {
	gatherer prometheus.Gatherer

	TickDuration            prometheus.Histogram
	PathComputationDuration prometheus.Histogram
	Grants                  *prometheus.CounterVec
	Requeues                prometheus.Counter
	Dropped                 prometheus.Counter
	Deadlocks               prometheus.Counter
	QueuedRequests          prometheus.Gauge
	WaitingAgents           prometheus.Gauge
	ReservedIntervals       prometheus.Gauge
	Agents                  *prometheus.GaugeVec

	RPCRequests *prometheus.CounterVec
}

// NewSchedulerCollector registers scheduler metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
// Registering twice against the same registry reuses the existing collectors.
func NewSchedulerCollector(reg prometheus.Registerer) (*SchedulerCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	c := &SchedulerCollector{gatherer: gatherer}

	var err error
	if c.TickDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "scheduler_tick_duration_seconds",
		Help:    "Wall-clock time spent draining the request queue in one tick.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	})); err != nil {
		return nil, err
	}
	if c.PathComputationDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "scheduler_path_computation_duration_seconds",
		Help:    "Duration of shortest-path searches over the primitive graph.",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	})); err != nil {
		return nil, err
	}
	if c.Grants, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_grants_total",
		Help: "Routes admitted by the scheduler, labeled by kind (full or partial).",
	}, []string{"kind"})); err != nil {
		return nil, err
	}
	if c.Requeues, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_requeues_total",
		Help: "Requests pushed back onto the queue after processing.",
	})); err != nil {
		return nil, err
	}
	if c.Dropped, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_dropped_requests_total",
		Help: "Requests discarded because an endpoint is not in the primitive graph.",
	})); err != nil {
		return nil, err
	}
	if c.Deadlocks, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_deadlocks_total",
		Help: "Ticks that ended because a full sweep granted nothing.",
	})); err != nil {
		return nil, err
	}
	if c.QueuedRequests, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_requests_queued",
		Help: "Number of route requests currently queued.",
	})); err != nil {
		return nil, err
	}
	if c.WaitingAgents, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_waiting_agents",
		Help: "Number of agents holding an indefinite wait.",
	})); err != nil {
		return nil, err
	}
	if c.ReservedIntervals, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_reserved_intervals",
		Help: "Number of intervals stored in the reservation table.",
	})); err != nil {
		return nil, err
	}
	if c.Agents, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sim_agents",
		Help: "Agents in the simulated world, labeled by state (moving or queued).",
	}, []string{"state"})); err != nil {
		return nil, err
	}
	if c.RPCRequests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grpc_server_requests_total",
		Help: "Total number of handled gRPC calls, labeled by service, method, and gRPC status code.",
	}, []string{"service", "method", "code"})); err != nil {
		return nil, err
	}
	return c, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SchedulerCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SchedulerCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// UnaryServerInterceptor counts unary RPCs by service, method and status.
func (c *SchedulerCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		if c == nil || c.RPCRequests == nil {
			return resp, err
		}
		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)
		c.RPCRequests.WithLabelValues(service, method, status.Code(err).String()).Inc()
		return resp, err
	}
}

// SplitMethod parses a fully-qualified gRPC method name into service and method
// components, returning "unknown"/"unknown" when parsing fails.
func SplitMethod(fullMethod string) (string, string) {
	parts := strings.Split(strings.TrimPrefix(fullMethod, "/"), "/")
	if len(parts) < 2 {
		return "unknown", "unknown"
	}
	service, method := parts[len(parts)-2], parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 && dot+1 < len(service) {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}

// register adds c to reg. If an equivalent collector is already registered it
// is returned instead, so collectors can be rebuilt against the same registry.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(T); ok {
			return existing, nil
		}
		return c, fmt.Errorf("collector already registered with incompatible type: %w", err)
	}
	return c, err
}
