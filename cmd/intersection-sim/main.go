package main

import (
	"context"
	"errors"
	"flag"
	"math/rand"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/signalsfoundry/intersection-scheduler/core"
	"github.com/signalsfoundry/intersection-scheduler/internal/config"
	"github.com/signalsfoundry/intersection-scheduler/internal/logging"
	"github.com/signalsfoundry/intersection-scheduler/internal/observability"
	"github.com/signalsfoundry/intersection-scheduler/internal/scheduler"
	"github.com/signalsfoundry/intersection-scheduler/internal/sim"
	"github.com/signalsfoundry/intersection-scheduler/timectrl"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const serviceName = "intersection.Scheduler"

func main() {
	configPath := flag.String("config", config.DefaultConfigPath, "Path to a JSON run configuration")
	catalogPath := flag.String("catalog", "", "Path to a JSON primitive catalog (overrides the config)")
	metricsAddr := flag.String("metrics-addr", ":9090", "HTTP address for Prometheus /metrics")
	grpcAddr := flag.String("grpc-addr", ":50051", "TCP address of the gRPC health service; empty disables it")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error(ctx, "failed to load run configuration", logging.String("path", *configPath), logging.Err(err))
		os.Exit(1)
	}
	if *catalogPath != "" {
		cfg.CatalogPath = catalogPath
	}

	tracingCfg := observability.TracingConfigFromEnv()
	tracingCfg.RunAttributes = map[string]string{
		"catalog": cfg.GetCatalogPath(),
		"mode":    cfg.GetMode(),
		"seed":    strconv.FormatInt(cfg.GetSeed(), 10),
	}
	shutdownTracing, err := observability.InitTracing(ctx, tracingCfg, log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	collector, err := observability.NewSchedulerCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise metrics collector", logging.Err(err))
		os.Exit(1)
	}
	metricsSrv := serveMetrics(*metricsAddr, collector, log)

	world, err := buildWorld(cfg, collector, log)
	if err != nil {
		log.Error(ctx, "failed to build world", logging.Err(err))
		os.Exit(1)
	}

	healthSrv, grpcSrv := serveHealth(ctx, *grpcAddr, collector, log)

	mode := timectrl.Accelerated
	if cfg.GetMode() == config.ModeRealTime {
		mode = timectrl.RealTime
	}
	clock := timectrl.NewTimeController(time.Now(), cfg.GetTick(), mode)
	attach(ctx, clock, world, log)

	log.Info(ctx, "starting simulation",
		logging.String("catalog", cfg.GetCatalogPath()),
		logging.String("tick", cfg.GetTick().String()),
		logging.String("duration", cfg.GetDuration().String()),
		logging.String("mode", cfg.GetMode()),
	)
	<-clock.Start(ctx, cfg.GetDuration())

	summary := world.Summary()
	log.Info(ctx, "simulation finished",
		logging.Int("ticks", int(clock.Ticks())),
		logging.Int("spawned", summary.Spawned),
		logging.Int("finished", summary.Finished),
		logging.Float("mean_travel_s", summary.MeanTravel),
		logging.Float("std_travel_s", summary.StdTravel),
		logging.Float("p95_travel_s", summary.P95Travel),
		logging.Float("mean_delay_s", summary.MeanDelay),
	)

	if healthSrv != nil {
		healthSrv.Shutdown()
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
}

// buildWorld loads the catalog named by cfg and wires graph, scheduler and
// world together.
func buildWorld(cfg *config.RunConfig, collector *observability.SchedulerCollector, log logging.Logger) (*sim.World, error) {
	catalog, err := core.LoadCatalogFile(cfg.GetCatalogPath())
	if err != nil {
		return nil, err
	}
	if err := cfg.CheckCatalog(catalog.NumSubsegments()); err != nil {
		return nil, err
	}
	graph, err := core.BuildPrimitiveGraph(catalog)
	if err != nil {
		return nil, err
	}
	log.Info(context.Background(), "loaded primitive catalog",
		logging.Int("primitives", len(catalog.ListPrimitives())),
		logging.Int("nodes", graph.NumNodes()),
		logging.Int("edges", graph.NumEdges()),
		logging.Int("sources", len(graph.Sources())),
		logging.Int("sinks", len(graph.Sinks())),
	)

	sched := scheduler.New(graph, catalog, log, scheduler.WithMetricsRecorder(collector))
	world := sim.NewWorld(graph, catalog, sched, log,
		sim.WithMetricsRecorder(collector),
		sim.WithSpawnProbability(cfg.GetSpawnProbability()),
		sim.WithMaxAgents(cfg.GetMaxAgents()),
		sim.WithRand(rand.New(rand.NewSource(cfg.GetSeed()))),
	)
	if len(world.Routes()) == 0 {
		return nil, sim.ErrNoRoutes
	}
	return world, nil
}

// attach steps the world on every clock tick. Scheduler time is the elapsed
// simulated time at the start of the tick.
func attach(ctx context.Context, clock *timectrl.TimeController, world *sim.World, log logging.Logger) {
	clock.AddListener(func(tick timectrl.Tick) {
		now := tick.Elapsed - tick.Step
		report := world.Step(logging.ContextWithTick(ctx, tick.Index), now, tick.Step)
		if report.Scheduler.Deadlock {
			log.Debug(ctx, "tick ended without progress",
				logging.Int("tick", int(tick.Index)),
				logging.Int("pending", report.Scheduler.Pending),
			)
		}
	})
}

func serveMetrics(addr string, collector *observability.SchedulerCollector, log logging.Logger) *http.Server {
	if collector == nil || addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}

// serveHealth exposes the standard gRPC health service, reporting SERVING for
// the scheduler while the simulation runs.
func serveHealth(ctx context.Context, addr string, collector *observability.SchedulerCollector, log logging.Logger) (*health.Server, *grpc.Server) {
	if addr == "" {
		return nil, nil
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		log.Warn(ctx, "gRPC health service disabled", logging.String("addr", addr), logging.Err(err))
		return nil, nil
	}

	healthSrv, server := newHealthServer(collector)

	log.Info(ctx, "serving gRPC health", logging.String("addr", addr))
	go func() {
		if err := server.Serve(lis); err != nil {
			log.Error(ctx, "gRPC server exited", logging.Err(err))
		}
	}()
	return healthSrv, server
}

func newHealthServer(collector *observability.SchedulerCollector) (*health.Server, *grpc.Server) {
	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(collector.UnaryServerInterceptor()),
	)
	healthSrv := health.NewServer()
	healthSrv.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthSrv)
	return healthSrv, server
}
