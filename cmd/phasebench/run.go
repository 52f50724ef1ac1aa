package main

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/csb/phasebench/internal/benchmark"
	"github.com/csb/phasebench/internal/config"
	"github.com/csb/phasebench/internal/executor"
	"github.com/csb/phasebench/internal/phase"
	"github.com/csb/phasebench/internal/pool"
	"github.com/csb/phasebench/internal/scheduler"
	"github.com/csb/phasebench/internal/session"
	"github.com/csb/phasebench/internal/step"
	"github.com/csb/phasebench/internal/telemetry"
	"github.com/csb/phasebench/internal/transport"
)

type runOptions struct {
	definitionPath string
	executionPath  string
	metricsAddr    string
	logLevel       string
}

func runBenchmark(ctx context.Context, opts runOptions) (scheduler.Result, error) {
	var execCfg config.ExecutionConfig
	var err error
	if opts.executionPath != "" {
		execCfg, err = config.LoadExecutionConfig(opts.executionPath)
	} else {
		execCfg = config.DefaultExecutionConfig()
	}
	if err != nil {
		return scheduler.Result{}, err
	}
	if opts.metricsAddr != "" {
		execCfg.MetricsAddr = opts.metricsAddr
	}
	if opts.logLevel != "" {
		execCfg.LogLevel = opts.logLevel
	}

	logger, err := telemetry.NewLogger(execCfg.LogLevel)
	if err != nil {
		return scheduler.Result{}, fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync()

	httpPool, err := transport.New(execCfg.HTTPWorkers, nil)
	if err != nil {
		return scheduler.Result{}, fmt.Errorf("building transport pool: %w", err)
	}
	defer httpPool.Release()

	def, err := config.LoadWithSteps(opts.definitionPath, logger.Raw(), httpPool)
	if err != nil {
		return scheduler.Result{}, fmt.Errorf("loading benchmark definition: %w", err)
	}

	built, err := benchmark.Build(def)
	if err != nil {
		return scheduler.Result{}, fmt.Errorf("building benchmark: %w", err)
	}

	reg := prometheus.NewRegistry()
	collector := telemetry.NewCollector(reg, logger)
	stopMetrics := serveMetrics(execCfg.MetricsAddr, reg, logger)
	defer stopMetrics()

	instances, executors := wirePhases(built, execCfg, collector)
	logger.Logf("starting benchmark %q: %d phases across %d executor(s)", def.Name, len(instances), len(executors))

	execCtx, cancelExecutors := context.WithCancel(context.Background())
	defer cancelExecutors()
	for _, ex := range executors {
		go ex.Run(execCtx)
	}

	sched := scheduler.New(instances)
	result := sched.Run(ctx)

	for _, ex := range executors {
		ex.Stop()
	}

	logger.Logf("benchmark %q finished: %s", def.Name, result.Outcome)
	return result, nil
}

// wirePhases assigns each phase to one of execCfg.Executors executors
// (round-robin, so several phases may share an executor and its session
// pool, since co-located phases are allowed to share a pool), reserves
// enough pool capacity for every phase on that executor, and constructs
// a phase.Instance per phase.
func wirePhases(built *benchmark.Built, execCfg config.ExecutionConfig, collector *telemetry.Collector) ([]*phase.Instance, []*executor.Executor) {
	n := execCfg.Executors
	if n <= 0 {
		n = 1
	}

	executors := make([]*executor.Executor, n)
	threads := make([]*session.ThreadData, n)
	pools := make([]*pool.Pool, n)
	for i := range executors {
		ex := executor.New(execCfg.QueueDepth)
		executors[i] = ex
		threads[i] = session.NewThreadData(ex)
		pools[i] = pool.New(threads[i], built.Schema)
	}

	interp := step.New()
	instances := make([]*phase.Instance, 0, len(built.Def.Phases))
	for i, p := range built.Def.Phases {
		slot := i % n
		pools[slot].Reserve(reserveCapacity(p))
		inst := phase.New(p, pools[slot], executors[slot], interp, collector)
		instances = append(instances, inst)
	}
	return instances, executors
}

// reserveCapacity estimates how many concurrent sessions a phase can
// ever have in flight, so its pool slice can be reserved up front.
func reserveCapacity(p *benchmark.Phase) int {
	switch p.Arrival.Kind {
	case benchmark.AtOnce, benchmark.Always:
		return p.Arrival.Users
	case benchmark.Sequentially:
		return 1
	case benchmark.ConstantPerSec, benchmark.RampPerSec:
		if p.Arrival.MaxSessionsEstimate > 0 {
			return p.Arrival.MaxSessionsEstimate
		}
		rate := p.Arrival.UsersPerSec
		if p.Arrival.TargetUsersPerSec > rate {
			rate = p.Arrival.TargetUsersPerSec
		}
		estimate := rate * p.Duration.Seconds() * 1.2
		if estimate < 1 {
			estimate = 1
		}
		return int(math.Ceil(estimate))
	default:
		return 1
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *telemetry.Logger) func() {
	if addr == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Logf("metrics server stopped: %v", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
