// Package engine ties the planner and the executor together behind a single
// collection API. An Engine is cheap, safe for concurrent use, and holds no
// per-query state: every collect builds a fresh physical snapshot of the
// logical plan, optimizes it under the caller's flag set, and drains the
// resulting pipeline into one Arrow record.
package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/coder/quartz"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/AmirulAndalib/polars/internal/executor"
	"github.com/AmirulAndalib/polars/internal/planner/logical"
	"github.com/AmirulAndalib/polars/internal/planner/physical"
	"github.com/AmirulAndalib/polars/internal/types"
)

const (
	defaultBatchSize    = 8192
	defaultCacheEntries = 32

	// singleBatchRows makes table sources emit their whole extent as one
	// batch when a collect does not run in streaming mode.
	singleBatchRows = int64(1) << 62
)

// Params holds parameters for constructing a new [Engine].
type Params struct {
	Logger     log.Logger            // Logger for optional log messages.
	Registerer prometheus.Registerer // Registerer for optional metrics.

	// Allocator backs every record materialized by collects. Defaults to the
	// Go allocator.
	Allocator memory.Allocator

	// BatchSize is the target row count per scanned batch when a collect
	// runs in streaming mode.
	BatchSize int64

	// MaxConcurrency bounds the worker pool shared by CollectAll and the
	// threading strategy of element mappings. Zero or negative uses the
	// number of logical CPUs.
	MaxConcurrency int

	// CacheEntries bounds how many materialized shared subplans stay
	// resident during one collect.
	CacheEntries int

	// Clock is the time source for poll-style result handles. Swapped for a
	// mock clock in tests.
	Clock quartz.Clock
}

// validate applies defaults to p.
func (p *Params) validate() {
	if p.Logger == nil {
		p.Logger = log.NewNopLogger()
	}
	if p.Registerer == nil {
		p.Registerer = prometheus.NewRegistry()
	}
	if p.Allocator == nil {
		p.Allocator = memory.DefaultAllocator
	}
	if p.BatchSize <= 0 {
		p.BatchSize = defaultBatchSize
	}
	if p.MaxConcurrency <= 0 {
		p.MaxConcurrency = runtime.GOMAXPROCS(0)
	}
	if p.CacheEntries <= 0 {
		p.CacheEntries = defaultCacheEntries
	}
	if p.Clock == nil {
		p.Clock = quartz.NewReal()
	}
}

// Engine executes logical plans.
type Engine struct {
	logger  log.Logger
	metrics *metrics
	alloc   memory.Allocator
	clock   quartz.Clock

	batchSize      int64
	maxConcurrency int
	cacheEntries   int
}

// New creates a new Engine.
func New(params Params) *Engine {
	params.validate()
	return &Engine{
		logger:  params.Logger,
		metrics: newMetrics(params.Registerer),
		alloc:   params.Allocator,
		clock:   params.Clock,

		batchSize:      params.BatchSize,
		maxConcurrency: params.MaxConcurrency,
		cacheEntries:   params.CacheEntries,
	}
}

// Collect runs the plan to completion and returns every produced row as a
// single record. The caller owns the record and must release it. The flags
// select which plan rewrites run; any combination returns the same rows.
func (e *Engine) Collect(ctx context.Context, plan logical.Plan, flags physical.OptimizationFlags) (arrow.Record, error) {
	logger := log.With(e.logger, "query_id", ulid.Make().String())
	return e.collect(ctx, logger, plan, flags)
}

func (e *Engine) collect(ctx context.Context, logger log.Logger, lp logical.Plan, flags physical.OptimizationFlags) (arrow.Record, error) {
	start := time.Now()

	plan, err := physical.NewPlanner(flags).Build(lp)
	if err != nil {
		e.metrics.collects.WithLabelValues(statusOf(err)).Inc()
		return nil, fmt.Errorf("building physical plan: %w", err)
	}
	plan, stats := physical.OptimizeWithStats(plan, flags)
	for pass, n := range stats.RuleApplications {
		e.metrics.ruleApplications.WithLabelValues(pass).Add(float64(n))
	}
	root, err := plan.Root()
	if err != nil {
		e.metrics.collects.WithLabelValues(statusOf(err)).Inc()
		return nil, err
	}
	planDur := time.Since(start)
	e.metrics.planSeconds.Observe(planDur.Seconds())

	batchSize := e.batchSize
	if !flags.Streaming {
		batchSize = singleBatchRows
	}

	execStart := time.Now()
	pipeline := executor.Run(ctx, executor.Config{
		BatchSize:    batchSize,
		MaxThreads:   e.maxConcurrency,
		CacheEntries: e.cacheEntries,
		Allocator:    e.alloc,
	}, plan, logger)
	defer pipeline.Close()

	rec, err := executor.ReadAll(ctx, pipeline, e.alloc, types.ToArrowSchema(root.Schema()))
	if err != nil {
		e.metrics.collects.WithLabelValues(statusOf(err)).Inc()
		level.Error(logger).Log("msg", "collect failed", "err", err)
		return nil, err
	}
	execDur := time.Since(execStart)

	e.metrics.collects.WithLabelValues(statusSuccess).Inc()
	e.metrics.execSeconds.Observe(execDur.Seconds())
	e.metrics.rowsEmitted.Add(float64(rec.NumRows()))

	level.Debug(logger).Log("msg", "finished collect",
		"rows", rec.NumRows(),
		"streaming", flags.Streaming,
		"duration_planning", planDur,
		"duration_execution", execDur,
		"duration_full", time.Since(start))
	return rec, nil
}

// CollectAll executes the plans concurrently on a bounded worker pool and
// returns their records in input order, regardless of completion order. The
// first failure cancels the remaining work and releases already-finished
// results.
func (e *Engine) CollectAll(ctx context.Context, plans []logical.Plan, flags physical.OptimizationFlags) ([]arrow.Record, error) {
	results := make([]arrow.Record, len(plans))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxConcurrency)
	for i, lp := range plans {
		g.Go(func() error {
			logger := log.With(e.logger, "query_id", ulid.Make().String(), "batch_index", i)
			rec, err := e.collect(ctx, logger, lp, flags)
			if err != nil {
				return fmt.Errorf("plan %d: %w", i, err)
			}
			results[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, rec := range results {
			if rec != nil {
				rec.Release()
			}
		}
		return nil, err
	}
	return results, nil
}

// Explain renders the logical plan in SSA form followed by the physical plan
// tree it optimizes into under the given flags.
func (e *Engine) Explain(lp logical.Plan, flags physical.OptimizationFlags) (string, error) {
	plan, err := physical.NewPlanner(flags).Build(lp)
	if err != nil {
		return "", fmt.Errorf("building physical plan: %w", err)
	}
	plan = physical.Optimize(plan, flags)

	var sb strings.Builder
	sb.WriteString("Logical plan:\n\n")
	sb.WriteString(logical.Format(lp))
	sb.WriteString("\nPhysical plan:\n\n")
	sb.WriteString(physical.PrintAsTree(plan))
	return sb.String(), nil
}

func statusOf(err error) string {
	switch {
	case err == nil:
		return statusSuccess
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return statusCanceled
	default:
		return statusFailure
	}
}
