package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/AmirulAndalib/polars/internal/planner/physical"
)

const (
	defaultBatchSize    = 8192
	defaultCacheEntries = 32
)

// Config controls the resources of a single plan execution.
type Config struct {
	// BatchSize is the target row count per record emitted by table scans.
	BatchSize int64

	// MaxThreads bounds intra-query parallelism. Zero or negative uses the
	// number of logical CPUs.
	MaxThreads int

	// CacheEntries bounds how many materialized shared subplans stay
	// resident at once.
	CacheEntries int

	// Allocator is the allocator for all records produced by the run.
	// Defaults to the Go allocator.
	Allocator memory.Allocator
}

func (cfg *Config) applyDefaults() {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.MaxThreads <= 0 {
		cfg.MaxThreads = runtime.GOMAXPROCS(0)
	}
	if cfg.CacheEntries <= 0 {
		cfg.CacheEntries = defaultCacheEntries
	}
	if cfg.Allocator == nil {
		cfg.Allocator = memory.DefaultAllocator
	}
}

// Run builds the pipeline tree for the plan rooted at its single root node
// and returns the root pipeline. Execution is lazy; no rows are produced
// until the first Read. Closing the returned pipeline releases every
// resource of the run, including materialized shared subplans.
func Run(ctx context.Context, cfg Config, plan *physical.Plan, logger log.Logger) Pipeline {
	cfg.applyDefaults()

	if plan == nil {
		return errorPipeline(errors.New("plan is nil"))
	}
	root, err := plan.Root()
	if err != nil {
		return errorPipeline(err)
	}

	caches, err := lru.NewWithEvict(cfg.CacheEntries, func(_ uint64, e *cacheEntry) { e.release() })
	if err != nil {
		return errorPipeline(err)
	}

	c := &Context{
		batchSize:  cfg.BatchSize,
		maxThreads: cfg.MaxThreads,
		mem:        cfg.Allocator,
		logger:     logger,
		plan:       plan,
		evaluator:  expressionEvaluator{mem: cfg.Allocator, maxThreads: cfg.MaxThreads},
		caches:     caches,
	}
	level.Debug(logger).Log("msg", "executing plan", "nodes", plan.Len(), "root", root.Type())

	return &rootPipeline{Pipeline: c.execute(ctx, root), purge: caches.Purge}
}

// Context is the execution context of a single run.
type Context struct {
	batchSize  int64
	maxThreads int

	mem       memory.Allocator
	logger    log.Logger
	plan      *physical.Plan
	evaluator expressionEvaluator

	// caches holds materialized subplans shared between plan branches,
	// keyed by the cache node's structural fingerprint.
	caches *lru.Cache[uint64, *cacheEntry]
}

// execute builds the pipeline for node. Every parent constructs its own
// pipeline over shared children; only cache nodes share materialized rows.
func (c *Context) execute(ctx context.Context, node physical.Node) Pipeline {
	children := c.plan.Children(node)
	inputs := make([]Pipeline, 0, len(children))
	for _, child := range children {
		inputs = append(inputs, c.execute(ctx, child))
	}

	switch n := node.(type) {
	case *physical.TableScan:
		return c.executeTableScan(ctx, n)
	case *physical.Projection:
		return c.executeProjection(ctx, n, inputs)
	case *physical.Filter:
		return c.executeFilter(ctx, n, inputs)
	case *physical.HashAggregate:
		return c.executeHashAggregate(ctx, n, inputs)
	case *physical.HashJoin:
		return c.executeHashJoin(ctx, n, inputs)
	case *physical.Sort:
		return c.executeSort(ctx, n, inputs)
	case *physical.Limit:
		return c.executeLimit(ctx, n, inputs)
	case *physical.Union:
		return c.executeUnion(ctx, n, inputs)
	case *physical.Reverse:
		return c.executeReverse(ctx, n, inputs)
	case *physical.Cache:
		return c.executeCache(ctx, n, inputs)
	default:
		return errorPipeline(fmt.Errorf("invalid node type: %T", node))
	}
}

func (c *Context) executeTableScan(_ context.Context, scan *physical.TableScan) Pipeline {
	return newScanPipeline(scan, scanOptions{
		Alloc:     c.mem,
		BatchSize: c.batchSize,
	}, log.With(c.logger, "source", scan.Source.Name()))
}

func (c *Context) executeProjection(_ context.Context, proj *physical.Projection, inputs []Pipeline) Pipeline {
	if len(inputs) == 0 {
		return emptyPipeline()
	}
	if len(inputs) > 1 {
		return errorPipeline(fmt.Errorf("projection expects exactly one input, got %d", len(inputs)))
	}
	if len(proj.Columns) == 0 {
		return errorPipeline(errors.New("projection expects at least one expression, got 0"))
	}
	return newProjectPipeline(proj, inputs[0], c.evaluator, c.plan.Children(proj)[0].Schema())
}

func (c *Context) executeFilter(_ context.Context, filter *physical.Filter, inputs []Pipeline) Pipeline {
	if len(inputs) == 0 {
		return emptyPipeline()
	}
	if len(inputs) > 1 {
		return errorPipeline(fmt.Errorf("filter expects exactly one input, got %d", len(inputs)))
	}
	return newFilterPipeline(filter, inputs[0], c.evaluator)
}

func (c *Context) executeHashAggregate(_ context.Context, agg *physical.HashAggregate, inputs []Pipeline) Pipeline {
	if len(inputs) == 0 {
		return emptyPipeline()
	}
	if len(inputs) > 1 {
		return errorPipeline(fmt.Errorf("aggregate expects exactly one input, got %d", len(inputs)))
	}
	return newAggregatePipeline(agg, inputs[0], c.evaluator, c.plan.Children(agg)[0].Schema())
}

func (c *Context) executeHashJoin(_ context.Context, join *physical.HashJoin, inputs []Pipeline) Pipeline {
	if len(inputs) != 2 {
		return errorPipeline(fmt.Errorf("join expects exactly two inputs, got %d", len(inputs)))
	}
	return newJoinPipeline(join, inputs[0], inputs[1], c.evaluator, c.plan.Children(join)[1].Schema())
}

func (c *Context) executeSort(_ context.Context, sort *physical.Sort, inputs []Pipeline) Pipeline {
	if len(inputs) == 0 {
		return emptyPipeline()
	}
	if len(inputs) > 1 {
		return errorPipeline(fmt.Errorf("sort expects exactly one input, got %d", len(inputs)))
	}
	return newSortPipeline(sort, inputs[0], c.evaluator)
}

func (c *Context) executeLimit(_ context.Context, limit *physical.Limit, inputs []Pipeline) Pipeline {
	if len(inputs) == 0 {
		return emptyPipeline()
	}
	if len(inputs) > 1 {
		return errorPipeline(fmt.Errorf("limit expects exactly one input, got %d", len(inputs)))
	}
	return newLimitPipeline(inputs[0], limit.Skip, limit.Fetch)
}

func (c *Context) executeUnion(_ context.Context, _ *physical.Union, inputs []Pipeline) Pipeline {
	if len(inputs) == 0 {
		return emptyPipeline()
	}
	return newUnionPipeline(inputs)
}

func (c *Context) executeReverse(_ context.Context, _ *physical.Reverse, inputs []Pipeline) Pipeline {
	if len(inputs) == 0 {
		return emptyPipeline()
	}
	if len(inputs) > 1 {
		return errorPipeline(fmt.Errorf("reverse expects exactly one input, got %d", len(inputs)))
	}
	return newReversePipeline(inputs[0], c.mem)
}

// rootPipeline ties per-run shared state to the lifetime of the returned
// pipeline.
type rootPipeline struct {
	Pipeline
	purge func()
}

func (p *rootPipeline) Close() {
	p.Pipeline.Close()
	p.purge()
}
