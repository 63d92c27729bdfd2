// Package polars is a lazy dataframe library over a columnar query engine.
//
// Queries are built as immutable expression and plan graphs: frames expose
// select, filter, group-by, join, and sort transformations that each wrap
// the previous plan in a new node, and nothing touches data until Collect.
// At that point the plan is resolved against its sources, rewritten by the
// optimizer according to [CollectOpts], and executed into an Arrow record
// wrapped in a [DataFrame].
//
// Expressions are built from [Col], [Lit], and the package-level function
// constructors, and composed through methods:
//
//	df.Lazy().
//		Filter(polars.Col("size").Gt(polars.Lit(100))).
//		GroupBy(polars.Col("bucket")).
//		Agg(polars.Col("size").Sum()).
//		Collect(ctx)
//
// Because plans are persistent values, a frame can be collected several
// times, concurrently, and with different optimizer flags, without
// rebuilding it.
package polars

import (
	"os"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"go.uber.org/atomic"

	"github.com/AmirulAndalib/polars/internal/engine"
	"github.com/AmirulAndalib/polars/internal/errors"
	"github.com/AmirulAndalib/polars/internal/planner/physical"
)

// Error taxonomy. All failures returned from planning and collection match
// exactly one of these via errors.Is.
var (
	// ErrCompute marks semantic failures during evaluation: incompatible
	// types, empty horizontal folds, ambiguous return-type inference.
	ErrCompute = errors.ErrCompute
	// ErrShape marks row or column count mismatches.
	ErrShape = errors.ErrShape
	// ErrColumnNotFound marks references to names absent from the schema.
	ErrColumnNotFound = errors.ErrColumnNotFound
	// ErrInvalidParameter marks rejected option values, such as an unknown
	// strategy or interpolation method.
	ErrInvalidParameter = errors.ErrInvalidParameter
	// ErrDuplicate marks duplicate output column names.
	ErrDuplicate = errors.ErrDuplicate
	// ErrNotReady is returned by [Result.Get] in non-blocking mode while
	// the collect is still running.
	ErrNotReady = engine.ErrNotReady
	// ErrTimeout is returned by [Result.Get] when the wait deadline passes
	// before the collect finishes.
	ErrTimeout = engine.ErrTimeout
)

// CollectOpts toggles the optimizer rewrites applied when a plan is
// collected. Every rewrite is semantics-preserving: results are identical
// whichever combination is enabled. The zero value disables everything;
// use [DefaultCollectOpts] for the standard set.
type CollectOpts struct {
	// TypeCoercion inserts implicit casts along the supertype lattice.
	// Without it, plans mixing types fail to build.
	TypeCoercion bool
	// PredicatePushdown moves filters toward the scans.
	PredicatePushdown bool
	// ProjectionPushdown prunes columns no downstream node reads.
	ProjectionPushdown bool
	// SimplifyExpression folds constants and removes no-op operations.
	SimplifyExpression bool
	// SlicePushdown moves row limits toward the scans.
	SlicePushdown bool
	// CommSubplanElim caches branching subplans shared by self-joins and
	// unions.
	CommSubplanElim bool
	// CommSubexprElim computes structurally equal expressions once per
	// projection.
	CommSubexprElim bool
	// Streaming executes the plan in batches instead of one pass.
	Streaming bool
	// NoOptimization forces the pushdown and elimination rewrites off.
	// TypeCoercion and SimplifyExpression stay at their set values.
	NoOptimization bool
}

// DefaultCollectOpts returns the standard optimizer configuration: all
// rewrites on, streaming off.
func DefaultCollectOpts() CollectOpts {
	return CollectOpts{
		TypeCoercion:       true,
		PredicatePushdown:  true,
		ProjectionPushdown: true,
		SimplifyExpression: true,
		SlicePushdown:      true,
		CommSubplanElim:    true,
		CommSubexprElim:    true,
	}
}

func (o CollectOpts) flags() physical.OptimizationFlags {
	f := physical.OptimizationFlags{
		TypeCoercion:       o.TypeCoercion,
		PredicatePushdown:  o.PredicatePushdown,
		ProjectionPushdown: o.ProjectionPushdown,
		SimplifyExpression: o.SimplifyExpression,
		SlicePushdown:      o.SlicePushdown,
		CommSubplanElim:    o.CommSubplanElim,
		CommSubexprElim:    o.CommSubexprElim,
		Streaming:          o.Streaming,
	}
	if o.NoOptimization {
		f.PredicatePushdown = false
		f.ProjectionPushdown = false
		f.SlicePushdown = false
		f.CommSubplanElim = false
		f.CommSubexprElim = false
	}
	return f
}

// pickOpts folds the optional opts argument of the collect entry points.
// At most one value is meaningful; absence means defaults.
func pickOpts(opts []CollectOpts) CollectOpts {
	if len(opts) > 0 {
		return opts[0]
	}
	return DefaultCollectOpts()
}

// defaultEngine executes collects for frames without a dedicated engine.
// Built on first use with default parameters and a private metrics
// registry.
var defaultEngine = sync.OnceValue(func() *engine.Engine {
	return engine.New(engine.Params{})
})

// warnSink holds the logger behind [SetWarnLogger]. atomic.Value requires
// one concrete type across stores, hence the box.
var warnSink atomic.Value

type warnBox struct{ logger log.Logger }

var defaultWarnLogger = sync.OnceValue(func() log.Logger {
	return log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
})

// SetWarnLogger routes the package's advisory side-channel: deprecation
// notices and inefficiency diagnostics emitted while expressions are
// constructed. The default logger writes logfmt lines to stderr. Passing
// nil silences the channel.
func SetWarnLogger(logger log.Logger) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	warnSink.Store(warnBox{logger: logger})
}

func warn(keyvals ...any) {
	logger, _ := warnSink.Load().(warnBox)
	if logger.logger == nil {
		logger.logger = defaultWarnLogger()
	}
	level.Warn(logger.logger).Log(keyvals...)
}

// deprecated emits the advisory for a renamed entry point.
func deprecated(old, replacement string) {
	warn("msg", "deprecated function", "deprecated", old, "use", replacement)
}
