package polars

import (
	"context"
	"io"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/grafana/dskit/multierror"
	"github.com/oklog/ulid/v2"

	"github.com/AmirulAndalib/polars/internal/engine"
	"github.com/AmirulAndalib/polars/internal/planner/logical"
	"github.com/AmirulAndalib/polars/internal/source"
)

// LazyFrame is a query under construction: a plan graph that executes only
// at collect time. Frames are immutable values; every operation returns a
// new frame wrapping the previous plan, so one intermediate frame can be
// extended in several directions.
type LazyFrame struct {
	plan    logical.Plan
	closers []closer
}

// closer releases a resource held by a scan node.
type closer = io.Closer

type releaseCloser struct{ src *source.InMemory }

func (c releaseCloser) Close() error {
	c.src.Release()
	return nil
}

// derive wraps a new plan root, keeping the scan resources of the receiver.
func (lf LazyFrame) derive(plan logical.Plan) LazyFrame {
	return LazyFrame{plan: plan, closers: lf.closers}
}

// Close releases the file handles and pinned records behind the frame's
// scan nodes. All frames derived from the same scans share those resources,
// so close only after the last of them has collected.
func (lf LazyFrame) Close() error {
	var errs multierror.MultiError
	for _, c := range lf.closers {
		errs.Add(c.Close())
	}
	return errs.Err()
}

// ScanParquet lazily reads a Parquet file. The file stays open for repeated
// collects until [LazyFrame.Close].
func ScanParquet(path string) (LazyFrame, error) {
	src, err := source.OpenParquet(path)
	if err != nil {
		return LazyFrame{}, err
	}
	return LazyFrame{plan: logical.NewMakeTable(src), closers: []closer{src}}, nil
}

// ScanNDJSON lazily reads a newline-delimited JSON file, one object per
// line. The schema is inferred from the first inferLen lines; non-positive
// means [source.DefaultInferLength]. The file is reopened per collect, so
// the frame needs no Close.
func ScanNDJSON(path string, inferLen int) (LazyFrame, error) {
	src, err := source.OpenNDJSON(path, inferLen)
	if err != nil {
		return LazyFrame{}, err
	}
	return LazyFrame{plan: logical.NewMakeTable(src)}, nil
}

// Select replaces the frame's columns with the evaluated expressions.
func (lf LazyFrame) Select(exprs ...Expr) LazyFrame {
	return lf.derive(logical.NewProjection(lf.plan, unwrapExprs(exprs)))
}

// WithColumns adds or replaces columns, keeping the rest. An expression
// whose output name matches an existing column replaces it in place; new
// names append in order.
func (lf LazyFrame) WithColumns(exprs ...Expr) LazyFrame {
	return lf.derive(logical.NewWithColumns(lf.plan, unwrapExprs(exprs)))
}

// Filter keeps the rows where the predicate is true. False and null rows
// drop.
func (lf LazyFrame) Filter(predicate Expr) LazyFrame {
	return lf.derive(logical.NewFilter(lf.plan, predicate.node))
}

// GroupBy starts a grouped aggregation, finished by [GroupBy.Agg]. Output
// group order is unspecified unless [GroupBy.MaintainOrder] is chained.
func (lf LazyFrame) GroupBy(keys ...Expr) GroupBy {
	return GroupBy{frame: lf, keys: unwrapExprs(keys)}
}

// GroupBy is a pending grouped aggregation.
type GroupBy struct {
	frame         LazyFrame
	keys          []logical.Expr
	maintainOrder bool
}

// MaintainOrder makes group output order follow the first appearance of
// each key in the input.
func (g GroupBy) MaintainOrder() GroupBy {
	g.maintainOrder = true
	return g
}

// Agg evaluates one aggregation expression per output column within each
// group.
func (g GroupBy) Agg(aggs ...Expr) LazyFrame {
	node := logical.NewAggregate(g.frame.plan, g.keys, unwrapExprs(aggs))
	node.MaintainOrder = g.maintainOrder
	return g.frame.derive(node)
}

// JoinHow selects the join strategy.
type JoinHow = logical.JoinType

const (
	// JoinInner keeps the rows with a key match on both sides.
	JoinInner = logical.JoinTypeInner

	// JoinLeft keeps every left row, null-padding right columns where no
	// match exists.
	JoinLeft = logical.JoinTypeLeft
)

// JoinOpts configures [LazyFrame.Join]. Set either On or both LeftOn and
// RightOn; On wins when both are given. Suffix renames right-side columns
// colliding with left-side names; empty means "_right".
type JoinOpts struct {
	On      []Expr
	LeftOn  []Expr
	RightOn []Expr
	How     JoinHow
	Suffix  string
}

// Join combines two frames on equality of the key expressions.
func (lf LazyFrame) Join(other LazyFrame, opts JoinOpts) LazyFrame {
	leftOn, rightOn := opts.LeftOn, opts.RightOn
	if len(opts.On) > 0 {
		leftOn, rightOn = opts.On, opts.On
	}
	node := logical.NewJoin(lf.plan, other.plan, unwrapExprs(leftOn), unwrapExprs(rightOn), opts.How)
	node.Suffix = opts.Suffix

	out := lf.derive(node)
	out.closers = append(append([]closer(nil), lf.closers...), other.closers...)
	return out
}

// Sort orders rows ascending by the given expressions, nulls first. Use
// [LazyFrame.SortBy] for per-expression directions.
func (lf LazyFrame) Sort(by ...Expr) LazyFrame {
	return lf.derive(logical.NewSort(lf.plan, unwrapExprs(by), nil, false))
}

// SortBy orders rows by the given expressions. descending may be empty
// (ascending everywhere), hold a single value applying to every
// expression, or match len(by); any other length fails at collect with
// [ErrInvalidParameter]. With nullsLast, nulls sort after every non-null
// value instead of before.
func (lf LazyFrame) SortBy(by []Expr, descending []bool, nullsLast bool) LazyFrame {
	return lf.derive(logical.NewSort(lf.plan, unwrapExprs(by), descending, nullsLast))
}

// Slice keeps length rows starting at offset. A negative length keeps
// everything from offset on; a negative offset fails at collect with
// [ErrInvalidParameter].
func (lf LazyFrame) Slice(offset, length int64) LazyFrame {
	return lf.derive(logical.NewSlice(lf.plan, offset, length))
}

// Head keeps the first n rows (default 5).
func (lf LazyFrame) Head(n ...int64) LazyFrame {
	return lf.Slice(0, pickN(n, 5))
}

// Limit keeps the first n rows (default 5), an alias of [LazyFrame.Head].
func (lf LazyFrame) Limit(n ...int64) LazyFrame {
	return lf.Head(n...)
}

// Tail keeps the last n rows (default 5), in their original order.
func (lf LazyFrame) Tail(n ...int64) LazyFrame {
	bottom := lf.derive(logical.NewSlice(logical.NewReverse(lf.plan), 0, pickN(n, 5)))
	return bottom.Reverse()
}

// Reverse flips the row order.
func (lf LazyFrame) Reverse() LazyFrame {
	return lf.derive(logical.NewReverse(lf.plan))
}

// Rename replaces column names while keeping order, types, and values.
// Renames apply simultaneously, so swapping two names is well defined. A
// missing source name fails at collect with [ErrColumnNotFound], a
// resulting duplicate with [ErrDuplicate].
func (lf LazyFrame) Rename(mapping map[string]string) LazyFrame {
	names := slices.Sorted(maps.Keys(mapping))
	to := make([]string, len(names))
	for i, name := range names {
		to[i] = mapping[name]
	}
	return lf.derive(logical.NewRename(lf.plan, names, to))
}

// Drop removes the named columns. Absent names are ignored.
func (lf LazyFrame) Drop(names ...string) LazyFrame {
	return lf.Select(Exclude(names...))
}

// Cache marks this point of the plan for shared materialization: the
// subplan below runs at most once per collect even when the frame fans out
// into several downstream branches.
func (lf LazyFrame) Cache() LazyFrame {
	return lf.derive(logical.NewCache(lf.plan, ulid.Make().String()))
}

// Explain renders the logical plan and the optimized physical plan as
// text.
func (lf LazyFrame) Explain(opts ...CollectOpts) (string, error) {
	return defaultEngine().Explain(lf.plan, pickOpts(opts).flags())
}

// Collect executes the plan and materializes the result. Without options
// every optimization is enabled; see [CollectOpts].
func (lf LazyFrame) Collect(ctx context.Context, opts ...CollectOpts) (*DataFrame, error) {
	rec, err := defaultEngine().Collect(ctx, lf.plan, pickOpts(opts).flags())
	if err != nil {
		return nil, err
	}
	return newFrame(rec)
}

// Fetch collects at most n rows from the head of the frame, a debugging
// shortcut for Slice plus Collect.
func (lf LazyFrame) Fetch(ctx context.Context, n int64, opts ...CollectOpts) (*DataFrame, error) {
	return lf.Slice(0, n).Collect(ctx, opts...)
}

// CollectAsync starts the collect on a new goroutine and returns a handle
// immediately. Failures are delivered through the handle, never here, and
// abandoning the handle does not stop execution.
func (lf LazyFrame) CollectAsync(ctx context.Context, opts ...CollectOpts) *Future {
	return &Future{fut: defaultEngine().CollectAsync(ctx, lf.plan, pickOpts(opts).flags())}
}

// CollectResult starts the collect like [LazyFrame.CollectAsync] and wraps
// the handle for poll-style consumption.
func (lf LazyFrame) CollectResult(ctx context.Context, opts ...CollectOpts) *Result {
	return &Result{res: defaultEngine().CollectResult(ctx, lf.plan, pickOpts(opts).flags())}
}

// Concat stacks frames vertically in argument order. All frames must share
// one schema, checked at collect time with the usual vstack errors.
func Concat(frames ...LazyFrame) LazyFrame {
	var closers []closer
	for _, f := range frames {
		closers = append(closers, f.closers...)
	}
	return LazyFrame{plan: logical.NewUnion(plansOf(frames)), closers: closers}
}

// CollectAll executes independent frames on a shared bounded worker pool
// and returns their results in input order, regardless of completion
// order.
func CollectAll(ctx context.Context, frames []LazyFrame, opts ...CollectOpts) ([]*DataFrame, error) {
	recs, err := defaultEngine().CollectAll(ctx, plansOf(frames), pickOpts(opts).flags())
	if err != nil {
		return nil, err
	}
	return wrapFrames(recs)
}

// CollectAllAsync schedules [CollectAll] on a new goroutine and returns a
// handle immediately.
func CollectAllAsync(ctx context.Context, frames []LazyFrame, opts ...CollectOpts) *BatchFuture {
	return &BatchFuture{fut: defaultEngine().CollectAllAsync(ctx, plansOf(frames), pickOpts(opts).flags())}
}

// Select evaluates expressions against an empty one-row frame: the eager
// counterpart of [LazyFrame.Select] for literal-only expression lists.
// Column references have nothing to bind to and fail with
// [ErrColumnNotFound].
func Select(ctx context.Context, exprs ...Expr) (*DataFrame, error) {
	rec := array.NewRecord(arrow.NewSchema(nil, nil), nil, 1)
	src := source.NewInMemory("select", rec)
	rec.Release()
	defer src.Release()

	lf := LazyFrame{plan: logical.NewProjection(logical.NewMakeTable(src), unwrapExprs(exprs))}
	return lf.Collect(ctx)
}

func plansOf(frames []LazyFrame) []logical.Plan {
	plans := make([]logical.Plan, len(frames))
	for i, f := range frames {
		plans[i] = f.plan
	}
	return plans
}

func wrapFrames(recs []arrow.Record) ([]*DataFrame, error) {
	frames := make([]*DataFrame, len(recs))
	for i, rec := range recs {
		df, err := newFrame(rec)
		if err != nil {
			for _, done := range frames[:i] {
				done.Release()
			}
			for _, rest := range recs[i+1:] {
				rest.Release()
			}
			return nil, err
		}
		frames[i] = df
	}
	return frames, nil
}

// Future resolves to the frame produced by a backgrounded collect.
type Future struct {
	fut  *engine.Future[arrow.Record]
	once sync.Once
	df   *DataFrame
	err  error
}

// ID identifies the scheduled collect. Log lines emitted by it carry the
// same value under the query_id field.
func (f *Future) ID() string { return f.fut.ID() }

// Done reports whether the collect has finished.
func (f *Future) Done() bool { return f.fut.Done() }

// Await blocks until the collect finishes or ctx is canceled. Cancelation
// abandons the handle; the collect keeps running with the context it was
// scheduled under. After completion every Await returns the same frame.
func (f *Future) Await(ctx context.Context) (*DataFrame, error) {
	rec, err := f.fut.Await(ctx)
	if err != nil {
		return nil, err
	}
	f.once.Do(func() { f.df, f.err = newFrame(rec) })
	return f.df, f.err
}

// BatchFuture resolves to the frames produced by a backgrounded
// [CollectAll], one per input frame in input order.
type BatchFuture struct {
	fut  *engine.Future[[]arrow.Record]
	once sync.Once
	dfs  []*DataFrame
	err  error
}

// ID identifies the scheduled collect.
func (f *BatchFuture) ID() string { return f.fut.ID() }

// Done reports whether every collect has finished.
func (f *BatchFuture) Done() bool { return f.fut.Done() }

// Await blocks until every collect finishes or ctx is canceled. After
// completion every Await returns the same frames.
func (f *BatchFuture) Await(ctx context.Context) ([]*DataFrame, error) {
	recs, err := f.fut.Await(ctx)
	if err != nil {
		return nil, err
	}
	f.once.Do(func() { f.dfs, f.err = wrapFrames(recs) })
	return f.dfs, f.err
}

// Result is a poll-style handle over a backgrounded collect, for callers
// that cannot block on a context.
type Result struct {
	res  *engine.Result
	once sync.Once
	df   *DataFrame
	err  error
}

// Ready reports whether the collect has finished.
func (r *Result) Ready() bool { return r.res.Ready() }

// Get returns the collected frame. With block set it waits up to timeout,
// or forever when timeout is not positive; otherwise it returns
// [ErrNotReady] while the collect is still running. An elapsed timeout
// returns [ErrTimeout]. Once the collect finishes every Get returns the
// same frame.
func (r *Result) Get(block bool, timeout time.Duration) (*DataFrame, error) {
	rec, err := r.res.Get(block, timeout)
	if err != nil {
		return nil, err
	}
	r.once.Do(func() { r.df, r.err = newFrame(rec) })
	return r.df, r.err
}
