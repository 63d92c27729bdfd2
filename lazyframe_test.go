package polars

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/require"
)

func TestLazyFrameSelect(t *testing.T) {
	t.Run("columns and expressions", func(t *testing.T) {
		lf := salesFrame(t)
		out := collect(t, lf.Select(
			Col("region"),
			Col("units").Mul(Lit(2)).Alias("double"),
		))
		require.Equal(t, []string{"region", "double"}, columnNames(out))
		require.Equal(t, []any{int64(20), int64(40), int64(60), int64(80), int64(100), int64(120)}, column(t, out, "double"))
	})

	t.Run("aggregation collapses to one row", func(t *testing.T) {
		lf := salesFrame(t)
		out := collect(t, lf.Select(
			Col("units").Sum().Alias("total"),
			Col("price").Mean().Alias("avg"),
		))
		require.Equal(t, int64(1), out.Height())
		require.Equal(t, []any{int64(210)}, column(t, out, "total"))
		require.InDelta(t, 2.6, column(t, out, "avg")[0].(float64), 1e-12)
	})

	t.Run("scalar broadcasts against full columns", func(t *testing.T) {
		lf := salesFrame(t)
		out := collect(t, lf.Select(
			Col("region"),
			Col("units").Sum().Alias("total"),
		))
		require.Equal(t, int64(6), out.Height())
		require.Equal(t, []any{int64(210), int64(210), int64(210), int64(210), int64(210), int64(210)},
			column(t, out, "total"))
	})

	t.Run("mismatched lengths", func(t *testing.T) {
		lf := salesFrame(t)
		_, err := lf.Select(Col("units").Head(2), Col("region")).Collect(t.Context())
		require.ErrorIs(t, err, ErrShape)
		require.ErrorContains(t, err, "cannot combine series of length")
	})

	t.Run("with columns replaces in place and appends", func(t *testing.T) {
		lf := salesFrame(t)
		out := collect(t, lf.WithColumns(
			Col("units").Mul(Lit(10)).Alias("units"),
			Col("units").Mul(Col("price")).Alias("revenue"),
		))
		require.Equal(t, []string{"region", "units", "price", "revenue"}, columnNames(out))
		require.Equal(t, []any{int64(100), int64(200), int64(300), int64(400), int64(500), int64(600)},
			column(t, out, "units"))
		// The null price leaves a null revenue.
		require.Equal(t, []any{15.0, 40.0, nil, 160.0, 250.0, 30.0}, column(t, out, "revenue"))
	})
}

func TestLazyFrameFilter(t *testing.T) {
	t.Run("keeps true rows", func(t *testing.T) {
		lf := salesFrame(t)
		out := collect(t, lf.Filter(Col("units").Gt(Lit(25))))
		require.Equal(t, []any{int64(30), int64(40), int64(50), int64(60)}, column(t, out, "units"))
	})

	t.Run("null predicate rows drop", func(t *testing.T) {
		lf := salesFrame(t)
		out := collect(t, lf.Filter(Col("price").Gt(Lit(1.0))))
		require.Equal(t, []any{1.5, 2.0, 4.0, 5.0}, column(t, out, "price"))
	})

	t.Run("non boolean predicate", func(t *testing.T) {
		lf := salesFrame(t)
		_, err := lf.Filter(Col("units")).Collect(t.Context())
		require.ErrorIs(t, err, ErrCompute)
		require.ErrorContains(t, err, "filter predicate must be of type bool, got i64")
	})
}

func TestLazyFrameGroupBy(t *testing.T) {
	t.Run("maintain order", func(t *testing.T) {
		lf := salesFrame(t)
		out := collect(t, lf.GroupBy(Col("region")).MaintainOrder().Agg(
			Col("units").Sum().Alias("total"),
			Len().Alias("rows"),
		))
		require.Equal(t, []string{"region", "total", "rows"}, columnNames(out))
		require.Equal(t, []any{"east", "west", "north"}, column(t, out, "region"))
		require.Equal(t, []any{int64(100), int64(70), int64(40)}, column(t, out, "total"))
		require.Equal(t, []any{uint64(3), uint64(2), uint64(1)}, column(t, out, "rows"))
	})

	t.Run("unordered groups sorted after", func(t *testing.T) {
		lf := salesFrame(t)
		out := collect(t, lf.
			GroupBy(Col("region")).
			Agg(Col("units").Sum().Alias("total")).
			SortBy([]Expr{Col("total")}, []bool{true}, false))
		require.Equal(t, []any{int64(100), int64(70), int64(40)}, column(t, out, "total"))
		require.Equal(t, []any{"east", "west", "north"}, column(t, out, "region"))
	})

	t.Run("null aware mean per group", func(t *testing.T) {
		lf := salesFrame(t)
		out := collect(t, lf.GroupBy(Col("region")).MaintainOrder().Agg(
			Col("price").Mean().Alias("avg"),
		))
		// east prices are 1.5, null, 0.5: the null drops from the mean.
		avg := column(t, out, "avg")
		require.InDelta(t, 1.0, avg[0].(float64), 1e-12)
		require.InDelta(t, 3.5, avg[1].(float64), 1e-12)
		require.InDelta(t, 4.0, avg[2].(float64), 1e-12)
	})

	t.Run("duplicate output name", func(t *testing.T) {
		lf := salesFrame(t)
		_, err := lf.GroupBy(Col("region")).Agg(
			Col("units").Sum(),
			Col("price").Sum().Alias("units"),
		).Collect(t.Context())
		require.ErrorIs(t, err, ErrDuplicate)
	})
}

func regionOwners(t *testing.T) LazyFrame {
	t.Helper()
	df, err := NewDataFrame(
		Series{Name: "region", Values: []string{"east", "west", "south"}},
		Series{Name: "owner", Values: []string{"amy", "bob", "cal"}},
	)
	require.NoError(t, err)
	lf := df.Lazy()
	t.Cleanup(func() {
		require.NoError(t, lf.Close())
		df.Release()
	})
	return lf
}

func TestLazyFrameJoin(t *testing.T) {
	t.Run("inner", func(t *testing.T) {
		left, right := salesFrame(t), regionOwners(t)
		out := collect(t, left.
			Join(right, JoinOpts{On: []Expr{Col("region")}, How: JoinInner}).
			SortBy([]Expr{Col("units")}, nil, false))
		require.Equal(t, []string{"region", "units", "price", "owner"}, columnNames(out))
		// north has no owner row and drops out.
		require.Equal(t, []any{int64(10), int64(20), int64(30), int64(50), int64(60)}, column(t, out, "units"))
		require.Equal(t, []any{"amy", "bob", "amy", "bob", "amy"}, column(t, out, "owner"))
	})

	t.Run("left pads misses with null", func(t *testing.T) {
		left, right := salesFrame(t), regionOwners(t)
		out := collect(t, left.
			Join(right, JoinOpts{On: []Expr{Col("region")}, How: JoinLeft}).
			SortBy([]Expr{Col("units")}, nil, false))
		require.Equal(t, int64(6), out.Height())
		require.Equal(t, []any{"amy", "bob", "amy", nil, "bob", "amy"}, column(t, out, "owner"))
	})

	t.Run("suffix disambiguates collisions", func(t *testing.T) {
		left := salesFrame(t)
		df, err := NewDataFrame(
			Series{Name: "region", Values: []string{"east", "west"}},
			Series{Name: "units", Values: []int64{-1, -2}},
		)
		require.NoError(t, err)
		right := df.Lazy()
		t.Cleanup(func() {
			require.NoError(t, right.Close())
			df.Release()
		})

		out := collect(t, left.
			Join(right, JoinOpts{On: []Expr{Col("region")}, How: JoinInner}).
			SortBy([]Expr{Col("units")}, nil, false))
		require.Equal(t, []string{"region", "units", "price", "units_right"}, columnNames(out))

		custom := collect(t, left.Join(right, JoinOpts{On: []Expr{Col("region")}, How: JoinInner, Suffix: "_r"}))
		require.Contains(t, columnNames(custom), "units_r")
	})

	t.Run("validation", func(t *testing.T) {
		left, right := salesFrame(t), regionOwners(t)

		_, err := left.Join(right, JoinOpts{How: JoinInner}).Collect(t.Context())
		require.ErrorIs(t, err, ErrInvalidParameter)
		require.ErrorContains(t, err, "join requires at least one key")

		_, err = left.Join(right, JoinOpts{
			LeftOn:  []Expr{Col("region"), Col("units")},
			RightOn: []Expr{Col("region")},
			How:     JoinInner,
		}).Collect(t.Context())
		require.ErrorIs(t, err, ErrInvalidParameter)
		require.ErrorContains(t, err, "left_on (2) and right_on (1)")
	})
}

func TestLazyFrameSort(t *testing.T) {
	t.Run("multi key ascending", func(t *testing.T) {
		lf := salesFrame(t)
		out := collect(t, lf.Sort(Col("region"), Col("units")))
		require.Equal(t, []any{"east", "east", "east", "north", "west", "west"}, column(t, out, "region"))
		require.Equal(t, []any{int64(10), int64(30), int64(60), int64(40), int64(20), int64(50)}, column(t, out, "units"))
	})

	t.Run("descending broadcast", func(t *testing.T) {
		lf := salesFrame(t)
		out := collect(t, lf.SortBy([]Expr{Col("units")}, []bool{true}, false))
		require.Equal(t, []any{int64(60), int64(50), int64(40), int64(30), int64(20), int64(10)}, column(t, out, "units"))
	})

	t.Run("null placement", func(t *testing.T) {
		lf := salesFrame(t)
		first := collect(t, lf.SortBy([]Expr{Col("price")}, nil, false))
		require.Equal(t, []any{nil, 0.5, 1.5, 2.0, 4.0, 5.0}, column(t, first, "price"))

		last := collect(t, lf.SortBy([]Expr{Col("price")}, nil, true))
		require.Equal(t, []any{0.5, 1.5, 2.0, 4.0, 5.0, nil}, column(t, last, "price"))
	})

	t.Run("descending length mismatch", func(t *testing.T) {
		lf := salesFrame(t)
		_, err := lf.SortBy([]Expr{Col("units")}, []bool{true, false}, false).Collect(t.Context())
		require.ErrorIs(t, err, ErrInvalidParameter)
		require.ErrorContains(t, err, "the length of `descending` (2) does not match the length of `by` (1)")
	})
}

func TestLazyFrameSliceOps(t *testing.T) {
	lf := salesFrame(t)

	t.Run("slice", func(t *testing.T) {
		out := collect(t, lf.Slice(1, 2))
		require.Equal(t, []any{int64(20), int64(30)}, column(t, out, "units"))
	})

	t.Run("negative length keeps the rest", func(t *testing.T) {
		out := collect(t, lf.Slice(2, -1))
		require.Equal(t, []any{int64(30), int64(40), int64(50), int64(60)}, column(t, out, "units"))
	})

	t.Run("negative offset", func(t *testing.T) {
		_, err := lf.Slice(-1, 2).Collect(t.Context())
		require.ErrorIs(t, err, ErrInvalidParameter)
		require.ErrorContains(t, err, "negative slice offset")
	})

	t.Run("head and limit default to five", func(t *testing.T) {
		require.Equal(t, int64(5), collect(t, lf.Head()).Height())
		require.Equal(t, int64(5), collect(t, lf.Limit()).Height())
		require.Equal(t, []any{int64(10), int64(20)}, column(t, collect(t, lf.Head(2)), "units"))
	})

	t.Run("tail keeps original order", func(t *testing.T) {
		out := collect(t, lf.Tail(2))
		require.Equal(t, []any{int64(50), int64(60)}, column(t, out, "units"))
		require.Equal(t, int64(5), collect(t, lf.Tail()).Height())
	})

	t.Run("reverse", func(t *testing.T) {
		out := collect(t, lf.Reverse())
		require.Equal(t, []any{int64(60), int64(50), int64(40), int64(30), int64(20), int64(10)}, column(t, out, "units"))
	})

	t.Run("fetch", func(t *testing.T) {
		out, err := lf.Fetch(t.Context(), 3)
		require.NoError(t, err)
		defer out.Release()
		require.Equal(t, int64(3), out.Height())
	})
}

func TestLazyFrameRename(t *testing.T) {
	t.Run("rename keeps order and values", func(t *testing.T) {
		lf := salesFrame(t)
		out := collect(t, lf.Rename(map[string]string{"units": "qty"}))
		require.Equal(t, []string{"region", "qty", "price"}, columnNames(out))
		require.Equal(t, []any{int64(10), int64(20), int64(30), int64(40), int64(50), int64(60)}, column(t, out, "qty"))
	})

	t.Run("swap is simultaneous", func(t *testing.T) {
		lf := salesFrame(t)
		out := collect(t, lf.Rename(map[string]string{"units": "price", "price": "units"}))
		require.Equal(t, []string{"region", "price", "units"}, columnNames(out))
		require.Equal(t, []any{int64(10), int64(20), int64(30), int64(40), int64(50), int64(60)}, column(t, out, "price"))
		require.Equal(t, []any{1.5, 2.0, nil, 4.0, 5.0, 0.5}, column(t, out, "units"))
	})

	t.Run("missing source", func(t *testing.T) {
		lf := salesFrame(t)
		_, err := lf.Rename(map[string]string{"nope": "x"}).Collect(t.Context())
		require.ErrorIs(t, err, ErrColumnNotFound)
	})

	t.Run("conflicting target", func(t *testing.T) {
		lf := salesFrame(t)
		_, err := lf.Rename(map[string]string{"units": "price"}).Collect(t.Context())
		require.ErrorIs(t, err, ErrDuplicate)
		require.ErrorContains(t, err, `the name "price" is duplicate`)
	})

	t.Run("drop ignores absent names", func(t *testing.T) {
		lf := salesFrame(t)
		out := collect(t, lf.Drop("price", "absent"))
		require.Equal(t, []string{"region", "units"}, columnNames(out))
	})
}

func TestLazyFrameConcat(t *testing.T) {
	t.Run("stacks in order", func(t *testing.T) {
		lf := salesFrame(t)
		top, bottom := lf.Head(2), lf.Tail(2)
		out := collect(t, Concat(top, bottom))
		require.Equal(t, []any{int64(10), int64(20), int64(50), int64(60)}, column(t, out, "units"))
	})

	t.Run("schema mismatch", func(t *testing.T) {
		lf := salesFrame(t)
		_, err := Concat(lf, lf.Drop("price")).Collect(t.Context())
		require.ErrorIs(t, err, ErrShape)
		require.ErrorContains(t, err, "cannot vstack frames of width")
	})

	t.Run("cached base fans out", func(t *testing.T) {
		lf := salesFrame(t)
		base := lf.WithColumns(Col("units").Mul(Lit(2)).Alias("double")).Cache()
		big := base.Filter(Col("units").Gt(Lit(30)))
		small := base.Filter(Col("units").Lte(Lit(30)))

		out := collect(t, Concat(big, small).SortBy([]Expr{Col("units")}, nil, false))
		require.Equal(t, int64(6), out.Height())
		require.Equal(t, []any{int64(20), int64(40), int64(60), int64(80), int64(100), int64(120)},
			column(t, out, "double"))
	})
}

func TestLazyFrameCollectParity(t *testing.T) {
	lf := salesFrame(t)
	query := lf.
		Filter(Col("price").IsNotNull()).
		WithColumns(Col("units").Mul(Col("price")).Alias("revenue")).
		GroupBy(Col("region")).MaintainOrder().
		Agg(Col("revenue").Sum().Alias("total")).
		SortBy([]Expr{Col("total")}, []bool{true}, false)

	want := frameRows(t, collect(t, query))
	require.Len(t, want, 3)

	for name, opts := range map[string]CollectOpts{
		"no optimization": {TypeCoercion: true, SimplifyExpression: true, NoOptimization: true},
		"streaming":       func() CollectOpts { o := DefaultCollectOpts(); o.Streaming = true; return o }(),
		"no subplan elim": func() CollectOpts { o := DefaultCollectOpts(); o.CommSubplanElim = false; o.CommSubexprElim = false; return o }(),
	} {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, want, frameRows(t, collect(t, query, opts)))
		})
	}
}

func TestLazyFrameExplain(t *testing.T) {
	lf := salesFrame(t)
	plan, err := lf.Filter(Col("units").Gt(Lit(25))).Select(Col("region")).Explain()
	require.NoError(t, err)
	require.Contains(t, plan, "Logical plan:")
	require.Contains(t, plan, "Physical plan:")
	require.Contains(t, plan, "TableScan")
}

func TestScanNDJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.ndjson")
	lines := `{"service":"api","latency":12,"ok":true}
{"service":"db","latency":30.5,"ok":false}

{"service":"cache","latency":7,"ok":null}
`
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))

	lf, err := ScanNDJSON(path, 0)
	require.NoError(t, err)

	out := collect(t, lf)
	require.Equal(t, []string{"service", "latency", "ok"}, columnNames(out))
	// An integer and a float observation unify to f64.
	require.Equal(t, Float64, out.Schema().Fields[1].Type)
	require.Equal(t, []any{"api", "db", "cache"}, column(t, out, "service"))
	require.Equal(t, []any{12.0, 30.5, 7.0}, column(t, out, "latency"))
	require.Equal(t, []any{true, false, nil}, column(t, out, "ok"))

	// The file reopens per collect, so a second pass sees the same rows.
	require.Equal(t, int64(3), collect(t, lf).Height())

	t.Run("pushed filter", func(t *testing.T) {
		fast := collect(t, lf.Filter(Col("latency").Lt(Lit(20.0))))
		require.Equal(t, []any{"api", "cache"}, column(t, fast, "service"))
	})
}

func TestScanParquet(t *testing.T) {
	type tripRow struct {
		City string  `parquet:"city"`
		Km   float64 `parquet:"km"`
		N    int64   `parquet:"n"`
	}
	path := filepath.Join(t.TempDir(), "trips.parquet")
	f, err := os.Create(path)
	require.NoError(t, err)
	w := parquet.NewGenericWriter[tripRow](f)
	_, err = w.Write([]tripRow{
		{City: "oslo", Km: 12.5, N: 3},
		{City: "bergen", Km: 101.0, N: 1},
		{City: "oslo", Km: 7.25, N: 2},
	})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	lf, err := ScanParquet(path)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, lf.Close()) })

	out := collect(t, lf.
		GroupBy(Col("city")).MaintainOrder().
		Agg(Col("km").Sum().Alias("km"), Col("n").Sum().Alias("n")))
	require.Equal(t, []any{"oslo", "bergen"}, column(t, out, "city"))
	require.Equal(t, []any{19.75, 101.0}, column(t, out, "km"))
	require.Equal(t, []any{int64(5), int64(1)}, column(t, out, "n"))
}

func TestEagerSelect(t *testing.T) {
	out, err := Select(t.Context(),
		Lit(1).Alias("one"),
		Lit("x").Alias("tag"),
	)
	require.NoError(t, err)
	defer out.Release()
	require.Equal(t, int64(1), out.Height())
	require.Equal(t, [][]any{{int64(1), "x"}}, frameRows(t, out))

	_, err = Select(t.Context(), Col("missing"))
	require.ErrorIs(t, err, ErrColumnNotFound)
}
