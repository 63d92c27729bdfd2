package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"text/tabwriter"
	"time"

	"github.com/axiomhq/hyperloglog"
	"github.com/dustin/go-humanize"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/influxdata/tdigest"

	"github.com/AmirulAndalib/polars"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
}

// columnStats accumulates one column's sketches: a t-digest for quantiles
// and a hyperloglog for the distinct estimate. Both are streaming, so the
// pass stays one row at a time regardless of column size.
type columnStats struct {
	field    polars.Field
	digest   *tdigest.TDigest
	distinct *hyperloglog.Sketch

	count int64
	nulls int64
	sum   float64
	min   float64
	max   float64
}

func newColumnStats(f polars.Field) (*columnStats, error) {
	sketch, err := hyperloglog.NewSketch(14, true)
	if err != nil {
		return nil, err
	}
	return &columnStats{
		field:    f,
		digest:   tdigest.New(),
		distinct: sketch,
		min:      math.Inf(1),
		max:      math.Inf(-1),
	}, nil
}

func (s *columnStats) observe(v any) {
	if v == nil {
		s.nulls++
		return
	}
	s.count++
	s.distinct.Insert(fmt.Appendf(nil, "%v", v))
	if x, ok := asFloat(v); ok {
		s.digest.Add(x, 1)
		s.sum += x
		s.min = math.Min(s.min, x)
		s.max = math.Max(s.max, x)
	}
}

func (s *columnStats) numeric() bool { return s.field.Type.IsNumeric() && s.count > 0 }

func asFloat(v any) (float64, bool) {
	switch v := v.(type) {
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

func runStats(ctx context.Context, logger log.Logger, lf polars.LazyFrame, qs quantiles, path string) error {
	start := time.Now()
	df, err := lf.Collect(ctx)
	if err != nil {
		return err
	}
	defer df.Release()

	rows, err := df.Rows()
	if err != nil {
		return err
	}

	fields := df.Schema().Fields
	stats := make([]*columnStats, len(fields))
	for i, f := range fields {
		if stats[i], err = newColumnStats(f); err != nil {
			return err
		}
	}
	for _, row := range rows {
		for i, v := range row {
			stats[i].observe(v)
		}
	}
	level.Debug(logger).Log("msg", "statistics pass done", "rows", df.Height(), "duration", time.Since(start))

	if fi, err := os.Stat(path); err == nil {
		fmt.Printf("file  %s\nsize  %s\nrows  %s\n\n", path,
			humanize.Bytes(uint64(fi.Size())), humanize.Comma(df.Height()))
	}

	w := newTable(os.Stdout)
	fmt.Fprint(w, "column\tdtype\tnulls\t~distinct\tmin\tmean\tmax")
	for _, q := range qs {
		fmt.Fprintf(w, "\tp%g", q*100)
	}
	fmt.Fprintln(w)

	for _, s := range stats {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s", s.field.Name, s.field.Type,
			humanize.Comma(s.nulls), humanize.Comma(int64(s.distinct.Estimate())))
		if s.numeric() {
			fmt.Fprintf(w, "\t%s\t%s\t%s", cell(s.min), cell(s.sum/float64(s.count)), cell(s.max))
			for _, q := range qs {
				fmt.Fprintf(w, "\t%s", cell(s.digest.Quantile(q)))
			}
		} else {
			for range 3 + len(qs) {
				fmt.Fprint(w, "\t-")
			}
		}
		fmt.Fprintln(w)
	}
	return w.Flush()
}

func cell(v float64) string {
	return humanize.FormatFloat("#,###.####", v)
}
