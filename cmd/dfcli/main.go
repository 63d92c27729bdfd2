// Command dfcli inspects columnar data files with the lazy frame API:
// schemas, row counts, plan explains, and streaming per-column statistics
// over Parquet and NDJSON inputs.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/AmirulAndalib/polars"
)

// Config holds the tool options. Values resolve in three layers: compiled
// defaults, then the -config.file YAML, then command-line flags.
type Config struct {
	Format    string    `yaml:"format"`
	Rows      int64     `yaml:"rows"`
	InferRows int       `yaml:"infer_rows"`
	Quantiles quantiles `yaml:"quantiles"`
	LogLevel  string    `yaml:"log_level"`
}

func defaultConfig() Config {
	return Config{Quantiles: quantiles{0.5, 0.9, 0.99}}
}

// RegisterFlags registers the options on fs.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Format, "format", "auto", "input format: auto, parquet or ndjson")
	fs.Int64Var(&c.Rows, "rows", 10, "rows printed by the head command")
	fs.IntVar(&c.InferRows, "infer-rows", 0, "ndjson schema inference window; 0 uses the source default")
	fs.Var(&c.Quantiles, "quantiles", "comma-separated quantiles reported by the stats command")
	fs.StringVar(&c.LogLevel, "log.level", "info", "log verbosity: debug, info, warn or error")
}

// LoadFile overlays the YAML file onto the config.
func (c *Config) LoadFile(path string) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read config file")
	}
	return errors.Wrapf(yaml.Unmarshal(buf, c), "parse config file %s", path)
}

// quantiles is a []float64 flag holding values in [0, 1].
type quantiles []float64

func (q *quantiles) String() string {
	parts := make([]string, len(*q))
	for i, v := range *q {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

func (q *quantiles) Set(s string) error {
	var out quantiles
	for _, part := range strings.Split(s, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return errors.Errorf("invalid quantile %q", part)
		}
		if v < 0 || v > 1 {
			return errors.Errorf("quantile %v is outside [0, 1]", v)
		}
		out = append(out, v)
	}
	*q = out
	return nil
}

func main() {
	cfg := defaultConfig()

	fs := flag.NewFlagSet("dfcli", flag.ExitOnError)
	var configFile string
	fs.StringVar(&configFile, "config.file", "", "YAML file with default option values")
	cfg.RegisterFlags(fs)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), `dfcli inspects columnar data files.

usage: dfcli [flags] <command> <file>

commands:
  schema   column names and dtypes
  head     first rows rendered as a table
  count    total row count
  explain  logical and physical plan of the scan
  stats    per-column statistics from streaming sketches

flags:
`)
		fs.PrintDefaults()
	}

	// The config file loads between the two parses, so flags given on the
	// command line win over file values.
	if file := peekConfigFile(os.Args[1:]); file != "" {
		if err := cfg.LoadFile(file); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	_ = fs.Parse(os.Args[1:])

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	polars.SetWarnLogger(logger)

	args := fs.Args()
	if len(args) != 2 {
		fs.Usage()
		os.Exit(2)
	}
	command, path := args[0], args[1]

	if err := run(context.Background(), logger, cfg, command, path); err != nil {
		level.Error(logger).Log("msg", "command failed", "command", command, "file", path, "err", err)
		os.Exit(1)
	}
}

// peekConfigFile extracts -config.file ahead of the real parse.
func peekConfigFile(args []string) string {
	peek := flag.NewFlagSet("dfcli", flag.ContinueOnError)
	peek.SetOutput(io.Discard)
	peek.Usage = func() {}
	file := peek.String("config.file", "", "")
	cfg := defaultConfig()
	cfg.RegisterFlags(peek)
	_ = peek.Parse(args)
	return *file
}

func newLogger(lvl string) (log.Logger, error) {
	var opt level.Option
	switch lvl {
	case "debug":
		opt = level.AllowDebug()
	case "info":
		opt = level.AllowInfo()
	case "warn":
		opt = level.AllowWarn()
	case "error":
		opt = level.AllowError()
	default:
		return nil, errors.Errorf("unknown log level %q", lvl)
	}
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	return level.NewFilter(logger, opt), nil
}

func run(ctx context.Context, logger log.Logger, cfg Config, command, path string) error {
	lf, err := scan(logger, cfg, path)
	if err != nil {
		return err
	}
	defer func() { _ = lf.Close() }()

	switch command {
	case "schema":
		return runSchema(ctx, lf)
	case "head":
		return runHead(ctx, lf, cfg.Rows)
	case "count":
		return runCount(ctx, lf)
	case "explain":
		return runExplain(lf)
	case "stats":
		return runStats(ctx, logger, lf, cfg.Quantiles, path)
	default:
		return errors.Errorf("unknown command %q", command)
	}
}

// scan opens the file as a lazy frame, deciding the format from the
// extension unless one was forced.
func scan(logger log.Logger, cfg Config, path string) (polars.LazyFrame, error) {
	format := cfg.Format
	if format == "" || format == "auto" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".parquet":
			format = "parquet"
		case ".ndjson", ".jsonl", ".json":
			format = "ndjson"
		default:
			return polars.LazyFrame{}, errors.Errorf("cannot tell the format of %q from its extension; pass -format", path)
		}
	}

	level.Debug(logger).Log("msg", "scanning", "file", path, "format", format)
	switch format {
	case "parquet":
		return polars.ScanParquet(path)
	case "ndjson":
		return polars.ScanNDJSON(path, cfg.InferRows)
	default:
		return polars.LazyFrame{}, errors.Errorf("unknown format %q", format)
	}
}

func runSchema(ctx context.Context, lf polars.LazyFrame) error {
	df, err := lf.Fetch(ctx, 0)
	if err != nil {
		return err
	}
	defer df.Release()

	w := newTable(os.Stdout)
	fmt.Fprintln(w, "column\tdtype")
	for _, f := range df.Schema().Fields {
		fmt.Fprintf(w, "%s\t%s\n", f.Name, f.Type)
	}
	return w.Flush()
}

func runHead(ctx context.Context, lf polars.LazyFrame, rows int64) error {
	df, err := lf.Fetch(ctx, rows)
	if err != nil {
		return err
	}
	defer df.Release()
	fmt.Println(df)
	return nil
}

func runCount(ctx context.Context, lf polars.LazyFrame) error {
	df, err := lf.Select(polars.Len().Alias("rows")).Collect(ctx)
	if err != nil {
		return err
	}
	defer df.Release()

	rows, err := df.Rows()
	if err != nil {
		return err
	}
	fmt.Printf("%s rows\n", humanize.Comma(int64(rows[0][0].(uint64))))
	return nil
}

func runExplain(lf polars.LazyFrame) error {
	text, err := lf.Explain()
	if err != nil {
		return err
	}
	fmt.Print(text)
	return nil
}
