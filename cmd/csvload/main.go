// Command csvload imports delimited text files from a directory into one
// table whose columns follow the files' headers.
//
//	csvload -config pipeline.json
//	csvload -kind sqlite -dsn file:news.db -dir ./csv -table articles
//	csvload -dry-run -dir ./csv
//
// -dry-run inspects the input files and prints what an import would see
// without connecting to the database.
//
// Exit status is 1 only when the run cannot proceed (bad config, lost
// database connection); files that fail individually are logged and skipped.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"csvload/internal/config"
	"csvload/internal/dedup"
	"csvload/internal/importer"
	"csvload/internal/logging"
	"csvload/internal/metrics"
	"csvload/internal/metrics/datadog"
	"csvload/internal/probe"
	"csvload/internal/source"
	"csvload/internal/storage"
	"csvload/internal/trigger"

	// register every storage backend; the config picks one.
	_ "csvload/internal/storage/all"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type flags struct {
	cfgPath        string
	envFile        string
	validate       bool
	verbose        bool
	once           bool
	dryRun         bool
	sample         int
	metricsBackend string
	dir            string
	table          string
	kind           string
	dsn            string
}

func parseFlags(args []string, stderr io.Writer) (flags, error) {
	var f flags
	fl := flag.NewFlagSet("csvload", flag.ContinueOnError)
	fl.SetOutput(stderr)

	fl.StringVar(&f.cfgPath, "config", "", "pipeline config JSON path (optional; env and flags also configure)")
	fl.StringVar(&f.envFile, "env-file", ".env", "dotenv file loaded before the config when it exists")
	fl.BoolVar(&f.validate, "validate", false, "validate the configuration and exit")
	fl.BoolVar(&f.verbose, "v", false, "enable debug logs")
	fl.BoolVar(&f.once, "once", false, "run once even if the config enables watch or schedule")
	fl.BoolVar(&f.dryRun, "dry-run", false, "inspect input files and print a report; no database access")
	fl.IntVar(&f.sample, "sample", 0, "with -dry-run, read at most this many rows per file (0 = all)")
	fl.StringVar(&f.metricsBackend, "metrics-backend", "", "metrics backend: datadog or none (default $METRICS_BACKEND)")
	fl.StringVar(&f.dir, "dir", "", "input directory (overrides source.dir)")
	fl.StringVar(&f.table, "table", "", "destination table (overrides storage.table)")
	fl.StringVar(&f.kind, "kind", "", "storage backend (overrides storage.kind)")
	fl.StringVar(&f.dsn, "dsn", "", "storage DSN (overrides storage.dsn)")

	if err := fl.Parse(args); err != nil {
		return f, err
	}
	if fl.NArg() > 0 {
		return f, fmt.Errorf("unexpected arguments: %v", fl.Args())
	}
	if f.sample < 0 {
		return f, fmt.Errorf("-sample must not be negative")
	}
	return f, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	f, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "csvload: %v\n", err)
		return 2
	}

	if f.envFile != "" {
		if err := godotenv.Load(f.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(stderr, "csvload: load %s: %v\n", f.envFile, err)
			return 1
		}
	}

	p, err := config.Load(f.cfgPath)
	if err != nil {
		fmt.Fprintf(stderr, "csvload: %v\n", err)
		return 1
	}
	applyFlags(p, f)

	slog.SetDefault(logging.New(stderr, p.Logging.Level, p.Logging.Format))

	issues := config.Validate(p)
	if f.dryRun {
		issues = withoutStorage(issues)
	}
	for _, iss := range issues {
		fmt.Fprintln(stderr, iss.String())
	}
	if config.HasErrors(issues) {
		fmt.Fprintf(stderr, "csvload: configuration is invalid\n")
		return 1
	}
	if f.validate {
		fmt.Fprintf(stderr, "csvload: configuration is valid\n")
		return 0
	}

	layout, err := storage.NewLayout(p.Storage.Table, p.Storage.IDColumn, p.Storage.KeyColumn)
	if err != nil {
		fmt.Fprintf(stderr, "csvload: %v\n", err)
		return 1
	}
	scheme, err := dedup.ParseScheme(p.Ingest.Fingerprint)
	if err != nil {
		fmt.Fprintf(stderr, "csvload: %v\n", err)
		return 1
	}

	if f.dryRun {
		return dryRun(ctx, p, scheme, f.sample, stdout)
	}

	closeMetrics := setupMetrics(ctx, f.metricsBackend, p.Job)
	defer closeMetrics()

	slog.Debug("pipeline", "config", p.String())

	sess, err := storage.Open(ctx, storage.Config{Kind: p.Storage.Kind, DSN: p.Storage.DSN})
	if err != nil {
		slog.Error("open storage", "kind", p.Storage.Kind, "err", err)
		return 1
	}
	defer sess.Close()

	im := importer.New(sess, layout, importer.Options{
		Scheme:      scheme,
		KeepPartial: p.Ingest.KeepPartial,
		Parser:      p.Parser.Options,
	})
	pass := newPass(im, p.Source)

	if err := pass(ctx, "startup"); err != nil {
		return 1
	}

	if f.once || (!p.Runtime.Watch && p.Runtime.Schedule == "") {
		return 0
	}

	serial := trigger.Serialize(func(ctx context.Context, reason string) error {
		err := pass(ctx, reason)
		if err := metrics.Flush(); err != nil {
			slog.Warn("metrics flush", "err", err)
		}
		return err
	})

	g, gctx := errgroup.WithContext(ctx)
	if p.Runtime.Watch {
		g.Go(func() error {
			return trigger.Watch(gctx, p.Source.Dir, p.Runtime.Debounce.Duration,
				func(name string) bool { return source.Match(name, p.Source.Extensions) }, serial)
		})
	}
	if p.Runtime.Schedule != "" {
		g.Go(func() error { return trigger.Schedule(gctx, p.Runtime.Schedule, serial) })
	}
	if err := g.Wait(); err != nil {
		slog.Error("trigger stopped", "err", err)
		return 1
	}
	return 0
}

// withoutStorage drops findings about the connection, which a dry run never
// opens. The table layout is still checked.
func withoutStorage(issues []config.Issue) []config.Issue {
	out := issues[:0:0]
	for _, iss := range issues {
		if iss.Path == "storage.kind" || iss.Path == "storage.dsn" {
			continue
		}
		out = append(out, iss)
	}
	return out
}

func dryRun(ctx context.Context, p *config.Pipeline, scheme dedup.Scheme, sample int, stdout io.Writer) int {
	files, err := source.Discover(p.Source.Dir, p.Source.Extensions)
	if err != nil {
		slog.Error("discover input files", "dir", p.Source.Dir, "err", err)
		return 1
	}
	files = source.WithEncoding(files, p.Source.Encoding)

	opt := probe.Options{Parser: p.Parser.Options, Scheme: scheme, MaxRows: sample}
	for i, file := range files {
		if i > 0 {
			fmt.Fprintln(stdout)
		}
		rep, err := probe.Inspect(ctx, file, opt)
		if err != nil {
			if ctx.Err() != nil {
				return 1
			}
			fmt.Fprintf(stdout, "file: %s\nskipped: %v\n", file.Name, err)
			continue
		}
		if err := probe.Format(stdout, rep); err != nil {
			slog.Error("write report", "err", err)
			return 1
		}
	}
	return 0
}

func applyFlags(p *config.Pipeline, f flags) {
	if f.dir != "" {
		p.Source.Dir = f.dir
	}
	if f.table != "" {
		p.Storage.Table = f.table
	}
	if f.kind != "" {
		p.Storage.Kind = f.kind
	}
	if f.dsn != "" {
		p.Storage.DSN = os.ExpandEnv(f.dsn)
	}
	if f.verbose {
		p.Logging.Level = "debug"
	}
}

// newPass returns one discover-and-import pass. Only fatal errors are
// returned; per-file failures are logged.
func newPass(im *importer.Importer, src config.Source) trigger.RunFunc {
	return func(ctx context.Context, reason string) error {
		ctx = logging.WithRunID(ctx, uuid.NewString())
		log := logging.WithFields(ctx, "reason", reason)
		start := time.Now()

		files, err := source.Discover(src.Dir, src.Extensions)
		if err != nil {
			log.Error("discover input files", "err", err)
			return err
		}
		files = source.WithEncoding(files, src.Encoding)
		log.Info("run started", "dir", src.Dir, "files", len(files))

		sum, err := im.Run(ctx, files, func(o importer.Outcome) { logOutcome(ctx, o) })
		log.Info("run finished",
			"files", sum.Files,
			"imported", sum.Imported,
			"skipped", sum.Skipped,
			"failed", sum.Failed,
			"inserted", sum.Inserted,
			"duplicates", sum.Duplicates,
			"columns_added", sum.ColumnsAdded,
			"duration", time.Since(start).Truncate(time.Millisecond),
		)
		if err != nil {
			log.Error("run aborted", "err", err)
			return err
		}
		return nil
	}
}

func logOutcome(ctx context.Context, o importer.Outcome) {
	log := logging.WithFields(ctx, "file", o.File, "duration", o.Duration.Truncate(time.Millisecond))
	if len(o.Dropped) > 0 {
		log.Warn("header fields dropped", "positions", o.Dropped)
	}

	switch o.Status() {
	case "ok":
		log.Info("file imported",
			"header", o.Header,
			"columns", o.Columns,
			"created", o.Created,
			"key_added", o.KeyAdded,
			"columns_added", o.ColumnsAdded,
			"inserted", o.Inserted,
			"duplicates", o.Duplicates,
			"padded", o.Padded,
			"truncated", o.Truncated,
		)
	case "skipped":
		log.Warn("file skipped", "err", o.Err)
	default:
		log.Error("file failed",
			"stage", importer.StageOf(o.Err),
			"err", o.Err,
			"columns_added", o.ColumnsAdded,
			"inserted", o.Inserted,
			"rolled_back", o.RolledBack,
		)
	}
}

// setupMetrics installs the selected backend and returns its shutdown func.
func setupMetrics(ctx context.Context, name, job string) func() {
	if name == "" {
		name = os.Getenv("METRICS_BACKEND")
	}
	switch name {
	case "datadog":
		if job == "" {
			job = "csvload"
		}
		tags := datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS"))
		b, err := datadog.NewBackend(context.WithoutCancel(ctx), datadog.Options{
			JobName:    job,
			Tags:       tags,
			FlushEvery: 60 * time.Second,
		})
		if err != nil {
			slog.Warn("metrics: datadog init failed; metrics disabled", "err", err)
			return func() {}
		}
		slog.Debug("metrics: datadog enabled", "job", job, "tags", tags)
		metrics.SetBackend(b)
		return func() {
			if err := b.Close(); err != nil {
				slog.Warn("metrics: datadog close", "err", err)
			}
			metrics.SetBackend(nil)
		}
	case "", "none":
		return func() {}
	default:
		slog.Warn("metrics: unknown backend; metrics disabled", "backend", name)
		return func() {}
	}
}
