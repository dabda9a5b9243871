package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"dtindex/internal/config"
	"dtindex/internal/exporter"
	"dtindex/internal/infrastructure"
	"dtindex/internal/merge"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	configPath string
	primary    string
	secondary  string
	out        string
	report     string
	keyWidth   int
	force      bool
	verbose    bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("dtmerge", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "path to config.yaml")
	fs.StringVar(&opts.primary, "primary", "", "index workbook (overrides config)")
	fs.StringVar(&opts.secondary, "secondary", "", "industry classification workbook (overrides config)")
	fs.StringVar(&opts.out, "out", "", "merged workbook to write (overrides config)")
	fs.StringVar(&opts.report, "report", "", "also write the match report as CSV to this path")
	fs.IntVar(&opts.keyWidth, "key-width", -1, "zero-pad identifiers to this many digits before joining")
	fs.BoolVar(&opts.force, "force", false, "replace an existing output workbook")
	fs.BoolVar(&opts.verbose, "v", false, "verbose logging")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() > 0 {
		return opts, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return opts, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "dtmerge: %v\n", err)
		return 2
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "dtmerge: %v\n", err)
		return 2
	}
	if opts.primary != "" {
		cfg.Merge.PrimaryPath = opts.primary
	}
	if opts.secondary != "" {
		cfg.Merge.SecondaryPath = opts.secondary
	}
	if opts.out != "" {
		cfg.Merge.OutputPath = opts.out
	}
	if opts.keyWidth >= 0 {
		cfg.Merge.KeyWidth = opts.keyWidth
	}

	cfg.Logging.Output = "console"
	if opts.verbose {
		cfg.Logging.Level = "debug"
	}
	logger, err := infrastructure.NewLogger(cfg.Logging, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "dtmerge: %v\n", err)
		return 1
	}

	paths, err := config.GetPaths()
	if err != nil {
		logger.Error("Failed to initialize paths", slog.String("error", err.Error()))
		return 1
	}
	cfg.Merge.PrimaryPath = paths.ResolveFile(cfg.Merge.PrimaryPath)
	cfg.Merge.SecondaryPath = paths.ResolveFile(cfg.Merge.SecondaryPath)

	logger.Info("Starting merge",
		slog.String("primary", cfg.Merge.PrimaryPath),
		slog.String("secondary", cfg.Merge.SecondaryPath),
		slog.String("output", cfg.Merge.OutputPath),
		slog.Bool("force", opts.force))

	res, err := merge.Run(ctx, cfg.Merge, opts.force, logger)
	if err != nil {
		logger.Error("Merge failed", slog.String("error", err.Error()))
		fmt.Fprintf(stderr, "dtmerge: %v\n", err)
		return 1
	}

	r := res.Report
	fmt.Fprintf(stdout, "wrote %s: %d rows, %d matched, %d unmatched (%.2f%%)\n",
		res.Output, r.Total, r.Matched, r.Unmatched, r.MatchRate)
	if r.Duplicates > 0 {
		fmt.Fprintf(stdout, "dropped %d duplicate classification rows\n", r.Duplicates)
	}

	if opts.report != "" {
		headers, records := exporter.MergeReportRecords(r)
		if err := exporter.NewCSVWriter(paths).WriteSimpleCSV(opts.report, headers, records); err != nil {
			logger.Error("Failed to write report", slog.String("path", opts.report), slog.String("error", err.Error()))
			return 1
		}
	}
	return 0
}
