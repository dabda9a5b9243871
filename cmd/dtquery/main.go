package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"dtindex/internal/config"
	"dtindex/internal/exporter"
	"dtindex/internal/infrastructure"
	"dtindex/internal/query"
	"dtindex/internal/services"
	"dtindex/pkg/contracts"
)

// Exit codes
const (
	exitOK          = 0
	exitError       = 1
	exitUsage       = 2
	exitUnavailable = 3
)

type options struct {
	configPath string
	dataPath   string
	sheet      string
	by         string
	from       int
	to         int
	period     int
	peer       string
	group      string
	list       bool
	schema     bool
	format     string
	verbose    bool
	mapping    config.MappingConfig
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func parseFlags(args []string, stderr io.Writer) (options, []string, error) {
	var opts options
	fs := flag.NewFlagSet("dtquery", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "%s\n\nUsage: dtquery [flags] [identifier or name]\n\n", contracts.GetVersionString())
		fs.PrintDefaults()
	}

	fs.StringVar(&opts.configPath, "config", "", "path to config.yaml")
	fs.StringVar(&opts.dataPath, "data", "", "dataset workbook (overrides config)")
	fs.StringVar(&opts.sheet, "sheet", "", "worksheet name (default: first sheet)")
	fs.StringVar(&opts.by, "by", string(query.ByAuto), "lookup by auto | id | name")
	fs.IntVar(&opts.from, "from", 0, "first period to include")
	fs.IntVar(&opts.to, "to", 0, "last period to include")
	fs.IntVar(&opts.period, "period", 0, "period to report a single value for")
	fs.StringVar(&opts.peer, "peer", "", "peer entity from the same group to compare with")
	fs.StringVar(&opts.group, "group", "", "group code: list members or show the group average")
	fs.BoolVar(&opts.list, "list", false, "list entities (filtered by -group)")
	fs.BoolVar(&opts.schema, "schema", false, "show the resolved column roles")
	fs.StringVar(&opts.format, "format", "text", "output format: text | json | csv")
	fs.BoolVar(&opts.verbose, "v", false, "verbose logging")
	fs.StringVar(&opts.mapping.Identifier, "map-identifier", "", "identifier column")
	fs.StringVar(&opts.mapping.Period, "map-period", "", "period column")
	fs.StringVar(&opts.mapping.Metric, "map-metric", "", "metric column")
	fs.StringVar(&opts.mapping.Group, "map-group", "", "group code column")
	fs.StringVar(&opts.mapping.GroupName, "map-group-name", "", "group name column")
	fs.StringVar(&opts.mapping.Name, "map-name", "", "display name column")

	if err := fs.Parse(args); err != nil {
		return opts, nil, err
	}

	switch opts.format {
	case "text", "json", "csv":
	default:
		return opts, nil, fmt.Errorf("unknown format %q", opts.format)
	}
	switch query.LookupKind(opts.by) {
	case query.ByAuto, query.ByIdentifier, query.ByName:
	default:
		return opts, nil, fmt.Errorf("unknown lookup kind %q", opts.by)
	}
	if m := opts.mapping; m.Enabled() && (m.Identifier == "" || m.Period == "" || m.Metric == "") {
		return opts, nil, errors.New("-map-identifier, -map-period and -map-metric must be given together")
	}
	if opts.from != 0 && opts.to != 0 && opts.from > opts.to {
		return opts, nil, fmt.Errorf("-from %d is after -to %d", opts.from, opts.to)
	}
	return opts, fs.Args(), nil
}

func loadConfig(opts options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.dataPath != "" {
		cfg.Dataset.Path = opts.dataPath
	}
	if opts.sheet != "" {
		cfg.Dataset.Sheet = opts.sheet
	}
	if opts.mapping.Enabled() {
		cfg.Dataset.Mapping = opts.mapping
	}

	cfg.Logging.Output = "console"
	cfg.Logging.Format = "text"
	cfg.Logging.Level = "warn"
	if opts.verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, rest, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "dtquery: %v\n", err)
		return exitUsage
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(stderr, "dtquery: %v\n", err)
		return exitUsage
	}
	logger, err := infrastructure.NewLogger(cfg.Logging, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "dtquery: %v\n", err)
		return exitError
	}

	var paths *config.Paths
	if p, err := config.GetPaths(); err == nil {
		paths = p
	}

	metrics := infrastructure.NoopMetrics()
	handle := services.NewDatasetHandle(services.HandleOptionsFromConfig(cfg.Dataset, paths, logger, metrics))
	svc := services.NewIndexService(handle, services.IndexOptions{
		GroupAverageLabel: cfg.Dataset.GroupAverageLabel,
		Precision:         config.DisplayPrecision,
	}, metrics, logger)

	out := &printer{w: stdout, format: opts.format}
	window := query.Window{From: opts.from, To: opts.to}

	switch {
	case opts.schema:
		var status services.SchemaStatus
		status, err = svc.Schema(ctx)
		if err == nil {
			err = out.schema(status)
		}
	case opts.list || (len(rest) == 0 && opts.group == ""):
		var entities []query.EntityRef
		entities, err = svc.ListEntities(ctx, opts.group)
		if err == nil {
			err = out.entities(entities)
		}
	case len(rest) == 0:
		var report services.GroupReport
		report, err = svc.GroupAverage(ctx, opts.group, window)
		if err == nil {
			err = out.group(report)
		}
	case opts.peer != "" || opts.format == "csv":
		req := services.CompareRequest{
			Entity: query.Query{By: query.LookupKind(opts.by), Value: strings.Join(rest, " ")},
			Window: window,
		}
		if opts.peer != "" {
			req.Peer = &query.Query{By: query.LookupKind(opts.by), Value: opts.peer}
		}
		var cmp services.Comparison
		cmp, err = svc.Compare(ctx, req)
		if err == nil {
			err = out.comparison(cmp)
		}
	default:
		var profile services.EntityProfile
		profile, err = svc.Profile(ctx, services.ProfileRequest{
			Query:  query.Query{By: query.LookupKind(opts.by), Value: strings.Join(rest, " ")},
			Window: window,
			Period: opts.period,
		})
		if err == nil {
			err = out.profile(profile)
		}
	}

	if err != nil {
		fmt.Fprintf(stderr, "dtquery: %v\n", err)
		if guidance := services.Guidance(err); guidance != "" {
			fmt.Fprintf(stderr, "  %s\n", guidance)
		}
		if services.Unavailable(err) {
			return exitUnavailable
		}
		return exitError
	}
	return exitOK
}

// printer renders results as text tables, indented JSON or CSV.
type printer struct {
	w      io.Writer
	format string
}

func (p *printer) json(v interface{}) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *printer) csv(headers []string, records [][]string) error {
	return exporter.Encode(p.w, headers, records, false)
}

func (p *printer) text(headers []string, records [][]string) error {
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	for _, rec := range records {
		fmt.Fprintln(tw, strings.Join(rec, "\t"))
	}
	return tw.Flush()
}

func (p *printer) rows(v interface{}, headers []string, records [][]string) error {
	switch p.format {
	case "json":
		return p.json(v)
	case "csv":
		return p.csv(headers, records)
	default:
		return p.text(headers, records)
	}
}

func (p *printer) schema(s services.SchemaStatus) error {
	var records [][]string
	for _, r := range []struct{ role, column string }{
		{"identifier", s.Roles.Identifier},
		{"period", s.Roles.Period},
		{"metric", s.Roles.Metric},
		{"group", s.Roles.Group},
		{"group_name", s.Roles.GroupName},
		{"name", s.Roles.Name},
	} {
		records = append(records, []string{r.role, r.column})
	}
	for _, m := range s.Missing {
		records = append(records, []string{string(m), "(missing)"})
	}
	return p.rows(s, []string{"role", "column"}, records)
}

func (p *printer) entities(list []query.EntityRef) error {
	records := make([][]string, len(list))
	for i, e := range list {
		records[i] = []string{e.Identifier, e.Name, e.Group, e.GroupName}
	}
	return p.rows(list, []string{"identifier", "name", "group", "group_name"}, records)
}

func (p *printer) group(r services.GroupReport) error {
	records := make([][]string, len(r.Aggregate.Points))
	for i, pt := range r.Aggregate.Points {
		records[i] = []string{
			fmt.Sprint(pt.Period),
			fmt.Sprintf("%.*f", config.DisplayPrecision, pt.Value),
			fmt.Sprint(r.Aggregate.Counts[i]),
		}
	}
	return p.rows(r, []string{config.PeriodHeader, "average", "members"}, records)
}

func (p *printer) comparison(c services.Comparison) error {
	if p.format == "csv" {
		return exporter.WriteTable(p.w, c.Table, config.PeriodHeader, config.DisplayPrecision)
	}
	headers, records := exporter.TableRecords(c.Table, config.PeriodHeader, config.DisplayPrecision)
	return p.rows(c, headers, records)
}

func (p *printer) profile(prof services.EntityProfile) error {
	if p.format != "text" {
		headers, records := exporter.TableRecords(prof.Table, config.PeriodHeader, config.DisplayPrecision)
		return p.rows(prof, headers, records)
	}

	fmt.Fprintln(p.w, prof.Entity.Label())
	if prof.Entity.GroupName != "" {
		fmt.Fprintf(p.w, "%s %s\n", prof.Entity.Group, prof.Entity.GroupName)
	}
	if prof.Series.NoData {
		fmt.Fprintln(p.w, "no data in the selected periods")
		return nil
	}
	fmt.Fprintln(p.w)

	headers, records := exporter.TableRecords(prof.Table, config.PeriodHeader, config.DisplayPrecision)
	if err := p.text(headers, records); err != nil {
		return err
	}

	if s := prof.Summary; s != nil {
		fmt.Fprintln(p.w)
		fmt.Fprintf(p.w, "mean %.*f  max %.*f (%d)  min %.*f (%d)\n",
			config.DisplayPrecision, s.Mean,
			config.DisplayPrecision, s.Max.Value, s.Max.Period,
			config.DisplayPrecision, s.Min.Value, s.Min.Period)
	}
	if pv := prof.PeriodValue; pv != nil && pv.Value != nil {
		fmt.Fprintf(p.w, "%d: %.*f", pv.Period, config.DisplayPrecision, *pv.Value)
		if pv.GroupAverage != nil {
			fmt.Fprintf(p.w, " (group %.*f)", config.DisplayPrecision, *pv.GroupAverage)
		}
		fmt.Fprintln(p.w)
	}
	return nil
}
