package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"dtindex/internal/config"
	"dtindex/internal/dataset"
	"dtindex/internal/infrastructure"
	"dtindex/internal/query"
	"dtindex/internal/schema"
)

// Role sources reported with a snapshot.
const (
	SourceInferred = "inferred"
	SourceConfig   = "config"
	SourceOverride = "override"
)

// HandleOptions configures a DatasetHandle.
type HandleOptions struct {
	Path            string
	Sheet           string
	IdentifierWidth int
	Bounds          schema.PeriodBounds
	// Mapping, when set, replaces inference with an explicit mapping.
	Mapping *schema.Roles
	Logger  *slog.Logger
	Metrics *infrastructure.Metrics
}

// HandleOptionsFromConfig builds handle options from the dataset section.
// A relative dataset path is resolved against paths when paths is set.
func HandleOptionsFromConfig(cfg config.DatasetConfig, paths *config.Paths, logger *slog.Logger, metrics *infrastructure.Metrics) HandleOptions {
	path := cfg.Path
	if paths != nil {
		path = paths.ResolveFile(path)
	}
	opts := HandleOptions{
		Path:            path,
		Sheet:           cfg.Sheet,
		IdentifierWidth: cfg.IdentifierWidth,
		Bounds:          schema.PeriodBounds{Min: cfg.PeriodMin, Max: cfg.PeriodMax},
		Logger:          logger,
		Metrics:         metrics,
	}
	if m := cfg.Mapping; m.Enabled() {
		opts.Mapping = &schema.Roles{
			Identifier: m.Identifier,
			Period:     m.Period,
			Metric:     m.Metric,
			Group:      m.Group,
			GroupName:  m.GroupName,
			Name:       m.Name,
		}
	}
	return opts
}

// Snapshot is an immutable, queryable state of the dataset. Readers keep
// using the snapshot they obtained even if the handle moves on.
type Snapshot struct {
	Raw      *dataset.Table
	Table    *dataset.Table
	Roles    schema.Roles
	Matches  map[schema.Role]schema.Match
	Source   string
	Report   dataset.CleanReport
	Engine   *query.Engine
	LoadedAt time.Time
}

type handleState struct {
	raw  *dataset.Table
	snap *Snapshot
	err  error
}

// DatasetHandle loads the dataset once, on first use, and shares the result
// with every caller. A failed load is remembered: the same error is returned
// until Reload. When only role resolution failed the raw table is kept so
// that OverrideSchema can still make it queryable.
type DatasetHandle struct {
	opts     HandleOptions
	resolver *schema.Resolver
	logger   *slog.Logger
	metrics  *infrastructure.Metrics

	loads singleflight.Group
	state atomic.Pointer[handleState]

	// mu serializes writers (Override, Reload).
	mu       sync.Mutex
	override *schema.Roles
}

// NewDatasetHandle creates a handle. Nothing is read until the first
// Snapshot call.
func NewDatasetHandle(opts HandleOptions) *DatasetHandle {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Bounds == (schema.PeriodBounds{}) {
		opts.Bounds = schema.DefaultPeriodBounds
	}
	logger := infrastructure.WithComponent(opts.Logger, "dataset")
	return &DatasetHandle{
		opts:     opts,
		resolver: schema.NewResolver(logger, schema.DefaultRules(opts.Bounds)...),
		logger:   logger,
		metrics:  opts.Metrics,
	}
}

// Path returns the configured source path.
func (h *DatasetHandle) Path() string { return h.opts.Path }

// Snapshot returns the current snapshot, loading the dataset on first use.
// Concurrent first callers share a single load.
func (h *DatasetHandle) Snapshot(ctx context.Context) (*Snapshot, error) {
	st, err := h.current(ctx)
	if err != nil {
		return nil, err
	}
	return st.snap, st.err
}

// Loaded reports whether a load has been attempted, successful or not.
func (h *DatasetHandle) Loaded() bool {
	return h.state.Load() != nil
}

func (h *DatasetHandle) current(ctx context.Context) (*handleState, error) {
	if st := h.state.Load(); st != nil {
		return st, nil
	}

	ch := h.loads.DoChan("load", func() (interface{}, error) {
		if st := h.state.Load(); st != nil {
			return st, nil
		}
		st := h.load(context.WithoutCancel(ctx), nil)
		if !h.state.CompareAndSwap(nil, st) {
			return h.state.Load(), nil
		}
		return st, nil
	})

	select {
	case res := <-ch:
		return res.Val.(*handleState), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// load reads, resolves and cleans the dataset. It never returns nil.
func (h *DatasetHandle) load(ctx context.Context, override *schema.Roles) *handleState {
	start := time.Now()
	raw, err := dataset.Load(h.opts.Path, dataset.LoadOptions{Sheet: h.opts.Sheet, Logger: h.logger})
	if err != nil {
		h.metrics.RecordLoad(ctx, "error", 0, time.Since(start))
		h.logger.ErrorContext(ctx, "Dataset load failed",
			slog.String("path", h.opts.Path),
			slog.String("error", err.Error()))
		return &handleState{err: err}
	}

	var (
		roles   schema.Roles
		matches map[schema.Role]schema.Match
		source  string
	)
	switch {
	case override != nil:
		roles, err = schema.Override(raw, *override)
		if err != nil {
			err = schema.Unbound(raw, *override, err)
		}
		source = SourceOverride
	case h.opts.Mapping != nil:
		roles, err = schema.Override(raw, *h.opts.Mapping)
		if err != nil {
			err = schema.Unbound(raw, *h.opts.Mapping, err)
		}
		source = SourceConfig
	default:
		var res schema.Resolution
		res, err = h.resolver.Resolve(raw)
		roles, matches, source = res.Roles, res.Matches, SourceInferred
	}
	if err != nil {
		h.metrics.RecordResolution(ctx, source, "error")
		h.metrics.RecordLoad(ctx, "unresolved", raw.Len(), time.Since(start))
		h.logger.WarnContext(ctx, "Dataset loaded but column roles are unresolved",
			slog.String("path", h.opts.Path),
			slog.String("source", source),
			slog.String("error", err.Error()))
		return &handleState{raw: raw, err: err}
	}
	h.metrics.RecordResolution(ctx, source, "ok")

	snap, err := h.build(raw, roles, matches, source)
	if err != nil {
		h.metrics.RecordLoad(ctx, "error", raw.Len(), time.Since(start))
		h.logger.ErrorContext(ctx, "Dataset cleaning failed",
			slog.String("path", h.opts.Path),
			slog.String("error", err.Error()))
		return &handleState{raw: raw, err: err}
	}

	h.metrics.RecordLoad(ctx, "ok", snap.Table.Len(), time.Since(start))
	h.logger.InfoContext(ctx, "Dataset ready",
		slog.String("path", h.opts.Path),
		slog.String("roles_source", source),
		slog.Int("rows", snap.Table.Len()),
		slog.Duration("duration", time.Since(start)))
	return &handleState{raw: raw, snap: snap}
}

func (h *DatasetHandle) build(raw *dataset.Table, roles schema.Roles, matches map[schema.Role]schema.Match, source string) (*Snapshot, error) {
	cleaned, report, err := dataset.Clean(raw, dataset.CleanSpec{
		Identifier:      roles.Identifier,
		Period:          roles.Period,
		Metric:          roles.Metric,
		IdentifierWidth: h.opts.IdentifierWidth,
		Logger:          h.logger,
	})
	if err != nil {
		return nil, err
	}
	engine, err := query.New(cleaned, roles, query.Options{IdentifierWidth: h.opts.IdentifierWidth})
	if err != nil {
		return nil, err
	}
	if matches == nil {
		matches = make(map[schema.Role]schema.Match)
		for _, role := range schema.AllRoles {
			if col := roles.Column(role); col != "" {
				matches[role] = schema.Match{Column: col, Rule: source}
			}
		}
	}
	return &Snapshot{
		Raw:      raw,
		Table:    cleaned,
		Roles:    roles,
		Matches:  matches,
		Source:   source,
		Report:   report,
		Engine:   engine,
		LoadedAt: time.Now(),
	}, nil
}

// Override replaces the column roles wholesale and rebuilds the snapshot
// from the already loaded raw table. On failure the previous state stays
// in place.
func (h *DatasetHandle) Override(ctx context.Context, roles schema.Roles) (*Snapshot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	st, err := h.current(ctx)
	if err != nil {
		return nil, err
	}
	if st.raw == nil {
		return nil, st.err
	}

	mapped, err := schema.Override(st.raw, roles)
	if err != nil {
		h.metrics.RecordResolution(ctx, SourceOverride, "error")
		return nil, err
	}
	snap, err := h.build(st.raw, mapped, nil, SourceOverride)
	if err != nil {
		h.metrics.RecordResolution(ctx, SourceOverride, "error")
		return nil, err
	}
	h.metrics.RecordResolution(ctx, SourceOverride, "ok")

	h.override = &mapped
	h.state.Store(&handleState{raw: st.raw, snap: snap})
	h.logger.InfoContext(ctx, "Column roles overridden",
		slog.String("identifier", mapped.Identifier),
		slog.String("period", mapped.Period),
		slog.String("metric", mapped.Metric),
		slog.String("group", mapped.Group))
	return snap, nil
}

// Reload reads the source again. A mapping set through Override is kept.
// If the reload fails while a good snapshot exists, that snapshot is kept
// and the error returned.
func (h *DatasetHandle) Reload(ctx context.Context) (*Snapshot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	next := h.load(ctx, h.override)
	prev := h.state.Load()
	if next.err != nil && prev != nil && prev.snap != nil {
		return nil, fmt.Errorf("reload failed, keeping snapshot from %s: %w",
			prev.snap.LoadedAt.Format(time.RFC3339), next.err)
	}
	h.state.Store(next)
	return next.snap, next.err
}

// Unavailable reports whether err means the dataset cannot be queried at all,
// as opposed to a bad query.
func Unavailable(err error) bool {
	return errors.Is(err, dataset.ErrFileNotFound) ||
		errors.Is(err, dataset.ErrParse) ||
		errors.Is(err, dataset.ErrEmptyDataset) ||
		errors.Is(err, schema.ErrUnresolved)
}
