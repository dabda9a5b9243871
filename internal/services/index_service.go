package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"dtindex/internal/config"
	"dtindex/internal/dataset"
	"dtindex/internal/infrastructure"
	"dtindex/internal/query"
	"dtindex/internal/schema"
)

// IndexOptions tunes presentation of query results.
type IndexOptions struct {
	// GroupAverageLabel names the group average column in joined tables.
	GroupAverageLabel string
	// Precision is the number of decimals in displayed values.
	Precision int32
}

// IndexService answers lookups against the dataset held by a DatasetHandle.
type IndexService struct {
	handle  *DatasetHandle
	opts    IndexOptions
	metrics *infrastructure.Metrics
	tracer  trace.Tracer
	logger  *slog.Logger
}

// NewIndexService creates the query service.
func NewIndexService(handle *DatasetHandle, opts IndexOptions, metrics *infrastructure.Metrics, logger *slog.Logger) *IndexService {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.GroupAverageLabel == "" {
		opts.GroupAverageLabel = config.DefaultGroupAverageLabel
	}
	if opts.Precision == 0 {
		opts.Precision = config.DisplayPrecision
	}
	return &IndexService{
		handle:  handle,
		opts:    opts,
		metrics: metrics,
		tracer:  otel.Tracer("dtindex/services"),
		logger:  infrastructure.WithComponent(logger, "index_service"),
	}
}

// DatasetOverview describes the loaded dataset.
type DatasetOverview struct {
	query.Overview
	RolesSource string              `json:"roles_source"`
	Cleaning    dataset.CleanReport `json:"cleaning"`
	LoadedAt    time.Time           `json:"loaded_at"`
}

// SchemaStatus is the role binding of the dataset, or what is missing
// when roles could not be resolved.
type SchemaStatus struct {
	Resolved bool                         `json:"resolved"`
	Source   string                       `json:"source,omitempty"`
	Roles    schema.Roles                 `json:"roles"`
	Matches  map[schema.Role]schema.Match `json:"matches,omitempty"`
	Missing  []schema.Role                `json:"missing_roles,omitempty"`
	Columns  []dataset.ColumnInfo         `json:"columns"`
	Error    string                       `json:"error,omitempty"`
	Guidance string                       `json:"guidance,omitempty"`
}

// ProfileRequest asks for one entity's series and statistics.
type ProfileRequest struct {
	Query  query.Query
	Window query.Window
	// Period picks the period reported in PeriodValue. Zero means the
	// latest period with data.
	Period int
}

// PeriodValue is the entity value and group average at one period.
type PeriodValue struct {
	Period       int      `json:"period"`
	Value        *float64 `json:"value"`
	GroupAverage *float64 `json:"group_average,omitempty"`
}

// EntityProfile is everything shown for one entity.
type EntityProfile struct {
	Entity       query.EntityRef       `json:"entity"`
	Window       query.Window          `json:"window"`
	Series       query.TimeSeries      `json:"series"`
	Summary      *query.Summary        `json:"summary"`
	Changes      []query.Change        `json:"changes"`
	PeriodValue  *PeriodValue          `json:"period_value,omitempty"`
	GroupAverage *query.GroupAggregate `json:"group_average,omitempty"`
	Table        query.OrderedTable    `json:"table"`
}

// GroupReport is a group's average series with its members.
type GroupReport struct {
	Aggregate query.GroupAggregate `json:"aggregate"`
	Summary   *query.Summary       `json:"summary"`
	Members   []query.EntityRef    `json:"members"`
}

// CompareRequest asks for an entity next to an optional peer and its
// group average.
type CompareRequest struct {
	Entity query.Query
	Peer   *query.Query
	Window query.Window
}

// LabelledSummary is the summary of one column of a comparison.
type LabelledSummary struct {
	Label   string         `json:"label"`
	Summary *query.Summary `json:"summary"`
}

// Comparison is the joined display table of a comparison.
type Comparison struct {
	Entity    query.EntityRef    `json:"entity"`
	Peer      *query.EntityRef   `json:"peer,omitempty"`
	Group     string             `json:"group,omitempty"`
	GroupName string             `json:"group_name,omitempty"`
	Window    query.Window       `json:"window"`
	Table     query.OrderedTable `json:"table"`
	Summaries []LabelledSummary  `json:"summaries"`
}

// observe runs fn in a span and records its outcome.
func (s *IndexService) observe(ctx context.Context, op string, fn func(ctx context.Context) error, attrs ...attribute.KeyValue) error {
	ctx, span := s.tracer.Start(ctx, "IndexService."+op, trace.WithAttributes(attrs...))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	outcome := Outcome(err)
	s.metrics.RecordQuery(ctx, op, outcome, time.Since(start))
	if err != nil {
		infrastructure.RecordError(ctx, err)
		level := slog.LevelDebug
		if outcome == "error" || outcome == "unavailable" {
			level = slog.LevelWarn
		}
		s.logger.Log(ctx, level, "Query failed",
			slog.String("operation", op),
			slog.String("outcome", outcome),
			slog.String("error", err.Error()))
	}
	return err
}

func (s *IndexService) engine(ctx context.Context) (*query.Engine, error) {
	snap, err := s.handle.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Engine, nil
}

func validateWindow(w query.Window) error {
	if w.From != 0 && w.To != 0 && w.From > w.To {
		return fmt.Errorf("%w: period range %d to %d is reversed", ErrInvalidInput, w.From, w.To)
	}
	return nil
}

// Overview describes the loaded dataset.
func (s *IndexService) Overview(ctx context.Context) (DatasetOverview, error) {
	var out DatasetOverview
	err := s.observe(ctx, "overview", func(ctx context.Context) error {
		snap, err := s.handle.Snapshot(ctx)
		if err != nil {
			return err
		}
		out = DatasetOverview{
			Overview:    snap.Engine.Overview(),
			RolesSource: snap.Source,
			Cleaning:    snap.Report,
			LoadedAt:    snap.LoadedAt,
		}
		return nil
	})
	return out, err
}

// Schema reports the current role binding. An unresolved dataset is not an
// error here: the status lists the missing roles and the available
// columns. Only a dataset that cannot be read at all returns an error.
func (s *IndexService) Schema(ctx context.Context) (SchemaStatus, error) {
	var out SchemaStatus
	err := s.observe(ctx, "schema", func(ctx context.Context) error {
		st, err := s.handle.current(ctx)
		if err != nil {
			return err
		}
		out = schemaStatus(st)
		if st.raw == nil {
			return st.err
		}
		return nil
	})
	return out, err
}

func schemaStatus(st *handleState) SchemaStatus {
	if st.snap != nil {
		return SchemaStatus{
			Resolved: true,
			Source:   st.snap.Source,
			Roles:    st.snap.Roles,
			Matches:  st.snap.Matches,
			Columns:  st.raw.Schema(),
		}
	}
	status := SchemaStatus{Columns: []dataset.ColumnInfo{}}
	if st.raw != nil {
		status.Columns = st.raw.Schema()
	}
	if st.err != nil {
		status.Error = st.err.Error()
		status.Guidance = Guidance(st.err)
	}
	var unresolved *schema.UnresolvedError
	if errors.As(st.err, &unresolved) {
		status.Missing = unresolved.Missing
		status.Roles = unresolved.Partial
	}
	return status
}

// OverrideSchema replaces the role binding with mapping.
func (s *IndexService) OverrideSchema(ctx context.Context, mapping schema.Roles) (SchemaStatus, error) {
	var out SchemaStatus
	err := s.observe(ctx, "override_schema", func(ctx context.Context) error {
		snap, err := s.handle.Override(ctx, mapping)
		if err != nil {
			return err
		}
		out = schemaStatus(&handleState{raw: snap.Raw, snap: snap})
		return nil
	})
	return out, err
}

// Reload rereads the dataset source.
func (s *IndexService) Reload(ctx context.Context) (DatasetOverview, error) {
	var out DatasetOverview
	err := s.observe(ctx, "reload", func(ctx context.Context) error {
		snap, err := s.handle.Reload(ctx)
		if err != nil {
			return err
		}
		out = DatasetOverview{
			Overview:    snap.Engine.Overview(),
			RolesSource: snap.Source,
			Cleaning:    snap.Report,
			LoadedAt:    snap.LoadedAt,
		}
		return nil
	})
	return out, err
}

// ListEntities returns all entities, or those of one group.
func (s *IndexService) ListEntities(ctx context.Context, group string) ([]query.EntityRef, error) {
	var out []query.EntityRef
	err := s.observe(ctx, "list_entities", func(ctx context.Context) error {
		engine, err := s.engine(ctx)
		if err != nil {
			return err
		}
		out = engine.ListEntities(group)
		return nil
	}, attribute.String("group", group))
	return out, err
}

// FindEntity resolves a single entity.
func (s *IndexService) FindEntity(ctx context.Context, q query.Query) (query.EntityRef, error) {
	var out query.EntityRef
	err := s.observe(ctx, "find_entity", func(ctx context.Context) error {
		engine, err := s.engine(ctx)
		if err != nil {
			return err
		}
		out, err = engine.FindEntity(q)
		return err
	}, attribute.String("by", string(q.By)))
	return out, err
}

// Profile returns an entity's series, statistics, period-over-period
// changes and, when the dataset has groups, its group average.
func (s *IndexService) Profile(ctx context.Context, req ProfileRequest) (EntityProfile, error) {
	var out EntityProfile
	err := s.observe(ctx, "profile", func(ctx context.Context) error {
		if err := validateWindow(req.Window); err != nil {
			return err
		}
		engine, err := s.engine(ctx)
		if err != nil {
			return err
		}
		ref, err := engine.FindEntity(req.Query)
		if err != nil {
			return err
		}

		series := engine.Series(ref, req.Window)
		out = EntityProfile{
			Entity:  ref,
			Window:  req.Window,
			Series:  series,
			Changes: s.roundChanges(query.PercentChange(series.Points)),
		}
		joined := []query.NamedSeries{series.Named()}

		if engine.HasGroups() && ref.Group != "" {
			agg, err := engine.GroupAverage(ref.Group, req.Window)
			if err != nil {
				return err
			}
			out.GroupAverage = &agg
			joined = append(joined, agg.Named(s.opts.GroupAverageLabel))
		}
		out.Table = s.roundTable(query.JoinForDisplay(joined...))

		if sum, ok := query.Summarize(series.Points); ok {
			r := sum.Rounded(s.opts.Precision)
			out.Summary = &r
		}
		out.PeriodValue = s.periodValue(out, req.Period)

		out.Series.Points = s.roundPoints(series.Points)
		if out.GroupAverage != nil {
			out.GroupAverage.Points = s.roundPoints(out.GroupAverage.Points)
		}
		return nil
	}, attribute.String("query", req.Query.Value))
	return out, err
}

func (s *IndexService) periodValue(p EntityProfile, period int) *PeriodValue {
	if period == 0 {
		if p.Summary == nil {
			return nil
		}
		period = p.Summary.LastPeriod
	}
	pv := &PeriodValue{Period: period}
	if v, ok := p.Series.ValueAt(period); ok {
		r := query.Round(v, s.opts.Precision)
		pv.Value = &r
	}
	if p.GroupAverage != nil {
		if v, ok := p.GroupAverage.ValueAt(period); ok {
			r := query.Round(v, s.opts.Precision)
			pv.GroupAverage = &r
		}
	}
	return pv
}

// GroupAverage returns the average series of a group.
func (s *IndexService) GroupAverage(ctx context.Context, group string, w query.Window) (GroupReport, error) {
	var out GroupReport
	err := s.observe(ctx, "group_average", func(ctx context.Context) error {
		if err := validateWindow(w); err != nil {
			return err
		}
		engine, err := s.engine(ctx)
		if err != nil {
			return err
		}
		agg, err := engine.GroupAverage(group, w)
		if err != nil {
			return err
		}
		out.Aggregate = agg
		if sum, ok := query.Summarize(agg.Points); ok {
			r := sum.Rounded(s.opts.Precision)
			out.Summary = &r
		}
		out.Aggregate.Points = s.roundPoints(agg.Points)
		out.Members = engine.ListEntities(agg.Group)
		return nil
	}, attribute.String("group", group))
	return out, err
}

// Compare joins an entity, an optional peer from the same group and the
// group average into one table. Peers from another group are rejected
// with query.ErrGroupMismatch and the entity itself with ErrInvalidInput.
func (s *IndexService) Compare(ctx context.Context, req CompareRequest) (Comparison, error) {
	var out Comparison
	err := s.observe(ctx, "compare", func(ctx context.Context) error {
		if err := validateWindow(req.Window); err != nil {
			return err
		}
		engine, err := s.engine(ctx)
		if err != nil {
			return err
		}
		ref, err := engine.FindEntity(req.Entity)
		if err != nil {
			return err
		}
		out = Comparison{Entity: ref, Window: req.Window, Group: ref.Group, GroupName: ref.GroupName}

		series := []query.NamedSeries{engine.Series(ref, req.Window).Named()}
		if req.Peer != nil {
			peer, err := engine.FindEntity(*req.Peer)
			if err != nil {
				return err
			}
			if peer.Identifier == ref.Identifier {
				return fmt.Errorf("%w: peer %s is the entity itself", ErrInvalidInput, peer.Label())
			}
			if err := query.RequireSameGroup(ref, peer); err != nil {
				return err
			}
			out.Peer = &peer
			series = append(series, engine.Series(peer, req.Window).Named())
		}
		if engine.HasGroups() && ref.Group != "" {
			agg, err := engine.GroupAverage(ref.Group, req.Window)
			if err != nil {
				return err
			}
			series = append(series, agg.Named(s.opts.GroupAverageLabel))
		}

		out.Table = s.roundTable(query.JoinForDisplay(series...))
		out.Summaries = make([]LabelledSummary, len(series))
		for i, ns := range series {
			out.Summaries[i].Label = ns.Name
			if sum, ok := query.Summarize(ns.Points); ok {
				r := sum.Rounded(s.opts.Precision)
				out.Summaries[i].Summary = &r
			}
		}
		return nil
	}, attribute.String("query", req.Entity.Value))
	return out, err
}

func (s *IndexService) roundPoints(points []query.Point) []query.Point {
	out := make([]query.Point, len(points))
	for i, p := range points {
		out[i] = query.Point{Period: p.Period, Value: query.Round(p.Value, s.opts.Precision)}
	}
	return out
}

func (s *IndexService) roundChanges(changes []query.Change) []query.Change {
	for i, c := range changes {
		if c.Pct != nil {
			r := query.Round(*c.Pct, s.opts.Precision)
			changes[i].Pct = &r
		}
	}
	return changes
}

func (s *IndexService) roundTable(t query.OrderedTable) query.OrderedTable {
	for _, row := range t.Rows {
		for j, c := range row.Cells {
			if c.Present {
				row.Cells[j].Value = query.Round(c.Value, s.opts.Precision)
			}
		}
	}
	return t
}
