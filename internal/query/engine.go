package query

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"dtindex/internal/dataset"
	"dtindex/internal/schema"
)

// Options tunes an Engine.
type Options struct {
	// IdentifierWidth requires identifier input to be exactly this many
	// digits. Zero accepts any identifier text.
	IdentifierWidth int
}

// Engine is a read-only view of a cleaned table through its roles.
type Engine struct {
	table *dataset.Table
	roles schema.Roles
	opts  Options

	idPattern *regexp.Regexp

	id, period, metric     *dataset.Column
	group, groupName, name *dataset.Column
}

// New binds a table and roles. Every non-empty role must name a column.
func New(t *dataset.Table, roles schema.Roles, opts Options) (*Engine, error) {
	e := &Engine{table: t, roles: roles, opts: opts}
	if opts.IdentifierWidth > 0 {
		e.idPattern = regexp.MustCompile(`^\d{` + strconv.Itoa(opts.IdentifierWidth) + `}$`)
	}

	bind := func(role schema.Role, dst **dataset.Column) error {
		name := roles.Column(role)
		if name == "" {
			if role.Required() {
				return fmt.Errorf("query: %s role is not bound", role)
			}
			return nil
		}
		col, ok := t.Column(name)
		if !ok {
			return fmt.Errorf("query: %s column %q not in table", role, name)
		}
		*dst = col
		return nil
	}
	for role, dst := range map[schema.Role]**dataset.Column{
		schema.RoleIdentifier: &e.id,
		schema.RolePeriod:     &e.period,
		schema.RoleMetric:     &e.metric,
		schema.RoleGroup:      &e.group,
		schema.RoleGroupName:  &e.groupName,
		schema.RoleName:       &e.name,
	} {
		if err := bind(role, dst); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Roles returns the roles the engine was built with.
func (e *Engine) Roles() schema.Roles { return e.roles }

// Table returns the underlying table.
func (e *Engine) Table() *dataset.Table { return e.table }

// HasGroups reports whether group averages are available.
func (e *Engine) HasGroups() bool { return e.group != nil }

// Window is an inclusive period range. Zero bounds are open.
type Window struct {
	From int `json:"from,omitempty"`
	To   int `json:"to,omitempty"`
}

// Contains reports whether period p is inside the window.
func (w Window) Contains(p int) bool {
	return (w.From == 0 || p >= w.From) && (w.To == 0 || p <= w.To)
}

// Point is one (period, value) pair.
type Point struct {
	Period int     `json:"period"`
	Value  float64 `json:"value"`
}

func sortPoints(points []Point) {
	sort.SliceStable(points, func(i, j int) bool { return points[i].Period < points[j].Period })
}

func (e *Engine) periodAt(row int) int {
	p, _ := e.period.Int(row)
	return p
}

func (e *Engine) metricAt(row int) (float64, bool) {
	return e.metric.Float(row)
}

func (e *Engine) identifierAt(row int) string {
	s, _ := e.id.Text(row)
	return s
}

func textOf(col *dataset.Column, row int) string {
	if col == nil {
		return ""
	}
	s, _ := col.Text(row)
	return strings.TrimSpace(s)
}

// Overview summarizes the table for display.
type Overview struct {
	Source      string               `json:"source"`
	Sheet       string               `json:"sheet,omitempty"`
	Rows        int                  `json:"rows"`
	Entities    int                  `json:"entities"`
	Groups      int                  `json:"groups"`
	FirstPeriod int                  `json:"first_period"`
	LastPeriod  int                  `json:"last_period"`
	Columns     []dataset.ColumnInfo `json:"columns"`
	Roles       schema.Roles         `json:"roles"`
}

// Overview counts rows, entities, groups and the period span.
func (e *Engine) Overview() Overview {
	ov := Overview{
		Source:  e.table.Source(),
		Sheet:   e.table.Sheet(),
		Rows:    e.table.Len(),
		Columns: e.table.Schema(),
		Roles:   e.roles,
	}
	ids := make(map[string]struct{})
	groups := make(map[string]struct{})
	for row := range e.table.Rows() {
		ids[e.identifierAt(row)] = struct{}{}
		if g := textOf(e.group, row); g != "" {
			groups[g] = struct{}{}
		}
		p := e.periodAt(row)
		if ov.FirstPeriod == 0 || p < ov.FirstPeriod {
			ov.FirstPeriod = p
		}
		if p > ov.LastPeriod {
			ov.LastPeriod = p
		}
	}
	ov.Entities = len(ids)
	ov.Groups = len(groups)
	return ov
}
