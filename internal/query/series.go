package query

import (
	"fmt"
	"sort"
	"strings"

	"dtindex/internal/dataset"
)

// TimeSeries is one entity's metric by period, ascending.
type TimeSeries struct {
	Entity EntityRef `json:"entity"`
	Window Window    `json:"window"`
	Points []Point   `json:"points"`
	// NoData is set when the entity has no rows inside the window.
	NoData bool `json:"no_data"`
}

// Named labels the series for JoinForDisplay.
func (s TimeSeries) Named() NamedSeries {
	return NamedSeries{Name: s.Entity.Label(), Points: s.Points}
}

// ValueAt returns the first value recorded for period.
func (s TimeSeries) ValueAt(period int) (float64, bool) {
	return valueAt(s.Points, period)
}

// GroupAggregate is the mean metric per period across one group, ascending.
// Periods without observations are absent.
type GroupAggregate struct {
	Group     string  `json:"group"`
	GroupName string  `json:"group_name,omitempty"`
	Window    Window  `json:"window"`
	Points    []Point `json:"points"`
	// Counts[i] is the number of rows averaged into Points[i].
	Counts []int `json:"counts"`
	NoData bool  `json:"no_data"`
}

// Named labels the aggregate for JoinForDisplay.
func (g GroupAggregate) Named(label string) NamedSeries {
	return NamedSeries{Name: label, Points: g.Points}
}

// ValueAt returns the average for period.
func (g GroupAggregate) ValueAt(period int) (float64, bool) {
	return valueAt(g.Points, period)
}

func valueAt(points []Point, period int) (float64, bool) {
	for _, p := range points {
		if p.Period == period {
			return p.Value, true
		}
	}
	return 0, false
}

// Series returns every (period, metric) row of the entity inside w, sorted
// by period. Rows sharing a period keep table order.
func (e *Engine) Series(ref EntityRef, w Window) TimeSeries {
	ts := TimeSeries{Entity: ref, Window: w, Points: []Point{}}
	for row := range e.table.Where(e.roles.Identifier, func(c dataset.Cell) bool { return c.Text == ref.Identifier }) {
		p := e.periodAt(row)
		if !w.Contains(p) {
			continue
		}
		v, ok := e.metricAt(row)
		if !ok {
			continue
		}
		ts.Points = append(ts.Points, Point{Period: p, Value: v})
	}
	sortPoints(ts.Points)
	ts.NoData = len(ts.Points) == 0
	return ts
}

// GroupAverage averages the metric of all rows whose group equals group,
// per period inside w.
func (e *Engine) GroupAverage(group string, w Window) (GroupAggregate, error) {
	if e.group == nil {
		return GroupAggregate{}, ErrNoGroupColumn
	}
	group = strings.TrimSpace(group)
	agg := GroupAggregate{Group: group, Window: w, Points: []Point{}, Counts: []int{}}

	type acc struct {
		sum float64
		n   int
	}
	byPeriod := make(map[int]*acc)
	matched := false
	for row := range e.table.Where(e.roles.Group, func(c dataset.Cell) bool { return c.Text == group }) {
		matched = true
		if agg.GroupName == "" {
			agg.GroupName = textOf(e.groupName, row)
		}
		p := e.periodAt(row)
		if !w.Contains(p) {
			continue
		}
		v, ok := e.metricAt(row)
		if !ok {
			continue
		}
		a, ok := byPeriod[p]
		if !ok {
			a = &acc{}
			byPeriod[p] = a
		}
		a.sum += v
		a.n++
	}
	if !matched {
		return GroupAggregate{}, fmt.Errorf("%w: group %q", ErrNotFound, group)
	}

	periods := make([]int, 0, len(byPeriod))
	for p := range byPeriod {
		periods = append(periods, p)
	}
	sort.Ints(periods)
	for _, p := range periods {
		a := byPeriod[p]
		agg.Points = append(agg.Points, Point{Period: p, Value: a.sum / float64(a.n)})
		agg.Counts = append(agg.Counts, a.n)
	}
	agg.NoData = len(agg.Points) == 0
	return agg, nil
}
