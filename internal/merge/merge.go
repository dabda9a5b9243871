package merge

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"dtindex/internal/dataset"
	"dtindex/internal/query"
)

var (
	ErrMissingColumn  = errors.New("merge: column not found")
	ErrColumnConflict = errors.New("merge: column exists in both tables")
)

// Options names the join keys and the secondary columns carried over.
type Options struct {
	PrimaryIdentifier   string
	PrimaryPeriod       string
	SecondaryIdentifier string
	// SecondaryPeriod is matched against PrimaryPeriod. It is not copied.
	SecondaryPeriod string
	// Columns are the secondary columns appended to every primary row.
	// The first one decides whether a row counts as matched.
	Columns []string
	// KeyWidth zero-pads digit-only identifiers on both sides before
	// comparing. Zero compares them as plain integers.
	KeyWidth int
	Logger   *slog.Logger
}

// Report summarizes a merge.
type Report struct {
	PrimaryRows   int `json:"primary_rows"`
	SecondaryRows int `json:"secondary_rows"`
	// Duplicates counts secondary rows dropped because an earlier row had
	// the same key.
	Duplicates int `json:"duplicates"`
	Total      int `json:"total"`
	Matched    int `json:"matched"`
	Unmatched  int `json:"unmatched"`
	// MatchRate is Matched / Total in percent, two decimals.
	MatchRate float64 `json:"match_rate"`
}

type key struct {
	id     string
	period string
}

// Merge left-joins secondary onto primary by (identifier, period). Every
// primary row appears exactly once and in order. Primary columns are
// reused as they are and the carried columns are appended; a primary row
// without a partner gets missing cells there.
func Merge(primary, secondary *dataset.Table, opts Options) (*dataset.Table, Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	report := Report{PrimaryRows: primary.Len(), SecondaryRows: secondary.Len()}

	pID, err := column(primary, opts.PrimaryIdentifier)
	if err != nil {
		return nil, report, err
	}
	pPeriod, err := column(primary, opts.PrimaryPeriod)
	if err != nil {
		return nil, report, err
	}
	sID, err := column(secondary, opts.SecondaryIdentifier)
	if err != nil {
		return nil, report, err
	}
	sPeriod, err := column(secondary, opts.SecondaryPeriod)
	if err != nil {
		return nil, report, err
	}
	if len(opts.Columns) == 0 {
		return nil, report, fmt.Errorf("%w: no columns to carry", ErrMissingColumn)
	}
	carried := make([]*dataset.Column, len(opts.Columns))
	for i, name := range opts.Columns {
		if carried[i], err = column(secondary, name); err != nil {
			return nil, report, err
		}
		if primary.Has(name) {
			return nil, report, fmt.Errorf("%w: %q", ErrColumnConflict, name)
		}
	}

	// First secondary row per key wins.
	index := make(map[key]int, secondary.Len())
	for row := range secondary.Rows() {
		k := key{
			id:     dataset.NormalizeIdentifier(sID.Cell(row), opts.KeyWidth),
			period: periodKey(sPeriod.Cell(row)),
		}
		if k.id == "" || k.period == "" {
			continue
		}
		if _, dup := index[k]; dup {
			report.Duplicates++
			continue
		}
		index[k] = row
	}
	if report.Duplicates > 0 {
		logger.Warn("Secondary table has duplicate keys, keeping the first row",
			slog.String("source", secondary.Source()),
			slog.Int("duplicates", report.Duplicates))
	}

	cells := make([][]dataset.Cell, len(carried))
	for i := range cells {
		cells[i] = make([]dataset.Cell, primary.Len())
	}
	for row := range primary.Rows() {
		k := key{
			id:     dataset.NormalizeIdentifier(pID.Cell(row), opts.KeyWidth),
			period: periodKey(pPeriod.Cell(row)),
		}
		partner, ok := index[k]
		if ok {
			for i, col := range carried {
				cells[i][row] = col.Cell(partner)
			}
		}
		if ok && !cells[0][row].Missing() {
			report.Matched++
		}
	}
	report.Total = primary.Len()
	report.Unmatched = report.Total - report.Matched
	if report.Total > 0 {
		report.MatchRate = query.Round(float64(report.Matched)/float64(report.Total)*100, 2)
	}

	columns := make([]*dataset.Column, 0, primary.Width()+len(carried))
	for i := 0; i < primary.Width(); i++ {
		columns = append(columns, primary.ColumnAt(i))
	}
	for i, name := range opts.Columns {
		columns = append(columns, dataset.NewColumn(name, cells[i]))
	}
	out, err := dataset.NewTable(primary.Source(), columns...)
	if err != nil {
		return nil, report, err
	}

	logger.Info("Merge completed",
		slog.Int("total", report.Total),
		slog.Int("matched", report.Matched),
		slog.Int("unmatched", report.Unmatched),
		slog.Float64("match_rate", report.MatchRate))
	return out, report, nil
}

func column(t *dataset.Table, name string) (*dataset.Column, error) {
	col, ok := t.Column(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q in %s (columns: %s)",
			ErrMissingColumn, name, t.Source(), strings.Join(t.Names(), ", "))
	}
	return col, nil
}

// periodKey renders whole-number periods without decimals so that 2020 and
// "2020" meet.
func periodKey(c dataset.Cell) string {
	if c.Missing() {
		return ""
	}
	if c.Integral() {
		return strconv.FormatInt(int64(c.Num), 10)
	}
	return strings.TrimSpace(c.Text)
}
