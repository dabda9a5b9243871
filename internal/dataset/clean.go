package dataset

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// CleanSpec names the required columns of a table.
type CleanSpec struct {
	Identifier string
	Period     string
	Metric     string
	// IdentifierWidth zero-pads numeric identifiers to this many digits.
	// Zero keeps them as plain integers.
	IdentifierWidth int
	Logger          *slog.Logger
}

// CleanReport counts what Clean did.
type CleanReport struct {
	Input   int            `json:"input_rows"`
	Kept    int            `json:"kept_rows"`
	Dropped map[string]int `json:"dropped_rows"`
}

// Clean returns a new table without rows that lack a required value. The
// identifier column becomes text, the period column integers and the metric
// column numbers. Columns not named in the CleanSpec are carried over unchanged.
func Clean(t *Table, spec CleanSpec) (*Table, CleanReport, error) {
	report := CleanReport{Input: t.Len(), Dropped: map[string]int{}}

	roles := []struct {
		reason string
		name   string
	}{
		{"identifier", spec.Identifier},
		{"period", spec.Period},
		{"metric", spec.Metric},
	}
	cols := make([]*Column, len(roles))
	for i, r := range roles {
		col, ok := t.Column(r.name)
		if !ok {
			return nil, report, fmt.Errorf("clean: %s column %q not in table", r.reason, r.name)
		}
		cols[i] = col
	}
	idCol, periodCol, metricCol := cols[0], cols[1], cols[2]

	keep := make([]int, 0, t.Len())
	for i := range t.Rows() {
		switch {
		case idCol.Cell(i).Missing():
			report.Dropped["identifier"]++
		case !periodCol.Cell(i).Integral():
			report.Dropped["period"]++
		case !metricCol.Cell(i).Numeric:
			report.Dropped["metric"]++
		default:
			keep = append(keep, i)
		}
	}
	report.Kept = len(keep)

	logger := spec.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Dataset cleaned",
		slog.String("source", t.Source()),
		slog.Int("input_rows", report.Input),
		slog.Int("kept_rows", report.Kept),
		slog.Any("dropped_rows", report.Dropped))

	if len(keep) == 0 {
		return nil, report, fmt.Errorf("%w: all %d rows of %s lack an identifier, period or metric value",
			ErrEmptyDataset, report.Input, t.Source())
	}

	columns := make([]*Column, t.Width())
	for c := range t.columns {
		src := t.columns[c]
		cells := make([]Cell, len(keep))
		for j, i := range keep {
			cell := src.cells[i]
			switch src {
			case idCol:
				cell = TextCell(NormalizeIdentifier(cell, spec.IdentifierWidth))
			case periodCol:
				cell = NumberCell(float64(int(cell.Num)))
			case metricCol:
				cell = NumberCell(cell.Num)
			}
			cells[j] = cell
		}
		col := NewColumn(src.name, cells)
		if src == idCol {
			col.typ = TypeText
		}
		columns[c] = col
	}

	out, err := NewTable(t.source, columns...)
	if err != nil {
		return nil, report, err
	}
	out.sheet = t.sheet
	return out, report, nil
}

// NormalizeIdentifier renders an identifier cell as text. Whole numbers
// lose any fractional formatting and digit-only identifiers shorter than
// width are left padded with zeros.
func NormalizeIdentifier(c Cell, width int) string {
	s := c.Text
	if c.Integral() && !zeroPaddedCode.MatchString(s) {
		s = strconv.FormatInt(int64(c.Num), 10)
	}
	if width > 0 && len(s) < width && digitsOnly(s) {
		s = strings.Repeat("0", width-len(s)) + s
	}
	return s
}

func digitsOnly(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
