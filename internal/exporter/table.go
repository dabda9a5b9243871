package exporter

import (
	"io"

	"dtindex/internal/merge"
	"dtindex/internal/query"
)

// TableRecords flattens a joined table into CSV rows: a period column
// followed by one column per series. Absent cells are empty strings.
func TableRecords(t query.OrderedTable, periodHeader string, places int) ([]string, [][]string) {
	headers := append([]string{periodHeader}, t.Columns...)
	records := make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		rec := make([]string, 0, len(row.Cells)+1)
		rec = append(rec, formatInt(row.Period))
		for _, c := range row.Cells {
			if c.Present {
				rec = append(rec, formatFloat(c.Value, places))
			} else {
				rec = append(rec, "")
			}
		}
		records[i] = rec
	}
	return headers, records
}

// WriteTable encodes t as CSV with a BOM.
func WriteTable(out io.Writer, t query.OrderedTable, periodHeader string, places int) error {
	headers, records := TableRecords(t, periodHeader, places)
	return Encode(out, headers, records, true)
}

// ChangeRecords lists period-over-period changes; undefined changes are
// empty.
func ChangeRecords(changes []query.Change, places int) ([]string, [][]string) {
	records := make([][]string, len(changes))
	for i, c := range changes {
		records[i] = []string{formatInt(c.Period), formatOptional(c.Pct, places)}
	}
	return []string{"period", "change_pct"}, records
}

// MergeReportRecords renders a merge report as metric/value rows.
func MergeReportRecords(r merge.Report) ([]string, [][]string) {
	return []string{"metric", "value"}, [][]string{
		{"primary_rows", formatInt(r.PrimaryRows)},
		{"secondary_rows", formatInt(r.SecondaryRows)},
		{"duplicates", formatInt(r.Duplicates)},
		{"total", formatInt(r.Total)},
		{"matched", formatInt(r.Matched)},
		{"unmatched", formatInt(r.Unmatched)},
		{"match_rate", formatFloat(r.MatchRate, 2)},
	}
}
