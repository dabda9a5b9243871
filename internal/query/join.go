package query

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
)

// NamedSeries is a labelled period-indexed series.
type NamedSeries struct {
	Name   string
	Points []Point
}

// JoinedCell is one cell of an OrderedTable. Absent cells have Present false.
type JoinedCell struct {
	Value   float64
	Present bool
}

// JoinedRow is one period of an OrderedTable, cells in column order.
type JoinedRow struct {
	Period int
	Cells  []JoinedCell
}

// OrderedTable is the outer join of several series on period.
type OrderedTable struct {
	Columns []string    `json:"columns"`
	Rows    []JoinedRow `json:"rows"`
}

// JoinForDisplay outer-joins series on period. Every period present in any
// input yields one row, rows ascend by period, and a series without a value
// for a period leaves that cell absent. When a series repeats a period its
// first value is used. Columns follow input order.
func JoinForDisplay(series ...NamedSeries) OrderedTable {
	table := OrderedTable{Columns: make([]string, len(series)), Rows: []JoinedRow{}}
	rows := make(map[int]*JoinedRow)
	for i, s := range series {
		table.Columns[i] = s.Name
		for _, p := range s.Points {
			row, ok := rows[p.Period]
			if !ok {
				row = &JoinedRow{Period: p.Period, Cells: make([]JoinedCell, len(series))}
				rows[p.Period] = row
			}
			if !row.Cells[i].Present {
				row.Cells[i] = JoinedCell{Value: p.Value, Present: true}
			}
		}
	}

	periods := make([]int, 0, len(rows))
	for p := range rows {
		periods = append(periods, p)
	}
	sort.Ints(periods)
	for _, p := range periods {
		table.Rows = append(table.Rows, *rows[p])
	}
	return table
}

// Cell returns the value of column at row; ok is false when absent.
func (t OrderedTable) Cell(row int, column string) (float64, bool) {
	for i, c := range t.Columns {
		if c == column {
			cell := t.Rows[row].Cells[i]
			return cell.Value, cell.Present
		}
	}
	return 0, false
}

// MarshalJSON encodes a cell as its value or null.
func (c JoinedCell) MarshalJSON() ([]byte, error) {
	if !c.Present {
		return []byte("null"), nil
	}
	return json.Marshal(c.Value)
}

// MarshalJSON writes {"period": p, "<column>": v, ...} with absent cells
// left out, so Rows are self describing.
func (t OrderedTable) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"columns":`)
	cols, err := json.Marshal(t.Columns)
	if err != nil {
		return nil, err
	}
	buf.Write(cols)
	buf.WriteString(`,"rows":[`)
	for r, row := range t.Rows {
		if r > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(`{"period":`)
		buf.WriteString(strconv.Itoa(row.Period))
		for i, cell := range row.Cells {
			if !cell.Present {
				continue
			}
			name, _ := json.Marshal(t.Columns[i])
			v, err := json.Marshal(cell.Value)
			if err != nil {
				return nil, err
			}
			buf.WriteByte(',')
			buf.Write(name)
			buf.WriteByte(':')
			buf.Write(v)
		}
		buf.WriteByte('}')
	}
	buf.WriteString(`]}`)
	return buf.Bytes(), nil
}
