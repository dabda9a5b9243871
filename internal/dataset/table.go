package dataset

import (
	"iter"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ColumnType is the uniform semantic type of a column.
type ColumnType int

const (
	TypeText ColumnType = iota
	TypeInteger
	TypeFloat
)

func (t ColumnType) String() string {
	switch t {
	case TypeInteger:
		return "integer"
	case TypeFloat:
		return "float"
	default:
		return "text"
	}
}

// Numeric reports whether values of this type are numbers.
func (t ColumnType) Numeric() bool {
	return t == TypeInteger || t == TypeFloat
}

// MarshalText renders the type name in JSON and YAML output.
func (t ColumnType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// missingTokens are cell texts treated as "no value".
var missingTokens = map[string]struct{}{
	"":     {},
	"NaN":  {},
	"nan":  {},
	"NA":   {},
	"N/A":  {},
	"n/a":  {},
	"#N/A": {},
	"NULL": {},
	"null": {},
	"None": {},
	"-":    {},
}

var (
	groupedNumber = regexp.MustCompile(`^[+-]?\d{1,3}(,\d{3})+(\.\d+)?$`)
	// Digit strings with a leading zero are codes, not numbers.
	zeroPaddedCode = regexp.MustCompile(`^0\d+$`)
)

// Cell is one value of a column.
type Cell struct {
	// Text is the trimmed source text, empty when the cell is missing.
	Text string
	// Num holds the parsed value when Numeric is true.
	Num     float64
	Numeric bool
}

// Missing reports whether the cell holds no value.
func (c Cell) Missing() bool {
	return c.Text == ""
}

// Integral reports whether the cell is a whole number.
func (c Cell) Integral() bool {
	return c.Numeric && c.Num == math.Trunc(c.Num) && math.Abs(c.Num) < 1<<53
}

// NewCell parses raw source text into a Cell.
func NewCell(raw string) Cell {
	s := strings.TrimSpace(raw)
	if _, ok := missingTokens[s]; ok {
		return Cell{}
	}
	c := Cell{Text: s}
	if zeroPaddedCode.MatchString(s) {
		return c
	}
	num := s
	if groupedNumber.MatchString(num) {
		num = strings.ReplaceAll(num, ",", "")
	}
	if v, err := strconv.ParseFloat(num, 64); err == nil && !math.IsInf(v, 0) && !math.IsNaN(v) {
		c.Num = v
		c.Numeric = true
	}
	return c
}

// NumberCell builds a numeric cell from a value.
func NumberCell(v float64) Cell {
	return Cell{Text: strconv.FormatFloat(v, 'f', -1, 64), Num: v, Numeric: true}
}

// TextCell builds a text cell; blank text yields a missing cell.
func TextCell(s string) Cell {
	s = strings.TrimSpace(s)
	return Cell{Text: s}
}

// Column is a named, uniformly typed sequence of cells.
type Column struct {
	name  string
	typ   ColumnType
	cells []Cell
}

// NewColumn builds a column and infers its type from the cells.
func NewColumn(name string, cells []Cell) *Column {
	return &Column{name: name, typ: inferType(cells), cells: cells}
}

func (c *Column) Name() string     { return c.name }
func (c *Column) Type() ColumnType { return c.typ }
func (c *Column) Len() int         { return len(c.cells) }

// Cell returns the i-th cell.
func (c *Column) Cell(i int) Cell {
	return c.cells[i]
}

// Text returns the i-th value as text; ok is false when missing.
func (c *Column) Text(i int) (string, bool) {
	cell := c.cells[i]
	return cell.Text, !cell.Missing()
}

// Float returns the i-th value as a number; ok is false when missing or not numeric.
func (c *Column) Float(i int) (float64, bool) {
	cell := c.cells[i]
	return cell.Num, cell.Numeric
}

// Int returns the i-th value as an integer; ok is false unless it is a whole number.
func (c *Column) Int(i int) (int, bool) {
	cell := c.cells[i]
	if !cell.Integral() {
		return 0, false
	}
	return int(cell.Num), true
}

// Cells iterates the column's cells with their row index.
func (c *Column) Cells() iter.Seq2[int, Cell] {
	return func(yield func(int, Cell) bool) {
		for i, cell := range c.cells {
			if !yield(i, cell) {
				return
			}
		}
	}
}

// ColumnInfo is the name and type of one column.
type ColumnInfo struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// Table is an ordered set of equally long columns. It is immutable.
type Table struct {
	source  string
	sheet   string
	columns []*Column
	index   map[string]int
	rows    int
}

// NewTable assembles a table from columns of equal length.
func NewTable(source string, columns ...*Column) (*Table, error) {
	t := &Table{source: source, columns: columns, index: make(map[string]int, len(columns))}
	for i, col := range columns {
		if _, dup := t.index[col.name]; dup {
			return nil, &ParseError{Source: source, Row: 1, Reason: "duplicate column name " + strconv.Quote(col.name)}
		}
		t.index[col.name] = i
		if i == 0 {
			t.rows = col.Len()
		} else if col.Len() != t.rows {
			return nil, &ParseError{Source: source, Reason: "column " + strconv.Quote(col.name) + " has a different length"}
		}
	}
	return t, nil
}

// Source is the path the table was read from.
func (t *Table) Source() string { return t.source }

// Sheet is the worksheet name for spreadsheet sources.
func (t *Table) Sheet() string { return t.sheet }

// Len is the number of data rows.
func (t *Table) Len() int { return t.rows }

// Width is the number of columns.
func (t *Table) Width() int { return len(t.columns) }

// Column looks a column up by exact name.
func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.columns[i], true
}

// ColumnAt returns the i-th column in table order.
func (t *Table) ColumnAt(i int) *Column {
	return t.columns[i]
}

// Has reports whether a column with the given name exists.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Names lists column names in table order.
func (t *Table) Names() []string {
	names := make([]string, len(t.columns))
	for i, col := range t.columns {
		names[i] = col.name
	}
	return names
}

// Schema lists column names and types in table order.
func (t *Table) Schema() []ColumnInfo {
	infos := make([]ColumnInfo, len(t.columns))
	for i, col := range t.columns {
		infos[i] = ColumnInfo{Name: col.name, Type: col.typ}
	}
	return infos
}

// Rows iterates every row index.
func (t *Table) Rows() iter.Seq[int] {
	return func(yield func(int) bool) {
		for i := 0; i < t.rows; i++ {
			if !yield(i) {
				return
			}
		}
	}
}

// Where iterates the indexes of rows whose cell in column matches. A
// missing column yields nothing.
func (t *Table) Where(column string, match func(Cell) bool) iter.Seq[int] {
	col, ok := t.Column(column)
	return func(yield func(int) bool) {
		if !ok {
			return
		}
		for i, cell := range col.cells {
			if match(cell) && !yield(i) {
				return
			}
		}
	}
}

// Row returns the cells of row i keyed by column name.
func (t *Table) Row(i int) map[string]Cell {
	row := make(map[string]Cell, len(t.columns))
	for _, col := range t.columns {
		row[col.name] = col.cells[i]
	}
	return row
}

func inferType(cells []Cell) ColumnType {
	seen := false
	integral := true
	for _, c := range cells {
		if c.Missing() {
			continue
		}
		if !c.Numeric {
			return TypeText
		}
		seen = true
		if !c.Integral() {
			integral = false
		}
	}
	switch {
	case !seen:
		return TypeText
	case integral:
		return TypeInteger
	default:
		return TypeFloat
	}
}
