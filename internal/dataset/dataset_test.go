package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// writeWorkbook saves rows (header first) to a temporary xlsx file.
func writeWorkbook(t *testing.T, rows [][]interface{}) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := "data"
	require.NoError(t, f.SetSheetName(f.GetSheetName(0), sheet))
	for r, row := range rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue(sheet, cell, v))
		}
	}
	path := filepath.Join(t.TempDir(), "index.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestLoadWorkbook(t *testing.T) {
	path := writeWorkbook(t, [][]interface{}{
		{"股票代码", "企业名称", "年份", "数字化转型指数", "行业代码"},
		{"000858", "五粮液", 2019, 45.2, "C15"},
		{600519, "贵州茅台", 2020, 60, "C15"},
		{},
		{600036, "招商银行", 2020, 50.1, nil},
	})

	table, err := Load(path, LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, "data", table.Sheet())
	assert.Equal(t, 3, table.Len())
	assert.Equal(t, []string{"股票代码", "企业名称", "年份", "数字化转型指数", "行业代码"}, table.Names())

	types := map[string]ColumnType{}
	for _, info := range table.Schema() {
		types[info.Name] = info.Type
	}
	assert.Equal(t, TypeText, types["股票代码"], "leading zero codes keep the column textual")
	assert.Equal(t, TypeText, types["企业名称"])
	assert.Equal(t, TypeInteger, types["年份"])
	assert.Equal(t, TypeFloat, types["数字化转型指数"])

	group, ok := table.Column("行业代码")
	require.True(t, ok)
	assert.True(t, group.Cell(2).Missing())
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "nope.xlsx"), LoadOptions{})
		assert.ErrorIs(t, err, ErrFileNotFound)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		path := filepath.Join(dir, "data.json")
		require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))
		_, err := Load(path, LoadOptions{})
		assert.ErrorIs(t, err, ErrParse)
	})

	t.Run("not a workbook", func(t *testing.T) {
		path := filepath.Join(dir, "broken.xlsx")
		require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0o644))
		_, err := Load(path, LoadOptions{})
		assert.ErrorIs(t, err, ErrParse)
	})

	t.Run("unknown sheet", func(t *testing.T) {
		path := writeWorkbook(t, [][]interface{}{{"a"}, {1}})
		_, err := Load(path, LoadOptions{Sheet: "other"})
		assert.ErrorIs(t, err, ErrParse)
	})

	t.Run("header only", func(t *testing.T) {
		path := writeWorkbook(t, [][]interface{}{{"股票代码", "年份"}})
		_, err := Load(path, LoadOptions{})
		assert.ErrorIs(t, err, ErrEmptyDataset)
	})

	t.Run("empty csv", func(t *testing.T) {
		path := filepath.Join(dir, "empty.csv")
		require.NoError(t, os.WriteFile(path, []byte("\n\n"), 0o644))
		_, err := Load(path, LoadOptions{})
		assert.ErrorIs(t, err, ErrParse)
	})

	t.Run("row wider than header", func(t *testing.T) {
		path := filepath.Join(dir, "wide.csv")
		require.NoError(t, os.WriteFile(path, []byte("code,year\n600036,2019,extra\n"), 0o644))
		_, err := Load(path, LoadOptions{})
		require.ErrorIs(t, err, ErrParse)
		var pe *ParseError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, 2, pe.Row)
	})

	t.Run("duplicate header", func(t *testing.T) {
		path := filepath.Join(dir, "dup.csv")
		require.NoError(t, os.WriteFile(path, []byte("code,code\n1,2\n"), 0o644))
		_, err := Load(path, LoadOptions{})
		assert.ErrorIs(t, err, ErrParse)
	})
}

func TestLoadCSVWithBOM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.csv")
	content := "\xEF\xBB\xBFstock_code,year,index\n600036,2019,\"1,045.5\"\n600519,2020,60\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	table, err := Load(path, LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"stock_code", "year", "index"}, table.Names())
	metric, ok := table.Column("index")
	require.True(t, ok)
	assert.Equal(t, TypeFloat, metric.Type())
	v, ok := metric.Float(0)
	require.True(t, ok)
	assert.InDelta(t, 1045.5, v, 1e-9)
}

func TestNewCell(t *testing.T) {
	tests := []struct {
		raw      string
		missing  bool
		numeric  bool
		integral bool
	}{
		{"", true, false, false},
		{"  ", true, false, false},
		{"NaN", true, false, false},
		{"#N/A", true, false, false},
		{"2019", false, true, true},
		{"2019.0", false, true, true},
		{"45.2", false, true, false},
		{"000858", false, false, false},
		{"0", false, true, true},
		{"0.5", false, true, false},
		{"SH600036", false, false, false},
		{"12,345", false, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			c := NewCell(tt.raw)
			assert.Equal(t, tt.missing, c.Missing())
			assert.Equal(t, tt.numeric, c.Numeric)
			assert.Equal(t, tt.integral, c.Integral())
		})
	}
}

func TestClean(t *testing.T) {
	table, err := FromRecords("mem", [][]string{
		{"code", "name", "year", "index"},
		{"858", "五粮液", "2019", "45.2"},
		{"600519", "贵州茅台", "2020.0", "60"},
		{"", "无代码", "2020", "10"},
		{"600036", "招商银行", "", "50.1"},
		{"600036", "招商银行", "2021", "n/a"},
		{"SZ000001", "平安银行", "2021", "30"},
	})
	require.NoError(t, err)

	clean, report, err := Clean(table, CleanSpec{Identifier: "code", Period: "year", Metric: "index", IdentifierWidth: 6})
	require.NoError(t, err)

	assert.Equal(t, 6, report.Input)
	assert.Equal(t, 3, report.Kept)
	assert.Equal(t, map[string]int{"identifier": 1, "period": 1, "metric": 1}, report.Dropped)

	ids, _ := clean.Column("code")
	assert.Equal(t, TypeText, ids.Type())
	var got []string
	for i := range clean.Rows() {
		s, _ := ids.Text(i)
		got = append(got, s)
	}
	assert.Equal(t, []string{"000858", "600519", "SZ000001"}, got)

	years, _ := clean.Column("year")
	assert.Equal(t, TypeInteger, years.Type())
	y, ok := years.Int(1)
	require.True(t, ok)
	assert.Equal(t, 2020, y)

	// the source table is untouched
	assert.Equal(t, 6, table.Len())
}

func TestCleanEmpty(t *testing.T) {
	table, err := FromRecords("mem", [][]string{
		{"code", "year", "index"},
		{"600036", "", "1"},
	})
	require.NoError(t, err)

	_, _, err = Clean(table, CleanSpec{Identifier: "code", Period: "year", Metric: "index"})
	assert.ErrorIs(t, err, ErrEmptyDataset)

	_, _, err = Clean(table, CleanSpec{Identifier: "code", Period: "missing", Metric: "index"})
	assert.Error(t, err)
}

func TestNormalizeIdentifier(t *testing.T) {
	assert.Equal(t, "000858", NormalizeIdentifier(NewCell("858"), 6))
	assert.Equal(t, "858", NormalizeIdentifier(NewCell("858"), 0))
	assert.Equal(t, "600036", NormalizeIdentifier(NewCell("600036.0"), 6))
	assert.Equal(t, "000858", NormalizeIdentifier(NewCell("000858"), 6))
	assert.Equal(t, "AAPL", NormalizeIdentifier(NewCell("AAPL"), 6))
}

func TestWhere(t *testing.T) {
	table, err := FromRecords("mem", [][]string{
		{"code", "year"},
		{"A", "2019"},
		{"B", "2020"},
		{"A", "2021"},
	})
	require.NoError(t, err)

	var rows []int
	for i := range table.Where("code", func(c Cell) bool { return c.Text == "A" }) {
		rows = append(rows, i)
	}
	assert.Equal(t, []int{0, 2}, rows)

	for range table.Where("absent", func(Cell) bool { return true }) {
		t.Fatal("missing column must yield nothing")
	}
}

func TestWriteXLSX(t *testing.T) {
	table, err := FromRecords("mem", [][]string{
		{"code", "year", "index", "group"},
		{"000858", "2019", "45.2", "C15"},
		{"600519", "2020", "60", ""},
	})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out.xlsx")
	require.NoError(t, WriteXLSX(table, path, ""))

	back, err := Load(path, LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, DefaultSheet, back.Sheet())
	assert.Equal(t, table.Names(), back.Names())
	assert.Equal(t, table.Schema(), back.Schema())
	group, _ := back.Column("group")
	assert.True(t, group.Cell(1).Missing())
}
