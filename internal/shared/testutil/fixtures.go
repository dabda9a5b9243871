package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// IndexHeader is the header row of the merged index workbook.
var IndexHeader = []interface{}{"股票代码", "企业名称", "年份", "数字化转型指数", "行业代码", "行业名称"}

// IndexRows returns a small merged dataset: two banks (J66), two liquor
// makers (C15) and one appliance maker (C38) over 2019 to 2021. 000333 has
// no 2020 row and 601166 has no group.
func IndexRows() [][]interface{} {
	return [][]interface{}{
		IndexHeader,
		{"600036", "招商银行", 2019, 45.2, "J66", "货币金融服务"},
		{"600036", "招商银行", 2020, 50.1, "J66", "货币金融服务"},
		{"600036", "招商银行", 2021, 55.0, "J66", "货币金融服务"},
		{"601398", "工商银行", 2020, 60.0, "J66", "货币金融服务"},
		{"601398", "工商银行", 2021, 62.0, "J66", "货币金融服务"},
		{"600519", "贵州茅台", 2019, 30.0, "C15", "酒、饮料和精制茶制造业"},
		{"600519", "贵州茅台", 2020, 33.0, "C15", "酒、饮料和精制茶制造业"},
		{"000858", "五粮液", 2019, 28.0, "C15", "酒、饮料和精制茶制造业"},
		{"000858", "五粮液", 2021, 35.0, "C15", "酒、饮料和精制茶制造业"},
		{"000333", "美的集团", 2019, 40.0, "C38", "电气机械和器材制造业"},
		{"000333", "美的集团", 2021, 48.0, "C38", "电气机械和器材制造业"},
		{"601166", "兴业银行", 2021, 20.0, nil, nil},
		{"600000", "浦发银行", nil, 12.0, "J66", "货币金融服务"},
	}
}

// WriteWorkbook saves rows (header first) as the first sheet of a new
// workbook in a temporary directory and returns its path.
func WriteWorkbook(t *testing.T, name string, rows [][]interface{}) string {
	t.Helper()
	return WriteWorkbookTo(t, filepath.Join(t.TempDir(), name), rows)
}

// WriteWorkbookTo saves rows to path.
func WriteWorkbookTo(t *testing.T, path string, rows [][]interface{}) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for r, row := range rows {
		for c, v := range row {
			if v == nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue(sheet, cell, v))
		}
	}
	require.NoError(t, f.SaveAs(path))
	return path
}
