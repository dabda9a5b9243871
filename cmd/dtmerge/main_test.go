package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dtindex/internal/shared/testutil"
)

func writeInputs(t *testing.T, dir string) (string, string) {
	t.Helper()
	primary := testutil.WriteWorkbookTo(t, filepath.Join(dir, "index.xlsx"), [][]interface{}{
		{"股票代码", "企业名称", "年份", "数字化转型指数"},
		{"600036", "招商银行", 2019, 45.2},
		{"600036", "招商银行", 2020, 50.1},
		{"000858", "五粮液", 2019, 28},
	})
	secondary := testutil.WriteWorkbookTo(t, filepath.Join(dir, "industry.xlsx"), [][]interface{}{
		{"股票代码全称", "年度", "行业代码", "行业名称"},
		{"600036", 2019, "J66", "货币金融服务"},
		{"600036", 2020, "J66", "货币金融服务"},
	})
	return primary, secondary
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	primary, secondary := writeInputs(t, dir)
	out := filepath.Join(dir, "merged.xlsx")
	report := filepath.Join(dir, "report.csv")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"-primary", primary, "-secondary", secondary, "-out", out, "-report", report,
	}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "2 matched, 1 unmatched (66.67%)")
	assert.FileExists(t, out)

	data, err := os.ReadFile(report)
	require.NoError(t, err)
	assert.Contains(t, string(data), "match_rate,66.67")

	// The output exists now; without -force it is left alone.
	stdout.Reset()
	stderr.Reset()
	code = run(context.Background(), []string{
		"-primary", primary, "-secondary", secondary, "-out", out,
	}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "dtmerge:")

	code = run(context.Background(), []string{
		"-primary", primary, "-secondary", secondary, "-out", out, "-force",
	}, &stdout, &stderr)
	assert.Equal(t, 0, code, stderr.String())
}

func TestRun_MissingInput(t *testing.T) {
	dir := t.TempDir()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"-primary", filepath.Join(dir, "nope.xlsx"),
		"-secondary", filepath.Join(dir, "nope2.xlsx"),
		"-out", filepath.Join(dir, "merged.xlsx"),
	}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.NoFileExists(t, filepath.Join(dir, "merged.xlsx"))
}

func TestParseFlags(t *testing.T) {
	var stderr bytes.Buffer
	opts, err := parseFlags([]string{"-force", "-key-width", "6"}, &stderr)
	require.NoError(t, err)
	assert.True(t, opts.force)
	assert.Equal(t, 6, opts.keyWidth)

	_, err = parseFlags([]string{"extra"}, &stderr)
	assert.Error(t, err)
}
