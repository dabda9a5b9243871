package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dtindex/internal/config"
	"dtindex/internal/shared/testutil"
)

func runQuery(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{"defaults", []string{"600036"}, false},
		{"json output", []string{"-format", "json", "600036"}, false},
		{"unknown format", []string{"-format", "xml", "600036"}, true},
		{"unknown lookup", []string{"-by", "code", "600036"}, true},
		{"inverted window", []string{"-from", "2021", "-to", "2019", "600036"}, true},
		{"partial mapping", []string{"-map-identifier", "股票代码", "600036"}, true},
		{"full mapping", []string{"-map-identifier", "a", "-map-period", "b", "-map-metric", "c"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stderr bytes.Buffer
			_, _, err := parseFlags(tt.args, &stderr)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRun_Profile(t *testing.T) {
	path := testutil.WriteWorkbook(t, "index.xlsx", testutil.IndexRows())

	code, stdout, stderr := runQuery(t, "-data", path, "600036")
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "招商银行 (600036)")
	assert.Contains(t, stdout, config.PeriodHeader)
	assert.Contains(t, stdout, "55.00")
}

func TestRun_ProfileByName(t *testing.T) {
	path := testutil.WriteWorkbook(t, "index.xlsx", testutil.IndexRows())

	code, stdout, stderr := runQuery(t, "-data", path, "-by", "name", "-format", "json", "贵州茅台")
	require.Equal(t, exitOK, code, stderr)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(stdout), &body))
	entity := body["entity"].(map[string]interface{})
	assert.Equal(t, "600519", entity["identifier"])
}

func TestRun_CompareCSV(t *testing.T) {
	path := testutil.WriteWorkbook(t, "index.xlsx", testutil.IndexRows())

	code, stdout, stderr := runQuery(t, "-data", path, "-peer", "601398", "-format", "csv", "600036")
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, config.PeriodHeader)
	assert.Contains(t, stdout, "2019,45.20")
}

func TestRun_List(t *testing.T) {
	path := testutil.WriteWorkbook(t, "index.xlsx", testutil.IndexRows())

	code, stdout, stderr := runQuery(t, "-data", path, "-list", "-group", "J66")
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "600036")
	assert.Contains(t, stdout, "601398")
	assert.NotContains(t, stdout, "600519")
}

func TestRun_GroupAverage(t *testing.T) {
	path := testutil.WriteWorkbook(t, "index.xlsx", testutil.IndexRows())

	code, stdout, stderr := runQuery(t, "-data", path, "-group", "C15", "-format", "json")
	require.Equal(t, exitOK, code, stderr)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(stdout), &body))
	agg := body["aggregate"].(map[string]interface{})
	assert.Equal(t, "C15", agg["group"])
	assert.Len(t, agg["points"], 3)
}

func TestRun_Errors(t *testing.T) {
	path := testutil.WriteWorkbook(t, "index.xlsx", testutil.IndexRows())
	missing := filepath.Join(t.TempDir(), "missing.xlsx")

	tests := []struct {
		name string
		args []string
		code int
	}{
		{"bad identifier", []string{"-data", path, "12345"}, exitError},
		{"unknown entity", []string{"-data", path, "999999"}, exitError},
		{"peer from another group", []string{"-data", path, "-peer", "600519", "600036"}, exitError},
		{"missing dataset", []string{"-data", missing, "600036"}, exitUnavailable},
		{"bad format", []string{"-data", path, "-format", "xml", "600036"}, exitUsage},
		{"mapping names absent column", []string{"-data", path,
			"-map-identifier", "股票代码", "-map-period", "年份", "-map-metric", "nope", "600036"}, exitUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := runQuery(t, tt.args...)
			assert.Equal(t, tt.code, code)
			assert.Contains(t, stderr, "dtquery:")
		})
	}
}

func TestRun_Help(t *testing.T) {
	code, _, stderr := runQuery(t, "-h")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, stderr, "Usage: dtquery")
}
