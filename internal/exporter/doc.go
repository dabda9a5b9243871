// Package exporter writes query results as CSV.
//
// CSVWriter writes report files under the reports directory. Encode and
// WriteTable write to any io.Writer, which the HTTP layer uses to stream
// comparisons. Every file starts with a UTF-8 BOM so that Excel shows the
// Chinese column labels correctly.
//
// Example usage:
//
//	table := query.JoinForDisplay(series.Named(), avg.Named("行业平均指数"))
//	err := exporter.WriteTable(w, table, "年份", 2)
package exporter
